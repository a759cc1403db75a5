package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	semerrors "github.com/Aman-CERP/semindex/internal/errors"
	"github.com/Aman-CERP/semindex/internal/output"
	"github.com/Aman-CERP/semindex/internal/ui"
)

type indexOptions struct {
	plain   bool
	noColor bool
	json    bool
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index the project, or a directory inside it",
		Long: `Walk the tree and bring the index in step with it.

Unchanged files are skipped, edited files only re-embed the chunks that
changed, and files that disappeared are removed from the index. Failed
files are retried on the next run.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := projectRoot(cmd)
			if err != nil {
				return err
			}
			target := root
			if len(args) == 1 {
				target, err = resolveTarget(root, args[0])
				if err != nil {
					return err
				}
			}
			return runIndex(cmd.Context(), cmd, root, target, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Plain text progress (no TUI)")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colors")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print run statistics as JSON")

	return cmd
}

// resolveTarget resolves path against root and rejects paths outside it.
func resolveTarget(root, path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	path = filepath.Clean(path)
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", semerrors.ValidationError("path is outside the project root", err).
			WithDetail("path", path).
			WithDetail("root", root)
	}
	return path, nil
}

func runIndex(ctx context.Context, cmd *cobra.Command, root, target string, opts indexOptions) error {
	p, err := openProject(ctx, root, readWrite)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	out := cmd.OutOrStdout()
	var renderer ui.Renderer
	if opts.json {
		renderer = ui.NewPlainRenderer(ui.NewConfig(cmd.ErrOrStderr()))
	} else {
		renderer = ui.NewRenderer(ui.NewConfig(out,
			ui.WithForcePlain(opts.plain),
			ui.WithNoColor(opts.noColor || ui.DetectNoColor()),
			ui.WithProjectDir(filepath.Base(root))))
	}
	if err := renderer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start progress display: %w", err)
	}

	renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageScanning, Message: "Scanning " + target})
	p.writer.OnProgress(ui.ProgressFunc(renderer))

	stats, runErr := p.writer.IndexDirectory(ctx, target, true)
	info := p.embedderInfo()
	renderer.Complete(ui.CompletionFromStats(stats, ui.EmbedderInfo{Model: info.Model, Dimensions: info.Dimensions}))
	_ = renderer.Stop()
	if info.Cache != nil {
		p.logger.Info("embedding_cache",
			slog.Int("entries", info.Cache.Entries),
			slog.Uint64("hits", info.Cache.Hits),
			slog.Uint64("misses", info.Cache.Misses))
	}

	if runErr != nil {
		return runErr
	}
	if opts.json {
		return output.New(out).JSON(stats)
	}
	return nil
}
