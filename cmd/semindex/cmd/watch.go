package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	semerrors "github.com/Aman-CERP/semindex/internal/errors"
	"github.com/Aman-CERP/semindex/internal/index"
	"github.com/Aman-CERP/semindex/internal/output"
	"github.com/Aman-CERP/semindex/internal/watcher"
)

// watchRestartConfig bounds how often a faulted watcher is restarted
// before the command gives up.
var watchRestartConfig = semerrors.RetryConfig{
	MaxRetries:   10,
	InitialDelay: time.Second,
	MaxDelay:     30 * time.Second,
	Multiplier:   2,
	Jitter:       true,
}

type watchOptions struct {
	skipInitial bool
	polling     bool
	quiet       bool
}

func newWatchCmd() *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Keep the index current while files change",
		Long: `Run an initial indexing pass, then watch the tree and re-index files
as they are created, edited, renamed or deleted. Stop with Ctrl+C.

Editing a .gitignore reloads the exclusion rules and reconciles the tree.`,
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
			return runWatch(cmd.Context(), cmd, root, target, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.skipInitial, "no-initial", false, "Skip the initial indexing pass")
	cmd.Flags().BoolVar(&opts.polling, "poll", false, "Poll instead of using filesystem events")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Only print errors")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, root, target string, opts watchOptions) error {
	p, err := openProject(ctx, root, readWrite)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	out := output.New(cmd.OutOrStdout())

	if !opts.skipInitial {
		stats, err := p.writer.IndexDirectory(ctx, target, true)
		if err != nil {
			return err
		}
		out.Successf("Indexed %d files (%d unchanged, %d removed, %d errors) in %s",
			stats.Indexed, stats.Skipped, stats.Deleted, stats.Errors, stats.Duration.Round(time.Millisecond))
	}

	wopts := watcher.DefaultOptions()
	wopts.DebounceWindow = p.cfg.Watcher.Debounce()
	wopts.PollInterval = p.cfg.Watcher.Poll()
	wopts.QueueSize = p.cfg.Watcher.QueueSize
	wopts.Workers = p.cfg.Index.WorkerPoolSize
	wopts.ForcePolling = p.cfg.Watcher.ForcePolling || opts.polling
	wopts.Exclude = p.excluder.Func()
	wopts.OnIgnoreChange = p.excluder.Reload
	wopts.Logger = p.logger
	wopts.OnResult = func(res index.Result, err error) {
		switch {
		case err != nil:
			out.Errorf("%s: %v", res.Path, err)
		case opts.quiet || res.Status != index.StatusIndexed:
		default:
			out.Statusf("↻", "%s (%s, %d chunks, %d embedded)", res.Path, res.Reason, res.Chunks, res.Embedded)
		}
	}

	w, err := watcher.NewDirectoryWatcher(target, p.writer, wopts)
	if err != nil {
		return err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-w.Errors():
				p.logger.LogAttrs(ctx, slog.LevelWarn, "watcher_error", semerrors.LogAttrs(err)...)
				out.Warningf("watcher: %v", err)
			}
		}
	}()

	if !opts.quiet {
		out.Statusf("👀", "Watching %s (Ctrl+C to stop)", target)
	}

	err = semerrors.Retry(ctx, watchRestartConfig, func() error {
		runErr := w.Run(ctx)
		if runErr != nil {
			p.logger.Warn("watcher_restarting", slog.String("error", runErr.Error()))
		}
		return runErr
	})
	if err != nil && ctx.Err() == nil {
		return err
	}

	s := w.Stats()
	if !opts.quiet {
		out.Newline()
		out.Status("■", fmt.Sprintf("Stopped: %d events, %d indexed, %d removed, %d failed", s.Events, s.Indexed, s.Removed, s.Failed))
	}
	return nil
}
