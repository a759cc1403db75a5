package cmd

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/semindex/internal/store"
	"github.com/Aman-CERP/semindex/internal/ui"
)

func newStatsCmd() *cobra.Command {
	var jsonOutput bool
	var noColor bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Long:  `Show tracked files, chunk and vector counts, storage use and the embedder.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := projectRoot(cmd)
			if err != nil {
				return err
			}
			return runStats(cmd.Context(), cmd, root, jsonOutput, noColor)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colors")

	return cmd
}

func runStats(ctx context.Context, cmd *cobra.Command, root string, jsonOutput, noColor bool) error {
	p, err := openProject(ctx, root, readOnly)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	stats, err := p.writer.Statistics(ctx)
	if err != nil {
		return err
	}

	info := ui.StatusFromStats(root, stats)
	info.VectorBackend = p.cfg.Store.Backend
	info.LexicalBackend = p.cfg.Lexical.Backend
	info.RecordsSize = pathSize(store.RecordsPath(p.dataDir))
	if p.cfg.Lexical.Backend != store.LexicalNone {
		info.LexicalSize = pathSize(store.LexicalIndexPath(p.dataDir, p.cfg.Lexical.Backend))
	}
	if path := store.VectorPath(p.dataDir, p.cfg.Store.Backend); path != "" {
		info.VectorSize = pathSize(path)
	}
	info.TotalSize = info.RecordsSize + info.LexicalSize + info.VectorSize

	r := ui.NewStatusRenderer(cmd.OutOrStdout(), noColor || ui.DetectNoColor())
	if jsonOutput {
		return r.RenderJSON(info)
	}
	return r.Render(info)
}

// pathSize returns the size of a file plus its SQLite WAL, or the total
// size of a directory. Missing paths count as zero.
func pathSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	if !info.IsDir() {
		size := info.Size()
		if wal, err := os.Stat(path + "-wal"); err == nil {
			size += wal.Size()
		}
		return size
	}

	var total int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if fi, err := d.Info(); err == nil {
			total += fi.Size()
		}
		return nil
	})
	return total
}
