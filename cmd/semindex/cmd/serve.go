package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/semindex/internal/logging"
	"github.com/Aman-CERP/semindex/internal/mcp"
)

func newServeCmd() *cobra.Command {
	var transport string
	var noResources bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the index to MCP clients",
		Long: `Start an MCP server exposing the search and index_stats tools, plus
every indexed file as a file:// resource.

stdout carries JSON-RPC only; logs go to ~/.semindex/logs/. Run
'semindex watch' beside it to keep the index current.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := projectRoot(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), root, transport, !noResources)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport type (stdio)")
	cmd.Flags().BoolVar(&noResources, "no-resources", false, "Do not expose indexed files as resources")

	return cmd
}

func runServe(ctx context.Context, root, transport string, resources bool) error {
	// Nothing may reach stdout except protocol messages.
	if loggingCleanup == nil {
		cleanup, err := logging.SetupServeMode()
		if err != nil {
			return fmt.Errorf("failed to setup logging: %w", err)
		}
		loggingCleanup = cleanup
	}

	p, err := openProject(ctx, root, readOnly)
	if err != nil {
		slog.Error("serve_open_failed", slog.String("root", root), slog.String("error", err.Error()))
		return err
	}
	defer func() { _ = p.Close() }()

	srv, err := mcp.NewServer(p.retriever, p.writer, root)
	if err != nil {
		return err
	}

	if resources {
		records, err := p.records.List(ctx)
		if err != nil {
			return err
		}
		paths := make([]string, 0, len(records))
		for _, r := range records {
			if r.Fingerprint != "" {
				paths = append(paths, r.Path)
			}
		}
		if err := srv.RegisterResources(paths); err != nil {
			return err
		}
	}

	slog.Info("serve_started",
		slog.String("root", root),
		slog.String("transport", transport),
		slog.String("embedder", p.embedderInfo().Model))
	return srv.Serve(ctx, transport)
}
