package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/semindex/internal/output"
	"github.com/Aman-CERP/semindex/internal/store"
)

type searchOptions struct {
	limit        int
	lexical      bool
	paths        []string
	language     string
	category     string
	json         bool
	snippetLines int
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the index",
		Long: `Search the index with a natural-language or keyword query.

By default vector and keyword matches are fused; --lexical=false ranks by
vector similarity alone.`,
		Example: `  semindex search "where are retries configured"
  semindex search -n 5 --path internal/store "ReplaceFile"
  semindex search --language go --json "debounce window"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := projectRoot(cmd)
			if err != nil {
				return err
			}
			return runSearch(cmd.Context(), cmd, root, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum results (default from config)")
	cmd.Flags().BoolVar(&opts.lexical, "lexical", true, "Fuse keyword matches with vector matches")
	cmd.Flags().StringSliceVar(&opts.paths, "path", nil, "Restrict to paths under these prefixes (repeatable)")
	cmd.Flags().StringVar(&opts.language, "language", "", "Restrict to a language (go, python, markdown, ...)")
	cmd.Flags().StringVar(&opts.category, "category", "", "Restrict to a category (code, document, generic)")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Output results as JSON")
	cmd.Flags().IntVar(&opts.snippetLines, "lines", output.DefaultSnippetLines, "Snippet lines shown per result")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, root, query string, opts searchOptions) error {
	p, err := openProject(ctx, root, readOnly)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	limit := opts.limit
	if limit <= 0 {
		limit = p.cfg.Search.DefaultLimit
	}

	var filter *store.Filter
	if len(opts.paths) > 0 || opts.language != "" || opts.category != "" {
		filter = &store.Filter{
			PathPrefixes: trimPrefixes(opts.paths),
			Language:     opts.language,
			Category:     opts.category,
		}
	}

	results, err := p.retriever.SearchText(ctx, query, limit, filter, opts.lexical)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if opts.json {
		return out.JSON(results)
	}
	out.SearchResults(query, results, opts.snippetLines)
	return nil
}

// trimPrefixes normalizes user path prefixes to slash-separated,
// root-relative form.
func trimPrefixes(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimPrefix(strings.ReplaceAll(p, "\\", "/"), "./")
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
