package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/semindex/internal/output"
)

func newVerifyCmd() *cobra.Command {
	var repair bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that records, vectors and the lexical index agree",
		Long: `Compare index records with the similarity store and the lexical index.

Orphaned entries, ids missing from a store and unfinished writes are
reported. With --repair, orphans are deleted and affected files are
re-indexed. Holds the writer lock, so it cannot run beside 'watch'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := projectRoot(cmd)
			if err != nil {
				return err
			}
			return runVerify(cmd.Context(), cmd, root, repair, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&repair, "repair", false, "Fix the inconsistencies found")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runVerify(ctx context.Context, cmd *cobra.Command, root string, repair, jsonOutput bool) error {
	p, err := openProject(ctx, root, readWrite)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	out := output.New(cmd.OutOrStdout())

	report, err := p.writer.Verify(ctx)
	if err != nil {
		return err
	}
	if !repair || report.Clean() {
		if jsonOutput {
			return out.JSON(report)
		}
		out.VerifyReport(report)
		return nil
	}

	result, err := p.writer.Repair(ctx, report)
	if err != nil {
		return err
	}
	if jsonOutput {
		return out.JSON(map[string]any{"report": report, "repair": result})
	}
	out.VerifyReport(report)
	out.RepairResult(result)
	return nil
}
