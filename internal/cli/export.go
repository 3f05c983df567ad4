package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/cyclecount/internal/reconcile"
	"github.com/roach88/cyclecount/internal/report"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Out    string
	Filter string
	Search string
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the count view to an Excel workbook",
		Long: `Write the current view (expected, counted, status per product) and a
progress summary to an .xlsx workbook.

Example:
  cyclecount export --out counts.xlsx
  cyclecount export --out mismatches.xlsx --filter mismatch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "output .xlsx path (required)")
	cmd.Flags().StringVar(&opts.Filter, "filter", "all", "status filter (all|uncounted|counted|mismatch)")
	cmd.Flags().StringVarP(&opts.Search, "search", "s", "", "case-insensitive title search")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	filter, err := reconcile.ParseFilter(opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --filter", err)
	}

	a, err := openApp(ctx, cmd, opts.RootOptions, true)
	if err != nil {
		return err
	}
	defer a.Close()

	exp := report.Export{
		SessionID:  a.rc.Session().ID,
		ExportedAt: a.now(),
		Rows:       a.rc.View(filter, opts.Search),
		Progress:   a.rc.Progress(),
	}
	if err := report.WriteFile(opts.Out, exp); err != nil {
		return a.out.Fail(ExitCommandError, "export failed", err)
	}

	result := map[string]any{"path": opts.Out, "rows": len(exp.Rows)}
	return a.out.Render(result, func(w io.Writer) {
		fmt.Fprintf(w, "Exported %d row(s) to %s\n", len(exp.Rows), opts.Out)
	})
}
