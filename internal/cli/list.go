package cli

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/roach88/cyclecount/internal/reconcile"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Filter string
	Search string
}

// rowView is one listed product.
type rowView struct {
	Title    string           `json:"title"`
	Location string           `json:"location,omitempty"`
	Expected decimal.Decimal  `json:"expected"`
	Counted  *decimal.Decimal `json:"counted,omitempty"`
	Status   string           `json:"status"`
}

type listResult struct {
	Rows     []rowView          `json:"rows"`
	Progress reconcile.Progress `json:"progress"`
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List products with their count status",
		Long: `List catalog products with expected and counted quantities.

Example:
  cyclecount list
  cyclecount list --filter mismatch
  cyclecount list --filter uncounted --search soda`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "all", "status filter (all|uncounted|counted|mismatch)")
	cmd.Flags().StringVarP(&opts.Search, "search", "s", "", "case-insensitive title search")

	return cmd
}

func runList(opts *ListOptions, cmd *cobra.Command) error {
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

	rows := a.rc.View(filter, opts.Search)
	result := listResult{
		Rows:     make([]rowView, 0, len(rows)),
		Progress: a.rc.Progress(),
	}
	for _, r := range rows {
		result.Rows = append(result.Rows, toRowView(r))
	}

	return a.out.Render(result, func(w io.Writer) {
		writeRows(w, result.Rows)
		writeProgress(w, result.Progress)
	})
}

func toRowView(r reconcile.Row) rowView {
	v := rowView{
		Title:    r.Product.Title,
		Location: r.Product.Location,
		Expected: r.Product.ExpectedQty,
		Status:   r.Status.String(),
	}
	if r.Status != reconcile.Uncounted {
		counted := r.CountedQty
		v.Counted = &counted
	}
	return v
}

func writeRows(w io.Writer, rows []rowView) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No products match.")
		return
	}
	fmt.Fprintf(w, "%-10s %8s %8s  %s\n", "STATUS", "EXPECTED", "COUNTED", "PRODUCT")
	for _, r := range rows {
		counted := "-"
		if r.Counted != nil {
			counted = r.Counted.String()
		}
		title := r.Title
		if r.Location != "" {
			title = fmt.Sprintf("%s (%s)", r.Title, r.Location)
		}
		fmt.Fprintf(w, "%-10s %8s %8s  %s\n", r.Status, r.Expected.String(), counted, title)
	}
}

func writeProgress(w io.Writer, p reconcile.Progress) {
	fmt.Fprintf(w, "%d/%d counted (%d%%)\n", p.Counted, p.Total, p.Percent)
}

// NewProgressCommand creates the progress command.
func NewProgressCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "progress",
		Short: "Show how much of the catalog has been counted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), cmd, rootOpts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			p := a.rc.Progress()
			return a.out.Render(p, func(w io.Writer) {
				writeProgress(w, p)
			})
		},
	}
}
