package cli

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/roach88/cyclecount/internal/catalog"
	"github.com/roach88/cyclecount/internal/quantity"
)

type countResult struct {
	Title    string          `json:"title"`
	Counted  decimal.Decimal `json:"counted"`
	Expected decimal.Decimal `json:"expected"`
	Status   string          `json:"status"`
}

// NewCountCommand creates the count command.
func NewCountCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "count <title> <qty>",
		Short: "Record a count in the local session",
		Long: `Record a physical count for one product in the local session.

The count is kept locally until the session is committed. An empty quantity
records zero.

Example:
  cyclecount count "Soda 12pk" 6
  cyclecount count "Soda 12pk" 5,5 --step 0.5`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), cmd, rootOpts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			title := catalog.NormalizeTitle(args[0])
			qty, err := a.rc.RecordCount(cmd.Context(), title, args[1])
			if err != nil {
				return a.fail("count rejected", err)
			}

			st, _ := a.rc.Status(title)
			res := countResult{Title: title, Counted: qty, Status: st.String()}
			for _, p := range a.rc.Products() {
				if p.Title == title {
					res.Expected = p.ExpectedQty
				}
			}
			return a.out.Render(res, func(w io.Writer) {
				fmt.Fprintf(w, "Counted %s: %s (%s, expected %s)\n", res.Title, res.Counted, res.Status, res.Expected)
			})
		},
	}
}

// NewUncountCommand creates the uncount command.
func NewUncountCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "uncount <title>",
		Short: "Remove a count from the local session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), cmd, rootOpts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			title := catalog.NormalizeTitle(args[0])
			if err := a.rc.RemoveCount(cmd.Context(), title); err != nil {
				return a.fail("uncount failed", err)
			}
			return a.out.Render(map[string]string{"title": title}, func(w io.Writer) {
				fmt.Fprintf(w, "Removed count for %s\n", title)
			})
		},
	}
}

type saveResult struct {
	Title     string          `json:"title"`
	Requested decimal.Decimal `json:"requested"`
	Confirmed decimal.Decimal `json:"confirmed"`
}

// NewSaveCommand creates the save command.
func NewSaveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "save <title> <qty>",
		Short: "Save one product's quantity to the sheet now",
		Long: `Write one product's quantity straight to the inventory sheet.

The sheet's answer becomes the expected quantity; it may differ from the
value sent when the sheet applies its own rounding.

Example:
  cyclecount save "Soda 12pk" 6`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := quantity.Parse(args[1])
			if err != nil {
				return WrapExitError(ExitFailure, "invalid quantity", err)
			}

			a, err := openApp(cmd.Context(), cmd, rootOpts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			title := catalog.NormalizeTitle(args[0])
			confirmed, err := a.rc.SingleSave(cmd.Context(), title, qty)
			if err != nil {
				return a.fail("save failed", err)
			}

			res := saveResult{
				Title:     title,
				Requested: quantity.Normalize(qty, a.rc.Step()),
				Confirmed: confirmed,
			}
			return a.out.Render(res, func(w io.Writer) {
				fmt.Fprintf(w, "Saved %s: %s\n", res.Title, res.Confirmed)
			})
		},
	}
}
