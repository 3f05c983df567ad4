package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/cyclecount/internal/reconcile"
	"github.com/roach88/cyclecount/internal/remote"
)

// CommitOptions holds flags for the commit command.
type CommitOptions struct {
	*RootOptions
	DryRun bool
}

type dryRunResult struct {
	SessionID string             `json:"sessionId"`
	Items     []remote.BatchItem `json:"items"`
	Stale     []string           `json:"stale,omitempty"`
}

// NewCommitCommand creates the commit command.
func NewCommitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CommitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Submit every counted product as one batch",
		Long: `Submit the counted products of the local session to the sheet as one
batch, tagged with the session id so a retried commit can be recognised.

On success the session is cleared and a new one is started. On failure the
session is kept so the commit can be retried. Counted products that are no
longer in the catalog are skipped and listed.

Example:
  cyclecount commit --dry-run
  cyclecount commit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommit(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "show the batch without sending it")

	return cmd
}

func runCommit(opts *CommitOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, cmd, opts.RootOptions, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if opts.DryRun {
		items, stale := a.rc.Pending()
		res := dryRunResult{SessionID: a.rc.Session().ID, Items: items, Stale: stale}
		return a.out.Render(res, func(w io.Writer) {
			fmt.Fprintf(w, "Session %s: %d item(s) to commit\n", res.SessionID, len(res.Items))
			for _, it := range res.Items {
				fmt.Fprintf(w, "  %s = %d\n", it.ProductTitle, it.CasesQty)
			}
			writeStale(w, res.Stale)
		})
	}

	res, err := a.rc.CommitSession(ctx)
	if err != nil {
		return a.fail("commit failed", err)
	}
	return a.out.Render(res, func(w io.Writer) {
		writeCommit(w, res)
	})
}

func writeCommit(w io.Writer, res reconcile.CommitResult) {
	fmt.Fprintf(w, "Committed %d item(s) from session %s; %d updated\n", len(res.Items), res.SessionID, res.Updated)
	writeStale(w, res.Stale)
	if len(res.Discarded) > 0 {
		fmt.Fprintf(w, "Discarded (recorded during commit): %s\n", strings.Join(res.Discarded, ", "))
	}
	fmt.Fprintf(w, "New session %s\n", res.NewSessionID)
}

func writeStale(w io.Writer, stale []string) {
	if len(stale) > 0 {
		fmt.Fprintf(w, "Skipped (not in catalog): %s\n", strings.Join(stale, ", "))
	}
}
