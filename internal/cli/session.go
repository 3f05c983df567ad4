package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/roach88/cyclecount/internal/session"
)

type sessionCount struct {
	Title      string          `json:"title"`
	CountedQty decimal.Decimal `json:"countedQty"`
	RecordedAt time.Time       `json:"ts"`
}

type sessionView struct {
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	Counts    []sessionCount `json:"counts"`
}

func toSessionView(s *session.Session) sessionView {
	v := sessionView{ID: s.ID, CreatedAt: s.CreatedAt, Counts: []sessionCount{}}
	for _, title := range s.Counted() {
		rec, _ := s.Record(title)
		v.Counts = append(v.Counts, sessionCount{
			Title:      title,
			CountedQty: rec.CountedQty,
			RecordedAt: rec.RecordedAt,
		})
	}
	return v
}

// NewSessionCommand creates the session command group.
func NewSessionCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect or replace the local counting session",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the active session and its counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), cmd, rootOpts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			v := toSessionView(a.rc.Session())
			return a.out.Render(v, func(w io.Writer) {
				fmt.Fprintf(w, "Session %s (started %s)\n", v.ID, v.CreatedAt.Format(time.RFC3339))
				if len(v.Counts) == 0 {
					fmt.Fprintln(w, "No counts recorded.")
				}
				for _, c := range v.Counts {
					fmt.Fprintf(w, "  %s = %s\n", c.Title, c.CountedQty)
				}
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "new",
		Short: "Discard the active session and start a new one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), cmd, rootOpts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.rc.NewSession(cmd.Context())
			if err != nil {
				return a.fail("new session failed", err)
			}
			v := toSessionView(s)
			return a.out.Render(v, func(w io.Writer) {
				fmt.Fprintf(w, "Started session %s\n", v.ID)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Delete the active session without starting a new one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), cmd, rootOpts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.rc.Reset(cmd.Context()); err != nil {
				return a.fail("reset failed", err)
			}
			return a.out.Render(map[string]bool{"cleared": true}, func(w io.Writer) {
				fmt.Fprintln(w, "Session cleared")
			})
		},
	})

	return cmd
}
