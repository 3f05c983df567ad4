package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/roach88/cyclecount/internal/catalog"
	"github.com/roach88/cyclecount/internal/clock"
	"github.com/roach88/cyclecount/internal/quantity"
	"github.com/roach88/cyclecount/internal/reconcile"
	"github.com/roach88/cyclecount/internal/scheduler"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Save quantities as they are typed, line by line",
		Long: `Read "title=qty" lines from stdin and save each product to the sheet
once its value has been left alone for the debounce window.

Repeated lines for one product coalesce: only the last value is sent. A
blank line flushes everything and waits for the results; so does the end of
input.

Other lines:
  :count title=qty   record a count in the local session
  :retry title       resend a failed save
  :commit            commit the local session as one batch
  :flush             same as a blank line

Example:
  printf 'Soda 12pk=4\nSoda 12pk=6\n' | cyclecount sync`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(rootOpts, cmd)
		},
	}
}

// syncOutcome is the settled state of one product after a flush.
type syncOutcome struct {
	Title     string           `json:"title"`
	Status    string           `json:"status"`
	Requested decimal.Decimal  `json:"requested"`
	Confirmed *decimal.Decimal `json:"confirmed,omitempty"`
	Error     string           `json:"error,omitempty"`
}

type syncReport struct {
	Outcomes []syncOutcome            `json:"outcomes"`
	Rejected []string                 `json:"rejected,omitempty"`
	Counted  []countResult            `json:"counted,omitempty"`
	Commits  []reconcile.CommitResult `json:"commits,omitempty"`
}

// syncRun is the state of one sync command.
type syncRun struct {
	a        *app
	sched    *scheduler.Scheduler
	debounce time.Duration
	touched  map[string]bool
	report   syncReport
	failed   int
	text     io.Writer // nil in JSON mode
}

func runSync(opts *RootOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, cmd, opts, true)
	if err != nil {
		return err
	}
	defer a.Close()

	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	sched := scheduler.New(a.rc.Writer(),
		scheduler.WithClock(clk),
		scheduler.WithResultHandler(func(r scheduler.Result) {
			if r.Err != nil {
				slog.Debug("sync write failed", "title", r.Title, "error", r.Err)
				return
			}
			slog.Debug("sync write confirmed", "title", r.Title, "confirmed", r.Confirmed.String())
		}))
	a.rc.SetGate(sched)

	runCtx, cancel := context.WithCancel(ctx)
	loopDone := make(chan error, 1)
	go func() { loopDone <- sched.Run(runCtx) }()
	defer func() {
		cancel()
		<-loopDone
	}()

	s := &syncRun{
		a:        a,
		sched:    sched,
		debounce: a.cfg.Debounce,
		touched:  make(map[string]bool),
		report:   syncReport{Outcomes: []syncOutcome{}},
	}
	if opts.Format != "json" {
		s.text = cmd.OutOrStdout()
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		var err error
		switch {
		case line == "" || line == ":flush":
			err = s.settle(ctx)
		case strings.HasPrefix(line, ":"):
			err = s.command(ctx, lineNo, line)
		default:
			err = s.edit(ctx, lineNo, line)
		}
		if err != nil {
			return a.fail("sync stopped", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return a.fail("reading input", err)
	}
	if err := s.settle(ctx); err != nil {
		return a.fail("sync stopped", err)
	}

	if s.text == nil {
		if err := a.out.Success(s.report); err != nil {
			return err
		}
	}
	if s.failed > 0 {
		exitErr := NewExitError(ExitFailure, fmt.Sprintf("%d save(s) failed", s.failed))
		exitErr.reported = true
		return exitErr
	}
	return nil
}

// edit schedules a debounced save for a "title=qty" line.
func (s *syncRun) edit(ctx context.Context, lineNo int, line string) error {
	title, text, ok := splitAssignment(line)
	if !ok {
		s.reject(lineNo, fmt.Sprintf("expected title=qty, got %q", line))
		return nil
	}
	if strings.TrimSpace(text) == "" {
		// still typing
		return nil
	}
	qty, err := quantity.Parse(text)
	if err != nil {
		s.reject(lineNo, err.Error())
		return nil
	}
	if _, known := s.a.rc.Status(title); !known {
		s.reject(lineNo, (&reconcile.ConflictError{Title: title, Err: reconcile.ErrUnknownTitle}).Error())
		return nil
	}

	s.touched[title] = true
	return s.sched.Schedule(ctx, title, quantity.Normalize(qty, s.a.rc.Step()), s.debounce)
}

func (s *syncRun) command(ctx context.Context, lineNo int, line string) error {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case ":retry":
		title := catalog.NormalizeTitle(arg)
		s.touched[title] = true
		return s.sched.Retry(ctx, title)

	case ":count":
		title, text, ok := splitAssignment(arg)
		if !ok {
			s.reject(lineNo, fmt.Sprintf("expected :count title=qty, got %q", line))
			return nil
		}
		qty, err := s.a.rc.RecordCount(ctx, title, text)
		if err != nil {
			s.reject(lineNo, err.Error())
			return nil
		}
		st, _ := s.a.rc.Status(title)
		res := countResult{Title: title, Counted: qty, Status: st.String()}
		s.report.Counted = append(s.report.Counted, res)
		if s.text != nil {
			fmt.Fprintf(s.text, "counted %s: %s (%s)\n", title, qty, res.Status)
		}
		return nil

	case ":commit":
		res, err := s.a.rc.CommitSession(ctx)
		if err != nil {
			s.reject(lineNo, err.Error())
			return nil
		}
		s.report.Commits = append(s.report.Commits, res)
		if s.text != nil {
			writeCommit(s.text, res)
		}
		return nil

	default:
		s.reject(lineNo, fmt.Sprintf("unknown command %q", name))
		return nil
	}
}

// settle flushes every pending save, waits for the results and reports the
// products touched since the last settle.
func (s *syncRun) settle(ctx context.Context) error {
	if err := s.sched.FlushAll(ctx); err != nil {
		return err
	}
	if err := s.sched.WaitIdle(ctx); err != nil {
		return err
	}

	titles := make([]string, 0, len(s.touched))
	for title := range s.touched {
		titles = append(titles, title)
	}
	sort.Strings(titles)

	for _, title := range titles {
		st, err := s.sched.State(ctx, title)
		if err != nil {
			return err
		}
		out := syncOutcome{
			Title:     title,
			Status:    st.Status.String(),
			Requested: st.LastRequested,
			Confirmed: st.Confirmed,
		}
		if st.Status == scheduler.StatusFailed {
			s.failed++
			if st.Err != nil {
				out.Error = st.Err.Error()
			}
		}
		s.report.Outcomes = append(s.report.Outcomes, out)
		if s.text != nil {
			writeOutcome(s.text, out)
		}
	}
	s.touched = make(map[string]bool)
	return nil
}

func (s *syncRun) reject(lineNo int, reason string) {
	msg := fmt.Sprintf("line %d: %s", lineNo, reason)
	s.report.Rejected = append(s.report.Rejected, msg)
	if s.text != nil {
		fmt.Fprintf(s.text, "rejected %s\n", msg)
	}
}

func writeOutcome(w io.Writer, o syncOutcome) {
	switch {
	case o.Error != "":
		fmt.Fprintf(w, "%s %s: %s (%s)\n", o.Status, o.Title, o.Requested, o.Error)
	case o.Confirmed != nil:
		fmt.Fprintf(w, "%s %s: %s\n", o.Status, o.Title, o.Confirmed)
	default:
		fmt.Fprintf(w, "%s %s\n", o.Status, o.Title)
	}
}

// splitAssignment splits "title=qty" at the last '='.
func splitAssignment(line string) (title, qty string, ok bool) {
	i := strings.LastIndex(line, "=")
	if i < 0 {
		return "", "", false
	}
	title = catalog.NormalizeTitle(line[:i])
	if title == "" {
		return "", "", false
	}
	return title, strings.TrimSpace(line[i+1:]), true
}
