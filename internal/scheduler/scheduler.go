package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/cyclecount/internal/clock"
)

// DefaultDebounce is the idle window after the last edit before a write.
const DefaultDebounce = 600 * time.Millisecond

// ErrStopped is returned by calls made after the loop has stopped.
var ErrStopped = errors.New("scheduler stopped")

// Writer performs one remote write and returns the server-confirmed value.
type Writer interface {
	Write(ctx context.Context, title string, value decimal.Decimal) (decimal.Decimal, error)
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(ctx context.Context, title string, value decimal.Decimal) (decimal.Decimal, error)

// Write calls f.
func (f WriterFunc) Write(ctx context.Context, title string, value decimal.Decimal) (decimal.Decimal, error) {
	return f(ctx, title, value)
}

// Status is the advisory per-title state shown to the user.
type Status int

const (
	StatusIdle Status = iota
	StatusTyping
	StatusSaving
	StatusSaved
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusTyping:
		return "typing"
	case StatusSaving:
		return "saving"
	case StatusSaved:
		return "saved"
	case StatusFailed:
		return "failed"
	default:
		return "idle"
	}
}

// PendingWrite is a snapshot of one title's scheduler state.
type PendingWrite struct {
	Title         string
	LastRequested decimal.Decimal
	Confirmed     *decimal.Decimal
	Status        Status
	TimerPending  bool
	InFlight      bool
	FollowUp      bool
	Deferred      bool
	Err           error
}

// Result reports the outcome of one dispatched write.
type Result struct {
	Title     string
	Requested decimal.Decimal
	Confirmed decimal.Decimal // zero on failure
	Err       error
}

// entry is the loop-owned state for one title.
type entry struct {
	title    string
	latest   decimal.Decimal
	dirty    bool // latest has not been handed to a write yet
	timer    clock.Timer
	timerGen uint64
	inFlight bool
	sending  decimal.Decimal
	followUp bool
	deferred bool

	// abandoned marks an in-flight write whose session was cleared; its
	// value must not come back as pending work.
	abandoned bool

	status    Status
	confirmed *decimal.Decimal
	err       error
}

// Scheduler is the per-title debounce and write coalescer.
//
// Thread-safety model:
//   - Run(): must be called from exactly one goroutine
//   - every other method: safe from any goroutine, blocks until the Run
//     loop has processed the request or ctx is done
type Scheduler struct {
	writer   Writer
	clock    clock.Clock
	queue    *eventQueue
	onResult func(Result)

	// loop-owned
	entries     map[string]*entry
	held        bool
	idleWaiters []chan struct{}
	runCtx      context.Context

	stopped chan struct{} // closed when Run returns
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the clock used for debounce timers.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// WithResultHandler registers fn to receive every write outcome. fn runs on
// the Run goroutine and must not call back into the Scheduler.
func WithResultHandler(fn func(Result)) Option {
	return func(s *Scheduler) {
		s.onResult = fn
	}
}

// New creates a Scheduler that writes through w.
func New(w Writer, opts ...Option) *Scheduler {
	s := &Scheduler{
		writer:  w,
		clock:   clock.Real(),
		queue:   newEventQueue(),
		entries: make(map[string]*entry),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule records value as the latest edit for title and restarts its
// debounce window. While a write for title is in flight the value becomes
// the follow-up instead and no timer is started.
func (s *Scheduler) Schedule(ctx context.Context, title string, value decimal.Decimal, debounce time.Duration) error {
	return s.call(ctx, event{kind: evSchedule, title: title, value: value, debounce: debounce})
}

// Flush cancels title's timer and writes its latest value now.
func (s *Scheduler) Flush(ctx context.Context, title string) error {
	return s.call(ctx, event{kind: evFlush, title: title})
}

// FlushAll flushes every title with an unsent value.
func (s *Scheduler) FlushAll(ctx context.Context) error {
	return s.call(ctx, event{kind: evFlushAll})
}

// Retry re-sends the latest value of a failed title.
func (s *Scheduler) Retry(ctx context.Context, title string) error {
	return s.call(ctx, event{kind: evRetry, title: title})
}

// Hold defers all dispatches until Release. Timers still run and edits are
// still recorded.
func (s *Scheduler) Hold(ctx context.Context) error {
	return s.call(ctx, event{kind: evHold})
}

// Release ends a Hold and dispatches everything that came due meanwhile.
func (s *Scheduler) Release(ctx context.Context) error {
	return s.call(ctx, event{kind: evRelease})
}

// Abandon cancels every unfired timer and forgets unsent values. In-flight
// writes still complete and report.
func (s *Scheduler) Abandon(ctx context.Context) error {
	return s.call(ctx, event{kind: evAbandon})
}

// State returns a snapshot of title's state.
func (s *Scheduler) State(ctx context.Context, title string) (PendingWrite, error) {
	reply := make(chan PendingWrite, 1)
	if err := s.call(ctx, event{kind: evState, title: title, state: reply}); err != nil {
		return PendingWrite{}, err
	}
	return <-reply, nil
}

// WaitIdle blocks until no timer is pending, nothing is in flight and
// nothing is deferred.
func (s *Scheduler) WaitIdle(ctx context.Context) error {
	idle := make(chan struct{})
	if err := s.call(ctx, event{kind: evWaitIdle, idle: idle}); err != nil {
		return err
	}
	select {
	case <-idle:
		return nil
	case <-s.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes events until ctx is cancelled or Stop is called.
func (s *Scheduler) Run(ctx context.Context) error {
	s.runCtx = ctx
	defer close(s.stopped)
	slog.Debug("scheduler starting")

	for {
		if ev, ok := s.queue.TryDequeue(); ok {
			s.process(ev)
			if ev.done != nil {
				close(ev.done)
			}
			s.notifyIdle()
			continue
		}

		select {
		case <-ctx.Done():
			slog.Debug("scheduler stopping: context cancelled")
			s.queue.Close()
			return ctx.Err()
		case <-s.queue.Wait():
			if s.queue.Len() == 0 {
				select {
				case <-ctx.Done():
				default:
					if s.isClosed() {
						slog.Debug("scheduler stopping: queue closed")
						return nil
					}
				}
			}
		}
	}
}

// Stop closes the queue; Run returns once it drains.
func (s *Scheduler) Stop() {
	s.queue.Close()
}

func (s *Scheduler) isClosed() bool {
	s.queue.mu.Lock()
	defer s.queue.mu.Unlock()
	return s.queue.closed
}

func (s *Scheduler) call(ctx context.Context, ev event) error {
	ev.done = make(chan struct{})
	if !s.queue.Enqueue(ev) {
		return ErrStopped
	}
	select {
	case <-ev.done:
		return nil
	case <-s.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// process handles one event. Called only from Run.
func (s *Scheduler) process(ev event) {
	switch ev.kind {
	case evSchedule:
		s.schedule(ev.title, ev.value, ev.debounce)
	case evFlush:
		if e, ok := s.entries[ev.title]; ok {
			s.cancelTimer(e)
			s.dispatch(e)
		}
	case evFlushAll:
		for _, title := range s.titles() {
			e := s.entries[title]
			if e.timer != nil || e.dirty {
				s.cancelTimer(e)
				s.dispatch(e)
			}
		}
	case evTimer:
		e, ok := s.entries[ev.title]
		if !ok || e.timer == nil || e.timerGen != ev.gen {
			return // superseded or cancelled
		}
		e.timer = nil
		s.dispatch(e)
	case evDone:
		s.complete(ev.title, ev.value, ev.confirmed, ev.err)
	case evRetry:
		if e, ok := s.entries[ev.title]; ok && e.status == StatusFailed && !e.inFlight {
			e.dirty = true
			s.cancelTimer(e)
			s.dispatch(e)
		}
	case evHold:
		s.held = true
		slog.Debug("scheduler held")
	case evRelease:
		s.held = false
		slog.Debug("scheduler released")
		for _, title := range s.titles() {
			e := s.entries[title]
			if e.deferred {
				e.deferred = false
				s.dispatch(e)
			}
		}
	case evAbandon:
		s.abandon()
	case evState:
		ev.state <- s.snapshot(ev.title)
	case evWaitIdle:
		s.idleWaiters = append(s.idleWaiters, ev.idle)
	}
}

func (s *Scheduler) schedule(title string, value decimal.Decimal, debounce time.Duration) {
	e, ok := s.entries[title]
	if !ok {
		e = &entry{title: title}
		s.entries[title] = e
	}
	e.latest = value
	e.dirty = true

	if e.inFlight {
		e.followUp = true
		return
	}

	s.cancelTimer(e)
	e.timerGen++
	gen := e.timerGen
	e.status = StatusTyping
	e.timer = s.clock.AfterFunc(debounce, func() {
		s.queue.Enqueue(event{kind: evTimer, title: title, gen: gen})
	})
}

func (s *Scheduler) cancelTimer(e *entry) {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.timerGen++
}

// dispatch starts a write of e.latest unless one is running, the scheduler
// is held, or there is nothing new to send.
func (s *Scheduler) dispatch(e *entry) {
	if !e.dirty {
		return
	}
	if s.held {
		e.deferred = true
		return
	}
	if e.inFlight {
		e.followUp = true
		return
	}

	e.inFlight = true
	e.dirty = false
	e.followUp = false
	e.sending = e.latest
	e.status = StatusSaving

	title, value := e.title, e.latest
	ctx := s.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	slog.Debug("write dispatched", "title", title, "value", value.String())

	go func() {
		confirmed, err := s.writer.Write(ctx, title, value)
		s.queue.Enqueue(event{kind: evDone, title: title, value: value, confirmed: confirmed, err: err})
	}()
}

func (s *Scheduler) complete(title string, requested, confirmed decimal.Decimal, err error) {
	e, ok := s.entries[title]
	if !ok {
		return
	}
	e.inFlight = false

	res := Result{Title: title, Requested: requested, Err: err}
	if err == nil {
		res.Confirmed = confirmed
	}

	if e.abandoned {
		e.abandoned = false
		slog.Debug("abandoned write resolved", "title", title, "value", requested.String(), "error", err)
		if s.onResult != nil {
			s.onResult(res)
		}
		if e.followUp {
			// edited again after the abandon; that value is new work
			e.followUp = false
			s.dispatch(e)
			return
		}
		delete(s.entries, title)
		return
	}

	if err != nil {
		slog.Warn("write failed", "title", title, "value", requested.String(), "error", err)
		e.status = StatusFailed
		e.err = err
		if !e.followUp {
			// keep the failed value so Retry or the next edit resends it
			e.latest = requested
		}
		e.dirty = true
	} else {
		slog.Debug("write confirmed", "title", title, "requested", requested.String(), "confirmed", confirmed.String())
		c := confirmed
		e.confirmed = &c
		e.err = nil
		e.status = StatusSaved
	}

	if s.onResult != nil {
		s.onResult(res)
	}

	if e.followUp {
		e.followUp = false
		s.dispatch(e)
	}
}

func (s *Scheduler) abandon() {
	for _, title := range s.titles() {
		e := s.entries[title]
		s.cancelTimer(e)
		e.dirty = false
		e.followUp = false
		e.deferred = false
		if e.inFlight {
			e.abandoned = true
		} else {
			delete(s.entries, title)
		}
	}
	slog.Debug("scheduler abandoned pending writes")
}

func (s *Scheduler) snapshot(title string) PendingWrite {
	e, ok := s.entries[title]
	if !ok {
		return PendingWrite{Title: title, Status: StatusIdle}
	}
	return PendingWrite{
		Title:         e.title,
		LastRequested: e.latest,
		Confirmed:     e.confirmed,
		Status:        e.status,
		TimerPending:  e.timer != nil,
		InFlight:      e.inFlight,
		FollowUp:      e.followUp,
		Deferred:      e.deferred,
		Err:           e.err,
	}
}

func (s *Scheduler) isIdle() bool {
	for _, e := range s.entries {
		if e.timer != nil || e.inFlight || e.deferred {
			return false
		}
	}
	return true
}

func (s *Scheduler) notifyIdle() {
	if len(s.idleWaiters) == 0 || !s.isIdle() {
		return
	}
	for _, ch := range s.idleWaiters {
		close(ch)
	}
	s.idleWaiters = nil
}

// titles returns entry keys sorted so batch operations are deterministic.
func (s *Scheduler) titles() []string {
	out := make([]string, 0, len(s.entries))
	for title := range s.entries {
		out = append(out, title)
	}
	sort.Strings(out)
	return out
}
