// Package reconcile composes the catalog, the counting session and the
// remote store into the operations a user performs: viewing status and
// progress, recording counts, saving single titles and committing a whole
// session.
//
// A Context owns the catalog snapshot and the active session. Derived views
// are recomputed on every call and never persisted.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/cyclecount/internal/catalog"
	"github.com/roach88/cyclecount/internal/quantity"
	"github.com/roach88/cyclecount/internal/remote"
	"github.com/roach88/cyclecount/internal/scheduler"
	"github.com/roach88/cyclecount/internal/session"
)

// Gate is the whole-session write intent taken during a batch commit.
// *scheduler.Scheduler implements it.
type Gate interface {
	Hold(ctx context.Context) error
	Release(ctx context.Context) error
	Abandon(ctx context.Context) error
}

// Context is the reconciliation state for one device.
//
// Thread-safety: all methods are safe for concurrent use. Network calls are
// made without holding the lock, so scheduler writes can land while a view
// is being read.
type Context struct {
	store  *session.Store
	client remote.Client
	step   decimal.Decimal

	mu      sync.Mutex
	gate    Gate
	catalog *catalog.Catalog
	session *session.Session
}

// Option configures a Context.
type Option func(*Context)

// WithStep sets the rounding step. Unsupported steps fall back to whole
// cases.
func WithStep(step decimal.Decimal) Option {
	return func(c *Context) {
		if quantity.IsSupportedStep(step) {
			c.step = step
		}
	}
}

// WithGate sets the gate held during commits.
func WithGate(g Gate) Option {
	return func(c *Context) {
		c.gate = g
	}
}

// New creates a Context. Call Open before use.
func New(store *session.Store, client remote.Client, opts ...Option) *Context {
	c := &Context{
		store:   store,
		client:  client,
		step:    quantity.StepWhole,
		catalog: catalog.New(nil),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetGate attaches the gate after construction, for schedulers built from
// this Context's Writer.
func (c *Context) SetGate(g Gate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gate = g
}

// Step returns the rounding step.
func (c *Context) Step() decimal.Decimal {
	return c.step
}

// Open loads or creates the active session.
func (c *Context) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureLocked(ctx)
}

func (c *Context) ensureLocked(ctx context.Context) error {
	if c.session != nil {
		return nil
	}
	s, err := c.store.Ensure(ctx)
	if s != nil {
		c.session = s
	}
	return err
}

// Reload fetches the catalog and replaces the snapshot. On failure the
// previous snapshot is kept.
func (c *Context) Reload(ctx context.Context) error {
	products, err := c.client.Catalog(ctx)
	if err != nil {
		return fmt.Errorf("reload catalog: %w", err)
	}
	cat := catalog.New(products)

	c.mu.Lock()
	c.catalog = cat
	c.mu.Unlock()

	slog.Debug("catalog reloaded", "products", cat.Len())
	return nil
}

// Products returns the catalog snapshot in load order.
func (c *Context) Products() []catalog.Product {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.catalog.Products()
}

// Session returns a copy of the active session, or nil before Open.
func (c *Context) Session() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Clone()
}

// Status returns title's status. ok is false for titles not in the catalog.
func (c *Context) Status(title string) (st Status, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.catalog.Find(title)
	if !ok {
		return Uncounted, false
	}
	return StatusOf(p, c.session, c.step), true
}

// Progress returns the counted share of the catalog.
func (c *Context) Progress() Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ProgressOf(c.catalog, c.session)
}

// View returns the rows matching filter and query.
func (c *Context) View(filter Filter, query string) []Row {
	c.mu.Lock()
	defer c.mu.Unlock()
	return BuildView(c.catalog, c.session, c.step, filter, query)
}

// RecordCount parses text, normalizes it and records it as title's count.
// Empty text counts as zero. The normalized quantity is returned even when
// persisting fails, since the in-memory session still holds it.
func (c *Context) RecordCount(ctx context.Context, title, text string) (decimal.Decimal, error) {
	qty, err := quantity.ParseCommitted(text)
	if err != nil {
		return decimal.Zero, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	title = catalog.NormalizeTitle(title)
	if !c.catalog.Has(title) {
		return decimal.Zero, &ConflictError{Title: title, Err: ErrUnknownTitle}
	}
	if err := c.ensureLocked(ctx); err != nil && c.session == nil {
		return decimal.Zero, err
	}

	qty = quantity.Normalize(qty, c.step)
	return qty, c.store.Record(ctx, c.session, title, qty, true)
}

// RemoveCount deletes title's count from the session.
func (c *Context) RemoveCount(ctx context.Context, title string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureLocked(ctx); err != nil && c.session == nil {
		return err
	}
	return c.store.Remove(ctx, c.session, title)
}

// SingleSave writes qty for title to the remote store and, on success,
// takes the server's answer as the title's expected quantity. On failure
// the catalog is left untouched.
func (c *Context) SingleSave(ctx context.Context, title string, qty decimal.Decimal) (decimal.Decimal, error) {
	title = catalog.NormalizeTitle(title)

	c.mu.Lock()
	known := c.catalog.Has(title)
	step := c.step
	c.mu.Unlock()

	if !known {
		return decimal.Zero, &ConflictError{Title: title, Err: ErrUnknownTitle}
	}

	cases := quantity.Cases(quantity.Normalize(qty, step))
	res, err := c.client.Save(ctx, title, cases)
	if err != nil {
		slog.Warn("save failed", "title", title, "cases", cases, "error", err)
		return decimal.Zero, err
	}
	confirmed := res.Confirmed(cases)

	c.mu.Lock()
	c.catalog.SetExpected(title, confirmed)
	c.mu.Unlock()

	slog.Info("saved", "title", title, "requested", cases, "confirmed", confirmed.String())
	return confirmed, nil
}

// Writer adapts SingleSave for a scheduler.
func (c *Context) Writer() scheduler.Writer {
	return scheduler.WriterFunc(c.SingleSave)
}

// NewSession abandons pending writes and replaces the active session with a
// fresh one.
func (c *Context) NewSession(ctx context.Context) (*session.Session, error) {
	if err := c.abandon(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	s, err := c.store.New(ctx)
	if s != nil {
		c.session = s
	}
	return c.session.Clone(), err
}

// Reset abandons pending writes and deletes the session without starting a
// new one. The next operation that needs a session creates it.
func (c *Context) Reset(ctx context.Context) error {
	if err := c.abandon(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Clear(ctx); err != nil {
		return err
	}
	c.session = nil
	return nil
}

// Pending returns the batch CommitSession would send and the stale titles
// it would skip, without sending anything.
func (c *Context) Pending() ([]remote.BatchItem, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Payload(c.catalog, c.session)
}

// CommitResult is the outcome of a successful batch commit.
type CommitResult struct {
	SessionID    string             `json:"sessionId"`
	Items        []remote.BatchItem `json:"items"`
	Stale        []string           `json:"stale,omitempty"`
	Updated      int                `json:"updated"`
	NewSessionID string             `json:"newSessionId"`

	// Discarded lists titles recorded or changed after the batch was built.
	// They were cleared with the session without being sent.
	Discarded []string `json:"discarded,omitempty"`
}

// CommitSession submits every counted title as one batch.
//
// The gate is held for the whole call so no single-title write races the
// batch. On success pending writes are abandoned, the session is replaced
// by a fresh one and the catalog is reloaded; a failed reload is logged and
// does not fail the commit. On failure the session is left as it was so the
// commit can be retried.
func (c *Context) CommitSession(ctx context.Context) (CommitResult, error) {
	c.mu.Lock()
	gate := c.gate
	if err := c.ensureLocked(ctx); err != nil && c.session == nil {
		c.mu.Unlock()
		return CommitResult{}, err
	}
	items, stale := Payload(c.catalog, c.session)
	sent := c.session.Clone()
	batch := remote.Batch{
		SessionID: c.session.ID,
		CreatedAt: c.session.CreatedAt,
		Items:     items,
	}
	c.mu.Unlock()

	for _, title := range stale {
		slog.Warn("skipping stale title", "title", title, "session", batch.SessionID)
	}
	if len(items) == 0 {
		return CommitResult{}, &ConflictError{Err: ErrNothingToCommit}
	}

	if gate != nil {
		if err := gate.Hold(ctx); err != nil {
			return CommitResult{}, fmt.Errorf("hold writes: %w", err)
		}
		defer func() {
			if err := gate.Release(context.WithoutCancel(ctx)); err != nil {
				slog.Warn("release writes failed", "error", err)
			}
		}()
	}

	start := time.Now()
	res, err := c.client.Commit(ctx, batch)
	if err != nil {
		slog.Error("commit failed", "session", batch.SessionID, "items", len(items), "error", err)
		return CommitResult{}, fmt.Errorf("commit session %s: %w", batch.SessionID, err)
	}
	slog.Info("session committed",
		"session", batch.SessionID,
		"items", len(items),
		"updated", res.Updated,
		"duration", time.Since(start))

	result := CommitResult{
		SessionID: batch.SessionID,
		Items:     items,
		Stale:     stale,
		Updated:   res.Updated,
	}

	if gate != nil {
		if err := gate.Abandon(ctx); err != nil {
			slog.Warn("abandon pending writes failed", "error", err)
		}
	}

	c.mu.Lock()
	result.Discarded = changedSince(sent, c.session)
	fresh, err := c.store.New(ctx)
	if fresh != nil {
		c.session = fresh
	}
	result.NewSessionID = c.session.ID
	c.mu.Unlock()
	if len(result.Discarded) > 0 {
		slog.Warn("counts recorded during commit were discarded",
			"session", batch.SessionID,
			"titles", result.Discarded)
	}
	if err != nil {
		// the batch is on the server; the caller must not retry it
		slog.Error("starting new session failed", "error", err)
		return result, err
	}

	if err := c.Reload(ctx); err != nil {
		slog.Warn("catalog reload after commit failed", "error", err)
	}
	return result, nil
}

// changedSince returns the sorted titles whose record in cur differs from
// the one in prev.
func changedSince(prev, cur *session.Session) []string {
	if cur == nil {
		return nil
	}
	var out []string
	for title, rec := range cur.Counts {
		old, ok := prev.Counts[title]
		if !ok || old.Counted != rec.Counted || !old.CountedQty.Equal(rec.CountedQty) || !old.RecordedAt.Equal(rec.RecordedAt) {
			out = append(out, title)
		}
	}
	sort.Strings(out)
	return out
}

func (c *Context) abandon(ctx context.Context) error {
	c.mu.Lock()
	gate := c.gate
	c.mu.Unlock()
	if gate == nil {
		return nil
	}
	return gate.Abandon(ctx)
}
