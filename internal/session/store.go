// Package session persists the active counting session.
//
// There is at most one session per device. It is stored as a single named
// record whose JSON layout is:
//
//	{
//	  "id": "<uuid>",
//	  "createdAt": "<RFC 3339>",
//	  "counts": {"<title>": {"countedQty": 6, "counted": true, "ts": "<RFC 3339>"}}
//	}
//
// Every mutating call writes the whole session before returning. When the
// write fails the in-memory session keeps the change and a *PersistenceError
// is returned, so nothing the user typed is silently lost.
package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/cyclecount/internal/catalog"
	"github.com/roach88/cyclecount/internal/quantity"
)

// RecordName is the key the session is stored under.
const RecordName = "session"

// Backend stores named records durably.
// Load returns ErrNotFound for a missing record.
type Backend interface {
	Load(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, name string, value []byte) error
	Delete(ctx context.Context, name string) error
}

// Store owns the persisted session.
type Store struct {
	backend Backend
	ids     IDGenerator
	now     func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithIDGenerator overrides the session id generator.
func WithIDGenerator(g IDGenerator) StoreOption {
	return func(s *Store) {
		s.ids = g
	}
}

// WithClock overrides the time source used for createdAt and recordedAt.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a Store over backend.
func NewStore(backend Backend, opts ...StoreOption) *Store {
	s := &Store{
		backend: backend,
		ids:     UUIDv7Generator{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ensure returns the persisted session, creating and persisting a fresh one
// when the record is absent or malformed.
//
// If persisting a fresh session fails, the fresh session is still returned
// together with a *PersistenceError.
func (st *Store) Ensure(ctx context.Context) (*Session, error) {
	data, err := st.backend.Load(ctx, RecordName)
	switch {
	case err == nil:
		s, decodeErr := unmarshalSession(data)
		if decodeErr == nil {
			return s, nil
		}
		slog.Warn("discarding malformed session", "error", decodeErr)
	case errors.Is(err, ErrNotFound):
	default:
		return nil, &PersistenceError{Op: "load", Err: err}
	}

	s := &Session{
		ID:        st.ids.Generate(),
		CreatedAt: st.now().UTC(),
		Counts:    make(map[string]CountRecord),
	}
	slog.Info("session created", "session", s.ID)
	return s, st.persist(ctx, s)
}

// New discards the current session and starts a fresh one.
func (st *Store) New(ctx context.Context) (*Session, error) {
	if err := st.Clear(ctx); err != nil {
		return nil, err
	}
	return st.Ensure(ctx)
}

// Record upserts the count for title and persists the session.
func (st *Store) Record(ctx context.Context, s *Session, title string, qty decimal.Decimal, counted bool) error {
	if s.Counts == nil {
		s.Counts = make(map[string]CountRecord)
	}
	title = catalog.NormalizeTitle(title)
	s.Counts[title] = CountRecord{
		CountedQty: quantity.ClampNonNegative(qty),
		Counted:    counted,
		RecordedAt: st.now().UTC(),
	}
	slog.Debug("count recorded", "session", s.ID, "title", title, "qty", qty.String(), "counted", counted)
	return st.persist(ctx, s)
}

// Remove deletes the count for title, if present, and persists the session.
func (st *Store) Remove(ctx context.Context, s *Session, title string) error {
	title = catalog.NormalizeTitle(title)
	if _, ok := s.Counts[title]; !ok {
		return nil
	}
	delete(s.Counts, title)
	return st.persist(ctx, s)
}

// Clear deletes all persisted session state. The next Ensure creates a new
// session id.
func (st *Store) Clear(ctx context.Context) error {
	if err := st.backend.Delete(ctx, RecordName); err != nil {
		return &PersistenceError{Op: "delete", Err: err}
	}
	slog.Info("session cleared")
	return nil
}

func (st *Store) persist(ctx context.Context, s *Session) error {
	data, err := marshalSession(s)
	if err != nil {
		return &PersistenceError{Op: "save", SessionID: s.ID, Err: err}
	}
	if err := st.backend.Save(ctx, RecordName, data); err != nil {
		slog.Error("session write failed", "session", s.ID, "error", err)
		return &PersistenceError{Op: "save", SessionID: s.ID, Err: err}
	}
	return nil
}
