package reconcile

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cyclecount/internal/catalog"
	"github.com/roach88/cyclecount/internal/session"
	"github.com/roach88/cyclecount/internal/testutil"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// newTestContext opens a Context over a temp SQLite database and a fake
// store serving products, with the catalog already loaded.
func newTestContext(t *testing.T, products ...catalog.Product) (*Context, *testutil.FakeInventory, *session.Store) {
	t.Helper()

	backend, err := session.OpenSQLite(filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	store := session.NewStore(backend,
		session.WithIDGenerator(session.NewFixedGenerator("session-1", "session-2", "session-3")),
		session.WithClock(func() time.Time { return epoch }),
	)
	inv := testutil.NewFakeInventory(products...)
	rc := New(store, inv)

	ctx := context.Background()
	require.NoError(t, rc.Open(ctx))
	require.NoError(t, rc.Reload(ctx))
	return rc, inv, store
}

// recordingGate records gate calls in order.
type recordingGate struct {
	mu    sync.Mutex
	calls []string
}

func (g *recordingGate) Hold(context.Context) error    { return g.record("hold") }
func (g *recordingGate) Release(context.Context) error { return g.record("release") }
func (g *recordingGate) Abandon(context.Context) error { return g.record("abandon") }

func (g *recordingGate) record(call string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, call)
	return nil
}

func (g *recordingGate) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func sessionWith(counts map[string]session.CountRecord) *session.Session {
	return &session.Session{ID: "s", CreatedAt: epoch, Counts: counts}
}

func counted(qty string) session.CountRecord {
	return session.CountRecord{CountedQty: dec(qty), Counted: true, RecordedAt: epoch}
}
