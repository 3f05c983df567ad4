package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLite_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	openTestBackend(t, path)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpenSQLite_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	for i := 0; i < 3; i++ {
		b, err := OpenSQLite(path)
		require.NoError(t, err, "open iteration %d", i)
		require.NoError(t, b.Close())
	}

	b := openTestBackend(t, path)
	var version int
	require.NoError(t, b.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)
}

func TestSQLiteBackend_LoadMissing(t *testing.T) {
	b := openTestBackend(t, filepath.Join(t.TempDir(), "test.db"))
	_, err := b.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEnsure_CreatesAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st, _ := createTestStore(t, "s-1")

	first, err := st.Ensure(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s-1", first.ID)
	assert.True(t, epoch.Equal(first.CreatedAt))
	assert.Empty(t, first.Counts)

	// FixedGenerator would panic on a second Generate call
	second, err := st.Ensure(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt))
	assert.Equal(t, first.Counts, second.Counts)
}

func TestRecord_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.db")

	b1, err := OpenSQLite(path)
	require.NoError(t, err)
	st1 := NewStore(b1, WithIDGenerator(NewFixedGenerator("s-1")), WithClock(fixedNow))
	s, err := st1.Ensure(ctx)
	require.NoError(t, err)
	require.NoError(t, st1.Record(ctx, s, "Soda 12pk", decimal.NewFromInt(6), true))
	require.NoError(t, st1.Record(ctx, s, "Chips", decimal.RequireFromString("2.5"), true))
	require.NoError(t, b1.Close())

	// simulated restart: new backend, new store, no ids available
	b2 := openTestBackend(t, path)
	st2 := NewStore(b2, WithIDGenerator(NewFixedGenerator()))
	restored, err := st2.Ensure(ctx)
	require.NoError(t, err)

	assert.Equal(t, "s-1", restored.ID)
	rec, ok := restored.Record("Soda 12pk")
	require.True(t, ok)
	assert.True(t, decimal.NewFromInt(6).Equal(rec.CountedQty))
	assert.True(t, rec.Counted)
	assert.True(t, epoch.Equal(rec.RecordedAt))

	rec, ok = restored.Record("Chips")
	require.True(t, ok)
	assert.True(t, decimal.RequireFromString("2.5").Equal(rec.CountedQty))
}

func TestRecord_ZeroIsDistinctFromUncounted(t *testing.T) {
	ctx := context.Background()
	st, _ := createTestStore(t, "s-1")
	s, err := st.Ensure(ctx)
	require.NoError(t, err)

	require.NoError(t, st.Record(ctx, s, "Empty Shelf", decimal.Zero, true))
	require.NoError(t, st.Record(ctx, s, "Peeked", decimal.NewFromInt(3), false))

	assert.Equal(t, []string{"Empty Shelf"}, s.Counted())
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	st, _ := createTestStore(t, "s-1")
	s, err := st.Ensure(ctx)
	require.NoError(t, err)

	require.NoError(t, st.Record(ctx, s, "Soda 12pk", decimal.NewFromInt(6), true))
	require.NoError(t, st.Remove(ctx, s, "Soda 12pk"))
	require.NoError(t, st.Remove(ctx, s, "never recorded"))

	reloaded, err := st.Ensure(ctx)
	require.NoError(t, err)
	assert.Empty(t, reloaded.Counts)
}

func TestClear_StartsNewSessionID(t *testing.T) {
	ctx := context.Background()
	st, _ := createTestStore(t, "s-1", "s-2")
	s, err := st.Ensure(ctx)
	require.NoError(t, err)
	require.NoError(t, st.Record(ctx, s, "Soda 12pk", decimal.NewFromInt(6), true))

	require.NoError(t, st.Clear(ctx))

	fresh, err := st.Ensure(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s-2", fresh.ID)
	assert.Empty(t, fresh.Counts)
}

func TestEnsure_MalformedRecordTreatedAsAbsent(t *testing.T) {
	payloads := map[string]string{
		"not json":       `{{{`,
		"missing id":     `{"createdAt":"2026-03-01T09:00:00Z","counts":{}}`,
		"missing counts": `{"id":"old","createdAt":"2026-03-01T09:00:00Z"}`,
		"wrong type":     `[1,2,3]`,
	}

	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			backend := newFlakyBackend()
			backend.records[RecordName] = []byte(payload)
			st := NewStore(backend, WithIDGenerator(NewFixedGenerator("fresh")), WithClock(fixedNow))

			s, err := st.Ensure(ctx)
			require.NoError(t, err)
			assert.Equal(t, "fresh", s.ID)
		})
	}
}

func TestEnsure_DropsUnreadableCounts(t *testing.T) {
	ctx := context.Background()
	backend := newFlakyBackend()
	backend.records[RecordName] = []byte(`{"id":"s-1","createdAt":"2026-03-01T09:00:00Z","counts":{
		"Good":{"countedQty":4,"counted":true,"ts":"2026-03-01T09:00:00Z"},
		"Bad":{"countedQty":-2,"counted":true,"ts":"2026-03-01T09:00:00Z"}}}`)
	st := NewStore(backend, WithIDGenerator(NewFixedGenerator()))

	s, err := st.Ensure(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s-1", s.ID)
	assert.Equal(t, []string{"Good"}, s.Counted())
}

func TestRecord_PersistenceFailureKeepsInMemoryCopy(t *testing.T) {
	ctx := context.Background()
	backend := newFlakyBackend()
	st := NewStore(backend, WithIDGenerator(NewFixedGenerator("s-1")), WithClock(fixedNow))
	s, err := st.Ensure(ctx)
	require.NoError(t, err)

	backend.failSave = true
	err = st.Record(ctx, s, "Soda 12pk", decimal.NewFromInt(6), true)
	require.Error(t, err)
	assert.True(t, IsPersistenceError(err))
	assert.ErrorIs(t, err, errDiskFull)

	rec, ok := s.Record("Soda 12pk")
	require.True(t, ok, "in-memory record must survive a failed write")
	assert.True(t, decimal.NewFromInt(6).Equal(rec.CountedQty))

	// retry once storage recovers
	backend.failSave = false
	require.NoError(t, st.Record(ctx, s, "Soda 12pk", rec.CountedQty, true))
	reloaded, err := st.Ensure(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Soda 12pk"}, reloaded.Counted())
}

func TestEnsure_LoadFailureIsPersistenceError(t *testing.T) {
	backend := newFlakyBackend()
	backend.failLoad = true
	st := NewStore(backend)

	_, err := st.Ensure(context.Background())
	var pe *PersistenceError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "load", pe.Op)
}

func TestEnsure_FreshSessionReturnedWhenSaveFails(t *testing.T) {
	backend := newFlakyBackend()
	backend.failSave = true
	st := NewStore(backend, WithIDGenerator(NewFixedGenerator("s-1")))

	s, err := st.Ensure(context.Background())
	assert.True(t, IsPersistenceError(err))
	require.NotNil(t, s)
	assert.Equal(t, "s-1", s.ID)
}

func TestUUIDv7Generator_Sortable(t *testing.T) {
	g := UUIDv7Generator{}
	a := g.Generate()
	b := g.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
	assert.Less(t, a, b)
}

func TestClone_IsDeep(t *testing.T) {
	s := &Session{ID: "s", Counts: map[string]CountRecord{"a": {Counted: true}}}
	c := s.Clone()
	c.Counts["b"] = CountRecord{}
	assert.Len(t, s.Counts, 1)
}
