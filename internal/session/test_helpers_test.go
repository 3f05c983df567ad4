package session

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// openTestBackend opens a SQLite backend in a temp dir.
func openTestBackend(t *testing.T, path string) *SQLiteBackend {
	t.Helper()
	b, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

// createTestStore returns a store over a fresh database plus its path.
func createTestStore(t *testing.T, ids ...string) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.db")
	b := openTestBackend(t, path)
	return NewStore(b, WithIDGenerator(NewFixedGenerator(ids...)), WithClock(fixedNow)), path
}

func fixedNow() time.Time {
	return epoch
}

// flakyBackend is an in-memory backend whose writes can be made to fail.
type flakyBackend struct {
	mu       sync.Mutex
	records  map[string][]byte
	failSave bool
	failLoad bool
}

func newFlakyBackend() *flakyBackend {
	return &flakyBackend{records: make(map[string][]byte)}
}

var errDiskFull = errors.New("disk full")

func (b *flakyBackend) Load(_ context.Context, name string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failLoad {
		return nil, errDiskFull
	}
	v, ok := b.records[name]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (b *flakyBackend) Save(_ context.Context, name string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failSave {
		return errDiskFull
	}
	b.records[name] = append([]byte(nil), value...)
	return nil
}

func (b *flakyBackend) Delete(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.records, name)
	return nil
}
