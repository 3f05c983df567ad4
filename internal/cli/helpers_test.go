package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/cyclecount/internal/catalog"
	"github.com/roach88/cyclecount/internal/session"
	"github.com/roach88/cyclecount/internal/testutil"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// cliEnv is a database and an inventory server shared by the commands of
// one test, as successive invocations of the binary would share them.
type cliEnv struct {
	t      *testing.T
	inv    *testutil.FakeInventory
	env    map[string]string
	dir    string
	ids    *session.FixedGenerator
	stderr bytes.Buffer
}

func newCLIEnv(t *testing.T, products ...catalog.Product) *cliEnv {
	t.Helper()
	inv := testutil.NewFakeInventory(products...)
	srv := testutil.NewInventoryServer(t, inv)
	dir := t.TempDir()

	return &cliEnv{
		t:   t,
		inv: inv,
		dir: dir,
		env: map[string]string{
			"CYCLECOUNT_API_BASE": srv.URL,
			"CYCLECOUNT_DB_PATH":  filepath.Join(dir, "cyclecount.db"),
			// long enough that only explicit flushes send anything
			"CYCLECOUNT_DEBOUNCE": "1h",
		},
		ids: session.NewFixedGenerator("session-1", "session-2", "session-3", "session-4"),
	}
}

func defaultProducts() []catalog.Product {
	soda := testutil.Product("Soda 12pk", 4)
	soda.Location = "Aisle 3"
	return []catalog.Product{soda, testutil.Product("Chips", 2), testutil.Product("Water", 5)}
}

// run executes one command line and returns its stdout.
func (e *cliEnv) run(stdin string, args ...string) (string, error) {
	e.t.Helper()
	opts := &RootOptions{
		LookupEnv: func(k string) (string, bool) {
			v, ok := e.env[k]
			return v, ok
		},
		IDs: e.ids,
		Now: func() time.Time { return epoch },
	}
	cmd := NewRootCommandWithOptions(opts)

	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&e.stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(e.dir, "missing.env")}, args...))

	err := cmd.Execute()
	return stdout.String(), err
}

func mustDec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
