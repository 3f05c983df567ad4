package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/cyclecount/internal/config"
	"github.com/roach88/cyclecount/internal/reconcile"
	"github.com/roach88/cyclecount/internal/remote"
	"github.com/roach88/cyclecount/internal/session"
)

// app is the wiring shared by every command: config, session database,
// remote client and the reconciliation context over them.
type app struct {
	cfg     config.Config
	backend *session.SQLiteBackend
	rc      *reconcile.Context
	out     *OutputFormatter
	now     func() time.Time
}

// openApp loads config, opens the session database and, when withCatalog
// is set, loads the catalog.
func openApp(ctx context.Context, cmd *cobra.Command, opts *RootOptions, withCatalog bool) (*app, error) {
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := config.Load(config.Sources{
		File:      opts.ConfigPath,
		DotEnv:    opts.DotEnvPath,
		LookupEnv: opts.LookupEnv,
		Flags:     flagOverrides(cmd, opts),
	})
	if err != nil {
		return nil, out.Fail(ExitCommandError, "failed to load config", err)
	}

	slog.Debug("opening database", "path", cfg.DBPath)
	backend, err := session.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, out.Fail(ExitCommandError, "failed to open database", err)
	}

	var storeOpts []session.StoreOption
	if opts.IDs != nil {
		storeOpts = append(storeOpts, session.WithIDGenerator(opts.IDs))
	}
	if opts.Now != nil {
		storeOpts = append(storeOpts, session.WithClock(opts.Now))
	}
	store := session.NewStore(backend, storeOpts...)

	client := opts.Client
	if client == nil {
		client = remote.NewHTTPClient(cfg.APIBase,
			remote.WithTimeout(cfg.HTTPTimeout),
			remote.WithEncoding(remote.Encoding(cfg.Encoding)))
	}

	a := &app{
		cfg:     cfg,
		backend: backend,
		rc:      reconcile.New(store, client, reconcile.WithStep(cfg.Step)),
		out:     out,
		now:     time.Now,
	}
	if opts.Now != nil {
		a.now = opts.Now
	}

	if err := a.rc.Open(ctx); err != nil {
		if a.rc.Session() == nil {
			a.Close()
			return nil, out.Fail(ExitCommandError, "failed to open session", err)
		}
		slog.Warn("session not persisted", "error", err)
	}

	if withCatalog {
		if err := a.rc.Reload(ctx); err != nil {
			a.Close()
			return nil, a.fail("failed to load catalog", err)
		}
	}
	return a, nil
}

// Close releases the database.
func (a *app) Close() {
	if err := a.backend.Close(); err != nil {
		slog.Warn("closing database", "error", err)
	}
}

// fail reports a domain error with the exit code its kind calls for.
func (a *app) fail(message string, err error) error {
	code := ExitFailure
	if session.IsPersistenceError(err) {
		code = ExitCommandError
	}
	return a.out.Fail(code, message, err)
}

// flagOverrides collects config values the user set on the command line.
func flagOverrides(cmd *cobra.Command, opts *RootOptions) map[string]string {
	flags := map[string]string{}
	for _, f := range []struct {
		name, key string
		value     string
	}{
		{"db", config.KeyDBPath, opts.Database},
		{"api-base", config.KeyAPIBase, opts.APIBase},
		{"step", config.KeyStep, opts.Step},
	} {
		if cmd.Flags().Changed(f.name) {
			flags[f.key] = f.value
		}
	}
	return flags
}
