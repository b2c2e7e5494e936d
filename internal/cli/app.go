package cli

import (
	"log/slog"

	"whenmet/internal/config"
	"whenmet/internal/device"
	"whenmet/internal/engine"
	"whenmet/internal/ledger"
	"whenmet/internal/store"
)

// app bundles the pieces every command needs: the validated configuration,
// the SQLite blob store, and the typed ledger over it.
type app struct {
	cfg     config.Config
	store   *store.Store
	records *ledger.Store
}

// openApp loads the configuration and opens the database. The --db flag wins
// over the config file's database path.
func openApp(opts *RootOptions) (*app, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	path := opts.Database
	if path == "" {
		path = cfg.Database
	}

	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	return &app{
		cfg:     cfg,
		store:   st,
		records: ledger.NewStore(st),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// newEngine assembles an engine over the given capabilities. dir, loc, and
// dates may each be nil when the command has no snapshot or coordinate to
// offer.
func (a *app) newEngine(dir device.Directory, loc device.Locator, dates device.CreationDates) *engine.Engine {
	return engine.New(dir, loc, dates, a.records,
		engine.WithFixTimeout(a.cfg.FixTimeoutDuration()),
		engine.WithAccuracy(a.cfg.AccuracyTier()),
	)
}
