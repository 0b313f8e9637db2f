// Package orm is the entry point of simpleorm: a DB value that maps records
// described by catalog builders onto SQLite tables, creating and migrating
// those tables on first use.
package orm

import (
	"context"
	"fmt"
	"sync"

	"github.com/arkilian/simpleorm/internal/logx"
	"github.com/arkilian/simpleorm/internal/migrate"
	"github.com/arkilian/simpleorm/internal/schema"
	"github.com/arkilian/simpleorm/internal/storage"
	"github.com/arkilian/simpleorm/pkg/catalog"
	"github.com/arkilian/simpleorm/pkg/config"
	"github.com/arkilian/simpleorm/pkg/errors"
	"github.com/arkilian/simpleorm/pkg/settings"
	"github.com/arkilian/simpleorm/pkg/types"
)

// Query filters a table scan. Empty fields are left out of the statement.
// Columns is only honored by QueryRaw.
type Query = storage.Query

// Cursor iterates over the rows returned by QueryRaw.
type Cursor = storage.Cursor

// Snapshot is the recorded schema of one table.
type Snapshot = migrate.Snapshot

// TableInfo describes one physical table for inspection.
type TableInfo struct {
	Name string
	Rows int64
}

// DB owns one storage connection and the schema state of the record types
// used through it. The zero value is unconfigured: every operation fails
// with errors.ErrNotConfigured.
type DB struct {
	cfg *config.Config

	mu       sync.Mutex // guards the lazily opened connection
	engine   storage.Engine
	store    settings.Store
	tracker  *migrate.Tracker
	registry *catalog.Registry
	closed   bool
	log      *logx.Logger // nil logs through the process logger

	ensureMu sync.Mutex
	versions map[*types.RecordType]int // record types whose tables are ready
}

// Open returns a DB for cfg. The configuration is resolved and validated
// here; the database file itself is opened on first use.
func Open(cfg *config.Config) (*DB, error) {
	if cfg == nil {
		return nil, errors.NewNotConfiguredError("orm: no configuration given")
	}

	resolved := *cfg
	resolved.Resolve()
	if err := resolved.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrCategoryConfig, errors.CodeNotConfigured, "orm: invalid configuration", err)
	}
	return &DB{
		cfg:      &resolved,
		log:      logx.New(resolved.Logging.Quiet),
		registry: catalog.NewRegistry(),
		versions: make(map[*types.RecordType]int),
	}, nil
}

// NewWithEngine returns a DB over an already open engine and settings store.
// The DB takes ownership of both and closes them on Close. namespace must
// not contain "_", see config.Config.Validate.
func NewWithEngine(engine storage.Engine, store settings.Store, namespace string) *DB {
	return &DB{
		engine:   engine,
		store:    store,
		tracker:  migrate.NewTracker(engine, store, namespace),
		registry: catalog.NewRegistry(),
		versions: make(map[*types.RecordType]int),
	}
}

// Close releases the storage connection and the settings store. Later calls
// fail with a storage error.
func (db *DB) Close() error {
	if db == nil {
		return nil
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil
	}
	db.closed = true

	var firstErr error
	if db.engine != nil {
		if err := db.engine.Close(); err != nil {
			firstErr = fmt.Errorf("orm: failed to close storage: %w", err)
		}
	}
	if db.store != nil {
		if err := db.store.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("orm: failed to close settings store: %w", err)
		}
	}
	return firstErr
}

// Registry returns the record types this DB has set up so far.
func (db *DB) Registry() *catalog.Registry {
	if db == nil {
		return nil
	}
	return db.registry
}

// conn returns the engine, opening the database on first use.
func (db *DB) conn() (storage.Engine, *migrate.Tracker, error) {
	if db == nil {
		return nil, nil, errors.NewNotConfiguredError("orm: nil DB")
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil, nil, errors.NewStorageError(errors.CodeStorage, "orm: database is closed", nil)
	}
	if db.engine != nil {
		return db.engine, db.tracker, nil
	}
	if db.cfg == nil {
		return nil, nil, errors.NewNotConfiguredError("orm: DB used before Open")
	}

	if err := db.cfg.EnsureDirectories(); err != nil {
		return nil, nil, errors.NewStorageError(errors.CodeStorage, "orm: failed to prepare data directory", err)
	}

	engine, err := storage.OpenSQLite(db.cfg.DatabasePath(), storage.SQLiteOptions{
		JournalMode:   db.cfg.SQLite.JournalMode,
		BusyTimeoutMs: db.cfg.SQLite.BusyTimeoutMs,
		StmtCacheSize: db.cfg.SQLite.StmtCacheSize,
		Logger:        db.log,
	})
	if err != nil {
		return nil, nil, err
	}

	store, err := openStore(db.cfg)
	if err != nil {
		engine.Close()
		return nil, nil, err
	}

	db.engine = engine
	db.store = store
	db.tracker = migrate.NewTracker(engine, store, db.cfg.Namespace)
	db.tracker.SetLogger(db.log)
	if db.registry == nil {
		db.registry = catalog.NewRegistry()
	}
	return engine, db.tracker, nil
}

func openStore(cfg *config.Config) (settings.Store, error) {
	switch cfg.Settings.Type {
	case config.SettingsMemory:
		return settings.NewMemoryStore(), nil
	case config.SettingsBolt:
		store, err := settings.NewBoltStore(cfg.Settings.Path)
		if err != nil {
			return nil, errors.NewStorageError(errors.CodeStorage, "orm: failed to open bolt settings store", err)
		}
		return store, nil
	default:
		store, err := settings.NewSQLiteStore(cfg.Settings.Path, cfg.SQLite.BusyTimeoutMs)
		if err != nil {
			return nil, errors.NewStorageError(errors.CodeStorage, "orm: failed to open sqlite settings store", err)
		}
		return store, nil
	}
}

// ensure sets up the table of rt and of every type it references. Each type
// is derived and migrated at most once per DB.
func (db *DB) ensure(ctx context.Context, rt *types.RecordType) (storage.Engine, error) {
	if rt == nil {
		return nil, errors.NewInvalidSchemaError("orm: nil record type")
	}

	engine, tracker, err := db.conn()
	if err != nil {
		return nil, err
	}

	db.ensureMu.Lock()
	defer db.ensureMu.Unlock()

	if db.versions == nil {
		db.versions = make(map[*types.RecordType]int)
	}
	if _, ok := db.versions[rt]; ok {
		return engine, nil
	}

	plan, err := schema.Plan(rt)
	if err != nil {
		return nil, err
	}
	for _, t := range plan {
		if _, ok := db.versions[t]; ok {
			continue
		}
		if err := db.registry.Register(t); err != nil {
			return nil, err
		}
		stmt, err := schema.Synthesize(t)
		if err != nil {
			return nil, err
		}
		version, err := tracker.EnsureSchema(ctx, t.Name, stmt)
		if err != nil {
			return nil, fmt.Errorf("orm: schema setup of %s failed: %w", t.Name, err)
		}
		db.versions[t] = version
	}
	return engine, nil
}
