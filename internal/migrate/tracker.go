// Package migrate tracks the applied schema of every table and recreates a
// table when its schema text changes.
package migrate

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/arkilian/simpleorm/internal/logx"
	"github.com/arkilian/simpleorm/internal/schema"
	"github.com/arkilian/simpleorm/internal/storage"
	"github.com/arkilian/simpleorm/pkg/settings"
)

const (
	sqlKeySuffix     = "_createSQL"
	versionKeySuffix = "_version"
)

// Snapshot is the last applied schema of a table.
type Snapshot struct {
	Table           string
	CreateStatement string
	Version         int
}

// Tracker persists one Snapshot per table in a settings store.
//
// Migration is destructive: when the create statement of a table changes the
// table is dropped and recreated, losing its rows. No column-level ALTER is
// attempted.
type Tracker struct {
	engine    storage.Engine
	store     settings.Store
	namespace string
	log       *logx.Logger

	locks sync.Map // table name -> *sync.Mutex
}

// NewTracker creates a tracker. namespace prefixes every settings key so
// several applications can share one store; it must not contain "_".
func NewTracker(engine storage.Engine, store settings.Store, namespace string) *Tracker {
	return &Tracker{engine: engine, store: store, namespace: namespace}
}

// SetLogger routes the tracker's messages through l.
func (t *Tracker) SetLogger(l *logx.Logger) {
	t.log = l
}

// SQLKey returns the settings key holding the create statement of table.
func (t *Tracker) SQLKey(table string) string {
	return t.namespace + "_" + table + sqlKeySuffix
}

// VersionKey returns the settings key holding the schema version of table.
func (t *Tracker) VersionKey(table string) string {
	return t.namespace + "_" + table + versionKeySuffix
}

// Snapshot returns the stored snapshot of table. ok is false unless both the
// statement and the version are recorded.
func (t *Tracker) Snapshot(ctx context.Context, table string) (snap Snapshot, ok bool, err error) {
	stmt, stmtOK, err := t.store.GetString(ctx, t.SQLKey(table))
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("migrate: failed to read snapshot of %s: %w", table, err)
	}
	version, versionOK, err := t.store.GetInt(ctx, t.VersionKey(table))
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("migrate: failed to read version of %s: %w", table, err)
	}
	snap = Snapshot{Table: table, CreateStatement: stmt, Version: version}
	return snap, stmtOK && versionOK, nil
}

// EnsureSchema makes the physical table match createStatement and returns the
// schema version:
//   - no snapshot: the table is created and version 1 recorded. A table
//     already present in the database with another definition is dropped
//     and recreated first;
//   - same statement: nothing happens;
//   - different statement: the table is dropped and recreated in one
//     transaction and the version incremented by one.
//
// The snapshot is written only after the table change succeeded, so a failed
// attempt is retried from scratch on the next call.
func (t *Tracker) EnsureSchema(ctx context.Context, table, createStatement string) (int, error) {
	mu := t.lock(table)
	mu.Lock()
	defer mu.Unlock()

	snap, tracked, err := t.Snapshot(ctx, table)
	if err != nil {
		return 0, err
	}

	if !tracked && snap.CreateStatement == "" && snap.Version == 0 {
		existing, exists, err := t.tableSQL(ctx, table)
		if err != nil {
			return 0, err
		}
		if exists && !sameDefinition(existing, createStatement) {
			// The file outlived its snapshots, so the table shape is unknown.
			if err := t.recreate(ctx, table, createStatement); err != nil {
				return 0, err
			}
			if err := t.persist(ctx, table, createStatement, 1); err != nil {
				return 0, err
			}
			t.log.Printf("[WARN] migrate: untracked table %s had a different schema, table recreated and existing rows dropped (version 1)", table)
			return 1, nil
		}
		if err := t.engine.Execute(ctx, createStatement); err != nil {
			return 0, fmt.Errorf("migrate: failed to create table %s: %w", table, err)
		}
		if err := t.persist(ctx, table, createStatement, 1); err != nil {
			return 0, err
		}
		t.log.Printf("migrate: created table %s (version 1)", table)
		return 1, nil
	}

	if tracked && snap.CreateStatement == createStatement {
		return snap.Version, nil
	}

	// Schema drift, or a partially recorded snapshot that cannot be trusted.
	newVersion := snap.Version + 1
	if err := t.recreate(ctx, table, createStatement); err != nil {
		return 0, err
	}
	if err := t.persist(ctx, table, createStatement, newVersion); err != nil {
		return 0, err
	}
	t.log.Printf("[WARN] migrate: schema of %s changed, table recreated and existing rows dropped (version %d -> %d)",
		table, snap.Version, newVersion)
	return newVersion, nil
}

// Snapshots lists every snapshot recorded under the tracker's namespace. It
// requires a store implementing settings.Lister.
func (t *Tracker) Snapshots(ctx context.Context) ([]Snapshot, error) {
	lister, ok := t.store.(settings.Lister)
	if !ok {
		return nil, fmt.Errorf("migrate: settings store %T cannot list keys", t.store)
	}
	prefix := t.namespace + "_"
	keys, err := lister.StringKeys(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("migrate: failed to list snapshots: %w", err)
	}

	var snaps []Snapshot
	for _, key := range keys {
		if !strings.HasSuffix(key, sqlKeySuffix) {
			continue
		}
		table := strings.TrimSuffix(strings.TrimPrefix(key, prefix), sqlKeySuffix)
		snap, _, err := t.Snapshot(ctx, table)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Table < snaps[j].Table })
	return snaps, nil
}

func (t *Tracker) tableSQL(ctx context.Context, table string) (string, bool, error) {
	inspector, ok := t.engine.(storage.Inspector)
	if !ok {
		return "", false, nil
	}
	stmt, exists, err := inspector.TableSQL(ctx, table)
	if err != nil {
		return "", false, fmt.Errorf("migrate: failed to inspect table %s: %w", table, err)
	}
	return stmt, exists, nil
}

// sameDefinition compares a create statement with the text SQLite stores for
// it, which drops IF NOT EXISTS and the trailing semicolon.
func sameDefinition(stored, createStatement string) bool {
	normalize := func(s string) string {
		s = strings.TrimSpace(s)
		s = strings.TrimSuffix(s, ";")
		if upper := strings.ToUpper(s); strings.HasPrefix(upper, "CREATE TABLE IF NOT EXISTS ") {
			s = "CREATE TABLE " + s[len("CREATE TABLE IF NOT EXISTS "):]
		}
		return strings.TrimSpace(s)
	}
	return normalize(stored) == normalize(createStatement)
}

func (t *Tracker) recreate(ctx context.Context, table, createStatement string) error {
	tx, err := t.engine.Begin(ctx)
	if err != nil {
		return fmt.Errorf("migrate: failed to begin recreate of %s: %w", table, err)
	}
	if err := tx.Execute(ctx, schema.DropStatement(table)); err != nil {
		tx.Rollback()
		return fmt.Errorf("migrate: failed to drop table %s: %w", table, err)
	}
	if err := tx.Execute(ctx, createStatement); err != nil {
		tx.Rollback()
		return fmt.Errorf("migrate: failed to recreate table %s: %w", table, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migrate: failed to commit recreate of %s: %w", table, err)
	}
	return nil
}

func (t *Tracker) persist(ctx context.Context, table, createStatement string, version int) error {
	if batch, ok := t.store.(settings.BatchSetter); ok {
		err := batch.SetAll(ctx,
			map[string]string{t.SQLKey(table): createStatement},
			map[string]int{t.VersionKey(table): version})
		if err != nil {
			return fmt.Errorf("migrate: failed to record snapshot of %s: %w", table, err)
		}
		return nil
	}

	if err := t.store.SetString(ctx, t.SQLKey(table), createStatement); err != nil {
		return fmt.Errorf("migrate: failed to record snapshot of %s: %w", table, err)
	}
	if err := t.store.SetInt(ctx, t.VersionKey(table), version); err != nil {
		return fmt.Errorf("migrate: failed to record version of %s: %w", table, err)
	}
	return nil
}

func (t *Tracker) lock(table string) *sync.Mutex {
	mu, _ := t.locks.LoadOrStore(table, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
