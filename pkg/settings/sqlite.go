package settings

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	_ "github.com/mattn/go-sqlite3"
)

// SettingsTable holds the settings rows when they live inside a SQLite file.
const SettingsTable = "_simpleorm_settings"

// createSettingsTableSQL creates the settings table. String and integer
// values share a row per key but are tracked independently.
const createSettingsTableSQL = `
CREATE TABLE IF NOT EXISTS ` + SettingsTable + ` (
    key TEXT PRIMARY KEY,
    str_value TEXT,
    int_value INTEGER
)`

// SQLiteStore is a Store kept in a table of a SQLite file, typically the same
// file that holds the mapped records.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the settings table in the SQLite file at path.
func NewSQLiteStore(path string, busyTimeoutMs int) (*SQLiteStore, error) {
	if busyTimeoutMs <= 0 {
		busyTimeoutMs = 5000
	}
	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d", path, busyTimeoutMs))
	if err != nil {
		return nil, fmt.Errorf("settings: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(createSettingsTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("settings: failed to create settings table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) GetString(ctx context.Context, key string) (string, bool, error) {
	var v sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT str_value FROM "+SettingsTable+" WHERE key = ?", key,
	).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("settings: failed to read %s: %w", key, err)
	}
	return v.String, v.Valid, nil
}

func (s *SQLiteStore) SetString(ctx context.Context, key, value string) error {
	return s.SetAll(ctx, map[string]string{key: value}, nil)
}

func (s *SQLiteStore) GetInt(ctx context.Context, key string) (int, bool, error) {
	var v sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT int_value FROM "+SettingsTable+" WHERE key = ?", key,
	).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("settings: failed to read %s: %w", key, err)
	}
	return int(v.Int64), v.Valid, nil
}

func (s *SQLiteStore) SetInt(ctx context.Context, key string, value int) error {
	return s.SetAll(ctx, nil, map[string]int{key: value})
}

// SetAll implements BatchSetter in a single transaction.
func (s *SQLiteStore) SetAll(ctx context.Context, strs map[string]string, ints map[string]int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("settings: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for k, v := range strs {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO "+SettingsTable+" (key, str_value) VALUES (?, ?) "+
				"ON CONFLICT(key) DO UPDATE SET str_value = excluded.str_value",
			k, v,
		); err != nil {
			return fmt.Errorf("settings: failed to write %s: %w", k, err)
		}
	}
	for k, v := range ints {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO "+SettingsTable+" (key, int_value) VALUES (?, ?) "+
				"ON CONFLICT(key) DO UPDATE SET int_value = excluded.int_value",
			k, v,
		); err != nil {
			return fmt.Errorf("settings: failed to write %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("settings: failed to commit: %w", err)
	}
	return nil
}

// StringKeys implements Lister.
func (s *SQLiteStore) StringKeys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key FROM "+SettingsTable+" WHERE str_value IS NOT NULL AND substr(key, 1, ?) = ?",
		len(prefix), prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("settings: failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("settings: failed to scan key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("settings: error iterating keys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
