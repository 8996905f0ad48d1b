// Package store owns the on-disk index: schema, versioning, corruption
// recovery, and every SQL query the resolvers run. One Store instance owns
// one database connection; concurrent writers are outside the supported
// usage model and rely on SQLite's own file locking.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// SchemaVersion gates the derived tables. Bumping it wipes symbols, calls,
// imports and cross_refs (never files) on next open — schema changes are
// destructive, not migrated.
const SchemaVersion = 3

// Meta keys.
const (
	metaSchemaVersion = "schema_version"
	metaLastIndexed   = "last_indexed"
)

// Querier abstracts *sql.DB and *sql.Tx so store methods work in both contexts.
type Querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Store wraps a SQLite connection for the source-code index.
type Store struct {
	db     *sql.DB
	q      Querier // active querier: db or tx
	dbPath string
}

// Open opens or creates the index database at dbPath. On open it runs a
// quick integrity probe; a corrupt database is deleted together with its
// WAL/SHM sidecars and recreated exactly once before the error propagates.
func Open(dbPath string) (*Store, error) {
	s, err := open(dbPath)
	if err == nil {
		return s, nil
	}
	if !IsCorrupt(err) {
		return nil, err
	}
	slog.Warn("store.corrupt", "path", dbPath, "err", err)
	removeDatabase(dbPath)
	s, retryErr := open(dbPath)
	if retryErr != nil {
		return nil, fmt.Errorf("recreate after corruption: %w", retryErr)
	}
	slog.Info("store.recovered", "path", dbPath)
	return s, nil
}

// OpenMemory opens an in-memory index (for testing).
func OpenMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open memory db: %w", err)
	}
	s := &Store{db: db, dbPath: ":memory:"}
	s.q = s.db
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir index dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	s := &Store{db: db, dbPath: dbPath}
	s.q = s.db
	if err := s.integrityProbe(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// integrityProbe runs PRAGMA quick_check. Any non-"ok" answer is treated as
// corruption so the caller's delete-and-retry path kicks in.
func (s *Store) integrityProbe() error {
	var result string
	if err := s.db.QueryRow("PRAGMA quick_check(1)").Scan(&result); err != nil {
		return fmt.Errorf("quick_check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("quick_check: %w: %s", errIntegrity, result)
	}
	return nil
}

var errIntegrity = errors.New("integrity check failed")

// IsCorrupt reports whether err looks like database corruption. Detection is
// a best-effort pattern match on the engine's error text; unmatched storage
// errors propagate as fatal.
func IsCorrupt(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errIntegrity) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "malformed") ||
		strings.Contains(msg, "not a database") ||
		strings.Contains(msg, "database disk image")
}

// removeDatabase deletes the database file and its journal sidecars.
func removeDatabase(dbPath string) {
	for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm", dbPath + "-journal"} {
		_ = os.Remove(p)
	}
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS files (
		path TEXT PRIMARY KEY,
		is_dir INTEGER NOT NULL DEFAULT 0,
		mtime INTEGER NOT NULL DEFAULT 0,
		line_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS symbols (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file TEXT NOT NULL,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		start_line INTEGER NOT NULL DEFAULT 0,
		end_line INTEGER NOT NULL DEFAULT 0,
		parent TEXT NOT NULL DEFAULT '',
		complexity INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_symbols_file ON symbols(file);
	CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);

	CREATE TABLE IF NOT EXISTS calls (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		caller_file TEXT NOT NULL,
		caller_symbol TEXT NOT NULL,
		callee_name TEXT NOT NULL,
		callee_qualifier TEXT NOT NULL DEFAULT '',
		line INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_calls_callee ON calls(callee_name);
	CREATE INDEX IF NOT EXISTS idx_calls_caller ON calls(caller_file, caller_symbol);

	CREATE TABLE IF NOT EXISTS imports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file TEXT NOT NULL,
		module TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		alias TEXT NOT NULL DEFAULT '',
		line INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_imports_file ON imports(file);
	CREATE INDEX IF NOT EXISTS idx_imports_module ON imports(module);

	CREATE TABLE IF NOT EXISTS cross_refs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_file TEXT NOT NULL,
		source_lang TEXT NOT NULL,
		target_module TEXT NOT NULL,
		target_lang TEXT NOT NULL,
		ref_type TEXT NOT NULL,
		line INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_cross_refs_file ON cross_refs(source_file);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return s.checkSchemaVersion()
}

// checkSchemaVersion compares the stored schema_version against
// SchemaVersion. A mismatch clears all derived tables and records the new
// version; file rows survive so the next refresh stays incremental.
func (s *Store) checkSchemaVersion() error {
	stored, err := s.GetMeta(metaSchemaVersion)
	if err != nil {
		return err
	}
	expected := fmt.Sprintf("%d", SchemaVersion)
	if stored == expected {
		return nil
	}
	if stored != "" {
		slog.Info("store.schema_mismatch", "stored", stored, "expected", expected)
		for _, table := range []string{"symbols", "calls", "imports", "cross_refs"} {
			if _, err := s.db.Exec("DELETE FROM " + table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
	}
	return s.SetMeta(metaSchemaVersion, expected)
}

// WithTransaction executes fn within a single transaction. The callback
// receives a transaction-scoped Store; the receiver's q field is never
// mutated, so concurrent readers on the same Store are unaffected.
func (s *Store) WithTransaction(fn func(tx *Store) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	txStore := &Store{db: s.db, q: tx, dbPath: s.dbPath}
	if err := fn(txStore); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// GetMeta returns the value for a meta key, or "" when absent.
func (s *Store) GetMeta(key string) (string, error) {
	var value string
	err := s.q.QueryRow("SELECT value FROM meta WHERE key=?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get meta %s: %w", key, err)
	}
	return value, nil
}

// SetMeta upserts a meta key.
func (s *Store) SetMeta(key, value string) error {
	_, err := s.q.Exec(`INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set meta %s: %w", key, err)
	}
	return nil
}

// LastIndexed returns the last_indexed timestamp in unix seconds, or 0 if
// the project was never indexed.
func (s *Store) LastIndexed() (int64, error) {
	value, err := s.GetMeta(metaLastIndexed)
	if err != nil || value == "" {
		return 0, err
	}
	var ts int64
	if _, err := fmt.Sscanf(value, "%d", &ts); err != nil {
		return 0, fmt.Errorf("parse last_indexed %q: %w", value, err)
	}
	return ts, nil
}

// SetLastIndexed advances the last_indexed timestamp. It never moves
// backwards; staleness checks depend on it being monotonic.
func (s *Store) SetLastIndexed(ts int64) error {
	current, err := s.LastIndexed()
	if err != nil {
		return err
	}
	if ts < current {
		ts = current
	}
	return s.SetMeta(metaLastIndexed, fmt.Sprintf("%d", ts))
}
