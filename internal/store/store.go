package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver
)

// Store is one explicitly opened handle on the catalog database.
// Commands open it once per run and close it when the run ends.
type Store struct {
	db   *sql.DB
	path string
}

// OpenOptions holds options for opening a database
type OpenOptions struct {
	// BulkLoad relaxes durability pragmas for large ingestion runs
	BulkLoad bool

	// SongsVersion is the shape used when the canonical table does not
	// exist yet (0 = latest). Existing tables are never touched by Open.
	SongsVersion int
}

// Open opens or creates a SQLite database at the given path with default options
func Open(path string) (*Store, error) {
	return OpenWithOptions(path, nil)
}

// OpenWithOptions opens or creates a SQLite database with custom options
func OpenWithOptions(path string, opts *OpenOptions) (*Store, error) {
	if opts == nil {
		opts = &OpenOptions{}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection per run: every statement and transaction shares it
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &Store{db: db, path: path}

	if opts.BulkLoad {
		if err := store.applyBulkPragmas(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply bulk pragmas: %w", err)
		}
	}

	version := opts.SongsVersion
	if version <= 0 || version > CurrentSongsVersion {
		version = CurrentSongsVersion
	}
	if err := store.initSchema(version); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema initialization failed: %w", err)
	}

	return store, nil
}

func (s *Store) applyBulkPragmas() error {
	pragmas := []string{
		// NORMAL is safe with WAL: fsync at checkpoints instead of every commit
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA cache_size = -64000",
	}

	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for custom queries
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.path
}

// SQLiteVersion returns the SQLite version string
func SQLiteVersion() string {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return ""
	}
	defer db.Close()

	var version string
	if err := db.QueryRow("SELECT sqlite_version()").Scan(&version); err != nil {
		return ""
	}
	return version
}

// CheckIntegrity runs PRAGMA integrity_check on the database
func (s *Store) CheckIntegrity(ctx context.Context) error {
	var result string
	err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result)
	if err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}

	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}

	return nil
}

// initSchema creates the bookkeeping tables and, on a fresh database,
// the canonical table at the requested version. A canonical table left by
// an older tool without version rows gets its version inferred.
func (s *Store) initSchema(version int) error {
	return s.Transaction(context.Background(), func(tx *sql.Tx) error {
		if _, err := tx.Exec(bookkeepingSchema); err != nil {
			return fmt.Errorf("failed to create bookkeeping tables: %w", err)
		}

		exists, err := tableExists(tx, SongsTable)
		if err != nil {
			return err
		}

		if !exists {
			if err := CreateSongsTable(tx, SongsTable, SongColumns(version)); err != nil {
				return err
			}
			if err := CreateSongIndexes(tx, SongColumns(version)); err != nil {
				return err
			}
			return SetSchemaVersion(tx, version)
		}

		recorded, err := schemaVersion(tx)
		if err != nil {
			return err
		}
		if recorded > 0 {
			return nil
		}

		cols, err := TableColumns(tx, SongsTable)
		if err != nil {
			return err
		}
		return SetSchemaVersion(tx, DetectSongsVersion(cols))
	})
}

// Transaction executes fn within a transaction, rolling back on error
func (s *Store) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// SongsVersion returns the recorded version of the canonical table
func (s *Store) SongsVersion(ctx context.Context) (int, error) {
	var version int
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

// SetSchemaVersion records a canonical table version inside tx
func SetSchemaVersion(tx *sql.Tx, version int) error {
	_, err := tx.Exec("INSERT OR IGNORE INTO schema_version (version) VALUES (?)", version)
	if err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return nil
}

func schemaVersion(q queryer) (int, error) {
	var version int
	err := q.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

// queryer is satisfied by *sql.DB and *sql.Tx
type queryer interface {
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

func tableExists(q queryer, name string) (bool, error) {
	var count int
	err := q.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name=?
	`, name).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", name, err)
	}
	return count > 0, nil
}

// TableExists reports whether a table is present
func TableExists(tx *sql.Tx, name string) (bool, error) {
	return tableExists(tx, name)
}

// TableColumns returns the column names of a table in declaration order
func TableColumns(q queryer, table string) ([]string, error) {
	rows, err := q.Query(fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column info: %w", err)
		}
		cols = append(cols, name)
	}

	return cols, rows.Err()
}

// SongTableColumns returns the live column set of the canonical table
func (s *Store) SongTableColumns(ctx context.Context) (map[string]bool, error) {
	cols, err := TableColumns(s.db, SongsTable)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(cols))
	for _, c := range cols {
		set[c] = true
	}
	return set, nil
}
