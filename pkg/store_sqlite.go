package hifi

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS config (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS file (
	path           BLOB PRIMARY KEY,
	size           INTEGER NOT NULL,
	hash           TEXT,
	last_checked   INTEGER NOT NULL,
	last_inspected INTEGER
);
CREATE INDEX IF NOT EXISTS idx_file_hash_size ON file(hash, size);

CREATE TABLE IF NOT EXISTS scan_run (
	id          TEXT PRIMARY KEY,
	root        BLOB NOT NULL,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	added       INTEGER NOT NULL DEFAULT 0,
	updated     INTEGER NOT NULL DEFAULT 0,
	unchanged   INTEGER NOT NULL DEFAULT 0,
	hashed      INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	ignored     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_scan_run_started ON scan_run(started_at);
`

// SQLiteStore is the durable MetadataStore backed by a SQLite database file.
// Paths are stored as BLOBs so their bytes survive unchanged.
type SQLiteStore struct {
	db        *sql.DB
	location  string
	algorithm *HashAlgorithm
}

// CreateSQLiteStore bootstraps a new database at path recording algorithm as
// the store's hash method. It fails if the file already exists.
func CreateSQLiteStore(path string, algorithm string) (*SQLiteStore, error) {
	defer VerboseEnter()()

	alg, err := GetHashAlgorithm(algorithm)
	if err != nil {
		return nil, err
	}

	if path != MemoryLocation {
		if _, err := os.Stat(path); err == nil {
			return nil, &StoreError{Op: "create", Err: fmt.Errorf("database %s already exists", path)}
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, &StoreError{Op: "create", Err: fmt.Errorf("create database directory: %w", err)}
		}
	}

	db, err := openSQLite(path)
	if err != nil {
		return nil, err
	}

	s := &SQLiteStore{db: db, location: path, algorithm: alg}
	err = s.withTx(context.Background(), func(tx *sql.Tx) error {
		if _, err := tx.Exec(sqliteSchema); err != nil {
			return fmt.Errorf("initialize schema: %w", err)
		}
		if _, err := tx.Exec(`INSERT INTO config(key, value) VALUES(?, ?)`, ConfigKeyHashMethod, alg.Name); err != nil {
			return fmt.Errorf("record hash method: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		if path != MemoryLocation {
			os.Remove(path)
		}
		return nil, storeErr("create", err)
	}

	VerboseLog(1, "Created index %s using %s", path, alg.Name)
	return s, nil
}

// OpenSQLiteStore opens an existing database and reads its hash method
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	defer VerboseEnter()()

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &NotFoundError{Path: path, Err: err}
		}
		return nil, &StoreError{Op: "open", Err: err}
	}

	db, err := openSQLite(path)
	if err != nil {
		return nil, err
	}

	var method string
	err = db.QueryRow(`SELECT value FROM config WHERE key = ?`, ConfigKeyHashMethod).Scan(&method)
	if err != nil {
		db.Close()
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &ConfigError{Key: ConfigKeyHashMethod, Err: errors.New("hash method not recorded in database")}
		}
		// A database without the config table has never been bootstrapped
		return nil, &ConfigError{Key: ConfigKeyHashMethod, Err: err}
	}

	alg, err := GetHashAlgorithm(method)
	if err != nil {
		db.Close()
		return nil, &ConfigError{Key: ConfigKeyHashMethod, Err: err}
	}

	VerboseLog(2, "Opened index %s using %s", path, alg.Name)
	return &SQLiteStore{db: db, location: path, algorithm: alg}, nil
}

// OpenOrCreateSQLiteStore opens path, bootstrapping it with algorithm when it
// does not exist yet
func OpenOrCreateSQLiteStore(path string, algorithm string) (*SQLiteStore, error) {
	s, err := OpenSQLiteStore(path)
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return CreateSQLiteStore(path, algorithm)
	}
	return s, err
}

func openSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &StoreError{Op: "open", Err: err}
	}
	// Pragmas are per connection and ":memory:" databases are per connection
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, &StoreError{Op: "open", Err: fmt.Errorf("apply pragma %q: %w", pragma, err)}
		}
	}
	return db, nil
}

// withTx runs fn inside a transaction, committing only when fn succeeds
func (s *SQLiteStore) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) HashAlgorithm() *HashAlgorithm { return s.algorithm }

func (s *SQLiteStore) Location() string { return s.location }

func (s *SQLiteStore) Get(ctx context.Context, path string) (*FileRecord, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT path, size, hash, last_checked, last_inspected FROM file WHERE path = ?
`, []byte(path))
	rec, err := scanFileRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, storeErr("get", fmt.Errorf("query %s: %w", path, err))
	}
	return rec, nil
}

func (s *SQLiteStore) Put(ctx context.Context, rec *FileRecord) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO file(path, size, hash, last_checked, last_inspected)
VALUES(?, ?, ?, ?, ?)
ON CONFLICT(path) DO UPDATE SET
	size=excluded.size,
	hash=excluded.hash,
	last_checked=excluded.last_checked,
	last_inspected=excluded.last_inspected
`, []byte(rec.Path), rec.Size, nullString(rec.Hash), rec.LastChecked.UnixNano(), nullTime(rec.LastInspected))
		return err
	})
	if err != nil {
		return storeErr("put", fmt.Errorf("upsert %s: %w", rec.Path, err))
	}
	return nil
}

func (s *SQLiteStore) TouchChecked(ctx context.Context, path string, checked time.Time) error {
	return s.updateOne(ctx, "touch", path, `UPDATE file SET last_checked = ? WHERE path = ?`, checked.UnixNano(), []byte(path))
}

func (s *SQLiteStore) SetHash(ctx context.Context, path string, digest string, inspected time.Time) error {
	return s.updateOne(ctx, "set hash", path, `UPDATE file SET hash = ?, last_inspected = ? WHERE path = ?`,
		nullString(digest), nullTime(inspected), []byte(path))
}

func (s *SQLiteStore) updateOne(ctx context.Context, op, path, query string, args ...any) error {
	var affected int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return storeErr(op, fmt.Errorf("%s: %w", path, err))
	}
	if affected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, path string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM file WHERE path = ?`, []byte(path)); err != nil {
		return storeErr("delete", fmt.Errorf("delete %s: %w", path, err))
	}
	return nil
}

// ForEach reads inside a transaction that is rolled back afterwards, so fn
// sees one consistent snapshot. fn must not call back into the store.
func (s *SQLiteStore) ForEach(ctx context.Context, fn func(*FileRecord) bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("iterate", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
SELECT path, size, hash, last_checked, last_inspected FROM file ORDER BY path
`)
	if err != nil {
		return storeErr("iterate", fmt.Errorf("query records: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanFileRecord(rows)
		if err != nil {
			return storeErr("iterate", fmt.Errorf("scan record: %w", err))
		}
		if !fn(rec) {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return storeErr("iterate", fmt.Errorf("iterate records: %w", err))
	}
	return nil
}

func (s *SQLiteStore) AddScanRun(ctx context.Context, run *ScanRun) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO scan_run(id, root, started_at, finished_at, added, updated, unchanged, hashed, failed, ignored)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, run.ID, []byte(run.Root), run.StartedAt.UnixNano(), run.FinishedAt.UnixNano(),
			run.Added, run.Updated, run.Unchanged, run.Hashed, run.Failed, run.Ignored)
		return err
	})
	if err != nil {
		return storeErr("add scan run", err)
	}
	return nil
}

func (s *SQLiteStore) ScanRuns(ctx context.Context, limit int) ([]*ScanRun, error) {
	query := `
SELECT id, root, started_at, finished_at, added, updated, unchanged, hashed, failed, ignored
FROM scan_run ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("scan runs", err)
	}
	defer rows.Close()

	var runs []*ScanRun
	for rows.Next() {
		var (
			run               ScanRun
			root              []byte
			started, finished int64
		)
		if err := rows.Scan(&run.ID, &root, &started, &finished,
			&run.Added, &run.Updated, &run.Unchanged, &run.Hashed, &run.Failed, &run.Ignored); err != nil {
			return nil, storeErr("scan runs", err)
		}
		run.Root = string(root)
		run.StartedAt = time.Unix(0, started)
		run.FinishedAt = time.Unix(0, finished)
		runs = append(runs, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("scan runs", err)
	}
	return runs, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFileRecord(row rowScanner) (*FileRecord, error) {
	var (
		path      []byte
		size      int64
		hash      sql.NullString
		checked   int64
		inspected sql.NullInt64
	)
	if err := row.Scan(&path, &size, &hash, &checked, &inspected); err != nil {
		return nil, err
	}

	rec := &FileRecord{
		Path:        string(path),
		Size:        size,
		LastChecked: time.Unix(0, checked),
	}
	if hash.Valid {
		rec.Hash = hash.String
	}
	if inspected.Valid {
		rec.LastInspected = time.Unix(0, inspected.Int64)
	}
	return rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}
