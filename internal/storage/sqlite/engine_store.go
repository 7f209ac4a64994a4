// Package sqlite provides an embedded, file-backed catalog store built on the
// pure-Go modernc SQLite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/JakeFAU/engine-proxy/internal/engine"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

const schema = `
CREATE TABLE IF NOT EXISTS search_engines (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	shortcut TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL,
	description TEXT,
	url_template TEXT NOT NULL,
	is_default INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS search_engines_single_default
	ON search_engines (is_default) WHERE is_default = 1;
`

const columns = "id, shortcut, display_name, description, url_template, is_default, created_at, updated_at"

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// EngineStore implements engine.Store on a SQLite database.
type EngineStore struct {
	db   *sql.DB
	q    querier
	inTx bool
}

var _ engine.Store = (*EngineStore)(nil)

// Open creates (or reuses) the database at path and applies the schema.
func Open(ctx context.Context, path string, logger *zap.Logger) (*EngineStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path == "" {
		return nil, fmt.Errorf("storage.path is required")
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			logger.Debug("sqlite pragma failed", zap.String("pragma", pragma), zap.Error(err))
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	logger.Info("sqlite catalog opened", zap.String("path", path))
	return &EngineStore{db: db, q: db}, nil
}

// List returns every record in canonical order.
func (s *EngineStore) List(ctx context.Context) ([]engine.Engine, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+columns+` FROM search_engines ORDER BY is_default DESC, display_name ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list engines: %w", err)
	}
	defer rows.Close()

	var out []engine.Engine
	for rows.Next() {
		e, err := scanEngine(rows)
		if err != nil {
			return nil, fmt.Errorf("scan engine row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate engine rows: %w", err)
	}
	return out, nil
}

// Get loads a record by id.
func (s *EngineStore) Get(ctx context.Context, id int64) (engine.Engine, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+columns+` FROM search_engines WHERE id = ?`, id)
	e, err := scanEngine(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return engine.Engine{}, fmt.Errorf("engine %d: %w", id, engine.ErrNotFound)
		}
		return engine.Engine{}, fmt.Errorf("get engine: %w", err)
	}
	return e, nil
}

// GetByShortcut loads a record by normalized shortcut.
func (s *EngineStore) GetByShortcut(ctx context.Context, shortcut string) (engine.Engine, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+columns+` FROM search_engines WHERE shortcut = ?`, shortcut)
	e, err := scanEngine(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return engine.Engine{}, fmt.Errorf("shortcut %q: %w", shortcut, engine.ErrNotFound)
		}
		return engine.Engine{}, fmt.Errorf("get engine by shortcut: %w", err)
	}
	return e, nil
}

// Insert stores a new record.
func (s *EngineStore) Insert(ctx context.Context, e engine.Engine) (engine.Engine, error) {
	res, err := s.q.ExecContext(ctx, `
INSERT INTO search_engines (shortcut, display_name, description, url_template, is_default, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Shortcut, e.DisplayName, nullString(e.Description), e.URLTemplate, e.IsDefault,
		e.CreatedAt.UnixNano(), e.UpdatedAt.UnixNano())
	if err != nil {
		return engine.Engine{}, translate("insert engine", err, e.Shortcut)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return engine.Engine{}, fmt.Errorf("insert engine id: %w", err)
	}
	e.ID = id
	return e, nil
}

// Update overwrites the record with e.ID. The stored creation time is kept.
func (s *EngineStore) Update(ctx context.Context, e engine.Engine) (engine.Engine, error) {
	var created int64
	err := s.q.QueryRowContext(ctx, `
UPDATE search_engines SET
	shortcut = ?, display_name = ?, description = ?, url_template = ?, is_default = ?, updated_at = ?
WHERE id = ?
RETURNING created_at`,
		e.Shortcut, e.DisplayName, nullString(e.Description), e.URLTemplate, e.IsDefault,
		e.UpdatedAt.UnixNano(), e.ID).Scan(&created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return engine.Engine{}, fmt.Errorf("engine %d: %w", e.ID, engine.ErrNotFound)
		}
		return engine.Engine{}, translate("update engine", err, e.Shortcut)
	}
	e.CreatedAt = fromNanos(created)
	return e, nil
}

// RenameShortcut sets the shortcut of id only while it still equals from.
func (s *EngineStore) RenameShortcut(ctx context.Context, id int64, from, to string) (bool, error) {
	res, err := s.q.ExecContext(ctx,
		`UPDATE search_engines SET shortcut = ? WHERE id = ? AND shortcut = ?`, to, id, from)
	if err != nil {
		return false, translate("rename shortcut", err, to)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rename shortcut: %w", err)
	}
	return n > 0, nil
}

// Delete removes the record with id.
func (s *EngineStore) Delete(ctx context.Context, id int64) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM search_engines WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete engine: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete engine: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("engine %d: %w", id, engine.ErrNotFound)
	}
	return nil
}

// Upsert inserts e or overwrites the record sharing its shortcut.
func (s *EngineStore) Upsert(ctx context.Context, e engine.Engine) (engine.Engine, error) {
	var created int64
	err := s.q.QueryRowContext(ctx, `
INSERT INTO search_engines (shortcut, display_name, description, url_template, is_default, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (shortcut) DO UPDATE SET
	display_name = excluded.display_name,
	description = excluded.description,
	url_template = excluded.url_template,
	is_default = excluded.is_default,
	updated_at = excluded.updated_at
RETURNING id, created_at`,
		e.Shortcut, e.DisplayName, nullString(e.Description), e.URLTemplate, e.IsDefault,
		e.CreatedAt.UnixNano(), e.UpdatedAt.UnixNano()).Scan(&e.ID, &created)
	if err != nil {
		return engine.Engine{}, translate("upsert engine", err, e.Shortcut)
	}
	e.CreatedAt = fromNanos(created)
	return e, nil
}

// ClearDefaults unsets the default flag everywhere but exceptID.
func (s *EngineStore) ClearDefaults(ctx context.Context, exceptID int64) error {
	if _, err := s.q.ExecContext(ctx,
		`UPDATE search_engines SET is_default = 0 WHERE is_default = 1 AND id <> ?`, exceptID); err != nil {
		return fmt.Errorf("clear defaults: %w", err)
	}
	return nil
}

// SetDefault clears other defaults, then flags id.
func (s *EngineStore) SetDefault(ctx context.Context, id int64) error {
	if err := s.ClearDefaults(ctx, id); err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx, `UPDATE search_engines SET is_default = 1 WHERE id = ?`, id)
	if err != nil {
		return translate("set default", err, "")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set default: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("engine %d: %w", id, engine.ErrNotFound)
	}
	return nil
}

// HasDefault reports whether any record is flagged default.
func (s *EngineStore) HasDefault(ctx context.Context) (bool, error) {
	var has bool
	err := s.q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM search_engines WHERE is_default = 1)`).Scan(&has)
	if err != nil {
		return false, fmt.Errorf("check default: %w", err)
	}
	return has, nil
}

// Oldest returns the earliest-created record.
func (s *EngineStore) Oldest(ctx context.Context) (engine.Engine, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+columns+` FROM search_engines ORDER BY created_at ASC, id ASC LIMIT 1`)
	e, err := scanEngine(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return engine.Engine{}, fmt.Errorf("oldest engine: %w", engine.ErrNotFound)
		}
		return engine.Engine{}, fmt.Errorf("oldest engine: %w", err)
	}
	return e, nil
}

// InTx runs fn inside a transaction, committing only when fn succeeds.
func (s *EngineStore) InTx(ctx context.Context, fn func(tx engine.Store) error) (err error) {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = errors.Join(err, fmt.Errorf("rollback tx: %w", rbErr))
		}
	}()

	if err = fn(&EngineStore{db: s.db, q: tx, inTx: true}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Ping checks that the database handle is usable.
func (s *EngineStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *EngineStore) Close() error {
	if s == nil || s.db == nil || s.inTx {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEngine(row rowScanner) (engine.Engine, error) {
	var (
		e                engine.Engine
		desc             sql.NullString
		created, updated int64
	)
	if err := row.Scan(&e.ID, &e.Shortcut, &e.DisplayName, &desc, &e.URLTemplate, &e.IsDefault, &created, &updated); err != nil {
		return engine.Engine{}, err
	}
	if desc.Valid {
		v := desc.String
		e.Description = &v
	}
	e.CreatedAt = fromNanos(created)
	e.UpdatedAt = fromNanos(updated)
	return e, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// translate maps unique violations onto domain errors. A collision on the
// single-default index means a concurrent writer promoted another engine.
func translate(op string, err error, shortcut string) error {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) && isUniqueViolation(sqliteErr) {
		if strings.Contains(sqliteErr.Error(), "is_default") {
			return fmt.Errorf("%s: %w", op, engine.ErrRetryable)
		}
		return engine.ConflictError(shortcut)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUniqueViolation(err *sqlite.Error) bool {
	code := err.Code()
	if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}
	return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(err.Error(), "UNIQUE")
}
