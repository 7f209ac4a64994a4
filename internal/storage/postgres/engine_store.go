// Package postgres provides the Postgres-backed catalog store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/engine-proxy/internal/engine"
)

const (
	defaultTable     = "search_engines"
	uniqueViolation  = "23505"
	singleDefaultIdx = "_single_default"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for catalog rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

type pool interface {
	querier
	Begin(context.Context) (pgx.Tx, error)
	Ping(context.Context) error
	Close()
}

// EngineStore implements engine.Store on a Postgres table.
type EngineStore struct {
	pool  pool
	q     querier
	table string
	inTx  bool
}

var _ engine.Store = (*EngineStore)(nil)

// NewEngineStore connects a pool using cfg.
func NewEngineStore(ctx context.Context, cfg Config) (*EngineStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewEngineStoreWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewEngineStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewEngineStoreWithPool(p pool, table string) (*EngineStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &EngineStore{pool: p, q: p, table: table}, nil
}

// EnsureSchema creates the catalog table and its indexes when missing. The
// partial unique index on is_default makes a second default a constraint
// violation.
func (s *EngineStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	shortcut TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL,
	description TEXT,
	url_template TEXT NOT NULL,
	is_default BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s%s ON %s (is_default) WHERE is_default`,
			s.table, singleDefaultIdx, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

const columns = "id, shortcut, display_name, description, url_template, is_default, created_at, updated_at"

// List returns every record in canonical order.
func (s *EngineStore) List(ctx context.Context) ([]engine.Engine, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY is_default DESC, display_name ASC, id ASC`, columns, s.table)
	rows, err := s.q.Query(ctx, query)
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
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, columns, s.table)
	e, err := scanEngine(s.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return engine.Engine{}, fmt.Errorf("engine %d: %w", id, engine.ErrNotFound)
		}
		return engine.Engine{}, fmt.Errorf("get engine: %w", err)
	}
	return e, nil
}

// GetByShortcut loads a record by normalized shortcut.
func (s *EngineStore) GetByShortcut(ctx context.Context, shortcut string) (engine.Engine, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE shortcut = $1`, columns, s.table)
	e, err := scanEngine(s.q.QueryRow(ctx, query, shortcut))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return engine.Engine{}, fmt.Errorf("shortcut %q: %w", shortcut, engine.ErrNotFound)
		}
		return engine.Engine{}, fmt.Errorf("get engine by shortcut: %w", err)
	}
	return e, nil
}

// Insert stores a new record.
func (s *EngineStore) Insert(ctx context.Context, e engine.Engine) (engine.Engine, error) {
	query := fmt.Sprintf(`
INSERT INTO %s (
	shortcut,
	display_name,
	description,
	url_template,
	is_default,
	created_at,
	updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7
) RETURNING id`, s.table)

	err := s.q.QueryRow(ctx, query,
		e.Shortcut,
		e.DisplayName,
		e.Description,
		e.URLTemplate,
		e.IsDefault,
		e.CreatedAt,
		e.UpdatedAt,
	).Scan(&e.ID)
	if err != nil {
		return engine.Engine{}, translate("insert engine", err, e.Shortcut)
	}
	return e, nil
}

// Update overwrites the record with e.ID.
func (s *EngineStore) Update(ctx context.Context, e engine.Engine) (engine.Engine, error) {
	query := fmt.Sprintf(`
UPDATE %s SET
	shortcut = $2,
	display_name = $3,
	description = $4,
	url_template = $5,
	is_default = $6,
	updated_at = $7
WHERE id = $1
RETURNING created_at`, s.table)

	err := s.q.QueryRow(ctx, query,
		e.ID,
		e.Shortcut,
		e.DisplayName,
		e.Description,
		e.URLTemplate,
		e.IsDefault,
		e.UpdatedAt,
	).Scan(&e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return engine.Engine{}, fmt.Errorf("engine %d: %w", e.ID, engine.ErrNotFound)
		}
		return engine.Engine{}, translate("update engine", err, e.Shortcut)
	}
	return e, nil
}

// RenameShortcut sets the shortcut of id only while it still equals from.
func (s *EngineStore) RenameShortcut(ctx context.Context, id int64, from, to string) (bool, error) {
	tag, err := s.q.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET shortcut = $1 WHERE id = $2 AND shortcut = $3`, s.table), to, id, from)
	if err != nil {
		return false, translate("rename shortcut", err, to)
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes the record with id.
func (s *EngineStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.q.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table), id)
	if err != nil {
		return fmt.Errorf("delete engine: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("engine %d: %w", id, engine.ErrNotFound)
	}
	return nil
}

// Upsert inserts e or overwrites the record sharing its shortcut.
func (s *EngineStore) Upsert(ctx context.Context, e engine.Engine) (engine.Engine, error) {
	query := fmt.Sprintf(`
INSERT INTO %s (
	shortcut,
	display_name,
	description,
	url_template,
	is_default,
	created_at,
	updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7
)
ON CONFLICT (shortcut) DO UPDATE SET
	display_name = EXCLUDED.display_name,
	description = EXCLUDED.description,
	url_template = EXCLUDED.url_template,
	is_default = EXCLUDED.is_default,
	updated_at = EXCLUDED.updated_at
RETURNING id, created_at`, s.table)

	err := s.q.QueryRow(ctx, query,
		e.Shortcut,
		e.DisplayName,
		e.Description,
		e.URLTemplate,
		e.IsDefault,
		e.CreatedAt,
		e.UpdatedAt,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return engine.Engine{}, translate("upsert engine", err, e.Shortcut)
	}
	return e, nil
}

// ClearDefaults unsets the default flag everywhere but exceptID.
func (s *EngineStore) ClearDefaults(ctx context.Context, exceptID int64) error {
	query := fmt.Sprintf(`UPDATE %s SET is_default = FALSE WHERE is_default AND id <> $1`, s.table)
	if _, err := s.q.Exec(ctx, query, exceptID); err != nil {
		return fmt.Errorf("clear defaults: %w", err)
	}
	return nil
}

// SetDefault clears other defaults, then flags id. Callers run it inside
// InTx so a missing id leaves the previous default in place.
func (s *EngineStore) SetDefault(ctx context.Context, id int64) error {
	if err := s.ClearDefaults(ctx, id); err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE %s SET is_default = TRUE WHERE id = $1`, s.table)
	tag, err := s.q.Exec(ctx, query, id)
	if err != nil {
		return translate("set default", err, "")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("engine %d: %w", id, engine.ErrNotFound)
	}
	return nil
}

// HasDefault reports whether any record is flagged default.
func (s *EngineStore) HasDefault(ctx context.Context) (bool, error) {
	var has bool
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE is_default)`, s.table)
	if err := s.q.QueryRow(ctx, query).Scan(&has); err != nil {
		return false, fmt.Errorf("check default: %w", err)
	}
	return has, nil
}

// Oldest returns the earliest-created record.
func (s *EngineStore) Oldest(ctx context.Context) (engine.Engine, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY created_at ASC, id ASC LIMIT 1`, columns, s.table)
	e, err := scanEngine(s.q.QueryRow(ctx, query))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			err = errors.Join(err, fmt.Errorf("rollback tx: %w", rbErr))
		}
	}()

	if err = fn(&EngineStore{pool: s.pool, q: tx, table: s.table, inTx: true}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *EngineStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *EngineStore) Close() error {
	if s == nil || s.pool == nil || s.inTx {
		return nil
	}
	s.pool.Close()
	return nil
}

func scanEngine(row pgx.Row) (engine.Engine, error) {
	var e engine.Engine
	err := row.Scan(
		&e.ID,
		&e.Shortcut,
		&e.DisplayName,
		&e.Description,
		&e.URLTemplate,
		&e.IsDefault,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	return e, err
}

// translate maps unique violations onto domain errors. A collision on the
// single-default index means a concurrent writer promoted another engine.
func translate(op string, err error, shortcut string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		if strings.HasSuffix(pgErr.ConstraintName, singleDefaultIdx) {
			return fmt.Errorf("%s: %w", op, engine.ErrRetryable)
		}
		return engine.ConflictError(shortcut)
	}
	return fmt.Errorf("%s: %w", op, err)
}
