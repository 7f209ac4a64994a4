package engine

import (
	"context"
	"time"
)

// Store persists catalog records. Implementations enforce shortcut uniqueness
// themselves and report violations as ErrConflict; missing rows are reported
// as ErrNotFound.
type Store interface {
	// List returns every record in canonical order.
	List(ctx context.Context) ([]Engine, error)
	// Get loads a record by id.
	Get(ctx context.Context, id int64) (Engine, error)
	// GetByShortcut loads a record by its normalized shortcut.
	GetByShortcut(ctx context.Context, shortcut string) (Engine, error)
	// Insert stores a new record and returns it with its assigned id.
	Insert(ctx context.Context, e Engine) (Engine, error)
	// Update overwrites the record with e.ID.
	Update(ctx context.Context, e Engine) (Engine, error)
	// Delete removes the record with id.
	Delete(ctx context.Context, id int64) error
	// Upsert inserts e or overwrites the record sharing its shortcut.
	Upsert(ctx context.Context, e Engine) (Engine, error)
	// RenameShortcut sets only the shortcut of id, and only while it still
	// equals from. It reports whether a row changed.
	RenameShortcut(ctx context.Context, id int64, from, to string) (bool, error)

	// ClearDefaults unsets IsDefault on every record except exceptID.
	ClearDefaults(ctx context.Context, exceptID int64) error
	// SetDefault marks id as the default and clears the flag elsewhere.
	SetDefault(ctx context.Context, id int64) error
	// HasDefault reports whether any record is flagged default.
	HasDefault(ctx context.Context) (bool, error)
	// Oldest returns the earliest-created record, or ErrNotFound when empty.
	Oldest(ctx context.Context) (Engine, error)

	// InTx runs fn against a view of the store whose writes commit together.
	InTx(ctx context.Context, fn func(tx Store) error) error
	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
	// Close releases backend resources.
	Close() error
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}
