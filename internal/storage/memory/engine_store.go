// Package memory provides an in-memory catalog store for development/testing.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/engine-proxy/internal/engine"
)

type state struct {
	mu      sync.RWMutex
	engines map[int64]engine.Engine
	nextID  int64
}

// EngineStore implements engine.Store on a map guarded by a RWMutex.
// Transactions hold the write lock for their whole duration and roll back
// on error. Like the SQL stores, writing a second default fails with
// engine.ErrRetryable.
type EngineStore struct {
	st   *state
	inTx bool
}

var _ engine.Store = (*EngineStore)(nil)

// NewEngineStore constructs an empty EngineStore.
func NewEngineStore() *EngineStore {
	return &EngineStore{st: &state{engines: make(map[int64]engine.Engine)}}
}

func (s *EngineStore) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.st.mu.Lock()
	return s.st.mu.Unlock
}

func (s *EngineStore) rlock() func() {
	if s.inTx {
		return func() {}
	}
	s.st.mu.RLock()
	return s.st.mu.RUnlock
}

// List returns every record in canonical order.
func (s *EngineStore) List(_ context.Context) ([]engine.Engine, error) {
	defer s.rlock()()
	out := make([]engine.Engine, 0, len(s.st.engines))
	for _, e := range s.st.engines {
		out = append(out, clone(e))
	}
	engine.SortCanonical(out)
	return out, nil
}

// Get loads a record by id.
func (s *EngineStore) Get(_ context.Context, id int64) (engine.Engine, error) {
	defer s.rlock()()
	e, ok := s.st.engines[id]
	if !ok {
		return engine.Engine{}, fmt.Errorf("engine %d: %w", id, engine.ErrNotFound)
	}
	return clone(e), nil
}

// GetByShortcut loads a record by normalized shortcut.
func (s *EngineStore) GetByShortcut(_ context.Context, shortcut string) (engine.Engine, error) {
	defer s.rlock()()
	if e, ok := s.findShortcut(shortcut, 0); ok {
		return clone(e), nil
	}
	return engine.Engine{}, fmt.Errorf("shortcut %q: %w", shortcut, engine.ErrNotFound)
}

// Insert stores a new record.
func (s *EngineStore) Insert(_ context.Context, e engine.Engine) (engine.Engine, error) {
	defer s.lock()()
	return s.insert(e)
}

func (s *EngineStore) insert(e engine.Engine) (engine.Engine, error) {
	if _, taken := s.findShortcut(e.Shortcut, 0); taken {
		return engine.Engine{}, engine.ConflictError(e.Shortcut)
	}
	if e.IsDefault && s.otherDefault(0) {
		return engine.Engine{}, fmt.Errorf("insert engine %q: %w", e.Shortcut, engine.ErrRetryable)
	}
	s.st.nextID++
	e.ID = s.st.nextID
	s.st.engines[e.ID] = clone(e)
	return clone(e), nil
}

// Update overwrites the record with e.ID.
func (s *EngineStore) Update(_ context.Context, e engine.Engine) (engine.Engine, error) {
	defer s.lock()()
	return s.update(e)
}

func (s *EngineStore) update(e engine.Engine) (engine.Engine, error) {
	current, ok := s.st.engines[e.ID]
	if !ok {
		return engine.Engine{}, fmt.Errorf("engine %d: %w", e.ID, engine.ErrNotFound)
	}
	if _, taken := s.findShortcut(e.Shortcut, e.ID); taken {
		return engine.Engine{}, engine.ConflictError(e.Shortcut)
	}
	if e.IsDefault && s.otherDefault(e.ID) {
		return engine.Engine{}, fmt.Errorf("update engine %d: %w", e.ID, engine.ErrRetryable)
	}
	e.CreatedAt = current.CreatedAt
	s.st.engines[e.ID] = clone(e)
	return clone(e), nil
}

// Delete removes the record with id.
func (s *EngineStore) Delete(_ context.Context, id int64) error {
	defer s.lock()()
	if _, ok := s.st.engines[id]; !ok {
		return fmt.Errorf("engine %d: %w", id, engine.ErrNotFound)
	}
	delete(s.st.engines, id)
	return nil
}

// Upsert inserts e or overwrites the record sharing its shortcut.
func (s *EngineStore) Upsert(_ context.Context, e engine.Engine) (engine.Engine, error) {
	defer s.lock()()
	existing, ok := s.findShortcut(e.Shortcut, 0)
	if !ok {
		return s.insert(e)
	}
	e.ID = existing.ID
	return s.update(e)
}

// RenameShortcut compares and swaps the shortcut of id under the write lock.
func (s *EngineStore) RenameShortcut(_ context.Context, id int64, from, to string) (bool, error) {
	defer s.lock()()
	current, ok := s.st.engines[id]
	if !ok || current.Shortcut != from {
		return false, nil
	}
	if _, taken := s.findShortcut(to, id); taken {
		return false, engine.ConflictError(to)
	}
	current.Shortcut = to
	s.st.engines[id] = current
	return true, nil
}

// ClearDefaults unsets the default flag everywhere but exceptID.
func (s *EngineStore) ClearDefaults(_ context.Context, exceptID int64) error {
	defer s.lock()()
	for id, e := range s.st.engines {
		if id != exceptID && e.IsDefault {
			e.IsDefault = false
			s.st.engines[id] = e
		}
	}
	return nil
}

// SetDefault flags id as default and clears every other record.
func (s *EngineStore) SetDefault(_ context.Context, id int64) error {
	defer s.lock()()
	if _, ok := s.st.engines[id]; !ok {
		return fmt.Errorf("engine %d: %w", id, engine.ErrNotFound)
	}
	for other, e := range s.st.engines {
		want := other == id
		if e.IsDefault != want {
			e.IsDefault = want
			s.st.engines[other] = e
		}
	}
	return nil
}

// HasDefault reports whether any record is flagged default.
func (s *EngineStore) HasDefault(_ context.Context) (bool, error) {
	defer s.rlock()()
	for _, e := range s.st.engines {
		if e.IsDefault {
			return true, nil
		}
	}
	return false, nil
}

// Oldest returns the earliest-created record.
func (s *EngineStore) Oldest(_ context.Context) (engine.Engine, error) {
	defer s.rlock()()
	var (
		oldest engine.Engine
		found  bool
	)
	for _, e := range s.st.engines {
		if !found || e.CreatedAt.Before(oldest.CreatedAt) ||
			(e.CreatedAt.Equal(oldest.CreatedAt) && e.ID < oldest.ID) {
			oldest, found = e, true
		}
	}
	if !found {
		return engine.Engine{}, fmt.Errorf("oldest engine: %w", engine.ErrNotFound)
	}
	return clone(oldest), nil
}

// InTx runs fn while holding the write lock; state is restored if fn fails.
func (s *EngineStore) InTx(_ context.Context, fn func(tx engine.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	snapshot := make(map[int64]engine.Engine, len(s.st.engines))
	for id, e := range s.st.engines {
		snapshot[id] = e
	}
	nextID := s.st.nextID

	if err := fn(&EngineStore{st: s.st, inTx: true}); err != nil {
		s.st.engines = snapshot
		s.st.nextID = nextID
		return err
	}
	return nil
}

// Ping always succeeds.
func (s *EngineStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *EngineStore) Close() error { return nil }

func (s *EngineStore) findShortcut(shortcut string, exceptID int64) (engine.Engine, bool) {
	key := engine.NormalizeShortcut(shortcut)
	for id, e := range s.st.engines {
		if id != exceptID && engine.NormalizeShortcut(e.Shortcut) == key {
			return e, true
		}
	}
	return engine.Engine{}, false
}

// otherDefault mirrors the single-default unique index of the SQL stores.
func (s *EngineStore) otherDefault(exceptID int64) bool {
	for id, e := range s.st.engines {
		if id != exceptID && e.IsDefault {
			return true
		}
	}
	return false
}

func clone(e engine.Engine) engine.Engine {
	if e.Description != nil {
		d := *e.Description
		e.Description = &d
	}
	return e
}
