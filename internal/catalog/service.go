// Package catalog owns every write to the engine catalog. Each mutation is
// followed by Repair, which keeps exactly one engine flagged default whenever
// the catalog is non-empty.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/engine-proxy/internal/engine"
	"github.com/JakeFAU/engine-proxy/internal/metrics"
)

const normalizeConcurrency = 4

// Service validates input and coordinates store writes with default repair.
type Service struct {
	store  engine.Store
	clock  engine.Clock
	logger *zap.Logger
}

// NewService wires the store, clock and logger.
func NewService(store engine.Store, clock engine.Clock, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, clock: clock, logger: logger}
}

// List returns the catalog in canonical order. Records whose stored shortcut
// is not normalized are renamed in place. Only the shortcut column is
// written, and only while it still holds the value read here, so concurrent
// admin writes are never overwritten.
func (s *Service) List(ctx context.Context) ([]engine.Engine, error) {
	engines, err := s.store.List(ctx)
	if err != nil {
		return nil, s.storeErr("list engines", err)
	}

	var (
		g       errgroup.Group
		renamed atomic.Int64
	)
	g.SetLimit(normalizeConcurrency)
	for i := range engines {
		stored := engines[i].Shortcut
		normalized := engine.NormalizeShortcut(stored)
		if normalized == stored {
			continue
		}
		engines[i].Shortcut = normalized
		id := engines[i].ID
		g.Go(func() error {
			changed, err := s.store.RenameShortcut(ctx, id, stored, normalized)
			switch {
			case err == nil:
				if changed {
					renamed.Add(1)
					s.logger.Info("normalized stored shortcut",
						zap.Int64("id", id), zap.String("shortcut", normalized))
				}
				return nil
			case errors.Is(err, engine.ErrConflict):
				s.logger.Warn("skipped shortcut normalization",
					zap.Int64("id", id), zap.String("shortcut", normalized), zap.Error(err))
				return nil
			default:
				return fmt.Errorf("normalize engine %d: %w", id, err)
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, s.storeErr("normalize shortcuts", err)
	}
	if renamed.Load() == 0 {
		return engines, nil
	}

	if _, err := s.Repair(ctx); err != nil {
		return nil, err
	}
	fresh, err := s.store.List(ctx)
	if err != nil {
		return nil, s.storeErr("list engines", err)
	}
	for i := range fresh {
		fresh[i].Shortcut = engine.NormalizeShortcut(fresh[i].Shortcut)
	}
	return fresh, nil
}

// Get loads one engine.
func (s *Service) Get(ctx context.Context, id int64) (engine.Engine, error) {
	e, err := s.store.Get(ctx, id)
	if err != nil {
		return engine.Engine{}, s.storeErr("get engine", err)
	}
	return e, nil
}

// Create validates and inserts a new engine. When the payload asks to be the
// default, every existing default is cleared in the same transaction.
func (s *Service) Create(ctx context.Context, p engine.Payload) (engine.Engine, error) {
	p, err := p.Validate()
	if err != nil {
		return engine.Engine{}, err
	}
	if err := s.checkShortcutFree(ctx, p.Shortcut, 0); err != nil {
		return engine.Engine{}, err
	}

	rec := p.Record()
	now := s.clock.Now()
	rec.CreatedAt, rec.UpdatedAt = now, now

	var created engine.Engine
	err = s.store.InTx(ctx, func(tx engine.Store) error {
		if rec.IsDefault {
			if err := tx.ClearDefaults(ctx, 0); err != nil {
				return fmt.Errorf("clear defaults: %w", err)
			}
		}
		var err error
		created, err = tx.Insert(ctx, rec)
		return err
	})
	if err != nil {
		return engine.Engine{}, s.storeErr("create engine", err)
	}
	metrics.ObserveCatalogMutation("create")
	s.logger.Info("engine created",
		zap.Int64("id", created.ID), zap.String("shortcut", created.Shortcut), zap.Bool("default", created.IsDefault))

	return s.afterWrite(ctx, created)
}

// Update applies a partial update to id.
func (s *Service) Update(ctx context.Context, id int64, patch engine.Patch) (engine.Engine, error) {
	patch, err := patch.Validate()
	if err != nil {
		return engine.Engine{}, err
	}
	if patch.Shortcut != nil {
		if err := s.checkShortcutFree(ctx, *patch.Shortcut, id); err != nil {
			return engine.Engine{}, err
		}
	}

	var updated engine.Engine
	err = s.store.InTx(ctx, func(tx engine.Store) error {
		current, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if patch.SetsDefault() {
			if err := tx.ClearDefaults(ctx, id); err != nil {
				return fmt.Errorf("clear defaults: %w", err)
			}
		}
		next := patch.Apply(current)
		next.UpdatedAt = s.clock.Now()
		updated, err = tx.Update(ctx, next)
		return err
	})
	if err != nil {
		return engine.Engine{}, s.storeErr("update engine", err)
	}
	metrics.ObserveCatalogMutation("update")
	s.logger.Info("engine updated", zap.Int64("id", updated.ID), zap.String("shortcut", updated.Shortcut))

	return s.afterWrite(ctx, updated)
}

// Delete removes id and restores a default if it was the default.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return s.storeErr("delete engine", err)
	}
	metrics.ObserveCatalogMutation("delete")
	s.logger.Info("engine deleted", zap.Int64("id", id))

	if _, err := s.Repair(ctx); err != nil {
		return err
	}
	return nil
}

// Seed upserts payloads by shortcut, then repairs the default flag. Existing
// records with un-normalized shortcuts are fixed first.
func (s *Service) Seed(ctx context.Context, payloads []engine.Payload) (int, error) {
	if _, err := s.List(ctx); err != nil {
		return 0, err
	}
	now := s.clock.Now()
	for _, raw := range payloads {
		p, err := raw.Validate()
		if err != nil {
			return 0, fmt.Errorf("seed %q: %w", raw.Shortcut, err)
		}
		rec := p.Record()
		rec.CreatedAt, rec.UpdatedAt = now, now
		err = s.store.InTx(ctx, func(tx engine.Store) error {
			if rec.IsDefault {
				if err := tx.ClearDefaults(ctx, 0); err != nil {
					return fmt.Errorf("clear defaults: %w", err)
				}
			}
			_, err := tx.Upsert(ctx, rec)
			return err
		})
		if err != nil {
			return 0, s.storeErr("seed engine", err)
		}
		metrics.ObserveCatalogMutation("upsert")
	}
	if _, err := s.Repair(ctx); err != nil {
		return 0, err
	}
	s.logger.Info("catalog seeded", zap.Int("engines", len(payloads)))
	return len(payloads), nil
}

// Ping reports whether the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return s.storeErr("ping store", err)
	}
	return nil
}

func (s *Service) afterWrite(ctx context.Context, written engine.Engine) (engine.Engine, error) {
	promoted, err := s.Repair(ctx)
	if err != nil {
		return engine.Engine{}, err
	}
	if promoted != nil && promoted.ID == written.ID {
		written.IsDefault = true
	}
	return written, nil
}

func (s *Service) checkShortcutFree(ctx context.Context, shortcut string, selfID int64) error {
	existing, err := s.store.GetByShortcut(ctx, shortcut)
	switch {
	case errors.Is(err, engine.ErrNotFound):
		return nil
	case err != nil:
		return s.storeErr("lookup shortcut", err)
	case existing.ID == selfID:
		return nil
	default:
		return engine.ConflictError(shortcut)
	}
}

// storeErr passes domain sentinels through and wraps everything else.
func (s *Service) storeErr(op string, err error) error {
	if errors.Is(err, engine.ErrNotFound) || errors.Is(err, engine.ErrConflict) {
		return err
	}
	var serr *engine.StoreError
	if errors.As(err, &serr) {
		return err
	}
	s.logger.Error("catalog store failure", zap.String("op", op), zap.Error(err))
	return &engine.StoreError{Op: op, Err: err}
}
