package catalog

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/engine-proxy/internal/engine"
	"github.com/JakeFAU/engine-proxy/internal/metrics"
)

const maxRepairAttempts = 3

// Repair promotes the earliest-created engine when no engine is flagged
// default. It is a no-op when a default exists or the catalog is empty, so it
// can run after every write and concurrently with other writers. The promoted
// engine is returned when a promotion happened.
func (s *Service) Repair(ctx context.Context) (*engine.Engine, error) {
	for attempt := 1; attempt <= maxRepairAttempts; attempt++ {
		promoted, err := s.repairOnce(ctx)
		switch {
		case err == nil:
			if promoted == nil {
				metrics.ObserveRepair("noop")
				return nil, nil
			}
			metrics.ObserveRepair("promoted")
			s.logger.Info("promoted fallback default engine",
				zap.Int64("id", promoted.ID), zap.String("shortcut", promoted.Shortcut))
			return promoted, nil
		case errors.Is(err, engine.ErrNotFound):
			s.logger.Warn("default promotion target vanished; retrying",
				zap.Int("attempt", attempt), zap.Error(err))
		default:
			metrics.ObserveRepair("failed")
			return nil, s.storeErr("repair default", err)
		}
	}
	metrics.ObserveRepair("failed")
	err := &engine.StoreError{
		Op:  "repair default",
		Err: fmt.Errorf("gave up after %d attempts: %w", maxRepairAttempts, engine.ErrRetryable),
	}
	s.logger.Error("default repair failed", zap.Error(err))
	return nil, err
}

func (s *Service) repairOnce(ctx context.Context) (*engine.Engine, error) {
	var promoted *engine.Engine
	err := s.store.InTx(ctx, func(tx engine.Store) error {
		hasDefault, err := tx.HasDefault(ctx)
		if err != nil {
			return fmt.Errorf("check default: %w", err)
		}
		if hasDefault {
			return nil
		}
		oldest, err := tx.Oldest(ctx)
		if errors.Is(err, engine.ErrNotFound) {
			// Empty catalog.
			return nil
		}
		if err != nil {
			return fmt.Errorf("find oldest: %w", err)
		}
		if err := tx.SetDefault(ctx, oldest.ID); err != nil {
			return fmt.Errorf("promote engine %d: %w", oldest.ID, err)
		}
		oldest.IsDefault = true
		promoted = &oldest
		return nil
	})
	if err != nil {
		return nil, err
	}
	return promoted, nil
}
