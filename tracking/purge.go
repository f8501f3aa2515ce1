package tracking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"storefront/api/metrics"
	"storefront/api/models"
	"storefront/api/store"
)

// Purger deletes all analytics state in bounded batches. Each batch commits
// on its own; a failure stops the run and reports what was already removed.
// Events written while a purge is running may survive it.
type Purger struct {
	store     store.BatchDeleter
	mirror    Mirror
	guard     Guard
	batchSize int
	mu        sync.Mutex
}

// NewPurger builds a purger. mirror and guard may be nil.
func NewPurger(s store.BatchDeleter, batchSize int, mirror Mirror, guard Guard) *Purger {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Purger{store: s, mirror: mirror, guard: guard, batchSize: batchSize}
}

// PurgeAll removes every session summary and event record, then the
// reporting mirror and dedup claims. A second call while one is running
// returns ErrPurgeInProgress.
func (p *Purger) PurgeAll(ctx context.Context) (models.PurgeResult, error) {
	if !p.mu.TryLock() {
		return models.PurgeResult{}, ErrPurgeInProgress
	}
	defer p.mu.Unlock()

	start := time.Now()
	var res models.PurgeResult
	defer func() {
		metrics.RecordPurge(res.SessionsDeleted, res.PageViewsDeleted, time.Since(start))
	}()

	if err := p.drain(ctx, p.store.DeleteSessionBatch, &res.SessionsDeleted); err != nil {
		return res, p.fail(res, err)
	}
	if err := p.drain(ctx, p.store.DeleteEventBatch, &res.PageViewsDeleted); err != nil {
		return res, p.fail(res, err)
	}

	if p.mirror != nil {
		if err := p.mirror.Truncate(ctx); err != nil {
			return res, p.fail(res, err)
		}
	}
	if p.guard != nil {
		if err := p.guard.Reset(ctx); err != nil {
			return res, p.fail(res, fmt.Errorf("failed to reset dedup claims: %w", err))
		}
	}

	log.Info().
		Int("sessions_deleted", res.SessionsDeleted).
		Int("events_deleted", res.PageViewsDeleted).
		Dur("took", time.Since(start)).
		Msg("Analytics purge complete")
	return res, nil
}

func (p *Purger) drain(ctx context.Context, deleteBatch func(context.Context, int) (int, error), total *int) error {
	for batch := 1; ; batch++ {
		n, err := deleteBatch(ctx, p.batchSize)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		*total += n
		log.Debug().Int("batch", batch).Int("deleted", n).Msg("Purge batch committed")
	}
}

func (p *Purger) fail(res models.PurgeResult, err error) error {
	log.Error().Err(err).
		Int("sessions_deleted", res.SessionsDeleted).
		Int("events_deleted", res.PageViewsDeleted).
		Msg("Analytics purge failed partway")
	return &PurgeError{Partial: res, Err: err}
}
