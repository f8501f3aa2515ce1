package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	gobreaker "github.com/sony/gobreaker/v2"

	"storefront/api/metrics"
	"storefront/api/models"
)

// BreakerStore wraps an EventStore with a circuit breaker. Backend failures
// surface as ErrStoreUnavailable; while the breaker is open calls fail fast
// without touching the backend.
type BreakerStore struct {
	inner EventStore
	cb    *gobreaker.CircuitBreaker[struct{}]
}

type BreakerSettings struct {
	Name             string
	MinRequests      uint32
	FailureRatio     float64
	Interval         time.Duration
	OpenTimeout      time.Duration
	HalfOpenRequests uint32
}

func DefaultBreakerSettings(name string) BreakerSettings {
	return BreakerSettings{
		Name:             name,
		MinRequests:      10,
		FailureRatio:     0.6,
		Interval:         time.Minute,
		OpenTimeout:      30 * time.Second,
		HalfOpenRequests: 3,
	}
}

func NewBreakerStore(inner EventStore, cfg BreakerSettings) *BreakerStore {
	metrics.CircuitBreakerState.WithLabelValues(cfg.Name).Set(0)

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrNotFound) ||
				errors.Is(err, ErrDuplicateKey) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Store circuit breaker state changed")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})

	return &BreakerStore{inner: inner, cb: cb}
}

func (b *BreakerStore) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerStore) do(fn func() error) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return classify(err)
}

// classify maps a backend error onto the store sentinels.
func classify(err error) error {
	switch {
	case err == nil,
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrDuplicateKey),
		errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
}

func (b *BreakerStore) InsertPageView(ctx context.Context, ev models.PageViewEvent) error {
	return b.do(func() error { return b.inner.InsertPageView(ctx, ev) })
}

func (b *BreakerStore) InsertPurchase(ctx context.Context, ev models.PurchaseEvent) (bool, error) {
	var inserted bool
	err := b.do(func() error {
		var err error
		inserted, err = b.inner.InsertPurchase(ctx, ev)
		return err
	})
	return inserted, err
}

func (b *BreakerStore) HasPurchase(ctx context.Context, orderID string) (bool, error) {
	var found bool
	err := b.do(func() error {
		var err error
		found, err = b.inner.HasPurchase(ctx, orderID)
		return err
	})
	return found, err
}

func (b *BreakerStore) SessionTotals(ctx context.Context, sessionID string) (models.SessionTotals, error) {
	var totals models.SessionTotals
	err := b.do(func() error {
		var err error
		totals, err = b.inner.SessionTotals(ctx, sessionID)
		return err
	})
	return totals, err
}

func (b *BreakerStore) MergeSession(ctx context.Context, sessionID string, delta models.SessionDelta) error {
	return b.do(func() error { return b.inner.MergeSession(ctx, sessionID, delta) })
}

func (b *BreakerStore) GetSession(ctx context.Context, sessionID string) (*models.SessionSummary, error) {
	var summary *models.SessionSummary
	err := b.do(func() error {
		var err error
		summary, err = b.inner.GetSession(ctx, sessionID)
		return err
	})
	return summary, err
}

func (b *BreakerStore) ResetSessionTotals(ctx context.Context, sessionID string, totals models.SessionTotals) error {
	return b.do(func() error { return b.inner.ResetSessionTotals(ctx, sessionID, totals) })
}

func (b *BreakerStore) DeleteSessionBatch(ctx context.Context, limit int) (int, error) {
	var n int
	err := b.do(func() error {
		var err error
		n, err = b.inner.DeleteSessionBatch(ctx, limit)
		return err
	})
	return n, err
}

func (b *BreakerStore) DeleteEventBatch(ctx context.Context, limit int) (int, error) {
	var n int
	err := b.do(func() error {
		var err error
		n, err = b.inner.DeleteEventBatch(ctx, limit)
		return err
	})
	return n, err
}
