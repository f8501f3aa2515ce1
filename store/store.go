// api/store/store.go
package store

import (
	"context"
	"errors"

	"storefront/api/models"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrStoreUnavailable marks transient backend failures. Telemetry callers
	// log and drop; administrative callers surface it.
	ErrStoreUnavailable = errors.New("store unavailable")

	ErrDuplicateKey = errors.New("duplicate key")
)

// EventLog is the append-only log of page views and purchases.
type EventLog interface {
	InsertPageView(ctx context.Context, ev models.PageViewEvent) error

	// InsertPurchase stores ev under its OrderID. It returns false, without an
	// error, when a purchase for that order already exists.
	InsertPurchase(ctx context.Context, ev models.PurchaseEvent) (bool, error)

	HasPurchase(ctx context.Context, orderID string) (bool, error)

	// SessionTotals recomputes a session's counters and its first and last
	// event times from the log.
	SessionTotals(ctx context.Context, sessionID string) (models.SessionTotals, error)
}

// SessionAggregator maintains per-session summaries.
type SessionAggregator interface {
	// MergeSession folds delta into the summary, creating it when absent.
	// Implementations use increment operators so concurrent merges commute.
	MergeSession(ctx context.Context, sessionID string, delta models.SessionDelta) error

	GetSession(ctx context.Context, sessionID string) (*models.SessionSummary, error)

	// ResetSessionTotals overwrites the counters of a summary, creating it
	// from the totals' time range when absent. Zero totals for a session with
	// no summary return ErrNotFound.
	ResetSessionTotals(ctx context.Context, sessionID string, totals models.SessionTotals) error
}

// BatchDeleter removes records in bounded batches. Each call is one atomic
// unit and returns the number of records it removed; zero means empty.
type BatchDeleter interface {
	DeleteSessionBatch(ctx context.Context, limit int) (int, error)
	DeleteEventBatch(ctx context.Context, limit int) (int, error)
}

type EventStore interface {
	EventLog
	SessionAggregator
	BatchDeleter
}
