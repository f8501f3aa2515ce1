package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"storefront/api/metrics"
	"storefront/api/models"
	"storefront/api/store"
)

// Mirror receives recorded events for reporting.
type Mirror interface {
	InsertEvents(ctx context.Context, events []models.ReportEvent) error
	Truncate(ctx context.Context) error
}

// Publisher streams recorded events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, ev models.ReportEvent) error
}

// Writer is the ingestion entry point. It validates input, appends to the
// event log and folds the event into its session summary. Mirror and stream
// writes happen after a successful record and never fail the call.
type Writer struct {
	events    store.EventStore
	guard     Guard
	mirror    Mirror
	publisher Publisher
	now       func() time.Time
	newID     func() string
}

type Option func(*Writer)

func WithGuard(g Guard) Option         { return func(w *Writer) { w.guard = g } }
func WithMirror(m Mirror) Option       { return func(w *Writer) { w.mirror = m } }
func WithPublisher(p Publisher) Option { return func(w *Writer) { w.publisher = p } }

func WithClock(now func() time.Time) Option {
	return func(w *Writer) { w.now = now }
}

func NewWriter(events store.EventStore, opts ...Option) *Writer {
	w := &Writer{
		events: events,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Writer) RecordPageView(ctx context.Context, in PageViewInput) (Result, error) {
	in.Path = NormalizePath(in.Path)
	if err := validateStruct(in); err != nil {
		metrics.RecordEvent(string(models.EventTypePageView), string(OutcomeInvalid))
		return Result{Outcome: OutcomeInvalid}, err
	}

	ev := models.PageViewEvent{
		EventID:   w.newID(),
		SessionID: in.SessionID,
		Path:      in.Path,
		Title:     in.Title,
		Timestamp: w.now().UTC(),
	}

	if err := w.events.InsertPageView(ctx, ev); err != nil {
		return w.unavailable(models.EventTypePageView, fmt.Errorf("failed to append page view: %w", err))
	}
	delta := models.SessionDelta{PageViews: 1, At: ev.Timestamp}
	if err := w.events.MergeSession(ctx, ev.SessionID, delta); err != nil {
		log.Error().Err(err).Str("session_id", ev.SessionID).Str("event_id", ev.EventID).
			Msg("Page view logged but session summary not updated")
		return w.unavailable(models.EventTypePageView, fmt.Errorf("failed to merge session: %w", err))
	}

	w.forward(ctx, models.ReportEvent{
		EventID:   ev.EventID,
		EventType: models.EventTypePageView,
		SessionID: ev.SessionID,
		Path:      ev.Path,
		Title:     ev.Title,
		Timestamp: ev.Timestamp,
	})

	metrics.RecordEvent(string(models.EventTypePageView), string(OutcomeRecorded))
	return Result{Outcome: OutcomeRecorded, EventID: ev.EventID}, nil
}

// RecordPurchase records an order at most once. The durable order-id key is
// authoritative: a duplicate never reaches the session summary. A lost guard
// claim is confirmed against the log before the order is dropped, since the
// claim may belong to an attempt that failed or to data since purged.
func (w *Writer) RecordPurchase(ctx context.Context, in PurchaseInput) (Result, error) {
	if err := validateStruct(in); err != nil {
		metrics.RecordEvent(string(models.EventTypePurchase), string(OutcomeInvalid))
		return Result{Outcome: OutcomeInvalid}, err
	}

	claimed := false
	if w.guard != nil {
		ok, err := w.guard.Claim(ctx, in.OrderID)
		switch {
		case err != nil:
			metrics.DedupGuardErrors.Inc()
			log.Warn().Err(err).Str("order_id", in.OrderID).Msg("Dedup guard unavailable, relying on durable check")
		case !ok:
			found, err := w.events.HasPurchase(ctx, in.OrderID)
			if err == nil && found {
				return w.duplicate(in.OrderID, "guard")
			}
			if err != nil {
				log.Warn().Err(err).Str("order_id", in.OrderID).Msg("Could not confirm claimed order, attempting insert")
			}
		default:
			claimed = true
		}
	}

	ev := models.PurchaseEvent{
		OrderID:   in.OrderID,
		SessionID: in.SessionID,
		Total:     in.Total,
		Items:     append([]models.LineItem(nil), in.Items...),
		Timestamp: w.now().UTC(),
	}

	inserted, err := w.events.InsertPurchase(ctx, ev)
	if err != nil {
		if claimed {
			if rerr := w.guard.Release(ctx, in.OrderID); rerr != nil {
				log.Warn().Err(rerr).Str("order_id", in.OrderID).Msg("Failed to release dedup claim")
			}
		}
		return w.unavailable(models.EventTypePurchase, fmt.Errorf("failed to append purchase: %w", err))
	}
	if !inserted {
		return w.duplicate(in.OrderID, "store")
	}

	delta := models.SessionDelta{Purchases: 1, Revenue: ev.Total, At: ev.Timestamp}
	if err := w.events.MergeSession(ctx, ev.SessionID, delta); err != nil {
		log.Error().Err(err).Str("session_id", ev.SessionID).Str("order_id", ev.OrderID).
			Msg("Purchase logged but session summary not updated")
		return w.unavailable(models.EventTypePurchase, fmt.Errorf("failed to merge session: %w", err))
	}

	w.forward(ctx, models.ReportEvent{
		EventID:   ev.OrderID,
		EventType: models.EventTypePurchase,
		SessionID: ev.SessionID,
		OrderID:   ev.OrderID,
		Revenue:   ev.Total,
		Timestamp: ev.Timestamp,
	})

	metrics.RecordEvent(string(models.EventTypePurchase), string(OutcomeRecorded))
	return Result{Outcome: OutcomeRecorded, EventID: ev.OrderID}, nil
}

type BatchResult struct {
	Index   int     `json:"index"`
	Outcome Outcome `json:"outcome"`
	Error   string  `json:"error,omitempty"`
}

// RecordBatch records each envelope independently; one bad element does not
// abort the rest.
func (w *Writer) RecordBatch(ctx context.Context, events []EventEnvelope) []BatchResult {
	results := make([]BatchResult, len(events))
	for i, env := range events {
		var (
			res Result
			err error
		)
		switch {
		case env.PageView != nil:
			res, err = w.RecordPageView(ctx, *env.PageView)
		case env.Purchase != nil:
			res, err = w.RecordPurchase(ctx, *env.Purchase)
		default:
			res, err = Result{Outcome: OutcomeInvalid}, newValidationError("type", "oneof",
				fmt.Sprintf("type must be page_view or purchase, got %q", env.Type))
		}
		results[i] = BatchResult{Index: i, Outcome: res.Outcome}
		if err != nil {
			results[i].Error = err.Error()
		}
	}
	return results
}

func (w *Writer) duplicate(orderID, source string) (Result, error) {
	log.Debug().Str("order_id", orderID).Str("source", source).Msg("Duplicate purchase ignored")
	metrics.RecordEvent(string(models.EventTypePurchase), string(OutcomeDuplicate))
	return Result{Outcome: OutcomeDuplicate, EventID: orderID}, nil
}

func (w *Writer) unavailable(eventType models.EventType, err error) (Result, error) {
	metrics.RecordEvent(string(eventType), string(OutcomeUnavailable))
	if !errors.Is(err, store.ErrStoreUnavailable) {
		err = fmt.Errorf("%w: %w", store.ErrStoreUnavailable, err)
	}
	return Result{Outcome: OutcomeUnavailable}, err
}

func (w *Writer) forward(ctx context.Context, ev models.ReportEvent) {
	if w.mirror != nil {
		if err := w.mirror.InsertEvents(ctx, []models.ReportEvent{ev}); err != nil {
			metrics.SideEffectFailures.WithLabelValues("mirror").Inc()
			log.Warn().Err(err).Str("event_id", ev.EventID).Msg("Failed to mirror event to reporting store")
		}
	}
	if w.publisher != nil {
		if err := w.publisher.Publish(ctx, ev); err != nil {
			metrics.SideEffectFailures.WithLabelValues("stream").Inc()
			log.Warn().Err(err).Str("event_id", ev.EventID).Msg("Failed to publish event")
		}
	}
}
