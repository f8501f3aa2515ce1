package tracking

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"storefront/api/models"
)

// ReconcileSession recomputes a session's counters from the event log and
// overwrites the summary with them. The incremental counters can drift when a
// record succeeds but its session merge fails; this makes them exact again.
func (w *Writer) ReconcileSession(ctx context.Context, sessionID string) (*models.SessionSummary, error) {
	if sessionID == "" {
		return nil, newValidationError("sessionId", "required", "sessionId is required")
	}

	totals, err := w.events.SessionTotals(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute totals for session %s: %w", sessionID, err)
	}
	if err := w.events.ResetSessionTotals(ctx, sessionID, totals); err != nil {
		return nil, fmt.Errorf("failed to reset session %s: %w", sessionID, err)
	}

	log.Info().Str("session_id", sessionID).
		Int64("page_views", totals.PageViews).
		Int64("purchases", totals.Purchases).
		Float64("purchase_total", totals.PurchaseTotal).
		Msg("Session reconciled from event log")
	return w.events.GetSession(ctx, sessionID)
}
