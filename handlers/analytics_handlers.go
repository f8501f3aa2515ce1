// api/handlers/analytics_handlers.go
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"storefront/api/models"
	"storefront/api/store"
	"storefront/api/tracking"
)

// maxBatchEvents bounds one POST /api/track body.
const maxBatchEvents = 500

type AnalyticsHandlers struct {
	Writer   *tracking.Writer
	Purger   *tracking.Purger
	Sessions store.SessionAggregator
	Products tracking.ProductLookup
}

func NewAnalyticsHandlers(w *tracking.Writer, p *tracking.Purger, sessions store.SessionAggregator, products tracking.ProductLookup) *AnalyticsHandlers {
	return &AnalyticsHandlers{
		Writer:   w,
		Purger:   p,
		Sessions: sessions,
		Products: products,
	}
}

func (h *AnalyticsHandlers) TrackPageView(c *gin.Context) {
	var in tracking.PageViewInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Writer.RecordPageView(ctx, in)
	respondRecord(c, res, err)
}

func (h *AnalyticsHandlers) TrackPurchase(c *gin.Context) {
	var in tracking.PurchaseInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Writer.RecordPurchase(ctx, in)
	respondRecord(c, res, err)
}

// TrackOrder records the purchase implied by an order confirmation.
func (h *AnalyticsHandlers) TrackOrder(c *gin.Context) {
	var order models.Order
	if err := c.ShouldBindJSON(&order); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Writer.RecordOrder(ctx, order, h.Products)
	respondRecord(c, res, err)
}

// TrackBatch accepts an array of tagged events and reports a result per element.
func (h *AnalyticsHandlers) TrackBatch(c *gin.Context) {
	var events []tracking.EventEnvelope
	if err := c.ShouldBindJSON(&events); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if len(events) > maxBatchEvents {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Too many events in one batch", "max": maxBatchEvents})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	c.JSON(http.StatusOK, gin.H{"results": h.Writer.RecordBatch(ctx, events)})
}

func respondRecord(c *gin.Context, res tracking.Result, err error) {
	var verr *tracking.ValidationError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, res)
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event", "details": verr.Fields})
	case errors.Is(err, store.ErrStoreUnavailable):
		log.Warn().Err(err).Str("route", c.FullPath()).Msg("Event dropped, store unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Analytics store unavailable"})
	default:
		log.Error().Err(err).Str("route", c.FullPath()).Msg("Failed to record event")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record event"})
	}
}

// DeleteAnalytics purges every session summary and event record.
func (h *AnalyticsHandlers) DeleteAnalytics(c *gin.Context) {
	log.Warn().Str("by", c.GetString("user_email")).Msg("Analytics purge requested")

	res, err := h.Purger.PurgeAll(c.Request.Context())
	if err != nil {
		if errors.Is(err, tracking.ErrPurgeInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": "A purge is already running"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":            "Failed to purge analytics data",
			"sessionsDeleted":  res.SessionsDeleted,
			"pageViewsDeleted": res.PageViewsDeleted,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"message":          "All analytics data deleted",
		"sessionsDeleted":  res.SessionsDeleted,
		"pageViewsDeleted": res.PageViewsDeleted,
	})
}

func (h *AnalyticsHandlers) GetSession(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	summary, err := h.Sessions.GetSession(ctx, c.Param("id"))
	if err != nil {
		respondStoreError(c, err, "Session not found", "Failed to retrieve session")
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *AnalyticsHandlers) ReconcileSession(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	summary, err := h.Writer.ReconcileSession(ctx, c.Param("id"))
	if err != nil {
		respondStoreError(c, err, "Session not found", "Failed to reconcile session")
		return
	}
	c.JSON(http.StatusOK, summary)
}

func respondStoreError(c *gin.Context, err error, notFound, failed string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound})
	case errors.Is(err, store.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Store unavailable"})
	default:
		log.Error().Err(err).Str("route", c.FullPath()).Msg(failed)
		c.JSON(http.StatusInternalServerError, gin.H{"error": failed})
	}
}
