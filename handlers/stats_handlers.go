// api/handlers/stats_handlers.go
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"storefront/api/models"
	"storefront/api/store"
	"storefront/api/utils"
)

// ReportQuerier is the read side of the reporting mirror.
type ReportQuerier interface {
	GetEventCountsOverTime(ctx context.Context, interval string, start, end time.Time, eventType string) ([]store.EventTypeCountByTime, error)
	GetUniqueSessionsOverTime(ctx context.Context, interval string, start, end time.Time) ([]store.EventTypeCountByTime, error)
	GetTopNPagePaths(ctx context.Context, start, end time.Time, limit uint64) ([]models.TopPathResult, error)
	GetRevenueOverTime(ctx context.Context, interval string, start, end time.Time) ([]models.RevenueByTime, error)
}

type StatsHandlers struct {
	Reports ReportQuerier
}

func NewStatsHandlers(r ReportQuerier) *StatsHandlers {
	return &StatsHandlers{Reports: r}
}

const timeFormatHint = "Use RFC3339 (e.g., 2006-01-02T15:04:05Z)"

// parseRange reads start and end, defaulting to the last seven days.
func parseRange(c *gin.Context) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	start, end := now.Add(-7*24*time.Hour), now

	if v := c.Query("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return start, end, fmt.Errorf("Invalid 'start' timestamp format. %s", timeFormatHint)
		}
		start = t
	}
	if v := c.Query("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return start, end, fmt.Errorf("Invalid 'end' timestamp format. %s", timeFormatHint)
		}
		end = t
	}
	if end.Before(start) {
		return start, end, fmt.Errorf("'end' must not be before 'start'")
	}
	return start, end, nil
}

func parseInterval(c *gin.Context) (string, error) {
	interval := c.Query("interval")
	if interval == "" {
		return "", fmt.Errorf("interval query parameter is required (e.g., 'Day', 'Hour')")
	}
	if !utils.IsValidInterval(interval) {
		return "", fmt.Errorf("invalid interval %q", interval)
	}
	return interval, nil
}

func (h *StatsHandlers) GetEventCountsOverTime(c *gin.Context) {
	interval, err := parseInterval(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	start, end, err := parseRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	results, err := h.Reports.GetEventCountsOverTime(ctx, interval, start, end, c.Query("eventType"))
	if err != nil {
		log.Error().Err(err).Msg("Failed to get event counts over time")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve event statistics"})
		return
	}
	c.JSON(http.StatusOK, results)
}

func (h *StatsHandlers) GetUniqueSessionsOverTime(c *gin.Context) {
	interval, err := parseInterval(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	start, end, err := parseRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	results, err := h.Reports.GetUniqueSessionsOverTime(ctx, interval, start, end)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get unique sessions over time")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve unique session statistics"})
		return
	}
	c.JSON(http.StatusOK, results)
}

func (h *StatsHandlers) GetTopNPagePaths(c *gin.Context) {
	start, end, err := parseRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var limit uint64 = 10
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil || parsed == 0 || parsed > 1000 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'limit' parameter. Must be an integer between 1 and 1000."})
			return
		}
		limit = parsed
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	results, err := h.Reports.GetTopNPagePaths(ctx, start, end, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get top page paths")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve top page paths statistics"})
		return
	}
	c.JSON(http.StatusOK, results)
}

func (h *StatsHandlers) GetRevenueOverTime(c *gin.Context) {
	interval, err := parseInterval(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	start, end, err := parseRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	results, err := h.Reports.GetRevenueOverTime(ctx, interval, start, end)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get revenue over time")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve revenue statistics"})
		return
	}
	c.JSON(http.StatusOK, results)
}
