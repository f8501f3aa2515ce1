// api/store/report_store.go
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"storefront/api/database"
	"storefront/api/models"
	"storefront/api/utils"
)

const reportSchema = `
CREATE TABLE IF NOT EXISTS analytics_events (
	event_id   String,
	event_type LowCardinality(String),
	session_id String,
	order_id   String,
	page_path  String,
	page_title String,
	revenue    Float64,
	timestamp  DateTime64(3, 'UTC')
) ENGINE = ReplacingMergeTree
ORDER BY (event_type, event_id)
`

// ReportStore mirrors recorded events into ClickHouse for time-series
// reporting. The primary EventStore stays the source of truth; the mirror is
// written best-effort.
type ReportStore struct {
	DB *database.ClickHouseClient
}

type EventTypeCountByTime struct {
	Time      time.Time `json:"time"`
	EventType *string   `json:"eventType,omitempty"`
	Count     uint64    `json:"count"`
}

func NewReportStore(chClient *database.ClickHouseClient) *ReportStore {
	return &ReportStore{
		DB: chClient,
	}
}

func (s *ReportStore) EnsureSchema(ctx context.Context) error {
	if err := s.DB.Conn.Exec(ctx, reportSchema); err != nil {
		return fmt.Errorf("failed to create analytics_events table: %w", err)
	}
	return nil
}

func (s *ReportStore) InsertEvents(ctx context.Context, events []models.ReportEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.DB.Conn.PrepareBatch(ctx, `
		INSERT INTO analytics_events (
			event_id, event_type, session_id, order_id, page_path, page_title, revenue, timestamp
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}

	for _, event := range events {
		err := batch.Append(
			event.EventID,
			string(event.EventType),
			event.SessionID,
			event.OrderID,
			event.Path,
			event.Title,
			event.Revenue,
			event.Timestamp,
		)
		if err != nil {
			log.Warn().Err(err).Str("event_id", event.EventID).Msg("Error appending event to report batch")
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	log.Debug().Int("count", len(events)).Msg("Mirrored analytics events to ClickHouse")
	return nil
}

// Truncate drops every mirrored event.
func (s *ReportStore) Truncate(ctx context.Context) error {
	if err := s.DB.Conn.Exec(ctx, `TRUNCATE TABLE IF EXISTS analytics_events`); err != nil {
		return fmt.Errorf("failed to truncate analytics_events: %w", err)
	}
	return nil
}

func (s *ReportStore) GetEventCountsOverTime(ctx context.Context, interval string, start, end time.Time, eventTypeFilter string) ([]EventTypeCountByTime, error) {
	if !utils.IsValidInterval(interval) {
		return nil, fmt.Errorf("invalid interval: %s", interval)
	}

	args := []interface{}{start, end}
	selectCols := fmt.Sprintf("toStartOf%s(timestamp) as time_bucket, count() as total_events", interval)
	groupByCols := "time_bucket"
	whereClause := "WHERE timestamp >= ? AND timestamp <= ?"
	orderByCols := "time_bucket ASC"
	isFilteringByType := eventTypeFilter != ""

	if isFilteringByType {
		selectCols += ", event_type"
		groupByCols += ", event_type"
		whereClause += " AND event_type = ?"
		args = append(args, eventTypeFilter)
		orderByCols += ", event_type ASC"
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM analytics_events FINAL
		%s
		GROUP BY %s
		ORDER BY %s
	`, selectCols, whereClause, groupByCols, orderByCols)

	rows, err := s.DB.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query event counts over time: %w", err)
	}
	defer rows.Close()

	var results []EventTypeCountByTime
	for rows.Next() {
		var (
			timeBucket    time.Time
			count         uint64
			eventTypeDB   string
			currentResult EventTypeCountByTime
		)

		if isFilteringByType {
			if err := rows.Scan(&timeBucket, &count, &eventTypeDB); err != nil {
				log.Warn().Err(err).Msg("Error scanning event count row")
				continue
			}
			currentResult.EventType = &eventTypeDB
		} else {
			if err := rows.Scan(&timeBucket, &count); err != nil {
				log.Warn().Err(err).Msg("Error scanning event count row")
				continue
			}
		}

		currentResult.Time = timeBucket
		currentResult.Count = count
		results = append(results, currentResult)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during event counts over time query: %w", err)
	}

	return results, nil
}

func (s *ReportStore) GetUniqueSessionsOverTime(ctx context.Context, interval string, start, end time.Time) ([]EventTypeCountByTime, error) {
	if !utils.IsValidInterval(interval) {
		return nil, fmt.Errorf("invalid interval: %s", interval)
	}

	query := fmt.Sprintf(`
		SELECT toStartOf%s(timestamp) AS time_bucket, uniq(session_id) AS unique_sessions
		FROM analytics_events FINAL
		WHERE timestamp >= ? AND timestamp <= ?
		GROUP BY time_bucket
		ORDER BY time_bucket ASC
	`, interval)

	rows, err := s.DB.Conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query unique sessions over time: %w", err)
	}
	defer rows.Close()

	var results []EventTypeCountByTime
	for rows.Next() {
		var timeBucket time.Time
		var uniqueSessions uint64
		if err := rows.Scan(&timeBucket, &uniqueSessions); err != nil {
			log.Warn().Err(err).Msg("Error scanning unique sessions row")
			continue
		}
		results = append(results, EventTypeCountByTime{
			Time:  timeBucket,
			Count: uniqueSessions,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for unique sessions: %w", err)
	}

	return results, nil
}

func (s *ReportStore) GetTopNPagePaths(ctx context.Context, start, end time.Time, limit uint64) ([]models.TopPathResult, error) {
	if limit == 0 {
		limit = 10
	}

	rows, err := s.DB.Conn.Query(ctx, `
		SELECT page_path, count() as view_count
		FROM analytics_events FINAL
		WHERE event_type = 'page_view' AND timestamp >= ? AND timestamp <= ?
		GROUP BY page_path
		ORDER BY view_count DESC
		LIMIT ?
	`, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top page paths: %w", err)
	}
	defer rows.Close()

	var results []models.TopPathResult
	for rows.Next() {
		var pagePath string
		var count uint64
		if err := rows.Scan(&pagePath, &count); err != nil {
			log.Warn().Err(err).Msg("Error scanning top page path row")
			continue
		}
		results = append(results, models.TopPathResult{
			PagePath: pagePath,
			Count:    count,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for top page paths: %w", err)
	}

	return results, nil
}

func (s *ReportStore) GetRevenueOverTime(ctx context.Context, interval string, start, end time.Time) ([]models.RevenueByTime, error) {
	if !utils.IsValidInterval(interval) {
		return nil, fmt.Errorf("invalid interval: %s", interval)
	}

	query := fmt.Sprintf(`
		SELECT toStartOf%s(timestamp) AS time_bucket, sum(revenue) AS revenue, count() AS orders
		FROM analytics_events FINAL
		WHERE event_type = 'purchase' AND timestamp >= ? AND timestamp <= ?
		GROUP BY time_bucket
		ORDER BY time_bucket ASC
	`, interval)

	rows, err := s.DB.Conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query revenue over time: %w", err)
	}
	defer rows.Close()

	var results []models.RevenueByTime
	for rows.Next() {
		var r models.RevenueByTime
		if err := rows.Scan(&r.Time, &r.Revenue, &r.Orders); err != nil {
			log.Warn().Err(err).Msg("Error scanning revenue row")
			continue
		}
		results = append(results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for revenue: %w", err)
	}

	return results, nil
}
