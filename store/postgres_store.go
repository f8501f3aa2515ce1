package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"storefront/api/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS analytics_sessions (
	session_id      TEXT PRIMARY KEY,
	page_view_count BIGINT NOT NULL DEFAULT 0,
	purchase_count  BIGINT NOT NULL DEFAULT 0,
	purchase_total  DOUBLE PRECISION NOT NULL DEFAULT 0,
	first_seen      TIMESTAMPTZ NOT NULL,
	last_seen       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS analytics_page_views (
	event_id   TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	path       TEXT NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	ts         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_analytics_page_views_session ON analytics_page_views(session_id);

CREATE TABLE IF NOT EXISTS analytics_purchases (
	order_id   TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	total      DOUBLE PRECISION NOT NULL,
	items      JSONB NOT NULL,
	ts         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_analytics_purchases_session ON analytics_purchases(session_id);
`

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the analytics tables when they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to create analytics schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertPageView(ctx context.Context, ev models.PageViewEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analytics_page_views (event_id, session_id, path, title, ts)
		VALUES ($1, $2, $3, $4, $5)
	`, ev.EventID, ev.SessionID, ev.Path, ev.Title, ev.Timestamp)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("failed to insert page view: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertPurchase(ctx context.Context, ev models.PurchaseEvent) (bool, error) {
	items, err := json.Marshal(ev.Items)
	if err != nil {
		return false, fmt.Errorf("failed to encode purchase items: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO analytics_purchases (order_id, session_id, total, items, ts)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (order_id) DO NOTHING
	`, ev.OrderID, ev.SessionID, ev.Total, items, ev.Timestamp)
	if err != nil {
		return false, fmt.Errorf("failed to insert purchase %s: %w", ev.OrderID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *PostgresStore) HasPurchase(ctx context.Context, orderID string) (bool, error) {
	var found bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM analytics_purchases WHERE order_id = $1)`, orderID,
	).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("failed to look up purchase %s: %w", orderID, err)
	}
	return found, nil
}

const sessionTotalsQuery = `
	WITH events AS (
		SELECT ts, 0::DOUBLE PRECISION AS total, FALSE AS purchase FROM analytics_page_views WHERE session_id = $1
		UNION ALL
		SELECT ts, total, TRUE FROM analytics_purchases WHERE session_id = $1
	)
	SELECT
		count(*) FILTER (WHERE NOT purchase),
		count(*) FILTER (WHERE purchase),
		coalesce(sum(total), 0),
		min(ts),
		max(ts)
	FROM events
`

func (s *PostgresStore) SessionTotals(ctx context.Context, sessionID string) (models.SessionTotals, error) {
	var (
		totals      models.SessionTotals
		first, last sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, sessionTotalsQuery, sessionID).
		Scan(&totals.PageViews, &totals.Purchases, &totals.PurchaseTotal, &first, &last)
	if err != nil {
		return totals, fmt.Errorf("failed to compute session totals: %w", err)
	}
	totals.FirstSeen = first.Time
	totals.LastSeen = last.Time
	return totals, nil
}

func (s *PostgresStore) MergeSession(ctx context.Context, sessionID string, delta models.SessionDelta) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analytics_sessions (session_id, page_view_count, purchase_count, purchase_total, first_seen, last_seen)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (session_id) DO UPDATE SET
			page_view_count = analytics_sessions.page_view_count + EXCLUDED.page_view_count,
			purchase_count  = analytics_sessions.purchase_count + EXCLUDED.purchase_count,
			purchase_total  = analytics_sessions.purchase_total + EXCLUDED.purchase_total,
			first_seen      = LEAST(analytics_sessions.first_seen, EXCLUDED.first_seen),
			last_seen       = GREATEST(analytics_sessions.last_seen, EXCLUDED.last_seen)
	`, sessionID, delta.PageViews, delta.Purchases, delta.Revenue, delta.At)
	if err != nil {
		return fmt.Errorf("failed to merge session %s: %w", sessionID, err)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (*models.SessionSummary, error) {
	summary := &models.SessionSummary{}
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, page_view_count, purchase_count, purchase_total, first_seen, last_seen
		FROM analytics_sessions
		WHERE session_id = $1
	`, sessionID).Scan(
		&summary.SessionID,
		&summary.PageViewCount,
		&summary.PurchaseCount,
		&summary.PurchaseTotal,
		&summary.FirstSeen,
		&summary.LastSeen,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}
	return summary, nil
}

const (
	resetSessionQuery = `
		UPDATE analytics_sessions
		SET page_view_count = $2, purchase_count = $3, purchase_total = $4
		WHERE session_id = $1
	`
	upsertSessionQuery = `
		INSERT INTO analytics_sessions (session_id, page_view_count, purchase_count, purchase_total, first_seen, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id) DO UPDATE SET
			page_view_count = EXCLUDED.page_view_count,
			purchase_count  = EXCLUDED.purchase_count,
			purchase_total  = EXCLUDED.purchase_total,
			first_seen      = LEAST(analytics_sessions.first_seen, EXCLUDED.first_seen),
			last_seen       = GREATEST(analytics_sessions.last_seen, EXCLUDED.last_seen)
	`
)

func (s *PostgresStore) ResetSessionTotals(ctx context.Context, sessionID string, totals models.SessionTotals) error {
	if !totals.Empty() {
		_, err := s.db.ExecContext(ctx, upsertSessionQuery, sessionID,
			totals.PageViews, totals.Purchases, totals.PurchaseTotal, totals.FirstSeen, totals.LastSeen)
		if err != nil {
			return fmt.Errorf("failed to reset session %s: %w", sessionID, err)
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx, resetSessionQuery, sessionID, totals.PageViews, totals.Purchases, totals.PurchaseTotal)
	if err != nil {
		return fmt.Errorf("failed to reset session %s: %w", sessionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteSessionBatch(ctx context.Context, limit int) (int, error) {
	return s.inTx(ctx, func(tx *sql.Tx) (int, error) {
		return deletePostgresBatch(ctx, tx, "analytics_sessions", "session_id", limit)
	})
}

func (s *PostgresStore) DeleteEventBatch(ctx context.Context, limit int) (int, error) {
	return s.inTx(ctx, func(tx *sql.Tx) (int, error) {
		deleted, err := deletePostgresBatch(ctx, tx, "analytics_page_views", "event_id", limit)
		if err != nil || deleted >= limit {
			return deleted, err
		}
		more, err := deletePostgresBatch(ctx, tx, "analytics_purchases", "order_id", limit-deleted)
		return deleted + more, err
	})
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(tx *sql.Tx) (int, error)) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	n, err := fn(tx)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit batch delete: %w", err)
	}
	return n, nil
}

// table and key are package constants, never caller input.
func deletePostgresBatch(ctx context.Context, tx *sql.Tx, table, key string, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}
	res, err := tx.ExecContext(ctx, batchDeleteQuery(table, key), limit)
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s batch: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return int(n), nil
}

func batchDeleteQuery(table, key string) string {
	return fmt.Sprintf(`
		DELETE FROM %[1]s
		WHERE %[2]s IN (SELECT %[2]s FROM %[1]s LIMIT $1)
	`, table, key)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
