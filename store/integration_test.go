//go:build integration

package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/api/database"
	"storefront/api/models"
)

// Run with: go test -tags integration ./store/...
// TEST_DATABASE_URL and TEST_MONGO_URI point at disposable instances; the
// Mongo one must be a replica set for the batch delete transactions.

func postgresUnderTest(t *testing.T) EventStore {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" || testing.Short() {
		t.Skip("Skipping: TEST_DATABASE_URL not set")
	}
	pg, err := database.NewPostgresDB(url)
	require.NoError(t, err)
	t.Cleanup(pg.Close)

	s := NewPostgresStore(pg.DB)
	require.NoError(t, s.EnsureSchema(context.Background()))
	drainAll(t, s)
	return s
}

func mongoUnderTest(t *testing.T) EventStore {
	t.Helper()
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" || testing.Short() {
		t.Skip("Skipping: TEST_MONGO_URI not set")
	}
	db, err := database.NewMongoDB(uri, fmt.Sprintf("storefront_test_%d", time.Now().UnixNano()))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.DB.Drop(context.Background())
		db.Close()
	})

	s, err := NewMongoStore(db)
	require.NoError(t, err)
	return s
}

func drainAll(t *testing.T, s BatchDeleter) {
	t.Helper()
	ctx := context.Background()
	for {
		n, err := s.DeleteSessionBatch(ctx, 1000)
		require.NoError(t, err)
		if n == 0 {
			break
		}
	}
	for {
		n, err := s.DeleteEventBatch(ctx, 1000)
		require.NoError(t, err)
		if n == 0 {
			break
		}
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s EventStore)) {
	t.Run("postgres", func(t *testing.T) { fn(t, postgresUnderTest(t)) })
	t.Run("mongo", func(t *testing.T) { fn(t, mongoUnderTest(t)) })
}

func TestIntegration_DeleteEventBatchSpillsIntoPurchases(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s EventStore) {
		ctx := context.Background()
		at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
		for i := 0; i < 3; i++ {
			require.NoError(t, s.InsertPageView(ctx, models.PageViewEvent{
				EventID: fmt.Sprintf("e-%d", i), SessionID: "s-1", Path: "/", Timestamp: at,
			}))
		}
		for i := 0; i < 2; i++ {
			ok, err := s.InsertPurchase(ctx, models.PurchaseEvent{
				OrderID: fmt.Sprintf("o-%d", i), SessionID: "s-1", Total: 5, Items: []models.LineItem{}, Timestamp: at,
			})
			require.NoError(t, err)
			require.True(t, ok)
		}

		n, err := s.DeleteEventBatch(ctx, 4)
		require.NoError(t, err)
		assert.Equal(t, 4, n)

		totals, err := s.SessionTotals(ctx, "s-1")
		require.NoError(t, err)
		assert.Zero(t, totals.PageViews)
		assert.Equal(t, int64(1), totals.Purchases)

		n, err = s.DeleteEventBatch(ctx, 4)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = s.DeleteEventBatch(ctx, 4)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestIntegration_PurchaseKeyAndMerge(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s EventStore) {
		ctx := context.Background()
		at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
		ev := models.PurchaseEvent{OrderID: "o-1", SessionID: "s-1", Total: 9.5, Items: []models.LineItem{}, Timestamp: at}

		ok, err := s.InsertPurchase(ctx, ev)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = s.InsertPurchase(ctx, ev)
		require.NoError(t, err)
		assert.False(t, ok)

		found, err := s.HasPurchase(ctx, "o-1")
		require.NoError(t, err)
		assert.True(t, found)

		require.NoError(t, s.MergeSession(ctx, "s-1", models.SessionDelta{PageViews: 1, At: at.Add(time.Minute)}))
		require.NoError(t, s.MergeSession(ctx, "s-1", models.SessionDelta{Purchases: 1, Revenue: 9.5, At: at}))

		summary, err := s.GetSession(ctx, "s-1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), summary.PageViewCount)
		assert.Equal(t, int64(1), summary.PurchaseCount)
		assert.Equal(t, 9.5, summary.PurchaseTotal)
		assert.True(t, at.Equal(summary.FirstSeen), summary.FirstSeen)
		assert.True(t, at.Add(time.Minute).Equal(summary.LastSeen), summary.LastSeen)
	})
}

func TestIntegration_ResetCreatesMissingSummary(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s EventStore) {
		ctx := context.Background()
		at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
		_, err := s.InsertPurchase(ctx, models.PurchaseEvent{
			OrderID: "o-9", SessionID: "s-9", Total: 3, Items: []models.LineItem{}, Timestamp: at,
		})
		require.NoError(t, err)

		assert.ErrorIs(t, s.ResetSessionTotals(ctx, "nobody", models.SessionTotals{}), ErrNotFound)

		totals, err := s.SessionTotals(ctx, "s-9")
		require.NoError(t, err)
		require.NoError(t, s.ResetSessionTotals(ctx, "s-9", totals))

		summary, err := s.GetSession(ctx, "s-9")
		require.NoError(t, err)
		assert.Equal(t, int64(1), summary.PurchaseCount)
		assert.Equal(t, 3.0, summary.PurchaseTotal)
		assert.True(t, at.Equal(summary.FirstSeen), summary.FirstSeen)
	})
}
