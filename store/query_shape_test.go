package store

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"

	"storefront/api/models"
)

func TestBatchDeleteQueryIsBoundedBySubselect(t *testing.T) {
	q := strings.Join(strings.Fields(batchDeleteQuery("analytics_purchases", "order_id")), " ")
	assert.Equal(t,
		"DELETE FROM analytics_purchases WHERE order_id IN (SELECT order_id FROM analytics_purchases LIMIT $1)", q)
}

func TestUpsertSessionQueryOverwritesCountersAndWidensRange(t *testing.T) {
	q := strings.Join(strings.Fields(upsertSessionQuery), " ")
	assert.Contains(t, q, "ON CONFLICT (session_id) DO UPDATE SET")
	assert.Contains(t, q, "page_view_count = EXCLUDED.page_view_count")
	assert.Contains(t, q, "first_seen = LEAST(analytics_sessions.first_seen, EXCLUDED.first_seen)")
	assert.Contains(t, q, "last_seen = GREATEST(analytics_sessions.last_seen, EXCLUDED.last_seen)")
	assert.NotContains(t, q, "analytics_sessions.page_view_count +")
}

func TestResetUpdate(t *testing.T) {
	at := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

	update, upsert := resetUpdate(models.SessionTotals{})
	assert.False(t, upsert)
	assert.NotContains(t, update, "$min")
	assert.Equal(t, bson.M{"page_view_count": int64(0), "purchase_count": int64(0), "purchase_total": 0.0}, update["$set"])

	update, upsert = resetUpdate(models.SessionTotals{PageViews: 2, FirstSeen: at, LastSeen: at.Add(time.Minute)})
	assert.True(t, upsert)
	assert.Equal(t, bson.M{"first_seen": at}, update["$min"])
	assert.Equal(t, bson.M{"last_seen": at.Add(time.Minute)}, update["$max"])
}

func TestSessionTotalsPipeline(t *testing.T) {
	p := sessionTotalsPipeline("s-1")
	if assert.Len(t, p, 2) {
		assert.Equal(t, bson.M{"session_id": "s-1"}, p[0]["$match"])
		group := p[1]["$group"].(bson.M)
		assert.Equal(t, bson.M{"$min": "$timestamp"}, group["first"])
		assert.Equal(t, bson.M{"$max": "$timestamp"}, group["last"])
	}
}

func TestCombineGroups(t *testing.T) {
	base := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		views, orders sessionGroup
		want          models.SessionTotals
	}{
		{"empty", sessionGroup{}, sessionGroup{}, models.SessionTotals{}},
		{
			"orders only",
			sessionGroup{},
			sessionGroup{Count: 1, Total: 4, First: base, Last: base},
			models.SessionTotals{Purchases: 1, PurchaseTotal: 4, FirstSeen: base, LastSeen: base},
		},
		{
			"both",
			sessionGroup{Count: 3, First: base.Add(time.Minute), Last: base.Add(time.Hour)},
			sessionGroup{Count: 1, Total: 4, First: base, Last: base},
			models.SessionTotals{PageViews: 3, Purchases: 1, PurchaseTotal: 4, FirstSeen: base, LastSeen: base.Add(time.Hour)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, combineGroups(tt.views, tt.orders))
		})
	}
}
