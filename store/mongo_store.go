package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/api/database"
	"storefront/api/models"
)

const (
	pageViewsCollection = "page_views"
	purchasesCollection = "purchases"
	sessionsCollection  = "sessions"
)

// MongoStore keeps the event log and session summaries in MongoDB. Purchases
// use the order id as _id, so the primary key index enforces at-most-once.
// Batch deletes run in transactions and need a replica set.
type MongoStore struct {
	client    *mongo.Client
	pageViews *mongo.Collection
	purchases *mongo.Collection
	sessions  *mongo.Collection
}

func NewMongoStore(db *database.MongoDB) (*MongoStore, error) {
	s := &MongoStore{
		client:    db.Client,
		pageViews: db.Collection(pageViewsCollection),
		purchases: db.Collection(purchasesCollection),
		sessions:  db.Collection(sessionsCollection),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bySession := []mongo.IndexModel{
		{Keys: bson.D{{Key: "session_id", Value: 1}}},
		{Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "timestamp", Value: -1}}},
	}
	if _, err := s.pageViews.Indexes().CreateMany(ctx, bySession); err != nil {
		return nil, fmt.Errorf("failed to create page view indexes: %w", err)
	}
	if _, err := s.purchases.Indexes().CreateMany(ctx, bySession[:1]); err != nil {
		return nil, fmt.Errorf("failed to create purchase indexes: %w", err)
	}

	return s, nil
}

func (s *MongoStore) InsertPageView(ctx context.Context, ev models.PageViewEvent) error {
	if _, err := s.pageViews.InsertOne(ctx, ev); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("failed to insert page view: %w", err)
	}
	return nil
}

func (s *MongoStore) InsertPurchase(ctx context.Context, ev models.PurchaseEvent) (bool, error) {
	if _, err := s.purchases.InsertOne(ctx, ev); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert purchase %s: %w", ev.OrderID, err)
	}
	return true, nil
}

func (s *MongoStore) HasPurchase(ctx context.Context, orderID string) (bool, error) {
	n, err := s.purchases.CountDocuments(ctx, bson.M{"_id": orderID}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to look up purchase %s: %w", orderID, err)
	}
	return n > 0, nil
}

// sessionGroup is one collection's contribution to a session's totals.
type sessionGroup struct {
	Count int64     `bson:"count"`
	Total float64   `bson:"total"`
	First time.Time `bson:"first"`
	Last  time.Time `bson:"last"`
}

func sessionTotalsPipeline(sessionID string) []bson.M {
	return []bson.M{
		{"$match": bson.M{"session_id": sessionID}},
		{"$group": bson.M{
			"_id":   nil,
			"count": bson.M{"$sum": 1},
			"total": bson.M{"$sum": "$total"},
			"first": bson.M{"$min": "$timestamp"},
			"last":  bson.M{"$max": "$timestamp"},
		}},
	}
}

func groupSession(ctx context.Context, coll *mongo.Collection, sessionID string) (sessionGroup, error) {
	var g sessionGroup
	cursor, err := coll.Aggregate(ctx, sessionTotalsPipeline(sessionID))
	if err != nil {
		return g, fmt.Errorf("failed to aggregate %s: %w", coll.Name(), err)
	}
	defer cursor.Close(ctx)

	if cursor.Next(ctx) {
		if err := cursor.Decode(&g); err != nil {
			return g, fmt.Errorf("failed to decode %s totals: %w", coll.Name(), err)
		}
	}
	if err := cursor.Err(); err != nil {
		return g, fmt.Errorf("cursor error during %s totals: %w", coll.Name(), err)
	}
	return g, nil
}

func (s *MongoStore) SessionTotals(ctx context.Context, sessionID string) (models.SessionTotals, error) {
	views, err := groupSession(ctx, s.pageViews, sessionID)
	if err != nil {
		return models.SessionTotals{}, err
	}
	orders, err := groupSession(ctx, s.purchases, sessionID)
	if err != nil {
		return models.SessionTotals{}, err
	}
	return combineGroups(views, orders), nil
}

func combineGroups(views, orders sessionGroup) models.SessionTotals {
	totals := models.SessionTotals{
		PageViews:     views.Count,
		Purchases:     orders.Count,
		PurchaseTotal: orders.Total,
	}
	for _, g := range []sessionGroup{views, orders} {
		if g.Count == 0 {
			continue
		}
		if totals.FirstSeen.IsZero() || g.First.Before(totals.FirstSeen) {
			totals.FirstSeen = g.First
		}
		if g.Last.After(totals.LastSeen) {
			totals.LastSeen = g.Last
		}
	}
	return totals
}

func (s *MongoStore) MergeSession(ctx context.Context, sessionID string, delta models.SessionDelta) error {
	update := bson.M{
		"$inc": bson.M{
			"page_view_count": delta.PageViews,
			"purchase_count":  delta.Purchases,
			"purchase_total":  delta.Revenue,
		},
		"$min": bson.M{"first_seen": delta.At},
		"$max": bson.M{"last_seen": delta.At},
	}
	_, err := s.sessions.UpdateByID(ctx, sessionID, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to merge session %s: %w", sessionID, err)
	}
	return nil
}

func (s *MongoStore) GetSession(ctx context.Context, sessionID string) (*models.SessionSummary, error) {
	var summary models.SessionSummary
	err := s.sessions.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&summary)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}
	return &summary, nil
}

// resetUpdate overwrites the counters. With an event range it also upserts,
// widening first_seen and last_seen to cover the log.
func resetUpdate(totals models.SessionTotals) (bson.M, bool) {
	update := bson.M{"$set": bson.M{
		"page_view_count": totals.PageViews,
		"purchase_count":  totals.Purchases,
		"purchase_total":  totals.PurchaseTotal,
	}}
	if totals.Empty() {
		return update, false
	}
	update["$min"] = bson.M{"first_seen": totals.FirstSeen}
	update["$max"] = bson.M{"last_seen": totals.LastSeen}
	return update, true
}

func (s *MongoStore) ResetSessionTotals(ctx context.Context, sessionID string, totals models.SessionTotals) error {
	update, upsert := resetUpdate(totals)
	res, err := s.sessions.UpdateByID(ctx, sessionID, update, options.Update().SetUpsert(upsert))
	if err != nil {
		return fmt.Errorf("failed to reset session %s: %w", sessionID, err)
	}
	if res.MatchedCount == 0 && res.UpsertedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) DeleteSessionBatch(ctx context.Context, limit int) (int, error) {
	return s.inTransaction(ctx, func(sc mongo.SessionContext) (int, error) {
		return deleteMongoBatch(sc, s.sessions, limit)
	})
}

func (s *MongoStore) DeleteEventBatch(ctx context.Context, limit int) (int, error) {
	return s.inTransaction(ctx, func(sc mongo.SessionContext) (int, error) {
		deleted, err := deleteMongoBatch(sc, s.pageViews, limit)
		if err != nil || deleted >= limit {
			return deleted, err
		}
		more, err := deleteMongoBatch(sc, s.purchases, limit-deleted)
		return deleted + more, err
	})
}

func (s *MongoStore) inTransaction(ctx context.Context, fn func(sc mongo.SessionContext) (int, error)) (int, error) {
	sess, err := s.client.StartSession()
	if err != nil {
		return 0, fmt.Errorf("failed to start session: %w", err)
	}
	defer sess.EndSession(ctx)

	res, err := sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return fn(sc)
	})
	if err != nil {
		return 0, fmt.Errorf("batch delete transaction failed: %w", err)
	}
	return res.(int), nil
}

func deleteMongoBatch(ctx context.Context, coll *mongo.Collection, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}
	opts := options.Find().SetProjection(bson.M{"_id": 1}).SetLimit(int64(limit))
	cursor, err := coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return 0, fmt.Errorf("failed to list %s batch: %w", coll.Name(), err)
	}

	var docs []struct {
		ID interface{} `bson:"_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return 0, fmt.Errorf("failed to decode %s batch: %w", coll.Name(), err)
	}
	if len(docs) == 0 {
		return 0, nil
	}

	ids := make([]interface{}, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	res, err := coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s batch: %w", coll.Name(), err)
	}
	return int(res.DeletedCount), nil
}
