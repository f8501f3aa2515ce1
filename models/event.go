// api/models/event.go
package models

import "time"

type EventType string

const (
	EventTypePageView EventType = "page_view"
	EventTypePurchase EventType = "purchase"
)

// PageViewEvent is an immutable page-view record in the event log.
type PageViewEvent struct {
	EventID   string    `json:"eventId" bson:"_id"`
	SessionID string    `json:"sessionId" bson:"session_id"`
	Path      string    `json:"path" bson:"path"`
	Title     string    `json:"title,omitempty" bson:"title,omitempty"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// PurchaseEvent is keyed by OrderID; at most one may exist per order.
type PurchaseEvent struct {
	OrderID   string     `json:"orderId" bson:"_id"`
	SessionID string     `json:"sessionId" bson:"session_id"`
	Total     float64    `json:"total" bson:"total"`
	Items     []LineItem `json:"items" bson:"items"`
	Timestamp time.Time  `json:"timestamp" bson:"timestamp"`
}

type LineItem struct {
	ProductID string  `json:"productId" bson:"product_id" validate:"required"`
	Name      string  `json:"name" bson:"name"`
	Price     float64 `json:"price" bson:"price" validate:"gte=0"`
	Quantity  int     `json:"quantity" bson:"quantity" validate:"gt=0"`
}

// SessionSummary is the mutable per-session aggregate.
type SessionSummary struct {
	SessionID     string    `json:"sessionId" bson:"_id"`
	PageViewCount int64     `json:"pageViewCount" bson:"page_view_count"`
	PurchaseCount int64     `json:"purchaseCount" bson:"purchase_count"`
	PurchaseTotal float64   `json:"purchaseTotal" bson:"purchase_total"`
	FirstSeen     time.Time `json:"firstSeen" bson:"first_seen"`
	LastSeen      time.Time `json:"lastSeen" bson:"last_seen"`
}

// SessionDelta is merged into a SessionSummary with commutative increments.
// At moves FirstSeen back and LastSeen forward; it never rewinds either.
type SessionDelta struct {
	PageViews int64
	Purchases int64
	Revenue   float64
	At        time.Time
}

// Apply merges d into s in place. Store backends without native increment
// operators use it under their own lock.
func (s *SessionSummary) Apply(d SessionDelta) {
	s.PageViewCount += d.PageViews
	s.PurchaseCount += d.Purchases
	s.PurchaseTotal += d.Revenue
	if s.FirstSeen.IsZero() || d.At.Before(s.FirstSeen) {
		s.FirstSeen = d.At
	}
	if d.At.After(s.LastSeen) {
		s.LastSeen = d.At
	}
}

// PurgeResult reports what a bulk purge removed. PageViewsDeleted counts every
// event record, page views and purchases alike.
type PurgeResult struct {
	SessionsDeleted  int `json:"sessionsDeleted"`
	PageViewsDeleted int `json:"pageViewsDeleted"`
}

// SessionTotals are recomputed from the event log during reconciliation.
type SessionTotals struct {
	PageViews     int64
	Purchases     int64
	PurchaseTotal float64
	FirstSeen     time.Time
	LastSeen      time.Time
}

// Empty reports whether the log holds no events for the session.
func (t SessionTotals) Empty() bool {
	return t.PageViews == 0 && t.Purchases == 0
}

// ReportEvent is the flattened row mirrored into the reporting store.
type ReportEvent struct {
	EventID   string
	EventType EventType
	SessionID string
	OrderID   string
	Path      string
	Title     string
	Revenue   float64
	Timestamp time.Time
}

type TopPathResult struct {
	PagePath string `json:"pagePath"`
	Count    uint64 `json:"count"`
}

type RevenueByTime struct {
	Time    time.Time `json:"time"`
	Revenue float64   `json:"revenue"`
	Orders  uint64    `json:"orders"`
}
