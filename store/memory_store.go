package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"storefront/api/models"
)

// MemoryStore keeps everything in process. It backs STORE_BACKEND=memory and
// the tests.
type MemoryStore struct {
	mu        sync.Mutex
	pageViews map[string]models.PageViewEvent
	purchases map[string]models.PurchaseEvent
	sessions  map[string]*models.SessionSummary
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pageViews: make(map[string]models.PageViewEvent),
		purchases: make(map[string]models.PurchaseEvent),
		sessions:  make(map[string]*models.SessionSummary),
	}
}

func (s *MemoryStore) InsertPageView(ctx context.Context, ev models.PageViewEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pageViews[ev.EventID]; ok {
		return ErrDuplicateKey
	}
	s.pageViews[ev.EventID] = ev
	return nil
}

func (s *MemoryStore) InsertPurchase(ctx context.Context, ev models.PurchaseEvent) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.purchases[ev.OrderID]; ok {
		return false, nil
	}
	ev.Items = append([]models.LineItem(nil), ev.Items...)
	s.purchases[ev.OrderID] = ev
	return true, nil
}

func (s *MemoryStore) HasPurchase(ctx context.Context, orderID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.purchases[orderID]
	return ok, nil
}

func (s *MemoryStore) SessionTotals(ctx context.Context, sessionID string) (models.SessionTotals, error) {
	if err := ctx.Err(); err != nil {
		return models.SessionTotals{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var totals models.SessionTotals
	seen := func(at time.Time) {
		if totals.FirstSeen.IsZero() || at.Before(totals.FirstSeen) {
			totals.FirstSeen = at
		}
		if at.After(totals.LastSeen) {
			totals.LastSeen = at
		}
	}
	for _, pv := range s.pageViews {
		if pv.SessionID == sessionID {
			totals.PageViews++
			seen(pv.Timestamp)
		}
	}
	for _, p := range s.purchases {
		if p.SessionID == sessionID {
			totals.Purchases++
			totals.PurchaseTotal += p.Total
			seen(p.Timestamp)
		}
	}
	return totals, nil
}

func (s *MemoryStore) MergeSession(ctx context.Context, sessionID string, delta models.SessionDelta) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	summary, ok := s.sessions[sessionID]
	if !ok {
		summary = &models.SessionSummary{SessionID: sessionID}
		s.sessions[sessionID] = summary
	}
	summary.Apply(delta)
	return nil
}

func (s *MemoryStore) GetSession(ctx context.Context, sessionID string) (*models.SessionSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	summary, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *summary
	return &out, nil
}

func (s *MemoryStore) ResetSessionTotals(ctx context.Context, sessionID string, totals models.SessionTotals) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	summary, ok := s.sessions[sessionID]
	if !ok {
		if totals.Empty() {
			return ErrNotFound
		}
		summary = &models.SessionSummary{SessionID: sessionID}
		s.sessions[sessionID] = summary
	}
	summary.PageViewCount = totals.PageViews
	summary.PurchaseCount = totals.Purchases
	summary.PurchaseTotal = totals.PurchaseTotal
	for _, at := range []time.Time{totals.FirstSeen, totals.LastSeen} {
		if !at.IsZero() {
			summary.Apply(models.SessionDelta{At: at})
		}
	}
	return nil
}

func (s *MemoryStore) DeleteSessionBatch(ctx context.Context, limit int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return deleteKeys(s.sessions, limit), nil
}

// DeleteEventBatch drains page views first, then purchases, within one lock.
func (s *MemoryStore) DeleteEventBatch(ctx context.Context, limit int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := deleteKeys(s.pageViews, limit)
	if deleted < limit {
		deleted += deleteKeys(s.purchases, limit-deleted)
	}
	return deleted, nil
}

// Counts reports how many sessions and events are currently stored.
func (s *MemoryStore) Counts() (sessions, events int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions), len(s.pageViews) + len(s.purchases)
}

func deleteKeys[V any](m map[string]V, limit int) int {
	if limit <= 0 || len(m) == 0 {
		return 0
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > limit {
		keys = keys[:limit]
	}
	for _, k := range keys {
		delete(m, k)
	}
	return len(keys)
}
