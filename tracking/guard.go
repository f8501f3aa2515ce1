package tracking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Guard is a fast-path claim on an order id, shared by every writer that
// uses the same backing service. A lost claim means another attempt for the
// order already started. Claims expire, so a stale one cannot block an order
// forever; the durable store still has the final word.
type Guard interface {
	Claim(ctx context.Context, orderID string) (bool, error)
	Release(ctx context.Context, orderID string) error

	// Reset drops every claim. A purge calls it so purged orders can be
	// recorded again.
	Reset(ctx context.Context) error
}

// redisClaimer is the subset of redis.Cmdable the guard needs.
type redisClaimer interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

const resetScanCount = 500

type RedisGuard struct {
	rdb    redisClaimer
	ttl    time.Duration
	prefix string
}

func NewRedisGuard(rdb redisClaimer, ttl time.Duration) *RedisGuard {
	return &RedisGuard{rdb: rdb, ttl: ttl, prefix: "purchase:"}
}

func (g *RedisGuard) Claim(ctx context.Context, orderID string) (bool, error) {
	return g.rdb.SetNX(ctx, g.prefix+orderID, 1, g.ttl).Result()
}

func (g *RedisGuard) Release(ctx context.Context, orderID string) error {
	return g.rdb.Del(ctx, g.prefix+orderID).Err()
}

// Reset walks the claim keyspace with SCAN and deletes each page. Claims taken
// while it runs may survive.
func (g *RedisGuard) Reset(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := g.rdb.Scan(ctx, cursor, g.prefix+"*", resetScanCount).Result()
		if err != nil {
			return fmt.Errorf("failed to scan dedup claims: %w", err)
		}
		if len(keys) > 0 {
			if err := g.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete dedup claims: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// MemoryGuard is a process-local Guard for single-instance deployments.
type MemoryGuard struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	claims map[string]time.Time
}

func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	return &MemoryGuard{ttl: ttl, now: time.Now, claims: make(map[string]time.Time)}
}

func (g *MemoryGuard) Claim(ctx context.Context, orderID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if exp, ok := g.claims[orderID]; ok && now.Before(exp) {
		return false, nil
	}
	g.claims[orderID] = now.Add(g.ttl)
	g.sweep(now)
	return true, nil
}

func (g *MemoryGuard) Release(ctx context.Context, orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.claims, orderID)
	return nil
}

func (g *MemoryGuard) Reset(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.claims = make(map[string]time.Time)
	return nil
}

// sweep drops expired claims once the map grows; caller holds mu.
func (g *MemoryGuard) sweep(now time.Time) {
	if len(g.claims) < 4096 {
		return
	}
	for id, exp := range g.claims {
		if !now.Before(exp) {
			delete(g.claims, id)
		}
	}
}
