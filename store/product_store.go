package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/lib/pq"

	"storefront/api/models"
)

// ProductStore resolves catalog products by id. Missing ids are simply absent
// from the result.
type ProductStore interface {
	GetProducts(ctx context.Context, ids []string) (map[string]models.Product, error)
}

type PostgresProductStore struct {
	db *sql.DB
}

func NewPostgresProductStore(db *sql.DB) *PostgresProductStore {
	return &PostgresProductStore{db: db}
}

func (s *PostgresProductStore) GetProducts(ctx context.Context, ids []string) (map[string]models.Product, error) {
	out := make(map[string]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, price
		FROM products
		WHERE id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		out[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}
	return out, nil
}

type MemoryProductStore struct {
	mu       sync.RWMutex
	products map[string]models.Product
}

func NewMemoryProductStore(products ...models.Product) *MemoryProductStore {
	s := &MemoryProductStore{products: make(map[string]models.Product, len(products))}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

func (s *MemoryProductStore) Put(p models.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

func (s *MemoryProductStore) GetProducts(ctx context.Context, ids []string) (map[string]models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]models.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}
