package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/api/database"
	"storefront/api/models"
)

type CategoryStore interface {
	List(ctx context.Context) ([]models.Category, error)
	Get(ctx context.Context, name string) (*models.Category, error)
	Upsert(ctx context.Context, category models.Category) error
}

type mongoCategoryStore struct {
	coll *mongo.Collection
}

// NewMongoCategoryStore returns the category reference store, with a unique
// index on name.
func NewMongoCategoryStore(db *database.MongoDB) (CategoryStore, error) {
	s := &mongoCategoryStore{coll: db.Collection("categories")}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create category name index: %w", err)
	}
	return s, nil
}

func (s *mongoCategoryStore) List(ctx context.Context) ([]models.Category, error) {
	cursor, err := s.coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer cursor.Close(ctx)

	categories := []models.Category{}
	if err := cursor.All(ctx, &categories); err != nil {
		return nil, fmt.Errorf("failed to decode categories: %w", err)
	}
	return categories, nil
}

func (s *mongoCategoryStore) Get(ctx context.Context, name string) (*models.Category, error) {
	var category models.Category
	if err := s.coll.FindOne(ctx, bson.M{"name": name}).Decode(&category); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get category %s: %w", name, err)
	}
	return &category, nil
}

func (s *mongoCategoryStore) Upsert(ctx context.Context, category models.Category) error {
	subs := category.Subcategories
	if subs == nil {
		subs = []string{}
	}
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"name": category.Name},
		bson.M{"$set": bson.M{"subcategories": subs}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert category %s: %w", category.Name, err)
	}
	return nil
}

type memoryCategoryStore struct {
	mu         sync.RWMutex
	categories map[string][]string
}

func NewMemoryCategoryStore() CategoryStore {
	return &memoryCategoryStore{categories: make(map[string][]string)}
}

func (s *memoryCategoryStore) List(ctx context.Context) ([]models.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Category, 0, len(s.categories))
	for name, subs := range s.categories {
		out = append(out, models.Category{Name: name, Subcategories: append([]string{}, subs...)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memoryCategoryStore) Get(ctx context.Context, name string) (*models.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subs, ok := s.categories[name]
	if !ok {
		return nil, ErrNotFound
	}
	return &models.Category{Name: name, Subcategories: append([]string{}, subs...)}, nil
}

func (s *memoryCategoryStore) Upsert(ctx context.Context, category models.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories[category.Name] = append([]string{}, category.Subcategories...)
	return nil
}
