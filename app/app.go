// Package app opens the configured backends and assembles the analytics
// services shared by the API server and storefrontctl.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"storefront/api/config"
	"storefront/api/database"
	"storefront/api/store"
	"storefront/api/stream"
	"storefront/api/tracking"
)

type App struct {
	Config *config.Config

	Events     store.EventStore
	Writer     *tracking.Writer
	Purger     *tracking.Purger
	Products   store.ProductStore
	Categories store.CategoryStore

	// Optional; nil when the backing service is not configured.
	Users   *store.UserStore
	Reports *store.ReportStore

	closers []func()
}

// New connects to every configured backend. On error, anything already opened
// is closed again.
func New(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	var (
		pg    *database.DBClient
		mongo *database.MongoDB
	)
	if cfg.DatabaseURL != "" {
		if pg, err = database.NewPostgresDB(cfg.DatabaseURL); err != nil {
			return nil, err
		}
		a.onClose(pg.Close)

		a.Users = store.NewUserStore(pg.DB)
		if err = a.Users.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		a.Products = store.NewPostgresProductStore(pg.DB)
	} else {
		a.Products = store.NewMemoryProductStore()
	}

	if cfg.MongoURI != "" {
		if mongo, err = database.NewMongoDB(cfg.MongoURI, cfg.MongoDBName); err != nil {
			return nil, err
		}
		a.onClose(mongo.Close)

		if a.Categories, err = store.NewMongoCategoryStore(mongo); err != nil {
			return nil, err
		}
	} else {
		a.Categories = store.NewMemoryCategoryStore()
	}

	var primary store.EventStore
	switch cfg.StoreBackend {
	case config.BackendMongo:
		if primary, err = store.NewMongoStore(mongo); err != nil {
			return nil, err
		}
	case config.BackendPostgres:
		ps := store.NewPostgresStore(pg.DB)
		if err = ps.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		primary = ps
	default:
		log.Warn().Msg("Using in-memory analytics store; data is lost on restart")
		primary = store.NewMemoryStore()
	}
	a.Events = store.NewBreakerStore(primary, store.DefaultBreakerSettings("event-store-"+cfg.StoreBackend))

	guard := a.newGuard()
	opts := []tracking.Option{tracking.WithGuard(guard)}

	var mirror tracking.Mirror
	if cfg.ClickHouse.Enabled() {
		ch, cherr := database.NewClickHouseDB(cfg.ClickHouse)
		if cherr != nil {
			return nil, cherr
		}
		a.onClose(ch.Close)

		a.Reports = store.NewReportStore(ch)
		if err = a.Reports.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		mirror = a.Reports
		opts = append(opts, tracking.WithMirror(mirror))
	}

	if cfg.Kafka.Enabled() {
		pub := stream.NewKafkaPublisher(cfg.Kafka)
		a.onClose(func() {
			if cerr := pub.Close(); cerr != nil {
				log.Error().Err(cerr).Msg("Error closing Kafka publisher")
			}
		})
		opts = append(opts, tracking.WithPublisher(pub))
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Streaming events to Kafka")
	}

	a.Writer = tracking.NewWriter(a.Events, opts...)
	a.Purger = tracking.NewPurger(a.Events, cfg.PurgeBatchSize, mirror, guard)

	log.Info().Str("backend", cfg.StoreBackend).
		Bool("reports", a.Reports != nil).
		Bool("users", a.Users != nil).
		Msg("Analytics services ready")
	return a, nil
}

// newGuard prefers Redis so every API instance shares one claim set. It falls
// back to an in-process guard when Redis is absent or unreachable.
func (a *App) newGuard() tracking.Guard {
	cfg := a.Config
	if cfg.Redis.Enabled() {
		rdb, err := database.NewRedisClient(cfg.Redis)
		if err == nil {
			a.onClose(func() { _ = rdb.Close() })
			return tracking.NewRedisGuard(rdb, cfg.DedupTTL)
		}
		log.Warn().Err(err).Msg("Redis unavailable, using in-process dedup guard")
	}
	return tracking.NewMemoryGuard(cfg.DedupTTL)
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases backends in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Ping reports whether the primary store answers within timeout.
func (a *App) Ping(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if _, err := a.Events.GetSession(ctx, "__healthcheck__"); err != nil && !isNotFound(err) {
		return fmt.Errorf("event store: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
