// api/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"storefront/api/app"
	"storefront/api/config"
	"storefront/api/handlers"
	"storefront/api/logging"
	"storefront/api/middleware"
	"storefront/api/models"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Warn().Err(err).Msg("Error loading .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if cfg.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	services, err := app.New(ctx, cfg)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer services.Close()

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: setupRouter(services),
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("API server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("API server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exiting")
}

func setupRouter(a *app.App) *gin.Engine {
	cfg := a.Config
	auth := middleware.NewAuth(cfg.JWTSecret, cfg.AuthDefault)
	adminOnly := []gin.HandlerFunc{auth.Required(), middleware.RequireRole(models.RoleAdmin)}

	analyticsHandlers := handlers.NewAnalyticsHandlers(a.Writer, a.Purger, a.Events, a.Products)
	categoryHandlers := handlers.NewCategoryHandlers(a.Categories)

	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery(), middleware.CORSMiddleware(cfg.FEOrigin))

	r.GET("/healthz", func(c *gin.Context) {
		if err := a.Ping(c.Request.Context(), 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "backend": cfg.StoreBackend})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		// Storefront telemetry is anonymous.
		track := api.Group("/track")
		track.POST("", analyticsHandlers.TrackBatch)
		track.POST("/pageview", analyticsHandlers.TrackPageView)
		track.POST("/purchase", analyticsHandlers.TrackPurchase)
		track.POST("/order", analyticsHandlers.TrackOrder)

		api.GET("/categories", categoryHandlers.List)
		api.GET("/categories/:name", categoryHandlers.Get)
		api.PUT("/categories/:name", append(adminOnly, categoryHandlers.Upsert)...)

		if a.Users != nil {
			authHandlers := handlers.NewAuthHandlers(a.Users, cfg.JWTSecret)
			api.POST("/signup", auth.Optional(), authHandlers.Signup)
			api.POST("/login", authHandlers.Login)
			api.POST("/logout", authHandlers.Logout)
		}

		admin := api.Group("/")
		admin.Use(adminOnly...)
		{
			admin.DELETE("/analytics", analyticsHandlers.DeleteAnalytics)
			admin.GET("/analytics/sessions/:id", analyticsHandlers.GetSession)
			admin.POST("/analytics/sessions/:id/reconcile", analyticsHandlers.ReconcileSession)
		}

		if a.Reports != nil {
			statsHandlers := handlers.NewStatsHandlers(a.Reports)
			stats := api.Group("/stats")
			stats.Use(auth.Required())
			{
				stats.GET("/event-counts", statsHandlers.GetEventCountsOverTime)
				stats.GET("/unique-sessions", statsHandlers.GetUniqueSessionsOverTime)
				stats.GET("/top-paths", statsHandlers.GetTopNPagePaths)
				stats.GET("/revenue", statsHandlers.GetRevenueOverTime)
			}
		}
	}

	return r
}
