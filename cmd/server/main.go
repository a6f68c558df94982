package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shiva/fleetops/config"
	"github.com/shiva/fleetops/internal/handler"
	"github.com/shiva/fleetops/internal/middleware"
	"github.com/shiva/fleetops/internal/repository"
	"github.com/shiva/fleetops/internal/service"
	"github.com/shiva/fleetops/pkg/cache"
	"github.com/shiva/fleetops/pkg/db"
	"github.com/shiva/fleetops/pkg/geo"
	"github.com/shiva/fleetops/pkg/logger"
	"github.com/shiva/fleetops/pkg/timeslot"
)

func main() {
	// ── Load configuration ──────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Log.Env, cfg.Log.Level)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zl.Sync()

	ctx := context.Background()

	// ── Connect to PostgreSQL ───────────────────────────
	pgPool, err := db.NewPostgresPool(ctx, cfg.Postgres, zl)
	if err != nil {
		zl.Fatal("failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pgPool.Close()
	zl.Info("postgres connected", zap.String("host", cfg.Postgres.Host))

	// ── Connect to Redis ────────────────────────────────
	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis, zl)
	if err != nil {
		zl.Fatal("failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	zl.Info("redis connected", zap.String("addr", cfg.Redis.Addr()))

	// ── Initialize layers ───────────────────────────────
	settings, err := schedulingSettings(cfg)
	if err != nil {
		zl.Fatal("invalid scheduling config", zap.Error(err))
	}

	tripRepo := repository.NewTripRepository(pgPool)
	availRepo := repository.NewAvailabilityRepository(pgPool)
	slotLocker := repository.NewSlotLocker(redisClient, cfg.Scheduling.SlotLockTTL)
	geocoder := newGeocoder(cfg, redisClient, zl)

	conflictSvc := service.NewConflictService(tripRepo, availRepo, zl)
	tripSvc := service.NewTripService(tripRepo, availRepo, conflictSvc, slotLocker, zl)
	autoAssignSvc := service.NewAutoAssignService(tripRepo, availRepo, settings, zl)
	scorer := service.NewScorer(geocoder, settings, zl)
	combinationSvc := service.NewCombinationService(tripRepo, availRepo, scorer, settings, zl)
	rosterSvc := service.NewRosterService(tripRepo, availRepo, settings, zl)

	// ── Setup router ────────────────────────────────────
	router := mux.NewRouter()

	// Health check endpoint.
	router.HandleFunc("/health", healthHandler(pgPool, redisClient)).Methods(http.MethodGet)

	// API v1 routes, all tenant scoped.
	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Tenant)
	handler.NewScheduleHandler(autoAssignSvc, combinationSvc, zl).Register(api)
	handler.NewRosterHandler(rosterSvc, zl).Register(api)
	handler.NewTripHandler(tripSvc, conflictSvc, zl).Register(api)

	h := middleware.CORS(
		middleware.RequestID(
			middleware.RequestLogger(zl)(
				middleware.Recoverer(zl)(router))))

	// ── Start HTTP server ───────────────────────────────
	srv := &http.Server{
		Addr:         cfg.Server.ServerAddr(),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start in a goroutine so we can listen for shutdown signals.
	go func() {
		zl.Info("server listening", zap.String("addr", cfg.Server.ServerAddr()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zl.Fatal("server error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ───────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zl.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Fatal("server forced to shutdown", zap.Error(err))
	}

	zl.Info("server gracefully stopped")
}

// schedulingSettings maps the environment config onto service settings.
func schedulingSettings(cfg *config.Config) (service.Settings, error) {
	s := service.DefaultSettings()
	sc := cfg.Scheduling

	pickup, err := timeslot.ParseClock(sc.DefaultPickupTime)
	if err != nil {
		return s, err
	}
	s.DefaultPickupTime = pickup
	s.NominalTripDuration = sc.NominalTripDuration
	s.FullTimeHoursPerWeek = sc.FullTimeHoursPerWeek
	s.MinFareThreshold = sc.MinFareThreshold
	s.MaxAutoAssignDays = sc.MaxAutoAssignDays
	s.AutoAssignWorkers = sc.AutoAssignWorkers
	s.CombinationWindow = sc.CombinationTimeWindow
	s.DestinationMatchKm = cfg.Maps.DestinationMatchKm
	s.GeocodingEnabled = cfg.Maps.Enabled
	return s, nil
}

// newGeocoder returns the Redis-cached Google geocoder when an API key is
// configured, otherwise a geocoder that always reports unavailable.
func newGeocoder(cfg *config.Config, redisClient *redis.Client, zl *zap.Logger) geo.Geocoder {
	if cfg.Maps.APIKey == "" {
		zl.Info("geocoding disabled: no MAPS_API_KEY")
		return geo.NoopGeocoder{}
	}
	google, err := geo.NewGoogleGeocoder(cfg.Maps.APIKey, cfg.Maps.Timeout)
	if err != nil {
		zl.Warn("geocoding disabled", zap.Error(err))
		return geo.NoopGeocoder{}
	}
	return repository.NewCachedGeocoder(google, redisClient, cfg.Maps.CacheTTL)
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

// healthHandler returns an HTTP handler that checks PG and Redis connectivity.
func healthHandler(pgPool *pgxpool.Pool, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:   "ok",
			Services: make(map[string]string),
		}

		if err := db.HealthCheck(r.Context(), pgPool); err != nil {
			resp.Status = "degraded"
			resp.Services["postgres"] = "unhealthy: " + err.Error()
		} else {
			resp.Services["postgres"] = "healthy"
		}

		// Redis being down does not degrade the service.
		if err := cache.HealthCheck(r.Context(), redisClient); err != nil {
			resp.Services["redis"] = "unhealthy: " + err.Error()
		} else {
			resp.Services["redis"] = "healthy"
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(resp)
	}
}
