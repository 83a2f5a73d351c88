// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"complianceflow/platform/orchestrator/analytics"
	"complianceflow/platform/orchestrator/circuitbreaker"
	"complianceflow/platform/orchestrator/coordinator"
	"complianceflow/platform/orchestrator/eventbus"
	"complianceflow/platform/orchestrator/selector"
	"complianceflow/platform/orchestrator/submission"
	"complianceflow/platform/shared/logger"
)

const (
	serviceName    = "complianceflow-orchestrator"
	serviceVersion = "1.0.0"

	dbConnectRetries = 5
)

// Service wires the selector, the breaker registry, the submission manager
// and the agent coordinator behind one HTTP router.
type Service struct {
	cfg    *Config
	logger *logger.Logger

	db       *sql.DB
	ownsDB   bool
	redis    *redis.Client
	bus      eventbus.Bus
	registry *prometheus.Registry
	pgStore  *selector.PostgresStore
	sinks    analytics.Multi

	Selector    *selector.Selector
	Breakers    *circuitbreaker.CircuitBreaker
	Manager     *submission.Manager
	Coordinator *coordinator.Coordinator

	router  http.Handler
	started time.Time
}

// ServiceOption customizes NewService.
type ServiceOption func(*Service)

// WithDB uses an existing database handle instead of opening DATABASE_URL.
// The caller keeps ownership of db.
func WithDB(db *sql.DB) ServiceOption {
	return func(s *Service) { s.db = db }
}

// WithAnalyticsSink adds a sink that receives the same analytics records as
// the Prometheus exporter.
func WithAnalyticsSink(sink analytics.Sink) ServiceOption {
	return func(s *Service) { s.sinks = append(s.sinks, sink) }
}

// NewService builds every component from cfg. Postgres and Redis are used
// when configured; otherwise the in-memory inventory, breaker registry and
// event bus are used.
func NewService(ctx context.Context, cfg *Config, l *logger.Logger, opts ...ServiceOption) (*Service, error) {
	s := &Service{
		cfg:      cfg,
		logger:   l,
		registry: prometheus.NewRegistry(),
		started:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := s.init(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Service) init(ctx context.Context) error {
	if s.db == nil && s.cfg.DatabaseURL != "" {
		db, err := openDatabase(ctx, s.cfg.DatabaseURL, s.logger)
		if err != nil {
			return err
		}
		s.db = db
		s.ownsDB = true
	}

	if s.cfg.RedisURL != "" {
		opt, err := redis.ParseURL(s.cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		s.redis = redis.NewClient(opt)
		if err := s.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		s.logger.Info("", "", "Connected to Redis", map[string]interface{}{"addr": opt.Addr})
	}

	// Breaker registry
	var repo circuitbreaker.Repository = circuitbreaker.NewMemoryRepository()
	if s.db != nil {
		repo = circuitbreaker.NewPostgresRepository(s.db)
	}
	var window circuitbreaker.FailureWindow = circuitbreaker.NewMemoryWindow()
	if s.redis != nil {
		window = circuitbreaker.NewRedisFailureWindow(s.redis)
	}
	s.Breakers = circuitbreaker.New(repo, window, s.cfg.BreakerConfig(),
		circuitbreaker.WithLogger(s.logger.Named("circuitbreaker")))

	// Selector
	store, err := s.selectorStore(ctx)
	if err != nil {
		return err
	}
	s.Selector = selector.NewSelector(store,
		selector.WithLogger(s.logger.Named("selector")),
		selector.WithMetrics(selector.NewMetrics(s.registry)))

	// Event bus
	if s.redis != nil {
		s.bus = eventbus.NewRedisBus(s.redis, s.cfg.EventPrefix, s.logger.Named("eventbus"))
	} else {
		s.bus = eventbus.NewMemoryBus(s.logger.Named("eventbus"))
	}

	sink := append(analytics.Multi{analytics.NewPrometheusSink(s.registry)}, s.sinks...)

	// Agents
	var agents []coordinator.Agent
	if s.cfg.AgentsFile != "" {
		agents, err = coordinator.LoadAgents(s.cfg.AgentsFile)
		if err != nil {
			return err
		}
	}
	s.Coordinator = coordinator.New(agents,
		coordinator.WithLogger(s.logger.Named("coordinator")),
		coordinator.WithSink(sink),
		coordinator.WithDefaultTimeout(s.cfg.CoordinatorTimeout))

	// Submissions
	s.Manager, err = submission.NewManager(s.bus,
		submission.WithLogger(s.logger.Named("submission")),
		submission.WithSink(sink),
		submission.WithRetention(s.cfg.RetentionPeriod))
	if err != nil {
		return err
	}

	s.router = s.buildRouter()

	s.logger.Info("", "", "Service initialized", map[string]interface{}{
		"postgres":   s.db != nil,
		"redis":      s.redis != nil,
		"agents":     len(agents),
		"auth":       s.cfg.JWTSecret != "",
		"retention":  s.cfg.RetentionPeriod.String(),
		"breaker_at": s.cfg.BreakerErrorThreshold,
	})
	return nil
}

func (s *Service) selectorStore(ctx context.Context) (selector.Store, error) {
	if s.db != nil {
		store := selector.NewPostgresStore(s.db)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		s.pgStore = store
		return store, nil
	}

	mem := selector.NewMemoryStore()
	if s.cfg.InventoryFile != "" {
		var err error
		mem, err = selector.LoadInventory(s.cfg.InventoryFile)
		if err != nil {
			return nil, err
		}
	} else {
		s.logger.Warn("", "", "No DATABASE_URL or INVENTORY_FILE; starting with an empty inventory", nil)
	}
	mem.SetBreakerReader(s.Breakers)
	return mem, nil
}

func (s *Service) buildRouter() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.healthHandler).Methods("GET")
	r.Handle("/prometheus", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods("GET")

	api := r.NewRoute().Subrouter()
	api.Use(NewAuthenticator(s.cfg.JWTSecret, s.cfg.PremiumOrgs, s.logger.Named("auth")).Middleware)

	selector.NewHandler(s.Selector).RegisterRoutes(api)
	circuitbreaker.NewHandler(s.Breakers).RegisterRoutes(api)
	submission.NewHandler(s.Manager, s.Coordinator).RegisterRoutes(api)
	coordinator.NewHandler(s.Coordinator).RegisterRoutes(api)

	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Org-ID", "X-Request-ID"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}

// Handler returns the service's HTTP handler.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Start runs the background retention sweep until ctx is done.
func (s *Service) Start(ctx context.Context) {
	go s.Manager.StartRetention(ctx, s.cfg.RetentionInterval)
}

// Close releases the bus, Redis and any database the service opened.
func (s *Service) Close() {
	if s.Manager != nil {
		s.Manager.Close()
	}
	if s.bus != nil {
		if err := s.bus.Close(); err != nil {
			s.logger.Warn("", "", "Failed to close event bus", map[string]interface{}{"error": err.Error()})
		}
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.db != nil && s.ownsDB {
		_ = s.db.Close()
	}
}

func (s *Service) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	components := map[string]bool{
		"selector":    s.Selector != nil,
		"submissions": s.Manager != nil,
		"coordinator": s.Coordinator != nil,
	}
	if s.pgStore != nil {
		components["postgres"] = s.pgStore.Ping(ctx) == nil
	}
	if s.redis != nil {
		components["redis"] = s.redis.Ping(ctx).Err() == nil
	}

	status, code := "healthy", http.StatusOK
	for _, ok := range components {
		if !ok {
			status, code = "degraded", http.StatusServiceUnavailable
			break
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":         status,
		"service":        serviceName,
		"version":        serviceVersion,
		"timestamp":      time.Now().UTC(),
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"components":     components,
		"agents":         s.Coordinator.Agents(),
	})
}

// openDatabase connects with retries; container DNS can lag behind startup.
func openDatabase(ctx context.Context, dbURL string, l *logger.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	for attempt := 1; attempt <= dbConnectRetries; attempt++ {
		if err = db.PingContext(ctx); err == nil {
			l.Info("", "", "Connected to database", map[string]interface{}{"attempt": attempt})
			return db, nil
		}
		if attempt == dbConnectRetries {
			break
		}
		backoff := time.Duration(attempt*2) * time.Second
		l.Warn("", "", "Database connection failed, retrying", map[string]interface{}{
			"attempt": attempt,
			"backoff": backoff.String(),
			"error":   err.Error(),
		})
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	_ = db.Close()
	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", dbConnectRetries, err)
}

// Run starts the orchestrator and blocks until SIGINT or SIGTERM.
func Run() error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	l := logger.NewWithWriter("orchestrator", os.Stdout, logger.ParseLevel(cfg.LogLevel))
	l.Info("", "", "Starting orchestrator", map[string]interface{}{"port": cfg.Port})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := NewService(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer svc.Close()
	svc.Start(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           svc.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	l.Info("", "", "Orchestrator listening", map[string]interface{}{"port": cfg.Port})

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	l.Info("", "", "Shutting down orchestrator", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
