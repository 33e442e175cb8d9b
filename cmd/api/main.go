package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"tickerdesk-backend/interfaces/http/rest"
	"tickerdesk-backend/internal/adapter"
	"tickerdesk-backend/internal/config"
	"tickerdesk-backend/internal/executor"
	"tickerdesk-backend/internal/observability"
	"tickerdesk-backend/internal/realtime"
	"tickerdesk-backend/internal/service/note"
	"tickerdesk-backend/internal/service/watchlist"
	"tickerdesk-backend/internal/session"
	"tickerdesk-backend/internal/store"
	"tickerdesk-backend/internal/store/memory"
	"tickerdesk-backend/internal/store/supabase"
	"tickerdesk-backend/pkg/auth"
)

// tokenSource breaks the construction cycle between the row store and
// the session manager: the store needs a token source before the manager
// that supplies tokens exists.
type tokenSource struct {
	mu      sync.RWMutex
	manager *session.Manager
}

func (t *tokenSource) AccessToken() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.manager == nil {
		return ""
	}
	return t.manager.AccessToken()
}

func (t *tokenSource) bind(m *session.Manager) {
	t.mu.Lock()
	t.manager = m
	t.mu.Unlock()
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Observability.LogLevel, string(cfg.Environment))
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	shutdownTracing, err := observability.InitTracing(ctx, "tickerdesk-backend",
		string(cfg.Environment), cfg.Observability.OTLPEndpoint)
	if err != nil {
		logger.Fatal("failed to init tracing", zap.Error(err))
	}
	defer shutdownTracing(context.Background())

	metrics := observability.NewMetrics()
	perf := observability.NewPerformanceTracker()

	jwtSecret := cfg.Supabase.JWTSecret
	if jwtSecret == "" {
		if cfg.Environment != config.Development {
			logger.Fatal("SUPABASE_JWT_SECRET is required outside development")
		}
		jwtSecret = "insecure-dev-secret"
		logger.Warn("no JWT secret configured, using the insecure development default")
	}
	validator, err := auth.NewValidator(jwtSecret)
	if err != nil {
		logger.Fatal("failed to build token validator", zap.Error(err))
	}

	tokens := &tokenSource{}
	fallbackStore := memory.New()

	var realStore store.RowStore
	var sessionAPI store.SessionAPI
	var feed store.ChangeFeed
	if cfg.Supabase.ProjectURL != "" {
		supaStore, err := supabase.New(cfg.Supabase.ProjectURL, cfg.Supabase.AnonKey, tokens, logger)
		if err != nil {
			logger.Fatal("failed to build backend store", zap.Error(err))
		}
		realStore = supaStore
		sessionAPI = supaStore
		feed = supabase.NewFeed(cfg.Supabase.ProjectURL, cfg.Supabase.AnonKey, tokens, logger)
	} else {
		// Fallback-forced without credentials: the memory store serves
		// both roles and sessions stay local.
		realStore = fallbackStore
		logger.Warn("no backend configured, serving from the in-memory store only")
	}

	sessions, err := session.NewManager(sessionAPI, session.Options{
		CheckInterval:    cfg.Session.CheckInterval,
		RefreshThreshold: cfg.Session.RefreshThreshold,
		LockTTL:          cfg.Session.LockTTL,
		CoordDir:         cfg.Session.CoordinationDir,
		RetryPolicy:      session.DefaultOptions().RetryPolicy,
	}, logger)
	if err != nil {
		logger.Fatal("failed to build session manager", zap.Error(err))
	}
	tokens.bind(sessions)
	sessions.Start()
	defer sessions.Close()

	sourceAdapter := adapter.New(realStore, fallbackStore, sessions, adapter.Options{
		FailureCooldown: cfg.Adapter.FailureCooldown,
	}, logger, metrics, perf)
	sourceAdapter.SetPreference(adapter.Preference(cfg.Adapter.Preference))

	exec := executor.New(sessions, perf, logger)
	policy := executor.Policy{
		MaxRetries: cfg.Executor.MaxRetries,
		RetryDelay: cfg.Executor.RetryDelay,
		Timeout:    cfg.Executor.Timeout,
	}

	watchlists := watchlist.NewService(sourceAdapter, exec, policy, logger)
	notes := note.NewService(sourceAdapter, exec, policy, logger)

	// Mirror backend changes into the fallback store so degraded reads
	// serve recent data.
	if feed != nil {
		subscriptions := realtime.NewManager(feed, realtime.Options{
			BaseDelay:   cfg.Realtime.BaseDelay,
			MaxAttempts: cfg.Realtime.MaxAttempts,
		}, logger, metrics)
		defer subscriptions.Close()
		for _, table := range []string{"watchlists", "watchlist_items", "notes"} {
			subscriptions.Subscribe(ctx, table, store.Filter{}, fallbackStore.Apply)
		}
	}

	// Hot-reload the data-source preference when a config file is in use.
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		watcher, err := config.NewWatcher(path, cfg, logger)
		if err != nil {
			logger.Warn("config hot reload disabled", zap.Error(err))
		} else {
			defer watcher.Close()
			watcher.OnReload(func(next *config.Config) {
				sourceAdapter.SetPreference(adapter.Preference(next.Adapter.Preference))
			})
		}
	}

	router := rest.NewRouter(logger, validator, sessions, watchlists, notes, sourceAdapter, perf, metrics)
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting server",
			zap.String("address", srv.Addr),
			zap.String("environment", string(cfg.Environment)),
			zap.String("data_source_preference", cfg.Adapter.Preference),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
}
