package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/points/internal/api"
	"example.com/points/internal/auth"
	"example.com/points/internal/cache"
	"example.com/points/internal/config"
	"example.com/points/internal/domain"
	"example.com/points/internal/events"
	"example.com/points/internal/ledger"
	"example.com/points/internal/persistence/postgres"
	"example.com/points/internal/reconcile"
	httptransport "example.com/points/internal/transport/http"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kvStore, err := cache.OpenBadger(cfg.CachePath)
	if err != nil {
		log.Fatalf("failed to open local cache at %q: %v", cfg.CachePath, err)
	}
	defer kvStore.Close()
	adapter := cache.NewAdapter(kvStore, nil)

	var store *postgres.Store
	if cfg.PostgresURL != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			log.Fatalf("failed to connect to postgres: %v", err)
		}
		defer pool.Close()
		store = postgres.NewStore(pool)
	} else {
		log.Printf("no POSTGRES_URL configured, running local-only")
	}

	var producer *events.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = events.NewProducer(cfg.KafkaBrokers, cfg.EventTopic)
		defer producer.Close()
	}

	// One session per identity: the factory wires a fresh ledger, the shared
	// cache slot, and (for signed-in identities with a remote store) a
	// reconciliation engine whose loop lives exactly as long as the session.
	factory := func(identity string) *ledger.Session {
		led := ledger.New()

		var syncer ledger.Syncer
		var onClose func()
		if store != nil && identity != "" {
			engine := reconcile.NewEngine(identity, led, adapter, store, cfg.SyncInterval, nil)
			engineCtx, engineCancel := context.WithCancel(ctx)
			go engine.Start(engineCtx)
			syncer = engine
			onClose = func() {
				engineCancel()
				engine.Wait()
			}
		}

		var counter domain.CheckinCounter
		if store != nil {
			counter = store
		}

		var publisher ledger.Publisher
		if producer != nil {
			publisher = producer
		}

		return ledger.NewSession(ledger.SessionConfig{
			Identity: identity,
			Ledger:   led,
			Cache:    adapter,
			Guard:    domain.NewCheckinGuard(counter),
			Sync:     syncer,
			Publish:  publisher,
			OnClose:  onClose,
		})
	}

	manager := ledger.NewManager(ctx, factory)
	defer manager.Close()

	handler := api.NewHandler(manager)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	// Basic request logger
	logger := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("%s %s", r.Method, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}

	authMiddleware := auth.NewMiddleware(
		auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer},
		func(r *http.Request) bool {
			return r.URL.Path == "/healthz" || r.URL.Path == "/metrics"
		},
	)

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, authMiddleware.Wrap(logger(mux)))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("points-agent listening on %s", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
