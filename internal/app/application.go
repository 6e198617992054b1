// Package app wires the components together and owns their lifecycle.
// Initialization follows dependency order: catalog and store first, then
// the state machine and its collaborators, the hub last.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"examhub/internal/api"
	"examhub/internal/audit"
	"examhub/internal/catalog"
	"examhub/internal/catchup"
	"examhub/internal/config"
	"examhub/internal/exam"
	"examhub/internal/hub"
	"examhub/internal/room"
	inmemorystore "examhub/internal/store/inmemory"
	redisstore "examhub/internal/store/redis"
	"examhub/internal/violation"
	"examhub/internal/websocket"
	"examhub/pkg/interfaces"
)

// Application holds every component and coordinates startup/shutdown.
type Application struct {
	config     *config.Config
	store      interfaces.SessionStore
	auditSink  interfaces.AuditSink
	rooms      *room.Manager
	commandHub *hub.Hub
	httpServer *http.Server
}

// NewApplication builds the full component graph from configuration.
func NewApplication(cfg *config.Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cat := catalog.NewStatic()
	if cfg.Catalog.FixturePath != "" {
		loaded, err := catalog.LoadFile(cfg.Catalog.FixturePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load exam catalog: %w", err)
		}
		cat = loaded
	}

	store, err := newStore(cfg.Store)
	if err != nil {
		return nil, err
	}

	auditSink, err := newAuditSink(cfg.Audit)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	machine := exam.NewMachine(store, cat)
	rooms := room.NewManager()
	aggregator := violation.NewAggregator(store, rooms, auditSink, cfg.Violation.AlertsPerMinute)
	catchupSvc := catchup.NewService(store)

	commandHub := hub.NewHub(machine, rooms, aggregator, catchupSvc, auditSink, hub.Options{
		CommandBuffer:     cfg.Hub.CommandBuffer,
		TimerSyncInterval: cfg.Hub.TimerSyncInterval,
	})

	apiServer := api.NewServer(machine, store, rooms)
	wsHandler := websocket.NewHandler(commandHub)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		store:      store,
		auditSink:  auditSink,
		rooms:      rooms,
		commandHub: commandHub,
		httpServer: httpServer,
	}, nil
}

func newStore(cfg config.StoreConfig) (interfaces.SessionStore, error) {
	switch cfg.Type {
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return redisstore.NewStore(rdb, cfg.TxRetries, cfg.SessionTTL), nil
	case "inmemory":
		return inmemorystore.NewStore(cfg.SessionTTL), nil
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}

func newAuditSink(cfg config.AuditConfig) (interfaces.AuditSink, error) {
	switch cfg.Driver {
	case "sqlite":
		sink, err := audit.NewSQLiteSink(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit sink: %w", err)
		}
		return sink, nil
	case "none":
		return audit.NewNoopSink(), nil
	default:
		return nil, fmt.Errorf("unknown audit driver %q", cfg.Driver)
	}
}

// Start launches the hub and the HTTP server, verifying the server came
// up before returning.
func (app *Application) Start(ctx context.Context) error {
	log.Infof("starting examhub on %s", app.httpServer.Addr)

	if err := app.commandHub.Start(); err != nil {
		return fmt.Errorf("failed to start hub: %w", err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		_ = app.commandHub.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Info("examhub started")
		return nil
	case <-ctx.Done():
		_ = app.commandHub.Stop()
		return ctx.Err()
	}
}

// Stop shuts components down in reverse dependency order: HTTP first so
// no new commands arrive, then the hub, then the sinks and store.
func (app *Application) Stop(ctx context.Context) error {
	log.Info("shutting down examhub")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Warnf("http server shutdown error: %v", err)
	}
	if err := app.commandHub.Stop(); err != nil {
		log.Warnf("hub shutdown error: %v", err)
	}
	if err := app.auditSink.Close(); err != nil {
		log.Warnf("audit sink shutdown error: %v", err)
	}
	if err := app.store.Close(); err != nil {
		log.Warnf("store shutdown error: %v", err)
	}

	log.Info("examhub shutdown complete")
	return nil
}

// Addr returns the configured listen address.
func (app *Application) Addr() string {
	return app.httpServer.Addr
}
