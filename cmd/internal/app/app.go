// Package app wires the parley server runtime: config, logging, storage
// selection, HTTP routes, and the realtime gateway.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/jackc/pgx/v5/pgxpool"

	"parley/cmd/identity"
	"parley/cmd/internal/api"
	"parley/cmd/internal/auth/session"
	"parley/cmd/internal/chatlog"
	"parley/cmd/internal/realtime"
)

// App is the parley server runtime.
type App struct {
	cfg Config
	log Logger

	stores stores

	hub *realtime.Hub
	ws  *realtime.WSGateway
	api *api.Handler
}

// stores bundles the selected persistence backends and their lifecycle.
type stores struct {
	messages chatlog.Store
	sessions session.Store
	users    identity.Store

	pool      *pgxpool.Pool
	dbEnabled bool
}

func (s stores) Close(_ context.Context) error {
	// Pool-backed stores no-op here; the Badger store closes its own DB.
	_ = s.messages.Close()
	_ = s.sessions.Close()
	_ = s.users.Close()

	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}

	st, err := newStores(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	hub := realtime.NewHub(log, cfg.SubscriberQueue)

	ws := realtime.NewWSGateway(log, hub, st.messages, st.sessions, realtime.GatewayConfig{
		OriginRequired:    cfg.WSOriginRequired,
		AllowedOrigins:    cfg.WSAllowedOrigins,
		HeartbeatInterval: cfg.WSHeartbeatInterval,
		HeartbeatTimeout:  cfg.WSHeartbeatTimeout,
		DevInsecure:       cfg.WSDevInsecure,
	})

	apiCfg := api.DefaultConfig()
	apiCfg.MaxBodyBytes = cfg.MaxBodyBytes
	apiCfg.PostRateEvents = cfg.PostRateEvents
	apiCfg.PostRateWindow = cfg.PostRateWindow

	apiHandler, err := api.NewHandler(log, apiCfg, st.users, st.sessions, st.messages, hub)
	if err != nil {
		st.Close(context.Background())
		return nil, err
	}

	return &App{
		cfg:    cfg,
		log:    log,
		stores: st,
		hub:    hub,
		ws:     ws,
		api:    apiHandler,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal
// server error. It also owns the session sweeper goroutine.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.stores.pool, a.stores.dbEnabled, a.ws, a.api)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(mux, a.log),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go session.RunSweeper(sweepCtx, a.log, a.stores.sessions, a.cfg.SessionSweepInterval)

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.stores.dbEnabled)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	if err := a.stores.Close(shutdownCtx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// newStores selects persistence: Postgres when PARLEY_DATABASE_URL is set,
// Badger when PARLEY_BADGER_DIR is set, in-memory otherwise.
func newStores(ctx context.Context, cfg Config, log Logger) (stores, error) {
	sessCfg := session.DefaultConfig()
	if cfg.SessionTTL > 0 {
		sessCfg.TTL = cfg.SessionTTL
	}
	if cfg.SessionSweepInterval > 0 {
		sessCfg.SweepInterval = cfg.SessionSweepInterval
	}

	if cfg.DatabaseURL != "" {
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return stores{}, err
		}

		// Ownership model: the app owns the pool; the stores' Close() are no-ops.
		messages, err := chatlog.NewPostgresStore(pool)
		if err != nil {
			pool.Close()
			return stores{}, err
		}
		sessions, err := session.NewPostgresStore(sessCfg, pool)
		if err != nil {
			pool.Close()
			return stores{}, err
		}
		users, err := identity.NewPostgresStore(pool)
		if err != nil {
			pool.Close()
			return stores{}, err
		}

		log.Info("storage.postgres")
		return stores{messages: messages, sessions: sessions, users: users, pool: pool, dbEnabled: true}, nil
	}

	if cfg.BadgerDir != "" {
		db, err := badger.Open(badger.DefaultOptions(cfg.BadgerDir).WithLogger(nil))
		if err != nil {
			return stores{}, err
		}
		messages, err := chatlog.NewBadgerStore(db)
		if err != nil {
			_ = db.Close()
			return stores{}, err
		}
		sessions, err := session.NewMemoryStore(sessCfg)
		if err != nil {
			_ = db.Close()
			return stores{}, err
		}

		log.Info("storage.badger", "dir", cfg.BadgerDir)
		return stores{messages: messages, sessions: sessions, users: identity.NewMemoryStore()}, nil
	}

	sessions, err := session.NewMemoryStore(sessCfg)
	if err != nil {
		return stores{}, err
	}

	log.Info("storage.inmemory")
	return stores{messages: chatlog.NewMemoryStore(), sessions: sessions, users: identity.NewMemoryStore()}, nil
}
