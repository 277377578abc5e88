// Package runtime wires configuration, storage, services and the HTTP server
// into a runnable process.
package runtime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"

	app "github.com/kanbanlab/boardsync/internal/app"
	"github.com/kanbanlab/boardsync/internal/app/httpapi"
	"github.com/kanbanlab/boardsync/internal/app/metrics"
	"github.com/kanbanlab/boardsync/internal/app/realtime"
	"github.com/kanbanlab/boardsync/internal/app/storage/postgres"
	"github.com/kanbanlab/boardsync/internal/config"
	"github.com/kanbanlab/boardsync/internal/middleware"
	"github.com/kanbanlab/boardsync/pkg/logger"
)

// Application wires core dependencies and manages the HTTP server lifecycle.
type Application struct {
	cfg        *config.Config
	log        *logger.Logger
	app        *app.Application
	httpServer *http.Server
	db         *sql.DB
}

// NewApplication constructs a new application instance with default wiring:
// postgres when DATABASE_URL is set, in-memory otherwise, and the redis
// broadcast bridge when REDIS_ADDR is set.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewApplicationWithConfig(cfg)
}

// NewApplicationWithConfig wires an application from an explicit config.
func NewApplicationWithConfig(cfg *config.Config) (*Application, error) {
	log := logger.New(logger.LoggingConfig{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		Component: "boardsync",
	})

	stores, db, err := buildStores(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("configure stores: %w", err)
	}

	application, err := app.New(stores, log)
	if err != nil {
		return nil, err
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		bridge := realtime.NewBridge(client, application.Hub, log)
		if err := application.UsePublisher(bridge); err != nil {
			return nil, err
		}
		if err := application.Attach(&bridgeRunner{bridge: bridge, client: client, log: log}); err != nil {
			return nil, err
		}
		log.WithField("addr", cfg.Redis.Addr).Info("redis broadcast bridge enabled")
	}

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		secret = "boardsync-dev-secret"
		log.Warn("JWT_SECRET not set; using development secret")
	}

	handler := httpapi.NewHandler(httpapi.Config{
		Boards:     application.Boards,
		Lists:      application.Lists,
		Cards:      application.Cards,
		Dispatcher: application.Dispatcher,
		Hub:        application.Hub,
		Publisher:  application.Publisher,
		AuditPath:  cfg.Audit.FilePath,
		Log:        log,
	})

	auth := middleware.NewAuthMiddleware([]byte(secret), log, []string{"/healthz", "/metrics"})
	limiter := middleware.NewRateLimiter(cfg.Server.RateLimitPerSecond, cfg.Server.RateLimitBurst, log)
	limiter.StartCleanup(time.Minute)
	cors := middleware.NewCORSMiddleware(cfg.Server.CORSOrigins)
	logging := middleware.LoggingMiddleware(log)

	var chained http.Handler = handler
	chained = limiter.Handler(chained)
	chained = auth.Handler(chained)
	chained = cors.Handler(chained)
	chained = logging(chained)
	chained = metrics.InstrumentHandler(chained)

	return &Application{
		cfg: cfg,
		log: log,
		app: application,
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:           chained,
			ReadHeaderTimeout: 10 * time.Second,
		},
		db: db,
	}, nil
}

// App exposes the wired service container.
func (a *Application) App() *app.Application {
	return a.app
}

// Handler exposes the fully chained HTTP handler.
func (a *Application) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run starts the background services and the HTTP server, blocking until the
// context is cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.WithField("addr", a.httpServer.Addr).Info("http server listening")
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server, the background services and the
// database connection.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := a.app.Stop(shutdownCtx); err != nil {
		a.log.WithError(err).Warn("error stopping services")
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("error closing database connection")
		}
	}
	return nil
}

func buildStores(cfg *config.Config, log *logger.Logger) (app.Stores, *sql.DB, error) {
	if cfg.Database.DSN == "" {
		log.Warn("DATABASE_URL not set; using in-memory store")
		return app.Stores{}, nil, nil
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return app.Stores{}, nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return app.Stores{}, nil, fmt.Errorf("ping database: %w", err)
	}

	if err := postgres.Migrate(db, cfg.Database.MigrationsDir); err != nil {
		_ = db.Close()
		return app.Stores{}, nil, fmt.Errorf("run migrations: %w", err)
	}

	store := postgres.New(db)
	return app.Stores{Boards: store, Snapshots: store, Ordering: store}, db, nil
}

// bridgeRunner adapts the redis bridge to the lifecycle manager. The bridge
// runs on its own context so it survives the request-scoped contexts that
// reach Start.
type bridgeRunner struct {
	bridge *realtime.Bridge
	client *redis.Client
	log    *logger.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func (b *bridgeRunner) Name() string { return "redis-bridge" }

func (b *bridgeRunner) Start(context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.done = make(chan struct{})

	go func() {
		defer close(b.done)
		if err := b.bridge.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			b.log.WithError(err).Error("redis bridge stopped")
		}
	}()
	return nil
}

func (b *bridgeRunner) Stop(ctx context.Context) error {
	if b.cancel != nil {
		b.cancel()
	}
	if b.done != nil {
		select {
		case <-b.done:
		case <-ctx.Done():
		}
	}
	return b.client.Close()
}
