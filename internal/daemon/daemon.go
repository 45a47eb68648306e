package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/touchsync/touchsync/internal/api"
	"github.com/touchsync/touchsync/internal/app/engagement"
	"github.com/touchsync/touchsync/internal/domain"
	"github.com/touchsync/touchsync/internal/health"
	"github.com/touchsync/touchsync/internal/infra/firestore"
	"github.com/touchsync/touchsync/internal/infra/memstore"
	"github.com/touchsync/touchsync/internal/infra/sqlite"
	"github.com/touchsync/touchsync/internal/logging"
)

// Daemon is the engagement runtime. It wires together all services.
type Daemon struct {
	Config        Config
	Log           *zap.Logger
	Store         domain.Store
	Bus           *engagement.Bus
	Notifications *engagement.NotificationService
	Manager       *engagement.Manager
	Health        *health.Checker
	Server        *api.Server

	verifier api.Verifier
	cancel   context.CancelFunc
}

// New loads the config and creates a Daemon with all services wired.
func New(ctx context.Context, version string) (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, _, err := logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return nil, err
	}
	return NewWithConfig(ctx, cfg, logger, version)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(ctx context.Context, cfg Config, logger *zap.Logger, version string) (*Daemon, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	store, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	clock := engagement.SystemClock{Location: loc}
	bus := engagement.NewBus(clock, logger)
	notifs := engagement.NewNotificationServiceWithPolicy(store, cfg.Engagement.Notifications, clock, logger)
	bus.Subscribe(notifs.Handle)

	mgr := engagement.NewManager(engagement.ManagerConfig{
		Store:         store,
		Bus:           bus,
		Clock:         clock,
		Targets:       cfg.Engagement.Goals,
		Notifications: notifs,
		Logger:        logger,
		MaxProfiles:   cfg.Engagement.MaxProfiles,
		ProfileIdle:   cfg.Engagement.ProfileIdle.Duration,
	})

	dataDir := ""
	if cfg.Store.Driver == "sqlite" {
		dataDir = cfg.Store.Dir
	}
	checker := health.NewChecker(store, dataDir, cfg.Health.Interval.Duration, logger)

	verifier, err := api.NewVerifier(api.AuthConfig{
		Mode:     cfg.Auth.Mode,
		Secret:   cfg.Auth.Secret,
		JWKSURL:  cfg.Auth.JWKSURL,
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
	}, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("auth: %w", err)
	}

	srv := api.NewServer(api.ServerConfig{
		Manager:        mgr,
		Health:         checker,
		Verifier:       verifier,
		Logger:         logger,
		Version:        version,
		CORSOrigins:    cfg.API.CORSOrigins,
		RequestTimeout: cfg.API.RequestTimeout.Duration,
		Metrics:        cfg.API.Metrics,
	})

	return &Daemon{
		Config:        cfg,
		Log:           logger,
		Store:         store,
		Bus:           bus,
		Notifications: notifs,
		Manager:       mgr,
		Health:        checker,
		Server:        srv,
		verifier:      verifier,
	}, nil
}

// OpenStore opens the persistence backend named by cfg.Driver.
func OpenStore(ctx context.Context, cfg StoreConfig) (domain.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		db, err := sqlite.Open(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		return db, nil
	case "firestore":
		if cfg.FirestoreEmulatorHost != "" {
			if err := os.Setenv("FIRESTORE_EMULATOR_HOST", cfg.FirestoreEmulatorHost); err != nil {
				return nil, fmt.Errorf("set emulator host: %w", err)
			}
		}
		s, err := firestore.Open(ctx, cfg.FirestoreProject)
		if err != nil {
			return nil, fmt.Errorf("open firestore: %w", err)
		}
		return s, nil
	case "memory":
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownStoreDriver, cfg.Driver)
	}
}

// Serve starts the HTTP server and background checks, blocking until ctx is
// done or SIGINT/SIGTERM arrives.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	defer cancel()

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d.Health.Run(gctx)
		return nil
	})
	g.Go(func() error {
		d.Manager.IdleReaper(gctx, d.Config.Health.Interval.Duration)
		return nil
	})
	g.Go(func() error {
		d.Log.Info("serving",
			zap.String("addr", addr),
			zap.String("store", d.Config.Store.Driver),
			zap.String("auth", d.Config.Auth.Mode),
			zap.Bool("metrics", d.Config.API.Metrics))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		d.Log.Info("shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	d.Close()
	return err
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if c, ok := d.verifier.(interface{ Close() }); ok {
		c.Close()
	}
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			d.Log.Warn("close store", zap.Error(err))
		}
		d.Store = nil
	}
	_ = d.Log.Sync()
}
