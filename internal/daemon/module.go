package daemon

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/matheus3301/imsync/internal/api"
	"github.com/matheus3301/imsync/internal/bus"
	"github.com/matheus3301/imsync/internal/config"
	"github.com/matheus3301/imsync/internal/directory"
	"github.com/matheus3301/imsync/internal/gateway"
	"github.com/matheus3301/imsync/internal/idgen"
	"github.com/matheus3301/imsync/internal/lock"
	"github.com/matheus3301/imsync/internal/logging"
	"github.com/matheus3301/imsync/internal/outbox"
	"github.com/matheus3301/imsync/internal/session"
	"github.com/matheus3301/imsync/internal/status"
	"github.com/matheus3301/imsync/internal/store"
	intsync "github.com/matheus3301/imsync/internal/sync"
	"github.com/matheus3301/imsync/internal/timeline"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string // optional override for testing; empty = use default
	ConfigPath  string // optional override; empty = ~/.imsync/config.toml
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideClock,
			provideLock,
			provideStore,
			provideEventHandler,
			provideGateway,
			provideDirectory,
			provideSender,
			provideCoordinator,
			provideService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	path := p.ConfigPath
	if path == "" {
		path = session.ConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName, cfg.LogLevel)
}

func provideBus(logger *zap.Logger) *bus.Bus {
	b := bus.New()
	b.SetLogger(logger.Named("bus"))
	return b
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideClock() *idgen.Clock {
	return idgen.New()
}

func provideLock(p Params, cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName), cfg.UserID)
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.AppDBPath(p.SessionName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideEventHandler(b *bus.Bus, m *status.Machine, logger *zap.Logger) *gateway.EventHandler {
	return gateway.NewEventHandler(b, m, logger.Named("events"))
}

func provideGateway(cfg *config.Config, clock *idgen.Clock, m *status.Machine, h *gateway.EventHandler, logger *zap.Logger) *gateway.Client {
	return gateway.NewClient(gateway.Options{
		Addr:       cfg.GatewayAddr,
		UserID:     cfg.UserID,
		Token:      cfg.Token,
		PlatformID: cfg.PlatformID,
	}, clock, m, h, logger.Named("gateway"))
}

func provideDirectory(cfg *config.Config, clock *idgen.Clock, logger *zap.Logger) *directory.Client {
	return directory.NewClient(cfg.APIAddr, cfg.Token, clock, nil, logger.Named("directory"))
}

func provideSender(db *store.DB, gw *gateway.Client, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(db, gw, b, logger.Named("outbox"))
}

func provideCoordinator(
	cfg *config.Config,
	gw *gateway.Client,
	dir *directory.Client,
	db *store.DB,
	b *bus.Bus,
	m *status.Machine,
	clock *idgen.Clock,
	sender *outbox.Sender,
	logger *zap.Logger,
) *intsync.Coordinator {
	return intsync.New(intsync.Deps{
		Messaging: gw,
		Profiles:  dir,
		DB:        db,
		Bus:       b,
		Machine:   m,
		Clock:     clock,
		Outbox:    sender,
		Logger:    logger.Named("sync"),
	}, intsync.Options{
		UserID:          cfg.UserID,
		AdminUserID:     cfg.AdminUserID,
		PageSize:        cfg.PageSize,
		GalleryPageSize: cfg.GalleryPageSize,
		Grouping:        timeline.ParsePolicy(cfg.Grouping),
		TypingDebounce:  cfg.TypingDebounce(),
	})
}

func provideService(p Params, c *intsync.Coordinator, b *bus.Bus, logger *zap.Logger) *api.Service {
	return api.NewService(p.SessionName, c, b, logger.Named("api"))
}

func registerLifecycle(
	lc fx.Lifecycle,
	srv *Server,
	lk *lock.Lock,
	db *store.DB,
	gw *gateway.Client,
	coordinator *intsync.Coordinator,
	sender *outbox.Sender,
	logger *zap.Logger,
) {
	runCtx, cancel := context.WithCancel(context.Background())
	gatewayDone := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Restores the cached room list and follows the connection state.
			coordinator.Start(runCtx)

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			sender.Start(runCtx)

			go func() {
				defer close(gatewayDone)
				gw.Run(runCtx)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case <-gatewayDone:
			case <-ctx.Done():
				logger.Warn("gateway did not stop in time")
			}
			gw.Close()
			sender.Stop()
			coordinator.Stop()
			srv.Stop(ctx)
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
