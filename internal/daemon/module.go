package daemon

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/avelar/chatd/internal/auth"
	"github.com/avelar/chatd/internal/backplane"
	"github.com/avelar/chatd/internal/chat"
	"github.com/avelar/chatd/internal/config"
	"github.com/avelar/chatd/internal/gateway"
	"github.com/avelar/chatd/internal/lock"
	"github.com/avelar/chatd/internal/logging"
	"github.com/avelar/chatd/internal/presence"
	"github.com/avelar/chatd/internal/rooms"
	"github.com/avelar/chatd/internal/store"
)

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks around a loaded configuration.
func Module(cfg *config.Config) fx.Option {
	return fx.Module("daemon",
		fx.Supply(cfg),
		fx.Provide(
			provideLogger,
			provideLock,
			provideStore,
			provideBackplane,
			provideRegistry,
			provideRooms,
			provideAccess,
			provideEngine,
			provideBroadcaster,
			provideReceipts,
			provideAuthenticator,
			provideDeps,
			gateway.NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.LogPath())
}

func provideLock(cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring instance lock", zap.String("data_dir", cfg.DataDir))
	l, err := lock.Acquire(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	logger.Info("instance lock acquired")
	return l, nil
}

func provideStore(cfg *config.Config, logger *zap.Logger, _ *lock.Lock) (*store.DB, error) {
	db, err := store.Open(cfg.DBPath())
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
	logger.Info("store initialized", zap.String("path", cfg.DBPath()))
	return db, nil
}

func provideBackplane(cfg *config.Config, logger *zap.Logger) (backplane.Publisher, error) {
	if cfg.BackplaneRedisURL == "" {
		return backplane.Noop{}, nil
	}
	plane, err := backplane.NewRedis(cfg.BackplaneRedisURL, cfg.BackplaneRedisChannel)
	if err != nil {
		return nil, err
	}
	logger.Info("presence backplane connected", zap.String("channel", cfg.BackplaneRedisChannel))
	return plane, nil
}

func provideRegistry() *presence.Registry {
	return presence.NewRegistry()
}

func provideRooms() *rooms.Table {
	return rooms.NewTable()
}

func provideAccess(db *store.DB) *chat.Access {
	return chat.NewAccess(db)
}

func provideEngine(cfg *config.Config, db *store.DB, reg *presence.Registry, access *chat.Access, logger *zap.Logger) *chat.Engine {
	return chat.NewEngine(db, reg, access, logger, cfg.FanoutWorkers, cfg.PreviewLength)
}

func provideBroadcaster(db *store.DB, reg *presence.Registry, tbl *rooms.Table, plane backplane.Publisher, logger *zap.Logger) *chat.Broadcaster {
	return chat.NewBroadcaster(db, reg, tbl, plane, logger)
}

func provideReceipts(db *store.DB, reg *presence.Registry, access *chat.Access, logger *zap.Logger) *chat.Receipts {
	return chat.NewReceipts(db, reg, access, logger)
}

func provideAuthenticator(cfg *config.Config, db *store.DB) *auth.Authenticator {
	return auth.New(cfg.AuthSecret, cfg.TokenTTL.Duration, db)
}

func provideDeps(db *store.DB, reg *presence.Registry, tbl *rooms.Table, engine *chat.Engine, b *chat.Broadcaster, r *chat.Receipts) gateway.Deps {
	return gateway.Deps{
		DB:          db,
		Registry:    reg,
		Rooms:       tbl,
		Engine:      engine,
		Broadcaster: b,
		Receipts:    r,
	}
}

func registerLifecycle(lc fx.Lifecycle, cfg *config.Config, srv *gateway.Server, engine *chat.Engine, plane backplane.Publisher, db *store.DB, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			engine.Start(context.Background())

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gateway server error", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout.Duration)
			defer cancel()
			if err := srv.Stop(shutdownCtx); err != nil {
				logger.Warn("error stopping gateway", zap.Error(err))
			}
			engine.Stop()
			if err := plane.Close(); err != nil {
				logger.Warn("error closing backplane", zap.Error(err))
			}
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
