// Package daemon composes the long-running sync process: one locked
// session owning the gateway connection, the conversation-list
// synchronizer, the cache, and per-thread synchronizers on demand.
package daemon

import (
	"context"

	"github.com/flicksocial/flick/internal/api"
	"github.com/flicksocial/flick/internal/bus"
	"github.com/flicksocial/flick/internal/chatlist"
	"github.com/flicksocial/flick/internal/config"
	"github.com/flicksocial/flick/internal/gif"
	"github.com/flicksocial/flick/internal/lock"
	"github.com/flicksocial/flick/internal/logging"
	"github.com/flicksocial/flick/internal/readreceipt"
	"github.com/flicksocial/flick/internal/session"
	"github.com/flicksocial/flick/internal/store"
	"github.com/flicksocial/flick/internal/streak"
	"github.com/flicksocial/flick/internal/transport"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideConfig,
			provideLock,
			provideStore,
			provideTokenSource,
			provideAPIClient,
			provideGifClient,
			provideConn,
			provideReceipts,
			provideChatList,
			provideStreaks,
			provideThreads,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideConfig() (*config.Config, error) {
	return config.Load(session.ConfigPath())
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.CachePath(p.SessionName)
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
	logger.Info("cache initialized", zap.String("path", dbPath))
	return db, nil
}

func provideTokenSource(p Params) session.TokenSource {
	return session.NewFileTokenSource(p.SessionName)
}

func provideAPIClient(cfg *config.Config, ts session.TokenSource) *api.Client {
	return api.NewClient(cfg.API.BaseURL, ts)
}

func provideGifClient(cfg *config.Config) *gif.Client {
	return gif.NewClient(cfg.Gif.BaseURL, cfg.Gif.APIKey)
}

func provideConn(cfg *config.Config, ts session.TokenSource, b *bus.Bus, logger *zap.Logger) *transport.Conn {
	return transport.New(cfg.Realtime.URL, ts, b, logger)
}

func provideReceipts(client *api.Client, logger *zap.Logger) *readreceipt.Coordinator {
	return readreceipt.New(client, logger)
}

func provideChatList(client *api.Client, conn *transport.Conn, b *bus.Bus, db *store.DB, cfg *config.Config, logger *zap.Logger) *chatlist.Synchronizer {
	return chatlist.New(client, conn, b, db, logger, cfg.Paging.ConversationLimit)
}

func provideStreaks(client *api.Client, chats *chatlist.Synchronizer, b *bus.Bus, logger *zap.Logger) *streak.Service {
	return streak.NewService(client, chats, b, logger)
}

func provideThreads(client *api.Client, conn *transport.Conn, b *bus.Bus, db *store.DB, gifs *gif.Client, receipts *readreceipt.Coordinator, cfg *config.Config, logger *zap.Logger) *Threads {
	return &Threads{
		client:   client,
		conn:     conn,
		bus:      b,
		db:       db,
		gifs:     gifs,
		receipts: receipts,
		logger:   logger,
		selfID:   cfg.UserID,
		limit:    cfg.Paging.MessageLimit,
	}
}

func registerLifecycle(lc fx.Lifecycle, conn *transport.Conn, chats *chatlist.Synchronizer, db *store.DB, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// Subscribe the list synchronizer before the gateway comes
			// up so the first presence push is not missed.
			if err := chats.Start(ctx); err != nil {
				return err
			}
			go func() {
				if err := conn.Connect(context.Background()); err != nil {
					logger.Error("gateway connect failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			chats.Close()
			conn.Disconnect()
			if err := db.Close(); err != nil {
				logger.Warn("error closing cache", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
