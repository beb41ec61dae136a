// Package daemon composes the client's long-running process: session
// manager, conversation roster, local state store, and REST client wired
// together under an fx lifecycle.
package daemon

import (
	"context"
	"errors"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/nguyenlm11/staychat/internal/api"
	"github.com/nguyenlm11/staychat/internal/bus"
	"github.com/nguyenlm11/staychat/internal/chat"
	"github.com/nguyenlm11/staychat/internal/config"
	"github.com/nguyenlm11/staychat/internal/hub"
	"github.com/nguyenlm11/staychat/internal/lock"
	"github.com/nguyenlm11/staychat/internal/logging"
	"github.com/nguyenlm11/staychat/internal/roster"
	"github.com/nguyenlm11/staychat/internal/session"
	"github.com/nguyenlm11/staychat/internal/store"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	ConfigPath  string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideBus,
			provideLock,
			provideStore,
			provideAPIClient,
			provideDialer,
			provideCredentials,
			provideManager,
			provideRoster,
			NewThreads,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideConfig(p Params) (*config.Config, error) {
	path := p.ConfigPath
	if path == "" {
		path = session.ConfigPath()
	}
	return config.LoadOrDefault(path)
}

func provideBus(logger *zap.Logger) *bus.Registry {
	return bus.New(logger)
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
	dbPath := session.DBPath(p.SessionName)
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

func provideAPIClient(cfg *config.Config, db *store.DB, logger *zap.Logger) *api.Client {
	token := func() (string, error) {
		tok, err := db.Token()
		if errors.Is(err, store.ErrNotFound) {
			return "", nil
		}
		return tok, err
	}
	return api.NewClient(cfg.APIBaseURL, token, logger)
}

func provideDialer(logger *zap.Logger) *hub.WebsocketDialer {
	return &hub.WebsocketDialer{Logger: logger, Reconnect: hub.DefaultReconnectConfig()}
}

// storeCredentials adapts the local state store to the session manager's
// credential source.
type storeCredentials struct {
	db *store.DB
}

func (c storeCredentials) User() (chat.User, error) {
	u, err := c.db.User()
	if errors.Is(err, store.ErrNotFound) {
		return chat.User{}, session.ErrAuthMissing
	}
	return u, err
}

func provideCredentials(db *store.DB) session.CredentialSource {
	return storeCredentials{db: db}
}

func provideManager(cfg *config.Config, dialer *hub.WebsocketDialer, registry *bus.Registry, creds session.CredentialSource, logger *zap.Logger) *session.Manager {
	policy := session.RetryPolicy{
		Delays:     cfg.Retry.Delays(),
		MaxRetries: cfg.Retry.MaxRetries,
	}
	return session.NewManager(cfg.HubURL, dialer, registry, policy, creds, logger)
}

func provideRoster(creds session.CredentialSource, logger *zap.Logger) *roster.List {
	user, err := creds.User()
	if err != nil {
		// Nobody signed in yet; the roster stays scoped to an empty
		// local id until the next sign-in restarts the daemon.
		user = chat.User{}
	}
	return roster.NewList(user.ID, logger)
}

func registerLifecycle(lc fx.Lifecycle, mgr *session.Manager, list *roster.List, threads *Threads, db *store.DB, client *api.Client, creds session.CredentialSource, lk *lock.Lock, logger *zap.Logger) {
	reload := func(ctx context.Context) {
		user, err := creds.User()
		if err != nil {
			logger.Warn("roster reload skipped, no signed-in user", zap.Error(err))
			return
		}
		convs, err := client.ListConversations(ctx, user.ID)
		if err != nil {
			logger.Error("roster reload failed", zap.Error(err))
			return
		}
		list.BulkLoad(convs)
	}

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Subscribers are registered before connecting so no early
			// event is lost.
			mgr.Subscribe(bus.MessageReceived, list.HandleEvent)
			mgr.Subscribe(bus.NewConversation, list.HandleEvent)
			mgr.Subscribe(bus.MessageRead, list.HandleEvent)

			list.SetOnChange(func() {
				if err := db.SaveConversations(list.Conversations()); err != nil {
					logger.Warn("persist roster snapshot failed", zap.Error(err))
				}
			})
			list.SetOnReloadNeeded(func() {
				go reload(context.Background())
			})

			// Warm start from the cached snapshot before any network call.
			if cached, err := db.CachedConversations(); err != nil {
				logger.Warn("read cached roster failed", zap.Error(err))
			} else if len(cached) > 0 {
				list.BulkLoad(cached)
				logger.Info("roster warm start", zap.Int("conversations", len(cached)))
			}

			token, err := db.Token()
			if errors.Is(err, store.ErrNotFound) {
				logger.Warn("no stored token, staying offline until sign-in")
				return nil
			}
			if err != nil {
				return err
			}

			go func() {
				if _, err := mgr.Connect(context.Background(), token); err != nil {
					logger.Error("connect failed", zap.Error(err))
					return
				}
				reload(context.Background())
			}()
			return nil
		},
		OnStop: func(_ context.Context) error {
			threads.CloseAll()
			mgr.Disconnect()
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
