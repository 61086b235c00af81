package main

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/interview-cli/internal/events"
	"github.com/sells-group/interview-cli/internal/interview"
	"github.com/sells-group/interview-cli/internal/lock"
	"github.com/sells-group/interview-cli/internal/metrics"
	"github.com/sells-group/interview-cli/internal/model"
	"github.com/sells-group/interview-cli/internal/reasoning"
	"github.com/sells-group/interview-cli/internal/registry"
	"github.com/sells-group/interview-cli/internal/store"
	"github.com/sells-group/interview-cli/pkg/notion"
)

// interviewEnv holds the store, collaborators and service needed by the
// serve/chat/start commands.
type interviewEnv struct {
	Store   store.Store
	Service *interview.Service
	Metrics *metrics.Metrics

	closers []func() error
}

// Close releases resources in reverse order of acquisition.
func (e *interviewEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			zap.L().Warn("close resource", zap.Error(err))
		}
	}
	e.closers = nil
}

// initStore opens the configured session store.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "interview.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore opens and migrates the store for commands that only read or
// create sessions.
func openStore(ctx context.Context, mode string) (store.Store, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func initLocker() (lock.Locker, func() error, error) {
	switch cfg.Lock.Driver {
	case "", "local":
		return lock.NewLocal(), nil, nil
	case "redis":
		l, closeFn, err := lock.NewRedisFromURL(cfg.Lock.RedisURL, cfg.LockTTL())
		if err != nil {
			return nil, nil, eris.Wrap(err, "init redis lock")
		}
		zap.L().Info("using redis session lock", zap.Duration("ttl", cfg.LockTTL()))
		return l, closeFn, nil
	default:
		return nil, nil, eris.Errorf("unsupported lock driver: %s", cfg.Lock.Driver)
	}
}

func initEvents() (events.Publisher, error) {
	switch cfg.Events.Driver {
	case "", "none":
		return events.Nop{}, nil
	case "nats":
		pub, err := events.ConnectNATS(cfg.Events.NATSURL, cfg.Events.SubjectPrefix)
		if err != nil {
			return nil, eris.Wrap(err, "init nats events")
		}
		zap.L().Info("publishing interview events to nats",
			zap.String("prefix", cfg.Events.SubjectPrefix),
		)
		return pub, nil
	default:
		return nil, eris.Errorf("unsupported events driver: %s", cfg.Events.Driver)
	}
}

// initInterview builds the full turn pipeline. mode is passed to config
// validation. Callers should defer env.Close().
func initInterview(ctx context.Context, mode string) (*interviewEnv, error) {
	st, err := openStore(ctx, mode)
	if err != nil {
		return nil, err
	}
	env := &interviewEnv{Store: st, Metrics: metrics.New()}
	env.closers = append(env.closers, st.Close)

	svc, err := reasoning.New(ctx, cfg, env.Metrics)
	if err != nil {
		env.Close()
		return nil, err
	}

	locker, closeLock, err := initLocker()
	if err != nil {
		env.Close()
		return nil, err
	}
	if closeLock != nil {
		env.closers = append(env.closers, closeLock)
	}

	pub, err := initEvents()
	if err != nil {
		env.Close()
		return nil, err
	}
	env.closers = append(env.closers, pub.Close)

	engine := interview.NewEngine(svc, interview.OptionsFromConfig(cfg.Interview), env.Metrics)
	env.Service = interview.NewService(interview.ServiceDeps{
		Engine:   engine,
		Store:    st,
		Locker:   locker,
		Events:   pub,
		Metrics:  env.Metrics,
		LockWait: time.Duration(cfg.Interview.LockWaitSecs) * time.Second,
	})
	return env, nil
}

// loadCatalog reads the catalog from Notion when fromNotion is set, else
// from path.
func loadCatalog(ctx context.Context, path string, fromNotion bool) (*model.Catalog, error) {
	if fromNotion {
		if cfg.Notion.Token == "" || cfg.Notion.CatalogDB == "" {
			return nil, eris.New("notion.token and notion.catalog_db are required for --notion")
		}
		c, err := registry.LoadCatalogNotion(ctx, notion.NewClient(cfg.Notion.Token), cfg.Notion.CatalogDB)
		if errors.Is(err, notion.ErrDatabaseNotFound) {
			return nil, eris.Wrapf(err, "check notion.catalog_db (%s)", cfg.Notion.CatalogDB)
		}
		return c, err
	}
	return registry.LoadCatalogFile(path)
}
