// Package app assembles the gateway from its configuration: adapters first,
// then services, then the HTTP handler.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"github.com/dharsanguruparan/RecordGate/internal/api"
	"github.com/dharsanguruparan/RecordGate/internal/auth"
	"github.com/dharsanguruparan/RecordGate/internal/bulk"
	"github.com/dharsanguruparan/RecordGate/internal/config"
	"github.com/dharsanguruparan/RecordGate/internal/database"
	"github.com/dharsanguruparan/RecordGate/internal/logging"
	"github.com/dharsanguruparan/RecordGate/internal/logs"
	"github.com/dharsanguruparan/RecordGate/internal/prio"
	"github.com/dharsanguruparan/RecordGate/internal/processing"
	"github.com/dharsanguruparan/RecordGate/internal/queue"
	"github.com/dharsanguruparan/RecordGate/internal/repository"
	"github.com/dharsanguruparan/RecordGate/internal/s3storage"
	"github.com/dharsanguruparan/RecordGate/internal/server"
	"github.com/dharsanguruparan/RecordGate/internal/settings"
	"github.com/dharsanguruparan/RecordGate/internal/sru"
	"github.com/dharsanguruparan/RecordGate/internal/storage"
)

// Collection names of the two job kinds.
const (
	PrioCollection = "prio"
	BulkCollection = "bulk"
)

// App holds the assembled gateway.
type App struct {
	Config    *config.Config
	PrioStore storage.Store
	BulkStore storage.Store
	LogStore  repository.LogStore
	Prio      *prio.Service
	Bulk      *bulk.Service
	Logs      *logs.Service
	Handler   http.Handler

	pool    *processing.Processor
	closers []closer
	logger  *log.Entry
}

type closer struct {
	name  string
	close func() error
}

type backends struct {
	mongo   *mongo.Client
	pg      *pgxpool.Pool
	content bulk.ContentStore
}

// New connects every configured backend and builds the services. Backends
// that are not configured fall back to in-memory implementations.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, logger: logging.For("app")}

	b, err := a.connect(ctx, cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	storeOpts := storage.Options{StaleAfter: cfg.StaleAfter}
	if b.mongo != nil {
		db := b.mongo.Database(cfg.MongoDatabase)
		prioStore := storage.NewMongoStore(db, PrioCollection, storeOpts)
		bulkStore := storage.NewMongoStore(db, BulkCollection, storeOpts)
		for _, s := range []*storage.MongoStore{prioStore, bulkStore} {
			if err := s.EnsureIndexes(ctx); err != nil {
				_ = a.Close()
				return nil, err
			}
		}
		a.PrioStore, a.BulkStore = prioStore, bulkStore
	} else {
		a.logger.Warn("using in-memory queue item store")
		a.PrioStore = storage.NewMemoryStore(storeOpts)
		a.BulkStore = storage.NewMemoryStore(storeOpts)
	}

	if b.pg != nil {
		a.LogStore = repository.NewLogRepository(b.pg)
	} else {
		a.logger.Warn("DATABASE_URL not set, using in-memory audit log")
		a.LogStore = repository.NewMemoryLogRepository()
	}

	var broker queue.Broker
	if cfg.StoreBackend == config.StoreMemory {
		broker = queue.NewMemoryBroker()
	} else {
		ab := queue.NewAsynqBroker(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		a.closers = append(a.closers, closer{"redis", ab.Close})
		broker = ab
	}

	var records prio.RecordReader
	if cfg.SRUURL != "" {
		records = sru.New(cfg.SRUURL, &http.Client{Timeout: 30 * time.Second})
	}

	authn, err := auth.Parse(cfg.APIUsers)
	if err != nil {
		_ = a.Close()
		return nil, errors.Wrap(err, "parse API_USERS")
	}
	if authn.Len() == 0 {
		a.logger.Warn("API_USERS is empty, every authenticated route will answer 401")
	}

	a.pool = processing.New(cfg.CleanupWorkers, logging.For("processing"))
	a.Prio = prio.NewService(a.PrioStore, broker, records, prio.Options{
		PollWaitTime:    cfg.PollWaitTime,
		PollMaxDuration: cfg.PollMaxDuration,
		Pool:            a.pool,
		Logger:          logging.For("prio"),
	})
	a.Bulk = bulk.NewService(a.BulkStore, broker, b.content, cfg.ChunkSize, logging.For("bulk"))
	a.Logs = logs.NewService(a.LogStore, logging.For("logs"), nil)

	a.Handler = api.New(api.Deps{
		Prio:     a.Prio,
		Bulk:     a.Bulk,
		Logs:     a.Logs,
		Auth:     authn,
		Resolver: settings.Resolver{RecordType: cfg.RecordType, FixTypes: cfg.FixTypes},
		Options: api.Options{
			DefaultAccept:      cfg.DefaultAccept,
			AllowedLibs:        cfg.AllowedLibs,
			RequireAuthForRead: cfg.RequireAuthForRead,
			RequireKVPForWrite: cfg.RequireKVPForWrite,
			MaxBodyBytes:       cfg.MaxBodyBytes,
			TrustProxy:         cfg.EnableProxy,
		},
		Logger: logging.For("api"),
	})
	return a, nil
}

// connect opens MongoDB, PostgreSQL and the content bucket concurrently.
func (a *App) connect(ctx context.Context, cfg *config.Config) (*backends, error) {
	b := &backends{}
	g, gctx := errgroup.WithContext(ctx)

	if cfg.StoreBackend == config.StoreMongo {
		g.Go(func() error {
			client, err := storage.Connect(gctx, cfg.MongoURI)
			if err != nil {
				return err
			}
			b.mongo = client
			return nil
		})
	}
	if cfg.DatabaseURL != "" {
		g.Go(func() error {
			pool, err := database.Connect(gctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			b.pg = pool
			return database.EnsureSchema(gctx, pool)
		})
	}
	if cfg.S3Endpoint != "" {
		g.Go(func() error {
			s3, err := s3storage.New(cfg)
			if err != nil {
				return err
			}
			if err := s3.EnsureBucket(gctx); err != nil {
				return err
			}
			b.content = s3
			return nil
		})
	}
	err := g.Wait()

	if b.mongo != nil {
		client := b.mongo
		a.closers = append(a.closers, closer{"mongo", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return client.Disconnect(ctx)
		}})
	}
	if b.pg != nil {
		pool := b.pg
		a.closers = append(a.closers, closer{"postgres", func() error {
			pool.Close()
			return nil
		}})
	}
	if err != nil {
		return nil, err
	}
	if b.content == nil {
		a.logger.Warn("S3_ENDPOINT not set, keeping bulk content in memory")
		b.content = storage.NewMemoryContent()
	}
	return b, nil
}

// Run starts the cleanup pool and serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.pool.Start(ctx)
	err := server.New(a.Config.Address(), a.Handler, logging.For("server")).ListenAndServe(ctx)
	cancel()
	a.pool.Wait()
	return err
}

// Close releases every backend, reporting all failures together.
func (a *App) Close() error {
	var result *multierror.Error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "close %s", c.name))
		}
	}
	a.closers = nil
	return result.ErrorOrNil()
}
