// Package app assembles the services from configuration. Both the HTTP
// server and the operator CLI build their dependency graph here.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/optin/internal/api"
	"github.com/ignite/optin/internal/audit"
	"github.com/ignite/optin/internal/config"
	"github.com/ignite/optin/internal/pkg/distlock"
	"github.com/ignite/optin/internal/pkg/logger"
	"github.com/ignite/optin/internal/repository/dynamo"
	"github.com/ignite/optin/internal/repository/memory"
	"github.com/ignite/optin/internal/repository/postgres"
	"github.com/ignite/optin/internal/repository/snapshot"
	"github.com/ignite/optin/internal/service/campaign"
	"github.com/ignite/optin/internal/service/imports"
	"github.com/ignite/optin/internal/service/ledger"
	"github.com/ignite/optin/internal/service/ratelimit"
	"github.com/ignite/optin/internal/service/subscription"
	"github.com/ignite/optin/internal/service/suppression"
	"github.com/ignite/optin/internal/service/webhook"
	"github.com/ignite/optin/internal/storage"
	"github.com/ignite/optin/internal/transport"
)

// App holds the wired services and the connections they share.
type App struct {
	Config        *config.Config
	DB            *sql.DB
	Redis         *redis.Client
	Blob          storage.Blob
	Ledger        *ledger.Ledger
	Suppression   *suppression.Service
	Subscriptions *subscription.Service
	Campaigns     *campaign.Service
	Webhooks      *webhook.Service
	Imports       *imports.Service

	sink audit.Sink
}

// New connects to the configured backends and builds every service. A
// database or Redis that cannot be reached is a startup error; leaving one
// unconfigured selects the in-process fallback instead.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))

	a := &App{Config: cfg}
	var err error

	if a.DB, err = openDB(ctx, cfg.Database); err != nil {
		return nil, err
	}
	if a.Redis, err = openRedis(ctx, cfg.Redis); err != nil {
		a.Close()
		return nil, err
	}
	if a.Blob, err = storage.New(ctx, cfg.Storage); err != nil {
		a.Close()
		return nil, err
	}

	suppRepo, err := a.suppressionRepo(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Suppression = suppression.NewService(suppRepo)

	a.sink, err = a.auditSink()
	if err != nil {
		a.Close()
		return nil, err
	}
	var store ledger.Store
	if a.DB != nil {
		store = postgres.NewLedgerStore(a.DB)
	} else {
		logger.Warn("app: DATABASE_URL not set, ledger is in-memory")
		store = memory.NewLedgerStore()
	}
	a.Ledger = ledger.New(store, a.sink)

	counter, err := a.rateCounter()
	if err != nil {
		a.Close()
		return nil, err
	}

	mailer, err := transport.New(ctx, cfg.Mail)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Subscriptions = subscription.NewService(a.Ledger, a.Suppression,
		ratelimit.NewLimiter(counter, cfg.RateLimit.PerMinute), mailer,
		subscription.Options{
			MinTokenLength:   cfg.Confirm.MinTokenLength,
			PublicBaseURL:    cfg.Server.PublicBaseURL,
			SendConfirmation: cfg.Confirm.SendOnSubscribe,
			From:             cfg.Mail.From,
			Subject:          cfg.Confirm.Subject,
		})

	var bucket storage.BucketGetter
	if s3b, ok := a.Blob.(*storage.S3); ok {
		bucket = s3b
	}
	lists := storage.NewListFetcher(a.Blob, bucket, nil)
	a.Campaigns = campaign.NewService(lists, a.Suppression, mailer, cfg.Bulk, cfg.Server.PublicBaseURL)
	a.Imports = imports.NewService(a.Blob)

	var verifier *webhook.Verifier
	if cfg.Webhook.Secret != "" {
		if verifier, err = webhook.NewVerifier(cfg.Webhook.Secret, cfg.Webhook.Tolerance()); err != nil {
			a.Close()
			return nil, fmt.Errorf("webhook secret: %w", err)
		}
	} else {
		logger.Warn("app: webhook secret not set, webhook ingestion disabled")
	}
	a.Webhooks = webhook.NewService(verifier, a.Ledger, a.Suppression)

	return a, nil
}

// Handlers exposes the services over HTTP.
func (a *App) Handlers() *api.Handlers {
	return api.NewHandlers(api.Deps{
		Subscriptions:   a.Subscriptions,
		Campaigns:       a.Campaigns,
		Webhooks:        a.Webhooks,
		Imports:         a.Imports,
		Ledger:          a.Ledger,
		Suppression:     a.Suppression,
		Health:          api.NewHealthChecker(a.DB, a.Redis, a.Suppression),
		RedirectBaseURL: a.Config.Confirm.RedirectBaseURL,
	})
}

// Close releases connections and flushes the audit sinks.
func (a *App) Close() {
	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			logger.Warn("app: closing audit sink", "error", err)
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

func openDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(30 * time.Second)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping: %w", err)
	}
	logger.Info("app: database connected")
	return db, nil
}

func openRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	var client *redis.Client
	if opts, err := redis.ParseURL(cfg.URL); err != nil {
		client = redis.NewClient(&redis.Options{Addr: cfg.URL})
	} else {
		client = redis.NewClient(opts)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	logger.Info("app: redis connected")
	return client, nil
}

func (a *App) suppressionRepo(ctx context.Context) (suppression.Repository, error) {
	cfg := a.Config.Suppression
	switch cfg.Backend {
	case "postgres":
		if a.DB == nil {
			return nil, fmt.Errorf("suppression backend postgres requires DATABASE_URL")
		}
		return postgres.NewSuppressionRepo(a.DB), nil
	case "dynamodb":
		return dynamo.NewSuppressionRepo(ctx, cfg.DynamoTable, a.Config.Storage.AWSRegion, a.Config.Storage.GetAWSProfile())
	case "snapshot":
		locks := distlock.NewFactory(a.Redis, a.DB, cfg.LockTTL())
		return snapshot.New(a.Blob, cfg.SnapshotKey, locks), nil
	default:
		return nil, fmt.Errorf("unknown suppression backend %q", cfg.Backend)
	}
}

func (a *App) rateCounter() (ratelimit.Counter, error) {
	backend := a.Config.RateLimit.Backend
	if backend == "auto" {
		switch {
		case a.Redis != nil:
			backend = "redis"
		case a.DB != nil:
			backend = "postgres"
		default:
			backend = "memory"
		}
	}
	switch backend {
	case "redis":
		if a.Redis == nil {
			return nil, fmt.Errorf("rate limit backend redis requires REDIS_URL")
		}
		return ratelimit.NewRedisCounter(a.Redis, ""), nil
	case "postgres":
		if a.DB == nil {
			return nil, fmt.Errorf("rate limit backend postgres requires DATABASE_URL")
		}
		return postgres.NewRateCounter(a.DB), nil
	case "memory":
		return memory.NewRateCounter(), nil
	default:
		return nil, fmt.Errorf("unknown rate limit backend %q", backend)
	}
}

func (a *App) auditSink() (audit.Sink, error) {
	sinks := audit.Multi{audit.LogSink{}}
	if len(a.Config.Audit.KafkaBrokers) > 0 {
		k, err := audit.NewKafkaSink(a.Config.Audit.KafkaBrokers, a.Config.Audit.KafkaTopic)
		if err != nil {
			return nil, fmt.Errorf("kafka audit sink: %w", err)
		}
		sinks = append(sinks, k)
	}
	return sinks, nil
}
