package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/polarlyst/arbmonitor/internal/blob/s3"
	"github.com/polarlyst/arbmonitor/internal/cache/redis"
	"github.com/polarlyst/arbmonitor/internal/config"
	"github.com/polarlyst/arbmonitor/internal/domain"
	"github.com/polarlyst/arbmonitor/internal/notify"
	"github.com/polarlyst/arbmonitor/internal/store/postgres"
)

// Dependencies bundles every backend dependency that the application modes
// need to operate. Optional backends stay nil when disabled in config; the
// opportunity service and handlers degrade gracefully without them. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Caches and messaging (Redis).
	SnapshotCache domain.SnapshotCache
	SignalBus     domain.SignalBus
	RateLimiter   domain.RateLimiter
	RedisClient   *redis.Client

	// Persistence (Postgres).
	OpportunityStore domain.OpportunityStore
	AlertStore       domain.AlertStore
	PostgresClient   *postgres.Client

	// Cold storage (S3).
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.SnapshotArchiver

	// Notifications.
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.RedisClient = redisClient
		deps.SnapshotCache = redis.NewSnapshotCache(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
	}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.PostgresClient = pgClient
		deps.OpportunityStore = postgres.NewOpportunityStore(pool)
		deps.AlertStore = postgres.NewAlertStore(pool)
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		writer := s3blob.NewWriter(s3Client)
		deps.BlobWriter = writer
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(writer, logger)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
