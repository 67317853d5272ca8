package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/blockmart/marketd/internal/blob/s3"
	"github.com/blockmart/marketd/internal/cache/redis"
	"github.com/blockmart/marketd/internal/config"
	"github.com/blockmart/marketd/internal/domain"
	"github.com/blockmart/marketd/internal/notify"
	"github.com/blockmart/marketd/internal/platform/payments"
	"github.com/blockmart/marketd/internal/platform/registry"
	"github.com/blockmart/marketd/internal/platform/storefront"
	"github.com/blockmart/marketd/internal/store/memory"
	"github.com/blockmart/marketd/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	Listings    domain.ListingStore
	Bids        domain.BidStore
	Offers      domain.OfferStore
	Settlements domain.SettlementStore
	Sales       domain.SaleStore
	Activity    domain.ActivityStore

	// Caches and coordination
	AssetCache  domain.AssetCache
	StatsCache  domain.StatsCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// External platform clients
	Catalog  domain.CatalogClient
	Payments domain.PaymentExecutor
	Registry domain.CollectionRegistry

	// Notifications
	Notifier *notify.Notifier
}

// needsS3 returns true when cold-storage archival will run.
func needsS3(cfg *config.Config) bool {
	return cfg.Pipeline.ArchiveEnabled || strings.ToLower(cfg.Mode) == "archive"
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

	// --- Persistence ---
	switch strings.ToLower(cfg.Storage) {
	case "postgres":
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
		deps.Listings = postgres.NewListingStore(pool)
		deps.Bids = postgres.NewBidStore(pool)
		deps.Offers = postgres.NewOfferStore(pool)
		deps.Settlements = postgres.NewSettlementStore(pool)
		deps.Sales = postgres.NewSaleStore(pool)
		deps.Activity = postgres.NewActivityStore(pool)
	case "memory":
		mem := memory.New()
		deps.Listings = mem.Listings()
		deps.Bids = mem.Bids()
		deps.Offers = mem.Offers()
		deps.Settlements = mem.Settlements()
		deps.Sales = mem.Sales()
		deps.Activity = mem.Activity()
	default:
		return nil, nil, fmt.Errorf("wire: unsupported storage %q", cfg.Storage)
	}

	// In-process lock manager as the fallback; Redis replaces it below when
	// enabled so locks hold across multiple engine instances.
	deps.LockManager = memory.NewLockManager()

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

		deps.AssetCache = redis.NewAssetCache(redisClient)
		deps.StatsCache = redis.NewStatsCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
	}

	// --- S3 blob storage (only when archival runs) ---
	if needsS3(cfg) {
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

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.Sales, deps.Activity)
	}

	// --- External platform clients (all optional) ---
	if cfg.Catalog.BaseURL != "" {
		deps.Catalog = storefront.NewClient(cfg.Catalog.BaseURL, cfg.Catalog.APIKey)
	}
	if cfg.Payments.BaseURL != "" {
		deps.Payments = payments.NewClient(cfg.Payments.BaseURL, cfg.Payments.APIKey)
	}
	if cfg.Registry.BaseURL != "" {
		deps.Registry = registry.NewClient(cfg.Registry.BaseURL, cfg.Registry.APIKey)
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
