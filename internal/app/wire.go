package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	s3blob "github.com/okay456okay/crypto-earn-sub001/internal/blob/s3"
	"github.com/okay456okay/crypto-earn-sub001/internal/cache/redis"
	"github.com/okay456okay/crypto-earn-sub001/internal/config"
	"github.com/okay456okay/crypto-earn-sub001/internal/domain"
	"github.com/okay456okay/crypto-earn-sub001/internal/metrics"
	"github.com/okay456okay/crypto-earn-sub001/internal/notify"
	"github.com/okay456okay/crypto-earn-sub001/internal/store/postgres"
	"github.com/okay456okay/crypto-earn-sub001/internal/venue/binance"
	"github.com/okay456okay/crypto-earn-sub001/internal/venue/bybit"
)

// lockTTL bounds how long a crashed process keeps its instrument locked.
const lockTTL = time.Minute

// Dependencies bundles everything the hedge session needs. Optional
// backends (Store, Bus, Reports, Lock, Notifier, Reservoir) are nil when
// disabled in configuration; the session skips the corresponding output.
type Dependencies struct {
	Spot      domain.VenueAdapter
	Contract  domain.VenueAdapter
	Reservoir domain.CapitalReservoir

	Store    domain.TradeStore
	Bus      domain.EventBus
	Reports  domain.ReportWriter
	Lock     domain.SessionLock
	Notifier domain.Notifier

	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
}

// Wire constructs concrete implementations from cfg and returns them with
// a cleanup function that releases resources in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	registry := prometheus.NewRegistry()
	deps := &Dependencies{
		Metrics:  metrics.New(registry),
		Registry: registry,
	}

	deps.Spot = binance.New(cfg.Binance.ApiKey, cfg.Binance.ApiSecret, cfg.Binance.BaseURL, logger)
	deps.Contract = bybit.New(cfg.Bybit.ApiKey, cfg.Bybit.ApiSecret, cfg.Bybit.BaseURL, cfg.Bybit.WsURL, logger)
	if cfg.Hedge.UseEarnReservoir {
		deps.Reservoir = binance.NewEarnReservoir(cfg.Binance.ApiKey, cfg.Binance.ApiSecret, cfg.Binance.BaseURL, logger)
	}

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
		deps.Store = postgres.NewHedgeStore(pgClient.Pool())
	}

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

		deps.Lock = redis.NewSessionLock(redisClient, cfg.Hedge.Instrument, lockTTL)
		deps.Bus = redis.NewEventBus(redisClient)
	}

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
		deps.Reports = s3blob.NewReportWriter(s3Client)
	}

	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.New(senders, logger)
	}

	return deps, cleanup, nil
}
