package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/polybets/betrouter/internal/allocator"
	"github.com/polybets/betrouter/internal/archive"
	s3blob "github.com/polybets/betrouter/internal/blob/s3"
	"github.com/polybets/betrouter/internal/cache/redis"
	"github.com/polybets/betrouter/internal/config"
	"github.com/polybets/betrouter/internal/domain"
	"github.com/polybets/betrouter/internal/ledger"
	"github.com/polybets/betrouter/internal/notify"
	"github.com/polybets/betrouter/internal/orchestrator"
	"github.com/polybets/betrouter/internal/store/memory"
	"github.com/polybets/betrouter/internal/store/postgres"
	"github.com/polybets/betrouter/internal/venue"
	"github.com/polybets/betrouter/internal/venue/poolhttp"
	"github.com/polybets/betrouter/internal/venue/sim"
)

// Dependencies bundles every wired subsystem. Modes pick the pieces they
// need; unused fields stay nil.
type Dependencies struct {
	Slips        domain.BetSlipStore
	Bets         domain.ProxiedBetStore
	Catalog      domain.MarketCatalog
	Roster       []*domain.Venue
	Venues       *venue.Registry
	Quotes       domain.QuoteCache
	Bus          domain.SignalBus
	Orchestrator *orchestrator.Orchestrator
	Archiver     *archive.Archiver
	Notifier     *notify.Notifier
}

// Wire builds the dependency graph for the configured mode. The returned
// cleanup function releases every acquired resource in reverse order and is
// safe to call after a partial failure.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, func() {}, err
	}

	deps := &Dependencies{Roster: rosterFromConfig(cfg.Venues)}
	mode := strings.ToLower(cfg.Mode)

	var (
		locks      orchestrator.SlipLocker
		slipArcSrc archive.SlipArchiveStore
	)

	if mode == config.ModePaper {
		slips := memory.NewSlipStore()
		bets := memory.NewBetStore()
		deps.Slips = slips
		deps.Bets = bets
		deps.Catalog = seedPaperCatalog(deps.Roster, logger)
		locks = orchestrator.NewKeyedMutex()
		slipArcSrc = slips

		reg, err := venue.NewRegistry(deps.Roster, func(v *domain.Venue) (venue.Adapter, error) {
			sv := sim.New(v.ID)
			if err := sv.AddMarket(paperMarketID, 500_000_000, 500_000_000); err != nil {
				return nil, err
			}
			return sv, nil
		})
		if err != nil {
			return fail(fmt.Errorf("app: wire paper venues: %w", err))
		}
		deps.Venues = reg
	} else {
		pg, err := postgres.New(ctx, postgres.ClientConfig{
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
			return fail(fmt.Errorf("app: wire postgres: %w", err))
		}
		closers = append(closers, pg.Close)

		if cfg.Postgres.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("app: migrate: %w", err))
			}
		}

		slips := postgres.NewSlipStore(pg.Pool())
		deps.Slips = slips
		deps.Bets = postgres.NewBetStore(pg.Pool())
		deps.Catalog = postgres.NewCatalogStore(pg.Pool())
		slipArcSrc = slips

		rdb, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("app: wire redis: %w", err))
		}
		closers = append(closers, func() { _ = rdb.Close() })

		locks = redis.NewLockManager(rdb, cfg.Router.LockTTL.Duration)
		deps.Bus = redis.NewSignalBus(rdb)
		deps.Quotes = redis.NewQuoteCache(rdb)

		policy := venue.RetryPolicy{
			MaxAttempts:  cfg.Router.RetryMaxAttempts,
			InitialDelay: cfg.Router.RetryInitialDelay.Duration,
			MaxDelay:     cfg.Router.RetryMaxDelay.Duration,
		}
		reg, err := venue.NewRegistry(deps.Roster, func(v *domain.Venue) (venue.Adapter, error) {
			return venue.NewRetrying(poolhttp.New(v.ID, v.BaseURL), policy, logger), nil
		})
		if err != nil {
			return fail(fmt.Errorf("app: wire venues: %w", err))
		}
		deps.Venues = reg
	}

	if cfg.Archive.Enabled || mode == config.ModeArchive {
		s3c, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("app: wire s3: %w", err))
		}
		closers = append(closers, func() { _ = s3c.Close() })
		deps.Archiver = archive.New(s3blob.NewWriter(s3c), slipArcSrc, deps.Bets, logger)
	}

	deps.Notifier = buildNotifier(cfg.Notify, logger)

	alloc, err := allocator.New(
		rand.New(rand.NewSource(time.Now().UnixNano())),
		cfg.Allocator.MinVariance,
		cfg.Allocator.MaxVariance,
	)
	if err != nil {
		return fail(fmt.Errorf("app: wire allocator: %w", err))
	}

	deps.Orchestrator = orchestrator.New(orchestrator.Config{
		Slips:             deps.Slips,
		Ledger:            ledger.New(deps.Bets, logger),
		Allocator:         alloc,
		Venues:            deps.Venues,
		Catalog:           deps.Catalog,
		Locks:             locks,
		Notifier:          deps.Notifier,
		Logger:            logger,
		SlippageTolerance: cfg.Router.SlippageTolerance,
	})

	return deps, cleanup, nil
}

// paperMarketID is the market every simulated paper venue is seeded with.
const paperMarketID = "paper-market"

// paperParentMarketID is the catalog entry paper slips bet against.
const paperParentMarketID = "paper-parent"

// rosterFromConfig converts the configured venue list into domain venues.
func rosterFromConfig(venues []config.VenueConfig) []*domain.Venue {
	out := make([]*domain.Venue, 0, len(venues))
	for _, v := range venues {
		out = append(out, &domain.Venue{
			ID:           v.ID,
			Name:         v.Name,
			BaseURL:      v.BaseURL,
			SettlementWS: v.SettlementWSURL,
			Active:       v.Active,
			PricingModel: domain.PricingModelLMSR,
		})
	}
	return out
}

// seedPaperCatalog maps the paper parent market onto one simulated market per
// active venue.
func seedPaperCatalog(roster []*domain.Venue, logger *slog.Logger) *memory.Catalog {
	catalog := memory.NewCatalog()
	targets := make([]domain.TargetMarket, 0, len(roster))
	for _, v := range roster {
		if !v.Active {
			continue
		}
		targets = append(targets, domain.TargetMarket{VenueID: v.ID, MarketID: paperMarketID})
	}
	catalog.Register(paperParentMarketID, targets)
	logger.Info("paper catalog seeded",
		slog.String("parent_market_id", paperParentMarketID),
		slog.Int("targets", len(targets)))
	return catalog
}

// buildNotifier assembles the configured notification channels. With no
// channel configured the notifier simply has no senders and drops events.
func buildNotifier(cfg config.NotifyConfig, logger *slog.Logger) *notify.Notifier {
	var senders []notify.Sender
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.TelegramToken, cfg.TelegramChatID))
	}
	if cfg.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.DiscordWebhookURL))
	}
	return notify.NewNotifier(senders, cfg.Events, logger)
}
