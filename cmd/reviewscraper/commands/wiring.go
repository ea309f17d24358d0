package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gratefulvortex/reviews-scraper/internal/browser"
	"github.com/gratefulvortex/reviews-scraper/internal/config"
	"github.com/gratefulvortex/reviews-scraper/internal/database"
	"github.com/gratefulvortex/reviews-scraper/internal/events"
	"github.com/gratefulvortex/reviews-scraper/internal/models"
	"github.com/gratefulvortex/reviews-scraper/internal/ratelimit"
	"github.com/gratefulvortex/reviews-scraper/internal/scraper"
	"github.com/gratefulvortex/reviews-scraper/internal/sink"
)

// deps holds the optional backends a command opened. Close releases them.
type deps struct {
	db        *database.DB
	redis     *redis.Client
	publisher *events.RedisPublisher
}

func openDeps(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*deps, error) {
	d := &deps{}

	if cfg.Database.Enabled {
		db, err := database.New(ctx, database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.Name,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		d.db = db
		logger.Info("database connected", "host", cfg.Database.Host, "name", cfg.Database.Name)
	}

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			d.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		d.redis = client
		d.publisher = events.NewRedisPublisher(client, events.ConfigFromRedis(cfg.Redis), logger)
		logger.Info("redis connected", "addr", cfg.Redis.Addr, "stream", cfg.Redis.Stream)
	}

	return d, nil
}

func (d *deps) Close() {
	if d.redis != nil {
		d.redis.Close()
	}
	if d.db != nil {
		d.db.Close()
	}
}

func browserOptions(cfg *config.Config) *browser.Options {
	opts := browser.DefaultOptions()
	opts.Headless = cfg.Browser.Headless
	opts.Timeout = cfg.Browser.Timeout
	opts.SlowMo = cfg.Browser.SlowMo
	if len(cfg.Browser.UserAgents) > 0 {
		opts.UserAgents = cfg.Browser.UserAgents
	}
	opts.AcceptLanguage = cfg.Browser.AcceptLanguage
	opts.TimezoneID = cfg.Browser.TimezoneID
	opts.Locale = cfg.Browser.Locale
	opts.ProxyServer = cfg.Browser.ProxyServer
	opts.StorageStatePath = cfg.Browser.StorageStatePath
	return opts
}

func browserSessions(cfg *config.Config) scraper.SessionFactory {
	opts := browserOptions(cfg)
	return func(ctx context.Context, site models.Site) (browser.Session, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return browser.New(opts)
	}
}

func newRunner(cfg *config.Config, sessions scraper.SessionFactory, d *deps, logger *slog.Logger) (*scraper.Runner, error) {
	opts := scraper.RunnerOptions{
		Policy: scraper.PolicyFromConfig(cfg.Scraper),
		Pacer: func() scraper.Pacer {
			return ratelimit.NewSimpleRateLimiter(cfg.Scraper.PaceMin, cfg.Scraper.PaceMax)
		},
		OutputDir:      cfg.Output.Dir,
		DiagnosticsDir: cfg.Output.DiagnosticsDir,
		Logger:         logger,
	}

	if cfg.Scraper.ReferenceDate != "" {
		ref, err := cfg.Scraper.Reference(time.Time{})
		if err != nil {
			return nil, err
		}
		opts.Reference = ref
	}

	if d != nil && d.db != nil {
		db := d.db
		opts.ExtraWriters = func(runID, url string, site models.Site) []sink.Writer {
			return []sink.Writer{database.NewReviewRepository(db, runID, url, logger)}
		}
	}
	if d != nil && d.publisher != nil {
		opts.Publisher = d.publisher
	}

	return scraper.NewRunner(sessions, opts), nil
}
