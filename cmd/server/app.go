package main

import (
	"context"
	"fmt"

	"github.com/aimd54/addon-ratings/internal/cache"
	"github.com/aimd54/addon-ratings/internal/config"
	"github.com/aimd54/addon-ratings/internal/mattermost"
	"github.com/aimd54/addon-ratings/internal/models"
	"github.com/aimd54/addon-ratings/internal/notify"
	"github.com/aimd54/addon-ratings/internal/repository"
	"github.com/aimd54/addon-ratings/internal/screening"
	"github.com/aimd54/addon-ratings/internal/service/denorm"
	"github.com/aimd54/addon-ratings/internal/service/ratings"
	"github.com/aimd54/addon-ratings/internal/tasks"
	"github.com/aimd54/addon-ratings/internal/throttle"
	"github.com/aimd54/addon-ratings/pkg/logger"
)

const systemUsername = "addons-task-user"

// app holds the wired components shared by every command.
type app struct {
	cfg   *config.Config
	log   *logger.Logger
	db    *repository.DB
	cache *cache.RedisCache

	users      *repository.UserRepository
	addons     *repository.AddonRepository
	screenRepo *repository.ScreeningRepository
	words      *screening.DeniedWords

	registry *tasks.Registry
	workers  *tasks.WorkerQueue
	nats     *tasks.NATSQueue
	queue    tasks.Queue
	denorm   *denorm.Service
}

// bootstrap loads configuration and connects storage, cache and the task queue.
// Callers must Close the result.
func bootstrap() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	log.Info().Str("environment", cfg.Server.Environment).Msg("Starting addon-ratings")

	db, err := repository.NewDB(&cfg.Database.Postgres, log)
	if err != nil {
		return nil, err
	}

	redisCache, err := cache.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info().Str("host", cfg.Database.Redis.Host).Msg("Connected to Redis")

	a := &app{
		cfg:        cfg,
		log:        log,
		db:         db,
		cache:      redisCache,
		users:      repository.NewUserRepository(db),
		addons:     repository.NewAddonRepository(db),
		screenRepo: repository.NewScreeningRepository(db),
		registry:   tasks.NewRegistry(log.Component("tasks")),
	}
	a.words = screening.NewDeniedWords(a.screenRepo, redisCache, cfg.Ratings.DeniedWordCacheTTL(), log.Component("screening"))

	var publisher denorm.Publisher
	if cfg.NATS.Enabled {
		a.nats, err = tasks.NewNATSQueue(&cfg.NATS, a.registry, log.Component("nats"))
		if err != nil {
			a.Close()
			return nil, err
		}
		a.queue = a.nats
		publisher = a.nats
	} else {
		a.workers = tasks.NewWorkerQueue(a.registry, cfg.Workers.Count, cfg.Workers.Buffer, log.Component("workers"))
		a.queue = a.workers
	}

	a.denorm = denorm.NewService(repository.NewRatingRepository(db), a.addons, redisCache, publisher, log.Component("denorm"))
	a.denorm.Register(a.registry)
	return a, nil
}

// migrate brings the schema up to date according to database.postgres.migrate.
func (a *app) migrate() error {
	switch a.cfg.Database.Postgres.Migrate {
	case "sql":
		return a.db.RunMigrations(a.log)
	case "auto":
		if err := a.db.AutoMigrate(); err != nil {
			return fmt.Errorf("failed to auto-migrate: %w", err)
		}
		a.log.Info().Msg("Database schema auto-migrated")
	}
	return nil
}

// systemUser returns the account automated actions are attributed to,
// creating it on first start.
func (a *app) systemUser() (*models.User, error) {
	user, created, err := a.users.EnsureSystemUser(a.cfg.Ratings.TaskUserID, systemUsername)
	if err != nil {
		return nil, err
	}
	if created {
		a.log.Info().Uint("user_id", user.ID).Msg("Created system task user")
	}
	return user, nil
}

// ratingService wires the rating application service.
func (a *app) ratingService(system *models.User) (*ratings.Service, error) {
	throttler, err := throttle.New(a.cache, a.cfg.Throttle.Scopes, a.log.Component("throttle"))
	if err != nil {
		return nil, err
	}

	return ratings.NewService(ratings.Deps{
		Ratings:       repository.NewRatingRepository(a.db),
		Flags:         repository.NewFlagRepository(a.db),
		Votes:         repository.NewVoteRepository(a.db),
		Addons:        a.addons,
		Activity:      repository.NewActivityRepository(a.db),
		Words:         a.words,
		Restrictions:  screening.NewRestrictions(a.screenRepo, a.log.Component("screening")),
		Throttle:      throttler,
		Denorm:        a.denorm,
		Queue:         a.queue,
		Notifier:      notify.NewMailer(&a.cfg.SMTP, a.cfg.Server.SiteURL, a.log.Component("mailer")),
		Alerter:       mattermost.NewClient(&a.cfg.Mattermost, a.cfg.Server.SiteURL, a.log.Component("mattermost")),
		System:        system,
		MaxBodyLength: a.cfg.Ratings.MaxBodyLength,
		PageSize:      a.cfg.Ratings.PageSize,
		Log:           a.log.Component("ratings"),
	}), nil
}

// startQueue begins task processing until ctx is cancelled.
func (a *app) startQueue(ctx context.Context) {
	if a.nats != nil {
		go func() {
			if err := a.nats.Consume(ctx); err != nil {
				a.log.Error().Err(err).Msg("Task consumer stopped")
			}
		}()
		return
	}
	a.workers.Start(ctx)
}

// Close releases every connection. Pending in-process tasks finish first.
func (a *app) Close() {
	if a.workers != nil {
		a.workers.Stop()
	}
	if a.nats != nil {
		if err := a.nats.Close(); err != nil {
			a.log.Warn().Err(err).Msg("Failed to drain NATS connection")
		}
	}
	if err := a.cache.Close(); err != nil {
		a.log.Warn().Err(err).Msg("Failed to close Redis")
	}
	if err := a.db.Close(); err != nil {
		a.log.Warn().Err(err).Msg("Failed to close database")
	}
}
