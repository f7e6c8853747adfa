package main

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/mentor_scheduler/internal/app"
	"github.com/Freeeeeet/mentor_scheduler/internal/config"
	"github.com/Freeeeeet/mentor_scheduler/internal/events"
	"github.com/Freeeeeet/mentor_scheduler/internal/model"
	"github.com/Freeeeeet/mentor_scheduler/internal/notification"
	"github.com/Freeeeeet/mentor_scheduler/internal/repository"
	"github.com/Freeeeeet/mentor_scheduler/internal/repository/base"
	"github.com/Freeeeeet/mentor_scheduler/internal/service"
	"github.com/Freeeeeet/mentor_scheduler/internal/tracing"
	"github.com/go-telegram/bot"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// deps держит всё, что собрано из конфига
type deps struct {
	cfg    *config.Config
	logger *zap.Logger
	pool   *pgxpool.Pool

	mailer    *notification.Mailer
	publisher events.Publisher

	lessons       *service.LessonService
	requests      *service.LessonRequestService
	notifications *service.NotificationService
	users         *service.UserService

	closers []func()
}

func loadBase(ctx context.Context) (*config.Config, *zap.Logger, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger := app.NewLogger(cfg.Environment, serviceName)

	pool, err := pgxpool.New(ctx, cfg.GetDBDSN())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Info("Connected to database")

	return cfg, logger, pool, nil
}

func buildDeps(ctx context.Context) (*deps, error) {
	cfg, logger, pool, err := loadBase(ctx)
	if err != nil {
		return nil, err
	}

	d := &deps{cfg: cfg, logger: logger, pool: pool}
	d.closers = append(d.closers, pool.Close)

	shutdownTracer, err := tracing.Init(cfg.Tracing, logger)
	if err != nil {
		d.close()
		return nil, err
	}
	d.closers = append(d.closers, func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Warn("Failed to shut down tracer provider", zap.Error(err))
		}
	})

	d.publisher = events.NopPublisher{}
	if cfg.NATS.URL != "" {
		natsPublisher, err := events.NewNatsPublisher(cfg.NATS.URL, cfg.NATS.Subject, logger)
		if err != nil {
			// события не критичны для работы API
			logger.Warn("Failed to connect to NATS, events are disabled", zap.Error(err))
		} else {
			d.publisher = natsPublisher
			d.closers = append(d.closers, natsPublisher.Close)
		}
	}

	var transport notification.Transport = notification.NewLogTransport(logger)
	if cfg.SMTP.Host != "" {
		transport = notification.NewSMTPTransport(cfg.SMTP)
	}

	var alerter notification.Alerter
	if cfg.Telegram.Token != "" && cfg.Telegram.ChatID != 0 {
		b, err := bot.New(cfg.Telegram.Token)
		if err != nil {
			logger.Warn("Failed to create Telegram bot, delivery alerts are disabled", zap.Error(err))
		} else {
			alerter = notification.NewTelegramAlerter(b, cfg.Telegram.ChatID)
		}
	}

	d.mailer = notification.NewMailer(transport, alerter, logger)
	// письма дожидаемся до закрытия пула и трейсера
	d.closers = append(d.closers, d.mailer.Wait)

	txManager := base.NewTxManager(pool)
	userRepo := repository.NewUserRepository(pool)
	timezoneRepo := repository.NewTimeZoneRepository(pool)
	subfieldRepo := repository.NewSubfieldRepository(pool)
	lessonRepo := repository.NewLessonRepository(pool)
	requestRepo := repository.NewLessonRequestRepository(pool)

	fallback := model.TimeZone{Name: cfg.DefaultTimeZone}
	timezones := service.NewTimeZoneService(timezoneRepo, fallback, logger)

	d.notifications = service.NewNotificationService(requestRepo, lessonRepo, userRepo, timezones, d.mailer, cfg.Scheduler.Interval, logger)
	d.lessons = service.NewLessonService(txManager, lessonRepo, userRepo, subfieldRepo, timezones, d.notifications, d.publisher, logger)
	d.requests = service.NewLessonRequestService(txManager, requestRepo, userRepo, subfieldRepo, d.lessons, timezones, d.notifications, d.publisher, logger)
	d.users = service.NewUserService(userRepo, timezoneRepo, logger)

	return d, nil
}

// close освобождает ресурсы в обратном порядке
func (d *deps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	_ = d.logger.Sync()
}
