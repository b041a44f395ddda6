package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"listenline/internal/app"
	"listenline/internal/cache"
	"listenline/internal/config"
	"listenline/internal/model"
	mysqlClient "listenline/internal/platform/mysql"
	rabbitmqClient "listenline/internal/platform/rabbitmq"
	redisClient "listenline/internal/platform/redis"
	"listenline/internal/repository"
	"listenline/internal/watchdog"
	"listenline/internal/worker"
)

type App struct {
	Config *config.Config
	MySQL  *gorm.DB
	Redis  *redis.Client
	MQConn *amqp.Connection

	AuthService         *app.AuthService
	MatchingService     *app.MatchingService
	SessionService      *app.SessionService
	ConversationService *app.ConversationService

	NotifyWorker *worker.NotifyWorker
	Watchdog     *watchdog.Watchdog

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN())
	if err != nil {
		return nil, err
	}
	if err := mysqlDB.AutoMigrate(
		&model.User{},
		&model.SupportRequest{},
		&model.Session{},
		&model.Message{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}

	userRepo := repository.NewUserRepository(mysqlDB)
	requestRepo := repository.NewRequestRepository(mysqlDB)
	sessionRepo := repository.NewSessionRepository(mysqlDB)
	messageRepo := repository.NewMessageRepository(mysqlDB)

	queueCache := cache.NewQueueCache(redisCli, time.Duration(cfg.Redis.QueueTTLSeconds)*time.Second)
	publisher := rabbitmqClient.NewEventPublisher(mqConn, cfg.RabbitMQ.EventQueue)

	authService := app.NewAuthService(
		userRepo,
		cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.JWTExpireMinute)*time.Minute,
	)
	matchingService := app.NewMatchingService(requestRepo, sessionRepo, userRepo, queueCache, publisher)
	sessionService := app.NewSessionService(sessionRepo, publisher)
	conversationService := app.NewConversationService(sessionRepo, messageRepo)

	notifyWorker := worker.NewNotifyWorker(mqConn, worker.LogNotifier{}, cfg.RabbitMQ.EventQueue)
	if err := notifyWorker.Start(ctx); err != nil {
		return nil, fmt.Errorf("start notify worker failed: %w", err)
	}

	dog := watchdog.New(
		sessionService,
		cfg.Watchdog.SweepSchedule,
		time.Duration(cfg.Watchdog.IdleTimeoutMinute)*time.Minute,
	)
	if err := dog.Start(); err != nil {
		notifyWorker.Close()
		return nil, fmt.Errorf("start watchdog failed: %w", err)
	}

	return &App{
		Config:              cfg,
		MySQL:               mysqlDB,
		Redis:               redisCli,
		MQConn:              mqConn,
		AuthService:         authService,
		MatchingService:     matchingService,
		SessionService:      sessionService,
		ConversationService: conversationService,
		NotifyWorker:        notifyWorker,
		Watchdog:            dog,
		StartedAt:           time.Now(),
	}, nil
}

func (a *App) Close() error {
	var closeErr error
	if a.Watchdog != nil {
		a.Watchdog.Stop()
	}
	if a.NotifyWorker != nil {
		a.NotifyWorker.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
