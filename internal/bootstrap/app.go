package bootstrap

import (
	"context"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"paperchat/internal/ai"
	appsvc "paperchat/internal/app"
	"paperchat/internal/cache"
	"paperchat/internal/config"
	"paperchat/internal/fingerprint"
	"paperchat/internal/model"
	mysqlClient "paperchat/internal/platform/mysql"
	rabbitmqClient "paperchat/internal/platform/rabbitmq"
	redisClient "paperchat/internal/platform/redis"
	"paperchat/internal/repository"
	"paperchat/internal/retrieval"
	"paperchat/internal/worker"
	"paperchat/internal/workflow"
)

// App owns every long-lived resource and wired service. Caches are plain
// injected objects built here, never package-level singletons.
type App struct {
	Config *config.Config
	MySQL  *gorm.DB
	Redis  *redis.Client
	MQConn *amqp.Connection

	AI             *ai.Client
	EmbeddingCache *cache.EmbeddingCache
	Engine         *retrieval.Engine

	AuthService     *appsvc.AuthService
	DocumentService *appsvc.DocumentService
	ChatService     *appsvc.ChatService

	IngestWorker *worker.DocumentIngestWorker

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
		&model.Document{},
		&model.Chunk{},
		&model.DocumentFingerprint{},
		&model.ChatSession{},
		&model.ChatMessage{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}

	// The broker is optional: without it uploads are processed inline
	// instead of asynchronously.
	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		log.Printf("rabbitmq unavailable, document ingestion runs inline: %v", err)
		mqConn = nil
	}

	aiClient := ai.NewClient(cfg.LLM)

	embeddingStore := cache.NewRedisEmbeddingStore(redisCli)
	embeddingCache := cache.NewEmbeddingCache(aiClient, embeddingStore, aiClient.EmbeddingModel(), cfg.Retrieval.CacheCapacity)
	historyCache := cache.NewHistoryCache(
		redisCli,
		time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second,
	)

	userRepo := repository.NewUserRepository(mysqlDB)
	docRepo := repository.NewDocumentRepository(mysqlDB)
	chunkRepo := repository.NewChunkRepository(mysqlDB)
	fingerprintRepo := repository.NewFingerprintRepository(mysqlDB)
	sessionRepo := repository.NewSessionRepository(mysqlDB)
	messageRepo := repository.NewMessageRepository(mysqlDB)

	tracker := fingerprint.NewTracker(fingerprintRepo, aiClient.EmbeddingModel())
	engine := retrieval.NewEngine(chunkRepo, embeddingCache, cfg.Retrieval.DefaultLimit, cfg.Retrieval.SimilarityThreshold)
	wf := workflow.NewWorkflow(aiClient, engine)

	var publisher appsvc.IngestPublisher
	if mqConn != nil {
		publisher = rabbitmqClient.NewIngestPublisher(mqConn, cfg.RabbitMQ.IngestQueue)
	}

	authService := appsvc.NewAuthService(
		userRepo,
		cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.JWTExpireMinute)*time.Minute,
	)
	docService := appsvc.NewDocumentService(
		docRepo, chunkRepo,
		aiClient, embeddingCache, tracker,
		publisher, cfg.LLM.EmbeddingBatchSize,
	)
	chatService := appsvc.NewChatService(
		mysqlDB, sessionRepo, messageRepo, docRepo,
		engine, wf, aiClient, historyCache,
	)

	app := &App{
		Config:          cfg,
		MySQL:           mysqlDB,
		Redis:           redisCli,
		MQConn:          mqConn,
		AI:              aiClient,
		EmbeddingCache:  embeddingCache,
		Engine:          engine,
		AuthService:     authService,
		DocumentService: docService,
		ChatService:     chatService,
		StartedAt:       time.Now(),
	}

	// The worker is wired here but started by the caller, which owns its
	// lifecycle alongside the HTTP server's.
	if mqConn != nil {
		app.IngestWorker = worker.NewDocumentIngestWorker(mqConn, docService, cfg.RabbitMQ.IngestQueue)
	}

	return app, nil
}

func (a *App) Close() error {
	var closeErr error
	if a.IngestWorker != nil {
		a.IngestWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
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
