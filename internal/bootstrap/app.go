package bootstrap

import (
	"context"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"gopherai-docqa/internal/app"
	"gopherai-docqa/internal/cache"
	"gopherai-docqa/internal/config"
	mysqlClient "gopherai-docqa/internal/platform/mysql"
	rabbitmqClient "gopherai-docqa/internal/platform/rabbitmq"
	redisClient "gopherai-docqa/internal/platform/redis"
	"gopherai-docqa/internal/worker"
)

type App struct {
	Config       *config.Config
	MySQL        *gorm.DB
	Redis        *redis.Client
	MQConn       *amqp.Connection
	Publisher    *rabbitmqClient.IngestPublisher
	IngestWorker *worker.IngestWorker
	Embedder     app.Embedder
	Services     *Services

	StartedAt time.Time
}

// New connects every dependency, migrates the schema and starts the ingest
// worker. Without a RabbitMQ URL uploads are ingested inline.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	a := &App{Config: cfg, StartedAt: time.Now()}
	if err := a.init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN(), cfg.App.Env == "dev")
	if err != nil {
		return err
	}
	a.MySQL = mysqlDB
	if err := mysqlClient.Migrate(ctx, mysqlDB); err != nil {
		return err
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	a.Redis = redisCli

	embedder, err := NewEmbedder(cfg.Embedding)
	if err != nil {
		return fmt.Errorf("create embedder failed: %w", err)
	}
	a.Embedder = embedder
	reranker, err := NewReranker(cfg.Rerank)
	if err != nil {
		return fmt.Errorf("create reranker failed: %w", err)
	}
	chat, err := NewChat(cfg.LLM)
	if err != nil {
		return fmt.Errorf("create chat model failed: %w", err)
	}

	collaborators := Collaborators{
		Embedder:  embedder,
		Reranker:  reranker,
		Chat:      chat,
		Cache:     cache.NewResultCache(redisCli, cfg.ResultTTL()),
		Extractor: PDFExtractor{},
	}

	if cfg.RabbitMQ.URL != "" {
		mqConn, err := rabbitmqClient.Dial(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.IngestQueue)
		if err != nil {
			return err
		}
		a.MQConn = mqConn
		a.Publisher = rabbitmqClient.NewIngestPublisher(mqConn, cfg.RabbitMQ.IngestQueue)
		collaborators.Publisher = a.Publisher
	} else {
		log.Printf("bootstrap: rabbitmq url not set, ingesting uploads inline")
	}

	a.Services = NewServices(cfg, mysqlDB, collaborators)

	if a.MQConn != nil {
		a.IngestWorker = worker.NewIngestWorker(a.MQConn, a.Services.Ingest, cfg.RabbitMQ.IngestQueue, cfg.RabbitMQ.Prefetch)
		if err := a.IngestWorker.Start(ctx); err != nil {
			return fmt.Errorf("start ingest worker failed: %w", err)
		}
	}
	return nil
}

func (a *App) Close() error {
	var closeErr error
	if a.IngestWorker != nil {
		a.IngestWorker.Close()
	}
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			closeErr = err
		}
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
