package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"chai-assistant/internal/ai"
	appsvc "chai-assistant/internal/app"
	"chai-assistant/internal/cache"
	"chai-assistant/internal/config"
	"chai-assistant/internal/corpus"
	"chai-assistant/internal/ingest"
	"chai-assistant/internal/logger"
	"chai-assistant/internal/memory"
	mysqlClient "chai-assistant/internal/platform/mysql"
	rabbitmqClient "chai-assistant/internal/platform/rabbitmq"
	redisClient "chai-assistant/internal/platform/redis"
	sqliteClient "chai-assistant/internal/platform/sqlite"
	"chai-assistant/internal/repository"
	"chai-assistant/internal/worker"
)

type Options struct {
	// LogWriter receives log output unless log.file is set. Defaults to stdout.
	LogWriter io.Writer
	// StartWorker consumes queued ingest jobs in this process.
	StartWorker bool
}

type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Runtime  *ai.LlamaStackClient
	Scanner  *corpus.Scanner
	Memory   *memory.Store
	Chat     *appsvc.ChatService
	Ingestor *ingest.Ingestor
	Ingest   *appsvc.IngestService

	SQLite *sql.DB
	MySQL  *gorm.DB
	Redis  *redis.Client
	MQConn *amqp.Connection
	Worker *worker.ReconcileWorker

	StartedAt time.Time
}

func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Log, opts.LogWriter)
	if err != nil {
		return nil, fmt.Errorf("init logger failed: %w", err)
	}

	a := &App{
		Config:    cfg,
		Logger:    log,
		StartedAt: time.Now(),
	}
	if err := a.init(ctx, opts); err != nil {
		if closeErr := a.Close(); closeErr != nil {
			log.Warn("close partially built app failed", "error", closeErr)
		}
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context, opts Options) error {
	cfg := a.Config
	timeout := time.Duration(cfg.Runtime.TimeoutSeconds) * time.Second

	a.Runtime = ai.NewLlamaStackClient(cfg.Runtime.BaseURL, timeout)
	a.Scanner = corpus.NewScanner(cfg.Corpus, a.Logger.With("component", "scanner"))

	repo, err := a.openRepository(ctx)
	if err != nil {
		return err
	}
	var storeOpts []memory.Option
	if cfg.Redis.Addr != "" {
		a.Redis, err = redisClient.New(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		ttl := time.Duration(cfg.Redis.HistoryTTLSeconds) * time.Second
		storeOpts = append(storeOpts, memory.WithCache(cache.NewHistoryCache(a.Redis, ttl, cfg.App.Name)))
	}
	a.Memory = memory.NewStore(repo, a.Logger.With("component", "memory"), storeOpts...)

	searcher := ai.NewKnowledgeSearcher(a.Runtime, cfg.Answer.Model, cfg.Index.VectorDBID)
	retrieval := appsvc.NewRetrievalStage(searcher, cfg.Retrieval, a.Logger.With("component", "retrieval"))
	answer := appsvc.NewAnswerStage(a.answerEngine(timeout), cfg.Answer.Preamble)
	a.Chat = appsvc.NewChatService(
		a.Memory,
		retrieval,
		answer,
		cfg.Memory.DefaultThread,
		cfg.Memory.MaxHistoryTurns,
		a.Logger.With("component", "chat"),
	)

	a.Ingestor = ingest.NewIngestor(
		a.Runtime,
		searcher,
		a.Scanner,
		cfg.CorpusRoot(),
		cfg.Index,
		a.Logger.With("component", "ingest"),
	)

	var publisher appsvc.JobPublisher
	if cfg.RabbitMQ.URL != "" {
		a.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
		if err != nil {
			return err
		}
		publisher = rabbitmqClient.NewJobPublisher(a.MQConn, cfg.RabbitMQ.IngestQueue)
	}
	a.Ingest = appsvc.NewIngestService(a.Ingestor, publisher, a.Logger.With("component", "ingest_service"))

	if a.MQConn != nil && opts.StartWorker {
		a.Worker = worker.NewReconcileWorker(a.MQConn, a.Ingest, cfg.RabbitMQ.IngestQueue, a.Logger.With("component", "worker"))
		if err := a.Worker.Start(ctx); err != nil {
			return fmt.Errorf("start reconcile worker failed: %w", err)
		}
	}
	return nil
}

func (a *App) openRepository(ctx context.Context) (memory.Repository, error) {
	cfg := a.Config
	switch cfg.Memory.Backend {
	case config.MemoryBackendMySQL:
		db, err := mysqlClient.New(ctx, cfg.MySQLDSN(), cfg.Log.Level == "debug")
		if err != nil {
			return nil, err
		}
		a.MySQL = db
		repo := repository.NewTurnRepository(db)
		if err := repo.Migrate(); err != nil {
			return nil, err
		}
		return repo, nil
	default:
		db, err := sqliteClient.New(ctx, cfg.Memory.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.SQLite = db
		repo := repository.NewSQLiteTurnRepository(db)
		if err := repo.Migrate(ctx); err != nil {
			return nil, err
		}
		return repo, nil
	}
}

func (a *App) answerEngine(timeout time.Duration) appsvc.AnswerEngine {
	cfg := a.Config
	if cfg.Answer.Engine == config.AnswerEngineOpenAI {
		return ai.NewOpenAICompatibleClient(ai.ChatConfig{
			BaseURL: cfg.LLM.BaseURL,
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.Model,
		}, timeout)
	}

	tools := make([]ai.AgentTool, 0, len(cfg.Answer.ToolGroups)+1)
	for _, name := range cfg.Answer.ToolGroups {
		tools = append(tools, ai.AgentTool{Name: name})
	}
	if cfg.Answer.WithRetrievalTool {
		tools = append(tools, ai.KnowledgeSearch([]string{cfg.Index.VectorDBID}, cfg.Retrieval.TopK))
	}
	return ai.NewAgentAnswerer(a.Runtime, ai.AgentConfig{
		Model:        cfg.Answer.Model,
		Instructions: cfg.Answer.Instructions,
		Toolgroups:   tools,
	})
}

func (a *App) Close() error {
	var errs []error
	if a.Worker != nil {
		a.Worker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if a.SQLite != nil {
		if err := a.SQLite.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
