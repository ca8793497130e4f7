package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"TaxAdvisor/internal/agent"
	"TaxAdvisor/internal/api"
	"TaxAdvisor/internal/config"
	"TaxAdvisor/internal/llm/gemini"
	"TaxAdvisor/internal/mcpserver"
	"TaxAdvisor/internal/observability/metrics"
	"TaxAdvisor/internal/pipeline"
	"TaxAdvisor/internal/portfolio"
	"TaxAdvisor/internal/storage/memory"
	"TaxAdvisor/internal/storage/sqlstore"
	"TaxAdvisor/internal/task"
	"TaxAdvisor/internal/tax"
	"TaxAdvisor/internal/tool"
	"TaxAdvisor/pkg/logger"
)

// main 是 TaxAdvisor 服务的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("taxadvisord 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv(config.EnvConfigPath)
	if configPath == "" {
		configPath = filepath.Join("configs", "taxadvisor.yaml")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OutputPaths: cfg.Log.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Log.AuditPath != "",
			Path:       cfg.Log.AuditPath,
			MaxSizeMB:  100,
			MaxBackups: 7,
			MaxAgeDays: 30,
		},
	}); err != nil {
		return err
	}
	defer logger.Sync()
	mainLog := logger.Named("main")

	// 金额以 JSON 数字输出。
	decimal.MarshalJSONWithoutQuotes = true

	repo, closeRepo, err := openRepository(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer closeRepo.Close()

	textGateway, err := gemini.NewGateway(ctx, gemini.Config{
		APIKey:  cfg.Gemini.APIKey,
		BaseURL: cfg.Gemini.BaseURL,
		Model:   cfg.Gemini.Model,
		Timeout: cfg.Gemini.Timeout(),
	})
	if err != nil {
		return err
	}
	imageGateway, err := gemini.NewImageGateway(ctx, gemini.Config{
		APIKey:  cfg.NanoBanana.APIKey,
		BaseURL: cfg.NanoBanana.BaseURL,
		Model:   cfg.NanoBanana.Model,
		Timeout: cfg.NanoBanana.Timeout(),
	})
	if err != nil {
		return err
	}
	if !textGateway.IsConfigured() {
		mainLog.Warn("未配置 Gemini API Key，主策略与审计阶段将使用本地兜底结果")
	}
	if !imageGateway.IsConfigured() {
		mainLog.Warn("未配置图像模型 API Key，插图阶段将返回空图片")
	}

	portfolios := portfolio.NewService(repo)
	dispatcher := tool.NewDispatcher(tool.NewCatalog(), portfolios)
	advisor := agent.NewAdvisor(textGateway, dispatcher, tax.NewCalculator(repo),
		agent.WithMaxIterations(cfg.Gemini.MaxIterations),
		agent.WithBaselineSource(portfolios),
	)

	m := metrics.New()
	flow := pipeline.New(
		advisor,
		agent.NewAuditor(textGateway),
		agent.NewIllustrator(imageGateway, cfg.Illustration.Timeout()),
		pipeline.WithRecorder(m),
	)

	store, err := openJobStore(cfg.Jobs)
	if err != nil {
		return err
	}
	queue, err := openJobQueue(cfg.Jobs)
	if err != nil {
		store.Close()
		return err
	}
	jobs := task.NewService(store, queue, cfg.Jobs.MaxRetries)
	defer func() {
		if err := jobs.Close(); err != nil {
			mainLog.Error("关闭任务服务失败", slog.Any("error", err))
		}
	}()

	processor := task.NewProcessor(flow, store, queue, queue,
		task.WithWorkerCount(cfg.Jobs.Workers),
		task.WithJobRecorder(m),
	)
	processorCtx, processorCancel := context.WithCancel(ctx)
	processorDone := make(chan struct{})
	go func() {
		defer close(processorDone)
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			mainLog.Error("任务处理器异常退出", slog.Any("error", err))
		}
	}()
	// 先停止并等待处理器退出，再关闭存储与队列。
	defer func() {
		processorCancel()
		<-processorDone
	}()

	opts := []api.Option{
		api.WithJobs(jobs),
		api.WithMetrics(m, m.Handler()),
	}
	if cfg.MCP.Enabled {
		opts = append(opts, api.WithMCP(mcpserver.New(dispatcher).Handler()))
	}
	server := api.NewServer(cfg.Server.Address, flow, dispatcher.Catalog(), opts...)

	mainLog.Info("TaxAdvisor 启动",
		slog.String("addr", cfg.Server.Address),
		slog.String("storage", cfg.Storage.Driver),
		slog.String("queue", cfg.Jobs.Queue),
		slog.String("job_store", cfg.Jobs.Store),
		slog.Bool("mcp", cfg.MCP.Enabled))

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func openRepository(ctx context.Context, cfg config.StorageConfig) (portfolio.Repository, io.Closer, error) {
	switch cfg.Driver {
	case "memory":
		if cfg.SeedFile == "" {
			logger.Named("main").Warn("未配置种子文件，内存仓库为空")
			return memory.NewRepository(), nopCloser{}, nil
		}
		repo, err := memory.LoadFile(cfg.SeedFile)
		if err != nil {
			return nil, nil, err
		}
		return repo, nopCloser{}, nil
	case sqlstore.DriverMySQL, sqlstore.DriverSQLite:
		repo, err := sqlstore.Open(ctx, sqlstore.Config{
			Driver:          cfg.Driver,
			DSN:             cfg.DSN,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetimeSeconds) * time.Second,
		})
		if err != nil {
			return nil, nil, err
		}
		return repo, repo, nil
	default:
		return nil, nil, fmt.Errorf("未知的存储驱动: %s", cfg.Driver)
	}
}

func openJobStore(cfg config.JobsConfig) (task.Store, error) {
	switch cfg.Store {
	case "", "memory":
		return task.NewMemoryStore(), nil
	case "redis":
		return task.NewRedisStore(task.RedisStoreConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       time.Duration(cfg.Redis.TTLSeconds) * time.Second,
		})
	default:
		return nil, fmt.Errorf("未知的任务存储: %s", cfg.Store)
	}
}

func openJobQueue(cfg config.JobsConfig) (task.Queue, error) {
	switch cfg.Queue {
	case "", "memory":
		return task.NewMemoryQueue(1024), nil
	case "redis":
		return task.NewRedisQueue(task.RedisQueueConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Queue:     cfg.Redis.Queue,
			BlockWait: time.Duration(cfg.Redis.BlockWaitSeconds) * time.Second,
		})
	case "rabbitmq":
		return task.NewRabbitMQQueue(task.RabbitMQConfig{
			URL:      cfg.RabbitMQ.URL,
			Queue:    cfg.RabbitMQ.Queue,
			Prefetch: cfg.RabbitMQ.Prefetch,
			Durable:  cfg.RabbitMQ.Durable,
		})
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.Queue)
	}
}
