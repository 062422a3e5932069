package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/saveapenny/procurement-workflow/internal/ai"
	"github.com/saveapenny/procurement-workflow/internal/config"
	"github.com/saveapenny/procurement-workflow/internal/extraction"
	httpapi "github.com/saveapenny/procurement-workflow/internal/interfaces/http"
	"github.com/saveapenny/procurement-workflow/internal/pipeline"
	"github.com/saveapenny/procurement-workflow/internal/podoc"
	"github.com/saveapenny/procurement-workflow/internal/repository"
	"github.com/saveapenny/procurement-workflow/internal/service"
	"github.com/saveapenny/procurement-workflow/internal/storage"
	"github.com/saveapenny/procurement-workflow/internal/worker"
	"github.com/saveapenny/procurement-workflow/internal/workflow"
	"github.com/saveapenny/procurement-workflow/pkg/database"
	"github.com/saveapenny/procurement-workflow/pkg/utils"
)

func main() {
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting procurement workflow service",
		zap.Int("port", cfg.Server.Port))

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	if err := os.MkdirAll(cfg.Storage.DocumentDir, 0755); err != nil {
		logger.Fatal("Failed to create document directory", zap.Error(err))
	}

	requestRepo := repository.NewRequestRepository(db.DB, logger)
	itemRepo := repository.NewItemRepository(db.DB, logger)
	approvalRepo := repository.NewApprovalRepository(db.DB, logger)

	openaiClient := openai.NewClient(cfg.OpenAI.APIKey)
	structurer := ai.NewStructurer(openaiClient, ai.Config{
		Model:           cfg.OpenAI.Model,
		Temperature:     cfg.OpenAI.Temperature,
		MaxTokens:       cfg.OpenAI.MaxTokens,
		BuyerName:       cfg.Buyer.CompanyName,
		BuyerContact:    cfg.Buyer.CompanyContact,
		DeliveryAddress: cfg.Buyer.DeliveryAddress,
	}, logger)
	ocr := ai.NewVisionOCR(openaiClient, cfg.OpenAI.Model, logger)
	extractor := extraction.NewExtractor(ocr, logger)

	docStore := storage.NewDocumentStore(cfg.Storage.DocumentDir, logger)
	poRenderer := podoc.NewRenderer(docStore, logger)

	processor := pipeline.NewProcessor(
		requestRepo,
		itemRepo,
		docStore,
		extractor,
		structurer,
		poRenderer,
		cfg.Pipeline.CallTimeout,
		logger,
	)
	queue := pipeline.NewQueue(processor, cfg.Pipeline.Workers, cfg.Pipeline.QueueSize, logger)

	locks := workflow.NewRequestLocks()
	machine := workflow.NewMachine(db, requestRepo, approvalRepo, locks, queue, logger)

	facade := service.NewFacade(
		db,
		requestRepo,
		itemRepo,
		approvalRepo,
		machine,
		docStore,
		queue,
		locks,
		cfg.Storage.MaxReceiptSize,
		logger,
	)

	server := httpapi.NewServer(httpapi.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, facade, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	workers := worker.NewManager(logger)
	workers.Register(queue)
	if err := workers.StartAll(ctx); err != nil {
		logger.Fatal("Failed to start background workers", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("Server exited with error", zap.Error(err))
		}
	}

	cancel()
	if err := workers.StopAll(); err != nil {
		logger.Error("Worker shutdown incomplete", zap.Error(err))
	}
	logger.Info("Procurement workflow service stopped")
}
