package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/civic-issue-service/internal/api/http"
	"github.com/spec-kit/civic-issue-service/internal/api/http/handlers"
	"github.com/spec-kit/civic-issue-service/internal/auth"
	"github.com/spec-kit/civic-issue-service/internal/config"
	"github.com/spec-kit/civic-issue-service/internal/events"
	"github.com/spec-kit/civic-issue-service/internal/flow"
	"github.com/spec-kit/civic-issue-service/internal/notify"
	"github.com/spec-kit/civic-issue-service/internal/observability"
	"github.com/spec-kit/civic-issue-service/internal/oracle"
	"github.com/spec-kit/civic-issue-service/internal/persistence"
	"github.com/spec-kit/civic-issue-service/internal/pipeline"
	"github.com/spec-kit/civic-issue-service/internal/repository"
	"github.com/spec-kit/civic-issue-service/internal/service"
	"github.com/spec-kit/civic-issue-service/internal/worker"
)

const flowRetention = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	issueRepo := repository.NewIssueRepository(pool)
	departmentRepo := repository.NewDepartmentRepository(pool)
	memberRepo := repository.NewMemberRepository(pool)
	issueEventRepo := repository.NewIssueEventRepository(pool)
	escalationRepo := repository.NewEscalationRepository(pool)

	metrics := observability.NewMetrics()
	oracleClient := oracle.NewClient(cfg.Oracle, logger)
	notifier := notify.FromConfig(cfg.Notification.WebhookURL, logger)

	bus := events.NewBus(logger, cfg.Pipeline.EventQueueSize)
	registry := flow.NewRegistry(cfg.Pipeline.FlowSubscriberBuffer)

	dedupService := service.NewDedupService(issueRepo, oracleClient,
		cfg.Pipeline.DuplicateRadiusMeters, cfg.Pipeline.SimilarityThreshold, logger)

	stages := []pipeline.Stage{
		pipeline.NewClassificationStage(issueRepo, issueEventRepo, bus, oracleClient, logger),
		pipeline.NewDedupStage(issueRepo, issueEventRepo, bus, dedupService, logger),
		pipeline.NewPriorityStage(issueRepo, issueEventRepo, bus, oracleClient, logger),
		pipeline.NewRoutingStage(issueRepo, departmentRepo, memberRepo, issueEventRepo, bus, oracleClient, cfg.SLA, logger),
		pipeline.NewNotificationStage(memberRepo, departmentRepo, issueEventRepo, bus, notifier, metrics, logger),
	}
	orchestrator := pipeline.NewOrchestrator(stages, issueRepo, registry, metrics, logger, flowRetention)

	tokens := auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewMiddleware(tokens, memberRepo)

	ingestionService := service.NewIngestionService(issueRepo, bus, orchestrator, logger)
	issueService := service.NewIssueService(issueRepo, memberRepo, issueEventRepo, escalationRepo, bus, orchestrator, logger)
	workerService := service.NewWorkerService(issueRepo, memberRepo, issueEventRepo, bus, tokens, logger)

	escalationService := service.NewEscalationService(issueRepo, memberRepo, departmentRepo,
		escalationRepo, issueEventRepo, oracleClient, bus, metrics, 4*time.Hour, logger)
	slaService := service.NewSLAService(issueRepo, memberRepo, redis.Client, bus,
		escalationService, metrics, cfg.SLA, logger)

	notificationService := service.NewNotificationService(issueEventRepo, notifier, metrics, logger)
	notificationService.Register(bus)

	bus.Start(ctx)
	defer bus.Stop()

	sweeper := worker.NewSweeper(slaService, cfg.SLA.SweepInterval(), logger)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	healthHandler := handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, metrics)
	issuesHandler := handlers.NewIssuesHandler(ingestionService, issueService)
	flowsHandler := handlers.NewFlowsHandler(registry, cfg.Pipeline.Heartbeat(), logger)
	workerHandler := handlers.NewWorkerHandler(workerService)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         healthHandler,
		Issues:         issuesHandler,
		Flows:          flowsHandler,
		Workers:        workerHandler,
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
