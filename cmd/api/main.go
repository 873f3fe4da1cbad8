package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-judge/internal/config"
	"github.com/noah-isme/gema-judge/internal/database"
	"github.com/noah-isme/gema-judge/internal/handler"
	"github.com/noah-isme/gema-judge/internal/middleware"
	"github.com/noah-isme/gema-judge/internal/models"
	"github.com/noah-isme/gema-judge/internal/repository"
	"github.com/noah-isme/gema-judge/internal/router"
	"github.com/noah-isme/gema-judge/internal/service"
	"github.com/noah-isme/gema-judge/pkg/ai"
	"github.com/noah-isme/gema-judge/pkg/codegen"
	"github.com/noah-isme/gema-judge/pkg/docker"
	"github.com/noah-isme/gema-judge/pkg/judge0"
	"github.com/noah-isme/gema-judge/pkg/pipeline"
	"github.com/noah-isme/gema-judge/pkg/submissionapi"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.Problem{}, &models.ExamSubmission{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis url not set, boilerplate cache and exam resume tokens disabled")
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = nats.Connect(cfg.NATSURL, nats.Name(cfg.AppName))
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Drain()
	}

	judge, closeJudge, err := newJudge(cfg, logger)
	if err != nil {
		log.Fatalf("failed to create judge backend: %v", err)
	}
	defer closeJudge()

	problemRepo := repository.NewProblemRepository(db)
	examSubmissionRepo := repository.NewExamSubmissionRepository(db)
	localStore := service.NewSubmissionStore(examSubmissionRepo, logger)

	var store pipeline.Store = localStore
	if cfg.PersistenceURL != "" {
		remote, err := submissionapi.NewClient(submissionapi.Config{
			URL:     cfg.PersistenceURL,
			Timeout: cfg.Judge0Timeout,
			Logger:  logger,
		})
		if err != nil {
			log.Fatalf("failed to create submission api client: %v", err)
		}
		store = remote
		logger.Info().Str("url", cfg.PersistenceURL).Msg("using remote submission store")
	}

	validate := service.NewValidator()
	generator := codegen.NewGenerator()
	events := service.NewGradingEventPublisher(redisClient, natsConn, cfg.EventChannelBase, logger)

	grader := pipeline.New(judge, store, pipeline.Config{
		PollInterval: cfg.PollInterval,
		PollTimeout:  cfg.PollTimeout,
		Observer:     service.NewPipelineObserver(events, logger),
		Logger:       logger,
	})

	problemService := service.NewProblemService(problemRepo, generator, redisClient, cfg.BoilerplateTTL, logger)
	var reviewer ai.Reviewer
	if cfg.OpenAIAPIKey != "" {
		openaiReviewer, err := ai.NewOpenAIReviewer(ai.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
			Logger:  logger,
		})
		if err != nil {
			log.Fatalf("failed to create reviewer: %v", err)
		}
		reviewer = openaiReviewer
	}
	judgeService := service.NewJudgeService(grader, problemService, generator, events, reviewer, validate, logger)
	examService := service.NewExamService(grader, problemService, generator, redisClient, events, validate, service.ExamConfig{
		Duration:         cfg.ExamDuration,
		AutosaveInterval: cfg.AutosaveInterval,
		ResumeTTL:        cfg.ExamResumeTTL,
	}, logger)
	seedService := service.NewSeedService(problemRepo, cfg.SeedEnabled, cfg.SeedToken, logger)

	if cfg.SeedOnStart {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if affected, err := seedService.SeedDefaults(ctx); err != nil {
			logger.Error().Err(err).Msg("failed to seed default problems")
		} else {
			logger.Info().Int64("affected", affected).Msg("default problems seeded")
		}
		cancel()
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.CORSOrigins})
	checks := []handler.DependencyCheck{{Name: "database", Check: database.PingSQL(db)}}
	if redisClient != nil {
		checks = append(checks, handler.DependencyCheck{Name: "redis", Check: database.PingRedis(redisClient)})
	}

	router.Register(app, cfg, router.Dependencies{
		ProblemHandler:     handler.NewProblemHandler(problemService, logger),
		JudgeHandler:       handler.NewJudgeHandler(judgeService, logger),
		ExamHandler:        handler.NewExamHandler(examService, logger, cfg.ExamStreamTick),
		PersistenceHandler: handler.NewPersistenceHandler(localStore, validate, logger),
		SeedHandler:        handler.NewSeedHandler(seedService, logger),
		HealthChecks:       checks,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, examService)
}

func waitForShutdown(app *fiber.App, exams service.ExamService) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
	exams.Shutdown()

	log.Println("server stopped")
}

func newJudge(cfg config.Config, logger zerolog.Logger) (pipeline.Judge, func(), error) {
	if cfg.JudgeBackend == config.JudgeBackendDocker {
		executor, err := docker.NewDockerExecutor(docker.Config{
			Host:          cfg.DockerHost,
			Timeout:       cfg.DockerTimeout,
			MemoryLimitMB: cfg.DockerMemoryMB,
			CPUShares:     cfg.DockerCPUShares,
			WorkspaceRoot: cfg.DockerWorkspaceRoot,
			Logger:        logger,
		})
		if err != nil {
			return nil, nil, err
		}
		judge := docker.NewJudge(executor, docker.JudgeConfig{
			Concurrency: cfg.DockerConcurrency,
			Retention:   cfg.PollTimeout * 2,
			Logger:      logger,
		})
		logger.Info().Str("backend", cfg.JudgeBackend).Msg("running submissions in local containers")
		return judge, func() {
			judge.Close()
			_ = executor.Close()
		}, nil
	}

	client, err := judge0.NewClient(judge0.Config{
		URL:          cfg.Judge0URL,
		AuthToken:    cfg.Judge0AuthToken,
		RapidAPIKey:  cfg.Judge0RapidAPIKey,
		RapidAPIHost: cfg.Judge0RapidAPIHost,
		Timeout:      cfg.Judge0Timeout,
		Logger:       logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return client, func() {}, nil
}
