package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"certification-service/internal/config"
	"certification-service/internal/database/minio"
	"certification-service/internal/database/postgres"
	"certification-service/internal/database/redis"
	"certification-service/internal/event"
	"certification-service/internal/handlers"
	"certification-service/internal/repository"
	"certification-service/internal/services"
	"certification-service/internal/worker"

	"github.com/gofiber/fiber/v3"
)

func setupLogging() (*os.File, error) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("Recovered from panic: %v\n", r)
		}
	}()

	logDir := filepath.Join("/fleet", "log", "certification_service")
	fmt.Println("Log directory:", logDir)
	err := os.MkdirAll(logDir, 0o755)
	if err != nil {
		return nil, fmt.Errorf("failed to create log directory: %v", err)
	}

	currentTime := time.Now()
	logFileName := fmt.Sprintf("log_%s.log", currentTime.Format("2006-01-02"))
	logFile := filepath.Join(logDir, logFileName)

	file, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %v", err)
	}

	log.SetOutput(file)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	return file, nil
}

func main() {
	logFile, err := setupLogging()
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logFile.Close()

	cfg := config.New()

	log.Printf("Connecting to PostgreSQL with: host=%s, port=%s, user=%s, dbname=%s",
		cfg.PostgresCfg.Host, cfg.PostgresCfg.Port, cfg.PostgresCfg.Username, cfg.PostgresCfg.DBname)
	db, err := postgres.ConnectAndCreateDB(cfg.PostgresCfg)
	if err != nil {
		log.Printf("error connect to database: %s", err)
		go postgres.RetryConnectOnFailed(30*time.Second, &db, cfg.PostgresCfg)
	}

	scoringStore, err := config.NewScoringStore(cfg.ScoringPath)
	if err != nil {
		log.Fatalf("Failed to load scoring configuration: %v", err)
	}

	redisClient, err := redis.NewRedisClient(cfg.RedisCfg.Host, cfg.RedisCfg.Port, cfg.RedisCfg.Password, cfg.RedisCfg.DB)
	if err != nil {
		log.Printf("Failed to connect to Redis, alert dedup degrades to storage checks only: %v", err)
		redisClient = nil
	}

	minioClient, err := minio.NewMinioClient(cfg.MinioCfg)
	if err != nil {
		log.Fatalf("Failed to connect to MinIO: %v", err)
	}

	// RabbitMQ is best-effort: the engine runs without notifications.
	var publisher *event.AlertPublisher
	rabbitConn, err := event.ConnectRabbitMQ(cfg.RabbitMQCfg)
	if err != nil {
		log.Printf("Failed to connect to RabbitMQ, alert notifications disabled: %v", err)
	} else {
		publisher = event.NewAlertPublisher(rabbitConn)
		defer rabbitConn.Close()
	}

	telemetryRepo := repository.NewTelemetryRepository(db)
	outageRepo := repository.NewOutageRepository(db)
	failureRepo := repository.NewFetchFailureRepository(db)
	profilingRepo := repository.NewProfilingRepository(db)
	gapRepo := repository.NewGapRecordRepository(db)
	alertRepo := repository.NewAlertRepository(db)

	certService := services.NewCertificationService(telemetryRepo, outageRepo, failureRepo, profilingRepo, gapRepo, scoringStore)
	docService := services.NewCertificationDocumentService(minioClient, cfg.MinioCfg)
	lifecycle := services.NewAlertLifecycleService(alertRepo, gapRepo, docService, publisher)
	engine := services.NewAlertEngine(telemetryRepo, gapRepo, alertRepo, scoringStore, redisClient, publisher)

	// Background detection: one pool, one scheduler feeding it.
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	var workerWg sync.WaitGroup

	pool := worker.NewWorkingPool(2, 16)
	workerWg.Add(1)
	go pool.Start(workerCtx, &workerWg)

	alerting := scoringStore.Snapshot().Alerting
	scheduler := worker.NewJobScheduler("gap-detection", alerting.Interval, alerting.InitialDelay, pool)
	scheduler.AddJob(func(ctx context.Context) error {
		_, err := engine.RunCycle(ctx, false)
		return err
	})
	go scheduler.Run(workerCtx)

	app := fiber.New()
	app.Get("/checkhealth", func(c fiber.Ctx) error {
		return c.Status(fiber.StatusOK).SendString("Certification service is healthy")
	})

	protected := app.Group("certification/protected/api/v1", handlers.APIKeyMiddleware(cfg.APIKey))

	handlers.NewCertificationHandler(certService, gapRepo).Register(protected)
	handlers.NewAlertHandler(alertRepo, lifecycle, engine, scoringStore).Register(protected)
	handlers.NewOutageHandler(outageRepo, failureRepo).Register(protected)

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on port %s", cfg.Port)
		if err := app.Listen(fmt.Sprintf("0.0.0.0:%s", cfg.Port)); err != nil {
			log.Fatalf("Error starting server: %v", err)
		}
	}()

	<-shutdownChan
	log.Println("Shutting down server...")

	stopWorkers()
	workerWg.Wait()
	lifecycle.Wait()

	if err := app.Shutdown(); err != nil {
		log.Printf("Error during server shutdown: %v", err)
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Printf("Error closing Redis connection: %v", err)
		}
	}

	log.Println("Shutdown complete")
}
