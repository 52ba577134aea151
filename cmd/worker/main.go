/**
 * MRZ Worker - Main Entry Point
 *
 * Reads passport machine-readable zones from a live camera feed.
 *
 * Architecture:
 * - Redis list consumer for live frames, throttled to one recognition at a time
 * - Asynq consumer for still-image jobs
 * - Tesseract (local) or vision service (remote) OCR backend
 * - PostgreSQL persistence for scan outcomes
 * - Redis pub/sub events and asynq document tasks for matched records
 * - Matched frames archived through the artifact API
 * - HTTP server for health, metrics and scan lookups
 */

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/adverant/nexus/mrz-worker/internal/api"
	"github.com/adverant/nexus/mrz-worker/internal/clients"
	"github.com/adverant/nexus/mrz-worker/internal/config"
	"github.com/adverant/nexus/mrz-worker/internal/logging"
	"github.com/adverant/nexus/mrz-worker/internal/metrics"
	"github.com/adverant/nexus/mrz-worker/internal/pipeline"
	"github.com/adverant/nexus/mrz-worker/internal/processor"
	"github.com/adverant/nexus/mrz-worker/internal/queue"
	"github.com/adverant/nexus/mrz-worker/internal/scanner"
	"github.com/adverant/nexus/mrz-worker/internal/storage"
)

const shutdownTimeout = 30 * time.Second

func main() {
	envErr := godotenv.Load(".env.mrz")

	cfg, err := config.LoadConfig()
	if err != nil {
		fatal(logging.NewLogger("WORKER"), "Failed to load configuration", err)
	}
	logging.Configure(cfg.LogLevel, cfg.LogFormat)
	logger := logging.NewLogger("WORKER")

	if envErr != nil {
		logger.Warn(".env.mrz not found, using system environment variables")
	}
	if err := cfg.ValidateWorker(); err != nil {
		fatal(logger, "Invalid configuration", err)
	}

	if err := run(cfg, logger); err != nil {
		fatal(logger, "Worker failed", err)
	}
	logger.Info("Shutdown complete")
}

func run(cfg *config.Config, logger *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("MRZ worker starting",
		"backend", cfg.OCRBackend,
		"frameQueue", cfg.FrameQueue,
		"imageQueue", cfg.ImageTaskQueue,
		"recognitionTimeout", cfg.RecognitionTimeout)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	scanMetrics := metrics.New(reg)

	logger.Info("Connecting to PostgreSQL...")
	db, err := storage.NewPostgresClient(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return err
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return err
	}

	publisher, err := queue.NewPublisher(&queue.PublisherConfig{
		RedisURL:  cfg.RedisURL,
		QueueName: cfg.ResultTaskQueue,
		Logger:    logging.NewLogger("PUBLISHER"),
	})
	if err != nil {
		return err
	}
	defer publisher.Close()

	checks := map[string]api.Pinger{
		"postgres": db.Ping,
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}

	listenerCfg := &pipeline.ListenerConfig{
		Store:           db,
		Events:          queue.NewEventPublisher(rdb, cfg.EventChannel),
		Documents:       publisher,
		EvidenceTTLDays: cfg.EvidenceTTLDays,
		Logger:          logging.NewLogger("LISTENER"),
	}
	if cfg.ArtifactAPIURL != "" {
		artifacts := clients.NewArtifactClient(cfg.ArtifactAPIURL, 0)
		if err := artifacts.HealthCheck(ctx); err != nil {
			logger.Warn("Artifact service health check failed, uploads may fail", "error", err)
		}
		listenerCfg.Evidence = artifacts
		checks["artifacts"] = artifacts.HealthCheck
	}
	listener := pipeline.NewListener(listenerCfg)

	// The live scanner and the still-image consumer each get their own
	// recognizer so image jobs never run against the gated instance.
	logger.Info("Initializing OCR backend...", "backend", cfg.OCRBackend)
	recognizerCfg := &processor.RecognizerConfig{
		Backend:       cfg.OCRBackend,
		Language:      cfg.TesseractLanguage,
		VisionOCRURL:  cfg.VisionOCRURL,
		RemoteTimeout: cfg.VisionOCRTimeout,
	}
	recognizer, err := processor.NewRecognizer(recognizerCfg)
	if err != nil {
		return err
	}

	scan, err := scanner.New(&scanner.Config{
		Recognizer:         recognizer,
		Listener:           listener,
		RecognitionTimeout: cfg.RecognitionTimeout,
		Metrics:            scanMetrics,
		Logger:             logging.NewLogger("SCANNER"),
	})
	if err != nil {
		recognizer.Close()
		return err
	}

	frames, err := queue.NewRedisConsumer(&queue.RedisConsumerConfig{
		Client:    rdb,
		QueueName: cfg.FrameQueue,
		Sink:      scan,
		Logger:    logging.NewLogger("FRAMES"),
	})
	if err != nil {
		return stopScanner(scan, logger, err)
	}

	imageRecognizer, err := processor.NewRecognizer(recognizerCfg)
	if err != nil {
		return stopScanner(scan, logger, err)
	}
	images, err := queue.NewImageConsumer(&queue.ImageConsumerConfig{
		RedisURL:          cfg.RedisURL,
		QueueName:         cfg.ImageTaskQueue,
		Concurrency:       cfg.ImageConcurrency,
		Recognizer:        imageRecognizer,
		Listener:          listener,
		Lifecycle:         scan,
		ProcessingTimeout: cfg.RecognitionTimeout,
		Logger:            logging.NewLogger("IMAGES"),
	})
	if err != nil {
		imageRecognizer.Close()
		return stopScanner(scan, logger, err)
	}

	handler := api.New(&api.Config{
		Scanner:  scan,
		Outcomes: db,
		Latest:   listener,
		Checks:   checks,
		Gatherer: reg,
		Logger:   logging.NewLogger("API"),
	})
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          slog.NewLogLogger(logging.NewLogger("HTTP").Slog().Handler(), slog.LevelError),
	}

	if err := frames.Start(); err != nil {
		imageRecognizer.Close()
		return stopScanner(scan, logger, err)
	}
	if err := images.Start(); err != nil {
		_ = frames.Stop()
		imageRecognizer.Close()
		return stopScanner(scan, logger, err)
	}

	logger.Info("MRZ worker is ready", "http", cfg.HTTPAddr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Initiating graceful shutdown...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error stopping HTTP server", "error", err)
		}
		if err := frames.Stop(); err != nil {
			logger.Warn("Error stopping frame consumer", "error", err)
		}
		if err := images.Stop(); err != nil {
			logger.Warn("Error stopping image consumer", "error", err)
		}
		if err := scan.Stop(shutdownCtx); err != nil {
			logger.Warn("Error stopping scanner", "error", err)
		}
		admitted, dropped := scan.Stats()
		logger.Info("Scanner stopped", "admitted", admitted, "dropped", dropped)
		return nil
	})

	return g.Wait()
}

// stopScanner releases the recognizer after a startup failure
func stopScanner(scan *scanner.Scanner, logger *logging.Logger, cause error) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := scan.Stop(ctx); err != nil {
		logger.Warn("Error stopping scanner", "error", err)
	}
	return cause
}

func fatal(logger *logging.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
