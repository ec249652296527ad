package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"nurse-handover/backend/internal/auth"
	"nurse-handover/backend/internal/config"
	"nurse-handover/backend/internal/database"
	"nurse-handover/backend/internal/handlers"
	"nurse-handover/backend/internal/pipeline"
	"nurse-handover/backend/internal/services"
)

func runServer() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stdout)
	if err := cfg.RequireOpenAI(); err != nil {
		return err
	}
	startedAt := time.Now()

	logger.Info().
		Str("version", version).
		Str("environment", cfg.Environment).
		Str("http_port", cfg.HTTPPort).
		Str("grpc_port", cfg.GRPCPort).
		Msg("starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	db, err := database.Open(ctx, database.Dialect(cfg.DBDriver), cfg.DSN())
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info().Str("dsn", cfg.DSNForLog()).Msg("connected to database")

	applied, err := db.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	if applied > 0 {
		logger.Info().Int("count", applied).Msg("applied migrations")
	}

	users := database.NewUserStore(db)
	patients := database.NewPatientStore(db)
	handovers := database.NewHandoverStore(db)

	if cfg.RecoverInterrupted {
		if n, err := handovers.FailInterrupted(ctx, startedAt); err != nil {
			return err
		} else if n > 0 {
			logger.Warn().Int64("count", n).Msg("marked handovers interrupted by the previous run as error")
		}
	}

	// Storage and events
	audioStore, err := newAudioStore(ctx, cfg)
	if err != nil {
		return err
	}
	metrics := services.GetMetrics()
	hub := handlers.NewHub(metrics, logger)
	events, err := newPublisher(ctx, cfg, hub, logger)
	if err != nil {
		return err
	}
	defer events.Close()

	// Pipeline
	openaiClient := services.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
	pipe := pipeline.New(pipeline.Config{
		Workers:           cfg.PipelineWorkers,
		QueueSize:         cfg.PipelineQueueSize,
		TranscribeTimeout: cfg.TranscribeTimeout,
		ReportTimeout:     cfg.ReportTimeout,
	}, pipeline.Deps{
		Handovers:   handovers,
		Patients:    patients,
		Transcriber: services.NewOpenAITranscriber(openaiClient, audioStore, cfg.TranscriptionModel),
		Reporter:    services.NewOpenAIReporter(openaiClient, cfg.ReportModel),
		Publisher:   events,
		Metrics:     metrics,
	}, logger)
	pipe.Start()

	// Auth
	var revoker auth.Revoker
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		revoker = auth.NewRedisRevoker(rdb)
		logger.Info().Str("addr", cfg.RedisAddr).Msg("token revocation backed by redis")
	}
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL, revoker)

	// HTTP
	srv := handlers.New(handlers.Deps{
		DB:        db,
		Users:     users,
		Patients:  patients,
		Handovers: handovers,
		Audio:     services.NewAudioIngest(audioStore, cfg.MaxAudioBytes(), logger),
		Pipeline:  pipe,
		Tokens:    tokens,
		Hub:       hub,
		Events:    events,
		Metrics:   metrics,
		Version:   version,
	}, logger)
	e := srv.Router(cfg.CORSOrigins)
	e.Server.ReadTimeout = 60 * time.Second
	e.Server.WriteTimeout = 30 * time.Second
	e.Server.IdleTimeout = 60 * time.Second

	// gRPC health
	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	reflection.Register(grpcServer)
	go services.NewHealthReporter(healthSrv, db, pipe, 15*time.Second, logger).Run(ctx)

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen on gRPC port: %w", err)
	}

	serveErr := make(chan error, 2)
	go func() {
		logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC server listening")
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			serveErr <- fmt.Errorf("gRPC server: %w", err)
		}
	}()
	go func() {
		addr := ":" + cfg.HTTPPort
		logger.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case runErr = <-serveErr:
		logger.Error().Err(runErr).Msg("server failed, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP shutdown failed")
	}
	hub.Close()

	if err := pipe.Stop(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("pipeline did not drain before the deadline")
	}

	stopGRPC(shutdownCtx, grpcServer, logger)
	logger.Info().Msg("goodbye")
	return runErr
}

// stopGRPC stops gracefully unless ctx runs out first.
func stopGRPC(ctx context.Context, s *grpc.Server, logger zerolog.Logger) {
	stopped := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		logger.Info().Msg("gRPC server stopped")
	case <-ctx.Done():
		logger.Warn().Msg("forcing gRPC shutdown")
		s.Stop()
	}
}

func newAudioStore(ctx context.Context, cfg *config.Config) (services.AudioStore, error) {
	if cfg.AudioStorage == "s3" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return services.NewS3AudioStore(services.NewS3Client(awsCfg), cfg.S3Bucket, cfg.S3Prefix), nil
	}
	return services.NewLocalAudioStore(cfg.UploadDir)
}

// newPublisher fans status events out to the websocket hub and whichever
// brokers are configured.
func newPublisher(ctx context.Context, cfg *config.Config, hub *handlers.Hub, logger zerolog.Logger) (*services.MultiPublisher, error) {
	events := services.NewMultiPublisher(logger, hub)

	if len(cfg.KafkaBrokers) > 0 {
		events.Add(services.NewKafkaPublisher(services.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic)))
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("publishing status events to kafka")
	}

	if cfg.SQSQueueName != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		pub, err := services.NewSQSPublisher(ctx, services.NewSQSClient(awsCfg), cfg.SQSQueueName)
		if err != nil {
			return nil, err
		}
		events.Add(pub)
		logger.Info().Str("queue", cfg.SQSQueueName).Msg("publishing status events to sqs")
	}

	return events, nil
}
