package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"phoenix-insight-engine/internal/engine"
	"phoenix-insight-engine/internal/repos"
	"phoenix-insight-engine/shared/cachex"
	"phoenix-insight-engine/shared/clients/insight"
	"phoenix-insight-engine/shared/config"
	"phoenix-insight-engine/shared/dbx"
	"phoenix-insight-engine/shared/influxx"
	"phoenix-insight-engine/shared/logx"
	"phoenix-insight-engine/shared/metricsx"
	"phoenix-insight-engine/shared/mqx"
	"phoenix-insight-engine/shared/observability"
)

func main() {
	once := flag.Bool("once", false, "run a single batch cycle and exit")
	flag.Parse()

	cfg, problems := config.Load("insight-worker", 8090)
	version := strings.TrimSpace(os.Getenv("VERSION"))
	logger := logx.New(cfg.ServiceName, cfg.Env, version, cfg.LogLevel)

	if cfg.DatabaseURL == "" {
		problems = append(problems, config.Problem{Field: "DATABASE_URL", Message: "DATABASE_URL is required"})
	}
	if cfg.InsightServiceURL == "" {
		problems = append(problems, config.Problem{Field: "INSIGHT_SERVICE_URL", Message: "INSIGHT_SERVICE_URL is required"})
	}
	if len(problems) > 0 {
		logger.Error(context.Background(), "config_invalid", "invalid config",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.Any("problems", problems),
		)
		os.Exit(1)
	}

	if cfg.OtelEnabled {
		if shutdown, err := observability.InitTracer(context.Background(), observability.TracerConfig{
			ServiceName: cfg.ServiceName,
			Env:         cfg.Env,
			Endpoint:    cfg.OtelEndpoint,
			Insecure:    cfg.OtelInsecure,
			SampleRatio: cfg.OtelSampleRatio,
		}); err == nil {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	metricsx.Register()

	dbPool, err := dbx.NewPool(cfg)
	if err != nil {
		logger.Error(context.Background(), "db_init_failed", "db init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	defer dbPool.Close()

	eventsRepo := repos.NewEventsRepo(dbPool)

	generator, err := insight.New(cfg)
	if err != nil {
		logger.Error(context.Background(), "insight_init_failed", "insight client init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	var cacheClient *cachex.Client
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		cacheClient, err = cachex.New(cfg)
		if err != nil {
			logger.Warn(context.Background(), "redis_init_failed", "redis init failed",
				slog.String("error_code", "FAILED_PRECONDITION"),
				slog.String("error", err.Error()),
			)
		}
	}
	if cacheClient != nil {
		redisClient = cacheClient.Client()
		defer cacheClient.Close()
	}

	var producer *mqx.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer, err = mqx.NewProducer(cfg)
		if err != nil {
			logger.Warn(context.Background(), "kafka_init_failed", "kafka producer init failed",
				slog.String("error_code", "FAILED_PRECONDITION"),
				slog.String("error", err.Error()),
			)
		}
	}
	if producer != nil {
		defer producer.Close()
	}

	var influxClient *influxx.Client
	if cfg.InfluxURL != "" && cfg.InfluxToken != "" && cfg.InfluxOrg != "" && cfg.InfluxBucket != "" {
		influxClient, err = influxx.New(cfg)
		if err != nil {
			logger.Warn(context.Background(), "influx_init_failed", "influx init failed",
				slog.String("error_code", "FAILED_PRECONDITION"),
				slog.String("error", err.Error()),
			)
		}
	}
	if influxClient != nil {
		defer influxClient.Close()
	}

	instanceID := cfg.ServiceName + "-" + uuid.NewString()[:8]
	workerLogger := logger.With(slog.String("instance_id", instanceID))

	orchestrator := engine.NewOrchestrator(engine.OrchestratorOptions{
		Store:             eventsRepo,
		Generator:         generator,
		Logger:            workerLogger,
		InstanceID:        instanceID,
		BatchSize:         cfg.BatchSize,
		MaxConcurrency:    cfg.MaxConcurrency,
		ProcessingTimeout: cfg.ProcessingTimeout,
		DedupWindowDays:   cfg.DedupWindowDays,
		Cache:             cacheClient,
		Producer:          producer,
		Influx:            influxClient,
		Topic:             cfg.KafkaTopic,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info(context.Background(), "shutdown_signal", "received signal", slog.String("signal", sig.String()))
		cancel()
	}()

	if *once {
		stats, err := orchestrator.RunCycle(ctx)
		if err != nil {
			workerLogger.Error(ctx, "cycle_failed", "batch cycle failed",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
		workerLogger.Info(ctx, "cycle_once_done", "single cycle finished",
			slog.Int("total", stats.Total),
			slog.Int("processed", stats.Processed),
		)
		return
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsx.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			pingCtx, pingCancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer pingCancel()
			if err := dbx.Ping(pingCtx, dbPool); err != nil {
				http.Error(w, "db unreachable", http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		})
		addr := ":" + strconv.Itoa(cfg.HTTPPort)
		logger.Info(context.Background(), "metrics_listen", "metrics endpoint listening", slog.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Warn(context.Background(), "metrics_listen_failed", "metrics endpoint failed",
				slog.String("error", err.Error()),
			)
		}
	}()

	workerLogger.Info(ctx, "worker_start", "insight worker started",
		slog.Int("batch_size", cfg.BatchSize),
		slog.Int("max_concurrency", cfg.MaxConcurrency),
		slog.Duration("poll_interval", cfg.PollInterval),
	)

	scheduler := engine.NewScheduler(orchestrator, cfg.PollInterval, workerLogger, redisClient, instanceID)
	if err := scheduler.Run(ctx); err != nil {
		workerLogger.Error(context.Background(), "worker_failed", "scheduler exited with error",
			slog.String("error_code", "INTERNAL_ERROR"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	workerLogger.Info(context.Background(), "worker_stop", "insight worker stopped")
}
