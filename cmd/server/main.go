package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/effaaykhan/cybersentinel-dlp-sub000/internal/database"
	"github.com/effaaykhan/cybersentinel-dlp-sub000/internal/server"
	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/config"
	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp"
	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp/action"
	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp/pipeline"
	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp/policy"
	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/notify"
	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/tracing"
)

const serverVersion = "2.0.0"

func main() {
	var (
		configFile = flag.String("config", "", "Path to configuration file (YAML or JSON)")
		host       = flag.String("host", "", "Server host (overrides config)")
		port       = flag.Int("port", 0, "Server port (overrides config)")
		policyDir  = flag.String("policy-dir", "", "Policy directory (overrides config)")
		logLevel   = flag.String("log-level", "", "Log level (overrides config)")
		version    = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *version {
		fmt.Printf("cybersentinel-dlp-core v%s\n", serverVersion)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *policyDir != "" {
		cfg.Policies.Directory = *policyDir
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	cfg.Tracing.ServiceVersion = serverVersion
	shutdownTracing, err := tracing.Init(context.Background(), cfg.Tracing)
	if err != nil {
		logger.Fatal("tracing init failed", zap.Error(err))
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error("tracing shutdown error", zap.Error(err))
		}
	}()

	var store pipeline.Store
	if cfg.Database.Enabled {
		db, err := database.Connect(cfg.Database.DSN())
		if err != nil {
			logger.Fatal("database connection failed", zap.Error(err))
		}
		store = database.NewStore(db, logger)
		logger.Info("persistence: postgres",
			zap.String("host", cfg.Database.Host),
			zap.String("database", cfg.Database.Database))
	} else {
		store = pipeline.NewMemoryStore()
		logger.Warn("persistence: in-memory store, events are lost on restart")
	}

	var notifier action.Notifier
	if cfg.Kafka.Enabled {
		kafkaNotifier, err := notify.NewKafkaNotifier(cfg.Kafka, logger)
		if err != nil {
			logger.Fatal("kafka notifier failed", zap.Error(err))
		}
		defer kafkaNotifier.Close()
		notifier = kafkaNotifier
		logger.Info("notifier: kafka", zap.String("topic", cfg.Kafka.Topic))
	}

	repository := policy.NewFSRepository(cfg.Policies.Directory)
	service := dlp.NewService(cfg.Engine, repository, store, notifier, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := service.Start(ctx); err != nil {
		logger.Fatal("initial policy load failed", zap.Error(err))
	}
	logger.Info("policies loaded",
		zap.Uint64("version", service.PolicySetVersion()),
		zap.Int("policies", service.PolicyCount()))

	scheduler := cron.New()
	scheduler.AddFunc("@every 1m", func() {
		service.SweepCounters()
	})
	if cfg.Policies.ReloadInterval > 0 {
		scheduler.AddFunc("@every "+cfg.Policies.ReloadInterval.String(), func() {
			if err := service.ReloadPolicies(context.Background()); err != nil {
				logger.Error("scheduled policy reload failed", zap.Error(err))
			}
		})
	}
	scheduler.Start()
	defer scheduler.Stop()

	srv := server.New(cfg.Server.Addr(), service, logger)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal("server failed", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}
