package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/facegate/internal/audit"
	"github.com/example/facegate/internal/auth"
	"github.com/example/facegate/internal/config"
	"github.com/example/facegate/internal/descriptor"
	"github.com/example/facegate/internal/detect"
	"github.com/example/facegate/internal/directory"
	"github.com/example/facegate/internal/fuse"
	"github.com/example/facegate/internal/handlers"
	"github.com/example/facegate/internal/logging"
	"github.com/example/facegate/internal/match"
	"github.com/example/facegate/internal/quality"
	"github.com/example/facegate/internal/repository"
	"github.com/example/facegate/internal/verify"
	"github.com/example/facegate/internal/vision"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	logger, err := logging.NewLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	db := initDatabase(ctx, cfg.DatabaseDSN, logger)
	logRepo := repository.NewVerificationRepository(db)
	if err := logRepo.AutoMigrate(ctx); err != nil {
		logger.Fatal("auto migrate failed", zap.Error(err))
	}
	enrollRepo := repository.NewEnrollmentRepository(db)
	if err := enrollRepo.AutoMigrate(ctx); err != nil {
		logger.Fatal("auto migrate failed", zap.Error(err))
	}

	redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
	defer redisCancel()
	redisClient := initRedis(redisCtx, cfg.RedisAddr, logger)

	store := directory.NewStore()
	loader := directory.LoaderFunc(func(ctx context.Context) (*directory.Snapshot, error) {
		byIdentity, err := enrollRepo.LoadActiveDescriptors(ctx)
		if err != nil {
			return nil, err
		}
		return directory.BuildSnapshot(byIdentity, time.Now().UTC()), nil
	})
	refresher := directory.NewRefresher(store, loader, cfg.DirectoryRefreshInterval, logger)
	if err := refresher.Refresh(ctx); err != nil {
		logger.Warn("initial identity snapshot load failed, starting empty", zap.Error(err))
	}

	refreshCtx, refreshCancel := context.WithCancel(context.Background())
	defer refreshCancel()
	go refresher.Run(refreshCtx)

	judge := vision.NewClient(vision.Config{
		BaseURL: cfg.VisionBaseURL,
		APIKey:  cfg.VisionAPIKey,
		Model:   cfg.VisionModel,
		Timeout: cfg.FallbackTimeout,
	}, logger)
	breaker := vision.NewBreaker(cfg.BreakerFailureThreshold, cfg.BreakerCooldown)
	fallback := vision.NewFallback(judge, breaker, logger)

	svc := verify.NewService(
		quality.NewGate(quality.Thresholds{
			LowVarianceCutoff: cfg.LowVarianceCutoff,
			MinLuminance:      cfg.MinLuminance,
			MaxLuminance:      cfg.MaxLuminance,
			NoiseEdgeDensity:  cfg.NoiseEdgeDensity,
			NoiseStdDev:       cfg.NoiseStdDev,
		}),
		detect.NewLocalizer(cfg.DetectionLadder),
		descriptor.NewExtractor(),
		match.NewMatcher(cfg.AcceptThreshold, cfg.AmbiguousThreshold, cfg.TopK),
		store,
		fallback,
		fuse.NewFuser(cfg.FallbackFusionThreshold),
		logRepo,
		verify.NewRedisCache(redisClient),
		audit.NewRedisEmitter(redisClient, logger),
		logger,
	)

	r := gin.Default()
	r.MaxMultipartMemory = handlers.MaxUploadSize

	handlers.RegisterRoutes(r, svc, auth.JWTMiddleware(cfg.JWTSecret, cfg.JWTAudience))

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	logger.Info("facegate API listening", zap.String("addr", cfg.ListenAddr))
	if err := serveHTTPServer(server, 15*time.Second, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func initDatabase(ctx context.Context, dsn string, zapLogger *zap.Logger) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("database ping failed", zap.Error(err))
	}

	return db
}

func initRedis(ctx context.Context, addr string, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return client
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithListener(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, listener, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
