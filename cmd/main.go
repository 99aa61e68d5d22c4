package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"arenaengine/config"
	"arenaengine/executor"
	"arenaengine/internal"
	"arenaengine/lang"
	"arenaengine/logger"
	"arenaengine/natshandler"
	"arenaengine/pkg"
	"arenaengine/routes"
	"arenaengine/service"
	"arenaengine/store"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/nats-io/nats.go"
	logrus "github.com/sirupsen/logrus"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg := config.LoadConfig()

	zl, err := logger.New(cfg.Environment)
	if err != nil {
		panic(err)
	}
	defer zl.Sync()

	engineLog := logrus.New()
	engineLog.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Environment == "development" {
		engineLog.SetLevel(logrus.DebugLevel)
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	var wg sync.WaitGroup

	// Stale workspaces from a previous crash
	if n, err := executor.PruneWorkspaces(cfg.WorkspaceRoot, 10*time.Minute); err != nil {
		zl.Warn("Failed to prune workspaces", zap.Error(err))
	} else if n > 0 {
		zl.Info("Pruned stale workspaces", zap.Int("count", n))
	}

	var isolator executor.Isolator
	if cfg.Sandbox == "docker" {
		cm, err := executor.NewContainerManager(executor.SandboxOptions{
			DockerBin:    cfg.DockerBin,
			Image:        cfg.SandboxImage,
			MemoryMB:     cfg.SandboxMemoryMB,
			Pids:         cfg.SandboxPids,
			StartupGrace: cfg.SandboxGrace,
		}, engineLog)
		if err != nil {
			zl.Fatal("Failed to create container manager", zap.Error(err))
		}
		if err := cm.EnsureImage(ctx); err != nil {
			zl.Fatal("Sandbox image not available", zap.String("image", cfg.SandboxImage), zap.Error(err))
		}
		defer cm.Shutdown()
		wg.Add(1)
		go cm.MonitorContainers(ctx, &wg, time.Minute, 5*time.Minute)
		isolator = cm
	}

	registry := lang.NewRegistry(lang.Toolchain{
		Gpp:      cfg.GppPath,
		CppFlags: cfg.CppFlags,
		Python:   cfg.PythonPath,
		Node:     cfg.NodePath,
	})
	engine := executor.NewEngine(executor.Options{
		Registry:       registry,
		WorkspaceRoot:  cfg.WorkspaceRoot,
		RunTimeout:     cfg.RunTimeout,
		CompileTimeout: cfg.CompileTimeout,
		MaxOutputBytes: cfg.MaxOutputBytes,
		Isolator:       isolator,
		Logger:         engineLog,
	})

	// Initialize worker pool
	workerPool := executor.NewWorkerPool(engine, cfg.MaxWorkers, cfg.JobCount, engineLog)

	var results store.ResultStore
	if cfg.RedisURL != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			zl.Fatal("Failed to connect to Redis", zap.String("addr", cfg.RedisURL), zap.Error(err))
		}
		results = store.NewRedisStore(redisClient, cfg.ResultTTL)
	} else {
		results = store.NewMemoryStore(cfg.ResultTTL)
	}

	streamer := logger.NewLogStreamer(logger.StreamerConfig{
		SourceToken: cfg.BetterStackSourceToken,
		Environment: cfg.Environment,
		UploadURL:   cfg.BetterStackUploadURL,
	}, zl)
	defer streamer.Close()

	compilerService := service.NewCompilerService(workerPool, results, streamer, internal.Limits{
		MaxCodeLength:  cfg.MaxCodeLength,
		MaxStdinLength: cfg.MaxStdinLength,
		MaxTestCases:   cfg.MaxTestCases,
	}, engineLog)

	// Connect to NATS
	var (
		nc          *nats.Conn
		natsHandler *natshandler.Handler
		natsSubs    []*nats.Subscription
		natsClosed  = make(chan struct{})
	)
	if cfg.NatsURL != "" {
		nc, err = nats.Connect(cfg.NatsURL, nats.ClosedHandler(func(*nats.Conn) { close(natsClosed) }))
		if err != nil {
			zl.Fatal("Failed to connect to NATS",
				zap.String("url", cfg.NatsURL),
				zap.Error(err))
		}

		natsHandler = natshandler.NewHandler(compilerService, zl)
		if natsSubs, err = natsHandler.Subscribe(nc, cfg.NatsQueue); err != nil {
			zl.Fatal("Failed to subscribe", zap.Error(err))
		}
		zl.Info("Listening on NATS", zap.String("url", cfg.NatsURL))
	}

	limiter := pkg.NewRateLimiter(float64(cfg.Ratelimit), cfg.RatelimitBurst)
	limiter.StartCleanup(ctx, time.Minute, 10*time.Minute)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: routes.NewRouter(routes.NewHandler(compilerService, zl), limiter),
	}
	go func() {
		zl.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zl.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("HTTP shutdown failed", zap.Error(err))
	}
	if nc != nil {
		// Stop deliveries, answer what is in flight, then flush and close.
		for _, sub := range natsSubs {
			_ = sub.Unsubscribe()
		}
		natsHandler.Wait()
		if err := nc.Drain(); err != nil {
			zl.Warn("NATS drain failed", zap.Error(err))
		}
		select {
		case <-natsClosed:
		case <-shutdownCtx.Done():
		}
	}
	workerPool.Shutdown()
	wg.Wait()
	zl.Info("Successfully shut down server")
}
