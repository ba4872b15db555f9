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

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/marketledger/internal/app"
	"github.com/odyssey-erp/marketledger/internal/ledger"
	ledgerhttp "github.com/odyssey-erp/marketledger/internal/ledger/http"
	"github.com/odyssey-erp/marketledger/internal/ledger/notify"
	"github.com/odyssey-erp/marketledger/internal/ledger/store"
	"github.com/odyssey-erp/marketledger/internal/observability"
	"github.com/odyssey-erp/marketledger/internal/platform/cache"
	"github.com/odyssey-erp/marketledger/internal/platform/db"
	"github.com/odyssey-erp/marketledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("marketledger stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	metrics := observability.NewMetrics()

	var redisClient *redis.Client
	if cfg.HasRedis() {
		client, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		redisClient = client
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	var st store.Store
	switch {
	case cfg.PGDSN != "":
		pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
		if err != nil {
			return err
		}
		defer pool.Close()
		pg := store.NewPostgres(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		st = pg
		logger.Info("state store", slog.String("backend", "postgres"))
	case redisClient != nil:
		st = store.NewRedis(redisClient, cfg.RedisStatePrefix)
		logger.Info("state store", slog.String("backend", "redis"))
	default:
		logger.Warn("no state store configured, state is lost on restart")
	}

	sinks := []notify.Named{
		{Name: "log", Sink: notify.LogSink{Logger: logger}},
		{Name: "metrics", Sink: notify.NewMetricsSink(metrics.Registerer())},
	}
	var inspector *asynq.Inspector
	if redisClient != nil {
		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		jobClient, err := jobs.NewClient(redisOpts)
		if err != nil {
			return err
		}
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		inspector = asynq.NewInspector(redisOpts)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		sinks = append(sinks,
			notify.Named{Name: "redis", Sink: notify.NewRedisSink(redisClient, cfg.EventsChannel)},
			notify.Named{Name: "jobs", Sink: notify.TaskSink{Enqueuer: jobClient}},
		)
	}
	dispatcher := notify.NewDispatcher(logger, cfg.EventsBuffer, sinks...)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := dispatcher.Close(closeCtx); err != nil {
			logger.Warn("dispatcher close", slog.Any("error", err), slog.Uint64("dropped", dispatcher.Dropped()))
		}
	}()

	l, wallets, err := store.LoadState(ctx, st, ledger.Config{Notifier: dispatcher})
	if err != nil {
		return err
	}

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		LedgerHandler: ledgerhttp.NewHandler(logger, l, wallets),
		JobHandler:    jobs.NewHandler(inspector, logger),
		Metrics:       metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	var adminServer *http.Server
	if cfg.AdminAddr != "" {
		adminHandler := ledgerhttp.NewAdminHandler(logger, func(at time.Time) store.Document {
			return store.Capture(l, wallets, at)
		})
		adminServer = &http.Server{
			Addr:         cfg.AdminAddr,
			Handler:      app.NewAdminRouter(app.AdminRouterParams{AdminHandler: adminHandler}),
			ReadTimeout:  cfg.AppReadTimeout,
			WriteTimeout: cfg.AppWriteTimeout,
		}
	}

	// The snapshotter outlives the server so its final save sees every
	// request that completed during shutdown.
	snapCtx, stopSnapshots := context.WithCancel(context.Background())
	defer stopSnapshots()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if adminServer != nil {
		g.Go(func() error {
			logger.Info("admin server listening", slog.String("addr", cfg.AdminAddr))
			if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return adminServer.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		defer stopSnapshots()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown", slog.Any("error", err))
			return err
		}
		return nil
	})
	if st != nil {
		snapshotter := store.NewSnapshotter(st, l, wallets, logger)
		g.Go(func() error {
			return snapshotter.Run(snapCtx, cfg.SnapshotInterval)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
