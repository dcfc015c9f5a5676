package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/josh-kwaku/bank-backoffice/internal/config"
	"github.com/josh-kwaku/bank-backoffice/internal/fx"
	"github.com/josh-kwaku/bank-backoffice/internal/handler"
	"github.com/josh-kwaku/bank-backoffice/internal/lock"
	"github.com/josh-kwaku/bank-backoffice/internal/logging"
	"github.com/josh-kwaku/bank-backoffice/internal/metrics"
	"github.com/josh-kwaku/bank-backoffice/internal/middleware"
	"github.com/josh-kwaku/bank-backoffice/internal/repository"
	"github.com/josh-kwaku/bank-backoffice/internal/service/processing"
	"github.com/josh-kwaku/bank-backoffice/internal/validation"
	"github.com/josh-kwaku/bank-backoffice/internal/worker"
)

const schedulerLeaseKey = "bank-backoffice:scheduler"

func main() {
	if err := run(); err != nil {
		slog.Error("processor exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(".env")
	if err != nil {
		return err
	}

	logger := logging.Init("bank-backoffice-processor", cfg.LogLevel, cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := repository.Connect(ctx, repository.ConnectConfig{
		URL:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		Attempts:        cfg.DBConnectAttempts,
		RetryDelay:      cfg.DBConnectRetryDelay,
	}, logger)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	db := repository.NewDB(pool)
	accounts := repository.NewAccountRepository(db)
	txs := repository.NewTransactionRepository(db)

	checks := map[string]handler.Pinger{"database": db}

	// Without Redis every replica drains on its own; MarkOutstanding still
	// stops a transaction from being applied twice.
	var lease worker.Lease
	if cfg.RedisURL != "" {
		client, err := lock.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer client.Close()

		lease = lock.NewRedisLease(client, schedulerLeaseKey, cfg.SchedulerLockTTL, logger)
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	exchange := fx.NewExchange()
	validator := validation.New(exchange)

	proc := processing.NewProcessor(
		accounts,
		txs,
		db,
		processing.NewStatusService(txs),
		exchange,
		validator,
		m,
		logger,
	)

	consumer := worker.NewConsumer(proc, txs, cfg.ConsumerMaxInFlight, m, logger)
	consumer.SetActive(cfg.ConsumerEnabled)

	// Listen before restoring so nothing submitted in between is missed.
	// The consumer drops ids it already holds.
	listener, err := repository.NewSubmissionListener(cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("listen for submissions: %w", err)
	}
	feed := worker.NewFeed(txs, consumer, logger)

	if _, err := consumer.Restore(ctx); err != nil {
		return fmt.Errorf("restore consumer: %w", err)
	}

	scheduler := worker.NewScheduler(proc, txs, lease, cfg.SchedulerInterval, cfg.SchedulerEnabled, m, logger)
	scheduler.UseAccountLocks(consumer.Locks())

	mux := handler.Routes(
		handler.NewHealthHandler(checks, logger),
		handler.NewWorkersHandler(consumer, scheduler),
		promhttp.Handler(),
	)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           middleware.Chain(mux, middleware.RequestID, middleware.Logging(logger), middleware.Recovery(logger)),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		consumer.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return listener.Run(gctx, feed.Deliver)
	})
	g.Go(func() error {
		scheduler.Start(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("processor stopped")
	return nil
}
