package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// ConnectConfig sizes the pool and bounds how long Connect keeps trying a
// database that is not up yet.
type ConnectConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// Attempts below 1 mean a single try.
	Attempts   int
	RetryDelay time.Duration
}

// Connect opens the pool and waits until the database answers a ping,
// retrying up to cfg.Attempts times.
func Connect(ctx context.Context, cfg ConnectConfig, logger *slog.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("Connect: open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	attempts := max(cfg.Attempts, 1)
	for attempt := 1; ; attempt++ {
		err = db.PingContext(ctx)
		if err == nil {
			return db, nil
		}
		if attempt == attempts {
			break
		}

		logger.Warn("database not ready, retrying",
			"attempt", attempt,
			"max_attempts", attempts,
			"retry_in", cfg.RetryDelay,
			"error", err,
		)
		select {
		case <-ctx.Done():
			db.Close()
			return nil, fmt.Errorf("Connect: %w", ctx.Err())
		case <-time.After(cfg.RetryDelay):
		}
	}

	db.Close()
	return nil, fmt.Errorf("Connect: no answer after %d attempts: %w", attempts, err)
}
