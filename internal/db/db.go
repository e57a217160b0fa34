// Package db opens the Postgres connection pool backing the user store.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
	"github.com/userauth/apiserver/config"
)

// MigrationsURL is the source URL used by the migrate command.
const MigrationsURL = "file://internal/db/migrations"

const driverName = "postgres"

// PoolOptions sizes the connection pool and bounds the startup wait.
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
	PingAttempts    int
	PingBackoff     time.Duration
}

// DefaultPoolOptions suits a single API instance. Login and register each
// hold a connection only for one short query.
var DefaultPoolOptions = PoolOptions{
	MaxOpenConns:    25,
	MaxIdleConns:    5,
	ConnMaxIdleTime: 2 * time.Minute,
	ConnMaxLifetime: 30 * time.Minute,
	PingTimeout:     5 * time.Second,
	PingAttempts:    5,
	PingBackoff:     time.Second,
}

// Open connects with DefaultPoolOptions.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*sql.DB, error) {
	return OpenWithOptions(ctx, cfg.PostgresURL(), DefaultPoolOptions, logger)
}

// OpenWithOptions opens dsn and pings it until it answers, PingAttempts runs
// out, or ctx is done.
func OpenWithOptions(ctx context.Context, dsn string, opts PoolOptions, logger *slog.Logger) (*sql.DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PingAttempts <= 0 {
		opts.PingAttempts = 1
	}

	conn, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(opts.MaxOpenConns)
	conn.SetMaxIdleConns(opts.MaxIdleConns)
	conn.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	conn.SetConnMaxLifetime(opts.ConnMaxLifetime)

	var pingErr error
	for attempt := 1; attempt <= opts.PingAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
		pingErr = conn.PingContext(pingCtx)
		cancel()
		if pingErr == nil {
			return conn, nil
		}
		if attempt == opts.PingAttempts {
			break
		}

		logger.WarnContext(ctx, "database not ready", "attempt", attempt, "error", pingErr)
		select {
		case <-ctx.Done():
			_ = conn.Close()
			return nil, ctx.Err()
		case <-time.After(opts.PingBackoff * time.Duration(attempt)):
		}
	}

	_ = conn.Close()
	return nil, fmt.Errorf("ping database after %d attempts: %w", opts.PingAttempts, pingErr)
}
