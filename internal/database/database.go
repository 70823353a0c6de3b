// Package database owns the process-wide PostgreSQL handle.
//
// It handles:
//   - choosing the backend (pgxpool or a single pgx.Conn) from config
//   - wiring query tracing/logging (pgx tracelog)
//   - optional New Relic instrumentation (nrpgx5)
//   - applying embedded migrations (tern)
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/deppfellow/go-taskapi/internal/config"
	loggerConfig "github.com/deppfellow/go-taskapi/internal/logger"
	pgxzero "github.com/jackc/pgx-zerolog"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/newrelic/go-agent/v3/integrations/nrpgx5"
	"github.com/rs/zerolog"
)

const (
	ModePool   = "pool"
	ModeSingle = "single"
)

// DatabasePingTimeout bounds the startup ping.
const DatabasePingTimeout = 10 * time.Second

// Database pairs the shared Handle with a lifecycle logger.
type Database struct {
	Handle *Handle
	log    *zerolog.Logger
}

// NewDatabase wraps an existing handle. logger may be nil.
func NewDatabase(handle *Handle, logger *zerolog.Logger) *Database {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Database{Handle: handle, log: logger}
}

// multiTracer fans pgx query tracing out to several tracers, since
// ConnConfig has a single Tracer slot.
type multiTracer struct {
	tracers []pgx.QueryTracer
}

func (mt *multiTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	for _, t := range mt.tracers {
		ctx = t.TraceQueryStart(ctx, conn, data)
	}
	return ctx
}

func (mt *multiTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	for _, t := range mt.tracers {
		t.TraceQueryEnd(ctx, conn, data)
	}
}

// queryTracer returns the tracer for the environment, or nil for none.
// New Relic is added when the agent runs; SQL logging only in local.
func queryTracer(cfg *config.Config, logger *zerolog.Logger, loggerService *loggerConfig.LoggerService) pgx.QueryTracer {
	var tracers []pgx.QueryTracer

	if loggerService.GetApplication() != nil {
		tracers = append(tracers, nrpgx5.NewTracer())
	}

	if cfg.Primary.Env == "local" {
		globalLevel := logger.GetLevel()
		tracers = append(tracers, &tracelog.TraceLog{
			Logger:   pgxzero.NewLogger(loggerConfig.NewPgxLogger(globalLevel)),
			LogLevel: loggerConfig.GetPgxTraceLogLevel(globalLevel),
		})
	}

	switch len(tracers) {
	case 0:
		return nil
	case 1:
		return tracers[0]
	default:
		return &multiTracer{tracers: tracers}
	}
}

// New connects to PostgreSQL and returns the shared handle.
//
// In pool mode the handle admits up to max_open_conns requests at once. In
// single mode one pgx.Conn is opened and requests are serialized through it.
// The connection is pinged before returning so startup fails fast. opts
// are applied after the capacity derived from config.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger, loggerService *loggerConfig.LoggerService, opts ...HandleOption) (*Database, error) {
	tracer := queryTracer(cfg, logger, loggerService)

	var (
		conn     Conn
		closer   func(context.Context) error
		capacity int64
	)

	switch cfg.Database.Mode {
	case ModeSingle:
		connConfig, err := pgx.ParseConfig(cfg.Database.DSN())
		if err != nil {
			return nil, fmt.Errorf("failed to parse pgx config: %w", err)
		}
		connConfig.Tracer = tracer

		single, err := pgx.ConnectConfig(ctx, connConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		conn, closer, capacity = single, single.Close, 1

	default:
		poolConfig, err := pgxpool.ParseConfig(cfg.Database.DSN())
		if err != nil {
			return nil, fmt.Errorf("failed to parse pgx pool config: %w", err)
		}
		poolConfig.ConnConfig.Tracer = tracer
		poolConfig.MaxConns = int32(cfg.Database.MaxOpenConns)
		poolConfig.MinConns = int32(min(cfg.Database.MaxIdleConns, cfg.Database.MaxOpenConns))
		poolConfig.MaxConnLifetime = time.Duration(cfg.Database.ConnMaxLifetime) * time.Second
		poolConfig.MaxConnIdleTime = time.Duration(cfg.Database.ConnMaxIdleTime) * time.Second

		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		conn = pool
		closer = func(context.Context) error {
			pool.Close()
			return nil
		}
		capacity = int64(cfg.Database.MaxOpenConns)
	}

	pingCtx, cancel := context.WithTimeout(ctx, DatabasePingTimeout)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		_ = closer(context.Background())
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	handle := NewHandle(conn, append([]HandleOption{
		WithMaxConcurrency(capacity),
		WithCloser(closer),
	}, opts...)...)

	logger.Info().
		Str("mode", cfg.Database.Mode).
		Int64("capacity", handle.Capacity()).
		Msg("connected to the database")

	return NewDatabase(handle, logger), nil
}

// Close releases the connection. It fails with ErrInFlight while requests
// still hold it.
func (db *Database) Close(ctx context.Context) error {
	db.log.Info().Msg("closing database connection")
	return db.Handle.Close(ctx)
}
