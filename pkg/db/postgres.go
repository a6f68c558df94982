package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/shiva/fleetops/config"
)

// NewPostgresPool creates a connection pool to PostgreSQL.
//
// Pool settings:
//   - MaxConns / MinConns from config (defaults 25 / 5)
//   - Health-check period: 30 s
//   - Session time zone pinned to UTC so DATE columns scan as UTC midnights
//   - Statements slower than cfg.SlowQueryThreshold are logged at Warn
func NewPostgresPool(ctx context.Context, cfg config.PostgresConfig, log *zap.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.HealthCheckPeriod = 30 * time.Second
	poolCfg.MaxConnLifetime = 1 * time.Hour
	poolCfg.MaxConnIdleTime = 15 * time.Minute

	poolCfg.ConnConfig.RuntimeParams["timezone"] = "UTC"
	poolCfg.ConnConfig.RuntimeParams["application_name"] = "fleetops"
	if cfg.SlowQueryThreshold > 0 && log != nil {
		poolCfg.ConnConfig.Tracer = &SlowQueryTracer{Log: log, Threshold: cfg.SlowQueryThreshold}
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}

	// Verify connectivity.
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping failed: %w", err)
	}

	return pool, nil
}

// HealthCheck pings the PostgreSQL pool and returns nil if healthy.
func HealthCheck(ctx context.Context, pool *pgxpool.Pool) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return pool.Ping(pingCtx)
}

// ─── Query tracing ──────────────────────────────────────────

type traceKey struct{}

type traceStart struct {
	sql string
	at  time.Time
}

// SlowQueryTracer is a pgx.QueryTracer that logs slow statements at Warn and
// failed ones at Debug. pgx.ErrNoRows is not a failure.
type SlowQueryTracer struct {
	Log       *zap.Logger
	Threshold time.Duration

	now func() time.Time
}

func (t *SlowQueryTracer) clock() time.Time {
	if t.now != nil {
		return t.now()
	}
	return time.Now()
}

func (t *SlowQueryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, traceKey{}, traceStart{sql: data.SQL, at: t.clock()})
}

func (t *SlowQueryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(traceKey{}).(traceStart)
	if !ok {
		return
	}
	elapsed := t.clock().Sub(start.at)

	if data.Err != nil && !errors.Is(data.Err, pgx.ErrNoRows) {
		t.Log.Debug("query failed",
			zap.String("sql", compactSQL(start.sql)),
			zap.Duration("elapsed", elapsed),
			zap.Error(data.Err))
		return
	}
	if elapsed >= t.Threshold {
		t.Log.Warn("slow query",
			zap.String("sql", compactSQL(start.sql)),
			zap.Duration("elapsed", elapsed),
			zap.String("command", data.CommandTag.String()))
	}
}

// compactSQL folds a multi-line statement onto one line for log output.
func compactSQL(sql string) string {
	return strings.Join(strings.Fields(sql), " ")
}
