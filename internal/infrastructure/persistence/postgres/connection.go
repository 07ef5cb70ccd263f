// Package postgres implements the fact source on PostgreSQL. Accepted
// submissions land in ac_submissions; the stats batch reads them back
// grouped per user and day.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrMissingURL is returned when no connection string is configured.
var ErrMissingURL = errors.New("postgres: connection URL is empty")

// Config is the fact-source pool. URL is a libpq URL or keyword/value DSN;
// zero pool fields keep pgxpool's defaults.
type Config struct {
	URL string

	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration

	// ConnectTimeout bounds dial plus the first ping.
	ConnectTimeout time.Duration
	// QueryTimeout bounds a single fact-source query attempt.
	QueryTimeout time.Duration
}

// DefaultConfig returns the pool sizing used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MaxConns:          10,
		MinConns:          2,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   30 * time.Minute,
		HealthCheckPeriod: time.Minute,
		ConnectTimeout:    10 * time.Second,
		QueryTimeout:      60 * time.Second,
	}
}

func (c Config) pgxConfig() (*pgxpool.Config, error) {
	if c.URL == "" {
		return nil, ErrMissingURL
	}
	pc, err := pgxpool.ParseConfig(c.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse connection URL: %w", err)
	}

	setIf(&pc.MaxConns, c.MaxConns)
	setIf(&pc.MinConns, c.MinConns)
	setIf(&pc.MaxConnLifetime, c.MaxConnLifetime)
	setIf(&pc.MaxConnIdleTime, c.MaxConnIdleTime)
	setIf(&pc.HealthCheckPeriod, c.HealthCheckPeriod)
	if c.ConnectTimeout > 0 {
		pc.ConnConfig.ConnectTimeout = c.ConnectTimeout
	}
	return pc, nil
}

func setIf[T int32 | time.Duration](dst *T, v T) {
	if v > 0 {
		*dst = v
	}
}

// Connection owns the pgx pool shared by the fact repository and the migrator.
type Connection struct {
	pool      *pgxpool.Pool
	closeOnce sync.Once
}

// NewConnection opens the pool and pings it once.
func NewConnection(ctx context.Context, cfg Config) (*Connection, error) {
	pc, err := cfg.pgxConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("postgres: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping %s: %w", pc.ConnConfig.Host, err)
	}
	return &Connection{pool: pool}, nil
}

func (c *Connection) Pool() *pgxpool.Pool { return c.pool }

// Close is idempotent.
func (c *Connection) Close() {
	c.closeOnce.Do(c.pool.Close)
}

// Querier is the subset of *pgxpool.Pool the fact repository needs.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ Querier = (*pgxpool.Pool)(nil)

// ══════════════════════════════════════════════════════════════════════════════
// ERROR CLASSIFICATION
// ══════════════════════════════════════════════════════════════════════════════

const (
	sqlstateUndefinedTable       = "42P01"
	sqlstateSerializationFailure = "40001"
	sqlstateAdminShutdown        = "57P01"
	sqlstateCannotConnectNow     = "57P03"
)

// IsUndefinedTable reports a query against a table that does not exist yet,
// i.e. migrations have not run.
func IsUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlstateUndefinedTable
}

// IsTransient reports errors worth retrying: the statement never reached the
// server, a connection exception (class 08), a serialization failure or a
// server that is starting up or shutting down.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if pgconn.SafeToRetry(err) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if len(pgErr.Code) == 5 && pgErr.Code[:2] == "08" {
			return true
		}
		switch pgErr.Code {
		case sqlstateSerializationFailure, sqlstateAdminShutdown, sqlstateCannotConnectNow:
			return true
		}
		return false
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
