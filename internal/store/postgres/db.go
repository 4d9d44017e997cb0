package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

const defaultApplicationName = "appointly"

// Options tunes the connection pool and query logging. Zero values keep
// database/sql defaults, except ApplicationName and SlowQuery.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// ApplicationName shows up in pg_stat_activity.
	ApplicationName string
	// SlowQuery is the duration above which a query is logged at warn.
	// Negative disables it.
	SlowQuery time.Duration
	Logger    *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.ApplicationName == "" {
		o.ApplicationName = defaultApplicationName
	}
	if o.SlowQuery == 0 {
		o.SlowQuery = 500 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// parseConnConfig validates the URL without dialing and applies the
// application name unless the URL already carries one.
func parseConnConfig(databaseURL string, opts Options) (*pgx.ConnConfig, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, errors.New("database url is empty")
	}
	connCfg, err := pgx.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if connCfg.RuntimeParams == nil {
		connCfg.RuntimeParams = make(map[string]string)
	}
	if connCfg.RuntimeParams["application_name"] == "" {
		connCfg.RuntimeParams["application_name"] = opts.ApplicationName
	}
	return connCfg, nil
}

func Open(ctx context.Context, databaseURL string, opts Options) (*bun.DB, error) {
	opts = opts.withDefaults()
	connCfg, err := parseConnConfig(databaseURL, opts)
	if err != nil {
		return nil, err
	}
	sqlDB := stdlib.OpenDB(*connCfg)

	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	if opts.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	db := bun.NewDB(sqlDB, pgdialect.New())
	db.AddQueryHook(&queryLogger{log: opts.Logger, slow: opts.SlowQuery})
	return db, nil
}

func Close(db *bun.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}

// Ping is used by readiness checks.
func Ping(ctx context.Context, db *bun.DB) error {
	return db.PingContext(ctx)
}

// queryLogger reports failed and slow queries. Exclusion violations and
// missing rows are expected outcomes and stay quiet.
type queryLogger struct {
	log  *slog.Logger
	slow time.Duration
}

var _ bun.QueryHook = (*queryLogger)(nil)

func (h *queryLogger) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *queryLogger) AfterQuery(ctx context.Context, ev *bun.QueryEvent) {
	elapsed := time.Since(ev.StartTime)
	switch {
	case ev.Err != nil && !expectedQueryError(ev.Err):
		h.log.ErrorContext(ctx, "query failed",
			slog.String("operation", ev.Operation()),
			slog.Duration("elapsed", elapsed),
			slog.Any("err", ev.Err),
		)
	case h.slow > 0 && elapsed >= h.slow:
		h.log.WarnContext(ctx, "slow query",
			slog.String("operation", ev.Operation()),
			slog.Duration("elapsed", elapsed),
			slog.String("query", truncateQuery(ev.Query, 512)),
		)
	}
}

func expectedQueryError(err error) bool {
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, context.Canceled) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23P01", "23505":
			return true
		}
	}
	return false
}

func truncateQuery(q string, limit int) string {
	if len(q) <= limit {
		return q
	}
	return q[:limit] + "..."
}
