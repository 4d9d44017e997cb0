package postgres

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"
)

func TestParseConnConfig_ApplicationName(t *testing.T) {
	opts := Options{}.withDefaults()

	cfg, err := parseConnConfig("postgres://u:p@127.0.0.1:5432/appointly?sslmode=disable", opts)
	if err != nil {
		t.Fatalf("parseConnConfig error: %v", err)
	}
	if got := cfg.RuntimeParams["application_name"]; got != "appointly" {
		t.Fatalf("application_name = %q, want appointly", got)
	}

	cfg, err = parseConnConfig("postgres://u:p@127.0.0.1:5432/appointly?application_name=reports", opts)
	if err != nil {
		t.Fatalf("parseConnConfig error: %v", err)
	}
	if got := cfg.RuntimeParams["application_name"]; got != "reports" {
		t.Fatalf("application_name = %q, want the one from the url", got)
	}
}

func TestParseConnConfig_Rejects(t *testing.T) {
	for _, raw := range []string{"", "   ", "postgres://%zz"} {
		if _, err := parseConnConfig(raw, Options{}.withDefaults()); err == nil {
			t.Fatalf("parseConnConfig(%q) succeeded", raw)
		}
	}
}

func TestOptions_WithDefaults(t *testing.T) {
	got := Options{}.withDefaults()
	if got.ApplicationName != "appointly" || got.SlowQuery != 500*time.Millisecond || got.Logger == nil {
		t.Fatalf("defaults = %+v", got)
	}
	kept := Options{ApplicationName: "x", SlowQuery: -1}.withDefaults()
	if kept.ApplicationName != "x" || kept.SlowQuery != -1 {
		t.Fatalf("explicit values overwritten: %+v", kept)
	}
}

func TestQueryLogger(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		err     error
		want    string
	}{
		{name: "fast query", elapsed: time.Millisecond},
		{name: "slow query", elapsed: time.Second, want: "slow query"},
		{name: "failure", elapsed: time.Millisecond, err: errors.New("connection reset"), want: "query failed"},
		{name: "no rows", elapsed: time.Millisecond, err: sql.ErrNoRows},
		{name: "overlap", elapsed: time.Millisecond, err: fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23P01"})},
		{name: "slow overlap", elapsed: time.Second, err: &pgconn.PgError{Code: "23P01"}, want: "slow query"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := &queryLogger{log: slog.New(slog.NewJSONHandler(&buf, nil)), slow: 100 * time.Millisecond}
			h.AfterQuery(context.Background(), &bun.QueryEvent{
				StartTime: time.Now().Add(-tt.elapsed),
				Query:     "SELECT 1",
				Err:       tt.err,
			})

			out := buf.String()
			if tt.want == "" {
				if out != "" {
					t.Fatalf("logged %q, want nothing", out)
				}
				return
			}
			if !strings.Contains(out, tt.want) {
				t.Fatalf("log = %q, want %q", out, tt.want)
			}
		})
	}
}

func TestTruncateQuery(t *testing.T) {
	if got := truncateQuery("SELECT 1", 512); got != "SELECT 1" {
		t.Fatalf("short query changed: %q", got)
	}
	if got := truncateQuery(strings.Repeat("x", 10), 4); got != "xxxx..." {
		t.Fatalf("truncated = %q", got)
	}
}
