package rest

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type fakeLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (f *fakeLimiter) Allow(_ context.Context, key string) (bool, error) {
	f.keys = append(f.keys, key)
	return f.allow, f.err
}

// countingScripter stands in for Redis by counting script runs per key.
type countingScripter struct {
	redis.Scripter
	counts map[string]int64
	ttls   map[string]any
	err    error
}

func (f *countingScripter) EvalSha(ctx context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	cmd := redis.NewCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	f.counts[keys[0]]++
	if f.counts[keys[0]] == 1 {
		f.ttls[keys[0]] = args[0]
	}
	cmd.SetVal(f.counts[keys[0]])
	return cmd
}

func TestRedisLimiter_FixedWindow(t *testing.T) {
	rdb := &countingScripter{counts: map[string]int64{}, ttls: map[string]any{}}
	l := NewRedisLimiter(rdb, 2, 30*time.Second, "appointly:rl")
	ctx := context.Background()

	var got []bool
	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "user:c1")
		if err != nil {
			t.Fatalf("Allow error: %v", err)
		}
		got = append(got, ok)
	}
	if !got[0] || !got[1] || got[2] {
		t.Fatalf("allowed = %v, want [true true false]", got)
	}
	if rdb.ttls["appointly:rl:user:c1"] != int64(30000) {
		t.Fatalf("window ttl = %v, want 30000ms", rdb.ttls["appointly:rl:user:c1"])
	}

	rdb.err = errors.New("connection refused")
	if _, err := l.Allow(ctx, "user:c1"); err == nil {
		t.Fatalf("expected redis error to surface")
	}
}

func TestLocalLimiter_PerKeyBurst(t *testing.T) {
	l := NewLocalLimiter(2, time.Hour)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if ok, _ := l.Allow(ctx, "a"); !ok {
			t.Fatalf("request %d for a denied", i+1)
		}
	}
	if ok, _ := l.Allow(ctx, "a"); ok {
		t.Fatalf("third request for a allowed")
	}
	if ok, _ := l.Allow(ctx, "b"); !ok {
		t.Fatalf("first request for b denied")
	}
}

func TestLocalLimiter_EvictsIdleBuckets(t *testing.T) {
	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	l := NewLocalLimiter(2, time.Minute)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for _, key := range []string{"user:a", "user:b", "user:c"} {
		if ok, _ := l.Allow(ctx, key); !ok {
			t.Fatalf("first request for %s denied", key)
		}
	}
	if l.size() != 3 {
		t.Fatalf("buckets = %d, want 3", l.size())
	}

	now = now.Add(30 * time.Second)
	l.Allow(ctx, "user:a")
	now = now.Add(45 * time.Second)
	if ok, _ := l.Allow(ctx, "user:d"); !ok {
		t.Fatalf("first request for user:d denied")
	}
	// b and c were idle for a full window; a was seen 45s ago.
	if l.size() != 2 {
		t.Fatalf("buckets = %d, want 2 (user:a, user:d)", l.size())
	}
}

func TestRateLimit_KeysOnCaller(t *testing.T) {
	lim := &fakeLimiter{allow: true}
	api := newTestAPI(t, Options{RateLimiter: lim})

	api.do(&client, http.MethodGet, "/appointments", nil).expect(t, http.StatusOK, "")
	if len(lim.keys) != 1 || lim.keys[0] != "user:c1" {
		t.Fatalf("keys = %v, want [user:c1]", lim.keys)
	}
}

func TestRateLimit_UnauthenticatedNeverReachesLimiter(t *testing.T) {
	lim := &fakeLimiter{allow: true}
	api := newTestAPI(t, Options{RateLimiter: lim})

	api.do(nil, http.MethodGet, "/appointments", nil).expect(t, http.StatusUnauthorized, "Unauthorized")
	if len(lim.keys) != 0 {
		t.Fatalf("keys = %v, want none", lim.keys)
	}
}

func TestRateLimit_Rejects(t *testing.T) {
	api := newTestAPI(t, Options{RateLimiter: &fakeLimiter{allow: false}})
	api.do(&client, http.MethodGet, "/appointments", nil).expect(t, http.StatusTooManyRequests, "RateLimited")
}

func TestRateLimit_LimiterFailure(t *testing.T) {
	broken := &fakeLimiter{err: errors.New("redis down")}

	closed := newTestAPI(t, Options{RateLimiter: broken})
	closed.do(&client, http.MethodGet, "/appointments", nil).expect(t, http.StatusServiceUnavailable, "Unavailable")

	open := newTestAPI(t, Options{RateLimiter: broken, RateFailOpen: true})
	open.do(&client, http.MethodGet, "/appointments", nil).expect(t, http.StatusOK, "")
}

func TestRateLimit_HealthNotLimited(t *testing.T) {
	api := newTestAPI(t, Options{RateLimiter: &fakeLimiter{allow: false}})
	if res := api.do(nil, http.MethodGet, "/healthz", nil); res.Code != http.StatusOK {
		t.Fatalf("healthz = %d", res.Code)
	}
	api.do(&provider, http.MethodGet, "/schedules/me", nil).expect(t, http.StatusTooManyRequests, "RateLimited")
}
