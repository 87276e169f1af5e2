package rdb

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cachePfx     = "coderats:cache:"
	lockPfx      = "coderats:lock:"
	rateLimitPfx = "coderats:rl:"

	LeaderboardCacheTTL = 10 * time.Minute
	RefreshLockTTL      = 2 * time.Minute // exceeds the GitHub client timeout
)

// ErrLocked is returned when another holder owns the lock.
var ErrLocked = errors.New("lock held")

// releaseScript deletes the lock only if the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

type Client struct {
	rdb *redis.Client
}

// New connects to redisURL and fails fast when the server is unreachable.
func New(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("rdb: parse url: %w", err)
	}
	rc := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		rc.Close()
		return nil, fmt.Errorf("rdb: ping %s: %w", opts.Addr, err)
	}
	return &Client{rdb: rc}, nil
}

func (c *Client) Close() error { return c.rdb.Close() }

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error { return c.rdb.Ping(ctx).Err() }

// ── Cache ─────────────────────────────────────────────────────────────────────

// The cache is best-effort: errors other than a miss are logged and reported
// as a miss so callers fall back to the database.

func (c *Client) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.rdb.Get(ctx, cachePfx+key).Bytes()
	return val, c.hit(key, err)
}

func (c *Client) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	if err := c.rdb.Set(ctx, cachePfx+key, val, ttl).Err(); err != nil {
		log.Printf("[cache] set %s: %v", key, err)
	}
}

// Incr bumps the counter at key. The key never expires.
func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	return c.rdb.Incr(ctx, cachePfx+key).Result()
}

// Take reads and deletes key in one step. Used for single-use tokens.
func (c *Client) Take(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.rdb.GetDel(ctx, cachePfx+key).Bytes()
	return val, c.hit(key, err)
}

func (c *Client) hit(key string, err error) bool {
	if err == nil {
		return true
	}
	if !errors.Is(err, redis.Nil) {
		log.Printf("[cache] get %s: %v", key, err)
	}
	return false
}

// ── Locks ─────────────────────────────────────────────────────────────────────

// Lock acquires a short-lived exclusive lock on key. It does not wait: when
// someone else holds the lock it returns ErrLocked. The returned func releases
// the lock if it is still ours.
func (c *Client) Lock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	token := hex.EncodeToString(b)

	ok, err := c.rdb.SetNX(ctx, lockPfx+key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return func() {
		// Release on a fresh context so a cancelled request still unlocks.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		releaseScript.Run(ctx, c.rdb, []string{lockPfx + key}, token)
	}, nil
}

// ── Rate limiting ─────────────────────────────────────────────────────────────

// RateLimit is a fixed-window per-IP limiter: at most max requests per window.
// Over-limit requests get a 429 in the API error envelope with Retry-After.
// A Redis outage fails open.
func (c *Client) RateLimit(max int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			slot := now.UnixNano() / int64(window)
			key := rateLimitPfx + realIP(r) + ":" + strconv.FormatInt(slot, 10)

			pipe := c.rdb.TxPipeline()
			hits := pipe.Incr(r.Context(), key)
			pipe.Expire(r.Context(), key, window)
			if _, err := pipe.Exec(r.Context()); err != nil {
				log.Printf("[ratelimit] redis: %v", err)
				next.ServeHTTP(w, r)
				return
			}

			remaining := int64(max) - hits.Val()
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(max))
			if remaining < 0 {
				reset := time.Unix(0, (slot+1)*int64(window)).Sub(now)
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(reset.Seconds()))))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":{"code":"RATE_LIMITED","message":"too many requests"}}` + "\n"))
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			next.ServeHTTP(w, r)
		})
	}
}

// realIP prefers the first X-Forwarded-For hop; the server runs behind a proxy.
func realIP(r *http.Request) string {
	if xfwd := r.Header.Get("X-Forwarded-For"); xfwd != "" {
		first, _, _ := strings.Cut(xfwd, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
