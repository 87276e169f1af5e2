package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"coderats/internal/db"
	"coderats/internal/rdb"
	"coderats/internal/score"
)

const (
	publicKey = "leaderboard:public"
	adminKey  = "leaderboard:all"

	// genKey counts invalidations. Cached boards are keyed by the generation
	// read before the user list, so a board built from a list that predates
	// an Invalidate lands under a key nobody reads again.
	genKey = "leaderboard:gen"
)

// Entry is a user record with its position on the board.
type Entry struct {
	db.User
	Rank int `json:"rank"`
}

// Board is a materialized leaderboard.
type Board struct {
	Users       []Entry   `json:"users"`
	LastUpdated time.Time `json:"lastUpdated"`
}

type Store interface {
	ListUsers(ctx context.Context) ([]db.User, error)
}

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration)
	Incr(ctx context.Context, key string) (int64, error)
}

type Builder struct {
	store Store
	cache Cache
	now   func() time.Time
}

// NewBuilder returns a Builder. cache may be nil.
func NewBuilder(store Store, cache Cache) *Builder {
	return &Builder{store: store, cache: cache, now: time.Now}
}

// Build returns the ranked board. Banned users are dropped unless
// includeBanned is set. Boards are cached until the next Invalidate.
func (b *Builder) Build(ctx context.Context, includeBanned bool) (Board, error) {
	key := publicKey
	if includeBanned {
		key = adminKey
	}

	if b.cache != nil {
		key += ":" + b.generation(ctx)
		if raw, ok := b.cache.Get(ctx, key); ok {
			var board Board
			if err := json.Unmarshal(raw, &board); err == nil {
				return board, nil
			}
			log.Printf("[leaderboard] discarding unreadable cache entry %s", key)
		}
	}

	users, err := b.store.ListUsers(ctx)
	if err != nil {
		return Board{}, fmt.Errorf("listing users: %w", err)
	}
	board := Board{Users: Rank(users, includeBanned), LastUpdated: b.now().UTC()}

	if b.cache != nil {
		if raw, err := json.Marshal(board); err == nil {
			b.cache.Set(ctx, key, raw, rdb.LeaderboardCacheTTL)
		}
	}
	return board, nil
}

// Invalidate retires every cached board. Old entries age out on their TTL.
func (b *Builder) Invalidate(ctx context.Context) {
	if b.cache == nil {
		return
	}
	if _, err := b.cache.Incr(ctx, genKey); err != nil {
		log.Printf("[leaderboard] invalidate: %v", err)
	}
}

func (b *Builder) generation(ctx context.Context) string {
	if raw, ok := b.cache.Get(ctx, genKey); ok {
		return string(raw)
	}
	return "0"
}

// Rank recomputes each score from the stored counters, sorts by descending
// score keeping input order among ties, and numbers the result from 1.
func Rank(users []db.User, includeBanned bool) []Entry {
	entries := make([]Entry, 0, len(users))
	for _, u := range users {
		if u.IsBanned && !includeBanned {
			continue
		}
		u.Score = score.Compute(u.Counters)
		entries = append(entries, Entry{User: u})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
