package refresh

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"coderats/internal/db"
	"coderats/internal/rdb"
	"coderats/internal/score"
)

var ErrUserNotFound = errors.New("user not found")

type Store interface {
	GetUser(ctx context.Context, username string) (*db.User, error)
	UpsertUser(ctx context.Context, username string, p db.UserPatch) error
}

// Fetcher returns a user's counters. Upstream failures already degrade to zero
// counters; an error means the credentials were rejected.
type Fetcher interface {
	FetchStats(ctx context.Context, username, token string) (score.Counters, error)
}

// Locker hands out exclusive per-key locks. Lock must not block: a held lock
// is reported as rdb.ErrLocked.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// Invalidator drops derived views after a user record changes.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// LockKey is the lock shared by every writer of a user's counters.
func LockKey(username string) string { return "refresh:" + username }

// Result is what a refresh attempt produced. When Refreshed is false, Reason
// explains the denial and User holds the unchanged record.
type Result struct {
	Refreshed bool     `json:"refreshed"`
	Reason    string   `json:"reason,omitempty"`
	User      *db.User `json:"user,omitempty"`
}

type Service struct {
	store   Store
	fetcher Fetcher
	locks   Locker
	views   Invalidator
	now     func() time.Time
}

func NewService(store Store, fetcher Fetcher, locks Locker, views Invalidator) *Service {
	return &Service{
		store:   store,
		fetcher: fetcher,
		locks:   locks,
		views:   views,
		now:     time.Now,
	}
}

// Refresh re-pulls a user's counters if the refresh policy allows it. The
// read-decide-write sequence runs under the user's lock, so two concurrent
// calls cannot both pass the policy check.
func (s *Service) Refresh(ctx context.Context, username, token string, force bool) (Result, error) {
	unlock, err := s.locks.Lock(ctx, LockKey(username), rdb.RefreshLockTTL)
	if errors.Is(err, rdb.ErrLocked) {
		return Result{Reason: "refresh already in progress"}, nil
	}
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	u, err := s.store.GetUser(ctx, username)
	if err != nil {
		return Result{}, fmt.Errorf("loading %s: %w", username, err)
	}
	if u == nil {
		return Result{}, ErrUserNotFound
	}

	now := s.now()
	decision := ShouldRefresh(now, u.UpdatedAt, u.RefreshLog, force)
	if !decision.Allowed {
		return Result{Reason: decision.Reason, User: u}, nil
	}

	counters, err := s.fetcher.FetchStats(ctx, username, token)
	if err != nil {
		// Nothing is written: the counters and the forced quota stay as they were.
		return Result{}, fmt.Errorf("fetching %s: %w", username, err)
	}
	stamp := now.UTC()
	patch := db.UserPatch{Counters: &counters, UpdatedAt: &stamp}
	if force {
		next := NextLog(now, u.RefreshLog)
		patch.RefreshLog = &next
	}
	if err := s.store.UpsertUser(ctx, username, patch); err != nil {
		return Result{}, fmt.Errorf("saving %s: %w", username, err)
	}
	if s.views != nil {
		s.views.Invalidate(ctx)
	}

	updated, err := s.store.GetUser(ctx, username)
	if err != nil {
		return Result{}, fmt.Errorf("reloading %s: %w", username, err)
	}
	log.Printf("[refresh] %s refreshed (forced=%v, score=%d)", username, force, score.Compute(counters))
	return Result{Refreshed: true, User: updated}, nil
}
