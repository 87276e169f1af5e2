package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"coderats/internal/db"
	"coderats/internal/leaderboard"
	"coderats/internal/rdb"
	"coderats/internal/refresh"
	"coderats/internal/score"
)

// ErrJobRunning is returned by Run when a run is already in progress.
var ErrJobRunning = errors.New("rank job already running")

type State string

const (
	StateIdle       State = "idle"
	StateFetching   State = "fetching"
	StateScoring    State = "scoring"
	StatePersisting State = "persisting"
)

type Store interface {
	ListUsers(ctx context.Context) ([]db.User, error)
	UpsertUser(ctx context.Context, username string, p db.UserPatch) error
	InsertRankSnapshots(ctx context.Context, snaps []db.RankSnapshot) error
}

type Fetcher interface {
	FetchStats(ctx context.Context, username, token string) (score.Counters, error)
}

type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// Hooks are optional side effects of a completed run.
type Hooks struct {
	Invalidate func(ctx context.Context)
	Completed  func(Result)
}

// Result summarises one run.
type Result struct {
	Updated    int           `json:"updated"`
	Errors     int           `json:"errors"`
	TotalUsers int           `json:"totalUsers"`
	Duration   time.Duration `json:"-"`
}

// Status is a point-in-time view of the job.
type Status struct {
	State      State      `json:"state"`
	LastRunAt  *time.Time `json:"lastRunAt,omitempty"`
	LastResult *Result    `json:"lastResult,omitempty"`
	LastError  string     `json:"lastError,omitempty"`
}

// Job re-pulls stats for every non-banned user in fixed-size batches and
// records a rank history snapshot afterwards.
type Job struct {
	store      Store
	fetcher    Fetcher
	locks      Locker
	hooks      Hooks
	batchSize  int
	batchDelay time.Duration

	running sync.Mutex // held for the duration of a run

	mu     sync.RWMutex
	status Status
	now    func() time.Time
}

func New(store Store, fetcher Fetcher, locks Locker, batchSize int, batchDelay time.Duration, hooks Hooks) *Job {
	if batchSize <= 0 {
		batchSize = 5
	}
	return &Job{
		store:      store,
		fetcher:    fetcher,
		locks:      locks,
		hooks:      hooks,
		batchSize:  batchSize,
		batchDelay: batchDelay,
		status:     Status{State: StateIdle},
		now:        time.Now,
	}
}

// Start runs the job every interval until ctx is cancelled. The first run
// happens after one interval.
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := j.Run(ctx); err != nil && !errors.Is(err, ErrJobRunning) {
					log.Printf("[rank] scheduled run failed: %v", err)
				}
			}
		}
	}()
}

// Status returns a copy of the current job status.
func (j *Job) Status() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	s := j.status
	if s.LastResult != nil {
		r := *s.LastResult
		s.LastResult = &r
	}
	return s
}

func (j *Job) setState(s State) {
	j.mu.Lock()
	j.status.State = s
	j.mu.Unlock()
}

// Run performs one full pass. A failure on one user is logged and counted
// without stopping the run; only listing users, cancellation or the history
// write fail the whole run.
func (j *Job) Run(ctx context.Context) (Result, error) {
	if !j.running.TryLock() {
		return Result{}, ErrJobRunning
	}
	defer j.running.Unlock()

	start := j.now()
	res, err := j.run(ctx)
	res.Duration = j.now().Sub(start)

	j.mu.Lock()
	j.status.State = StateIdle
	startedAt := start.UTC()
	j.status.LastRunAt = &startedAt
	if err != nil {
		j.status.LastError = err.Error()
	} else {
		j.status.LastError = ""
		j.status.LastResult = &res
	}
	j.mu.Unlock()

	if err != nil {
		log.Printf("[rank] run aborted after %s: %v", res.Duration.Round(time.Millisecond), err)
		return res, err
	}
	log.Printf("[rank] done: %d updated, %d errors, %d users in %s",
		res.Updated, res.Errors, res.TotalUsers, res.Duration.Round(time.Millisecond))
	if j.hooks.Completed != nil {
		j.hooks.Completed(res)
	}
	return res, nil
}

func (j *Job) run(ctx context.Context) (Result, error) {
	all, err := j.store.ListUsers(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("listing users: %w", err)
	}
	users := make([]string, 0, len(all))
	for _, u := range all {
		if !u.IsBanned {
			users = append(users, u.Username)
		}
	}

	res := Result{TotalUsers: len(users)}
	log.Printf("[rank] starting run over %d users (batch %d)", len(users), j.batchSize)

	for start := 0; start < len(users); start += j.batchSize {
		if start > 0 {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-time.After(j.batchDelay):
			}
		}
		end := min(start+j.batchSize, len(users))
		updated, failed := j.processBatch(ctx, users[start:end])
		res.Updated += updated
		res.Errors += failed
	}

	if j.hooks.Invalidate != nil {
		j.hooks.Invalidate(ctx)
	}
	if err := j.snapshot(ctx); err != nil {
		return res, err
	}
	return res, nil
}

// processBatch holds each user's refresh lock from fetch to persist, so a
// manual refresh can neither interleave with nor be overwritten by the job.
// Users whose lock is taken are skipped and counted as failed.
func (j *Job) processBatch(ctx context.Context, batch []string) (updated, failed int) {
	unlocks := make([]func(), len(batch))
	defer func() {
		for _, unlock := range unlocks {
			if unlock != nil {
				unlock()
			}
		}
	}()
	for i, username := range batch {
		unlock, err := j.locks.Lock(ctx, refresh.LockKey(username), rdb.RefreshLockTTL)
		if err != nil {
			log.Printf("[rank] %s: lock: %v", username, err)
			failed++
			continue
		}
		unlocks[i] = unlock
	}

	j.setState(StateFetching)
	fetched := make([]score.Counters, len(batch))
	errs := make([]error, len(batch))
	var wg sync.WaitGroup
	for i, username := range batch {
		if unlocks[i] == nil {
			continue
		}
		wg.Add(1)
		go func(i int, username string) {
			defer wg.Done()
			fetched[i], errs[i] = j.fetcher.FetchStats(ctx, username, "")
		}(i, username)
	}
	wg.Wait()

	j.setState(StateScoring)
	scores := make([]int64, len(batch))
	for i, c := range fetched {
		scores[i] = score.Compute(c)
	}

	j.setState(StatePersisting)
	now := j.now().UTC()
	for i, username := range batch {
		if unlocks[i] == nil {
			continue
		}
		// A rejected server token must not wipe everyone's counters.
		if errs[i] != nil {
			log.Printf("[rank] %s: fetch: %v", username, errs[i])
			failed++
			continue
		}
		// Scheduled updates do not touch the manual refresh log.
		if err := j.store.UpsertUser(ctx, username, db.UserPatch{Counters: &fetched[i], UpdatedAt: &now}); err != nil {
			log.Printf("[rank] %s: %v", username, err)
			failed++
			continue
		}
		log.Printf("[rank] %s: score %d", username, scores[i])
		updated++
	}
	return updated, failed
}

func (j *Job) snapshot(ctx context.Context) error {
	users, err := j.store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("listing users for history: %w", err)
	}
	board := leaderboard.Rank(users, false)
	if len(board) == 0 {
		return nil
	}
	at := j.now().UTC()
	snaps := make([]db.RankSnapshot, len(board))
	for i, e := range board {
		snaps[i] = db.RankSnapshot{Username: e.Username, Rank: e.Rank, Score: e.Score, RecordedAt: at}
	}
	if err := j.store.InsertRankSnapshots(ctx, snaps); err != nil {
		return fmt.Errorf("writing rank history: %w", err)
	}
	return nil
}
