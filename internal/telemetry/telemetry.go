package telemetry

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"coderats/internal/worker"
)

type UserCounter interface {
	CountUsers(ctx context.Context) (total, banned int, err error)
}

type JobStatus interface {
	Status() worker.Status
}

// Snapshot is one reading of the system's state.
type Snapshot struct {
	At            time.Time     `json:"at"`
	UptimeSeconds int64         `json:"uptimeSeconds"`
	Goroutines    int           `json:"goroutines"`
	HeapAlloc     uint64        `json:"heapAllocBytes"`
	NumGC         uint32        `json:"numGC"`
	TotalUsers    int           `json:"totalUsers"`
	BannedUsers   int           `json:"bannedUsers"`
	Job           worker.Status `json:"rankJob"`
}

type Collector struct {
	users   UserCounter
	job     JobStatus
	started time.Time
	now     func() time.Time
}

func NewCollector(users UserCounter, job JobStatus) *Collector {
	return &Collector{users: users, job: job, started: time.Now(), now: time.Now}
}

func (c *Collector) Snapshot(ctx context.Context) (Snapshot, error) {
	total, banned, err := c.users.CountUsers(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("counting users: %w", err)
	}
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	now := c.now()
	s := Snapshot{
		At:            now.UTC(),
		UptimeSeconds: int64(now.Sub(c.started).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
		HeapAlloc:     mem.HeapAlloc,
		NumGC:         mem.NumGC,
		TotalUsers:    total,
		BannedUsers:   banned,
	}
	if c.job != nil {
		s.Job = c.job.Status()
	}
	return s, nil
}

// Stream emits a snapshot immediately and then every interval until ctx is
// done or emit fails. Collection errors are passed to onErr and skipped.
func (c *Collector) Stream(ctx context.Context, interval time.Duration, emit func(Snapshot) error, onErr func(error)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		snap, err := c.Snapshot(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if onErr != nil {
				onErr(err)
			}
		} else if err := emit(snap); err != nil {
			return err
		}

		if ctx.Err() != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
