package analytics

import (
	"log"

	"github.com/posthog/posthog-go"
)

const (
	EventUserLogin        = "user_login"
	EventStatsRefreshed   = "stats_refreshed"
	EventUserBanned       = "user_banned"
	EventUserUnbanned     = "user_unbanned"
	EventRankJobCompleted = "rank_job_completed"

	// distinct ID for events not caused by a signed-in user
	systemID = "coderats-system"
)

// enqueuer is the part of posthog.Client we use.
type enqueuer interface {
	Enqueue(posthog.Message) error
	Close() error
}

// Client wraps the PostHog client with nil-safe methods.
// A zero-value Client is a no-op (safe to use without initialization).
type Client struct {
	ph enqueuer
}

// New creates a PostHog analytics client. Returns a no-op client if apiKey is empty.
func New(apiKey string) *Client {
	if apiKey == "" {
		return &Client{}
	}
	ph, err := posthog.NewWithConfig(apiKey, posthog.Config{
		Endpoint: "https://us.i.posthog.com",
	})
	if err != nil {
		log.Printf("[analytics] failed to init posthog: %v", err)
		return &Client{}
	}
	return &Client{ph: ph}
}

// Close flushes pending events and closes the client.
func (c *Client) Close() {
	if c != nil && c.ph != nil {
		c.ph.Close()
	}
}

// Capture enqueues an event asynchronously. Safe to call on a no-op client.
func (c *Client) Capture(distinctID, event string, props map[string]interface{}) {
	if c == nil || c.ph == nil {
		return
	}
	p := posthog.NewProperties()
	for k, v := range props {
		p.Set(k, v)
	}
	if err := c.ph.Enqueue(posthog.Capture{
		DistinctId: distinctID,
		Event:      event,
		Properties: p,
	}); err != nil {
		log.Printf("[analytics] enqueue %s: %v", event, err)
	}
}

func (c *Client) UserLogin(login string, firstTime bool) {
	c.Capture(login, EventUserLogin, map[string]interface{}{"first_login": firstTime})
}

func (c *Client) StatsRefreshed(login string, forced bool, score int64) {
	c.Capture(login, EventStatsRefreshed, map[string]interface{}{"forced": forced, "score": score})
}

// Moderation records a ban or unban performed by admin on login.
func (c *Client) Moderation(admin, login string, banned bool) {
	event := EventUserUnbanned
	if banned {
		event = EventUserBanned
	}
	c.Capture(admin, event, map[string]interface{}{"target": login})
}

func (c *Client) RankJobCompleted(updated, errors, total int) {
	c.Capture(systemID, EventRankJobCompleted, map[string]interface{}{
		"updated":     updated,
		"errors":      errors,
		"total_users": total,
	})
}
