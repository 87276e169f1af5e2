package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"coderats/internal/score"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrRateLimited = errors.New("rate limited")
	ErrBadToken    = errors.New("GitHub token invalid or expired")
)

const (
	defaultBaseURL = "https://api.github.com"
	eventsPerPage  = 100
	userAgent      = "coderats/1.0"

	// The search API allows 30 authenticated requests per minute.
	searchInterval = 2 * time.Second
	searchBurst    = 10
)

type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	search     *rate.Limiter
}

type Option func(*Client)

// WithBaseURL points the client at another API root (tests, GHES).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithSearchRate overrides the client-side pacing of search requests.
func WithSearchRate(limit rate.Limit, burst int) Option {
	return func(c *Client) { c.search = rate.NewLimiter(limit, burst) }
}

func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		token:      token,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		search:     rate.NewLimiter(rate.Every(searchInterval), searchBurst),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithToken returns a new Client that shares the same HTTP client and search
// pacing but uses a different auth token. An empty token keeps the current one.
func (c *Client) WithToken(token string) *Client {
	if token == "" {
		return c
	}
	cp := *c
	cp.token = token
	return &cp
}

// ── Transport ─────────────────────────────────────────────────────────────────

// get performs a REST GET and decodes the JSON body into v.
func (c *Client) get(ctx context.Context, path string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusUnprocessableEntity:
		return ErrNotFound
	case http.StatusForbidden, http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusUnauthorized:
		return ErrBadToken
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("GitHub API error: %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// searchCount returns total_count for a search query, paced by the search limiter.
func (c *Client) searchCount(ctx context.Context, kind, query string) (int, error) {
	if err := c.search.Wait(ctx); err != nil {
		return 0, err
	}
	var result struct {
		TotalCount int `json:"total_count"`
	}
	path := fmt.Sprintf("/search/%s?q=%s&per_page=1", kind, url.QueryEscape(query))
	if err := c.get(ctx, path, &result); err != nil {
		return 0, fmt.Errorf("search %s %q: %w", kind, query, err)
	}
	return result.TotalCount, nil
}

// ── Public API ────────────────────────────────────────────────────────────────

// GetUser fetches a user's public profile.
func (c *Client) GetUser(ctx context.Context, login string) (*GHUser, error) {
	var u GHUser
	if err := c.get(ctx, "/users/"+url.PathEscape(login), &u); err != nil {
		return nil, fmt.Errorf("get user %s: %w", login, err)
	}
	return &u, nil
}

// RecentEvents returns the most recent page of a user's public events.
func (c *Client) RecentEvents(ctx context.Context, login string) ([]GHEvent, error) {
	var events []GHEvent
	path := fmt.Sprintf("/users/%s/events/public?per_page=%d", url.PathEscape(login), eventsPerPage)
	if err := c.get(ctx, path, &events); err != nil {
		return nil, fmt.Errorf("events %s: %w", login, err)
	}
	return events, nil
}

// FetchStats pulls a user's activity counters. The five queries run in
// parallel; if any of them fails the whole result collapses to zero counters.
// A token GitHub rejects is the one failure reported as ErrBadToken instead.
// token overrides the client's token when non-empty.
func (c *Client) FetchStats(ctx context.Context, username, token string) (score.Counters, error) {
	counters, err := c.WithToken(token).fetchStats(ctx, username)
	switch {
	case errors.Is(err, ErrBadToken):
		return score.Counters{}, err
	case err != nil:
		log.Printf("[github] stats for %s failed, using zero counters: %v", username, err)
		return score.Counters{}, nil
	}
	return counters, nil
}

func (c *Client) fetchStats(ctx context.Context, username string) (score.Counters, error) {
	var (
		out    score.Counters
		events []GHEvent
	)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		out.Commits, err = c.searchCount(ctx, "commits", "author:"+username)
		return err
	})
	g.Go(func() (err error) {
		out.PullRequests, err = c.searchCount(ctx, "issues", "author:"+username+" type:pr")
		return err
	})
	g.Go(func() (err error) {
		out.Issues, err = c.searchCount(ctx, "issues", "author:"+username+" type:issue")
		return err
	})
	g.Go(func() (err error) {
		out.CodeReviews, err = c.searchCount(ctx, "issues", "reviewed-by:"+username+" type:pr")
		return err
	})
	g.Go(func() (err error) {
		events, err = c.RecentEvents(ctx, username)
		return err
	})

	if err := g.Wait(); err != nil {
		return score.Counters{}, err
	}
	out.Projects, out.ActiveDays = summarizeEvents(events)
	return out, nil
}

// summarizeEvents counts distinct repositories and distinct UTC dates. Only
// one page of events is considered, so both are approximations.
func summarizeEvents(events []GHEvent) (projects, activeDays int) {
	repos := make(map[string]bool)
	days := make(map[string]bool)
	for _, e := range events {
		if e.Repo.Name != "" {
			repos[e.Repo.Name] = true
		}
		if !e.CreatedAt.IsZero() {
			days[e.CreatedAt.UTC().Format("2006-01-02")] = true
		}
	}
	return len(repos), len(days)
}
