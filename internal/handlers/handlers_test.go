package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"coderats/internal/analytics"
	"coderats/internal/auth"
	"coderats/internal/config"
	"coderats/internal/db"
	"coderats/internal/leaderboard"
	"coderats/internal/refresh"
	"coderats/internal/score"
	"coderats/internal/telemetry"
	"coderats/internal/worker"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// ── Fakes ──────────────────────────────────────────────────────────────────────

type fakeStore struct {
	mu            sync.Mutex
	users         map[string]*db.User
	history       map[string][]db.RankSnapshot
	announcements []db.Announcement
}

func newFakeStore(users ...db.User) *fakeStore {
	s := &fakeStore{users: map[string]*db.User{}, history: map[string][]db.RankSnapshot{}}
	for i := range users {
		u := users[i]
		u.Score = score.Compute(u.Counters)
		s.users[u.Username] = &u
	}
	return s
}

func (s *fakeStore) GetUser(_ context.Context, username string) (*db.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (s *fakeStore) UpsertUser(_ context.Context, username string, p db.UserPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		u = &db.User{Username: username}
		s.users[username] = u
	}
	if p.AvatarURL != nil {
		u.AvatarURL = *p.AvatarURL
	}
	if p.DisplayName != nil {
		u.DisplayName = *p.DisplayName
	}
	return nil
}

func (s *fakeStore) SetBanned(_ context.Context, username string, banned bool) (*db.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return nil, db.ErrNotFound
	}
	u.IsBanned = banned
	cp := *u
	return &cp, nil
}

func (s *fakeStore) ResetUser(_ context.Context, username string) (*db.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return nil, db.ErrNotFound
	}
	u.Counters, u.Score, u.UpdatedAt, u.RefreshLog = score.Counters{}, 0, nil, nil
	cp := *u
	return &cp, nil
}

func (s *fakeStore) RankHistory(_ context.Context, username string, _ int) ([]db.RankSnapshot, error) {
	return s.history[username], nil
}

func (s *fakeStore) CreateAnnouncement(_ context.Context, title, body string, active bool) (*db.Announcement, error) {
	a := db.Announcement{ID: uuid.New(), Title: title, Body: body, Active: active}
	s.announcements = append([]db.Announcement{a}, s.announcements...)
	return &a, nil
}

func (s *fakeStore) UpdateAnnouncement(_ context.Context, id uuid.UUID, p db.AnnouncementPatch) (*db.Announcement, error) {
	for i := range s.announcements {
		a := &s.announcements[i]
		if a.ID != id {
			continue
		}
		if p.Title != nil {
			a.Title = *p.Title
		}
		if p.Body != nil {
			a.Body = *p.Body
		}
		if p.Active != nil {
			a.Active = *p.Active
		}
		cp := *a
		return &cp, nil
	}
	return nil, db.ErrNotFound
}

func (s *fakeStore) DeleteAnnouncement(_ context.Context, id uuid.UUID) error {
	for i, a := range s.announcements {
		if a.ID == id {
			s.announcements = append(s.announcements[:i], s.announcements[i+1:]...)
			return nil
		}
	}
	return db.ErrNotFound
}

func (s *fakeStore) ListAnnouncements(_ context.Context, activeOnly bool) ([]db.Announcement, error) {
	var out []db.Announcement
	for _, a := range s.announcements {
		if a.Active || !activeOnly {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeStore) ListUsers(context.Context) ([]db.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]db.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	return out, nil
}

type countingBoards struct {
	*leaderboard.Builder
	invalidations int
}

func (b *countingBoards) Invalidate(ctx context.Context) {
	b.invalidations++
	b.Builder.Invalidate(ctx)
}

type fakeRefresher struct {
	mu     sync.Mutex
	calls  []refreshRequest
	result refresh.Result
	err    error
	called chan struct{}
}

func (f *fakeRefresher) Refresh(_ context.Context, username, token string, force bool) (refresh.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, refreshRequest{Username: username, Token: token, Force: force})
	f.mu.Unlock()
	if f.called != nil {
		f.called <- struct{}{}
	}
	return f.result, f.err
}

type fakeJob struct {
	result worker.Result
	err    error
	runs   int
}

func (j *fakeJob) Run(context.Context) (worker.Result, error) {
	j.runs++
	return j.result, j.err
}

func (j *fakeJob) Status() worker.Status {
	return worker.Status{State: worker.StateIdle, LastResult: &j.result}
}

type fakeTelemetry struct{}

func (fakeTelemetry) Stream(ctx context.Context, _ time.Duration, emit func(telemetry.Snapshot) error, _ func(error)) error {
	for i := 0; i < 2; i++ {
		if err := emit(telemetry.Snapshot{TotalUsers: 3, BannedUsers: 1}); err != nil {
			return err
		}
	}
	return nil
}

type memStates map[string]bool

func (m memStates) Set(_ context.Context, key string, _ []byte, _ time.Duration) { m[key] = true }

func (m memStates) Take(_ context.Context, key string) ([]byte, bool) {
	ok := m[key]
	delete(m, key)
	return []byte("1"), ok
}

// ── Harness ────────────────────────────────────────────────────────────────────

type env struct {
	store     *fakeStore
	boards    *countingBoards
	refresher *fakeRefresher
	job       *fakeJob
	states    memStates
	sessions  *auth.Sessions
	cfg       *config.Config
	router    http.Handler
}

func newEnv(t *testing.T, users ...db.User) *env {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)

	store := newFakeStore(users...)
	e := &env{
		store:     store,
		boards:    &countingBoards{Builder: leaderboard.NewBuilder(store, nil)},
		refresher: &fakeRefresher{},
		job:       &fakeJob{},
		states:    memStates{},
		sessions:  auth.NewSessions(testSecret),
		cfg: &config.Config{
			BaseURL:                 "http://localhost:8080",
			JWTSecret:               testSecret,
			AdminUsername:           "root",
			AdminPasswordHash:       string(hash),
			GitHubOAuthClientID:     "cid",
			GitHubOAuthClientSecret: "csecret",
		},
	}
	h := New(Deps{
		Store:     store,
		Boards:    e.boards,
		Refresher: e.refresher,
		Job:       e.job,
		Telemetry: fakeTelemetry{},
		Sessions:  e.sessions,
		OAuth:     &auth.OAuth{ClientID: "cid", ClientSecret: "csecret"},
		States:    e.states,
		Analytics: analytics.New(""),
		Config:    e.cfg,
	})
	e.router = h.Routes()
	return e
}

func (e *env) token(t *testing.T, subject string, role auth.Role) string {
	t.Helper()
	tok, err := e.sessions.Issue(subject, role, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *env) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: sessionCookie, Value: token})
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v), rec.Body.String())
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decode(t, rec, &body)
	return body.Error.Code
}

func dev(name string, commits int, banned bool) db.User {
	return db.User{Username: name, Counters: score.Counters{Commits: commits}, IsBanned: banned}
}
