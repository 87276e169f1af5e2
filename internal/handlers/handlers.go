package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"coderats/internal/analytics"
	"coderats/internal/apierr"
	"coderats/internal/auth"
	"coderats/internal/config"
	"coderats/internal/db"
	"coderats/internal/leaderboard"
	"coderats/internal/refresh"
	"coderats/internal/telemetry"
	"coderats/internal/worker"
)

// contextKey is a private type for context values to avoid collisions.
type contextKey string

const (
	claimsKey contextKey = "claims"

	sessionCookie = "session"
)

// Store is the part of db.DB the handlers use.
type Store interface {
	GetUser(ctx context.Context, username string) (*db.User, error)
	UpsertUser(ctx context.Context, username string, p db.UserPatch) error
	SetBanned(ctx context.Context, username string, banned bool) (*db.User, error)
	ResetUser(ctx context.Context, username string) (*db.User, error)
	RankHistory(ctx context.Context, username string, limit int) ([]db.RankSnapshot, error)

	CreateAnnouncement(ctx context.Context, title, body string, active bool) (*db.Announcement, error)
	UpdateAnnouncement(ctx context.Context, id uuid.UUID, p db.AnnouncementPatch) (*db.Announcement, error)
	DeleteAnnouncement(ctx context.Context, id uuid.UUID) error
	ListAnnouncements(ctx context.Context, activeOnly bool) ([]db.Announcement, error)
}

type Boards interface {
	Build(ctx context.Context, includeBanned bool) (leaderboard.Board, error)
	Invalidate(ctx context.Context)
}

type Refresher interface {
	Refresh(ctx context.Context, username, token string, force bool) (refresh.Result, error)
}

type RankJob interface {
	Run(ctx context.Context) (worker.Result, error)
	Status() worker.Status
}

type Telemetry interface {
	Stream(ctx context.Context, interval time.Duration, emit func(telemetry.Snapshot) error, onErr func(error)) error
}

// Deps groups everything a Handler needs.
type Deps struct {
	Store     Store
	Boards    Boards
	Refresher Refresher
	Job       RankJob
	Telemetry Telemetry
	Sessions  *auth.Sessions
	OAuth     *auth.OAuth
	States    auth.StateStore
	Analytics *analytics.Client
	Config    *config.Config
}

// Handler holds all dependencies.
type Handler struct {
	store    Store
	boards   Boards
	refresh  Refresher
	job      RankJob
	tel      Telemetry
	sessions *auth.Sessions
	oauth    *auth.OAuth
	states   auth.StateStore
	ph       *analytics.Client
	cfg      *config.Config

	streamInterval time.Duration
}

func New(d Deps) *Handler {
	return &Handler{
		store:          d.Store,
		boards:         d.Boards,
		refresh:        d.Refresher,
		job:            d.Job,
		tel:            d.Telemetry,
		sessions:       d.Sessions,
		oauth:          d.OAuth,
		states:         d.States,
		ph:             d.Analytics,
		cfg:            d.Config,
		streamInterval: 5 * time.Second,
	}
}

// ── Sessions ───────────────────────────────────────────────────────────────────

// claims returns the verified session of the request, or nil.
func claims(r *http.Request) *auth.Claims {
	c, _ := r.Context().Value(claimsKey).(*auth.Claims)
	return c
}

// sessionToken reads the session cookie, falling back to a Bearer header.
func sessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

// SessionLoader is a global middleware that verifies the session token, if
// any, and injects its claims into the request context. Invalid tokens are
// treated as anonymous.
func (h *Handler) SessionLoader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tok := sessionToken(r); tok != "" {
			if c, err := h.sessions.Verify(tok); err == nil {
				r = r.WithContext(context.WithValue(r.Context(), claimsKey, c))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireUser rejects requests without a valid session.
func (h *Handler) RequireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if claims(r) == nil {
			apierr.Write(w, apierr.ErrUnauthorized)
			return
		}
		next(w, r)
	}
}

// RequireAdmin rejects requests without an admin session.
func (h *Handler) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := claims(r)
		if c == nil {
			apierr.Write(w, apierr.ErrUnauthorized)
			return
		}
		if c.Role != auth.RoleAdmin {
			apierr.Write(w, apierr.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) setSession(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		HttpOnly: true,
		Secure:   strings.HasPrefix(h.cfg.BaseURL, "https"),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl.Seconds()),
		Path:     "/",
	})
}

// ── Helpers ────────────────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode response: %v", err)
	}
}

// jsonDecode decodes the request body as JSON into v.
func jsonDecode(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20)).Decode(v)
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
