package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"coderats/internal/apierr"
	"coderats/internal/auth"
	"coderats/internal/db"
)

// AuthGitHub starts the OAuth flow.
func (h *Handler) AuthGitHub(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.OAuthEnabled() {
		apierr.Write(w, apierr.ErrOAuthUnavailable)
		return
	}
	// If the user already has a valid session, skip the OAuth flow entirely.
	if c := claims(r); c != nil && c.Role == auth.RoleUser {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	state := auth.GenerateOAuthState(r.Context(), h.states)
	http.Redirect(w, r, h.oauth.AuthorizeURL(state), http.StatusFound)
}

// AuthGitHubCallback finishes the OAuth flow: it creates the user record on
// first sign-in, kicks off a background stats refresh and sets the session.
func (h *Handler) AuthGitHubCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !auth.ValidateOAuthState(r.Context(), h.states, q.Get("state")) {
		apierr.Write(w, apierr.BadRequest("invalid or expired OAuth state"))
		return
	}
	code := q.Get("code")
	if code == "" {
		apierr.Write(w, apierr.BadRequest("missing OAuth code"))
		return
	}

	token, err := h.oauth.ExchangeOAuthCode(r.Context(), code)
	if err != nil {
		log.Printf("[auth] exchange OAuth code: %v", err)
		apierr.Write(w, apierr.ErrUnauthorized)
		return
	}
	profile, err := h.oauth.FetchGitHubProfile(r.Context(), token)
	if err != nil {
		log.Printf("[auth] fetch GitHub profile: %v", err)
		apierr.Write(w, apierr.ErrUnauthorized)
		return
	}

	existing, err := h.store.GetUser(r.Context(), profile.Login)
	if err != nil {
		apierr.WriteErr(w, err)
		return
	}
	patch := db.UserPatch{AvatarURL: &profile.AvatarURL}
	if profile.Name != "" {
		patch.DisplayName = &profile.Name
	}
	if err := h.store.UpsertUser(r.Context(), profile.Login, patch); err != nil {
		apierr.WriteErr(w, err)
		return
	}
	h.boards.Invalidate(r.Context())

	// Natural refresh: a no-op while the 24h cooldown is running.
	go func(login, token string) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if _, err := h.refresh.Refresh(ctx, login, token, false); err != nil {
			log.Printf("[auth] initial refresh for %s: %v", login, err)
		}
	}(profile.Login, token)

	session, err := h.sessions.Issue(profile.Login, auth.RoleUser, auth.UserSessionTTL)
	if err != nil {
		apierr.WriteErr(w, err)
		return
	}
	h.setSession(w, session, auth.UserSessionTTL)
	h.ph.UserLogin(profile.Login, existing == nil)
	http.Redirect(w, r, "/", http.StatusFound)
}

// AuthLogout deletes the session cookie.
func (h *Handler) AuthLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		HttpOnly: true,
		MaxAge:   -1,
		Path:     "/",
	})
	w.WriteHeader(http.StatusNoContent)
}

type adminLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AdminLogin exchanges the configured admin credentials for an admin session.
func (h *Handler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.AdminEnabled() {
		apierr.Write(w, apierr.ErrAdminDisabled)
		return
	}
	var req adminLoginRequest
	if err := jsonDecode(r, &req); err != nil {
		apierr.Write(w, apierr.BadRequest("invalid JSON body"))
		return
	}
	if !auth.CheckAdmin(h.cfg.AdminUsername, h.cfg.AdminPasswordHash, req.Username, req.Password) {
		log.Printf("[auth] failed admin login for %q", req.Username)
		apierr.Write(w, apierr.ErrBadCredentials)
		return
	}
	session, err := h.sessions.Issue(req.Username, auth.RoleAdmin, auth.AdminSessionTTL)
	if err != nil {
		apierr.WriteErr(w, err)
		return
	}
	h.setSession(w, session, auth.AdminSessionTTL)
	writeJSON(w, http.StatusOK, map[string]string{
		"username": req.Username,
		"role":     string(auth.RoleAdmin),
		"token":    session,
	})
}
