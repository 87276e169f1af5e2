package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"coderats/internal/apierr"
	"coderats/internal/auth"
	"coderats/internal/db"
)

const historyLimit = 30

type UserData struct {
	User    *db.User          `json:"user"`
	Rank    int               `json:"rank,omitempty"` // 0 when not on the public board
	History []db.RankSnapshot `json:"history"`
}

// User returns a tracked developer with their current rank and rank history.
// Banned users are hidden from the public profile.
func (h *Handler) User(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	data, err := h.userData(r, username)
	if err != nil {
		apierr.WriteErr(w, err)
		return
	}
	if data.User.IsBanned {
		apierr.Write(w, apierr.ErrUserNotFound)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// Me returns the signed-in user's own record. Admin sessions have none.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	c := claims(r)
	if c.Role == auth.RoleAdmin {
		writeJSON(w, http.StatusOK, map[string]string{"username": c.Subject, "role": string(c.Role)})
		return
	}
	data, err := h.userData(r, c.Subject)
	if err != nil {
		apierr.WriteErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (h *Handler) userData(r *http.Request, username string) (*UserData, error) {
	ctx := r.Context()
	u, err := h.store.GetUser(ctx, username)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apierr.ErrUserNotFound
	}
	history, err := h.store.RankHistory(ctx, username, historyLimit)
	if err != nil {
		return nil, err
	}
	if history == nil {
		history = []db.RankSnapshot{}
	}
	data := &UserData{User: u, History: history}
	if board, err := h.boards.Build(ctx, false); err == nil {
		for _, e := range board.Users {
			if e.Username == username {
				data.Rank = e.Rank
				break
			}
		}
	}
	return data, nil
}
