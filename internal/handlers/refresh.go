package handlers

import (
	"net/http"
	"strings"

	"coderats/internal/apierr"
	"coderats/internal/auth"
)

type refreshRequest struct {
	Username string `json:"username"`
	Token    string `json:"token"`
	Force    bool   `json:"force"`
}

// Refresh re-pulls stats for one user. Users may refresh themselves; admins
// may refresh anyone. A policy denial is a 200 with refreshed=false.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := jsonDecode(r, &req); err != nil {
		apierr.Write(w, apierr.BadRequest("invalid JSON body"))
		return
	}

	c := claims(r)
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		if c.Role == auth.RoleAdmin {
			apierr.Write(w, apierr.BadRequest("username is required"))
			return
		}
		req.Username = c.Subject
	}
	if c.Role != auth.RoleAdmin && req.Username != c.Subject {
		apierr.Write(w, apierr.ErrForbidden)
		return
	}

	res, err := h.refresh.Refresh(r.Context(), req.Username, req.Token, req.Force)
	if err != nil {
		apierr.WriteErr(w, err)
		return
	}
	if res.Refreshed && res.User != nil {
		h.ph.StatsRefreshed(res.User.Username, req.Force, res.User.Score)
	}
	writeJSON(w, http.StatusOK, res)
}
