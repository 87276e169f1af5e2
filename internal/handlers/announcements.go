package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"coderats/internal/apierr"
	"coderats/internal/db"
)

type announcementRequest struct {
	Title  *string `json:"title"`
	Body   *string `json:"body"`
	Active *bool   `json:"active"`
}

// Announcements lists active announcements, newest first.
func (h *Handler) Announcements(w http.ResponseWriter, r *http.Request) {
	h.listAnnouncements(w, r, true)
}

// AdminAnnouncements lists every announcement.
func (h *Handler) AdminAnnouncements(w http.ResponseWriter, r *http.Request) {
	h.listAnnouncements(w, r, false)
}

func (h *Handler) listAnnouncements(w http.ResponseWriter, r *http.Request, activeOnly bool) {
	list, err := h.store.ListAnnouncements(r.Context(), activeOnly)
	if err != nil {
		apierr.WriteErr(w, err)
		return
	}
	if list == nil {
		list = []db.Announcement{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) CreateAnnouncement(w http.ResponseWriter, r *http.Request) {
	var req announcementRequest
	if err := jsonDecode(r, &req); err != nil {
		apierr.Write(w, apierr.BadRequest("invalid JSON body"))
		return
	}
	if req.Title == nil || strings.TrimSpace(*req.Title) == "" {
		apierr.Write(w, apierr.BadRequest("title is required"))
		return
	}
	body, active := "", true
	if req.Body != nil {
		body = *req.Body
	}
	if req.Active != nil {
		active = *req.Active
	}
	a, err := h.store.CreateAnnouncement(r.Context(), strings.TrimSpace(*req.Title), body, active)
	if err != nil {
		apierr.WriteErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *Handler) UpdateAnnouncement(w http.ResponseWriter, r *http.Request) {
	id, ok := announcementID(w, r)
	if !ok {
		return
	}
	var req announcementRequest
	if err := jsonDecode(r, &req); err != nil {
		apierr.Write(w, apierr.BadRequest("invalid JSON body"))
		return
	}
	if req.Title != nil {
		t := strings.TrimSpace(*req.Title)
		if t == "" {
			apierr.Write(w, apierr.BadRequest("title must not be empty"))
			return
		}
		req.Title = &t
	}
	a, err := h.store.UpdateAnnouncement(r.Context(), id, db.AnnouncementPatch{
		Title:  req.Title,
		Body:   req.Body,
		Active: req.Active,
	})
	if err != nil {
		apierr.WriteErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) DeleteAnnouncement(w http.ResponseWriter, r *http.Request) {
	id, ok := announcementID(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteAnnouncement(r.Context(), id); err != nil {
		apierr.WriteErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func announcementID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierr.Write(w, apierr.BadRequest("invalid announcement id"))
		return uuid.Nil, false
	}
	return id, true
}
