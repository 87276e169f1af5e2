package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"coderats/internal/apierr"
	"coderats/internal/telemetry"
)

// AdminUsers returns the full board, banned users included and flagged.
func (h *Handler) AdminUsers(w http.ResponseWriter, r *http.Request) {
	board, err := h.boards.Build(r.Context(), true)
	if err != nil {
		apierr.WriteErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (h *Handler) BanUser(w http.ResponseWriter, r *http.Request)   { h.setBanned(w, r, true) }
func (h *Handler) UnbanUser(w http.ResponseWriter, r *http.Request) { h.setBanned(w, r, false) }

func (h *Handler) setBanned(w http.ResponseWriter, r *http.Request, banned bool) {
	username := chi.URLParam(r, "username")
	u, err := h.store.SetBanned(r.Context(), username, banned)
	if err != nil {
		apierr.WriteErr(w, err)
		return
	}
	h.boards.Invalidate(r.Context())
	h.ph.Moderation(claims(r).Subject, username, banned)
	log.Printf("[admin] %s set banned=%v on %s", claims(r).Subject, banned, username)
	writeJSON(w, http.StatusOK, u)
}

// ResetUser zeroes a user's counters but keeps the record.
func (h *Handler) ResetUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	u, err := h.store.ResetUser(r.Context(), username)
	if err != nil {
		apierr.WriteErr(w, err)
		return
	}
	h.boards.Invalidate(r.Context())
	log.Printf("[admin] %s reset %s", claims(r).Subject, username)
	writeJSON(w, http.StatusOK, u)
}

// RefreshAll runs the rank job synchronously. The run outlives a client that
// disconnects early.
func (h *Handler) RefreshAll(w http.ResponseWriter, r *http.Request) {
	res, err := h.job.Run(context.WithoutCancel(r.Context()))
	if err != nil {
		apierr.WriteErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// JobStatus reports the rank job state.
func (h *Handler) JobStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.job.Status())
}

// Stream pushes telemetry snapshots as Server-Sent Events until the client
// disconnects.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		apierr.Write(w, &apierr.AppError{Status: http.StatusInternalServerError, Code: "STREAMING_UNSUPPORTED", Message: "streaming unsupported"})
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	emit := func(s telemetry.Snapshot) error {
		payload, err := json.Marshal(s)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: telemetry\ndata: %s\n\n", payload); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
	onErr := func(err error) {
		log.Printf("[stream] snapshot: %v", err)
		fmt.Fprintf(w, "event: error\ndata: %q\n\n", "telemetry unavailable")
		flusher.Flush()
	}
	if err := h.tel.Stream(r.Context(), h.streamInterval, emit, onErr); err != nil {
		log.Printf("[stream] closed: %v", err)
	}
}
