package handlers

import (
	"net/http"

	"coderats/internal/apierr"
	"coderats/internal/score"
)

// Leaderboard serves the public board. Banned users are never included.
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := h.boards.Build(r.Context(), false)
	if err != nil {
		apierr.WriteErr(w, err)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=60")
	writeJSON(w, http.StatusOK, board)
}

type formulaTerm struct {
	Field  string  `json:"field"`
	Weight float64 `json:"weight"`
}

// ScoreFormula publishes the weights the score is computed with.
func (h *Handler) ScoreFormula(w http.ResponseWriter, r *http.Request) {
	terms := make([]formulaTerm, len(score.Weights))
	for i, wt := range score.Weights {
		terms[i] = formulaTerm{Field: wt.Field, Weight: wt.Weight}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"terms":    terms,
		"rounding": "nearest integer",
	})
}
