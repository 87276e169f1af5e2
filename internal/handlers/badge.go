package handlers

import (
	"fmt"
	"html"
	"io"
	"log"
	"math"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Badge serves /badge/{username}.svg for embedding in READMEs. Unknown and
// banned users get an "unranked" badge rather than an error.
func (h *Handler) Badge(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSuffix(chi.URLParam(r, "username"), ".svg")
	value, color := "unranked", "#9f9f9f"

	board, err := h.boards.Build(r.Context(), false)
	if err != nil {
		log.Printf("[badge] build board: %v", err)
	}
	for _, e := range board.Users {
		if e.Username == username {
			value, color = fmt.Sprintf("#%d, %d pts", e.Rank, e.Score), rankColor(e.Rank)
			break
		}
	}

	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "public, max-age=600")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	io.WriteString(w, badgeSVG("coderats", value, color))
}

func rankColor(rank int) string {
	switch {
	case rank <= 3:
		return "#dfb317" // podium
	case rank <= 10:
		return "#3fb950"
	default:
		return "#0969da"
	}
}

// textWidth approximates Verdana 11px advance widths closely enough that
// labels neither clip nor float in their box.
func textWidth(s string) int {
	w := 0.0
	for _, r := range s {
		switch {
		case strings.ContainsRune("iljt.,:;!|' ", r):
			w += 3.5
		case r >= 'A' && r <= 'Z', r == '#', r == 'm', r == 'w':
			w += 8
		default:
			w += 6.5
		}
	}
	return int(math.Ceil(w))
}

// badgeSVG renders a two-part flat badge: grey label, coloured value.
func badgeSVG(label, value, color string) string {
	const pad, height = 10, 20
	lw := textWidth(label) + pad
	vw := textWidth(value) + pad
	label, value = html.EscapeString(label), html.EscapeString(value)

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" role="img" aria-label="%s: %s">`, lw+vw, height, label, value)
	fmt.Fprintf(&b, `<title>%s: %s</title>`, label, value)
	fmt.Fprintf(&b, `<rect width="%d" height="%d" fill="#555"/>`, lw, height)
	fmt.Fprintf(&b, `<rect x="%d" width="%d" height="%d" fill="%s"/>`, lw, vw, height, color)
	b.WriteString(`<g fill="#fff" text-anchor="middle" font-family="Verdana,Geneva,DejaVu Sans,sans-serif" font-size="11">`)
	for _, t := range []struct {
		x    int
		text string
	}{{lw / 2, label}, {lw + vw/2, value}} {
		fmt.Fprintf(&b, `<text x="%d" y="15" fill="#010101" fill-opacity=".3">%s</text><text x="%d" y="14">%s</text>`, t.x, t.text, t.x, t.text)
	}
	b.WriteString(`</g></svg>`)
	return b.String()
}
