// internal/adapters/http_server/handlers.go
package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"bank_reviews/internal/app"
	"bank_reviews/internal/domain"
)

type Handlers struct{ Q *app.QueryService }

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Get("/v1/banks/{bank}/reviews", h.listReviews)
	s.mux.Get("/v1/banks/{bank}/summary", h.summary)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

func bankParam(r *http.Request) (domain.Bank, error) {
	return domain.ParseBank(chi.URLParam(r, "bank"))
}

func (h *Handlers) summary(w http.ResponseWriter, r *http.Request) {
	bank, err := bankParam(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Unknown bank", "bank must be one of CBE, BOA, Dashen")
		return
	}
	sum, err := h.Q.Summary(r.Context(), bank)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Not Found", "no reviews ingested for this bank")
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Internal", "summary query failed")
		return
	}

	etag, body := calcETagAndBody(sum)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write summary body")
	}
}

func (h *Handlers) listReviews(w http.ResponseWriter, r *http.Request) {
	bank, err := bankParam(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Unknown bank", "bank must be one of CBE, BOA, Dashen")
		return
	}

	limit := 50
	if ls := r.URL.Query().Get("limit"); ls != "" {
		l, err := strconv.Atoi(ls)
		if err != nil || l <= 0 || l > 200 {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 200")
			return
		}
		limit = l
	}

	// Newest first; aligns with the (bank, review_date, id) index
	page := domain.PageQuery{Limit: limit, Sort: "-review_date"}
	out, err := h.Q.ListReviews(r.Context(), bank, page)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Internal", "reviews query failed")
		return
	}

	etag, body := calcETagAndBody(out)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write listReviews body")
	}
}
