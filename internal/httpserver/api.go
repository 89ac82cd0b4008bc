package httpserver

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pastebox/internal/lifecycle"
	"pastebox/internal/metrics"
)

// isoMillis matches the ISO-8601 form clients already parse, e.g.
// 2026-01-02T03:04:05.000Z.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

type createResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type pasteResponse struct {
	Content        string  `json:"content"`
	RemainingViews *int    `json:"remaining_views"`
	ExpiresAt      *string `json:"expires_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ok := true
	if err := s.engine.Ping(r.Context()); err != nil {
		s.logger.Warn("health check failed", "error", err)
		ok = false
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": ok})
}

func (s *Server) handleCreateAPI(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.maxBytes)+4096)

	var (
		params lifecycle.CreateParams
		err    error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded":
		if err = r.ParseForm(); err == nil {
			params, err = decodeCreateForm(r.PostForm, s.maxBytes)
		}
	case "multipart/form-data":
		if err = r.ParseMultipartForm(int64(s.maxBytes)); err == nil {
			params, err = decodeCreateForm(r.PostForm, s.maxBytes)
		}
	default:
		params, err = decodeCreateJSON(r.Body, s.maxBytes)
	}
	if err != nil {
		writeJSONError(w, badRequestStatus(err), badRequestMessage(err))
		return
	}

	created, err := s.engine.Create(r.Context(), params, s.nowFor(r))
	if err != nil {
		s.logStorageError(r, "create paste", err)
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.metrics.Created()
	writeJSON(w, http.StatusCreated, createResponse{
		ID:  created.ID,
		URL: s.canonicalURL(r, created.ID),
	})
}

func (s *Server) handleGetAPI(w http.ResponseWriter, r *http.Request) {
	view, err := s.access(r)
	switch {
	case errors.Is(err, lifecycle.ErrNotAccessible):
		writeJSONError(w, http.StatusNotFound, "paste not found")
		return
	case err != nil:
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := pasteResponse{Content: view.Content, RemainingViews: view.RemainingViews}
	if ts := formatExpiry(view.ExpiresAt); ts != "" {
		resp.ExpiresAt = &ts
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, resp)
}

// access runs one counted access for the {id} route parameter, records the
// outcome and logs storage failures.
func (s *Server) access(r *http.Request) (*lifecycle.View, error) {
	view, err := s.engine.Access(r.Context(), chi.URLParam(r, "id"), s.nowFor(r))
	switch {
	case err == nil:
		s.metrics.Access(metrics.OutcomeServed)
	case errors.Is(err, lifecycle.ErrNotAccessible):
		s.metrics.Access(metrics.OutcomeUnavailable)
	default:
		s.metrics.Access(metrics.OutcomeError)
		s.logStorageError(r, "access paste", err)
	}
	return view, err
}

func (s *Server) logStorageError(r *http.Request, msg string, err error) {
	s.logger.Error(msg,
		"error", err,
		"indeterminate", errors.Is(err, lifecycle.ErrIndeterminate),
		"request_id", middleware.GetReqID(r.Context()),
		"client", ClientIP(r, s.trustProxy),
	)
}

func badRequestStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func badRequestMessage(err error) string {
	var verr *validationError
	if errors.As(err, &verr) {
		return verr.msg
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return "request body too large"
	}
	return "invalid request body"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func formatExpiry(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(isoMillis)
}
