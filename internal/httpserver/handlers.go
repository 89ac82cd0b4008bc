package httpserver

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/skip2/go-qrcode"

	"pastebox/internal/lifecycle"
)

type indexPageData struct {
	Content    string
	TTLSeconds string
	MaxViews   string
	Error      string
	MaxBytes   int
}

type viewPageData struct {
	ID             string
	Content        string
	RemainingViews *int
	ExpiresAt      time.Time
	ExpiresIn      string
	Canonical      string
}

type errorPageData struct {
	Status  int
	Message string
}

type titled interface {
	PageTitle() string
}

func (d indexPageData) PageTitle() string {
	return "New Paste · pastebox"
}

func (d viewPageData) PageTitle() string {
	if len(d.ID) > 8 {
		return fmt.Sprintf("Paste %s · pastebox", d.ID[:8])
	}
	return "Paste · pastebox"
}

func (d errorPageData) PageTitle() string {
	if d.Message == "" {
		return "pastebox"
	}
	return d.Message + " · pastebox"
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "index", indexPageData{MaxBytes: s.maxBytes})
}

func (s *Server) handleCreateForm(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.maxBytes)+4096)
	if err := r.ParseForm(); err != nil {
		s.render(w, r, badRequestStatus(err), "index", indexPageData{MaxBytes: s.maxBytes, Error: "Unable to parse form"})
		return
	}

	data := indexPageData{
		Content:    r.PostForm.Get("content"),
		TTLSeconds: r.PostForm.Get("ttl_seconds"),
		MaxViews:   r.PostForm.Get("max_views"),
		MaxBytes:   s.maxBytes,
	}
	params, err := decodeCreateForm(r.PostForm, s.maxBytes)
	if err != nil {
		data.Error = badRequestMessage(err)
		s.render(w, r, http.StatusBadRequest, "index", data)
		return
	}

	created, err := s.engine.Create(r.Context(), params, s.nowFor(r))
	if err != nil {
		s.logStorageError(r, "create paste", err)
		s.renderError(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}
	s.metrics.Created()
	http.Redirect(w, r, "/p/"+created.ID, http.StatusSeeOther)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	view, err := s.access(r)
	if err != nil {
		s.accessError(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	w.Header().Set("Cache-Control", "no-store")
	s.render(w, r, http.StatusOK, "view", viewPageData{
		ID:             id,
		Content:        view.Content,
		RemainingViews: view.RemainingViews,
		ExpiresAt:      view.ExpiresAt,
		ExpiresIn:      remaining(view.ExpiresAt, s.nowFor(r)),
		Canonical:      s.canonicalURL(r, id),
	})
}

func (s *Server) handleRaw(w http.ResponseWriter, r *http.Request) {
	view, err := s.access(r)
	if err != nil {
		s.accessError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = io.WriteString(w, view.Content)
}

// handleQR encodes the paste URL. It checks availability without spending
// a view.
func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ok, err := s.engine.Available(r.Context(), id, s.nowFor(r))
	if err != nil {
		s.logStorageError(r, "check paste", err)
		s.renderError(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}
	if !ok {
		s.notFound(w, r)
		return
	}

	png, err := qrcode.Encode(s.canonicalURL(r, id), qrcode.Medium, 256)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

func (s *Server) accessError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, lifecycle.ErrNotAccessible) {
		s.notFound(w, r)
		return
	}
	s.renderError(w, r, http.StatusInternalServerError, "Internal server error")
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	title := "pastebox"
	if t, ok := data.(titled); ok {
		if pt := t.PageTitle(); pt != "" {
			title = pt
		}
	}
	body := &bytes.Buffer{}
	bodyTemplate := name + "-body"
	if err := s.templates.ExecuteTemplate(body, bodyTemplate, data); err != nil {
		s.handleTemplateError(w, status, bodyTemplate, err)
		return
	}
	layoutBuf := &bytes.Buffer{}
	layoutData := struct {
		Title string
		Body  template.HTML
	}{
		Title: title,
		Body:  template.HTML(body.String()),
	}
	if err := s.templates.ExecuteTemplate(layoutBuf, "layout", layoutData); err != nil {
		s.handleTemplateError(w, status, "layout", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = layoutBuf.WriteTo(w)
}

func (s *Server) handleTemplateError(w http.ResponseWriter, status int, name string, err error) {
	s.logger.Error("render template", "error", err, "template", name)
	http.Error(w, "Template error", status)
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	s.render(w, r, status, "error", errorPageData{Status: status, Message: msg})
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("internal error", "error", err)
	s.renderError(w, r, http.StatusInternalServerError, "Internal server error")
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	s.renderError(w, r, http.StatusNotFound, "Paste not found")
}

func remaining(expires time.Time, now time.Time) string {
	if expires.IsZero() {
		return ""
	}
	if !now.Before(expires) {
		return "expired"
	}
	dur := expires.Sub(now)
	if dur < time.Second {
		return "less than a second"
	}
	units := []struct {
		d    time.Duration
		name string
	}{
		{time.Hour * 24, "day"},
		{time.Hour, "hour"},
		{time.Minute, "minute"},
	}
	parts := make([]string, 0, len(units))
	for _, u := range units {
		if dur >= u.d {
			count := dur / u.d
			parts = append(parts, plural(int(count), u.name))
			dur -= count * u.d
		}
	}
	if len(parts) == 0 {
		return plural(int(dur.Seconds()), "second")
	}
	return strings.Join(parts, ", ")
}

func plural(count int, singular string) string {
	if count == 1 {
		return fmt.Sprintf("1 %s", singular)
	}
	return fmt.Sprintf("%d %ss", count, singular)
}
