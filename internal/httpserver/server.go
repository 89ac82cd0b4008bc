package httpserver

import (
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pastebox/internal/lifecycle"
	"pastebox/internal/metrics"
	"pastebox/web"
)

// Config captures server configuration.
type Config struct {
	Engine     *lifecycle.Engine
	MaxBytes   int
	TrustProxy bool
	BaseURL    string
	// TestMode lets the x-test-now-ms header set the clock per request.
	TestMode bool
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// Server wraps HTTP handling logic.
type Server struct {
	engine     *lifecycle.Engine
	router     chi.Router
	templates  *template.Template
	maxBytes   int
	trustProxy bool
	testMode   bool
	baseURL    *url.URL
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

// New constructs a new Server instance.
func New(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("engine required")
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 1_048_576
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	tmpl, err := template.New("layout").Funcs(template.FuncMap{
		"formatTime": func(t time.Time) string {
			if t.IsZero() {
				return "Never"
			}
			return t.UTC().Format(time.RFC1123)
		},
		"formatSize": func(size int) string {
			if size < 1024 {
				return fmt.Sprintf("%d B", size)
			}
			const unit = 1024.0
			kb := float64(size)
			for _, suffix := range []string{"KB", "MB", "GB"} {
				kb /= unit
				if kb < unit {
					return fmt.Sprintf("%.1f %s", kb, suffix)
				}
			}
			return fmt.Sprintf("%d B", size)
		},
		"deref": func(n *int) int {
			if n == nil {
				return 0
			}
			return *n
		},
	}).ParseFS(web.Templates, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	var parsedBase *url.URL
	if cfg.BaseURL != "" {
		parsedBase, err = url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base url: %w", err)
		}
		if parsedBase.Scheme == "" || parsedBase.Host == "" {
			return nil, errors.New("base url must include scheme and host")
		}
		parsedBase.Path = strings.TrimSuffix(parsedBase.Path, "/")
	}

	srv := &Server{
		engine:     cfg.Engine,
		router:     chi.NewRouter(),
		templates:  tmpl,
		maxBytes:   cfg.MaxBytes,
		trustProxy: cfg.TrustProxy,
		testMode:   cfg.TestMode,
		baseURL:    parsedBase,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		now:        time.Now,
	}
	srv.routes()
	return srv, nil
}

// Handler returns the underlying router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RequestID)
	if s.trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Compress(5, "text/html", "text/plain", "application/json", "text/css"))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(TestClock(s.testMode))

	r.Handle("/static/*", http.FileServer(http.FS(web.Static)))

	r.Get("/", s.handleIndex)
	r.Post("/pastes", s.handleCreateForm)

	r.Route("/p/{id}", func(pr chi.Router) {
		pr.Get("/", s.handleView)
		pr.Get("/raw", s.handleRaw)
		pr.Get("/qr", s.handleQR)
	})

	r.Route("/api", func(ar chi.Router) {
		ar.Get("/healthz", s.handleHealthz)
		ar.Post("/pastes", s.handleCreateAPI)
		ar.Get("/pastes/{id}", s.handleGetAPI)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if isAPI(r) {
			writeJSONError(w, http.StatusNotFound, "not found")
			return
		}
		s.renderError(w, r, http.StatusNotFound, "Not found")
	})
}

func isAPI(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/")
}

func (s *Server) isSecureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if s.baseURL != nil && s.baseURL.Scheme == "https" {
		return true
	}
	if s.trustProxy {
		proto := strings.ToLower(r.Header.Get("X-Forwarded-Proto"))
		if proto == "https" {
			return true
		}
	}
	return false
}

func (s *Server) canonicalURL(r *http.Request, id string) string {
	if s.baseURL != nil {
		u := *s.baseURL
		if id != "" {
			u.Path = strings.TrimSuffix(u.Path, "/") + "/p/" + id
		}
		return u.String()
	}

	scheme := "http"
	if s.isSecureRequest(r) {
		scheme = "https"
	}
	host := r.Host
	if host == "" {
		host = "localhost"
	}
	path := "/"
	if id != "" {
		path = "/p/" + id
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, path)
}

// nowFor returns the request's clock: the test header time when set,
// otherwise the server clock.
func (s *Server) nowFor(r *http.Request) time.Time {
	if t, ok := testNow(r.Context()); ok {
		return t
	}
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}
