package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"pastebox/internal/id"
	"pastebox/internal/lifecycle"
	"pastebox/internal/metrics"
	"pastebox/internal/storage"
	"pastebox/internal/storage/memstore"
)

var t0 = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func newTestServer(t *testing.T, store storage.Store, mutate func(*Config)) *Server {
	t.Helper()
	engine, err := lifecycle.New(lifecycle.Config{Store: store, IDGenerator: id.New(0)})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	cfg := Config{Engine: engine, MaxBytes: 1024, TestMode: true}
	if mutate != nil {
		mutate(&cfg)
	}
	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv
}

func do(t *testing.T, srv *Server, method, target, body string, at time.Time, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if !at.IsZero() {
		req.Header.Set(TestNowHeader, strconv.FormatInt(at.UnixMilli(), 10))
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func createAPI(t *testing.T, srv *Server, body string, at time.Time) createResponse {
	t.Helper()
	rec := do(t, srv, http.MethodPost, "/api/pastes", body, at, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status %d: %s", rec.Code, rec.Body.String())
	}
	var resp createResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode create: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return m
}

func TestAPIScenario(t *testing.T) {
	srv := newTestServer(t, memstore.New(), nil)
	created := createAPI(t, srv, `{"content":"hello","ttl_seconds":5,"max_views":2}`, t0)

	if created.URL != "http://example.com/p/"+created.ID {
		t.Fatalf("url = %q", created.URL)
	}

	path := "/api/pastes/" + created.ID
	rec := do(t, srv, http.MethodGet, path, "", t0.Add(time.Second), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("T+1 status %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["content"] != "hello" || body["remaining_views"] != float64(1) {
		t.Fatalf("T+1 body %v", body)
	}
	if body["expires_at"] != "2026-03-04T05:06:12.000Z" {
		t.Fatalf("expires_at = %v", body["expires_at"])
	}

	rec = do(t, srv, http.MethodGet, path, "", t0.Add(2*time.Second), nil)
	if body := decodeBody(t, rec); rec.Code != http.StatusOK || body["remaining_views"] != float64(0) {
		t.Fatalf("T+2: %d %v", rec.Code, body)
	}

	for _, at := range []time.Duration{3 * time.Second, 100 * time.Second} {
		rec = do(t, srv, http.MethodGet, path, "", t0.Add(at), nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("T+%v status %d", at, rec.Code)
		}
	}
}

func TestAPIUnlimitedPaste(t *testing.T) {
	srv := newTestServer(t, memstore.New(), nil)
	created := createAPI(t, srv, `{"content":"forever"}`, t0)

	for i := 0; i < 5; i++ {
		rec := do(t, srv, http.MethodGet, "/api/pastes/"+created.ID, "", t0.Add(time.Duration(i)*24*time.Hour), nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status %d", rec.Code)
		}
		body := decodeBody(t, rec)
		if v, ok := body["remaining_views"]; !ok || v != nil {
			t.Fatalf("remaining_views should be null, got %v", body)
		}
		if v, ok := body["expires_at"]; !ok || v != nil {
			t.Fatalf("expires_at should be null, got %v", body)
		}
	}
}

func TestAPIUnavailableResponsesMatch(t *testing.T) {
	srv := newTestServer(t, memstore.New(), nil)
	expired := createAPI(t, srv, `{"content":"x","ttl_seconds":1}`, t0)
	exhausted := createAPI(t, srv, `{"content":"x","max_views":1}`, t0)
	if rec := do(t, srv, http.MethodGet, "/api/pastes/"+exhausted.ID, "", t0, nil); rec.Code != http.StatusOK {
		t.Fatalf("first view status %d", rec.Code)
	}

	later := t0.Add(time.Minute)
	var bodies []string
	for _, pid := range []string{"does-not-exist", expired.ID, exhausted.ID} {
		rec := do(t, srv, http.MethodGet, "/api/pastes/"+pid, "", later, nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s: status %d", pid, rec.Code)
		}
		bodies = append(bodies, rec.Body.String())
	}
	for _, b := range bodies[1:] {
		if b != bodies[0] {
			t.Fatalf("unavailable bodies differ: %q vs %q", bodies[0], b)
		}
	}
	if !strings.Contains(bodies[0], `"paste not found"`) {
		t.Fatalf("unexpected body %q", bodies[0])
	}
}

func TestAPIValidation(t *testing.T) {
	srv := newTestServer(t, memstore.New(), func(c *Config) { c.MaxBytes = 16 })

	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing content", `{}`, "content is required and must be a non-empty string"},
		{"blank content", `{"content":"   \n"}`, "content cannot be empty"},
		{"numeric content", `{"content":5}`, "content must be a string"},
		{"zero ttl", `{"content":"x","ttl_seconds":0}`, "ttl_seconds must be an integer >= 1"},
		{"fractional ttl", `{"content":"x","ttl_seconds":1.5}`, "ttl_seconds must be an integer >= 1"},
		{"word ttl", `{"content":"x","ttl_seconds":"soon"}`, "ttl_seconds must be an integer >= 1"},
		{"negative views", `{"content":"x","max_views":-1}`, "max_views must be an integer >= 1"},
		{"huge views", `{"content":"x","max_views":3000000000}`, "max_views must be at most 2147483647"},
		{"huge ttl", `{"content":"x","ttl_seconds":3153600001}`, "ttl_seconds must be at most 3153600000"},
		{"too long", `{"content":"12345678901234567"}`, "content exceeds 16 byte limit"},
		{"malformed", `{"content":`, "invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, "/api/pastes", tt.body, time.Time{}, nil)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status %d", rec.Code)
			}
			if got := decodeBody(t, rec)["error"]; got != tt.want {
				t.Fatalf("error = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAPIAcceptsStringIntegers(t *testing.T) {
	store := memstore.New()
	srv := newTestServer(t, store, nil)
	created := createAPI(t, srv, `{"content":"x","ttl_seconds":"60","max_views":"3"}`, t0)

	p, err := store.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.MaxViews != 3 || !p.ExpiresAt.Equal(t0.Add(time.Minute)) {
		t.Fatalf("unexpected paste %+v", p)
	}
}

func TestAPIFormCreate(t *testing.T) {
	srv := newTestServer(t, memstore.New(), nil)
	form := url.Values{"content": {"from a form"}, "max_views": {"1"}, "ttl_seconds": {""}}
	req := httptest.NewRequest(http.MethodPost, "/api/pastes", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
}

func TestTestModeOff(t *testing.T) {
	srv := newTestServer(t, memstore.New(), func(c *Config) { c.TestMode = false })
	// The header claims 1970; with test mode off the real clock is used for
	// both create and access, so the paste is still live.
	epoch := time.UnixMilli(1)
	created := createAPI(t, srv, `{"content":"x","ttl_seconds":60}`, epoch)
	rec := do(t, srv, http.MethodGet, "/api/pastes/"+created.ID, "", epoch.Add(time.Hour), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestBaseURL(t *testing.T) {
	srv := newTestServer(t, memstore.New(), func(c *Config) { c.BaseURL = "https://paste.example.org/box/" })
	created := createAPI(t, srv, `{"content":"x"}`, t0)
	if created.URL != "https://paste.example.org/box/p/"+created.ID {
		t.Fatalf("url = %q", created.URL)
	}

	if _, err := New(Config{Engine: srv.engine, BaseURL: "not-a-url"}); err == nil {
		t.Fatalf("expected invalid base url error")
	}
}

func TestForwardedProtoWhenBehindProxy(t *testing.T) {
	srv := newTestServer(t, memstore.New(), func(c *Config) { c.TrustProxy = true })
	rec := do(t, srv, http.MethodPost, "/api/pastes", `{"content":"x"}`, t0, map[string]string{"X-Forwarded-Proto": "https"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d", rec.Code)
	}
	if u := decodeBody(t, rec)["url"].(string); !strings.HasPrefix(u, "https://example.com/p/") {
		t.Fatalf("url = %q", u)
	}
}

type failingStore struct {
	*memstore.Store
}

var errBackend = errors.New("backend down")

func (f *failingStore) Get(ctx context.Context, id string) (*storage.Paste, error) {
	return nil, errBackend
}

func (f *failingStore) Create(ctx context.Context, p *storage.Paste) error {
	return errBackend
}

func (f *failingStore) Ping(ctx context.Context) error {
	return errBackend
}

func TestStorageFailures(t *testing.T) {
	srv := newTestServer(t, &failingStore{Store: memstore.New()}, nil)

	rec := do(t, srv, http.MethodGet, "/api/pastes/anything", "", t0, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("fetch failure status %d", rec.Code)
	}
	if decodeBody(t, rec)["error"] != "internal server error" {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}

	rec = do(t, srv, http.MethodPost, "/api/pastes", `{"content":"x"}`, t0, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("create failure status %d", rec.Code)
	}

	rec = do(t, srv, http.MethodGet, "/p/anything", "", t0, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("html fetch failure status %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	ok := newTestServer(t, memstore.New(), nil)
	rec := do(t, ok, http.MethodGet, "/api/healthz", "", time.Time{}, nil)
	if rec.Code != http.StatusOK || decodeBody(t, rec)["ok"] != true {
		t.Fatalf("healthy: %d %s", rec.Code, rec.Body.String())
	}

	broken := newTestServer(t, &failingStore{Store: memstore.New()}, nil)
	rec = do(t, broken, http.MethodGet, "/api/healthz", "", time.Time{}, nil)
	if rec.Code != http.StatusOK || decodeBody(t, rec)["ok"] != false {
		t.Fatalf("unhealthy: %d %s", rec.Code, rec.Body.String())
	}
}

func TestUnknownRoutes(t *testing.T) {
	srv := newTestServer(t, memstore.New(), nil)

	rec := do(t, srv, http.MethodGet, "/api/nope", "", time.Time{}, nil)
	if rec.Code != http.StatusNotFound || !strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		t.Fatalf("api 404: %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	rec = do(t, srv, http.MethodGet, "/nope", "", time.Time{}, nil)
	if rec.Code != http.StatusNotFound || !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("html 404: %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
}

func TestHTMLCreateViewRawFlow(t *testing.T) {
	srv := newTestServer(t, memstore.New(), nil)

	form := url.Values{"content": {"<script>alert(1)</script>"}, "max_views": {"2"}}
	req := httptest.NewRequest(http.MethodPost, "/pastes", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", rec.Code)
	}
	loc := rec.Header().Get("Location")
	if !strings.HasPrefix(loc, "/p/") {
		t.Fatalf("location = %q", loc)
	}

	view := do(t, srv, http.MethodGet, loc, "", time.Time{}, nil)
	if view.Code != http.StatusOK {
		t.Fatalf("view status %d", view.Code)
	}
	if strings.Contains(view.Body.String(), "<script>alert") {
		t.Fatalf("content was not escaped")
	}
	if !strings.Contains(view.Body.String(), "&lt;script&gt;") {
		t.Fatalf("view missing escaped content")
	}

	raw := do(t, srv, http.MethodGet, loc+"/raw", "", time.Time{}, nil)
	if raw.Code != http.StatusOK || raw.Body.String() != "<script>alert(1)</script>" {
		t.Fatalf("raw: %d %q", raw.Code, raw.Body.String())
	}
	if ct := raw.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("raw content type %q", ct)
	}

	// Both views above were counted.
	gone := do(t, srv, http.MethodGet, loc, "", time.Time{}, nil)
	if gone.Code != http.StatusNotFound {
		t.Fatalf("third view status %d", gone.Code)
	}
}

func TestHTMLFormValidation(t *testing.T) {
	srv := newTestServer(t, memstore.New(), nil)
	form := url.Values{"content": {"   "}, "ttl_seconds": {"10"}}
	req := httptest.NewRequest(http.MethodPost, "/pastes", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "content cannot be empty") || !strings.Contains(body, `value="10"`) {
		t.Fatalf("form not re-rendered with error and values:\n%s", body)
	}
}

func TestIndexPage(t *testing.T) {
	srv := newTestServer(t, memstore.New(), nil)
	rec := do(t, srv, http.MethodGet, "/", "", time.Time{}, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `action="/pastes"`) {
		t.Fatalf("index: %d", rec.Code)
	}
	css := do(t, srv, http.MethodGet, "/static/style.css", "", time.Time{}, nil)
	if css.Code != http.StatusOK {
		t.Fatalf("static status %d", css.Code)
	}
}

func TestQRDoesNotConsumeViews(t *testing.T) {
	srv := newTestServer(t, memstore.New(), nil)
	created := createAPI(t, srv, `{"content":"x","max_views":1}`, t0)

	for i := 0; i < 2; i++ {
		rec := do(t, srv, http.MethodGet, "/p/"+created.ID+"/qr", "", t0, nil)
		if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
			t.Fatalf("qr %d: %d %s", i, rec.Code, rec.Header().Get("Content-Type"))
		}
	}
	if rec := do(t, srv, http.MethodGet, "/api/pastes/"+created.ID, "", t0, nil); rec.Code != http.StatusOK {
		t.Fatalf("view after qr status %d", rec.Code)
	}
	if rec := do(t, srv, http.MethodGet, "/p/"+created.ID+"/qr", "", t0, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("qr of exhausted paste status %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	srv := newTestServer(t, memstore.New(), func(c *Config) { c.Metrics = m })
	created := createAPI(t, srv, `{"content":"x","max_views":1}`, t0)
	do(t, srv, http.MethodGet, "/api/pastes/"+created.ID, "", t0, nil)
	do(t, srv, http.MethodGet, "/api/pastes/"+created.ID, "", t0, nil)

	rec := do(t, srv, http.MethodGet, "/metrics", "", time.Time{}, nil)
	body := rec.Body.String()
	for _, want := range []string{
		"pastebox_pastes_created_total 1",
		`pastebox_paste_access_total{outcome="served"} 1`,
		`pastebox_paste_access_total{outcome="unavailable"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q", want)
		}
	}
}

func TestRemaining(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "expired"},
		{500 * time.Millisecond, "less than a second"},
		{1 * time.Second, "1 second"},
		{45 * time.Second, "45 seconds"},
		{90 * time.Minute, "1 hour, 30 minutes"},
		{49 * time.Hour, "2 days, 1 hour"},
	}
	for _, tt := range tests {
		if got := remaining(t0.Add(tt.in), t0); got != tt.want {
			t.Fatalf("remaining(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if remaining(time.Time{}, t0) != "" {
		t.Fatalf("no expiry should render empty")
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.2")
	if got := ClientIP(req, false); got != "10.0.0.1" {
		t.Fatalf("untrusted = %q", got)
	}
	if got := ClientIP(req, true); got != "203.0.113.9" {
		t.Fatalf("trusted = %q", got)
	}
}
