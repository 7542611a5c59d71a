package daemon_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"audiograb/internal/config"
	"audiograb/internal/daemon"
	"audiograb/internal/testsupport"
)

type apiFixture struct {
	cfg      *config.Config
	handler  http.Handler
	resolver *testsupport.Resolver
}

func newAPIFixture(t *testing.T, opts ...testsupport.ConfigOption) *apiFixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, append([]testsupport.ConfigOption{testsupport.WithoutRateLimit()}, opts...)...)
	resolver := testsupport.NewResolver()
	orch, _ := testsupport.NewOrchestrator(t, cfg, resolver)
	handler, err := daemon.NewHandler(cfg, orch, nil)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	return &apiFixture{cfg: cfg, handler: handler, resolver: resolver}
}

func (f *apiFixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return payload
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, message string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d (%s)", status, rec.Code, rec.Body.String())
	}
	if got := decodeJSON(t, rec)["error"]; got != message {
		t.Fatalf("expected error %q, got %v", message, got)
	}
}

func TestHealthOnBothPrefixes(t *testing.T) {
	f := newAPIFixture(t, testsupport.WithMaxJobs(3))
	for _, path := range []string{"/health", "/api/health"} {
		rec := f.do(http.MethodGet, path, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status %d", path, rec.Code)
		}
		payload := decodeJSON(t, rec)
		if payload["status"] != "OK" || payload["service"] != "audiograb" {
			t.Fatalf("%s: unexpected payload %v", path, payload)
		}
		if payload["active_jobs"] != float64(0) || payload["max_jobs"] != float64(3) {
			t.Fatalf("%s: unexpected job counters %v", path, payload)
		}
	}
}

func TestVideoInfo(t *testing.T) {
	f := newAPIFixture(t)
	f.resolver.Metadata["https://valid.example/v"] = testsupport.AudioMetadata("Known Title", "https://valid.example/v")

	rec := f.do(http.MethodPost, "/api/video-info", `{"url":"https://valid.example/v"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	payload := decodeJSON(t, rec)
	if payload["title"] != "Known Title" || payload["uploader"] != "Test Uploader" {
		t.Fatalf("unexpected payload %v", payload)
	}
	if payload["duration"] != float64(212) || payload["view_count"] != float64(42) {
		t.Fatalf("unexpected numbers %v", payload)
	}
}

func TestVideoInfoInvalidURLSkipsExtractor(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(http.MethodPost, "/video-info", `{"url":"not-a-url"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if f.resolver.Calls() != 0 {
		t.Fatalf("extractor called %d times", f.resolver.Calls())
	}
}

func TestVideoInfoUnavailable(t *testing.T) {
	f := newAPIFixture(t)
	f.resolver.Failures["https://valid.example/gone"] = testsupport.ExtractionFailure()
	rec := f.do(http.MethodPost, "/video-info", `{"url":"https://valid.example/gone"}`)
	expectError(t, rec, http.StatusNotFound, "video not found or unavailable")
	if strings.Contains(rec.Body.String(), "ERROR:") {
		t.Fatal("tool output leaked to caller")
	}
}

func TestDownloadAudio(t *testing.T) {
	f := newAPIFixture(t)
	url := "https://valid.example/watch?v=abc"
	f.resolver.Metadata[url] = testsupport.AudioMetadata("Never: Gonna", url)

	rec := f.do(http.MethodPost, "/download-audio", `{"url":"`+url+`","quality":"medium"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "audio/mpeg" {
		t.Fatalf("unexpected content type %q", got)
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="Never_ Gonna.mp3"` {
		t.Fatalf("unexpected disposition %q", got)
	}
	if got := rec.Body.String(); got != "mp3@192:"+url+"#251" {
		t.Fatalf("unexpected body %q", got)
	}
	if n := testsupport.WorkspaceCount(t, f.cfg.Paths.WorkspaceRoot); n != 0 {
		t.Fatalf("expected workspaces released, found %d", n)
	}
}

func TestDownloadAudioUnknownQualityUsesMedium(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(http.MethodPost, "/api/download-audio", `{"url":"https://valid.example/q","quality":"ultra"}`)
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Body.String(), "mp3@192:") {
		t.Fatalf("expected medium tier, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestDownloadAudioFailures(t *testing.T) {
	f := newAPIFixture(t)
	f.resolver.Metadata["https://valid.example/silent"] = testsupport.VideoOnlyMetadata("Silent")
	f.resolver.Failures["https://valid.example/private"] = testsupport.ExtractionFailure()

	expectError(t, f.do(http.MethodPost, "/download-audio", `{"url":"https://valid.example/silent"}`),
		http.StatusUnprocessableEntity, "no audio track available")
	expectError(t, f.do(http.MethodPost, "/download-audio", `{"url":"https://valid.example/private"}`),
		http.StatusNotFound, "video not found or unavailable")

	calls := f.resolver.Calls()
	rec := f.do(http.MethodPost, "/download-audio", `{"url":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty url, got %d", rec.Code)
	}
	if f.resolver.Calls() != calls {
		t.Fatal("extractor must not run for invalid input")
	}
	if n := testsupport.WorkspaceCount(t, f.cfg.Paths.WorkspaceRoot); n != 0 {
		t.Fatalf("expected no workspaces, found %d", n)
	}
}

func TestDownloadAudioBusy(t *testing.T) {
	f := newAPIFixture(t, testsupport.WithMaxJobs(1))
	f.resolver.Gate = make(chan struct{})
	f.resolver.Entered = make(chan string, 2)

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- f.do(http.MethodPost, "/download-audio", `{"url":"https://valid.example/first"}`)
	}()
	<-f.resolver.Entered

	expectError(t, f.do(http.MethodPost, "/download-audio", `{"url":"https://valid.example/second"}`),
		http.StatusServiceUnavailable, "server busy, try again later")

	close(f.resolver.Gate)
	if rec := <-done; rec.Code != http.StatusOK {
		t.Fatalf("first request failed with %d", rec.Code)
	}
}

func TestRequestValidation(t *testing.T) {
	f := newAPIFixture(t)
	expectError(t, f.do(http.MethodGet, "/download-audio", ""), http.StatusMethodNotAllowed, "method not allowed")
	expectError(t, f.do(http.MethodGet, "/nope", ""), http.StatusNotFound, "endpoint not found")
	expectError(t, f.do(http.MethodPost, "/download-audio", "{not json"), http.StatusBadRequest, "request body must be a JSON object")

	big := `{"url":"https://valid.example/` + strings.Repeat("a", 2<<20) + `"}`
	expectError(t, f.do(http.MethodPost, "/download-audio", big), http.StatusRequestEntityTooLarge, "request body too large")
}

func TestCORSAndSecurityHeaders(t *testing.T) {
	f := newAPIFixture(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/download-audio", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing allow origin: %v", rec.Header())
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), "POST") {
		t.Fatalf("missing allow methods: %v", rec.Header())
	}

	rec = f.do(http.MethodGet, "/health", "")
	if rec.Header().Get("Access-Control-Expose-Headers") != "Content-Disposition" {
		t.Fatal("Content-Disposition must be exposed to browsers")
	}
	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Fatalf("%s = %q, want %q", header, got, want)
		}
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}
}

func TestCORSRestrictedOrigins(t *testing.T) {
	f := newAPIFixture(t)
	f.cfg.Server.AllowedOrigins = []string{"https://app.example"}
	handler, err := daemon.NewHandler(f.cfg, mustOrchestrator(t, f.cfg), nil)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	for origin, want := range map[string]string{
		"https://app.example":  "https://app.example",
		"https://evil.example": "",
	} {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", origin)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != want {
			t.Fatalf("origin %s: allow-origin %q, want %q", origin, got, want)
		}
	}
}

func TestRateLimit(t *testing.T) {
	f := newAPIFixture(t, testsupport.WithRateLimit(2, 900))
	for i := 0; i < 2; i++ {
		if rec := f.do(http.MethodPost, "/video-info", `{"url":"not-a-url"}`); rec.Code != http.StatusBadRequest {
			t.Fatalf("request %d: status %d", i, rec.Code)
		}
	}
	rec := f.do(http.MethodPost, "/video-info", `{"url":"not-a-url"}`)
	expectError(t, rec, http.StatusTooManyRequests, "too many requests, please try again later")
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestRateLimitExemptsHealth(t *testing.T) {
	f := newAPIFixture(t, testsupport.WithRateLimit(2, 900))
	for i := 0; i < 3; i++ {
		f.do(http.MethodPost, "/video-info", `{"url":"not-a-url"}`)
	}
	if rec := f.do(http.MethodPost, "/api/video-info", `{"url":"not-a-url"}`); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected budget to be spent, got %d", rec.Code)
	}
	for _, path := range []string{"/health", "/api/health", "/health", "/api/health"} {
		if rec := f.do(http.MethodGet, path, ""); rec.Code != http.StatusOK {
			t.Fatalf("%s: status %d after budget spent", path, rec.Code)
		}
	}
}

func mustOrchestrator(t *testing.T, cfg *config.Config) daemon.Jobs {
	t.Helper()
	orch, _ := testsupport.NewOrchestrator(t, cfg, testsupport.NewResolver())
	return orch
}
