package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"audiograb/internal/config"
	"audiograb/internal/delivery"
	"audiograb/internal/logging"
	"audiograb/internal/media"
	"audiograb/internal/services"
	"audiograb/internal/workflow"
)

// Jobs is the job surface the HTTP handlers drive.
type Jobs interface {
	Execute(ctx context.Context, req media.JobRequest, deliver workflow.DeliverFunc) workflow.Result
	Describe(ctx context.Context, rawURL string) (media.Metadata, error)
	Active() int
	Capacity() int
}

type healthResponse struct {
	Status     string `json:"status"`
	Service    string `json:"service"`
	ActiveJobs int    `json:"active_jobs"`
	MaxJobs    int    `json:"max_jobs"`
}

type downloadRequest struct {
	URL     string `json:"url"`
	Quality string `json:"quality,omitempty"`
}

type videoInfoRequest struct {
	URL string `json:"url"`
}

type videoInfoResponse struct {
	Title     string  `json:"title"`
	Duration  float64 `json:"duration"`
	Uploader  string  `json:"uploader"`
	ViewCount int64   `json:"view_count"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type apiServer struct {
	bind    string
	service string
	maxBody int64
	logger  *slog.Logger
	jobs    Jobs

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, jobs Jobs, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || jobs == nil {
		return nil, errors.New("api server requires config and jobs")
	}
	bind := strings.TrimSpace(cfg.Server.Bind)
	if bind == "" {
		return nil, errors.New("server.bind is required")
	}
	srv := &apiServer{
		bind:    bind,
		service: cfg.Server.ServiceName,
		maxBody: cfg.Server.MaxBodyBytes,
		logger:  logging.NewComponentLogger(logger, "api-server"),
		jobs:    jobs,
	}
	srv.server = &http.Server{
		Handler:           srv.handler(cfg),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Delivery happens inside the job budget, so writes may take as
		// long as a whole job.
		WriteTimeout: cfg.JobTimeout() + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return srv, nil
}

// NewHandler returns the full HTTP handler, middleware included.
func NewHandler(cfg *config.Config, jobs Jobs, logger *slog.Logger) (http.Handler, error) {
	srv, err := newAPIServer(cfg, jobs, logger)
	if err != nil {
		return nil, err
	}
	return srv.server.Handler, nil
}

func (s *apiServer) handler(cfg *config.Config) http.Handler {
	mux := http.NewServeMux()
	for _, prefix := range []string{"", "/api"} {
		mux.HandleFunc(prefix+"/health", s.handleHealth)
		mux.HandleFunc(prefix+"/download-audio", s.handleDownload)
		mux.HandleFunc(prefix+"/video-info", s.handleVideoInfo)
	}
	mux.HandleFunc("/", s.handleNotFound)

	var limiter *clientLimiter
	if cfg.RateLimit.Enabled {
		limiter = newClientLimiter(cfg.RateLimit.Requests, cfg.RateWindow(), cfg.RateLimit.Burst)
	}

	var h http.Handler = mux
	h = s.rateLimit(limiter, h)
	h = cors(cfg.Server.AllowedOrigins, h)
	h = securityHeaders(h)
	h = s.accessLog(h)
	h = s.recoverPanics(h)
	return h
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	s.logger.Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.String(logging.FieldEventType, "server_listening"),
	)
	return nil
}

func (s *apiServer) stop(timeout time.Duration) {
	if s == nil || s.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		logging.WarnWithContext(s.logger, "api server shutdown incomplete", "server_shutdown_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "in-flight downloads were cut off"),
		)
		_ = s.server.Close()
	}
	s.listener = nil
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:     "OK",
		Service:    s.service,
		ActiveJobs: s.jobs.Active(),
		MaxJobs:    s.jobs.Capacity(),
	})
}

func (s *apiServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body downloadRequest
	if !s.decode(w, r, &body) {
		return
	}
	req, err := media.NewJobRequest(body.URL, body.Quality)
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	tw := &trackingWriter{ResponseWriter: w}
	result := s.jobs.Execute(r.Context(), req, func(_ context.Context, artifact media.Artifact) error {
		return delivery.Deliver(tw, artifact)
	})
	if result.Err == nil {
		return
	}
	if tw.wroteHeader {
		// Headers are gone; the truncated body is all the client will see.
		return
	}
	s.writeFailure(w, result.Err)
}

func (s *apiServer) handleVideoInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body videoInfoRequest
	if !s.decode(w, r, &body) {
		return
	}
	meta, err := s.jobs.Describe(r.Context(), body.URL)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, videoInfoResponse{
		Title:     meta.Title,
		Duration:  meta.DurationSeconds,
		Uploader:  meta.Uploader,
		ViewCount: meta.ViewCount,
	})
}

func (s *apiServer) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	s.writeError(w, http.StatusNotFound, "endpoint not found")
}

// decode reads a JSON body into dst, answering the request itself on
// failure.
func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if s.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	}
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		s.writeFailure(w, services.Wrap(services.ErrInvalidInput, "received", "decode body", "request body must be a JSON object", err))
		return false
	}
	return true
}

func (s *apiServer) writeFailure(w http.ResponseWriter, err error) {
	s.writeError(w, services.HTTPStatus(err), services.PublicMessage(err))
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Debug("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorResponse{Error: message})
}

// trackingWriter notes whether the response has been committed.
type trackingWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

func (t *trackingWriter) WriteHeader(status int) {
	t.wroteHeader = true
	t.ResponseWriter.WriteHeader(status)
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	t.wroteHeader = true
	return t.ResponseWriter.Write(p)
}

func (t *trackingWriter) Unwrap() http.ResponseWriter {
	return t.ResponseWriter
}
