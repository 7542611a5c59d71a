package ytdlp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"audiograb/internal/logging"
	"audiograb/internal/media"
	"audiograb/internal/services"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// Option configures the client.
type Option func(*Client)

// WithRunner injects a custom runner (primarily for tests).
func WithRunner(r Runner) Option {
	return func(c *Client) {
		if r != nil {
			c.runner = r
		}
	}
}

// WithHTTPClient overrides the client used by Open.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithUserAgent sets the User-Agent sent when a format carries none.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua = strings.TrimSpace(ua); ua != "" {
			c.userAgent = ua
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "ytdlp")
	}
}

// Client wraps yt-dlp resolution and raw format fetching.
type Client struct {
	runner         Runner
	http           *http.Client
	resolveTimeout time.Duration
	userAgent      string
	logger         *slog.Logger
}

// New constructs a yt-dlp client.
func New(binary string, resolveTimeout time.Duration, opts ...Option) *Client {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "yt-dlp"
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = 30 * time.Second
	c := &Client{
		runner:         commandRunner{binary: binary},
		http:           &http.Client{Transport: transport},
		resolveTimeout: resolveTimeout,
		userAgent:      defaultUserAgent,
		logger:         logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve queries the platform for rawURL's metadata and candidate streams.
// Invalid URLs fail with services.ErrInvalidInput before yt-dlp runs.
func (c *Client) Resolve(ctx context.Context, rawURL string) (media.Metadata, error) {
	parsed, err := media.ValidateURL(rawURL)
	if err != nil {
		return media.Metadata{}, err
	}

	resolveCtx := ctx
	if c.resolveTimeout > 0 {
		var cancel context.CancelFunc
		resolveCtx, cancel = context.WithTimeout(ctx, c.resolveTimeout)
		defer cancel()
	}

	started := time.Now()
	payload, err := c.runner.DumpJSON(resolveCtx, parsed.String())
	if err != nil {
		if ctx.Err() == nil && errors.Is(resolveCtx.Err(), context.DeadlineExceeded) {
			return media.Metadata{}, services.Wrap(services.ErrExtraction, "resolving", "yt-dlp", "video lookup timed out", err)
		}
		return media.Metadata{}, services.Wrap(services.ErrExtraction, "resolving", "yt-dlp", "", err)
	}
	meta, err := parseInfo(payload)
	if err != nil {
		return media.Metadata{}, services.Wrap(services.ErrExtraction, "resolving", "parse metadata", "", err)
	}

	logging.WithContext(ctx, c.logger).Debug("metadata resolved",
		logging.String("title", meta.Title),
		logging.Int("candidate_streams", len(meta.Streams)),
		logging.Duration("elapsed", time.Since(started)),
	)
	return meta, nil
}

// Open starts fetching stream's bytes. The returned size is the expected
// length when the extractor or the server reported one, otherwise -1.
func (c *Client) Open(ctx context.Context, stream media.Stream) (io.ReadCloser, int64, error) {
	target, err := url.Parse(stream.URL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") {
		return nil, 0, services.Wrap(services.ErrDownload, "fetching", "open stream", "", errors.New("format url is not http(s)"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, 0, services.Wrap(services.ErrDownload, "fetching", "build request", "", err)
	}
	for key, value := range stream.Headers {
		req.Header.Set(key, value)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, services.Wrap(services.ErrDownload, "fetching", "request stream", "", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()
		return nil, 0, services.Wrap(services.ErrDownload, "fetching", "request stream", "download throttled by platform", fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, 0, services.Wrap(services.ErrDownload, "fetching", "request stream", "", fmt.Errorf("status %d", resp.StatusCode))
	}

	size := int64(-1)
	switch {
	case stream.SizeBytes > 0:
		size = stream.SizeBytes
	case resp.ContentLength > 0:
		size = resp.ContentLength
	}
	return resp.Body, size, nil
}
