//go:build integration

package steps

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/cucumber/godog"

	"audiograb/internal/config"
	"audiograb/internal/daemon"
	"audiograb/internal/media"
	"audiograb/internal/pipeline"
	"audiograb/internal/testsupport"
	"audiograb/internal/workflow"
	"audiograb/internal/workspace"
)

type apiContext struct {
	baseDir  string
	maxJobs  int
	resolver *testsupport.Resolver
	api      http.Handler

	status      int
	header      http.Header
	body        []byte
	concurrent  map[string][]byte
	inflight    chan *httptest.ResponseRecorder
	inflightURL string
}

// SharedAPIContext is reset before each scenario.
var SharedAPIContext *apiContext

func getAPIContext() *apiContext {
	return SharedAPIContext
}

func InitializeAPIScenario(ctx *godog.ScenarioContext) {
	ctx.Before(func(c context.Context, sc *godog.Scenario) (context.Context, error) {
		dir, err := os.MkdirTemp("", "audiograb-features-*")
		if err != nil {
			return c, err
		}
		SharedAPIContext = &apiContext{
			baseDir:  dir,
			maxJobs:  4,
			resolver: testsupport.NewResolver(),
		}
		return c, nil
	})

	ctx.After(func(c context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		a := getAPIContext()
		if a != nil {
			if a.resolver.Gate != nil {
				select {
				case <-a.resolver.Gate:
				default:
					close(a.resolver.Gate)
				}
			}
			os.RemoveAll(a.baseDir)
		}
		SharedAPIContext = nil
		return c, nil
	})

	ctx.Step(`^the service allows (\d+) concurrent jobs?$`, theServiceAllowsConcurrentJobs)
	ctx.Step(`^the extractor knows "([^"]*)" as "([^"]*)" by "([^"]*)" lasting (\d+) seconds with (\d+) views$`, theExtractorKnows)
	ctx.Step(`^the extractor reports only video streams for "([^"]*)"$`, theExtractorReportsOnlyVideo)
	ctx.Step(`^the extractor holds requests until released$`, theExtractorHoldsRequests)
	ctx.Step(`^the extractor is released$`, theExtractorIsReleased)
	ctx.Step(`^I POST to "([^"]*)" with url "([^"]*)"$`, iPostWithURL)
	ctx.Step(`^I POST to "([^"]*)" with url "([^"]*)" and quality "([^"]*)"$`, iPostWithURLAndQuality)
	ctx.Step(`^I download "([^"]*)" and "([^"]*)" at the same time$`, iDownloadConcurrently)
	ctx.Step(`^a download for "([^"]*)" is in flight$`, aDownloadIsInFlight)
	ctx.Step(`^the response status should be (\d+)$`, theResponseStatusShouldBe)
	ctx.Step(`^the JSON response should be:$`, theJSONResponseShouldBe)
	ctx.Step(`^the response should carry an error message$`, theResponseShouldCarryAnError)
	ctx.Step(`^the response content type should be "([^"]*)"$`, theContentTypeShouldBe)
	ctx.Step(`^the response body should not be empty$`, theBodyShouldNotBeEmpty)
	ctx.Step(`^the response should offer an attachment$`, theResponseShouldOfferAttachment)
	ctx.Step(`^the extractor should not have been called$`, theExtractorShouldNotHaveBeenCalled)
	ctx.Step(`^no job workspaces should remain$`, noJobWorkspacesShouldRemain)
	ctx.Step(`^each response should contain only its own source$`, eachResponseShouldContainOwnSource)
	ctx.Step(`^the in-flight download should succeed$`, theInFlightDownloadShouldSucceed)
}

func (a *apiContext) workspaceRoot() string {
	return filepath.Join(a.baseDir, "work")
}

// handler builds the service lazily so Given steps can adjust limits first.
func (a *apiContext) handler() (http.Handler, error) {
	if a.api != nil {
		return a.api, nil
	}
	cfg := config.Default()
	cfg.Paths.WorkspaceRoot = a.workspaceRoot()
	cfg.Paths.LogDir = filepath.Join(a.baseDir, "logs")
	cfg.Jobs.MaxConcurrent = a.maxJobs
	cfg.Jobs.MinFreeMB = 0
	cfg.RateLimit.Enabled = false
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	mgr, err := workspace.NewManager(cfg.Paths.WorkspaceRoot)
	if err != nil {
		return nil, err
	}
	exec := pipeline.New(testsupport.EchoFetcher{}, testsupport.FakeTranscoder{})
	orch := workflow.New(a.resolver, exec, mgr, workflow.Options{
		MaxConcurrent: cfg.Jobs.MaxConcurrent,
		Timeout:       cfg.JobTimeout(),
	})
	h, err := daemon.NewHandler(&cfg, orch, nil)
	if err != nil {
		return nil, err
	}
	a.api = h
	return h, nil
}

func (a *apiContext) post(path string, payload map[string]string) (*httptest.ResponseRecorder, error) {
	h, err := a.handler()
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, nil
}

func (a *apiContext) record(rec *httptest.ResponseRecorder) {
	a.status = rec.Code
	a.header = rec.Header()
	a.body = rec.Body.Bytes()
}

func theServiceAllowsConcurrentJobs(n int) error {
	getAPIContext().maxJobs = n
	return nil
}

func theExtractorKnows(url, title, uploader string, seconds, views int) error {
	meta := testsupport.AudioMetadata(title, url)
	meta.Uploader = uploader
	meta.DurationSeconds = float64(seconds)
	meta.ViewCount = int64(views)
	getAPIContext().resolver.Metadata[url] = meta
	return nil
}

func theExtractorReportsOnlyVideo(url string) error {
	getAPIContext().resolver.Metadata[url] = testsupport.VideoOnlyMetadata("Silent")
	return nil
}

func theExtractorHoldsRequests() error {
	a := getAPIContext()
	a.resolver.Gate = make(chan struct{})
	a.resolver.Entered = make(chan string, 8)
	return nil
}

func theExtractorIsReleased() error {
	close(getAPIContext().resolver.Gate)
	return nil
}

func iPostWithURL(path, url string) error {
	return iPostWithURLAndQuality(path, url, "")
}

func iPostWithURLAndQuality(path, url, quality string) error {
	a := getAPIContext()
	payload := map[string]string{"url": url}
	if quality != "" {
		payload["quality"] = quality
	}
	rec, err := a.post(path, payload)
	if err != nil {
		return err
	}
	a.record(rec)
	return nil
}

func iDownloadConcurrently(first, second string) error {
	a := getAPIContext()
	if _, err := a.handler(); err != nil {
		return err
	}
	a.concurrent = map[string][]byte{}

	var mu sync.Mutex
	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, url := range []string{first, second} {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			rec, err := a.post("/download-audio", map[string]string{"url": url})
			if err != nil {
				errs <- err
				return
			}
			if rec.Code != http.StatusOK {
				errs <- fmt.Errorf("%s: status %d: %s", url, rec.Code, rec.Body.String())
				return
			}
			mu.Lock()
			a.concurrent[url] = rec.Body.Bytes()
			mu.Unlock()
		}(url)
	}
	wg.Wait()
	close(errs)
	return <-errs
}

func aDownloadIsInFlight(url string) error {
	a := getAPIContext()
	if _, err := a.handler(); err != nil {
		return err
	}
	a.inflight = make(chan *httptest.ResponseRecorder, 1)
	a.inflightURL = url
	go func() {
		rec, err := a.post("/download-audio", map[string]string{"url": url})
		if err != nil {
			rec = httptest.NewRecorder()
			rec.WriteHeader(http.StatusTeapot)
		}
		a.inflight <- rec
	}()
	select {
	case got := <-a.resolver.Entered:
		if got != url {
			return fmt.Errorf("extractor entered for %q, want %q", got, url)
		}
		return nil
	case <-time.After(5 * time.Second):
		return errors.New("in-flight download never reached the extractor")
	}
}

func theResponseStatusShouldBe(code int) error {
	a := getAPIContext()
	if a.status != code {
		return fmt.Errorf("expected status %d, got %d: %s", code, a.status, a.body)
	}
	return nil
}

func theJSONResponseShouldBe(doc *godog.DocString) error {
	var want, got map[string]any
	if err := json.Unmarshal([]byte(doc.Content), &want); err != nil {
		return fmt.Errorf("expected document: %w", err)
	}
	if err := json.Unmarshal(getAPIContext().body, &got); err != nil {
		return fmt.Errorf("response is not JSON: %w", err)
	}
	if !reflect.DeepEqual(want, got) {
		return fmt.Errorf("expected %v, got %v", want, got)
	}
	return nil
}

func theResponseShouldCarryAnError() error {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(getAPIContext().body, &payload); err != nil {
		return fmt.Errorf("response is not JSON: %w", err)
	}
	if strings.TrimSpace(payload.Error) == "" {
		return errors.New("expected a non-empty error field")
	}
	return nil
}

func theContentTypeShouldBe(want string) error {
	if got := getAPIContext().header.Get("Content-Type"); got != want {
		return fmt.Errorf("expected content type %q, got %q", want, got)
	}
	return nil
}

func theBodyShouldNotBeEmpty() error {
	if len(getAPIContext().body) == 0 {
		return errors.New("expected a non-empty body")
	}
	return nil
}

func theResponseShouldOfferAttachment() error {
	if got := getAPIContext().header.Get("Content-Disposition"); !strings.HasPrefix(got, "attachment;") {
		return fmt.Errorf("expected attachment disposition, got %q", got)
	}
	return nil
}

func theExtractorShouldNotHaveBeenCalled() error {
	if calls := getAPIContext().resolver.Calls(); calls != 0 {
		return fmt.Errorf("expected no extractor calls, got %d", calls)
	}
	return nil
}

func noJobWorkspacesShouldRemain() error {
	entries, err := os.ReadDir(getAPIContext().workspaceRoot())
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), "job-") {
			return fmt.Errorf("workspace %s still exists", entry.Name())
		}
	}
	return nil
}

func eachResponseShouldContainOwnSource() error {
	a := getAPIContext()
	for url, body := range a.concurrent {
		for other := range a.concurrent {
			if other == url {
				continue
			}
			if bytes.Contains(body, []byte(other)) {
				return fmt.Errorf("response for %s contains content of %s", url, other)
			}
		}
		if !bytes.Contains(body, []byte(url)) {
			return fmt.Errorf("response for %s lacks its own source: %q", url, body)
		}
	}
	return nil
}

func theInFlightDownloadShouldSucceed() error {
	a := getAPIContext()
	select {
	case rec := <-a.inflight:
		if rec.Code != http.StatusOK {
			return fmt.Errorf("in-flight download for %s: status %d: %s", a.inflightURL, rec.Code, rec.Body.String())
		}
		if rec.Header().Get("Content-Type") != media.MimeMP3 {
			return fmt.Errorf("unexpected content type %q", rec.Header().Get("Content-Type"))
		}
		return nil
	case <-time.After(5 * time.Second):
		return errors.New("in-flight download did not finish")
	}
}
