package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"audiograb/internal/logging"
	"audiograb/internal/media"
	"audiograb/internal/media/audio"
	"audiograb/internal/pipeline"
	"audiograb/internal/services"
	"audiograb/internal/workspace"
)

// Resolver turns a URL into metadata and candidate streams.
type Resolver interface {
	Resolve(ctx context.Context, rawURL string) (media.Metadata, error)
}

// Executor fetches a stream into a workspace and converts it.
type Executor interface {
	Fetch(ctx context.Context, ws pipeline.Workspace, stream media.Stream) (string, error)
	Transcode(ctx context.Context, ws pipeline.Workspace, meta media.Metadata, source string, bitrateKbps int) (media.Artifact, error)
}

// DeliverFunc hands a finished artifact to the caller. The artifact's file
// is removed as soon as it returns.
type DeliverFunc func(ctx context.Context, artifact media.Artifact) error

// Options tunes an Orchestrator.
type Options struct {
	MaxConcurrent int
	Timeout       time.Duration
	Logger        *slog.Logger
}

// Orchestrator runs jobs under admission control.
type Orchestrator struct {
	resolver   Resolver
	executor   Executor
	workspaces *workspace.Manager
	logger     *slog.Logger

	timeout  time.Duration
	capacity int
	slots    *semaphore.Weighted
	active   atomic.Int64
}

// New constructs an orchestrator.
func New(resolver Resolver, executor Executor, workspaces *workspace.Manager, opts Options) *Orchestrator {
	capacity := opts.MaxConcurrent
	if capacity <= 0 {
		capacity = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		resolver:   resolver,
		executor:   executor,
		workspaces: workspaces,
		logger:     logging.NewComponentLogger(logger, "workflow"),
		timeout:    opts.Timeout,
		capacity:   capacity,
		slots:      semaphore.NewWeighted(int64(capacity)),
	}
}

// Active returns the number of admitted jobs.
func (o *Orchestrator) Active() int {
	return int(o.active.Load())
}

// Capacity returns the admission limit.
func (o *Orchestrator) Capacity() int {
	return o.capacity
}

func (o *Orchestrator) admit() (func(), error) {
	if !o.slots.TryAcquire(1) {
		return nil, services.Wrap(services.ErrBusy, string(StateReceived), "admission", "",
			fmt.Errorf("%d jobs already running", o.capacity))
	}
	o.active.Add(1)
	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			o.active.Add(-1)
			o.slots.Release(1)
		}
	}, nil
}

func (o *Orchestrator) jobContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timeout > 0 {
		return context.WithTimeout(ctx, o.timeout)
	}
	return context.WithCancel(ctx)
}

// Describe resolves rawURL without fetching anything. It shares the job
// admission limit and deadline.
func (o *Orchestrator) Describe(ctx context.Context, rawURL string) (media.Metadata, error) {
	if _, err := media.ValidateURL(rawURL); err != nil {
		return media.Metadata{}, err
	}
	release, err := o.admit()
	if err != nil {
		return media.Metadata{}, err
	}
	defer release()

	jobCtx, cancel := o.jobContext(ctx)
	defer cancel()
	jobCtx = services.WithStage(jobCtx, string(StateResolving))

	meta, err := o.resolver.Resolve(jobCtx, rawURL)
	if err != nil {
		return media.Metadata{}, interruption(ctx, jobCtx, StateResolving, err)
	}
	return meta, nil
}

// Execute runs req to completion and calls deliver with the artifact. The
// workspace is gone by the time Execute returns.
func (o *Orchestrator) Execute(ctx context.Context, req media.JobRequest, deliver DeliverFunc) Result {
	started := time.Now()
	run := &jobRun{states: []State{StateReceived}}

	id, err := uuid.NewV7()
	if err != nil {
		run.fail(fmt.Errorf("generate job id: %w", err))
		return run.result()
	}
	run.id = id.String()

	ctx = services.WithJobID(ctx, run.id)
	logger := logging.WithContext(ctx, o.logger)

	if _, err := media.ValidateURL(req.URL); err != nil {
		run.fail(err)
		o.logOutcome(logger, run, started)
		return run.result()
	}
	if req.Tier == "" {
		req.Tier = media.TierMedium
	}

	release, err := o.admit()
	if err != nil {
		run.fail(err)
		o.logOutcome(logger, run, started)
		return run.result()
	}
	defer release()

	logger.Info("job started",
		logging.String(logging.FieldEventType, "job_start"),
		logging.String("quality", req.Tier.String()),
		logging.Int("active_jobs", o.Active()),
	)

	jobCtx, cancel := o.jobContext(ctx)
	defer cancel()

	err = o.run(jobCtx, run, req, deliver)
	if err != nil {
		run.fail(interruption(ctx, jobCtx, run.current(), err))
	} else {
		run.enter(StateSucceeded)
	}
	o.logOutcome(logger, run, started)
	return run.result()
}

func (o *Orchestrator) run(ctx context.Context, run *jobRun, req media.JobRequest, deliver DeliverFunc) error {
	meta, err := o.resolver.Resolve(run.stage(ctx, StateResolving), req.URL)
	if err != nil {
		return err
	}

	run.stage(ctx, StateSelecting)
	selection, err := audio.Select(meta.Streams, req.Tier)
	if err != nil {
		return err
	}
	run.selection = &selection.Stream
	logging.WithContext(ctx, o.logger).Debug("stream selected",
		logging.String("format_id", selection.Stream.FormatID),
		logging.String("codec", selection.Stream.Codec),
		logging.Float64("bitrate_kbps", selection.Stream.BitrateKbps),
		logging.Int("target_kbps", selection.TargetBitrate),
		logging.Bool("fallback", selection.Fallback),
	)

	fetchCtx := run.stage(ctx, StateFetching)
	ws, err := o.workspaces.Acquire(fetchCtx, run.id)
	if err != nil {
		return err
	}
	defer func() { _ = ws.Release() }()

	source, err := o.executor.Fetch(fetchCtx, ws, selection.Stream)
	if err != nil {
		return err
	}

	artifact, err := o.executor.Transcode(run.stage(ctx, StateTranscoding), ws, meta, source, selection.TargetBitrate)
	if err != nil {
		return err
	}

	deliverCtx := run.stage(ctx, StateDelivering)
	if deliver == nil {
		return nil
	}
	if err := deliver(deliverCtx, artifact); err != nil {
		return fmt.Errorf("deliver artifact: %w", err)
	}
	return nil
}

// interruption reports deadline expiry and caller cancellation as their own
// kinds. Any other failure keeps the kind its component assigned.
func interruption(parent, jobCtx context.Context, state State, err error) error {
	stage := string(state)
	if parentErr := parent.Err(); parentErr != nil {
		if errors.Is(parentErr, context.DeadlineExceeded) {
			return services.Wrap(services.ErrTimeout, stage, "job", "", err)
		}
		return services.Wrap(services.ErrCanceled, stage, "job", "", err)
	}
	if errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, stage, "job", "", err)
	}
	return err
}

func (o *Orchestrator) logOutcome(logger *slog.Logger, run *jobRun, started time.Time) {
	elapsed := time.Since(started)
	if run.err == nil {
		logger.Info("job succeeded",
			logging.String(logging.FieldEventType, "job_complete"),
			logging.Duration("duration", elapsed),
		)
		return
	}
	kind := services.KindOf(run.err)
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "job_failed"),
		logging.String(logging.FieldErrorKind, string(kind)),
		logging.String("failed_state", string(run.failedAt)),
		logging.Duration("duration", elapsed),
		logging.Error(run.err),
	}
	switch kind {
	case services.KindInvalidInput, services.KindBusy, services.KindCanceled, services.KindNoSuitableStream, services.KindExtraction:
		logger.Info("job failed", logging.Args(attrs...)...)
	default:
		logging.ErrorWithContext(logger, "job failed", "job_failed", attrs...)
	}
}

type jobRun struct {
	id        string
	states    []State
	failedAt  State
	selection *media.Stream
	err       error
}

func (r *jobRun) current() State {
	return r.states[len(r.states)-1]
}

func (r *jobRun) enter(state State) {
	r.states = append(r.states, state)
}

func (r *jobRun) stage(ctx context.Context, state State) context.Context {
	r.enter(state)
	return services.WithStage(ctx, string(state))
}

func (r *jobRun) fail(err error) {
	r.failedAt = r.current()
	r.err = err
	r.enter(StateFailed)
}

func (r *jobRun) result() Result {
	return Result{
		JobID:     r.id,
		States:    append([]State(nil), r.states...),
		Selection: r.selection,
		Err:       r.err,
	}
}
