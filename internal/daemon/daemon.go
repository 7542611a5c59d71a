package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"audiograb/internal/config"
	"audiograb/internal/logging"
	"audiograb/internal/workspace"
)

const shutdownGrace = 30 * time.Second

// Daemon owns the HTTP listener, the workspace root lock and the stale
// workspace sweeper.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	jobs       Jobs
	workspaces *workspace.Manager
	api        *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	PID           int
	Address       string
	WorkspaceRoot string
	ActiveJobs    int
	MaxJobs       int
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, jobs Jobs, workspaces *workspace.Manager, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || jobs == nil || workspaces == nil {
		return nil, errors.New("daemon requires config, jobs, and workspace manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	api, err := newAPIServer(cfg, jobs, logger)
	if err != nil {
		return nil, err
	}
	return &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		jobs:       jobs,
		workspaces: workspaces,
		api:        api,
	}, nil
}

// Start takes the workspace root lock, reclaims orphaned workspaces and
// begins serving.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := d.workspaces.Lock(); err != nil {
		if errors.Is(err, workspace.ErrRootLocked) {
			return fmt.Errorf("another audiograb instance owns %s", d.workspaces.Root())
		}
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.sweep(runCtx)

	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.workspaces.Unlock()
		return err
	}

	d.cancel = cancel
	if interval := d.cfg.SweepInterval(); interval > 0 {
		d.wg.Add(1)
		go d.sweepLoop(runCtx, interval)
	}

	d.running.Store(true)
	d.logger.Info("audiograb daemon started",
		logging.String("address", d.api.addr()),
		logging.String("workspace_root", d.workspaces.Root()),
		logging.Int("max_jobs", d.jobs.Capacity()),
		logging.String(logging.FieldEventType, "daemon_start"),
	)
	return nil
}

// Stop drains in-flight requests, stops the sweeper and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.api.stop(shutdownGrace)
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	if err := d.workspaces.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release workspace lock", "lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "next start may report the root as locked"),
		)
	}
	d.running.Store(false)
	d.logger.Info("audiograb daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	return Status{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		Address:       d.api.addr(),
		WorkspaceRoot: d.workspaces.Root(),
		ActiveJobs:    d.jobs.Active(),
		MaxJobs:       d.jobs.Capacity(),
	}
}

// Addr returns the bound listener address while running.
func (d *Daemon) Addr() string {
	return d.api.addr()
}

func (d *Daemon) sweepLoop(ctx context.Context, interval time.Duration) {
	defer d.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.sweep(ctx)
		}
	}
}

func (d *Daemon) sweep(ctx context.Context) {
	result := d.workspaces.Sweep(ctx, d.cfg.StaleWorkspaceAge())
	if len(result.Removed) > 0 || len(result.Errors) > 0 {
		d.logger.Info("workspace sweep finished",
			logging.Int("removed", len(result.Removed)),
			logging.Int("errors", len(result.Errors)),
			logging.String(logging.FieldEventType, "workspace_sweep_summary"),
		)
	}
}
