package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"audiograb/internal/config"
	"audiograb/internal/daemon"
	"audiograb/internal/deps"
	"audiograb/internal/logging"
	"audiograb/internal/media/ffprobe"
	"audiograb/internal/pipeline"
	"audiograb/internal/preflight"
	"audiograb/internal/services/ffmpeg"
	"audiograb/internal/services/ytdlp"
	"audiograb/internal/workflow"
	"audiograb/internal/workspace"
)

// Options configures daemon process runtime behavior.
type Options struct {
	// LogLevel overrides logging.level when set.
	LogLevel string
	// SkipPreflight starts the daemon even when required checks fail.
	SkipPreflight bool
}

// Components is the wired job pipeline shared by the daemon and one-shot CLI
// commands.
type Components struct {
	Orchestrator *workflow.Orchestrator
	Workspaces   *workspace.Manager
}

// Build wires the extractor, transcoder and workspace manager described by
// cfg into an orchestrator.
func Build(cfg *config.Config, logger *slog.Logger) (*Components, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	workspaces, err := workspace.NewManager(cfg.Paths.WorkspaceRoot,
		workspace.WithMinFreeBytes(cfg.MinFreeBytes()),
		workspace.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("workspace manager: %w", err)
	}

	extractor := ytdlp.New(cfg.Extractor.Binary, cfg.ResolveTimeout(),
		ytdlp.WithUserAgent(cfg.Extractor.UserAgent),
		ytdlp.WithLogger(logger),
	)
	engine := ffmpeg.New(cfg.Transcoder.FFmpegBinary, cfg.TranscodeTimeout(),
		ffmpeg.WithSampleRate(cfg.Transcoder.SampleRate),
	)
	execOpts := []pipeline.Option{pipeline.WithLogger(logger)}
	if cfg.Transcoder.VerifyOutput {
		execOpts = append(execOpts, pipeline.WithProber(ffprobe.New(cfg.Transcoder.FFprobeBinary)))
	}
	executor := pipeline.New(extractor, engine, execOpts...)

	orchestrator := workflow.New(extractor, executor, workspaces, workflow.Options{
		MaxConcurrent: cfg.Jobs.MaxConcurrent,
		Timeout:       cfg.JobTimeout(),
		Logger:        logger,
	})
	return &Components{Orchestrator: orchestrator, Workspaces: workspaces}, nil
}

// Run starts the audiograb daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := runPreflight(signalCtx, logger, cfg); err != nil && !opts.SkipPreflight {
		return err
	}
	logDependencySnapshot(signalCtx, logger, cfg)

	pidPath := filepath.Join(cfg.Paths.LogDir, "audiograb.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	components, err := Build(cfg, logger)
	if err != nil {
		return err
	}
	d, err := daemon.New(cfg, components.Orchestrator, components.Workspaces, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the bind address and workspace root"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("audiograb daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	d.Stop()
	return nil
}

func runPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) error {
	failed := preflight.Failed(preflight.RunAll(ctx, cfg))
	if len(failed) == 0 {
		return nil
	}
	names := make([]string, 0, len(failed))
	for _, r := range failed {
		names = append(names, r.Name)
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldImpact, "jobs depending on this check will fail"),
		)
	}
	return fmt.Errorf("preflight failed: %s", strings.Join(names, ", "))
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	statuses := preflight.CheckSystemDeps(ctx, cfg)
	attrs := []logging.Attr{logging.String(logging.FieldEventType, "dependency_snapshot")}
	for _, status := range statuses {
		key := snapshotKey(status)
		attrs = append(attrs, logging.Bool(key+"_available", status.Available))
		if status.Version != "" {
			attrs = append(attrs, logging.String(key+"_version", status.Version))
		}
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}

func snapshotKey(status deps.Status) string {
	key := strings.ToLower(status.Name)
	key = strings.NewReplacer(" ", "_", "-", "").Replace(key)
	return key
}
