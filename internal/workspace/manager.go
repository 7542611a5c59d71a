package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/disk"

	"audiograb/internal/logging"
	"audiograb/internal/services"
)

const (
	dirPrefix = "job-"
	lockName  = ".audiograb.lock"
)

// ErrRootLocked is returned by Lock when another process owns the root.
var ErrRootLocked = errors.New("workspace root is locked by another process")

// FreeSpaceFunc reports free bytes on the filesystem holding path.
type FreeSpaceFunc func(ctx context.Context, path string) (uint64, error)

// Option configures a Manager.
type Option func(*Manager)

// WithMinFreeBytes refuses new workspaces when free space drops below n.
func WithMinFreeBytes(n uint64) Option {
	return func(m *Manager) {
		m.minFree = n
	}
}

// WithFreeSpaceFunc overrides the disk usage probe (used in tests).
func WithFreeSpaceFunc(fn FreeSpaceFunc) Option {
	return func(m *Manager) {
		if fn != nil {
			m.freeSpace = fn
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logging.NewComponentLogger(logger, "workspace")
	}
}

// Manager allocates and reclaims job workspaces under one root.
type Manager struct {
	root      string
	minFree   uint64
	freeSpace FreeSpaceFunc
	logger    *slog.Logger
	lock      *flock.Flock
}

// NewManager prepares root and returns a manager for it.
func NewManager(root string, opts ...Option) (*Manager, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("workspace root required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	m := &Manager{
		root:      abs,
		freeSpace: diskFree,
		logger:    logging.NewNop(),
		lock:      flock.New(filepath.Join(abs, lockName)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Root returns the absolute workspace root.
func (m *Manager) Root() string {
	return m.root
}

// Lock takes exclusive ownership of the root for this process.
func (m *Manager) Lock() error {
	ok, err := m.lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock workspace root: %w", err)
	}
	if !ok {
		return ErrRootLocked
	}
	return nil
}

// Unlock releases ownership taken by Lock.
func (m *Manager) Unlock() error {
	return m.lock.Unlock()
}

// Acquire creates a fresh workspace for jobID. An empty jobID gets a new
// UUIDv7. Failures are services.ErrWorkspace and are not retried.
func (m *Manager) Acquire(ctx context.Context, jobID string) (*Workspace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if jobID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, services.Wrap(services.ErrWorkspace, "workspace", "generate id", "", err)
		}
		jobID = id.String()
	}
	if !validID(jobID) {
		return nil, services.Wrap(services.ErrWorkspace, "workspace", "validate id", "", fmt.Errorf("invalid job id %q", jobID))
	}

	if m.minFree > 0 {
		free, err := m.freeSpace(ctx, m.root)
		if err != nil {
			return nil, services.Wrap(services.ErrWorkspace, "workspace", "disk usage", "", err)
		}
		if free < m.minFree {
			return nil, services.Wrap(services.ErrWorkspace, "workspace", "disk usage", "",
				fmt.Errorf("free space %d below minimum %d", free, m.minFree))
		}
	}

	dir := filepath.Join(m.root, dirPrefix+jobID)
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, services.Wrap(services.ErrWorkspace, "workspace", "create", "", err)
	}
	return &Workspace{id: jobID, dir: dir, logger: m.logger}, nil
}

func validID(id string) bool {
	if len(id) > 64 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
		default:
			return false
		}
	}
	return true
}

func diskFree(ctx context.Context, path string) (uint64, error) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// Workspace is one job's private directory.
type Workspace struct {
	id     string
	dir    string
	logger *slog.Logger

	once       sync.Once
	releaseErr error
}

// ID returns the job token the workspace was created for.
func (w *Workspace) ID() string {
	return w.id
}

// Dir returns the workspace directory.
func (w *Workspace) Dir() string {
	return w.dir
}

// Path returns the location of name inside the workspace. Only the base
// name is used so callers cannot escape the directory.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, filepath.Base(name))
}

// Release removes the workspace and everything in it. It is safe to call
// more than once; only the first call does work. Failures are logged and
// returned but never change a job's outcome.
func (w *Workspace) Release() error {
	w.once.Do(func() {
		if err := os.RemoveAll(w.dir); err != nil {
			w.releaseErr = fmt.Errorf("remove workspace: %w", err)
			logging.WarnWithContext(w.logger, "workspace cleanup failed", "workspace_cleanup_failed",
				logging.String(logging.FieldJobID, w.id),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check workspace_root permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed until next sweep"),
			)
		}
	})
	return w.releaseErr
}
