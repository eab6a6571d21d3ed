// Package txn serializes every write against the shared working tree. One
// transaction is: acquire the store's exclusive lock, sync with the remote
// if due, apply the mutation under the caller's identity, commit every
// touched path in one commit, then publish per the configured mode. A failed
// transaction leaves the tree exactly as it was.
package txn

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/smallfab/smallfab/core/gitstore"
	"github.com/smallfab/smallfab/core/publish"
	"github.com/smallfab/smallfab/core/sferr"
)

// PublishMode selects how a successful commit is propagated to the remote.
type PublishMode int

const (
	// PublishOff never pushes.
	PublishOff PublishMode = iota

	// PublishSync pushes on the critical path; a failed push aborts the
	// transaction and surfaces the error.
	PublishSync

	// PublishAsync schedules an immediate background push; failures are
	// logged, never surfaced.
	PublishAsync

	// PublishCoalesced schedules a background push after a quiet period;
	// mutations inside the window share one eventual push.
	PublishCoalesced
)

// Default tuning.
const (
	DefaultSyncTTL     = 30 * time.Second
	DefaultQuietPeriod = 5 * time.Second
)

// Config tunes a Runner.
type Config struct {
	// Remote names the remote to sync against. Defaults to origin.
	Remote string

	// Publish selects the publish mode. Defaults to PublishOff.
	Publish PublishMode

	// SyncTTL rate-limits pre-mutation remote checks: within the TTL of
	// the last check the pull is skipped. Zero checks every time.
	SyncTTL time.Duration

	// QuietPeriod is the coalescing window for PublishCoalesced.
	// Defaults to DefaultQuietPeriod.
	QuietPeriod time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// lockRegistry hands out one mutex per working tree, keyed by its cleaned
// absolute path, so several Runners over the same store still serialize.
var lockRegistry = struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}{locks: make(map[string]*sync.Mutex)}

func lockFor(root string) *sync.Mutex {
	key := filepath.Clean(root)
	lockRegistry.mu.Lock()
	defer lockRegistry.mu.Unlock()
	if l, ok := lockRegistry.locks[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	lockRegistry.locks[key] = l
	return l
}

// Runner executes mutation transactions against one store.
type Runner struct {
	git       *gitstore.Store
	cfg       Config
	lock      *sync.Mutex
	scheduler *publish.Scheduler
	logger    *slog.Logger

	syncMu    sync.Mutex
	lastCheck time.Time
}

// NewRunner creates a transaction runner over the store.
func NewRunner(git *gitstore.Store, cfg Config) *Runner {
	if cfg.Remote == "" {
		cfg.Remote = gitstore.DefaultRemote
	}
	if cfg.QuietPeriod <= 0 {
		cfg.QuietPeriod = DefaultQuietPeriod
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		git:    git,
		cfg:    cfg,
		lock:   lockFor(git.Root()),
		logger: logger,
	}
	if cfg.Publish == PublishAsync || cfg.Publish == PublishCoalesced {
		r.scheduler = publish.NewScheduler(git, cfg.Remote, logger)
	}
	return r
}

// Result reports a completed transaction.
type Result struct {
	// Commit is the created commit hash, empty when the mutation produced
	// no changes.
	Commit string

	// Pushed reports whether a synchronous push reached the remote.
	Pushed bool
}

// Mutation applies one logical write to the working tree and describes what
// it touched. It must not commit.
type Mutation func() (*gitstore.ChangeSet, error)

// Run executes one mutation transaction. The author, when non-nil, is the
// commit identity for this call only; no identity state outlives the
// transaction. Any failure restores the working tree before returning.
func (r *Runner) Run(ctx context.Context, author *gitstore.Author, fn Mutation) (*Result, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if err := r.preSync(ctx); err != nil {
		return nil, err
	}

	headBefore, _ := r.git.Head()

	change, err := fn()
	if err != nil {
		r.restore(headBefore)
		return nil, err
	}
	if change == nil || len(change.Paths) == 0 {
		return &Result{}, nil
	}

	hash, err := r.git.Commit(change.Paths, change.Message(), author)
	if err != nil {
		r.restore(headBefore)
		return nil, sferr.Wrap(sferr.KindConflict, err, "commit failed")
	}
	if hash == plumbing.ZeroHash {
		return &Result{}, nil
	}

	result := &Result{Commit: hash.String()}
	switch r.cfg.Publish {
	case PublishSync:
		if r.git.HasRemote(r.cfg.Remote) {
			if err := r.git.Push(ctx, r.cfg.Remote); err != nil {
				r.restore(headBefore)
				return nil, err
			}
			result.Pushed = true
		}
	case PublishAsync:
		r.scheduler.Enqueue(0)
	case PublishCoalesced:
		r.scheduler.Enqueue(r.cfg.QuietPeriod)
	}
	return result, nil
}

// preSync fast-forwards from the remote when one exists and the last check
// is older than the TTL. A tree that cannot fast-forward cleanly fails the
// transaction rather than diverge silently.
func (r *Runner) preSync(ctx context.Context) error {
	if !r.git.HasRemote(r.cfg.Remote) {
		return nil
	}
	r.syncMu.Lock()
	due := r.cfg.SyncTTL <= 0 || time.Since(r.lastCheck) >= r.cfg.SyncTTL
	if due {
		r.lastCheck = time.Now()
	}
	r.syncMu.Unlock()
	if !due {
		return nil
	}

	behind, err := r.git.IsBehind(ctx, r.cfg.Remote)
	if err != nil {
		return err
	}
	if !behind {
		return nil
	}
	clean, err := r.git.IsClean()
	if err != nil {
		return err
	}
	if !clean {
		return sferr.Conflict("remote %s is ahead but the local tree has uncommitted changes", r.cfg.Remote)
	}
	return r.git.PullFastForward(ctx, r.cfg.Remote)
}

// restore puts the tree back to the pre-transaction state: drop any commit
// made during the transaction, then discard uncommitted residue.
func (r *Runner) restore(headBefore plumbing.Hash) {
	if headBefore != plumbing.ZeroHash {
		if head, err := r.git.Head(); err == nil && head != headBefore {
			if err := r.git.ResetTo(headBefore); err != nil {
				r.logger.Error("failed to roll back to pre-transaction commit", "error", err)
			}
		}
	}
	if err := r.git.ResetHard(); err != nil {
		r.logger.Error("failed to restore working tree after aborted transaction", "error", err)
	}
}

// Close flushes any pending background publish. Call on shutdown so
// committed-but-unpushed work is not lost.
func (r *Runner) Close() {
	if r.scheduler != nil {
		r.scheduler.Close()
	}
}
