// Package gitstore wraps go-git/v5 with the small set of primitives the
// record store consumes: file read/write/list, atomic multi-path commit with
// message and author, and pull/push against a remote. One Store owns one
// working tree.
package gitstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/smallfab/smallfab/core/sferr"
)

// Common errors returned by Store operations.
var (
	ErrEmptyPath      = errors.New("store path cannot be empty")
	ErrNotRepository  = errors.New("path is not a git repository")
	ErrPathEscapes    = errors.New("path escapes the working tree")
	ErrNoCommits      = errors.New("repository has no commits")
	ErrRemoteNotFound = errors.New("remote not found")
)

// DefaultRemote is the remote name used when none is configured.
const DefaultRemote = "origin"

// Author identifies the person a commit is attributed to. It is threaded
// explicitly through every commit; there is no ambient identity state.
type Author struct {
	Name  string
	Email string
}

// Store provides thread-safe access to one git working tree.
type Store struct {
	root string
	repo *gogit.Repository
	mu   sync.RWMutex
}

// Open opens an existing repository at root.
func Open(root string) (*Store, error) {
	if root == "" {
		return nil, ErrEmptyPath
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve store path: %w", err)
	}
	repo, err := gogit.PlainOpen(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotRepository, abs)
	}
	return &Store{root: abs, repo: repo}, nil
}

// Init creates a new repository at root, creating the directory if needed.
func Init(root string) (*Store, error) {
	if root == "" {
		return nil, ErrEmptyPath
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve store path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	repo, err := gogit.PlainInit(abs, false)
	if err != nil {
		if errors.Is(err, gogit.ErrRepositoryAlreadyExists) {
			return Open(abs)
		}
		return nil, err
	}
	return &Store{root: abs, repo: repo}, nil
}

// Root returns the absolute path of the working tree.
func (s *Store) Root() string {
	return s.root
}

// abs resolves rel against the root and rejects traversal outside it.
func (s *Store) abs(rel string) (string, error) {
	p := filepath.Join(s.root, filepath.FromSlash(rel))
	r, err := filepath.Rel(s.root, p)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", ErrPathEscapes
	}
	return p, nil
}

// ReadFile reads the file at the slash-separated path rel.
func (s *Store) ReadFile(rel string) ([]byte, error) {
	p, err := s.abs(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, sferr.Wrap(sferr.KindNotFound, err, "read %s", rel)
		}
		return nil, err
	}
	return data, nil
}

// WriteFile writes data to rel, creating parent directories as needed.
func (s *Store) WriteFile(rel string, data []byte) error {
	p, err := s.abs(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}

// Remove deletes the file or directory at rel. Missing paths are not an error.
func (s *Store) Remove(rel string) error {
	p, err := s.abs(rel)
	if err != nil {
		return err
	}
	return os.RemoveAll(p)
}

// Exists reports whether rel exists in the working tree.
func (s *Store) Exists(rel string) bool {
	p, err := s.abs(rel)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// ListDir returns the sorted entry names of the directory at rel. A missing
// directory yields an empty list.
func (s *Store) ListDir(rel string) ([]string, error) {
	p, err := s.abs(rel)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// ListSubdirs returns the sorted names of subdirectories of rel.
func (s *Store) ListSubdirs(rel string) ([]string, error) {
	p, err := s.abs(rel)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// IsClean reports whether the working tree has no uncommitted changes.
func (s *Store) IsClean() (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wt, err := s.repo.Worktree()
	if err != nil {
		return false, err
	}
	status, err := wt.Status()
	if err != nil {
		return false, err
	}
	return status.IsClean(), nil
}

// Commit stages the given working-tree paths and commits them with message.
// A nil author falls back to the repository's configured identity, then to a
// fixed service identity. Returns plumbing.ZeroHash without error when the
// staged paths carry no changes.
func (s *Store) Commit(paths []string, message string, author *Author) (plumbing.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wt, err := s.repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	for _, p := range paths {
		if _, err := s.abs(p); err != nil {
			return plumbing.ZeroHash, err
		}
		if _, err := wt.Add(filepath.FromSlash(p)); err != nil {
			return plumbing.ZeroHash, fmt.Errorf("stage %s: %w", p, err)
		}
	}

	status, err := wt.Status()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if status.IsClean() {
		return plumbing.ZeroHash, nil
	}

	sig := s.signature(author)
	hash, err := wt.Commit(message, &gogit.CommitOptions{Author: sig})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("commit: %w", err)
	}
	return hash, nil
}

func (s *Store) signature(author *Author) *object.Signature {
	now := time.Now()
	if author != nil && author.Name != "" {
		email := author.Email
		if email == "" {
			email = "unknown@localhost"
		}
		return &object.Signature{Name: author.Name, Email: email, When: now}
	}
	if cfg, err := s.repo.Config(); err == nil && cfg.User.Name != "" {
		return &object.Signature{Name: cfg.User.Name, Email: cfg.User.Email, When: now}
	}
	return &object.Signature{Name: "smallfab", Email: "smallfab@localhost", When: now}
}

// Head returns the current HEAD commit hash.
func (s *Store) Head() (plumbing.Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, err := s.repo.Head()
	if err != nil {
		return plumbing.ZeroHash, ErrNoCommits
	}
	return ref.Hash(), nil
}

// CommitCount returns the number of commits reachable from HEAD.
func (s *Store) CommitCount() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, err := s.repo.Head()
	if err != nil {
		return 0, nil
	}
	iter, err := s.repo.Log(&gogit.LogOptions{From: ref.Hash()})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	count := 0
	err = iter.ForEach(func(*object.Commit) error {
		count++
		return nil
	})
	return count, err
}

// ResetHard discards every uncommitted change, tracked or not, restoring the
// working tree to HEAD. Used to guarantee failed mutations leave no residue.
func (s *Store) ResetHard() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wt, err := s.repo.Worktree()
	if err != nil {
		return err
	}
	if ref, err := s.repo.Head(); err == nil {
		if err := wt.Reset(&gogit.ResetOptions{Mode: gogit.HardReset, Commit: ref.Hash()}); err != nil {
			return err
		}
	}
	return wt.Clean(&gogit.CleanOptions{Dir: true})
}

// ResetTo moves the current branch back to hash, discarding later commits
// and any uncommitted changes.
func (s *Store) ResetTo(hash plumbing.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wt, err := s.repo.Worktree()
	if err != nil {
		return err
	}
	return wt.Reset(&gogit.ResetOptions{Mode: gogit.HardReset, Commit: hash})
}

// HasRemote reports whether the named remote is configured.
func (s *Store) HasRemote(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := s.repo.Remote(name)
	return err == nil
}

// AddRemote configures a remote with the given URL.
func (s *Store) AddRemote(name, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.repo.CreateRemote(&gitconfig.RemoteConfig{Name: name, URLs: []string{url}})
	return err
}

// IsBehind fetches the remote and reports whether it has commits the local
// branch lacks. Diverged histories also report behind; the subsequent
// fast-forward pull surfaces the conflict.
func (s *Store) IsBehind(ctx context.Context, remote string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.repo.FetchContext(ctx, &gogit.FetchOptions{RemoteName: remote})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		if errors.Is(err, transport.ErrEmptyRemoteRepository) {
			return false, nil
		}
		return false, sferr.Wrap(sferr.KindConflict, err, "fetch %s", remote)
	}

	head, err := s.repo.Head()
	if err != nil {
		// No local commits yet; anything on the remote counts as behind.
		return true, nil
	}
	remoteRef, err := s.repo.Reference(plumbing.NewRemoteReferenceName(remote, head.Name().Short()), true)
	if err != nil {
		return false, nil
	}
	if remoteRef.Hash() == head.Hash() {
		return false, nil
	}
	localCommit, err := s.repo.CommitObject(head.Hash())
	if err != nil {
		return false, err
	}
	remoteCommit, err := s.repo.CommitObject(remoteRef.Hash())
	if err != nil {
		return false, err
	}
	// Remote ahead of us, or diverged: either way a pull is needed.
	ancestor, err := remoteCommit.IsAncestor(localCommit)
	if err != nil {
		return false, err
	}
	return !ancestor, nil
}

// PullFastForward pulls from the remote, failing with a conflict error on
// anything that is not a fast-forward.
func (s *Store) PullFastForward(ctx context.Context, remote string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wt, err := s.repo.Worktree()
	if err != nil {
		return err
	}
	err = wt.PullContext(ctx, &gogit.PullOptions{RemoteName: remote})
	switch {
	case err == nil, errors.Is(err, gogit.NoErrAlreadyUpToDate):
		return nil
	case errors.Is(err, gogit.ErrNonFastForwardUpdate):
		return sferr.Wrap(sferr.KindConflict, err, "pull from %s is not a fast-forward", remote)
	default:
		return sferr.Wrap(sferr.KindConflict, err, "pull from %s", remote)
	}
}

// Push publishes the current branch to the remote.
func (s *Store) Push(ctx context.Context, remote string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.repo.PushContext(ctx, &gogit.PushOptions{RemoteName: remote})
	switch {
	case err == nil, errors.Is(err, gogit.NoErrAlreadyUpToDate):
		return nil
	default:
		return sferr.Wrap(sferr.KindConflict, err, "push to %s", remote)
	}
}
