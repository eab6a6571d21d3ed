package publish

import (
	"context"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallfab/smallfab/core/gitstore"
)

func newSyncedPair(t *testing.T) (*gitstore.Store, string) {
	t.Helper()
	git, err := gitstore.Init(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, git.WriteFile("a.yml", []byte("x: 1\n")))
	_, err = git.Commit([]string{"a.yml"}, "first", nil)
	require.NoError(t, err)

	bare := t.TempDir()
	_, err = gogit.PlainInit(bare, true)
	require.NoError(t, err)
	require.NoError(t, git.AddRemote(gitstore.DefaultRemote, bare))
	require.NoError(t, git.Push(context.Background(), gitstore.DefaultRemote))
	return git, bare
}

func remoteHead(t *testing.T, bare string) plumbing.Hash {
	t.Helper()
	repo, err := gogit.PlainOpen(bare)
	require.NoError(t, err)
	ref, err := repo.Head()
	require.NoError(t, err)
	return ref.Hash()
}

func newCommit(t *testing.T, git *gitstore.Store, content string) plumbing.Hash {
	t.Helper()
	require.NoError(t, git.WriteFile("a.yml", []byte(content)))
	hash, err := git.Commit([]string{"a.yml"}, "update", nil)
	require.NoError(t, err)
	return hash
}

func TestSchedulerPushesAfterDelay(t *testing.T) {
	git, bare := newSyncedPair(t)
	s := NewScheduler(git, gitstore.DefaultRemote, nil)
	defer s.Close()

	hash := newCommit(t, git, "x: 2\n")
	s.Enqueue(10 * time.Millisecond)

	require.Eventually(t, func() bool {
		return remoteHead(t, bare) == hash
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSchedulerCoalescesToNewestRequest(t *testing.T) {
	git, bare := newSyncedPair(t)
	s := NewScheduler(git, gitstore.DefaultRemote, nil)
	defer s.Close()

	var hash plumbing.Hash
	// A burst of mutations, each rescheduling the pending push.
	for i := 0; i < 5; i++ {
		hash = newCommit(t, git, "x: "+string(rune('2'+i))+"\n")
		s.Enqueue(30 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return remoteHead(t, bare) == hash
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSchedulerFlush(t *testing.T) {
	git, bare := newSyncedPair(t)
	s := NewScheduler(git, gitstore.DefaultRemote, nil)
	defer s.Close()

	hash := newCommit(t, git, "x: 2\n")
	// The push is far in the future until the flush forces it.
	s.Enqueue(time.Hour)
	s.Flush()
	assert.Equal(t, hash, remoteHead(t, bare))
}

func TestSchedulerCloseFlushesPending(t *testing.T) {
	git, bare := newSyncedPair(t)
	s := NewScheduler(git, gitstore.DefaultRemote, nil)

	hash := newCommit(t, git, "x: 2\n")
	s.Enqueue(time.Hour)
	s.Close()
	assert.Equal(t, hash, remoteHead(t, bare))
}

func TestSchedulerNoRemoteIsHarmless(t *testing.T) {
	git, err := gitstore.Init(t.TempDir())
	require.NoError(t, err)
	s := NewScheduler(git, gitstore.DefaultRemote, nil)
	s.Enqueue(0)
	s.Flush()
	s.Close()
}

func TestSchedulerEnqueueAfterCloseIsNoop(t *testing.T) {
	git, _ := newSyncedPair(t)
	s := NewScheduler(git, gitstore.DefaultRemote, nil)
	s.Close()
	s.Enqueue(0)
	s.Flush()
}
