package gitstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallfab/smallfab/core/sferr"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Init(t.TempDir())
	require.NoError(t, err)
	return s
}

// newBareRemote creates a bare repository and wires it as the store's
// origin.
func newBareRemote(t *testing.T, s *Store) string {
	t.Helper()
	bare := t.TempDir()
	_, err := gogit.PlainInit(bare, true)
	require.NoError(t, err)
	require.NoError(t, s.AddRemote(DefaultRemote, bare))
	return bare
}

func commitFile(t *testing.T, s *Store, rel, content, message string) plumbing.Hash {
	t.Helper()
	require.NoError(t, s.WriteFile(rel, []byte(content)))
	hash, err := s.Commit([]string{rel}, message, nil)
	require.NoError(t, err)
	require.NotEqual(t, plumbing.ZeroHash, hash)
	return hash
}

func TestInitAndReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Init(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, s.Root())

	// Init on an existing repository opens it.
	again, err := Init(dir)
	require.NoError(t, err)
	assert.Equal(t, s.Root(), again.Root())

	opened, err := Open(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, opened.Root())
}

func TestOpenErrors(t *testing.T) {
	_, err := Open("")
	assert.ErrorIs(t, err, ErrEmptyPath)

	_, err = Open(t.TempDir())
	assert.ErrorIs(t, err, ErrNotRepository)
}

func TestPathTraversalRejected(t *testing.T) {
	s := newStore(t)
	_, err := s.ReadFile("../outside.yml")
	assert.ErrorIs(t, err, ErrPathEscapes)

	err = s.WriteFile("a/../../outside.yml", []byte("x"))
	assert.ErrorIs(t, err, ErrPathEscapes)
}

func TestReadWriteListing(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.WriteFile("entities/p_bolt/entity.yml", []byte("name: bolt\n")))
	require.NoError(t, s.WriteFile("entities/p_nut/entity.yml", []byte("name: nut\n")))
	require.NoError(t, s.WriteFile("entities/stray.txt", []byte("x")))

	data, err := s.ReadFile("entities/p_bolt/entity.yml")
	require.NoError(t, err)
	assert.Equal(t, "name: bolt\n", string(data))

	_, err = s.ReadFile("entities/p_missing/entity.yml")
	require.Error(t, err)
	assert.True(t, sferr.IsKind(err, sferr.KindNotFound))

	subdirs, err := s.ListSubdirs("entities")
	require.NoError(t, err)
	assert.Equal(t, []string{"p_bolt", "p_nut"}, subdirs)

	all, err := s.ListDir("entities")
	require.NoError(t, err)
	assert.Equal(t, []string{"p_bolt", "p_nut", "stray.txt"}, all)

	// Missing directories list as empty, not as errors.
	none, err := s.ListSubdirs("nope")
	require.NoError(t, err)
	assert.Empty(t, none)

	assert.True(t, s.Exists("entities/p_bolt"))
	assert.False(t, s.Exists("entities/p_washer"))
}

func TestCommitAndHead(t *testing.T) {
	s := newStore(t)

	_, err := s.Head()
	assert.ErrorIs(t, err, ErrNoCommits)

	hash := commitFile(t, s, "entities/p_bolt/entity.yml", "name: bolt\n", "add bolt")
	head, err := s.Head()
	require.NoError(t, err)
	assert.Equal(t, hash, head)

	clean, err := s.IsClean()
	require.NoError(t, err)
	assert.True(t, clean)

	count, err := s.CommitCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCommitNoChangesReturnsZeroHash(t *testing.T) {
	s := newStore(t)
	commitFile(t, s, "a.yml", "x: 1\n", "first")

	hash, err := s.Commit([]string{"a.yml"}, "no-op", nil)
	require.NoError(t, err)
	assert.Equal(t, plumbing.ZeroHash, hash)

	count, err := s.CommitCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCommitAuthor(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.WriteFile("a.yml", []byte("x: 1\n")))
	_, err := s.Commit([]string{"a.yml"}, "first", &Author{Name: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)

	commits, err := s.Log(1)
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, "Ada", commits[0].AuthorName)
	assert.Equal(t, "ada@example.com", commits[0].AuthorEmail)

	// Nil author falls back to the service identity when the repo has none.
	require.NoError(t, s.WriteFile("b.yml", []byte("y: 2\n")))
	_, err = s.Commit([]string{"b.yml"}, "second", nil)
	require.NoError(t, err)

	commits, err = s.Log(1)
	require.NoError(t, err)
	assert.Equal(t, "smallfab", commits[0].AuthorName)
}

func TestCommitStagesDirectories(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.WriteFile("entities/p_bolt/entity.yml", []byte("name: bolt\n")))
	require.NoError(t, s.WriteFile("entities/p_bolt/notes.md", []byte("notes\n")))

	_, err := s.Commit([]string{"entities/p_bolt"}, "add bolt dir", nil)
	require.NoError(t, err)

	clean, err := s.IsClean()
	require.NoError(t, err)
	assert.True(t, clean)
}

func TestResetHardDiscardsEverything(t *testing.T) {
	s := newStore(t)
	commitFile(t, s, "a.yml", "x: 1\n", "first")

	require.NoError(t, s.WriteFile("a.yml", []byte("x: 2\n")))
	require.NoError(t, s.WriteFile("untracked/new.yml", []byte("y: 1\n")))
	require.NoError(t, s.ResetHard())

	data, err := s.ReadFile("a.yml")
	require.NoError(t, err)
	assert.Equal(t, "x: 1\n", string(data))
	assert.False(t, s.Exists("untracked/new.yml"))

	clean, err := s.IsClean()
	require.NoError(t, err)
	assert.True(t, clean)
}

func TestResetToDropsLaterCommits(t *testing.T) {
	s := newStore(t)
	first := commitFile(t, s, "a.yml", "x: 1\n", "first")
	commitFile(t, s, "a.yml", "x: 2\n", "second")

	require.NoError(t, s.ResetTo(first))

	head, err := s.Head()
	require.NoError(t, err)
	assert.Equal(t, first, head)

	data, err := s.ReadFile("a.yml")
	require.NoError(t, err)
	assert.Equal(t, "x: 1\n", string(data))
}

func TestLogLimitAndFiles(t *testing.T) {
	s := newStore(t)
	commitFile(t, s, "entities/p_bolt/entity.yml", "name: bolt\n", "add bolt")
	commitFile(t, s, "entities/p_nut/entity.yml", "name: nut\n", "add nut")
	commitFile(t, s, "README.md", "readme\n", "docs")

	commits, err := s.Log(2)
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, "docs", commits[0].Message)
	assert.Equal(t, []string{"README.md"}, commits[0].Files)
	assert.Equal(t, []string{"entities/p_nut/entity.yml"}, commits[1].Files)

	all, err := s.Log(0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestPushAndRemoteState(t *testing.T) {
	s := newStore(t)
	assert.False(t, s.HasRemote(DefaultRemote))
	bare := newBareRemote(t, s)
	assert.True(t, s.HasRemote(DefaultRemote))

	commitFile(t, s, "a.yml", "x: 1\n", "first")
	require.NoError(t, s.Push(context.Background(), DefaultRemote))

	// Pushing again with nothing new is not an error.
	require.NoError(t, s.Push(context.Background(), DefaultRemote))

	remote, err := gogit.PlainOpen(bare)
	require.NoError(t, err)
	ref, err := remote.Head()
	require.NoError(t, err)
	head, err := s.Head()
	require.NoError(t, err)
	assert.Equal(t, head, ref.Hash())
}

func TestIsBehindAndPull(t *testing.T) {
	// Writer pushes to a shared bare remote; reader clones it.
	writer := newStore(t)
	bare := newBareRemote(t, writer)
	commitFile(t, writer, "a.yml", "x: 1\n", "first")
	require.NoError(t, writer.Push(context.Background(), DefaultRemote))

	readerDir := t.TempDir()
	_, err := gogit.PlainClone(readerDir, false, &gogit.CloneOptions{URL: bare})
	require.NoError(t, err)
	reader, err := Open(readerDir)
	require.NoError(t, err)

	behind, err := reader.IsBehind(context.Background(), DefaultRemote)
	require.NoError(t, err)
	assert.False(t, behind)

	commitFile(t, writer, "a.yml", "x: 2\n", "second")
	require.NoError(t, writer.Push(context.Background(), DefaultRemote))

	behind, err = reader.IsBehind(context.Background(), DefaultRemote)
	require.NoError(t, err)
	assert.True(t, behind)

	require.NoError(t, reader.PullFastForward(context.Background(), DefaultRemote))
	behind, err = reader.IsBehind(context.Background(), DefaultRemote)
	require.NoError(t, err)
	assert.False(t, behind)

	writerHead, err := writer.Head()
	require.NoError(t, err)
	readerHead, err := reader.Head()
	require.NoError(t, err)
	assert.Equal(t, writerHead, readerHead)
}

func TestIsBehindEmptyRemote(t *testing.T) {
	s := newStore(t)
	newBareRemote(t, s)
	commitFile(t, s, "a.yml", "x: 1\n", "first")

	behind, err := s.IsBehind(context.Background(), DefaultRemote)
	require.NoError(t, err)
	assert.False(t, behind)
}

func TestPushFailureIsConflict(t *testing.T) {
	s := newStore(t)
	missing := filepath.Join(t.TempDir(), "gone")
	require.NoError(t, s.AddRemote(DefaultRemote, missing))
	commitFile(t, s, "a.yml", "x: 1\n", "first")

	err := s.Push(context.Background(), DefaultRemote)
	require.Error(t, err)
	assert.True(t, sferr.IsKind(err, sferr.KindConflict))
}

func TestWalkFiles(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.WriteFile("entities/p_bolt/entity.yml", []byte("name: bolt\n")))
	require.NoError(t, s.WriteFile("entities/p_bolt/refs/released", []byte("1\n")))
	require.NoError(t, s.WriteFile("entities/p_bolt/revisions/1/meta.yml", []byte("rev: 1\n")))
	require.NoError(t, s.WriteFile("entities/p_bolt/docs/drawing.dxf", []byte("dxf")))

	var seen []string
	err := s.WalkFiles("entities/p_bolt", []string{"revisions"}, func(rel string) error {
		seen = append(seen, rel)
		return nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"entity.yml", "refs/released", "docs/drawing.dxf"}, seen)

	// Missing root walks nothing.
	err = s.WalkFiles("entities/p_missing", nil, func(string) error {
		t.Fatal("unexpected visit")
		return nil
	})
	require.NoError(t, err)
}

func TestRemoveMissingIsNoError(t *testing.T) {
	s := newStore(t)
	assert.NoError(t, s.Remove("does/not/exist"))
	_ = os.MkdirAll(filepath.Join(s.Root(), "dir"), 0o755)
	assert.NoError(t, s.Remove("dir"))
}
