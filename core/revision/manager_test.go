package revision

import (
	"path"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/smallfab/smallfab/core/config"
	"github.com/smallfab/smallfab/core/entity"
	"github.com/smallfab/smallfab/core/gitstore"
	"github.com/smallfab/smallfab/core/sferr"
	"github.com/smallfab/smallfab/core/sfid"
)

func newTestManager(t *testing.T) (*Manager, *entity.Store) {
	t.Helper()
	root := t.TempDir()
	git, err := gitstore.Init(root)
	require.NoError(t, err)
	_, err = config.Scaffold(root)
	require.NoError(t, err)
	store, err := entity.NewStore(git, entity.StoreConfig{})
	require.NoError(t, err)
	return NewManager(git, store, nil), store
}

func createPart(t *testing.T, store *entity.Store, id, name string) {
	t.Helper()
	_, _, err := store.Create(id, map[string]any{"name": name})
	require.NoError(t, err)
}

func TestBumpSequence(t *testing.T) {
	mgr, store := newTestManager(t)
	createPart(t, store, "p_bolt", "bolt")

	result, change, err := mgr.Bump("p_bolt", "")
	require.NoError(t, err)
	assert.Equal(t, "1", result.NewRev)
	require.NotNil(t, change)
	assert.Equal(t, []string{"entities/p_bolt/revisions/1"}, change.Paths)

	result, _, err = mgr.Bump("p_bolt", "")
	require.NoError(t, err)
	assert.Equal(t, "2", result.NewRev)
}

func TestBumpIgnoresNonNumericLabels(t *testing.T) {
	mgr, store := newTestManager(t)
	createPart(t, store, "p_bolt", "bolt")

	_, _, err := mgr.Cut("p_bolt", "protoA", "")
	require.NoError(t, err)

	result, _, err := mgr.Bump("p_bolt", "")
	require.NoError(t, err)
	assert.Equal(t, "1", result.NewRev)

	result, _, err = mgr.Bump("p_bolt", "")
	require.NoError(t, err)
	assert.Equal(t, "2", result.NewRev)
}

func TestCutValidation(t *testing.T) {
	mgr, store := newTestManager(t)
	createPart(t, store, "p_bolt", "bolt")
	_, _, err := store.Create("l_bin", nil)
	require.NoError(t, err)

	t.Run("non-part", func(t *testing.T) {
		_, _, err := mgr.Cut("l_bin", "1", "")
		assert.True(t, sferr.IsKind(err, sferr.KindValidationFailed))
	})
	t.Run("missing entity", func(t *testing.T) {
		_, _, err := mgr.Cut("p_absent", "1", "")
		assert.True(t, sferr.IsKind(err, sferr.KindNotFound))
	})
	t.Run("unsafe label", func(t *testing.T) {
		_, _, err := mgr.Cut("p_bolt", "../escape", "")
		assert.True(t, sferr.IsKind(err, sferr.KindValidationFailed))
	})
	t.Run("duplicate label", func(t *testing.T) {
		_, _, err := mgr.Cut("p_bolt", "a", "")
		require.NoError(t, err)
		_, _, err = mgr.Cut("p_bolt", "a", "")
		assert.True(t, sferr.IsKind(err, sferr.KindAlreadyExists))
	})
}

func TestCutSnapshotContents(t *testing.T) {
	mgr, store := newTestManager(t)
	createPart(t, store, "p_asm", "assembly")
	createPart(t, store, "p_bolt", "bolt")
	_, _, err := store.AddBOMLine("p_asm", entity.BOMLine{Use: "p_bolt", Qty: 4})
	require.NoError(t, err)
	require.NoError(t, store.Git().WriteFile("entities/p_asm/docs/outline.dxf", []byte("dxf")))

	result, _, err := mgr.Cut("p_asm", "", "first article")
	require.NoError(t, err)
	assert.Equal(t, "1", result.NewRev)

	id := sfid.MustParse("p_asm")
	snap := "entities/p_asm/revisions/1"
	git := store.Git()
	assert.True(t, git.Exists(path.Join(snap, entity.RecordFile)))
	assert.True(t, git.Exists(path.Join(snap, TreeFile)))
	assert.True(t, git.Exists(path.Join(snap, "docs/outline.dxf")))

	meta, err := mgr.readMeta(id, "1")
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, meta.Status)
	assert.Equal(t, "first article", meta.Notes)
	assert.NotEmpty(t, meta.CutAt)
	assert.NotEmpty(t, meta.Provenance.ID)
	assert.True(t, strings.HasPrefix(meta.Provenance.Tool, "smallfab/"))

	roles := map[string]ArtifactRole{}
	for _, a := range meta.Artifacts {
		roles[a.Path] = a.Role
		assert.Len(t, a.SHA256, 64)
	}
	assert.Equal(t, RoleEntity, roles[entity.RecordFile])
	assert.Equal(t, RoleBOMTree, roles[TreeFile])
	assert.Equal(t, RoleDrawing, roles["docs/outline.dxf"])

	// The embedded tree document reflects the BOM at cut time.
	data, err := git.ReadFile(path.Join(snap, TreeFile))
	require.NoError(t, err)
	var doc TreeDoc
	require.NoError(t, yaml.Unmarshal(data, &doc))
	assert.Equal(t, TreeFormat, doc.Format)
	assert.Equal(t, "p_asm", doc.Root)
	assert.Equal(t, "1", doc.Rev)
	require.Len(t, doc.Nodes, 1)
	assert.Equal(t, "p_bolt", doc.Nodes[0].Use)
}

func TestCutExcludesPriorRevisions(t *testing.T) {
	mgr, store := newTestManager(t)
	createPart(t, store, "p_bolt", "bolt")

	_, _, err := mgr.Bump("p_bolt", "")
	require.NoError(t, err)
	_, _, err = mgr.Bump("p_bolt", "")
	require.NoError(t, err)

	assert.False(t, store.Git().Exists("entities/p_bolt/revisions/2/revisions"))
}

func TestReleaseFlow(t *testing.T) {
	mgr, store := newTestManager(t)
	createPart(t, store, "p_bolt", "bolt")
	_, _, err := mgr.Cut("p_bolt", "1", "")
	require.NoError(t, err)

	id := sfid.MustParse("p_bolt")
	_, ok := mgr.ReleasedLabel(id)
	assert.False(t, ok)

	releasedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	info, change, err := mgr.Release("p_bolt", "1", releasedAt, "approved")
	require.NoError(t, err)
	assert.Equal(t, "1", info.Released)
	require.NotNil(t, change)
	assert.Contains(t, change.Paths, "entities/p_bolt/refs/released")

	label, ok := mgr.ReleasedLabel(id)
	require.True(t, ok)
	assert.Equal(t, "1", label)

	data, err := store.Git().ReadFile("entities/p_bolt/refs/released")
	require.NoError(t, err)
	assert.Equal(t, "1\n", string(data))

	meta, err := mgr.readMeta(id, "1")
	require.NoError(t, err)
	assert.Equal(t, StatusReleased, meta.Status)
	assert.Equal(t, "2026-03-01T12:00:00Z", meta.ReleasedAt)
	assert.Equal(t, "approved", meta.ReleaseNotes)
}

func TestReleaseDoesNotTouchArtifacts(t *testing.T) {
	mgr, store := newTestManager(t)
	createPart(t, store, "p_bolt", "bolt")
	_, _, err := mgr.Cut("p_bolt", "1", "")
	require.NoError(t, err)

	id := sfid.MustParse("p_bolt")
	before, err := mgr.readMeta(id, "1")
	require.NoError(t, err)

	_, _, err = mgr.Release("p_bolt", "1", time.Time{}, "")
	require.NoError(t, err)

	after, err := mgr.readMeta(id, "1")
	require.NoError(t, err)
	assert.Equal(t, before.Artifacts, after.Artifacts)

	// The snapshot record bytes are byte-identical pre- and post-release.
	rec, err := mgr.SnapshotRecord(id, "1")
	require.NoError(t, err)
	assert.Equal(t, "bolt", rec.Name())
}

func TestReleaseMissingLabel(t *testing.T) {
	mgr, store := newTestManager(t)
	createPart(t, store, "p_bolt", "bolt")

	_, _, err := mgr.Release("p_bolt", "9", time.Time{}, "")
	require.Error(t, err)
	assert.True(t, sferr.IsKind(err, sferr.KindNotFound))
}

func TestReleasePointerMoves(t *testing.T) {
	mgr, store := newTestManager(t)
	createPart(t, store, "p_bolt", "bolt")
	_, _, err := mgr.Cut("p_bolt", "1", "")
	require.NoError(t, err)
	_, _, err = mgr.Cut("p_bolt", "2", "")
	require.NoError(t, err)

	_, _, err = mgr.Release("p_bolt", "1", time.Time{}, "")
	require.NoError(t, err)
	_, _, err = mgr.Release("p_bolt", "2", time.Time{}, "")
	require.NoError(t, err)

	label, ok := mgr.ReleasedLabel(sfid.MustParse("p_bolt"))
	require.True(t, ok)
	assert.Equal(t, "2", label)

	// Both snapshots remain, both marked with their own status.
	info, err := mgr.List("p_bolt")
	require.NoError(t, err)
	require.Len(t, info.Revisions, 2)
	assert.Equal(t, StatusReleased, info.Revisions[0].Status)
	assert.Equal(t, StatusReleased, info.Revisions[1].Status)
}

func TestListOrdering(t *testing.T) {
	mgr, store := newTestManager(t)
	createPart(t, store, "p_bolt", "bolt")
	for _, label := range []string{"10", "2", "protoA", "1"} {
		_, _, err := mgr.Cut("p_bolt", label, "")
		require.NoError(t, err)
	}

	info, err := mgr.List("p_bolt")
	require.NoError(t, err)
	labels := make([]string, len(info.Revisions))
	for i, m := range info.Revisions {
		labels[i] = m.Rev
	}
	assert.Equal(t, []string{"1", "2", "10", "protoA"}, labels)
	assert.Empty(t, info.Released)
}

func TestListMissingEntity(t *testing.T) {
	mgr, _ := newTestManager(t)
	_, err := mgr.List("p_absent")
	require.Error(t, err)
	assert.True(t, sferr.IsKind(err, sferr.KindNotFound))
}

func TestHasSnapshot(t *testing.T) {
	mgr, store := newTestManager(t)
	createPart(t, store, "p_bolt", "bolt")
	id := sfid.MustParse("p_bolt")

	assert.False(t, mgr.HasSnapshot(id, "1"))
	_, _, err := mgr.Cut("p_bolt", "1", "")
	require.NoError(t, err)
	assert.True(t, mgr.HasSnapshot(id, "1"))
}

func TestClassifyRole(t *testing.T) {
	cases := map[string]ArtifactRole{
		"entity.yml":       RoleEntity,
		"refs/released":    RoleRef,
		"bom_tree.yml":     RoleBOMTree,
		"cad/bracket.step": RoleDrawing,
		"cad/bracket.dxf":  RoleDrawing,
		"img/photo.png":    RoleImage,
		"docs/spec.pdf":    RoleDoc,
		"misc/data.bin":    RoleFile,
	}
	for p, want := range cases {
		assert.Equal(t, want, classifyRole(p), p)
	}
}
