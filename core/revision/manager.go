// Package revision manages immutable, content-hashed snapshots of a part's
// subtree. A snapshot is cut as a draft, optionally released later; the
// released pointer at entities/<sfid>/refs/released designates the official
// revision. Once cut, snapshot artifact bytes never change.
package revision

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/smallfab/smallfab/core/bom"
	"github.com/smallfab/smallfab/core/config"
	"github.com/smallfab/smallfab/core/entity"
	"github.com/smallfab/smallfab/core/gitstore"
	"github.com/smallfab/smallfab/core/sferr"
	"github.com/smallfab/smallfab/core/sfid"
)

// Snapshot status values.
const (
	StatusDraft    = "draft"
	StatusReleased = "released"
)

// Snapshot layout inside an entity directory.
const (
	RevisionsDir = "revisions"
	RefsDir      = "refs"
	ReleasedRef  = "released"
	MetaFile     = "meta.yml"
	TreeFile     = "bom_tree.yml"
)

// TreeFormat versions the persisted resolved-tree document.
const TreeFormat = "bom_tree.v1"

var labelPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Manager cuts and releases revision snapshots for one store.
type Manager struct {
	git      *gitstore.Store
	entities *entity.Store
	resolver *bom.Resolver
	logger   *slog.Logger
}

// NewManager creates a revision manager. It owns a resolver wired back to
// itself so snapshots consistently cross-reference each other.
func NewManager(git *gitstore.Store, entities *entity.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{git: git, entities: entities, logger: logger}
	m.resolver = bom.NewResolver(entities, m, logger)
	return m
}

// Resolver returns the tree resolver bound to this manager's snapshots.
func (m *Manager) Resolver() *bom.Resolver {
	return m.resolver
}

func revisionsPath(id sfid.ID) string {
	return path.Join(entity.DirOf(id), RevisionsDir)
}

func snapshotPath(id sfid.ID, label string) string {
	return path.Join(revisionsPath(id), label)
}

func metaPath(id sfid.ID, label string) string {
	return path.Join(snapshotPath(id, label), MetaFile)
}

func releasedPath(id sfid.ID) string {
	return path.Join(entity.DirOf(id), RefsDir, ReleasedRef)
}

// ReleasedLabel returns the record's current released pointer.
func (m *Manager) ReleasedLabel(id sfid.ID) (string, bool) {
	data, err := m.git.ReadFile(releasedPath(id))
	if err != nil {
		return "", false
	}
	label := strings.TrimSpace(string(data))
	return label, label != ""
}

// HasSnapshot reports whether a snapshot exists under the label.
func (m *Manager) HasSnapshot(id sfid.ID, label string) bool {
	return m.git.Exists(metaPath(id, label))
}

// SnapshotRecord reads the immutable record copy inside a snapshot.
func (m *Manager) SnapshotRecord(id sfid.ID, label string) (*entity.Record, error) {
	data, err := m.git.ReadFile(path.Join(snapshotPath(id, label), entity.RecordFile))
	if err != nil {
		return nil, err
	}
	return entity.Decode(id, data)
}

// Info summarizes a record's revision state.
type Info struct {
	// Released is the current released pointer, empty if never released.
	Released string `yaml:"rev,omitempty"`

	Revisions []Meta `yaml:"revisions"`
}

// List returns the record's revision state, labels sorted numerically first.
func (m *Manager) List(rawID string) (*Info, error) {
	id, err := sfid.Parse(rawID)
	if err != nil {
		return nil, err
	}
	if !m.git.Exists(entity.FileOf(id)) {
		return nil, sferr.NotFound("entity %s not found", id)
	}

	labels, err := m.git.ListSubdirs(revisionsPath(id))
	if err != nil {
		return nil, err
	}
	info := &Info{Revisions: []Meta{}}
	for _, label := range labels {
		meta, err := m.readMeta(id, label)
		if err != nil {
			m.logger.Warn("skipping unreadable revision meta", "sfid", id, "rev", label, "error", err)
			continue
		}
		info.Revisions = append(info.Revisions, *meta)
	}
	sortMetas(info.Revisions)
	if label, ok := m.ReleasedLabel(id); ok {
		info.Released = label
	}
	return info, nil
}

func (m *Manager) readMeta(id sfid.ID, label string) (*Meta, error) {
	data, err := m.git.ReadFile(metaPath(id, label))
	if err != nil {
		return nil, err
	}
	var meta Meta
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	if meta.Rev == "" {
		meta.Rev = label
	}
	return &meta, nil
}

// sortMetas orders numeric labels ascending first, then the rest
// lexicographically.
func sortMetas(metas []Meta) {
	sort.Slice(metas, func(i, j int) bool {
		ni, errI := strconv.Atoi(metas[i].Rev)
		nj, errJ := strconv.Atoi(metas[j].Rev)
		switch {
		case errI == nil && errJ == nil:
			return ni < nj
		case errI == nil:
			return true
		case errJ == nil:
			return false
		default:
			return metas[i].Rev < metas[j].Rev
		}
	})
}

// NextLabel picks the next implicit label by scanning only numeric existing
// labels and incrementing the max. Non-numeric labels never perturb the
// numeric sequence; the first numeric label is "1".
func (m *Manager) NextLabel(id sfid.ID) (string, error) {
	labels, err := m.git.ListSubdirs(revisionsPath(id))
	if err != nil {
		return "", err
	}
	max := 0
	for _, label := range labels {
		if n, err := strconv.Atoi(label); err == nil && n > max {
			max = n
		}
	}
	return strconv.Itoa(max + 1), nil
}

// CutResult reports the outcome of a cut: the new label plus the updated
// revision listing.
type CutResult struct {
	NewRev string `yaml:"new_rev"`
	Info   `yaml:",inline"`
}

// Cut creates an immutable snapshot of the part's subtree under the given
// label (implicit next numeric label when empty). The snapshot carries a
// copy of every file except prior revisions, the resolved BOM tree at this
// moment, and a hashed artifact manifest. Status starts as draft.
func (m *Manager) Cut(rawID, label, notes string) (*CutResult, *gitstore.ChangeSet, error) {
	id, err := sfid.Parse(rawID)
	if err != nil {
		return nil, nil, err
	}
	if !id.IsPart() {
		return nil, nil, sferr.Validation("entity %s is not a part; only parts have revisions", id)
	}
	rec, err := m.entities.Get(rawID)
	if err != nil {
		return nil, nil, err
	}

	if label == "" {
		label, err = m.NextLabel(id)
		if err != nil {
			return nil, nil, err
		}
	} else if !labelPattern.MatchString(label) {
		return nil, nil, sferr.Validation("revision label %q is not a safe directory name", label)
	}
	if m.git.Exists(snapshotPath(id, label)) {
		return nil, nil, sferr.AlreadyExists("revision %s already exists for %s", label, id)
	}

	snapDir := snapshotPath(id, label)
	var artifacts []Artifact

	err = m.git.WalkFiles(entity.DirOf(id), []string{RevisionsDir}, func(rel string) error {
		data, err := m.git.ReadFile(path.Join(entity.DirOf(id), rel))
		if err != nil {
			return err
		}
		if err := m.git.WriteFile(path.Join(snapDir, rel), data); err != nil {
			return err
		}
		artifacts = append(artifacts, Artifact{
			Path:   rel,
			SHA256: hashBytes(data),
			Role:   classifyRole(rel),
		})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	// Resolve the tree from the record as copied, applying the same
	// resolution rule as live queries, so snapshots cross-reference the
	// snapshots their lines were pinned to at cut time.
	nodes, err := m.resolver.ResolveFromRecord(rec, -1)
	if err != nil {
		return nil, nil, err
	}
	doc := TreeDoc{
		Format:      TreeFormat,
		Root:        id.String(),
		Rev:         label,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Nodes:       nodes,
	}
	treeData, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, nil, err
	}
	if err := m.git.WriteFile(path.Join(snapDir, TreeFile), treeData); err != nil {
		return nil, nil, err
	}
	artifacts = append(artifacts, Artifact{
		Path:   TreeFile,
		SHA256: hashBytes(treeData),
		Role:   RoleBOMTree,
	})

	meta := Meta{
		Rev:        label,
		Status:     StatusDraft,
		CutAt:      time.Now().UTC().Format(time.RFC3339),
		Notes:      notes,
		Provenance: newProvenance(),
		Artifacts:  artifacts,
	}
	if err := m.writeMeta(id, label, &meta); err != nil {
		return nil, nil, err
	}

	info, err := m.List(rawID)
	if err != nil {
		return nil, nil, err
	}
	result := &CutResult{NewRev: label, Info: *info}
	change := &gitstore.ChangeSet{
		Paths:   []string{snapDir},
		Summary: fmt.Sprintf("Cut revision %s of %s", label, id),
		SFIDs:   []string{id.String()},
	}
	return result, change, nil
}

// Bump cuts a snapshot under the next numeric label, left as draft.
func (m *Manager) Bump(rawID, notes string) (*CutResult, *gitstore.ChangeSet, error) {
	return m.Cut(rawID, "", notes)
}

// Release marks an existing snapshot released and moves the released pointer
// to its label. Artifact bytes and their recorded hashes are never touched;
// only status and release metadata transition.
func (m *Manager) Release(rawID, label string, releasedAt time.Time, notes string) (*Info, *gitstore.ChangeSet, error) {
	id, err := sfid.Parse(rawID)
	if err != nil {
		return nil, nil, err
	}
	meta, err := m.readMeta(id, label)
	if err != nil {
		return nil, nil, sferr.NotFound("revision %s not found for %s", label, id)
	}

	if releasedAt.IsZero() {
		releasedAt = time.Now().UTC()
	}
	meta.Status = StatusReleased
	meta.ReleasedAt = releasedAt.UTC().Format(time.RFC3339)
	if notes != "" {
		meta.ReleaseNotes = notes
	}
	if err := m.writeMeta(id, label, meta); err != nil {
		return nil, nil, err
	}
	if err := m.git.WriteFile(releasedPath(id), []byte(label+"\n")); err != nil {
		return nil, nil, err
	}

	info, err := m.List(rawID)
	if err != nil {
		return nil, nil, err
	}
	change := &gitstore.ChangeSet{
		Paths:   []string{metaPath(id, label), releasedPath(id)},
		Summary: fmt.Sprintf("Released revision %s of %s", label, id),
		SFIDs:   []string{id.String()},
	}
	return info, change, nil
}

func (m *Manager) writeMeta(id sfid.ID, label string, meta *Meta) error {
	data, err := yaml.Marshal(meta)
	if err != nil {
		return err
	}
	return m.git.WriteFile(metaPath(id, label), data)
}

func newProvenance() Provenance {
	host, _ := os.Hostname()
	return Provenance{
		ID:   uuid.NewString(),
		Host: host,
		Tool: "smallfab/" + config.ToolVersion,
	}
}
