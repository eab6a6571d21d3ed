package revision

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"strings"

	"github.com/smallfab/smallfab/core/bom"
	"github.com/smallfab/smallfab/core/entity"
)

// ArtifactRole is the coarse classification of one snapshot file.
type ArtifactRole string

const (
	RoleEntity  ArtifactRole = "entity"
	RoleRef     ArtifactRole = "ref"
	RoleBOMTree ArtifactRole = "bom_tree"
	RoleDrawing ArtifactRole = "drawing"
	RoleImage   ArtifactRole = "image"
	RoleDoc     ArtifactRole = "doc"
	RoleFile    ArtifactRole = "file"
)

// Artifact records one snapshot file with its content hash.
type Artifact struct {
	Path   string       `yaml:"path"`
	SHA256 string       `yaml:"sha256"`
	Role   ArtifactRole `yaml:"role"`
}

// Provenance records best-effort origin information for a snapshot.
type Provenance struct {
	ID   string `yaml:"id"`
	Host string `yaml:"host,omitempty"`
	Tool string `yaml:"tool,omitempty"`
}

// Meta is the snapshot metadata document stored at
// entities/<sfid>/revisions/<label>/meta.yml.
type Meta struct {
	Rev          string     `yaml:"rev"`
	Status       string     `yaml:"status"`
	CutAt        string     `yaml:"cut_at,omitempty"`
	ReleasedAt   string     `yaml:"released_at,omitempty"`
	Notes        string     `yaml:"notes,omitempty"`
	ReleaseNotes string     `yaml:"release_notes,omitempty"`
	Provenance   Provenance `yaml:"provenance,omitempty"`
	Artifacts    []Artifact `yaml:"artifacts"`
}

// TreeDoc is the persisted resolved-BOM-tree document inside a snapshot.
type TreeDoc struct {
	Format      string     `yaml:"format"`
	Root        string     `yaml:"root"`
	Rev         string     `yaml:"rev"`
	GeneratedAt string     `yaml:"generated_at,omitempty"`
	Nodes       []bom.Node `yaml:"nodes"`
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// classifyRole maps a snapshot-relative path to its coarse artifact role.
func classifyRole(rel string) ArtifactRole {
	base := path.Base(rel)
	if base == entity.RecordFile {
		return RoleEntity
	}
	if strings.HasPrefix(rel, RefsDir+"/") {
		return RoleRef
	}
	if base == TreeFile {
		return RoleBOMTree
	}
	switch strings.ToLower(path.Ext(base)) {
	case ".dxf", ".dwg", ".svg", ".step", ".stp":
		return RoleDrawing
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp":
		return RoleImage
	case ".pdf", ".md", ".txt":
		return RoleDoc
	default:
		return RoleFile
	}
}
