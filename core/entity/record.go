// Package entity implements CRUD over canonical records stored one per
// identifier at entities/<sfid>/entity.yml. Identity is the directory name
// and is never duplicated inside the record's own fields.
package entity

import (
	"fmt"
	"path"

	"gopkg.in/yaml.v3"

	"github.com/smallfab/smallfab/core/sferr"
	"github.com/smallfab/smallfab/core/sfid"
)

// RecordFile is the canonical record file name inside an entity directory.
const RecordFile = "entity.yml"

// EntitiesDir is the root directory for all records.
const EntitiesDir = "entities"

// Record is one canonical record. Fields never contains the identifier.
type Record struct {
	ID     sfid.ID
	Fields map[string]any
}

// Name returns the record's display name, falling back to the identifier.
func (r *Record) Name() string {
	if v, ok := r.Fields["name"]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return r.ID.String()
}

// Retired reports whether the record has been retired.
func (r *Record) Retired() bool {
	v, ok := r.Fields["retired"]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// DirOf returns the slash path of the record's directory.
func DirOf(id sfid.ID) string {
	return path.Join(EntitiesDir, id.String())
}

// FileOf returns the slash path of the record's canonical file.
func FileOf(id sfid.ID) string {
	return path.Join(DirOf(id), RecordFile)
}

// Decode parses entity.yml bytes into a Record. Used by collaborators that
// read record copies from outside the live tree, such as revision snapshots.
func Decode(id sfid.ID, data []byte) (*Record, error) {
	return decodeRecord(id, data)
}

// decodeRecord parses entity.yml bytes into a Record. A stray "sfid" field
// inside the file is dropped; the directory name is authoritative.
func decodeRecord(id sfid.ID, data []byte) (*Record, error) {
	fields := map[string]any{}
	if err := yaml.Unmarshal(data, &fields); err != nil {
		return nil, sferr.Wrap(sferr.KindValidationFailed, err, "entity %s: invalid YAML", id)
	}
	delete(fields, "sfid")
	return &Record{ID: id, Fields: fields}, nil
}

// encodeRecord serializes fields to YAML, never including the identifier.
func encodeRecord(fields map[string]any) ([]byte, error) {
	clean := make(map[string]any, len(fields))
	for k, v := range fields {
		if k == "sfid" {
			continue
		}
		clean[k] = v
	}
	data, err := yaml.Marshal(clean)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return data, nil
}
