package entity

import (
	"fmt"

	"github.com/smallfab/smallfab/core/gitstore"
	"github.com/smallfab/smallfab/core/sferr"
	"github.com/smallfab/smallfab/core/sfid"
)

// RevReleased is the revision-spec sentinel resolving to the child's current
// released pointer. An absent spec means the same thing.
const RevReleased = "released"

// Alternate is an interchangeable substitute for a BOM line's primary child.
type Alternate struct {
	Use string `yaml:"use"`
}

// BOMLine is one child usage under a part record.
type BOMLine struct {
	Use             string      `yaml:"use"`
	Qty             any         `yaml:"qty,omitempty"`
	Rev             string      `yaml:"rev,omitempty"`
	Alternates      []Alternate `yaml:"alternates,omitempty"`
	AlternatesGroup string      `yaml:"alternates_group,omitempty"`
}

// QtyInt returns the line quantity as an integer. Non-numeric or absent
// quantities report ok=false; resolution treats those as unknown instead of
// failing.
func (l BOMLine) QtyInt() (int, bool) {
	return intValue(l.Qty)
}

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}

// DecodeBOM extracts typed BOM lines from a record's raw fields. Records
// without a bom field yield an empty list. Malformed entries are rejected.
func DecodeBOM(fields map[string]any) ([]BOMLine, error) {
	raw, ok := fields["bom"]
	if !ok || raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, sferr.Validation("bom must be a list of line objects")
	}
	lines := make([]BOMLine, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, sferr.Validation("bom item %d must be a mapping", i+1)
		}
		var line BOMLine
		if use, ok := m["use"].(string); ok {
			line.Use = use
		}
		line.Qty = m["qty"]
		if rev, ok := m["rev"].(string); ok {
			line.Rev = rev
		}
		if group, ok := m["alternates_group"].(string); ok {
			line.AlternatesGroup = group
		}
		if alts, ok := m["alternates"].([]any); ok {
			for _, a := range alts {
				am, ok := a.(map[string]any)
				if !ok {
					continue
				}
				if use, ok := am["use"].(string); ok && use != "" {
					line.Alternates = append(line.Alternates, Alternate{Use: use})
				}
			}
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// encodeBOM renders lines back into the raw field representation.
func encodeBOM(lines []BOMLine) []any {
	out := make([]any, 0, len(lines))
	for _, line := range lines {
		m := map[string]any{"use": line.Use}
		if line.Qty != nil {
			m["qty"] = line.Qty
		}
		if line.Rev != "" {
			m["rev"] = line.Rev
		}
		if len(line.Alternates) > 0 {
			alts := make([]any, 0, len(line.Alternates))
			for _, a := range line.Alternates {
				alts = append(alts, map[string]any{"use": a.Use})
			}
			m["alternates"] = alts
		}
		if line.AlternatesGroup != "" {
			m["alternates_group"] = line.AlternatesGroup
		}
		out = append(out, m)
	}
	return out
}

// AddBOMLine appends a child usage to a part's BOM. A child may appear at
// most once directly under one parent; multiplicity is expressed through qty.
func (s *Store) AddBOMLine(rawID string, line BOMLine) (*Record, *gitstore.ChangeSet, error) {
	rec, lines, err := s.bomTarget(rawID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.checkLine(line); err != nil {
		return nil, nil, err
	}
	for _, existing := range lines {
		if existing.Use == line.Use {
			return nil, nil, sferr.Validation("bom already uses %s; adjust qty on the existing line", line.Use)
		}
	}
	lines = append(lines, line)
	return s.writeBOM(rec, lines, fmt.Sprintf("Added BOM line %s to %s", line.Use, rec.ID))
}

// SetBOMLine replaces fields of the line at index. Changing use to a child
// already on another line is rejected.
func (s *Store) SetBOMLine(rawID string, index int, updates map[string]any) (*Record, *gitstore.ChangeSet, error) {
	rec, lines, err := s.bomTarget(rawID)
	if err != nil {
		return nil, nil, err
	}
	if index < 0 || index >= len(lines) {
		return nil, nil, sferr.NotFound("bom line %d does not exist on %s", index, rec.ID)
	}
	line := lines[index]
	for key, value := range updates {
		switch key {
		case "use":
			use, ok := value.(string)
			if !ok {
				return nil, nil, sferr.Validation("use must be a string")
			}
			line.Use = use
		case "qty":
			line.Qty = value
		case "rev":
			rev, ok := value.(string)
			if !ok {
				return nil, nil, sferr.Validation("rev must be a string")
			}
			line.Rev = rev
		case "alternates_group":
			group, ok := value.(string)
			if !ok {
				return nil, nil, sferr.Validation("alternates_group must be a string")
			}
			line.AlternatesGroup = group
		default:
			return nil, nil, sferr.Validation("unknown bom line field %q", key)
		}
	}
	if err := s.checkLine(line); err != nil {
		return nil, nil, err
	}
	for i, existing := range lines {
		if i != index && existing.Use == line.Use {
			return nil, nil, sferr.Validation("bom already uses %s; adjust qty on the existing line", line.Use)
		}
	}
	lines[index] = line
	return s.writeBOM(rec, lines, fmt.Sprintf("Updated BOM line %d on %s", index, rec.ID))
}

// RemoveBOMLine deletes the line at index.
func (s *Store) RemoveBOMLine(rawID string, index int) (*Record, *gitstore.ChangeSet, error) {
	rec, lines, err := s.bomTarget(rawID)
	if err != nil {
		return nil, nil, err
	}
	if index < 0 || index >= len(lines) {
		return nil, nil, sferr.NotFound("bom line %d does not exist on %s", index, rec.ID)
	}
	removed := lines[index].Use
	lines = append(lines[:index], lines[index+1:]...)
	return s.writeBOM(rec, lines, fmt.Sprintf("Removed BOM line %s from %s", removed, rec.ID))
}

func (s *Store) bomTarget(rawID string) (*Record, []BOMLine, error) {
	id, err := sfid.Parse(rawID)
	if err != nil {
		return nil, nil, err
	}
	if !id.IsPart() {
		return nil, nil, sferr.Validation("entity %s is not a part; only parts carry a BOM", id)
	}
	rec, err := s.Get(rawID)
	if err != nil {
		return nil, nil, err
	}
	lines, err := DecodeBOM(rec.Fields)
	if err != nil {
		return nil, nil, err
	}
	return rec, lines, nil
}

// checkLine validates one line: child syntax and existence, quantity >= 1,
// alternate identifier syntax. Alternates need not exist yet; resolution
// degrades them to leaves.
func (s *Store) checkLine(line BOMLine) error {
	use, err := sfid.Parse(line.Use)
	if err != nil {
		return err
	}
	if !s.git.Exists(FileOf(use)) {
		return sferr.NotFound("referenced entity %s does not exist", use)
	}
	if line.Qty != nil {
		qty, ok := line.QtyInt()
		if !ok || qty < 1 {
			return sferr.Validation("qty must be an integer >= 1")
		}
	}
	for _, alt := range line.Alternates {
		if _, err := sfid.Parse(alt.Use); err != nil {
			return err
		}
		if alt.Use == line.Use {
			return sferr.Validation("alternate %s duplicates the primary child", alt.Use)
		}
	}
	return nil
}

func (s *Store) writeBOM(rec *Record, lines []BOMLine, summary string) (*Record, *gitstore.ChangeSet, error) {
	if len(lines) == 0 {
		delete(rec.Fields, "bom")
	} else {
		rec.Fields["bom"] = encodeBOM(lines)
	}
	if err := s.cfg.ValidateRecord(rec.ID, rec.Fields); err != nil {
		return nil, nil, err
	}
	if err := s.writeRecord(rec.ID, rec.Fields); err != nil {
		return nil, nil, err
	}
	change := &gitstore.ChangeSet{
		Paths:   []string{FileOf(rec.ID)},
		Summary: summary,
		SFIDs:   []string{rec.ID.String()},
	}
	return rec, change, nil
}
