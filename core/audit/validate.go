package audit

import (
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/smallfab/smallfab/core/config"
	"github.com/smallfab/smallfab/core/entity"
	"github.com/smallfab/smallfab/core/gitstore"
	"github.com/smallfab/smallfab/core/sfid"
)

// Issue severities.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Issue is one finding from a tree validation scan.
type Issue struct {
	Severity string `yaml:"severity"`
	Code     string `yaml:"code"`
	Path     string `yaml:"path"`
	Message  string `yaml:"message"`
}

// ValidateTree scans the store layout and every record for structural
// violations: bad identifiers, malformed records, broken BOM references,
// duplicate child usages, schema violations, and static cycles.
func ValidateTree(git *gitstore.Store, cfg *config.RepoConfig) ([]Issue, error) {
	issues := []Issue{}

	if !git.Exists(entity.EntitiesDir) {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Code:     "ENT_ROOT_MISSING",
			Path:     entity.EntitiesDir + "/",
			Message:  "missing entities/ directory",
		})
		return issues, nil
	}

	// Single-file layout is not allowed; records live in directories.
	names, err := git.ListDir(entity.EntitiesDir)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		if strings.HasSuffix(name, ".yml") {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Code:     "ENT_LAYOUT_SINGLE_FILE",
				Path:     path.Join(entity.EntitiesDir, name),
				Message:  "entity must live under entities/<sfid>/entity.yml, not a single YAML file",
			})
		}
	}

	dirs, err := git.ListSubdirs(entity.EntitiesDir)
	if err != nil {
		return nil, err
	}
	// Part adjacency for static cycle detection.
	children := make(map[string][]string)

	for _, name := range dirs {
		entPath := path.Join(entity.EntitiesDir, name)
		id, err := sfid.Parse(name)
		if err != nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Code:     "ENT_SFID_INVALID",
				Path:     entPath + "/",
				Message:  fmt.Sprintf("invalid sfid directory name: %v", err),
			})
			continue
		}
		data, err := git.ReadFile(entity.FileOf(id))
		if err != nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Code:     "ENT_ENTITY_YML_MISSING",
				Path:     entPath + "/",
				Message:  "missing entity.yml",
			})
			continue
		}
		fields := map[string]any{}
		if err := yaml.Unmarshal(data, &fields); err != nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Code:     "ENT_ENTITY_YML_INVALID",
				Path:     entity.FileOf(id),
				Message:  "entity.yml is not a valid YAML mapping",
			})
			continue
		}
		if _, ok := fields["sfid"]; ok {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Code:     "ENT_NO_SFID_FIELD",
				Path:     entity.FileOf(id),
				Message:  "do not include 'sfid' in entity.yml; identity is the directory name",
			})
		}
		if err := cfg.ValidateRecord(id, fields); err != nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Code:     "ENT_FIELD_SPEC",
				Path:     entity.FileOf(id),
				Message:  err.Error(),
			})
		}
		if _, ok := fields["bom"]; ok {
			issues = append(issues, validateBOM(git, id, fields, children)...)
		}
	}

	issues = append(issues, findStaticCycles(children)...)
	return issues, nil
}

func validateBOM(git *gitstore.Store, id sfid.ID, fields map[string]any, children map[string][]string) []Issue {
	var issues []Issue
	file := entity.FileOf(id)

	if !id.IsPart() {
		return []Issue{{
			Severity: SeverityError,
			Code:     "ENT_BOM_NON_PART",
			Path:     file,
			Message:  "'bom' is only allowed on parts",
		}}
	}
	lines, err := entity.DecodeBOM(fields)
	if err != nil {
		return []Issue{{
			Severity: SeverityError,
			Code:     "ENT_BOM_INVALID",
			Path:     file,
			Message:  err.Error(),
		}}
	}

	seen := make(map[string]int)
	for i, line := range lines {
		item := i + 1
		use, err := sfid.Parse(line.Use)
		if err != nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Code:     "ENT_BOM_USE_SFID_INVALID",
				Path:     file,
				Message:  fmt.Sprintf("bom item %d: invalid 'use': %v", item, err),
			})
			continue
		}
		if first, ok := seen[line.Use]; ok {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Code:     "ENT_BOM_USE_DUPLICATE",
				Path:     file,
				Message:  fmt.Sprintf("bom item %d: duplicate 'use' %s (first at item %d); multiplicity must be via qty", item, use, first),
			})
		} else {
			seen[line.Use] = item
		}
		if !git.Exists(entity.FileOf(use)) {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Code:     "ENT_BOM_USE_ENTITY_MISSING",
				Path:     file,
				Message:  fmt.Sprintf("bom item %d: referenced entity %s does not exist", item, use),
			})
		} else if use.IsPart() {
			children[id.String()] = append(children[id.String()], use.String())
		}
		if qty, ok := line.QtyInt(); line.Qty != nil && (!ok || qty < 1) {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Code:     "ENT_BOM_QTY_NOT_NUMERIC",
				Path:     file,
				Message:  fmt.Sprintf("bom item %d: qty is not an integer >= 1; resolution treats it as unknown", item),
			})
		}
		for _, alt := range line.Alternates {
			if _, err := sfid.Parse(alt.Use); err != nil {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Code:     "ENT_BOM_ALT_USE_SFID_INVALID",
					Path:     file,
					Message:  fmt.Sprintf("bom item %d: invalid alternate 'use': %v", item, err),
				})
			}
		}
	}
	return issues
}

// findStaticCycles reports strongly-connected child chains in the part
// graph. Cycles resolve safely (the walk truncates them) but almost always
// indicate a modeling mistake.
func findStaticCycles(children map[string][]string) []Issue {
	var issues []Issue
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(children))

	var visit func(id string, trail []string)
	visit = func(id string, trail []string) {
		color[id] = gray
		for _, child := range children[id] {
			switch color[child] {
			case white:
				next := make([]string, len(trail), len(trail)+1)
				copy(next, trail)
				visit(child, append(next, child))
			case gray:
				issues = append(issues, Issue{
					Severity: SeverityWarning,
					Code:     "ENT_BOM_CYCLE",
					Path:     trail[0],
					Message:  fmt.Sprintf("bom cycle: %s -> %s", strings.Join(trail, " -> "), child),
				})
			}
		}
		color[id] = black
	}
	for id := range children {
		if color[id] == white {
			visit(id, []string{id})
		}
	}
	return issues
}
