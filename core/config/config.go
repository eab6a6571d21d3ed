// Package config loads the tool-level configuration (which data repository
// to operate on) and the repository-level configuration (per-type entity
// field schemas) from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/smallfab/smallfab/core/sferr"
	"github.com/smallfab/smallfab/core/sfid"
)

const (
	// ToolVersion is stamped into scaffolded repositories and snapshot
	// provenance.
	ToolVersion = "1.0"

	// ToolConfigName is the per-user configuration file.
	ToolConfigName = ".smallfab.yml"

	// RepoConfigName is the repository-level configuration file.
	RepoConfigName = "sfdatarepo.yml"
)

// ToolConfig is the per-user configuration.
type ToolConfig struct {
	DefaultDatarepo string `yaml:"default_datarepo"`
}

// ToolConfigPath resolves the tool config location.
//
// Precedence: SMALLFAB_CONFIG_FILE, then SMALLFAB_CONFIG_DIR, then
// SMALLFAB_DATA_PATH, then the user home directory.
func ToolConfigPath() string {
	if f := os.Getenv("SMALLFAB_CONFIG_FILE"); f != "" {
		return f
	}
	if d := os.Getenv("SMALLFAB_CONFIG_DIR"); d != "" {
		return filepath.Join(d, ToolConfigName)
	}
	if d := os.Getenv("SMALLFAB_DATA_PATH"); d != "" {
		return filepath.Join(d, ToolConfigName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ToolConfigName
	}
	return filepath.Join(home, ToolConfigName)
}

// LoadTool reads the tool config, returning an empty config if absent.
func LoadTool() (*ToolConfig, error) {
	data, err := os.ReadFile(ToolConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			return &ToolConfig{}, nil
		}
		return nil, err
	}
	var cfg ToolConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ToolConfigPath(), err)
	}
	return &cfg, nil
}

// SaveTool writes the tool config, creating parent directories as needed.
func SaveTool(cfg *ToolConfig) error {
	p := ToolConfigPath()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}

// DatarepoPath returns the configured default data repository.
func DatarepoPath() (string, error) {
	cfg, err := LoadTool()
	if err != nil {
		return "", err
	}
	if cfg.DefaultDatarepo == "" {
		return "", sferr.NotFound("default_datarepo not set in %s; run init or set it manually", ToolConfigName)
	}
	return cfg.DefaultDatarepo, nil
}

// FieldSpec constrains one entity field.
type FieldSpec struct {
	Required    bool   `yaml:"required,omitempty"`
	Regex       string `yaml:"regex,omitempty"`
	Description string `yaml:"description,omitempty"`
	Multiline   bool   `yaml:"multiline,omitempty"`
}

// TypeSpec holds the field specs for one identifier type prefix.
type TypeSpec struct {
	Fields map[string]FieldSpec `yaml:"fields,omitempty"`
}

// EntitiesSpec holds global field specs plus per-type overrides.
type EntitiesSpec struct {
	Fields map[string]FieldSpec `yaml:"fields,omitempty"`
	Types  map[string]TypeSpec  `yaml:"types,omitempty"`
}

// RepoConfig is the repository-level configuration stored in sfdatarepo.yml.
type RepoConfig struct {
	Version  string       `yaml:"smallfab_version,omitempty"`
	Entities EntitiesSpec `yaml:"entities,omitempty"`
}

// LoadRepo reads sfdatarepo.yml from root. A missing file yields an empty
// config: unknown fields are allowed, no constraints enforced.
func LoadRepo(root string) (*RepoConfig, error) {
	data, err := os.ReadFile(filepath.Join(root, RepoConfigName))
	if err != nil {
		if os.IsNotExist(err) {
			return &RepoConfig{}, nil
		}
		return nil, err
	}
	var cfg RepoConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", RepoConfigName, err)
	}
	return &cfg, nil
}

// SpecsFor merges the global field specs with the per-type specs for the
// identifier's type prefix. Per-type entries win.
func (c *RepoConfig) SpecsFor(id sfid.ID) map[string]FieldSpec {
	merged := make(map[string]FieldSpec, len(c.Entities.Fields))
	for name, spec := range c.Entities.Fields {
		merged[name] = spec
	}
	if t, ok := c.Entities.Types[id.Type()]; ok {
		for name, spec := range t.Fields {
			merged[name] = spec
		}
	}
	return merged
}

// ValidateRecord checks fields against the merged specs for id: required
// fields must be present, and present fields with a regex must match it in
// full. Unknown fields are always allowed.
func (c *RepoConfig) ValidateRecord(id sfid.ID, fields map[string]any) error {
	specs := c.SpecsFor(id)
	if len(specs) == 0 {
		return nil
	}
	for name, spec := range specs {
		if spec.Required {
			if _, ok := fields[name]; !ok {
				return sferr.Validation("missing required field %q", name)
			}
		}
	}
	for name, value := range fields {
		spec, ok := specs[name]
		if !ok || spec.Regex == "" {
			continue
		}
		re, err := regexp.Compile("^(?:" + spec.Regex + ")$")
		if err != nil {
			return sferr.Validation("field %q has invalid regex %q", name, spec.Regex)
		}
		s := ""
		if value != nil {
			s = fmt.Sprintf("%v", value)
		}
		if !re.MatchString(s) {
			return sferr.Validation("field %q does not match regex %q", name, spec.Regex)
		}
	}
	return nil
}
