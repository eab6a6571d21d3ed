package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultRepoConfig returns the scaffold configuration for a fresh data
// repository, carrying the stock part field specs.
func DefaultRepoConfig() *RepoConfig {
	return &RepoConfig{
		Version: ToolVersion,
		Entities: EntitiesSpec{
			Types: map[string]TypeSpec{
				"p": {Fields: map[string]FieldSpec{
					"name": {
						Required:    true,
						Regex:       `.{1,200}`,
						Description: "Human-readable item name.",
					},
					"description": {
						Multiline:   true,
						Description: "Extended freeform description of the part.",
					},
					"category": {
						Regex:       `|.{1,500}`,
						Description: "Category or family.",
					},
					"manufacturer": {
						Regex:       `|.{1,500}`,
						Description: "Manufacturer name.",
					},
					"mpn": {
						Regex:       `[A-Za-z0-9 ._\-/#+]*`,
						Description: "Manufacturer Part Number.",
					},
					"spn": {
						Regex:       `[A-Za-z0-9 ._\-/#+]*`,
						Description: "Supplier Part Number.",
					},
					"vendor": {
						Regex:       `|.{1,500}`,
						Description: "Preferred supplier/vendor.",
					},
					"notes": {
						Multiline:   true,
						Description: "Additional notes.",
					},
				}},
			},
		},
	}
}

const repoConfigHeader = `# Generated scaffold. Safe to edit and customize for your repository.
`

const gitattributes = `# Git attributes for a smallfab data repository
* text=auto
`

// Scaffold writes the default repository configuration and directory layout
// under root, returning the relative paths it created for committing.
// Existing files are left untouched.
func Scaffold(root string) ([]string, error) {
	var created []string

	cfgPath := filepath.Join(root, RepoConfigName)
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		data, err := yaml.Marshal(DefaultRepoConfig())
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(cfgPath, append([]byte(repoConfigHeader), data...), 0o644); err != nil {
			return nil, err
		}
		created = append(created, RepoConfigName)
	}

	entDir := filepath.Join(root, "entities")
	if err := os.MkdirAll(entDir, 0o755); err != nil {
		return nil, err
	}
	keep := filepath.Join(entDir, ".gitkeep")
	if _, err := os.Stat(keep); os.IsNotExist(err) {
		if err := os.WriteFile(keep, nil, 0o644); err != nil {
			return nil, err
		}
		created = append(created, "entities/.gitkeep")
	}

	gaPath := filepath.Join(root, ".gitattributes")
	if _, err := os.Stat(gaPath); os.IsNotExist(err) {
		if err := os.WriteFile(gaPath, []byte(gitattributes), 0o644); err != nil {
			return nil, err
		}
		created = append(created, ".gitattributes")
	}

	return created, nil
}
