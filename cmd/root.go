package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/smallfab/smallfab/core/config"
	"github.com/smallfab/smallfab/core/entity"
	"github.com/smallfab/smallfab/core/gitstore"
	"github.com/smallfab/smallfab/core/txn"
)

var rootCmd = &cobra.Command{
	Use:   "smallfab",
	Short: "Git-backed PLM record store",
	Long:  `smallfab manages part, location, and build records in a plain git repository.`,
}

var (
	flagRepo        string
	flagJSON        bool
	flagRemote      string
	flagPublish     string
	flagAuthorName  string
	flagAuthorEmail string
)

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagRepo, "repo", "", "Path to the data repository (default: configured default_datarepo)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Emit JSON instead of YAML")
	rootCmd.PersistentFlags().StringVar(&flagRemote, "remote", "origin", "Remote to sync against")
	rootCmd.PersistentFlags().StringVar(&flagPublish, "publish", "off", "Publish mode (off,sync,async,coalesced)")
	rootCmd.PersistentFlags().StringVar(&flagAuthorName, "author-name", "", "Commit author name (default: repo git config)")
	rootCmd.PersistentFlags().StringVar(&flagAuthorEmail, "author-email", "", "Commit author email")
}

func repoRoot() (string, error) {
	if flagRepo != "" {
		return flagRepo, nil
	}
	return config.DatarepoPath()
}

func openStores() (*gitstore.Store, *entity.Store, *config.RepoConfig, error) {
	root, err := repoRoot()
	if err != nil {
		return nil, nil, nil, err
	}
	git, err := gitstore.Open(root)
	if err != nil {
		return nil, nil, nil, err
	}
	cfg, err := config.LoadRepo(root)
	if err != nil {
		return nil, nil, nil, err
	}
	store, err := entity.NewStore(git, entity.StoreConfig{Repo: cfg})
	if err != nil {
		return nil, nil, nil, err
	}
	return git, store, cfg, nil
}

func publishMode() (txn.PublishMode, error) {
	switch flagPublish {
	case "off", "":
		return txn.PublishOff, nil
	case "sync":
		return txn.PublishSync, nil
	case "async":
		return txn.PublishAsync, nil
	case "coalesced":
		return txn.PublishCoalesced, nil
	default:
		return 0, fmt.Errorf("unknown publish mode %q", flagPublish)
	}
}

func newRunner(git *gitstore.Store) (*txn.Runner, error) {
	mode, err := publishMode()
	if err != nil {
		return nil, err
	}
	return txn.NewRunner(git, txn.Config{Remote: flagRemote, Publish: mode}), nil
}

func author() *gitstore.Author {
	if flagAuthorName == "" && flagAuthorEmail == "" {
		return nil
	}
	return &gitstore.Author{Name: flagAuthorName, Email: flagAuthorEmail}
}

// emit prints v as YAML, or JSON with --json. JSON goes through a YAML
// round-trip so both formats use the same field names.
func emit(v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	if !flagJSON {
		_, err = os.Stdout.Write(data)
		return err
	}
	var plain any
	if err := yaml.Unmarshal(data, &plain); err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(plain)
}
