package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/smallfab/smallfab/core/config"
	"github.com/smallfab/smallfab/core/gitstore"
)

var initCmd = &cobra.Command{
	Use:   "init <path>",
	Short: "Create a new data repository",
	Long:  `Initialize a git repository with the smallfab layout and record it as the default datarepo.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runInit,
}

var (
	initRemote     string
	initSkipConfig bool
)

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initRemote, "remote-url", "", "Add this URL as the remote and push the initial commit")
	initCmd.Flags().BoolVar(&initSkipConfig, "no-default", false, "Do not record this repo as the default datarepo")
}

func runInit(cmd *cobra.Command, args []string) error {
	root, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	git, err := gitstore.Init(root)
	if err != nil {
		return err
	}
	created, err := config.Scaffold(root)
	if err != nil {
		return err
	}
	hash, err := git.Commit(created, "[smallfab] Initialize data repository", author())
	if err != nil {
		return err
	}

	if initRemote != "" {
		if err := git.AddRemote(flagRemote, initRemote); err != nil {
			return err
		}
		if err := git.Push(context.Background(), flagRemote); err != nil {
			return fmt.Errorf("push to %s: %w", initRemote, err)
		}
	}

	if !initSkipConfig {
		tool, err := config.LoadTool()
		if err != nil {
			return err
		}
		tool.DefaultDatarepo = root
		if err := config.SaveTool(tool); err != nil {
			return err
		}
	}

	return emit(map[string]any{"path": root, "commit": hash.String()})
}
