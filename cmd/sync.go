package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull then push against the configured remote",
	Long:  `Fast-forward the local store from the remote, then publish local commits.`,
	RunE:  runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	git, _, _, err := openStores()
	if err != nil {
		return err
	}
	if !git.HasRemote(flagRemote) {
		return fmt.Errorf("remote %q is not configured", flagRemote)
	}
	clean, err := git.IsClean()
	if err != nil {
		return err
	}
	if !clean {
		return fmt.Errorf("working tree has uncommitted changes")
	}
	if err := git.PullFastForward(cmd.Context(), flagRemote); err != nil {
		return err
	}
	if err := git.Push(cmd.Context(), flagRemote); err != nil {
		return err
	}
	head, err := git.Head()
	if err != nil {
		return err
	}
	return emit(map[string]any{"remote": flagRemote, "head": head.String()})
}
