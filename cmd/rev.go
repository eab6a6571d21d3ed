package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/smallfab/smallfab/core/gitstore"
	"github.com/smallfab/smallfab/core/revision"
)

var revCmd = &cobra.Command{
	Use:   "rev",
	Short: "Revision snapshot commands",
	Long:  `Cut, release, and list immutable revision snapshots of parts.`,
}

var revCutCmd = &cobra.Command{
	Use:   "cut <sfid> <label>",
	Short: "Cut a draft snapshot with an explicit label",
	Args:  cobra.ExactArgs(2),
	RunE:  runRevCut,
}

var revBumpCmd = &cobra.Command{
	Use:   "bump <sfid>",
	Short: "Cut a draft snapshot with the next numeric label",
	Args:  cobra.ExactArgs(1),
	RunE:  runRevBump,
}

var revReleaseCmd = &cobra.Command{
	Use:   "release <sfid> <label>",
	Short: "Release a snapshot and move the released pointer to it",
	Args:  cobra.ExactArgs(2),
	RunE:  runRevRelease,
}

var revListCmd = &cobra.Command{
	Use:   "list <sfid>",
	Short: "List a part's revisions and its released pointer",
	Args:  cobra.ExactArgs(1),
	RunE:  runRevList,
}

var revNotes string

func init() {
	rootCmd.AddCommand(revCmd)
	revCmd.AddCommand(revCutCmd)
	revCmd.AddCommand(revBumpCmd)
	revCmd.AddCommand(revReleaseCmd)
	revCmd.AddCommand(revListCmd)

	revCmd.PersistentFlags().StringVar(&revNotes, "notes", "", "Notes recorded on the snapshot")
}

func runRevCut(cmd *cobra.Command, args []string) error {
	return cutSnapshot(cmd, args[0], args[1])
}

func runRevBump(cmd *cobra.Command, args []string) error {
	return cutSnapshot(cmd, args[0], "")
}

func cutSnapshot(cmd *cobra.Command, rawID, label string) error {
	git, store, _, err := openStores()
	if err != nil {
		return err
	}
	mgr := revision.NewManager(git, store, nil)
	runner, err := newRunner(git)
	if err != nil {
		return err
	}
	defer runner.Close()

	var result *revision.CutResult
	_, err = runner.Run(cmd.Context(), author(), func() (*gitstore.ChangeSet, error) {
		var cs *gitstore.ChangeSet
		result, cs, err = mgr.Cut(rawID, label, revNotes)
		return cs, err
	})
	if err != nil {
		return err
	}
	return emit(result)
}

func runRevRelease(cmd *cobra.Command, args []string) error {
	git, store, _, err := openStores()
	if err != nil {
		return err
	}
	mgr := revision.NewManager(git, store, nil)
	runner, err := newRunner(git)
	if err != nil {
		return err
	}
	defer runner.Close()

	var info *revision.Info
	_, err = runner.Run(cmd.Context(), author(), func() (*gitstore.ChangeSet, error) {
		var cs *gitstore.ChangeSet
		info, cs, err = mgr.Release(args[0], args[1], time.Now().UTC(), revNotes)
		return cs, err
	})
	if err != nil {
		return err
	}
	return emit(info)
}

func runRevList(cmd *cobra.Command, args []string) error {
	git, store, _, err := openStores()
	if err != nil {
		return err
	}
	mgr := revision.NewManager(git, store, nil)
	info, err := mgr.List(args[0])
	if err != nil {
		return err
	}
	return emit(info)
}
