package cmd

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/smallfab/smallfab/core/bom"
	"github.com/smallfab/smallfab/core/entity"
	"github.com/smallfab/smallfab/core/gitstore"
	"github.com/smallfab/smallfab/core/revision"
)

var bomCmd = &cobra.Command{
	Use:   "bom",
	Short: "Bill-of-materials commands",
	Long:  `Edit and expand part BOMs.`,
}

var bomAddCmd = &cobra.Command{
	Use:   "add <parent> <use>",
	Short: "Append a BOM line to a part",
	Args:  cobra.ExactArgs(2),
	RunE:  runBOMAdd,
}

var bomSetCmd = &cobra.Command{
	Use:   "set <parent> <index> <field=value ...>",
	Short: "Update one BOM line by index",
	Args:  cobra.MinimumNArgs(3),
	RunE:  runBOMSet,
}

var bomRemoveCmd = &cobra.Command{
	Use:   "remove <parent> <index>",
	Short: "Remove one BOM line by index",
	Args:  cobra.ExactArgs(2),
	RunE:  runBOMRemove,
}

var bomTreeCmd = &cobra.Command{
	Use:   "tree <sfid>",
	Short: "Expand a part's BOM into a flattened tree",
	Args:  cobra.ExactArgs(1),
	RunE:  runBOMTree,
}

var (
	bomAddQty   int
	bomAddRev   string
	bomAddAlts  []string
	bomAddGroup string
	bomMaxDepth int
)

func init() {
	rootCmd.AddCommand(bomCmd)
	bomCmd.AddCommand(bomAddCmd)
	bomCmd.AddCommand(bomSetCmd)
	bomCmd.AddCommand(bomRemoveCmd)
	bomCmd.AddCommand(bomTreeCmd)

	bomAddCmd.Flags().IntVar(&bomAddQty, "qty", 1, "Quantity of the child per parent")
	bomAddCmd.Flags().StringVar(&bomAddRev, "rev", "", "Revision pin (label, or 'released')")
	bomAddCmd.Flags().StringSliceVar(&bomAddAlts, "alt", nil, "Alternate part sfids")
	bomAddCmd.Flags().StringVar(&bomAddGroup, "group", "", "Alternates group name")
	bomTreeCmd.Flags().IntVar(&bomMaxDepth, "max-depth", -1, "Depth cutoff (-1 for unlimited)")
}

func runBOMAdd(cmd *cobra.Command, args []string) error {
	git, store, _, err := openStores()
	if err != nil {
		return err
	}
	line := entity.BOMLine{
		Use:             args[1],
		Qty:             bomAddQty,
		Rev:             bomAddRev,
		AlternatesGroup: bomAddGroup,
	}
	for _, alt := range bomAddAlts {
		line.Alternates = append(line.Alternates, entity.Alternate{Use: alt})
	}
	runner, err := newRunner(git)
	if err != nil {
		return err
	}
	defer runner.Close()

	var rec *entity.Record
	_, err = runner.Run(cmd.Context(), author(), func() (*gitstore.ChangeSet, error) {
		var cs *gitstore.ChangeSet
		rec, cs, err = store.AddBOMLine(args[0], line)
		return cs, err
	})
	if err != nil {
		return err
	}
	return emit(recordView(rec))
}

func runBOMSet(cmd *cobra.Command, args []string) error {
	git, store, _, err := openStores()
	if err != nil {
		return err
	}
	index, err := strconv.Atoi(args[1])
	if err != nil {
		return err
	}
	updates, err := parseFields(args[2:])
	if err != nil {
		return err
	}
	// Quantities arrive as strings on the command line.
	if raw, ok := updates["qty"].(string); ok {
		if qty, err := strconv.Atoi(raw); err == nil {
			updates["qty"] = qty
		}
	}
	runner, err := newRunner(git)
	if err != nil {
		return err
	}
	defer runner.Close()

	var rec *entity.Record
	_, err = runner.Run(cmd.Context(), author(), func() (*gitstore.ChangeSet, error) {
		var cs *gitstore.ChangeSet
		rec, cs, err = store.SetBOMLine(args[0], index, updates)
		return cs, err
	})
	if err != nil {
		return err
	}
	return emit(recordView(rec))
}

func runBOMRemove(cmd *cobra.Command, args []string) error {
	git, store, _, err := openStores()
	if err != nil {
		return err
	}
	index, err := strconv.Atoi(args[1])
	if err != nil {
		return err
	}
	runner, err := newRunner(git)
	if err != nil {
		return err
	}
	defer runner.Close()

	var rec *entity.Record
	_, err = runner.Run(cmd.Context(), author(), func() (*gitstore.ChangeSet, error) {
		var cs *gitstore.ChangeSet
		rec, cs, err = store.RemoveBOMLine(args[0], index)
		return cs, err
	})
	if err != nil {
		return err
	}
	return emit(recordView(rec))
}

func runBOMTree(cmd *cobra.Command, args []string) error {
	git, store, _, err := openStores()
	if err != nil {
		return err
	}
	mgr := revision.NewManager(git, store, nil)
	nodes, err := mgr.Resolver().ResolveTree(args[0], bomMaxDepth)
	if err != nil {
		return err
	}
	if nodes == nil {
		nodes = []bom.Node{}
	}
	return emit(map[string]any{"root": args[0], "nodes": nodes})
}
