package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smallfab/smallfab/core/entity"
	"github.com/smallfab/smallfab/core/gitstore"
)

var entityCmd = &cobra.Command{
	Use:   "entity",
	Short: "Entity record commands",
	Long:  `Create, inspect, update, and retire entity records.`,
}

var entityCreateCmd = &cobra.Command{
	Use:   "create <sfid> [field=value ...]",
	Short: "Create an entity record",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runEntityCreate,
}

var entityGetCmd = &cobra.Command{
	Use:   "get <sfid>",
	Short: "Show an entity record",
	Args:  cobra.ExactArgs(1),
	RunE:  runEntityGet,
}

var entityListCmd = &cobra.Command{
	Use:   "list [glob]",
	Short: "List entity records, optionally filtered by a glob over sfids",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runEntityList,
}

var entitySetCmd = &cobra.Command{
	Use:   "set <sfid> <field=value ...>",
	Short: "Update fields on an entity record",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runEntitySet,
}

var entityRetireCmd = &cobra.Command{
	Use:   "retire <sfid>",
	Short: "Mark an entity record as retired",
	Args:  cobra.ExactArgs(1),
	RunE:  runEntityRetire,
}

var (
	entityRetireReason string
	entityListRetired  bool
)

func init() {
	rootCmd.AddCommand(entityCmd)
	entityCmd.AddCommand(entityCreateCmd)
	entityCmd.AddCommand(entityGetCmd)
	entityCmd.AddCommand(entityListCmd)
	entityCmd.AddCommand(entitySetCmd)
	entityCmd.AddCommand(entityRetireCmd)

	entityRetireCmd.Flags().StringVar(&entityRetireReason, "reason", "", "Reason recorded on the retired entity")
	entityListCmd.Flags().BoolVar(&entityListRetired, "retired", false, "Include retired entities")
}

// parseFields turns key=value args into a field map.
func parseFields(args []string) (map[string]any, error) {
	fields := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected field=value, got %q", arg)
		}
		fields[key] = value
	}
	return fields, nil
}

func runEntityCreate(cmd *cobra.Command, args []string) error {
	git, store, _, err := openStores()
	if err != nil {
		return err
	}
	fields, err := parseFields(args[1:])
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
		rec, cs, err = store.Create(args[0], fields)
		return cs, err
	})
	if err != nil {
		return err
	}
	return emit(recordView(rec))
}

func runEntityGet(cmd *cobra.Command, args []string) error {
	_, store, _, err := openStores()
	if err != nil {
		return err
	}
	rec, err := store.Get(args[0])
	if err != nil {
		return err
	}
	return emit(recordView(rec))
}

func runEntityList(cmd *cobra.Command, args []string) error {
	_, store, _, err := openStores()
	if err != nil {
		return err
	}
	pattern := ""
	if len(args) == 1 {
		pattern = args[0]
	}
	recs, err := store.List(pattern)
	if err != nil {
		return err
	}
	out := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		if rec.Retired() && !entityListRetired {
			continue
		}
		out = append(out, recordView(rec))
	}
	return emit(out)
}

func runEntitySet(cmd *cobra.Command, args []string) error {
	git, store, _, err := openStores()
	if err != nil {
		return err
	}
	updates, err := parseFields(args[1:])
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
		rec, cs, err = store.UpdateFields(args[0], updates)
		return cs, err
	})
	if err != nil {
		return err
	}
	return emit(recordView(rec))
}

func runEntityRetire(cmd *cobra.Command, args []string) error {
	git, store, _, err := openStores()
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
		rec, cs, err = store.Retire(args[0], entityRetireReason)
		return cs, err
	})
	if err != nil {
		return err
	}
	return emit(recordView(rec))
}

// recordView renders a record with its sfid alongside the stored fields.
func recordView(rec *entity.Record) map[string]any {
	view := make(map[string]any, len(rec.Fields)+1)
	view["sfid"] = rec.ID.String()
	for k, v := range rec.Fields {
		view[k] = v
	}
	return view
}
