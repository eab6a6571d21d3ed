package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/smallfab/smallfab/core/index"
)

var searchCmd = &cobra.Command{
	Use:   "search <query ...>",
	Short: "Full-text search over entity records",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var searchLimit int

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntVar(&searchLimit, "limit", 20, "Maximum hits to return")
}

func runSearch(cmd *cobra.Command, args []string) error {
	_, store, _, err := openStores()
	if err != nil {
		return err
	}
	ix, err := index.New(store, nil)
	if err != nil {
		return err
	}
	defer ix.Close()

	if err := ix.Rebuild(cmd.Context()); err != nil {
		return err
	}
	hits, err := ix.Search(strings.Join(args, " "), searchLimit)
	if err != nil {
		return err
	}
	out := make([]map[string]any, 0, len(hits))
	for _, hit := range hits {
		out = append(out, map[string]any{"sfid": hit.ID, "score": hit.Score})
	}
	return emit(out)
}
