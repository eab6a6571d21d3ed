package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smallfab/smallfab/core/audit"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Scan commit history for untracked entity mutations",
	Long:  `Flag commits that touch entities/ without declaring the affected sfids.`,
	RunE:  runAudit,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the repository layout and records",
	Long:  `Check entity directories, records, field specs, and BOM references.`,
	RunE:  runValidate,
}

var auditLimit int

func init() {
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(validateCmd)

	auditCmd.Flags().IntVar(&auditLimit, "limit", 0, "Maximum commits to scan (0 for all)")
}

func runAudit(cmd *cobra.Command, args []string) error {
	git, _, _, err := openStores()
	if err != nil {
		return err
	}
	violations, err := audit.ScanLog(git, auditLimit)
	if err != nil {
		return err
	}
	if err := emit(map[string]any{"violations": violations}); err != nil {
		return err
	}
	if len(violations) > 0 {
		return fmt.Errorf("%d commit(s) touch entities without sfid annotations", len(violations))
	}
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	git, _, cfg, err := openStores()
	if err != nil {
		return err
	}
	issues, err := audit.ValidateTree(git, cfg)
	if err != nil {
		return err
	}
	errors := 0
	for _, issue := range issues {
		if issue.Severity == audit.SeverityError {
			errors++
		}
	}
	if err := emit(map[string]any{"issues": issues, "errors": errors}); err != nil {
		return err
	}
	if errors > 0 {
		return fmt.Errorf("validation found %d error(s)", errors)
	}
	return nil
}
