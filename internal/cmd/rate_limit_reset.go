package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quotaflow/quotaflow/internal/core/store"
	"github.com/quotaflow/quotaflow/internal/output"
)

var (
	rateLimitResetAll      bool
	rateLimitResetEndpoint string
	rateLimitResetPrefix   string
	rateLimitResetYes      bool
	rateLimitResetDryRun   bool
	rateLimitResetOutput   string
)

var rateLimitResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset stored rate-limit snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(rateLimitResetOutput)
		if err != nil {
			return err
		}

		query := store.Query{
			All:      rateLimitResetAll,
			Endpoint: strings.TrimSpace(rateLimitResetEndpoint),
			Prefix:   strings.TrimSpace(rateLimitResetPrefix),
		}
		if err := query.Validate(); err != nil {
			return err
		}

		if query.All && !rateLimitResetYes && !rateLimitResetDryRun {
			return errors.New("--all requires --yes (or use --dry-run)")
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		matched, err := db.CountSnapshots(cmd.Context(), query)
		if err != nil {
			return err
		}

		var deleted int64
		if !rateLimitResetDryRun {
			deleted, err = db.ResetSnapshots(cmd.Context(), query)
			if err != nil {
				return err
			}
		}

		if format == output.FormatJSON {
			rendered, err := output.FormatJSONIndent(map[string]any{
				"matched": matched,
				"deleted": deleted,
				"dry_run": rateLimitResetDryRun,
			})
			if err != nil {
				return err
			}
			fmt.Println(rendered)
			return nil
		}

		if rateLimitResetDryRun {
			fmt.Printf("Would delete %d snapshot(s)\n", matched)
			return nil
		}
		fmt.Printf("Deleted %d/%d snapshot(s)\n", deleted, matched)
		return nil
	},
}

func init() {
	rateLimitResetCmd.Flags().BoolVar(&rateLimitResetAll, "all", false, "Reset all endpoints")
	rateLimitResetCmd.Flags().StringVar(&rateLimitResetEndpoint, "endpoint", "", "Reset a single endpoint (exact match)")
	rateLimitResetCmd.Flags().StringVar(&rateLimitResetPrefix, "prefix", "", "Reset endpoints with matching prefix")
	rateLimitResetCmd.Flags().BoolVar(&rateLimitResetYes, "yes", false, "Confirm destructive reset")
	rateLimitResetCmd.Flags().BoolVar(&rateLimitResetDryRun, "dry-run", false, "Show what would be deleted")
	rateLimitResetCmd.Flags().StringVar(&rateLimitResetOutput, "output-format", string(output.FormatTable), "Output format: table|json")
}
