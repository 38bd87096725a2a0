package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quotaflow/quotaflow/internal/core/store"
	"github.com/quotaflow/quotaflow/internal/output"
)

var (
	rateLimitListOutput string
	rateLimitListAll    bool
	rateLimitListPrefix string
)

var rateLimitListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored rate-limit snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(rateLimitListOutput)
		if err != nil {
			return err
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		query := store.Query{
			All:    rateLimitListAll,
			Prefix: strings.TrimSpace(rateLimitListPrefix),
		}
		if !query.All && query.Prefix == "" {
			query.All = true
		}

		entries, err := db.ListSnapshots(cmd.Context(), query)
		if err != nil {
			return err
		}

		if format == output.FormatJSON {
			rendered, err := output.FormatJSONIndent(entries)
			if err != nil {
				return err
			}
			fmt.Println(rendered)
			return nil
		}

		fmt.Println(output.FormatSnapshots(entries))
		return nil
	},
}

func init() {
	rateLimitListCmd.Flags().StringVar(&rateLimitListOutput, "output-format", string(output.FormatTable), "Output format: table|json")
	rateLimitListCmd.Flags().BoolVar(&rateLimitListAll, "all", false, "List all endpoints")
	rateLimitListCmd.Flags().StringVar(&rateLimitListPrefix, "prefix", "", "List endpoints with matching prefix")
}
