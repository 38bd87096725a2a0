package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quotaflow/quotaflow/internal/core"
	"github.com/quotaflow/quotaflow/internal/output"
)

var (
	stateOutput  string
	stateMetrics bool
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show a running scheduler's state",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(stateOutput)
		if err != nil {
			return err
		}

		baseURL := serverBaseURL()

		var state core.RuntimeState
		if err := apiGet(cmd.Context(), baseURL, "/state", &state); err != nil {
			return err
		}

		if format == output.FormatJSON {
			payload := map[string]any{"state": state}
			if stateMetrics {
				var metrics core.Metrics
				if err := apiGet(cmd.Context(), baseURL, "/metrics", &metrics); err != nil {
					return err
				}
				payload["metrics"] = metrics
			}
			rendered, err := output.FormatJSONIndent(payload)
			if err != nil {
				return err
			}
			fmt.Println(rendered)
			return nil
		}

		fmt.Println(output.FormatState(state))
		if stateMetrics {
			var metrics core.Metrics
			if err := apiGet(cmd.Context(), baseURL, "/metrics", &metrics); err != nil {
				return err
			}
			fmt.Println(output.FormatMetrics(metrics))
		}
		return nil
	},
}

func init() {
	stateCmd.Flags().StringVar(&stateOutput, "output-format", string(output.FormatTable), "Output format: table|json")
	stateCmd.Flags().BoolVar(&stateMetrics, "metrics", false, "Also show scheduler counters")
	rootCmd.AddCommand(stateCmd)
}
