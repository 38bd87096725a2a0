package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quotaflow/quotaflow/internal/output"
)

var (
	submitMethod   string
	submitBody     string
	submitContext  string
	submitPriority string
)

var submitCmd = &cobra.Command{
	Use:   "submit <endpoint>",
	Short: "Schedule one request through a running scheduler and wait for it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload := map[string]any{
			"endpoint":   args[0],
			"method":     submitMethod,
			"context_id": submitContext,
			"priority":   submitPriority,
		}
		if submitBody != "" {
			if !json.Valid([]byte(submitBody)) {
				return fmt.Errorf("--body must be valid JSON")
			}
			payload["body"] = json.RawMessage(submitBody)
		}

		var result struct {
			ID         string          `json:"id"`
			StatusCode int             `json:"status_code"`
			Data       json.RawMessage `json:"data"`
		}
		if err := apiPost(cmd.Context(), serverBaseURL(), "/requests", payload, &result); err != nil {
			return err
		}

		rendered, err := output.FormatJSONIndent(result)
		if err != nil {
			return err
		}
		fmt.Println(rendered)
		return nil
	},
}

func init() {
	submitCmd.Flags().StringVarP(&submitMethod, "method", "X", "GET", "HTTP method")
	submitCmd.Flags().StringVarP(&submitBody, "body", "d", "", "JSON request body")
	submitCmd.Flags().StringVarP(&submitContext, "context", "c", "", "Execution context id (required)")
	submitCmd.Flags().StringVar(&submitPriority, "priority", "normal", "Priority class: high|normal|low")
	_ = submitCmd.MarkFlagRequired("context")
	rootCmd.AddCommand(submitCmd)
}
