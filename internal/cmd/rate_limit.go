package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quotaflow/quotaflow/internal/config"
	"github.com/quotaflow/quotaflow/internal/core/store"
)

var rateLimitCmd = &cobra.Command{
	Use:   "rate-limit",
	Short: "Manage persisted rate-limit snapshots",
}

// openStore opens the snapshot store from the loaded configuration.
func openStore(ctx context.Context) (store.SnapshotStore, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	snapshots, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if snapshots == nil {
		return nil, fmt.Errorf("snapshot persistence is disabled (store.driver=%q)", cfg.Store.Driver)
	}
	return snapshots, nil
}

func init() {
	rateLimitCmd.AddCommand(rateLimitListCmd)
	rateLimitCmd.AddCommand(rateLimitResetCmd)
	rootCmd.AddCommand(rateLimitCmd)
}
