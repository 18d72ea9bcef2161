package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dmr-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "dmr-cli",
	Short: "License plate index builder for the DMR registration dump",
	Long:  "Downloads the newest vehicle registration archive from the DMR FTP drop, stream-scans the embedded XML, and builds a deduplicated license plate index.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := cfg.Validate(); err != nil {
			return err
		}

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
