package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/kvstore/pkg/config"
	"github.com/cuemby/kvstore/pkg/manager"
)

var walCmd = &cobra.Command{
	Use:   "wal",
	Short: "Inspect or maintain the write-ahead log",
}

var walCompactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Checkpoint and compact the WAL offline",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		mgr, err := manager.New(cfg)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer mgr.Close()

		if err := mgr.Compact(); err != nil {
			return fmt.Errorf("compact wal: %w", err)
		}
		fmt.Println("wal compacted")
		return nil
	},
}

func init() {
	walCmd.PersistentFlags().String("config", "", "path to the YAML configuration file")
	walCmd.AddCommand(walCompactCmd)
}
