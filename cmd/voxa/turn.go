package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voxalabs/agents-go/pkg/turn"
)

var turnCmd = &cobra.Command{
	Use:   "turn",
	Short: "End-of-turn model management",
}

var turnDownloadCmd = &cobra.Command{
	Use:   "download-models",
	Short: "Download the end-of-turn detector models into the local cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		setupLogger(LogConfig{Level: cfg.Log.Level, Format: "text"})
		return turn.NewDownloader(cfg.Turn.ModelPath).DownloadAll()
	},
}

var turnStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which end-of-turn models are cached",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		for name, ready := range turn.NewDownloader(cfg.Turn.ModelPath).Status() {
			state := "missing"
			if ready {
				state = "ready"
			}
			fmt.Printf("%-14s %s\n", name, state)
		}
		return nil
	},
}

func init() {
	turnCmd.AddCommand(turnDownloadCmd)
	turnCmd.AddCommand(turnStatusCmd)
}
