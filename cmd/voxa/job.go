package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/voxalabs/agents-go/internal/proc"
)

// jobCmd is the job-process entry the worker spawns for each pool slot. It
// is not meant to be invoked by hand: stdin/stdout carry IPC frames.
var jobCmd = &cobra.Command{
	Use:    "_job",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(os.Getenv("VOXA_CONFIG"))
		if err != nil {
			return err
		}
		setupLogger(cfg.Log)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return proc.RunChild(ctx, assistantDefinition(cfg), os.Stdin, os.Stdout)
	},
}
