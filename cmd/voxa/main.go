// voxa is the agent worker binary: it registers with a dispatch server,
// keeps a pool of warm job processes, and runs voice-agent sessions in them.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	_ "github.com/voxalabs/agents-go/pkg/plugin/fake"   // register fake providers
	_ "github.com/voxalabs/agents-go/pkg/plugin/openai" // register OpenAI providers
	"github.com/voxalabs/agents-go/pkg/version"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "voxa",
	Short:        "voxa - real-time voice agent worker",
	Long:         `voxa runs voice agents: a worker that takes job assignments from a dispatch server and executes each one in a pre-warmed child process.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.GetVersionInfo())
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to worker config file (YAML)")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(devCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(turnCmd)
	rootCmd.AddCommand(jobCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setupLogger builds the process logger. Logs always go to stderr; in job
// child processes stdout carries IPC frames and must stay clean.
func setupLogger(cfg LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
