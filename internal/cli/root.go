// Package cli wires the lightflow subcommands. The commands are thin:
// they parse flags, load the graph file into a fresh registry, and call
// into the flow engine. Handled failures (a recorded failed status) exit
// zero; only unhandled internal errors exit non-zero.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// NewRootCmd builds the lightflow command tree.
func NewRootCmd() *cobra.Command {
	var messageLevel string

	root := &cobra.Command{
		Use:           "lightflow",
		Short:         "Orchestrate batch pipelines as arrays of per-file jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogs(messageLevel)
		},
	}
	root.PersistentFlags().StringVarP(&messageLevel, "message-level", "m", "INFO",
		"logging level (DEBUG, INFO, WARNING, ERROR)")

	root.AddCommand(newBuildCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newRunCmd())
	return root
}

func setupLogs(level string) error {
	var lvl slog.Level
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "INFO":
		lvl = slog.LevelInfo
	case "WARNING", "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		return fmt.Errorf("invalid message level %q", level)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	return nil
}
