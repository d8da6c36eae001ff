// Command groupchat runs the group-chat manager's gateway process: it
// loads a team configuration, wires up the LLM adapter, plugin chain, and
// agent containers it names, and serves the observer websocket protocol
// over HTTP until interrupted.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "groupchat",
		Short:        "Multi-agent group-chat manager and gateway",
		Version:      fmt.Sprintf("%s", version),
		SilenceUsage: true,
	}
	root.AddCommand(buildServeCmd())
	return root
}
