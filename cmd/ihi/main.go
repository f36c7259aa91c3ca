package main

import (
	"fmt"
	"os"

	"github.com/ihi-server/ihi/internal/errors"
	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		errors.PrintError(err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "ihi",
		Short: "Multiplayer virtual world server",
		Long: `ihi runs the session layer of a multiplayer virtual world.

Clients connect over WebSocket and speak the B64/VL64 wire protocol.
Player attributes are cached in memory and persisted to the configured
store (memory, SQLite or S3). Gameplay events can be published to NATS.

The configuration file is read from --config, then $IHI_CONFIG, then
./ihi.yaml. Without any of them the server runs on defaults.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to ihi.yaml")

	root.AddCommand(
		serveCmd(&configPath),
		accountCmd(&configPath),
		versionCmd(),
	)
	return root
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}
