// Sanduku — sandboxed tool execution service.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sanduku",
	Short: "Sanduku — sandboxed tool execution service.",
	Long: `Sanduku runs declaratively described tools inside hardened, ephemeral
Docker containers. It loads tool descriptors from Markdown files, screens
interpretable code before execution, and gives each session isolated
key-value, SQL, and file storage under a per-session workspace.`,
	RunE:          runServe, // Default to server mode.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, execCmd, toolsCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
