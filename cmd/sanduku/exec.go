package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jkaninda/sanduku/internal/config"
	"github.com/jkaninda/sanduku/internal/storage"
)

func argString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// argStringPtr keeps absent and empty-string arguments distinguishable.
func argStringPtr(args map[string]any, key string) *string {
	if s, ok := args[key].(string); ok {
		return &s
	}
	return nil
}

var (
	execConfigPath string
	execArgsJSON   string
	execSessionID  string
)

var execCmd = &cobra.Command{
	Use:   "exec <tool>",
	Short: "Execute a single tool invocation and print the result",
	Args:  cobra.ExactArgs(1),
	RunE:  runExec,
}

func init() {
	execCmd.Flags().StringVar(&execConfigPath, "config", config.DefaultConfigPath(), "path to config file")
	execCmd.Flags().StringVar(&execArgsJSON, "args", "{}", "tool arguments as a JSON object")
	execCmd.Flags().StringVar(&execSessionID, "session", "", "session ID for workspace-mounted tools")
}

// runExec performs a one-shot execution outside the HTTP server.
func runExec(_ *cobra.Command, cmdArgs []string) error {
	logger := newLogger()

	cfg, err := loadConfig(execConfigPath)
	if err != nil {
		return err
	}

	sc, err := initShared(cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	toolName := cmdArgs[0]
	def, err := sc.Loader.Get(toolName)
	if err != nil {
		return fmt.Errorf("looking up tool %s: %w", toolName, err)
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(execArgsJSON), &args); err != nil {
		return fmt.Errorf("parsing --args: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage invocations dispatch to the session manager directly.
	if def.Name == "data_storage" {
		if execSessionID == "" {
			return fmt.Errorf("--session is required for data_storage")
		}
		result := sc.Store.ExecuteOperation(execSessionID, storage.OpRequest{
			Operation: argString(args, "operation"),
			Namespace: argString(args, "namespace"),
			Key:       argString(args, "key"),
			Value:     argStringPtr(args, "value"),
			SQL:       argString(args, "sql"),
			Path:      argString(args, "path"),
			Content:   argStringPtr(args, "content"),
		})
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
		if ok, _ := result["success"].(bool); !ok {
			return fmt.Errorf("storage operation failed")
		}
		return nil
	}

	if execSessionID != "" {
		if _, err := sc.Store.GetOrCreate(execSessionID); err != nil {
			return fmt.Errorf("creating session: %w", err)
		}
	}

	result := sc.Executor.Execute(ctx, def, args, execSessionID)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}

	if !result.Success {
		return fmt.Errorf("execution failed (%s)", result.Kind)
	}
	return nil
}
