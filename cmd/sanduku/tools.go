package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jkaninda/sanduku/internal/config"
)

var (
	toolsConfigPath string
	toolsAsSchema   bool
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the loaded tool catalog",
	RunE:  runTools,
}

func init() {
	toolsCmd.Flags().StringVar(&toolsConfigPath, "config", config.DefaultConfigPath(), "path to config file")
	toolsCmd.Flags().BoolVar(&toolsAsSchema, "schema", false, "print function-calling schemas as JSON")
}

func runTools(_ *cobra.Command, _ []string) error {
	logger := newLogger()

	cfg, err := loadConfig(toolsConfigPath)
	if err != nil {
		return err
	}

	sc, err := initShared(cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	if toolsAsSchema {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sc.Loader.FunctionDescriptors())
	}

	defs := sc.Loader.List()
	if len(defs) == 0 {
		fmt.Println("no tools loaded")
		return nil
	}
	for _, d := range defs {
		fmt.Printf("%-20s %s\n", d.Name, d.Description)
	}
	return nil
}
