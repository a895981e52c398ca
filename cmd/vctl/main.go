// Package main implements the vctl CLI for manual operations against a
// vectord database.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	version    = "dev"
)

var rootCmd = &cobra.Command{
	Use:     "vctl",
	Short:   "CLI for vectord database operations",
	Long:    `vctl is a command-line interface for operating on a vectord database, including the one-shot legacy-to-standard schema migration.`,
	Version: version,
	// Exit codes are owned by the commands; cobra only prints usage errors.
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (optional, env vars always apply)")
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if code, ok := exitCodeFor(err); ok {
			os.Exit(code)
		}
		rootCmd.PrintErrln("Error:", err)
		os.Exit(1)
	}
}
