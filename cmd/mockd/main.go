package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mockd",
	Short: "Configurable mock HTTP backend for integration testing",
	Long: `mockd is a mock HTTP backend for exercising client integrations locally.

It serves a generic CRUD surface on any path, resumable (TUS 1.0.0) and
plain file uploads, eight switchable authentication methods, per-IP and
per-endpoint rate limiting, and an API key issuer, all configurable
through a YAML file (MOCKD_CONFIG) and MOCKD_* environment variables.

State lives on disk under the storage root by default, in memory with
--memory, or in Redis when MOCKD_REDIS_ADDR is set.`,
	Version: "1.0.0",
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}
