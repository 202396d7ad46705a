//    \\ SPIKE: Secure your secrets with SPIFFE.
//  \\\\\ Copyright 2024-present SPIKE contributors.
// \\\\\\\ SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spiffe/spike-chat/internal/config"
)

// appName is the application name used in CLI output and help text.
const appName = "spikectl"

// rootCmd is the root command for the operator CLI. It serves as the entry
// point for status, config, and expire subcommands.
var rootCmd = &cobra.Command{
	Use:   appName,
	Short: appName + " - operate the submission and messaging backend",
	Long: appName + " v" + config.Version + `
>> Operator CLI for the anonymous submission and E2E chat backend.`,
}

var serverURL string

func init() {
	rootCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8443", "base URL of the spiked service",
	)
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newConfigCommand())
	rootCmd.AddCommand(newExpireCommand())
}

// Execute runs the root command, exiting the process with status 1 on
// error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
