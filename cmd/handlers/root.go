/*
Copyright © 2025 Your Name

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package handlers

import (
	"fmt"
	"os"

	"paperlens/internal/config"
	"paperlens/internal/logger"

	"github.com/spf13/cobra"
)

var cfgFile string

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "paperlens",
		Short: "Paperlens fetches, ranks, and digests research papers against your interests.",
		Long: `Paperlens pulls the day's papers from a preprint API and a community
daily-picks feed, scores them against your configured interests and
research directions, optionally asks an LLM for relevance scores and a
narrative, and writes a ranked markdown digest.

Run "paperlens digest" daily, "paperlens backfill" to replay missed
days, and "paperlens rollup" for weekly summaries.`,
	}

	// Initialize configuration
	cobra.OnInitialize(initConfig)

	// Add persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .paperlens.yaml)")

	// Add subcommands
	rootCmd.AddCommand(NewDigestCmd())
	rootCmd.AddCommand(NewBackfillCmd())
	rootCmd.AddCommand(NewRollupCmd())
	rootCmd.AddCommand(NewPruneCmd())
	rootCmd.AddCommand(NewStatusCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	_, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(config.GetLogging().Level)

	if config.Get().App.ConfigFile != "" {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", config.Get().App.ConfigFile)
	}
}
