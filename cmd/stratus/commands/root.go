package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	// Register the cloud drivers.
	_ "github.com/stratushpc/stratus/pkg/drivers/aws"
	_ "github.com/stratushpc/stratus/pkg/drivers/fake"
)

var (
	// Global flags
	etcDir     string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "stratus",
		Short: "Stratus - cluster cloud-bursting node registry",
		Long: `Stratus extends a compute cluster into the cloud. It keeps a registry
of burstable hosts and the cloud instances behind them, journals every
usage interval for accounting, and regenerates the hosts and netgroup
files the cluster resolves burst nodes through.

Features:
  - SQLite-backed node registry and append-only usage journal
  - Declarative fleet file (CUE) reconciled by rebuild
  - EC2 instance lifecycle via cloud drivers
  - OPA admission policies (naming, protected hosts, fleet ceiling)
  - Atomic hosts/netgroup artifact generation with SSH mirroring`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&etcDir, "etc", "e", "", "config directory (default $STRATUS_ETC or /etc/stratus)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newOnCommand())
	rootCmd.AddCommand(newOffCommand())
	rootCmd.AddCommand(newRebuildCommand())
	rootCmd.AddCommand(newRegenCommand())
	rootCmd.AddCommand(newNodesCommand())
	rootCmd.AddCommand(newJournalCommand())
	rootCmd.AddCommand(newSummaryCommand())
	rootCmd.AddCommand(newFleetCommand())

	return rootCmd
}
