package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for brokenlink.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "brokenlink",
		Short: "Find broken links on a website",
		Long: `brokenlink crawls a website breadth-first from a start URL and checks
every link it finds. Each link is reported as working, broken (HTTP 4xx/5xx)
or error (timeout, DNS failure, refused connection, ...).

Scans can be run once from the command line or submitted to an HTTP API
server ("brokenlink serve"). Finished scans are kept in a local archive and
can be listed and compared later.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewScanCmd())
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewCompareCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		// The summary already told the user which links are broken.
		if !errors.Is(err, ErrProblemsFound) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}
