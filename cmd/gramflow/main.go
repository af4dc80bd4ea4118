// Command gramflow is the command-line face of the toolkit: it validates
// and debugs grammars against a grammar server, runs unconstrained vs
// constrained comparisons with live output, browses stored runs, and can
// serve the comparison gateway or the MCP tool surface.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gramflow",
		Short: "Grammar-constrained generation toolkit",
		Long: `gramflow drives a grammar server: validate and debug grammar specs,
run side-by-side comparisons of unconstrained and grammar-constrained
generation, browse stored comparison runs, and serve the comparison
API over HTTP or MCP.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// A .env next to the binary is a convenience, not a requirement.
			_ = godotenv.Load()
		},
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newDebugCmd())
	cmd.AddCommand(newCompareCmd())
	cmd.AddCommand(newGrammarsCmd())
	cmd.AddCommand(newRunsCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMCPCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gramflow %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
