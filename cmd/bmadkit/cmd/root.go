package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "bmadkit",
	Short: "Resolve and serve BMAD methodology content from local and git sources",
	Long: `bmadkit locates BMAD installations (agents, workflows, tasks) across
explicit paths, the project directory, cached git remotes, and the user
home, merges them into one priority-ordered view, and serves the result
on the command line or as an MCP server over stdio.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("bmadkit %s (commit: %s, built: %s)\n", Version, Commit, Date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringArray("path", nil, "Explicit installation directory (repeatable, highest priority)")
	rootCmd.PersistentFlags().StringArray("remote", nil, "Git remote specifier git+https://host/org/repo.git[#ref][:/subpath] (repeatable)")
	rootCmd.PersistentFlags().Bool("strict", false, "Resolve from explicit paths and git remotes only")
	rootCmd.PersistentFlags().Int("max-depth", 0, "Discovery depth bound below each scan root (default 3)")
	rootCmd.PersistentFlags().String("cache-dir", "", "Override the git cache directory")
	rootCmd.PersistentFlags().Bool("no-update", false, "Never refresh cached clones, even past their TTL")

	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
