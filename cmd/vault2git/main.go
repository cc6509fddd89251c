// Command vault2git replays the history of source repository paths
// into branches of a git repository.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set by the build
var (
	Version = "0.3.0"
	Build   = "dev"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "vault2git",
	Short: "Migrate source repository history into git, one commit per transaction",
	Long: `vault2git replays the transactions of one or more source paths onto git
branches. Each transaction becomes one commit whose message ends with a
provenance line:

  [git-vault-id] MyRepo$/Proj@12/345

Runs are resumable: the next run continues after the last migrated
revision found near the tip of each branch.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "migrate", Title: "Migration:"},
		&cobra.Group{ID: "maint", Title: "Maintenance:"},
	)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ./vault2git.toml or ~/.config/vault2git/vault2git.toml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
