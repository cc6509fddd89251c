package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/vault2git/internal/vcs"
	"github.com/steveyegge/vault2git/internal/vcs/git"
)

var versionCmd = &cobra.Command{
	Use:     "version",
	GroupID: "maint",
	Short:   "Print the vault2git and git versions",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "vault2git %s (%s)\n", Version, Build)

		runner, err := vcs.NewRunner(vcs.RunnerConfig{})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		res, err := runner.Run(context.Background(), "", "version")
		if err != nil {
			fmt.Fprintf(out, "git: not available (%v)\n", err)
			return
		}
		version := git.ParseVersion(vcs.FirstLine(res.Lines))
		status := "ok"
		if err := git.CheckVersion(version, git.MinVersion); err != nil {
			status = fmt.Sprintf("too old, need %s or newer", git.MinVersion)
		}
		fmt.Fprintf(out, "git %s (%s)\n", version, status)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
