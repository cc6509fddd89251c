package main

import (
	"fmt"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/spf13/cobra"

	"github.com/steveyegge/vault2git/internal/config"
	"github.com/steveyegge/vault2git/internal/logging"
	"github.com/steveyegge/vault2git/internal/source/export"
)

var workfolderCmd = &cobra.Command{
	Use:     "workfolder",
	GroupID: "maint",
	Short:   "Inspect or change source working folder bindings",
}

var workfolderListCmd = &cobra.Command{
	Use:   "list",
	Short: "List working folder bindings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := workfolderClient()
		if err != nil {
			return err
		}
		folders, err := c.WorkingFolders(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(folders) == 0 {
			fmt.Fprintln(out, "No working folders bound")
			return nil
		}
		sorted := treemap.NewWithStringComparator()
		for path, dir := range folders {
			sorted.Put(path, dir)
		}
		it := sorted.Iterator()
		for it.Next() {
			fmt.Fprintf(out, "%s -> %s\n", it.Key(), it.Value())
		}
		return nil
	},
}

var workfolderSetCmd = &cobra.Command{
	Use:   "set <source-path> <local-dir>",
	Short: "Bind a source path to a local directory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := workfolderClient()
		if err != nil {
			return err
		}
		if err := c.SetWorkingFolder(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Bound %s to %s\n", args[0], args[1])
		return nil
	},
}

var workfolderRemoveCmd = &cobra.Command{
	Use:   "remove <source-path>",
	Short: "Remove the binding of a source path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := workfolderClient()
		if err != nil {
			return err
		}
		if err := c.RemoveWorkingFolder(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed binding of %s\n", args[0])
		return nil
	},
}

func init() {
	workfolderCmd.AddCommand(workfolderListCmd, workfolderSetCmd, workfolderRemoveCmd)
	rootCmd.AddCommand(workfolderCmd)
}

func workfolderClient() (*export.Client, error) {
	settings, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logs := logging.New(logging.Options{})
	return openSource(settings, logs, false)
}
