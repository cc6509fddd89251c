package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/vault2git/internal/config"
	"github.com/steveyegge/vault2git/internal/journal"
	"github.com/steveyegge/vault2git/internal/ui"
)

var statsLimit int

var statsCmd = &cobra.Command{
	Use:     "stats [run-id]",
	GroupID: "maint",
	Short:   "Show recorded pull runs, or the timings of one run",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if settings.Journal.Path == "" {
			return errors.New("no journal configured: set journal.path")
		}

		db, err := journal.Open(settings.Journal.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		ui.InitColor(cmd.OutOrStdout())
		if len(args) == 1 {
			events, err := db.Events(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printEvents(cmd.OutOrStdout(), events)
			return nil
		}

		runs, err := db.Runs(cmd.Context(), statsLimit)
		if err != nil {
			return err
		}
		printRuns(cmd.OutOrStdout(), runs)
		return nil
	},
}

func init() {
	statsCmd.Flags().IntVarP(&statsLimit, "limit", "n", 10, "number of runs to show")
	rootCmd.AddCommand(statsCmd)
}

func printRuns(w io.Writer, runs []journal.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return
	}

	for _, r := range runs {
		fmt.Fprintf(w, "%s %s %s\n", renderStatus(r.Status), ui.RenderAccent(r.ID), r.StartedAt.Local().Format(time.DateTime))
		fmt.Fprintf(w, "   branches: %s\n", r.Branches)
		fmt.Fprintf(w, "   commits: %d, tags: %d", r.Commits, r.Tags)
		if r.Revisions > 0 {
			avg := (r.Elapsed / time.Duration(r.Revisions)).Round(time.Millisecond)
			fmt.Fprintf(w, ", %d revisions in %s (avg %s)", r.Revisions, r.Elapsed.Round(time.Millisecond), avg)
		}
		fmt.Fprintln(w)
		if r.Error != "" {
			fmt.Fprintf(w, "   %s\n", ui.RenderFail(r.Error))
		}
	}
}

func printEvents(w io.Writer, events []journal.Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No events recorded")
		return
	}
	for _, e := range events {
		fmt.Fprintf(w, "%s %s\n", ui.RenderMuted(e.RecordedAt.Local().Format(time.TimeOnly)), ui.ProgressMessage(e.Marker, e.Elapsed))
	}
}

func renderStatus(status string) string {
	switch status {
	case journal.StatusCompleted:
		return ui.RenderPass(status)
	case journal.StatusStopped, journal.StatusRunning:
		return ui.RenderWarn(status)
	default:
		return ui.RenderFail(status)
	}
}
