package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/ternarybob/vizard/internal/app"
	"github.com/ternarybob/vizard/internal/models"
)

var historyCmd = &cobra.Command{
	Use:   "history [--limit N]",
	Short: "List recent runs",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of runs to list (0 = all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	// Readable even when recording is disabled
	config.History.Enabled = true

	a, err := app.New(config, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	runs, err := a.Runs(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	printRuns(cmd.OutOrStdout(), runs)
	return nil
}

func printRuns(out io.Writer, runs []*models.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tCOMMAND\tRESULT\tTESTS\tPERMUTATIONS\tFAILURES\tDURATION\tID")
	for _, run := range runs {
		result := "passed"
		if !run.Passed {
			result = "failed"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			run.StartedAt.Local().Format(time.DateTime),
			run.Command,
			result,
			run.Tests,
			run.Permutations,
			run.Failures,
			run.Duration().Round(time.Millisecond),
			run.ID,
		)
	}
	w.Flush()
}
