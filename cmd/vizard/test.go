package main

import (
	"github.com/spf13/cobra"
	"github.com/ternarybob/vizard/internal/app"
)

var testCmd = &cobra.Command{
	Use:   "test [--skip-compile]",
	Short: "Capture screenshots and compare them against the goldens",
	Args:  cobra.NoArgs,
	RunE:  runTest,
}

var testSkipCompile bool

func init() {
	testCmd.Flags().BoolVar(&testSkipCompile, "skip-compile", false, "Reuse the previously compiled test bundle")
}

func runTest(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app.App) error {
		run, err := a.Test(cmd.Context(), testSkipCompile)
		if err != nil {
			return err
		}
		if !run.Passed {
			return errTestsFailed
		}
		return nil
	})
}
