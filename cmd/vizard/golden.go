package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/ternarybob/vizard/internal/app"
	"github.com/ternarybob/vizard/internal/discovery"
)

var makeGoldenCmd = &cobra.Command{
	Use:   "make-golden [--missing] [--suite NAME...] [--skip-compile] [--clean]",
	Short: "Capture golden screenshots",
	Long: `Captures the approved screenshots every later test run is compared against.

--missing only captures tests with at least one viewport lacking a golden.
--suite limits the run to the suites named by the remaining arguments.`,
	RunE: runMakeGolden,
}

var (
	goldenMissing     bool
	goldenSuite       bool
	goldenSkipCompile bool
	goldenClean       bool
)

func init() {
	makeGoldenCmd.Flags().BoolVar(&goldenMissing, "missing", false, "Only capture tests without a complete golden set")
	makeGoldenCmd.Flags().BoolVar(&goldenSuite, "suite", false, "Only capture the suites named as arguments")
	makeGoldenCmd.Flags().BoolVar(&goldenSkipCompile, "skip-compile", false, "Reuse the previously compiled test bundle")
	makeGoldenCmd.Flags().BoolVar(&goldenClean, "clean", false, "Delete every existing golden screenshot first")
}

func runMakeGolden(cmd *cobra.Command, args []string) error {
	selection, err := goldenSelection(goldenMissing, goldenSuite, args)
	if err != nil {
		return err
	}

	return withApp(func(a *app.App) error {
		_, err := a.MakeGolden(cmd.Context(), app.GoldenOptions{
			Selection:   selection,
			SkipCompile: goldenSkipCompile,
			Clean:       goldenClean,
		})
		return err
	})
}

func goldenSelection(missing, suite bool, args []string) (discovery.Selection, error) {
	selection := discovery.Selection{MissingOnly: missing}
	if suite {
		if len(args) == 0 {
			return selection, fmt.Errorf("--suite needs at least one suite name")
		}
		selection.Suites = args
	} else if len(args) > 0 {
		return selection, fmt.Errorf("unexpected arguments %v (did you mean --suite?)", args)
	}
	return selection, nil
}
