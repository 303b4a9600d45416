package main

import (
	"github.com/spf13/cobra"
	"github.com/ternarybob/vizard/internal/app"
)

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Bundle the test files without running them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app.App) error {
			return a.Compile(cmd.Context())
		})
	},
}
