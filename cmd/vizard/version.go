package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/ternarybob/vizard/internal/common"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		common.PrintBanner(common.GetVersion(), nil, nil)
		fmt.Fprintf(cmd.OutOrStdout(), "Vizard version %s\n", common.GetFullVersion())
	},
}
