package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/troupe"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of troupe",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "troupe version %s\n", strings.TrimSpace(troupe.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
