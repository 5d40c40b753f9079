package main

import (
	"fmt"
	"os"

	"github.com/aretw0/troupe"
	"github.com/aretw0/troupe/internal/cli"
	"github.com/aretw0/troupe/internal/presentation/tui"
	"github.com/aretw0/troupe/pkg/machine"
	"github.com/spf13/cobra"
)

var describeCmd = &cobra.Command{
	Use:   "describe <file>",
	Short: "Print the states and transitions of a machine",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := troupe.LoadMachine(args[0], machine.Implementations{})
		if err != nil {
			return err
		}
		render := tui.NewRenderer(cli.IsTerminal(os.Stdout))
		out, err := render(tui.Describe(m))
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(describeCmd)
}
