package main

import (
	"os"

	"github.com/aretw0/troupe/internal/cli"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Run a machine and print its final snapshot",
	Long: `Starts the machine of a file, sends the given events in order and prints
the persisted snapshot. With --session the run resumes and saves that session.
On a terminal, further events are read from the prompt until a final state.`,
	Example: `  troupe run door.yaml -e OPEN -e 'SET={"n":2}'
  troupe run door.yaml --session s1 -e LOCK --store sqlite`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger(cmd)
		if err != nil {
			return err
		}
		f := cmd.Flags()
		opts := cli.RunOptions{
			Path:   args[0],
			In:     os.Stdin,
			Out:    cmd.OutOrStdout(),
			Logger: logger,
		}
		opts.Events, _ = f.GetStringArray("event")
		opts.Input, _ = f.GetString("input")
		opts.Format, _ = f.GetString("format")
		opts.SessionID, _ = f.GetString("session")
		opts.Interactive = cli.IsTerminal(os.Stdin)
		if f.Changed("interactive") {
			opts.Interactive, _ = f.GetBool("interactive")
		}

		if opts.SessionID != "" {
			p, err := cli.OpenStore(storeConfig(cmd), logger)
			if err != nil {
				return err
			}
			defer p.Close()
			opts.Sessions = p.Manager()
		}

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()
		_, err = cli.Run(ctx, opts)
		return err
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringArrayP("event", "e", nil, `Event to send, "TYPE" or "TYPE=<json payload>" (repeatable)`)
	runCmd.Flags().String("input", "", "JSON input of a new actor")
	runCmd.Flags().StringP("format", "f", "yaml", "Snapshot format: yaml or json")
	runCmd.Flags().StringP("session", "s", "", "Session to resume and save")
	runCmd.Flags().BoolP("interactive", "i", false, "Read events from stdin (default when stdin is a terminal)")
	addStoreFlags(runCmd.Flags())
}
