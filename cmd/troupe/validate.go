package main

import (
	"github.com/aretw0/troupe/internal/cli"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [file or dir]",
	Short: "Compile machine files and report their errors",
	Long: `Compiles a machine file, or every machine file of a directory, and lists
each problem found. Only builtin actions and guards are known to the command line.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := projectDir(cmd, args)
		watch, _ := cmd.Flags().GetBool("watch")
		if !watch {
			return cli.Validate(path, cmd.OutOrStdout())
		}

		logger, err := newLogger(cmd)
		if err != nil {
			return err
		}
		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()
		return cli.WatchValidate(ctx, path, cmd.OutOrStdout(), logger)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().BoolP("watch", "w", false, "Validate again on every change")
}
