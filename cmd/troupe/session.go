package main

import (
	"errors"
	"fmt"

	"github.com/aretw0/troupe/internal/cli"
	"github.com/aretw0/troupe/internal/presentation/tui"
	"github.com/aretw0/troupe/pkg/domain"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage persistent sessions",
	Long:  `List, inspect, and remove the sessions saved in the configured store.`,
}

var sessionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openSessionStore(cmd)
		if err != nil {
			return err
		}
		defer p.Close()

		ids, err := p.Store.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("error listing sessions: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(ids) == 0 {
			fmt.Fprintln(out, "No sessions found.")
			return nil
		}
		for _, id := range ids {
			snap, err := p.Store.Load(cmd.Context(), id)
			if err != nil {
				fmt.Fprintf(out, "- %s (unreadable: %v)\n", id, err)
				continue
			}
			fmt.Fprintf(out, "- %s  %s  %s\n", id, snap.LogicID, tui.Status(snap.Status))
		}
		return nil
	},
}

var sessionInspectCmd = &cobra.Command{
	Use:   "inspect <session-id>",
	Short: "Inspect the snapshot of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openSessionStore(cmd)
		if err != nil {
			return err
		}
		defer p.Close()

		snap, err := p.Store.Load(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("error loading session '%s': %w", args[0], err)
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(snap); err != nil {
			return err
		}
		return enc.Close()
	},
}

var sessionRmCmd = &cobra.Command{
	Use:   "rm <session-id>...",
	Short: "Remove one or more sessions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openSessionStore(cmd)
		if err != nil {
			return err
		}
		defer p.Close()

		var errs []error
		for _, id := range args {
			if err := p.Store.Delete(cmd.Context(), id); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
				errs = append(errs, fmt.Errorf("error removing '%s': %w", id, err))
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed session '%s'\n", id)
		}
		return errors.Join(errs...)
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionLsCmd)
	sessionCmd.AddCommand(sessionInspectCmd)
	sessionCmd.AddCommand(sessionRmCmd)
	addStoreFlags(sessionCmd.PersistentFlags())
}

func openSessionStore(cmd *cobra.Command) (*cli.Persistence, error) {
	logger, err := newLogger(cmd)
	if err != nil {
		return nil, err
	}
	return cli.OpenStore(storeConfig(cmd), logger)
}
