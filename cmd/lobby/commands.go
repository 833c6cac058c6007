package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"lobby/cmd/internal/app"
)

type reapOptions struct {
	cutoff string
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "lobby",
		Short:         "Session lifecycle and realtime presence server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newServeCommand(), newMigrateCommand(), newReapCommand())
	return cmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the auth API, the presence websocket and the session reaper",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Serve(cmd.Context())
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Migrate(cmd.Context())
		},
	}
}

func newReapCommand() *cobra.Command {
	opts := &reapOptions{}
	cmd := &cobra.Command{
		Use:   "reap",
		Short: "Run one session purge pass and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cutoff, err := parseCutoff(opts.cutoff)
			if err != nil {
				return err
			}
			deleted, err := app.Reap(cmd.Context(), cutoff)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d session(s)\n", deleted)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.cutoff, "cutoff", "", "purge rows last updated before this RFC3339 time (default: now minus refresh TTL)")
	return cmd
}

func parseCutoff(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("--cutoff must be RFC3339: %w", err)
	}
	if t.After(time.Now()) {
		return time.Time{}, fmt.Errorf("--cutoff %s is in the future", raw)
	}
	return t.UTC(), nil
}
