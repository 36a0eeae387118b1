package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/recstore/pkg/recstore"
)

// RecallOptions holds flags for the recall command.
type RecallOptions struct {
	QueryOptions
	AsOf string
}

// NewRecallCommand creates the recall command.
func NewRecallCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecallOptions{QueryOptions: QueryOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "recall <table>",
		Short: "Read history snapshots taken at or before a time",
		Long: `Read history snapshots of a table, newest first.

Examples:
  recstore recall people --db app.db
  recstore recall people --db app.db --as-of 2024-01-01T00:00:00Z --limit 1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asOf := time.Now()
			if opts.AsOf != "" {
				t, err := time.Parse(time.RFC3339Nano, opts.AsOf)
				if err != nil {
					return WrapExitError(ExitCommandError, fmt.Sprintf("invalid --as-of %q", opts.AsOf), err)
				}
				asOf = t
			}
			return opts.withDB(cmd, func(db *recstore.DB) error {
				t, err := recstore.Documents(db, args[0])
				if err != nil {
					return err
				}
				rows, err := t.Recall(cmd.Context(), asOf, opts.readOptions()...)
				if err != nil {
					return err
				}
				return opts.formatter(cmd).Rows(rows)
			})
		},
	}
	opts.register(cmd)
	cmd.Flags().StringVar(&opts.AsOf, "as-of", "", "RFC 3339 time (default now)")
	return cmd
}

// NewHistoryCommand creates the history command group.
func NewHistoryCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Manage table history",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "enable <table>",
		Short: "Create the history table for a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withDB(cmd, func(db *recstore.DB) error {
				t, err := recstore.Documents(db, args[0])
				if err != nil {
					return err
				}
				if err := t.EnableHistory(cmd.Context()); err != nil {
					return err
				}
				return opts.formatter(cmd).Success(fmt.Sprintf("history enabled for %s", args[0]))
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "snapshot <table> <id>",
		Short: "Copy a row into the history table",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			return opts.withDB(cmd, func(db *recstore.DB) error {
				t, err := recstore.Documents(db, args[0])
				if err != nil {
					return err
				}
				if err := t.Snapshot(cmd.Context(), id); err != nil {
					return err
				}
				f := opts.formatter(cmd)
				if f.Format == "json" {
					return f.Success(map[string]int64{"id": id})
				}
				return f.Success(fmt.Sprintf("snapshot %s id %d", args[0], id))
			})
		},
	})

	return cmd
}
