package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/recstore/pkg/recstore"
)

// ColumnInfo describes one column in schema output.
type ColumnInfo struct {
	Name     string `json:"name"`
	Affinity string `json:"affinity"`
}

// NewTablesCommand creates the tables command.
func NewTablesCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List user tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withDB(cmd, func(db *recstore.DB) error {
				tables, err := db.Tables(cmd.Context())
				if err != nil {
					return err
				}
				f := opts.formatter(cmd)
				if f.Format == "json" {
					if tables == nil {
						tables = []string{}
					}
					return f.Success(tables)
				}
				for _, t := range tables {
					fmt.Fprintln(f.Writer, t)
				}
				return nil
			})
		},
	}
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema <table>",
		Short: "Show a table's columns and their storage affinities",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withDB(cmd, func(db *recstore.DB) error {
				t, err := recstore.Documents(db, args[0])
				if err != nil {
					return err
				}
				cols, err := t.Columns(cmd.Context())
				if err != nil {
					return err
				}
				if len(cols) == 0 {
					return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("table %s not found", args[0])}
				}

				info := make([]ColumnInfo, len(cols))
				for i, c := range cols {
					info[i] = ColumnInfo{Name: c.Name, Affinity: c.Affinity.String()}
				}
				f := opts.formatter(cmd)
				if f.Format == "json" {
					return f.Success(info)
				}
				var b strings.Builder
				for _, c := range info {
					fmt.Fprintf(&b, "%s\t%s\n", c.Name, c.Affinity)
				}
				fmt.Fprint(f.Writer, b.String())
				return nil
			})
		},
	}
}
