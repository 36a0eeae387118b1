package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/recstore/internal/value"
	"github.com/roach88/recstore/pkg/recstore"
)

// QueryOptions holds flags shared by query and recall.
type QueryOptions struct {
	*RootOptions
	Where   string
	Limit   int
	OrderBy string
	Desc    bool
}

func (o *QueryOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Where, "where", "", "raw SQL condition")
	cmd.Flags().IntVar(&o.Limit, "limit", 0, "maximum rows (0 for all)")
	cmd.Flags().StringVar(&o.OrderBy, "order-by", "", "column to sort by")
	cmd.Flags().BoolVar(&o.Desc, "desc", false, "sort descending")
}

func (o *QueryOptions) readOptions() []recstore.ReadOption {
	var ro []recstore.ReadOption
	if o.Where != "" {
		ro = append(ro, recstore.Condition(o.Where))
	}
	if o.OrderBy != "" {
		ro = append(ro, recstore.OrderBy(o.OrderBy, o.Desc))
	}
	if o.Limit > 0 {
		ro = append(ro, recstore.Limit(o.Limit))
	}
	return ro
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <table>",
		Short: "Read rows from a table",
		Long: `Read rows from a table as documents.

The --where condition is inserted into the statement verbatim.

Examples:
  recstore query people --db app.db
  recstore query people --db app.db --where "name LIKE 'J%'" --limit 10
  recstore query people --db app.db --order-by id --desc --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withDB(cmd, func(db *recstore.DB) error {
				t, err := recstore.Documents(db, args[0])
				if err != nil {
					return err
				}
				rows, err := t.Read(cmd.Context(), opts.readOptions()...)
				if err != nil {
					return err
				}
				return opts.formatter(cmd).Rows(rows)
			})
		},
	}
	opts.register(cmd)
	return cmd
}

// NewPutCommand creates the put command.
func NewPutCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "put <table> <json>",
		Short: "Insert or replace a document",
		Long: `Insert or replace a document. Fields without a column get one.
Without an "id" field the database assigns one.

Examples:
  recstore put people '{"id": 1, "name": "Jane"}' --db app.db`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := parseDocument(args[1])
			if err != nil {
				return err
			}
			return opts.withDB(cmd, func(db *recstore.DB) error {
				t, err := recstore.Documents(db, args[0])
				if err != nil {
					return err
				}
				id, err := t.Save(cmd.Context(), doc)
				if err != nil {
					return err
				}
				f := opts.formatter(cmd)
				if f.Format == "json" {
					return f.Success(map[string]int64{"id": id})
				}
				return f.Success(fmt.Sprintf("wrote %s id %d", args[0], id))
			})
		},
	}
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <table> <id>",
		Short: "Delete a row by id",
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
				if err := t.Delete(cmd.Context(), id); err != nil {
					return err
				}
				f := opts.formatter(cmd)
				if f.Format == "json" {
					return f.Success(map[string]int64{"id": id})
				}
				return f.Success(fmt.Sprintf("deleted %s id %d", args[0], id))
			})
		},
	}
}

func parseDocument(raw string) (recstore.Document, error) {
	v, err := value.Parse([]byte(raw))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid document", err)
	}
	obj, ok := v.(value.Object)
	if !ok {
		return nil, NewExitError(ExitCommandError, "invalid document: must be a JSON object")
	}
	return recstore.Document(obj.Native()), nil
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, WrapExitError(ExitCommandError, fmt.Sprintf("invalid id %q", raw), err)
	}
	return id, nil
}
