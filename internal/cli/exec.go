package cli

import (
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/roach88/recstore/pkg/recstore"
)

// ChangeInfo is one row change observed while a statement ran.
type ChangeInfo struct {
	Kind  string `json:"kind"`
	Table string `json:"table"`
	RowID int64  `json:"rowid"`
}

// ExecResult is the outcome of the exec command.
type ExecResult struct {
	RowsAffected int64        `json:"rows_affected"`
	Changes      []ChangeInfo `json:"changes"`
}

// NewExecCommand creates the exec command.
func NewExecCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <sql> [args...]",
		Short: "Run a statement and report the rows it changed",
		Long: `Run a statement that returns no rows. Extra arguments are bound to
its placeholders as text. Every row change reported by the update hook is
printed.

Examples:
  recstore exec "UPDATE people SET name = ? WHERE id = ?" Judy 1 --db app.db`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			binds := make([]any, len(args)-1)
			for i, a := range args[1:] {
				binds[i] = a
			}
			return opts.withDB(cmd, func(db *recstore.DB) error {
				debug := recstore.DebugHook(opts.logger(cmd))
				var (
					mu      sync.Mutex
					changes = []ChangeInfo{}
				)
				err := db.SetUpdateHook(recstore.Hook{
					Verbose: true,
					Callback: func(c recstore.RowChange) {
						debug.Callback(c)
						mu.Lock()
						defer mu.Unlock()
						changes = append(changes, ChangeInfo{Kind: c.Kind.String(), Table: c.Table, RowID: c.RowID})
					},
				})
				if err != nil {
					return err
				}

				res, err := db.Exec(cmd.Context(), args[0], binds...)
				if err != nil {
					return err
				}
				n, err := res.RowsAffected()
				if err != nil {
					return err
				}

				mu.Lock()
				out := ExecResult{RowsAffected: n, Changes: changes}
				mu.Unlock()

				f := opts.formatter(cmd)
				if f.Format == "json" {
					return f.Success(out)
				}
				for _, c := range out.Changes {
					fmt.Fprintf(f.Writer, "%s %s %d\n", c.Kind, c.Table, c.RowID)
				}
				fmt.Fprintf(f.Writer, "%d rows affected\n", out.RowsAffected)
				return nil
			})
		},
	}
}
