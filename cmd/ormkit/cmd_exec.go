package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fernandezvara/ormkit"
	"github.com/fernandezvara/ormkit/convert"
)

// queryVerbs start statements that return rows.
var queryVerbs = []string{"SELECT", "WITH", "PRAGMA", "SHOW", "EXPLAIN", "VALUES"}

func isQuery(stmt string) bool {
	head := strings.ToUpper(strings.TrimSpace(stmt))
	for _, v := range queryVerbs {
		if strings.HasPrefix(head, v) {
			return true
		}
	}
	return strings.Contains(head, " RETURNING ")
}

// execCmd runs one statement.
func execCmd() *cobra.Command {
	var (
		jsonOutput bool
		inTx       bool
	)

	cmd := &cobra.Command{
		Use:   "exec <statement> [args...]",
		Short: "Run a statement and print its rows or the affected row count",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			stmt := args[0]
			params := make([]any, len(args)-1)
			for i, a := range args[1:] {
				params[i] = a
			}

			run := func(src ormkit.Source) error {
				ctx := cmd.Context()
				if !isQuery(stmt) {
					n, err := src.Conn().Exec(ctx, stmt, params...)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%d row(s) affected\n", n)
					return nil
				}
				var res resultSet
				err := src.Conn().Rows(ctx, stmt, params, res.add)
				if err != nil {
					return err
				}
				if jsonOutput {
					return res.writeJSON(cmd.OutOrStdout())
				}
				return res.writeTable(cmd.OutOrStdout())
			}

			if inTx {
				return db.Transaction(cmd.Context(), func(_ context.Context, tx *ormkit.Tx) error {
					return run(tx)
				})
			}
			return run(db)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print rows as JSON")
	cmd.Flags().BoolVar(&inTx, "tx", false, "Run the statement inside a transaction")
	return cmd
}

// resultSet collects rows keeping the column order of the result.
type resultSet struct {
	columns []string
	rows    [][]any
}

func (r *resultSet) add(row convert.RowReader) error {
	if r.columns == nil {
		r.columns = row.Columns()
	}
	values := make([]any, len(r.columns))
	for i := range values {
		v, err := row.Value(i)
		if err != nil {
			return err
		}
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		values[i] = v
	}
	r.rows = append(r.rows, values)
	return nil
}

func (r *resultSet) writeJSON(w io.Writer) error {
	out := make([]map[string]any, len(r.rows))
	for i, row := range r.rows {
		m := make(map[string]any, len(r.columns))
		for j, col := range r.columns {
			m[col] = row[j]
		}
		out[i] = m
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func (r *resultSet) writeTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(r.columns, "\t"))
	for _, row := range r.rows {
		cells := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				cells[i] = "NULL"
				continue
			}
			cells[i] = fmt.Sprint(v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	fmt.Fprintf(tw, "(%d rows)\n", len(r.rows))
	return tw.Flush()
}
