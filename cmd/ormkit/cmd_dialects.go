package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fernandezvara/ormkit/dialect"
)

// dialectsCmd lists the registered dialect providers.
func dialectsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dialects",
		Short: "List registered dialects and their features",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DIALECT\tPLACEHOLDER\tPARAM\tFEATURES")
			for _, name := range dialect.Names() {
				p, err := dialect.Get(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Name(), p.Placeholder(1), p.ParamName("name"),
					strings.Join(dialect.FeatureNames(p), ","))
			}
			return w.Flush()
		},
	}
}
