package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/openfroyo/capplan/pkg/facts"
)

func newQueryCommand() *cobra.Command {
	var (
		sources factFlags
		catalog string
	)

	cmd := &cobra.Command{
		Use:   "query [atom|sparql]",
		Short: "Run a query against the capability model",
		Long: `Run a query in the fact store's own dialect and print the bindings.

Against model files the query is one Mangle atom whose variables are bound,
e.g. property_row(P, Cap, Kind, Type, Role, Td). Against an endpoint it is a
SPARQL SELECT. --catalog runs one of the planner's catalog queries instead:
properties, descriptions, resources, influences, equalities, constraints,
expressions or equivalences.`,
		Example: `  # List capabilities and their kinds
  capplan query --model models/door.mg 'capability(Cap, Kind)'

  # Run a catalog query against an endpoint
  capplan query --endpoint http://localhost:3030/ds/query --catalog properties`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 0) == (catalog == "") {
				return errors.New("give either a query or --catalog")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			sources.apply(cfg)
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			src, err := a.openFacts()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			var rows []facts.Row
			if catalog != "" {
				rows, err = facts.Select(ctx, src.store, facts.QueryName(catalog))
			} else {
				rows, err = src.store.Query(ctx, args[0])
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}
			printRows(out, rows)
			return nil
		},
	}

	sources.register(cmd)
	cmd.Flags().StringVar(&catalog, "catalog", "", "run a catalog query by name")

	return cmd
}

// printRows prints rows as a table with one column per variable.
func printRows(w io.Writer, rows []facts.Row) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No results.")
		return
	}

	seen := make(map[string]bool)
	var columns []string
	for _, row := range rows {
		for name := range row {
			if !seen[name] {
				seen[name] = true
				columns = append(columns, name)
			}
		}
	}
	sort.Strings(columns)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(columns, "\t"))
	for _, row := range rows {
		cells := make([]string, len(columns))
		for i, name := range columns {
			cells[i] = row.Text(name)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	tw.Flush()
	fmt.Fprintf(w, "%d rows\n", len(rows))
}
