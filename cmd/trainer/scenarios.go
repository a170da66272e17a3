package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/chadiek/support-trainer/internal/scenario"
)

func newScenariosCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenarios",
		Short: "List the built-in call scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query, _ := cmd.Flags().GetString("query")
			cat, err := scenario.Builtin()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPRODUCT\tCUSTOMER\tTITLE")
			for _, s := range cat.Search(query) {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, s.Product, s.Customer.Name, s.Title)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringP("query", "q", "", "filter by title, product or customer name")
	return cmd
}
