package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dvloznov/expense-ledger/internal/query"
	"github.com/spf13/cobra"
)

func (c *cli) newSummaryCmd() *cobra.Command {
	var (
		by   string
		view query.View
	)

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Total spending by category, month or vendor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			field, err := query.ParseField(by)
			if err != nil {
				return err
			}
			recs, err := c.app.Service.Records(cmd.Context(), view)
			if err != nil {
				return err
			}
			groups := query.Summarize(recs, field)
			total := query.Total(recs)

			if c.jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{
					"by":     field,
					"groups": groups,
					"total":  total,
					"count":  len(recs),
				})
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "%s\tRECORDS\tTOTAL\t\n", headerFor(field))
			for _, g := range groups {
				fmt.Fprintf(w, "%s\t%d\t%d\t\n", g.Key, g.Count, g.Total)
			}
			fmt.Fprintf(w, "---\t---\t---\t\n")
			fmt.Fprintf(w, "TOTAL\t%d\t%d\t\n", len(recs), total)
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&by, "by", string(query.ByCategory), "group by category, month or vendor")
	cmd.Flags().StringVar(&view.Month, "month", query.All, "only this month, YYYY-MM")
	cmd.Flags().StringVar(&view.Category, "category", query.All, "only this category")
	return cmd
}

func headerFor(field query.Field) string {
	switch field {
	case query.ByMonth:
		return "MONTH"
	case query.ByVendor:
		return "VENDOR"
	}
	return "CATEGORY"
}

func (c *cli) newCategoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List the configured categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names := c.app.Service.Categories()
			if c.jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{"categories": names})
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
