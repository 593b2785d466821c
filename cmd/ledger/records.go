package main

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/dvloznov/expense-ledger/internal/api/handlers"
	"github.com/dvloznov/expense-ledger/internal/domain"
	"github.com/dvloznov/expense-ledger/internal/ledger"
	"github.com/dvloznov/expense-ledger/internal/query"
	"github.com/spf13/cobra"
)

// draftFlags are the record fields shared by add and edit.
type draftFlags struct {
	date        string
	category    string
	description string
	vendor      string
	amount      int64
	receipt     string
}

func (f *draftFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.date, "date", "", "expense date, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&f.category, "category", "", "category name")
	cmd.Flags().StringVar(&f.description, "description", "", "what the expense was for")
	cmd.Flags().StringVar(&f.vendor, "vendor", "", "who was paid")
	cmd.Flags().Int64Var(&f.amount, "amount", 0, "amount in whole currency units")
	cmd.Flags().StringVar(&f.receipt, "receipt", "", "path to a receipt image or PDF")
}

// apply overlays the flags the user set onto d.
func (f *draftFlags) apply(cmd *cobra.Command, d ledger.Draft) (ledger.Draft, error) {
	changed := cmd.Flags().Changed

	if changed("date") {
		date, ok := domain.ParseDate(f.date)
		if !ok {
			return d, fmt.Errorf("invalid --date %q, use YYYY-MM-DD", f.date)
		}
		d.Date = date
	}
	if changed("category") {
		d.Category = f.category
	}
	if changed("description") {
		d.Description = f.description
	}
	if changed("vendor") {
		d.Vendor = f.vendor
	}
	if changed("amount") {
		d.Amount = f.amount
	}
	if f.receipt != "" {
		att, err := readAttachment(f.receipt)
		if err != nil {
			return d, err
		}
		d.Receipt = att
	}
	return d, nil
}

func readAttachment(path string) (*ledger.Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read receipt: %w", err)
	}
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &ledger.Attachment{
		Name:        filepath.Base(path),
		ContentType: contentType,
		Data:        data,
	}, nil
}

// draftFrom turns an existing record back into editable input.
func draftFrom(rec domain.Record) ledger.Draft {
	text := func(s string) string {
		if domain.IsUnset(s) {
			return ""
		}
		return s
	}
	return ledger.Draft{
		Date:        rec.Date,
		Category:    text(rec.Category),
		Description: text(rec.Description),
		Vendor:      text(rec.Vendor),
		Amount:      rec.Amount,
		ReceiptRef:  text(rec.ReceiptRef),
	}
}

func (c *cli) newAddCmd() *cobra.Command {
	var flags draftFlags

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an expense record",
		Long: `Add an expense record to the ledger and sync it.

An amount is required unless a receipt is attached and receipt autofill
is enabled.`,
		Example: `  ledger add --category Meals --description "Team lunch" --amount 120
  ledger add --receipt ~/scans/taxi.jpg --category Transportation --amount 45`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("amount") && flags.receipt == "" {
				return errors.New("--amount is required")
			}
			draft, err := flags.apply(cmd, ledger.Draft{})
			if err != nil {
				return err
			}
			res, err := c.app.Service.Add(cmd.Context(), draft)
			if err != nil {
				return err
			}
			return c.printResult(cmd, "Added", res)
		},
	}
	flags.register(cmd)
	return cmd
}

func (c *cli) newEditCmd() *cobra.Command {
	var flags draftFlags

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit an expense record",
		Long:  `Change the given fields of a record. Fields without a flag keep their value.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			existing, err := c.app.Service.Get(ctx, args[0])
			if err != nil {
				return err
			}
			draft, err := flags.apply(cmd, draftFrom(existing))
			if err != nil {
				return err
			}
			res, err := c.app.Service.Update(ctx, args[0], draft)
			if err != nil {
				return err
			}
			return c.printResult(cmd, "Updated", res)
		},
	}
	flags.register(cmd)
	return cmd
}

func (c *cli) newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete an expense record from both stores",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := c.app.Service.Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.printResult(cmd, "Deleted", res)
		},
	}
}

func (c *cli) newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one expense record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := c.app.Service.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if c.jsonOutput {
				return printJSON(cmd.OutOrStdout(), handlers.NewRecordJSON(rec))
			}
			printRecordDetails(cmd.OutOrStdout(), rec)
			return nil
		},
	}
}

func (c *cli) newListCmd() *cobra.Command {
	var view query.View

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List expense records",
		Long: `List records from the ledger file, filtered by month and category.
The listing reads the local file only; run "ledger sync" first to pick up
remote changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := c.app.Service.Records(cmd.Context(), view)
			if err != nil {
				return err
			}
			if c.jsonOutput {
				out := make([]handlers.RecordJSON, 0, len(recs))
				for _, rec := range recs {
					out = append(out, handlers.NewRecordJSON(rec))
				}
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{
					"records": out,
					"count":   len(recs),
					"total":   query.Total(recs),
				})
			}
			printRecordsTable(cmd.OutOrStdout(), recs)
			return nil
		},
	}
	cmd.Flags().StringVar(&view.Month, "month", query.All, "month to show, YYYY-MM")
	cmd.Flags().StringVar(&view.Category, "category", query.All, "category to show")
	return cmd
}
