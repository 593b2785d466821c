package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dvloznov/expense-ledger/internal/api/handlers"
	"github.com/dvloznov/expense-ledger/internal/domain"
	"github.com/dvloznov/expense-ledger/internal/ledger"
	"github.com/dvloznov/expense-ledger/internal/query"
	"github.com/spf13/cobra"
)

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) printResult(cmd *cobra.Command, verb string, res ledger.Result) error {
	out := cmd.OutOrStdout()
	if c.jsonOutput {
		return printJSON(out, map[string]interface{}{
			"record":   handlers.NewRecordJSON(res.Record),
			"sync":     res.Sync,
			"warnings": res.Warnings,
		})
	}

	fmt.Fprintf(out, "%s %s\n", verb, res.Record.ID)
	for _, w := range res.Warnings {
		fmt.Fprintf(out, "Warning: %s\n", w)
	}
	return nil
}

func printRecordsTable(out io.Writer, recs []domain.Record) {
	if len(recs) == 0 {
		fmt.Fprintln(out, "No records found")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tDATE\tCATEGORY\tDESCRIPTION\tVENDOR\tAMOUNT\tRECEIPT\t\n")
	for _, rec := range recs {
		receipt := ""
		if !domain.IsUnset(rec.ReceiptRef) {
			receipt = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t\n",
			rec.ID,
			rec.DateString(),
			rec.Category,
			rec.Description,
			rec.Vendor,
			rec.Amount,
			receipt)
	}
	fmt.Fprintf(w, "\t\t\t\t\t---\t\t\n")
	fmt.Fprintf(w, "%d records\t\t\t\t\t%d\t\t\n", len(recs), query.Total(recs))
	w.Flush()
}

func printRecordDetails(out io.Writer, rec domain.Record) {
	fmt.Fprintf(out, "ID:          %s\n", rec.ID)
	fmt.Fprintf(out, "Date:        %s\n", rec.DateString())
	fmt.Fprintf(out, "Category:    %s\n", rec.Category)
	fmt.Fprintf(out, "Description: %s\n", rec.Description)
	fmt.Fprintf(out, "Vendor:      %s\n", rec.Vendor)
	fmt.Fprintf(out, "Amount:      %d\n", rec.Amount)
	fmt.Fprintf(out, "Receipt:     %s\n", rec.ReceiptRef)
	if !rec.CreatedAt.IsZero() {
		fmt.Fprintf(out, "Created:     %s\n", rec.CreatedAt.Format("2006-01-02 15:04"))
	}
}

func printSyncReport(out io.Writer, r ledger.SyncReport) {
	fmt.Fprintf(out, "Records:          %d\n", r.Records)
	fmt.Fprintf(out, "Pushed to remote: %d\n", r.PushedRemote)
	fmt.Fprintf(out, "Deleted remote:   %d\n", r.DeletedRemote)
	fmt.Fprintf(out, "Written locally:  %d\n", r.WrittenLocal)
	fmt.Fprintf(out, "Deleted locally:  %d\n", r.DeletedLocal)
	fmt.Fprintf(out, "Conflicts:        %d\n", r.Conflicts)
	if r.Removed > 0 {
		fmt.Fprintf(out, "Defective rows:   %d removed\n", r.Removed)
	}
	if r.Repaired > 0 {
		fmt.Fprintf(out, "Ids assigned:     %d\n", r.Repaired)
	}
	if r.RemotePending {
		fmt.Fprintf(out, "Remote pending:   %d changes will be retried on the next sync\n", r.PendingChanges)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(out, "Warning: %s\n", w)
	}
}
