package main

import (
	"errors"
	"fmt"

	"github.com/dvloznov/expense-ledger/internal/app"
	"github.com/dvloznov/expense-ledger/internal/logger"
	"github.com/dvloznov/expense-ledger/internal/query"
	"github.com/dvloznov/expense-ledger/internal/reconcile"
	"github.com/spf13/cobra"
)

func (c *cli) newSyncCmd() *cobra.Command {
	var mutator string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the ledger file with the remote store",
		Long: `Run one reconciliation cycle. Records missing on one side are copied to
the other, deletions are propagated and conflicts are resolved with the
configured conflict policy.

--mutator names the side that was just edited so the mutator policy can
prefer it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			side, err := parseSide(mutator)
			if err != nil {
				return err
			}
			report, err := c.app.Service.Sync(cmd.Context(), side)
			if err != nil {
				return err
			}
			if c.jsonOutput {
				return printJSON(cmd.OutOrStdout(), report)
			}
			printSyncReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().StringVar(&mutator, "mutator", "", "side that changed: local or remote")
	return cmd
}

func parseSide(s string) (reconcile.Side, error) {
	switch reconcile.Side(s) {
	case reconcile.SideNone, reconcile.SideLocal, reconcile.SideRemote:
		return reconcile.Side(s), nil
	}
	return reconcile.SideNone, fmt.Errorf("invalid --mutator %q, use local or remote", s)
}

func (c *cli) newMirrorCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "mirror",
		Short: "Copy the ledger into the Notion mirror database",
		Long: `Push every record in the ledger file to the Notion database configured
under mirror.notion. Pages that no longer match a record are archived.

Use --dry-run to preview the changes without writing to Notion.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logger.FromContext(ctx)

			m := app.NewMirror(c.cfg, dryRun)
			if m == nil {
				return errors.New("no mirror configured, set mirror.notion.database_id")
			}

			recs, err := c.app.Service.Records(ctx, query.View{})
			if err != nil {
				return err
			}

			log.Info().Int("records", len(recs)).Bool("dry_run", dryRun).Msg("Starting Notion mirror")

			pushErr := m.Push(ctx, recs)
			stats := m.Stats()
			if c.jsonOutput {
				if err := printJSON(cmd.OutOrStdout(), stats); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Created: %d\n", stats.Created)
				fmt.Fprintf(out, "Updated: %d\n", stats.Updated)
				fmt.Fprintf(out, "Deleted: %d\n", stats.Deleted)
				fmt.Fprintf(out, "Skipped: %d\n", stats.Skipped)
				if dryRun {
					fmt.Fprintln(out, "Dry run, nothing was written.")
				}
			}
			return pushErr
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "preview changes without writing to Notion")
	return cmd
}
