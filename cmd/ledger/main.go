// Command ledger manages the expense ledger from the terminal: adding and
// editing records, browsing them and running sync cycles by hand.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dvloznov/expense-ledger/internal/app"
	"github.com/dvloznov/expense-ledger/internal/config"
	"github.com/dvloznov/expense-ledger/internal/logger"
	"github.com/spf13/cobra"
)

// cli holds the state shared by every subcommand of one invocation.
type cli struct {
	cfgFile    string
	logLevel   string
	jsonOutput bool

	cfg *config.Config
	app *app.App
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "ledger",
		Short: "Expense ledger kept in sync between a spreadsheet and a remote store",
		Long: `ledger keeps a local CSV or XLSX expense file and a remote record store
(BigQuery or Notion) in agreement. Every command that changes a record
runs a full sync cycle afterwards.`,
		PersistentPreRunE:  c.setup,
		PersistentPostRunE: c.teardown,
		SilenceUsage:       true,
		SilenceErrors:      true,
	}

	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (default ./ledger.yaml)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level (overrides log.level)")
	root.PersistentFlags().BoolVar(&c.jsonOutput, "json", false, "print results as JSON")

	root.AddCommand(
		c.newAddCmd(),
		c.newListCmd(),
		c.newGetCmd(),
		c.newEditCmd(),
		c.newDeleteCmd(),
		c.newSyncCmd(),
		c.newSummaryCmd(),
		c.newCategoriesCmd(),
		c.newMirrorCmd(),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(c.cfgFile)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	c.cfg = cfg

	// Logs go to stderr so stdout stays parseable.
	log := logger.NewWithOptions(logger.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Out:    cmd.ErrOrStderr(),
	})

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = logger.WithContext(ctx, log)
	cmd.SetContext(ctx)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("initialize ledger: %w", err)
	}
	c.app = a
	return nil
}

func (c *cli) teardown(_ *cobra.Command, _ []string) error {
	if c.app == nil {
		return nil
	}
	err := c.app.Close()
	c.app = nil
	return err
}
