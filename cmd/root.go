package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/propane-pricer/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "pricer <file.csv|file.xlsx>",
	Short: "Apply discount pricing to a product file and upsert it into the catalog",
	Long: `Reads product rows (SKU, description, list price, discount code) from a CSV or
XLSX file, computes each row's discounted price from the discount policy, and
upserts every valid row into the products table with a bounded number of
concurrent writes. Rows that fail to parse or write are listed in the run report;
they never stop the run.

Examples:
  # Price and upload a file
  PRICER_STORE_DATABASE_URL=postgres://localhost/catalog pricer prices.csv

  # Parse and price only, print the report as JSON
  pricer prices.xlsx --dry-run --report-format json`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c
		applyFlags(cmd)

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	RunE: runUpload,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
