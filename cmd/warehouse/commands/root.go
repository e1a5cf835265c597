package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "warehouse",
	Short: "은행주 재무 데이터 스타 스키마 웨어하우스",
	Long: `Bankstar Warehouse CLI

Raw tables (company_profile, daily_chart, ratios, balance_sheet,
income_statement, cash_flow) are projected into dim_company, dim_date and
the fact tables on every write. Bad rows are logged to etl_event_log and
never block ingestion.

Usage:
  go run ./cmd/warehouse [command]

Examples:
  go run ./cmd/warehouse migrate up
  go run ./cmd/warehouse dates seed
  go run ./cmd/warehouse ingest ./StockData --dry-run
  go run ./cmd/warehouse events list --kind skip
  go run ./cmd/warehouse api`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}
