package commands

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/bankstar/internal/warehouse"
)

// datesCmd represents the dates command
var datesCmd = &cobra.Command{
	Use:   "dates",
	Short: "날짜 디멘션 관리",
	Long: `dim_date 행을 생성하거나 커버리지를 조회합니다.

핸들러는 dim_date를 쓰지 않습니다. 기간이 커버되지 않으면
팩트 행은 "unresolved dimension key"로 skip 됩니다.

Example:
  go run ./cmd/warehouse dates seed
  go run ./cmd/warehouse dates seed --from 2010-01-01 --to 2030-12-31
  go run ./cmd/warehouse dates coverage`,
}

var (
	seedFrom string
	seedTo   string

	datesSeedCmd = &cobra.Command{
		Use:   "seed",
		Short: "dim_date 행 생성 (기존 행 유지)",
		RunE:  runDatesSeed,
	}

	datesCoverageCmd = &cobra.Command{
		Use:   "coverage",
		Short: "dim_date 커버리지 조회",
		RunE:  runDatesCoverage,
	}
)

func init() {
	rootCmd.AddCommand(datesCmd)
	datesCmd.AddCommand(datesSeedCmd)
	datesCmd.AddCommand(datesCoverageCmd)

	datesSeedCmd.Flags().StringVar(&seedFrom, "from", "", "시작일 YYYY-MM-DD (기본: DATE_FROM_YEAR-01-01)")
	datesSeedCmd.Flags().StringVar(&seedTo, "to", "", "종료일 YYYY-MM-DD (기본: 올해+DATE_YEARS_AHEAD 12-31)")
}

func runDatesSeed(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}

	from, to := a.cfg.DateHorizon(time.Now())
	if seedFrom != "" {
		if from, err = time.Parse("2006-01-02", seedFrom); err != nil {
			return fmt.Errorf("invalid --from: %w", err)
		}
	}
	if seedTo != "" {
		if to, err = time.Parse("2006-01-02", seedTo); err != nil {
			return fmt.Errorf("invalid --to: %w", err)
		}
	}
	if to.Before(from) {
		return fmt.Errorf("--to %s is before --from %s", to.Format("2006-01-02"), from.Format("2006-01-02"))
	}

	cal, err := a.calendar()
	if err != nil {
		return err
	}

	if err := a.connect(); err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	rows := cal.Rows(from, to)
	inserted, err := warehouse.NewDimensionRepository(a.db.Pool).EnsureDates(ctx, rows)
	if err != nil {
		PrintError(err.Error())
		return err
	}

	PrintHeader("Date Dimension")
	PrintKeyValue("Range", fmt.Sprintf("%s ~ %s", from.Format("2006-01-02"), to.Format("2006-01-02")), 9)
	PrintKeyValue("Days", strconv.Itoa(len(rows)), 9)
	PrintKeyValue("Inserted", strconv.FormatInt(inserted, 10), 9)
	PrintSeparator()
	PrintSuccess("dim_date is up to date")
	return nil
}

func runDatesCoverage(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	if err := a.connect(); err != nil {
		return err
	}
	defer a.close()

	cov, err := warehouse.NewDimensionRepository(a.db.Pool).DateCoverage(cmd.Context())
	if err != nil {
		return err
	}

	PrintHeader("Date Coverage")
	if cov.Count == 0 || cov.From == nil || cov.To == nil {
		PrintWarning("dim_date is empty: run `dates seed`")
		return nil
	}
	PrintKeyValue("From", cov.From.Format("2006-01-02"), 5)
	PrintKeyValue("To", cov.To.Format("2006-01-02"), 5)
	PrintKeyValue("Rows", strconv.FormatInt(cov.Count, 10), 5)
	return nil
}
