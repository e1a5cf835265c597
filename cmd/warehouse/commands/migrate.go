package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/wonny/bankstar/pkg/database"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "스키마 마이그레이션",
	Long: `웨어하우스 스키마(원천 테이블, 디멘션, 팩트, etl_event_log)를 관리합니다.

Subcommands:
  up       - 모든 마이그레이션 적용
  down [n] - 마지막 n개 롤백 (기본 1)
  version  - 현재 버전 조회

Example:
  go run ./cmd/warehouse migrate up
  go run ./cmd/warehouse migrate down 1`,
}

var (
	migrateUpCmd = &cobra.Command{
		Use:   "up",
		Short: "모든 마이그레이션 적용",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			if err := database.MigrateUp(a.cfg.Database.URL); err != nil {
				PrintError(err.Error())
				return err
			}
			PrintSuccess("Migrations applied")
			return printVersion(a.cfg.Database.URL)
		},
	}

	migrateDownCmd = &cobra.Command{
		Use:   "down [n]",
		Short: "마이그레이션 롤백",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return fmt.Errorf("invalid step count %q", args[0])
				}
				steps = n
			}

			a, err := loadApp()
			if err != nil {
				return err
			}
			if err := database.MigrateDown(a.cfg.Database.URL, steps); err != nil {
				PrintError(err.Error())
				return err
			}
			PrintSuccess(fmt.Sprintf("Rolled back %d migration(s)", steps))
			return printVersion(a.cfg.Database.URL)
		},
	}

	migrateVersionCmd = &cobra.Command{
		Use:   "version",
		Short: "현재 스키마 버전",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			return printVersion(a.cfg.Database.URL)
		},
	}
)

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateVersionCmd)
}

func printVersion(url string) error {
	version, dirty, err := database.MigrationVersion(url)
	if err != nil {
		return err
	}
	if version == 0 {
		PrintInfo("No migrations applied")
		return nil
	}
	PrintKeyValue("Version", strconv.FormatUint(uint64(version), 10), 8)
	PrintKeyValue("Dirty", strconv.FormatBool(dirty), 8)
	if dirty {
		PrintWarning("Schema is dirty: fix the failed migration before continuing")
	}
	return nil
}
