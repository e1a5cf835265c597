package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/bankstar/internal/domain"
	"github.com/wonny/bankstar/internal/etl"
	"github.com/wonny/bankstar/internal/trigger"
)

// bindingsCmd represents the bindings command
var bindingsCmd = &cobra.Command{
	Use:   "bindings",
	Short: "원천 테이블 ↔ 핸들러 바인딩 조회",
	Long: `각 원천 테이블에 바인딩된 핸들러와 실행되는 쓰기 종류를 보여줍니다.

Example:
  go run ./cmd/warehouse bindings`,
	RunE: runBindings,
}

func init() {
	rootCmd.AddCommand(bindingsCmd)
}

func runBindings(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}

	d, err := trigger.NewDefault(etl.NewAbsorber(a.log), a.descriptors())
	if err != nil {
		return err
	}

	PrintHeader("Handler Bindings")
	rows := [][]string{}
	for _, b := range d.Bindings() {
		ops := make([]string, 0, len(b.Ops))
		for _, op := range b.Ops {
			ops = append(ops, string(op))
		}
		target := "-"
		if desc, ok := domain.BySource(b.Table); ok {
			target = desc.TargetTable
		}
		rows = append(rows, []string{b.Table, b.Handler, strings.Join(ops, ","), target})
	}
	PrintTable([]string{"Source", "Handler", "Ops", "Target"}, rows)
	return nil
}
