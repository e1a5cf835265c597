package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"

	"github.com/wonny/bankstar/internal/contracts"
	"github.com/wonny/bankstar/internal/warehouse"
)

// eventsCmd represents the events command
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "ETL 이벤트 로그 조회",
	Long: `etl_event_log (skip/failure 기록)을 조회합니다. 로그는 추가 전용입니다.

Example:
  go run ./cmd/warehouse events list --ticker VCB
  go run ./cmd/warehouse events list --kind failure --limit 20
  go run ./cmd/warehouse events list --csv > events.csv
  go run ./cmd/warehouse events summary --days 30`,
}

var (
	eventsTicker  string
	eventsHandler string
	eventsKind    string
	eventsLimit   int
	eventsCSV     bool
	eventsDays    int

	eventsListCmd = &cobra.Command{
		Use:   "list",
		Short: "최근 이벤트 목록",
		RunE:  runEventsList,
	}

	eventsSummaryCmd = &cobra.Command{
		Use:   "summary",
		Short: "티커/핸들러/종류별 집계",
		RunE:  runEventsSummary,
	}
)

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsListCmd)
	eventsCmd.AddCommand(eventsSummaryCmd)

	eventsListCmd.Flags().StringVar(&eventsTicker, "ticker", "", "티커 필터")
	eventsListCmd.Flags().StringVar(&eventsHandler, "handler", "", "핸들러 필터")
	eventsListCmd.Flags().StringVar(&eventsKind, "kind", "", "skip 또는 failure")
	eventsListCmd.Flags().IntVar(&eventsLimit, "limit", 50, "최대 행 수")
	eventsListCmd.Flags().BoolVar(&eventsCSV, "csv", false, "CSV로 출력")

	eventsSummaryCmd.Flags().IntVar(&eventsDays, "days", 7, "집계 기간 (일)")
}

// eventLine is one event in CSV form
type eventLine struct {
	ID        int64  `csv:"id"`
	CreatedAt string `csv:"created_at"`
	Kind      string `csv:"kind"`
	Handler   string `csv:"handler_name"`
	Table     string `csv:"source_table"`
	Ticker    string `csv:"ticker"`
	Message   string `csv:"message"`
}

func runEventsList(cmd *cobra.Command, args []string) error {
	kind := contracts.EventKind(eventsKind)
	if kind != "" && !kind.Valid() {
		return fmt.Errorf("invalid --kind %q (skip, failure)", eventsKind)
	}

	a, err := loadApp()
	if err != nil {
		return err
	}
	if err := a.connect(); err != nil {
		return err
	}
	defer a.close()

	events, err := warehouse.NewEventLogRepository(a.db.Pool).ListEvents(cmd.Context(), contracts.EventFilter{
		Ticker:  eventsTicker,
		Handler: eventsHandler,
		Kind:    kind,
		Limit:   eventsLimit,
	})
	if err != nil {
		return err
	}

	if eventsCSV {
		lines := make([]eventLine, 0, len(events))
		for _, e := range events {
			lines = append(lines, eventLine{
				ID:        e.ID,
				CreatedAt: e.CreatedAt.Format(time.RFC3339),
				Kind:      string(e.Kind),
				Handler:   e.Handler,
				Table:     e.SourceTable,
				Ticker:    tickerText(e.Ticker),
				Message:   e.Message,
			})
		}
		out, err := gocsv.MarshalString(&lines)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	}

	PrintHeader(fmt.Sprintf("ETL Events (%d)", len(events)))
	if len(events) == 0 {
		PrintSuccess("No events")
		return nil
	}

	rows := make([][]string, 0, len(events))
	for _, e := range events {
		rows = append(rows, []string{
			strconv.FormatInt(e.ID, 10),
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			string(e.Kind),
			e.Handler,
			tickerText(e.Ticker),
			e.Message,
		})
	}
	PrintTable([]string{"ID", "Time", "Kind", "Handler", "Ticker", "Message"}, rows)
	return nil
}

func runEventsSummary(cmd *cobra.Command, args []string) error {
	if eventsDays <= 0 {
		return fmt.Errorf("--days must be positive")
	}

	a, err := loadApp()
	if err != nil {
		return err
	}
	if err := a.connect(); err != nil {
		return err
	}
	defer a.close()

	since := time.Now().AddDate(0, 0, -eventsDays)
	counts, err := warehouse.NewEventLogRepository(a.db.Pool).SummarizeEvents(cmd.Context(), since)
	if err != nil {
		return err
	}

	PrintHeader(fmt.Sprintf("ETL Event Summary (last %d days)", eventsDays))
	if len(counts) == 0 {
		PrintSuccess("No events")
		return nil
	}

	rows := make([][]string, 0, len(counts))
	for _, c := range counts {
		rows = append(rows, []string{
			tickerText(c.Ticker),
			c.Handler,
			string(c.Kind),
			strconv.FormatInt(c.Count, 10),
			c.Last.Local().Format("2006-01-02 15:04"),
		})
	}
	PrintTable([]string{"Ticker", "Handler", "Kind", "Count", "Last"}, rows)
	return nil
}

func tickerText(t *string) string {
	if t == nil {
		return "-"
	}
	return orDash(*t)
}
