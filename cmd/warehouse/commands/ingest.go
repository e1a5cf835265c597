package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/wonny/bankstar/internal/contracts"
	"github.com/wonny/bankstar/internal/ingest"
	"github.com/wonny/bankstar/internal/warehouse"
	"github.com/wonny/bankstar/internal/warehouse/memory"
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest [dir]",
	Short: "CSV 드롭 디렉토리 적재",
	Long: `<dir>/<TICKER>/<TICKER>_<table>.csv 파일을 원천 테이블에 한 행씩 씁니다.
각 쓰기는 바인딩된 핸들러를 같은 트랜잭션에서 실행합니다.

company_profile이 항상 먼저 적재되므로 같은 드롭의 팩트가 회사를 찾을 수 있습니다.
--dry-run은 메모리 웨어하우스에 적재해 결과만 보고합니다 (DB에 쓰지 않음).

Example:
  go run ./cmd/warehouse ingest ./StockData
  go run ./cmd/warehouse ingest ./StockData --dry-run
  go run ./cmd/warehouse ingest --archive --format csv`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

var (
	ingestDryRun  bool
	ingestArchive bool
	ingestFormat  string
)

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "메모리 웨어하우스에 적재")
	ingestCmd.Flags().BoolVar(&ingestArchive, "archive", false, "적재한 파일을 ARCHIVE_DIR로 이동")
	ingestCmd.Flags().StringVar(&ingestFormat, "format", "table", "출력 형식 (table, json, csv)")
}

// reportLine is one table of the ingest report in CSV form
type reportLine struct {
	Table      string `csv:"table"`
	Files      int    `csv:"files"`
	Rows       int    `csv:"rows"`
	Written    int    `csv:"written"`
	Rejected   int    `csv:"rejected"`
	Duplicates int    `csv:"duplicates"`
	Applied    int    `csv:"applied"`
	Skipped    int    `csv:"skipped"`
	Failed     int    `csv:"failed"`
}

func runIngest(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}

	dir := a.cfg.Warehouse.DropDir
	if len(args) == 1 {
		dir = args[0]
	}
	if ingestArchive && (ingestDryRun || a.cfg.Warehouse.ArchiveDir == "") {
		return fmt.Errorf("--archive needs ARCHIVE_DIR and cannot be combined with --dry-run")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store contracts.Store
	if ingestDryRun {
		mem, err := dryRunStore(ctx, a)
		if err != nil {
			return err
		}
		store = mem
	} else {
		if err := a.connect(); err != nil {
			return err
		}
		defer a.close()
		store = warehouse.NewStore(a.db.Pool)
	}

	writer, err := a.writer(store)
	if err != nil {
		return err
	}

	loader := ingest.NewLoader(writer, a.log,
		ingest.WithRowsPerSecond(a.cfg.Warehouse.IngestRatePerSec),
		ingest.WithDryRun(ingestDryRun),
	)

	rep, err := loader.LoadDir(ctx, dir)
	if err != nil {
		PrintError(err.Error())
		return err
	}

	if ingestArchive && len(rep.Processed) > 0 {
		if err := ingest.MoveProcessed(a.cfg.Warehouse.ArchiveDir, rep.RunID, rep.Processed); err != nil {
			return fmt.Errorf("archive drops: %w", err)
		}
	}

	return printReport(rep, ingestFormat)
}

// dryRunStore is an in-memory warehouse with the configured date horizon
func dryRunStore(ctx context.Context, a *app) (*memory.Store, error) {
	cal, err := a.calendar()
	if err != nil {
		return nil, err
	}
	from, to := a.cfg.DateHorizon(time.Now())

	store := memory.New()
	if _, err := store.EnsureDates(ctx, cal.Rows(from, to)); err != nil {
		return nil, err
	}
	return store, nil
}

func printReport(rep *ingest.Report, format string) error {
	switch format {
	case "json":
		out, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil

	case "csv":
		lines := make([]reportLine, 0, len(rep.Tables))
		for _, name := range rep.TableNames() {
			t := rep.Tables[name]
			lines = append(lines, reportLine{
				Table: name, Files: t.Files, Rows: t.Rows, Written: t.Written,
				Rejected: t.Rejected, Duplicates: t.Duplicates,
				Applied: t.Applied, Skipped: t.Skipped, Failed: t.Failed,
			})
		}
		out, err := gocsv.MarshalString(&lines)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil

	case "table":
	default:
		return fmt.Errorf("unknown format %q (table, json, csv)", format)
	}

	title := "Ingest Report"
	if rep.DryRun {
		title += " (dry run)"
	}
	PrintHeader(title)
	PrintKeyValue("Run", rep.RunID, 8)
	PrintKeyValue("Elapsed", rep.FinishedAt.Sub(rep.StartedAt).Round(time.Millisecond).String(), 8)
	fmt.Println()

	rows := make([][]string, 0, len(rep.Tables)+1)
	for _, name := range rep.TableNames() {
		rows = append(rows, reportRow(name, *rep.Tables[name]))
	}
	rows = append(rows, reportRow("TOTAL", rep.Totals()))
	PrintTable([]string{"Table", "Files", "Rows", "Written", "Rejected", "Dup", "Applied", "Skipped", "Failed"}, rows)

	if len(rep.UnknownFiles) > 0 {
		fmt.Println()
		PrintWarning(fmt.Sprintf("%d file(s) ignored (unknown table)", len(rep.UnknownFiles)))
		for _, f := range rep.UnknownFiles {
			fmt.Printf("   - %s\n", f)
		}
	}

	total := rep.Totals()
	fmt.Println()
	if total.Skipped+total.Failed > 0 {
		PrintInfo("Skipped and failed rows are in etl_event_log (`events list`)")
	}
	PrintSuccess(fmt.Sprintf("%d row(s) written", total.Written))
	return nil
}

func reportRow(name string, t ingest.TableReport) []string {
	return []string{
		name,
		strconv.Itoa(t.Files),
		strconv.Itoa(t.Rows),
		strconv.Itoa(t.Written),
		strconv.Itoa(t.Rejected),
		strconv.Itoa(t.Duplicates),
		strconv.Itoa(t.Applied),
		strconv.Itoa(t.Skipped),
		strconv.Itoa(t.Failed),
	}
}
