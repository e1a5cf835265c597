package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/bankstar/internal/ingest"
	"github.com/wonny/bankstar/internal/scheduler"
	"github.com/wonny/bankstar/internal/scheduler/jobs"
	"github.com/wonny/bankstar/internal/warehouse"
	"github.com/wonny/bankstar/pkg/redis"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `웨어하우스 유지 작업을 스케줄합니다.

Subcommands:
  start   - 스케줄러 시작
  list    - 등록된 작업 목록
  run     - 특정 작업 즉시 실행

Example:
  go run ./cmd/warehouse scheduler start
  go run ./cmd/warehouse scheduler list
  go run ./cmd/warehouse scheduler run date_horizon`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		Long: `스케줄러를 시작하고 등록된 모든 작업을 스케줄합니다.

등록되는 작업:
- date_horizon: dim_date를 설정된 범위까지 확장 (HORIZON_SCHEDULE)
- drop_ingest:  DROP_DIR의 CSV를 적재 (INGEST_SCHEDULE)

스케줄러는 Ctrl+C로 종료할 수 있습니다.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
}

func runScheduler(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Bankstar Warehouse Scheduler ===")

	sched, cleanup, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer cleanup()

	sched.Start()

	fmt.Println("\n✅ Scheduler started successfully")
	fmt.Println("\nRegistered jobs:")
	for _, jobName := range sched.GetAllJobs() {
		next := "-"
		if t, ok := sched.NextRun(jobName); ok {
			next = t.Local().Format("2006-01-02 15:04:05")
		}
		fmt.Printf("  - %-14s next: %s\n", jobName, next)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()
	fmt.Println("Scheduler stopped")

	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	sched, cleanup, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer cleanup()

	PrintHeader("Registered Jobs")
	rows := [][]string{}
	for name, st := range sched.GetJobStats() {
		rows = append(rows, []string{name, st.Schedule})
	}
	PrintTable([]string{"Job", "Schedule"}, rows)
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	fmt.Printf("Running job: %s\n", jobName)

	sched, cleanup, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := sched.RunJob(ctx, jobName)
	if err != nil {
		return fmt.Errorf("run job: %w", err)
	}

	PrintKeyValue("Duration", res.Duration.Round(time.Millisecond).String(), 8)
	PrintKeyValue("Attempts", fmt.Sprintf("%d", res.Attempts), 8)
	if !res.Success {
		PrintError(res.Error)
		return fmt.Errorf("job %s failed", jobName)
	}
	PrintSuccess("Job completed")
	return nil
}

// initScheduler wires every warehouse job; cleanup releases the connections
func initScheduler() (*scheduler.Scheduler, func(), error) {
	// 1. Config + logger
	a, err := loadApp()
	if err != nil {
		return nil, nil, err
	}
	log := a.log

	// 2. Connect to database
	if err := a.connect(); err != nil {
		return nil, nil, err
	}

	// 3. Redis (optional: paces ingestion across replicas)
	rc, err := redis.New(a.cfg)
	if err != nil {
		a.close()
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	cleanup := func() {
		_ = rc.Close()
		a.close()
	}

	cal, err := a.calendar()
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	// 4. Write path + loader
	writer, err := a.writer(warehouse.NewStore(a.db.Pool))
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	opts := []ingest.Option{}
	if rate := a.cfg.Warehouse.IngestRatePerSec; rate > 0 {
		if rc.Enabled() {
			limiter := redis.NewRateLimiter(rc, "bankstar")
			opts = append(opts, ingest.WithPacer(func(ctx context.Context) error {
				return limiter.Wait(ctx, redis.IngestRateLimit(rate))
			}))
		} else {
			opts = append(opts, ingest.WithRowsPerSecond(rate))
		}
	}
	loader := ingest.NewLoader(writer, log, opts...)

	// 5. Create scheduler + register jobs
	sched := scheduler.New(log, scheduler.WithRetry(2, 30*time.Second))

	registered := []scheduler.Job{
		jobs.NewDateHorizonJob(warehouse.NewDimensionRepository(a.db.Pool), cal, a.cfg.DateHorizon, a.cfg.Warehouse.HorizonSchedule, log),
		jobs.NewDropIngestJob(loader, a.cfg.Warehouse.DropDir, a.cfg.Warehouse.ArchiveDir, a.cfg.Warehouse.IngestSchedule, log),
	}
	for _, job := range registered {
		if err := sched.AddJob(job); err != nil {
			cleanup()
			return nil, nil, err
		}
	}

	return sched, cleanup, nil
}
