package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/bankstar/internal/api"
	"github.com/wonny/bankstar/internal/api/handlers"
	"github.com/wonny/bankstar/internal/warehouse"
	"github.com/wonny/bankstar/pkg/redis"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `모니터링/적재 REST API 서버를 시작합니다.

Endpoints:
  GET  /health                  - Health check
  GET  /api/events              - 이벤트 로그 조회
  GET  /api/events/summary      - 이벤트 집계
  GET  /api/facts/{domain}      - 팩트 조회 (price, ratio, balance, income, cashflow)
  GET  /api/companies/{ticker}  - 회사 디멘션 조회
  GET  /api/dates/coverage      - dim_date 커버리지
  POST /api/source/{table}      - 원천 테이블 쓰기
  GET  /api/bindings            - 핸들러 바인딩
  GET  /ws/events               - 이벤트 실시간 스트림

Example:
  go run ./cmd/warehouse api
  go run ./cmd/warehouse api --port 8080`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본: API_PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Bankstar Warehouse API Server ===")

	// 1. Load config + logger
	a, err := loadApp()
	if err != nil {
		return err
	}
	if apiPort != "" {
		a.cfg.API.Port = apiPort
	}
	log := a.log

	log.WithFields(map[string]interface{}{
		"port": a.cfg.API.Port,
		"env":  a.cfg.Env,
	}).Info("Initializing API server")

	// 2. Connect to database
	if err := a.connect(); err != nil {
		return err
	}
	defer a.close()
	log.Info("Connected to database")

	// 3. Redis (optional: cache + shared rate limit)
	rc, err := redis.New(a.cfg)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer rc.Close()
	cache := redis.NewCache(rc, "bankstar")

	// 4. Write path
	writer, err := a.writer(warehouse.NewStore(a.db.Pool))
	if err != nil {
		return err
	}

	// 5. Repositories + handlers
	events := warehouse.NewEventLogRepository(a.db.Pool)
	h := api.Handlers{
		Events:    handlers.NewEventsHandler(events, cache, log),
		Warehouse: handlers.NewWarehouseHandler(warehouse.NewReadRepository(a.db.Pool), warehouse.NewDimensionRepository(a.db.Pool), cache, log),
		Source:    handlers.NewSourceHandler(writer, cache, log),
		Stream:    handlers.NewStreamHandler(events, 0, log),
	}

	// 6. Router + server
	limiter := api.NewLimiter(rc, a.cfg.API.RateLimit, a.cfg.API.RateBurst)
	router := api.NewRouter(h, a.db.Ping, limiter, log)
	server := api.New(a.cfg, log, router)

	// 7. Start server with graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	fmt.Printf("\n✅ Server running on http://localhost:%s\n", a.cfg.API.Port)
	if rc.Enabled() {
		PrintInfo("Redis cache and shared rate limit enabled")
	}
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		if err != nil {
			return err
		}
		return nil
	}

	log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
