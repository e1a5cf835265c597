package commands

import (
	"fmt"

	"github.com/wonny/bankstar/internal/contracts"
	"github.com/wonny/bankstar/internal/datekey"
	"github.com/wonny/bankstar/internal/domain"
	"github.com/wonny/bankstar/internal/etl"
	"github.com/wonny/bankstar/internal/trigger"
	"github.com/wonny/bankstar/pkg/config"
	"github.com/wonny/bankstar/pkg/database"
	"github.com/wonny/bankstar/pkg/logger"
)

// app is what every command needs: config, logger and, on demand, the database
type app struct {
	cfg *config.Config
	log *logger.Logger
	db  *database.DB
}

func loadApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return &app{cfg: cfg, log: logger.New(cfg)}, nil
}

// connect opens the pool; close releases it
func (a *app) connect() error {
	db, err := database.New(a.cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	a.db = db
	return nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
}

func (a *app) descriptors() []*domain.Descriptor {
	return domain.All(contracts.ConflictPolicy(a.cfg.Warehouse.PriceConflictPolicy))
}

func (a *app) calendar() (*datekey.Calendar, error) {
	return datekey.NewCalendar(a.cfg.Warehouse.Holidays)
}

// writer builds the raw write path over store with the default bindings
func (a *app) writer(store contracts.Store) (*trigger.Writer, error) {
	descs := a.descriptors()
	d, err := trigger.NewDefault(etl.NewAbsorber(a.log), descs)
	if err != nil {
		return nil, fmt.Errorf("bind handlers: %w", err)
	}
	return trigger.NewWriter(store, d, descs), nil
}
