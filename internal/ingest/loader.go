package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/wonny/bankstar/internal/contracts"
	"github.com/wonny/bankstar/internal/domain"
	"github.com/wonny/bankstar/internal/etl"
	"github.com/wonny/bankstar/internal/trigger"
	"github.com/wonny/bankstar/pkg/logger"
)

// RowWriter is the raw write path (trigger.Writer)
type RowWriter interface {
	Write(ctx context.Context, table string, row contracts.Row) (trigger.WriteResult, error)
}

// TableReport counts one raw table of a run
type TableReport struct {
	Files      int `json:"files"`
	Rows       int `json:"rows"`
	Written    int `json:"written"`
	Rejected   int `json:"rejected"`
	Duplicates int `json:"duplicates"`
	Applied    int `json:"applied"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

func (t *TableReport) add(o TableReport) {
	t.Files += o.Files
	t.Rows += o.Rows
	t.Written += o.Written
	t.Rejected += o.Rejected
	t.Duplicates += o.Duplicates
	t.Applied += o.Applied
	t.Skipped += o.Skipped
	t.Failed += o.Failed
}

// Report is the result of one ingest run
type Report struct {
	RunID        string                  `json:"run_id"`
	DryRun       bool                    `json:"dry_run"`
	StartedAt    time.Time               `json:"started_at"`
	FinishedAt   time.Time               `json:"finished_at"`
	Tables       map[string]*TableReport `json:"tables"`
	UnknownFiles []string                `json:"unknown_files,omitempty"`
	Processed    []File                  `json:"-"`
}

// Totals sums every table
func (r *Report) Totals() TableReport {
	var total TableReport
	for _, t := range r.Tables {
		total.add(*t)
	}
	return total
}

// TableNames returns the tables of the report in name order
func (r *Report) TableNames() []string {
	names := make([]string, 0, len(r.Tables))
	for n := range r.Tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (r *Report) table(name string) *TableReport {
	t, ok := r.Tables[name]
	if !ok {
		t = &TableReport{}
		r.Tables[name] = t
	}
	return t
}

// Loader pushes drop files row by row through the raw write path
type Loader struct {
	writer  RowWriter
	limiter *rate.Limiter
	pacer   func(ctx context.Context) error
	dryRun  bool
	log     *logger.Logger
}

// Option configures a Loader
type Option func(*Loader)

// WithRowsPerSecond paces raw writes. 0 means unlimited.
func WithRowsPerSecond(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.limiter = rate.NewLimiter(rate.Limit(n), 1)
		}
	}
}

// WithPacer blocks before every raw write until pace allows it
// (a shared limiter such as the Redis ingest window).
func WithPacer(pace func(ctx context.Context) error) Option {
	return func(l *Loader) { l.pacer = pace }
}

// WithDryRun marks the run as a dry run in the report and logs
func WithDryRun(dry bool) Option {
	return func(l *Loader) { l.dryRun = dry }
}

// NewLoader creates a new loader
func NewLoader(w RowWriter, log *logger.Logger, opts ...Option) *Loader {
	l := &Loader{writer: w, log: log.Component("ingest")}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadDir discovers and loads every drop file under root
func (l *Loader) LoadDir(ctx context.Context, root string) (*Report, error) {
	files, err := Discover(root)
	if err != nil {
		return nil, err
	}
	return l.Load(ctx, files)
}

// Load loads files in the order given (see SortFiles).
// A bad row or file never stops the run; only context cancellation does.
func (l *Loader) Load(ctx context.Context, files []File) (*Report, error) {
	rep := &Report{
		RunID:     uuid.NewString(),
		DryRun:    l.dryRun,
		StartedAt: time.Now(),
		Tables:    make(map[string]*TableReport),
	}
	log := l.log.WithFields(map[string]interface{}{"run_id": rep.RunID, "dry_run": l.dryRun})
	log.WithField("files", len(files)).Info("ingest started")

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			rep.FinishedAt = time.Now()
			return rep, err
		}

		desc, ok := domain.BySource(f.Table)
		if !ok {
			rep.UnknownFiles = append(rep.UnknownFiles, f.Path)
			log.WithField("file", f.Path).Warn("unknown source table, file ignored")
			continue
		}

		tr, err := l.loadFile(ctx, desc, f, log)
		rep.table(f.Table).add(tr)
		if err != nil {
			if canceled(err) {
				rep.FinishedAt = time.Now()
				return rep, err
			}
			log.WithError(err).WithField("file", f.Path).Error("file failed")
			continue
		}
		rep.Processed = append(rep.Processed, f)
	}

	rep.FinishedAt = time.Now()
	total := rep.Totals()
	log.WithFields(map[string]interface{}{
		"written":    total.Written,
		"rejected":   total.Rejected,
		"duplicates": total.Duplicates,
		"applied":    total.Applied,
		"skipped":    total.Skipped,
		"failed":     total.Failed,
		"elapsed":    rep.FinishedAt.Sub(rep.StartedAt).String(),
	}).Info("ingest finished")
	return rep, nil
}

func (l *Loader) loadFile(ctx context.Context, desc *domain.Descriptor, f File, log *logger.Logger) (TableReport, error) {
	tr := TableReport{Files: 1}

	rows, err := ReadFile(f.Path)
	if err != nil {
		return tr, err
	}
	tr.Rows = len(rows)

	for i := range rows {
		rows[i] = Prepare(desc, f.Ticker, rows[i])
	}
	rows, tr.Duplicates = Dedupe(desc, rows)
	if tr.Duplicates > 0 {
		log.WithFields(map[string]interface{}{"file": f.Path, "duplicates": tr.Duplicates}).
			Info("duplicate natural keys dropped, first occurrence kept")
	}

	for _, row := range rows {
		if l.limiter != nil {
			if err := l.limiter.Wait(ctx); err != nil {
				return tr, err
			}
		}
		if l.pacer != nil {
			if err := l.pacer(ctx); err != nil {
				return tr, err
			}
		}

		res, err := l.writer.Write(ctx, f.Table, row)
		if err != nil {
			if canceled(err) {
				return tr, err
			}
			tr.Rejected++
			log.WithError(err).WithFields(map[string]interface{}{
				"table":  f.Table,
				"ticker": f.Ticker,
			}).Warn("row rejected")
			continue
		}

		tr.Written++
		tr.Applied += res.Count(etl.OutcomeApplied)
		tr.Skipped += res.Count(etl.OutcomeSkipped)
		tr.Failed += res.Count(etl.OutcomeFailed)
	}
	return tr, nil
}

func canceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// MoveProcessed moves loaded files to <dest>/<runID>/<TICKER>/<file>
func MoveProcessed(dest, runID string, files []File) error {
	for _, f := range files {
		dir := filepath.Join(dest, runID, f.Ticker)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
		if err := os.Rename(f.Path, filepath.Join(dir, filepath.Base(f.Path))); err != nil {
			return fmt.Errorf("move %s: %w", f.Path, err)
		}
	}
	return nil
}
