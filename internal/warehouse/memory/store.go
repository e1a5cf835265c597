// Package memory is a map-backed warehouse with the same contracts as the Postgres store.
// Units of work are serialised; savepoints are snapshots of the working copy.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wonny/bankstar/internal/contracts"
)

// ErrTxDone is returned when a finished unit of work is used
var ErrTxDone = errors.New("unit of work already finished")

type companyRow struct {
	key   contracts.CompanyKey
	attrs contracts.Row
}

type tables struct {
	sources     map[string][]contracts.Row
	dates       map[time.Time]contracts.DateDimRow
	companies   map[string]companyRow
	facts       map[string]map[contracts.FactIdentity]contracts.Row
	events      []contracts.EventEntry
	nextCompany int64
	nextEvent   int64
}

func newTables() *tables {
	return &tables{
		sources:   map[string][]contracts.Row{},
		dates:     map[time.Time]contracts.DateDimRow{},
		companies: map[string]companyRow{},
		facts:     map[string]map[contracts.FactIdentity]contracts.Row{},
	}
}

// clone copies every container. Rows are never mutated in place, so they are shared.
func (t *tables) clone() *tables {
	c := &tables{
		sources:     make(map[string][]contracts.Row, len(t.sources)),
		dates:       make(map[time.Time]contracts.DateDimRow, len(t.dates)),
		companies:   make(map[string]companyRow, len(t.companies)),
		facts:       make(map[string]map[contracts.FactIdentity]contracts.Row, len(t.facts)),
		events:      append([]contracts.EventEntry(nil), t.events...),
		nextCompany: t.nextCompany,
		nextEvent:   t.nextEvent,
	}
	for k, v := range t.sources {
		c.sources[k] = append([]contracts.Row(nil), v...)
	}
	for k, v := range t.dates {
		c.dates[k] = v
	}
	for k, v := range t.companies {
		c.companies[k] = v
	}
	for table, rows := range t.facts {
		m := make(map[contracts.FactIdentity]contracts.Row, len(rows))
		for id, r := range rows {
			m[id] = r
		}
		c.facts[table] = m
	}
	return c
}

// Store is the in-memory warehouse
type Store struct {
	mu   sync.Mutex // held for the lifetime of a unit of work
	data *tables
	now  func() time.Time

	faultMu     sync.Mutex
	factFaults  map[string]error
	eventFault  error
	writeFaults map[string]error
}

// New creates an empty store
func New() *Store {
	return &Store{
		data:        newTables(),
		now:         time.Now,
		factFaults:  map[string]error{},
		writeFaults: map[string]error{},
	}
}

// FailFacts makes every upsert into table fail with err (nil clears it)
func (s *Store) FailFacts(table string, err error) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	if err == nil {
		delete(s.factFaults, table)
		return
	}
	s.factFaults[table] = err
}

// FailEvents makes every event log append fail with err (nil clears it)
func (s *Store) FailEvents(err error) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	s.eventFault = err
}

// FailSourceWrites makes every raw write into table fail with err (nil clears it)
func (s *Store) FailSourceWrites(table string, err error) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	if err == nil {
		delete(s.writeFaults, table)
		return
	}
	s.writeFaults[table] = err
}

func (s *Store) fault(m map[string]error, table string) error {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	return m[table]
}

// Begin opens a unit of work. It blocks while another one is open.
func (s *Store) Begin(ctx context.Context) (contracts.UnitOfWork, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	return &unitOfWork{store: s, work: s.data.clone()}, nil
}

// withLock runs fn against committed data
func (s *Store) withLock(fn func(t *tables)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.data)
}

type unitOfWork struct {
	store *Store
	work  *tables
	done  bool
}

func (u *unitOfWork) Commit(ctx context.Context) error {
	if u.done {
		return ErrTxDone
	}
	u.done = true
	u.store.data = u.work
	u.store.mu.Unlock()
	return nil
}

func (u *unitOfWork) Rollback(ctx context.Context) error {
	if u.done {
		return nil
	}
	u.done = true
	u.store.mu.Unlock()
	return nil
}

func (u *unitOfWork) Savepoint(ctx context.Context, fn func(contracts.Scope) error) error {
	if u.done {
		return ErrTxDone
	}
	snapshot := u.work.clone()
	if err := fn(u); err != nil {
		u.work = snapshot
		return err
	}
	return nil
}

func (u *unitOfWork) WriteSource(ctx context.Context, table contracts.SourceTable, row contracts.Row) (contracts.ChangeEvent, error) {
	if u.done {
		return contracts.ChangeEvent{}, ErrTxDone
	}
	if err := u.store.fault(u.store.writeFaults, table.Name); err != nil {
		return contracts.ChangeEvent{}, err
	}

	allowed := make(map[string]bool, len(table.Columns))
	for _, c := range table.Columns {
		allowed[c] = true
	}
	for col := range row {
		if !allowed[col] {
			return contracts.ChangeEvent{}, fmt.Errorf("column %q of relation %q does not exist", col, table.Name)
		}
	}

	rows := u.work.sources[table.Name]
	if key, ok := naturalKey(table.Key, row); ok {
		for i, existing := range rows {
			if k, _ := naturalKey(table.Key, existing); k == key {
				merged := existing.Clone()
				for col, v := range row {
					merged[col] = v
				}
				rows[i] = merged
				return contracts.ChangeEvent{Table: table.Name, Op: contracts.OpUpdate, New: merged.Clone(), Old: existing.Clone()}, nil
			}
		}
	}

	inserted := make(contracts.Row, len(table.Columns))
	for _, c := range table.Columns {
		inserted[c] = row[c]
	}
	u.work.sources[table.Name] = append(rows, inserted)
	return contracts.ChangeEvent{Table: table.Name, Op: contracts.OpInsert, New: inserted.Clone()}, nil
}

// naturalKey renders the key columns; ok is false when any of them is NULL
func naturalKey(cols []string, row contracts.Row) (string, bool) {
	parts := make([]string, len(cols))
	for i, c := range cols {
		v, ok := row.Get(c)
		if !ok {
			return "", false
		}
		if t, isTime := v.(time.Time); isTime {
			parts[i] = t.Format("2006-01-02")
			continue
		}
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, "\x00"), true
}

func (u *unitOfWork) ResolveDate(ctx context.Context, date time.Time) (contracts.DateKey, error) {
	y, m, d := date.Date()
	row, ok := u.work.dates[time.Date(y, m, d, 0, 0, 0, 0, time.UTC)]
	if !ok {
		return 0, contracts.ErrNotFound
	}
	return row.DateKey, nil
}

func (u *unitOfWork) ResolveCompany(ctx context.Context, ticker string) (contracts.CompanyKey, error) {
	c, ok := u.work.companies[ticker]
	if !ok {
		return 0, contracts.ErrNotFound
	}
	return c.key, nil
}

func (u *unitOfWork) UpsertCompany(ctx context.Context, rec contracts.CompanyRecord) (contracts.CompanyKey, error) {
	if rec.Ticker == "" {
		return 0, errors.New(`null value in column "ticker" of relation "dim_company" violates not-null constraint`)
	}
	if len(rec.Columns) != len(rec.Values) {
		return 0, fmt.Errorf("dim_company: %d columns, %d values", len(rec.Columns), len(rec.Values))
	}

	attrs := make(contracts.Row, len(rec.Columns))
	for i, c := range rec.Columns {
		attrs[c] = rec.Values[i]
	}

	existing, ok := u.work.companies[rec.Ticker]
	if ok {
		u.work.companies[rec.Ticker] = companyRow{key: existing.key, attrs: attrs}
		return existing.key, nil
	}

	u.work.nextCompany++
	key := contracts.CompanyKey(u.work.nextCompany)
	u.work.companies[rec.Ticker] = companyRow{key: key, attrs: attrs}
	return key, nil
}

func (u *unitOfWork) UpsertFact(ctx context.Context, f contracts.FactRow) error {
	if err := u.store.fault(u.store.factFaults, f.Table); err != nil {
		return err
	}
	if len(f.Columns) != len(f.Values) {
		return fmt.Errorf("%s: %d columns, %d values", f.Table, len(f.Columns), len(f.Values))
	}
	if !u.hasDateKey(f.DateKey) {
		return fmt.Errorf("insert or update on table %q violates foreign key constraint on date_key %d", f.Table, f.DateKey)
	}
	if !u.hasCompanyKey(f.CompanyKey) {
		return fmt.Errorf("insert or update on table %q violates foreign key constraint on company_key %d", f.Table, f.CompanyKey)
	}

	rows, ok := u.work.facts[f.Table]
	if !ok {
		rows = map[contracts.FactIdentity]contracts.Row{}
		u.work.facts[f.Table] = rows
	}

	id := f.Identity()
	if _, exists := rows[id]; exists && f.Policy == contracts.ConflictIgnore {
		return nil
	}

	row := make(contracts.Row, len(f.Columns)+3)
	row["date_key"] = f.DateKey
	row["company_key"] = f.CompanyKey
	if f.IsAnnual != nil {
		row["is_annual"] = *f.IsAnnual
	}
	for i, c := range f.Columns {
		row[c] = f.Values[i]
	}
	rows[id] = row
	return nil
}

func (u *unitOfWork) hasDateKey(k contracts.DateKey) bool {
	for _, d := range u.work.dates {
		if d.DateKey == k {
			return true
		}
	}
	return false
}

func (u *unitOfWork) hasCompanyKey(k contracts.CompanyKey) bool {
	for _, c := range u.work.companies {
		if c.key == k {
			return true
		}
	}
	return false
}

func (u *unitOfWork) RecordEvent(ctx context.Context, e contracts.EventEntry) error {
	u.store.faultMu.Lock()
	fault := u.store.eventFault
	u.store.faultMu.Unlock()
	if fault != nil {
		return fault
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("etl_event_log: invalid kind %q", e.Kind)
	}

	u.work.nextEvent++
	e.ID = u.work.nextEvent
	if e.CreatedAt.IsZero() {
		e.CreatedAt = u.store.now()
	}
	e.Payload = e.Payload.Clone()
	u.work.events = append(u.work.events, e)
	return nil
}

// EnsureDates inserts missing dim_date rows and returns how many were added
func (s *Store) EnsureDates(ctx context.Context, rows []contracts.DateDimRow) (int64, error) {
	var added int64
	s.withLock(func(t *tables) {
		for _, r := range rows {
			if _, ok := t.dates[r.FullDate]; ok {
				continue
			}
			t.dates[r.FullDate] = r
			added++
		}
	})
	return added, nil
}

// DateCoverage reports the covered range of dim_date
func (s *Store) DateCoverage(ctx context.Context) (contracts.DateCoverage, error) {
	var cov contracts.DateCoverage
	s.withLock(func(t *tables) {
		for d := range t.dates {
			d := d
			if cov.From == nil || d.Before(*cov.From) {
				cov.From = &d
			}
			if cov.To == nil || d.After(*cov.To) {
				cov.To = &d
			}
		}
		cov.Count = int64(len(t.dates))
	})
	return cov, nil
}

// ListEvents returns events newest first
func (s *Store) ListEvents(ctx context.Context, f contracts.EventFilter) ([]contracts.EventEntry, error) {
	var out []contracts.EventEntry
	s.withLock(func(t *tables) {
		for i := len(t.events) - 1; i >= 0; i-- {
			e := t.events[i]
			if f.Ticker != "" && (e.Ticker == nil || *e.Ticker != f.Ticker) {
				continue
			}
			if f.Handler != "" && e.Handler != f.Handler {
				continue
			}
			if f.Kind != "" && e.Kind != f.Kind {
				continue
			}
			if !f.Since.IsZero() && e.CreatedAt.Before(f.Since) {
				continue
			}
			out = append(out, e)
			if f.Limit > 0 && len(out) == f.Limit {
				break
			}
		}
	})
	return out, nil
}

// ListEventsAfter returns events with id > afterID, oldest first
func (s *Store) ListEventsAfter(ctx context.Context, afterID int64, limit int) ([]contracts.EventEntry, error) {
	var out []contracts.EventEntry
	s.withLock(func(t *tables) {
		for _, e := range t.events {
			if e.ID <= afterID {
				continue
			}
			out = append(out, e)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	})
	return out, nil
}

// SummarizeEvents counts events per (ticker, handler, kind)
func (s *Store) SummarizeEvents(ctx context.Context, since time.Time) ([]contracts.EventCount, error) {
	type key struct {
		ticker  string
		null    bool
		handler string
		kind    contracts.EventKind
	}
	counts := map[key]*contracts.EventCount{}
	var order []key

	s.withLock(func(t *tables) {
		for _, e := range t.events {
			if !since.IsZero() && e.CreatedAt.Before(since) {
				continue
			}
			k := key{handler: e.Handler, kind: e.Kind, null: e.Ticker == nil}
			if e.Ticker != nil {
				k.ticker = *e.Ticker
			}
			c, ok := counts[k]
			if !ok {
				c = &contracts.EventCount{Ticker: e.Ticker, Handler: e.Handler, Kind: e.Kind}
				counts[k] = c
				order = append(order, k)
			}
			c.Count++
			if e.CreatedAt.After(c.Last) {
				c.Last = e.CreatedAt
			}
		}
	})

	out := make([]contracts.EventCount, 0, len(order))
	for _, k := range order {
		out = append(out, *counts[k])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out, nil
}

// ReadFacts returns the fact rows of one ticker ordered by date
func (s *Store) ReadFacts(ctx context.Context, q contracts.FactQuery) ([]contracts.Row, error) {
	var out []contracts.Row
	s.withLock(func(t *tables) {
		company, ok := t.companies[q.Ticker]
		if !ok {
			return
		}
		keyToDate := make(map[contracts.DateKey]time.Time, len(t.dates))
		for d, r := range t.dates {
			keyToDate[r.DateKey] = d
		}

		for id, r := range t.facts[q.Table] {
			if id.CompanyKey != company.key {
				continue
			}
			if q.Annual != nil && (!id.HasFlag || id.IsAnnual != *q.Annual) {
				continue
			}
			date := keyToDate[id.DateKey]
			if !q.From.IsZero() && date.Before(q.From) {
				continue
			}
			if !q.To.IsZero() && date.After(q.To) {
				continue
			}
			row := r.Clone()
			row["ticker"] = q.Ticker
			row["full_date"] = date
			out = append(out, row)
		}
	})

	sort.Slice(out, func(i, j int) bool {
		ki, kj := out[i]["date_key"].(contracts.DateKey), out[j]["date_key"].(contracts.DateKey)
		if ki != kj {
			return ki < kj
		}
		ai, _ := out[i]["is_annual"].(bool)
		aj, _ := out[j]["is_annual"].(bool)
		return !ai && aj
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// ReadCompany returns the dim_company row of ticker
func (s *Store) ReadCompany(ctx context.Context, ticker string) (contracts.Row, error) {
	var out contracts.Row
	s.withLock(func(t *tables) {
		c, ok := t.companies[ticker]
		if !ok {
			return
		}
		out = c.attrs.Clone()
		out["company_key"] = c.key
		out["ticker"] = ticker
	})
	if out == nil {
		return nil, contracts.ErrNotFound
	}
	return out, nil
}
