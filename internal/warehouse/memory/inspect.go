package memory

import (
	"context"

	"github.com/wonny/bankstar/internal/contracts"
	"github.com/wonny/bankstar/internal/datekey"
)

// Inspection and seeding helpers for tests and dry runs.

// SeedCompany inserts a dim_company row directly, bypassing the sync handler
func (s *Store) SeedCompany(ticker string) contracts.CompanyKey {
	var key contracts.CompanyKey
	s.withLock(func(t *tables) {
		if c, ok := t.companies[ticker]; ok {
			key = c.key
			return
		}
		t.nextCompany++
		key = contracts.CompanyKey(t.nextCompany)
		t.companies[ticker] = companyRow{key: key, attrs: contracts.Row{}}
	})
	return key
}

// SeedYears fills dim_date for whole calendar years [from, to]
func (s *Store) SeedYears(from, to int) error {
	cal, err := datekey.NewCalendar(nil)
	if err != nil {
		return err
	}
	start, _ := datekey.PeriodEnd(from-1, 4)
	end, _ := datekey.PeriodEnd(to, 4)
	_, err = s.EnsureDates(context.Background(), cal.Rows(start.AddDate(0, 0, 1), end))
	return err
}

// FactRows returns a copy of every row of a fact table
func (s *Store) FactRows(table string) []contracts.Row {
	var out []contracts.Row
	s.withLock(func(t *tables) {
		for _, r := range t.facts[table] {
			out = append(out, r.Clone())
		}
	})
	return out
}

// Fact returns the fact row at an identity
func (s *Store) Fact(table string, id contracts.FactIdentity) (contracts.Row, bool) {
	var out contracts.Row
	s.withLock(func(t *tables) {
		if r, ok := t.facts[table][id]; ok {
			out = r.Clone()
		}
	})
	return out, out != nil
}

// Events returns the event log, oldest first
func (s *Store) Events() []contracts.EventEntry {
	var out []contracts.EventEntry
	s.withLock(func(t *tables) {
		out = append(out, t.events...)
	})
	return out
}

// SourceRows returns the rows of a raw table in write order
func (s *Store) SourceRows(table string) []contracts.Row {
	var out []contracts.Row
	s.withLock(func(t *tables) {
		for _, r := range t.sources[table] {
			out = append(out, r.Clone())
		}
	})
	return out
}

// CompanyCount returns the number of dim_company rows
func (s *Store) CompanyCount() int {
	var n int
	s.withLock(func(t *tables) { n = len(t.companies) })
	return n
}
