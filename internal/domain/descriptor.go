// Package domain describes the raw source tables and the warehouse tables they feed.
// One Descriptor per source shape drives the generic handler in internal/etl.
package domain

import (
	"fmt"

	"github.com/wonny/bankstar/internal/contracts"
)

// Shape is how a source row identifies itself
type Shape int

const (
	// ShapeQuarterly: {ticker, year, quarter}; quarter 5 is the annual record
	ShapeQuarterly Shape = iota
	// ShapeDaily: {ticker, date}
	ShapeDaily
	// ShapeCompany: {ticker}; targets dim_company instead of a fact table
	ShapeCompany
)

// Column is a named, typed column
type Column struct {
	Name string
	Kind Kind
}

// Descriptor ties a raw source table to its warehouse target
type Descriptor struct {
	Name        string // short domain name used by the API and CLI
	Handler     string // handler name written to etl_event_log
	SourceTable string
	TargetTable string
	Shape       Shape
	Measures    []Column // copied verbatim from source to target
	OnConflict  contracts.ConflictPolicy
}

// Key returns the natural key columns of the source table
func (d *Descriptor) Key() []Column {
	switch d.Shape {
	case ShapeDaily:
		return []Column{{"ticker", KindText}, {"date", KindDate}}
	case ShapeCompany:
		return []Column{{"ticker", KindText}}
	default:
		return []Column{{"ticker", KindText}, {"year", KindInt}, {"quarter", KindInt}}
	}
}

// KeyNames returns the natural key column names
func (d *Descriptor) KeyNames() []string {
	return names(d.Key())
}

// MeasureNames returns the measure column names in declaration order
func (d *Descriptor) MeasureNames() []string {
	return names(d.Measures)
}

// SourceColumns returns every column of the raw table, key first
func (d *Descriptor) SourceColumns() []Column {
	cols := make([]Column, 0, len(d.Measures)+3)
	cols = append(cols, d.Key()...)
	return append(cols, d.Measures...)
}

// Source returns the write-path description of the raw table
func (d *Descriptor) Source() contracts.SourceTable {
	return contracts.SourceTable{
		Name:    d.SourceTable,
		Key:     d.KeyNames(),
		Columns: names(d.SourceColumns()),
	}
}

// HasAnnualFlag reports whether is_annual is part of the fact identity
func (d *Descriptor) HasAnnualFlag() bool {
	return d.Shape == ShapeQuarterly
}

// Column looks up a source column by name
func (d *Descriptor) Column(name string) (Column, bool) {
	for _, c := range d.SourceColumns() {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// CoerceMeasures converts every measure of row to its storage type.
// Absent measures are NULL: the target row is fully replaced.
func (d *Descriptor) CoerceMeasures(row contracts.Row) ([]any, error) {
	values := make([]any, len(d.Measures))
	for i, c := range d.Measures {
		v, err := Coerce(c.Kind, row[c.Name])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Name, err)
		}
		values[i] = v
	}
	return values, nil
}

// CoerceRow converts every known column of row; unknown columns are dropped.
// Used by the write path so the raw table receives typed values.
func (d *Descriptor) CoerceRow(row contracts.Row) (contracts.Row, error) {
	out := make(contracts.Row, len(row))
	for _, c := range d.SourceColumns() {
		raw, ok := row[c.Name]
		if !ok {
			continue
		}
		v, err := Coerce(c.Kind, raw)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Name, err)
		}
		out[c.Name] = v
	}
	return out, nil
}

// WithConflict returns a copy of d using policy p
func (d *Descriptor) WithConflict(p contracts.ConflictPolicy) *Descriptor {
	cp := *d
	cp.OnConflict = p
	return &cp
}

func names(cols []Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

func decimals(names ...string) []Column {
	cols := make([]Column, len(names))
	for i, n := range names {
		cols[i] = Column{Name: n, Kind: KindDecimal}
	}
	return cols
}
