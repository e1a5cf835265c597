package contracts

import (
	"strings"
)

// Row is one source or target row image: column name → value.
// A nil value (or an absent column) is SQL NULL.
type Row map[string]any

// Get returns the value of col when it is present and not NULL
func (r Row) Get(col string) (any, bool) {
	v, ok := r[col]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Has reports whether col carries a usable value.
// Blank strings count as missing: CSV cells and form posts use them for NULL.
func (r Row) Has(col string) bool {
	v, ok := r.Get(col)
	if !ok {
		return false
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s) != ""
	case *string:
		return s != nil && strings.TrimSpace(*s) != ""
	}
	return true
}

// Ticker returns the business key of the row, if any, exactly as stored.
// Lookups against dim_company are exact, so surrounding spaces are kept.
func (r Row) Ticker() (string, bool) {
	if !r.Has("ticker") {
		return "", false
	}
	switch v := r["ticker"].(type) {
	case string:
		return v, true
	case *string:
		return *v, true
	}
	return "", false
}

// TickerPtr is Ticker as a nullable value for the event log
func (r Row) TickerPtr() *string {
	t, ok := r.Ticker()
	if !ok {
		return nil
	}
	return &t
}

// Clone returns a shallow copy
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Op is the kind of write that produced a change event
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
)

// ChangeEvent is the row-level notification fired by a raw table write.
// Old is nil for inserts.
type ChangeEvent struct {
	Table string
	Op    Op
	New   Row
	Old   Row
}
