// Package trigger binds handlers to row-level change events of the raw tables
// and runs them in the unit of work of the write that produced the event.
package trigger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/wonny/bankstar/internal/contracts"
	"github.com/wonny/bankstar/internal/domain"
	"github.com/wonny/bankstar/internal/etl"
)

// Binding describes one handler bound to a source table
type Binding struct {
	Table   string         `json:"table"`
	Handler string         `json:"handler"`
	Ops     []contracts.Op `json:"ops"`
}

// Result is one handler's outcome for a fired event
type Result struct {
	Handler string
	Outcome etl.Outcome
}

type bound struct {
	handler etl.Handler
	ops     map[contracts.Op]bool
}

// Dispatcher routes change events to bound handlers, one row at a time, synchronously
type Dispatcher struct {
	mu       sync.RWMutex
	bindings map[string][]bound
	absorber *etl.Absorber
}

// NewDispatcher creates an empty dispatcher
func NewDispatcher(absorber *etl.Absorber) *Dispatcher {
	return &Dispatcher{
		bindings: make(map[string][]bound),
		absorber: absorber,
	}
}

// NewDefault binds one handler per descriptor to insert and update of its source table
func NewDefault(absorber *etl.Absorber, descs []*domain.Descriptor) (*Dispatcher, error) {
	d := NewDispatcher(absorber)
	for _, h := range etl.NewHandlers(descs) {
		if err := d.Bind(h, contracts.OpInsert, contracts.OpUpdate); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Bind attaches h to its source table for the given ops (insert and update when none given)
func (d *Dispatcher) Bind(h etl.Handler, ops ...contracts.Op) error {
	if len(ops) == 0 {
		ops = []contracts.Op{contracts.OpInsert, contracts.OpUpdate}
	}

	set := make(map[contracts.Op]bool, len(ops))
	for _, op := range ops {
		switch op {
		case contracts.OpInsert, contracts.OpUpdate:
			set[op] = true
		default:
			return fmt.Errorf("bind %s: unsupported op %q", h.Name(), op)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	table := h.SourceTable()
	for _, b := range d.bindings[table] {
		if b.handler.Name() == h.Name() {
			return fmt.Errorf("bind %s: already bound to %s", h.Name(), table)
		}
	}
	d.bindings[table] = append(d.bindings[table], bound{handler: h, ops: set})
	return nil
}

// Fire runs every handler bound to ev's table and op, in bind order.
// Handler outcomes never become errors.
func (d *Dispatcher) Fire(ctx context.Context, scope contracts.Scope, ev contracts.ChangeEvent) []Result {
	d.mu.RLock()
	targets := append([]bound(nil), d.bindings[ev.Table]...)
	d.mu.RUnlock()

	var results []Result
	for _, b := range targets {
		if !b.ops[ev.Op] {
			continue
		}
		results = append(results, Result{
			Handler: b.handler.Name(),
			Outcome: d.absorber.Run(ctx, scope, b.handler, ev),
		})
	}
	return results
}

// Bindings lists every binding sorted by table then handler
func (d *Dispatcher) Bindings() []Binding {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []Binding
	for table, bs := range d.bindings {
		for _, b := range bs {
			var ops []contracts.Op
			for _, op := range []contracts.Op{contracts.OpInsert, contracts.OpUpdate} {
				if b.ops[op] {
					ops = append(ops, op)
				}
			}
			out = append(out, Binding{Table: table, Handler: b.handler.Name(), Ops: ops})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Table != out[j].Table {
			return out[i].Table < out[j].Table
		}
		return out[i].Handler < out[j].Handler
	})
	return out
}
