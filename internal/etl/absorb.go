package etl

import (
	"context"
	"fmt"

	"github.com/wonny/bankstar/internal/contracts"
	"github.com/wonny/bankstar/pkg/logger"
)

// Absorber runs handlers so that nothing they do can fail the triggering write.
// ⭐ SSOT: skip/failure → etl_event_log 변환은 여기서만
type Absorber struct {
	log *logger.Logger
}

// NewAbsorber creates the adapter
func NewAbsorber(log *logger.Logger) *Absorber {
	return &Absorber{log: log.Component("etl")}
}

// Run executes h for the change event inside its own savepoint.
// A failed outcome rolls back the handler's partial work; skipped and failed
// outcomes are then recorded in a second savepoint. Run never returns an error.
func (a *Absorber) Run(ctx context.Context, scope contracts.Scope, h Handler, ev contracts.ChangeEvent) Outcome {
	var out Outcome
	err := scope.Savepoint(ctx, func(sc contracts.Scope) error {
		out = invoke(ctx, h, sc, ev.New)
		if out.Kind == OutcomeFailed {
			return out.Err
		}
		return nil
	})
	if err != nil && out.Kind != OutcomeFailed {
		out = Failed(fmt.Errorf("savepoint: %w", err))
	}

	fields := map[string]interface{}{
		"handler": h.Name(),
		"table":   ev.Table,
		"op":      string(ev.Op),
	}
	if ticker, ok := ev.New.Ticker(); ok {
		fields["ticker"] = ticker
	}
	log := a.log.WithFields(fields)

	switch out.Kind {
	case OutcomeApplied:
		log.Debug("applied")
		return out
	case OutcomeSkipped:
		log.WithField("reason", out.Reason).Warn("row skipped")
	case OutcomeFailed:
		log.WithError(out.Err).Error("row failed")
	}

	a.record(ctx, scope, h, ev, out, log)
	return out
}

func (a *Absorber) record(ctx context.Context, scope contracts.Scope, h Handler, ev contracts.ChangeEvent, out Outcome, log *logger.Logger) {
	kind := contracts.EventSkip
	if out.Kind == OutcomeFailed {
		kind = contracts.EventFailure
	}

	entry := contracts.EventEntry{
		Handler:     h.Name(),
		SourceTable: ev.Table,
		Ticker:      ev.New.TickerPtr(),
		Kind:        kind,
		Message:     out.Message(),
		Payload:     ev.New.Clone(),
	}

	err := scope.Savepoint(ctx, func(sc contracts.Scope) error {
		return sc.RecordEvent(ctx, entry)
	})
	if err != nil {
		// durable log unavailable: the process log is the last resort
		log.WithError(err).WithFields(map[string]interface{}{
			"kind":    string(kind),
			"message": entry.Message,
			"payload": entry.Payload,
		}).Error("event log write failed")
	}
}

// invoke converts a handler panic into a failed outcome
func invoke(ctx context.Context, h Handler, sc contracts.Scope, row contracts.Row) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Failed(fmt.Errorf("panic in %s: %v", h.Name(), r))
		}
	}()
	return h.Handle(ctx, sc, row)
}
