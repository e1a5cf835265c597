// Package etl turns raw source rows into dimension and fact rows.
//
// Every handler returns an Outcome instead of an error. The Absorber is the one
// place that turns skipped and failed outcomes into etl_event_log entries and
// reports success to the triggering write.
package etl

import (
	"fmt"
)

// OutcomeKind classifies a handler invocation
type OutcomeKind int

const (
	OutcomeApplied OutcomeKind = iota
	OutcomeSkipped
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeApplied:
		return "applied"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	}
	return fmt.Sprintf("outcome(%d)", int(k))
}

// Outcome is applied | skipped(reason) | failed(err)
type Outcome struct {
	Kind   OutcomeKind
	Reason string
	Err    error
}

func Applied() Outcome { return Outcome{Kind: OutcomeApplied} }

func Skipped(reason string) Outcome { return Outcome{Kind: OutcomeSkipped, Reason: reason} }

func Failed(err error) Outcome {
	if err == nil {
		err = fmt.Errorf("unknown failure")
	}
	return Outcome{Kind: OutcomeFailed, Err: err}
}

// Message is what goes to etl_event_log.message
func (o Outcome) Message() string {
	switch o.Kind {
	case OutcomeSkipped:
		return o.Reason
	case OutcomeFailed:
		return o.Err.Error()
	}
	return ""
}

func (o Outcome) String() string {
	if o.Kind == OutcomeApplied {
		return o.Kind.String()
	}
	return fmt.Sprintf("%s: %s", o.Kind, o.Message())
}
