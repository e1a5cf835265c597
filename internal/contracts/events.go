package contracts

import (
	"context"
	"time"
)

// EventKind classifies an etl_event_log entry
type EventKind string

const (
	EventSkip    EventKind = "skip"
	EventFailure EventKind = "failure"
)

// Valid reports whether k is a known kind
func (k EventKind) Valid() bool {
	return k == EventSkip || k == EventFailure
}

// Skip reasons. The message of a skip entry is exactly one of these.
const (
	ReasonMissingIdentity     = "missing required identity field"
	ReasonUnresolvedDimension = "unresolved dimension key"
)

// EventEntry is one append-only etl_event_log row
type EventEntry struct {
	ID          int64     `db:"id" json:"id"`
	Handler     string    `db:"handler_name" json:"handler_name"`
	SourceTable string    `db:"source_table" json:"source_table"`
	Ticker      *string   `db:"ticker" json:"ticker"`
	Kind        EventKind `db:"kind" json:"kind"`
	Message     string    `db:"message" json:"message"`
	Payload     Row       `db:"payload" json:"payload"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// EventFilter narrows an event log listing. Zero values match everything.
type EventFilter struct {
	Ticker  string
	Handler string
	Kind    EventKind
	Since   time.Time
	Limit   int
}

// EventCount is one line of the event log summary
type EventCount struct {
	Ticker  *string   `db:"ticker" json:"ticker"`
	Handler string    `db:"handler_name" json:"handler_name"`
	Kind    EventKind `db:"kind" json:"kind"`
	Count   int64     `db:"event_count" json:"count"`
	Last    time.Time `db:"last_seen" json:"last_seen"`
}

// EventLogReader is the monitoring surface of etl_event_log.
// There is deliberately no update or delete.
type EventLogReader interface {
	ListEvents(ctx context.Context, filter EventFilter) ([]EventEntry, error)
	ListEventsAfter(ctx context.Context, afterID int64, limit int) ([]EventEntry, error)
	SummarizeEvents(ctx context.Context, since time.Time) ([]EventCount, error)
}
