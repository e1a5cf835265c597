package warehouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/bankstar/internal/contracts"
)

const defaultEventLimit = 100

func recordEvent(ctx context.Context, q querier, e contracts.EventEntry) error {
	if !e.Kind.Valid() {
		return fmt.Errorf("event kind %q", e.Kind)
	}

	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO etl_event_log (handler_name, source_table, ticker, kind, message, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.Handler, e.SourceTable, e.Ticker, string(e.Kind), e.Message, payload)
	if err != nil {
		return fmt.Errorf("insert etl_event_log: %w", err)
	}
	return nil
}

// EventLogRepository reads etl_event_log
type EventLogRepository struct {
	pool *pgxpool.Pool
}

// NewEventLogRepository creates a new event log repository
func NewEventLogRepository(pool *pgxpool.Pool) *EventLogRepository {
	return &EventLogRepository{pool: pool}
}

const eventColumns = `id, handler_name, source_table, ticker, kind, message, payload, created_at`

// ListEvents returns matching entries, newest first
func (r *EventLogRepository) ListEvents(ctx context.Context, f contracts.EventFilter) ([]contracts.EventEntry, error) {
	var conds []string
	var args []any

	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Ticker != "" {
		add("ticker = $%d", f.Ticker)
	}
	if f.Handler != "" {
		add("handler_name = $%d", f.Handler)
	}
	if f.Kind != "" {
		add("kind = $%d", string(f.Kind))
	}
	if !f.Since.IsZero() {
		add("created_at >= $%d", f.Since)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultEventLimit
	}

	query := "SELECT " + eventColumns + " FROM etl_event_log"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d", len(args))

	var events []contracts.EventEntry
	if err := pgxscan.Select(ctx, r.pool, &events, query, args...); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// ListEventsAfter returns entries with id > afterID, oldest first
func (r *EventLogRepository) ListEventsAfter(ctx context.Context, afterID int64, limit int) ([]contracts.EventEntry, error) {
	if limit <= 0 {
		limit = defaultEventLimit
	}

	var events []contracts.EventEntry
	err := pgxscan.Select(ctx, r.pool, &events,
		"SELECT "+eventColumns+" FROM etl_event_log WHERE id > $1 ORDER BY id LIMIT $2",
		afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list events after %d: %w", afterID, err)
	}
	return events, nil
}

// SummarizeEvents counts entries per ticker, handler and kind since the given time
func (r *EventLogRepository) SummarizeEvents(ctx context.Context, since time.Time) ([]contracts.EventCount, error) {
	var counts []contracts.EventCount
	err := pgxscan.Select(ctx, r.pool, &counts, `
		SELECT ticker, handler_name, kind, COUNT(*) AS event_count, MAX(created_at) AS last_seen
		FROM etl_event_log
		WHERE created_at >= $1
		GROUP BY ticker, handler_name, kind
		ORDER BY event_count DESC, handler_name, ticker
	`, since)
	if err != nil {
		return nil, fmt.Errorf("summarize events: %w", err)
	}
	return counts, nil
}
