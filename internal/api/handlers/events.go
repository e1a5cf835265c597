package handlers

import (
	"net/http"
	"time"

	"github.com/wonny/bankstar/internal/contracts"
	"github.com/wonny/bankstar/pkg/logger"
	"github.com/wonny/bankstar/pkg/redis"
)

const (
	defaultEventLimit  = 50
	maxEventLimit      = 1000
	defaultSummaryDays = 7
)

// EventsHandler serves the etl_event_log monitoring endpoints
// ⭐ SSOT: 이벤트 로그 조회 API는 이 구조체에서만
type EventsHandler struct {
	events contracts.EventLogReader
	cache  *redis.Cache
	logger *logger.Logger
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(events contracts.EventLogReader, cache *redis.Cache, log *logger.Logger) *EventsHandler {
	return &EventsHandler{events: events, cache: cache, logger: log}
}

// List returns event log entries, newest first
// GET /api/events?ticker=&kind=&handler=&since=&limit=
func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	kind := contracts.EventKind(q.Get("kind"))
	if kind != "" && !kind.Valid() {
		respondError(w, http.StatusBadRequest, "Invalid 'kind' (expected skip or failure)")
		return
	}

	limit, err := queryInt(r, "limit", defaultEventLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if limit == 0 || limit > maxEventLimit {
		limit = maxEventLimit
	}

	since, err := queryDate(r, "since")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	filter := contracts.EventFilter{
		Ticker:  q.Get("ticker"),
		Handler: q.Get("handler"),
		Kind:    kind,
		Since:   since,
		Limit:   limit,
	}

	load := func() (interface{}, error) {
		return h.events.ListEvents(ctx, filter)
	}

	var events []contracts.EventEntry
	if filter.Handler == "" && filter.Since.IsZero() {
		err = h.cache.GetOrSet(ctx, redis.EventsKey(filter.Ticker, string(kind), limit), &events, redis.TTLShort, load)
	} else {
		events, err = h.events.ListEvents(ctx, filter)
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to list events")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve events")
		return
	}
	if events == nil {
		events = []contracts.EventEntry{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(events),
		"events": events,
	})
}

// Summary returns event counts per ticker, handler and kind
// GET /api/events/summary?days=7
func (h *EventsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	days, err := queryInt(r, "days", defaultSummaryDays)
	if err != nil || days == 0 {
		respondError(w, http.StatusBadRequest, "Invalid 'days' (expected a positive integer)")
		return
	}
	since := time.Now().AddDate(0, 0, -days)

	var counts []contracts.EventCount
	err = h.cache.GetOrSet(ctx, redis.EventSummaryKey(days), &counts, redis.TTLShort, func() (interface{}, error) {
		return h.events.SummarizeEvents(ctx, since)
	})
	if err != nil {
		h.logger.WithError(err).Error("Failed to summarize events")
		respondError(w, http.StatusInternalServerError, "Failed to summarize events")
		return
	}
	if counts == nil {
		counts = []contracts.EventCount{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"since":  since,
		"counts": counts,
	})
}
