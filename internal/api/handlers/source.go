package handlers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/wonny/bankstar/internal/contracts"
	"github.com/wonny/bankstar/internal/trigger"
	"github.com/wonny/bankstar/pkg/logger"
	"github.com/wonny/bankstar/pkg/redis"
)

const maxSourceBody = 8 << 20

// SourceWriter is the raw write path (trigger.Writer)
type SourceWriter interface {
	Write(ctx context.Context, table string, row contracts.Row) (trigger.WriteResult, error)
	Dispatcher() *trigger.Dispatcher
}

// SourceHandler accepts raw rows from the external ingestion job
// ⭐ SSOT: HTTP 원천 쓰기는 이 구조체에서만
type SourceHandler struct {
	writer SourceWriter
	cache  *redis.Cache
	logger *logger.Logger
}

// NewSourceHandler creates a new source handler
func NewSourceHandler(writer SourceWriter, cache *redis.Cache, log *logger.Logger) *SourceHandler {
	return &SourceHandler{writer: writer, cache: cache, logger: log}
}

// OutcomeResponse is one handler outcome of a write
type OutcomeResponse struct {
	Handler string `json:"handler"`
	Outcome string `json:"outcome"`
	Message string `json:"message,omitempty"`
}

// RowResponse is the result of one posted row
type RowResponse struct {
	Op       contracts.Op      `json:"op,omitempty"`
	Error    string            `json:"error,omitempty"`
	Outcomes []OutcomeResponse `json:"outcomes,omitempty"`
}

// Write inserts or updates raw rows. The body is one JSON object or an array of them.
// POST /api/source/{table}
func (h *SourceHandler) Write(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	table := mux.Vars(r)["table"]

	rows, err := decodeRows(http.MaxBytesReader(w, r.Body, maxSourceBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(rows) == 0 {
		respondError(w, http.StatusBadRequest, "No rows in request body")
		return
	}

	results := make([]RowResponse, 0, len(rows))
	written := 0
	tickers := map[string]bool{}

	for _, row := range rows {
		res, err := h.writer.Write(ctx, table, row)
		if errors.Is(err, trigger.ErrUnknownTable) {
			respondError(w, http.StatusNotFound, "Unknown source table")
			return
		}
		if err != nil {
			h.logger.WithError(err).WithField("table", table).Warn("Source row rejected")
			results = append(results, RowResponse{Error: err.Error()})
			continue
		}

		written++
		if t, ok := row.Ticker(); ok {
			tickers[t] = true
		}
		results = append(results, toRowResponse(res))
	}

	h.invalidate(ctx, tickers)

	status := http.StatusOK
	if written == 0 {
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, status, map[string]interface{}{
		"table":    table,
		"written":  written,
		"rejected": len(rows) - written,
		"results":  results,
	})
}

// GetBindings lists which handler fires on which raw table
// GET /api/bindings
func (h *SourceHandler) GetBindings(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.writer.Dispatcher().Bindings())
}

// invalidate drops cached reads the write may have changed
func (h *SourceHandler) invalidate(ctx context.Context, tickers map[string]bool) {
	if _, err := h.cache.DeletePattern(ctx, "events:*"); err != nil {
		h.logger.WithError(err).Warn("Cache invalidation failed")
	}
	for t := range tickers {
		if _, err := h.cache.DeletePattern(ctx, redis.TickerFactsPattern(t)); err != nil {
			h.logger.WithError(err).WithField("ticker", t).Warn("Cache invalidation failed")
		}
		if err := h.cache.Delete(ctx, redis.CompanyKey(t)); err != nil {
			h.logger.WithError(err).WithField("ticker", t).Warn("Cache invalidation failed")
		}
	}
}

func toRowResponse(res trigger.WriteResult) RowResponse {
	out := RowResponse{Op: res.Event.Op, Outcomes: make([]OutcomeResponse, 0, len(res.Results))}
	for _, r := range res.Results {
		out.Outcomes = append(out.Outcomes, OutcomeResponse{
			Handler: r.Handler,
			Outcome: r.Outcome.Kind.String(),
			Message: r.Outcome.Message(),
		})
	}
	return out
}

// decodeRows accepts a single object or an array. Numbers stay json.Number
// so decimals reach the coercion layer without float rounding.
func decodeRows(body io.Reader) ([]contracts.Row, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty body")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if data[0] == '[' {
		var rows []contracts.Row
		if err := dec.Decode(&rows); err != nil {
			return nil, err
		}
		return rows, nil
	}

	var row contracts.Row
	if err := dec.Decode(&row); err != nil {
		return nil, err
	}
	return []contracts.Row{row}, nil
}
