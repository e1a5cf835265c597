package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/bankstar/internal/contracts"
	"github.com/wonny/bankstar/internal/domain"
	"github.com/wonny/bankstar/pkg/logger"
	"github.com/wonny/bankstar/pkg/redis"
)

// WarehouseHandler serves star-schema reads
type WarehouseHandler struct {
	reader contracts.WarehouseReader
	dates  contracts.DateDimensionStore
	cache  *redis.Cache
	logger *logger.Logger
}

// NewWarehouseHandler creates a new warehouse handler
func NewWarehouseHandler(reader contracts.WarehouseReader, dates contracts.DateDimensionStore, cache *redis.Cache, log *logger.Logger) *WarehouseHandler {
	return &WarehouseHandler{reader: reader, dates: dates, cache: cache, logger: log}
}

// GetFacts returns fact rows of one ticker for a domain
// GET /api/facts/{domain}?ticker=ACB&from=2022-Q1&to=2023-12-31&annual=false&limit=
func (h *WarehouseHandler) GetFacts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	desc, ok := domain.ByName(mux.Vars(r)["domain"])
	if !ok || desc.Shape == domain.ShapeCompany {
		respondError(w, http.StatusNotFound, "Unknown fact domain")
		return
	}

	ticker := strings.TrimSpace(r.URL.Query().Get("ticker"))
	if ticker == "" {
		respondError(w, http.StatusBadRequest, "'ticker' is required")
		return
	}

	from, err := queryDate(r, "from")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	annual, err := queryBool(r, "annual")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if annual != nil && !desc.HasAnnualFlag() {
		respondError(w, http.StatusBadRequest, "'annual' does not apply to "+desc.Name)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	q := contracts.FactQuery{
		Table:  desc.TargetTable,
		Ticker: ticker,
		From:   from,
		To:     to,
		Annual: annual,
		Limit:  limit,
	}

	var rows []contracts.Row
	if annual == nil && limit == 0 {
		key := redis.FactsKey(desc.Name, ticker, dateParam(from), dateParam(to))
		err = h.cache.GetOrSet(ctx, key, &rows, redis.TTLMedium, func() (interface{}, error) {
			return h.reader.ReadFacts(ctx, q)
		})
	} else {
		rows, err = h.reader.ReadFacts(ctx, q)
	}
	if err != nil {
		h.logger.WithError(err).WithField("domain", desc.Name).Error("Failed to read facts")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve facts")
		return
	}
	if rows == nil {
		rows = []contracts.Row{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"domain": desc.Name,
		"table":  desc.TargetTable,
		"ticker": ticker,
		"count":  len(rows),
		"rows":   rows,
	})
}

// GetCompany returns the dim_company row of a ticker
// GET /api/companies/{ticker}
func (h *WarehouseHandler) GetCompany(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ticker := mux.Vars(r)["ticker"]

	var company contracts.Row
	err := h.cache.GetOrSet(ctx, redis.CompanyKey(ticker), &company, redis.TTLLong, func() (interface{}, error) {
		return h.reader.ReadCompany(ctx, ticker)
	})
	if errors.Is(err, contracts.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Company not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("ticker", ticker).Error("Failed to read company")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve company")
		return
	}

	respondJSON(w, http.StatusOK, company)
}

// GetDateCoverage returns the range dim_date covers
// GET /api/dates/coverage
func (h *WarehouseHandler) GetDateCoverage(w http.ResponseWriter, r *http.Request) {
	cov, err := h.dates.DateCoverage(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to read date coverage")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve date coverage")
		return
	}
	respondJSON(w, http.StatusOK, cov)
}

func dateParam(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("20060102")
}
