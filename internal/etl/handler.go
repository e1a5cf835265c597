package etl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/bankstar/internal/contracts"
	"github.com/wonny/bankstar/internal/datekey"
	"github.com/wonny/bankstar/internal/domain"
)

// Handler converts one changed source row into one warehouse write
type Handler interface {
	Name() string
	SourceTable() string
	Handle(ctx context.Context, scope contracts.Scope, row contracts.Row) Outcome
}

// NewHandlers builds one handler per descriptor
func NewHandlers(descs []*domain.Descriptor) []Handler {
	out := make([]Handler, 0, len(descs))
	for _, d := range descs {
		if d.Shape == domain.ShapeCompany {
			out = append(out, NewCompanySync(d))
			continue
		}
		out = append(out, NewFactHandler(d))
	}
	return out
}

// FactHandler upserts one fact row per source row. One instance per domain.
type FactHandler struct {
	desc *domain.Descriptor
}

// NewFactHandler creates the handler for a fact domain
func NewFactHandler(d *domain.Descriptor) *FactHandler {
	return &FactHandler{desc: d}
}

func (h *FactHandler) Name() string        { return h.desc.Handler }
func (h *FactHandler) SourceTable() string { return h.desc.SourceTable }

// Descriptor returns the domain this handler serves
func (h *FactHandler) Descriptor() *domain.Descriptor { return h.desc }

// Handle runs: identity check → key resolution → is_annual → upsert.
// Resolution failures short-circuit before any fact mutation.
func (h *FactHandler) Handle(ctx context.Context, scope contracts.Scope, row contracts.Row) Outcome {
	ticker, ok := row.Ticker()
	if !ok {
		return Skipped(contracts.ReasonMissingIdentity)
	}

	var (
		dateKey  contracts.DateKey
		isAnnual *bool
		err      error
	)

	switch h.desc.Shape {
	case domain.ShapeDaily:
		if !row.Has("date") {
			return Skipped(contracts.ReasonMissingIdentity)
		}
		v, cerr := domain.Coerce(domain.KindDate, row["date"])
		if cerr != nil {
			return Failed(fmt.Errorf("date: %w", cerr))
		}
		date, ok := v.(time.Time)
		if !ok {
			return Skipped(contracts.ReasonMissingIdentity)
		}
		dateKey, err = scope.ResolveDate(ctx, date)

	default:
		if !row.Has("year") || !row.Has("quarter") {
			return Skipped(contracts.ReasonMissingIdentity)
		}
		year, cerr := coerceInt(row["year"])
		if cerr != nil {
			return Failed(fmt.Errorf("year: %w", cerr))
		}
		quarter, cerr := coerceInt(row["quarter"])
		if cerr != nil {
			return Failed(fmt.Errorf("quarter: %w", cerr))
		}
		dateKey, err = datekey.ResolvePeriod(ctx, scope, year, quarter)
		annual := datekey.IsAnnual(quarter)
		isAnnual = &annual
	}
	if out, done := resolution(err, "date"); done {
		return out
	}

	companyKey, err := scope.ResolveCompany(ctx, ticker)
	if out, done := resolution(err, "company"); done {
		return out
	}

	values, err := h.desc.CoerceMeasures(row)
	if err != nil {
		return Failed(err)
	}

	err = scope.UpsertFact(ctx, contracts.FactRow{
		Table:      h.desc.TargetTable,
		DateKey:    dateKey,
		CompanyKey: companyKey,
		IsAnnual:   isAnnual,
		Columns:    h.desc.MeasureNames(),
		Values:     values,
		Policy:     h.desc.OnConflict,
	})
	if err != nil {
		return Failed(fmt.Errorf("upsert %s: %w", h.desc.TargetTable, err))
	}
	return Applied()
}

// resolution maps a lookup error to a terminal outcome
func resolution(err error, what string) (Outcome, bool) {
	switch {
	case err == nil:
		return Outcome{}, false
	case errors.Is(err, contracts.ErrNotFound):
		return Skipped(contracts.ReasonUnresolvedDimension), true
	default:
		return Failed(fmt.Errorf("resolve %s key: %w", what, err)), true
	}
}

func coerceInt(v any) (int, error) {
	n, err := domain.Coerce(domain.KindInt, v)
	if err != nil {
		return 0, err
	}
	i, ok := n.(int64)
	if !ok {
		return 0, fmt.Errorf("%v is not an integer", v)
	}
	return int(i), nil
}

// CompanySync keeps dim_company in step with company_profile (type-1, in place)
type CompanySync struct {
	desc *domain.Descriptor
}

// NewCompanySync creates the dim_company sync handler
func NewCompanySync(d *domain.Descriptor) *CompanySync {
	return &CompanySync{desc: d}
}

func (h *CompanySync) Name() string        { return h.desc.Handler }
func (h *CompanySync) SourceTable() string { return h.desc.SourceTable }

// Handle replaces every descriptive attribute of the ticker's dim_company row
func (h *CompanySync) Handle(ctx context.Context, scope contracts.Scope, row contracts.Row) Outcome {
	ticker, ok := row.Ticker()
	if !ok {
		return Skipped(contracts.ReasonMissingIdentity)
	}

	values, err := h.desc.CoerceMeasures(row)
	if err != nil {
		return Failed(err)
	}

	_, err = scope.UpsertCompany(ctx, contracts.CompanyRecord{
		Ticker:  ticker,
		Columns: h.desc.MeasureNames(),
		Values:  values,
	})
	if err != nil {
		return Failed(fmt.Errorf("upsert %s: %w", h.desc.TargetTable, err))
	}
	return Applied()
}
