package domain

import (
	"sort"

	"github.com/wonny/bankstar/internal/contracts"
)

// ⭐ SSOT: 원천 테이블 ↔ 웨어하우스 테이블 매핑은 여기서만

var Company = &Descriptor{
	Name:        "company",
	Handler:     "sync_dim_company",
	SourceTable: "company_profile",
	TargetTable: "dim_company",
	Shape:       ShapeCompany,
	Measures: []Column{
		{"short_name", KindText},
		{"company_type", KindText},
		{"established_year", KindInt},
		{"no_employees", KindInt},
		{"no_shareholders", KindInt},
		{"exchange", KindText},
		{"industry", KindText},
		{"industry_id", KindInt},
		{"industry_en", KindText},
		{"foreign_percent", KindDecimal},
		{"outstanding_share", KindDecimal},
		{"issue_share", KindDecimal},
		{"stock_rating", KindDecimal},
		{"delta_in_week", KindDecimal},
		{"delta_in_month", KindDecimal},
		{"delta_in_year", KindDecimal},
		{"website", KindText},
	},
	OnConflict: contracts.ConflictUpdate,
}

var Price = &Descriptor{
	Name:        "price",
	Handler:     "upsert_fact_price",
	SourceTable: "daily_chart",
	TargetTable: "fact_price",
	Shape:       ShapeDaily,
	Measures: append(decimals("open", "high", "low", "close"),
		Column{"volume", KindInt}),
	OnConflict: contracts.ConflictUpdate,
}

var Ratio = &Descriptor{
	Name:        "ratio",
	Handler:     "upsert_fact_ratio",
	SourceTable: "ratios",
	TargetTable: "fact_ratio",
	Shape:       ShapeQuarterly,
	Measures: decimals(
		"price_to_earning", "price_to_book", "value_before_ebitda", "dividend",
		"roe", "roa", "days_receivable", "days_inventory", "days_payable",
		"ebit_on_interest", "earning_per_share", "book_value_per_share",
		"interest_margin", "non_interest_on_toi", "bad_debt_percentage",
		"provision_on_bad_debt", "cost_of_financing", "equity_on_total_asset",
		"equity_on_loan", "cost_to_income", "equity_on_liability",
		"current_payment", "quick_payment", "eps_change", "ebitda_on_stock",
		"gross_profit_margin", "operating_profit_margin", "post_tax_margin",
		"debt_on_equity", "debt_on_asset", "debt_on_ebitda", "short_on_long_debt",
		"asset_on_equity", "capital_balance", "cash_on_equity", "cash_on_capitalize",
		"cash_circulation", "revenue_on_work_capital", "capex_on_fixed_asset",
		"revenue_on_asset", "post_tax_on_pre_tax", "ebit_on_revenue",
		"pre_tax_on_ebit", "pre_provision_on_toi", "post_tax_on_toi",
		"loan_on_earn_asset", "loan_on_asset", "loan_on_deposit",
		"deposit_on_earn_asset", "bad_debt_on_asset", "liquidity_on_liability",
		"payable_on_equity", "cancel_debt", "ebitda_on_stock_change",
		"book_value_per_share_change", "credit_growth",
	),
	OnConflict: contracts.ConflictUpdate,
}

var BalanceSheet = &Descriptor{
	Name:        "balance_sheet",
	Handler:     "upsert_fact_balance_sheet",
	SourceTable: "balance_sheet",
	TargetTable: "fact_balance_sheet",
	Shape:       ShapeQuarterly,
	Measures: decimals(
		"short_asset", "cash", "short_invest", "short_receivable", "inventory",
		"long_asset", "fixed_asset", "asset", "debt", "short_debt", "long_debt",
		"equity", "capital", "central_bank_deposit", "other_bank_deposit",
		"other_bank_loan", "stock_invest", "customer_loan", "bad_loan",
		"provision", "net_customer_loan", "other_asset", "other_bank_credit",
		"owe_other_bank", "owe_central_bank", "valuable_paper",
		"payable_interest", "receivable_interest", "deposit", "other_debt",
		"fund", "un_distributed_income", "minor_share_holder_profit", "payable",
	),
	OnConflict: contracts.ConflictUpdate,
}

var IncomeStatement = &Descriptor{
	Name:        "income_statement",
	Handler:     "upsert_fact_income_statement",
	SourceTable: "income_statement",
	TargetTable: "fact_income_statement",
	Shape:       ShapeQuarterly,
	Measures: decimals(
		"revenue", "year_revenue_growth", "quarter_revenue_growth",
		"cost_of_good_sold", "gross_profit", "operation_expense",
		"operation_profit", "year_operation_profit_growth",
		"quarter_operation_profit_growth", "interest_expense", "pre_tax_profit",
		"post_tax_profit", "share_holder_income", "year_share_holder_income_growth",
		"quarter_share_holder_income_growth", "invest_profit", "service_profit",
		"other_profit", "provision_expense", "operation_income", "ebitda",
	),
	OnConflict: contracts.ConflictUpdate,
}

var CashFlow = &Descriptor{
	Name:        "cash_flow",
	Handler:     "upsert_fact_cash_flow",
	SourceTable: "cash_flow",
	TargetTable: "fact_cash_flow",
	Shape:       ShapeQuarterly,
	Measures: decimals(
		"invest_cost", "from_invest", "from_financial", "from_sale", "free_cash_flow",
	),
	OnConflict: contracts.ConflictUpdate,
}

// Facts returns the five fact domains. Price uses the given conflict policy.
func Facts(pricePolicy contracts.ConflictPolicy) []*Descriptor {
	price := Price
	if pricePolicy != "" && pricePolicy != Price.OnConflict {
		price = Price.WithConflict(pricePolicy)
	}
	return []*Descriptor{price, Ratio, BalanceSheet, IncomeStatement, CashFlow}
}

// All returns company sync first, then the fact domains
func All(pricePolicy contracts.ConflictPolicy) []*Descriptor {
	return append([]*Descriptor{Company}, Facts(pricePolicy)...)
}

// BySource finds the descriptor for a raw table name
func BySource(table string) (*Descriptor, bool) {
	for _, d := range All("") {
		if d.SourceTable == table {
			return d, true
		}
	}
	return nil, false
}

// ByName finds a descriptor by domain name, source table or target table
func ByName(name string) (*Descriptor, bool) {
	for _, d := range All("") {
		if d.Name == name || d.SourceTable == name || d.TargetTable == name {
			return d, true
		}
	}
	return nil, false
}

// SourceTables lists every raw table name, sorted
func SourceTables() []string {
	var out []string
	for _, d := range All("") {
		out = append(out, d.SourceTable)
	}
	sort.Strings(out)
	return out
}
