package ingest

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/wonny/bankstar/internal/contracts"
	"github.com/wonny/bankstar/internal/datekey"
	"github.com/wonny/bankstar/internal/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// periodColumns carry "2022-Q1" / "2022" when a statement file has no year/quarter
var periodColumns = []string{"period", "report_period"}

// ReadFile parses one CSV drop into rows. Empty cells are NULL.
func ReadFile(path string) ([]contracts.Row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return ParseCSV(data)
}

// ParseCSV parses CSV bytes with a header line
func ParseCSV(data []byte) ([]contracts.Row, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	records, err := gocsv.CSVToMaps(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	rows := make([]contracts.Row, 0, len(records))
	for _, rec := range records {
		row := make(contracts.Row, len(rec))
		for k, v := range rec {
			k = strings.TrimSpace(k)
			if k == "" {
				continue
			}
			if strings.TrimSpace(v) == "" {
				row[k] = nil
				continue
			}
			row[k] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Prepare fits a parsed row to the raw table of desc.
// The ticker comes from the drop folder when the file has no ticker column.
func Prepare(desc *domain.Descriptor, ticker string, row contracts.Row) contracts.Row {
	out := row.Clone()
	if _, ok := out["ticker"]; !ok && ticker != "" {
		out["ticker"] = ticker
	}

	if desc.Shape == domain.ShapeQuarterly {
		_, hasYear := out["year"]
		_, hasQuarter := out["quarter"]
		if !hasYear && !hasQuarter {
			for _, col := range periodColumns {
				s, ok := out[col].(string)
				if !ok {
					continue
				}
				if year, quarter, err := datekey.ParsePeriod(s); err == nil {
					out["year"], out["quarter"] = year, quarter
				}
				break
			}
		}
	}

	for _, col := range periodColumns {
		if _, known := desc.Column(col); !known {
			delete(out, col)
		}
	}
	return out
}

// Dedupe keeps the first row of every natural key.
// Rows with an incomplete key are kept as they are.
func Dedupe(desc *domain.Descriptor, rows []contracts.Row) ([]contracts.Row, int) {
	keys := desc.KeyNames()
	seen := make(map[string]bool, len(rows))
	kept := make([]contracts.Row, 0, len(rows))

	for _, row := range rows {
		parts := make([]string, 0, len(keys))
		complete := true
		for _, k := range keys {
			if !row.Has(k) {
				complete = false
				break
			}
			parts = append(parts, strings.TrimSpace(fmt.Sprint(row[k])))
		}

		if complete {
			id := strings.Join(parts, "\x1f")
			if seen[id] {
				continue
			}
			seen[id] = true
		}
		kept = append(kept, row)
	}
	return kept, len(rows) - len(kept)
}
