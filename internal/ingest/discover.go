// Package ingest loads CSV drops into the raw tables through the trigger writer.
package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// CompanyTable loads before every other table so dim_company exists for the facts
const CompanyTable = "company_profile"

// File is one CSV drop: <root>/<TICKER>/<TICKER>_<table>.csv
type File struct {
	Path   string
	Ticker string
	Table  string
}

// ParseFileName splits "<TICKER>_<table>.csv" on the first underscore
func ParseFileName(name string) (ticker, table string, ok bool) {
	if !strings.EqualFold(filepath.Ext(name), ".csv") {
		return "", "", false
	}
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	ticker, table, found := strings.Cut(stem, "_")
	if !found || ticker == "" || table == "" {
		return "", "", false
	}
	return ticker, table, true
}

// Discover lists the drop files under root in load order:
// company_profile first, then by table and ticker.
func Discover(root string) ([]File, error) {
	dirs, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read drop dir: %w", err)
	}

	var files []File
	for _, d := range dirs {
		if !d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			continue
		}

		entries, err := os.ReadDir(filepath.Join(root, d.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", d.Name(), err)
		}

		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			_, table, ok := ParseFileName(e.Name())
			if !ok {
				continue
			}
			files = append(files, File{
				Path:   filepath.Join(root, d.Name(), e.Name()),
				Ticker: d.Name(),
				Table:  table,
			})
		}
	}

	SortFiles(files)
	return files, nil
}

// SortFiles puts company_profile first, then orders by table and ticker
func SortFiles(files []File) {
	sort.SliceStable(files, func(i, j int) bool {
		ci, cj := files[i].Table == CompanyTable, files[j].Table == CompanyTable
		if ci != cj {
			return ci
		}
		if files[i].Table != files[j].Table {
			return files[i].Table < files[j].Table
		}
		return files[i].Ticker < files[j].Ticker
	})
}
