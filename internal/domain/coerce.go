package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind is the storage type of a column
type Kind int

const (
	KindText Kind = iota
	KindInt
	KindDecimal
	KindDate
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindInt:
		return "int"
	case KindDecimal:
		return "decimal"
	case KindDate:
		return "date"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Coerce converts v to the Go type stored for k.
// nil stays nil (NULL). Text → string, Int → int64, Decimal → decimal.Decimal, Date → time.Time.
func Coerce(k Kind, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" && k != KindText {
		return nil, nil
	}

	switch k {
	case KindText:
		return toText(v)
	case KindInt:
		return toInt(v)
	case KindDecimal:
		return toDecimal(v)
	case KindDate:
		return toDate(v)
	}
	return nil, fmt.Errorf("unknown column kind %d", int(k))
}

func toText(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case *string:
		if x == nil {
			return nil, nil
		}
		return *x, nil
	case fmt.Stringer:
		return x.String(), nil
	case int, int32, int64, bool:
		return fmt.Sprint(x), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	}
	return nil, fmt.Errorf("cannot use %T as text", v)
}

func toInt(v any) (any, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case float32:
		return floatToInt(float64(x))
	case float64:
		return floatToInt(x)
	case json.Number:
		return parseInt(x.String())
	case decimal.Decimal:
		if !x.IsInteger() {
			return nil, fmt.Errorf("%s is not an integer", x)
		}
		return x.IntPart(), nil
	case string:
		return parseInt(x)
	}
	return nil, fmt.Errorf("cannot use %T as integer", v)
}

func parseInt(s string) (any, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	// exports write integer columns as "2022.0"
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	if !d.IsInteger() {
		return nil, fmt.Errorf("%q is not an integer", s)
	}
	return d.IntPart(), nil
}

func floatToInt(f float64) (any, error) {
	if math.IsNaN(f) {
		return nil, nil
	}
	if math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > math.MaxInt64 {
		return nil, fmt.Errorf("%v is not an integer", f)
	}
	return int64(f), nil
}

func toDecimal(v any) (any, error) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, nil
	case decimal.NullDecimal:
		if !x.Valid {
			return nil, nil
		}
		return x.Decimal, nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case int32:
		return decimal.NewFromInt32(x), nil
	case int64:
		return decimal.NewFromInt(x), nil
	case float32:
		return floatToDecimal(float64(x))
	case float64:
		return floatToDecimal(x)
	case json.Number:
		return parseDecimal(x.String())
	case string:
		return parseDecimal(x)
	}
	return nil, fmt.Errorf("cannot use %T as decimal", v)
}

func parseDecimal(s string) (any, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "nan", "none", "null":
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid decimal %q", s)
	}
	return d, nil
}

// NaN is how the exports spell a missing measure
func floatToDecimal(f float64) (any, error) {
	if math.IsNaN(f) {
		return nil, nil
	}
	if math.IsInf(f, 0) {
		return nil, fmt.Errorf("infinite value")
	}
	return decimal.NewFromFloat(f), nil
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"20060102",
	"2006/01/02",
}

func toDate(v any) (any, error) {
	switch x := v.(type) {
	case time.Time:
		return truncate(x), nil
	case *time.Time:
		if x == nil {
			return nil, nil
		}
		return truncate(*x), nil
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return truncate(t), nil
			}
		}
		return nil, fmt.Errorf("invalid date %q", x)
	}
	return nil, fmt.Errorf("cannot use %T as date", v)
}

func truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
