package contracts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRow_Has(t *testing.T) {
	blank := "  "
	named := "ACB"

	tests := []struct {
		name string
		row  Row
		want bool
	}{
		{"absent", Row{}, false},
		{"nil", Row{"ticker": nil}, false},
		{"blank string", Row{"ticker": ""}, false},
		{"whitespace", Row{"ticker": " \t"}, false},
		{"nil pointer", Row{"ticker": (*string)(nil)}, false},
		{"blank pointer", Row{"ticker": &blank}, false},
		{"pointer", Row{"ticker": &named}, true},
		{"string", Row{"ticker": "ACB"}, true},
		{"zero int is a value", Row{"ticker": 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.row.Has("ticker"))
		})
	}
}

func TestRow_Ticker(t *testing.T) {
	ticker, ok := Row{"ticker": " VCB "}.Ticker()
	require.True(t, ok)
	assert.Equal(t, " VCB ", ticker)

	_, ok = Row{"ticker": "   "}.Ticker()
	assert.False(t, ok)

	_, ok = Row{"ticker": 42}.Ticker()
	assert.False(t, ok)

	assert.Nil(t, Row{}.TickerPtr())
	require.NotNil(t, Row{"ticker": "BID"}.TickerPtr())
	assert.Equal(t, "BID", *Row{"ticker": "BID"}.TickerPtr())
}

func TestRow_Clone(t *testing.T) {
	orig := Row{"ticker": "ACB", "roe": 0.15}
	clone := orig.Clone()
	clone["roe"] = 0.17

	assert.Equal(t, 0.15, orig["roe"])
	assert.Nil(t, Row(nil).Clone())
}

func TestFactRow_Identity(t *testing.T) {
	annual := true
	withFlag := FactRow{DateKey: 20231231, CompanyKey: 7, IsAnnual: &annual}
	noFlag := FactRow{DateKey: 20231231, CompanyKey: 7}

	assert.Equal(t, FactIdentity{DateKey: 20231231, CompanyKey: 7, HasFlag: true, IsAnnual: true}, withFlag.Identity())
	assert.Equal(t, FactIdentity{DateKey: 20231231, CompanyKey: 7}, noFlag.Identity())
	assert.NotEqual(t, withFlag.Identity(), noFlag.Identity())
}

func TestEventKind_Valid(t *testing.T) {
	assert.True(t, EventSkip.Valid())
	assert.True(t, EventFailure.Valid())
	assert.False(t, EventKind("retry").Valid())
}
