package portfolio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  map[string]float64
	}{
		{
			name:  "percent pairs with bonds alias",
			input: "50% NVDA, 30% TSLA, 20% bonds",
			want:  map[string]float64{"NVDA": 0.5, "TSLA": 0.3, "BND": 0.2},
		},
		{
			name:  "percent pairs without commas",
			input: "put 60% aapl and 40%msft",
			want:  map[string]float64{"AAPL": 0.6, "MSFT": 0.4},
		},
		{
			name:  "duplicate symbols accumulate",
			input: "25% AAPL, 25% AAPL, 50% BND",
			want:  map[string]float64{"AAPL": 0.5, "BND": 0.5},
		},
		{
			name:  "percent weights renormalize",
			input: "30% SPY 30% QQQ",
			want:  map[string]float64{"SPY": 0.5, "QQQ": 0.5},
		},
		{
			name:  "json object",
			input: `{"AGG": 60, "LQD": 20, "SPY": 20}`,
			want:  map[string]float64{"AGG": 0.6, "LQD": 0.2, "SPY": 0.2},
		},
		{
			name:  "json inside backticks and prose",
			input: "```my weights {\"VTI\": 0.7, \"BND\": 0.3} thanks```",
			want:  map[string]float64{"VTI": 0.7, "BND": 0.3},
		},
		{
			name:  "single quoted literal map",
			input: `{'AAPL': 0.6, 'bonds': 0.4}`,
			want:  map[string]float64{"AAPL": 0.6, "BND": 0.4},
		},
		{
			name:  "smart quotes",
			input: `{“NVDA”: 1, “TSLA”: 1}`,
			want:  map[string]float64{"NVDA": 0.5, "TSLA": 0.5},
		},
		{
			name:  "key value pairs",
			input: "VOO: 80, BND=20",
			want:  map[string]float64{"VOO": 0.8, "BND": 0.2},
		},
		{
			name:  "ticker typo corrected",
			input: "100% APPL",
			want:  map[string]float64{"AAPL": 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.NoError(t, err)
			require.Len(t, got, len(tt.want))
			for sym, w := range tt.want {
				assert.InDelta(t, w, got.Weight(sym), 1e-9, sym)
			}
			assert.InDelta(t, 1.0, got.Total(), 1e-6)
		})
	}
}

func TestParse_PreservesInputOrder(t *testing.T) {
	got, err := Parse("50% NVDA, 30% TSLA, 20% bonds")
	require.NoError(t, err)
	assert.Equal(t, []string{"NVDA", "TSLA", "BND"}, got.Symbols())
}

func TestParse_Failures(t *testing.T) {
	_, err := Parse("buy some stocks please")
	assert.ErrorIs(t, err, ErrNoAllocations)
	assert.True(t, IsParseError(err))
	assert.Equal(t, "Could not parse any allocations.", err.Error())

	_, err = Parse("AAPL: 0, MSFT: 0")
	assert.ErrorIs(t, err, ErrNonPositiveTotal)
	assert.True(t, IsParseError(err))

	_, err = Parse("0% AAPL")
	assert.ErrorIs(t, err, ErrNonPositiveTotal)
}

func TestFromMap(t *testing.T) {
	got, err := FromMap(map[string]float64{"bond": 1, "BONDS": 1, "spy": 2})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, got.Weight("BND"), 1e-9)
	assert.InDelta(t, 0.5, got.Weight("SPY"), 1e-9)

	_, err = FromMap(map[string]float64{})
	assert.ErrorIs(t, err, ErrNoAllocations)
}

func TestNormalize_SumsToOne(t *testing.T) {
	inputs := []Allocation{
		{{Symbol: "A", Weight: 1}},
		{{Symbol: "A", Weight: 3}, {Symbol: "B", Weight: 7}},
		{{Symbol: "A", Weight: 0.001}, {Symbol: "B", Weight: 0.002}, {Symbol: "C", Weight: 1234.5}},
		{{Symbol: "A", Weight: 33}, {Symbol: "B", Weight: 33}, {Symbol: "C", Weight: 33}},
	}
	for _, in := range inputs {
		out, err := Normalize(in)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, out.Total(), 1e-6)
	}

	_, err := Normalize(Allocation{{Symbol: "A", Weight: -1}, {Symbol: "B", Weight: 1}})
	assert.ErrorIs(t, err, ErrNonPositiveTotal)
}
