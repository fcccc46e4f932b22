package failsafe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JAMBAMSF/jagent/internal/llm"
)

type countingChat struct {
	calls     int
	questions []string
	reply     string
	err       error
}

func (c *countingChat) Chat(_ context.Context, q string) (string, error) {
	c.calls++
	c.questions = append(c.questions, q)
	return c.reply, c.err
}

func TestRun_FallsBackToChatExactlyOnce(t *testing.T) {
	e := MustExecutor(DefaultPolicy())
	chat := &countingChat{reply: "Here is what I know."}

	var firstCalls, secondCalls int
	handlers := []Handler{
		func(context.Context) (string, error) {
			firstCalls++
			return "", errors.New("provider exploded")
		},
		func(context.Context) (string, error) {
			secondCalls++
			return "lookup error: upstream 500", nil
		},
	}

	res := e.Run(context.Background(), Request{Question: "price of NVDA", Context: "price", Handlers: handlers}, chat)

	assert.Equal(t, "Here is what I know.", res.Text)
	assert.Equal(t, OutcomeChat, res.Outcome)
	assert.Equal(t, -1, res.Handler)
	assert.Equal(t, 2, res.Failures)
	assert.Equal(t, 1, chat.calls)
	assert.Equal(t, []string{"price of NVDA"}, chat.questions)
	assert.Equal(t, 1, firstCalls)
	assert.Equal(t, 1, secondCalls)
}

func TestRun_FirstGoodHandlerWins(t *testing.T) {
	e := MustExecutor(DefaultPolicy())
	chat := &countingChat{reply: "unused"}

	var thirdCalled bool
	res := e.Run(context.Background(), Request{Handlers: []Handler{
		func(context.Context) (string, error) { return "", nil },
		func(context.Context) (string, error) { return "AAPL ≈ 201.10 (asof: 2026-03-10)", nil },
		func(context.Context) (string, error) { thirdCalled = true; return "x", nil },
	}}, chat)

	assert.Equal(t, "AAPL ≈ 201.10 (asof: 2026-03-10)", res.Text)
	assert.Equal(t, OutcomeHandler, res.Outcome)
	assert.Equal(t, 1, res.Handler)
	assert.Equal(t, 0, chat.calls)
	assert.False(t, thirdCalled)
}

func TestRun_RecoversHandlerPanic(t *testing.T) {
	e := MustExecutor(DefaultPolicy())
	chat := &countingChat{reply: "fallback"}
	res := e.Run(context.Background(), Request{Handlers: []Handler{
		func(context.Context) (string, error) { panic("boom") },
		nil,
	}}, chat)
	assert.Equal(t, "fallback", res.Text)
	assert.Equal(t, 2, res.Failures)
}

func TestRun_ChatFailureIsHidden(t *testing.T) {
	e := MustExecutor(DefaultPolicy())

	res := e.Run(context.Background(), Request{Question: "q"}, &countingChat{err: errors.New("stack trace here")})
	assert.Equal(t, FallbackMessage, res.Text)
	assert.Equal(t, OutcomeChatFailed, res.Outcome)

	res = e.Run(context.Background(), Request{Question: "q", Context: "freeform"},
		ChatFunc(func(context.Context, string) (string, error) { panic("nil map") }))
	assert.Equal(t, llm.CatchAll, res.Text)

	res = e.Run(context.Background(), Request{Question: "q"}, nil)
	assert.Equal(t, FallbackMessage, res.Text)
	assert.Equal(t, OutcomeNoChatBackup, res.Outcome)
}

func TestLooksBroken(t *testing.T) {
	e := MustExecutor(DefaultPolicy())

	tests := []struct {
		out  string
		want bool
	}{
		{"", true},
		{"Volatility: NaN", true},
		{"Could not parse any allocations.", true},
		{"Invalid  JSON transaction", true},
		{"Could not fetch a price for XYZ.\n[source: unavailable]", true},
		{"No price data found, symbol may be delisted", true},
		{"yfinance download failed", true},
		{"Request timed out", true},
		{"Exception in thread", true},
		{"Error: bad input", true},
		{"NVDA ≈ 131.20 (asof: 2026-03-10)\n[source: alpha_vantage]", false},
		{"Nancy bought a financial newsletter", false},
		{"Expected annual return: 12.00%\nNote: exception handling in your model", false},
		{"Expected annual return: nan%", true},
		{"Symbols: X\nExpected annual return: 5.00%\nfinancial", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, e.LooksBroken(tt.out), "%q", tt.out)
	}
}

func TestLooksBroken_NonStrict(t *testing.T) {
	p := DefaultPolicy()
	p.Strict = false
	e := MustExecutor(p)
	assert.False(t, e.LooksBroken("error: but trusted"))
	assert.True(t, e.LooksBroken(""))
}

func TestLoadPolicy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "failsafe.yaml")
	require.NoError(t, os.WriteFile(path, []byte("patterns:\n  - 'unavailable'\nverbose: true\n"), 0o600))

	p, err := LoadPolicy(path)
	require.NoError(t, err)
	assert.True(t, p.Strict, "unset fields keep defaults")
	assert.True(t, p.Verbose)
	assert.Equal(t, []string{"unavailable"}, p.Patterns)

	e := MustExecutor(p)
	assert.False(t, e.LooksBroken("an exception to the rule"))
	assert.True(t, e.LooksBroken("price unavailable"))

	require.NoError(t, os.WriteFile(path, []byte("patterns: ['(']\n"), 0o600))
	_, err = LoadPolicy(path)
	assert.Error(t, err)

	_, err = LoadPolicy(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
