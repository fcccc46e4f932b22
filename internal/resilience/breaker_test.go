package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream down")

func TestNewBreaker_TripsOnFailureRatio(t *testing.T) {
	cb := NewBreaker("test_trip", Settings{
		MinRequests:     3,
		FailureRatio:    0.6,
		OpenTimeout:     time.Hour,
		HalfOpenMaxReqs: 1,
		CountInterval:   time.Minute,
	})
	fail := func() (interface{}, error) { return nil, errUpstream }

	for i := 0; i < 2; i++ {
		_, err := cb.Execute(fail)
		require.ErrorIs(t, err, errUpstream)
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State(), "below MinRequests")

	_, err := cb.Execute(fail)
	require.ErrorIs(t, err, errUpstream)
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	_, err = cb.Execute(func() (interface{}, error) { return "ok", nil })
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestNewBreaker_StaysClosedOnSuccess(t *testing.T) {
	cb := NewBreaker("test_ok", ProviderSettings)
	for i := 0; i < 10; i++ {
		out, err := cb.Execute(func() (interface{}, error) { return i, nil })
		require.NoError(t, err)
		assert.Equal(t, i, out)
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestNewBreaker_ExpectedErrorsDoNotTrip(t *testing.T) {
	errNotFound := errors.New("not found")
	cb := NewBreaker("test_expected", Settings{
		MinRequests:     3,
		FailureRatio:    0.6,
		OpenTimeout:     time.Hour,
		HalfOpenMaxReqs: 1,
		CountInterval:   time.Minute,
		Expected:        func(err error) bool { return errors.Is(err, errNotFound) },
	})

	for i := 0; i < 10; i++ {
		_, err := cb.Execute(func() (interface{}, error) { return nil, errNotFound })
		require.ErrorIs(t, err, errNotFound, "the error still reaches the caller")
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
	assert.Zero(t, cb.Counts().TotalFailures)
}

func TestStateValue(t *testing.T) {
	assert.Equal(t, 0.0, stateValue(gobreaker.StateClosed))
	assert.Equal(t, 1.0, stateValue(gobreaker.StateOpen))
	assert.Equal(t, 2.0, stateValue(gobreaker.StateHalfOpen))
}
