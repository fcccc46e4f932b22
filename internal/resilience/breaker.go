// Package resilience builds circuit breakers for outbound dependencies.
package resilience

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/JAMBAMSF/jagent/internal/metrics"
)

// Settings are the trip and recovery thresholds of one breaker.
type Settings struct {
	MinRequests     uint32        // Minimum requests in the window before tripping
	FailureRatio    float64       // Failure ratio that trips the breaker
	OpenTimeout     time.Duration // How long the breaker stays open
	HalfOpenMaxReqs uint32        // Probe requests allowed while half-open
	CountInterval   time.Duration // Window for counting failures
	// Expected reports errors that are answers, not outages; they do not
	// count toward tripping.
	Expected func(err error) bool
}

// ProviderSettings suit market and news data providers.
var ProviderSettings = Settings{
	MinRequests:     5,
	FailureRatio:    0.6,
	OpenTimeout:     30 * time.Second,
	HalfOpenMaxReqs: 2,
	CountInterval:   60 * time.Second,
}

// LLMSettings suit language-model endpoints (longer recovery).
var LLMSettings = Settings{
	MinRequests:     3,
	FailureRatio:    0.6,
	OpenTimeout:     60 * time.Second,
	HalfOpenMaxReqs: 1,
	CountInterval:   60 * time.Second,
}

// NewBreaker creates a named breaker that reports its state to Prometheus.
func NewBreaker(name string, s Settings) *gobreaker.CircuitBreaker {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: s.HalfOpenMaxReqs,
		Interval:    s.CountInterval,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= s.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || (s.Expected != nil && s.Expected(err))
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
			metrics.RecordBreakerState(name, stateValue(to))
		},
	})
	metrics.RecordBreakerState(name, stateValue(cb.State()))
	return cb
}

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}
