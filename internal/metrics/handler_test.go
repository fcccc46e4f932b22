package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler(t *testing.T) {
	RecordPriceLookup("alpha_vantage")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	body := rec.Body.String()
	assert.Contains(t, body, "# HELP")
	assert.Contains(t, body, `jagent_price_lookups_total{source="alpha_vantage"}`)
}

func TestRegisterHandlers(t *testing.T) {
	tests := []struct {
		name     string
		check    HealthFunc
		wantCode int
		wantBody string
	}{
		{"no check", nil, http.StatusOK, `"status":"healthy"`},
		{"passing check", func(context.Context) error { return nil }, http.StatusOK, `"status":"healthy"`},
		{"failing check", func(context.Context) error { return errors.New("db down") }, http.StatusServiceUnavailable, `"error":"db down"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			RegisterHandlers(mux, tt.check)

			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Contains(t, rec.Body.String(), tt.wantBody)

			rec = httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
			require.Equal(t, http.StatusOK, rec.Code)
		})
	}
}
