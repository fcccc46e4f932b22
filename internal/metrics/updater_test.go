package metrics

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdater_UpdateStoreMetrics(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(regexp.QuoteMeta(countUsersSQL)).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(7)))
	mock.ExpectQuery("FROM counterparties").
		WillReturnRows(pgxmock.NewRows([]string{"user", "global"}).AddRow(int64(4), int64(12)))

	u := NewUpdater(mock, 0)
	u.update(context.Background())

	assert.Equal(t, float64(7), testutil.ToFloat64(StoredUsers))
	assert.Equal(t, float64(4), testutil.ToFloat64(StoredCounterparties.WithLabelValues("user")))
	assert.Equal(t, float64(12), testutil.ToFloat64(StoredCounterparties.WithLabelValues("global")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdater_QueryFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	before := testutil.ToFloat64(Errors.WithLabelValues("metrics_query", "metrics"))
	mock.ExpectQuery(regexp.QuoteMeta(countUsersSQL)).WillReturnError(errors.New("db down"))
	mock.ExpectQuery("FROM counterparties").WillReturnError(errors.New("db down"))

	NewUpdater(mock, 0).update(context.Background())

	assert.Equal(t, before+2, testutil.ToFloat64(Errors.WithLabelValues("metrics_query", "metrics")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdater_StopsOnCancel(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	mock.MatchExpectationsInOrder(false)
	mock.ExpectQuery(regexp.QuoteMeta(countUsersSQL)).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery("FROM counterparties").
		WillReturnRows(pgxmock.NewRows([]string{"user", "global"}).AddRow(int64(0), int64(0)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewUpdater(mock, time.Hour).Start(ctx)
		close(done)
	}()
	cancel()
	<-done
}
