// internal/search/scoring/baseline_test.go
package scoring

import (
	"context"
	"regexp"
	"testing"
	"time"

	"carsearch/internal/common/logger"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func createBaselineFixture(t *testing.T) (*PostgresBaseline, sqlmock.Sqlmock, *miniredis.Miniredis) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	provider := NewPostgresBaseline(db, cache, 900*time.Second, logger.NewTestLogger(t))
	return provider, mock, mr
}

var baselineQueryPattern = regexp.QuoteMeta("SELECT percentile_cont(0.5) WITHIN GROUP (ORDER BY price)")

// ==========================
// Postgres Baseline Tests
// ==========================

func TestPostgresBaseline_QueriesOnCacheMiss(t *testing.T) {
	provider, mock, _ := createBaselineFixture(t)

	mock.ExpectQuery(baselineQueryPattern).
		WithArgs("Peugeot", "208", 2015, 2022).
		WillReturnRows(sqlmock.NewRows([]string{"median_price", "sample_size"}).AddRow(11800.0, 340))

	baseline, err := provider.Baseline(context.Background(), "Peugeot", "208", 2015, 2022)
	require.NoError(t, err)
	assert.Equal(t, 11800.0, baseline.MedianPrice)
	assert.Equal(t, 340, baseline.SampleSize)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBaseline_SecondCallHitsCache(t *testing.T) {
	provider, mock, _ := createBaselineFixture(t)

	// Only one database round-trip expected.
	mock.ExpectQuery(baselineQueryPattern).
		WithArgs("Peugeot", "208", 2015, 2022).
		WillReturnRows(sqlmock.NewRows([]string{"median_price", "sample_size"}).AddRow(11800.0, 340))

	ctx := context.Background()
	_, err := provider.Baseline(ctx, "Peugeot", "208", 2015, 2022)
	require.NoError(t, err)

	baseline, err := provider.Baseline(ctx, "Peugeot", "208", 2015, 2022)
	require.NoError(t, err)
	assert.Equal(t, 11800.0, baseline.MedianPrice)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBaseline_CacheEntryExpires(t *testing.T) {
	provider, mock, mr := createBaselineFixture(t)

	rows := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"median_price", "sample_size"}).AddRow(11800.0, 340)
	}
	mock.ExpectQuery(baselineQueryPattern).WillReturnRows(rows())
	mock.ExpectQuery(baselineQueryPattern).WillReturnRows(rows())

	ctx := context.Background()
	_, err := provider.Baseline(ctx, "Peugeot", "208", 2015, 2022)
	require.NoError(t, err)

	mr.FastForward(901 * time.Second)

	_, err = provider.Baseline(ctx, "Peugeot", "208", 2015, 2022)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBaseline_EmptySampleIsUnavailable(t *testing.T) {
	provider, mock, _ := createBaselineFixture(t)

	mock.ExpectQuery(baselineQueryPattern).
		WillReturnRows(sqlmock.NewRows([]string{"median_price", "sample_size"}).AddRow(nil, 0))

	_, err := provider.Baseline(context.Background(), "Bugatti", "Chiron", 2015, 2022)
	assert.ErrorIs(t, err, ErrNoBaseline)
}

func TestPostgresBaseline_CacheFailureFallsThroughToPostgres(t *testing.T) {
	provider, mock, mr := createBaselineFixture(t)
	mr.Close()

	mock.ExpectQuery(baselineQueryPattern).
		WillReturnRows(sqlmock.NewRows([]string{"median_price", "sample_size"}).AddRow(11800.0, 340))

	baseline, err := provider.Baseline(context.Background(), "Peugeot", "208", 2015, 2022)
	require.NoError(t, err)
	assert.Equal(t, 11800.0, baseline.MedianPrice)
}

// ==========================
// Static Baseline Tests
// ==========================

func TestStaticBaseline(t *testing.T) {
	provider := &StaticBaseline{Medians: map[string]float64{"peugeot 208": 11500}}

	baseline, err := provider.Baseline(context.Background(), "Peugeot", "208", 2015, 2022)
	require.NoError(t, err)
	assert.Equal(t, 11500.0, baseline.MedianPrice)

	_, err = provider.Baseline(context.Background(), "Renault", "Clio", 2015, 2022)
	assert.ErrorIs(t, err, ErrNoBaseline)
}
