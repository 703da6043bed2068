// internal/search/scoring/baseline.go
package scoring

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"carsearch/internal/common/logger"
	"carsearch/internal/models"

	"github.com/redis/go-redis/v9"
)

var ErrNoBaseline = errors.New("BASELINE_UNAVAILABLE")

// BaselineProvider supplies the market median price for a brand/model within
// a year band.
type BaselineProvider interface {
	Baseline(ctx context.Context, brand, model string, minYear, maxYear int) (models.MarketBaseline, error)
}

const baselineQuery = `
	SELECT percentile_cont(0.5) WITHIN GROUP (ORDER BY price) AS median_price,
	       COUNT(*) AS sample_size
	FROM market_prices
	WHERE LOWER(brand) = LOWER($1)
	  AND ($2 = '' OR LOWER(model) = LOWER($2))
	  AND year BETWEEN $3 AND $4`

// PostgresBaseline reads median prices from the market_prices table with a
// Redis cache in front. A cache miss costs one aggregate query; cache
// failures are logged and fall through to Postgres.
type PostgresBaseline struct {
	db     *sql.DB
	cache  *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewPostgresBaseline(db *sql.DB, cache *redis.Client, ttl time.Duration, log logger.Logger) *PostgresBaseline {
	return &PostgresBaseline{
		db:     db,
		cache:  cache,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "baseline"}),
	}
}

func (p *PostgresBaseline) Baseline(ctx context.Context, brand, model string, minYear, maxYear int) (models.MarketBaseline, error) {
	key := baselineKey(brand, model, minYear, maxYear)

	if p.cache != nil {
		if cached, err := p.cache.Get(ctx, key).Result(); err == nil {
			var baseline models.MarketBaseline
			if jerr := json.Unmarshal([]byte(cached), &baseline); jerr == nil {
				return baseline, nil
			}
		} else if err != redis.Nil {
			p.logger.Warn("baseline cache read failed", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
	}

	var median sql.NullFloat64
	var sampleSize int
	row := p.db.QueryRowContext(ctx, baselineQuery, brand, model, minYear, maxYear)
	if err := row.Scan(&median, &sampleSize); err != nil {
		return models.MarketBaseline{}, fmt.Errorf("baseline query: %w", err)
	}
	if !median.Valid || sampleSize == 0 {
		return models.MarketBaseline{}, fmt.Errorf("%w: %s %s %d-%d", ErrNoBaseline, brand, model, minYear, maxYear)
	}

	baseline := models.MarketBaseline{MedianPrice: median.Float64, SampleSize: sampleSize}

	if p.cache != nil {
		payload, _ := json.Marshal(baseline)
		if err := p.cache.Set(ctx, key, payload, p.ttl).Err(); err != nil {
			p.logger.Warn("baseline cache write failed", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
	}
	return baseline, nil
}

func baselineKey(brand, model string, minYear, maxYear int) string {
	return fmt.Sprintf("baseline:%s:%s:%d-%d",
		strings.ToLower(brand), strings.ToLower(model), minYear, maxYear)
}

// StaticBaseline serves fixed medians, keyed by lowercased "brand model".
// Used in tests and as a bootstrap before market_prices has data.
type StaticBaseline struct {
	Medians map[string]float64
}

func (s *StaticBaseline) Baseline(_ context.Context, brand, model string, _, _ int) (models.MarketBaseline, error) {
	key := strings.TrimSpace(strings.ToLower(brand + " " + model))
	median, ok := s.Medians[key]
	if !ok {
		return models.MarketBaseline{}, fmt.Errorf("%w: %s", ErrNoBaseline, key)
	}
	return models.MarketBaseline{MedianPrice: median, SampleSize: 1}, nil
}
