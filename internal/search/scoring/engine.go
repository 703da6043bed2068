// internal/search/scoring/engine.go
package scoring

import (
	"context"
	"math"
	"sort"

	"carsearch/internal/common/config"
	apperrors "carsearch/internal/common/errors"
	"carsearch/internal/common/logger"
	"carsearch/internal/models"
)

// mileageHorizon is the mileage at which the mileage sub-score reaches zero.
const mileageHorizon = 200_000

// Engine produces deterministic scores: the same listings, criteria and
// baseline always yield the same ranking. All weights come from
// configuration; nothing here is randomized or time-dependent.
type Engine struct {
	cfg      config.ScoringConfig
	baseline BaselineProvider
	logger   logger.Logger
}

func NewEngine(cfg config.ScoringConfig, baseline BaselineProvider, log logger.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		baseline: baseline,
		logger:   log.WithFields(map[string]interface{}{"component": "scoring"}),
	}
}

// Rank scores every listing against the market baseline for the requested
// brand/model and returns them ordered best-first. Ties break on fetch order
// so reruns of the same input produce identical output.
func (e *Engine) Rank(ctx context.Context, criteria models.SearchCriteria, listings []models.NormalizedListing) []models.ScoredListing {
	baseline := e.resolveBaseline(ctx, criteria, listings)

	scored := make([]models.ScoredListing, 0, len(listings))
	for _, l := range listings {
		breakdown := e.scoreListing(criteria, baseline, l)
		scored = append(scored, models.ScoredListing{
			Listing:   l,
			Score:     breakdown.Price + breakdown.Year + breakdown.Mileage + breakdown.Fuel + breakdown.Gearbox + breakdown.Seller + breakdown.Completeness,
			Breakdown: breakdown,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Listing.FetchOrder < scored[j].Listing.FetchOrder
	})
	for i := range scored {
		scored[i].Rank = i + 1
	}
	return scored
}

func (e *Engine) scoreListing(criteria models.SearchCriteria, baseline models.MarketBaseline, l models.NormalizedListing) models.ScoreBreakdown {
	return models.ScoreBreakdown{
		Price:        e.cfg.PriceWeight * priceScore(l.Price, baseline.MedianPrice),
		Year:         e.cfg.YearWeight * yearScore(l.Year, criteria.MinYear, criteria.MaxYear),
		Mileage:      e.cfg.MileageWeight * mileageScore(l.Mileage),
		Fuel:         e.cfg.FuelWeight * enumScore(string(l.Fuel), string(criteria.Fuel), string(models.FuelAny)),
		Gearbox:      e.cfg.GearboxWeight * enumScore(string(l.Gearbox), string(criteria.Gearbox), string(models.GearboxAny)),
		Seller:       e.cfg.SellerWeight * enumScore(string(l.Seller), string(criteria.Seller), string(models.SellerAny)),
		Completeness: e.cfg.CompletenessWeight * l.Completeness(),
	}
}

// resolveBaseline asks the provider for the market median; when that fails
// the run degrades to the median of its own observed prices, which keeps the
// ranking deterministic without external data.
func (e *Engine) resolveBaseline(ctx context.Context, criteria models.SearchCriteria, listings []models.NormalizedListing) models.MarketBaseline {
	baseline, err := e.baseline.Baseline(ctx, criteria.Brand, criteria.Model, criteria.MinYear, criteria.MaxYear)
	if err == nil && baseline.MedianPrice > 0 {
		return baseline
	}
	if err != nil {
		bErr := apperrors.NewBaselineUnavailableError(err)
		e.logger.Warn("baseline unavailable, falling back to run median", map[string]interface{}{
			"brand": criteria.Brand,
			"model": criteria.Model,
			"code":  string(bErr.Code),
			"error": bErr.Details,
		})
	}
	return models.MarketBaseline{MedianPrice: runMedianPrice(listings)}
}

// priceScore rewards prices below the market median linearly: half the
// median scores 1.0, the median scores 0.5, one-and-a-half times the median
// scores 0. Missing price or baseline scores 0.
func priceScore(price *float64, median float64) float64 {
	if price == nil || median <= 0 {
		return 0
	}
	return clamp01(1.5 - *price/median)
}

// yearScore peaks at the center of the requested year range and falls off
// linearly toward either edge; years outside the range score 0.
func yearScore(year *int, minYear, maxYear int) float64 {
	if year == nil {
		return 0
	}
	if maxYear <= minYear {
		if *year == minYear {
			return 1
		}
		return 0
	}
	center := float64(minYear+maxYear) / 2
	halfWidth := float64(maxYear-minYear) / 2
	return clamp01(1 - math.Abs(float64(*year)-center)/halfWidth)
}

func mileageScore(mileage *int) float64 {
	if mileage == nil {
		return 0
	}
	return clamp01(1 - float64(*mileage)/float64(mileageHorizon))
}

// enumScore: an explicit preference scores 1 on match and 0 on mismatch;
// with no preference any known value scores 1. Unknown values score 0 either
// way.
func enumScore(value, want, anyValue string) float64 {
	if value == "" {
		return 0
	}
	if want == anyValue || want == "" {
		return 1
	}
	if value == want {
		return 1
	}
	return 0
}

func runMedianPrice(listings []models.NormalizedListing) float64 {
	prices := make([]float64, 0, len(listings))
	for _, l := range listings {
		if l.Price != nil {
			prices = append(prices, *l.Price)
		}
	}
	if len(prices) == 0 {
		return 0
	}
	sort.Float64s(prices)
	mid := len(prices) / 2
	if len(prices)%2 == 0 {
		return (prices[mid-1] + prices[mid]) / 2
	}
	return prices[mid]
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
