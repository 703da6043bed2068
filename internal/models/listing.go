// internal/models/listing.go
package models

import "time"

// RawRecord is one listing as an adapter emitted it: every field still a
// string, source-specific naming already mapped away inside the adapter.
// Empty string means the source did not provide the field.
type RawRecord struct {
	NativeID string `json:"nativeId"`
	Title    string `json:"title"`
	Brand    string `json:"brand"`
	Model    string `json:"model"`
	Price    string `json:"price"`
	Year     string `json:"year"`
	Mileage  string `json:"mileage"`
	Fuel     string `json:"fuel"`
	Gearbox  string `json:"gearbox"`
	Seller   string `json:"seller"`
	ZipCode  string `json:"zipCode"`
	URL      string `json:"url"`
}

// RawResult is one successful adapter invocation. It is created by exactly
// one fetch, consumed once by the normalizer, then discarded.
type RawResult struct {
	Source    string        `json:"source"`
	Records   []RawRecord   `json:"records"`
	FetchedAt time.Time     `json:"fetchedAt"`
	Latency   time.Duration `json:"latency"`
}

// NormalizedListing is the single canonical listing shape. Price, year and
// mileage are pointers so an unknown value is never confusable with zero.
type NormalizedListing struct {
	Source     string          `json:"source"`
	NativeID   string          `json:"nativeId"`
	Title      string          `json:"title"`
	Brand      string          `json:"brand"`
	Model      string          `json:"model"`
	Price      *float64        `json:"price,omitempty"`
	Year       *int            `json:"year,omitempty"`
	Mileage    *int            `json:"mileage,omitempty"`
	Fuel       FuelType        `json:"fuel,omitempty"`
	Gearbox    Gearbox         `json:"gearbox,omitempty"`
	Seller     SellerType      `json:"seller,omitempty"`
	ZipCode    string          `json:"zipCode,omitempty"`
	URL        string          `json:"url"`
	Confidence map[string]bool `json:"fieldConfidence"`
	FirstSeen  time.Time       `json:"firstSeen"`

	// FetchOrder preserves arrival order within a run for reproducible
	// tie-breaking; it is not part of the listing identity.
	FetchOrder int `json:"-"`
}

// Completeness returns the fraction of parseable fields that were parsed.
func (l NormalizedListing) Completeness() float64 {
	if len(l.Confidence) == 0 {
		return 0
	}
	parsed := 0
	for _, ok := range l.Confidence {
		if ok {
			parsed++
		}
	}
	return float64(parsed) / float64(len(l.Confidence))
}

// ScoreBreakdown carries the per-dimension sub-scores, each already weighted
// into the final score so the ranking is auditable.
type ScoreBreakdown struct {
	Price        float64 `json:"price"`
	Year         float64 `json:"year"`
	Mileage      float64 `json:"mileage"`
	Fuel         float64 `json:"fuel"`
	Gearbox      float64 `json:"gearbox"`
	Seller       float64 `json:"seller"`
	Completeness float64 `json:"completeness"`
}

// ScoredListing is a normalized listing with its deterministic score and rank.
type ScoredListing struct {
	Listing   NormalizedListing `json:"listing"`
	Score     float64           `json:"score"`
	Breakdown ScoreBreakdown    `json:"breakdown"`
	Rank      int               `json:"rank"`
}

// MarketBaseline is the reference price distribution for a brand/model/year
// band, used to score price competitiveness.
type MarketBaseline struct {
	MedianPrice float64 `json:"medianPrice"`
	SampleSize  int     `json:"sampleSize"`
}
