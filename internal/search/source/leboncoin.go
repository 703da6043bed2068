// internal/search/source/leboncoin.go
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"carsearch/internal/common/config"
	"carsearch/internal/common/logger"
	"carsearch/internal/models"
)

const leboncoinName = "leboncoin"

// Leboncoin queries the Leboncoin ad search API. The source reports listing
// attributes as a key/value list with numeric enum codes; all of that
// mapping stays inside this adapter.
type Leboncoin struct {
	cfg    config.SourceConfig
	client *http.Client
	logger logger.Logger
}

func NewLeboncoin(cfg config.SourceConfig, log logger.Logger) *Leboncoin {
	return &Leboncoin{
		cfg:    cfg,
		client: &http.Client{},
		logger: log.WithFields(map[string]interface{}{"source": leboncoinName}),
	}
}

func (a *Leboncoin) Name() string { return leboncoinName }

type leboncoinAd struct {
	ListID   int64     `json:"list_id"`
	Subject  string    `json:"subject"`
	Price    []float64 `json:"price"`
	URL      string    `json:"url"`
	Location struct {
		Zipcode string `json:"zipcode"`
	} `json:"location"`
	Attributes []struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	} `json:"attributes"`
}

type leboncoinResponse struct {
	Ads []leboncoinAd `json:"ads"`
}

// fuel codes as the source encodes them.
var leboncoinFuels = map[string]string{
	"1": "essence",
	"2": "diesel",
	"3": "hybrid",
	"4": "electric",
}

var leboncoinGearboxes = map[string]string{
	"1": "manual",
	"2": "automatic",
}

func (a *Leboncoin) Fetch(ctx context.Context, criteria models.SearchCriteria) (*models.RawResult, error) {
	return fetchWithRetry(ctx, func(ctx context.Context) (*models.RawResult, error) {
		return a.fetchOnce(ctx, criteria)
	})
}

func (a *Leboncoin) fetchOnce(ctx context.Context, criteria models.SearchCriteria) (*models.RawResult, error) {
	start := time.Now()

	body, err := json.Marshal(a.buildQuery(criteria))
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/finder/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.cfg.APIKey != "" {
		req.Header.Set("Api-Key", a.cfg.APIKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, classifyHTTPError(ctx, err)
	}
	defer resp.Body.Close()

	if serr := classifyStatus(resp.StatusCode); serr != nil {
		a.logger.Warn("upstream rejected fetch", map[string]interface{}{
			"status": resp.StatusCode,
		})
		return nil, fmt.Errorf("%w: status %d", serr, resp.StatusCode)
	}

	var payload leboncoinResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrFetchFailed, err)
	}

	records := make([]models.RawRecord, 0, len(payload.Ads))
	for _, ad := range payload.Ads {
		records = append(records, a.mapAd(ad))
	}

	return &models.RawResult{
		Source:    leboncoinName,
		Records:   records,
		FetchedAt: time.Now().UTC(),
		Latency:   time.Since(start),
	}, nil
}

func (a *Leboncoin) mapAd(ad leboncoinAd) models.RawRecord {
	rec := models.RawRecord{
		NativeID: strconv.FormatInt(ad.ListID, 10),
		Title:    ad.Subject,
		ZipCode:  ad.Location.Zipcode,
		URL:      ad.URL,
	}
	if len(ad.Price) > 0 {
		rec.Price = strconv.FormatFloat(ad.Price[0], 'f', -1, 64)
	}
	for _, attr := range ad.Attributes {
		switch attr.Key {
		case "brand":
			rec.Brand = attr.Value
		case "model":
			rec.Model = attr.Value
		case "regdate":
			rec.Year = attr.Value
		case "mileage":
			rec.Mileage = attr.Value
		case "fuel":
			rec.Fuel = leboncoinFuels[attr.Value]
		case "gearbox":
			rec.Gearbox = leboncoinGearboxes[attr.Value]
		case "company_ad":
			if attr.Value == "1" {
				rec.Seller = "professional"
			} else {
				rec.Seller = "private"
			}
		}
	}
	return rec
}

func (a *Leboncoin) buildQuery(criteria models.SearchCriteria) map[string]interface{} {
	filters := map[string]interface{}{
		"category": map[string]string{"id": "2"}, // voitures
		"keywords": map[string]string{"text": criteria.Brand + " " + criteria.Model},
		"ranges": map[string]interface{}{
			"price":   map[string]float64{"min": criteria.MinPrice, "max": criteria.MaxPrice},
			"regdate": map[string]int{"min": criteria.MinYear, "max": criteria.MaxYear},
		},
	}
	enums := map[string]interface{}{}
	if criteria.Fuel != models.FuelAny {
		for code, name := range leboncoinFuels {
			if name == string(criteria.Fuel) {
				enums["fuel"] = []string{code}
			}
		}
	}
	if criteria.Gearbox != models.GearboxAny {
		for code, name := range leboncoinGearboxes {
			if name == string(criteria.Gearbox) {
				enums["gearbox"] = []string{code}
			}
		}
	}
	if len(enums) > 0 {
		filters["enums"] = enums
	}
	if criteria.Location != nil {
		filters["location"] = map[string]interface{}{
			"zipcode": criteria.Location.ZipCode,
			"radius":  criteria.Location.RadiusKm * 1000,
		}
	}
	return map[string]interface{}{"filters": filters, "limit": 50}
}
