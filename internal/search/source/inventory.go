// internal/search/source/inventory.go
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"carsearch/internal/common/config"
	"carsearch/internal/common/logger"
	"carsearch/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
)

const inventoryName = "inventory"

// Inventory searches the in-house listings index. Unlike the marketplace
// adapters it never sees anti-bot challenges, but it follows the same retry
// and deadline contract so the orchestrator can treat all sources alike.
type Inventory struct {
	cfg    config.SourceConfig
	es     *elasticsearch.Client
	logger logger.Logger
}

func NewInventory(cfg config.SourceConfig, es *elasticsearch.Client, log logger.Logger) *Inventory {
	return &Inventory{
		cfg:    cfg,
		es:     es,
		logger: log.WithFields(map[string]interface{}{"source": inventoryName}),
	}
}

func (a *Inventory) Name() string { return inventoryName }

type inventoryHit struct {
	ID     string `json:"_id"`
	Source struct {
		Title   string   `json:"title"`
		Brand   string   `json:"brand"`
		Model   string   `json:"model"`
		Price   *float64 `json:"price"`
		Year    *int     `json:"year"`
		Mileage *int     `json:"mileage"`
		Fuel    string   `json:"fuel"`
		Gearbox string   `json:"gearbox"`
		Seller  string   `json:"seller_type"`
		ZipCode string   `json:"zip_code"`
		URL     string   `json:"url"`
	} `json:"_source"`
}

type inventoryResponse struct {
	Hits struct {
		Hits []inventoryHit `json:"hits"`
	} `json:"hits"`
}

func (a *Inventory) Fetch(ctx context.Context, criteria models.SearchCriteria) (*models.RawResult, error) {
	return fetchWithRetry(ctx, func(ctx context.Context) (*models.RawResult, error) {
		return a.fetchOnce(ctx, criteria)
	})
}

func (a *Inventory) fetchOnce(ctx context.Context, criteria models.SearchCriteria) (*models.RawResult, error) {
	start := time.Now()

	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(buildInventoryQuery(criteria)); err != nil {
		return nil, err
	}

	res, err := a.es.Search(
		a.es.Search.WithContext(ctx),
		a.es.Search.WithIndex(a.cfg.Index),
		a.es.Search.WithBody(&body),
		a.es.Search.WithSize(50),
	)
	if err != nil {
		return nil, classifyHTTPError(ctx, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		a.logger.Warn("inventory search failed", map[string]interface{}{
			"status": res.Status(),
		})
		return nil, fmt.Errorf("%w: %s", ErrFetchFailed, res.Status())
	}

	var payload inventoryResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrFetchFailed, err)
	}

	records := make([]models.RawRecord, 0, len(payload.Hits.Hits))
	for _, hit := range payload.Hits.Hits {
		rec := models.RawRecord{
			NativeID: hit.ID,
			Title:    hit.Source.Title,
			Brand:    hit.Source.Brand,
			Model:    hit.Source.Model,
			Fuel:     hit.Source.Fuel,
			Gearbox:  hit.Source.Gearbox,
			Seller:   hit.Source.Seller,
			ZipCode:  hit.Source.ZipCode,
			URL:      hit.Source.URL,
		}
		if hit.Source.Price != nil {
			rec.Price = strconv.FormatFloat(*hit.Source.Price, 'f', -1, 64)
		}
		if hit.Source.Year != nil {
			rec.Year = strconv.Itoa(*hit.Source.Year)
		}
		if hit.Source.Mileage != nil {
			rec.Mileage = strconv.Itoa(*hit.Source.Mileage)
		}
		records = append(records, rec)
	}

	return &models.RawResult{
		Source:    inventoryName,
		Records:   records,
		FetchedAt: time.Now().UTC(),
		Latency:   time.Since(start),
	}, nil
}

// buildInventoryQuery assembles a bool query: text match on brand/model,
// range filters on price, year and mileage, term filters on the enums.
func buildInventoryQuery(criteria models.SearchCriteria) map[string]interface{} {
	must := []map[string]interface{}{
		{"match": map[string]interface{}{"brand": criteria.Brand}},
	}
	if criteria.Model != "" {
		must = append(must, map[string]interface{}{
			"match": map[string]interface{}{"model": criteria.Model},
		})
	}

	filter := []map[string]interface{}{
		{"range": map[string]interface{}{"price": map[string]interface{}{
			"gte": criteria.MinPrice,
			"lte": criteria.MaxPrice,
		}}},
		{"range": map[string]interface{}{"year": map[string]interface{}{
			"gte": criteria.MinYear,
			"lte": criteria.MaxYear,
		}}},
	}
	if criteria.MaxMileage > 0 {
		filter = append(filter, map[string]interface{}{
			"range": map[string]interface{}{"mileage": map[string]interface{}{
				"lte": criteria.MaxMileage,
			}},
		})
	}
	if criteria.Fuel != models.FuelAny {
		filter = append(filter, map[string]interface{}{
			"term": map[string]interface{}{"fuel": string(criteria.Fuel)},
		})
	}
	if criteria.Gearbox != models.GearboxAny {
		filter = append(filter, map[string]interface{}{
			"term": map[string]interface{}{"gearbox": string(criteria.Gearbox)},
		})
	}
	if criteria.Seller != models.SellerAny {
		filter = append(filter, map[string]interface{}{
			"term": map[string]interface{}{"seller_type": string(criteria.Seller)},
		})
	}

	return map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must":   must,
				"filter": filter,
			},
		},
		"sort": []map[string]interface{}{
			{"_score": map[string]interface{}{"order": "desc"}},
		},
	}
}
