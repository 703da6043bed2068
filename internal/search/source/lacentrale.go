// internal/search/source/lacentrale.go
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"carsearch/internal/common/config"
	"carsearch/internal/common/logger"
	"carsearch/internal/models"
)

const laCentraleName = "lacentrale"

// LaCentrale queries the La Centrale listing API. Each Fetch builds its own
// request; no cookies or session state survive between invocations.
type LaCentrale struct {
	cfg    config.SourceConfig
	client *http.Client
	logger logger.Logger
}

func NewLaCentrale(cfg config.SourceConfig, log logger.Logger) *LaCentrale {
	return &LaCentrale{
		cfg:    cfg,
		client: &http.Client{},
		logger: log.WithFields(map[string]interface{}{"source": laCentraleName}),
	}
}

func (a *LaCentrale) Name() string { return laCentraleName }

// laCentraleResponse is the source's own response shape.
type laCentraleResponse struct {
	Listings []struct {
		ID         string   `json:"id"`
		Title      string   `json:"title"`
		Make       string   `json:"make"`
		Model      string   `json:"model"`
		Price      *float64 `json:"price"`
		Year       *int     `json:"year"`
		Mileage    *int     `json:"mileage"`
		Energy     string   `json:"energy"`
		Gearbox    string   `json:"gearbox"`
		SellerType string   `json:"sellerType"`
		ZipCode    string   `json:"zipCode"`
		URL        string   `json:"url"`
	} `json:"listings"`
}

func (a *LaCentrale) Fetch(ctx context.Context, criteria models.SearchCriteria) (*models.RawResult, error) {
	return fetchWithRetry(ctx, func(ctx context.Context) (*models.RawResult, error) {
		return a.fetchOnce(ctx, criteria)
	})
}

func (a *LaCentrale) fetchOnce(ctx context.Context, criteria models.SearchCriteria) (*models.RawResult, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.buildURL(criteria), nil)
	if err != nil {
		return nil, err
	}
	if a.cfg.APIKey != "" {
		req.Header.Set("X-Api-Key", a.cfg.APIKey)
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

	var payload laCentraleResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrFetchFailed, err)
	}

	records := make([]models.RawRecord, 0, len(payload.Listings))
	for _, l := range payload.Listings {
		rec := models.RawRecord{
			NativeID: l.ID,
			Title:    l.Title,
			Brand:    l.Make,
			Model:    l.Model,
			Fuel:     l.Energy,
			Gearbox:  l.Gearbox,
			Seller:   mapLaCentraleSeller(l.SellerType),
			ZipCode:  l.ZipCode,
			URL:      l.URL,
		}
		if l.Price != nil {
			rec.Price = strconv.FormatFloat(*l.Price, 'f', -1, 64)
		}
		if l.Year != nil {
			rec.Year = strconv.Itoa(*l.Year)
		}
		if l.Mileage != nil {
			rec.Mileage = strconv.Itoa(*l.Mileage)
		}
		records = append(records, rec)
	}

	return &models.RawResult{
		Source:    laCentraleName,
		Records:   records,
		FetchedAt: time.Now().UTC(),
		Latency:   time.Since(start),
	}, nil
}

func (a *LaCentrale) buildURL(criteria models.SearchCriteria) string {
	base, _ := url.Parse(a.cfg.BaseURL + "/api/v2/listings")
	params := url.Values{}
	params.Set("makesModelsCommercialNames", criteria.Brand)
	if criteria.Model != "" {
		params.Set("model", criteria.Model)
	}
	if criteria.MinPrice > 0 {
		params.Set("priceMin", strconv.FormatFloat(criteria.MinPrice, 'f', 0, 64))
	}
	params.Set("priceMax", strconv.FormatFloat(criteria.MaxPrice, 'f', 0, 64))
	params.Set("yearMin", strconv.Itoa(criteria.MinYear))
	params.Set("yearMax", strconv.Itoa(criteria.MaxYear))
	if criteria.MaxMileage > 0 {
		params.Set("mileageMax", strconv.Itoa(criteria.MaxMileage))
	}
	if criteria.Fuel != models.FuelAny {
		params.Set("energies", string(criteria.Fuel))
	}
	if criteria.Gearbox != models.GearboxAny {
		params.Set("gearbox", string(criteria.Gearbox))
	}
	if criteria.Location != nil {
		params.Set("zipCode", criteria.Location.ZipCode)
		params.Set("radius", strconv.Itoa(criteria.Location.RadiusKm))
	}
	base.RawQuery = params.Encode()
	return base.String()
}

func mapLaCentraleSeller(s string) string {
	switch s {
	case "PRO", "pro":
		return "professional"
	case "PART", "part":
		return "private"
	default:
		return s
	}
}
