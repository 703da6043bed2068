// internal/search/normalize/normalizer.go
package normalize

import (
	"strconv"
	"strings"
	"time"

	"carsearch/internal/common/logger"
	"carsearch/internal/models"
)

// confidence keys; one per field the parser attempts.
const (
	fieldPrice   = "price"
	fieldYear    = "year"
	fieldMileage = "mileage"
	fieldFuel    = "fuel"
	fieldGearbox = "gearbox"
	fieldSeller  = "seller"
)

var canonicalFuels = map[string]models.FuelType{
	"essence":  models.FuelEssence,
	"petrol":   models.FuelEssence,
	"gasoline": models.FuelEssence,
	"diesel":   models.FuelDiesel,
	"hybrid":   models.FuelHybrid,
	"hybride":  models.FuelHybrid,
	"electric": models.FuelElectric,
	"electro":  models.FuelElectric,
}

var canonicalGearboxes = map[string]models.Gearbox{
	"manual":      models.GearboxManual,
	"manuelle":    models.GearboxManual,
	"automatic":   models.GearboxAutomatic,
	"auto":        models.GearboxAutomatic,
	"automatique": models.GearboxAutomatic,
}

var canonicalSellers = map[string]models.SellerType{
	"professional": models.SellerProfessional,
	"pro":          models.SellerProfessional,
	"private":      models.SellerPrivate,
	"particulier":  models.SellerPrivate,
}

// Normalizer converts raw adapter records into the canonical listing shape.
// It is tolerant: a field that fails to parse is marked low-confidence and
// left nil, it never fails the record. A record is dropped only when both
// price and year are missing, since nothing useful can be scored from it.
type Normalizer struct {
	logger logger.Logger
	now    func() time.Time
}

func NewNormalizer(log logger.Logger) *Normalizer {
	return &Normalizer{
		logger: log.WithFields(map[string]interface{}{"component": "normalize"}),
		now:    time.Now,
	}
}

// Normalize flattens the raw results into canonical listings, preserving
// arrival order across sources via FetchOrder. Deterministic: the same input
// always yields the same output.
func (n *Normalizer) Normalize(results []*models.RawResult) []models.NormalizedListing {
	listings := make([]models.NormalizedListing, 0)
	dropped := 0
	order := 0

	for _, result := range results {
		if result == nil {
			continue
		}
		for _, rec := range result.Records {
			listing, ok := n.normalizeRecord(result.Source, rec, order)
			if !ok {
				dropped++
				continue
			}
			listings = append(listings, listing)
			order++
		}
	}

	if dropped > 0 {
		n.logger.Warn("dropped unscoreable records", map[string]interface{}{
			"dropped": dropped,
			"kept":    len(listings),
		})
	}
	return listings
}

func (n *Normalizer) normalizeRecord(source string, rec models.RawRecord, order int) (models.NormalizedListing, bool) {
	listing := models.NormalizedListing{
		Source:     source,
		NativeID:   strings.TrimSpace(rec.NativeID),
		Title:      strings.TrimSpace(rec.Title),
		Brand:      strings.TrimSpace(rec.Brand),
		Model:      strings.TrimSpace(rec.Model),
		ZipCode:    strings.TrimSpace(rec.ZipCode),
		URL:        strings.TrimSpace(rec.URL),
		Confidence: make(map[string]bool, 6),
		FirstSeen:  n.now().UTC(),
		FetchOrder: order,
	}

	if price, ok := parsePrice(rec.Price); ok {
		listing.Price = &price
		listing.Confidence[fieldPrice] = true
	} else {
		listing.Confidence[fieldPrice] = false
	}

	if year, ok := parseYear(rec.Year); ok {
		listing.Year = &year
		listing.Confidence[fieldYear] = true
	} else {
		listing.Confidence[fieldYear] = false
	}

	if mileage, ok := parseMileage(rec.Mileage); ok {
		listing.Mileage = &mileage
		listing.Confidence[fieldMileage] = true
	} else {
		listing.Confidence[fieldMileage] = false
	}

	if fuel, ok := canonicalFuels[strings.ToLower(strings.TrimSpace(rec.Fuel))]; ok {
		listing.Fuel = fuel
		listing.Confidence[fieldFuel] = true
	} else {
		listing.Confidence[fieldFuel] = false
	}

	if gearbox, ok := canonicalGearboxes[strings.ToLower(strings.TrimSpace(rec.Gearbox))]; ok {
		listing.Gearbox = gearbox
		listing.Confidence[fieldGearbox] = true
	} else {
		listing.Confidence[fieldGearbox] = false
	}

	if seller, ok := canonicalSellers[strings.ToLower(strings.TrimSpace(rec.Seller))]; ok {
		listing.Seller = seller
		listing.Confidence[fieldSeller] = true
	} else {
		listing.Confidence[fieldSeller] = false
	}

	// Unscoreable without either anchor field.
	if listing.Price == nil && listing.Year == nil {
		return models.NormalizedListing{}, false
	}
	return listing, true
}

// parsePrice accepts "11 200", "11200.50", "11200 €" and similar sloppy
// source formats. Zero and negatives are treated as unparsed.
func parsePrice(s string) (float64, bool) {
	s = cleanNumeric(s)
	if s == "" {
		return 0, false
	}
	price, err := strconv.ParseFloat(s, 64)
	if err != nil || price <= 0 {
		return 0, false
	}
	return price, true
}

func parseYear(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if len(s) > 4 {
		// "2020-06" style registration dates; keep the year part.
		s = s[:4]
	}
	year, err := strconv.Atoi(s)
	if err != nil || year < 1900 || year > 2100 {
		return 0, false
	}
	return year, true
}

func parseMileage(s string) (int, bool) {
	s = cleanNumeric(s)
	if s == "" {
		return 0, false
	}
	mileage, err := strconv.Atoi(s)
	if err != nil || mileage < 0 {
		return 0, false
	}
	return mileage, true
}

// cleanNumeric strips currency/unit suffixes and digit-group separators.
func cleanNumeric(s string) string {
	s = strings.TrimSpace(s)
	for _, cut := range []string{"€", "km", "EUR", "eur"} {
		s = strings.TrimSpace(strings.TrimSuffix(s, cut))
	}
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "\u00a0", "")
	s = strings.ReplaceAll(s, ",", ".")
	return s
}
