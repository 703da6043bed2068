// internal/search/criteria/validator.go
package criteria

import (
	"fmt"
	"strings"

	"carsearch/internal/models"
)

const (
	// MaxPriceCeiling bounds maxPrice to a sane upper limit.
	MaxPriceCeiling = 1_000_000
	// MaxRadiusKm bounds the location search radius.
	MaxRadiusKm = 500

	MinYearFloor   = 1900
	MaxYearCeiling = 2100
)

var validFuels = map[string]models.FuelType{
	"essence":  models.FuelEssence,
	"diesel":   models.FuelDiesel,
	"hybrid":   models.FuelHybrid,
	"electric": models.FuelElectric,
	"any":      models.FuelAny,
	"":         models.FuelAny,
}

var validGearboxes = map[string]models.Gearbox{
	"manual":    models.GearboxManual,
	"automatic": models.GearboxAutomatic,
	"any":       models.GearboxAny,
	"":          models.GearboxAny,
}

var validSellers = map[string]models.SellerType{
	"professional": models.SellerProfessional,
	"private":      models.SellerPrivate,
	"any":          models.SellerAny,
	"":             models.SellerAny,
}

// FieldError is a single violation found during validation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ValidationError carries every violation found in one pass, so callers can
// fix all of them in a single round-trip.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return "invalid search criteria: " + strings.Join(msgs, "; ")
}

// Violations returns the per-field messages, one per violation.
func (e *ValidationError) Violations() []string {
	out := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		out = append(out, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return out
}

// Validate canonicalizes raw criteria into a SearchCriteria, or returns a
// ValidationError listing every constraint the input violates. It is
// side-effect free and runs before any rate-limit or quota cost.
func Validate(raw models.RawCriteria) (models.SearchCriteria, *ValidationError) {
	verr := &ValidationError{}

	brand := strings.TrimSpace(raw.Brand)
	if brand == "" {
		verr.add("brand", "brand is required", "REQUIRED_FIELD_MISSING")
	}

	if raw.MinPrice < 0 {
		verr.add("minPrice", "must not be negative", "OUT_OF_RANGE")
	}
	if raw.MaxPrice < 0 {
		verr.add("maxPrice", "must not be negative", "OUT_OF_RANGE")
	}
	if raw.MaxPrice > MaxPriceCeiling {
		verr.add("maxPrice", fmt.Sprintf("must not exceed %d", MaxPriceCeiling), "OUT_OF_RANGE")
	}
	// An absent maxPrice defaults to the ceiling before the range check, so
	// minPrice can never end up above the maxPrice the criteria carry.
	maxPrice := raw.MaxPrice
	if maxPrice == 0 {
		maxPrice = MaxPriceCeiling
	}
	if raw.MinPrice >= 0 && maxPrice > 0 && raw.MinPrice > maxPrice {
		verr.add("minPrice", "must not exceed maxPrice", "RANGE_INVERTED")
	}

	fuel, ok := validFuels[strings.ToLower(strings.TrimSpace(raw.Fuel))]
	if !ok {
		verr.add("fuel", fmt.Sprintf("unknown fuel type '%s'", raw.Fuel), "INVALID_ENUM")
	}

	minYear, maxYear := raw.MinYear, raw.MaxYear
	if minYear == 0 {
		minYear = MinYearFloor
	}
	if maxYear == 0 {
		maxYear = MaxYearCeiling
	}
	if minYear < MinYearFloor || minYear > MaxYearCeiling {
		verr.add("minYear", fmt.Sprintf("must be within [%d..%d]", MinYearFloor, MaxYearCeiling), "OUT_OF_RANGE")
	}
	if maxYear < MinYearFloor || maxYear > MaxYearCeiling {
		verr.add("maxYear", fmt.Sprintf("must be within [%d..%d]", MinYearFloor, MaxYearCeiling), "OUT_OF_RANGE")
	}
	if minYear > maxYear {
		verr.add("minYear", "must not exceed maxYear", "RANGE_INVERTED")
	}

	if raw.MaxMileage < 0 {
		verr.add("maxMileage", "must not be negative", "OUT_OF_RANGE")
	}

	gearbox, ok := validGearboxes[strings.ToLower(strings.TrimSpace(raw.Gearbox))]
	if !ok {
		verr.add("gearbox", fmt.Sprintf("unknown gearbox '%s'", raw.Gearbox), "INVALID_ENUM")
	}

	seller, ok := validSellers[strings.ToLower(strings.TrimSpace(raw.Seller))]
	if !ok {
		verr.add("seller", fmt.Sprintf("unknown seller type '%s'", raw.Seller), "INVALID_ENUM")
	}

	var location *models.Location
	if raw.Location != nil {
		if raw.Location.RadiusKm < 0 {
			verr.add("location.radiusKm", "must not be negative", "OUT_OF_RANGE")
		}
		if raw.Location.RadiusKm > MaxRadiusKm {
			verr.add("location.radiusKm", fmt.Sprintf("must not exceed %d", MaxRadiusKm), "OUT_OF_RANGE")
		}
		if strings.TrimSpace(raw.Location.ZipCode) == "" {
			verr.add("location.zipCode", "zip code is required when a location is given", "REQUIRED_FIELD_MISSING")
		}
		loc := models.Location{
			ZipCode:  strings.TrimSpace(raw.Location.ZipCode),
			RadiusKm: raw.Location.RadiusKm,
		}
		location = &loc
	}

	if len(verr.Errors) > 0 {
		return models.SearchCriteria{}, verr
	}

	return models.SearchCriteria{
		Brand:      brand,
		Model:      strings.TrimSpace(raw.Model),
		MinPrice:   raw.MinPrice,
		MaxPrice:   maxPrice,
		Fuel:       fuel,
		MinYear:    minYear,
		MaxYear:    maxYear,
		MaxMileage: raw.MaxMileage,
		Gearbox:    gearbox,
		Seller:     seller,
		Location:   location,
		BodyType:   strings.TrimSpace(raw.BodyType),
	}, nil
}

func (e *ValidationError) add(field, message, code string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: message, Code: code})
}
