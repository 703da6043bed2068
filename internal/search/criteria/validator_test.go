// internal/search/criteria/validator_test.go
package criteria

import (
	"testing"

	"carsearch/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func createValidRaw() models.RawCriteria {
	return models.RawCriteria{
		Brand:      "Peugeot",
		Model:      "208",
		MinPrice:   2000,
		MaxPrice:   15000,
		Fuel:       "essence",
		MinYear:    2015,
		MaxYear:    2022,
		MaxMileage: 120000,
		Gearbox:    "manual",
		Seller:     "any",
		Location:   &models.Location{ZipCode: "75011", RadiusKm: 50},
		BodyType:   "hatchback",
	}
}

func fieldCodes(verr *ValidationError) map[string]string {
	out := make(map[string]string)
	for _, fe := range verr.Errors {
		out[fe.Field] = fe.Code
	}
	return out
}

// ==========================
// Core Functionality Tests
// ==========================

func TestValidate_Success(t *testing.T) {
	criteria, verr := Validate(createValidRaw())
	require.Nil(t, verr)

	assert.Equal(t, "Peugeot", criteria.Brand)
	assert.Equal(t, "208", criteria.Model)
	assert.Equal(t, models.FuelEssence, criteria.Fuel)
	assert.Equal(t, models.GearboxManual, criteria.Gearbox)
	assert.Equal(t, models.SellerAny, criteria.Seller)
	require.NotNil(t, criteria.Location)
	assert.Equal(t, "75011", criteria.Location.ZipCode)
}

func TestValidate_DefaultsApplied(t *testing.T) {
	raw := models.RawCriteria{Brand: "Renault"}

	criteria, verr := Validate(raw)
	require.Nil(t, verr)

	assert.Equal(t, models.FuelAny, criteria.Fuel)
	assert.Equal(t, models.GearboxAny, criteria.Gearbox)
	assert.Equal(t, models.SellerAny, criteria.Seller)
	assert.Equal(t, MinYearFloor, criteria.MinYear)
	assert.Equal(t, MaxYearCeiling, criteria.MaxYear)
	assert.Equal(t, float64(MaxPriceCeiling), criteria.MaxPrice)
	assert.Nil(t, criteria.Location)
}

func TestValidate_TrimsWhitespace(t *testing.T) {
	raw := createValidRaw()
	raw.Brand = "  Peugeot  "
	raw.Fuel = " Diesel "

	criteria, verr := Validate(raw)
	require.Nil(t, verr)
	assert.Equal(t, "Peugeot", criteria.Brand)
	assert.Equal(t, models.FuelDiesel, criteria.Fuel)
}

// ==========================
// Violation Tests
// ==========================

func TestValidate_SingleViolations(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(*models.RawCriteria)
		expectedField string
		expectedCode  string
	}{
		{
			name:          "missing brand",
			mutate:        func(r *models.RawCriteria) { r.Brand = "  " },
			expectedField: "brand",
			expectedCode:  "REQUIRED_FIELD_MISSING",
		},
		{
			name:          "negative min price",
			mutate:        func(r *models.RawCriteria) { r.MinPrice = -1 },
			expectedField: "minPrice",
			expectedCode:  "OUT_OF_RANGE",
		},
		{
			name:          "max price above ceiling",
			mutate:        func(r *models.RawCriteria) { r.MaxPrice = MaxPriceCeiling + 1 },
			expectedField: "maxPrice",
			expectedCode:  "OUT_OF_RANGE",
		},
		{
			name:          "inverted price range",
			mutate:        func(r *models.RawCriteria) { r.MinPrice = 20000; r.MaxPrice = 10000 },
			expectedField: "minPrice",
			expectedCode:  "RANGE_INVERTED",
		},
		{
			name:          "min price above defaulted max price",
			mutate:        func(r *models.RawCriteria) { r.MinPrice = MaxPriceCeiling + 1; r.MaxPrice = 0 },
			expectedField: "minPrice",
			expectedCode:  "RANGE_INVERTED",
		},
		{
			name:          "unknown fuel",
			mutate:        func(r *models.RawCriteria) { r.Fuel = "plutonium" },
			expectedField: "fuel",
			expectedCode:  "INVALID_ENUM",
		},
		{
			name:          "year below floor",
			mutate:        func(r *models.RawCriteria) { r.MinYear = 1850 },
			expectedField: "minYear",
			expectedCode:  "OUT_OF_RANGE",
		},
		{
			name:          "inverted year range",
			mutate:        func(r *models.RawCriteria) { r.MinYear = 2022; r.MaxYear = 2015 },
			expectedField: "minYear",
			expectedCode:  "RANGE_INVERTED",
		},
		{
			name:          "negative mileage",
			mutate:        func(r *models.RawCriteria) { r.MaxMileage = -10 },
			expectedField: "maxMileage",
			expectedCode:  "OUT_OF_RANGE",
		},
		{
			name:          "unknown gearbox",
			mutate:        func(r *models.RawCriteria) { r.Gearbox = "cvt-ish" },
			expectedField: "gearbox",
			expectedCode:  "INVALID_ENUM",
		},
		{
			name:          "unknown seller type",
			mutate:        func(r *models.RawCriteria) { r.Seller = "dealer" },
			expectedField: "seller",
			expectedCode:  "INVALID_ENUM",
		},
		{
			name:          "radius above cap",
			mutate:        func(r *models.RawCriteria) { r.Location.RadiusKm = 501 },
			expectedField: "location.radiusKm",
			expectedCode:  "OUT_OF_RANGE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := createValidRaw()
			tt.mutate(&raw)

			_, verr := Validate(raw)
			require.NotNil(t, verr)
			codes := fieldCodes(verr)
			assert.Equal(t, tt.expectedCode, codes[tt.expectedField])
		})
	}
}

func TestValidate_CollectsAllViolations(t *testing.T) {
	raw := models.RawCriteria{
		Brand:      "",
		MinPrice:   -5,
		MaxPrice:   2_000_000,
		Fuel:       "coal",
		MinYear:    1800,
		MaxMileage: -1,
		Gearbox:    "triptronic",
		Seller:     "scalper",
		Location:   &models.Location{ZipCode: "", RadiusKm: 900},
	}

	_, verr := Validate(raw)
	require.NotNil(t, verr)

	codes := fieldCodes(verr)
	for _, field := range []string{
		"brand", "minPrice", "maxPrice", "fuel", "minYear",
		"maxMileage", "gearbox", "seller", "location.radiusKm", "location.zipCode",
	} {
		assert.Contains(t, codes, field, "expected a violation for %s", field)
	}
	assert.GreaterOrEqual(t, len(verr.Errors), 10)
	assert.NotEmpty(t, verr.Error())
	assert.Len(t, verr.Violations(), len(verr.Errors))
}

func TestValidate_DefaultedMaxPriceBoundsMinPrice(t *testing.T) {
	raw := createValidRaw()
	raw.MinPrice = 2_000_000
	raw.MaxPrice = 0

	_, verr := Validate(raw)
	require.NotNil(t, verr, "minPrice beyond the defaulted ceiling must not validate")
	assert.Equal(t, "RANGE_INVERTED", fieldCodes(verr)["minPrice"])
}

func TestValidate_NoSideEffects(t *testing.T) {
	raw := createValidRaw()
	before := *raw.Location

	_, verr := Validate(raw)
	require.Nil(t, verr)
	assert.Equal(t, before, *raw.Location)
}
