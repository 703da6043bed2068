// internal/models/criteria.go
package models

// FuelType enumerates the accepted fuel filters.
type FuelType string

const (
	FuelEssence  FuelType = "essence"
	FuelDiesel   FuelType = "diesel"
	FuelHybrid   FuelType = "hybrid"
	FuelElectric FuelType = "electric"
	FuelAny      FuelType = "any"
)

// Gearbox enumerates the accepted gearbox filters.
type Gearbox string

const (
	GearboxManual    Gearbox = "manual"
	GearboxAutomatic Gearbox = "automatic"
	GearboxAny       Gearbox = "any"
)

// SellerType enumerates the accepted seller filters.
type SellerType string

const (
	SellerProfessional SellerType = "professional"
	SellerPrivate      SellerType = "private"
	SellerAny          SellerType = "any"
)

// Location is a zip-code-centered search area.
type Location struct {
	ZipCode  string `json:"zipCode"`
	RadiusKm int    `json:"radiusKm"`
}

// SearchCriteria is the validated, canonical filter descriptor. It is
// constructed only by the criteria validator and treated as read-only by
// every downstream component.
type SearchCriteria struct {
	Brand      string     `json:"brand"`
	Model      string     `json:"model,omitempty"`
	MinPrice   float64    `json:"minPrice"`
	MaxPrice   float64    `json:"maxPrice"`
	Fuel       FuelType   `json:"fuel"`
	MinYear    int        `json:"minYear"`
	MaxYear    int        `json:"maxYear"`
	MaxMileage int        `json:"maxMileage"`
	Gearbox    Gearbox    `json:"gearbox"`
	Seller     SellerType `json:"seller"`
	Location   *Location  `json:"location,omitempty"`
	BodyType   string     `json:"bodyType,omitempty"`
}

// RawCriteria is the unvalidated inbound filter payload. String and numeric
// fields arrive as the caller sent them; the validator canonicalizes them.
type RawCriteria struct {
	Brand      string    `json:"brand"`
	Model      string    `json:"model"`
	MinPrice   float64   `json:"minPrice"`
	MaxPrice   float64   `json:"maxPrice"`
	Fuel       string    `json:"fuel"`
	MinYear    int       `json:"minYear"`
	MaxYear    int       `json:"maxYear"`
	MaxMileage int       `json:"maxMileage"`
	Gearbox    string    `json:"gearbox"`
	Seller     string    `json:"seller"`
	Location   *Location `json:"location"`
	BodyType   string    `json:"bodyType"`
}
