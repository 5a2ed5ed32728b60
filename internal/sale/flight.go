package sale

import (
	"errors"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/jetsetgo/gopass-terminal/internal/cloud"
	"github.com/jetsetgo/gopass-terminal/internal/config"
)

// Flight modes as sent in flight_mode
const (
	ModeToday  = "today"
	ModeManual = "manual"
)

// Verification sources as sent in verification_source
const (
	SourceManual = "manual"
	SourceAPI    = "api"
)

// Price classification badges
const (
	Domestic      = "DOMESTIC"
	International = "INTERNATIONAL"
)

// FlightSelection is the flight a sale is made for. It is one of
// PresetFlight, VerifiedFlight or ManualFlight.
type FlightSelection interface {
	Mode() string
	Source() string
	Label() string
	isFlightSelection()
}

// PresetFlight is one of today's scheduled flights, picked from the catalog
type PresetFlight struct {
	ID          string
	DisplayText string
	// Price is the catalog price. Zero means the configured preset price.
	Price decimal.Decimal
}

func (PresetFlight) Mode() string { return ModeToday }
func (PresetFlight) Source() string { return SourceManual }
func (f PresetFlight) Label() string { return f.DisplayText }
func (PresetFlight) isFlightSelection() {}

// VerifiedFlight is a flight found in the external flight registry. Its
// price comes from the registry's pricing answer.
type VerifiedFlight struct {
	Number  string
	Date    string
	Route   string
	Airline string
	Price   decimal.Decimal
	Details json.RawMessage
}

func (VerifiedFlight) Mode() string { return ModeManual }
func (VerifiedFlight) Source() string { return SourceAPI }
func (f VerifiedFlight) Label() string {
	if f.Airline == "" {
		return f.Number
	}
	return f.Airline + " " + f.Number
}
func (VerifiedFlight) isFlightSelection() {}

// ManualFlight is an operator-entered flight the registry could not confirm.
// Its price is the domestic or international band.
type ManualFlight struct {
	Number   string
	Date     string
	Domestic bool
}

func (ManualFlight) Mode() string { return ModeManual }
func (ManualFlight) Source() string { return SourceManual }
func (f ManualFlight) Label() string { return f.Number }
func (ManualFlight) isFlightSelection() {}

// PriceBands are the prices the desk falls back on when a flight does not
// carry its own
type PriceBands struct {
	Preset            decimal.Decimal
	Domestic          decimal.Decimal
	International     decimal.Decimal
	DomesticThreshold decimal.Decimal
}

// DefaultBands are the stock desk prices in USD
func DefaultBands() PriceBands {
	return PriceBands{
		Preset:            decimal.NewFromInt(50),
		Domestic:          decimal.NewFromInt(15),
		International:     decimal.NewFromInt(55),
		DomesticThreshold: decimal.NewFromInt(50),
	}
}

// BandsFromConfig converts the configured float prices
func BandsFromConfig(c config.PricingConfig) PriceBands {
	return PriceBands{
		Preset:            decimal.NewFromFloat(c.Preset),
		Domestic:          decimal.NewFromFloat(c.Domestic),
		International:     decimal.NewFromFloat(c.International),
		DomesticThreshold: decimal.NewFromFloat(c.DomesticThreshold),
	}
}

// PriceFor returns the unit price a selection sells at
func (b PriceBands) PriceFor(sel FlightSelection) decimal.Decimal {
	switch f := sel.(type) {
	case PresetFlight:
		if f.Price.IsPositive() {
			return f.Price
		}
		return b.Preset
	case VerifiedFlight:
		return f.Price
	case ManualFlight:
		if f.Domestic {
			return b.Domestic
		}
		return b.International
	}
	return decimal.Zero
}

// Classify returns the badge shown next to a unit price
func (b PriceBands) Classify(price decimal.Decimal) string {
	if price.LessThan(b.DomesticThreshold) {
		return Domestic
	}
	return International
}

// ValidateFlightQuery checks a flight number and date before they are sent
// for verification or used for a manual override
func ValidateFlightQuery(number, date string) error {
	v := &ValidationError{}
	if len(strings.TrimSpace(number)) < 3 {
		v.add("flight_number", "must be at least 3 characters")
	}
	if strings.TrimSpace(date) == "" {
		v.add("flight_date", "is required")
	} else if _, err := time.Parse(time.DateOnly, date); err != nil {
		v.add("flight_date", "must be YYYY-MM-DD")
	}
	return v.orNil()
}

// NewManualFlight builds an override selection after validating its inputs
func NewManualFlight(number, date string, domestic bool) (ManualFlight, error) {
	if err := ValidateFlightQuery(number, date); err != nil {
		return ManualFlight{}, err
	}
	return ManualFlight{
		Number:   strings.ToUpper(strings.TrimSpace(number)),
		Date:     date,
		Domestic: domestic,
	}, nil
}

// newVerifiedFlight builds a selection from a registry answer
func newVerifiedFlight(number, date string, v *cloud.FlightVerification) (VerifiedFlight, error) {
	if v == nil {
		return VerifiedFlight{}, errors.New("sale: empty flight verification")
	}
	return VerifiedFlight{
		Number:  strings.ToUpper(strings.TrimSpace(number)),
		Date:    date,
		Route:   v.Departure.IATA + " → " + v.Arrival.IATA,
		Airline: v.Airline,
		Price:   decimal.NewFromFloat(v.Pricing.Amount),
		Details: v.Details,
	}, nil
}
