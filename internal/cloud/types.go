package cloud

import (
	json "github.com/goccy/go-json"
)

// ScanCode is the outcome code returned by POST /api/scan
type ScanCode string

const (
	CodeValid          ScanCode = "VALID"
	CodeAlreadyScanned ScanCode = "ALREADY_SCANNED"
	CodeWrongFlight    ScanCode = "WRONG_FLIGHT"
	CodeExpired        ScanCode = "EXPIRED"
	CodeInvalid        ScanCode = "INVALID"
	CodeFlightClosed   ScanCode = "FLIGHT_CLOSED"
	CodeInvalidToken   ScanCode = "INVALID_TOKEN"
)

// ScanRequest is the body of POST /api/scan
type ScanRequest struct {
	Token    string `json:"token"`
	FlightID string `json:"flight_id"`
	Location string `json:"location"`
}

// ScanResponse is the server's verdict on one scanned token
type ScanResponse struct {
	Code    ScanCode  `json:"code"`
	Status  string    `json:"status,omitempty"`
	Message string    `json:"message,omitempty"`
	Data    *ScanData `json:"data,omitempty"`
}

// ScanData carries the code-specific details of a scan outcome
type ScanData struct {
	Passenger    string        `json:"passenger,omitempty"`
	Passport     string        `json:"passport,omitempty"`
	DocumentType string        `json:"document_type,omitempty"`
	Flight       string        `json:"flight,omitempty"`
	ValidFor     string        `json:"valid_for,omitempty"`
	Date         string        `json:"date,omitempty"`
	ValidForDate string        `json:"valid_for_date,omitempty"`
	ExpectedDate string        `json:"expected_date,omitempty"`
	OriginalScan *OriginalScan `json:"original_scan,omitempty"`
}

// OriginalScan describes the first accepted scan of an already-used pass
type OriginalScan struct {
	ScanDate  string `json:"scan_date"`
	ScannedBy string `json:"scanned_by"`
	Location  string `json:"location"`
}

// PassCheckRequest is the body of POST /validation/check
type PassCheckRequest struct {
	PassNumber string `json:"pass_number"`
	Location   string `json:"location"`
}

// PassCheckResponse is the access decision for a pass number
type PassCheckResponse struct {
	Valid   bool      `json:"valid"`
	Status  string    `json:"status"`
	Message string    `json:"message"`
	Pass    *PassInfo `json:"pass,omitempty"`
}

// PassInfo identifies the pass holder on a successful check
type PassInfo struct {
	Holder struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	} `json:"holder"`
	PassType struct {
		Name string `json:"name"`
	} `json:"pass_type"`
}

// SalePassenger is one passenger line of a point-of-sale submission
type SalePassenger struct {
	Name    string `json:"name"`
	DocNum  string `json:"doc_num"`
	DocType string `json:"doc_type"`
}

// SaleRequest is the body of POST /api/ops/pos/sale. Exactly one of
// FlightID or the manual pair is set, the other side is sent as null.
type SaleRequest struct {
	FlightMode         string          `json:"flight_mode"`
	FlightID           *string         `json:"flight_id"`
	ManualFlightNumber *string         `json:"manual_flight_number"`
	ManualFlightDate   *string         `json:"manual_flight_date"`
	Passengers         []SalePassenger `json:"passengers"`
	Price              float64         `json:"price"`
	VerificationSource string          `json:"verification_source"`
	FlightDetails      json.RawMessage `json:"flight_details"`
}

// Ticket is one issued pass document
type Ticket struct {
	GoPassID      int64   `json:"gopass_id,omitempty"`
	PDFURL        string  `json:"pdf_url"`
	PassengerName string  `json:"passenger_name"`
	Price         float64 `json:"price"`
}

// SaleResponse is the server's reply to a sale submission
type SaleResponse struct {
	Success      bool     `json:"success"`
	Tickets      []Ticket `json:"tickets"`
	TotalPrice   float64  `json:"total_price"`
	Time         string   `json:"time,omitempty"`
	FlightNumber string   `json:"flight_number,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// PaymentIntentRequest is the body of POST /api/payment/create-intent
type PaymentIntentRequest struct {
	FlightID string `json:"flight_id"`
	Quantity int    `json:"quantity"`
}

type paymentIntentResponse struct {
	ClientSecret string `json:"clientSecret"`
	Error        string `json:"error"`
}

// PublicSettings is the branding and feature switch set of GET /api/settings/public
type PublicSettings struct {
	GoPassLogo       string `json:"gopass_logo,omitempty"`
	RVALogo          string `json:"rva_logo,omitempty"`
	GoPassTicketLogo string `json:"gopass_ticket_logo,omitempty"`
	StripeEnabled    bool   `json:"stripe_enabled"`
}

type verifyFlightRequest struct {
	FlightNumber string `json:"flight_number"`
	FlightDate   string `json:"flight_date"`
}

// FlightPricing is the price band the server derived for a verified flight
type FlightPricing struct {
	Type     string  `json:"type"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// AirportRef is one end of a verified flight
type AirportRef struct {
	IATA        string `json:"iata"`
	CountryISO2 string `json:"country_iso2"`
}

// FlightVerification is a flight found by POST /api/external/verify-flight.
// Details keeps the server's flight_data verbatim so it can be echoed back
// in the sale payload.
type FlightVerification struct {
	Airline   string
	Departure AirportRef
	Arrival   AirportRef
	Pricing   FlightPricing
	Details   json.RawMessage
}

type verifyFlightResponse struct {
	Found      bool            `json:"found"`
	Message    string          `json:"message,omitempty"`
	FlightData json.RawMessage `json:"flight_data"`
	Pricing    FlightPricing   `json:"pricing"`
}

type flightData struct {
	Airline   string     `json:"airline"`
	Departure AirportRef `json:"departure"`
	Arrival   AirportRef `json:"arrival"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
