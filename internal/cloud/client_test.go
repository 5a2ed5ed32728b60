package cloud

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/jetsetgo/gopass-terminal/internal/config"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(&config.CloudConfig{Endpoint: srv.URL, APIKey: "k1", Tenant: "rva", Timeout: 2 * time.Second}, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c, srv
}

func TestScanSendsContractBody(t *testing.T) {
	var got map[string]any
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/scan" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-API-Key") != "k1" || r.Header.Get("X-DB-Name") != "rva" {
			t.Errorf("auth headers missing: %v", r.Header)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"status":"error","code":"ALREADY_SCANNED","message":"DÉJÀ SCANNÉ","data":{"passenger":"Jean","original_scan":{"scan_date":"2026-10-17 08:15:00","scanned_by":"agent1","location":null}}}`)
	})

	resp, err := c.Scan(context.Background(), ScanRequest{Token: "ABC123", FlightID: "7", Location: "FIH"})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got["token"] != "ABC123" || got["flight_id"] != "7" || got["location"] != "FIH" {
		t.Fatalf("request body = %v", got)
	}
	if resp.Code != CodeAlreadyScanned || resp.Data == nil || resp.Data.OriginalScan == nil {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Data.OriginalScan.ScannedBy != "agent1" {
		t.Fatalf("original scan = %+v", resp.Data.OriginalScan)
	}
}

func TestServerErrorCarriesMessage(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":"Token and Flight ID required"}`)
	})

	_, err := c.Scan(context.Background(), ScanRequest{})
	var se *ServerError
	if !errors.As(err, &se) {
		t.Fatalf("expected ServerError, got %v", err)
	}
	if se.StatusCode != http.StatusBadRequest || se.Message != "Token and Flight ID required" {
		t.Fatalf("server error = %+v", se)
	}
	if IsTransport(err) {
		t.Fatalf("server error must not be a transport error")
	}
}

func TestMalformedBodyIsServerError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html>gateway</html>`)
	})

	_, err := c.Scan(context.Background(), ScanRequest{Token: "x", FlightID: "1"})
	var se *ServerError
	if !errors.As(err, &se) || se.StatusCode != http.StatusOK {
		t.Fatalf("expected ServerError with 200, got %v", err)
	}
}

func TestTransportError(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	_, err := c.Scan(context.Background(), ScanRequest{Token: "x", FlightID: "1"})
	if !IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestSubmitSaleSendsNullsAndIdempotencyKey(t *testing.T) {
	var raw map[string]json.RawMessage
	var key string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/ops/pos/sale" {
			t.Errorf("path = %s", r.URL.Path)
		}
		key = r.Header.Get("Idempotency-Key")
		_ = json.NewDecoder(r.Body).Decode(&raw)
		io.WriteString(w, `{"success":true,"tickets":[{"pdf_url":"/pdf/1","passenger_name":"Jean","price":50}],"total_price":50}`)
	})

	id := "12"
	resp, err := c.SubmitSale(context.Background(), SaleRequest{
		FlightMode:         "today",
		FlightID:           &id,
		Passengers:         []SalePassenger{{Name: "Jean", DocNum: "Doc1", DocType: "Passeport"}},
		Price:              50,
		VerificationSource: "manual",
	}, "key-1")
	if err != nil {
		t.Fatalf("SubmitSale: %v", err)
	}
	if key != "key-1" {
		t.Fatalf("idempotency key = %q", key)
	}
	for _, field := range []string{"manual_flight_number", "manual_flight_date", "flight_details"} {
		if string(raw[field]) != "null" {
			t.Errorf("%s = %s, want null", field, raw[field])
		}
	}
	if string(raw["flight_id"]) != `"12"` || string(raw["price"]) != "50" {
		t.Fatalf("flight_id/price = %s/%s", raw["flight_id"], raw["price"])
	}
	if len(resp.Tickets) != 1 || resp.TotalPrice != 50 {
		t.Fatalf("response = %+v", resp)
	}
}

func TestSubmitSaleUnsuccessful(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":"Données passager incomplètes"}`)
	})
	_, err := c.SubmitSale(context.Background(), SaleRequest{}, "")
	var se *ServerError
	if !errors.As(err, &se) || !strings.Contains(se.Message, "incomplètes") {
		t.Fatalf("expected server error, got %v", err)
	}
}

func TestVerifyFlight(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["flight_number"] == "ZZ999" {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"found":false,"message":"Vol introuvable"}`)
			return
		}
		io.WriteString(w, `{"found":true,"flight_data":{"airline":"CAA","departure":{"iata":"FIH","country_iso2":"CD"},"arrival":{"iata":"FBM","country_iso2":"CD"}},"pricing":{"type":"DOMESTIQUE","amount":15,"currency":"USD"}}`)
	})

	v, err := c.VerifyFlight(context.Background(), "BU123", "2026-10-17")
	if err != nil {
		t.Fatalf("VerifyFlight: %v", err)
	}
	if v.Airline != "CAA" || v.Departure.IATA != "FIH" || v.Arrival.IATA != "FBM" || v.Pricing.Amount != 15 {
		t.Fatalf("verification = %+v", v)
	}
	if !strings.Contains(string(v.Details), `"airline":"CAA"`) {
		t.Fatalf("details not kept verbatim: %s", v.Details)
	}

	if _, err := c.VerifyFlight(context.Background(), "ZZ999", "2026-10-17"); !errors.Is(err, ErrFlightNotFound) {
		t.Fatalf("expected ErrFlightNotFound, got %v", err)
	}
}

func TestCreatePaymentIntent(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			io.WriteString(w, `{"clientSecret":"pi_secret"}`)
			return
		}
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"error":"Service désactivé"}`)
	})

	secret, err := c.CreatePaymentIntent(context.Background(), PaymentIntentRequest{FlightID: "3", Quantity: 2})
	if err != nil || secret != "pi_secret" {
		t.Fatalf("secret=%q err=%v", secret, err)
	}
	if _, err := c.CreatePaymentIntent(context.Background(), PaymentIntentRequest{FlightID: "3", Quantity: 1}); err == nil {
		t.Fatalf("expected error when service disabled")
	}
}

func TestFetchResolvesRelativeReference(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/public/download/5" || r.URL.Query().Get("format") != "thermal" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("%PDF-1.4"))
	})

	doc, err := c.Fetch(context.Background(), "/public/download/5?format=thermal")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(doc) != "%PDF-1.4" {
		t.Fatalf("doc = %q", doc)
	}
}

func TestNewClientRejectsRelativeEndpoint(t *testing.T) {
	if _, err := NewClient(&config.CloudConfig{Endpoint: "gopass.local"}, nil); err == nil {
		t.Fatalf("expected error for relative endpoint")
	}
}
