package cloud

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/jetsetgo/gopass-terminal/internal/config"
)

// maxBodySize bounds how much of a response body is read. Ticket documents
// are the largest payloads the agent downloads.
const maxBodySize = 16 << 20

// Client talks to the GoPass API
type Client struct {
	config *config.CloudConfig
	base   *url.URL
	client *http.Client
}

// NewClient creates a new API client. A nil httpClient gets one with the
// configured timeout.
func NewClient(cfg *config.CloudConfig, httpClient *http.Client) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.Endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("cloud: parsing endpoint %q: %w", cfg.Endpoint, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("cloud: endpoint %q must be absolute", cfg.Endpoint)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{config: cfg, base: base, client: httpClient}, nil
}

// Scan submits a scanned token for validation against a flight
func (c *Client) Scan(ctx context.Context, req ScanRequest) (*ScanResponse, error) {
	var out ScanResponse
	if err := c.call(ctx, "scan", http.MethodPost, "/api/scan", req, &out, nil); err != nil {
		return nil, err
	}
	if out.Code == "" {
		return nil, &ServerError{Op: "scan", StatusCode: http.StatusOK, Message: "response without code"}
	}
	return &out, nil
}

// CheckPass validates a pass number at an access point
func (c *Client) CheckPass(ctx context.Context, req PassCheckRequest) (*PassCheckResponse, error) {
	var out PassCheckResponse
	if err := c.call(ctx, "check pass", http.MethodPost, "/validation/check", req, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitSale sends a point-of-sale submission. The idempotency key lets the
// server collapse accidental re-deliveries of the same sale attempt.
func (c *Client) SubmitSale(ctx context.Context, req SaleRequest, idempotencyKey string) (*SaleResponse, error) {
	hdr := http.Header{}
	if idempotencyKey != "" {
		hdr.Set("Idempotency-Key", idempotencyKey)
	}

	var out SaleResponse
	if err := c.call(ctx, "submit sale", http.MethodPost, "/api/ops/pos/sale", req, &out, hdr); err != nil {
		return nil, err
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "sale not confirmed"
		}
		return nil, &ServerError{Op: "submit sale", StatusCode: http.StatusOK, Message: msg}
	}
	return &out, nil
}

// CreatePaymentIntent asks the server for a card payment client secret
func (c *Client) CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (string, error) {
	var out paymentIntentResponse
	if err := c.call(ctx, "create payment intent", http.MethodPost, "/api/payment/create-intent", req, &out, nil); err != nil {
		return "", err
	}
	if out.Error != "" || out.ClientSecret == "" {
		msg := out.Error
		if msg == "" {
			msg = "no client secret"
		}
		return "", &ServerError{Op: "create payment intent", StatusCode: http.StatusOK, Message: msg}
	}
	return out.ClientSecret, nil
}

// PublicSettings fetches branding and feature switches. It is also the
// connectivity probe.
func (c *Client) PublicSettings(ctx context.Context) (*PublicSettings, error) {
	var out PublicSettings
	if err := c.call(ctx, "public settings", http.MethodGet, "/api/settings/public", nil, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyFlight looks a flight up in the external flight registry.
// A 404 or found=false yields ErrFlightNotFound.
func (c *Client) VerifyFlight(ctx context.Context, number, date string) (*FlightVerification, error) {
	const op = "verify flight"
	status, body, err := c.roundTrip(ctx, op, http.MethodPost, "/api/external/verify-flight",
		verifyFlightRequest{FlightNumber: number, FlightDate: date}, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, ErrFlightNotFound
	}

	var out verifyFlightResponse
	if err := decode(op, status, body, &out); err != nil {
		return nil, err
	}
	if !out.Found {
		return nil, ErrFlightNotFound
	}

	var fd flightData
	if err := json.Unmarshal(out.FlightData, &fd); err != nil {
		return nil, &ServerError{Op: op, StatusCode: status, Message: "malformed flight_data: " + err.Error()}
	}
	return &FlightVerification{
		Airline:   fd.Airline,
		Departure: fd.Departure,
		Arrival:   fd.Arrival,
		Pricing:   out.Pricing,
		Details:   out.FlightData,
	}, nil
}

// Fetch downloads a document the server linked to, such as a ticket's
// pdf_url. Relative references resolve against the endpoint.
func (c *Client) Fetch(ctx context.Context, ref string) ([]byte, error) {
	const op = "fetch document"
	u, err := c.resolve(ref)
	if err != nil {
		return nil, err
	}
	status, body, err := c.do(ctx, op, http.MethodGet, u, nil, nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, serverError(op, status, body)
	}
	return body, nil
}

func (c *Client) call(ctx context.Context, op, method, path string, in, out any, hdr http.Header) error {
	status, body, err := c.roundTrip(ctx, op, method, path, in, hdr)
	if err != nil {
		return err
	}
	return decode(op, status, body, out)
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, in any, hdr http.Header) (int, []byte, error) {
	u, err := c.resolve(path)
	if err != nil {
		return 0, nil, err
	}
	return c.do(ctx, op, method, u, in, hdr)
}

func (c *Client) resolve(ref string) (string, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("cloud: bad reference %q: %w", ref, err)
	}
	if r.IsAbs() {
		return r.String(), nil
	}
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + "/" + strings.TrimLeft(r.Path, "/")
	u.RawQuery = r.RawQuery
	return u.String(), nil
}

func (c *Client) do(ctx context.Context, op, method, u string, in any, hdr http.Header) (int, []byte, error) {
	var reqBody io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return 0, nil, fmt.Errorf("cloud: %s: encoding request: %w", op, err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("cloud: %s: %w", op, err)
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("X-API-Key", c.config.APIKey)
	}
	if c.config.Tenant != "" {
		req.Header.Set("X-DB-Name", c.config.Tenant)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return 0, nil, &TransportError{Op: op, Err: fmt.Errorf("reading body: %w", err)}
	}
	return resp.StatusCode, body, nil
}

func decode(op string, status int, body []byte, out any) error {
	if status < 200 || status > 299 {
		return serverError(op, status, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &ServerError{Op: op, StatusCode: status, Message: "malformed response: " + err.Error()}
	}
	return nil
}

func serverError(op string, status int, body []byte) error {
	var eb errorBody
	msg := ""
	if json.Unmarshal(body, &eb) == nil {
		msg = eb.Error
		if msg == "" {
			msg = eb.Message
		}
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200]
		}
	}
	return &ServerError{Op: op, StatusCode: status, Message: msg}
}
