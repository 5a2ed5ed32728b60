package scanqueue

import (
	"github.com/jetsetgo/gopass-terminal/internal/cloud"
)

// Local outcome codes, alongside the server's cloud.ScanCode values
const (
	// CodeOffline: the scan was queued for replay, no verdict yet
	CodeOffline cloud.ScanCode = "OFFLINE"
	// CodeError: the server answered but the answer was unusable
	CodeError cloud.ScanCode = "ERROR"
)

// Outcome is what the operator sees after a scan
type Outcome struct {
	Code     cloud.ScanCode  `json:"code"`
	Token    string          `json:"token"`
	FlightID string          `json:"flight_id"`
	Message  string          `json:"message,omitempty"`
	Data     *cloud.ScanData `json:"data,omitempty"`
}

// Queued reports whether the scan is waiting in the offline queue
func (o Outcome) Queued() bool { return o.Code == CodeOffline }

// Confirmed reports whether the server has ruled on the token. Confirmed
// outcomes are final and never retried.
func (o Outcome) Confirmed() bool {
	return o.Code != CodeOffline && o.Code != CodeError && o.Code != ""
}

// Color is the feedback screen colour for the outcome
func (o Outcome) Color() string {
	switch o.Code {
	case cloud.CodeValid:
		return "green"
	case cloud.CodeWrongFlight:
		return "orange"
	case CodeOffline:
		return "blue"
	default:
		return "red"
	}
}

func outcomeFromResponse(token, flightID string, resp *cloud.ScanResponse) Outcome {
	return Outcome{
		Code:     resp.Code,
		Token:    token,
		FlightID: flightID,
		Message:  resp.Message,
		Data:     resp.Data,
	}
}
