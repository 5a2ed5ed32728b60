package sale

// FlightView is the confirmed-flight card
type FlightView struct {
	Mode           string `json:"mode"`
	Source         string `json:"verification_source"`
	ID             string `json:"id,omitempty"`
	Label          string `json:"label"`
	Airline        string `json:"airline,omitempty"`
	Route          string `json:"route,omitempty"`
	Date           string `json:"date,omitempty"`
	Classification string `json:"classification"`
}

// PassengerView is one passenger row with its completeness flags
type PassengerView struct {
	PassengerDraft
	Full    bool `json:"full"`
	Partial bool `json:"partial"`
}

// View is the render projection of a Session
type View struct {
	Step          string          `json:"step"`
	Flight        *FlightView     `json:"flight,omitempty"`
	Passengers    []PassengerView `json:"passengers"`
	UnitPrice     float64         `json:"unit_price"`
	Total         float64         `json:"total"`
	CanSubmit     bool            `json:"can_submit"`
	DocumentTypes []DocumentType  `json:"document_types"`
}

// View projects the session for display
func (s Session) View() View {
	v := View{
		Step:          s.step.String(),
		Passengers:    make([]PassengerView, len(s.passengers)),
		UnitPrice:     s.unitPrice.InexactFloat64(),
		Total:         s.Total().InexactFloat64(),
		CanSubmit:     s.CanSubmit(),
		DocumentTypes: DocumentTypes,
	}
	for i, d := range s.passengers {
		v.Passengers[i] = PassengerView{PassengerDraft: d, Full: d.Full(), Partial: d.Partial()}
	}

	if s.flight != nil {
		fv := &FlightView{
			Mode:           s.flight.Mode(),
			Source:         s.flight.Source(),
			Label:          s.flight.Label(),
			Classification: s.bands.Classify(s.unitPrice),
		}
		switch f := s.flight.(type) {
		case PresetFlight:
			fv.ID = f.ID
		case VerifiedFlight:
			fv.Airline = f.Airline
			fv.Route = f.Route
			fv.Date = f.Date
		case ManualFlight:
			fv.Date = f.Date
		}
		v.Flight = fv
	}
	return v
}
