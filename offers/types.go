// Package offers turns scraped flight-offer cards and flight-search API
// payloads into validated, fixed-schema FlightOffer records and filters them
// against the natural keys already persisted.
package offers

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DateLayout is the on-disk date format for every date column.
const DateLayout = "2006-01-02"

// DefaultAttributionSlots is the number of (airline, operator) pairs carried
// by a record unless configured otherwise.
const DefaultAttributionSlots = 4

// ErrInvalidOffer is returned by Validate when a required field is missing.
var ErrInvalidOffer = errors.New("invalid flight offer")

// Mode selects the source a record was built from and, with it, the output
// schema.
type Mode string

const (
	ModeText Mode = "text"
	ModeAPI  Mode = "api"
)

// ParseMode parses "text" or "api" (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeText:
		return ModeText, nil
	case ModeAPI:
		return ModeAPI, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want text or api)", s)
	}
}

// Stops classifies the number of stops of an offer.
type Stops string

const (
	StopsNonstop Stops = "Nonstop"
	StopsUnknown Stops = "Unknown"
)

// StopCount renders n stops the way result cards do ("1 stop", "2 stop").
func StopCount(n int) Stops {
	if n <= 0 {
		return StopsNonstop
	}
	return Stops(fmt.Sprintf("%d stop", n))
}

var airportCodePattern = regexp.MustCompile(`^[A-Z]{3}$`)

// AirportRef is an IATA code plus the display name found next to it.
type AirportRef struct {
	Code string `json:"id"`
	Name string `json:"name"`
}

// Valid reports whether Code is three uppercase letters.
func (a AirportRef) Valid() bool {
	return airportCodePattern.MatchString(a.Code)
}

// Attribution is one positional (airline, operator) slot. Nil means the slot
// is unused.
type Attribution struct {
	Airline  *string `json:"airline"`
	Operator *string `json:"operator"`
}

// PadAttributions pads or truncates pairs to exactly slots entries.
func PadAttributions(pairs []Attribution, slots int) []Attribution {
	out := make([]Attribution, slots)
	copy(out, pairs)
	return out
}

// SearchContext is what the caller knows about the query that produced a
// card or a payload.
type SearchContext struct {
	Origin        string `json:"origin"`
	Destination   string `json:"destination"`
	DepartureDate string `json:"departure_date"` // queried travel date, YYYY-MM-DD
	CabinClass    string `json:"cabin_class"`
	TripType      string `json:"trip_type"`
	Currency      string `json:"currency,omitempty"`
	QueryDate     string `json:"query_date,omitempty"` // date the query ran; defaults to today
}

// Layover is a connection inside an API itinerary.
type Layover struct {
	AirportID   string `json:"id"`
	Name        string `json:"name,omitempty"`
	DurationMin int    `json:"duration"`
	Overnight   bool   `json:"overnight,omitempty"`
}

func (l Layover) String() string {
	return fmt.Sprintf("%s (%dmin)", l.AirportID, l.DurationMin)
}

// LegDetails carries the fields only the API source provides.
type LegDetails struct {
	SegmentIndex     int       `json:"segment_index"`
	Airline          string    `json:"airline,omitempty"`
	FlightNumber     string    `json:"flight_number,omitempty"`
	CarrierCode      string    `json:"carrier_code,omitempty"`
	Aircraft         string    `json:"aircraft,omitempty"`
	Legroom          string    `json:"legroom,omitempty"`
	Overnight        bool      `json:"overnight"`
	Extensions       []string  `json:"extensions,omitempty"`
	GroupExtensions  []string  `json:"group_extensions,omitempty"`
	TotalDurationMin *int      `json:"total_duration_min,omitempty"`
	Layovers         []Layover `json:"layovers,omitempty"`
	BookingToken     string    `json:"booking_token,omitempty"`
	OfferType        string    `json:"offer_type,omitempty"`
}

// FlightOffer is the canonical record. It is built once by the Normalizer,
// validated, and never mutated afterwards.
type FlightOffer struct {
	Mode                 Mode          `json:"mode"`
	QueryDate            string        `json:"query_date"`
	AdvanceDays          *int          `json:"advance_days"`
	Origin               string        `json:"origin"`
	Destination          string        `json:"destination"`
	Departure            AirportRef    `json:"departure_airport"`
	Arrival              AirportRef    `json:"arrival_airport"`
	DepartureDate        string        `json:"departure_date"`
	DepartureTime        string        `json:"departure_time"`
	ArrivalTime          string        `json:"arrival_time"`
	CabinClass           string        `json:"travel_class"`
	TripType             string        `json:"type"`
	DurationMin          *int          `json:"duration_min"`
	Attributions         []Attribution `json:"attributions"`
	Price                *int          `json:"price"`
	Currency             string        `json:"currency,omitempty"`
	EmissionsKg          *int          `json:"emissions_this_flight"`
	EmissionsTypicalKg   *int          `json:"emissions_typical_route,omitempty"`
	EmissionsDiffPercent *int          `json:"emissions_difference_percent"`
	Stops                Stops         `json:"stops"`
	Leg                  *LegDetails   `json:"leg,omitempty"`
}

// Validate checks the fields every downstream stage relies on.
func (o FlightOffer) Validate() error {
	var problems []string
	if !o.Departure.Valid() {
		problems = append(problems, fmt.Sprintf("departure airport id %q", o.Departure.Code))
	}
	if !o.Arrival.Valid() {
		problems = append(problems, fmt.Sprintf("arrival airport id %q", o.Arrival.Code))
	}
	if _, err := time.Parse(DateLayout, o.DepartureDate); err != nil {
		problems = append(problems, fmt.Sprintf("departure date %q", o.DepartureDate))
	}
	if o.DepartureTime == "" {
		problems = append(problems, "departure time missing")
	}
	if o.Price != nil && *o.Price < 0 {
		problems = append(problems, "negative price")
	}
	if len(o.Attributions) == 0 {
		problems = append(problems, "attribution slots missing")
	}

	switch o.Mode {
	case ModeText:
		if o.ArrivalTime == "" {
			problems = append(problems, "arrival time missing")
		}
	case ModeAPI:
		if o.Leg == nil {
			problems = append(problems, "leg details missing")
		}
	default:
		problems = append(problems, fmt.Sprintf("mode %q", o.Mode))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidOffer, strings.Join(problems, ", "))
	}
	return nil
}

// Diagnostic explains why one card or leg did not become a record.
type Diagnostic struct {
	Index   int    `json:"index"`
	Segment int    `json:"segment,omitempty"`
	Reason  string `json:"reason"`
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }
