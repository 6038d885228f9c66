package offers

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
)

// Normalizer attaches the search context to parsed fragments and API legs and
// produces validated FlightOffers with a fixed number of attribution slots.
type Normalizer struct {
	slots int
	now   func() time.Time
}

// NewNormalizer returns a Normalizer that pads attributions to slots and
// reads the query date from the wall clock when the context has none.
func NewNormalizer(slots int) *Normalizer {
	if slots < 1 {
		slots = DefaultAttributionSlots
	}
	return &Normalizer{slots: slots, now: time.Now}
}

// WithClock returns a copy of n that reads the current date from now.
func (n *Normalizer) WithClock(now func() time.Time) *Normalizer {
	c := *n
	c.now = now
	return &c
}

// Slots returns the number of attribution slots in every record.
func (n *Normalizer) Slots() int { return n.slots }

// FromFragment builds a text-mode record.
func (n *Normalizer) FromFragment(sc SearchContext, f Fragment) (FlightOffer, error) {
	queryDay, err := n.queryDate(sc)
	if err != nil {
		return FlightOffer{}, err
	}

	currencyCode := f.Currency
	if currencyCode == "" {
		currencyCode = sc.Currency
	}

	o := FlightOffer{
		Mode:                 ModeText,
		QueryDate:            queryDay.Format(DateLayout),
		AdvanceDays:          advanceDays(queryDay, sc.DepartureDate),
		Origin:               strings.ToUpper(sc.Origin),
		Destination:          strings.ToUpper(sc.Destination),
		Departure:            f.Departure,
		Arrival:              f.Arrival,
		DepartureDate:        sc.DepartureDate,
		DepartureTime:        f.DepartureTime,
		ArrivalTime:          f.ArrivalTime,
		CabinClass:           sc.CabinClass,
		TripType:             sc.TripType,
		DurationMin:          f.DurationMin,
		Attributions:         PadAttributions(f.Attributions, n.slots),
		Price:                f.Price,
		Currency:             currencyCode,
		EmissionsKg:          f.EmissionsKg,
		EmissionsDiffPercent: f.EmissionsDiffPercent,
		Stops:                f.Stops,
	}
	if err := o.Validate(); err != nil {
		return FlightOffer{}, err
	}
	return o, nil
}

// FromAPI builds one api-mode record per leg of every flight group. Legs that
// cannot be turned into a valid record are reported as diagnostics; Index is
// the group position (best_flights first) and Segment the leg position.
func (n *Normalizer) FromAPI(sc SearchContext, resp APIResponse) ([]FlightOffer, []Diagnostic) {
	queryDay, err := n.queryDate(sc)
	if err != nil {
		return nil, []Diagnostic{{Index: -1, Reason: err.Error()}}
	}

	var (
		records []FlightOffer
		diags   []Diagnostic
	)
	for gi, group := range resp.Groups() {
		if len(group.Flights) == 0 {
			diags = append(diags, Diagnostic{Index: gi, Reason: "flight group has no legs"})
			continue
		}

		attributions := make([]Attribution, 0, len(group.Flights))
		for _, leg := range group.Flights {
			var a Attribution
			if leg.Airline != "" {
				a.Airline = strPtr(leg.Airline)
			}
			if leg.PlaneAndCrewBy != "" {
				a.Operator = strPtr(leg.PlaneAndCrewBy)
			}
			attributions = append(attributions, a)
		}
		attributions = PadAttributions(attributions, n.slots)

		layovers := make([]Layover, 0, len(group.Layovers))
		for _, l := range group.Layovers {
			minutes := 0
			if d := roundPtr(l.Duration); d != nil {
				minutes = *d
			}
			layovers = append(layovers, Layover{AirportID: l.ID, Name: l.Name, DurationMin: minutes, Overnight: l.Overnight})
		}

		origin, destination := sc.Origin, sc.Destination
		if origin == "" {
			origin = group.Flights[0].DepartureAirport.ID
		}
		if destination == "" {
			destination = group.Flights[len(group.Flights)-1].ArrivalAirport.ID
		}

		var emissions CarbonEmissions
		if group.CarbonEmissions != nil {
			emissions = *group.CarbonEmissions
		}

		for li, leg := range group.Flights {
			depDate, _, _ := strings.Cut(strings.TrimSpace(leg.DepartureAirport.Time), " ")
			if depDate == "" {
				diags = append(diags, Diagnostic{Index: gi, Segment: li, Reason: "leg has no departure time"})
				continue
			}

			cabin := leg.TravelClass
			if cabin == "" {
				cabin = sc.CabinClass
			}
			tripType := group.Type
			if tripType == "" {
				tripType = sc.TripType
			}

			o := FlightOffer{
				Mode:                 ModeAPI,
				QueryDate:            queryDay.Format(DateLayout),
				AdvanceDays:          advanceDays(queryDay, depDate),
				Origin:               strings.ToUpper(origin),
				Destination:          strings.ToUpper(destination),
				Departure:            AirportRef{Code: leg.DepartureAirport.ID, Name: leg.DepartureAirport.Name},
				Arrival:              AirportRef{Code: leg.ArrivalAirport.ID, Name: leg.ArrivalAirport.Name},
				DepartureDate:        depDate,
				DepartureTime:        leg.DepartureAirport.Time,
				ArrivalTime:          leg.ArrivalAirport.Time,
				CabinClass:           cabin,
				TripType:             tripType,
				DurationMin:          roundPtr(leg.Duration),
				Attributions:         attributions,
				Price:                roundPtr(group.Price),
				Currency:             sc.Currency,
				EmissionsKg:          gramsToKg(emissions.ThisFlight),
				EmissionsTypicalKg:   gramsToKg(emissions.TypicalForThisRoute),
				EmissionsDiffPercent: roundPtr(emissions.DifferencePercent),
				Stops:                StopCount(len(group.Flights) - 1),
				Leg: &LegDetails{
					SegmentIndex:     li,
					Airline:          leg.Airline,
					FlightNumber:     strings.TrimSpace(leg.FlightNumber),
					CarrierCode:      CarrierCode(leg.CarrierCode, leg.FlightNumber),
					Aircraft:         leg.Airplane,
					Legroom:          leg.Legroom,
					Overnight:        leg.Overnight,
					Extensions:       leg.Extensions,
					GroupExtensions:  group.Extensions,
					TotalDurationMin: roundPtr(group.TotalDuration),
					Layovers:         layovers,
					BookingToken:     group.BookingToken,
					OfferType:        group.Type,
				},
			}
			if err := o.Validate(); err != nil {
				diags = append(diags, Diagnostic{Index: gi, Segment: li, Reason: err.Error()})
				continue
			}
			records = append(records, o)
		}
	}
	return records, diags
}

var flightNumberPrefix = regexp.MustCompile(`^([A-Z0-9]{2})\s?\d`)

// CarrierCode returns explicit when set, otherwise the two-character IATA
// prefix of a flight number such as "LA 532" or "DL1234".
func CarrierCode(explicit, flightNumber string) string {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return explicit
	}
	if m := flightNumberPrefix.FindStringSubmatch(strings.TrimSpace(flightNumber)); m != nil {
		return m[1]
	}
	return ""
}

func (n *Normalizer) queryDate(sc SearchContext) (time.Time, error) {
	if sc.QueryDate != "" {
		t, err := time.Parse(DateLayout, sc.QueryDate)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid query date %q: %w", sc.QueryDate, err)
		}
		return t, nil
	}
	today, _ := time.Parse(DateLayout, n.now().Format(DateLayout))
	return today, nil
}

// advanceDays is the departure date minus the query date. Negative values are
// kept; a missing or malformed date yields nil.
func advanceDays(queryDay time.Time, departureDate string) *int {
	d, err := time.Parse(DateLayout, departureDate)
	if err != nil {
		return nil
	}
	return intPtr(int(math.Round(d.Sub(queryDay).Hours() / 24)))
}
