package offers

import "math"

// APIResponse is the subset of a Google Flights search payload (as returned
// by SerpAPI) that the normalizer reads. Numbers are decoded as float64 so a
// provider returning fractional amounts does not fail the whole payload.
type APIResponse struct {
	BestFlights  []FlightGroup `json:"best_flights"`
	OtherFlights []FlightGroup `json:"other_flights"`
}

// Groups returns best_flights followed by other_flights.
func (r APIResponse) Groups() []FlightGroup {
	groups := make([]FlightGroup, 0, len(r.BestFlights)+len(r.OtherFlights))
	groups = append(groups, r.BestFlights...)
	return append(groups, r.OtherFlights...)
}

// FlightGroup is one itinerary: its legs plus the group-level commercial and
// environmental data.
type FlightGroup struct {
	Flights         []APILeg         `json:"flights"`
	Layovers        []APILayover     `json:"layovers"`
	TotalDuration   *float64         `json:"total_duration"`
	CarbonEmissions *CarbonEmissions `json:"carbon_emissions"`
	Price           *float64         `json:"price"`
	Type            string           `json:"type"`
	Extensions      []string         `json:"extensions"`
	BookingToken    string           `json:"booking_token"`
	DepartureToken  string           `json:"departure_token"`
}

// APIAirport is an endpoint of a leg. Time is "YYYY-MM-DD HH:MM".
type APIAirport struct {
	Name string `json:"name"`
	ID   string `json:"id"`
	Time string `json:"time"`
}

// APILeg is a single flight segment.
type APILeg struct {
	DepartureAirport APIAirport `json:"departure_airport"`
	ArrivalAirport   APIAirport `json:"arrival_airport"`
	Duration         *float64   `json:"duration"`
	Airplane         string     `json:"airplane"`
	Airline          string     `json:"airline"`
	AirlineLogo      string     `json:"airline_logo"`
	CarrierCode      string     `json:"carrier_code"`
	TravelClass      string     `json:"travel_class"`
	FlightNumber     string     `json:"flight_number"`
	Legroom          string     `json:"legroom"`
	Extensions       []string   `json:"extensions"`
	Overnight        bool       `json:"overnight"`
	OftenDelayed     bool       `json:"often_delayed_by_over_30_min"`
	PlaneAndCrewBy   string     `json:"plane_and_crew_by"`
}

// APILayover is a connection between two legs.
type APILayover struct {
	Duration  *float64 `json:"duration"`
	Name      string   `json:"name"`
	ID        string   `json:"id"`
	Overnight bool     `json:"overnight"`
}

// CarbonEmissions is reported in grams.
type CarbonEmissions struct {
	ThisFlight          *float64 `json:"this_flight"`
	TypicalForThisRoute *float64 `json:"typical_for_this_route"`
	DifferencePercent   *float64 `json:"difference_percent"`
}

func roundPtr(v *float64) *int {
	if v == nil {
		return nil
	}
	return intPtr(int(math.Round(*v)))
}

func gramsToKg(v *float64) *int {
	if v == nil {
		return nil
	}
	return intPtr(int(math.Round(*v / 1000)))
}
