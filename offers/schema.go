package offers

import (
	"fmt"
	"strconv"
	"strings"
)

// Column names the dedup key strategy reads back from persisted rows.
const (
	ColQueryDate        = "query_date"
	ColDepartureAirport = "departure_airport_id"
	ColArrivalAirport   = "arrival_airport_id"
	ColDepartureDate    = "departure_date"
	ColDepartureTime    = "departure_time"
	ColFlightNumber     = "flight_number"
	ColSegmentIndex     = "segment_index"
)

// Column is one output field and how it is rendered from a record.
type Column struct {
	Name  string
	Value func(FlightOffer) string
}

// Schema is the ordered column list of one output target. Every record of a
// target is written with the same Schema.
type Schema struct {
	Mode    Mode
	Columns []Column
}

// SchemaFor returns the schema used for mode.
func SchemaFor(mode Mode, slots int) Schema {
	if mode == ModeAPI {
		return APISchema()
	}
	return TextSchema(slots)
}

// Header returns the column names in order.
func (s Schema) Header() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Row renders o in column order. Absent values become empty fields.
func (s Schema) Row(o FlightOffer) []string {
	row := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		row[i] = c.Value(o)
	}
	return row
}

// Index returns the position of a column, or -1.
func (s Schema) Index(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// TextSchema is the schema for records parsed from card texts.
func TextSchema(slots int) Schema {
	if slots < 1 {
		slots = DefaultAttributionSlots
	}
	cols := []Column{
		{ColQueryDate, func(o FlightOffer) string { return o.QueryDate }},
		{"advance_days", func(o FlightOffer) string { return formatInt(o.AdvanceDays) }},
		{ColDepartureAirport, func(o FlightOffer) string { return o.Departure.Code }},
		{"departure_airport_name", func(o FlightOffer) string { return o.Departure.Name }},
		{ColArrivalAirport, func(o FlightOffer) string { return o.Arrival.Code }},
		{"arrival_airport_name", func(o FlightOffer) string { return o.Arrival.Name }},
		{ColDepartureDate, func(o FlightOffer) string { return o.DepartureDate }},
		{ColDepartureTime, func(o FlightOffer) string { return o.DepartureTime }},
		{"arrival_time", func(o FlightOffer) string { return o.ArrivalTime }},
	}
	for i := 0; i < slots; i++ {
		i := i
		cols = append(cols, Column{fmt.Sprintf("airline_%d", i+1), func(o FlightOffer) string {
			if i < len(o.Attributions) {
				return formatString(o.Attributions[i].Airline)
			}
			return ""
		}})
	}
	for i := 0; i < slots; i++ {
		i := i
		cols = append(cols, Column{fmt.Sprintf("operator_%d", i+1), func(o FlightOffer) string {
			if i < len(o.Attributions) {
				return formatString(o.Attributions[i].Operator)
			}
			return ""
		}})
	}
	cols = append(cols,
		Column{"travel_class", func(o FlightOffer) string { return o.CabinClass }},
		Column{"duration_min", func(o FlightOffer) string { return formatInt(o.DurationMin) }},
		Column{"price", func(o FlightOffer) string { return formatInt(o.Price) }},
		Column{"currency", func(o FlightOffer) string { return o.Currency }},
		Column{"type", func(o FlightOffer) string { return o.TripType }},
		Column{"emissions_this_flight", func(o FlightOffer) string { return formatInt(o.EmissionsKg) }},
		Column{"emissions_difference_percent", func(o FlightOffer) string { return formatInt(o.EmissionsDiffPercent) }},
		Column{"stops", func(o FlightOffer) string { return string(o.Stops) }},
	)
	return Schema{Mode: ModeText, Columns: cols}
}

// APISchema is the schema for per-leg records built from API payloads.
func APISchema() Schema {
	leg := func(f func(*LegDetails) string) func(FlightOffer) string {
		return func(o FlightOffer) string {
			if o.Leg == nil {
				return ""
			}
			return f(o.Leg)
		}
	}
	return Schema{Mode: ModeAPI, Columns: []Column{
		{ColQueryDate, func(o FlightOffer) string { return o.QueryDate }},
		{"advance_days", func(o FlightOffer) string { return formatInt(o.AdvanceDays) }},
		{ColDepartureAirport, func(o FlightOffer) string { return o.Departure.Code }},
		{"departure_airport_name", func(o FlightOffer) string { return o.Departure.Name }},
		{ColDepartureTime, func(o FlightOffer) string { return o.DepartureTime }},
		{ColArrivalAirport, func(o FlightOffer) string { return o.Arrival.Code }},
		{"arrival_airport_name", func(o FlightOffer) string { return o.Arrival.Name }},
		{"arrival_time", func(o FlightOffer) string { return o.ArrivalTime }},
		{ColDepartureDate, func(o FlightOffer) string { return o.DepartureDate }},
		{"airline", leg(func(l *LegDetails) string { return l.Airline })},
		{"carrier_code", leg(func(l *LegDetails) string { return l.CarrierCode })},
		{ColFlightNumber, leg(func(l *LegDetails) string { return l.FlightNumber })},
		{"aircraft", leg(func(l *LegDetails) string { return l.Aircraft })},
		{"travel_class", func(o FlightOffer) string { return o.CabinClass }},
		{"duration_min", func(o FlightOffer) string { return formatInt(o.DurationMin) }},
		{"legroom", leg(func(l *LegDetails) string { return l.Legroom })},
		{"overnight", leg(func(l *LegDetails) string { return strconv.FormatBool(l.Overnight) })},
		{"extensions_flight", leg(func(l *LegDetails) string { return strings.Join(l.Extensions, "; ") })},
		{ColSegmentIndex, leg(func(l *LegDetails) string { return strconv.Itoa(l.SegmentIndex) })},
		{"total_duration_min", leg(func(l *LegDetails) string { return formatInt(l.TotalDurationMin) })},
		{"layovers", leg(func(l *LegDetails) string { return formatLayovers(l.Layovers) })},
		{"price", func(o FlightOffer) string { return formatInt(o.Price) }},
		{"currency", func(o FlightOffer) string { return o.Currency }},
		{"type", func(o FlightOffer) string { return o.TripType }},
		{"extensions_group", leg(func(l *LegDetails) string { return strings.Join(l.GroupExtensions, "; ") })},
		{"emissions_this_flight", func(o FlightOffer) string { return formatInt(o.EmissionsKg) }},
		{"emissions_typical_route", func(o FlightOffer) string { return formatInt(o.EmissionsTypicalKg) }},
		{"emissions_difference_percent", func(o FlightOffer) string { return formatInt(o.EmissionsDiffPercent) }},
		{"stops", func(o FlightOffer) string { return string(o.Stops) }},
		{"booking_token", leg(func(l *LegDetails) string { return l.BookingToken })},
	}}
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func formatString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func formatLayovers(layovers []Layover) string {
	parts := make([]string, len(layovers))
	for i, l := range layovers {
		parts[i] = l.String()
	}
	return strings.Join(parts, ", ")
}
