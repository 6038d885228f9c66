package offers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMode(t *testing.T) {
	m, err := ParseMode(" API ")
	assert.NoError(t, err)
	assert.Equal(t, ModeAPI, m)

	m, err = ParseMode("text")
	assert.NoError(t, err)
	assert.Equal(t, ModeText, m)

	_, err = ParseMode("csv")
	assert.Error(t, err)
}

func TestStopCount(t *testing.T) {
	assert.Equal(t, StopsNonstop, StopCount(0))
	assert.Equal(t, Stops("1 stop"), StopCount(1))
	assert.Equal(t, Stops("3 stop"), StopCount(3))
}

func TestPadAttributions(t *testing.T) {
	pairs := []Attribution{{Airline: strPtr("Delta")}, {Airline: strPtr("KLM")}, {Airline: strPtr("Air France")}}

	assert.Len(t, PadAttributions(pairs, 2), 2)
	padded := PadAttributions(pairs[:1], 4)
	assert.Len(t, padded, 4)
	assert.Nil(t, padded[3].Airline)
}

func TestFlightOffer_Validate(t *testing.T) {
	valid := textOffer("LAX", "JFK", "2025-06-01", "9:05 AM")
	valid.ArrivalTime = "12:30 PM"
	valid.Attributions = PadAttributions(nil, 4)
	assert.NoError(t, valid.Validate())

	tests := map[string]func(o *FlightOffer){
		"lowercase airport": func(o *FlightOffer) { o.Departure.Code = "lax" },
		"bad date":          func(o *FlightOffer) { o.DepartureDate = "06/01/2025" },
		"no arrival time":   func(o *FlightOffer) { o.ArrivalTime = "" },
		"negative price":    func(o *FlightOffer) { o.Price = intPtr(-1) },
		"no slots":          func(o *FlightOffer) { o.Attributions = nil },
		"api without leg":   func(o *FlightOffer) { o.Mode = ModeAPI },
		"unknown mode":      func(o *FlightOffer) { o.Mode = "csv" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			o := valid
			mutate(&o)
			err := o.Validate()
			assert.True(t, errors.Is(err, ErrInvalidOffer), "got %v", err)
		})
	}
}

func TestLayover_String(t *testing.T) {
	assert.Equal(t, "LIM (95min)", Layover{AirportID: "LIM", DurationMin: 95}.String())
}
