package offers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextSchema_Header(t *testing.T) {
	assert.Equal(t, []string{
		"query_date", "advance_days",
		"departure_airport_id", "departure_airport_name",
		"arrival_airport_id", "arrival_airport_name",
		"departure_date", "departure_time", "arrival_time",
		"airline_1", "airline_2", "operator_1", "operator_2",
		"travel_class", "duration_min", "price", "currency", "type",
		"emissions_this_flight", "emissions_difference_percent", "stops",
	}, TextSchema(2).Header())
}

func TestTextSchema_Row(t *testing.T) {
	frag, err := newTestParser(t).Parse(sampleCard)
	require.NoError(t, err)
	o, err := NewNormalizer(2).FromFragment(testContext, frag)
	require.NoError(t, err)

	s := TextSchema(2)
	row := s.Row(o)
	require.Len(t, row, len(s.Header()))

	assert.Equal(t, []string{
		"2025-05-20", "12",
		"LAX", "Los Angeles Airport",
		"JFK", "John F Kennedy Airport",
		"2025-06-01", "9:05 AM", "12:30 PM",
		"Delta", "", "", "",
		"Economy", "325", "350000", "CLP", "One way",
		"108", "-12", "Nonstop",
	}, row)
}

func TestTextSchema_AbsentValuesAreEmpty(t *testing.T) {
	o := textOffer("LAX", "JFK", "2025-06-01", "9:05 AM")
	row := TextSchema(1).Row(o)

	s := TextSchema(1)
	assert.Equal(t, "", row[s.Index("price")])
	assert.Equal(t, "", row[s.Index("advance_days")])
	assert.Equal(t, "", row[s.Index("airline_1")])
}

func TestAPISchema_Row(t *testing.T) {
	records, _ := NewNormalizer(4).FromAPI(SearchContext{QueryDate: "2025-05-20", Currency: "CLP"}, decodePayload(t))
	require.NotEmpty(t, records)

	s := APISchema()
	row := s.Row(records[0])
	require.Len(t, row, len(s.Header()))

	get := func(col string) string {
		i := s.Index(col)
		require.GreaterOrEqual(t, i, 0, col)
		return row[i]
	}
	assert.Equal(t, "LA 532", get(ColFlightNumber))
	assert.Equal(t, "0", get(ColSegmentIndex))
	assert.Equal(t, "LA", get("carrier_code"))
	assert.Equal(t, "LIM (95min)", get("layovers"))
	assert.Equal(t, "Average legroom (30 in); Carbon emissions estimate: 148 kg", get("extensions_flight"))
	assert.Equal(t, "false", get("overnight"))
	assert.Equal(t, "352", get("emissions_this_flight"))
	assert.Equal(t, "1 stop", get("stops"))
	assert.Equal(t, "tok-1", get("booking_token"))
}

func TestSchemaFor(t *testing.T) {
	assert.Equal(t, ModeAPI, SchemaFor(ModeAPI, 4).Mode)
	assert.Len(t, SchemaFor(ModeText, 3).Header(), 21+2)
	assert.Equal(t, -1, APISchema().Index("airline_1"))
}
