package harvest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gilby125/flight-offers-harvester/config"
	"github.com/gilby125/flight-offers-harvester/offers"
	"github.com/gilby125/flight-offers-harvester/pkg/logger"
	"github.com/gilby125/flight-offers-harvester/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const sampleCard = "9:05 AM LAX Los Angeles Airport 12:30 PM JFK John F Kennedy Airport 5 hr 25 min Delta Nonstop CLP 350.000 108 kg CO2e -12% emissions"

var sampleContext = offers.SearchContext{
	Origin:        "LAX",
	Destination:   "JFK",
	DepartureDate: "2025-06-01",
	CabinClass:    "Economy",
	TripType:      "One way",
	QueryDate:     "2025-05-20",
}

type mockSink struct {
	mock.Mock
}

func (m *mockSink) Append(ctx context.Context, records []offers.FlightOffer) (int, error) {
	args := m.Called(ctx, records)
	return args.Int(0), args.Error(1)
}

func testParser(t *testing.T) *offers.Parser {
	t.Helper()
	p, _, err := NewParser(config.TestConfig(t.TempDir()))
	require.NoError(t, err)
	return p
}

func textSession(t *testing.T, path string) *Pipeline {
	t.Helper()
	p := testParser(t)
	w := storage.NewCSVWriter(path, offers.TextSchema(p.Slots()))
	session, err := NewSession(context.Background(), offers.ModeText, Options{Parser: p, Logger: logger.Nop()}, w, w)
	require.NoError(t, err)
	return session
}

func TestPipeline_IngestCardsEndToEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "text.csv")
	session := textSession(t, path)

	res, err := session.IngestCards(context.Background(), sampleContext, []string{sampleCard})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Received)
	assert.Equal(t, 1, res.Parsed)
	assert.Equal(t, 0, res.Skipped)
	assert.Equal(t, 1, res.Written)
	assert.NotEmpty(t, res.RunID)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "query_date,advance_days,departure_airport_id"))
	assert.Equal(t,
		"2025-05-20,12,LAX,Los Angeles Airport,JFK,John F Kennedy Airport,2025-06-01,9:05 AM,12:30 PM,Delta,,,,,,,,Economy,325,350000,CLP,One way,108,-12,Nonstop",
		lines[1])
}

func TestPipeline_IngestCardsSkipsAndCollapses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "text.csv")
	session := textSession(t, path)

	cards := []string{
		sampleCard,
		"Delta CLP 350.000",
		sampleCard,
		strings.Replace(sampleCard, "9:05 AM", "7:40 AM", 1),
	}
	res, err := session.IngestCards(context.Background(), sampleContext, cards)
	require.NoError(t, err)

	assert.Equal(t, 4, res.Received)
	assert.Equal(t, 3, res.Parsed)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, 2, res.Written)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, 1, res.Diagnostics[0].Index)
	assert.Contains(t, res.Diagnostics[0].Reason, offers.ErrIncompleteBlock.Error())
}

func TestPipeline_DedupAcrossSessions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "text.csv")

	first := textSession(t, path)
	res, err := first.IngestCards(context.Background(), sampleContext, []string{sampleCard})
	require.NoError(t, err)
	require.Equal(t, 1, res.Written)

	second := textSession(t, path)
	assert.Equal(t, 1, second.Known())
	res, err = second.IngestCards(context.Background(), sampleContext, []string{sampleCard})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Written)
	assert.Equal(t, 1, res.Duplicates)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))
}

func TestPipeline_SinkFailureForgetsKeys(t *testing.T) {
	sink := new(mockSink)
	sink.On("Append", mock.Anything, mock.Anything).Return(0, errors.New("disk full")).Once()
	sink.On("Append", mock.Anything, mock.Anything).Return(1, nil).Once()

	session, err := NewSession(context.Background(), offers.ModeText, Options{Parser: testParser(t), Logger: logger.Nop()}, sink, nil)
	require.NoError(t, err)

	_, err = session.IngestCards(context.Background(), sampleContext, []string{sampleCard})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 0, session.Known())

	res, err := session.IngestCards(context.Background(), sampleContext, []string{sampleCard})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Written)
	assert.Equal(t, 1, session.Known())
	sink.AssertExpectations(t)
}

func TestPipeline_IngestAPI(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api.csv")
	w := storage.NewCSVWriter(path, offers.APISchema())
	session, err := NewSession(context.Background(), offers.ModeAPI, Options{Logger: logger.Nop()}, w, w)
	require.NoError(t, err)

	resp := offers.APIResponse{BestFlights: []offers.FlightGroup{{
		Flights: []offers.APILeg{
			{
				DepartureAirport: offers.APIAirport{ID: "SCL", Name: "Arturo Merino Benítez International Airport", Time: "2025-06-01 08:10"},
				ArrivalAirport:   offers.APIAirport{ID: "LIM", Name: "Jorge Chávez International Airport", Time: "2025-06-01 10:05"},
				Airline:          "LATAM",
				FlightNumber:     "LA 532",
			},
			{
				DepartureAirport: offers.APIAirport{ID: "LIM", Time: "2025-06-01 11:40"},
				ArrivalAirport:   offers.APIAirport{ID: "MIA", Time: "2025-06-01 17:30"},
				Airline:          "LATAM",
				FlightNumber:     "LA 2400",
			},
			{
				DepartureAirport: offers.APIAirport{ID: "MIA"},
				ArrivalAirport:   offers.APIAirport{ID: "JFK"},
				FlightNumber:     "AA 1",
			},
		},
	}}}
	sc := offers.SearchContext{Origin: "SCL", Destination: "JFK", QueryDate: "2025-05-20"}

	res, err := session.IngestAPI(context.Background(), sc, resp)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Received)
	assert.Equal(t, 2, res.Parsed)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 2, res.Written)

	res, err = session.IngestAPI(context.Background(), sc, resp)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Duplicates)
	assert.Equal(t, 0, res.Written)
}

func TestPipeline_ModeMismatch(t *testing.T) {
	sink := new(mockSink)
	session, err := NewSession(context.Background(), offers.ModeAPI, Options{Logger: logger.Nop()}, sink, nil)
	require.NoError(t, err)

	_, err = session.IngestCards(context.Background(), sampleContext, []string{sampleCard})
	assert.True(t, errors.Is(err, ErrModeMismatch))
	sink.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestNewSession_Validation(t *testing.T) {
	_, err := NewSession(context.Background(), offers.ModeText, Options{}, new(mockSink), nil)
	assert.Error(t, err)

	_, err = NewSession(context.Background(), offers.ModeAPI, Options{}, nil, nil)
	assert.Error(t, err)
}

type failingLoader struct{}

func (failingLoader) LoadKeys(context.Context, offers.KeyStrategy) ([]offers.DedupKey, error) {
	return nil, errors.New("unreadable")
}

func TestNewSession_LoaderError(t *testing.T) {
	_, err := NewSession(context.Background(), offers.ModeAPI, Options{Logger: logger.Nop()}, new(mockSink), failingLoader{})
	assert.ErrorContains(t, err, "unreadable")
}

func TestPipeline_RunIDFromContext(t *testing.T) {
	sink := new(mockSink)
	sink.On("Append", mock.Anything, mock.Anything).Return(0, nil)
	session, err := NewSession(context.Background(), offers.ModeText, Options{Parser: testParser(t), Logger: logger.Nop()}, sink, nil)
	require.NoError(t, err)

	ctx := logger.ContextWithRunID(context.Background(), "run-42")
	res, err := session.IngestCards(ctx, sampleContext, nil)
	require.NoError(t, err)
	assert.Equal(t, "run-42", res.RunID)
}
