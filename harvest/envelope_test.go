package harvest

import (
	"context"
	"errors"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gilby125/flight-offers-harvester/config"
	"github.com/gilby125/flight-offers-harvester/offers"
	"github.com/gilby125/flight-offers-harvester/pkg/logger"
	"github.com/gilby125/flight-offers-harvester/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope(t *testing.T) {
	env, err := DecodeEnvelope(strings.NewReader(`{
		"mode": "TEXT",
		"context": {"origin": "LAX", "destination": "JFK", "departure_date": "2025-06-01"},
		"cards": ["card one", "card two"]
	}`))
	require.NoError(t, err)
	assert.Equal(t, offers.ModeText, env.Mode)
	assert.Equal(t, "LAX", env.Context.Origin)
	assert.Len(t, env.Cards, 2)

	env, err = DecodeEnvelope(strings.NewReader(`{"mode": "api", "context": {}, "response": {"best_flights": []}}`))
	require.NoError(t, err)
	assert.Equal(t, offers.ModeAPI, env.Mode)
	require.NotNil(t, env.Response)
}

func TestDecodeEnvelope_Invalid(t *testing.T) {
	tests := map[string]string{
		"not json":          `{`,
		"unknown mode":      `{"mode": "html"}`,
		"api without body":  `{"mode": "api"}`,
		"api with cards":    `{"mode": "api", "response": {}, "cards": ["x"]}`,
		"text with payload": `{"mode": "text", "response": {}}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeEnvelope(strings.NewReader(body))
			assert.True(t, errors.Is(err, ErrInvalidEnvelope), "got %v", err)
		})
	}
}

func TestService_Ingest(t *testing.T) {
	dir := t.TempDir()
	textWriter := storage.NewCSVWriter(filepath.Join(dir, "text.csv"), offers.TextSchema(4))
	textSession, err := NewSession(context.Background(), offers.ModeText, Options{Parser: testParser(t), Logger: logger.Nop()}, textWriter, textWriter)
	require.NoError(t, err)

	svc := NewService(textSession, nil)

	res, err := svc.Ingest(context.Background(), Envelope{Mode: offers.ModeText, Context: sampleContext, Cards: []string{sampleCard}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Written)

	_, err = svc.Ingest(context.Background(), Envelope{Mode: offers.ModeAPI, Response: &offers.APIResponse{}})
	assert.True(t, errors.Is(err, ErrInvalidEnvelope))

	_, ok := svc.Session(offers.ModeText)
	assert.True(t, ok)
}

func TestRandomQuery(t *testing.T) {
	today := time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC)
	rng := rand.New(rand.NewPCG(1, 2))
	pool := []string{"SCL", "LIM", "JFK"}

	for i := 0; i < 200; i++ {
		sc, err := RandomQuery(rng, today, pool, []string{"One way"}, []string{"Economy", "Business"})
		require.NoError(t, err)
		assert.NotEqual(t, sc.Origin, sc.Destination)
		assert.Contains(t, pool, sc.Origin)
		assert.Contains(t, pool, sc.Destination)
		assert.Equal(t, "One way", sc.TripType)
		assert.Equal(t, "2025-05-20", sc.QueryDate)

		dep, err := time.Parse(offers.DateLayout, sc.DepartureDate)
		require.NoError(t, err)
		days := int(dep.Sub(today).Hours() / 24)
		assert.GreaterOrEqual(t, days, MinAdvanceDays)
		assert.LessOrEqual(t, days, MaxAdvanceDays)
	}

	_, err := RandomQuery(rng, today, []string{"SCL"}, nil, nil)
	assert.Error(t, err)
}

func TestNewParser_FromConfig(t *testing.T) {
	cfg := config.TestConfig(t.TempDir())
	p, ref, err := NewParser(cfg)
	require.NoError(t, err)
	assert.Equal(t, 4, p.Slots())
	assert.NotEmpty(t, ref.RoutePool)

	cfg.ParserConfig.ReferenceFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, _, err = NewParser(cfg)
	assert.Error(t, err)
}
