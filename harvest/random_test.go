package harvest

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/gilby125/flight-offers-harvester/offers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomQuery(t *testing.T) {
	today := time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC)
	pool := []string{"SCL", "LIM", "GRU"}
	rng := rand.New(rand.NewPCG(1, 2))

	for i := 0; i < 200; i++ {
		sc, err := RandomQuery(rng, today, pool, []string{"One way"}, []string{"Economy", "Business"})
		require.NoError(t, err)

		assert.NotEqual(t, sc.Origin, sc.Destination)
		assert.Contains(t, pool, sc.Origin)
		assert.Contains(t, pool, sc.Destination)
		assert.Equal(t, "2025-05-20", sc.QueryDate)
		assert.Equal(t, "One way", sc.TripType)
		assert.Contains(t, []string{"Economy", "Business"}, sc.CabinClass)

		dep, err := time.Parse(offers.DateLayout, sc.DepartureDate)
		require.NoError(t, err)
		days := int(dep.Sub(today).Hours() / 24)
		assert.GreaterOrEqual(t, days, MinAdvanceDays)
		assert.LessOrEqual(t, days, MaxAdvanceDays)
	}
}

func TestRandomQuery_Deterministic(t *testing.T) {
	today := time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC)
	pool := []string{"SCL", "LIM", "GRU", "EZE"}

	a, err := RandomQuery(rand.New(rand.NewPCG(7, 7)), today, pool, nil, nil)
	require.NoError(t, err)
	b, err := RandomQuery(rand.New(rand.NewPCG(7, 7)), today, pool, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Empty(t, a.TripType)
}

func TestRandomQuery_SmallPool(t *testing.T) {
	_, err := RandomQuery(nil, time.Now(), []string{"SCL"}, nil, nil)
	require.Error(t, err)
}
