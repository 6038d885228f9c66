package harvest

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/gilby125/flight-offers-harvester/offers"
)

// Query window used when picking a random departure date, in days from today.
const (
	MinAdvanceDays = 5
	MaxAdvanceDays = 60
)

// RandomQuery picks two distinct airports from pool, a departure date
// between MinAdvanceDays and MaxAdvanceDays after today, and a trip type and
// cabin class from the given choices.
func RandomQuery(rng *rand.Rand, today time.Time, pool, tripTypes, cabins []string) (offers.SearchContext, error) {
	if len(pool) < 2 {
		return offers.SearchContext{}, fmt.Errorf("route pool needs at least two airports, has %d", len(pool))
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}

	i := rng.IntN(len(pool))
	j := rng.IntN(len(pool) - 1)
	if j >= i {
		j++
	}

	days := MinAdvanceDays + rng.IntN(MaxAdvanceDays-MinAdvanceDays+1)
	sc := offers.SearchContext{
		Origin:        pool[i],
		Destination:   pool[j],
		DepartureDate: today.AddDate(0, 0, days).Format(offers.DateLayout),
		QueryDate:     today.Format(offers.DateLayout),
	}
	if len(tripTypes) > 0 {
		sc.TripType = tripTypes[rng.IntN(len(tripTypes))]
	}
	if len(cabins) > 0 {
		sc.CabinClass = cabins[rng.IntN(len(cabins))]
	}
	return sc, nil
}
