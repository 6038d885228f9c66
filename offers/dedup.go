package offers

import (
	"fmt"
	"strconv"
	"strings"
)

const keySeparator = "|"

// DedupKey is the natural key of a record. Records with a flight number use
// (flight number, departure date, segment index); the rest fall back to
// (departure airport, arrival airport, departure date, departure time).
type DedupKey struct {
	FlightNumber     string
	DepartureDate    string
	SegmentIndex     int
	DepartureAirport string
	ArrivalAirport   string
	DepartureTime    string
}

// IsFlightKey reports whether k is the flight-number form.
func (k DedupKey) IsFlightKey() bool { return k.FlightNumber != "" }

// String returns the stable text form of k, as stored in the natural_key
// column of database sinks.
func (k DedupKey) String() string {
	if k.IsFlightKey() {
		return strings.Join([]string{"flight", k.FlightNumber, k.DepartureDate, strconv.Itoa(k.SegmentIndex)}, keySeparator)
	}
	return strings.Join([]string{"route", k.DepartureAirport, k.ArrivalAirport, k.DepartureDate, k.DepartureTime}, keySeparator)
}

// ParseDedupKey parses the output of DedupKey.String.
func ParseDedupKey(s string) (DedupKey, error) {
	parts := strings.Split(s, keySeparator)
	switch {
	case len(parts) == 4 && parts[0] == "flight":
		idx, err := strconv.Atoi(parts[3])
		if err != nil {
			return DedupKey{}, fmt.Errorf("invalid segment index in key %q: %w", s, err)
		}
		return DedupKey{FlightNumber: parts[1], DepartureDate: parts[2], SegmentIndex: idx}, nil
	case len(parts) == 5 && parts[0] == "route":
		return DedupKey{DepartureAirport: parts[1], ArrivalAirport: parts[2], DepartureDate: parts[3], DepartureTime: parts[4]}, nil
	default:
		return DedupKey{}, fmt.Errorf("malformed dedup key %q", s)
	}
}

// KeyStrategy derives natural keys from new records and from rows already
// persisted in a target.
type KeyStrategy interface {
	OfferKey(o FlightOffer) DedupKey
	// RowKey returns false when the row carries neither key form.
	RowKey(row map[string]string) (DedupKey, bool)
}

// DefaultKeyStrategy prefers the flight-number key and silently falls back to
// the route key.
type DefaultKeyStrategy struct{}

func (DefaultKeyStrategy) OfferKey(o FlightOffer) DedupKey {
	if o.Leg != nil {
		if fn := strings.TrimSpace(o.Leg.FlightNumber); fn != "" {
			return DedupKey{FlightNumber: fn, DepartureDate: o.DepartureDate, SegmentIndex: o.Leg.SegmentIndex}
		}
	}
	return DedupKey{
		DepartureAirport: o.Departure.Code,
		ArrivalAirport:   o.Arrival.Code,
		DepartureDate:    o.DepartureDate,
		DepartureTime:    o.DepartureTime,
	}
}

func (DefaultKeyStrategy) RowKey(row map[string]string) (DedupKey, bool) {
	date := strings.TrimSpace(row[ColDepartureDate])
	if fn := strings.TrimSpace(row[ColFlightNumber]); fn != "" && date != "" {
		idx, err := strconv.Atoi(strings.TrimSpace(row[ColSegmentIndex]))
		if err == nil {
			return DedupKey{FlightNumber: fn, DepartureDate: date, SegmentIndex: idx}, true
		}
	}

	dep := strings.TrimSpace(row[ColDepartureAirport])
	arr := strings.TrimSpace(row[ColArrivalAirport])
	depTime := strings.TrimSpace(row[ColDepartureTime])
	if dep == "" || arr == "" || date == "" || depTime == "" {
		return DedupKey{}, false
	}
	return DedupKey{DepartureAirport: dep, ArrivalAirport: arr, DepartureDate: date, DepartureTime: depTime}, true
}

// DedupStore is the set of natural keys known for one output target. It is
// owned by a single pipeline session and is not safe for concurrent use.
type DedupStore struct {
	strategy KeyStrategy
	seen     map[string]struct{}
}

// NewDedupStore returns a store seeded with existing keys. A nil strategy
// means DefaultKeyStrategy.
func NewDedupStore(strategy KeyStrategy, existing ...DedupKey) *DedupStore {
	if strategy == nil {
		strategy = DefaultKeyStrategy{}
	}
	s := &DedupStore{strategy: strategy, seen: make(map[string]struct{}, len(existing))}
	for _, k := range existing {
		s.seen[k.String()] = struct{}{}
	}
	return s
}

// Strategy returns the key strategy of the store.
func (s *DedupStore) Strategy() KeyStrategy { return s.strategy }

// Key returns the natural key of o under the store's strategy.
func (s *DedupStore) Key(o FlightOffer) DedupKey { return s.strategy.OfferKey(o) }

// Seen reports whether k is already known.
func (s *DedupStore) Seen(k DedupKey) bool {
	_, ok := s.seen[k.String()]
	return ok
}

// Filter splits batch into records with unseen keys and duplicates. Accepted
// keys are inserted immediately, so a key repeated inside the batch is kept
// only once.
func (s *DedupStore) Filter(batch []FlightOffer) (accepted, duplicates []FlightOffer) {
	for _, o := range batch {
		k := s.Key(o).String()
		if _, ok := s.seen[k]; ok {
			duplicates = append(duplicates, o)
			continue
		}
		s.seen[k] = struct{}{}
		accepted = append(accepted, o)
	}
	return accepted, duplicates
}

// Forget removes the keys of batch, undoing Filter after a failed write.
func (s *DedupStore) Forget(batch []FlightOffer) {
	for _, o := range batch {
		delete(s.seen, s.Key(o).String())
	}
}

// Len returns the number of known keys.
func (s *DedupStore) Len() int { return len(s.seen) }
