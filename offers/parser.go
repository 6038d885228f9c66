package offers

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrIncompleteBlock means a card lacked the times or airports that every
// record needs. The caller skips the card.
var ErrIncompleteBlock = errors.New("incomplete flight block")

// Fragment is what a single card yields before the search context is
// attached.
type Fragment struct {
	DepartureTime        string
	ArrivalTime          string
	DurationMin          *int
	Departure            AirportRef
	Arrival              AirportRef
	Attributions         []Attribution
	Price                *int
	Currency             string
	EmissionsKg          *int
	EmissionsDiffPercent *int
	Stops                Stops
}

// ParserConfig holds the reference data a Parser is built from.
type ParserConfig struct {
	Airlines        []string
	AirportSuffixes []string
	Currency        string
	Slots           int
}

// Parser turns card texts into Fragments. It holds only compiled patterns
// and the airline matcher, so Parse is pure and safe for concurrent use.
type Parser struct {
	airlines *AirlineMatcher
	airports *regexp.Regexp
	price    *regexp.Regexp
	currency string
}

// NewParser compiles the configured patterns.
func NewParser(cfg ParserConfig) (*Parser, error) {
	airports, err := AirportPattern(cfg.AirportSuffixes)
	if err != nil {
		return nil, fmt.Errorf("failed to build airport pattern: %w", err)
	}
	price, err := PricePattern(cfg.Currency)
	if err != nil {
		return nil, fmt.Errorf("failed to build price pattern: %w", err)
	}
	return &Parser{
		airlines: NewAirlineMatcher(cfg.Airlines, cfg.Slots),
		airports: airports,
		price:    price,
		currency: strings.ToUpper(strings.TrimSpace(cfg.Currency)),
	}, nil
}

// Slots returns the number of attribution slots in every Fragment.
func (p *Parser) Slots() int { return p.airlines.Slots() }

// Parse extracts one Fragment from a card text. Optional fields that are not
// found stay nil; missing times or airports fail with ErrIncompleteBlock.
func (p *Parser) Parse(text string) (Fragment, error) {
	dep, arr, ok := ExtractTimes(text)
	if !ok {
		return Fragment{}, fmt.Errorf("%w: departure and arrival times not found", ErrIncompleteBlock)
	}
	from, to, ok := ExtractAirports(p.airports, text)
	if !ok {
		return Fragment{}, fmt.Errorf("%w: departure and arrival airports not found", ErrIncompleteBlock)
	}

	return Fragment{
		DepartureTime:        dep,
		ArrivalTime:          arr,
		DurationMin:          ExtractDuration(text),
		Departure:            from,
		Arrival:              to,
		Attributions:         p.airlines.Match(text),
		Price:                ExtractPrice(p.price, text),
		Currency:             p.currency,
		EmissionsKg:          ExtractEmissions(text),
		EmissionsDiffPercent: ExtractEmissionsDiff(text),
		Stops:                ExtractStops(text),
	}, nil
}
