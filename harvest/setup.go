package harvest

import (
	"fmt"

	"github.com/gilby125/flight-offers-harvester/config"
	"github.com/gilby125/flight-offers-harvester/offers"
)

// NewParser builds the card parser from the loaded configuration and its
// reference data.
func NewParser(cfg *config.Config) (*offers.Parser, config.Reference, error) {
	ref, err := config.LoadReference(cfg.ParserConfig.ReferenceFile)
	if err != nil {
		return nil, config.Reference{}, err
	}
	p, err := offers.NewParser(offers.ParserConfig{
		Airlines:        ref.Airlines,
		AirportSuffixes: ref.AirportSuffixes,
		Currency:        cfg.ParserConfig.Currency,
		Slots:           cfg.ParserConfig.AttributionSlots,
	})
	if err != nil {
		return nil, config.Reference{}, fmt.Errorf("failed to build parser: %w", err)
	}
	return p, ref, nil
}
