package main

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gilby125/flight-offers-harvester/harvest"
	"github.com/gilby125/flight-offers-harvester/offers"
	"github.com/gilby125/flight-offers-harvester/pkg/logger"
	"github.com/gilby125/flight-offers-harvester/sources/serpapi"
	"github.com/spf13/cobra"
)

var searchFlags struct {
	from, to, date  string
	cabin, tripType string
	currency        string
	random          bool
	count           int
	seed            uint64
	rawOut          string
}

func init() {
	f := searchCmd.Flags()
	f.StringVar(&searchFlags.from, "from", "", "origin IATA code")
	f.StringVar(&searchFlags.to, "to", "", "destination IATA code")
	f.StringVar(&searchFlags.date, "date", "", "departure date (YYYY-MM-DD)")
	f.StringVar(&searchFlags.cabin, "cabin", "Economy", "cabin class")
	f.StringVar(&searchFlags.tripType, "trip-type", "One way", "trip type recorded with each offer")
	f.StringVar(&searchFlags.currency, "currency", "", "price currency requested from the provider")
	f.BoolVar(&searchFlags.random, "random", false, "pick route, date, cabin and trip type at random")
	f.IntVar(&searchFlags.count, "count", 1, "number of queries to run")
	f.Uint64Var(&searchFlags.seed, "seed", 0, "random seed (0 picks one from the clock)")
	f.StringVar(&searchFlags.rawOut, "raw-out", "", "write the last raw provider response to this file")
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Queries the flight-search API and ingests the offers.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if !searchFlags.random && (searchFlags.from == "" || searchFlags.to == "" || searchFlags.date == "") {
			return errors.New("--from, --to and --date are required unless --random is set")
		}
		if searchFlags.count < 1 {
			return errors.New("--count must be at least 1")
		}

		client, err := serpapi.New(cfg.SerpAPIConfig)
		if err != nil {
			return err
		}
		rt, err := newRuntime(ctx, cfg, nil, offers.ModeAPI)
		if err != nil {
			return err
		}
		defer rt.Close()

		seed := searchFlags.seed
		if seed == 0 {
			seed = uint64(time.Now().UnixNano())
		}
		rng := rand.New(rand.NewPCG(seed, seed>>1))

		rows := make([]batchRow, 0, searchFlags.count)
		var failure error
		for i := 0; i < searchFlags.count && failure == nil; i++ {
			sc, err := nextQuery(rng, rt)
			if err != nil {
				return err
			}
			source := fmt.Sprintf("%s-%s %s", sc.Origin, sc.Destination, sc.DepartureDate)
			log := logger.WithField("route", source)

			resp, raw, err := client.Search(ctx, sc)
			if searchFlags.rawOut != "" && len(raw) > 0 {
				if werr := writeRaw(searchFlags.rawOut, raw); werr != nil {
					log.Error(werr, "Failed to write raw response")
				}
			}
			if err != nil {
				log.Error(err, "Search failed")
				rows = append(rows, batchRow{Source: source, Error: err.Error()})
				continue
			}

			res, err := rt.service.Ingest(ctx, harvest.Envelope{Mode: offers.ModeAPI, Context: sc, Response: &resp})
			row := batchRow{Source: source, Result: res}
			if err != nil {
				row.Error = err.Error()
				failure = err
			}
			rows = append(rows, row)
		}

		if err := renderResults(cmd.OutOrStdout(), outFormat, rows); err != nil {
			return err
		}
		if outFormat != "json" {
			renderDiagnostics(cmd.OutOrStdout(), rows)
		}
		return failure
	},
}

func nextQuery(rng *rand.Rand, rt *runtime) (offers.SearchContext, error) {
	if searchFlags.random {
		sc, err := harvest.RandomQuery(rng, time.Now(), rt.ref.RoutePool, rt.ref.TripTypes, rt.ref.CabinClasses)
		if err != nil {
			return offers.SearchContext{}, err
		}
		sc.Currency = searchFlags.currency
		return sc, nil
	}
	if _, err := time.Parse(offers.DateLayout, searchFlags.date); err != nil {
		return offers.SearchContext{}, fmt.Errorf("invalid --date %q: %w", searchFlags.date, err)
	}
	return offers.SearchContext{
		Origin:        strings.ToUpper(searchFlags.from),
		Destination:   strings.ToUpper(searchFlags.to),
		DepartureDate: searchFlags.date,
		CabinClass:    searchFlags.cabin,
		TripType:      searchFlags.tripType,
		Currency:      searchFlags.currency,
	}, nil
}

func writeRaw(path string, raw []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}
