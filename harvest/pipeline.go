// Package harvest wires parsing, normalization, deduplication and storage
// into ingestion sessions, one per output target.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gilby125/flight-offers-harvester/offers"
	"github.com/gilby125/flight-offers-harvester/pkg/logger"
	"github.com/google/uuid"
)

// ErrModeMismatch is returned when a batch is sent to a session of the other
// mode.
var ErrModeMismatch = errors.New("batch mode does not match session mode")

// Sink persists accepted records. Append must be all-or-nothing per batch.
type Sink interface {
	Append(ctx context.Context, records []offers.FlightOffer) (int, error)
}

// KeyLoader reads the natural keys already persisted in a target.
type KeyLoader interface {
	LoadKeys(ctx context.Context, strategy offers.KeyStrategy) ([]offers.DedupKey, error)
}

// Result summarises one ingested batch.
type Result struct {
	RunID       string              `json:"run_id"`
	Mode        offers.Mode         `json:"mode"`
	Received    int                 `json:"received"`
	Parsed      int                 `json:"parsed"`
	Skipped     int                 `json:"skipped"`
	Duplicates  int                 `json:"duplicates"`
	Written     int                 `json:"written"`
	Diagnostics []offers.Diagnostic `json:"diagnostics,omitempty"`
}

// Options configures a session. Parser is required for text sessions.
type Options struct {
	Parser     *offers.Parser
	Normalizer *offers.Normalizer
	Strategy   offers.KeyStrategy
	Logger     *logger.Logger
}

// Pipeline is one ingestion session bound to a single output target. Batches
// are committed one at a time.
type Pipeline struct {
	mode       offers.Mode
	parser     *offers.Parser
	normalizer *offers.Normalizer
	store      *offers.DedupStore
	sink       Sink
	log        *logger.Logger

	mu sync.Mutex
}

// NewSession creates a session and seeds its dedup store once from loader.
// A nil loader starts with an empty store.
func NewSession(ctx context.Context, mode offers.Mode, opts Options, sink Sink, loader KeyLoader) (*Pipeline, error) {
	if sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	if mode == offers.ModeText && opts.Parser == nil {
		return nil, fmt.Errorf("text sessions require a parser")
	}
	if opts.Normalizer == nil {
		slots := offers.DefaultAttributionSlots
		if opts.Parser != nil {
			slots = opts.Parser.Slots()
		}
		opts.Normalizer = offers.NewNormalizer(slots)
	}
	if opts.Strategy == nil {
		opts.Strategy = offers.DefaultKeyStrategy{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}

	var existing []offers.DedupKey
	if loader != nil {
		keys, err := loader.LoadKeys(ctx, opts.Strategy)
		if err != nil {
			return nil, fmt.Errorf("failed to load persisted keys: %w", err)
		}
		existing = keys
	}

	p := &Pipeline{
		mode:       mode,
		parser:     opts.Parser,
		normalizer: opts.Normalizer,
		store:      offers.NewDedupStore(opts.Strategy, existing...),
		sink:       sink,
		log:        opts.Logger.WithField("mode", string(mode)),
	}
	p.log.Info("Ingestion session ready", "known_keys", p.store.Len())
	return p, nil
}

// Mode returns the mode of the session.
func (p *Pipeline) Mode() offers.Mode { return p.mode }

// Known returns the number of natural keys the session holds.
func (p *Pipeline) Known() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store.Len()
}

// IngestCards parses card texts, drops duplicates and appends the rest.
// Cards that cannot be parsed are skipped and reported in Diagnostics.
func (p *Pipeline) IngestCards(ctx context.Context, sc offers.SearchContext, cards []string) (Result, error) {
	res, log := p.begin(ctx, offers.ModeText)
	res.Received = len(cards)
	if p.mode != offers.ModeText {
		return res, fmt.Errorf("%w: got %s, session is %s", ErrModeMismatch, offers.ModeText, p.mode)
	}

	batch := make([]offers.FlightOffer, 0, len(cards))
	for i, card := range cards {
		frag, err := p.parser.Parse(card)
		if err == nil {
			var o offers.FlightOffer
			o, err = p.normalizer.FromFragment(sc, frag)
			if err == nil {
				batch = append(batch, o)
				continue
			}
		}
		res.Diagnostics = append(res.Diagnostics, offers.Diagnostic{Index: i, Reason: err.Error()})
		log.Debug("Skipping card", "index", i, "reason", err.Error())
	}
	res.Parsed = len(batch)
	res.Skipped = res.Received - res.Parsed

	return p.commit(ctx, log, batch, res)
}

// IngestAPI normalises every leg of an API payload, drops duplicates and
// appends the rest.
func (p *Pipeline) IngestAPI(ctx context.Context, sc offers.SearchContext, resp offers.APIResponse) (Result, error) {
	res, log := p.begin(ctx, offers.ModeAPI)
	for _, g := range resp.Groups() {
		res.Received += len(g.Flights)
	}
	if p.mode != offers.ModeAPI {
		return res, fmt.Errorf("%w: got %s, session is %s", ErrModeMismatch, offers.ModeAPI, p.mode)
	}

	batch, diags := p.normalizer.FromAPI(sc, resp)
	for _, d := range diags {
		log.Debug("Skipping leg", "index", d.Index, "segment", d.Segment, "reason", d.Reason)
	}
	res.Diagnostics = diags
	res.Parsed = len(batch)
	res.Skipped = res.Received - res.Parsed

	return p.commit(ctx, log, batch, res)
}

func (p *Pipeline) begin(ctx context.Context, mode offers.Mode) (Result, *logger.Logger) {
	runID := logger.RunIDFromContext(ctx)
	if runID == "" {
		runID = uuid.NewString()
	}
	log := p.log.WithContext(logger.ContextWithRunID(ctx, runID))
	return Result{RunID: runID, Mode: mode}, log
}

// commit filters batch against the store and appends what is new. On a sink
// failure the accepted keys are forgotten so a retry can write them.
func (p *Pipeline) commit(ctx context.Context, log *logger.Logger, batch []offers.FlightOffer, res Result) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	accepted, dups := p.store.Filter(batch)
	res.Duplicates = len(dups)
	for _, o := range dups {
		log.Debug("Dropping duplicate", "key", p.store.Key(o).String())
	}

	written, err := p.sink.Append(ctx, accepted)
	if err != nil {
		p.store.Forget(accepted)
		log.Error(err, "Failed to persist batch", "records", len(accepted))
		return res, fmt.Errorf("failed to persist batch: %w", err)
	}
	res.Written = written

	log.Info("Batch ingested",
		"received", res.Received,
		"parsed", res.Parsed,
		"skipped", res.Skipped,
		"duplicates", res.Duplicates,
		"written", res.Written,
	)
	return res, nil
}
