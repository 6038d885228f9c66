package harvest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/gilby125/flight-offers-harvester/offers"
)

// ErrInvalidEnvelope is returned for envelopes that cannot be routed.
var ErrInvalidEnvelope = errors.New("invalid envelope")

// Envelope is the unit of work shared by the HTTP API, the spool directory
// and the CLI: a search context plus either card texts or an API payload.
type Envelope struct {
	Mode     offers.Mode          `json:"mode"`
	Context  offers.SearchContext `json:"context"`
	Cards    []string             `json:"cards,omitempty"`
	Response *offers.APIResponse  `json:"response,omitempty"`
}

// Validate checks that the envelope carries the input its mode needs.
func (e *Envelope) Validate() error {
	mode, err := offers.ParseMode(string(e.Mode))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	e.Mode = mode

	switch mode {
	case offers.ModeText:
		if e.Response != nil {
			return fmt.Errorf("%w: text envelopes carry cards, not a response", ErrInvalidEnvelope)
		}
	case offers.ModeAPI:
		if e.Response == nil {
			return fmt.Errorf("%w: api envelopes need a response", ErrInvalidEnvelope)
		}
		if len(e.Cards) > 0 {
			return fmt.Errorf("%w: api envelopes carry a response, not cards", ErrInvalidEnvelope)
		}
	}
	return nil
}

// DecodeEnvelope reads and validates one JSON envelope.
func DecodeEnvelope(r io.Reader) (Envelope, error) {
	var env Envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Service routes envelopes to the session of their mode.
type Service struct {
	sessions map[offers.Mode]*Pipeline
}

// NewService returns a Service over the given sessions. Nil sessions are
// ignored, so a deployment can serve a single mode.
func NewService(sessions ...*Pipeline) *Service {
	s := &Service{sessions: make(map[offers.Mode]*Pipeline, len(sessions))}
	for _, p := range sessions {
		if p != nil {
			s.sessions[p.Mode()] = p
		}
	}
	return s
}

// Session returns the session for mode, if configured.
func (s *Service) Session(mode offers.Mode) (*Pipeline, bool) {
	p, ok := s.sessions[mode]
	return p, ok
}

// Ingest validates env and hands it to the matching session.
func (s *Service) Ingest(ctx context.Context, env Envelope) (Result, error) {
	if err := env.Validate(); err != nil {
		return Result{}, err
	}
	p, ok := s.sessions[env.Mode]
	if !ok {
		return Result{}, fmt.Errorf("%w: no %s session configured", ErrInvalidEnvelope, env.Mode)
	}
	if env.Mode == offers.ModeAPI {
		return p.IngestAPI(ctx, env.Context, *env.Response)
	}
	return p.IngestCards(ctx, env.Context, env.Cards)
}
