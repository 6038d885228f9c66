package worker

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gilby125/flight-offers-harvester/harvest"
	"github.com/gilby125/flight-offers-harvester/pkg/logger"
	"github.com/robfig/cron/v3"
)

// Ingester accepts one envelope. *harvest.Service satisfies it.
type Ingester interface {
	Ingest(ctx context.Context, env harvest.Envelope) (harvest.Result, error)
}

// ScanReport summarises one pass over the spool directory.
type ScanReport struct {
	Files       int
	Ingested    int
	AlreadySeen int
	Rejected    int // malformed envelopes, recorded so they are not retried
	Failed      int // storage failures, retried on the next pass
	Written     int
}

// Spooler ingests JSON envelopes dropped into a directory. Each file is
// handled once per content hash; the ledger survives restarts.
type Spooler struct {
	dir      string
	ledger   *Ledger
	ingester Ingester
	cron     *cron.Cron
	mu       sync.Mutex
	log      *logger.Logger
	onReport func(context.Context, ScanReport)
}

// NewSpooler creates a spooler over dir.
func NewSpooler(dir string, ledger *Ledger, ingester Ingester) *Spooler {
	return &Spooler{
		dir:      dir,
		ledger:   ledger,
		ingester: ingester,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		log:      logger.WithField("spool_dir", dir),
	}
}

// Start schedules Scan with the given cron expression and starts the cron
// runner. Scans never overlap.
func (s *Spooler) Start(ctx context.Context, schedule string) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create spool directory: %w", err)
	}
	_, err := s.cron.AddFunc(schedule, func() {
		if _, err := s.Scan(ctx); err != nil {
			s.log.Error(err, "Spool scan failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.cron.Start()
	s.log.Info("Spooler started", "schedule", schedule)
	return nil
}

// OnReport registers fn to run after every scan that rejected or failed a
// file.
func (s *Spooler) OnReport(fn func(context.Context, ScanReport)) {
	s.onReport = fn
}

// Stop stops the cron runner and waits for a running scan to finish.
func (s *Spooler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("Spooler stopped")
}

// Scan ingests every new *.json file in the directory, in name order.
func (s *Spooler) Scan(ctx context.Context) (ScanReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var report ScanReport
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return report, nil
		}
		return report, fmt.Errorf("failed to read spool directory: %w", err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		name := entry.Name()
		if !entry.Type().IsRegular() || !strings.EqualFold(filepath.Ext(name), ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		report.Files++

		if err := s.ingestFile(ctx, name, &report); err != nil {
			return report, err
		}
	}

	if report.Ingested > 0 || report.Failed > 0 || report.Rejected > 0 {
		s.log.Info("Spool scan complete",
			"files", report.Files,
			"ingested", report.Ingested,
			"already_seen", report.AlreadySeen,
			"rejected", report.Rejected,
			"failed", report.Failed,
			"written", report.Written,
		)
	}
	if s.onReport != nil && (report.Failed > 0 || report.Rejected > 0) {
		s.onReport(ctx, report)
	}
	return report, nil
}

// ingestFile returns an error only for ledger failures; envelope and
// storage problems are counted on the report.
func (s *Spooler) ingestFile(ctx context.Context, name string, report *ScanReport) error {
	log := s.log.WithField("file", name)

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		log.Error(err, "Failed to read spool file")
		report.Failed++
		return nil
	}
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])

	seen, err := s.ledger.Seen(name, digest)
	if err != nil {
		return fmt.Errorf("failed to query spool ledger: %w", err)
	}
	if seen {
		report.AlreadySeen++
		return nil
	}

	entry := LedgerEntry{Name: name, SHA256: digest}
	env, err := harvest.DecodeEnvelope(bytes.NewReader(data))
	if err == nil {
		entry.Mode = string(env.Mode)
		var res harvest.Result
		res, err = s.ingester.Ingest(ctx, env)
		entry.RunID = res.RunID
		entry.Written = res.Written
		entry.Duplicates = res.Duplicates
		entry.Skipped = res.Skipped
		report.Written += res.Written
	}

	switch {
	case err == nil:
		report.Ingested++
	case errors.Is(err, harvest.ErrInvalidEnvelope), errors.Is(err, harvest.ErrModeMismatch):
		log.Warn("Rejecting spool file", "error", err)
		entry.Error = err.Error()
		report.Rejected++
	default:
		log.Error(err, "Failed to ingest spool file; will retry")
		report.Failed++
		return nil
	}

	if _, err := s.ledger.Record(entry); err != nil {
		return fmt.Errorf("failed to record spool file: %w", err)
	}
	return nil
}
