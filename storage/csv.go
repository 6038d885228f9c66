// Package storage persists FlightOffers to append-only CSV targets.
package storage

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gilby125/flight-offers-harvester/offers"
)

// ErrSchemaMismatch is returned when a target already holds a header that
// differs from the writer's schema.
var ErrSchemaMismatch = errors.New("existing header does not match schema")

const utf8BOM = "\ufeff"

// targetFile is the subset of *os.File the writer needs.
type targetFile interface {
	io.ReadSeeker
	io.ReaderAt
	io.Writer
	io.Closer
	Stat() (os.FileInfo, error)
	Sync() error
	Truncate(size int64) error
}

func openTarget(path string) (targetFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// CSVWriter appends records to a single CSV file. One writer owns one file;
// concurrent writers to the same path are not supported.
type CSVWriter struct {
	path   string
	schema offers.Schema
	open   func(path string) (targetFile, error)
}

// NewCSVWriter returns a writer for path using schema for every row.
func NewCSVWriter(path string, schema offers.Schema) *CSVWriter {
	return &CSVWriter{path: path, schema: schema, open: openTarget}
}

func (w *CSVWriter) Path() string { return w.path }

func (w *CSVWriter) Schema() offers.Schema { return w.schema }

// Append writes records after any existing content. The header is written
// only when the file is absent or empty. The batch is encoded in memory and
// written in one call; if the write fails the file is truncated back to its
// previous size, so a batch is either fully persisted or not at all.
func (w *CSVWriter) Append(ctx context.Context, records []offers.FlightOffer) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if dir := filepath.Dir(w.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := w.open(w.path)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", w.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", w.path, err)
	}
	size := info.Size()

	var buf bytes.Buffer
	if size > 0 {
		header, err := readHeader(f)
		if err != nil {
			return 0, fmt.Errorf("failed to read header of %s: %w", w.path, err)
		}
		if !slices.Equal(header, w.schema.Header()) {
			return 0, fmt.Errorf("%w: %s has %d columns, schema has %d", ErrSchemaMismatch, w.path, len(header), len(w.schema.Columns))
		}
		terminated, err := endsWithNewline(f, size)
		if err != nil {
			return 0, fmt.Errorf("failed to inspect %s: %w", w.path, err)
		}
		if !terminated {
			buf.WriteByte('\n')
		}
	}

	cw := csv.NewWriter(&buf)
	if size == 0 {
		if err := cw.Write(w.schema.Header()); err != nil {
			return 0, fmt.Errorf("failed to encode header: %w", err)
		}
	}
	for _, o := range records {
		if err := cw.Write(w.schema.Row(o)); err != nil {
			return 0, fmt.Errorf("failed to encode record: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("failed to encode batch: %w", err)
	}

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return 0, fmt.Errorf("failed to seek %s: %w", w.path, err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		return 0, rollback(f, size, fmt.Errorf("failed to write batch to %s: %w", w.path, err))
	}
	if err := f.Sync(); err != nil {
		return 0, rollback(f, size, fmt.Errorf("failed to sync %s: %w", w.path, err))
	}
	return len(records), nil
}

// LoadKeys returns the natural keys of every row already in the file.
func (w *CSVWriter) LoadKeys(_ context.Context, strategy offers.KeyStrategy) ([]offers.DedupKey, error) {
	return LoadCSVKeys(w.path, strategy)
}

func rollback(f targetFile, size int64, cause error) error {
	if err := f.Truncate(size); err != nil {
		return errors.Join(cause, fmt.Errorf("failed to roll back partial batch: %w", err))
	}
	return cause
}

func readHeader(r io.ReadSeeker) ([]string, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, err
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}
	return header, nil
}

func endsWithNewline(f io.ReaderAt, size int64) (bool, error) {
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil {
		return false, err
	}
	return last[0] == '\n', nil
}
