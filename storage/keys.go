package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gilby125/flight-offers-harvester/offers"
)

// LoadCSVKeys reads the natural keys of every row in an existing CSV target.
// A missing file yields no keys. Rows from which no key can be built are
// ignored.
func LoadCSVKeys(path string, strategy offers.KeyStrategy) ([]offers.DedupKey, error) {
	if strategy == nil {
		strategy = offers.DefaultKeyStrategy{}
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.TrimPrefix(h, utf8BOM)
	}

	var keys []offers.DedupKey
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		row := make(map[string]string, len(columns))
		for i, col := range columns {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		if k, ok := strategy.RowKey(row); ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}
