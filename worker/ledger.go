package worker

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"
)

const ledgerBucket = "spool_files"

// ErrNotRecorded is returned when a spool file has no ledger entry.
var ErrNotRecorded = errors.New("spool file not recorded")

// LedgerEntry records one ingested spool file.
type LedgerEntry struct {
	Name       string    `json:"name"`
	SHA256     string    `json:"sha256"`
	RunID      string    `json:"run_id"`
	Mode       string    `json:"mode"`
	Written    int       `json:"written"`
	Duplicates int       `json:"duplicates"`
	Skipped    int       `json:"skipped"`
	Error      string    `json:"error,omitempty"`
	IngestedAt time.Time `json:"ingested_at"`
}

// Ledger is a BoltDB file remembering which spool files were already
// ingested. Entries are keyed by file name and content hash, so a file that
// is rewritten with new content is ingested again.
type Ledger struct {
	db *bolt.DB
}

// OpenLedger opens (or creates) the ledger at path.
func OpenLedger(path string) (*Ledger, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open spool ledger %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(ledgerBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create ledger bucket: %w", err)
	}

	return &Ledger{db: db}, nil
}

// Close releases the database file lock.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func ledgerKey(name, sum string) []byte {
	return []byte(name + "@" + sum)
}

// Seen reports whether name with content hash sum has an entry.
func (l *Ledger) Seen(name, sum string) (bool, error) {
	seen := false
	err := l.db.View(func(tx *bolt.Tx) error {
		seen = tx.Bucket([]byte(ledgerBucket)).Get(ledgerKey(name, sum)) != nil
		return nil
	})
	return seen, err
}

// Get returns the entry for name and sum.
func (l *Ledger) Get(name, sum string) (*LedgerEntry, error) {
	var e LedgerEntry
	err := l.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(ledgerBucket)).Get(ledgerKey(name, sum))
		if v == nil {
			return ErrNotRecorded
		}
		return json.Unmarshal(v, &e)
	})
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Record stores e. An existing entry for the same file and hash is kept and
// reported with created=false.
func (l *Ledger) Record(e LedgerEntry) (created bool, err error) {
	err = l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(ledgerBucket))
		key := ledgerKey(e.Name, e.SHA256)
		if b.Get(key) != nil {
			return nil
		}
		if e.IngestedAt.IsZero() {
			e.IngestedAt = time.Now().UTC()
		}
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		created = true
		return b.Put(key, data)
	})
	return created, err
}

// List returns every entry in key order.
func (l *Ledger) List() ([]LedgerEntry, error) {
	entries := []LedgerEntry{}
	err := l.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(ledgerBucket)).ForEach(func(_, v []byte) error {
			var e LedgerEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			entries = append(entries, e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
