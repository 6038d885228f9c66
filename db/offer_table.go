package db

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/gilby125/flight-offers-harvester/offers"
	"github.com/lib/pq"
)

const naturalKeyColumn = "natural_key"

// OfferTable is a Postgres output target. Every schema column is stored as
// TEXT next to a unique natural_key column, so the table mirrors the CSV
// target row for row and a second writer can never insert the same key.
type OfferTable struct {
	db       *sql.DB
	table    string
	schema   offers.Schema
	strategy offers.KeyStrategy
}

// NewOfferTable returns a sink writing schema rows into table.
func NewOfferTable(db *sql.DB, table string, schema offers.Schema, strategy offers.KeyStrategy) *OfferTable {
	if strategy == nil {
		strategy = offers.DefaultKeyStrategy{}
	}
	return &OfferTable{db: db, table: table, schema: schema, strategy: strategy}
}

// CreateTableSQL returns the DDL for the table.
func (t *OfferTable) CreateTableSQL() string {
	cols := make([]string, 0, len(t.schema.Columns)+3)
	cols = append(cols, "id BIGSERIAL PRIMARY KEY")
	cols = append(cols, pq.QuoteIdentifier(naturalKeyColumn)+" TEXT NOT NULL UNIQUE")
	for _, name := range t.schema.Header() {
		cols = append(cols, pq.QuoteIdentifier(name)+" TEXT")
	}
	cols = append(cols, "created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP")
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", pq.QuoteIdentifier(t.table), strings.Join(cols, ",\n\t"))
}

// InsertSQL returns the parameterised insert statement. Rows whose natural
// key already exists are ignored.
func (t *OfferTable) InsertSQL() string {
	header := t.schema.Header()
	cols := make([]string, 0, len(header)+1)
	params := make([]string, 0, len(header)+1)
	cols = append(cols, pq.QuoteIdentifier(naturalKeyColumn))
	params = append(params, "$1")
	for i, name := range header {
		cols = append(cols, pq.QuoteIdentifier(name))
		params = append(params, fmt.Sprintf("$%d", i+2))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING",
		pq.QuoteIdentifier(t.table), strings.Join(cols, ", "), strings.Join(params, ", "), pq.QuoteIdentifier(naturalKeyColumn))
}

// EnsureTable creates the table when it does not exist.
func (t *OfferTable) EnsureTable(ctx context.Context) error {
	if _, err := t.db.ExecContext(ctx, t.CreateTableSQL()); err != nil {
		return fmt.Errorf("failed to create table %s: %w", t.table, err)
	}
	return nil
}

// Append inserts records in one transaction. The transaction holds an
// advisory lock on the table name so writers to the same target serialise.
// It returns the number of rows actually inserted.
func (t *OfferTable) Append(ctx context.Context, records []offers.FlightOffer) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // no-op after commit

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, t.lockID()); err != nil {
		return 0, fmt.Errorf("failed to lock %s: %w", t.table, err)
	}

	stmt, err := tx.PrepareContext(ctx, t.InsertSQL())
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert into %s: %w", t.table, err)
	}
	defer stmt.Close()

	inserted := 0
	for _, o := range records {
		res, err := stmt.ExecContext(ctx, t.args(o)...)
		if err != nil {
			return 0, fmt.Errorf("failed to insert into %s: %w", t.table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to read rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit batch into %s: %w", t.table, err)
	}
	return inserted, nil
}

// LoadKeys returns every natural key stored in the table. Keys are stored in
// their string form, so the strategy argument is not consulted.
func (t *OfferTable) LoadKeys(ctx context.Context, _ offers.KeyStrategy) ([]offers.DedupKey, error) {
	query := fmt.Sprintf("SELECT %s FROM %s", pq.QuoteIdentifier(naturalKeyColumn), pq.QuoteIdentifier(t.table))
	rows, err := t.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query keys from %s: %w", t.table, err)
	}
	defer rows.Close()

	var keys []offers.DedupKey
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		k, err := offers.ParseDedupKey(raw)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (t *OfferTable) args(o offers.FlightOffer) []interface{} {
	row := t.schema.Row(o)
	args := make([]interface{}, 0, len(row)+1)
	args = append(args, t.strategy.OfferKey(o).String())
	for _, v := range row {
		if v == "" {
			args = append(args, nil)
			continue
		}
		args = append(args, v)
	}
	return args
}

func (t *OfferTable) lockID() int64 {
	h := fnv.New64a()
	h.Write([]byte(t.table))
	return int64(h.Sum64())
}
