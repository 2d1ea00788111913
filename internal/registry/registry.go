// Package registry maps witness identifiers to network addresses.
//
// Records carry no chain of custody: a write replaces the previous record
// outright and the only validation is well-formedness.
package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"strings"
)

// MaxIDLen bounds witness identifiers.
const MaxIDLen = 256

const schema = `
CREATE TABLE IF NOT EXISTS witness_addresses (
    witness_id TEXT PRIMARY KEY,
    record     TEXT NOT NULL
);
`

// ErrInvalid is returned for malformed witness ids or records.
var ErrInvalid = errors.New("invalid witness address")

// Record is the address a witness can be reached at.
type Record struct {
	IP string `json:"ip"`
}

// Validate checks that the record holds an ip:port address.
func (r Record) Validate() error {
	if _, err := netip.ParseAddrPort(r.IP); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// ValidateID checks a witness identifier.
func ValidateID(wid string) error {
	switch {
	case wid == "":
		return fmt.Errorf("%w: empty witness id", ErrInvalid)
	case len(wid) > MaxIDLen:
		return fmt.Errorf("%w: witness id longer than %d bytes", ErrInvalid, MaxIDLen)
	case strings.Contains(wid, "/"):
		return fmt.Errorf("%w: witness id contains '/'", ErrInvalid)
	}
	return nil
}

// Registry stores witness address records in a SQLite database, usually
// the one the event store opened.
type Registry struct {
	db *sql.DB
}

// New creates the registry table in db if needed.
func New(ctx context.Context, db *sql.DB) (*Registry, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("create registry schema: %w", err)
	}
	return &Registry{db: db}, nil
}

// Put stores rec for wid, replacing any earlier record. created reports
// whether no record existed before.
func (r *Registry) Put(ctx context.Context, wid string, rec Record) (created bool, err error) {
	if err := ValidateID(wid); err != nil {
		return false, err
	}
	if err := rec.Validate(); err != nil {
		return false, err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("put witness address: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("put witness address: begin transaction: %w", err)
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM witness_addresses WHERE witness_id = ?`, wid,
	).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		created = true
	case err != nil:
		return false, fmt.Errorf("put witness address: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO witness_addresses (witness_id, record) VALUES (?, ?)
		ON CONFLICT(witness_id) DO UPDATE SET record = excluded.record
	`, wid, string(data))
	if err != nil {
		return false, fmt.Errorf("put witness address: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("put witness address: commit: %w", err)
	}
	return created, nil
}

// Get returns the record for wid. ok is false when none is stored.
func (r *Registry) Get(ctx context.Context, wid string) (rec Record, ok bool, err error) {
	var text string
	err = r.db.QueryRowContext(ctx,
		`SELECT record FROM witness_addresses WHERE witness_id = ?`, wid,
	).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("get witness address: %w", err)
	}
	if err := json.Unmarshal([]byte(text), &rec); err != nil {
		return Record{}, false, fmt.Errorf("get witness address: %w", err)
	}
	return rec, true, nil
}

// IDs returns every stored witness id in byte order.
func (r *Registry) IDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT witness_id FROM witness_addresses ORDER BY witness_id COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("list witness ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan witness id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate witness ids: %w", err)
	}
	return ids, nil
}
