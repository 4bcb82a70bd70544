// Package history keeps a SQLite ledger of calculation runs.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/arthur-debert/treecalc/types"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	document    TEXT NOT NULL,
	data        TEXT NOT NULL,
	root_value  REAL NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS run_values (
	run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	item_id  INTEGER NOT NULL,
	name     TEXT NOT NULL,
	value    REAL NOT NULL,
	PRIMARY KEY (run_id, item_id)
);
CREATE INDEX IF NOT EXISTS runs_created_at ON runs(created_at);
`

// Run is one recorded calculation
type Run struct {
	ID        string    `json:"id"`
	Document  string    `json:"document"`
	Data      string    `json:"data"`
	RootValue float64   `json:"root_value"`
	CreatedAt time.Time `json:"created_at"`
	Values    []Value   `json:"values,omitempty"` // Filled by Show only
}

// Value is the computed value of one item in a run
type Value struct {
	ItemID uint64  `json:"item_id"`
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
}

// Ledger is an open history database
type Ledger struct {
	conn *sql.DB
	now  func() time.Time
}

// Open opens or creates the ledger at path
func Open(path string) (*Ledger, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Fail early if connection is bad
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Wait up to 5s on lock instead of failing immediately
	conn.Exec("PRAGMA busy_timeout=5000")
	conn.Exec("PRAGMA foreign_keys=ON")

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Ledger{conn: conn, now: time.Now}, nil
}

// Close closes the database connection
func (l *Ledger) Close() error {
	return l.conn.Close()
}

// Record stores a run and returns its id. ID and CreatedAt are filled in when empty.
func (l *Ledger) Record(ctx context.Context, run Run) (string, error) {
	const op = "history"

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = l.now()
	}

	tx, err := l.conn.BeginTx(ctx, nil)
	if err != nil {
		return "", types.WrapError(op, types.ErrIO, fmt.Errorf("beginning transaction: %w", err))
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, document, data, root_value, created_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Document, run.Data, run.RootValue, run.CreatedAt.UnixNano()); err != nil {
		return "", types.WrapError(op, types.ErrIO, fmt.Errorf("inserting run: %w", err))
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO run_values (run_id, item_id, name, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return "", types.WrapError(op, types.ErrIO, fmt.Errorf("preparing insert: %w", err))
	}
	defer stmt.Close()

	for _, v := range run.Values {
		if _, err := stmt.ExecContext(ctx, run.ID, int64(v.ItemID), v.Name, v.Value); err != nil {
			return "", types.WrapError(op, types.ErrIO, fmt.Errorf("inserting value for %q: %w", v.Name, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return "", types.WrapError(op, types.ErrIO, fmt.Errorf("committing run: %w", err))
	}
	return run.ID, nil
}

// List returns the most recent runs first, without their values.
// A limit of zero or less returns every run.
func (l *Ledger) List(ctx context.Context, limit int) ([]Run, error) {
	const op = "history"

	query := `SELECT id, document, data, root_value, created_at FROM runs ORDER BY created_at DESC, id`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := l.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, types.WrapError(op, types.ErrIO, fmt.Errorf("querying runs: %w", err))
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, types.WrapError(op, types.ErrIO, err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, types.WrapError(op, types.ErrIO, err)
	}
	return runs, nil
}

// Show returns a run with its values ordered by item id. id may be any
// unambiguous prefix of a run id.
func (l *Ledger) Show(ctx context.Context, id string) (*Run, error) {
	const op = "history"

	if id == "" {
		return nil, types.Errorf(op, types.ErrInvalid, "run id cannot be empty")
	}

	rows, err := l.conn.QueryContext(ctx,
		`SELECT id, document, data, root_value, created_at FROM runs WHERE id LIKE ? || '%' ESCAPE '\' LIMIT 2`,
		escapeLike(id))
	if err != nil {
		return nil, types.WrapError(op, types.ErrIO, fmt.Errorf("querying run: %w", err))
	}
	var matches []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			rows.Close()
			return nil, types.WrapError(op, types.ErrIO, err)
		}
		matches = append(matches, run)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, types.WrapError(op, types.ErrIO, err)
	}

	switch len(matches) {
	case 0:
		return nil, types.Errorf(op, types.ErrNotFound, "no run %q", id)
	case 1:
	default:
		return nil, types.Errorf(op, types.ErrInvalid, "run id %q is ambiguous", id)
	}
	run := matches[0]

	vrows, err := l.conn.QueryContext(ctx,
		`SELECT item_id, name, value FROM run_values WHERE run_id = ? ORDER BY item_id`, run.ID)
	if err != nil {
		return nil, types.WrapError(op, types.ErrIO, fmt.Errorf("querying values: %w", err))
	}
	defer vrows.Close()

	run.Values = []Value{}
	for vrows.Next() {
		var v Value
		var itemID int64
		if err := vrows.Scan(&itemID, &v.Name, &v.Value); err != nil {
			return nil, types.WrapError(op, types.ErrIO, err)
		}
		v.ItemID = uint64(itemID)
		run.Values = append(run.Values, v)
	}
	if err := vrows.Err(); err != nil {
		return nil, types.WrapError(op, types.ErrIO, err)
	}
	return &run, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (Run, error) {
	var run Run
	var created int64
	if err := row.Scan(&run.ID, &run.Document, &run.Data, &run.RootValue, &created); err != nil {
		return run, fmt.Errorf("scanning run: %w", err)
	}
	run.CreatedAt = time.Unix(0, created).UTC()
	return run, nil
}

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
