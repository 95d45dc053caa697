// Package sqlite implements a tundra.ProgramStore on top of a SQLite database.
// The caller opens the database with the driver of its choice (mattn/go-sqlite3
// or modernc.org/sqlite) and calls SetupSchema once before NewStore.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/CTAG07/tundra/pkg/tundra"
)

// SetupSchema creates the program table. It is idempotent and safe to call on
// an already-initialized database.
func SetupSchema(db *sql.DB) error {
	const schemaPrograms = `
CREATE TABLE IF NOT EXISTS tundra_programs (
    program_key TEXT PRIMARY KEY,
    program_ir  BLOB NOT NULL,
    created_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
`
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.Exec(schemaPrograms); err != nil {
		return fmt.Errorf("could not create schema: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}

// Store keeps compiled programs as JSON rows. Rows are inserted once and
// never updated, so the first writer of a key wins.
type Store struct {
	db         *sql.DB
	stmtInsert *sql.Stmt
	stmtGet    *sql.Stmt
	stmtCount  *sql.Stmt
	logger     *slog.Logger
}

// NewStore prepares the statements used by the store. SetupSchema must have
// been called on db.
func NewStore(db *sql.DB) (*Store, error) {
	stmtInsert, err := db.Prepare(`INSERT OR IGNORE INTO tundra_programs (program_key, program_ir) VALUES (?, ?);`)
	if err != nil {
		return nil, err
	}
	stmtGet, err := db.Prepare(`SELECT program_ir FROM tundra_programs WHERE program_key = ?;`)
	if err != nil {
		return nil, err
	}
	stmtCount, err := db.Prepare(`SELECT COUNT(*) FROM tundra_programs;`)
	if err != nil {
		return nil, err
	}
	return &Store{
		db:         db,
		stmtInsert: stmtInsert,
		stmtGet:    stmtGet,
		stmtCount:  stmtCount,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

// Close releases the prepared statements. It does not close the database.
func (s *Store) Close() {
	_ = s.stmtInsert.Close()
	_ = s.stmtGet.Close()
	_ = s.stmtCount.Close()
}

// SetLogger sets the logger for the Store. By default, all logs are discarded.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetIfAbsent implements tundra.ProgramStore.
func (s *Store) SetIfAbsent(ctx context.Context, key string, p *tundra.Program) (bool, error) {
	ir, err := json.Marshal(p)
	if err != nil {
		return false, fmt.Errorf("encoding program %s: %w", key, err)
	}
	res, err := s.stmtInsert.ExecContext(ctx, key, ir)
	if err != nil {
		return false, fmt.Errorf("inserting program %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	s.logger.Debug("Stored program", "key", key, "inserted", n == 1, "bytes", len(ir))
	return n == 1, nil
}

// Get implements tundra.ProgramStore.
func (s *Store) Get(ctx context.Context, key string) (*tundra.Program, error) {
	var ir []byte
	err := s.stmtGet.QueryRowContext(ctx, key).Scan(&ir)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", tundra.ErrNotCached, key)
	}
	if err != nil {
		return nil, fmt.Errorf("reading program %s: %w", key, err)
	}
	var p tundra.Program
	if err := json.Unmarshal(ir, &p); err != nil {
		return nil, fmt.Errorf("decoding program %s: %w", key, err)
	}
	return &p, nil
}

// Len returns the number of stored programs.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.stmtCount.QueryRowContext(ctx).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
