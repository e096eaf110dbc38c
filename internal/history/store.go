// Package history records completed batch runs in a local SQLite database.
//
// History is observability only: recording failures are surfaced as warnings
// by the caller and never influence the batch verdict. The database lives
// under the examples directory by default (.exrun/history.db) and can be
// relocated with the EXRUN_HISTORY environment variable.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/vre-tools/exrun/internal/batch"
)

//go:embed schema.sql
var schemaSQL string

// EnvDir overrides the database location when set.
const EnvDir = "EXRUN_HISTORY"

// timeLayout pads nanoseconds to a fixed width so stored timestamps sort
// lexically; RFC3339Nano drops trailing zeros and breaks string ordering
// within a second.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrRunNotFound is returned when a run id does not exist.
var ErrRunNotFound = errors.New("run not found")

// Run is one recorded batch run.
type Run struct {
	ID          string    `json:"id"`
	ExamplesDir string    `json:"examples_dir"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Verdict     int       `json:"verdict"`
	ExitStatus  int       `json:"exit_status"`
	Passed      int       `json:"passed"`
	Failed      int       `json:"failed"`
	Total       int       `json:"total"`
	Cases       []RunCase `json:"cases,omitempty"`
}

// RunCase is one case within a recorded run.
type RunCase struct {
	Name      string `json:"name"`
	ExitCode  int    `json:"exit_code"`
	Compared  bool   `json:"compared"`
	Finalized bool   `json:"finalized,omitempty"`
	Pass      bool   `json:"pass"`
	Note      string `json:"note,omitempty"`
}

// ResolvePath determines the database path for an examples directory,
// honoring the EXRUN_HISTORY override.
func ResolvePath(examplesDir string) string {
	if dir := os.Getenv(EnvDir); dir != "" {
		return filepath.Join(dir, "history.db")
	}
	return filepath.Join(examplesDir, ".exrun", "history.db")
}

// Store provides durable storage for run history.
type Store struct {
	db *sql.DB
}

// Open creates or opens the history database at the given path, creating
// parent directories as needed. Pragmas and schema are applied on open;
// the function is idempotent.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite supports one writer at a time; keep the pool at a single
	// connection to avoid SQLITE_BUSY errors.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Record stores a completed batch run and returns its id.
// Run ids are UUIDv7 so listing by id order matches time order.
func (s *Store) Record(ctx context.Context, examplesDir string, startedAt, finishedAt time.Time, report *batch.Report) (string, error) {
	id := uuid.Must(uuid.NewV7()).String()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, examples_dir, started_at, finished_at, verdict, exit_status, passed, failed, total)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, examplesDir,
		startedAt.UTC().Format(timeLayout),
		finishedAt.UTC().Format(timeLayout),
		int(report.Verdict), report.Verdict.ExitCode(),
		report.Passed, report.Failed, report.Total,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	for i, c := range report.Cases {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_cases (run_id, position, name, exit_code, compared, finalized, pass, note)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, i, c.Name, c.ExitCode, c.Compared, c.Finalize, c.Pass, strings.Join(c.Errors, "; "),
		)
		if err != nil {
			return "", fmt.Errorf("insert run case %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// List returns recorded runs, most recent first, without their cases.
func (s *Store) List(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, examples_dir, started_at, finished_at, verdict, exit_status, passed, failed, total
		FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Load returns one run with its cases.
func (s *Store) Load(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, examples_dir, started_at, finished_at, verdict, exit_status, passed, failed, total
		FROM runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, ErrRunNotFound
		}
		return Run{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, exit_code, compared, finalized, pass, note
		FROM run_cases WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return Run{}, fmt.Errorf("query run cases: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c RunCase
		if err := rows.Scan(&c.Name, &c.ExitCode, &c.Compared, &c.Finalized, &c.Pass, &c.Note); err != nil {
			return Run{}, fmt.Errorf("scan run case: %w", err)
		}
		run.Cases = append(run.Cases, c)
	}
	return run, rows.Err()
}

// Prune deletes runs older than the given age and returns how many were
// removed. Case rows go with them via the foreign key cascade.
func (s *Store) Prune(ctx context.Context, age time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-age).Format(timeLayout)
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var run Run
	var started, finished string
	err := row.Scan(&run.ID, &run.ExamplesDir, &started, &finished,
		&run.Verdict, &run.ExitStatus, &run.Passed, &run.Failed, &run.Total)
	if err != nil {
		return Run{}, err
	}
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return Run{}, fmt.Errorf("parse started_at: %w", err)
	}
	if run.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
		return Run{}, fmt.Errorf("parse finished_at: %w", err)
	}
	return run, nil
}
