package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteBackend implements Backend on a SQLite database file.
type SQLiteBackend struct {
	db        *sql.DB
	path      string
	mu        sync.RWMutex
	closeOnce sync.Once

	saveStmt    *sql.Stmt
	loadStmt    *sql.Stmt
	cleanupStmt *sql.Stmt
}

// SQLiteBackendConfig configures the SQLite backend.
type SQLiteBackendConfig struct {
	// Path is the database file. ":memory:" keeps the database in memory.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// NewSQLiteBackend opens or creates the database at path with default
// settings.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	return NewSQLiteBackendWithConfig(SQLiteBackendConfig{Path: path})
}

// NewSQLiteBackendWithConfig opens or creates a database with custom
// configuration.
func NewSQLiteBackendWithConfig(cfg SQLiteBackendConfig) (*SQLiteBackend, error) {
	if cfg.Path == "" {
		return nil, errors.New("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)",
		cfg.Path, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer; a single connection also keeps
	// ":memory:" databases alive across calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	backend := &SQLiteBackend{
		db:   db,
		path: cfg.Path,
	}

	if err := backend.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := backend.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	return backend, nil
}

func (s *SQLiteBackend) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		limiter TEXT NOT NULL,
		config TEXT NOT NULL,
		callers INTEGER NOT NULL,
		calls INTEGER NOT NULL,
		completed INTEGER NOT NULL,
		interrupted INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		elapsed_ns INTEGER NOT NULL,
		admissions TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_limiter ON runs(limiter);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteBackend) prepareStatements() error {
	var err error

	s.saveStmt, err = s.db.Prepare(`
		INSERT INTO runs (id, limiter, config, callers, calls, completed, interrupted, started_at, elapsed_ns, admissions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			limiter = excluded.limiter,
			config = excluded.config,
			callers = excluded.callers,
			calls = excluded.calls,
			completed = excluded.completed,
			interrupted = excluded.interrupted,
			started_at = excluded.started_at,
			elapsed_ns = excluded.elapsed_ns,
			admissions = excluded.admissions
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare save statement: %w", err)
	}

	s.loadStmt, err = s.db.Prepare(`
		SELECT id, limiter, config, callers, calls, completed, interrupted, started_at, elapsed_ns, admissions
		FROM runs
		WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare load statement: %w", err)
	}

	s.cleanupStmt, err = s.db.Prepare(`
		DELETE FROM runs
		WHERE started_at < ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare cleanup statement: %w", err)
	}

	return nil
}

// Save stores run.
func (s *SQLiteBackend) Save(ctx context.Context, run *Run) error {
	if run == nil {
		return errors.New("run cannot be nil")
	}
	if run.ID == "" {
		return errors.New("run id cannot be empty")
	}

	admissions := run.Admissions
	if admissions == nil {
		admissions = []Admission{}
	}
	admissionsJSON, err := json.Marshal(admissions)
	if err != nil {
		return fmt.Errorf("failed to marshal admissions: %w", err)
	}

	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.saveStmt.ExecContext(ctx,
		run.ID,
		run.Limiter,
		run.Config,
		run.Callers,
		run.Calls,
		run.Completed,
		run.Interrupted,
		run.StartedAt.UnixNano(),
		int64(run.Elapsed),
		string(admissionsJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	return nil
}

// Load returns the run with the given ID.
func (s *SQLiteBackend) Load(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var admissionsJSON string
	run, err := scanRun(s.loadStmt.QueryRowContext(ctx, id), &admissionsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}

	if err := json.Unmarshal([]byte(admissionsJSON), &run.Admissions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal admissions: %w", err)
	}

	return run, nil
}

// List returns run summaries, newest first.
func (s *SQLiteBackend) List(ctx context.Context, filter Filter) ([]*Run, error) {
	query := `
		SELECT id, limiter, config, callers, calls, completed, interrupted, started_at, elapsed_ns, ''
		FROM runs`
	var args []any
	if filter.Limiter != "" {
		query += ` WHERE limiter = ?`
		args = append(args, filter.Limiter)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, filter.limit())

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var ignored string
		run, err := scanRun(rows, &ignored)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return runs, nil
}

// Cleanup removes runs started before olderThan.
func (s *SQLiteBackend) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.cleanupStmt.ExecContext(ctx, olderThan.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(deleted), nil
}

// Path returns the database path.
func (s *SQLiteBackend) Path() string {
	return s.path
}

// Close releases the database. Close is idempotent.
func (s *SQLiteBackend) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		for _, stmt := range []*sql.Stmt{s.saveStmt, s.loadStmt, s.cleanupStmt} {
			if stmt != nil {
				stmt.Close()
			}
		}
		if s.db != nil {
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
			closeErr = s.db.Close()
		}
	})

	return closeErr
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner, admissionsJSON *string) (*Run, error) {
	var (
		run       Run
		startedAt int64
		elapsed   int64
	)

	err := row.Scan(
		&run.ID,
		&run.Limiter,
		&run.Config,
		&run.Callers,
		&run.Calls,
		&run.Completed,
		&run.Interrupted,
		&startedAt,
		&elapsed,
		admissionsJSON,
	)
	if err != nil {
		return nil, err
	}

	run.StartedAt = time.Unix(0, startedAt)
	run.Elapsed = time.Duration(elapsed)
	return &run, nil
}
