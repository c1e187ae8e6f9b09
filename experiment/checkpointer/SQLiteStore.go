package checkpointer

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// SQLiteStore stores checkpoints of training runs in a SQLite
// database. Each store writes checkpoints under its own run ID, and
// reads only the checkpoints of that run, while ListAll lists the
// checkpoints of every run in the database.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	runID  string
	closed bool
}

// NewSQLiteStore opens or creates the database at dbPath and returns a
// store for the given run. If runID is empty, a new run ID is
// generated.
func NewSQLiteStore(dbPath, runID string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrap(err, "could not create directory")
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "could not open database")
	}

	if runID == "" {
		runID = uuid.New().String()
	}
	store := &SQLiteStore{db: db, runID: runID}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS checkpoints (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			timesteps INTEGER NOT NULL,
			strategy TEXT NOT NULL,
			size INTEGER NOT NULL,
			state BLOB NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_checkpoints_run ON checkpoints(run_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return errors.Wrap(err, "could not create schema")
	}
	return nil
}

// RunID returns the ID of the run the store writes to
func (s *SQLiteStore) RunID() string {
	return s.runID
}

// Save implements the Store interface
func (s *SQLiteStore) Save(ctx context.Context, state *State) (Entry,
	error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Entry{}, errStoreClosed
	}

	data, err := state.Marshal()
	if err != nil {
		return Entry{}, err
	}

	entry := Entry{
		ID:        uuid.New().String(),
		RunID:     s.runID,
		Timesteps: state.TimestepsTotal,
		Strategy:  strategyOf(state),
		Size:      int64(len(data)),
		CreatedAt: time.Now(),
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (id, run_id, timesteps, strategy, size, state, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.RunID, entry.Timesteps, string(entry.Strategy),
		entry.Size, data, entry.CreatedAt.UnixNano())
	if err != nil {
		return Entry{}, errors.Wrap(err, "could not insert checkpoint")
	}
	return entry, nil
}

// Load implements the Store interface
func (s *SQLiteStore) Load(ctx context.Context, id string) (*State,
	error) {
	return s.load(ctx, `
		SELECT state FROM checkpoints WHERE id = ? AND run_id = ?
	`, id, s.runID)
}

// Latest implements the Store interface
func (s *SQLiteStore) Latest(ctx context.Context) (*State, error) {
	return s.load(ctx, `
		SELECT state FROM checkpoints WHERE run_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1
	`, s.runID)
}

func (s *SQLiteStore) load(ctx context.Context, query string,
	args ...interface{}) (*State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errStoreClosed
	}

	var data []byte
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, &CheckpointError{Op: "load", Err: errNotFound}
	}
	if err != nil {
		return nil, errors.Wrap(err, "could not query checkpoint")
	}
	return Unmarshal(data)
}

// List implements the Store interface, listing the checkpoints of the
// store's run
func (s *SQLiteStore) List(ctx context.Context) ([]Entry, error) {
	return s.list(ctx, `
		SELECT id, run_id, timesteps, strategy, size, created_at
		FROM checkpoints WHERE run_id = ?
		ORDER BY created_at, rowid
	`, s.runID)
}

// ListAll lists the checkpoints of all runs in the database, oldest
// first
func (s *SQLiteStore) ListAll(ctx context.Context) ([]Entry, error) {
	return s.list(ctx, `
		SELECT id, run_id, timesteps, strategy, size, created_at
		FROM checkpoints ORDER BY created_at, rowid
	`)
}

func (s *SQLiteStore) list(ctx context.Context, query string,
	args ...interface{}) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "could not list checkpoints")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			strategy  string
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.Timesteps, &strategy,
			&e.Size, &createdAt); err != nil {
			return nil, errors.Wrap(err, "could not scan checkpoint")
		}
		e.Strategy = Strategy(strategy)
		e.CreatedAt = time.Unix(0, createdAt)
		entries = append(entries, e)
	}
	return entries, errors.Wrap(rows.Err(), "could not list checkpoints")
}

// Close implements the Store interface
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
