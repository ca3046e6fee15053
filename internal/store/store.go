// Package store persists repositories and commits in SQLite. It is the
// authoritative copy of ingested data; the vector index can be rebuilt
// from it.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/efebarandurmaz/logsift/internal/commit"
)

var (
	// ErrReferentialViolation means a commit referenced a repository that
	// was not inserted first.
	ErrReferentialViolation = errors.New("referential violation")
	// ErrMissingRepository means a commit carries no repository url.
	ErrMissingRepository = errors.New("commit has no repository")
)

const schema = `
CREATE TABLE IF NOT EXISTS repositories (
	url  TEXT PRIMARY KEY NOT NULL,
	name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS commits (
	hash           TEXT NOT NULL,
	author         TEXT NOT NULL,
	date           TEXT NOT NULL,
	message        TEXT NOT NULL,
	repository_url TEXT NOT NULL,
	PRIMARY KEY (repository_url, hash),
	FOREIGN KEY (repository_url) REFERENCES repositories (url)
);`

// Counts are row counts per table.
type Counts struct {
	Repositories int `json:"repositories"`
	Commits      int `json:"commits"`
}

// Store is a SQLite-backed relational store.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Open opens or creates the database at path and ensures the schema. Use
// ":memory:" for a private in-memory database.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating data directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection serializes writes and keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Store{db: db, path: path, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database path.
func (s *Store) Path() string {
	return s.path
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Reset drops and recreates both tables.
func (s *Store) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stmt := range []string{"DROP TABLE IF EXISTS commits", "DROP TABLE IF EXISTS repositories", schema} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("resetting schema: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.Info("relational store reset", "path", s.path)
	return nil
}

// InsertRepository inserts r unless a repository with the same url exists.
func (s *Store) InsertRepository(ctx context.Context, r commit.Repository) error {
	return insertRepository(ctx, s.db, r)
}

// InsertCommit inserts c unless a commit with the same (repository_url,
// hash) exists. The repository must already be present.
func (s *Store) InsertCommit(ctx context.Context, c commit.Commit) error {
	_, err := insertCommit(ctx, s.db, c)
	return err
}

// SaveCommits inserts every commit and its repository, repository first,
// in one transaction. Duplicates are skipped. It returns the number of
// commit rows actually added.
func (s *Store) SaveCommits(ctx context.Context, commits []commit.Commit) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck

	added := 0
	for _, c := range commits {
		if err := insertRepository(ctx, tx, c.Repository); err != nil {
			return 0, fmt.Errorf("commit %s: %w", c.Hash, err)
		}
		n, err := insertCommit(ctx, tx, c)
		if err != nil {
			return 0, err
		}
		added += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return added, nil
}

// Counts returns the number of rows in each table.
func (s *Store) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM repositories").Scan(&c.Repositories); err != nil {
		return Counts{}, fmt.Errorf("counting repositories: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM commits").Scan(&c.Commits); err != nil {
		return Counts{}, fmt.Errorf("counting commits: %w", err)
	}
	return c, nil
}

// Commits returns every commit with its repository, ordered by repository
// url then hash.
func (s *Store) Commits(ctx context.Context) ([]commit.Commit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.hash, c.author, c.date, c.message, r.url, r.name
		FROM commits c JOIN repositories r ON r.url = c.repository_url
		ORDER BY c.repository_url, c.hash`)
	if err != nil {
		return nil, fmt.Errorf("querying commits: %w", err)
	}
	defer rows.Close()

	var out []commit.Commit
	for rows.Next() {
		var c commit.Commit
		if err := rows.Scan(&c.Hash, &c.Author, &c.Date, &c.Message, &c.Repository.URL, &c.Repository.Name); err != nil {
			return nil, fmt.Errorf("scanning commit: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Repositories returns every repository ordered by url.
func (s *Store) Repositories(ctx context.Context) ([]commit.Repository, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT url, name FROM repositories ORDER BY url")
	if err != nil {
		return nil, fmt.Errorf("querying repositories: %w", err)
	}
	defer rows.Close()

	var out []commit.Repository
	for rows.Next() {
		var r commit.Repository
		if err := rows.Scan(&r.URL, &r.Name); err != nil {
			return nil, fmt.Errorf("scanning repository: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func insertRepository(ctx context.Context, db execer, r commit.Repository) error {
	if strings.TrimSpace(r.URL) == "" {
		return ErrMissingRepository
	}
	_, err := db.ExecContext(ctx, "INSERT OR IGNORE INTO repositories (url, name) VALUES (?, ?)", r.URL, r.Name)
	if err != nil {
		return fmt.Errorf("inserting repository %s: %w", r.URL, classify(err))
	}
	return nil
}

// insertCommit returns the number of rows added (0 for a duplicate).
func insertCommit(ctx context.Context, db execer, c commit.Commit) (int64, error) {
	if strings.TrimSpace(c.Repository.URL) == "" {
		return 0, fmt.Errorf("commit %s: %w", c.Hash, ErrMissingRepository)
	}
	res, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO commits (hash, author, date, message, repository_url) VALUES (?, ?, ?, ?, ?)`,
		c.Hash, c.Author, c.Date, c.Message, c.Repository.URL)
	if err != nil {
		return 0, fmt.Errorf("inserting commit %s: %w", c.Key(), classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

// classify maps foreign key failures to ErrReferentialViolation. OR IGNORE
// does not apply to foreign key constraints, so they always surface here.
func classify(err error) error {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err
	}
	code := se.Code()
	if code == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY ||
		(code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "FOREIGN KEY")) {
		return fmt.Errorf("%w: %v", ErrReferentialViolation, err)
	}
	return err
}
