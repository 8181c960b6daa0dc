package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// sqliteStore is the SQLite implementation of Store (internal to this package).
type sqliteStore struct {
	DB    *sql.DB
	opts  Options
	clock Clock
	// writeMu serializes every write transaction.
	writeMu sync.Mutex

	// Prepared statements for the read path (prepared at open, closed in Close).
	stmtListAgents       *sql.Stmt
	stmtGetAgent         *sql.Stmt
	stmtRecentActivities *sql.Stmt
	stmtAgentActivities  *sql.Stmt
	stmtPendingReviews   *sql.Stmt
	stmtGetReview        *sql.Stmt
}

// OpenOptions configures how to open the store (driver and location).
type OpenOptions struct {
	Driver  string // "sqlite" (default) or "postgres"
	Home    string // for sqlite: directory containing protected/db.sqlite
	DSN     string // for sqlite without Home: a file path or file: URI
	Options Options
}

// Open opens the default SQLite store at home/protected/db.sqlite.
func Open(home string) (Store, error) {
	return OpenWithOptions(OpenOptions{Driver: "sqlite", Home: home})
}

// OpenWithOptions opens a SQLite store from Home or DSN.
// For driver "postgres", the caller must use postgres.Open from internal/store/postgres to avoid import cycles.
func OpenWithOptions(opts OpenOptions) (Store, error) {
	if opts.Driver == "postgres" {
		return nil, errors.New("for postgres use postgres.Open(dsn) from github.com/buppyai/puppy-station/internal/store/postgres")
	}
	var dsn string
	switch {
	case opts.Home != "":
		dbPath := filepath.Join(opts.Home, "protected", "db.sqlite")
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, err
		}
		dsn = "file:" + dbPath + "?_pragma=busy_timeout(5000)"
	case opts.DSN != "":
		dsn = opts.DSN
		if !strings.HasPrefix(dsn, "file:") {
			dsn = "file:" + dsn + "?_pragma=busy_timeout(5000)"
		}
	default:
		return nil, errors.New("sqlite home or DSN required")
	}
	return openSQLite(dsn, opts.Options)
}

func openSQLite(dsn string, opts Options) (*sqliteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx := context.Background()
	s := &sqliteStore{DB: db, opts: opts.WithDefaults()}
	if err := s.initPragmas(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.prepareStatements(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	if err := s.observeClock(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

const (
	agentColumns    = `id, name, emoji, role, model, status, current_task, updated_at`
	activityColumns = `id, agent_id, type, description, metadata, timestamp`
	reviewColumns   = `id, agent_id, question, priority, status, created_at, resolved_at`
)

func (s *sqliteStore) prepareStatements(ctx context.Context) error {
	pairs := []struct {
		dest **sql.Stmt
		q    string
	}{
		{&s.stmtListAgents, `SELECT ` + agentColumns + ` FROM agents ORDER BY name ASC, id ASC`},
		{&s.stmtGetAgent, `SELECT ` + agentColumns + ` FROM agents WHERE id = ?`},
		{&s.stmtRecentActivities, `SELECT ` + activityColumns + ` FROM activities ORDER BY timestamp DESC, id DESC LIMIT ?`},
		{&s.stmtAgentActivities, `SELECT ` + activityColumns + ` FROM activities WHERE agent_id = ? ORDER BY timestamp DESC, id DESC LIMIT ?`},
		{&s.stmtPendingReviews, `SELECT ` + reviewColumns + ` FROM reviews WHERE status = 'pending' ORDER BY ` + PriorityRankSQL + ` ASC, created_at DESC, id DESC`},
		{&s.stmtGetReview, `SELECT ` + reviewColumns + ` FROM reviews WHERE id = ?`},
	}
	for _, p := range pairs {
		st, err := s.DB.PrepareContext(ctx, p.q)
		if err != nil {
			return err
		}
		*p.dest = st
	}
	return nil
}

// observeClock seeds the store clock with the newest persisted timestamp so a
// restart with a skewed wall clock never issues an older one.
func (s *sqliteStore) observeClock(ctx context.Context) error {
	var newest int64
	err := s.DB.QueryRowContext(ctx, `
SELECT MAX(v) FROM (
  SELECT COALESCE(MAX(timestamp), 0) AS v FROM activities
  UNION ALL SELECT COALESCE(MAX(updated_at), 0) FROM agents
  UNION ALL SELECT COALESCE(MAX(created_at), 0) FROM reviews
)`).Scan(&newest)
	if err != nil {
		return err
	}
	if newest > 0 {
		s.clock.Observe(FromNanos(newest))
	}
	return nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	for _, st := range []*sql.Stmt{s.stmtListAgents, s.stmtGetAgent, s.stmtRecentActivities, s.stmtAgentActivities, s.stmtPendingReviews, s.stmtGetReview} {
		if st != nil {
			_ = st.Close()
		}
	}
	return s.DB.Close()
}

func (s *sqliteStore) initPragmas(ctx context.Context) error {
	// WAL lets readers run alongside the single writer.
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA temp_store=MEMORY;",
		// Negative cache_size means KB.
		"PRAGMA cache_size=-20000;",
	}
	for _, q := range stmts {
		if _, err := s.DB.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// Migrate applies every embedded migration not yet recorded in schema_migrations, each in
// its own transaction.
func (s *sqliteStore) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store not initialized")
	}
	if _, err := s.DB.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at INTEGER NOT NULL
)`); err != nil {
		return err
	}
	all, err := LoadMigrations(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	applied, err := s.appliedVersions(ctx)
	if err != nil {
		return err
	}
	for _, m := range Pending(all, applied) {
		if err := s.write(ctx, "migrate", func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, applied_at) VALUES(?, ?)`, m.Version, time.Now().Unix())
			return err
		}); err != nil {
			return fmt.Errorf("migration %s: %w", m.Name, err)
		}
	}
	return nil
}

func (s *sqliteStore) appliedVersions(ctx context.Context) (map[int]bool, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}
