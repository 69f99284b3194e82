// Package pgstore implements journal.Store on PostgreSQL, for deployments
// that already run a shared database.
package pgstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/AppleHolic/recording-studio-api/internal/journal"

	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store implements journal.Store using PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ journal.Store = (*Store)(nil)

// New opens a PostgreSQL connection and runs pending migrations.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgresql: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgresql: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{db: db}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	slog.Info("postgresql journal opened")
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version := strings.TrimSuffix(entry.Name(), ".sql")

		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = $1", version).Scan(&count)
		if err != nil {
			return fmt.Errorf("checking migration %s: %w", version, err)
		}
		if count > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", version, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %s: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", version, err)
		}

		slog.Info("applied journal migration", "version", version)
	}

	return nil
}

// Append inserts ev.
func (s *Store) Append(ctx context.Context, ev *journal.Event) error {
	journal.Normalize(ev)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO take_events (id, prompt_key, action, size_bytes, remote_ip, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.ID, ev.Key, string(ev.Action), ev.Size, ev.RemoteIP, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting take event: %w", err)
	}
	return nil
}

// History returns the newest events for key.
func (s *Store) History(ctx context.Context, key string, limit int) ([]journal.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id::text, prompt_key, action, size_bytes, remote_ip, created_at
		 FROM take_events WHERE prompt_key = $1
		 ORDER BY created_at DESC LIMIT $2`,
		key, journal.ClampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying take events: %w", err)
	}
	defer rows.Close()

	events := []journal.Event{}
	for rows.Next() {
		var (
			ev     journal.Event
			action string
		)
		if err := rows.Scan(&ev.ID, &ev.Key, &action, &ev.Size, &ev.RemoteIP, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning take event row: %w", err)
		}
		ev.Action = journal.Action(action)
		ev.CreatedAt = ev.CreatedAt.UTC()
		events = append(events, ev)
	}
	return events, rows.Err()
}

// CountByAction returns per-action event counts.
func (s *Store) CountByAction(ctx context.Context) (map[journal.Action]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT action, COUNT(*) FROM take_events GROUP BY action`)
	if err != nil {
		return nil, fmt.Errorf("counting take events: %w", err)
	}
	defer rows.Close()

	counts := make(map[journal.Action]int64, len(journal.Actions))
	for _, a := range journal.Actions {
		counts[a] = 0
	}
	for rows.Next() {
		var (
			action string
			n      int64
		)
		if err := rows.Scan(&action, &n); err != nil {
			return nil, fmt.Errorf("scanning take event count: %w", err)
		}
		counts[journal.Action(action)] = n
	}
	return counts, rows.Err()
}
