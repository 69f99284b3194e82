package journal

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DBFile is the journal database filename inside the data directory.
const DBFile = "journal.db"

// timeLayout is fixed-width so text timestamps sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore is the default Store, a SQLite file under the data directory.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates or opens the journal database in dataDir with WAL mode
// enabled and runs any pending migrations.
func Open(dataDir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DBFile)
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening journal database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging journal database: %w", err)
	}

	// SQLite performs best with a single writer connection.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	slog.Info("journal opened", "path", dbPath)
	return s, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at DATETIME DEFAULT (datetime('now'))
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
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version).Scan(&count); err != nil {
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
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
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
func (s *SQLiteStore) Append(ctx context.Context, ev *Event) error {
	Normalize(ev)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO take_events (id, prompt_key, action, size_bytes, remote_ip, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Key, string(ev.Action), ev.Size, ev.RemoteIP, ev.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting take event: %w", err)
	}
	return nil
}

// History returns the newest events for key.
func (s *SQLiteStore) History(ctx context.Context, key string, limit int) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, prompt_key, action, size_bytes, remote_ip, created_at
		 FROM take_events WHERE prompt_key = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		key, ClampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying take events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var (
			ev        Event
			action    string
			createdAt string
		)
		if err := rows.Scan(&ev.ID, &ev.Key, &action, &ev.Size, &ev.RemoteIP, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning take event row: %w", err)
		}
		ev.Action = Action(action)
		if ev.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parsing take event time %q: %w", createdAt, err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// CountByAction returns per-action event counts. Actions with no events
// are reported as zero.
func (s *SQLiteStore) CountByAction(ctx context.Context) (map[Action]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT action, COUNT(*) FROM take_events GROUP BY action`)
	if err != nil {
		return nil, fmt.Errorf("counting take events: %w", err)
	}
	defer rows.Close()

	counts := make(map[Action]int64, len(Actions))
	for _, a := range Actions {
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
		counts[Action(action)] = n
	}
	return counts, rows.Err()
}
