package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// Database handles event, camera, user and config persistence.
// SQLite is the default; a postgres:// URL switches to lib/pq.
type Database struct {
	db      *sql.DB
	dialect dialect
}

// New opens the database named by url
func New(url string) (*Database, error) {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		db, err := sql.Open("postgres", url)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return &Database{db: db, dialect: dialectPostgres}, nil
	}

	db, err := sql.Open("sqlite", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return &Database{db: db, dialect: dialectSQLite}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// Ping verifies the connection is alive
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// rebind rewrites ? placeholders into $n for postgres
func (d *Database) rebind(query string) string {
	if d.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// Migrate runs database migrations
func (d *Database) Migrate() error {
	serial := "INTEGER PRIMARY KEY AUTOINCREMENT"
	ts := "DATETIME"
	if d.dialect == dialectPostgres {
		serial = "SERIAL PRIMARY KEY"
		ts = "TIMESTAMP"
	}

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id ` + serial + `,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			full_name TEXT NOT NULL,
			rank TEXT,
			role TEXT NOT NULL DEFAULT 'USER',
			created_at ` + ts + ` DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS cameras (
			id ` + serial + `,
			camera_name TEXT NOT NULL,
			source TEXT NOT NULL,
			location TEXT,
			status TEXT NOT NULL DEFAULT 'ACTIVE'
		)`,
		`CREATE TABLE IF NOT EXISTS detection_events (
			id ` + serial + `,
			timestamp ` + ts + ` NOT NULL,
			camera_id INTEGER NOT NULL REFERENCES cameras(id),
			detected_object TEXT NOT NULL,
			confidence REAL NOT NULL,
			user_id_on_duty INTEGER REFERENCES users(id)
		)`,
		`CREATE TABLE IF NOT EXISTS event_files (
			id ` + serial + `,
			event_id INTEGER NOT NULL REFERENCES detection_events(id) ON DELETE CASCADE,
			file_type TEXT NOT NULL,
			file_path TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS app_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at ` + ts + ` DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_time ON detection_events(timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_event_files_event ON event_files(event_id, file_type)`,
	}

	for _, migration := range migrations {
		if _, err := d.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	log.Info().Str("component", "database").Msg("migrations completed")
	return nil
}

// SaveConfig saves a configuration value
func (d *Database) SaveConfig(ctx context.Context, key, value string) error {
	query := `INSERT INTO app_config (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP`

	if _, err := d.db.ExecContext(ctx, d.rebind(query), key, value); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// GetConfig retrieves a configuration value; a missing key yields ""
func (d *Database) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := d.db.QueryRowContext(ctx, d.rebind("SELECT value FROM app_config WHERE key = ?"), key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get config: %w", err)
	}
	return value, nil
}
