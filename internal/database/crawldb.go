package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// DefaultFileName is the database file created inside the data directory
// when Options.FileName is empty.
const DefaultFileName = "sitemapper.db"

// CrawlDB is the persistent node store of a crawl.
// It holds the node table, the seen-set and the redirect aliases so that a
// crawl interrupted at any point can be resumed from disk.
//
// Design decision: Every mutation that belongs to one processed URL runs in a
// single transaction. A crash therefore loses at most the page that was in
// flight, and the seen-set can never disagree with the node table.
type CrawlDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool

	// FileName is the database file name inside the directory passed to Open.
	// Defaults to DefaultFileName.
	FileName string
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
		FileName:          DefaultFileName,
	}
}

// Open opens or creates a CrawlDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	name := opts.FileName
	if name == "" {
		name = DefaultFileName
	}
	dbPath := filepath.Join(dbDir, name)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file, mode=rwc allows it.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer. A single connection also serializes
	// transactions issued from concurrent goroutines.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

// Path returns the database file path.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// createTables creates the database schema if it doesn't exist.
func (cdb *CrawlDB) createTables() error {
	schema := `
	-- One row per canonical URL. seq gives discovery order.
	CREATE TABLE IF NOT EXISTS nodes (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL DEFAULT 'unvisited'
			CHECK (status IN ('unvisited', 'pending', 'success', 'error')),
		status_code INTEGER,
		error_message TEXT,
		redirected_from TEXT,
		parent TEXT,
		depth INTEGER NOT NULL CHECK (depth >= 0),
		match_result TEXT,
		discovered_at TEXT NOT NULL,
		fetched_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(parent);
	CREATE INDEX IF NOT EXISTS idx_nodes_status ON nodes(status);

	-- Every URL ever admitted as a node. Mirrors nodes.url.
	CREATE TABLE IF NOT EXISTS seen (
		url TEXT PRIMARY KEY
	);

	-- URLs that redirected and were collapsed into another node.
	CREATE TABLE IF NOT EXISTS aliases (
		from_url TEXT PRIMARY KEY,
		to_url TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_aliases_to ON aliases(to_url);

	-- One row per crawler invocation. Survives Reset.
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		root TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		processed INTEGER NOT NULL DEFAULT 0,
		discovered INTEGER NOT NULL DEFAULT 0,
		outcome TEXT NOT NULL
	);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// inTx runs fn inside a transaction and commits it when fn succeeds.
func (cdb *CrawlDB) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr(op, fmt.Errorf("failed to begin transaction: %w", err))
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return storageErr(op, err)
	}
	if err := tx.Commit(); err != nil {
		return storageErr(op, fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// timestampLayout is fixed width so stored timestamps sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

// now returns the current time in the layout stored in TEXT columns.
func now() string {
	return time.Now().UTC().Format(timestampLayout)
}

// timestampFormats lists the layouts parseTimestamp accepts.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999",
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
