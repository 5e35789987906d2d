/*
Copyright © 2025 KLS Core Contributors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package database implements component A: DatabaseService. It opens and
// migrates the persistent symbol store and exposes the schema every
// other component's writes go through as direct-row SQL, never an ORM
// identity map (spec §9 — a stale in-memory object graph is the source
// bug this design note calls out).
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"kotlinlsp.dev/core/internal/logging"
)

// DBVersion is the schema version embedded in the binary. A stored
// version that doesn't match triggers a full wipe-and-recreate — the
// only supported migration policy (spec §3, §6).
const DBVersion = 6

// Service owns the single shared *sql.DB connection. All access goes
// through transactions; writes serialize naturally through the storage
// engine (spec §5).
type Service struct {
	db   *sql.DB
	path string // empty when running in-memory
}

// Open opens (or creates) the database at <storagePath>/kls_database.db.
// When storagePath is empty or not a directory, an in-memory store is
// used and persistence is disabled, matching spec §6 exactly.
func Open(storagePath string) (*Service, error) {
	path, useMemory := resolvePath(storagePath)

	if !useMemory {
		if err := wipeIfVersionMismatch(path); err != nil {
			return nil, fmt.Errorf("database: checking schema version: %w", err)
		}
	}

	dsn := path
	if useMemory {
		dsn = ":memory:"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("database: open: %w", err)
	}
	// A single shared connection backs every component per spec §5.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("database: enable foreign keys: %w", err)
	}

	svc := &Service{db: db}
	if !useMemory {
		svc.path = path
	}

	if err := svc.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return svc, nil
}

func resolvePath(storagePath string) (path string, useMemory bool) {
	if storagePath == "" {
		return "", true
	}
	info, err := os.Stat(storagePath)
	if err != nil || !info.IsDir() {
		logging.Warning("database: storagePath %q unavailable, falling back to in-memory store", storagePath)
		return "", true
	}
	return filepath.Join(storagePath, "kls_database.db"), false
}

// wipeIfVersionMismatch deletes the store file before opening it when the
// stored DatabaseMetadata.version differs from DBVersion. It opens its
// own short-lived connection to read the version without holding the
// long-lived handle the rest of the service uses.
func wipeIfVersionMismatch(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		// Treat an unopenable file as corrupt: wipe and recreate.
		return os.Remove(path)
	}
	defer db.Close()

	var version int
	err = db.QueryRow(`SELECT version FROM database_metadata LIMIT 1`).Scan(&version)
	if err != nil {
		// Missing table, missing row, or any read error: treat as a
		// fresh/corrupt store and let initialize rebuild it.
		db.Close()
		return os.Remove(path)
	}

	if version != DBVersion {
		logging.Warning("database: stored schema version %d != %d, recreating store", version, DBVersion)
		db.Close()
		return os.Remove(path)
	}

	return nil
}

// initialize creates all tables and indexes if absent, and ensures the
// DatabaseMetadata singleton row reflects DBVersion.
func (s *Service) initialize() error {
	for _, stmt := range schemaStatements() {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("database: schema statement failed: %w", err)
		}
	}

	_, err := s.db.Exec(`INSERT OR REPLACE INTO database_metadata (id, version) VALUES (1, ?)`, DBVersion)
	if err != nil {
		return fmt.Errorf("database: writing metadata row: %w", err)
	}
	return nil
}

// DB returns the underlying *sql.DB for components that need direct
// transaction control (SymbolIndex's batched writes in particular).
func (s *Service) DB() *sql.DB { return s.db }

// InMemory reports whether persistence is disabled for this instance.
func (s *Service) InMemory() bool { return s.path == "" }

// Path returns the on-disk database file path, or "" when in-memory.
func (s *Service) Path() string { return s.path }

// Close closes the underlying connection.
func (s *Service) Close() error {
	return s.db.Close()
}

func schemaStatements() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS database_metadata (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			version INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS positions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			line INTEGER NOT NULL,
			character INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ranges (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			start_id INTEGER NOT NULL REFERENCES positions(id),
			end_id INTEGER NOT NULL REFERENCES positions(id)
		)`,
		`CREATE TABLE IF NOT EXISTS locations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uri TEXT NOT NULL,
			range_id INTEGER NOT NULL REFERENCES ranges(id)
		)`,
		`CREATE TABLE IF NOT EXISTS symbols (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			fqname TEXT NOT NULL,
			shortname TEXT NOT NULL,
			kind TEXT NOT NULL,
			visibility TEXT NOT NULL,
			extensionreceivertype TEXT,
			location_id INTEGER REFERENCES locations(id),
			sourcejar TEXT,
			moduleid TEXT,
			modifiers TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_symbols_fqname ON symbols(fqname)`,
		`CREATE INDEX IF NOT EXISTS idx_symbols_shortname ON symbols(shortname)`,
		`CREATE INDEX IF NOT EXISTS idx_symbols_sourcejar ON symbols(sourcejar)`,
		`CREATE TABLE IF NOT EXISTS symbol_index_metadata (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			buildfileversion INTEGER NOT NULL,
			indexedat INTEGER NOT NULL,
			symbolcount INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS indexed_jars (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			jarpath TEXT NOT NULL UNIQUE,
			indexedat INTEGER NOT NULL,
			symbolcount INTEGER NOT NULL
		)`,
	}
}
