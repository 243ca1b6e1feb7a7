// Package duckdb stores prediction results in DuckDB so finished runs can be
// queried and interrupted runs resumed.
package duckdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
)

// Store manages a DuckDB connection holding prediction results.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates a DuckDB database at the given path.
// Use an empty string for an in-memory database.
func Open(path string) (*Store, error) {
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for direct access.
func (s *Store) DB() *sql.DB {
	return s.db
}

// ensureSchema creates tables if they don't exist.
func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transcripts (
			transcript_id VARCHAR PRIMARY KEY,
			gene_id VARCHAR,
			parts BIGINT,
			state VARCHAR,
			status VARCHAR,
			hits BIGINT,
			strands BIGINT,
			best_sum BIGINT,
			alignments BIGINT,
			elapsed_ms BIGINT
		)`,
		`CREATE TABLE IF NOT EXISTS predictions (
			transcript_id VARCHAR,
			rank BIGINT,
			gene_id VARCHAR,
			contig VARCHAR,
			forward BOOLEAN,
			start_pos BIGINT,
			end_pos BIGINT,
			score BIGINT,
			aa BIGINT,
			protein VARCHAR,
			first_part BOOLEAN,
			last_part BOOLEAN,
			stops BIGINT,
			intron_gain BOOLEAN,
			intron_loss BOOLEAN,
			backup BOOLEAN,
			cut BOOLEAN,
			identity DOUBLE,
			PRIMARY KEY (transcript_id, rank)
		)`,
		`CREATE TABLE IF NOT EXISTS cds (
			transcript_id VARCHAR,
			rank BIGINT,
			idx BIGINT,
			start_pos BIGINT,
			end_pos BIGINT,
			phase BIGINT,
			acceptor_evidence BOOLEAN,
			donor_evidence BOOLEAN,
			PRIMARY KEY (transcript_id, rank, idx)
		)`,
		`CREATE TABLE IF NOT EXISTS inputs (
			name VARCHAR PRIMARY KEY,
			path VARCHAR,
			size BIGINT,
			mod_time TIMESTAMP
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
