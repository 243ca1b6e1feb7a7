package duckdb

import (
	"fmt"
	"os"
	"time"
)

// FileFingerprint holds stat-based identity for a file.
type FileFingerprint struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// StatFile creates a FileFingerprint from an on-disk file.
func StatFile(path string) (FileFingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileFingerprint{}, err
	}
	return FileFingerprint{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// RecordInputs replaces the fingerprints of the run inputs, keyed by role
// (e.g. "hits", "genome").
func (s *Store) RecordInputs(inputs map[string]FileFingerprint) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM inputs"); err != nil {
		return fmt.Errorf("clear inputs: %w", err)
	}
	for name, fp := range inputs {
		if _, err := tx.Exec("INSERT INTO inputs VALUES (?, ?, ?, ?)",
			name, fp.Path, fp.Size, storedTime(fp.ModTime)); err != nil {
			return fmt.Errorf("insert input %s: %w", name, err)
		}
	}
	return tx.Commit()
}

// Inputs returns the recorded input fingerprints.
func (s *Store) Inputs() (map[string]FileFingerprint, error) {
	rows, err := s.db.Query("SELECT name, path, size, mod_time FROM inputs")
	if err != nil {
		return nil, fmt.Errorf("query inputs: %w", err)
	}
	defer rows.Close()

	out := make(map[string]FileFingerprint)
	for rows.Next() {
		var name string
		var fp FileFingerprint
		if err := rows.Scan(&name, &fp.Path, &fp.Size, &fp.ModTime); err != nil {
			return nil, fmt.Errorf("scan input: %w", err)
		}
		out[name] = fp
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inputs: %w", err)
	}
	return out, nil
}

// InputsMatch reports whether the recorded inputs are exactly the given
// ones, compared by size and modification time.
func (s *Store) InputsMatch(inputs map[string]FileFingerprint) (bool, error) {
	stored, err := s.Inputs()
	if err != nil {
		return false, err
	}
	if len(stored) != len(inputs) {
		return false, nil
	}
	for name, fp := range inputs {
		old, ok := stored[name]
		if !ok || old.Size != fp.Size || !old.ModTime.Equal(storedTime(fp.ModTime)) {
			return false, nil
		}
	}
	return true, nil
}

// storedTime is t at the microsecond precision of a DuckDB TIMESTAMP.
func storedTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
