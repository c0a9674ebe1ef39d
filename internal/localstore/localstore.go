// Package localstore is the durable on-device store backing offline
// operation. It holds two namespaces mirroring the remote document shape:
// "locations" for pending/synced samples and "attendance" for the daily
// records, each keyed by id with a flat JSON field map.
package localstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrStorageCorrupt marks a row whose field map can no longer be decoded.
// Callers skip the row; a corrupt key never aborts a batch.
var ErrStorageCorrupt = errors.New("local storage corrupt")

// SampleRow is one persisted location sample.
type SampleRow struct {
	ID         string
	SubjectID  string
	CapturedAt time.Time
	Fields     map[string]any
	Synced     bool
}

// RecordRow is one persisted attendance record.
type RecordRow struct {
	ID        string
	SubjectID string
	Date      string
	Fields    map[string]any
	Synced    bool
}

type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens (or creates) the store at path. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate local store: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS locations (
		id TEXT PRIMARY KEY,
		subject_id TEXT NOT NULL,
		captured_at TEXT NOT NULL,
		fields_json TEXT NOT NULL,
		synced INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_locations_subject_time
		ON locations(subject_id, captured_at);
	CREATE INDEX IF NOT EXISTS idx_locations_unsynced
		ON locations(synced) WHERE synced = 0;

	CREATE TABLE IF NOT EXISTS attendance (
		id TEXT PRIMARY KEY,
		subject_id TEXT NOT NULL,
		date TEXT NOT NULL,
		fields_json TEXT NOT NULL,
		synced INTEGER NOT NULL DEFAULT 0
	);

	-- One non-deleted record per subject per calendar day.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_attendance_subject_date
		ON attendance(subject_id, date);
	`
	_, err := s.db.Exec(schema)
	return err
}

// PutSample persists a sample keyed by id. Samples are immutable once
// created, so a duplicate id is a no-op rather than an overwrite.
func (s *Store) PutSample(row SampleRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields, err := json.Marshal(row.Fields)
	if err != nil {
		return fmt.Errorf("encode sample %s: %w", row.ID, err)
	}

	_, err = s.db.Exec(`
		INSERT INTO locations (id, subject_id, captured_at, fields_json, synced)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, row.ID, row.SubjectID, row.CapturedAt.UTC().Format(time.RFC3339Nano), string(fields), boolToInt(row.Synced))
	if err != nil {
		return fmt.Errorf("put sample %s: %w", row.ID, err)
	}
	return nil
}

// HasSample reports whether a sample id is already stored.
func (s *Store) HasSample(id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM locations WHERE id = ?", id).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkSamplesSynced flips the synced flag for the given ids after a
// confirmed remote write.
func (s *Store) MarkSamplesSynced(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	_, err := s.db.Exec("UPDATE locations SET synced = 1 WHERE id IN ("+placeholders+")", args...)
	return err
}

// UnsyncedSamples returns up to limit samples still awaiting a remote
// write, oldest first. A non-positive limit means no limit. Corrupt rows
// are logged and skipped.
func (s *Store) UnsyncedSamples(limit int) ([]SampleRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.Query(`
		SELECT id, subject_id, captured_at, fields_json, synced
		FROM locations
		WHERE synced = 0
		ORDER BY captured_at ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSampleRows(rows)
}

// QuerySamples filters stored samples by subject and time range, newest
// first. This is the offline fallback behind history reads.
func (s *Store) QuerySamples(subjectID string, from, to *time.Time, limit int) ([]SampleRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, subject_id, captured_at, fields_json, synced FROM locations WHERE subject_id = ?"
	args := []any{subjectID}
	if from != nil {
		query += " AND captured_at >= ?"
		args = append(args, from.UTC().Format(time.RFC3339Nano))
	}
	if to != nil {
		query += " AND captured_at <= ?"
		args = append(args, to.UTC().Format(time.RFC3339Nano))
	}
	query += " ORDER BY captured_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSampleRows(rows)
}

// DeleteSamplesOlderThan removes samples captured before cutoff. An
// empty subjectID sweeps every subject; the retention job runs it that
// way, the admin prune names one subject.
func (s *Store) DeleteSamplesOlderThan(subjectID string, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := "DELETE FROM locations WHERE captured_at < ?"
	args := []any{cutoff.UTC().Format(time.RFC3339Nano)}
	if subjectID != "" {
		query += " AND subject_id = ?"
		args = append(args, subjectID)
	}

	res, err := s.db.Exec(query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanSampleRows(rows *sql.Rows) ([]SampleRow, error) {
	var out []SampleRow
	for rows.Next() {
		var (
			row        SampleRow
			capturedAt string
			fields     string
			synced     int
		)
		if err := rows.Scan(&row.ID, &row.SubjectID, &capturedAt, &fields, &synced); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(fields), &row.Fields); err != nil {
			log.Printf("[localstore] %v: sample %s skipped: %v", ErrStorageCorrupt, row.ID, err)
			continue
		}
		row.CapturedAt, _ = time.Parse(time.RFC3339Nano, capturedAt)
		row.Synced = synced == 1
		out = append(out, row)
	}
	return out, rows.Err()
}

// PutRecord upserts an attendance record. Unlike samples, records mutate
// in place as the day progresses.
func (s *Store) PutRecord(row RecordRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields, err := json.Marshal(row.Fields)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", row.ID, err)
	}

	_, err = s.db.Exec(`
		INSERT INTO attendance (id, subject_id, date, fields_json, synced)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			fields_json = excluded.fields_json,
			synced = excluded.synced
	`, row.ID, row.SubjectID, row.Date, string(fields), boolToInt(row.Synced))
	if err != nil {
		return fmt.Errorf("put record %s: %w", row.ID, err)
	}
	return nil
}

// GetRecord returns the record with the given id, or nil when absent.
func (s *Store) GetRecord(id string) (*RecordRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.scanRecord(s.db.QueryRow(
		"SELECT id, subject_id, date, fields_json, synced FROM attendance WHERE id = ?", id))
}

// RecordBySubjectDate returns the (at most one) record for a subject on a
// calendar date, or nil when absent.
func (s *Store) RecordBySubjectDate(subjectID, date string) (*RecordRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.scanRecord(s.db.QueryRow(
		"SELECT id, subject_id, date, fields_json, synced FROM attendance WHERE subject_id = ? AND date = ?",
		subjectID, date))
}

func (s *Store) scanRecord(row *sql.Row) (*RecordRow, error) {
	var (
		out    RecordRow
		fields string
		synced int
	)
	err := row.Scan(&out.ID, &out.SubjectID, &out.Date, &fields, &synced)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(fields), &out.Fields); err != nil {
		return nil, fmt.Errorf("%w: record %s: %v", ErrStorageCorrupt, out.ID, err)
	}
	out.Synced = synced == 1
	return &out, nil
}

// RecordsByDate returns every subject's record for a calendar date.
func (s *Store) RecordsByDate(date string) ([]RecordRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		"SELECT id, subject_id, date, fields_json, synced FROM attendance WHERE date = ? ORDER BY subject_id", date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RecordRow
	for rows.Next() {
		var (
			row    RecordRow
			fields string
			synced int
		)
		if err := rows.Scan(&row.ID, &row.SubjectID, &row.Date, &fields, &synced); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(fields), &row.Fields); err != nil {
			log.Printf("[localstore] %v: record %s skipped: %v", ErrStorageCorrupt, row.ID, err)
			continue
		}
		row.Synced = synced == 1
		out = append(out, row)
	}
	return out, rows.Err()
}

// MarkRecordSynced flips the synced flag after a confirmed remote write.
func (s *Store) MarkRecordSynced(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("UPDATE attendance SET synced = 1 WHERE id = ?", id)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
