package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/rahul/conductor/internal/report"
)

// ErrNotFound is returned when a run or schedule does not exist.
var ErrNotFound = errors.New("not found")

const timeLayout = "2006-01-02 15:04:05"

// RunStore keeps run history and schedules in SQLite.
type RunStore struct {
	DB *sql.DB
}

func Open(dbPath string) (*RunStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	// Create tables if not exist
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			source TEXT,
			status TEXT,
			steps_executed INTEGER,
			total_steps INTEGER,
			error_count INTEGER,
			report_json TEXT,
			created_at TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs (created_at);`,
		`CREATE TABLE IF NOT EXISTS schedules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			label TEXT,
			description TEXT,
			interval_seconds INTEGER,
			last_run TEXT,
			status TEXT DEFAULT 'active'
		);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &RunStore{DB: db}, nil
}

func (s *RunStore) Close() error {
	return s.DB.Close()
}

// SaveReport stores r, replacing an earlier report with the same run ID.
func (s *RunStore) SaveReport(r *report.Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	created := r.StartedAt
	if created.IsZero() {
		created = time.Now()
	}
	query := `INSERT OR REPLACE INTO runs (id, source, status, steps_executed, total_steps, error_count, report_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.DB.Exec(query, r.RunID, r.Source, string(r.Status), r.StepsExecuted, r.TotalSteps, len(r.Errors), string(data), created.UTC().Format(timeLayout))
	return err
}

func (s *RunStore) GetRun(id string) (*RunRecord, error) {
	query := `SELECT id, source, status, steps_executed, total_steps, error_count, report_json, created_at FROM runs WHERE id = ?`
	var rec RunRecord
	var reportJSON, created string
	err := s.DB.QueryRow(query, id).Scan(&rec.ID, &rec.Source, &rec.Status, &rec.StepsExecuted, &rec.TotalSteps, &rec.ErrorCount, &reportJSON, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	rec.Report = json.RawMessage(reportJSON)
	rec.CreatedAt = parseTime(created)
	return &rec, nil
}

// ListRuns returns the most recent runs first, without their report bodies.
func (s *RunStore) ListRuns(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, source, status, steps_executed, total_steps, error_count, created_at FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`
	rows, err := s.DB.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var rec RunRecord
		var created string
		if err := rows.Scan(&rec.ID, &rec.Source, &rec.Status, &rec.StepsExecuted, &rec.TotalSteps, &rec.ErrorCount, &created); err != nil {
			return nil, err
		}
		rec.CreatedAt = parseTime(created)
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}

func (s *RunStore) AddSchedule(label, description string, intervalSeconds int) (int64, error) {
	query := `INSERT INTO schedules (label, description, interval_seconds) VALUES (?, ?, ?)`
	res, err := s.DB.Exec(query, label, description, intervalSeconds)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *RunStore) ListSchedules() ([]Schedule, error) {
	return s.querySchedules(`SELECT id, label, description, interval_seconds, last_run, status FROM schedules WHERE status = 'active' ORDER BY id`)
}

// DueSchedules returns the active schedules that never ran or whose interval
// has elapsed at now.
func (s *RunStore) DueSchedules(now time.Time) ([]Schedule, error) {
	query := `
		SELECT id, label, description, interval_seconds, last_run, status
		FROM schedules
		WHERE status = 'active'
		AND (last_run IS NULL OR CAST(strftime('%s', ?) AS INTEGER) - CAST(strftime('%s', last_run) AS INTEGER) >= interval_seconds)
		ORDER BY id`
	return s.querySchedules(query, now.UTC().Format(timeLayout))
}

func (s *RunStore) querySchedules(query string, args ...any) ([]Schedule, error) {
	rows, err := s.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []Schedule
	for rows.Next() {
		var sc Schedule
		var lastRun sql.NullString
		if err := rows.Scan(&sc.ID, &sc.Label, &sc.Description, &sc.IntervalSeconds, &lastRun, &sc.Status); err != nil {
			return nil, err
		}
		if lastRun.Valid && lastRun.String != "" {
			t := parseTime(lastRun.String)
			sc.LastRun = &t
		}
		schedules = append(schedules, sc)
	}
	return schedules, rows.Err()
}

func (s *RunStore) MarkScheduleRun(id int64, at time.Time) error {
	query := `UPDATE schedules SET last_run = ? WHERE id = ?`
	_, err := s.DB.Exec(query, at.UTC().Format(timeLayout), id)
	return err
}

func (s *RunStore) DeleteSchedule(id int64) error {
	res, err := s.DB.Exec(`DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("schedule %d: %w", id, ErrNotFound)
	}
	return nil
}

func parseTime(s string) time.Time {
	t, err := time.ParseInLocation(timeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}
