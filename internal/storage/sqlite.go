package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"perimguard/internal/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:perimguard.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			subject_type TEXT NOT NULL,
			subject_key TEXT NOT NULL,
			ts TEXT NOT NULL,
			source TEXT,
			attrs_json TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_subject_ts ON events(subject_type, subject_key, ts)`,
		`CREATE INDEX IF NOT EXISTS idx_events_type_ts ON events(subject_type, ts)`,
		`CREATE TABLE IF NOT EXISTS assessments (
			subject_type TEXT NOT NULL,
			subject_key TEXT NOT NULL,
			score INTEGER NOT NULL,
			classification TEXT NOT NULL,
			summary TEXT NOT NULL,
			window_start TEXT NOT NULL,
			window_end TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			event_count INTEGER NOT NULL,
			evidence_json TEXT NOT NULL,
			PRIMARY KEY (subject_type, subject_key)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) SaveEvents(ctx context.Context, events []model.Event) error {
	if s.db == nil || len(events) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (subject_type, subject_key, ts, source, attrs_json)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx,
			string(ev.SubjectType),
			ev.SubjectKey,
			tsText(ev.Timestamp),
			ev.Source,
			encodeJSON(ev.Attributes),
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) SubjectEvents(ctx context.Context, subjectType model.SubjectType, subjectKey string, from, to time.Time) ([]model.Event, error) {
	if s.db == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, source, attrs_json FROM events
		WHERE subject_type = ? AND subject_key = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC`,
		string(subjectType), subjectKey, tsText(from), tsText(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Event
	for rows.Next() {
		var raw string
		var source sql.NullString
		var attrs sql.NullString
		if err := rows.Scan(&raw, &source, &attrs); err != nil {
			return nil, err
		}
		out = append(out, model.Event{
			SubjectType: subjectType,
			SubjectKey:  subjectKey,
			Timestamp:   parseTS(raw),
			Source:      source.String,
			Attributes:  decodeAttrs(attrs),
		})
	}
	return out, rows.Err()
}

func (s *sqliteStore) TypeTimestamps(ctx context.Context, subjectType model.SubjectType, from, to time.Time) ([]time.Time, error) {
	if s.db == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts FROM events
		WHERE subject_type = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC`,
		string(subjectType), tsText(from), tsText(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []time.Time
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		out = append(out, parseTS(raw))
	}
	return out, rows.Err()
}

func (s *sqliteStore) Subjects(ctx context.Context, since time.Time) ([]model.SubjectRef, error) {
	if s.db == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT subject_type, subject_key FROM events WHERE ts >= ?`,
		tsText(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SubjectRef
	for rows.Next() {
		var kind, key string
		if err := rows.Scan(&kind, &key); err != nil {
			return nil, err
		}
		out = append(out, model.SubjectRef{Type: model.SubjectType(kind), Key: key})
	}
	return out, rows.Err()
}

func (s *sqliteStore) UpsertAssessment(ctx context.Context, a model.Assessment) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assessments
			(subject_type, subject_key, score, classification, summary,
			window_start, window_end, updated_at, event_count, evidence_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (subject_type, subject_key) DO UPDATE SET
			score = excluded.score,
			classification = excluded.classification,
			summary = excluded.summary,
			window_start = excluded.window_start,
			window_end = excluded.window_end,
			updated_at = excluded.updated_at,
			event_count = excluded.event_count,
			evidence_json = excluded.evidence_json`,
		string(a.SubjectType),
		a.SubjectKey,
		a.Score,
		string(a.Classification),
		a.Summary,
		tsText(a.WindowStart),
		tsText(a.WindowEnd),
		tsText(a.UpdatedAt),
		a.EventCount,
		encodeJSON(a.Evidence),
	)
	return err
}

func (s *sqliteStore) ClearAssessments(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM assessments`)
	return err
}
