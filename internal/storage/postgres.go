package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"perimguard/internal/model"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/perimguard?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id BIGSERIAL PRIMARY KEY,
			subject_type TEXT NOT NULL,
			subject_key TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			source TEXT,
			attrs_json JSONB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_subject_ts ON events(subject_type, subject_key, ts)`,
		`CREATE INDEX IF NOT EXISTS idx_events_type_ts ON events(subject_type, ts)`,
		`CREATE TABLE IF NOT EXISTS assessments (
			subject_type TEXT NOT NULL,
			subject_key TEXT NOT NULL,
			score INTEGER NOT NULL,
			classification TEXT NOT NULL,
			summary TEXT NOT NULL,
			window_start TIMESTAMPTZ NOT NULL,
			window_end TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			event_count INTEGER NOT NULL,
			evidence_json JSONB NOT NULL,
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

func (s *postgresStore) SaveEvents(ctx context.Context, events []model.Event) error {
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
		VALUES ($1, $2, $3, $4, $5)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx,
			string(ev.SubjectType),
			ev.SubjectKey,
			ev.Timestamp.UTC(),
			ev.Source,
			encodeJSON(ev.Attributes),
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *postgresStore) SubjectEvents(ctx context.Context, subjectType model.SubjectType, subjectKey string, from, to time.Time) ([]model.Event, error) {
	if s.db == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, source, attrs_json FROM events
		WHERE subject_type = $1 AND subject_key = $2 AND ts >= $3 AND ts <= $4
		ORDER BY ts ASC`,
		string(subjectType), subjectKey, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Event
	for rows.Next() {
		var ts time.Time
		var source sql.NullString
		var attrs sql.NullString
		if err := rows.Scan(&ts, &source, &attrs); err != nil {
			return nil, err
		}
		out = append(out, model.Event{
			SubjectType: subjectType,
			SubjectKey:  subjectKey,
			Timestamp:   ts.UTC(),
			Source:      source.String,
			Attributes:  decodeAttrs(attrs),
		})
	}
	return out, rows.Err()
}

func (s *postgresStore) TypeTimestamps(ctx context.Context, subjectType model.SubjectType, from, to time.Time) ([]time.Time, error) {
	if s.db == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts FROM events
		WHERE subject_type = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts ASC`,
		string(subjectType), from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []time.Time
	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		out = append(out, ts.UTC())
	}
	return out, rows.Err()
}

func (s *postgresStore) Subjects(ctx context.Context, since time.Time) ([]model.SubjectRef, error) {
	if s.db == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT subject_type, subject_key FROM events WHERE ts >= $1`,
		since.UTC())
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

func (s *postgresStore) UpsertAssessment(ctx context.Context, a model.Assessment) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assessments
			(subject_type, subject_key, score, classification, summary,
			window_start, window_end, updated_at, event_count, evidence_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (subject_type, subject_key) DO UPDATE SET
			score = EXCLUDED.score,
			classification = EXCLUDED.classification,
			summary = EXCLUDED.summary,
			window_start = EXCLUDED.window_start,
			window_end = EXCLUDED.window_end,
			updated_at = EXCLUDED.updated_at,
			event_count = EXCLUDED.event_count,
			evidence_json = EXCLUDED.evidence_json`,
		string(a.SubjectType),
		a.SubjectKey,
		a.Score,
		string(a.Classification),
		a.Summary,
		a.WindowStart.UTC(),
		a.WindowEnd.UTC(),
		a.UpdatedAt.UTC(),
		a.EventCount,
		encodeJSON(a.Evidence),
	)
	return err
}

func (s *postgresStore) ClearAssessments(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM assessments`)
	return err
}
