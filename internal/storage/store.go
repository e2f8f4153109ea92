package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"perimguard/internal/config"
	"perimguard/internal/model"
)

// Store persists raw events and the single current assessment per subject.
// SubjectEvents and TypeTimestamps return rows in ascending timestamp order.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	SaveEvents(ctx context.Context, events []model.Event) error
	SubjectEvents(ctx context.Context, subjectType model.SubjectType, subjectKey string, from, to time.Time) ([]model.Event, error)
	TypeTimestamps(ctx context.Context, subjectType model.SubjectType, from, to time.Time) ([]time.Time, error)
	Subjects(ctx context.Context, since time.Time) ([]model.SubjectRef, error)
	UpsertAssessment(ctx context.Context, a model.Assessment) error
	ClearAssessments(ctx context.Context) error
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, errors.New("unsupported storage driver")
	}
}

type baseStore struct {
	db *sql.DB
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

// encodeJSON never fails the caller: a value that cannot marshal is stored
// as an empty object so the row still lands.
func encodeJSON(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func decodeAttrs(raw sql.NullString) map[string]string {
	if !raw.Valid || raw.String == "" || raw.String == "{}" {
		return nil
	}
	attrs := make(map[string]string)
	if err := json.Unmarshal([]byte(raw.String), &attrs); err != nil {
		return nil
	}
	return attrs
}

// tsText is the canonical timestamp encoding for the sqlite driver. UTC
// RFC3339Nano strings sort lexicographically in time order, so range scans
// work with plain string comparison.
func tsText(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339Nano)
}

func parseTS(raw string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return ts
}
