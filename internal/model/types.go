package model

import "time"

type SubjectType string

const (
	SubjectIMSI   SubjectType = "IMSI"
	SubjectCamera SubjectType = "CAMERA"
	SubjectRadar  SubjectType = "RADAR"
)

type Classification string

const (
	ClassBlack       Classification = "BLACK"
	ClassStrongAlert Classification = "STRONG_ALERT"
	ClassGray        Classification = "GRAY"
	ClassWhite       Classification = "WHITE"
	ClassLogOnly     Classification = "LOG_ONLY"
)

// SubjectRef is the natural key of one tracked subject.
type SubjectRef struct {
	Type SubjectType `json:"subject_type"`
	Key  string      `json:"subject_key"`
}

func (r SubjectRef) String() string {
	return string(r.Type) + "|" + r.Key
}

// Event is one normalized sensor detection. Events are immutable once
// recorded; the engine only reads them.
type Event struct {
	SubjectType SubjectType       `json:"subject_type"`
	SubjectKey  string            `json:"subject_key"`
	Timestamp   time.Time         `json:"timestamp"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Source      string            `json:"source,omitempty"`
}

func (e Event) Subject() SubjectRef {
	return SubjectRef{Type: e.SubjectType, Key: e.SubjectKey}
}

// RuleHit records one scoring rule firing. Weight is always positive.
type RuleHit struct {
	ID          string `json:"id"`
	Weight      int    `json:"weight"`
	Description string `json:"description"`
}

// Marker records an override rule firing. Markers carry no score, only
// classification influence.
type Marker struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// Evidence bundles everything a rule pass produced, for audit and UI display.
type Evidence struct {
	ScoreHits   []RuleHit      `json:"scoreHits"`
	ForcedGray  []Marker       `json:"forcedGray,omitempty"`
	DirectBlack []Marker       `json:"directBlack,omitempty"`
	WhiteRules  []Marker       `json:"whiteRules,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Assessment is the engine's sole externally visible output per subject.
// One logical record per (subject_type, subject_key); upserts overwrite in
// place, there is no assessment history.
type Assessment struct {
	SubjectType    SubjectType    `json:"subject_type"`
	SubjectKey     string         `json:"subject_key"`
	Score          int            `json:"score"`
	Classification Classification `json:"classification"`
	Summary        string         `json:"summary"`
	WindowStart    time.Time      `json:"window_start"`
	WindowEnd      time.Time      `json:"window_end"`
	UpdatedAt      time.Time      `json:"updated_at"`
	EventCount     int            `json:"event_count"`
	Evidence       Evidence       `json:"evidence"`
}

func (a Assessment) Subject() SubjectRef {
	return SubjectRef{Type: a.SubjectType, Key: a.SubjectKey}
}

// Escalation is a notification-grade record appended when an evaluation
// lands on BLACK or STRONG_ALERT.
type Escalation struct {
	ID             string         `json:"id"`
	Timestamp      time.Time      `json:"timestamp"`
	SubjectType    SubjectType    `json:"subject_type"`
	SubjectKey     string         `json:"subject_key"`
	Classification Classification `json:"classification"`
	Score          int            `json:"score"`
	Summary        string         `json:"summary"`
}
