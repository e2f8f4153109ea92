package normalize

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"perimguard/internal/config"
	"perimguard/internal/model"
)

// EventFields is the loosely typed output of the ingest parsers, before
// subject resolution. Whatever field a sensor populates decides which
// subject the event belongs to.
type EventFields struct {
	Timestamp   string
	SubjectType string
	Imsi        string
	Channel     string
	RadarHost   string
	TargetID    string
	Extras      map[string]string
	Raw         string
}

// Normalize resolves subject identity and timestamp. Events without a
// parseable timestamp are rejected: an unordered event would corrupt every
// window computation downstream, so dropping beats guessing.
func Normalize(fields EventFields, cfg *config.Config) (model.Event, error) {
	loc := time.UTC
	if cfg.Ingest.Parser.Timezone != "" {
		if l, err := time.LoadLocation(cfg.Ingest.Parser.Timezone); err == nil {
			loc = l
		}
	}

	if strings.TrimSpace(fields.Timestamp) == "" {
		return model.Event{}, errors.New("missing timestamp")
	}
	ts, err := ParseTimestamp(fields.Timestamp, loc)
	if err != nil {
		return model.Event{}, fmt.Errorf("parse timestamp: %w", err)
	}

	subjectType, subjectKey, err := resolveSubject(fields)
	if err != nil {
		return model.Event{}, err
	}

	return model.Event{
		SubjectType: subjectType,
		SubjectKey:  subjectKey,
		Timestamp:   ts.UTC(),
		Attributes:  fields.Extras,
	}, nil
}

// resolveSubject infers the sensor type from whichever identity field is
// populated, unless an explicit subject_type says otherwise. Radar keys
// combine host and target so target ids from different radars never merge.
func resolveSubject(fields EventFields) (model.SubjectType, string, error) {
	imsi := strings.TrimSpace(fields.Imsi)
	channel := strings.TrimSpace(fields.Channel)
	host := strings.TrimSpace(fields.RadarHost)
	target := strings.TrimSpace(fields.TargetID)

	switch strings.ToUpper(strings.TrimSpace(fields.SubjectType)) {
	case string(model.SubjectIMSI):
		if imsi == "" {
			return "", "", errors.New("imsi event missing imsi")
		}
		return model.SubjectIMSI, imsi, nil
	case string(model.SubjectCamera):
		if channel == "" {
			return "", "", errors.New("camera event missing channel")
		}
		return model.SubjectCamera, channel, nil
	case string(model.SubjectRadar):
		return radarSubject(host, target)
	}

	switch {
	case imsi != "":
		return model.SubjectIMSI, imsi, nil
	case channel != "":
		return model.SubjectCamera, channel, nil
	case target != "":
		return radarSubject(host, target)
	default:
		return "", "", errors.New("event carries no subject identity")
	}
}

func radarSubject(host, target string) (model.SubjectType, string, error) {
	if target == "" {
		return "", "", errors.New("radar event missing target_id")
	}
	if host == "" {
		host = "radar"
	}
	return model.SubjectRadar, host + "#" + target, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z0700",
}

func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if isNumeric(value) {
		if ts, err := parseUnix(value); err == nil {
			return ts, nil
		}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp format: %q", value)
}

func isNumeric(value string) bool {
	for _, ch := range value {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return len(value) > 0
}

func parseUnix(value string) (time.Time, error) {
	if len(value) >= 13 {
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(0, ms*int64(time.Millisecond)).UTC(), nil
	}
	sec, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0).UTC(), nil
}
