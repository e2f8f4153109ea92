package ingest

import (
	"regexp"
	"strings"

	"perimguard/internal/normalize"
)

var (
	reTimestamp = regexp.MustCompile(`^\s*([0-9]{4}-[0-9]{2}-[0-9]{2}[ T][0-9:.+-Z]+)`)
	reKV        = regexp.MustCompile(`(?i)([a-zA-Z_]+)=([^\s]+)`)
)

// Parser turns one ingest line into EventFields. JSON lines are the normal
// case; plain key=value lines are accepted for manual injection and replay.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) ParseLine(line string) (*normalize.EventFields, error) {
	trim := strings.TrimSpace(line)
	if trim == "" {
		return nil, nil
	}
	if looksLikeJSON(trim) {
		if fields, err := ParseJSONBytes([]byte(trim)); err == nil {
			fields.Raw = line
			return fields, nil
		}
	}
	fields := parsePlain(trim)
	fields.Raw = line
	return fields, nil
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func parsePlain(line string) *normalize.EventFields {
	fields := &normalize.EventFields{Extras: map[string]string{}}
	ts, _ := extractTimestamp(line)
	fields.Timestamp = ts

	kv := map[string]string{}
	for _, match := range reKV.FindAllStringSubmatch(line, -1) {
		kv[strings.ToLower(match[1])] = match[2]
	}
	if fields.Timestamp == "" {
		fields.Timestamp = firstNonEmpty(kv, "timestamp", "time", "ts")
	}
	fields.SubjectType = firstNonEmpty(kv, "subject_type", "type", "sensor")
	fields.Imsi = firstNonEmpty(kv, "imsi")
	fields.Channel = firstNonEmpty(kv, "channel", "cam_channel", "camera")
	fields.RadarHost = firstNonEmpty(kv, "radar_host", "host")
	fields.TargetID = firstNonEmpty(kv, "target_id", "target")
	for k, v := range kv {
		fields.Extras[k] = v
	}
	return fields
}

func extractTimestamp(line string) (string, string) {
	m := reTimestamp.FindStringSubmatchIndex(line)
	if len(m) >= 4 {
		ts := strings.TrimSpace(line[m[2]:m[3]])
		rest := strings.TrimSpace(line[m[3]:])
		return ts, rest
	}
	return "", line
}

func firstNonEmpty(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(m[k]); v != "" {
			return v
		}
	}
	return ""
}
