package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"perimguard/internal/normalize"
)

func ParseJSONBytes(data []byte) (*normalize.EventFields, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	return ParseJSONMap(obj), nil
}

// ParseJSONMap maps the sensor-specific field aliases onto EventFields.
// Every key also lands in Extras so rule-relevant attributes like radar
// speed survive normalization.
func ParseJSONMap(obj map[string]interface{}) *normalize.EventFields {
	fields := &normalize.EventFields{Extras: map[string]string{}}
	for key, val := range obj {
		fields.Extras[strings.ToLower(key)] = fmt.Sprint(val)
	}
	fields.Timestamp = firstNonEmpty(fields.Extras, "timestamp", "time", "ts", "captured_at", "created_at", "fetched_at")
	fields.SubjectType = firstNonEmpty(fields.Extras, "subject_type", "type", "sensor")
	fields.Imsi = firstNonEmpty(fields.Extras, "imsi")
	fields.Channel = firstNonEmpty(fields.Extras, "channel", "cam_channel", "camera")
	fields.RadarHost = firstNonEmpty(fields.Extras, "radar_host", "host")
	fields.TargetID = firstNonEmpty(fields.Extras, "target_id", "target")
	return fields
}
