package ingest

import "testing"

func TestParseJSONLine(t *testing.T) {
	p := NewParser()
	line := `{"timestamp":"2026-03-10T22:00:00Z","imsi":"460001234567890","rssi":"-67"}`
	fields, err := p.ParseLine(line)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if fields.Imsi != "460001234567890" {
		t.Fatalf("imsi: %s", fields.Imsi)
	}
	if fields.Timestamp != "2026-03-10T22:00:00Z" {
		t.Fatalf("timestamp: %s", fields.Timestamp)
	}
	if fields.Extras["rssi"] != "-67" {
		t.Fatalf("extras lost: %+v", fields.Extras)
	}
}

func TestParseJSONRadarAliases(t *testing.T) {
	p := NewParser()
	line := `{"time":"2026-03-10T22:00:00Z","host":"radar-east","target":"42","speed":0.5}`
	fields, err := p.ParseLine(line)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if fields.RadarHost != "radar-east" || fields.TargetID != "42" {
		t.Fatalf("radar fields: %s/%s", fields.RadarHost, fields.TargetID)
	}
	if fields.Extras["speed"] != "0.5" {
		t.Fatalf("speed extra: %s", fields.Extras["speed"])
	}
}

func TestParsePlainKeyValue(t *testing.T) {
	p := NewParser()
	line := "2026-03-10 22:00:00 channel=cam-03 zone=north"
	fields, err := p.ParseLine(line)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if fields.Channel != "cam-03" {
		t.Fatalf("channel: %s", fields.Channel)
	}
	if fields.Timestamp == "" {
		t.Fatalf("timestamp missing")
	}
	if fields.Extras["zone"] != "north" {
		t.Fatalf("extras: %+v", fields.Extras)
	}
}

func TestParseBlankLine(t *testing.T) {
	p := NewParser()
	fields, err := p.ParseLine("   ")
	if err != nil || fields != nil {
		t.Fatalf("blank line should be skipped, got %+v err %v", fields, err)
	}
}
