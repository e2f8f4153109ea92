package engine

import (
	"perimguard/internal/config"
	"perimguard/internal/model"
)

// Accumulator collects weighted rule hits and override markers during one
// evaluation pass. Invariant: Total == sum of hit weights; markers never
// carry score, only classification influence.
type Accumulator struct {
	Hits        []model.RuleHit
	ForcedGray  []model.Marker
	DirectBlack []model.Marker
	White       []model.Marker
	Total       int
	StrongAlert bool
	Metadata    map[string]any
}

func NewAccumulator() *Accumulator {
	return &Accumulator{Metadata: make(map[string]any)}
}

// AddScore records one rule firing. Zero or negative contributions are
// dropped; a rule fires per evaluation, not per event.
func (a *Accumulator) AddScore(id string, weight int, description string) {
	if weight <= 0 {
		return
	}
	a.Hits = append(a.Hits, model.RuleHit{ID: id, Weight: weight, Description: description})
	a.Total += weight
}

func (a *Accumulator) MarkForcedGray(id, reason string) {
	a.ForcedGray = append(a.ForcedGray, model.Marker{ID: id, Reason: reason})
}

func (a *Accumulator) MarkDirectBlack(id, reason string) {
	a.DirectBlack = append(a.DirectBlack, model.Marker{ID: id, Reason: reason})
}

func (a *Accumulator) MarkWhite(id, reason string) {
	a.White = append(a.White, model.Marker{ID: id, Reason: reason})
}

func (a *Accumulator) ForceStrongAlert() {
	a.StrongAlert = true
}

func (a *Accumulator) SetMetadata(key string, value any) {
	a.Metadata[key] = value
}

func (a *Accumulator) Evidence() model.Evidence {
	ev := model.Evidence{
		ScoreHits:   a.Hits,
		ForcedGray:  a.ForcedGray,
		DirectBlack: a.DirectBlack,
		WhiteRules:  a.White,
	}
	if len(a.Metadata) > 0 {
		ev.Metadata = a.Metadata
	}
	if ev.ScoreHits == nil {
		ev.ScoreHits = []model.RuleHit{}
	}
	return ev
}

// classify applies the strict override ladder, first match wins. A single
// direct-black marker beats any arithmetic total.
func classify(t config.ThresholdsConfig, acc *Accumulator) model.Classification {
	switch {
	case len(acc.DirectBlack) > 0 || acc.Total >= t.Black:
		return model.ClassBlack
	case acc.Total >= t.StrongAlert || acc.StrongAlert:
		return model.ClassStrongAlert
	case acc.Total >= t.Gray || len(acc.ForcedGray) > 0:
		return model.ClassGray
	case len(acc.White) > 0:
		return model.ClassWhite
	default:
		return model.ClassLogOnly
	}
}
