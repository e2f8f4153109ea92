package engine

import (
	"testing"

	"perimguard/internal/config"
	"perimguard/internal/model"
)

func TestClassifyLadder(t *testing.T) {
	thresholds := config.ThresholdsConfig{Black: 70, StrongAlert: 55, Gray: 30}

	acc := NewAccumulator()
	if got := classify(thresholds, acc); got != model.ClassLogOnly {
		t.Fatalf("empty accumulator: got %s", got)
	}

	acc = NewAccumulator()
	acc.AddScore("a", 69, "")
	if got := classify(thresholds, acc); got != model.ClassStrongAlert {
		t.Fatalf("score 69: got %s", got)
	}
	acc.AddScore("b", 1, "")
	if got := classify(thresholds, acc); got != model.ClassBlack {
		t.Fatalf("score 70: got %s", got)
	}

	// A direct-black marker beats any arithmetic total.
	acc = NewAccumulator()
	acc.AddScore("a", 5, "")
	acc.MarkDirectBlack("override", "")
	if got := classify(thresholds, acc); got != model.ClassBlack {
		t.Fatalf("direct black at score 5: got %s", got)
	}

	acc = NewAccumulator()
	acc.AddScore("a", 10, "")
	acc.ForceStrongAlert()
	if got := classify(thresholds, acc); got != model.ClassStrongAlert {
		t.Fatalf("forced strong alert: got %s", got)
	}

	acc = NewAccumulator()
	acc.AddScore("a", 10, "")
	acc.MarkForcedGray("g", "")
	if got := classify(thresholds, acc); got != model.ClassGray {
		t.Fatalf("forced gray: got %s", got)
	}

	acc = NewAccumulator()
	acc.AddScore("a", 10, "")
	acc.MarkWhite("w", "")
	if got := classify(thresholds, acc); got != model.ClassWhite {
		t.Fatalf("white marker below gray: got %s", got)
	}

	// White never suppresses a threshold crossing.
	acc.AddScore("b", 25, "")
	if got := classify(thresholds, acc); got != model.ClassGray {
		t.Fatalf("white with gray score: got %s", got)
	}
}

func TestAccumulatorDropsNonPositiveWeights(t *testing.T) {
	acc := NewAccumulator()
	acc.AddScore("zero", 0, "")
	acc.AddScore("negative", -5, "")
	acc.AddScore("real", 7, "")
	if acc.Total != 7 || len(acc.Hits) != 1 {
		t.Fatalf("total %d, hits %d", acc.Total, len(acc.Hits))
	}
}

func TestEvidenceNeverNilScoreHits(t *testing.T) {
	acc := NewAccumulator()
	ev := acc.Evidence()
	if ev.ScoreHits == nil {
		t.Fatalf("score hits must serialize as an empty array, not null")
	}
}
