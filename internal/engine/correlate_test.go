package engine

import (
	"testing"
	"time"
)

func TestHasMatch(t *testing.T) {
	tol := 2 * time.Minute
	base := at(t, "2026-03-10T22:00:00Z")
	primary := []time.Time{base}
	if !hasMatch(primary, []time.Time{base.Add(90 * time.Second)}, tol) {
		t.Fatalf("expected match inside tolerance")
	}
	if hasMatch(primary, []time.Time{base.Add(3 * time.Minute)}, tol) {
		t.Fatalf("unexpected match outside tolerance")
	}
	if hasMatch(nil, []time.Time{base}, tol) || hasMatch(primary, nil, tol) {
		t.Fatalf("empty side must not match")
	}
}

func TestHasGroupMatch(t *testing.T) {
	tol := 2 * time.Minute
	base := at(t, "2026-03-10T22:00:00Z")
	primary := []time.Time{base}
	one := []time.Time{base.Add(time.Minute)}
	two := []time.Time{base.Add(time.Minute), base.Add(-time.Minute)}

	if hasGroupMatch(primary, one, tol, 2) {
		t.Fatalf("single correlated device must not satisfy group threshold")
	}
	if !hasGroupMatch(primary, two, tol, 2) {
		t.Fatalf("two correlated devices should satisfy group threshold")
	}
	if !hasGroupMatch(primary, one, tol, 1) {
		t.Fatalf("threshold 1 behaves like hasMatch")
	}
}
