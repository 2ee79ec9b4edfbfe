package log

import (
	"path/filepath"
	"testing"
	"time"

	"marketmelee.ai/internal/sim/boxer"
)

func TestTransitionLogger_RoundTripAcrossRotation(t *testing.T) {
	dir := t.TempDir()
	l := NewTransitionLogger(dir)
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	l.w.now = func() time.Time { return clock }

	before := boxer.State{Token: "SOL", Health: 100, LastMove: boxer.MoveStumble}
	after := boxer.State{Token: "SOL", Health: 100, AttackPower: 200, DefensePower: 20, LastMove: boxer.MoveCombo}
	first := TransitionEntry{
		TS: clock.Format(time.RFC3339Nano), TransitionID: "a", Token: "SOL", Revision: 2,
		TuningDigest: "d", Signal: boxer.Signal{PriceDelta: 50, Volume: 1000, Volatility: 5},
		Before: before, After: after,
	}
	if err := l.WriteTransition(first); err != nil {
		t.Fatalf("WriteTransition: %v", err)
	}
	clock = clock.Add(2 * time.Minute)
	second := first
	second.TransitionID = "b"
	second.Revision = 3
	if err := l.WriteTransition(second); err != nil {
		t.Fatalf("WriteTransition: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files, err := ListFiles(filepath.Join(dir, "transitions"), "transitions")
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files=%v want one per hour", files)
	}

	var got []TransitionEntry
	for _, f := range files {
		if err := ReadTransitions(f, func(e TransitionEntry) error {
			got = append(got, e)
			return nil
		}); err != nil {
			t.Fatalf("ReadTransitions: %v", err)
		}
	}
	if len(got) != 2 || got[0] != first || got[1] != second {
		t.Fatalf("got %+v", got)
	}
}
