package tuning

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultsValidate(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoad_OverridesOnlyGivenKeys(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "tuning.yaml")
	raw := "engine:\n  weights:\n    attack_volume: 0.5\n  moves:\n    uppercut_min: 80\n"
	if err := os.WriteFile(p, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Engine.Weights.AttackVolume != 0.5 {
		t.Fatalf("attack_volume=%v", got.Engine.Weights.AttackVolume)
	}
	if got.Engine.Moves.UppercutMin != 80 {
		t.Fatalf("uppercut_min=%v", got.Engine.Moves.UppercutMin)
	}
	def := Defaults()
	if got.Engine.Weights.AttackPrice != def.Engine.Weights.AttackPrice {
		t.Fatalf("attack_price should keep default, got %v", got.Engine.Weights.AttackPrice)
	}
	if got.AnimationQueue != def.AnimationQueue {
		t.Fatalf("animation_queue=%d", got.AnimationQueue)
	}
}

func TestLoad_RejectsBadBands(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "tuning.yaml")
	raw := "engine:\n  moves:\n    hook_min: 50\n    uppercut_min: 10\n"
	if err := os.WriteFile(p, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := Load(p)
	if err == nil || !strings.Contains(err.Error(), "uppercut_min") {
		t.Fatalf("expected uppercut_min error, got %v", err)
	}
}

func TestLoad_RepoDefaultFile(t *testing.T) {
	got, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("Load configs/tuning.yaml: %v", err)
	}
	if got.Engine.Digest() != Defaults().Engine.Digest() {
		t.Fatalf("configs/tuning.yaml drifted from Defaults()")
	}
}

func TestEngineDigest_ChangesWithWeights(t *testing.T) {
	a := Defaults().Engine
	b := a
	b.Weights.DefenseVolatility = 5
	if a.Digest() == b.Digest() {
		t.Fatalf("digest should change with weights")
	}
	if a.Digest() != Defaults().Engine.Digest() {
		t.Fatalf("digest not stable")
	}
}
