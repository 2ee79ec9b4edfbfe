package tuning

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version" json:"protocol_version"`

	Engine Engine `yaml:"engine" json:"engine"`

	AnimationQueue int `yaml:"animation_queue" json:"animation_queue"`
	HistoryLimit   int `yaml:"history_limit" json:"history_limit"`
}

// Engine holds every constant the transition engine reads.
type Engine struct {
	Weights Weights `yaml:"weights" json:"weights"`
	Moves   Moves   `yaml:"moves" json:"moves"`
	Limits  Limits  `yaml:"limits" json:"limits"`
}

// Weights scale signal features into raw attack/defense scores.
type Weights struct {
	AttackPrice       float64 `yaml:"attack_price" json:"attack_price"`             // per unit of positive price delta
	AttackVolume      float64 `yaml:"attack_volume" json:"attack_volume"`           // per unit of volume
	DefensePrice      float64 `yaml:"defense_price" json:"defense_price"`           // per unit of negative price delta
	DefenseVolatility float64 `yaml:"defense_volatility" json:"defense_volatility"` // per unit of volatility
}

// Moves holds the thresholds used to pick an attacking move.
type Moves struct {
	HighActivityVolume float64 `yaml:"high_activity_volume" json:"high_activity_volume"`
	HookMin            float64 `yaml:"hook_min" json:"hook_min"`
	UppercutMin        float64 `yaml:"uppercut_min" json:"uppercut_min"`
}

// Limits bound what counts as a sane upstream signal.
type Limits struct {
	MaxAbsPriceDelta float64 `yaml:"max_abs_price_delta" json:"max_abs_price_delta"`
	MaxVolume        float64 `yaml:"max_volume" json:"max_volume"`
	MaxVolatility    float64 `yaml:"max_volatility" json:"max_volatility"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",
		Engine: Engine{
			Weights: Weights{
				AttackPrice:       2.0,
				AttackVolume:      0.1,
				DefensePrice:      2.0,
				DefenseVolatility: 4.0,
			},
			Moves: Moves{
				HighActivityVolume: 500,
				HookMin:            10,
				UppercutMin:        50,
			},
			Limits: Limits{
				MaxAbsPriceDelta: 1e6,
				MaxVolume:        1e12,
				MaxVolatility:    1e6,
			},
		},
		AnimationQueue: 1024,
		HistoryLimit:   100,
	}
}

// Load reads path over Defaults, so a tuning file only needs the keys it overrides.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if err := t.Engine.Validate(); err != nil {
		return err
	}
	if t.AnimationQueue <= 0 {
		return errors.New("animation_queue must be > 0")
	}
	if t.HistoryLimit <= 0 {
		return errors.New("history_limit must be > 0")
	}
	return nil
}

func (e Engine) Validate() error {
	w := e.Weights
	for name, v := range map[string]float64{
		"weights.attack_price":       w.AttackPrice,
		"weights.attack_volume":      w.AttackVolume,
		"weights.defense_price":      w.DefensePrice,
		"weights.defense_volatility": w.DefenseVolatility,
		"moves.high_activity_volume": e.Moves.HighActivityVolume,
		"moves.hook_min":             e.Moves.HookMin,
		"moves.uppercut_min":         e.Moves.UppercutMin,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%s must be finite and >= 0 (got %v)", name, v)
		}
	}
	if e.Moves.HookMin <= 0 {
		return errors.New("moves.hook_min must be > 0")
	}
	if e.Moves.UppercutMin <= e.Moves.HookMin {
		return errors.New("moves.uppercut_min must be > moves.hook_min")
	}
	l := e.Limits
	for name, v := range map[string]float64{
		"limits.max_abs_price_delta": l.MaxAbsPriceDelta,
		"limits.max_volume":          l.MaxVolume,
		"limits.max_volatility":      l.MaxVolatility,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return fmt.Errorf("%s must be finite and > 0 (got %v)", name, v)
		}
	}
	return nil
}

// Digest is the sha256 of the engine section's canonical JSON. Replays compare it to
// detect logs recorded under different constants.
func (e Engine) Digest() string {
	b, _ := json.Marshal(e)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
