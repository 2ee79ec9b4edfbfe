package boxer

import (
	"fmt"
	"math"

	"marketmelee.ai/internal/sim/logic/mathx"
	"marketmelee.ai/internal/sim/tuning"
)

// AnimationRequest asks the renderer to play a move for a token.
type AnimationRequest struct {
	Token string `json:"token"`
	Move  Move   `json:"move"`
}

// Scores are the pre-clamp attack/defense values for a signal.
type Scores struct {
	RawAttack  float64
	RawDefense float64
}

// Engine computes transitions. It holds only immutable tuning and is safe for concurrent use.
type Engine struct {
	cfg tuning.Engine
}

func NewEngine(cfg tuning.Engine) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine tuning: %w", err)
	}
	return &Engine{cfg: cfg}, nil
}

func (e *Engine) Tuning() tuning.Engine { return e.cfg }

// Validate rejects non-finite, negative-magnitude, or out-of-range signals.
func (e *Engine) Validate(sig Signal) error {
	fields := []struct {
		name  string
		v     float64
		limit float64
		abs   bool
	}{
		{"price_delta", sig.PriceDelta, e.cfg.Limits.MaxAbsPriceDelta, true},
		{"volume", sig.Volume, e.cfg.Limits.MaxVolume, false},
		{"volatility", sig.Volatility, e.cfg.Limits.MaxVolatility, false},
	}
	for _, f := range fields {
		if !mathx.IsFinite(f.v) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidSignal, f.name)
		}
		mag := f.v
		if f.abs {
			mag = math.Abs(f.v)
		} else if f.v < 0 {
			return fmt.Errorf("%w: %s must be >= 0 (got %v)", ErrInvalidSignal, f.name, f.v)
		}
		if mag > f.limit {
			return fmt.Errorf("%w: %s magnitude %v exceeds %v", ErrInvalidSignal, f.name, mag, f.limit)
		}
	}
	return nil
}

// Score computes the raw scores for a validated signal.
func (e *Engine) Score(sig Signal) Scores {
	w := e.cfg.Weights
	return Scores{
		RawAttack:  mathx.PosPart(sig.PriceDelta)*w.AttackPrice + sig.Volume*w.AttackVolume,
		RawDefense: mathx.PosPart(-sig.PriceDelta)*w.DefensePrice + sig.Volatility*w.DefenseVolatility,
	}
}

// SelectMove picks the move for a validated signal. The mapping is total: every
// signal lands on exactly one move.
func (e *Engine) SelectMove(sig Signal, sc Scores) Move {
	switch {
	case sig.PriceDelta < 0:
		return MoveDodge
	case sig.PriceDelta == 0:
		return MoveStumble
	case sc.RawAttack < sc.RawDefense:
		// Rising price but the defense side dominates.
		return MoveDodge
	case sig.Volume > e.cfg.Moves.HighActivityVolume:
		return MoveCombo
	case sig.PriceDelta >= e.cfg.Moves.UppercutMin:
		return MoveUppercut
	case sig.PriceDelta >= e.cfg.Moves.HookMin:
		return MoveHook
	default:
		return MoveJab
	}
}

// Process maps (current state, signal) to the next state and the animation to emit.
// It never mutates cur and never fails on arithmetic: scores saturate into [0,255].
func (e *Engine) Process(cur State, sig Signal) (State, AnimationRequest, error) {
	if err := e.Validate(sig); err != nil {
		return cur, AnimationRequest{}, err
	}
	sc := e.Score(sig)
	next := cur
	next.AttackPower = mathx.SaturateU8(sc.RawAttack)
	next.DefensePower = mathx.SaturateU8(sc.RawDefense)
	next.LastMove = e.SelectMove(sig, sc)
	return next, AnimationRequest{Token: next.Token, Move: next.LastMove}, nil
}
