package boxer

import (
	"errors"
	"fmt"
	"unicode"
)

const (
	InitialHealth = 100
	MaxTokenLen   = 64

	// IdleMove is what a boxer shows before its first processed signal.
	IdleMove = MoveStumble
)

var ErrInvalidToken = errors.New("invalid token")

// State is one boxer record. Fields are uint8 so the [0,255] bound holds by construction.
type State struct {
	Token        string `json:"token"`
	Health       uint8  `json:"health"`
	AttackPower  uint8  `json:"attack_power"`
	DefensePower uint8  `json:"defense_power"`
	LastMove     Move   `json:"last_move"`
}

// New returns the state a freshly created boxer starts in.
func New(token string) (State, error) {
	token, err := NormalizeToken(token)
	if err != nil {
		return State{}, err
	}
	return State{
		Token:    token,
		Health:   InitialHealth,
		LastMove: IdleMove,
	}, nil
}

// NormalizeToken rejects empty, oversized, or whitespace/control-bearing
// tokens. Surrounding space is an error, not something to strip.
func NormalizeToken(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidToken)
	}
	if len(token) > MaxTokenLen {
		return "", fmt.Errorf("%w: longer than %d bytes", ErrInvalidToken, MaxTokenLen)
	}
	for _, r := range token {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return "", fmt.Errorf("%w: contains whitespace or control characters", ErrInvalidToken)
		}
	}
	return token, nil
}

// Phase is the lifecycle position of a token.
type Phase uint8

const (
	PhaseUninitialized Phase = iota
	PhaseActive
)

func (p Phase) String() string {
	if p == PhaseActive {
		return "Active"
	}
	return "Uninitialized"
}
