package boxer

import "fmt"

// Move is the closed set of moves a boxer can show.
type Move uint8

const (
	MoveStumble Move = iota + 1
	MoveJab
	MoveHook
	MoveUppercut
	MoveDodge
	MoveCombo
)

var moveNames = map[Move]string{
	MoveStumble:  "Stumble",
	MoveJab:      "Jab",
	MoveHook:     "Hook",
	MoveUppercut: "Uppercut",
	MoveDodge:    "Dodge",
	MoveCombo:    "Combo",
}

// AllMoves lists every move in declaration order.
func AllMoves() []Move {
	return []Move{MoveStumble, MoveJab, MoveHook, MoveUppercut, MoveDodge, MoveCombo}
}

func (m Move) Valid() bool {
	_, ok := moveNames[m]
	return ok
}

func (m Move) String() string {
	if s, ok := moveNames[m]; ok {
		return s
	}
	return fmt.Sprintf("Move(%d)", uint8(m))
}

func ParseMove(s string) (Move, error) {
	for m, name := range moveNames {
		if name == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown move %q", s)
}

func (m Move) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("invalid move %d", uint8(m))
	}
	return []byte(m.String()), nil
}

func (m *Move) UnmarshalText(b []byte) error {
	v, err := ParseMove(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
