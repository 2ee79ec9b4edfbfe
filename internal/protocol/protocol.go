// Package protocol holds the renderer websocket messages and the JSON schemas
// that request bodies and frames are checked against.
package protocol

import (
	"encoding/json"
	"fmt"
)

const Version = "1.0"

const (
	TypeHello     = "HELLO"
	TypeWelcome   = "WELCOME"
	TypeAnimation = "ANIMATION"
)

// Envelope is the part of every frame that is read before the frame type is known.
type Envelope struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

// Peek decodes only the envelope of a frame.
func Peek(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// Is reports whether the frame has type typ.
func (e Envelope) Is(typ string) bool { return e.Type == typ }
