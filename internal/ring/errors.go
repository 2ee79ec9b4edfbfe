package ring

import (
	"context"
	"errors"

	"marketmelee.ai/internal/auth"
	"marketmelee.ai/internal/persistence/store"
	"marketmelee.ai/internal/protocol"
	"marketmelee.ai/internal/sim/boxer"
)

// ErrorCode maps an error from this package (or its collaborators) to a wire code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, auth.ErrUnauthorized):
		return protocol.ErrUnauthorized
	case errors.Is(err, store.ErrAlreadyExists):
		return protocol.ErrAlreadyExists
	case errors.Is(err, store.ErrNotFound):
		return protocol.ErrNotFound
	case errors.Is(err, boxer.ErrInvalidSignal):
		return protocol.ErrInvalidSignal
	case errors.Is(err, boxer.ErrInvalidToken):
		return protocol.ErrBadRequest
	case errors.Is(err, store.ErrStorageUnavailable), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return protocol.ErrStorageUnavailable
	default:
		return protocol.ErrInternal
	}
}
