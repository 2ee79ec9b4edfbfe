package protocol

const (
	// Transport/boundary validation.
	ErrBadRequest   = "E_BAD_REQUEST"
	ErrUnauthorized = "E_UNAUTHORIZED"

	// Record lifecycle.
	ErrAlreadyExists = "E_ALREADY_EXISTS"
	ErrNotFound      = "E_NOT_FOUND"

	// Engine.
	ErrInvalidSignal = "E_INVALID_SIGNAL"

	// Storage collaborator; the only retryable code.
	ErrStorageUnavailable = "E_STORAGE_UNAVAILABLE"

	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrBadRequest:         {},
	ErrUnauthorized:       {},
	ErrAlreadyExists:      {},
	ErrNotFound:           {},
	ErrInvalidSignal:      {},
	ErrStorageUnavailable: {},
	ErrInternal:           {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// Retryable reports whether a caller may resend the same request.
func Retryable(code string) bool {
	return code == ErrStorageUnavailable
}
