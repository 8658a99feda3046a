package core

// Error codes for domain errors surfaced to clients.
const (
	ErrCodeNotAuthenticated   = "not_authenticated"
	ErrCodeRoomNotFound       = "room_not_found"
	ErrCodeAccessDenied       = "access_denied"
	ErrCodeInvalidMessage     = "invalid_message"
	ErrCodeAlreadyParticipant = "already_participant"
	ErrCodeParticipantLimit   = "participant_limit_exceeded"
	ErrCodeNotParticipant     = "not_participant"
	ErrCodeAuthFailed         = "auth_failed"
	ErrCodeInternal           = "internal_error"
)

// Error wraps a code and human-readable message. Errors of this type are
// emitted to the originating connection only and never terminate it.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func domainError(code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// errInternal is the generic failure surfaced when a collaborator fails;
// internal detail stays in the logs.
func errInternal() *Error {
	return domainError(ErrCodeInternal, "internal error")
}
