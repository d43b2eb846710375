package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")

	ErrAuth             = fmt.Errorf("authentication failed")
	ErrMissingToken     = fmt.Errorf("credential missing")
	ErrMalformedToken   = fmt.Errorf("credential malformed")
	ErrExpiredToken     = fmt.Errorf("credential expired")
	ErrInvalidSignature = fmt.Errorf("credential signature invalid")
	ErrInvalidSubject   = fmt.Errorf("credential subject invalid")

	ErrValidation           = fmt.Errorf("validation failed")
	ErrInvalidParticipantID = fmt.Errorf("invalid participant identifier")
	ErrUnknownReceiverType  = fmt.Errorf("unknown receiver type")
	ErrEmptyContent         = fmt.Errorf("content is empty")
	ErrContentTooLong       = fmt.Errorf("content is too long")
	ErrSelfMessage          = fmt.Errorf("sender and receiver are the same participant")
	ErrUnknownEvent         = fmt.Errorf("unknown event")

	ErrStoreUnavailable = fmt.Errorf("message store unavailable")
	ErrSessionClosed    = fmt.Errorf("session closed")
	ErrQueueOverflow    = fmt.Errorf("session outbound queue overflow")
)

// Auth wraps a verification failure reason so callers can match on both ErrAuth and the reason.
func Auth(reason error) error {
	return fmt.Errorf("%w: %w", ErrAuth, reason)
}

// Validation wraps a send-request rejection reason with ErrValidation.
func Validation(reason error) error {
	return fmt.Errorf("%w: %w", ErrValidation, reason)
}

// StoreUnavailable wraps a storage driver error.
func StoreUnavailable(cause error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, cause)
}

// MapToHTTPStatus translates a service error into the status code returned by REST endpoints.
func MapToHTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
