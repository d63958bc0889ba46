// Package errors provides structured error handling for the Darely services.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Storage errors
	CodeNotFound          Code = "NOT_FOUND"
	CodeAlreadyExists     Code = "ALREADY_EXISTS"
	CodeSizeBoundExceeded Code = "SIZE_BOUND_EXCEEDED"
	CodeStorageCorrupted  Code = "STORAGE_CORRUPTED"
	CodeRegionExhausted   Code = "REGION_EXHAUSTED"

	// Game errors
	CodeNoActiveDare     Code = "NO_ACTIVE_DARE"
	CodeActiveDareExists Code = "ACTIVE_DARE_EXISTS"
	CodeNotAdmin         Code = "NOT_ADMIN"
	CodeStreakTooLow     Code = "STREAK_TOO_LOW"
	CodeNoDaresAvailable Code = "NO_DARES_AVAILABLE"

	// Input errors
	CodeInvalidPrincipal  Code = "INVALID_PRINCIPAL"
	CodeInvalidDifficulty Code = "INVALID_DIFFICULTY"
	CodeInvalidArgument   Code = "INVALID_ARGUMENT"

	// Command errors
	CodeCommandTokenInvalid Code = "COMMAND_TOKEN_INVALID"
	CodeCommandUnknown      Code = "COMMAND_UNKNOWN"

	// Integration errors
	CodeExternalCallFailed Code = "EXTERNAL_CALL_FAILED"
)

// HTTPStatus maps domain codes to HTTP status codes for the bot router.
func (c Code) HTTPStatus() int {
	switch c {
	// Bad request - validation failures, bad input
	case CodeInvalidPrincipal,
		CodeInvalidDifficulty,
		CodeInvalidArgument:
		return http.StatusBadRequest

	// Unauthorized - command signature failures
	case CodeCommandTokenInvalid:
		return http.StatusUnauthorized

	// Forbidden - caller lacks admin rights
	case CodeNotAdmin:
		return http.StatusForbidden

	// Not found - resource doesn't exist
	case CodeNotFound,
		CodeCommandUnknown:
		return http.StatusNotFound

	// Conflict - state doesn't allow operation
	case CodeAlreadyExists,
		CodeNoActiveDare,
		CodeActiveDareExists,
		CodeStreakTooLow,
		CodeNoDaresAvailable:
		return http.StatusConflict

	// Unprocessable - write rejected by a declared bound
	case CodeSizeBoundExceeded:
		return http.StatusRequestEntityTooLarge

	// Upstream failure
	case CodeExternalCallFailed:
		return http.StatusBadGateway

	case CodeRegionExhausted:
		return http.StatusInsufficientStorage

	default:
		return http.StatusInternalServerError
	}
}
