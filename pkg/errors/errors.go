package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents application-specific error codes
type ErrorCode string

const (
	// Validation errors
	ErrCodeValidation           ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput         ErrorCode = "INVALID_INPUT"
	ErrCodeInvalidConfiguration ErrorCode = "INVALID_CONFIGURATION"

	// Authentication errors
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// Authorization errors
	ErrCodeNotAuthorized ErrorCode = "NOT_AUTHORIZED"

	// Not found errors
	ErrCodeRoomNotFound        ErrorCode = "ROOM_NOT_FOUND"
	ErrCodeParticipantNotFound ErrorCode = "PARTICIPANT_NOT_FOUND"
	ErrCodeNoActiveProcess     ErrorCode = "NO_ACTIVE_PROCESS"

	// Room state errors
	ErrCodeRoomEnded             ErrorCode = "ROOM_ENDED"
	ErrCodeRoomLocked            ErrorCode = "ROOM_LOCKED"
	ErrCodeRoomFull              ErrorCode = "ROOM_FULL"
	ErrCodeParticipantNotWaiting ErrorCode = "PARTICIPANT_NOT_WAITING"
	ErrCodeChatDisabled          ErrorCode = "CHAT_DISABLED"
	ErrCodeScreenShareDisabled   ErrorCode = "SCREEN_SHARE_DISABLED"

	// Recording and streaming errors
	ErrCodeRecordingDisabled      ErrorCode = "RECORDING_DISABLED"
	ErrCodeRecordingAlreadyActive ErrorCode = "RECORDING_ALREADY_ACTIVE"
	ErrCodeNoActiveRecording      ErrorCode = "NO_ACTIVE_RECORDING"
	ErrCodeStreamingDisabled      ErrorCode = "STREAMING_DISABLED"
	ErrCodeStreamAlreadyActive    ErrorCode = "STREAM_ALREADY_ACTIVE"
	ErrCodeNoActiveStream         ErrorCode = "NO_ACTIVE_STREAM"

	// Process supervision errors
	ErrCodeAlreadyActive      ErrorCode = "ALREADY_ACTIVE"
	ErrCodeProcessSpawnFailed ErrorCode = "PROCESS_SPAWN_FAILED"
	ErrCodeTimeout            ErrorCode = "TIMEOUT"

	// Conflict errors
	ErrCodeConflict ErrorCode = "CONFLICT"

	// Rate limiting errors
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Internal errors
	ErrCodeInternal       ErrorCode = "INTERNAL_ERROR"
	ErrCodeServiceUnavail ErrorCode = "SERVICE_UNAVAILABLE"
)

// AppError represents a structured application error with code, message, and HTTP status
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"`
	Details    any       `json:"details,omitempty"`
	Err        error     `json:"-"`
}

// Error implements the error interface, returning a formatted error message
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an AppError carrying the same code
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New creates a new AppError with the given code and message
// The status code defaults to 500 Internal Server Error
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

// NewWithStatus creates a new AppError with a specific HTTP status code
func NewWithStatus(code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an existing error with an AppError, preserving the original error
// The status code defaults to 500 Internal Server Error
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// WrapWithStatus wraps an existing error with an AppError and specific status code
func WrapWithStatus(code ErrorCode, message string, statusCode int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// WithDetails adds additional details to an AppError for debugging
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// Validation errors
func ValidationError(message string) *AppError {
	return NewWithStatus(ErrCodeValidation, message, http.StatusBadRequest)
}

func InvalidInputError(message string) *AppError {
	return NewWithStatus(ErrCodeInvalidInput, message, http.StatusBadRequest)
}

func InvalidConfigurationError(message string) *AppError {
	return NewWithStatus(ErrCodeInvalidConfiguration, message, http.StatusBadRequest)
}

// Authentication errors
func UnauthorizedError(message string) *AppError {
	return NewWithStatus(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

// Authorization errors
func NotAuthorizedError(message string) *AppError {
	return NewWithStatus(ErrCodeNotAuthorized, message, http.StatusForbidden)
}

// Not found errors
func RoomNotFoundError() *AppError {
	return NewWithStatus(ErrCodeRoomNotFound, "Meeting room not found", http.StatusNotFound)
}

func ParticipantNotFoundError() *AppError {
	return NewWithStatus(ErrCodeParticipantNotFound, "Participant not found in this meeting", http.StatusNotFound)
}

func NoActiveProcessError() *AppError {
	return NewWithStatus(ErrCodeNoActiveProcess, "No supervised process for this room", http.StatusNotFound)
}

// Room state errors
func RoomEndedError() *AppError {
	return NewWithStatus(ErrCodeRoomEnded, "Meeting has ended", http.StatusGone)
}

func RoomLockedError() *AppError {
	return NewWithStatus(ErrCodeRoomLocked, "Meeting is locked by the host", http.StatusLocked)
}

func RoomFullError() *AppError {
	return NewWithStatus(ErrCodeRoomFull, "Meeting has reached its participant limit", http.StatusConflict)
}

func ParticipantNotWaitingError() *AppError {
	return NewWithStatus(ErrCodeParticipantNotWaiting, "Participant is not in the waiting room", http.StatusConflict)
}

func ChatDisabledError() *AppError {
	return NewWithStatus(ErrCodeChatDisabled, "Chat is disabled for this meeting", http.StatusForbidden)
}

func ScreenShareDisabledError() *AppError {
	return NewWithStatus(ErrCodeScreenShareDisabled, "Screen sharing is disabled for this meeting", http.StatusForbidden)
}

// Recording and streaming errors
func RecordingDisabledError() *AppError {
	return NewWithStatus(ErrCodeRecordingDisabled, "Recording is disabled for this meeting", http.StatusForbidden)
}

func RecordingAlreadyActiveError() *AppError {
	return NewWithStatus(ErrCodeRecordingAlreadyActive, "A recording is already in progress", http.StatusConflict)
}

func NoActiveRecordingError() *AppError {
	return NewWithStatus(ErrCodeNoActiveRecording, "No recording is in progress", http.StatusConflict)
}

func StreamingDisabledError() *AppError {
	return NewWithStatus(ErrCodeStreamingDisabled, "Live streaming is disabled for this meeting", http.StatusForbidden)
}

func StreamAlreadyActiveError() *AppError {
	return NewWithStatus(ErrCodeStreamAlreadyActive, "A live stream is already running", http.StatusConflict)
}

func NoActiveStreamError() *AppError {
	return NewWithStatus(ErrCodeNoActiveStream, "No live stream is running", http.StatusConflict)
}

// Process supervision errors
func AlreadyActiveError(message string) *AppError {
	return NewWithStatus(ErrCodeAlreadyActive, message, http.StatusConflict)
}

func ProcessSpawnFailedError(err error) *AppError {
	return WrapWithStatus(ErrCodeProcessSpawnFailed, "Failed to start encoder process", http.StatusInternalServerError, err)
}

func TimeoutError(message string) *AppError {
	return NewWithStatus(ErrCodeTimeout, message, http.StatusGatewayTimeout)
}

// Conflict errors
func ConflictError(message string) *AppError {
	return NewWithStatus(ErrCodeConflict, message, http.StatusConflict)
}

// Rate limiting errors
func RateLimitExceededError() *AppError {
	return NewWithStatus(ErrCodeRateLimitExceeded, "Rate limit exceeded", http.StatusTooManyRequests)
}

// Internal errors
func InternalError(message string) *AppError {
	return NewWithStatus(ErrCodeInternal, message, http.StatusInternalServerError)
}

func ServiceUnavailableError(message string) *AppError {
	return NewWithStatus(ErrCodeServiceUnavail, message, http.StatusServiceUnavailable)
}

// IsAppError checks if an error is or wraps an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetAppError extracts AppError from an error, wrapping non-AppErrors as InternalError
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return InternalError(err.Error())
}

// CodeOf returns the code of the first AppError in err's chain, or "" when there is none
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// HasCode reports whether err carries the given code
func HasCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
