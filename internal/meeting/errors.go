package meeting

import (
	"errors"
	"fmt"
)

// Sentinel errors for the meeting domain.
var (
	ErrAccessDenied      = errors.New("access denied")
	ErrInvalidCredential = errors.New("invalid meeting password")
	ErrCapacityExceeded  = errors.New("meeting is full")
	ErrPendingApproval   = errors.New("waiting for host approval")
	ErrUnauthorized      = errors.New("only the host can do this")
	ErrNotFound          = errors.New("meeting not found")
	ErrDuplicate         = errors.New("an active meeting with this code already exists")

	ErrRecordingDisabled = errors.New("recording is not allowed in this meeting")
	ErrRecordingState    = errors.New("recording is already in that state")
	ErrChatDisabled      = errors.New("chat is disabled in this meeting")
	ErrMessageTooLong    = errors.New("chat message is too long")
	ErrBadRequest        = errors.New("bad request")
)

// Wire codes sent to clients in error messages.
const (
	CodeAccessDenied      = "ACCESS_DENIED"
	CodeInvalidPassword   = "INVALID_PASSWORD"
	CodeRoomFull          = "ROOM_FULL"
	CodePendingApproval   = "PENDING_APPROVAL"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeNotFound          = "NOT_FOUND"
	CodeRecordingDisabled = "RECORDING_DISABLED"
	CodeRecordingState    = "RECORDING_STATE"
	CodeChatDisabled      = "CHAT_DISABLED"
	CodeMessageTooLong    = "MESSAGE_TOO_LONG"
	CodeBadRequest        = "BAD_REQUEST"
	CodeAlreadyJoined     = "ALREADY_JOINED"
	CodeInternal          = "INTERNAL"
)

var codes = []struct {
	err  error
	code string
}{
	{ErrAccessDenied, CodeAccessDenied},
	{ErrInvalidCredential, CodeInvalidPassword},
	{ErrCapacityExceeded, CodeRoomFull},
	{ErrPendingApproval, CodePendingApproval},
	{ErrUnauthorized, CodeUnauthorized},
	{ErrNotFound, CodeNotFound},
	{ErrRecordingDisabled, CodeRecordingDisabled},
	{ErrRecordingState, CodeRecordingState},
	{ErrChatDisabled, CodeChatDisabled},
	{ErrMessageTooLong, CodeMessageTooLong},
	{ErrBadRequest, CodeBadRequest},
}

// Code maps err to its wire code.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// OpError records the operation that failed along with the cause.
type OpError struct {
	Op      string // Operation that failed (e.g., "join", "admit")
	Code    string // Meeting code, if any
	Err     error
	Details string
}

func (e *OpError) Error() string {
	msg := e.Op
	if e.Code != "" {
		msg = fmt.Sprintf("%s %s", msg, e.Code)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %s: %v", msg, e.Details, e.Err)
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// NewError wraps err with the failing operation and meeting code.
func NewError(op, code string, err error) error {
	return &OpError{Op: op, Code: code, Err: err}
}

// WrapError wraps err with additional details.
func WrapError(op, code string, err error, details string) error {
	return &OpError{Op: op, Code: code, Err: err, Details: details}
}
