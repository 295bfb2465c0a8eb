package negotiation

import (
	"errors"
	"fmt"
)

var (
	ErrNegotiationFailed = errors.New("negotiation failed")
	ErrTimeout           = errors.New("negotiation timed out")
	ErrSessionClosed     = errors.New("session closed")
	ErrUnexpectedSignal  = errors.New("unexpected signal")
)

// PeerError records which peer pair and step failed.
type PeerError struct {
	Op     string
	Remote string
	Err    error
}

func (e *PeerError) Error() string {
	if e.Remote != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Remote, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PeerError) Unwrap() error {
	return e.Err
}

func newError(op, remote string, err error) *PeerError {
	return &PeerError{Op: op, Remote: remote, Err: err}
}
