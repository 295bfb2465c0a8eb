package meeting

import (
	"context"
	"time"
)

// Store is the durable meeting store. Calls are independent; no transaction
// spans more than one call.
type Store interface {
	// FindActive returns the active meeting for code or ErrNotFound.
	FindActive(ctx context.Context, code string) (*Meeting, error)
	FindAllActive(ctx context.Context) ([]*Meeting, error)
	// Create inserts m unless an active meeting with the same code exists,
	// in which case it returns ErrDuplicate.
	Create(ctx context.Context, m *Meeting) error
	AddParticipant(ctx context.Context, code string, p Participant) error
	SetParticipantLeft(ctx context.Context, code, connID string, at time.Time) error
	AppendChat(ctx context.Context, code string, msg ChatMessage) error
	UpdateAccess(ctx context.Context, code string, waiting []WaitingEntry, allow, ban []string) error
	SetRecording(ctx context.Context, code string, recording bool, recordings []Recording) error
	MarkInactive(ctx context.Context, code string, end time.Time, duration time.Duration) error
	// DeleteInactiveBefore removes inactive meetings that ended before cutoff.
	DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Ping(ctx context.Context) error
}
