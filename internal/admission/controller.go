// Package admission decides whether a join request may enter a room.
package admission

import (
	"time"

	"github.com/utkarsh2338/NexMeet/internal/meeting"
)

// Request is a single join attempt.
type Request struct {
	Code     string
	ConnID   string
	Name     string
	UserID   string
	Password string
}

// Identity returns the allow-list/ban-list key of the joiner.
func (r Request) Identity() string {
	return meeting.Identity(r.UserID, r.ConnID)
}

// Result describes an admission decision.
type Result struct {
	// Creating is set when no active meeting exists; the joiner becomes host.
	Creating bool
	// Enqueued is set when the joiner was newly added to the waiting room.
	Enqueued bool
	Entry    meeting.WaitingEntry
}

// Controller evaluates join requests against a meeting's policy.
type Controller struct {
	waiting         *WaitingRoom
	defaultCapacity int
}

func NewController(waiting *WaitingRoom, defaultCapacity int) *Controller {
	return &Controller{waiting: waiting, defaultCapacity: defaultCapacity}
}

// Capacity returns the effective member limit of m.
func (c *Controller) Capacity(m *meeting.Meeting) int {
	if m != nil && m.Policy.Capacity > 0 {
		return m.Policy.Capacity
	}
	return c.defaultCapacity
}

// Evaluate runs the admission checks in their fixed order; the first one that
// fails decides. m is the active meeting for the code or nil, members is the
// current member count. Must be called with the room lock held.
func (c *Controller) Evaluate(m *meeting.Meeting, members int, req Request) (Result, error) {
	if m == nil {
		return Result{Creating: true}, nil
	}

	id := req.Identity()
	if m.IsBanned(id) {
		return Result{}, meeting.NewError("join", req.Code, meeting.ErrAccessDenied)
	}

	if m.Policy.HasPassword() && !meeting.CheckPassword(m.Policy.PasswordHash, req.Password) {
		return Result{}, meeting.NewError("join", req.Code, meeting.ErrInvalidCredential)
	}

	if limit := c.Capacity(m); limit > 0 && members >= limit {
		return Result{}, meeting.NewError("join", req.Code, meeting.ErrCapacityExceeded)
	}

	if m.Policy.WaitingRoom && !m.IsAllowed(id) {
		entry := meeting.WaitingEntry{
			ConnID:      req.ConnID,
			Name:        req.Name,
			UserID:      req.UserID,
			RequestedAt: time.Now(),
		}
		added := c.waiting.Enqueue(m, entry)
		return Result{Enqueued: added, Entry: entry}, meeting.NewError("join", req.Code, meeting.ErrPendingApproval)
	}

	return Result{}, nil
}
