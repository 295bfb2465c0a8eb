package admission

import (
	"slices"

	"github.com/utkarsh2338/NexMeet/internal/meeting"
	"github.com/utkarsh2338/NexMeet/internal/metrics"
)

// WaitingRoom manages the queue of joiners awaiting a host decision. The
// queue itself lives on the meeting so it is persisted with it; every method
// must be called with that meeting's room lock held.
type WaitingRoom struct{}

func NewWaitingRoom() *WaitingRoom {
	return &WaitingRoom{}
}

// Enqueue adds e unless its connection is already waiting. It reports
// whether the entry was added.
func (w *WaitingRoom) Enqueue(m *meeting.Meeting, e meeting.WaitingEntry) bool {
	if m.WaitingIndex(e.ConnID) >= 0 {
		return false
	}
	m.Waiting = append(m.Waiting, e)
	metrics.WaitingEntries.Inc()
	return true
}

// Admit moves connID from the queue to the allow list. Only the host may
// admit.
func (w *WaitingRoom) Admit(m *meeting.Meeting, caller, connID string) (meeting.WaitingEntry, error) {
	e, err := w.take(m, caller, connID, "admit")
	if err != nil {
		return e, err
	}
	m.Allow(meeting.Identity(e.UserID, e.ConnID))
	return e, nil
}

// Reject removes connID from the queue without admitting it.
func (w *WaitingRoom) Reject(m *meeting.Meeting, caller, connID string) (meeting.WaitingEntry, error) {
	return w.take(m, caller, connID, "reject")
}

func (w *WaitingRoom) take(m *meeting.Meeting, caller, connID, op string) (meeting.WaitingEntry, error) {
	if !m.IsHost(caller) {
		return meeting.WaitingEntry{}, meeting.NewError(op, m.Code, meeting.ErrUnauthorized)
	}
	e, ok := w.Drop(m, connID)
	if !ok {
		return e, meeting.WrapError(op, m.Code, meeting.ErrNotFound, "no waiting entry for "+connID)
	}
	return e, nil
}

// Drop removes connID from the queue, e.g. when it disconnects.
func (w *WaitingRoom) Drop(m *meeting.Meeting, connID string) (meeting.WaitingEntry, bool) {
	i := m.WaitingIndex(connID)
	if i < 0 {
		return meeting.WaitingEntry{}, false
	}
	e := m.Waiting[i]
	m.Waiting = slices.Delete(m.Waiting, i, i+1)
	metrics.WaitingEntries.Dec()
	return e, true
}

// Clear empties the queue on room teardown and returns the removed entries so
// they can be notified.
func (w *WaitingRoom) Clear(m *meeting.Meeting) []meeting.WaitingEntry {
	entries := m.Waiting
	m.Waiting = nil
	metrics.WaitingEntries.Sub(float64(len(entries)))
	return entries
}
