package signaling

import (
	"time"

	"github.com/google/uuid"

	"github.com/utkarsh2338/NexMeet/internal/meeting"
	"github.com/utkarsh2338/NexMeet/internal/protocol"
	"github.com/utkarsh2338/NexMeet/internal/registry"
)

// hostAction runs fn under the caller's room lock once the caller is known
// to be in a room with an active meeting.
func (h *Hub) hostAction(c *Client, op string, fn func(tx *registry.Tx, m *meeting.Meeting) error) {
	code := c.Room()
	if code == "" {
		c.sendError(meeting.WrapError(op, "", meeting.ErrNotFound, "join a room first"))
		return
	}

	var err error
	h.registry.Locked(code, func(tx *registry.Tx) {
		m := h.lifecycle.Get(code)
		if m == nil || !tx.Has(c.ID) {
			err = meeting.NewError(op, code, meeting.ErrNotFound)
			return
		}
		err = fn(tx, m)
	})
	if err != nil {
		h.log.Info("host action refused", "op", op, "conn", c.ID, "error", err)
		c.sendError(err)
	}
}

// admit lets a waiting connection in. It is told to retry its join.
func (h *Hub) admit(c *Client, connID string) {
	h.hostAction(c, "admit", func(tx *registry.Tx, m *meeting.Meeting) error {
		e, err := h.waiting.Admit(m, c.Identity(), connID)
		if err != nil {
			return err
		}
		ctx, cancel := h.opContext()
		defer cancel()
		h.lifecycle.SaveAccess(ctx, m.Code)

		if target := h.client(e.ConnID); target != nil {
			target.clearWaiting(m.Code)
			target.Send(&protocol.Message{Type: protocol.MessageTypeAdmitted, RoomID: m.Code})
		}
		h.log.Info("waiting participant admitted", "room", m.Code, "conn", e.ConnID)
		return nil
	})
}

func (h *Hub) reject(c *Client, connID string) {
	h.hostAction(c, "reject", func(tx *registry.Tx, m *meeting.Meeting) error {
		e, err := h.waiting.Reject(m, c.Identity(), connID)
		if err != nil {
			return err
		}
		ctx, cancel := h.opContext()
		defer cancel()
		h.lifecycle.SaveAccess(ctx, m.Code)

		if target := h.client(e.ConnID); target != nil {
			target.clearWaiting(m.Code)
			target.Send(&protocol.Message{Type: protocol.MessageTypeRejected, RoomID: m.Code, Reason: "rejected by host"})
		}
		h.log.Info("waiting participant rejected", "room", m.Code, "conn", e.ConnID)
		return nil
	})
}

// remove takes a member out of the meeting, optionally banning it.
func (h *Hub) remove(c *Client, connID string, ban bool) {
	h.hostAction(c, "remove", func(tx *registry.Tx, m *meeting.Meeting) error {
		if !m.IsHost(c.Identity()) {
			return meeting.NewError("remove", m.Code, meeting.ErrUnauthorized)
		}
		if connID == c.ID {
			return meeting.WrapError("remove", m.Code, meeting.ErrBadRequest, "cannot remove yourself")
		}

		var target *registry.Member
		for _, mem := range tx.Members() {
			if mem.ConnID == connID {
				target = &mem
				break
			}
		}
		if target == nil {
			return meeting.WrapError("remove", m.Code, meeting.ErrNotFound, "no member "+connID)
		}

		ctx, cancel := h.opContext()
		defer cancel()

		reason := "removed by host"
		if ban {
			m.Ban(meeting.Identity(target.UserID, target.ConnID))
			h.lifecycle.SaveAccess(ctx, m.Code)
			reason = "banned by host"
		}

		h.sendTo(connID, &protocol.Message{Type: protocol.MessageTypeRemoved, RoomID: m.Code, Reason: reason})
		h.leaveLocked(ctx, tx, connID, reason)
		return nil
	})
}

// setRecording starts or stops a recording interval.
func (h *Hub) setRecording(c *Client, start bool) {
	op := "stop recording"
	if start {
		op = "start recording"
	}

	h.hostAction(c, op, func(tx *registry.Tx, m *meeting.Meeting) error {
		if !m.IsHost(c.Identity()) {
			return meeting.NewError(op, m.Code, meeting.ErrUnauthorized)
		}
		if !m.Policy.AllowRecording {
			return meeting.NewError(op, m.Code, meeting.ErrRecordingDisabled)
		}
		if m.IsRecording == start {
			return meeting.NewError(op, m.Code, meeting.ErrRecordingState)
		}

		now := time.Now()
		if start {
			m.Recordings = append(m.Recordings, meeting.Recording{
				ID:          uuid.NewString(),
				StartedAt:   now,
				InitiatedBy: c.Identity(),
			})
		} else if n := len(m.Recordings); n > 0 {
			m.Recordings[n-1].EndedAt = &now
		}
		m.IsRecording = start

		ctx, cancel := h.opContext()
		defer cancel()
		h.lifecycle.SaveRecording(ctx, m.Code)

		// A stored record may carry the flag without any interval.
		info := &protocol.RecordingInfo{Active: start}
		if n := len(m.Recordings); n > 0 {
			rec := m.Recordings[n-1]
			info.ID = rec.ID
			info.StartedAt = rec.StartedAt.UnixMilli()
			info.InitiatedBy = rec.InitiatedBy
			if rec.EndedAt != nil {
				info.EndedAt = rec.EndedAt.UnixMilli()
				info.DurationSeconds = int64(rec.Duration() / time.Second)
			}
		}
		h.broadcast(tx, &protocol.Message{Type: protocol.MessageTypeRecording, RoomID: m.Code, From: c.ID, Recording: info}, "")

		h.log.Info("recording changed", "room", m.Code, "active", start)
		return nil
	})
}
