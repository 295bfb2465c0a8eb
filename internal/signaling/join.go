package signaling

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/utkarsh2338/NexMeet/internal/admission"
	"github.com/utkarsh2338/NexMeet/internal/meeting"
	"github.com/utkarsh2338/NexMeet/internal/metrics"
	"github.com/utkarsh2338/NexMeet/internal/protocol"
	"github.com/utkarsh2338/NexMeet/internal/registry"
)

const (
	maxNameLength = 64
	maxCodeLength = 128
	defaultName   = "Guest"
)

// join admits c into the room named by msg. Admission, the registry update,
// the lifecycle events and every resulting notification happen under the
// room lock, so two first joins for one code cannot both create a meeting
// and existing members hear about the joiner before it sees them.
func (h *Hub) join(c *Client, msg *protocol.Message) {
	code := strings.TrimSpace(msg.RoomID)
	if code == "" {
		code = h.generateRoomCode()
	}
	if len(code) > maxCodeLength {
		c.sendError(meeting.WrapError("join", "", meeting.ErrBadRequest, "room code too long"))
		return
	}
	if current := c.Room(); current != "" && current != code {
		c.sendError(meeting.WrapError("join", code, meeting.ErrBadRequest, "already in room "+current))
		return
	}
	if waiting := c.waitingRoom(); waiting != "" && waiting != code {
		h.dropWaiting(c)
	}

	userID := strings.TrimSpace(msg.UserID)
	if meeting.ReservedUserID(userID) {
		c.sendError(meeting.WrapError("join", code, meeting.ErrBadRequest, "user id may not start with "+meeting.AnonymousPrefix))
		return
	}

	req := admission.Request{
		Code:     code,
		ConnID:   c.ID,
		Name:     cleanName(msg.Name),
		UserID:   userID,
		Password: msg.Password,
	}

	ctx, cancel := h.opContext()
	defer cancel()

	h.registry.Locked(code, func(tx *registry.Tx) {
		if tx.Has(c.ID) {
			c.Send(&protocol.Message{
				Type:   protocol.MessageTypeError,
				RoomID: code,
				Error:  &protocol.ErrorPayload{Code: meeting.CodeAlreadyJoined, Message: registry.ErrAlreadyJoined.Error()},
			})
			return
		}

		m, err := h.lifecycle.Lookup(ctx, code)
		if err != nil && !errors.Is(err, meeting.ErrNotFound) {
			// Presence matters more than durability: treat the join as
			// creating and let the store catch up.
			h.log.Warn("meeting lookup failed, admitting as new meeting", "room", code, "error", err)
		}

		res, err := h.admission.Evaluate(m, tx.Count(), req)
		if err != nil {
			metrics.Joins.WithLabelValues(meeting.Code(err)).Inc()
			if errors.Is(err, meeting.ErrPendingApproval) {
				h.park(ctx, tx, c, m, req, res)
				return
			}
			h.log.Info("join rejected", "room", code, "conn", c.ID, "reason", meeting.Code(err))
			c.sendError(err)
			return
		}

		h.enter(ctx, tx, c, m, req, res, msg.Options)
	})
}

func (h *Hub) park(ctx context.Context, tx *registry.Tx, c *Client, m *meeting.Meeting, req admission.Request, res admission.Result) {
	c.setWaiting(req.Code, req.UserID)
	if res.Enqueued {
		h.lifecycle.SaveAccess(ctx, req.Code)
		h.sendToHosts(tx, m, &protocol.Message{
			Type:   protocol.MessageTypeWaitingParticipant,
			RoomID: req.Code,
			Entry:  waitingInfo(res.Entry),
		})
		h.log.Info("joiner waiting for approval", "room", req.Code, "conn", c.ID)
	}
	c.Send(&protocol.Message{
		Type:   protocol.MessageTypePendingApproval,
		RoomID: req.Code,
		Error:  &protocol.ErrorPayload{Code: meeting.CodePendingApproval, Message: meeting.ErrPendingApproval.Error()},
	})
}

func (h *Hub) enter(ctx context.Context, tx *registry.Tx, c *Client, m *meeting.Meeting, req admission.Request, res admission.Result, opts *protocol.JoinOptions) {
	now := time.Now()
	identity := req.Identity()
	result := "admitted"

	if tx.Count() == 0 {
		var policy meeting.Policy
		if res.Creating {
			p, err := h.policyFrom(opts)
			if err != nil {
				c.sendError(err)
				return
			}
			policy = p
			result = "created"
		}
		host := meeting.Participant{ConnID: c.ID, UserID: req.UserID, Name: req.Name, IsHost: true, JoinedAt: now}
		m = h.lifecycle.OnRoomCreated(ctx, req.Code, m, host, policy)
		metrics.ActiveRooms.Inc()
	}

	existing := tx.Members()
	members, err := tx.Join(registry.Member{ConnID: c.ID, Name: req.Name, UserID: req.UserID, JoinedAt: now})
	if err != nil {
		if tx.Count() == 0 {
			h.roomEmptied(req.Code)
		}
		c.sendError(meeting.WrapError("join", req.Code, meeting.ErrBadRequest, err.Error()))
		return
	}
	c.setRoom(req.Code, req.Name, req.UserID, now)

	isHost := m.IsHost(identity)
	h.lifecycle.OnParticipantJoined(ctx, req.Code, meeting.Participant{
		ConnID:   c.ID,
		UserID:   req.UserID,
		Name:     req.Name,
		IsHost:   isHost,
		JoinedAt: now,
	})

	infos := memberInfos(members)
	joined := &protocol.Message{
		Type:      protocol.MessageTypeUserJoined,
		RoomID:    req.Code,
		From:      c.ID,
		Name:      req.Name,
		UserID:    req.UserID,
		Timestamp: now.UnixMilli(),
		Members:   infos,
	}
	for _, e := range existing {
		h.sendTo(e.ConnID, joined)
	}

	c.Send(&protocol.Message{
		Type:    protocol.MessageTypeJoined,
		RoomID:  req.Code,
		From:    c.ID,
		IsHost:  isHost,
		Members: infos,
		Meeting: h.meetingInfo(m, len(members)),
	})

	if len(m.Chat) > 0 {
		history := make([]protocol.ChatEntry, 0, len(m.Chat))
		for _, line := range m.Chat {
			history = append(history, chatEntry(line))
		}
		c.Send(&protocol.Message{Type: protocol.MessageTypeChatHistory, RoomID: req.Code, Chat: history})
	}

	if isHost {
		for _, e := range m.Waiting {
			c.Send(&protocol.Message{Type: protocol.MessageTypeWaitingParticipant, RoomID: req.Code, Entry: waitingInfo(e)})
		}
	}

	metrics.Joins.WithLabelValues(result).Inc()
	h.log.Info("participant joined", "room", req.Code, "conn", c.ID, "name", req.Name, "members", len(members), "host", isHost)
}

func (h *Hub) policyFrom(opts *protocol.JoinOptions) (meeting.Policy, error) {
	policy := meeting.Policy{
		Capacity:         h.cfg.DefaultCapacity,
		AllowScreenShare: true,
		AllowChat:        true,
	}
	if opts == nil {
		return policy, nil
	}

	hash, err := meeting.HashPassword(opts.Password)
	if err != nil {
		return policy, err
	}
	policy.PasswordHash = hash
	policy.WaitingRoom = opts.WaitingRoom
	policy.AllowRecording = opts.AllowRecording
	policy.AllowScreenShare = !opts.DisableScreenShare
	policy.AllowChat = !opts.DisableChat
	if opts.Capacity > 0 {
		policy.Capacity = opts.Capacity
	}
	return policy, nil
}

// leave takes c out of its room and tells the remaining members.
func (h *Hub) leave(c *Client) {
	code := c.Room()
	if code == "" {
		return
	}

	ctx, cancel := h.opContext()
	defer cancel()

	h.registry.Locked(code, func(tx *registry.Tx) {
		h.leaveLocked(ctx, tx, c.ID, "left")
	})
}

// leaveLocked removes connID from the room held by tx. The lifecycle sees
// the leave before the registry so an emptied room ends with a complete
// participant history.
func (h *Hub) leaveLocked(ctx context.Context, tx *registry.Tx, connID, reason string) {
	if !tx.Has(connID) {
		return
	}
	now := time.Now()
	h.lifecycle.OnParticipantLeft(ctx, tx.Code(), connID, now)

	left, remaining, err := tx.Leave(connID)
	if err != nil {
		return
	}
	if c := h.client(connID); c != nil {
		c.clearRoom()
	}

	online := now.Sub(left.JoinedAt)
	msg := &protocol.Message{
		Type:          protocol.MessageTypeUserLeft,
		RoomID:        tx.Code(),
		From:          connID,
		Name:          left.Name,
		Reason:        reason,
		Timestamp:     now.UnixMilli(),
		OnlineSeconds: int64(online / time.Second),
		Members:       memberInfos(remaining),
	}
	h.broadcast(tx, msg, "")

	h.log.Info("participant left", "room", tx.Code(), "conn", connID, "reason", reason, "online", online.Round(time.Second), "remaining", len(remaining))
}

// dropWaiting removes c from the waiting room it is parked in, if any.
func (h *Hub) dropWaiting(c *Client) {
	code := c.waitingRoom()
	if code == "" {
		return
	}

	ctx, cancel := h.opContext()
	defer cancel()

	h.registry.Locked(code, func(tx *registry.Tx) {
		c.clearWaiting(code)
		m := h.lifecycle.Get(code)
		if m == nil {
			return
		}
		e, ok := h.waiting.Drop(m, c.ID)
		if !ok {
			return
		}
		h.lifecycle.SaveAccess(ctx, code)
		h.sendToHosts(tx, m, &protocol.Message{
			Type:   protocol.MessageTypeWaitingCancelled,
			RoomID: code,
			Entry:  waitingInfo(e),
		})
	})
}

// roomEmptied is the registry's emptied hook; it runs with the room lock held.
func (h *Hub) roomEmptied(code string) {
	ctx, cancel := h.opContext()
	defer cancel()

	if m := h.lifecycle.Get(code); m != nil {
		for _, e := range h.waiting.Clear(m) {
			if c := h.client(e.ConnID); c != nil {
				c.clearWaiting(code)
				c.Send(&protocol.Message{Type: protocol.MessageTypeRejected, RoomID: code, Reason: "meeting ended"})
			}
		}
	}
	h.lifecycle.OnRoomEmptied(ctx, code, time.Now())
	metrics.ActiveRooms.Dec()
}

func cleanName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return defaultName
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		name = string([]rune(name)[:maxNameLength])
	}
	return name
}

func chatEntry(m meeting.ChatMessage) protocol.ChatEntry {
	return protocol.ChatEntry{
		From:      m.SenderConnID,
		Name:      m.SenderName,
		Text:      m.Text,
		Timestamp: m.Timestamp.UnixMilli(),
	}
}
