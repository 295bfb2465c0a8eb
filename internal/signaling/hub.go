// Package signaling is the real-time core of the meeting server: it admits
// connections into rooms, relays negotiation payloads between peers, fans out
// chat, and runs host actions.
package signaling

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/utkarsh2338/NexMeet/internal/admission"
	"github.com/utkarsh2338/NexMeet/internal/meeting"
	"github.com/utkarsh2338/NexMeet/internal/metrics"
	"github.com/utkarsh2338/NexMeet/internal/protocol"
	"github.com/utkarsh2338/NexMeet/internal/registry"
)

// Config holds the hub's limits.
type Config struct {
	// DefaultCapacity applies when a meeting is created without a capacity.
	DefaultCapacity int
	// ChatMaxLength bounds chat messages, in characters.
	ChatMaxLength int
	// SendBuffer is the per-connection outbound queue length.
	SendBuffer int
	// OpTimeout bounds the store calls made while handling one event.
	OpTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.DefaultCapacity <= 0 {
		c.DefaultCapacity = 50
	}
	if c.ChatMaxLength <= 0 {
		c.ChatMaxLength = 1000
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = 10 * time.Second
	}
	return c
}

// Hub owns the room registry and every live connection.
type Hub struct {
	cfg       Config
	registry  *registry.Registry
	lifecycle *meeting.Manager
	admission *admission.Controller
	waiting   *admission.WaitingRoom
	log       *slog.Logger

	mu      sync.RWMutex
	clients map[string]*Client
	closed  bool
}

// NewHub creates a hub backed by lifecycle.
func NewHub(cfg Config, lifecycle *meeting.Manager, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	waiting := admission.NewWaitingRoom()

	h := &Hub{
		cfg:       cfg,
		lifecycle: lifecycle,
		admission: admission.NewController(waiting, cfg.DefaultCapacity),
		waiting:   waiting,
		log:       logger.With("component", "hub"),
		clients:   make(map[string]*Client),
	}
	h.registry = registry.New(h.roomEmptied)
	return h
}

// Run blocks until ctx is cancelled, then disconnects every client.
// Connections closed during shutdown are detached without leaving their
// rooms, so live meetings stay active in the store for the next process
// to reconstruct.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
	h.log.Info("hub stopped", "clients", len(clients))
}

// Attach registers a new websocket connection and starts its pumps.
func (h *Hub) Attach(conn *websocket.Conn, codec protocol.Codec) *Client {
	c := newClient(h, conn, codec)
	if !h.Register(c) {
		conn.Close()
		return nil
	}
	go c.WritePump()
	go c.ReadPump()
	return c
}

// Register adds c to the live connection table and greets it with its id.
func (h *Hub) Register(c *Client) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[c.ID] = c
	h.mu.Unlock()

	metrics.Connections.Inc()
	h.log.Debug("client registered", "conn", c.ID, "codec", c.codec.Name())
	c.Send(&protocol.Message{Type: protocol.MessageTypeWelcome, From: c.ID})
	return true
}

// Unregister removes c and takes it out of its room or waiting room.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c.ID]
	delete(h.clients, c.ID)
	closed := h.closed
	h.mu.Unlock()

	if !ok {
		return
	}
	metrics.Connections.Dec()
	c.Close()

	if closed {
		h.log.Debug("client detached on shutdown", "conn", c.ID)
		return
	}

	h.dropWaiting(c)
	h.leave(c)
	h.log.Debug("client unregistered", "conn", c.ID)
}

func (h *Hub) client(id string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[id]
}

// sendTo queues msg for the connection id, if it is live.
func (h *Hub) sendTo(connID string, msg *protocol.Message) bool {
	c := h.client(connID)
	if c == nil {
		return false
	}
	return c.Send(msg)
}

// ClientCount returns the number of live connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomCount returns the number of occupied rooms.
func (h *Hub) RoomCount() int {
	return h.registry.RoomCount()
}

// Members returns the current members of a room.
func (h *Hub) Members(code string) []registry.Member {
	return h.registry.Members(code)
}

// WithRoom runs fn under the room lock for code. It is handed to the
// retention sweeper so it never races a join.
func (h *Hub) WithRoom(code string, fn func(occupied bool)) {
	h.registry.Locked(code, func(tx *registry.Tx) {
		fn(tx.Count() > 0)
	})
}

// MeetingInfo returns the public view of the active meeting for code.
func (h *Hub) MeetingInfo(ctx context.Context, code string) (info *protocol.MeetingInfo, err error) {
	h.registry.Locked(code, func(tx *registry.Tx) {
		var m *meeting.Meeting
		m, err = h.lifecycle.Lookup(ctx, code)
		if err != nil {
			return
		}
		info = h.meetingInfo(m, tx.Count())
	})
	return info, err
}

// handle dispatches one inbound message.
func (h *Hub) handle(c *Client, msg *protocol.Message) {
	switch msg.Type {
	case protocol.MessageTypeJoin:
		h.join(c, msg)

	case protocol.MessageTypeLeave:
		h.dropWaiting(c)
		h.leave(c)

	case protocol.MessageTypeSignal:
		h.relayFrom(c, msg)

	case protocol.MessageTypeChat:
		name, _ := c.profile()
		if err := h.SendChat(c.Room(), c.ID, name, msg.Text); err != nil {
			c.sendError(err)
		}

	case protocol.MessageTypeAdmit:
		h.admit(c, msg.To)

	case protocol.MessageTypeReject:
		h.reject(c, msg.To)

	case protocol.MessageTypeRemove:
		h.remove(c, msg.To, msg.Ban)

	case protocol.MessageTypeStartRecording:
		h.setRecording(c, true)

	case protocol.MessageTypeStopRecording:
		h.setRecording(c, false)

	default:
		h.log.Debug("unknown message type", "conn", c.ID, "type", msg.Type)
		c.Send(protocol.NewError(meeting.CodeBadRequest, "unknown message type "+msg.Type))
	}
}

// broadcast queues msg for every member of the room. Callers hold the room lock.
func (h *Hub) broadcast(tx *registry.Tx, msg *protocol.Message, except string) {
	for _, m := range tx.Members() {
		if m.ConnID != except {
			h.sendTo(m.ConnID, msg)
		}
	}
}

// sendToHosts queues msg for members of the room who are its host.
func (h *Hub) sendToHosts(tx *registry.Tx, m *meeting.Meeting, msg *protocol.Message) {
	for _, mem := range tx.Members() {
		if m.IsHost(meeting.Identity(mem.UserID, mem.ConnID)) {
			h.sendTo(mem.ConnID, msg)
		}
	}
}

func (h *Hub) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), h.cfg.OpTimeout)
}

func (h *Hub) meetingInfo(m *meeting.Meeting, members int) *protocol.MeetingInfo {
	return &protocol.MeetingInfo{
		Code:              m.Code,
		HostName:          m.HostName,
		PasswordProtected: m.Policy.HasPassword(),
		WaitingRoom:       m.Policy.WaitingRoom,
		Capacity:          h.admission.Capacity(m),
		Participants:      members,
		AllowRecording:    m.Policy.AllowRecording,
		AllowScreenShare:  m.Policy.AllowScreenShare,
		AllowChat:         m.Policy.AllowChat,
		IsRecording:       m.IsRecording,
		StartedAt:         m.StartTime.UnixMilli(),
	}
}

func memberInfos(members []registry.Member) []protocol.MemberInfo {
	out := make([]protocol.MemberInfo, 0, len(members))
	for _, m := range members {
		out = append(out, protocol.MemberInfo{
			ID:       m.ConnID,
			Name:     m.Name,
			UserID:   m.UserID,
			JoinedAt: m.JoinedAt.UnixMilli(),
		})
	}
	return out
}

func waitingInfo(e meeting.WaitingEntry) *protocol.WaitingInfo {
	return &protocol.WaitingInfo{
		ID:          e.ConnID,
		Name:        e.Name,
		UserID:      e.UserID,
		RequestedAt: e.RequestedAt.UnixMilli(),
	}
}
