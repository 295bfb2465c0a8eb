package client

import (
	"cmp"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/utkarsh2338/NexMeet/internal/protocol"
)

// Peers is the part of negotiation.Manager the handler drives.
type Peers interface {
	Join(memberIDs []string) error
	AddPeer(remoteID string) error
	RemovePeer(remoteID string)
	HandleSignal(from string, payload json.RawMessage) error
	Peers() []string
}

// Handler routes incoming signaling messages. Room membership and signals
// go to the peer manager; everything else is passed on as an update.
type Handler struct {
	client *Client
	peers  Peers
	log    *slog.Logger

	// Updates carries every message the caller may want to show.
	Updates chan *protocol.Message
	// Errors carries server error replies and local negotiation errors.
	Errors chan error

	mu      sync.Mutex
	members map[string]protocol.MemberInfo
	room    string
	host    bool
}

// NewHandler creates a handler for client. peers may be nil when media is
// not negotiated.
func NewHandler(client *Client, peers Peers, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		client:  client,
		peers:   peers,
		log:     logger.With("component", "handler"),
		Updates: make(chan *protocol.Message, 64),
		Errors:  make(chan error, 16),
		members: make(map[string]protocol.MemberInfo),
	}
}

// Start reads until the connection ends, then closes Updates and Errors.
func (h *Handler) Start() {
	defer h.close()

	for msg := range h.client.Incoming() {
		switch msg.Type {
		case protocol.MessageTypeJoined:
			h.handleJoined(msg)

		case protocol.MessageTypeUserJoined:
			h.setMember(protocol.MemberInfo{ID: msg.From, Name: msg.Name, UserID: msg.UserID, JoinedAt: msg.Timestamp})
			if h.peers != nil {
				h.report(h.peers.AddPeer(msg.From))
			}

		case protocol.MessageTypeUserLeft:
			h.mu.Lock()
			delete(h.members, msg.From)
			h.mu.Unlock()
			if h.peers != nil {
				h.peers.RemovePeer(msg.From)
			}

		case protocol.MessageTypeSignal:
			if h.peers != nil {
				h.report(h.peers.HandleSignal(msg.From, msg.Payload))
			}
			continue

		case protocol.MessageTypeRemoved, protocol.MessageTypeRejected:
			h.reset()

		case protocol.MessageTypeError:
			h.report(refusal(msg))
			continue
		}

		h.forward(msg)
	}
}

func (h *Handler) handleJoined(msg *protocol.Message) {
	ids := make([]string, 0, len(msg.Members))
	h.mu.Lock()
	h.room = msg.RoomID
	h.host = msg.IsHost
	clear(h.members)
	for _, m := range msg.Members {
		h.members[m.ID] = m
		ids = append(ids, m.ID)
	}
	h.mu.Unlock()

	if h.peers != nil {
		h.report(h.peers.Join(ids))
	}
}

func (h *Handler) setMember(m protocol.MemberInfo) {
	h.mu.Lock()
	h.members[m.ID] = m
	h.mu.Unlock()
}

// reset drops the room after being removed or turned away.
func (h *Handler) reset() {
	h.mu.Lock()
	h.room = ""
	h.host = false
	clear(h.members)
	h.mu.Unlock()

	if h.peers != nil {
		for _, id := range h.peers.Peers() {
			h.peers.RemovePeer(id)
		}
	}
}

func (h *Handler) forward(msg *protocol.Message) {
	select {
	case h.Updates <- msg:
	default:
		h.log.Warn("update dropped", "type", msg.Type)
	}
}

func (h *Handler) report(err error) {
	if err == nil {
		return
	}
	select {
	case h.Errors <- err:
	default:
		h.log.Warn("error dropped", "error", err)
	}
}

func (h *Handler) close() {
	close(h.Updates)
	close(h.Errors)
}

// Room returns the current room code and whether this client hosts it.
func (h *Handler) Room() (code string, host bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.room, h.host
}

// Members returns the room's members ordered by join time.
func (h *Handler) Members() []protocol.MemberInfo {
	h.mu.Lock()
	out := make([]protocol.MemberInfo, 0, len(h.members))
	for _, m := range h.members {
		out = append(out, m)
	}
	h.mu.Unlock()

	slices.SortFunc(out, func(a, b protocol.MemberInfo) int {
		if c := cmp.Compare(a.JoinedAt, b.JoinedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func refusal(msg *protocol.Message) error {
	if msg.Error == nil {
		return ErrServerRefused
	}
	return fmt.Errorf("%w: %s: %s", ErrServerRefused, msg.Error.Code, msg.Error.Message)
}
