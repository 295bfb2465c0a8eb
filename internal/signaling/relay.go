package signaling

import (
	"encoding/json"
	"errors"

	"github.com/utkarsh2338/NexMeet/internal/meeting"
	"github.com/utkarsh2338/NexMeet/internal/metrics"
	"github.com/utkarsh2338/NexMeet/internal/protocol"
)

// ErrRelayMiss means the addressed connection was not live in the sender's
// room. It is never reported to the sender.
var ErrRelayMiss = errors.New("relay target is not connected")

// Relay forwards payload from one connection to another in the same room.
// The payload is not inspected.
func (h *Hub) Relay(from, to string, payload json.RawMessage) error {
	code, err := h.registry.LookupRoom(from)
	if err != nil {
		return meeting.NewError("relay", "", meeting.ErrNotFound)
	}

	target := h.client(to)
	if target == nil || target.Room() != code {
		metrics.RelayMisses.Inc()
		return ErrRelayMiss
	}

	ok := target.Send(&protocol.Message{
		Type:    protocol.MessageTypeSignal,
		RoomID:  code,
		From:    from,
		To:      to,
		Payload: payload,
	})
	if !ok {
		metrics.RelayMisses.Inc()
		return ErrRelayMiss
	}
	metrics.SignalsRelayed.Inc()
	return nil
}

func (h *Hub) relayFrom(c *Client, msg *protocol.Message) {
	err := h.Relay(c.ID, msg.To, msg.Payload)
	switch {
	case err == nil:
	case errors.Is(err, ErrRelayMiss):
		h.log.Debug("relay target gone, dropping signal", "from", c.ID, "to", msg.To)
	default:
		c.sendError(meeting.WrapError("signal", "", err, "join a room first"))
	}
}
