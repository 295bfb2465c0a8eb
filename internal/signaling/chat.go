package signaling

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/utkarsh2338/NexMeet/internal/meeting"
	"github.com/utkarsh2338/NexMeet/internal/metrics"
	"github.com/utkarsh2338/NexMeet/internal/protocol"
	"github.com/utkarsh2338/NexMeet/internal/registry"
)

// SendChat appends a message to the meeting's history and delivers it to
// every current member. Appending and delivery share the room lock, so all
// members see messages in acceptance order and a concurrent joiner gets each
// message exactly once, either in its history or live.
func (h *Hub) SendChat(code, senderConnID, senderName, text string) (err error) {
	if code == "" {
		return meeting.WrapError("chat", "", meeting.ErrNotFound, "join a room first")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return meeting.WrapError("chat", code, meeting.ErrBadRequest, "empty message")
	}
	if utf8.RuneCountInString(text) > h.cfg.ChatMaxLength {
		return meeting.NewError("chat", code, meeting.ErrMessageTooLong)
	}

	ctx, cancel := h.opContext()
	defer cancel()

	h.registry.Locked(code, func(tx *registry.Tx) {
		m := h.lifecycle.Get(code)
		if !tx.Has(senderConnID) || m == nil {
			err = meeting.NewError("chat", code, meeting.ErrNotFound)
			return
		}
		if !m.Policy.AllowChat {
			err = meeting.NewError("chat", code, meeting.ErrChatDisabled)
			return
		}

		line := meeting.ChatMessage{
			SenderConnID: senderConnID,
			SenderName:   senderName,
			Text:         text,
			Timestamp:    time.Now(),
		}
		if err = h.lifecycle.AppendChat(ctx, code, line); err != nil {
			return
		}

		entry := chatEntry(line)
		h.broadcast(tx, &protocol.Message{
			Type:      protocol.MessageTypeChatMessage,
			RoomID:    code,
			From:      entry.From,
			Name:      entry.Name,
			Text:      entry.Text,
			Timestamp: entry.Timestamp,
		}, "")
		metrics.ChatMessages.Inc()
	})
	return err
}
