package client

import "github.com/utkarsh2338/NexMeet/internal/protocol"

// JoinRequest asks to enter a meeting. An empty Code lets the server pick
// one; Options only apply when the join creates the meeting.
type JoinRequest struct {
	Code     string
	Name     string
	UserID   string
	Password string
	Options  *protocol.JoinOptions
}

// Join sends a join request.
func (c *Client) Join(req JoinRequest) error {
	return c.Send(&protocol.Message{
		Type:     protocol.MessageTypeJoin,
		RoomID:   req.Code,
		Name:     req.Name,
		UserID:   req.UserID,
		Password: req.Password,
		Options:  req.Options,
	})
}

// Leave leaves the current meeting or waiting room.
func (c *Client) Leave() error {
	return c.Send(&protocol.Message{Type: protocol.MessageTypeLeave})
}

// Chat posts text to the meeting chat.
func (c *Client) Chat(text string) error {
	return c.Send(&protocol.Message{Type: protocol.MessageTypeChat, Text: text})
}

// Admit lets a waiting connection in. Host only.
func (c *Client) Admit(connID string) error {
	return c.Send(&protocol.Message{Type: protocol.MessageTypeAdmit, To: connID})
}

// Reject turns a waiting connection away. Host only.
func (c *Client) Reject(connID string) error {
	return c.Send(&protocol.Message{Type: protocol.MessageTypeReject, To: connID})
}

// Remove takes a member out of the meeting, optionally banning them.
func (c *Client) Remove(connID string, ban bool) error {
	return c.Send(&protocol.Message{Type: protocol.MessageTypeRemove, To: connID, Ban: ban})
}

// SetRecording starts or stops the meeting recording.
func (c *Client) SetRecording(on bool) error {
	typ := protocol.MessageTypeStopRecording
	if on {
		typ = protocol.MessageTypeStartRecording
	}
	return c.Send(&protocol.Message{Type: typ})
}
