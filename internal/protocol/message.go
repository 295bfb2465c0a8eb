// Package protocol defines the websocket messages exchanged between the
// signaling server and meeting clients.
package protocol

import "encoding/json"

// Message is the envelope for every client-server message. Only the fields
// relevant to a given Type are set.
type Message struct {
	Type   string `json:"type" msgpack:"type"`
	RoomID string `json:"room_id,omitempty" msgpack:"room_id,omitempty"`

	// From and To address a peer by connection id.
	From string `json:"from,omitempty" msgpack:"from,omitempty"`
	To   string `json:"to,omitempty" msgpack:"to,omitempty"`

	Name     string `json:"name,omitempty" msgpack:"name,omitempty"`
	UserID   string `json:"user_id,omitempty" msgpack:"user_id,omitempty"`
	Password string `json:"password,omitempty" msgpack:"password,omitempty"`
	Text     string `json:"text,omitempty" msgpack:"text,omitempty"`
	Reason   string `json:"reason,omitempty" msgpack:"reason,omitempty"`
	Ban      bool   `json:"ban,omitempty" msgpack:"ban,omitempty"`
	IsHost   bool   `json:"is_host,omitempty" msgpack:"is_host,omitempty"`

	// Timestamp is in Unix milliseconds.
	Timestamp     int64 `json:"timestamp,omitempty" msgpack:"timestamp,omitempty"`
	OnlineSeconds int64 `json:"online_seconds,omitempty" msgpack:"online_seconds,omitempty"`

	// Payload carries an encoded Signal. The server forwards it untouched.
	Payload json.RawMessage `json:"payload,omitempty" msgpack:"payload,omitempty"`

	Options   *JoinOptions   `json:"options,omitempty" msgpack:"options,omitempty"`
	Members   []MemberInfo   `json:"members,omitempty" msgpack:"members,omitempty"`
	Chat      []ChatEntry    `json:"chat,omitempty" msgpack:"chat,omitempty"`
	Entry     *WaitingInfo   `json:"entry,omitempty" msgpack:"entry,omitempty"`
	Meeting   *MeetingInfo   `json:"meeting,omitempty" msgpack:"meeting,omitempty"`
	Recording *RecordingInfo `json:"recording,omitempty" msgpack:"recording,omitempty"`
	Error     *ErrorPayload  `json:"error,omitempty" msgpack:"error,omitempty"`
}

// Client to server.
const (
	MessageTypeJoin           = "join"
	MessageTypeLeave          = "leave"
	MessageTypeSignal         = "signal"
	MessageTypeChat           = "chat"
	MessageTypeAdmit          = "admit"
	MessageTypeReject         = "reject"
	MessageTypeRemove         = "remove"
	MessageTypeStartRecording = "start-recording"
	MessageTypeStopRecording  = "stop-recording"
)

// Server to client.
const (
	MessageTypeWelcome            = "welcome"
	MessageTypeJoined             = "joined"
	MessageTypeUserJoined         = "user-joined"
	MessageTypeUserLeft           = "user-left"
	MessageTypeChatMessage        = "chat-message"
	MessageTypeChatHistory        = "chat-history"
	MessageTypePendingApproval    = "pending-approval"
	MessageTypeWaitingParticipant = "waiting-participant"
	MessageTypeWaitingCancelled   = "waiting-cancelled"
	MessageTypeAdmitted           = "admitted"
	MessageTypeRejected           = "rejected"
	MessageTypeRemoved            = "removed"
	MessageTypeRecording          = "recording"
	MessageTypeError              = "error"
)

// JoinOptions are honoured only on the join that creates a meeting.
type JoinOptions struct {
	Password           string `json:"password,omitempty" msgpack:"password,omitempty"`
	WaitingRoom        bool   `json:"waiting_room,omitempty" msgpack:"waiting_room,omitempty"`
	Capacity           int    `json:"capacity,omitempty" msgpack:"capacity,omitempty"`
	AllowRecording     bool   `json:"allow_recording,omitempty" msgpack:"allow_recording,omitempty"`
	DisableScreenShare bool   `json:"disable_screen_share,omitempty" msgpack:"disable_screen_share,omitempty"`
	DisableChat        bool   `json:"disable_chat,omitempty" msgpack:"disable_chat,omitempty"`
}

// MemberInfo describes one member of a room.
type MemberInfo struct {
	ID       string `json:"id" msgpack:"id"`
	Name     string `json:"name" msgpack:"name"`
	UserID   string `json:"user_id,omitempty" msgpack:"user_id,omitempty"`
	JoinedAt int64  `json:"joined_at" msgpack:"joined_at"`
}

// ChatEntry is one chat line.
type ChatEntry struct {
	From      string `json:"from" msgpack:"from"`
	Name      string `json:"name" msgpack:"name"`
	Text      string `json:"text" msgpack:"text"`
	Timestamp int64  `json:"timestamp" msgpack:"timestamp"`
}

// WaitingInfo describes a joiner in the waiting room.
type WaitingInfo struct {
	ID          string `json:"id" msgpack:"id"`
	Name        string `json:"name" msgpack:"name"`
	UserID      string `json:"user_id,omitempty" msgpack:"user_id,omitempty"`
	RequestedAt int64  `json:"requested_at" msgpack:"requested_at"`
}

// MeetingInfo is the public view of a meeting.
type MeetingInfo struct {
	Code              string `json:"code" msgpack:"code"`
	HostName          string `json:"host_name" msgpack:"host_name"`
	PasswordProtected bool   `json:"password_protected" msgpack:"password_protected"`
	WaitingRoom       bool   `json:"waiting_room" msgpack:"waiting_room"`
	Capacity          int    `json:"capacity" msgpack:"capacity"`
	Participants      int    `json:"participants" msgpack:"participants"`
	AllowRecording    bool   `json:"allow_recording" msgpack:"allow_recording"`
	AllowScreenShare  bool   `json:"allow_screen_share" msgpack:"allow_screen_share"`
	AllowChat         bool   `json:"allow_chat" msgpack:"allow_chat"`
	IsRecording       bool   `json:"is_recording" msgpack:"is_recording"`
	StartedAt         int64  `json:"started_at" msgpack:"started_at"`
}

// RecordingInfo reports a recording state change.
type RecordingInfo struct {
	Active          bool   `json:"active" msgpack:"active"`
	ID              string `json:"id" msgpack:"id"`
	StartedAt       int64  `json:"started_at" msgpack:"started_at"`
	EndedAt         int64  `json:"ended_at,omitempty" msgpack:"ended_at,omitempty"`
	DurationSeconds int64  `json:"duration_seconds,omitempty" msgpack:"duration_seconds,omitempty"`
	InitiatedBy     string `json:"initiated_by" msgpack:"initiated_by"`
}

// ErrorPayload represents error messages from server.
type ErrorPayload struct {
	Code    string `json:"code" msgpack:"code"`
	Message string `json:"message" msgpack:"message"`
}

// NewError builds an error message.
func NewError(code, message string) *Message {
	return &Message{Type: MessageTypeError, Error: &ErrorPayload{Code: code, Message: message}}
}
