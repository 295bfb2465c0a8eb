package meeting

import (
	"slices"
	"strings"
	"time"
)

// Policy is the security policy chosen by the host when the meeting is created.
type Policy struct {
	PasswordHash     string `bson:"passwordHash,omitempty"`
	WaitingRoom      bool   `bson:"waitingRoom"`
	Capacity         int    `bson:"capacity"`
	AllowRecording   bool   `bson:"allowRecording"`
	AllowScreenShare bool   `bson:"allowScreenShare"`
	AllowChat        bool   `bson:"allowChat"`
}

// HasPassword reports whether joiners must present a password.
func (p Policy) HasPassword() bool {
	return p.PasswordHash != ""
}

// Participant is one entry of the participant history. It is never modified
// after LeftAt is set.
type Participant struct {
	ConnID   string     `bson:"connId"`
	UserID   string     `bson:"userId,omitempty"`
	Name     string     `bson:"name"`
	IsHost   bool       `bson:"isHost"`
	JoinedAt time.Time  `bson:"joinedAt"`
	LeftAt   *time.Time `bson:"leftAt,omitempty"`
}

// ChatMessage is one line of the chat history. History is ordered by arrival,
// Timestamp is informational.
type ChatMessage struct {
	SenderConnID string    `bson:"senderConnId"`
	SenderName   string    `bson:"senderName"`
	Text         string    `bson:"text"`
	Timestamp    time.Time `bson:"timestamp"`
}

// WaitingEntry is a joiner parked in the waiting room until the host decides.
type WaitingEntry struct {
	ConnID      string    `bson:"connId"`
	Name        string    `bson:"name"`
	UserID      string    `bson:"userId,omitempty"`
	RequestedAt time.Time `bson:"requestedAt"`
}

// Recording describes one recording interval started by the host.
type Recording struct {
	ID          string     `bson:"id"`
	StartedAt   time.Time  `bson:"startedAt"`
	EndedAt     *time.Time `bson:"endedAt,omitempty"`
	InitiatedBy string     `bson:"initiatedBy"`
	URL         string     `bson:"url,omitempty"`
}

// Duration returns the length of a finished recording, or zero while it runs.
func (r Recording) Duration() time.Duration {
	if r.EndedAt == nil {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// Meeting is the durable record of a room's lifecycle.
type Meeting struct {
	Code         string         `bson:"meetingCode"`
	HostUserID   string         `bson:"hostUserId"`
	HostName     string         `bson:"hostName"`
	Policy       Policy         `bson:"settings"`
	Participants []Participant  `bson:"participants"`
	Chat         []ChatMessage  `bson:"chat"`
	Waiting      []WaitingEntry `bson:"waiting"`
	AllowList    []string       `bson:"allowList"`
	BanList      []string       `bson:"banList"`
	Recordings   []Recording    `bson:"recordings"`
	IsRecording  bool           `bson:"isRecording"`
	Active       bool           `bson:"isActive"`
	StartTime    time.Time      `bson:"startTime"`
	EndTime      *time.Time     `bson:"endTime,omitempty"`
	// Duration is stored in whole seconds.
	DurationSeconds int64 `bson:"duration"`
}

// AnonymousPrefix marks identities derived from a connection id. Client
// supplied user ids may not start with it.
const AnonymousPrefix = "conn:"

// Identity returns the key used for allow-list, ban-list and host checks.
// Anonymous joiners are identified by their connection.
func Identity(userID, connID string) string {
	if userID != "" {
		return userID
	}
	return AnonymousPrefix + connID
}

// ReservedUserID reports whether userID collides with the anonymous
// identity namespace.
func ReservedUserID(userID string) bool {
	return strings.HasPrefix(userID, AnonymousPrefix)
}

func (m *Meeting) IsHost(identity string) bool {
	return identity != "" && m.HostUserID == identity
}

func (m *Meeting) IsBanned(identity string) bool {
	return slices.Contains(m.BanList, identity)
}

func (m *Meeting) IsAllowed(identity string) bool {
	return m.IsHost(identity) || slices.Contains(m.AllowList, identity)
}

// Allow adds identity to the allow list once.
func (m *Meeting) Allow(identity string) {
	if !slices.Contains(m.AllowList, identity) {
		m.AllowList = append(m.AllowList, identity)
	}
}

// Ban adds identity to the ban list and revokes any earlier admission.
func (m *Meeting) Ban(identity string) {
	if !slices.Contains(m.BanList, identity) {
		m.BanList = append(m.BanList, identity)
	}
	m.AllowList = slices.DeleteFunc(m.AllowList, func(id string) bool { return id == identity })
}

// WaitingIndex returns the queue position of connID or -1.
func (m *Meeting) WaitingIndex(connID string) int {
	return slices.IndexFunc(m.Waiting, func(e WaitingEntry) bool { return e.ConnID == connID })
}

// ActiveParticipants returns the history entries that have not left yet.
func (m *Meeting) ActiveParticipants() []Participant {
	var out []Participant
	for _, p := range m.Participants {
		if p.LeftAt == nil {
			out = append(out, p)
		}
	}
	return out
}

// Clone returns a deep copy safe to hand to another goroutine.
func (m *Meeting) Clone() *Meeting {
	c := *m
	c.Participants = slices.Clone(m.Participants)
	c.Chat = slices.Clone(m.Chat)
	c.Waiting = slices.Clone(m.Waiting)
	c.AllowList = slices.Clone(m.AllowList)
	c.BanList = slices.Clone(m.BanList)
	c.Recordings = slices.Clone(m.Recordings)
	if m.EndTime != nil {
		t := *m.EndTime
		c.EndTime = &t
	}
	return &c
}
