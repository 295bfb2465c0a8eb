package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/utkarsh2338/NexMeet/internal/meeting"
	"github.com/utkarsh2338/NexMeet/internal/protocol"
)

func newTestHub(t *testing.T) (*Hub, *meeting.MemoryStore) {
	t.Helper()
	meeting.HashCost = bcrypt.MinCost
	store := meeting.NewMemoryStore()
	lifecycle := meeting.NewManager(store, meeting.Options{}, nil)
	return NewHub(Config{DefaultCapacity: 10, ChatMaxLength: 20}, lifecycle, nil), store
}

// connect registers a client without a websocket; tests read its queue.
func connect(t *testing.T, h *Hub, id string) *Client {
	t.Helper()
	c := &Client{
		ID:    id,
		hub:   h,
		codec: protocol.JSON,
		send:  make(chan *protocol.Message, 128),
		done:  make(chan struct{}),
	}
	require.True(t, h.Register(c))
	require.Equal(t, protocol.MessageTypeWelcome, next(t, c).Type)
	return c
}

func next(t *testing.T, c *Client) *protocol.Message {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(time.Second):
		t.Fatalf("%s: no message", c.ID)
		return nil
	}
}

// expect skips messages until one of type typ arrives.
func expect(t *testing.T, c *Client, typ string) *protocol.Message {
	t.Helper()
	for {
		msg := next(t, c)
		if msg.Type == typ {
			return msg
		}
	}
}

func drain(c *Client) []*protocol.Message {
	var out []*protocol.Message
	for {
		select {
		case msg := <-c.send:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func join(h *Hub, c *Client, code, name, userID string, opts *protocol.JoinOptions) {
	h.handle(c, &protocol.Message{Type: protocol.MessageTypeJoin, RoomID: code, Name: name, UserID: userID, Options: opts})
}

func TestCapacityScenario(t *testing.T) {
	h, store := newTestHub(t)
	ctx := context.Background()
	p1, p2, p3 := connect(t, h, "p1"), connect(t, h, "p2"), connect(t, h, "p3")

	join(h, p1, "R1", "Ann", "u1", &protocol.JoinOptions{Capacity: 2})
	joined := expect(t, p1, protocol.MessageTypeJoined)
	require.True(t, joined.IsHost)
	require.Equal(t, 2, joined.Meeting.Capacity)

	m, err := store.FindActive(ctx, "R1")
	require.NoError(t, err)
	require.True(t, m.Active)

	join(h, p2, "R1", "Bo", "u2", nil)
	joined = expect(t, p2, protocol.MessageTypeJoined)
	require.False(t, joined.IsHost)
	require.Len(t, joined.Members, 2)
	announced := expect(t, p1, protocol.MessageTypeUserJoined)
	require.Equal(t, "p2", announced.From)

	join(h, p3, "R1", "Cy", "u3", nil)
	rejected := expect(t, p3, protocol.MessageTypeError)
	require.Equal(t, meeting.CodeRoomFull, rejected.Error.Code)
	require.Len(t, h.Members("R1"), 2)
	require.Empty(t, drain(p1), "admission failures are not broadcast")

	h.handle(p1, &protocol.Message{Type: protocol.MessageTypeLeave})
	left := expect(t, p2, protocol.MessageTypeUserLeft)
	require.Equal(t, "p1", left.From)
	require.Len(t, h.Members("R1"), 1)
	_, err = store.FindActive(ctx, "R1")
	require.NoError(t, err, "meeting stays active while someone is present")

	h.handle(p2, &protocol.Message{Type: protocol.MessageTypeLeave})
	require.Empty(t, h.Members("R1"))
	require.Zero(t, h.RoomCount())

	all := store.All()
	require.Len(t, all, 1)
	require.False(t, all[0].Active)
	require.NotNil(t, all[0].EndTime)
	require.GreaterOrEqual(t, all[0].DurationSeconds, int64(0))
	for _, p := range all[0].Participants {
		require.NotNil(t, p.LeftAt, p.ConnID)
	}
}

func TestWaitingRoomScenario(t *testing.T) {
	h, store := newTestHub(t)
	host, p2 := connect(t, h, "host"), connect(t, h, "p2")

	join(h, host, "W1", "Host", "uh", &protocol.JoinOptions{WaitingRoom: true})
	expect(t, host, protocol.MessageTypeJoined)

	join(h, p2, "W1", "Bo", "u2", nil)
	pending := expect(t, p2, protocol.MessageTypePendingApproval)
	require.Equal(t, meeting.CodePendingApproval, pending.Error.Code)
	waiting := expect(t, host, protocol.MessageTypeWaitingParticipant)
	require.Equal(t, "p2", waiting.Entry.ID)
	require.Len(t, h.Members("W1"), 1)

	stored, err := store.FindActive(context.Background(), "W1")
	require.NoError(t, err)
	require.Len(t, stored.Waiting, 1)

	h.handle(host, &protocol.Message{Type: protocol.MessageTypeAdmit, To: "p2"})
	expect(t, p2, protocol.MessageTypeAdmitted)
	require.Empty(t, h.lifecycle.Get("W1").Waiting)
	require.True(t, h.lifecycle.Get("W1").IsAllowed("u2"))

	join(h, p2, "W1", "Bo", "u2", nil)
	expect(t, p2, protocol.MessageTypeJoined)
	require.Len(t, h.Members("W1"), 2)
}

func TestOnlyHostMayAdmit(t *testing.T) {
	h, _ := newTestHub(t)
	host, p2, p3 := connect(t, h, "host"), connect(t, h, "p2"), connect(t, h, "p3")

	join(h, host, "W2", "Host", "uh", &protocol.JoinOptions{WaitingRoom: true})
	h.lifecycle.Get("W2").Allow("u2")
	join(h, p2, "W2", "Bo", "u2", nil)
	expect(t, p2, protocol.MessageTypeJoined)

	join(h, p3, "W2", "Cy", "u3", nil)
	expect(t, p3, protocol.MessageTypePendingApproval)

	h.handle(p2, &protocol.Message{Type: protocol.MessageTypeAdmit, To: "p3"})
	refused := expect(t, p2, protocol.MessageTypeError)
	require.Equal(t, meeting.CodeUnauthorized, refused.Error.Code)
	require.Len(t, h.lifecycle.Get("W2").Waiting, 1)

	h.handle(host, &protocol.Message{Type: protocol.MessageTypeReject, To: "p3"})
	expect(t, p3, protocol.MessageTypeRejected)
	require.Empty(t, h.lifecycle.Get("W2").Waiting)
}

func TestReservedUserIDRejected(t *testing.T) {
	h, _ := newTestHub(t)
	host, mallory := connect(t, h, "hostconn"), connect(t, h, "mallory")

	join(h, host, "W", "Host", "", &protocol.JoinOptions{WaitingRoom: true})
	expect(t, host, protocol.MessageTypeJoined)

	join(h, mallory, "W", "Mallory", meeting.AnonymousPrefix+"hostconn", nil)
	refused := expect(t, mallory, protocol.MessageTypeError)
	require.Equal(t, meeting.CodeBadRequest, refused.Error.Code)
	require.Len(t, h.Members("W"), 1)
	require.Empty(t, h.lifecycle.Get("W").Waiting)

	h.handle(mallory, &protocol.Message{Type: protocol.MessageTypeRemove, To: "hostconn", Ban: true})
	require.Empty(t, drain(host), "host is untouched")
	require.Len(t, h.Members("W"), 1)
}

func TestShutdownKeepsMeetingsActive(t *testing.T) {
	h, store := newTestHub(t)
	p1, p2 := connect(t, h, "p1"), connect(t, h, "p2")

	join(h, p1, "R1", "Ann", "u1", nil)
	join(h, p2, "R1", "Bo", "u2", nil)
	expect(t, p2, protocol.MessageTypeJoined)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	// The read pumps unregister as their sockets close.
	h.Unregister(p1)
	h.Unregister(p2)
	require.Zero(t, h.ClientCount())

	active, err := store.FindAllActive(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "R1", active[0].Code)
	require.Nil(t, active[0].EndTime)
	for _, p := range active[0].Participants {
		require.Nil(t, p.LeftAt, p.ConnID)
	}
}

func TestWaitingConnectionDisconnects(t *testing.T) {
	h, _ := newTestHub(t)
	host, p2 := connect(t, h, "host"), connect(t, h, "p2")

	join(h, host, "W3", "Host", "uh", &protocol.JoinOptions{WaitingRoom: true})
	join(h, p2, "W3", "Bo", "u2", nil)
	expect(t, host, protocol.MessageTypeWaitingParticipant)

	h.Unregister(p2)
	cancelled := expect(t, host, protocol.MessageTypeWaitingCancelled)
	require.Equal(t, "p2", cancelled.Entry.ID)
	require.Empty(t, h.lifecycle.Get("W3").Waiting)
}

func TestTeardownClearsWaitingRoom(t *testing.T) {
	h, _ := newTestHub(t)
	host, p2 := connect(t, h, "host"), connect(t, h, "p2")

	join(h, host, "W4", "Host", "uh", &protocol.JoinOptions{WaitingRoom: true})
	join(h, p2, "W4", "Bo", "u2", nil)
	expect(t, p2, protocol.MessageTypePendingApproval)

	h.handle(host, &protocol.Message{Type: protocol.MessageTypeLeave})
	rejected := expect(t, p2, protocol.MessageTypeRejected)
	require.Equal(t, "meeting ended", rejected.Reason)
	require.Empty(t, p2.waitingRoom())
	require.Nil(t, h.lifecycle.Get("W4"))
}

func TestBannedUserNeverReadmitted(t *testing.T) {
	h, _ := newTestHub(t)
	host, p2 := connect(t, h, "host"), connect(t, h, "p2")

	join(h, host, "B1", "Host", "uh", &protocol.JoinOptions{Password: "letmein"})
	expect(t, host, protocol.MessageTypeJoined)

	h.handle(p2, &protocol.Message{Type: protocol.MessageTypeJoin, RoomID: "B1", Name: "Bo", UserID: "u2", Password: "wrong"})
	require.Equal(t, meeting.CodeInvalidPassword, expect(t, p2, protocol.MessageTypeError).Error.Code)

	h.handle(p2, &protocol.Message{Type: protocol.MessageTypeJoin, RoomID: "B1", Name: "Bo", UserID: "u2", Password: "letmein"})
	expect(t, p2, protocol.MessageTypeJoined)

	h.handle(host, &protocol.Message{Type: protocol.MessageTypeRemove, To: "p2", Ban: true})
	removed := expect(t, p2, protocol.MessageTypeRemoved)
	require.Equal(t, "banned by host", removed.Reason)
	require.Equal(t, "p2", expect(t, host, protocol.MessageTypeUserLeft).From)
	require.Empty(t, p2.Room())

	h.handle(p2, &protocol.Message{Type: protocol.MessageTypeJoin, RoomID: "B1", Name: "Bo", UserID: "u2", Password: "letmein"})
	require.Equal(t, meeting.CodeAccessDenied, expect(t, p2, protocol.MessageTypeError).Error.Code)
	require.Len(t, h.Members("B1"), 1)
}

func TestJoinTwiceIsNoop(t *testing.T) {
	h, _ := newTestHub(t)
	p1 := connect(t, h, "p1")

	join(h, p1, "R2", "Ann", "", nil)
	expect(t, p1, protocol.MessageTypeJoined)

	join(h, p1, "R2", "Ann", "", nil)
	warn := expect(t, p1, protocol.MessageTypeError)
	require.Equal(t, meeting.CodeAlreadyJoined, warn.Error.Code)
	require.Len(t, h.Members("R2"), 1)
}

func TestJoinWithoutCodeGeneratesOne(t *testing.T) {
	h, _ := newTestHub(t)
	p1 := connect(t, h, "p1")

	join(h, p1, "", "Ann", "", nil)
	joined := expect(t, p1, protocol.MessageTypeJoined)
	require.Len(t, strings.Split(joined.RoomID, "-"), 3)
	require.Equal(t, joined.RoomID, p1.Room())
}

func TestChatOrderAndReplay(t *testing.T) {
	h, _ := newTestHub(t)
	p1, p2, p3 := connect(t, h, "p1"), connect(t, h, "p2"), connect(t, h, "p3")

	join(h, p1, "C1", "Ann", "", nil)
	join(h, p2, "C1", "Bo", "", nil)
	drain(p1)
	drain(p2)

	for _, text := range []string{"one", "two", "three"} {
		h.handle(p1, &protocol.Message{Type: protocol.MessageTypeChat, Text: text})
	}

	for _, c := range []*Client{p1, p2} {
		for _, want := range []string{"one", "two", "three"} {
			msg := expect(t, c, protocol.MessageTypeChatMessage)
			require.Equal(t, want, msg.Text)
			require.Equal(t, "Ann", msg.Name)
			require.Equal(t, "p1", msg.From)
		}
	}

	join(h, p3, "C1", "Cy", "", nil)
	expect(t, p3, protocol.MessageTypeJoined)
	history := expect(t, p3, protocol.MessageTypeChatHistory)
	require.Len(t, history.Chat, 3)
	for i, want := range []string{"one", "two", "three"} {
		require.Equal(t, want, history.Chat[i].Text)
	}
	for _, msg := range drain(p3) {
		require.NotEqual(t, protocol.MessageTypeChatMessage, msg.Type, "history must not be delivered twice")
		require.NotEqual(t, protocol.MessageTypeChatHistory, msg.Type)
	}

	h.handle(p2, &protocol.Message{Type: protocol.MessageTypeChat, Text: strings.Repeat("x", 21)})
	require.Equal(t, meeting.CodeMessageTooLong, expect(t, p2, protocol.MessageTypeError).Error.Code)
}

func TestChatDisabled(t *testing.T) {
	h, _ := newTestHub(t)
	p1 := connect(t, h, "p1")

	join(h, p1, "C2", "Ann", "", &protocol.JoinOptions{DisableChat: true})
	expect(t, p1, protocol.MessageTypeJoined)

	h.handle(p1, &protocol.Message{Type: protocol.MessageTypeChat, Text: "hi"})
	require.Equal(t, meeting.CodeChatDisabled, expect(t, p1, protocol.MessageTypeError).Error.Code)
}

func TestRelayForwardsPayloadUnchanged(t *testing.T) {
	h, _ := newTestHub(t)
	p1, p2, outsider := connect(t, h, "p1"), connect(t, h, "p2"), connect(t, h, "x")

	join(h, p1, "S1", "Ann", "", nil)
	join(h, p2, "S1", "Bo", "", nil)
	join(h, outsider, "S2", "Xi", "", nil)
	drain(p1)
	drain(p2)
	drain(outsider)

	payload := json.RawMessage(`{"kind":"offer","sdp":"v=0\r\n","extra":[1,2,3]}`)
	h.handle(p1, &protocol.Message{Type: protocol.MessageTypeSignal, To: "p2", Payload: payload})
	got := expect(t, p2, protocol.MessageTypeSignal)
	require.Equal(t, "p1", got.From)
	require.Equal(t, string(payload), string(got.Payload))

	require.ErrorIs(t, h.Relay("p1", "gone", payload), ErrRelayMiss)
	require.ErrorIs(t, h.Relay("p1", "x", payload), ErrRelayMiss, "other rooms are not reachable")
	h.handle(p1, &protocol.Message{Type: protocol.MessageTypeSignal, To: "gone", Payload: payload})
	require.Empty(t, drain(p1), "relay misses are silent")
	require.Empty(t, drain(outsider))
}

func TestRecordingRequiresHostAndPolicy(t *testing.T) {
	h, store := newTestHub(t)
	host, p2 := connect(t, h, "host"), connect(t, h, "p2")

	join(h, host, "V1", "Host", "uh", &protocol.JoinOptions{AllowRecording: true})
	join(h, p2, "V1", "Bo", "u2", nil)
	drain(host)

	h.handle(p2, &protocol.Message{Type: protocol.MessageTypeStartRecording})
	require.Equal(t, meeting.CodeUnauthorized, expect(t, p2, protocol.MessageTypeError).Error.Code)

	h.handle(host, &protocol.Message{Type: protocol.MessageTypeStartRecording})
	started := expect(t, p2, protocol.MessageTypeRecording)
	require.True(t, started.Recording.Active)

	h.handle(host, &protocol.Message{Type: protocol.MessageTypeStartRecording})
	require.Equal(t, meeting.CodeRecordingState, expect(t, host, protocol.MessageTypeError).Error.Code)

	h.handle(host, &protocol.Message{Type: protocol.MessageTypeStopRecording})
	stopped := expect(t, p2, protocol.MessageTypeRecording)
	require.False(t, stopped.Recording.Active)
	require.NotZero(t, stopped.Recording.EndedAt)

	stored, err := store.FindActive(context.Background(), "V1")
	require.NoError(t, err)
	require.False(t, stored.IsRecording)
	require.Len(t, stored.Recordings, 1)

	other := connect(t, h, "solo")
	join(h, other, "V2", "Solo", "", nil)
	h.handle(other, &protocol.Message{Type: protocol.MessageTypeStartRecording})
	require.Equal(t, meeting.CodeRecordingDisabled, expect(t, other, protocol.MessageTypeError).Error.Code)
}

func TestStopRecordingWithoutInterval(t *testing.T) {
	h, _ := newTestHub(t)
	host := connect(t, h, "host")

	join(h, host, "V3", "Host", "uh", &protocol.JoinOptions{AllowRecording: true})
	expect(t, host, protocol.MessageTypeJoined)
	h.lifecycle.Get("V3").IsRecording = true

	h.handle(host, &protocol.Message{Type: protocol.MessageTypeStopRecording})
	stopped := expect(t, host, protocol.MessageTypeRecording)
	require.False(t, stopped.Recording.Active)
	require.Empty(t, stopped.Recording.ID)
	require.False(t, h.lifecycle.Get("V3").IsRecording)
}

func TestConcurrentFirstJoinsCreateOneMeeting(t *testing.T) {
	h, store := newTestHub(t)

	const n = 16
	clients := make([]*Client, n)
	for i := range clients {
		clients[i] = connect(t, h, fmt.Sprintf("c%02d", i))
	}

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			join(h, c, "RACE", c.ID, "", nil)
		}(c)
	}
	wg.Wait()

	hosts := 0
	for _, c := range clients {
		joined := expect(t, c, protocol.MessageTypeJoined)
		if joined.IsHost {
			hosts++
		}
	}
	require.Equal(t, 1, hosts)
	require.Len(t, store.All(), 1)
	require.Len(t, h.Members("RACE"), n)
}

func TestMeetingInfo(t *testing.T) {
	h, _ := newTestHub(t)
	p1 := connect(t, h, "p1")

	_, err := h.MeetingInfo(context.Background(), "nope")
	require.ErrorIs(t, err, meeting.ErrNotFound)

	join(h, p1, "I1", "Ann", "", &protocol.JoinOptions{Password: "pw", Capacity: 4})
	info, err := h.MeetingInfo(context.Background(), "I1")
	require.NoError(t, err)
	require.True(t, info.PasswordProtected)
	require.Equal(t, 4, info.Capacity)
	require.Equal(t, 1, info.Participants)
	require.Equal(t, "Ann", info.HostName)
}
