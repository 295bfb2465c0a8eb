package negotiation

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/utkarsh2338/NexMeet/internal/protocol"
)

type factory struct {
	localID string

	mu   sync.Mutex
	made map[string][]*fakeTransport
}

func newFactory(localID string) *factory {
	return &factory{localID: localID, made: make(map[string][]*fakeTransport)}
}

func (f *factory) New(remoteID string, events Events) (Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := newFakeTransport(f.localID, events)
	f.made[remoteID] = append(f.made[remoteID], t)
	return t, nil
}

func (f *factory) count(remoteID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.made[remoteID])
}

func (f *factory) nth(remoteID string, i int) *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.made[remoteID][i]
}

func (f *factory) last(remoteID string) *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.made[remoteID]
	return list[len(list)-1]
}

// mesh wires managers together through a queued relay.
type mesh struct {
	relay     *relay
	managers  map[string]*Manager
	factories map[string]*factory
	failed    chan string
	connected chan string
}

func newMesh(t *testing.T, timeout time.Duration, ids ...string) *mesh {
	t.Helper()
	m := &mesh{
		relay:     &relay{},
		managers:  make(map[string]*Manager),
		factories: make(map[string]*factory),
		failed:    make(chan string, 16),
		connected: make(chan string, 16),
	}
	for _, id := range ids {
		f := newFactory(id)
		mgr, err := NewManager(Config{
			LocalID:      id,
			NewTransport: f.New,
			Send: func(to string, sig protocol.Signal) error {
				return m.relay.sender(id, to)(sig)
			},
			Timeout:     timeout,
			OnConnected: func(remote string) { m.connected <- id + ">" + remote },
			OnFailed:    func(remote string, err error) { m.failed <- id + ">" + remote },
		})
		require.NoError(t, err)
		t.Cleanup(mgr.Close)
		m.managers[id] = mgr
		m.factories[id] = f
	}
	return m
}

func (m *mesh) deliver(e envelope) error {
	payload, err := e.sig.Encode()
	if err != nil {
		return err
	}
	return m.managers[e.to].HandleSignal(e.from, payload)
}

func TestNewManagerValidates(t *testing.T) {
	_, err := NewManager(Config{})
	require.Error(t, err)
}

func TestJoinOffersOnlyToLargerIDs(t *testing.T) {
	m := newMesh(t, time.Minute, "m")

	require.NoError(t, m.managers["m"].Join([]string{"a", "m", "z"}))
	require.Equal(t, []string{"a", "z"}, m.managers["m"].Peers())

	sent := m.relay.take()
	require.Len(t, sent, 1)
	require.Equal(t, "z", sent[0].to)
	require.Equal(t, protocol.SignalOffer, sent[0].sig.Kind)
	require.Equal(t, StateNew, m.managers["m"].State("a"))
	require.Equal(t, StateHaveLocalOffer, m.managers["m"].State("z"))
}

func TestManagersNegotiate(t *testing.T) {
	m := newMesh(t, time.Minute, "a", "b")

	// b joins a room that already holds a; a learns about b afterwards.
	require.NoError(t, m.managers["b"].Join([]string{"a"}))
	require.NoError(t, m.managers["a"].AddPeer("b"))
	require.NoError(t, m.relay.drain(m.deliver))

	require.Equal(t, StateStable, m.managers["a"].State("b"))
	require.Equal(t, StateStable, m.managers["b"].State("a"))
	require.Equal(t, "answer-b-1", m.factories["a"].last("b").stats().remote)
}

func TestOfferFromUnknownPeerCreatesSession(t *testing.T) {
	m := newMesh(t, time.Minute, "a", "b")

	require.NoError(t, m.managers["a"].AddPeer("b"))
	require.NoError(t, m.relay.drain(m.deliver))

	require.Equal(t, []string{"a"}, m.managers["b"].Peers())
	require.Equal(t, StateStable, m.managers["b"].State("a"))

	// Adding the peer afterwards keeps the negotiated session.
	require.NoError(t, m.managers["b"].AddPeer("a"))
	require.Equal(t, 1, m.factories["b"].count("a"))
}

func TestRemovePeerClosesTransport(t *testing.T) {
	m := newMesh(t, time.Minute, "a")
	require.NoError(t, m.managers["a"].AddPeer("b"))
	tr := m.factories["a"].last("b")

	m.managers["a"].RemovePeer("b")
	require.Empty(t, m.managers["a"].Peers())
	require.True(t, tr.stats().closed)
	require.Equal(t, StateClosed, m.managers["a"].State("b"))
}

func TestTimeoutRetriesOnceThenFails(t *testing.T) {
	m := newMesh(t, 30*time.Millisecond, "a")
	require.NoError(t, m.managers["a"].AddPeer("b"))

	select {
	case got := <-m.failed:
		require.Equal(t, "a>b", got)
	case <-time.After(2 * time.Second):
		t.Fatal("negotiation never failed")
	}

	require.Equal(t, 2, m.factories["a"].count("b"), "one fresh attempt after the first timeout")
	require.Empty(t, m.managers["a"].Peers())

	offers := 0
	for _, e := range m.relay.take() {
		if e.sig.Kind == protocol.SignalOffer {
			offers++
		}
	}
	require.Equal(t, 2, offers)
}

func TestRetryAfterTimeoutReachesBothSides(t *testing.T) {
	m := newMesh(t, 200*time.Millisecond, "a", "b")

	// a offers first, so its timer fires first. b answers on its first
	// session but the pair never connects.
	require.NoError(t, m.managers["a"].AddPeer("b"))
	time.Sleep(40 * time.Millisecond)
	require.NoError(t, m.managers["b"].AddPeer("a"))
	require.NoError(t, m.relay.drain(m.deliver))
	require.Equal(t, "answer-b-1", m.factories["a"].last("b").stats().remote)

	require.Eventually(t, func() bool { return m.factories["a"].count("b") == 2 }, 2*time.Second, time.Millisecond)
	require.NoError(t, m.relay.drain(m.deliver))

	require.Eventually(t, func() bool { return m.factories["b"].count("a") == 2 }, 2*time.Second, time.Millisecond)
	require.NoError(t, m.relay.drain(m.deliver))
	require.True(t, m.factories["b"].nth("a", 0).stats().closed, "the first session is dropped")

	retryA, retryB := m.factories["a"].last("b"), m.factories["b"].last("a")
	require.Equal(t, "offer-a-1", retryB.stats().remote)
	require.Equal(t, "answer-b-1", retryA.stats().remote)
	require.Equal(t, StateStable, m.managers["a"].State("b"))
	require.Equal(t, StateStable, m.managers["b"].State("a"))

	retryA.events.ConnectionState(ConnConnected)
	retryB.events.ConnectionState(ConnConnected)
	got := []string{<-m.connected, <-m.connected}
	require.ElementsMatch(t, []string{"a>b", "b>a"}, got)

	time.Sleep(300 * time.Millisecond)
	require.Empty(t, m.failed)
	require.Equal(t, 2, m.factories["a"].count("b"))
	require.Equal(t, 2, m.factories["b"].count("a"))
}

func TestStaleAttemptSignalsAreDropped(t *testing.T) {
	m := newMesh(t, time.Minute, "a", "b")
	require.NoError(t, m.managers["a"].AddPeer("b"))
	require.NoError(t, m.relay.drain(m.deliver))

	fresh := protocol.NewOffer("offer-a-9", false)
	fresh.Attempt = 2
	require.NoError(t, m.deliver(envelope{from: "a", to: "b", sig: fresh}))
	require.Equal(t, 2, m.factories["b"].count("a"))
	require.True(t, m.factories["b"].nth("a", 0).stats().closed)

	old := protocol.NewCandidate(protocol.Candidate{Candidate: "late"})
	old.Attempt = 1
	require.NoError(t, m.deliver(envelope{from: "a", to: "b", sig: old}))
	require.Empty(t, m.factories["b"].last("a").stats().candidates)
}

func TestConnectedPeerDoesNotTimeOut(t *testing.T) {
	m := newMesh(t, 30*time.Millisecond, "a")
	require.NoError(t, m.managers["a"].AddPeer("b"))

	m.factories["a"].last("b").events.ConnectionState(ConnConnected)
	require.Equal(t, "a>b", <-m.connected)

	time.Sleep(100 * time.Millisecond)
	require.Empty(t, m.failed)
	require.Equal(t, []string{"b"}, m.managers["a"].Peers())
}

func TestConnectivityFailureAfterRestartDropsPeer(t *testing.T) {
	m := newMesh(t, time.Minute, "a", "b")
	require.NoError(t, m.managers["a"].AddPeer("b"))
	require.NoError(t, m.relay.drain(m.deliver))

	events := m.factories["a"].last("b").events
	events.ConnectionState(ConnConnected)
	<-m.connected

	events.ConnectionState(ConnFailed)
	require.NoError(t, m.relay.drain(m.deliver))
	require.Equal(t, 1, m.factories["a"].last("b").stats().restarts)

	events.ConnectionState(ConnFailed)
	require.Equal(t, "a>b", <-m.failed)
	require.Empty(t, m.managers["a"].Peers())
	require.Equal(t, []string{"a"}, m.managers["b"].Peers(), "the other side is unaffected")
}

func TestLocalCandidatesAreRelayed(t *testing.T) {
	m := newMesh(t, time.Minute, "a", "b")
	require.NoError(t, m.managers["a"].AddPeer("b"))

	m.factories["a"].last("b").events.LocalCandidate(protocol.Candidate{Candidate: "host-1"})
	require.NoError(t, m.relay.drain(m.deliver))

	require.Equal(t, []string{"host-1"}, m.factories["b"].last("a").stats().candidates)
}
