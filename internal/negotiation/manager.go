package negotiation

import (
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/utkarsh2338/NexMeet/internal/protocol"
)

const DefaultTimeout = 30 * time.Second

// Config configures a Manager.
type Config struct {
	// LocalID is this client's connection id.
	LocalID      string
	NewTransport TransportFactory
	// Send relays a signal to the remote connection to.
	Send func(to string, sig protocol.Signal) error
	// Timeout bounds how long a pair may take to connect.
	Timeout time.Duration

	OnConnected func(remoteID string)
	OnFailed    func(remoteID string, err error)

	Logger *slog.Logger
}

type peer struct {
	session   *Session
	timer     *time.Timer
	attempt   int
	connected bool
}

// Manager owns one Session per remote member of the room.
type Manager struct {
	cfg Config
	log *slog.Logger

	mu     sync.Mutex
	peers  map[string]*peer
	closed bool
}

// NewManager creates a manager for the local connection cfg.LocalID.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.LocalID == "" {
		return nil, errors.New("negotiation: local id is required")
	}
	if cfg.NewTransport == nil || cfg.Send == nil {
		return nil, errors.New("negotiation: transport factory and send are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		cfg:   cfg,
		log:   cfg.Logger.With("component", "negotiation", "local", cfg.LocalID),
		peers: make(map[string]*peer),
	}, nil
}

// Join creates sessions for the members already in the room.
func (m *Manager) Join(memberIDs []string) error {
	var errs []error
	for _, id := range memberIDs {
		if id == m.cfg.LocalID {
			continue
		}
		if err := m.AddPeer(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AddPeer creates a session for remoteID and offers if this side is the
// initiator. Adding a known peer does nothing.
func (m *Manager) AddPeer(remoteID string) error {
	_, err := m.start(remoteID, 1, true)
	return err
}

// start creates the session for remoteID. With offer set, the initiator
// sends its offer once the session is registered.
func (m *Manager) start(remoteID string, attempt int, offer bool) (*peer, error) {
	if remoteID == m.cfg.LocalID {
		return nil, nil
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, newError("add peer", remoteID, ErrSessionClosed)
	}
	if p, ok := m.peers[remoteID]; ok {
		m.mu.Unlock()
		return p, nil
	}

	p := &peer{attempt: attempt}
	events := Events{
		LocalCandidate: func(c protocol.Candidate) {
			if err := p.session.SendCandidate(c); err != nil {
				m.log.Debug("failed to send candidate", "remote", remoteID, "error", err)
			}
		},
		ConnectionState: func(cs ConnState) {
			m.connectionState(remoteID, p, cs)
		},
	}
	t, err := m.cfg.NewTransport(remoteID, events)
	if err != nil {
		m.mu.Unlock()
		return nil, newError("create transport", remoteID, err)
	}

	send := func(sig protocol.Signal) error {
		sig.Attempt = attempt
		return m.cfg.Send(remoteID, sig)
	}
	p.session = NewSession(m.cfg.LocalID, remoteID, t, send, m.cfg.Logger)
	p.session.onFailed = func(err error) { m.fail(remoteID, p, err) }
	p.timer = time.AfterFunc(m.cfg.Timeout, func() { m.expire(remoteID, p) })
	m.peers[remoteID] = p
	m.mu.Unlock()

	m.log.Debug("peer added", "remote", remoteID, "attempt", attempt, "initiator", p.session.Initiator())
	if offer {
		if err := p.session.Start(); err != nil {
			m.fail(remoteID, p, err)
			return nil, err
		}
	}
	return p, nil
}

// RemovePeer tears down the session for remoteID.
func (m *Manager) RemovePeer(remoteID string) {
	m.mu.Lock()
	p, ok := m.peers[remoteID]
	delete(m.peers, remoteID)
	m.mu.Unlock()

	if ok {
		p.timer.Stop()
		p.session.Close()
		m.log.Debug("peer removed", "remote", remoteID)
	}
}

// HandleSignal routes a relayed payload to the session for from. An offer
// from an unknown peer creates its session, and an offer from a newer
// attempt replaces the current one.
func (m *Manager) HandleSignal(from string, payload json.RawMessage) error {
	sig, err := protocol.DecodeSignal(payload)
	if err != nil {
		return newError("decode signal", from, err)
	}
	attempt := max(sig.Attempt, 1)

	m.mu.Lock()
	p := m.peers[from]
	var stale *peer
	switch {
	case p == nil:
	case attempt < p.attempt, attempt > p.attempt && sig.Kind != protocol.SignalOffer:
		m.mu.Unlock()
		m.log.Debug("stale signal dropped", "remote", from, "kind", sig.Kind, "attempt", attempt, "current", p.attempt)
		return nil
	case attempt > p.attempt:
		delete(m.peers, from)
		stale, p = p, nil
	}
	m.mu.Unlock()

	if stale != nil {
		stale.timer.Stop()
		stale.session.Close()
		m.log.Info("remote started a fresh attempt", "remote", from, "attempt", attempt)
	}

	if p == nil {
		if sig.Kind != protocol.SignalOffer {
			m.log.Debug("signal for unknown peer dropped", "remote", from, "kind", sig.Kind)
			return nil
		}
		if p, err = m.start(from, attempt, false); err != nil || p == nil {
			return err
		}
	}
	return p.session.HandleSignal(sig)
}

func (m *Manager) connectionState(remoteID string, p *peer, cs ConnState) {
	p.session.HandleConnectionState(cs)
	if cs != ConnConnected {
		return
	}

	m.mu.Lock()
	current := m.peers[remoteID] == p
	if current {
		p.connected = true
		p.timer.Stop()
	}
	m.mu.Unlock()

	if current {
		m.log.Info("peer connected", "remote", remoteID)
		if m.cfg.OnConnected != nil {
			m.cfg.OnConnected(remoteID)
		}
	}
}

// expire tears down a pair that did not connect in time and starts one
// fresh attempt while the remote is still known. The initiator offers again;
// the polite side opens a session that waits for that offer, so both ends
// move to the same attempt whichever timer fires first.
func (m *Manager) expire(remoteID string, p *peer) {
	m.mu.Lock()
	if m.peers[remoteID] != p || p.connected {
		m.mu.Unlock()
		return
	}
	delete(m.peers, remoteID)
	m.mu.Unlock()

	p.session.Close()

	if p.attempt < 2 {
		m.log.Info("negotiation timed out, retrying", "remote", remoteID, "initiator", p.session.Initiator())
		if _, err := m.start(remoteID, p.attempt+1, p.session.Initiator()); err == nil {
			return
		}
	}
	m.report(remoteID, newError("negotiate", remoteID, ErrTimeout))
}

func (m *Manager) fail(remoteID string, p *peer, err error) {
	m.mu.Lock()
	if m.peers[remoteID] == p {
		delete(m.peers, remoteID)
	}
	m.mu.Unlock()

	p.timer.Stop()
	p.session.Close()
	m.report(remoteID, err)
}

func (m *Manager) report(remoteID string, err error) {
	m.log.Warn("peer negotiation failed", "remote", remoteID, "error", err)
	if m.cfg.OnFailed != nil {
		m.cfg.OnFailed(remoteID, err)
	}
}

// State returns the negotiation state for remoteID, or StateClosed when the
// peer is unknown.
func (m *Manager) State(remoteID string) State {
	m.mu.Lock()
	p := m.peers[remoteID]
	m.mu.Unlock()
	if p == nil {
		return StateClosed
	}
	return p.session.State()
}

// Peers returns the remote ids with a live session, sorted.
func (m *Manager) Peers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.peers))
	for id := range m.peers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Close tears down every session. The manager cannot be reused.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	peers := m.peers
	m.peers = make(map[string]*peer)
	m.mu.Unlock()

	for _, p := range peers {
		p.timer.Stop()
		p.session.Close()
	}
}
