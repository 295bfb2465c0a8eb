// Package negotiation runs the offer/answer exchange for each peer pair of a
// meeting client, resolving glare, buffering early candidates and restarting
// failed connectivity.
package negotiation

import (
	"log/slog"
	"sync"

	"github.com/utkarsh2338/NexMeet/internal/protocol"
)

// State is a session's negotiation state.
type State int

const (
	StateNew State = iota
	StateHaveLocalOffer
	StateHaveRemoteOffer
	StateStable
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateHaveLocalOffer:
		return "have-local-offer"
	case StateHaveRemoteOffer:
		return "have-remote-offer"
	case StateStable:
		return "stable"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// SendFunc delivers a signal to the remote peer through the relay.
type SendFunc func(sig protocol.Signal) error

// Session negotiates with one remote peer.
//
// Roles are fixed by comparing connection ids: the peer whose id sorts first
// offers and is impolite; the other is polite and yields on glare.
type Session struct {
	localID  string
	remoteID string
	polite   bool

	transport Transport
	send      SendFunc
	log       *slog.Logger

	mu        sync.Mutex
	state     State
	remoteSet bool
	pending   []protocol.Candidate
	failures  int
	err       error

	// onFailed runs once, outside mu, when the session fails.
	onFailed func(err error)
}

// NewSession creates a session in StateNew. It does not offer; call Start.
func NewSession(localID, remoteID string, t Transport, send SendFunc, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		localID:   localID,
		remoteID:  remoteID,
		polite:    localID > remoteID,
		transport: t,
		send:      send,
		log:       logger.With("remote", remoteID),
	}
}

// Initiator reports whether this side makes the first offer.
func (s *Session) Initiator() bool { return !s.polite }

// Polite reports whether this side yields on glare.
func (s *Session) Polite() bool { return s.polite }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the reason the session failed, if it did.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Start sends the initial offer if this side is the initiator.
func (s *Session) Start() error {
	if !s.Initiator() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offerLocked(false)
}

// offerLocked creates and sends an offer. Callers hold mu.
func (s *Session) offerLocked(restart bool) error {
	switch s.state {
	case StateNew, StateStable:
	default:
		return newError("offer", s.remoteID, ErrUnexpectedSignal)
	}

	sdp, err := s.transport.CreateOffer(restart)
	if err != nil {
		return newError("create offer", s.remoteID, err)
	}
	s.state = StateHaveLocalOffer
	s.log.Debug("sending offer", "restart", restart)
	if err := s.send(protocol.NewOffer(sdp, restart)); err != nil {
		return newError("send offer", s.remoteID, err)
	}
	return nil
}

// HandleSignal applies a signal received from the remote peer.
func (s *Session) HandleSignal(sig protocol.Signal) error {
	if err := sig.Validate(); err != nil {
		return newError("handle signal", s.remoteID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed || s.state == StateFailed {
		return nil
	}

	switch sig.Kind {
	case protocol.SignalOffer:
		return s.handleOfferLocked(sig)
	case protocol.SignalAnswer:
		return s.handleAnswerLocked(sig)
	case protocol.SignalCandidate:
		return s.handleCandidateLocked(*sig.Candidate)
	}
	return newError("handle signal", s.remoteID, ErrUnexpectedSignal)
}

func (s *Session) handleOfferLocked(sig protocol.Signal) error {
	if s.state == StateHaveLocalOffer {
		if !s.polite {
			// Our offer wins; the polite peer will answer it.
			s.log.Debug("ignoring colliding offer")
			return nil
		}
		s.log.Debug("offer collision, rolling back local offer")
		if err := s.transport.Rollback(); err != nil {
			return newError("rollback", s.remoteID, err)
		}
		s.state = StateStable
	}

	if err := s.transport.SetRemoteDescription(protocol.SignalOffer, sig.SDP); err != nil {
		return newError("set remote offer", s.remoteID, err)
	}
	s.state = StateHaveRemoteOffer
	s.remoteSet = true
	s.flushLocked()

	sdp, err := s.transport.CreateAnswer()
	if err != nil {
		return newError("create answer", s.remoteID, err)
	}
	s.state = StateStable
	if sig.Restart {
		s.failures++
	}
	if err := s.send(protocol.NewAnswer(sdp)); err != nil {
		return newError("send answer", s.remoteID, err)
	}
	return nil
}

func (s *Session) handleAnswerLocked(sig protocol.Signal) error {
	if s.state != StateHaveLocalOffer {
		s.log.Debug("ignoring unexpected answer", "state", s.state)
		return nil
	}
	if err := s.transport.SetRemoteDescription(protocol.SignalAnswer, sig.SDP); err != nil {
		return newError("set remote answer", s.remoteID, err)
	}
	s.state = StateStable
	s.remoteSet = true
	s.flushLocked()
	return nil
}

func (s *Session) handleCandidateLocked(c protocol.Candidate) error {
	if !s.remoteSet {
		s.pending = append(s.pending, c)
		return nil
	}
	if err := s.transport.AddCandidate(c); err != nil {
		return newError("add candidate", s.remoteID, err)
	}
	return nil
}

// flushLocked applies buffered candidates in arrival order.
func (s *Session) flushLocked() {
	pending := s.pending
	s.pending = nil
	for _, c := range pending {
		if err := s.transport.AddCandidate(c); err != nil {
			s.log.Warn("failed to add buffered candidate", "error", err)
		}
	}
}

// Buffered returns the number of candidates waiting for a remote description.
func (s *Session) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// SendCandidate forwards a locally gathered candidate.
func (s *Session) SendCandidate(c protocol.Candidate) error {
	if st := s.State(); st == StateClosed || st == StateFailed {
		return nil
	}
	return s.send(protocol.NewCandidate(c))
}

// HandleConnectionState reacts to transport connectivity changes. A failure
// triggers one restart, issued by the impolite side only. A failure after a
// restart is terminal.
func (s *Session) HandleConnectionState(cs ConnState) {
	if cs != ConnFailed {
		return
	}

	s.mu.Lock()
	if s.state == StateClosed || s.state == StateFailed {
		s.mu.Unlock()
		return
	}

	if s.failures > 0 {
		err := s.failLocked(newError("connectivity", s.remoteID, ErrNegotiationFailed))
		s.mu.Unlock()
		s.notifyFailed(err)
		return
	}

	if s.polite {
		// The impolite side restarts; wait for its offer.
		s.log.Info("connection failed, waiting for remote restart")
		s.mu.Unlock()
		return
	}

	s.failures++
	s.log.Info("connection failed, restarting")
	if err := s.offerLocked(true); err != nil {
		err = s.failLocked(err)
		s.mu.Unlock()
		s.notifyFailed(err)
		return
	}
	s.mu.Unlock()
}

func (s *Session) failLocked(err error) error {
	s.state = StateFailed
	s.err = err
	s.pending = nil
	s.transport.Close()
	s.log.Warn("negotiation failed", "error", err)
	return err
}

func (s *Session) notifyFailed(err error) {
	if s.onFailed != nil {
		s.onFailed(err)
	}
}

// Close tears the session down and discards buffered state.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.state
	s.state = StateClosed
	s.pending = nil
	if prev == StateClosed || prev == StateFailed {
		// The transport is already closed.
		return nil
	}
	return s.transport.Close()
}
