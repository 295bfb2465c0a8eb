package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// SignalKind discriminates the negotiation payloads.
type SignalKind string

const (
	SignalOffer     SignalKind = "offer"
	SignalAnswer    SignalKind = "answer"
	SignalCandidate SignalKind = "candidate"
)

// Candidate is a connectivity candidate in the browser's RTCIceCandidateInit shape.
type Candidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// Signal is a negotiation payload exchanged between two peers. Kind selects
// which of the other fields are meaningful.
type Signal struct {
	Kind      SignalKind `json:"kind"`
	SDP       string     `json:"sdp,omitempty"`
	Candidate *Candidate `json:"candidate,omitempty"`
	// Restart marks an offer that restarts connectivity.
	Restart bool `json:"restart,omitempty"`
	// Attempt numbers the pair's negotiation from 1. Signals from an older
	// attempt are stale; an offer from a newer one replaces the session.
	// Zero is read as the first attempt.
	Attempt int `json:"attempt,omitempty"`
}

var ErrInvalidSignal = errors.New("invalid signal")

func NewOffer(sdp string, restart bool) Signal {
	return Signal{Kind: SignalOffer, SDP: sdp, Restart: restart}
}

func NewAnswer(sdp string) Signal {
	return Signal{Kind: SignalAnswer, SDP: sdp}
}

func NewCandidate(c Candidate) Signal {
	return Signal{Kind: SignalCandidate, Candidate: &c}
}

// Validate checks that the fields required by Kind are present.
func (s Signal) Validate() error {
	switch s.Kind {
	case SignalOffer, SignalAnswer:
		if s.SDP == "" {
			return fmt.Errorf("%w: %s without sdp", ErrInvalidSignal, s.Kind)
		}
	case SignalCandidate:
		if s.Candidate == nil {
			return fmt.Errorf("%w: candidate missing", ErrInvalidSignal)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidSignal, s.Kind)
	}
	return nil
}

// Encode returns the payload bytes for s.
func (s Signal) Encode() (json.RawMessage, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(s)
}

// DecodeSignal parses and validates a signal payload.
func DecodeSignal(payload json.RawMessage) (Signal, error) {
	var s Signal
	if err := json.Unmarshal(payload, &s); err != nil {
		return Signal{}, fmt.Errorf("%w: %v", ErrInvalidSignal, err)
	}
	if err := s.Validate(); err != nil {
		return Signal{}, err
	}
	return s, nil
}
