package negotiation

import "github.com/utkarsh2338/NexMeet/internal/protocol"

// ConnState is the connectivity state reported by a transport.
type ConnState int

const (
	ConnNew ConnState = iota
	ConnConnecting
	ConnConnected
	ConnDisconnected
	ConnFailed
	ConnClosed
)

func (s ConnState) String() string {
	switch s {
	case ConnNew:
		return "new"
	case ConnConnecting:
		return "connecting"
	case ConnConnected:
		return "connected"
	case ConnDisconnected:
		return "disconnected"
	case ConnFailed:
		return "failed"
	case ConnClosed:
		return "closed"
	}
	return "unknown"
}

// Transport is the peer connection a Session drives. Descriptions are
// applied locally by CreateOffer and CreateAnswer.
type Transport interface {
	// CreateOffer creates an offer, sets it as the local description and
	// returns its SDP. restart requests fresh connectivity credentials.
	CreateOffer(restart bool) (string, error)
	// CreateAnswer answers the applied remote offer and sets it locally.
	CreateAnswer() (string, error)
	SetRemoteDescription(kind protocol.SignalKind, sdp string) error
	// Rollback discards a pending local offer.
	Rollback() error
	AddCandidate(c protocol.Candidate) error
	Close() error
}

// Events are raised by a transport. Either callback may be invoked from any
// goroutine, but never while a Transport method is running on the caller's
// goroutine.
type Events struct {
	LocalCandidate  func(c protocol.Candidate)
	ConnectionState func(s ConnState)
}

// TransportFactory creates the transport for the pair with remoteID.
type TransportFactory func(remoteID string, events Events) (Transport, error)
