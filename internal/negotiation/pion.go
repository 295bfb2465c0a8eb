package negotiation

import (
	pion "github.com/pion/webrtc/v4"

	"github.com/utkarsh2338/NexMeet/internal/config"
	"github.com/utkarsh2338/NexMeet/internal/protocol"
)

// PionTransport adapts a pion peer connection to Transport.
type PionTransport struct {
	pc *pion.PeerConnection
}

// PionConfiguration converts ICE servers into a pion configuration.
func PionConfiguration(servers []config.ICEServer) pion.Configuration {
	ice := make([]pion.ICEServer, 0, len(servers))
	for _, s := range servers {
		ice = append(ice, pion.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	return pion.Configuration{ICEServers: ice}
}

// NewPionFactory returns a factory creating pion peer connections that
// receive audio and video. The terminal client has no media of its own.
func NewPionFactory(cfg pion.Configuration) TransportFactory {
	return func(remoteID string, events Events) (Transport, error) {
		pc, err := pion.NewPeerConnection(cfg)
		if err != nil {
			return nil, newError("create peer connection", remoteID, err)
		}

		for _, kind := range []pion.RTPCodecType{pion.RTPCodecTypeAudio, pion.RTPCodecTypeVideo} {
			if _, err := pc.AddTransceiverFromKind(kind, pion.RTPTransceiverInit{
				Direction: pion.RTPTransceiverDirectionRecvonly,
			}); err != nil {
				pc.Close()
				return nil, newError("add transceiver", remoteID, err)
			}
		}

		pc.OnICECandidate(func(c *pion.ICECandidate) {
			if c == nil || events.LocalCandidate == nil {
				return
			}
			init := c.ToJSON()
			events.LocalCandidate(protocol.Candidate{
				Candidate:        init.Candidate,
				SDPMid:           init.SDPMid,
				SDPMLineIndex:    init.SDPMLineIndex,
				UsernameFragment: init.UsernameFragment,
			})
		})

		pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
			if events.ConnectionState != nil {
				events.ConnectionState(connState(state))
			}
		})

		return &PionTransport{pc: pc}, nil
	}
}

func connState(s pion.PeerConnectionState) ConnState {
	switch s {
	case pion.PeerConnectionStateConnecting:
		return ConnConnecting
	case pion.PeerConnectionStateConnected:
		return ConnConnected
	case pion.PeerConnectionStateDisconnected:
		return ConnDisconnected
	case pion.PeerConnectionStateFailed:
		return ConnFailed
	case pion.PeerConnectionStateClosed:
		return ConnClosed
	}
	return ConnNew
}

// CreateOffer creates an offer with trickle ICE (doesn't wait for gathering).
func (t *PionTransport) CreateOffer(restart bool) (string, error) {
	offer, err := t.pc.CreateOffer(&pion.OfferOptions{ICERestart: restart})
	if err != nil {
		return "", err
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return "", err
	}
	return offer.SDP, nil
}

func (t *PionTransport) CreateAnswer() (string, error) {
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return "", err
	}
	return answer.SDP, nil
}

func (t *PionTransport) SetRemoteDescription(kind protocol.SignalKind, sdp string) error {
	var typ pion.SDPType
	switch kind {
	case protocol.SignalOffer:
		typ = pion.SDPTypeOffer
	case protocol.SignalAnswer:
		typ = pion.SDPTypeAnswer
	default:
		return ErrUnexpectedSignal
	}
	return t.pc.SetRemoteDescription(pion.SessionDescription{Type: typ, SDP: sdp})
}

func (t *PionTransport) Rollback() error {
	return t.pc.SetLocalDescription(pion.SessionDescription{Type: pion.SDPTypeRollback})
}

func (t *PionTransport) AddCandidate(c protocol.Candidate) error {
	return t.pc.AddICECandidate(pion.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	})
}

func (t *PionTransport) Close() error {
	return t.pc.Close()
}
