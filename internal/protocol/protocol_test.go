package protocol

import (
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestSignalPayloadSurvivesCodecSwitch(t *testing.T) {
	mid := "0"
	payload, err := NewCandidate(Candidate{Candidate: "candidate:1 1 udp 2122260223 10.0.0.2 54321 typ host", SDPMid: &mid}).Encode()
	require.NoError(t, err)

	// A msgpack sender relayed to a JSON receiver.
	in := &Message{Type: MessageTypeSignal, From: "a", To: "b", Payload: payload}
	bin, err := Msgpack.Marshal(in)
	require.NoError(t, err)

	var relayed Message
	require.NoError(t, Msgpack.Unmarshal(bin, &relayed))
	require.Equal(t, []byte(payload), []byte(relayed.Payload))

	text, err := JSON.Marshal(&relayed)
	require.NoError(t, err)

	var out Message
	require.NoError(t, JSON.Unmarshal(text, &out))
	require.JSONEq(t, string(payload), string(out.Payload))

	sig, err := DecodeSignal(out.Payload)
	require.NoError(t, err)
	require.Equal(t, SignalCandidate, sig.Kind)
	require.Equal(t, "0", *sig.Candidate.SDPMid)
}

func TestCodecFor(t *testing.T) {
	c, err := CodecFor("")
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, c.FrameType())

	c, err = CodecFor("msgpack")
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, c.FrameType())

	_, err = CodecFor("xml")
	require.Error(t, err)
}

func TestDecodeSignalRejectsMalformedPayloads(t *testing.T) {
	for _, raw := range []string{
		`{"kind":"offer"}`,
		`{"kind":"candidate"}`,
		`{"kind":"bye"}`,
		`not json`,
	} {
		_, err := DecodeSignal([]byte(raw))
		require.ErrorIs(t, err, ErrInvalidSignal, raw)
	}

	_, err := Signal{Kind: SignalAnswer}.Encode()
	require.ErrorIs(t, err, ErrInvalidSignal)
}
