package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadServerDefaults(t *testing.T) {
	t.Setenv("STORE", "memory")

	c, err := LoadServer()
	require.NoError(t, err)
	require.Equal(t, "4000", c.Port)
	require.Equal(t, ":4000", c.Addr())
	require.Equal(t, "memory", c.Store.Kind)
	require.Equal(t, 50, c.Meeting.DefaultCapacity)
	require.Equal(t, 1000, c.Meeting.ChatMaxLength)
	require.Equal(t, 30*24*time.Hour, c.Meeting.Retention)
	require.Equal(t, time.Hour, c.Meeting.SweepInterval)
	require.Len(t, c.ICE.STUNServers, 2)
	require.True(t, c.OriginAllowed("https://anything.example"))
}

func TestLoadServerFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("STORE", "mongo")
	t.Setenv("MONGODB_URI", "mongodb://db:27017")
	t.Setenv("DEFAULT_CAPACITY", "8")
	t.Setenv("ORPHAN_TIMEOUT", "15m")
	t.Setenv("ALLOWED_ORIGINS", "https://meet.example.com/, http://localhost:5173")
	t.Setenv("TURN_SERVER", "turn.example.com")
	t.Setenv("TURN_USERNAME", "user")
	t.Setenv("TURN_PASSWORD", "secret")

	c, err := LoadServer()
	require.NoError(t, err)
	require.Equal(t, "9000", c.Port)
	require.Equal(t, "mongodb://db:27017", c.Store.MongoURI)
	require.Equal(t, 8, c.Meeting.DefaultCapacity)
	require.Equal(t, 15*time.Minute, c.Meeting.OrphanTimeout)

	require.True(t, c.OriginAllowed("https://meet.example.com"))
	require.True(t, c.OriginAllowed("http://localhost:5173"))
	require.False(t, c.OriginAllowed("https://evil.example"))

	servers := c.ICEServers()
	require.Len(t, servers, 2)
	require.Equal(t, "user", servers[1].Username)
	require.Equal(t, "turn:turn.example.com:3478?transport=udp", servers[1].URLs[0])
}

func TestLoadServerRejectsUnknownStore(t *testing.T) {
	t.Setenv("STORE", "postgres")
	_, err := LoadServer()
	require.Error(t, err)
}

func TestLoadClientPriority(t *testing.T) {
	t.Setenv("NEXMEET_SERVER", "meet.example.com")
	t.Setenv("STUN_SERVER", "stun:env.example.com:3478")

	c, err := LoadClient(ClientOptions{})
	require.NoError(t, err)
	require.Equal(t, "wss://meet.example.com/ws", c.WebSocketURL)
	require.Equal(t, "https://meet.example.com", c.BaseURL)
	require.Equal(t, "stun:env.example.com:3478", c.STUNServer)
	require.Len(t, c.ICEServers(), 1)
	require.Equal(t, "https://meet.example.com/meet/swift-otter-sails", c.MeetingLink("swift-otter-sails"))

	c, err = LoadClient(ClientOptions{Server: "localhost:4000", TURNServer: "turn:relay.example.com:3478"})
	require.NoError(t, err)
	require.Equal(t, "ws://localhost:4000/ws", c.WebSocketURL)
	require.Equal(t, []string{"turn:relay.example.com:3478"}, c.ICEServers()[1].URLs)
}

func TestLoadClientRejectsBadScheme(t *testing.T) {
	_, err := LoadClient(ClientOptions{Server: "ftp://example.com"})
	require.Error(t, err)
}
