package dns

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLookupReturnsIPLiterals(t *testing.T) {
	ip, err := Lookup(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", ip)

	ip, err = Lookup(context.Background(), "::1")
	require.NoError(t, err)
	require.Equal(t, "::1", ip)
}

func TestLookupLocalhost(t *testing.T) {
	ip, err := Lookup(context.Background(), "localhost")
	require.NoError(t, err)
	require.True(t, net.ParseIP(ip).IsLoopback())
}

func TestRaceWithoutResolvers(t *testing.T) {
	_, err := raceResolvers(context.Background(), "example.invalid", nil)
	require.Error(t, err)
}

func TestDialContextRejectsBadAddress(t *testing.T) {
	_, err := DialContext(context.Background(), "tcp", "no-port")
	require.Error(t, err)
}

func TestTrimBrackets(t *testing.T) {
	require.Equal(t, "2620:fe::fe", trimBrackets("[2620:fe::fe]"))
	require.Equal(t, "9.9.9.9", trimBrackets("9.9.9.9"))
}
