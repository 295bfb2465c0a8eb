package cmd

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/utkarsh2338/NexMeet/internal/config"
	"github.com/utkarsh2338/NexMeet/internal/meeting"
	"github.com/utkarsh2338/NexMeet/internal/server"
	"github.com/utkarsh2338/NexMeet/internal/signaling"
)

func TestFetchMeetingNotFound(t *testing.T) {
	store := meeting.NewMemoryStore()
	hub := signaling.NewHub(signaling.Config{}, meeting.NewManager(store, meeting.Options{}, nil), nil)
	srv := httptest.NewServer(server.Routes(hub, &config.Server{}, store, nil))
	defer srv.Close()

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())

	_, err := fetchMeeting(cmd, srv.URL, "abc-defg-hij")
	require.ErrorContains(t, err, "no live meeting")
}

func TestDisplayNamePrefersFlag(t *testing.T) {
	flagName = "Sam"
	t.Cleanup(func() { flagName = "" })
	require.Equal(t, "Sam", displayName())

	flagName = ""
	require.NotEmpty(t, displayName())
}
