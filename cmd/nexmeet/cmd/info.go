package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/utkarsh2338/NexMeet/internal/protocol"
	"github.com/utkarsh2338/NexMeet/internal/ui"
)

var infoCmd = &cobra.Command{
	Use:   "info <code>",
	Short: "Show whether a meeting is live and how it is set up",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		info, err := fetchMeeting(cmd, cfg.BaseURL, args[0])
		if err != nil {
			return err
		}

		fmt.Println(ui.MeetingBox(info, cfg.MeetingLink(info.Code), false))
		ui.PrintInfof("%d of %d participants", info.Participants, info.Capacity)
		if info.PasswordProtected {
			ui.PrintWarning("A password is required to join (--password)")
		}
		if info.WaitingRoom {
			ui.PrintInfo("The host admits joiners from a waiting room")
		}
		return nil
	},
}

func fetchMeeting(cmd *cobra.Command, baseURL, code string) (*protocol.MeetingInfo, error) {
	sp := ui.NewConnectionSpinner("Looking up " + code + "...")
	sp.Start()
	defer sp.Stop()

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, baseURL+"/api/meetings/"+url.PathEscape(code), nil)
	if err != nil {
		return nil, err
	}
	httpClient := &http.Client{Timeout: 10 * time.Second}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("meeting lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.New("no live meeting with code " + code)
	}

	if resp.StatusCode != http.StatusOK {
		var e protocol.ErrorPayload
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Message != "" {
			return nil, fmt.Errorf("meeting lookup: %s", e.Message)
		}
		return nil, fmt.Errorf("meeting lookup: unexpected status %s", resp.Status)
	}

	var info protocol.MeetingInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("meeting lookup: %w", err)
	}
	return &info, nil
}
