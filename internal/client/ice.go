package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/utkarsh2338/NexMeet/internal/config"
)

// FetchICEServers asks the server for its STUN and TURN list.
func FetchICEServers(ctx context.Context, baseURL string) ([]config.ICEServer, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/ice-servers", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch ice servers: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch ice servers: unexpected status %s", resp.Status)
	}

	var body struct {
		ICEServers []config.ICEServer `json:"iceServers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode ice servers: %w", err)
	}
	return body.ICEServers, nil
}

// ICEServers prefers the server's list and falls back to the local one.
func ICEServers(ctx context.Context, cfg *config.Client) []config.ICEServer {
	servers, err := FetchICEServers(ctx, cfg.BaseURL)
	if err != nil || len(servers) == 0 {
		return cfg.ICEServers()
	}
	return servers
}
