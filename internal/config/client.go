package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Default client configuration values.
const (
	DefaultServer = "localhost:4000"
	DefaultSTUN   = "stun:stun.l.google.com:19302"
)

// Client holds the nexmeet CLI configuration.
type Client struct {
	// Server is the signaling server host, optionally with a scheme.
	Server string

	// WebSocketURL is constructed from Server.
	WebSocketURL string
	// BaseURL is the HTTP root of the server API.
	BaseURL string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
}

// ClientOptions carries CLI flag overrides.
type ClientOptions struct {
	Server     string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
}

// LoadClient reads configuration with the following priority:
// 1. CLI flags (passed via ClientOptions) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func LoadClient(opts ClientOptions) (*Client, error) {
	server := firstSet(opts.Server, os.Getenv("NEXMEET_SERVER"), DefaultServer)

	wsURL, baseURL, err := serverURLs(server)
	if err != nil {
		return nil, err
	}

	return &Client{
		Server:       server,
		WebSocketURL: wsURL,
		BaseURL:      baseURL,
		STUNServer:   firstSet(opts.STUNServer, os.Getenv("STUN_SERVER"), DefaultSTUN),
		TURNServer:   firstSet(opts.TURNServer, os.Getenv("TURN_SERVER")),
		TURNUser:     firstSet(opts.TURNUser, os.Getenv("TURN_USERNAME")),
		TURNPass:     firstSet(opts.TURNPass, os.Getenv("TURN_PASSWORD")),
	}, nil
}

// ICEServers returns the locally configured ICE servers.
func (c *Client) ICEServers() []ICEServer {
	out := []ICEServer{{URLs: []string{c.STUNServer}}}
	if turn := turnURLs(c.TURNServer); turn != nil {
		out = append(out, ICEServer{URLs: turn, Username: c.TURNUser, Credential: c.TURNPass})
	}
	return out
}

// MeetingLink returns the link others use to join code.
func (c *Client) MeetingLink(code string) string {
	return fmt.Sprintf("%s/meet/%s", c.BaseURL, url.PathEscape(code))
}

func firstSet(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// serverURLs derives the websocket and HTTP URLs from a host or URL. A bare
// host uses TLS unless it is local.
func serverURLs(server string) (ws, base string, err error) {
	if !strings.Contains(server, "://") {
		scheme := "https"
		if isLocal(server) {
			scheme = "http"
		}
		server = scheme + "://" + server
	}

	u, err := url.Parse(server)
	if err != nil || u.Host == "" {
		return "", "", fmt.Errorf("invalid server %q", server)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "http"
	case "https", "wss":
		u.Scheme = "https"
	default:
		return "", "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	base = u.String()

	wsu := *u
	wsu.Scheme = "ws"
	if u.Scheme == "https" {
		wsu.Scheme = "wss"
	}
	wsu.Path += "/ws"
	return wsu.String(), base, nil
}

func isLocal(host string) bool {
	h := host
	if i := strings.LastIndex(h, ":"); i >= 0 {
		h = h[:i]
	}
	return h == "localhost" || h == "127.0.0.1" || h == "[::1]"
}
