// Package config loads server and client configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Server holds the signaling server's configuration.
type Server struct {
	Port     string
	LogLevel string

	Store struct {
		// Kind is "mongo" or "memory".
		Kind          string
		MongoURI      string
		Database      string
		RetryAttempts int
	}

	Meeting struct {
		DefaultCapacity int
		ChatMaxLength   int
		Retention       time.Duration
		SweepInterval   time.Duration
		OrphanTimeout   time.Duration
	}

	// AllowedOrigins restricts websocket upgrades. Empty allows any origin.
	AllowedOrigins []string

	ICE struct {
		STUNServers  []string
		TURNServer   string
		TURNUsername string
		TURNPassword string
	}
}

// LoadServer reads the server configuration from the environment.
// A .env file, if any, must already be loaded.
func LoadServer() (*Server, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 4000)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("store.kind", "mongo")
	v.SetDefault("store.mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("store.database", "nexmeet")
	v.SetDefault("store.retry_attempts", 5)

	v.SetDefault("meeting.default_capacity", 50)
	v.SetDefault("meeting.chat_max_length", 1000)
	v.SetDefault("meeting.retention_days", 30)
	v.SetDefault("meeting.sweep_interval", "1h")
	v.SetDefault("meeting.orphan_timeout", "2h")

	v.SetDefault("ice.stun_servers", "stun:stun.l.google.com:19302,stun:stun1.l.google.com:19302")

	// Map envs
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.log_level", "LOG_LEVEL")
	v.BindEnv("server.allowed_origins", "ALLOWED_ORIGINS")

	v.BindEnv("store.kind", "STORE")
	v.BindEnv("store.mongo_uri", "MONGODB_URI")
	v.BindEnv("store.database", "MONGODB_DATABASE")
	v.BindEnv("store.retry_attempts", "STORE_RETRY_ATTEMPTS")

	v.BindEnv("meeting.default_capacity", "DEFAULT_CAPACITY")
	v.BindEnv("meeting.chat_max_length", "CHAT_MAX_LENGTH")
	v.BindEnv("meeting.retention_days", "RETENTION_DAYS")
	v.BindEnv("meeting.sweep_interval", "SWEEP_INTERVAL")
	v.BindEnv("meeting.orphan_timeout", "ORPHAN_TIMEOUT")

	v.BindEnv("ice.stun_servers", "STUN_SERVERS")
	v.BindEnv("ice.turn_server", "TURN_SERVER")
	v.BindEnv("ice.turn_username", "TURN_USERNAME")
	v.BindEnv("ice.turn_password", "TURN_PASSWORD")

	var c Server
	c.Port = fmt.Sprint(v.Get("server.port"))
	c.LogLevel = v.GetString("server.log_level")
	c.AllowedOrigins = splitList(v.GetString("server.allowed_origins"))

	c.Store.Kind = strings.ToLower(v.GetString("store.kind"))
	c.Store.MongoURI = v.GetString("store.mongo_uri")
	c.Store.Database = v.GetString("store.database")
	c.Store.RetryAttempts = v.GetInt("store.retry_attempts")

	c.Meeting.DefaultCapacity = v.GetInt("meeting.default_capacity")
	c.Meeting.ChatMaxLength = v.GetInt("meeting.chat_max_length")
	c.Meeting.Retention = time.Duration(v.GetInt("meeting.retention_days")) * 24 * time.Hour
	c.Meeting.SweepInterval = v.GetDuration("meeting.sweep_interval")
	c.Meeting.OrphanTimeout = v.GetDuration("meeting.orphan_timeout")

	c.ICE.STUNServers = splitList(v.GetString("ice.stun_servers"))
	c.ICE.TURNServer = v.GetString("ice.turn_server")
	c.ICE.TURNUsername = v.GetString("ice.turn_username")
	c.ICE.TURNPassword = v.GetString("ice.turn_password")

	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Server) validate() error {
	switch c.Store.Kind {
	case "mongo":
		if c.Store.MongoURI == "" {
			return fmt.Errorf("MONGODB_URI is required when STORE=mongo")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown STORE %q (want mongo or memory)", c.Store.Kind)
	}
	if c.Meeting.DefaultCapacity <= 0 {
		return fmt.Errorf("DEFAULT_CAPACITY must be positive, got %d", c.Meeting.DefaultCapacity)
	}
	if c.Meeting.ChatMaxLength <= 0 {
		return fmt.Errorf("CHAT_MAX_LENGTH must be positive, got %d", c.Meeting.ChatMaxLength)
	}
	if c.Meeting.Retention <= 0 {
		return fmt.Errorf("RETENTION_DAYS must be positive")
	}
	if c.Meeting.SweepInterval <= 0 || c.Meeting.OrphanTimeout <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL and ORPHAN_TIMEOUT must be positive durations")
	}
	return nil
}

// Addr returns the listen address.
func (c *Server) Addr() string {
	return ":" + c.Port
}

// OriginAllowed reports whether a websocket upgrade from origin is accepted.
func (c *Server) OriginAllowed(origin string) bool {
	if len(c.AllowedOrigins) == 0 {
		return true
	}
	origin = strings.TrimSuffix(origin, "/")
	for _, o := range c.AllowedOrigins {
		if o == "*" || strings.EqualFold(strings.TrimSuffix(o, "/"), origin) {
			return true
		}
	}
	return false
}

// ICEServer is one entry of the list handed to browsers and CLI peers.
type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// ICEServers returns the STUN servers followed by the TURN server, if set.
func (c *Server) ICEServers() []ICEServer {
	var out []ICEServer
	if len(c.ICE.STUNServers) > 0 {
		out = append(out, ICEServer{URLs: c.ICE.STUNServers})
	}
	if turn := turnURLs(c.ICE.TURNServer); turn != nil {
		out = append(out, ICEServer{
			URLs:       turn,
			Username:   c.ICE.TURNUsername,
			Credential: c.ICE.TURNPassword,
		})
	}
	return out
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// turnURLs expands a TURN host into the udp, tcp and tls variants.
// A value that already names a port or transport is used as is.
func turnURLs(server string) []string {
	if server == "" {
		return nil
	}
	if strings.Contains(server, "?") || strings.Count(server, ":") > 1 {
		return []string{server}
	}
	host := strings.TrimPrefix(server, "turn:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}
