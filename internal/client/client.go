// Package client connects a meeting participant to the signaling server.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/utkarsh2338/NexMeet/internal/dns"
	"github.com/utkarsh2338/NexMeet/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	queueSize      = 64
)

var (
	ErrClosed        = errors.New("connection closed")
	ErrNoWelcome     = errors.New("server did not send a welcome")
	ErrQueueFull     = errors.New("outgoing queue full")
	ErrServerRefused = errors.New("server refused the request")
)

// Client manages the WebSocket connection to the signaling server.
type Client struct {
	id    string
	conn  *websocket.Conn
	codec protocol.Codec
	log   *slog.Logger

	incoming chan *protocol.Message
	outgoing chan *protocol.Message
	done     chan struct{}
	closed   chan struct{}
	once     sync.Once
}

// Dial connects to serverURL and waits for the server's welcome, which
// carries this connection's id.
func Dial(ctx context.Context, serverURL string, codec protocol.Codec, logger *slog.Logger) (*Client, error) {
	if codec == nil {
		codec = protocol.JSON
	}
	if logger == nil {
		logger = slog.Default()
	}

	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	q := u.Query()
	q.Set("codec", codec.Name())
	u.RawQuery = q.Encode()

	// Resolve through the fallback DNS lookup.
	dialer := *websocket.DefaultDialer
	dialer.NetDialContext = dns.DialContext

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)

	c := &Client{
		conn:     conn,
		codec:    codec,
		log:      logger.With("component", "client"),
		incoming: make(chan *protocol.Message, queueSize),
		outgoing: make(chan *protocol.Message, queueSize),
		done:     make(chan struct{}),
		closed:   make(chan struct{}),
	}

	if err := c.awaitWelcome(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	go c.readPump()
	go c.writePump()
	return c, nil
}

func (c *Client) awaitWelcome(ctx context.Context) error {
	deadline := time.Now().Add(pongWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetReadDeadline(deadline)

	msg, err := c.read()
	if err != nil {
		return fmt.Errorf("read welcome: %w", err)
	}
	if msg.Type != protocol.MessageTypeWelcome || msg.From == "" {
		return fmt.Errorf("%w: got %q", ErrNoWelcome, msg.Type)
	}
	c.id = msg.From
	return nil
}

func (c *Client) read() (*protocol.Message, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var msg protocol.Message
	if err := c.codec.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ID returns the connection id assigned by the server.
func (c *Client) ID() string { return c.id }

// readPump reads messages from the WebSocket connection.
func (c *Client) readPump() {
	defer func() {
		c.Close()
		close(c.incoming)
		close(c.closed)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	for {
		msg, err := c.read()
		if err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				c.log.Debug("read failed", "error", err)
			}
			return
		}

		select {
		case c.incoming <- msg:
		case <-c.done:
			return
		}
	}
}

// writePump writes messages to the WebSocket connection and sends periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.outgoing:
			data, err := c.codec.Marshal(msg)
			if err != nil {
				c.log.Error("encode failed", "type", msg.Type, "error", err)
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(c.codec.FrameType(), data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send queues msg for the server.
func (c *Client) Send(msg *protocol.Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.outgoing <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrQueueFull
	}
}

// SendSignal relays sig to the connection to.
func (c *Client) SendSignal(to string, sig protocol.Signal) error {
	payload, err := sig.Encode()
	if err != nil {
		return err
	}
	return c.Send(&protocol.Message{Type: protocol.MessageTypeSignal, To: to, Payload: payload})
}

// Incoming returns the channel for receiving messages. It is closed when
// the connection ends.
func (c *Client) Incoming() <-chan *protocol.Message {
	return c.incoming
}

// Done is closed once the connection has ended.
func (c *Client) Done() <-chan struct{} {
	return c.closed
}

// Close closes the WebSocket connection and cleans up resources.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}
