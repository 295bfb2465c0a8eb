package signaling

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/utkarsh2338/NexMeet/internal/meeting"
	"github.com/utkarsh2338/NexMeet/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024 // 64 KB - enough for SDP with many candidates
)

// Client is a single websocket connection.
type Client struct {
	// ID is the connection id peers use to address this client.
	ID string

	hub   *Hub
	conn  *websocket.Conn
	codec protocol.Codec

	// send is a buffered channel of outbound messages drained by WritePump.
	send      chan *protocol.Message
	done      chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	roomID   string
	waiting  string // room code while parked in a waiting room
	name     string
	userID   string
	joinedAt time.Time
}

func newClient(hub *Hub, conn *websocket.Conn, codec protocol.Codec) *Client {
	if codec == nil {
		codec = protocol.JSON
	}
	return &Client{
		ID:    uuid.NewString(),
		hub:   hub,
		conn:  conn,
		codec: codec,
		send:  make(chan *protocol.Message, hub.cfg.SendBuffer),
		done:  make(chan struct{}),
	}
}

// ReadPump pumps messages from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. Messages from
// one connection are handled in order; different connections are handled
// concurrently.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("read failed", "conn", c.ID, "error", err)
			}
			return
		}

		var msg protocol.Message
		if err := c.codec.Unmarshal(data, &msg); err != nil {
			c.hub.log.Debug("malformed message", "conn", c.ID, "error", err)
			c.Send(protocol.NewError(meeting.CodeBadRequest, "malformed message"))
			continue
		}

		c.hub.handle(c, &msg)
	}
}

// WritePump pumps messages from the hub to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			data, err := c.codec.Marshal(msg)
			if err != nil {
				c.hub.log.Error("encode failed", "conn", c.ID, "type", msg.Type, "error", err)
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(c.codec.FrameType(), data); err != nil {
				c.hub.log.Debug("write failed", "conn", c.ID, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// Send queues msg without blocking. A client whose queue is full is too slow
// to keep up with its room and is disconnected.
func (c *Client) Send(msg *protocol.Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	default:
		c.hub.log.Warn("send queue full, closing connection", "conn", c.ID)
		c.Close()
		return false
	}
}

func (c *Client) sendError(err error) {
	c.Send(protocol.NewError(meeting.Code(err), err.Error()))
}

// Close stops the write pump, which closes the connection.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Room returns the code of the room the client is in, or "".
func (c *Client) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

// Identity is the allow-list and host key for this client.
func (c *Client) Identity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return meeting.Identity(c.userID, c.ID)
}

func (c *Client) profile() (name, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name, c.userID
}

func (c *Client) setRoom(code, name, userID string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID = code
	c.name = name
	c.userID = userID
	c.joinedAt = at
	c.waiting = ""
}

func (c *Client) clearRoom() (name string, joinedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name, joinedAt = c.name, c.joinedAt
	c.roomID = ""
	c.joinedAt = time.Time{}
	return name, joinedAt
}

func (c *Client) setWaiting(code, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waiting = code
	c.userID = userID
}

// clearWaiting resets the waiting marker if it still points at code.
func (c *Client) clearWaiting(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.waiting == code {
		c.waiting = ""
	}
}

func (c *Client) waitingRoom() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waiting
}
