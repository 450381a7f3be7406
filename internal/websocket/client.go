// internal/websocket/client.go
package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 512                 // Maximum message size allowed from peer.
	sendBuffer     = 256
)

// Inbound is a request from the browser. Type is one of "select_room",
// "toggle_device", "toggle_away", "set_away" or "dismiss".
type Inbound struct {
	Type   string `json:"type"`
	Room   string `json:"room,omitempty"`
	Device string `json:"device,omitempty"`
	Key    string `json:"key,omitempty"`
	Value  *bool  `json:"value,omitempty"`
}

// Client is a middleman between the websocket connection and the hub.
// Send is never closed; the hub closes done to stop the client.
type Client struct {
	Hub  *Hub
	Conn *websocket.Conn
	Send chan []byte // Buffered channel of outbound messages.

	done     chan struct{}
	stopOnce sync.Once

	mu   sync.Mutex
	room string
}

func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return newClient(hub, conn, sendBuffer)
}

func newClient(hub *Hub, conn *websocket.Conn, buffer int) *Client {
	return &Client{Hub: hub, Conn: conn, Send: make(chan []byte, buffer), done: make(chan struct{})}
}

// Done is closed once the hub has dropped the client.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

// Room is the room the browser last selected.
func (c *Client) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *Client) SetRoom(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.room = room
}

// SendMessage queues a message for this client only. It gives up after
// timeout if the client's buffer stays full.
func (c *Client) SendMessage(kind string, payload interface{}, timeout time.Duration) bool {
	messageBytes, err := Encode(kind, payload)
	if err != nil {
		c.Hub.logger.Error("marshalling client message", zap.String("type", kind), zap.Error(err))
		return false
	}
	select {
	case <-c.done:
		return false
	default:
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case c.Send <- messageBytes:
		return true
	case <-c.done:
		return false
	case <-timer.C:
		c.Hub.logger.Warn("timeout sending to websocket client", zap.String("remote", c.remote()))
		return false
	}
}

// ReadPump pumps messages from the websocket connection to handle. It
// unregisters the client when the connection closes.
func (c *Client) ReadPump(handle func(*Client, Inbound)) {
	defer func() {
		c.Hub.unregisterClient(c)
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("websocket read error", zap.Error(err))
			}
			break
		}
		var in Inbound
		if err := json.Unmarshal(message, &in); err != nil || in.Type == "" {
			c.Hub.logger.Debug("ignoring websocket message", zap.String("remote", c.remote()), zap.ByteString("message", message))
			continue
		}
		if handle != nil {
			handle(c, in)
		}
	}
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			// One JSON envelope per frame.
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Hub.logger.Debug("websocket write error", zap.Error(err))
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Hub.logger.Debug("websocket ping error", zap.Error(err))
				return
			}
		}
	}
}

func (c *Client) remote() string {
	if c.Conn == nil {
		return ""
	}
	return c.Conn.RemoteAddr().String()
}
