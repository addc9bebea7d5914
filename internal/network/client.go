package network

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MRamiBalles/PandemicSim/internal/platform/config"
	"github.com/MRamiBalles/PandemicSim/internal/platform/metrics"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 1024
	// Minimum spacing between two control commands of one viewer.
	commandInterval = 250 * time.Millisecond
)

// ErrRateLimited is returned to a viewer sending commands too fast.
var ErrRateLimited = errors.New("too many commands")

// ControlCommand is an incoming command from a viewer.
type ControlCommand struct {
	Type    string        `json:"type"` // "PAUSE", "RESUME", "STEP", "RESET"
	Payload *ResetRequest `json:"payload,omitempty"`
}

// Client is a connected viewer.
type Client struct {
	hub             *Hub
	conn            *websocket.Conn
	send            chan []byte
	lastCommandTime time.Time
}

// NewClient creates a new WebSocket client and returns it.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, hub.sendBuffer),
	}
}

// Register adds the client to the hub.
func (c *Client) Register() {
	select {
	case c.hub.register <- c:
	case <-c.hub.done:
		close(c.send)
	}
}

// ReadPump pumps commands from the websocket connection to the controller.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				metrics.Get().RecordWSError()
				c.hub.logger.Warn("WebSocket read error: " + err.Error())
			}
			break
		}
		metrics.Get().RecordWSMessage(true)

		var cmd ControlCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.hub.logger.Error("Failed to parse ControlCommand from WebSocket. err: " + err.Error())
			c.reply(MsgTypeError, errorPayload(err))
			continue
		}

		c.handleCommand(cmd)
	}
}

func (c *Client) handleCommand(cmd ControlCommand) {
	if time.Since(c.lastCommandTime) < commandInterval {
		c.hub.logger.Warn("Rate limit exceeded for viewer command " + cmd.Type)
		c.reply(MsgTypeError, errorPayload(ErrRateLimited))
		return
	}
	c.lastCommandTime = time.Now()

	if c.hub.controller == nil {
		c.reply(MsgTypeError, errorPayload(ErrUnknownAction))
		return
	}

	result, err := c.hub.controller.Apply(cmd.Type, cmd.Payload)
	if err != nil {
		c.hub.logger.Warn("Viewer command " + cmd.Type + " rejected: " + err.Error())
		c.reply(MsgTypeError, errorPayload(err))
		return
	}
	c.reply(MsgTypeAck, result)
}

func (c *Client) reply(t MessageType, payload interface{}) {
	c.hub.sendTo(c, Message{Type: t, Payload: payload})
}

// errorPayload describes err to a viewer, listing invalid fields of a
// rejected configuration.
func errorPayload(err error) map[string]interface{} {
	out := map[string]interface{}{"error": err.Error()}
	var verr *config.ValidationError
	if errors.As(err, &verr) {
		out["fields"] = verr.Fields
	}
	return out
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One frame per message; viewers decode each frame as JSON.
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				metrics.Get().RecordWSError()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
