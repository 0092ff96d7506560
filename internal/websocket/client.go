package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Clients only send small commands.
	maxMessageSize = 64 * 1024
)

// Client commands
const (
	CommandPing     = "PING"
	CommandSyncNow  = "SYNC_NOW"
	CommandIdentify = "IDENTIFY"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// collaborators run on the same device under arbitrary origins
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan []byte

	ID   string
	Name string
}

type reply struct {
	Type   string `json:"type"`
	MsgID  string `json:"msgId,omitempty"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// readPump reads commands from the websocket connection.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Printf("WS error: %v", err)
			}
			break
		}

		var cmd Command
		if err := json.Unmarshal(message, &cmd); err != nil || cmd.Type == "" {
			c.SendJSON(reply{Type: "ERROR", Error: "invalid command"})
			continue
		}
		cmd.ClientID = c.ID

		switch cmd.Type {
		case CommandPing:
			c.SendJSON(reply{Type: "PONG", MsgID: cmd.MsgID})
		case CommandIdentify:
			var who struct {
				Name string `json:"name"`
			}
			_ = json.Unmarshal(cmd.Data, &who)
			c.Name = who.Name
			c.SendJSON(reply{Type: "ACK", MsgID: cmd.MsgID, Status: "connected"})
		default:
			// clients resend commands after a reconnect
			if c.hub.dedup.IsDuplicate(cmd.MsgID) {
				c.SendJSON(reply{Type: "ACK", MsgID: cmd.MsgID, Status: "duplicate"})
				continue
			}
			if err := c.hub.handleCommand(cmd); err != nil {
				c.SendJSON(reply{Type: "ERROR", MsgID: cmd.MsgID, Error: err.Error()})
				continue
			}
			c.SendJSON(reply{Type: "ACK", MsgID: cmd.MsgID, Status: "accepted"})
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
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

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
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

// SendJSON queues a JSON message for the client. It never blocks; a full
// buffer or a client the hub already dropped loses the message.
func (c *Client) SendJSON(v interface{}) error {
	msg, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.hub.deliver(c, msg)
	return nil
}

// ServeWs upgrades the request and registers the client with the hub.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Println(err)
		return
	}
	client := &Client{hub: hub, conn: conn, send: make(chan []byte, 256), ID: "ws_" + uuid.New().String()}
	select {
	case client.hub.register <- client:
	case <-hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
