package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Identity is the verified user attached to a connection. A user may hold
// several live connections (tabs, devices); each gets its own Conn.
type Identity struct {
	UserID      string
	Email       string
	DisplayName string
	AvatarSeed  string
}

// Conn wraps one WebSocket with a buffered outbound queue and the standard
// read/write pump pair. Inbound frames and the close are delivered to the
// owning actor through the callbacks passed to run.
type Conn struct {
	id        string
	identity  Identity
	spectator bool

	ws     *websocket.Conn
	send   chan []byte
	done   chan struct{}
	logger *slog.Logger

	closeOnce sync.Once
	openedAt  time.Time
}

func newConn(wsc *websocket.Conn, identity Identity, logger *slog.Logger) *Conn {
	id := uuid.NewString()
	return &Conn{
		id:       id,
		identity: identity,
		ws:       wsc,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
		logger:   logger.With("conn_id", id, "user_id", identity.UserID),
		openedAt: time.Now(),
	}
}

// ID returns the unique connection id.
func (c *Conn) ID() string { return c.id }

// Identity returns the verified identity behind the connection.
func (c *Conn) Identity() Identity { return c.identity }

// Send marshals and queues an event. A full queue drops the connection: a
// client that cannot keep up resynchronizes on reconnect.
func (c *Conn) Send(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		c.logger.Error("marshal event", "type", ev.Type, "error", err)
		return
	}
	c.SendRaw(data)
}

// SendRaw queues a pre-encoded frame.
func (c *Conn) SendRaw(data []byte) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("send buffer full, dropping connection")
		c.Close()
	}
}

// SendError queues an error frame of the given event type.
func (c *Conn) SendError(evtType, code, message string) {
	c.Send(NewEvent(evtType, ErrorData{Code: code, Message: message}))
}

// Close shuts the connection down once; the read pump notices and fires the
// actor's close callback.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.ws != nil {
			c.ws.Close()
		}
	})
}

// run starts both pumps. onFrame is invoked for every inbound text frame and
// onClose exactly once when the connection dies, both from the read pump's
// goroutine.
func (c *Conn) run(onFrame func(*Conn, []byte), onClose func(*Conn)) {
	go c.writePump()
	go c.readPump(onFrame, onClose)
}

func (c *Conn) readPump(onFrame func(*Conn, []byte), onClose func(*Conn)) {
	defer func() {
		c.Close()
		onClose(c)
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("read error", "error", err)
			}
			return
		}
		onFrame(c, data)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case data := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
