package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

// Keepalive timing. Subscribers only ever answer pings, so the read limit
// is small.
const (
	writeTimeout = 10 * time.Second
	idleTimeout  = 60 * time.Second
	pingEvery    = idleTimeout * 9 / 10
	readLimit    = 4 << 10
	sendQueue    = 64
)

// Conn is the subset of *websocket.Conn a subscriber needs.
type Conn interface {
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one dashboard subscriber.
type Client struct {
	hub  *Hub
	conn Conn
	send chan frame
	done chan struct{} // closed when forward returns
}

// NewClient registers conn with h. It reports false once h has stopped.
func NewClient(h *Hub, conn Conn) (*Client, bool) {
	c := &Client{hub: h, conn: conn, send: make(chan frame, sendQueue), done: make(chan struct{})}
	select {
	case h.register <- c:
		return c, true
	case <-h.done:
		return nil, false
	}
}

// Run serves the connection until it drops and returns only after both
// the reader and the writer have stopped. The fiber handler recycles the
// connection once it returns.
func (c *Client) Run() {
	go c.forward()
	c.watch()
	<-c.done
}

func (c *Client) extend(string) error {
	return c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
}

// watch reads until the peer goes away, then unregisters.
func (c *Client) watch() {
	defer c.conn.Close()
	defer c.leave()

	c.conn.SetReadLimit(readLimit)
	c.extend("")
	c.conn.SetPongHandler(c.extend)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) leave() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.done:
	}
}

// forward owns all writes: queued frames and keepalive pings.
func (c *Client) forward() {
	ping := time.NewTicker(pingEvery)
	defer close(c.done)
	defer ping.Stop()
	defer c.conn.Close()

	for {
		var kind int
		var data []byte
		select {
		case f, open := <-c.send:
			if !open {
				c.write(websocket.CloseMessage, nil)
				return
			}
			kind, data = f.kind, f.data
		case <-ping.C:
			kind = websocket.PingMessage
		}
		if err := c.write(kind, data); err != nil {
			return
		}
	}
}

func (c *Client) write(kind int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(kind, data)
}
