// README: One websocket connection. Read/write pumps follow the gorilla
// pattern: one reader goroutine, one writer goroutine, a buffered send queue
// between hub and socket.
package realtime

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
	sendQueueSize  = 64
)

type Client struct {
	registry *Registry
	conn     *websocket.Conn
	send     chan []byte

	closeOnce sync.Once
	done      chan struct{}

	// party is the registry key ("driver_<id>"...); owner the bare entity id
	// used when releasing guards on reconnect. Set by the join op.
	mu    sync.Mutex
	party string
	owner string
}

func newClient(r *Registry, conn *websocket.Conn) *Client {
	return &Client{
		registry: r,
		conn:     conn,
		send:     make(chan []byte, sendQueueSize),
		done:     make(chan struct{}),
	}
}

func (c *Client) identify(party, owner string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.party = party
	c.owner = owner
}

func (c *Client) identity() (party, owner string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.party, c.owner
}

// enqueue hands a frame to the writer without blocking. A full queue means the
// consumer stopped reading; the connection is closed rather than stalling the
// hub.
func (c *Client) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		party, _ := c.identity()
		log.Printf("realtime: send queue full for %s, dropping connection", party)
		c.close()
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

func (c *Client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Client) readPump(handle func(*Client, []byte)) {
	defer func() {
		c.registry.Unregister(c)
		c.close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("realtime: read: %v", err)
			}
			return
		}
		handle(c, msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
			return
		}
	}
}
