package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mbeoliero/kit/log"
)

// ClientConn represents a bidirectional frame connection to the backend
type ClientConn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// websocketClientConn implements ClientConn using gorilla/websocket
type websocketClientConn struct {
	conn       *websocket.Conn
	writeChan  chan []byte
	writeMu    sync.Mutex
	closeOnce  sync.Once
	closed     bool
	pingPeriod time.Duration
	pongWait   time.Duration
	writeWait  time.Duration
}

// connOptions tunes a websocketClientConn
type connOptions struct {
	maxMsgSize       int64
	writeWait        time.Duration
	pongWait         time.Duration
	pingPeriod       time.Duration
	writeChannelSize int
}

// newWebSocketClientConn wraps a dialed websocket connection
func newWebSocketClientConn(conn *websocket.Conn, opts connOptions) *websocketClientConn {
	c := &websocketClientConn{
		conn:       conn,
		writeChan:  make(chan []byte, opts.writeChannelSize),
		pingPeriod: opts.pingPeriod,
		pongWait:   opts.pongWait,
		writeWait:  opts.writeWait,
	}

	conn.SetReadLimit(opts.maxMsgSize)

	// Pongs extend the read deadline
	pongWait := opts.pongWait
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.writeLoop()

	return c
}

// writeLoop handles all writes to the connection (single writer pattern)
func (c *websocketClientConn) writeLoop() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.writeChan:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if !ok {
				// Channel closed, send close message
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect"))
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warn("write message error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug("ping error: %v", err)
				return
			}
		}
	}
}

// ReadMessage reads a message from the connection
func (c *websocketClientConn) ReadMessage() ([]byte, error) {
	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	_, message, err := c.conn.ReadMessage()
	return message, err
}

// WriteMessage queues a message to be written
func (c *websocketClientConn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed {
		return ErrConnClosed
	}

	select {
	case c.writeChan <- data:
		return nil
	default:
		return ErrWriteChannelFull
	}
}

// Close closes the connection. The write loop sends a close frame before exiting.
func (c *websocketClientConn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.closed = true
		close(c.writeChan)
		c.writeMu.Unlock()
	})
	return nil
}
