package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

var _ interfaces.Connection = (*Connection)(nil)

// Connection wraps one subscriber socket. All writes go through writeCh so
// a single goroutine owns the socket's write side.
type Connection struct {
	conn         *websocket.Conn
	writeCh      chan []byte
	writeTimeout time.Duration

	identity      string
	role          types.ParticipantRole
	sessionID     string
	authenticated bool
	replaced      bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	mu        sync.RWMutex
}

// NewConnection starts the writer for conn. A nil conn is allowed in tests;
// frames are then only buffered.
func NewConnection(conn *websocket.Conn, opts Options) *Connection {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:         conn,
		writeCh:      make(chan []byte, opts.BufferSize),
		writeTimeout: opts.WriteTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}
	if conn != nil {
		go c.writeLoop()
	}
	return c
}

func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				_ = c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				_ = c.Close()
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// WriteJSON queues v, waiting up to the write timeout for buffer space.
func (c *Connection) WriteJSON(v interface{}) error {
	if c.closed() {
		return ErrConnectionClosed
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	timer := time.NewTimer(c.writeTimeout)
	defer timer.Stop()
	select {
	case c.writeCh <- data:
		return nil
	case <-timer.C:
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// TrySend queues v without waiting. A full buffer means the subscriber is
// too slow; the frame is dropped and ErrBufferFull returned.
func (c *Connection) TrySend(v interface{}) error {
	if c.closed() {
		return ErrConnectionClosed
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}
	select {
	case c.writeCh <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// Done is closed once the connection is closed.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

func (c *Connection) closed() bool {
	select {
	case <-c.ctx.Done():
		return true
	default:
		return false
	}
}

func (c *Connection) SetCredentials(identity string, role types.ParticipantRole, sessionID string) error {
	if identity == "" || sessionID == "" {
		return ErrInvalidParameters
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.identity = identity
	c.role = role
	c.sessionID = sessionID
	c.authenticated = true
	return nil
}

func (c *Connection) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated
}

func (c *Connection) GetIdentity() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

func (c *Connection) GetRole() types.ParticipantRole {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

func (c *Connection) GetSessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// Replaced reports whether a newer subscription under the same identity
// took this connection's place.
func (c *Connection) Replaced() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.replaced
}

func (c *Connection) markReplaced() {
	c.mu.Lock()
	c.replaced = true
	c.mu.Unlock()
}

// Drain removes and returns the buffered frames of a connection created
// without a socket.
func (c *Connection) Drain() [][]byte {
	var out [][]byte
	for {
		select {
		case data := <-c.writeCh:
			out = append(out, data)
		default:
			return out
		}
	}
}
