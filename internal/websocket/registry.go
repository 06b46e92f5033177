package websocket

import (
	"sync"

	"go.uber.org/zap"
)

// Registry tracks subscriber connections per session channel. Each identity
// holds at most one connection per session; a newer subscription replaces
// and closes the older one.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]map[string]*Connection // sessionID -> identity -> Connection
	total    int
	logger   *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]map[string]*Connection),
		logger:   logger.Named("registry"),
	}
}

// RegisterConnection adds an authenticated connection to its session.
func (r *Registry) RegisterConnection(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	if !conn.IsAuthenticated() {
		return ErrConnectionNotAuthenticated
	}

	identity := conn.GetIdentity()
	sessionID := conn.GetSessionID()

	r.mu.Lock()
	defer r.mu.Unlock()

	subscribers, ok := r.sessions[sessionID]
	if !ok {
		subscribers = make(map[string]*Connection)
		r.sessions[sessionID] = subscribers
	}
	if existing, ok := subscribers[identity]; ok && existing != conn {
		existing.markReplaced()
		// Close outside the lock; Close may block on the socket.
		go func() {
			if err := existing.Close(); err != nil {
				r.logger.Debug("failed to close replaced connection", zap.String("identity", identity), zap.Error(err))
			}
		}()
	} else if !ok {
		r.total++
	}
	subscribers[identity] = conn
	return nil
}

// UnregisterConnection removes conn if it is still the registered
// connection for its identity. It reports whether anything was removed.
func (r *Registry) UnregisterConnection(conn *Connection) bool {
	if conn == nil {
		return false
	}
	identity := conn.GetIdentity()
	sessionID := conn.GetSessionID()

	r.mu.Lock()
	defer r.mu.Unlock()

	subscribers, ok := r.sessions[sessionID]
	if !ok || subscribers[identity] != conn {
		return false
	}
	delete(subscribers, identity)
	r.total--
	if len(subscribers) == 0 {
		delete(r.sessions, sessionID)
	}
	return true
}

// GetConnection returns the connection of identity in sessionID.
func (r *Registry) GetConnection(sessionID, identity string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.sessions[sessionID][identity]
	return conn, ok
}

// GetSessionConnections returns a snapshot of every subscriber of sessionID.
func (r *Registry) GetSessionConnections(sessionID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subscribers := r.sessions[sessionID]
	connections := make([]*Connection, 0, len(subscribers))
	for _, conn := range subscribers {
		connections = append(connections, conn)
	}
	return connections
}

// CloseAll closes every connection and empties the registry.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]map[string]*Connection)
	r.total = 0
	r.mu.Unlock()

	for _, subscribers := range sessions {
		for _, conn := range subscribers {
			_ = conn.Close()
		}
	}
}

func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string]int{
		"total_connections": r.total,
		"active_sessions":   len(r.sessions),
	}
}
