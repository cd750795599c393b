package ws

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Session is one live duplex channel bound to a single identity. Multiple
// sessions per identity are allowed (multi-device).
type Session interface {
	ID() string
	Send(payload []byte) error
	Close() error
}

// wsSession adapts a gorilla connection. Writes are serialized; gorilla
// connections support one concurrent writer only.
type wsSession struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func newWSSession(conn *websocket.Conn) *wsSession {
	return &wsSession{id: newConnID(), conn: conn}
}

func (s *wsSession) ID() string { return s.id }

func (s *wsSession) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *wsSession) Close() error {
	return s.conn.Close()
}

// ConnInfo carries per-connection metadata attached to observability events.
type ConnInfo struct {
	ConnID      string
	UserID      int64
	Email       string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}
