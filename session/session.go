// session/session.go
package session

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/wfunc/drawserver/logger"
	"github.com/wfunc/drawserver/network"
)

var (
	ErrQueueFull     = errors.New("send queue full")
	ErrSessionClosed = errors.New("session closed")
)

// Limits caps how fast a single connection may chat and draw.
type Limits struct {
	ChatPerSecond   float64
	ChatBurst       int
	StrokePerSecond float64
	StrokeBurst     int
}

type frame struct {
	msgID uint16
	data  []byte
}

// Session is one live connection. Outbound frames go through a bounded queue
// drained by WritePump so the dispatcher never blocks on a slow peer.
type Session struct {
	ID        string
	Conn      network.Connection
	CreatedAt time.Time

	lastActive atomic.Int64
	outbox     chan frame
	chat       *rate.Limiter
	stroke     *rate.Limiter
	done       chan struct{}
	closeOnce  sync.Once
}

func NewSession(id string, conn network.Connection, queueSize int, limits Limits) *Session {
	now := time.Now()
	s := &Session{
		ID:        id,
		Conn:      conn,
		CreatedAt: now,
		outbox:    make(chan frame, queueSize),
		chat:      newLimiter(limits.ChatPerSecond, limits.ChatBurst),
		stroke:    newLimiter(limits.StrokePerSecond, limits.StrokeBurst),
		done:      make(chan struct{}),
	}
	s.lastActive.Store(now.UnixNano())
	return s
}

func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

func (s *Session) GetID() string {
	return s.ID
}

// Allow reports whether an inbound message of this type fits the session's
// rate limits. Messages other than chat and strokes are never limited.
func (s *Session) Allow(msgID uint16) bool {
	switch msgID {
	case network.MsgTypeChatOrGuess:
		return s.chat.Allow()
	case network.MsgTypeStrokeStart, network.MsgTypeStrokeMove, network.MsgTypeStrokeEnd, network.MsgTypeClearCanvas:
		return s.stroke.Allow()
	}
	return true
}

func (s *Session) Touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// Enqueue queues a frame without blocking.
func (s *Session) Enqueue(msgID uint16, data []byte) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.outbox <- frame{msgID: msgID, data: data}:
		return nil
	case <-s.done:
		return ErrSessionClosed
	default:
		return ErrQueueFull
	}
}

// WritePump writes queued frames until the session closes or a write fails.
func (s *Session) WritePump() {
	for {
		select {
		case <-s.done:
			return
		case f := <-s.outbox:
			if err := s.Conn.Send(f.msgID, f.data); err != nil {
				logger.Log.Debugf("Session %s write failed: %v", s.ID, err)
				s.Close()
				return
			}
		}
	}
}

// Done is closed once the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close is safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.Conn.Close()
	})
	return err
}

// Manager indexes live sessions by id.
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

func (m *Manager) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// CloseAll closes every session, used on shutdown.
func (m *Manager) CloseAll() {
	m.mutex.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mutex.RUnlock()

	for _, s := range sessions {
		s.Close()
	}
}
