package session

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const writeTimeout = 10 * time.Second

// Session represents a single client connection
type Session struct {
	ID         string
	RemoteAddr string
	CreatedAt  time.Time

	conn   *websocket.Conn
	logger *logrus.Entry

	// gorilla supports one concurrent writer per connection
	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func newSession(id string, conn *websocket.Conn, logger *logrus.Entry) *Session {
	s := &Session{
		ID:        id,
		CreatedAt: time.Now(),
		conn:      conn,
		logger:    logger.WithField("session_id", id),
		done:      make(chan struct{}),
	}
	if conn != nil {
		s.RemoteAddr = conn.RemoteAddr().String()
	}
	return s
}

// Done is closed once the session has been closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Logger returns the session scoped logger.
func (s *Session) Logger() *logrus.Entry {
	return s.logger
}

func (s *Session) readMessage() (int, []byte, error) {
	return s.conn.ReadMessage()
}

func (s *Session) writeText(payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// keepAlive sends pings until the session closes or a ping fails.
func (s *Session) keepAlive(period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			// WriteControl may run concurrently with other writers
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				s.logger.WithError(err).Debug("keep-alive ping failed")
				return
			}
		}
	}
}

// close sends a best-effort close frame and releases the connection.
func (s *Session) close(code int, reason string) {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.conn == nil {
			return
		}
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(time.Second),
		)
		_ = s.conn.Close()
	})
}
