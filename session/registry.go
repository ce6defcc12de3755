package session

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/room4-2/voicerelay/config"
	"github.com/room4-2/voicerelay/messages"
)

const (
	activeSessionsKey = "active_sessions"
	presenceInterval  = 1 * time.Minute
)

// Registry tracks every open client connection
type Registry struct {
	sessions  map[string]*Session
	closed    bool
	mu        sync.RWMutex
	upgrader  websocket.Upgrader
	redis     *redis.Client
	ttl       time.Duration
	keepAlive time.Duration
	logger    *logrus.Entry
}

// NewRegistry creates a registry. When cfg.RedisURL is set and reachable,
// session presence is mirrored into Redis; otherwise the registry is memory only.
func NewRegistry(cfg *config.Config, logger *logrus.Entry) *Registry {
	r := &Registry{
		sessions:  make(map[string]*Session),
		ttl:       cfg.SessionTTL,
		keepAlive: cfg.KeepAlivePeriod,
		logger:    logger,
	}
	r.upgrader = websocket.Upgrader{
		ReadBufferSize:  4 * 1024,
		WriteBufferSize: 4 * 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}

	if cfg.RedisURL != "" {
		r.redis = connectRedis(cfg, logger)
	}
	return r
}

// originChecker admits browsers from the allow-list and clients that send no Origin.
func originChecker(allowed []string) func(*http.Request) bool {
	return func(req *http.Request) bool {
		origin := req.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

func connectRedis(cfg *config.Config, logger *logrus.Entry) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		// Redis unavailable, continue without it
		logger.WithError(err).Warn("redis unavailable, session presence stays in memory")
		_ = client.Close()
		return nil
	}
	logger.WithField("addr", cfg.RedisURL).Info("mirroring session presence to redis")
	return client
}

// Register completes the WebSocket handshake and adds the new session.
// After Shutdown it answers 503 without upgrading.
func (r *Registry) Register(w http.ResponseWriter, req *http.Request) (*Session, error) {
	if r.isClosed() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return nil, ErrRegistryClosed
	}

	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket upgrade failed: %w", err)
	}

	s := newSession(uuid.NewString(), conn, r.logger)
	if err := r.add(req.Context(), s); err != nil {
		// Shutdown won the race against the handshake
		s.close(websocket.CloseGoingAway, "server shutting down")
		return nil, err
	}

	if r.keepAlive > 0 {
		go s.keepAlive(r.keepAlive)
	}
	return s, nil
}

func (r *Registry) add(ctx context.Context, s *Session) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRegistryClosed
	}
	r.sessions[s.ID] = s
	// presence is written under the lock so Shutdown cannot close redis first
	r.storePresence(ctx, s)
	r.mu.Unlock()
	return nil
}

func (r *Registry) isClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// Unregister removes the session and closes its connection.
// It reports whether the session was still registered.
func (r *Registry) Unregister(s *Session) bool {
	if s == nil {
		return false
	}

	r.mu.Lock()
	current, exists := r.sessions[s.ID]
	if exists && current == s {
		delete(r.sessions, s.ID)
	}
	r.mu.Unlock()

	s.close(websocket.CloseNormalClosure, "")

	if !exists || current != s {
		return false
	}
	r.removePresence(context.Background(), s.ID)
	return true
}

// Send writes one notification to one session.
func (r *Registry) Send(s *Session, msg messages.ServerMessage) error {
	if !r.contains(s) {
		return &TransportError{SessionID: s.ID, Op: "send", Err: ErrNotRegistered}
	}

	payload, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("encode %s notification: %w", msg.Type, err)
	}

	if err := s.writeText(payload); err != nil {
		return &TransportError{SessionID: s.ID, Op: "send", Err: err}
	}
	return nil
}

func (r *Registry) contains(s *Session) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	current, ok := r.sessions[s.ID]
	return ok && current == s
}

// Get retrieves a session by ID
func (r *Registry) Get(sessionID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.sessions[sessionID]
	return s, exists
}

// Count returns current session count
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// StartPresenceRoutine refreshes the Redis TTL of live sessions until ctx is done.
func (r *Registry) StartPresenceRoutine(ctx context.Context) {
	if r.redis == nil {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(presenceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refreshPresence(ctx)
		}
	}
}

// Shutdown closes all sessions and refuses new ones. Later calls are no-ops.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	sessions := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		sessions = append(sessions, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.close(websocket.CloseGoingAway, "server shutting down")
		r.removePresence(context.Background(), s.ID)
	}

	if r.redis != nil {
		_ = r.redis.Close()
	}
}

func (r *Registry) storePresence(ctx context.Context, s *Session) {
	if r.redis == nil {
		return
	}

	key := "session:" + s.ID
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]interface{}{
			"created_at":  s.CreatedAt.Format(time.RFC3339),
			"remote_addr": s.RemoteAddr,
			"status":      "active",
		})
		pipe.SAdd(ctx, activeSessionsKey, s.ID)
		pipe.Expire(ctx, key, r.ttl)
		return nil
	})
	if err != nil {
		s.logger.WithError(err).Warn("failed to store session presence")
	}
}

func (r *Registry) removePresence(ctx context.Context, sessionID string) {
	if r.redis == nil {
		return
	}

	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, "session:"+sessionID)
		pipe.SRem(ctx, activeSessionsKey, sessionID)
		return nil
	})
	if err != nil {
		r.logger.WithError(err).WithField("session_id", sessionID).Warn("failed to remove session presence")
	}
}

func (r *Registry) refreshPresence(ctx context.Context) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	if len(ids) == 0 {
		return
	}

	_, err := r.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.Expire(ctx, "session:"+id, r.ttl)
		}
		return nil
	})
	if err != nil {
		r.logger.WithError(err).Warn("failed to refresh session presence")
	}
}
