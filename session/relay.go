package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/room4-2/voicerelay/messages"
)

// Generator produces a reply for a single prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Relay runs the chat loop for every connection accepted by its registry
type Relay struct {
	registry  *Registry
	generator Generator
	timeout   time.Duration
	logger    *logrus.Entry
}

// NewRelay creates a relay. A zero timeout leaves generation calls unbounded.
func NewRelay(registry *Registry, generator Generator, timeout time.Duration, logger *logrus.Entry) *Relay {
	return &Relay{
		registry:  registry,
		generator: generator,
		timeout:   timeout,
		logger:    logger,
	}
}

// ServeHTTP upgrades the request and serves the session until the client leaves.
func (rl *Relay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s, err := rl.registry.Register(w, r)
	if err != nil {
		// the upgrader already wrote an HTTP error response
		rl.logger.WithError(err).Warn("failed to register session")
		return
	}
	defer rl.registry.Unregister(s)

	s.Logger().WithField("remote_addr", s.RemoteAddr).Info("session opened")
	rl.serve(r.Context(), s)
	s.Logger().Info("session closed")
}

// serve processes messages strictly in arrival order until the connection
// drops or a reply cannot be delivered.
func (rl *Relay) serve(ctx context.Context, s *Session) {
	for {
		messageType, frame, err := s.readMessage()
		if err != nil {
			logReadError(s.Logger(), err)
			return
		}

		reply := rl.handleFrame(ctx, s, messageType, frame)
		if err := rl.registry.Send(s, reply); err != nil {
			s.Logger().WithError(err).Warn("failed to deliver notification")
			return
		}
	}
}

// handleFrame turns one inbound frame into exactly one notification.
func (rl *Relay) handleFrame(ctx context.Context, s *Session, messageType int, frame []byte) messages.ServerMessage {
	decoded := decodeFrame(messageType, frame)
	if decoded.err != nil {
		s.Logger().WithError(decoded.err).Warn("rejected inbound frame")
		return messages.NewErrorMessage(messages.ErrorNotice)
	}

	result := rl.generate(ctx, decoded.message.Message)
	if result.err != nil {
		s.Logger().WithError(result.err).Error("Gemini error")
	}
	return messages.NewAIResponseMessage(result.reply())
}

type decodeResult struct {
	message messages.ClientMessage
	err     error
}

func decodeFrame(messageType int, frame []byte) decodeResult {
	if messageType != websocket.TextMessage {
		return decodeResult{err: fmt.Errorf("%w: unsupported frame type %d", messages.ErrMalformedMessage, messageType)}
	}
	msg, err := messages.DecodeClientMessage(frame)
	return decodeResult{message: msg, err: err}
}

type generateResult struct {
	text string
	err  error
}

// reply degrades to the fixed fallback text when generation failed.
func (g generateResult) reply() string {
	if g.err != nil {
		return messages.FallbackReply
	}
	return g.text
}

func (rl *Relay) generate(ctx context.Context, prompt string) generateResult {
	if rl.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rl.timeout)
		defer cancel()
	}

	text, err := rl.generator.Generate(ctx, prompt)
	return generateResult{text: text, err: err}
}

func logReadError(logger *logrus.Entry, err error) {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		logger.Info("client disconnected")
		return
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		logger.WithField("code", closeErr.Code).Warn("client closed connection abnormally")
		return
	}
	logger.WithError(err).Warn("websocket read failed")
}
