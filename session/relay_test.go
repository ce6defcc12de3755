package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/room4-2/voicerelay/config"
	"github.com/room4-2/voicerelay/logging"
	"github.com/room4-2/voicerelay/messages"
)

type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	fn      func(ctx context.Context, prompt string) (string, error)
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(ctx, prompt)
	}
	return "echo: " + prompt, nil
}

func (f *fakeGenerator) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

func testConfig() *config.Config {
	return &config.Config{
		AllowedOrigins: config.DefaultAllowedOrigins,
		SessionTTL:     time.Minute,
	}
}

func newTestRelay(t *testing.T, gen Generator, timeout time.Duration) (*Registry, *httptest.Server) {
	t.Helper()
	registry := NewRegistry(testConfig(), logging.Discard())
	relay := NewRelay(registry, gen, timeout, logging.Discard())
	srv := httptest.NewServer(relay)
	t.Cleanup(func() {
		registry.Shutdown()
		srv.Close()
	})
	return registry, srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendText(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func readNotification(t *testing.T, conn *websocket.Conn) messages.ServerMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	messageType, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, messageType)

	var msg messages.ServerMessage
	require.NoError(t, json.Unmarshal(payload, &msg))
	return msg
}

func TestRelayRepliesWithGeneratedText(t *testing.T) {
	gen := &fakeGenerator{}
	_, srv := newTestRelay(t, gen, 0)
	conn := dial(t, srv)

	sendText(t, conn, `{"message":"hello"}`)

	got := readNotification(t, conn)
	assert.Equal(t, messages.NewAIResponseMessage("echo: hello"), got)
	assert.Equal(t, []string{"hello"}, gen.calls())
}

func TestRelayEmptyMessageIsForwarded(t *testing.T) {
	gen := &fakeGenerator{}
	_, srv := newTestRelay(t, gen, 0)
	conn := dial(t, srv)

	sendText(t, conn, `{"message":""}`)

	got := readNotification(t, conn)
	assert.Equal(t, messages.TypeAIResponse, got.Type)
	assert.Equal(t, []string{""}, gen.calls())
}

func TestRelayFallbackOnBackendError(t *testing.T) {
	gen := &fakeGenerator{fn: func(_ context.Context, prompt string) (string, error) {
		if prompt == "fail" {
			return "", errors.New("backend unavailable")
		}
		return "ok: " + prompt, nil
	}}
	registry, srv := newTestRelay(t, gen, 0)
	conn := dial(t, srv)

	sendText(t, conn, `{"message":"fail"}`)
	assert.Equal(t, messages.NewAIResponseMessage(messages.FallbackReply), readNotification(t, conn))

	// the session survives the failure
	sendText(t, conn, `{"message":"again"}`)
	assert.Equal(t, messages.NewAIResponseMessage("ok: again"), readNotification(t, conn))
	assert.Equal(t, 1, registry.Count())
}

func TestRelayFallbackOnTimeout(t *testing.T) {
	gen := &fakeGenerator{fn: func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	_, srv := newTestRelay(t, gen, 50*time.Millisecond)
	conn := dial(t, srv)

	sendText(t, conn, `{"message":"slow"}`)
	assert.Equal(t, messages.NewAIResponseMessage(messages.FallbackReply), readNotification(t, conn))
}

func TestRelayErrorNoticeOnMalformedFrames(t *testing.T) {
	gen := &fakeGenerator{}
	registry, srv := newTestRelay(t, gen, 0)
	conn := dial(t, srv)

	for _, frame := range []string{`not json`, `{}`, `{"message":7}`, `[1,2]`} {
		sendText(t, conn, frame)
		assert.Equal(t, messages.NewErrorMessage(messages.ErrorNotice), readNotification(t, conn), frame)
	}

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02}))
	assert.Equal(t, messages.NewErrorMessage(messages.ErrorNotice), readNotification(t, conn))

	assert.Empty(t, gen.calls())

	sendText(t, conn, `{"message":"still here"}`)
	assert.Equal(t, messages.NewAIResponseMessage("echo: still here"), readNotification(t, conn))
	assert.Equal(t, 1, registry.Count())
}

func TestRelayPreservesOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	var rngMu sync.Mutex
	gen := &fakeGenerator{fn: func(_ context.Context, prompt string) (string, error) {
		rngMu.Lock()
		delay := time.Duration(rng.Intn(3)) * time.Millisecond
		rngMu.Unlock()
		time.Sleep(delay)
		if strings.HasSuffix(prompt, "3") {
			return "", errors.New("flaky")
		}
		return "re: " + prompt, nil
	}}
	_, srv := newTestRelay(t, gen, 0)
	conn := dial(t, srv)

	const n = 25
	for i := 0; i < n; i++ {
		if i%7 == 6 {
			sendText(t, conn, `broken`)
			continue
		}
		sendText(t, conn, fmt.Sprintf(`{"message":"m%d"}`, i))
	}

	for i := 0; i < n; i++ {
		got := readNotification(t, conn)
		switch {
		case i%7 == 6:
			assert.Equal(t, messages.NewErrorMessage(messages.ErrorNotice), got, "reply %d", i)
		case strings.HasSuffix(fmt.Sprint(i), "3"):
			assert.Equal(t, messages.NewAIResponseMessage(messages.FallbackReply), got, "reply %d", i)
		default:
			assert.Equal(t, messages.NewAIResponseMessage(fmt.Sprintf("re: m%d", i)), got, "reply %d", i)
		}
	}

	// nothing beyond the n replies
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	var netErr interface{ Timeout() bool }
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
}

func TestRelayUnregistersOnDisconnect(t *testing.T) {
	registry, srv := newTestRelay(t, &fakeGenerator{}, 0)
	conn := dial(t, srv)

	sendText(t, conn, `{"message":"hi"}`)
	readNotification(t, conn)
	require.Equal(t, 1, registry.Count())

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))
	conn.Close()

	require.Eventually(t, func() bool { return registry.Count() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestRelayUnregistersOnAbruptDrop(t *testing.T) {
	registry, srv := newTestRelay(t, &fakeGenerator{}, 0)
	conn := dial(t, srv)

	require.Eventually(t, func() bool { return registry.Count() == 1 }, 5*time.Second, 10*time.Millisecond)
	conn.UnderlyingConn().Close()

	require.Eventually(t, func() bool { return registry.Count() == 0 }, 5*time.Second, 10*time.Millisecond)
}

// blockingGenerator parks the first Generate call until release is closed.
func blockingGenerator(t *testing.T) (gen *fakeGenerator, started <-chan struct{}, release func()) {
	t.Helper()
	startedCh := make(chan struct{})
	releaseCh := make(chan struct{})
	var startOnce, releaseOnce sync.Once
	release = func() { releaseOnce.Do(func() { close(releaseCh) }) }
	t.Cleanup(release)

	gen = &fakeGenerator{fn: func(_ context.Context, _ string) (string, error) {
		startOnce.Do(func() { close(startedCh) })
		<-releaseCh
		return "late reply", nil
	}}
	return gen, startedCh, release
}

func waitStarted(t *testing.T, started <-chan struct{}) {
	t.Helper()
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("generator was never called")
	}
}

func TestRelayUnregistersOnFailedDelivery(t *testing.T) {
	gen, started, release := blockingGenerator(t)
	registry, srv := newTestRelay(t, gen, 0)
	conn := dial(t, srv)

	sendText(t, conn, `{"message":"hold"}`)
	waitStarted(t, started)
	require.Equal(t, 1, registry.Count())

	// the client vanishes while the reply is being generated
	require.NoError(t, conn.UnderlyingConn().Close())
	release()

	require.Eventually(t, func() bool { return registry.Count() == 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"hold"}, gen.calls())
}

func TestRelayDropsReplyForClosedSession(t *testing.T) {
	gen, started, release := blockingGenerator(t)
	registry, srv := newTestRelay(t, gen, 0)
	conn := dial(t, srv)

	sendText(t, conn, `{"message":"hold"}`)
	waitStarted(t, started)

	registry.Shutdown()
	release()

	// the close frame arrives and the late reply never does
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "unexpected error: %v", err)
	assert.Zero(t, registry.Count())
}

func TestGenerateResultReply(t *testing.T) {
	assert.Equal(t, "text", generateResult{text: "text"}.reply())
	assert.Equal(t, messages.FallbackReply, generateResult{text: "partial", err: errors.New("x")}.reply())
}

func TestDecodeFrameRejectsBinary(t *testing.T) {
	res := decodeFrame(websocket.BinaryMessage, []byte(`{"message":"hi"}`))
	assert.ErrorIs(t, res.err, messages.ErrMalformedMessage)

	res = decodeFrame(websocket.TextMessage, []byte(`{"message":"hi"}`))
	require.NoError(t, res.err)
	assert.Equal(t, "hi", res.message.Message)
}

func TestRelayRejectsPlainHTTP(t *testing.T) {
	registry, srv := newTestRelay(t, &fakeGenerator{}, 0)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, registry.Count())
}
