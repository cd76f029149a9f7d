package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "voxchat/internal/errors"
	"voxchat/internal/models"
	"voxchat/internal/retry"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu          sync.Mutex
	events      []models.StreamEvent
	connChanges []bool
	errors      []error
}

func (h *recordingHandler) OnEvent(event models.StreamEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
}

func (h *recordingHandler) OnConnectionChange(connected bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connChanges = append(h.connChanges, connected)
}

func (h *recordingHandler) OnStreamError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, err)
}

func (h *recordingHandler) eventCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func (h *recordingHandler) lastError() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.errors) == 0 {
		return nil
	}
	return h.errors[len(h.errors)-1]
}

var upgrader = websocket.Upgrader{}

// streamServer upgrades and hands the socket to fn.
func streamServer(t *testing.T, fn func(ws *websocket.Conn)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		fn(ws)
	}))
}

func testConn(serverURL string, handler EventHandler) *Conn {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewConn(Options{
		BaseURL:           strings.Replace(serverURL, "ws://", "http://", 1),
		ConversationID:    7,
		Token:             "tok",
		UserID:            1,
		HeartbeatInterval: time.Hour,
		Backoff: retry.BackoffConfig{
			InitialDelay: 10 * time.Millisecond,
			MaxDelay:     50 * time.Millisecond,
			Multiplier:   2.0,
			MaxAttempts:  2,
		},
		Logger:  logger,
		Handler: handler,
	})
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestConn_ConnectAndDispatch(t *testing.T) {
	handler := &recordingHandler{}
	server := streamServer(t, func(ws *websocket.Conn) {
		defer ws.Close()
		event := `{"type":"new_message","data":{"id":1,"sender_id":2,"content_type":"text","content":"hi"}}`
		require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(event)))
		time.Sleep(100 * time.Millisecond)
	})
	defer server.Close()

	conn := testConn(server.URL, handler)
	defer conn.Disconnect()

	require.NoError(t, conn.Connect(context.Background()))
	assert.True(t, conn.IsConnected())

	waitFor(t, time.Second, func() bool { return handler.eventCount() == 1 })

	handler.mu.Lock()
	defer handler.mu.Unlock()
	assert.Equal(t, models.EventNewMessage, handler.events[0].Type)
	assert.Equal(t, []bool{true}, handler.connChanges)
}

func TestConn_ConnectTwiceIsNoop(t *testing.T) {
	handler := &recordingHandler{}
	server := streamServer(t, func(ws *websocket.Conn) {
		defer ws.Close()
		time.Sleep(200 * time.Millisecond)
	})
	defer server.Close()

	conn := testConn(server.URL, handler)
	defer conn.Disconnect()

	require.NoError(t, conn.Connect(context.Background()))
	require.NoError(t, conn.Connect(context.Background()))

	handler.mu.Lock()
	defer handler.mu.Unlock()
	assert.Equal(t, []bool{true}, handler.connChanges)
}

func TestConn_PongFiltered(t *testing.T) {
	handler := &recordingHandler{}
	server := streamServer(t, func(ws *websocket.Conn) {
		defer ws.Close()
		require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("pong")))
		require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"typing","user_id":3,"is_typing":true}`)))
		time.Sleep(100 * time.Millisecond)
	})
	defer server.Close()

	conn := testConn(server.URL, handler)
	defer conn.Disconnect()

	require.NoError(t, conn.Connect(context.Background()))
	waitFor(t, time.Second, func() bool { return handler.eventCount() == 1 })

	handler.mu.Lock()
	defer handler.mu.Unlock()
	assert.Equal(t, models.EventTyping, handler.events[0].Type)
	assert.True(t, handler.events[0].IsTyping)
}

func TestConn_MalformedEventDropped(t *testing.T) {
	handler := &recordingHandler{}
	server := streamServer(t, func(ws *websocket.Conn) {
		defer ws.Close()
		require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{not json`)))
		require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"no_type":true}`)))
		require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"user_joined","user_id":9}`)))
		time.Sleep(100 * time.Millisecond)
	})
	defer server.Close()

	conn := testConn(server.URL, handler)
	defer conn.Disconnect()

	require.NoError(t, conn.Connect(context.Background()))
	waitFor(t, time.Second, func() bool { return handler.eventCount() == 1 })

	handler.mu.Lock()
	defer handler.mu.Unlock()
	assert.Equal(t, models.EventUserJoined, handler.events[0].Type)
}

func TestConn_InvalidTokenTerminal(t *testing.T) {
	handler := &recordingHandler{}
	server := streamServer(t, func(ws *websocket.Conn) {
		msg := websocket.FormatCloseMessage(4001, "invalid token")
		_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = ws.Close()
	})
	defer server.Close()

	conn := testConn(server.URL, handler)
	defer conn.Disconnect()

	require.NoError(t, conn.Connect(context.Background()))
	waitFor(t, time.Second, func() bool { return handler.lastError() != nil })

	assert.Equal(t, apperrors.ErrCodeAuthentication, apperrors.GetCode(handler.lastError()))
	assert.False(t, conn.IsConnected())
}

func TestConn_AccessDeniedTerminal(t *testing.T) {
	handler := &recordingHandler{}
	server := streamServer(t, func(ws *websocket.Conn) {
		msg := websocket.FormatCloseMessage(4003, "access denied")
		_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = ws.Close()
	})
	defer server.Close()

	conn := testConn(server.URL, handler)
	defer conn.Disconnect()

	require.NoError(t, conn.Connect(context.Background()))
	waitFor(t, time.Second, func() bool { return handler.lastError() != nil })

	assert.Equal(t, apperrors.ErrCodeAuthorization, apperrors.GetCode(handler.lastError()))
}

func TestConn_ReconnectAfterAbnormalClose(t *testing.T) {
	handler := &recordingHandler{}
	var mu sync.Mutex
	dials := 0
	server := streamServer(t, func(ws *websocket.Conn) {
		mu.Lock()
		dials++
		n := dials
		mu.Unlock()
		if n == 1 {
			// Drop without a close frame to trigger the backoff path.
			_ = ws.Close()
			return
		}
		require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"user_left","user_id":4}`)))
		time.Sleep(200 * time.Millisecond)
		_ = ws.Close()
	})
	defer server.Close()

	conn := testConn(server.URL, handler)
	defer conn.Disconnect()

	require.NoError(t, conn.Connect(context.Background()))
	waitFor(t, 2*time.Second, func() bool { return handler.eventCount() == 1 })

	mu.Lock()
	assert.Equal(t, 2, dials)
	mu.Unlock()
}

func TestConn_ReconnectGivesUpAfterMaxAttempts(t *testing.T) {
	handler := &recordingHandler{}

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	conn := NewConn(Options{
		BaseURL:        "http://127.0.0.1:1", // nothing listening
		ConversationID: 7,
		Token:          "tok",
		Backoff: retry.BackoffConfig{
			InitialDelay: 5 * time.Millisecond,
			MaxDelay:     10 * time.Millisecond,
			Multiplier:   2.0,
			MaxAttempts:  2,
		},
		Logger:  logger,
		Handler: handler,
	})
	defer conn.Disconnect()

	require.Error(t, conn.Connect(context.Background()))
	waitFor(t, 2*time.Second, func() bool {
		err := handler.lastError()
		return err != nil && apperrors.GetCode(err) == apperrors.ErrCodeConnection && !apperrors.IsRetryable(err)
	})
}

func TestConn_DisconnectIdempotent(t *testing.T) {
	handler := &recordingHandler{}
	server := streamServer(t, func(ws *websocket.Conn) {
		defer ws.Close()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	conn := testConn(server.URL, handler)
	require.NoError(t, conn.Connect(context.Background()))

	conn.Disconnect()
	conn.Disconnect()
	assert.False(t, conn.IsConnected())

	// No reconnect after an intentional close.
	time.Sleep(100 * time.Millisecond)
	assert.Nil(t, handler.lastError())

	handler.mu.Lock()
	defer handler.mu.Unlock()
	assert.Equal(t, []bool{true, false}, handler.connChanges)
}

func TestConn_SendTyping(t *testing.T) {
	frames := make(chan models.TypingFrame, 1)
	server := streamServer(t, func(ws *websocket.Conn) {
		defer ws.Close()
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var frame models.TypingFrame
		if json.Unmarshal(data, &frame) == nil {
			frames <- frame
		}
	})
	defer server.Close()

	handler := &recordingHandler{}
	conn := testConn(server.URL, handler)
	defer conn.Disconnect()

	require.NoError(t, conn.Connect(context.Background()))
	require.NoError(t, conn.SendTyping(true))

	select {
	case frame := <-frames:
		assert.Equal(t, models.EventTyping, frame.Type)
		assert.True(t, frame.IsTyping)
		assert.Equal(t, int64(1), frame.UserID)
	case <-time.After(time.Second):
		t.Fatal("typing frame not received")
	}
}

func TestConn_SendTypingDisconnectedIsNoop(t *testing.T) {
	handler := &recordingHandler{}
	conn := testConn("http://127.0.0.1:1", handler)
	assert.NoError(t, conn.SendTyping(true))
}

func TestConn_HeartbeatPing(t *testing.T) {
	pings := make(chan string, 1)
	server := streamServer(t, func(ws *websocket.Conn) {
		defer ws.Close()
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		pings <- string(data)
	})
	defer server.Close()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	handler := &recordingHandler{}
	conn := NewConn(Options{
		BaseURL:           strings.Replace(server.URL, "ws://", "http://", 1),
		ConversationID:    7,
		Token:             "tok",
		HeartbeatInterval: 20 * time.Millisecond,
		Backoff:           retry.BackoffConfig{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1, MaxAttempts: 1},
		Logger:            logger,
		Handler:           handler,
	})
	defer conn.Disconnect()

	require.NoError(t, conn.Connect(context.Background()))

	select {
	case ping := <-pings:
		assert.Equal(t, "ping", ping)
	case <-time.After(time.Second):
		t.Fatal("heartbeat ping not received")
	}
}
