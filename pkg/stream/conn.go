package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"voxchat/internal/constants"
	apperrors "voxchat/internal/errors"
	"voxchat/internal/metrics"
	"voxchat/internal/models"
	"voxchat/internal/retry"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// EventHandler receives everything the stream produces. Callbacks are
// invoked from the connection's read goroutine; implementations must not
// block.
type EventHandler interface {
	OnEvent(event models.StreamEvent)
	OnConnectionChange(connected bool)
	OnStreamError(err error)
}

// Options configures a stream connection for one conversation.
type Options struct {
	BaseURL           string
	ConversationID    int64
	Token             string
	UserID            int64
	HeartbeatInterval time.Duration
	Backoff           retry.BackoffConfig
	Logger            *logrus.Logger
	Handler           EventHandler
}

// Conn manages the websocket for a single conversation: heartbeat,
// reconnect with bounded exponential backoff, and event dispatch.
type Conn struct {
	opts    Options
	logger  *logrus.Logger
	backoff *retry.Backoff

	mu             sync.Mutex
	ws             *websocket.Conn
	connected      bool
	closed         bool
	attempts       int
	reconnectTimer *time.Timer
	heartbeatStop  chan struct{}

	writeMu sync.Mutex
}

func NewConn(opts Options) *Conn {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = time.Duration(constants.DefaultHeartbeatIntervalSec) * time.Second
	}
	if opts.Backoff.MaxAttempts == 0 {
		opts.Backoff = retry.DefaultBackoffConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}

	return &Conn{
		opts:    opts,
		logger:  logger,
		backoff: retry.NewBackoff(opts.Backoff),
	}
}

// wsURL derives the websocket endpoint from the HTTP base URL.
func (c *Conn) wsURL() string {
	base := c.opts.BaseURL
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return fmt.Sprintf("%s%s/ws/%d?token=%s",
		base, constants.DefaultAPIPrefix, c.opts.ConversationID, url.QueryEscape(c.opts.Token))
}

// Connect dials the stream. It is a no-op when already connected. A dial
// failure schedules a reconnect on the same backoff track as an abnormal
// close.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return apperrors.New(apperrors.ErrCodeConnection, "connection is closed")
	}
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: time.Duration(constants.DefaultStreamWriteTimeoutSec) * time.Second}
	ws, _, err := dialer.DialContext(ctx, c.wsURL(), nil)
	if err != nil {
		c.logger.WithError(err).WithField("conversation_id", c.opts.ConversationID).Warn("Stream dial failed")
		c.scheduleReconnect()
		return apperrors.NewConnectionError(err, "stream dial failed")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		ws.Close()
		return apperrors.New(apperrors.ErrCodeConnection, "connection is closed")
	}
	c.ws = ws
	c.connected = true
	c.attempts = 0
	c.heartbeatStop = make(chan struct{})
	stop := c.heartbeatStop
	c.mu.Unlock()

	metrics.IncrementCounter(metrics.StreamConnects, nil)
	metrics.SetGauge(metrics.ConnectedGauge, 1, nil)
	c.logger.WithField("conversation_id", c.opts.ConversationID).Info("Stream connected")
	c.opts.Handler.OnConnectionChange(true)

	go c.heartbeatLoop(ws, stop)
	go c.readLoop(ws)
	return nil
}

// Disconnect closes the stream intentionally. Safe to call repeatedly.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	ws := c.ws
	wasConnected := c.connected
	c.connected = false
	c.stopHeartbeatLocked()
	c.mu.Unlock()

	if ws != nil {
		c.writeMu.Lock()
		deadline := time.Now().Add(time.Duration(constants.DefaultStreamWriteTimeoutSec) * time.Second)
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(constants.CloseCodeIntentional, ""), deadline)
		c.writeMu.Unlock()
		_ = ws.Close()
	}

	if wasConnected {
		metrics.SetGauge(metrics.ConnectedGauge, 0, nil)
		c.opts.Handler.OnConnectionChange(false)
	}
}

// IsConnected reports whether the socket is currently open.
func (c *Conn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// SendTyping sends a typing frame. Best effort: a no-op when disconnected.
func (c *Conn) SendTyping(isTyping bool) error {
	c.mu.Lock()
	ws := c.ws
	connected := c.connected
	c.mu.Unlock()

	if !connected || ws == nil {
		return nil
	}

	frame := models.TypingFrame{
		Type:     models.EventTyping,
		IsTyping: isTyping,
		UserID:   c.opts.UserID,
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to marshal typing frame: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = ws.SetWriteDeadline(time.Now().Add(time.Duration(constants.DefaultStreamWriteTimeoutSec) * time.Second))
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		c.logger.WithError(err).Debug("Typing frame write failed")
		return fmt.Errorf("failed to write typing frame: %w", err)
	}
	return nil
}

func (c *Conn) heartbeatLoop(ws *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			_ = ws.SetWriteDeadline(time.Now().Add(time.Duration(constants.DefaultStreamWriteTimeoutSec) * time.Second))
			err := ws.WriteMessage(websocket.TextMessage, []byte("ping"))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.WithError(err).Debug("Heartbeat write failed")
				return
			}
		}
	}
}

func (c *Conn) readLoop(ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.handleDisconnect(err)
			return
		}
		c.handleFrame(data)
	}
}

func (c *Conn) handleFrame(data []byte) {
	if string(data) == "pong" {
		return
	}

	var event models.StreamEvent
	if err := json.Unmarshal(data, &event); err != nil || event.Type == "" {
		metrics.IncrementCounter(metrics.StreamEventsDropped, nil)
		c.logger.WithFields(logrus.Fields{
			"conversation_id": c.opts.ConversationID,
			"payload_bytes":   len(data),
		}).Warn("Dropping malformed stream event")
		return
	}

	metrics.IncrementCounter(metrics.MessagesReceived, map[string]string{"type": string(event.Type)})
	c.opts.Handler.OnEvent(event)
}

// handleDisconnect runs the close-code policy: 1000/4001/4003 end the
// session, anything else reconnects on the backoff schedule.
func (c *Conn) handleDisconnect(err error) {
	c.mu.Lock()
	closed := c.closed
	wasConnected := c.connected
	c.connected = false
	c.ws = nil
	c.stopHeartbeatLocked()
	c.mu.Unlock()

	if wasConnected {
		metrics.SetGauge(metrics.ConnectedGauge, 0, nil)
		c.opts.Handler.OnConnectionChange(false)
	}

	if closed {
		return
	}

	code := closeCode(err)
	switch code {
	case constants.CloseCodeIntentional:
		c.logger.Debug("Stream closed normally")
		return
	case constants.CloseCodeInvalidToken:
		c.opts.Handler.OnStreamError(apperrors.New(apperrors.ErrCodeAuthentication, "stream rejected token").
			WithUserMessage("Session expired. Please log in again."))
		return
	case constants.CloseCodeAccessDenied:
		c.opts.Handler.OnStreamError(apperrors.New(apperrors.ErrCodeAuthorization, "stream access denied").
			WithUserMessage("You do not have access to this conversation."))
		return
	}

	c.logger.WithError(err).WithField("close_code", code).Warn("Stream dropped")
	c.scheduleReconnect()
}

func (c *Conn) scheduleReconnect() {
	c.mu.Lock()
	if c.closed || c.reconnectTimer != nil {
		c.mu.Unlock()
		return
	}
	if !c.backoff.ShouldRetry(c.attempts) {
		c.mu.Unlock()
		c.opts.Handler.OnStreamError(apperrors.New(apperrors.ErrCodeConnection, "reconnect attempts exhausted").
			WithUserMessage("Connection lost. Please reopen the conversation."))
		return
	}

	delay := c.backoff.DelayForAttempt(c.attempts)
	c.attempts++
	metrics.IncrementCounter(metrics.StreamReconnects, nil)
	c.logger.WithFields(logrus.Fields{
		"attempt":  c.attempts,
		"delay_ms": delay.Milliseconds(),
	}).Info("Scheduling stream reconnect")

	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		c.reconnectTimer = nil
		c.mu.Unlock()
		_ = c.Connect(context.Background())
	})
	c.mu.Unlock()
}

// stopHeartbeatLocked must be called with c.mu held.
func (c *Conn) stopHeartbeatLocked() {
	if c.heartbeatStop != nil {
		close(c.heartbeatStop)
		c.heartbeatStop = nil
	}
}

func closeCode(err error) int {
	if ce, ok := err.(*websocket.CloseError); ok {
		return ce.Code
	}
	return -1
}
