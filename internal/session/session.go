package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"voxchat/internal/constants"
	apperrors "voxchat/internal/errors"
	"voxchat/internal/metrics"
	"voxchat/internal/models"
	"voxchat/internal/retry"
	"voxchat/pkg/api"
	"voxchat/pkg/audio"
	"voxchat/pkg/stream"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// UpdateKind discriminates session updates delivered to the UI.
type UpdateKind string

const (
	UpdateMessage      UpdateKind = "message"
	UpdateTyping       UpdateKind = "typing"
	UpdateConnection   UpdateKind = "connection"
	UpdateParticipants UpdateKind = "participants"
	UpdateNotice       UpdateKind = "notice"
)

// Update is one UI-facing state change. Notices carry dismissible errors;
// ComposerText restores the draft after a failed send.
type Update struct {
	Kind         UpdateKind
	Message      *models.Message
	TypingUsers  []string
	Connected    bool
	Err          error
	ComposerText string
}

// Identity is the authenticated user the session acts as.
type Identity struct {
	UserID   int64
	Username string
	Token    string
}

// Options configures a conversation session.
type Options struct {
	ConversationID       int64
	Identity             Identity
	Client               api.Client
	Logger               *logrus.Logger
	HeartbeatInterval    time.Duration
	TypingIdle           time.Duration
	Backoff              retry.BackoffConfig
	AudioPollAttempts    int
	AudioPollInterval    time.Duration
	AudioDownloadTimeout time.Duration
}

// Session is one open conversation: message store, stream connection,
// typing aggregator, translation switches, and the playback controller.
// Nothing in it panics the caller; failures surface as notice updates.
type Session struct {
	opts         Options
	instanceID   string
	client       api.Client
	logger       *logrus.Logger
	store        *Store
	conn         *stream.Conn
	typing       *TypingAggregator
	translations *Translations
	playback     *audio.Controller

	participantsMu sync.RWMutex
	participants   []models.Participant

	updates   chan Update
	closeOnce sync.Once
}

func New(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}

	s := &Session{
		opts:       opts,
		instanceID: uuid.New().String(),
		client:     opts.Client,
		logger:     logger,
		store:      NewStore(),
		updates:    make(chan Update, 64),
	}

	s.conn = stream.NewConn(stream.Options{
		BaseURL:           opts.Client.BaseURL(),
		ConversationID:    opts.ConversationID,
		Token:             opts.Identity.Token,
		UserID:            opts.Identity.UserID,
		HeartbeatInterval: opts.HeartbeatInterval,
		Backoff:           opts.Backoff,
		Logger:            logger,
		Handler:           s,
	})

	idle := opts.TypingIdle
	if idle <= 0 {
		idle = time.Duration(constants.DefaultTypingIdleMs) * time.Millisecond
	}
	s.typing = NewTypingAggregator(opts.Identity.UserID, idle, s.conn.SendTyping, s.displayName)
	s.translations = NewTranslations(opts.Client, s.store, logger)

	pollAttempts := opts.AudioPollAttempts
	if pollAttempts <= 0 {
		pollAttempts = constants.DefaultAudioLoadPollAttempts
	}
	pollInterval := opts.AudioPollInterval
	if pollInterval <= 0 {
		pollInterval = time.Duration(constants.DefaultAudioLoadPollIntervalMs) * time.Millisecond
	}
	downloadTimeout := opts.AudioDownloadTimeout
	if downloadTimeout <= 0 {
		downloadTimeout = time.Duration(constants.DefaultAudioDownloadTimeoutSec) * time.Second
	}
	s.playback = audio.NewControllerWithPolling(func(ctx context.Context, url string) audio.Sound {
		return audio.NewBufferedSound(ctx, url, func(ctx context.Context, u string) ([]byte, error) {
			dlCtx, cancel := context.WithTimeout(ctx, downloadTimeout)
			defer cancel()
			return opts.Client.DownloadAudio(dlCtx, u)
		})
	}, logger, pollAttempts, pollInterval)

	return s
}

// Updates delivers UI-facing state changes. The channel is never closed;
// updates that would block are dropped.
func (s *Session) Updates() <-chan Update {
	return s.updates
}

// Open performs the initial load (participants, then history) and connects
// the stream.
func (s *Session) Open(ctx context.Context) error {
	log := s.logger.WithFields(logrus.Fields{
		"conversation_id": s.opts.ConversationID,
		"session_id":      s.instanceID,
	})

	participants, err := s.client.GetParticipants(ctx, s.opts.ConversationID)
	if err != nil {
		return fmt.Errorf("failed to load participants: %w", err)
	}
	s.setParticipants(participants)

	messages, err := s.client.GetMessages(ctx, s.opts.ConversationID)
	if err != nil {
		return fmt.Errorf("failed to load messages: %w", err)
	}
	s.store.LoadInitial(messages)
	log.WithFields(logrus.Fields{
		"participants": len(participants),
		"messages":     len(messages),
	}).Info("Conversation loaded")

	return s.conn.Connect(ctx)
}

// Close tears the session down exactly once: stream, typing timer,
// playback buffers.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.typing.Stop()
		s.conn.Disconnect()
		s.playback.Teardown()
		s.logger.WithField("session_id", s.instanceID).Info("Session closed")
	})
}

// Messages returns the current message list snapshot.
func (s *Session) Messages() []models.Message {
	return s.store.Messages()
}

// Participants returns the current participant snapshot.
func (s *Session) Participants() []models.Participant {
	s.participantsMu.RLock()
	defer s.participantsMu.RUnlock()
	out := make([]models.Participant, len(s.participants))
	copy(out, s.participants)
	return out
}

// TypingUsers returns who is typing right now, excluding the local user.
func (s *Session) TypingUsers() []string {
	return s.typing.TypingUsers()
}

// IsConnected reports stream state for the UI.
func (s *Session) IsConnected() bool {
	return s.conn.IsConnected()
}

// SendText sends a message with optimistic local echo. On failure the
// optimistic entry is removed and the draft comes back on a notice.
func (s *Session) SendText(ctx context.Context, content string) error {
	if strings.TrimSpace(content) == "" {
		return apperrors.NewValidationError("content", "message text cannot be empty")
	}

	optimistic := s.store.AppendOptimistic(s.opts.Identity.UserID, models.TextMessage, content)
	s.publish(Update{Kind: UpdateMessage, Message: optimistic})
	s.typing.Blur()

	if _, err := s.client.SendTextMessage(ctx, s.opts.ConversationID, content); err != nil {
		s.store.RemoveOptimistic(optimistic.ID)
		s.publish(Update{Kind: UpdateNotice, Err: err, ComposerText: content})
		return err
	}
	return nil
}

// SendAudio sends an audio message with optimistic local echo.
func (s *Session) SendAudio(ctx context.Context, filename string, data []byte) error {
	optimistic := s.store.AppendOptimistic(s.opts.Identity.UserID, models.AudioMessage, "")
	s.publish(Update{Kind: UpdateMessage, Message: optimistic})

	if _, err := s.client.SendAudioMessage(ctx, s.opts.ConversationID, filename, bytes.NewReader(data)); err != nil {
		s.store.RemoveOptimistic(optimistic.ID)
		s.publish(Update{Kind: UpdateNotice, Err: err})
		return err
	}
	return nil
}

// Keystroke reports local composer activity for the typing indicator.
func (s *Session) Keystroke() {
	s.typing.Keystroke()
}

// Blur reports that the composer lost focus.
func (s *Session) Blur() {
	s.typing.Blur()
}

// PlayAudio toggles playback of a message's original audio.
func (s *Session) PlayAudio(ctx context.Context, messageID int64) error {
	msg, ok := s.store.Get(messageID)
	if !ok || msg.MediaURL == "" {
		return apperrors.New(apperrors.ErrCodeMediaLoad, "message has no audio").
			WithUserMessage("Could not load audio")
	}
	return s.playback.Play(ctx, audio.Key(messageID), s.client.ResolveMediaURL(msg.MediaURL))
}

// PlayTranslatedAudio toggles playback of a message's translated audio,
// fetching the translation first when it is not cached yet.
func (s *Session) PlayTranslatedAudio(ctx context.Context, messageID int64) error {
	msg, ok := s.store.Get(messageID)
	if !ok {
		return apperrors.New(apperrors.ErrCodeMediaLoad, "unknown message").
			WithUserMessage("Could not load audio")
	}

	if msg.TranslatedAudioURL == "" {
		if err := s.translations.ToggleAudio(ctx, messageID); err != nil {
			return err
		}
		msg, _ = s.store.Get(messageID)
		if msg.TranslatedAudioURL == "" {
			return apperrors.New(apperrors.ErrCodeMediaLoad, "no translated audio available").
				WithUserMessage("Could not load audio")
		}
	}

	return s.playback.Play(ctx, audio.TranslatedKey(messageID), msg.TranslatedAudioURL)
}

// ToggleTranslation flips a message between original and translated text.
func (s *Session) ToggleTranslation(ctx context.Context, messageID int64) error {
	if err := s.translations.ToggleText(ctx, messageID); err != nil {
		s.publish(Update{Kind: UpdateNotice, Err: err})
		return err
	}
	if msg, ok := s.store.Get(messageID); ok {
		s.publish(Update{Kind: UpdateMessage, Message: &msg})
	}
	return nil
}

// ShowingTranslation reports the display switch for one message.
func (s *Session) ShowingTranslation(messageID int64) bool {
	return s.translations.ShowingText(messageID)
}

// OnEvent implements stream.EventHandler.
func (s *Session) OnEvent(event models.StreamEvent) {
	switch event.Type {
	case models.EventNewMessage:
		var msg models.Message
		if err := json.Unmarshal(event.Data, &msg); err != nil {
			metrics.IncrementCounter(metrics.StreamEventsDropped, nil)
			s.logger.WithError(err).Warn("Dropping malformed new_message payload")
			return
		}
		if s.store.ReconcileIncoming(msg) {
			s.publish(Update{Kind: UpdateMessage, Message: &msg})
		}

	case models.EventTyping:
		s.typing.HandleRemote(event.UserID, event.IsTyping)
		s.publish(Update{Kind: UpdateTyping, TypingUsers: s.typing.TypingUsers()})

	case models.EventUserJoined, models.EventUserLeft:
		go s.refreshParticipants()

	default:
		s.logger.WithField("type", event.Type).Debug("Ignoring unhandled event type")
	}
}

// OnConnectionChange implements stream.EventHandler.
func (s *Session) OnConnectionChange(connected bool) {
	s.publish(Update{Kind: UpdateConnection, Connected: connected})
}

// OnStreamError implements stream.EventHandler.
func (s *Session) OnStreamError(err error) {
	apperrors.LogError(s.logger, err, "Stream error", logrus.Fields{"conversation_id": s.opts.ConversationID})
	s.publish(Update{Kind: UpdateNotice, Err: err})
}

// refreshParticipants replaces the list wholesale; membership is never
// patched incrementally.
func (s *Session) refreshParticipants() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultHTTPTimeoutSec)*time.Second)
	defer cancel()

	participants, err := s.client.GetParticipants(ctx, s.opts.ConversationID)
	if err != nil {
		apperrors.LogWarn(s.logger, err, "Participant refresh failed")
		return
	}
	s.setParticipants(participants)
	s.publish(Update{Kind: UpdateParticipants})
}

func (s *Session) setParticipants(participants []models.Participant) {
	s.participantsMu.Lock()
	defer s.participantsMu.Unlock()
	s.participants = participants
}

func (s *Session) displayName(userID int64) string {
	s.participantsMu.RLock()
	defer s.participantsMu.RUnlock()
	for _, p := range s.participants {
		if p.User.ID == userID {
			return p.User.Username
		}
	}
	return fmt.Sprintf("user %d", userID)
}

// publish delivers an update without ever blocking the stream goroutine.
func (s *Session) publish(update Update) {
	select {
	case s.updates <- update:
	default:
		s.logger.WithField("kind", update.Kind).Debug("Dropping update, consumer is behind")
	}
}
