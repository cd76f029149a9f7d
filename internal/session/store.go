package session

import (
	"sync"
	"time"

	"voxchat/internal/metrics"
	"voxchat/internal/models"
)

// Store is the per-conversation message list. It reconciles optimistic
// local entries against confirmed server messages arriving over the
// stream. Messages append in arrival order and are never re-sorted.
type Store struct {
	mu       sync.Mutex
	messages []*models.Message
}

func NewStore() *Store {
	return &Store{}
}

// LoadInitial replaces the list with the conversation history fetch.
func (s *Store) LoadInitial(messages []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = make([]*models.Message, len(messages))
	for i := range messages {
		m := messages[i]
		s.messages[i] = &m
	}
}

// AppendOptimistic adds a locally sent message before the server confirms
// it. The id is the local wall clock in milliseconds, which cannot collide
// with the server's id sequence in practice.
func (s *Store) AppendOptimistic(senderID int64, contentType models.ContentType, content string) *models.Message {
	now := time.Now()
	msg := &models.Message{
		ID:          now.UnixMilli(),
		SenderID:    senderID,
		ContentType: contentType,
		Content:     content,
		CreatedAt:   now,
		IsTemporary: true,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return msg
}

// ReconcileIncoming applies a confirmed server message. Delivery of an id
// already present is idempotent. At most one matching optimistic entry is
// removed before the confirmed message appends at the tail.
func (s *Store) ReconcileIncoming(incoming models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.messages {
		if !existing.IsTemporary && existing.ID == incoming.ID {
			return false
		}
	}

	for i, existing := range s.messages {
		if incoming.MatchesOptimistic(existing) {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			metrics.IncrementCounter(metrics.MessagesReconciled, nil)
			break
		}
	}

	m := incoming
	s.messages = append(s.messages, &m)
	return true
}

// RemoveOptimistic drops a temporary entry, used when the send fails.
func (s *Store) RemoveOptimistic(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.messages {
		if existing.IsTemporary && existing.ID == id {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return
		}
	}
}

// AttachTranslation caches the translated text on the message and clears
// its loading flag.
func (s *Store) AttachTranslation(messageID int64, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg := s.findLocked(messageID); msg != nil {
		msg.TranslatedContent = text
		msg.IsLoadingTranslation = false
	}
}

// AttachAudioTranslation caches the translated audio URL on the message and
// clears its loading flag.
func (s *Store) AttachAudioTranslation(messageID int64, audioURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg := s.findLocked(messageID); msg != nil {
		msg.TranslatedAudioURL = audioURL
		msg.IsLoadingAudioTranslation = false
	}
}

func (s *Store) SetLoadingTranslation(messageID int64, loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg := s.findLocked(messageID); msg != nil {
		msg.IsLoadingTranslation = loading
	}
}

func (s *Store) SetLoadingAudioTranslation(messageID int64, loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg := s.findLocked(messageID); msg != nil {
		msg.IsLoadingAudioTranslation = loading
	}
}

// Get returns a copy of one message.
func (s *Store) Get(messageID int64) (models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg := s.findLocked(messageID); msg != nil {
		return *msg, true
	}
	return models.Message{}, false
}

// Messages returns a snapshot of the list in arrival order.
func (s *Store) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Message, len(s.messages))
	for i, msg := range s.messages {
		out[i] = *msg
	}
	return out
}

// Len returns the number of messages.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// findLocked must be called with s.mu held.
func (s *Store) findLocked(messageID int64) *models.Message {
	for _, msg := range s.messages {
		if msg.ID == messageID {
			return msg
		}
	}
	return nil
}
