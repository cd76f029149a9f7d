package models

import (
	"strings"
	"time"
)

type ContentType string

const (
	TextMessage  ContentType = "text"
	AudioMessage ContentType = "audio"
)

// User is the backend user record as embedded in participants and
// message sender summaries.
type User struct {
	ID              int64  `json:"id"`
	Username        string `json:"username"`
	Email           string `json:"email,omitempty"`
	PrimaryLanguage string `json:"primary_language,omitempty"`
}

// Participant is a conversation membership record. Participants are never
// mutated locally; the list is always replaced wholesale from the backend.
type Participant struct {
	User User `json:"user"`
}

// Conversation is a conversation summary from the listing endpoints.
type Conversation struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Message is one chat item. Server messages carry a server-assigned integer
// id; an optimistic message uses a locally generated id (wall-clock millis)
// and IsTemporary=true until the server echo arrives over the stream.
//
// TranslatedContent and TranslatedAudioURL are populated lazily on first
// switch-to-translated interaction and cached on the record. The loading
// flags are transient UI state and are never persisted or serialized.
type Message struct {
	ID             int64       `json:"id"`
	ConversationID int64       `json:"conversation_id,omitempty"`
	SenderID       int64       `json:"sender_id"`
	Sender         *User       `json:"sender,omitempty"`
	ContentType    ContentType `json:"content_type"`
	Content        string      `json:"content"`
	MediaURL       string      `json:"media_url,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	IsRead         bool        `json:"is_read,omitempty"`

	IsTemporary               bool   `json:"-"`
	TranslatedContent         string `json:"-"`
	TranslatedAudioURL        string `json:"-"`
	IsLoadingTranslation      bool   `json:"-"`
	IsLoadingAudioTranslation bool   `json:"-"`
}

// MatchesOptimistic reports whether m (a confirmed server message) settles
// the given optimistic entry: same sender and content type, and for text the
// trimmed bodies must be equal. This is a deliberately loose idempotency key;
// two identical texts sent back to back before the first confirmation can
// match the wrong entry. Known limitation, kept as designed.
func (m *Message) MatchesOptimistic(opt *Message) bool {
	if !opt.IsTemporary || opt.SenderID != m.SenderID {
		return false
	}
	if m.ContentType != opt.ContentType {
		return false
	}
	if m.ContentType == TextMessage {
		return strings.TrimSpace(m.Content) == strings.TrimSpace(opt.Content)
	}
	return m.ContentType == AudioMessage
}
