package models

import "encoding/json"

type EventType string

const (
	EventNewMessage EventType = "new_message"
	EventTyping     EventType = "typing"
	EventUserJoined EventType = "user_joined"
	EventUserLeft   EventType = "user_left"
)

// StreamEvent is a structured inbound frame on the conversation stream.
// The literal string "pong" is filtered before decoding reaches this type.
type StreamEvent struct {
	Type     EventType       `json:"type"`
	Data     json.RawMessage `json:"data,omitempty"`
	UserID   int64           `json:"user_id,omitempty"`
	IsTyping bool            `json:"is_typing,omitempty"`
}

// TypingFrame is the outbound typing indicator frame.
type TypingFrame struct {
	Type     EventType `json:"type"`
	IsTyping bool      `json:"is_typing"`
	UserID   int64     `json:"user_id"`
}
