package api

import "voxchat/internal/models"

// LoginResponse is the token grant returned by the auth endpoints.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	UserID      int64  `json:"user_id"`
	Username    string `json:"username"`
}

// RegisterRequest is the account creation payload.
type RegisterRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	PrimaryLanguage string `json:"primary_language"`
	Password        string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type createConversationRequest struct {
	Name string `json:"name"`
}

type addParticipantRequest struct {
	ConversationID int64 `json:"conversation_id"`
	UserID         int64 `json:"user_id"`
}

// TranslationResult is the decoded translation for one message. Exactly one
// of Text or AudioURL is set; IsAudio distinguishes them for callers that
// attach the result to the right message field.
type TranslationResult struct {
	Text     string
	AudioURL string
	IsAudio  bool
}

// translationPayload covers every response shape the translation endpoint is
// known to produce. Decoding priority: direct text fields, then a direct
// audio record, then a nested translated_message object.
type translationPayload struct {
	TranslatedContent string `json:"translated_content"`
	TranslatedText    string `json:"translated_text"`
	Translation       string `json:"translation"`
	ContentType       string `json:"content_type"`
	MediaURL          string `json:"media_url"`
	TranslatedMessage *struct {
		Content     string `json:"content"`
		ContentType string `json:"content_type"`
		MediaURL    string `json:"media_url"`
	} `json:"translated_message"`
}

// messagesEnvelope is the wrapped form of the message listing response.
type messagesEnvelope struct {
	Messages []models.Message `json:"messages"`
}
