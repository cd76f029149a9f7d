package session

import (
	"context"
	"io"
	"strings"
	"sync"

	"voxchat/internal/models"
	"voxchat/pkg/api"
)

// mockClient implements api.Client with overridable behavior per method.
type mockClient struct {
	mu sync.Mutex

	loginFn           func(ctx context.Context, username, password string) (*api.LoginResponse, error)
	getParticipantsFn func(ctx context.Context, conversationID int64) ([]models.Participant, error)
	getMessagesFn     func(ctx context.Context, conversationID int64) ([]models.Message, error)
	sendTextFn        func(ctx context.Context, conversationID int64, content string) (*models.Message, error)
	sendAudioFn       func(ctx context.Context, conversationID int64, filename string, audio io.Reader) (*models.Message, error)
	getTranslationFn  func(ctx context.Context, messageID int64) (*api.TranslationResult, error)
	downloadAudioFn   func(ctx context.Context, rawURL string) ([]byte, error)

	translationCalls int
}

func (m *mockClient) Login(ctx context.Context, username, password string) (*api.LoginResponse, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, username, password)
	}
	return &api.LoginResponse{AccessToken: "tok", UserID: 1, Username: username}, nil
}

func (m *mockClient) Register(ctx context.Context, req api.RegisterRequest) error { return nil }

func (m *mockClient) GetConversations(ctx context.Context) ([]models.Conversation, error) {
	return nil, nil
}

func (m *mockClient) GetAllConversations(ctx context.Context) ([]models.Conversation, error) {
	return nil, nil
}

func (m *mockClient) CreateConversation(ctx context.Context, name string) (*models.Conversation, error) {
	return &models.Conversation{ID: 1, Name: name}, nil
}

func (m *mockClient) JoinConversation(ctx context.Context, conversationID int64) error { return nil }

func (m *mockClient) GetParticipants(ctx context.Context, conversationID int64) ([]models.Participant, error) {
	if m.getParticipantsFn != nil {
		return m.getParticipantsFn(ctx, conversationID)
	}
	return nil, nil
}

func (m *mockClient) AddParticipant(ctx context.Context, conversationID, userID int64) error {
	return nil
}

func (m *mockClient) SearchUser(ctx context.Context, username string) (*models.User, error) {
	return nil, nil
}

func (m *mockClient) GetMessages(ctx context.Context, conversationID int64) ([]models.Message, error) {
	if m.getMessagesFn != nil {
		return m.getMessagesFn(ctx, conversationID)
	}
	return nil, nil
}

func (m *mockClient) SendTextMessage(ctx context.Context, conversationID int64, content string) (*models.Message, error) {
	if m.sendTextFn != nil {
		return m.sendTextFn(ctx, conversationID, content)
	}
	return &models.Message{ID: 1000, SenderID: 1, ContentType: models.TextMessage, Content: content}, nil
}

func (m *mockClient) SendAudioMessage(ctx context.Context, conversationID int64, filename string, audio io.Reader) (*models.Message, error) {
	if m.sendAudioFn != nil {
		return m.sendAudioFn(ctx, conversationID, filename, audio)
	}
	return &models.Message{ID: 1001, SenderID: 1, ContentType: models.AudioMessage}, nil
}

func (m *mockClient) GetTranslation(ctx context.Context, messageID int64) (*api.TranslationResult, error) {
	m.mu.Lock()
	m.translationCalls++
	m.mu.Unlock()
	if m.getTranslationFn != nil {
		return m.getTranslationFn(ctx, messageID)
	}
	return &api.TranslationResult{Text: "translated"}, nil
}

func (m *mockClient) UploadReferenceAudio(ctx context.Context, filename string, audio io.Reader) error {
	return nil
}

func (m *mockClient) UploadMessageAudio(ctx context.Context, conversationID int64, filename string, audio io.Reader) (*models.Message, error) {
	return nil, nil
}

func (m *mockClient) DownloadAudio(ctx context.Context, rawURL string) ([]byte, error) {
	if m.downloadAudioFn != nil {
		return m.downloadAudioFn(ctx, rawURL)
	}
	return []byte("audio"), nil
}

func (m *mockClient) ResolveMediaURL(raw string) string {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return "https://chat.example.com" + raw
}

func (m *mockClient) SetToken(token string) {}

func (m *mockClient) Token() string { return "tok" }

func (m *mockClient) BaseURL() string { return "https://chat.example.com" }

func (m *mockClient) translationCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.translationCalls
}
