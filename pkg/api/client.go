package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	apperrors "voxchat/internal/errors"
	"voxchat/internal/metrics"
	"voxchat/internal/models"
	"voxchat/internal/tracing"

	"github.com/sirupsen/logrus"
)

// allowedAudioExtensions are the upload formats the backend accepts.
var allowedAudioExtensions = map[string]bool{
	".wav": true,
	".mp3": true,
	".m4a": true,
	".ogg": true,
}

type Client interface {
	Login(ctx context.Context, username, password string) (*LoginResponse, error)
	Register(ctx context.Context, req RegisterRequest) error

	GetConversations(ctx context.Context) ([]models.Conversation, error)
	GetAllConversations(ctx context.Context) ([]models.Conversation, error)
	CreateConversation(ctx context.Context, name string) (*models.Conversation, error)
	JoinConversation(ctx context.Context, conversationID int64) error
	GetParticipants(ctx context.Context, conversationID int64) ([]models.Participant, error)
	AddParticipant(ctx context.Context, conversationID, userID int64) error
	SearchUser(ctx context.Context, username string) (*models.User, error)

	GetMessages(ctx context.Context, conversationID int64) ([]models.Message, error)
	SendTextMessage(ctx context.Context, conversationID int64, content string) (*models.Message, error)
	SendAudioMessage(ctx context.Context, conversationID int64, filename string, audio io.Reader) (*models.Message, error)

	GetTranslation(ctx context.Context, messageID int64) (*TranslationResult, error)

	UploadReferenceAudio(ctx context.Context, filename string, audio io.Reader) error
	UploadMessageAudio(ctx context.Context, conversationID int64, filename string, audio io.Reader) (*models.Message, error)
	DownloadAudio(ctx context.Context, rawURL string) ([]byte, error)

	ResolveMediaURL(raw string) string
	SetToken(token string)
	Token() string
	BaseURL() string
}

type restClient struct {
	baseURL   string
	apiPrefix string
	client    *http.Client
	logger    *logrus.Logger

	mu    sync.RWMutex
	token string
}

func NewClient(baseURL string, httpClient *http.Client) Client {
	return NewClientWithLogger(baseURL, httpClient, nil)
}

func NewClientWithLogger(baseURL string, httpClient *http.Client, logger *logrus.Logger) Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}

	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}

	baseURL = strings.TrimSuffix(baseURL, "/")

	return &restClient{
		baseURL:   baseURL,
		apiPrefix: "/api/v1",
		client:    httpClient,
		logger:    logger,
	}
}

func (c *restClient) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *restClient) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *restClient) BaseURL() string {
	return c.baseURL
}

func (c *restClient) endpoint(path string) string {
	return c.baseURL + c.apiPrefix + path
}

// doJSON issues a request with the bearer credential and decodes a JSON
// response into out when out is non-nil. Non-2xx statuses map to the
// client error taxonomy.
func (c *restClient) doJSON(ctx context.Context, method, endpoint string, body io.Reader, contentType string, out interface{}) error {
	ctx, span := tracing.StartSpan(ctx, "api."+method+" "+endpoint)
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.RecordTimer(metrics.APIRequestTimer, time.Since(start), map[string]string{"method": method})
	}()

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		tracing.RecordError(ctx, err)
		return apperrors.NewConnectionError(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.WithFields(logrus.Fields{
			"endpoint": endpoint,
			"status":   resp.StatusCode,
			"body":     string(bodyBytes),
		}).Debug("Chat API returned error status")
		apiErr := apperrors.NewAPIError(endpoint, resp.StatusCode, fmt.Errorf("%s", strings.TrimSpace(string(bodyBytes))))
		tracing.RecordError(ctx, apiErr)
		return apiErr
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *restClient) postJSON(ctx context.Context, path string, payload interface{}, out interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.doJSON(ctx, http.MethodPost, c.endpoint(path), bytes.NewReader(data), "application/json", out)
}

func (c *restClient) getJSON(ctx context.Context, path string, out interface{}) error {
	return c.doJSON(ctx, http.MethodGet, c.endpoint(path), nil, "", out)
}

func (c *restClient) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, apperrors.NewValidationError("credentials", "username and password are required")
	}

	var result LoginResponse
	if err := c.postJSON(ctx, "/users/login", loginRequest{Username: username, Password: password}, &result); err != nil {
		return nil, err
	}

	c.SetToken(result.AccessToken)
	c.logger.WithField("user_id", result.UserID).Debug("Logged in")
	return &result, nil
}

func (c *restClient) Register(ctx context.Context, req RegisterRequest) error {
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		return apperrors.NewValidationError("credentials", "username and password are required")
	}
	return c.postJSON(ctx, "/users/register", req, nil)
}

func (c *restClient) GetConversations(ctx context.Context) ([]models.Conversation, error) {
	var conversations []models.Conversation
	if err := c.getJSON(ctx, "/conversations", &conversations); err != nil {
		return nil, err
	}
	return conversations, nil
}

func (c *restClient) GetAllConversations(ctx context.Context) ([]models.Conversation, error) {
	var conversations []models.Conversation
	if err := c.getJSON(ctx, "/conversations/all", &conversations); err != nil {
		return nil, err
	}
	return conversations, nil
}

func (c *restClient) CreateConversation(ctx context.Context, name string) (*models.Conversation, error) {
	if strings.TrimSpace(name) == "" {
		return nil, apperrors.NewValidationError("name", "conversation name cannot be empty")
	}

	var conversation models.Conversation
	if err := c.postJSON(ctx, "/conversations", createConversationRequest{Name: name}, &conversation); err != nil {
		return nil, err
	}
	return &conversation, nil
}

func (c *restClient) JoinConversation(ctx context.Context, conversationID int64) error {
	return c.postJSON(ctx, fmt.Sprintf("/conversations/%d/join", conversationID), struct{}{}, nil)
}

func (c *restClient) GetParticipants(ctx context.Context, conversationID int64) ([]models.Participant, error) {
	var participants []models.Participant
	if err := c.getJSON(ctx, fmt.Sprintf("/participants/conversation/%d", conversationID), &participants); err != nil {
		return nil, err
	}
	return participants, nil
}

func (c *restClient) AddParticipant(ctx context.Context, conversationID, userID int64) error {
	return c.postJSON(ctx, "/participants", addParticipantRequest{ConversationID: conversationID, UserID: userID}, nil)
}

func (c *restClient) SearchUser(ctx context.Context, username string) (*models.User, error) {
	if strings.TrimSpace(username) == "" {
		return nil, apperrors.NewValidationError("username", "username cannot be empty")
	}

	var user models.User
	if err := c.getJSON(ctx, "/users/search/"+url.PathEscape(username), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetMessages tolerates both response shapes the backend has shipped: a bare
// array and an object wrapping the array under "messages".
func (c *restClient) GetMessages(ctx context.Context, conversationID int64) ([]models.Message, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, fmt.Sprintf("/messages/conversation/%d", conversationID), &raw); err != nil {
		return nil, err
	}

	var list []models.Message
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var envelope messagesEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode messages response: %w", err)
	}
	return envelope.Messages, nil
}

func (c *restClient) SendTextMessage(ctx context.Context, conversationID int64, content string) (*models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperrors.NewValidationError("content", "message text cannot be empty")
	}

	fields := map[string]string{
		"conversation_id": fmt.Sprintf("%d", conversationID),
		"content_type":    string(models.TextMessage),
		"content":         content,
	}

	var message models.Message
	if err := c.postMultipart(ctx, "/messages/", fields, "", "", nil, &message); err != nil {
		metrics.IncrementCounter(metrics.SendFailures, nil)
		return nil, err
	}

	metrics.IncrementCounter(metrics.MessagesSent, map[string]string{"content_type": "text"})
	return &message, nil
}

func (c *restClient) SendAudioMessage(ctx context.Context, conversationID int64, filename string, audio io.Reader) (*models.Message, error) {
	if err := validateAudioFilename(filename); err != nil {
		return nil, err
	}

	fields := map[string]string{
		"conversation_id": fmt.Sprintf("%d", conversationID),
		"content_type":    string(models.AudioMessage),
	}

	var message models.Message
	if err := c.postMultipart(ctx, "/messages/", fields, "audio_file", filename, audio, &message); err != nil {
		metrics.IncrementCounter(metrics.SendFailures, nil)
		return nil, err
	}

	metrics.IncrementCounter(metrics.MessagesSent, map[string]string{"content_type": "audio"})
	return &message, nil
}

// GetTranslation decodes the translation endpoint's tagged-union response.
// Shapes are tried in priority order; a response that matches none of them
// is an error, never a silent empty translation.
func (c *restClient) GetTranslation(ctx context.Context, messageID int64) (*TranslationResult, error) {
	metrics.IncrementCounter(metrics.TranslationFetches, nil)

	var payload translationPayload
	if err := c.getJSON(ctx, fmt.Sprintf("/translations/message/%d", messageID), &payload); err != nil {
		return nil, err
	}

	if text := firstNonEmpty(payload.TranslatedContent, payload.TranslatedText, payload.Translation); text != "" {
		return &TranslationResult{Text: text}, nil
	}

	if strings.EqualFold(payload.ContentType, string(models.AudioMessage)) && payload.MediaURL != "" {
		return &TranslationResult{AudioURL: c.ResolveMediaURL(payload.MediaURL), IsAudio: true}, nil
	}

	if nested := payload.TranslatedMessage; nested != nil {
		if strings.EqualFold(nested.ContentType, string(models.AudioMessage)) && nested.MediaURL != "" {
			return &TranslationResult{AudioURL: c.ResolveMediaURL(nested.MediaURL), IsAudio: true}, nil
		}
		if nested.Content != "" {
			return &TranslationResult{Text: nested.Content}, nil
		}
	}

	return nil, apperrors.New(apperrors.ErrCodeTranslationAPI, "translation response matched no known shape").
		WithContext("message_id", messageID).
		WithUserMessage("Translation unavailable")
}

func (c *restClient) UploadReferenceAudio(ctx context.Context, filename string, audio io.Reader) error {
	if err := validateAudioFilename(filename); err != nil {
		return err
	}
	return c.postMultipart(ctx, "/audio/upload-reference-audio", nil, "audio_file", filename, audio, nil)
}

func (c *restClient) UploadMessageAudio(ctx context.Context, conversationID int64, filename string, audio io.Reader) (*models.Message, error) {
	if err := validateAudioFilename(filename); err != nil {
		return nil, err
	}

	fields := map[string]string{
		"conversation_id": fmt.Sprintf("%d", conversationID),
	}

	var message models.Message
	if err := c.postMultipart(ctx, "/audio/upload-message-audio", fields, "audio_file", filename, audio, &message); err != nil {
		return nil, err
	}
	return &message, nil
}

// DownloadAudio fetches media bytes with the bearer credential. The URL may
// be relative; it is resolved against the base URL first.
func (c *restClient) DownloadAudio(ctx context.Context, rawURL string) ([]byte, error) {
	endpoint := c.ResolveMediaURL(rawURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeMediaDownload, "audio download failed").
			WithContext("url", endpoint).
			WithUserMessage("Could not load audio")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.Wrap(fmt.Errorf("status %d", resp.StatusCode), apperrors.ErrCodeMediaDownload, "audio download failed").
			WithContext("url", endpoint).
			WithUserMessage("Could not load audio")
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeMediaDownload, "audio download truncated").
			WithContext("url", endpoint).
			WithUserMessage("Could not load audio")
	}
	return data, nil
}

// ResolveMediaURL normalizes a media reference from the backend. Absolute
// URLs pass through; paths under /api/ join the base URL directly; anything
// else is treated as a bare path and slash-joined.
func (c *restClient) ResolveMediaURL(raw string) string {
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	if strings.HasPrefix(raw, "/api/") {
		return c.baseURL + raw
	}
	return c.baseURL + "/" + strings.TrimPrefix(raw, "/")
}

func (c *restClient) postMultipart(ctx context.Context, path string, fields map[string]string, fileField, filename string, file io.Reader, out interface{}) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return fmt.Errorf("failed to write form field %s: %w", key, err)
		}
	}

	if fileField != "" && file != nil {
		part, err := writer.CreateFormFile(fileField, filepath.Base(filename))
		if err != nil {
			return fmt.Errorf("failed to create form file: %w", err)
		}
		if _, err := io.Copy(part, file); err != nil {
			return fmt.Errorf("failed to copy file data: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	return c.doJSON(ctx, http.MethodPost, c.endpoint(path), &buf, writer.FormDataContentType(), out)
}

func validateAudioFilename(filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedAudioExtensions[ext] {
		return apperrors.NewValidationError("audio_file", fmt.Sprintf("unsupported audio format %q", ext))
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
