package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	apperrors "voxchat/internal/errors"
	"voxchat/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(client *mockClient) *Session {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return New(Options{
		ConversationID: 5,
		Identity:       Identity{UserID: 1, Username: "alice", Token: "tok"},
		Client:         client,
		Logger:         logger,
		TypingIdle:     time.Hour,
	})
}

func drainUpdates(s *Session) []Update {
	var out []Update
	for {
		select {
		case u := <-s.Updates():
			out = append(out, u)
		default:
			return out
		}
	}
}

func TestSession_SendTextOptimisticThenConfirm(t *testing.T) {
	client := &mockClient{}
	s := newTestSession(client)
	defer s.Close()

	require.NoError(t, s.SendText(context.Background(), "hello"))

	messages := s.Messages()
	require.Len(t, messages, 1)
	assert.True(t, messages[0].IsTemporary)

	// Server echo arrives over the stream.
	data, _ := json.Marshal(models.Message{
		ID: 1000, SenderID: 1, ContentType: models.TextMessage, Content: "hello",
	})
	s.OnEvent(models.StreamEvent{Type: models.EventNewMessage, Data: data})

	messages = s.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, int64(1000), messages[0].ID)
	assert.False(t, messages[0].IsTemporary)
}

func TestSession_SendTextFailureRollsBackAndRestoresDraft(t *testing.T) {
	client := &mockClient{
		sendTextFn: func(ctx context.Context, conversationID int64, content string) (*models.Message, error) {
			return nil, apperrors.New(apperrors.ErrCodeChatAPI, "send failed")
		},
	}
	s := newTestSession(client)
	defer s.Close()

	err := s.SendText(context.Background(), "doomed")
	require.Error(t, err)
	assert.Empty(t, s.Messages())

	var notice *Update
	for _, u := range drainUpdates(s) {
		if u.Kind == UpdateNotice {
			notice = &u
			break
		}
	}
	require.NotNil(t, notice)
	assert.Equal(t, "doomed", notice.ComposerText)
	assert.Error(t, notice.Err)
}

func TestSession_SendTextEmptyRejected(t *testing.T) {
	client := &mockClient{}
	s := newTestSession(client)
	defer s.Close()

	err := s.SendText(context.Background(), "   ")
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))
	assert.Empty(t, s.Messages())
}

func TestSession_TypingEventUpdates(t *testing.T) {
	client := &mockClient{
		getParticipantsFn: func(ctx context.Context, conversationID int64) ([]models.Participant, error) {
			return []models.Participant{
				{User: models.User{ID: 1, Username: "alice"}},
				{User: models.User{ID: 2, Username: "bob"}},
			}, nil
		},
	}
	s := newTestSession(client)
	defer s.Close()
	s.refreshParticipants()

	s.OnEvent(models.StreamEvent{Type: models.EventTyping, UserID: 2, IsTyping: true})
	assert.Equal(t, []string{"bob"}, s.TypingUsers())

	// Self echoes are ignored.
	s.OnEvent(models.StreamEvent{Type: models.EventTyping, UserID: 1, IsTyping: true})
	assert.Equal(t, []string{"bob"}, s.TypingUsers())

	s.OnEvent(models.StreamEvent{Type: models.EventTyping, UserID: 2, IsTyping: false})
	assert.Empty(t, s.TypingUsers())
}

func TestSession_JoinEventRefreshesParticipants(t *testing.T) {
	calls := make(chan struct{}, 4)
	client := &mockClient{
		getParticipantsFn: func(ctx context.Context, conversationID int64) ([]models.Participant, error) {
			calls <- struct{}{}
			return []models.Participant{{User: models.User{ID: 9, Username: "newcomer"}}}, nil
		},
	}
	s := newTestSession(client)
	defer s.Close()

	s.OnEvent(models.StreamEvent{Type: models.EventUserJoined, UserID: 9})

	select {
	case <-calls:
	case <-time.After(time.Second):
		t.Fatal("participant refetch did not happen")
	}

	require.Eventually(t, func() bool {
		p := s.Participants()
		return len(p) == 1 && p[0].User.Username == "newcomer"
	}, time.Second, 5*time.Millisecond)
}

func TestSession_MalformedNewMessageDropped(t *testing.T) {
	client := &mockClient{}
	s := newTestSession(client)
	defer s.Close()

	s.OnEvent(models.StreamEvent{Type: models.EventNewMessage, Data: []byte(`{broken`)})
	assert.Empty(t, s.Messages())
}

func TestSession_DuplicateNewMessageIdempotent(t *testing.T) {
	client := &mockClient{}
	s := newTestSession(client)
	defer s.Close()

	data, _ := json.Marshal(models.Message{ID: 7, SenderID: 2, ContentType: models.TextMessage, Content: "hi"})
	s.OnEvent(models.StreamEvent{Type: models.EventNewMessage, Data: data})
	s.OnEvent(models.StreamEvent{Type: models.EventNewMessage, Data: data})

	assert.Len(t, s.Messages(), 1)
}

func TestSession_StreamErrorSurfacesAsNotice(t *testing.T) {
	client := &mockClient{}
	s := newTestSession(client)
	defer s.Close()

	s.OnStreamError(apperrors.New(apperrors.ErrCodeAuthentication, "token rejected"))

	updates := drainUpdates(s)
	require.Len(t, updates, 1)
	assert.Equal(t, UpdateNotice, updates[0].Kind)
	assert.Equal(t, apperrors.ErrCodeAuthentication, apperrors.GetCode(updates[0].Err))
}

func TestSession_CloseIdempotent(t *testing.T) {
	client := &mockClient{}
	s := newTestSession(client)

	s.Close()
	s.Close()
}

func TestSession_ToggleTranslation(t *testing.T) {
	client := &mockClient{}
	s := newTestSession(client)
	defer s.Close()

	data, _ := json.Marshal(models.Message{ID: 3, SenderID: 2, ContentType: models.TextMessage, Content: "hola"})
	s.OnEvent(models.StreamEvent{Type: models.EventNewMessage, Data: data})

	require.NoError(t, s.ToggleTranslation(context.Background(), 3))
	assert.True(t, s.ShowingTranslation(3))

	messages := s.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "translated", messages[0].TranslatedContent)
}

func TestSession_PlayAudioUnknownMessage(t *testing.T) {
	client := &mockClient{}
	s := newTestSession(client)
	defer s.Close()

	err := s.PlayAudio(context.Background(), 404)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeMediaLoad, apperrors.GetCode(err))
}

func TestSession_ConnectionChangePublished(t *testing.T) {
	client := &mockClient{}
	s := newTestSession(client)
	defer s.Close()

	s.OnConnectionChange(true)
	updates := drainUpdates(s)
	require.Len(t, updates, 1)
	assert.Equal(t, UpdateConnection, updates[0].Kind)
	assert.True(t, updates[0].Connected)
}
