package session

import (
	"context"
	"sync"

	apperrors "voxchat/internal/errors"
	"voxchat/pkg/api"

	"github.com/sirupsen/logrus"
)

// Translations holds the per-message display switches between original and
// translated content, fetching translations lazily on the first flip.
// Results cache on the message record; a failed fetch reverts the switch so
// the next toggle retries, and never corrupts an already cached value.
type Translations struct {
	client api.Client
	store  *Store
	logger *logrus.Logger

	mu         sync.Mutex
	textShown  map[int64]bool
	audioShown map[int64]bool
	fetching   map[int64]bool
}

func NewTranslations(client api.Client, store *Store, logger *logrus.Logger) *Translations {
	return &Translations{
		client:     client,
		store:      store,
		logger:     logger,
		textShown:  map[int64]bool{},
		audioShown: map[int64]bool{},
		fetching:   map[int64]bool{},
	}
}

// ShowingText reports whether the message renders its translated text.
func (t *Translations) ShowingText(messageID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.textShown[messageID]
}

// ShowingAudio reports whether the message plays its translated audio.
func (t *Translations) ShowingAudio(messageID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.audioShown[messageID]
}

// ToggleText flips between original and translated text for one message,
// fetching the translation on the first flip.
func (t *Translations) ToggleText(ctx context.Context, messageID int64) error {
	return t.toggle(ctx, messageID, false)
}

// ToggleAudio flips between original and translated audio for one message.
func (t *Translations) ToggleAudio(ctx context.Context, messageID int64) error {
	return t.toggle(ctx, messageID, true)
}

func (t *Translations) toggle(ctx context.Context, messageID int64, audio bool) error {
	shownMap := t.textShown
	if audio {
		shownMap = t.audioShown
	}

	t.mu.Lock()
	shown := !shownMap[messageID]
	shownMap[messageID] = shown
	needFetch := false
	if shown && !t.fetching[messageID] {
		if msg, ok := t.store.Get(messageID); ok {
			if audio {
				needFetch = msg.TranslatedAudioURL == ""
			} else {
				needFetch = msg.TranslatedContent == ""
			}
		}
	}
	if needFetch {
		t.fetching[messageID] = true
	}
	t.mu.Unlock()

	if !needFetch {
		return nil
	}

	if audio {
		t.store.SetLoadingAudioTranslation(messageID, true)
	} else {
		t.store.SetLoadingTranslation(messageID, true)
	}

	result, err := t.client.GetTranslation(ctx, messageID)

	t.mu.Lock()
	delete(t.fetching, messageID)
	if err != nil {
		// Revert so the next toggle retries; nothing auto-retries.
		shownMap[messageID] = false
	}
	t.mu.Unlock()

	if err != nil {
		if audio {
			t.store.SetLoadingAudioTranslation(messageID, false)
		} else {
			t.store.SetLoadingTranslation(messageID, false)
		}
		apperrors.LogWarn(t.logger, err, "Translation fetch failed", logrus.Fields{"message_id": messageID})
		if apperrors.GetCode(err) == apperrors.ErrCodeInternalError {
			return apperrors.Wrap(err, apperrors.ErrCodeTranslationAPI, "translation fetch failed").
				WithUserMessage("Translation unavailable")
		}
		return err
	}

	// Last write wins when duplicate results race.
	if result.IsAudio {
		t.store.AttachAudioTranslation(messageID, result.AudioURL)
		t.store.SetLoadingTranslation(messageID, false)
	} else {
		t.store.AttachTranslation(messageID, result.Text)
		t.store.SetLoadingAudioTranslation(messageID, false)
	}
	return nil
}
