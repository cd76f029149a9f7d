package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"voxchat/internal/constants"
	apperrors "voxchat/internal/errors"
	"voxchat/internal/metrics"

	"github.com/sirupsen/logrus"
)

// TranslatedKey derives the handle key for a message's translated audio,
// kept distinct from the original audio's key.
func TranslatedKey(messageID int64) string {
	return fmt.Sprintf("translated_%d", messageID)
}

// Key derives the handle key for a message's original audio.
func Key(messageID int64) string {
	return fmt.Sprintf("%d", messageID)
}

// Controller owns every audio handle for a session and enforces single
// playback: at most one key is playing at any time. Handles are cached by
// key and reused while they stay loaded.
type Controller struct {
	factory      Factory
	logger       *logrus.Logger
	pollAttempts int
	pollInterval time.Duration

	// playMu serializes whole Play call sequences so the pause, readiness
	// poll, and start of one call cannot interleave with another's. mu
	// guards the handle cache and playing key for the short accessors.
	playMu sync.Mutex

	mu         sync.Mutex
	handles    map[string]Sound
	playingKey string
}

func NewController(factory Factory, logger *logrus.Logger) *Controller {
	return NewControllerWithPolling(factory, logger,
		constants.DefaultAudioLoadPollAttempts,
		time.Duration(constants.DefaultAudioLoadPollIntervalMs)*time.Millisecond)
}

func NewControllerWithPolling(factory Factory, logger *logrus.Logger, pollAttempts int, pollInterval time.Duration) *Controller {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	return &Controller{
		factory:      factory,
		logger:       logger,
		pollAttempts: pollAttempts,
		pollInterval: pollInterval,
		handles:      map[string]Sound{},
	}
}

// Play starts the audio for key, pausing whatever else is playing first.
// Calling it again for the key currently playing toggles pause. A cached
// handle that reports unloaded is discarded and reconstructed exactly once;
// a handle that never becomes ready within the poll budget is discarded
// with a media error.
func (c *Controller) Play(ctx context.Context, key, url string) error {
	c.playMu.Lock()
	defer c.playMu.Unlock()

	c.mu.Lock()

	if c.playingKey == key {
		handle := c.handles[key]
		c.playingKey = ""
		c.mu.Unlock()
		if handle != nil {
			_ = handle.Pause()
		}
		return nil
	}

	if c.playingKey != "" {
		if current := c.handles[c.playingKey]; current != nil {
			_ = current.Pause()
		}
		c.playingKey = ""
	}

	handle, cached := c.handles[key]
	if cached && !handle.IsLoaded() {
		// Stale handle: discard and rebuild once.
		c.logger.WithField("audio_key", key).Debug("Discarding stale audio handle")
		handle.Release()
		delete(c.handles, key)
		cached = false
	}

	if !cached {
		handle = c.factory(ctx, url)
		c.handles[key] = handle
	}
	c.mu.Unlock()

	if !cached {
		if err := c.awaitLoaded(ctx, handle); err != nil {
			c.mu.Lock()
			handle.Release()
			if c.handles[key] == handle {
				delete(c.handles, key)
			}
			c.mu.Unlock()
			metrics.IncrementCounter(metrics.PlaybackFailures, nil)
			return apperrors.NewMediaError(key, err)
		}
		handle.SetOnComplete(func() { c.completed(key, handle) })
	}

	if err := handle.Play(); err != nil {
		metrics.IncrementCounter(metrics.PlaybackFailures, nil)
		return apperrors.NewMediaError(key, err)
	}

	c.mu.Lock()
	c.playingKey = key
	c.mu.Unlock()

	metrics.IncrementCounter(metrics.PlaybackStarts, nil)
	return nil
}

func (c *Controller) awaitLoaded(ctx context.Context, handle Sound) error {
	for i := 0; i < c.pollAttempts; i++ {
		if handle.IsLoaded() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
	return fmt.Errorf("audio did not become ready after %d polls", c.pollAttempts)
}

// completed handles natural end of playback for a key. The finished handle
// is released and dropped from the cache so the buffered bytes do not outlive
// the playback; a replay constructs a fresh handle and re-fetches. The handle
// identity check keeps a late callback from a discarded handle from releasing
// its replacement.
func (c *Controller) completed(key string, handle Sound) {
	c.mu.Lock()
	if c.playingKey == key {
		c.playingKey = ""
	}
	if c.handles[key] == handle {
		delete(c.handles, key)
	}
	c.mu.Unlock()

	handle.Release()
}

// Playing returns the key currently playing, empty when none.
func (c *Controller) Playing() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playingKey
}

// StopAll pauses playback without releasing any handle.
func (c *Controller) StopAll() {
	c.mu.Lock()
	key := c.playingKey
	c.playingKey = ""
	handle := c.handles[key]
	c.mu.Unlock()

	if handle != nil {
		_ = handle.Pause()
	}
}

// Teardown releases every handle. The controller is not reusable after.
func (c *Controller) Teardown() {
	c.mu.Lock()
	handles := c.handles
	c.handles = map[string]Sound{}
	c.playingKey = ""
	c.mu.Unlock()

	for _, handle := range handles {
		handle.Release()
	}
}
