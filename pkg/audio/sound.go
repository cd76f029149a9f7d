package audio

import (
	"context"
	"sync"

	apperrors "voxchat/internal/errors"
)

// Sound is one playable audio handle. Handles load asynchronously;
// IsLoaded reports readiness and stays false forever when loading failed.
type Sound interface {
	IsLoaded() bool
	Play() error
	Pause() error
	Release()
	SetOnComplete(fn func())
}

// Downloader fetches the raw audio bytes for a URL, typically the API
// client's authenticated media fetch.
type Downloader func(ctx context.Context, url string) ([]byte, error)

// Factory constructs a handle for a URL. Injected so tests can substitute
// fakes for the HTTP-backed implementation.
type Factory func(ctx context.Context, url string) Sound

// bufferedSound keeps the downloaded bytes in memory until released. There
// is no decoder behind it; playback state is what the controller and its
// caller observe.
type bufferedSound struct {
	mu         sync.Mutex
	data       []byte
	loaded     bool
	playing    bool
	released   bool
	onComplete func()
}

// NewBufferedSound starts downloading the URL in the background. A failed
// download leaves the handle permanently unloaded; the controller's
// readiness poll turns that into a media error.
func NewBufferedSound(ctx context.Context, url string, download Downloader) Sound {
	s := &bufferedSound{}
	go func() {
		data, err := download(ctx, url)
		s.mu.Lock()
		defer s.mu.Unlock()
		if err != nil || s.released {
			return
		}
		s.data = data
		s.loaded = true
	}()
	return s
}

func (s *bufferedSound) IsLoaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded && !s.released
}

func (s *bufferedSound) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded || s.released {
		return apperrors.New(apperrors.ErrCodeMediaLoad, "sound is not loaded")
	}
	s.playing = true
	return nil
}

func (s *bufferedSound) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = false
	return nil
}

func (s *bufferedSound) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
	s.loaded = false
	s.playing = false
	s.data = nil
}

func (s *bufferedSound) SetOnComplete(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onComplete = fn
}

// Complete signals natural end of playback to the registered callback.
func (s *bufferedSound) Complete() {
	s.mu.Lock()
	s.playing = false
	fn := s.onComplete
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}
