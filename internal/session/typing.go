package session

import (
	"sort"
	"sync"
	"time"

	"voxchat/internal/constants"
)

// TypingAggregator tracks who is typing. Remote indicators are a set keyed
// by user id; the local side sends is_typing=true on every keystroke and
// arms an idle timer that emits exactly one is_typing=false.
type TypingAggregator struct {
	selfID  int64
	idle    time.Duration
	send    func(isTyping bool) error
	resolve func(userID int64) string

	mu          sync.Mutex
	remote      map[int64]struct{}
	localTyping bool
	idleTimer   *time.Timer
}

func NewTypingAggregator(selfID int64, idle time.Duration, send func(bool) error, resolve func(int64) string) *TypingAggregator {
	if idle <= 0 {
		idle = time.Duration(constants.DefaultTypingIdleMs) * time.Millisecond
	}
	return &TypingAggregator{
		selfID:  selfID,
		idle:    idle,
		send:    send,
		resolve: resolve,
		remote:  map[int64]struct{}{},
	}
}

// HandleRemote applies a remote typing indicator. Echoes of the local
// user's own frames are ignored.
func (t *TypingAggregator) HandleRemote(userID int64, isTyping bool) {
	if userID == t.selfID {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if isTyping {
		t.remote[userID] = struct{}{}
	} else {
		delete(t.remote, userID)
	}
}

// TypingUsers returns the display names currently typing, sorted for
// stable rendering.
func (t *TypingAggregator) TypingUsers() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	names := make([]string, 0, len(t.remote))
	for id := range t.remote {
		names = append(names, t.resolve(id))
	}
	sort.Strings(names)
	return names
}

// Keystroke reports local typing activity: sends is_typing=true and
// (re)arms the idle timer.
func (t *TypingAggregator) Keystroke() {
	t.mu.Lock()
	t.localTyping = true
	if t.idleTimer != nil {
		t.idleTimer.Stop()
	}
	t.idleTimer = time.AfterFunc(t.idle, t.idleExpired)
	t.mu.Unlock()

	_ = t.send(true)
}

func (t *TypingAggregator) idleExpired() {
	t.mu.Lock()
	if !t.localTyping {
		t.mu.Unlock()
		return
	}
	t.localTyping = false
	t.idleTimer = nil
	t.mu.Unlock()

	_ = t.send(false)
}

// Blur emits the stop indicator immediately, if one is pending.
func (t *TypingAggregator) Blur() {
	t.mu.Lock()
	if t.idleTimer != nil {
		t.idleTimer.Stop()
		t.idleTimer = nil
	}
	wasTyping := t.localTyping
	t.localTyping = false
	t.mu.Unlock()

	if wasTyping {
		_ = t.send(false)
	}
}

// Stop tears the aggregator down. Equivalent to Blur.
func (t *TypingAggregator) Stop() {
	t.Blur()
}
