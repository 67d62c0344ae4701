package service

import (
	"sort"
	"sync"
	"time"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/chatsync/pkg/constant"
)

// typingEntry is one remote user's typing state; the pointer identifies the arming
type typingEntry struct {
	timer Timer
}

// PresenceTracker keeps the online set and the expiring typing set
type PresenceTracker struct {
	clock   Clock
	timeout time.Duration

	mu       sync.Mutex
	selfId   string
	online   map[string]struct{}
	typing   map[string]*typingEntry
	onChange func()
}

// NewPresenceTracker creates a tracker. A non-positive timeout uses the default.
func NewPresenceTracker(clock Clock, typingTimeout time.Duration) *PresenceTracker {
	if clock == nil {
		clock = RealClock()
	}
	if typingTimeout <= 0 {
		typingTimeout = constant.DefaultTypingTimeout
	}
	return &PresenceTracker{
		clock:   clock,
		timeout: typingTimeout,
		online:  make(map[string]struct{}),
		typing:  make(map[string]*typingEntry),
	}
}

// SetCurrentUserId sets the local user, whose typing is never tracked
func (t *PresenceTracker) SetCurrentUserId(userId string) {
	t.mu.Lock()
	t.selfId = userId
	delete(t.typing, userId)
	t.mu.Unlock()
}

// SetOnChange sets the callback fired after typing expiry
func (t *PresenceTracker) SetOnChange(fn func()) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

// SetOnline adds userId to the online set
func (t *PresenceTracker) SetOnline(userId string) {
	t.mu.Lock()
	t.online[userId] = struct{}{}
	t.mu.Unlock()
}

// SetOffline removes userId from the online set
func (t *PresenceTracker) SetOffline(userId string) {
	t.mu.Lock()
	delete(t.online, userId)
	t.mu.Unlock()
}

// BulkSetOnline replaces the online set with userIds
func (t *PresenceTracker) BulkSetOnline(userIds []string) {
	online := make(map[string]struct{}, len(userIds))
	for _, id := range userIds {
		online[id] = struct{}{}
	}

	t.mu.Lock()
	t.online = online
	t.mu.Unlock()
}

// IsOnline reports whether userId is online
func (t *PresenceTracker) IsOnline(userId string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.online[userId]
	return ok
}

// OnlineUsers returns the online set, sorted
func (t *PresenceTracker) OnlineUsers() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return sortedKeys(t.online)
}

// StartTyping marks userId as typing and (re)arms its expiry.
// It reports whether the typing set changed.
func (t *PresenceTracker) StartTyping(userId string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if userId == "" || userId == t.selfId {
		return false
	}

	prev, existed := t.typing[userId]
	if existed {
		prev.timer.Stop()
	}

	entry := &typingEntry{}
	entry.timer = t.clock.AfterFunc(t.timeout, func() { t.expire(userId, entry) })
	t.typing[userId] = entry
	return !existed
}

// StopTyping removes userId from the typing set
func (t *PresenceTracker) StopTyping(userId string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.typing[userId]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(t.typing, userId)
	return true
}

// IsTyping reports whether userId is in the typing set
func (t *PresenceTracker) IsTyping(userId string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.typing[userId]
	return ok
}

// TypingUsers returns the typing set, sorted
func (t *PresenceTracker) TypingUsers() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]string, 0, len(t.typing))
	for id := range t.typing {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ResetTyping clears the typing set and cancels every expiry
func (t *PresenceTracker) ResetTyping() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, entry := range t.typing {
		entry.timer.Stop()
		delete(t.typing, id)
	}
}

// Close cancels every timer and clears all state
func (t *PresenceTracker) Close() {
	t.ResetTyping()

	t.mu.Lock()
	t.online = make(map[string]struct{})
	t.onChange = nil
	t.mu.Unlock()
}

func (t *PresenceTracker) expire(userId string, entry *typingEntry) {
	t.mu.Lock()
	if t.typing[userId] != entry {
		// Re-armed or stopped since this timer was set
		t.mu.Unlock()
		return
	}
	delete(t.typing, userId)
	onChange := t.onChange
	t.mu.Unlock()

	log.Debug("typing expired: user_id=%s", userId)
	if onChange != nil {
		onChange()
	}
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
