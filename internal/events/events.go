// Package events fans voice notifications out to subscribers.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Type identifies different event types
type Type string

const (
	// TranscriptReady carries a transcript accepted for a turn or a push-to-talk result
	TranscriptReady Type = "transcript.ready"
	// Error reports a failure that ended a turn or a session
	Error Type = "voice.error"
	// StateChanged reports a loop phase or push-to-talk state transition
	StateChanged Type = "state.changed"
	// Notice is an informational message for the user
	Notice Type = "voice.notice"
)

// Mode names the capture mode that produced an event.
const (
	ModePushToTalk   = "push-to-talk"
	ModeConversation = "conversation"
)

// Notice codes.
const (
	NoticeEchoOnly      = "echo-only"
	NoticeSyncTimeout   = "playback-sync-timeout"
	NoticeAudioTooShort = "audio-too-short"
	NoticeMaxDuration   = "max-duration"
)

// Event is one notification. Unused fields are left empty.
type Event struct {
	Type       Type      `json:"type"`
	Mode       string    `json:"mode,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
	State      string    `json:"state,omitempty"`
	Transcript string    `json:"transcript,omitempty"`
	Raw        string    `json:"raw,omitempty"`
	Code       string    `json:"code,omitempty"`
	Message    string    `json:"message,omitempty"`
	At         time.Time `json:"at"`
	Err        error     `json:"-"`
}

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 64

// Bus is a non-blocking pub/sub hub. A subscriber that falls behind loses
// events instead of stalling the publisher.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]chan Event
	next    int
	closed  bool
	dropped atomic.Uint64
	now     func() time.Time
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event), now: time.Now}
}

// Subscribe returns a channel of future events and a function that cancels
// the subscription. buffer <= 0 uses DefaultBuffer.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

// Publish delivers e to every subscriber with room in its queue.
func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = b.now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped counts deliveries skipped because a subscriber was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Subscribers returns the number of active subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close ends every subscription. Later publishes are discarded.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
