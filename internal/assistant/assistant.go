// Package assistant produces the spoken reply to a user transcript.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Responder answers one user transcript.
type Responder interface {
	Respond(ctx context.Context, transcript string) (string, error)
}

// ErrEmptyResponse means the model returned no usable text.
var ErrEmptyResponse = errors.New("assistant returned an empty response")

// Config selects and tunes the responder.
type Config struct {
	Provider     string // "gemini" or "openai"
	Model        string
	SystemPrompt string
	APIKey       string
	HistoryTurns int // exchanges kept as context, 0 disables history
}

// New builds the responder selected by cfg.Provider.
func New(ctx context.Context, cfg Config) (Responder, error) {
	switch cfg.Provider {
	case "gemini", "":
		return NewGeminiResponder(ctx, cfg)
	case "openai":
		return NewOpenAIResponder(cfg)
	default:
		return nil, fmt.Errorf("unknown assistant provider: %s", cfg.Provider)
	}
}

// Exchange is one user turn and the reply to it.
type Exchange struct {
	User      string
	Assistant string
}

// History keeps the most recent exchanges.
type History struct {
	mu        sync.Mutex
	limit     int
	exchanges []Exchange
}

// NewHistory keeps at most limit exchanges.
func NewHistory(limit int) *History {
	return &History{limit: limit}
}

// Add records an exchange, evicting the oldest past the limit.
func (h *History) Add(user, reply string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.limit <= 0 {
		return
	}
	h.exchanges = append(h.exchanges, Exchange{User: user, Assistant: reply})
	if over := len(h.exchanges) - h.limit; over > 0 {
		h.exchanges = append([]Exchange(nil), h.exchanges[over:]...)
	}
}

// Snapshot returns the kept exchanges, oldest first.
func (h *History) Snapshot() []Exchange {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Exchange, len(h.exchanges))
	copy(out, h.exchanges)
	return out
}

// Reset forgets every exchange.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.exchanges = nil
}

// Resetter is implemented by responders that keep conversation state.
type Resetter interface {
	Reset()
}
