// Package clipboard pastes push-to-talk transcripts into the focused
// application and puts the user's clipboard back afterwards.
package clipboard

import (
	"fmt"
	"time"
)

// Manager manages clipboard operations with safe restoration
type Manager struct {
	board          Pasteboard
	restoreTimeout time.Duration
	splitSize      int
	splitInterval  time.Duration
	sleep          func(time.Duration)

	savedChangeCount int
	savedContent     string
}

// Config holds clipboard manager configuration
type Config struct {
	RestoreTimeout time.Duration // Timeout for clipboard restoration (default: 500ms)
	SplitSize      int           // Maximum characters per paste operation (default: 500)
	SplitInterval  time.Duration // Interval between split pastes (default: 50ms)
}

// DefaultConfig returns the default clipboard configuration
func DefaultConfig() Config {
	return Config{
		RestoreTimeout: 500 * time.Millisecond,
		SplitSize:      500,
		SplitInterval:  50 * time.Millisecond,
	}
}

// NewManager creates a clipboard manager. A nil board uses the system clipboard.
func NewManager(config Config, board Pasteboard) *Manager {
	if board == nil {
		board = SystemPasteboard{}
	}
	if config.SplitSize <= 0 {
		config.SplitSize = DefaultConfig().SplitSize
	}
	return &Manager{
		board:          board,
		restoreTimeout: config.RestoreTimeout,
		splitSize:      config.SplitSize,
		splitInterval:  config.SplitInterval,
		sleep:          time.Sleep,
	}
}

// SaveClipboard saves the current clipboard state
func (m *Manager) SaveClipboard() error {
	m.savedChangeCount = m.board.ChangeCount()
	content, err := m.board.Read()
	if err != nil {
		return fmt.Errorf("failed to read clipboard: %w", err)
	}
	m.savedContent = content
	return nil
}

// RestoreClipboard restores the clipboard unless something else wrote to it
// after pasted was placed there.
func (m *Manager) RestoreClipboard(pasted string) error {
	// Give the target application time to read the pasteboard.
	m.sleep(m.restoreTimeout)

	untouched := false
	if m.savedChangeCount >= 0 {
		// Exactly one change means only our write happened.
		untouched = m.board.ChangeCount() == m.savedChangeCount+1
	} else {
		current, err := m.board.Read()
		untouched = err == nil && current == pasted
	}

	if !untouched {
		return nil
	}
	if err := m.board.Write(m.savedContent); err != nil {
		return fmt.Errorf("failed to restore clipboard: %w", err)
	}
	return nil
}

// SafePaste pastes text to the active application with safe clipboard restoration
func (m *Manager) SafePaste(text string) error {
	if err := m.SaveClipboard(); err != nil {
		return fmt.Errorf("failed to save clipboard: %w", err)
	}

	if err := m.board.Write(text); err != nil {
		return fmt.Errorf("failed to write clipboard: %w", err)
	}

	// Wait a bit for clipboard to update
	m.sleep(10 * time.Millisecond)

	if err := m.board.Paste(); err != nil {
		return err
	}

	return m.RestoreClipboard(text)
}

// SafePasteWithSplit pastes text with automatic splitting for long texts
func (m *Manager) SafePasteWithSplit(text string) error {
	if text == "" {
		return nil
	}

	chunks := m.splitText(text)
	for i, chunk := range chunks {
		if err := m.SafePaste(chunk); err != nil {
			return fmt.Errorf("failed to paste chunk %d: %w", i, err)
		}

		if i < len(chunks)-1 {
			m.sleep(m.splitInterval)
		}
	}

	return nil
}

// splitText splits text into chunks of at most splitSize runes, preferring
// sentence boundaries (。、. , newline) in the last 50 runes of a chunk.
func (m *Manager) splitText(text string) []string {
	runes := []rune(text)
	if len(runes) <= m.splitSize {
		return []string{text}
	}

	var chunks []string
	start := 0

	for start < len(runes) {
		end := start + m.splitSize
		if end > len(runes) {
			end = len(runes)
		}

		if end < len(runes) {
			searchStart := end - 50
			if searchStart < start {
				searchStart = start
			}

			for i := end - 1; i >= searchStart; i-- {
				ch := runes[i]
				if ch == '。' || ch == '、' || ch == '.' || ch == ',' || ch == '\n' {
					end = i + 1
					break
				}
			}
		}

		chunks = append(chunks, string(runes[start:end]))
		start = end
	}

	return chunks
}
