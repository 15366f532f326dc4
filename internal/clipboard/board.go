package clipboard

import (
	"fmt"

	"github.com/go-vgo/robotgo"
)

// Pasteboard is the system clipboard plus the paste keystroke.
type Pasteboard interface {
	Read() (string, error)
	Write(text string) error
	// ChangeCount returns a counter that increases on every clipboard write,
	// or -1 when the platform does not expose one.
	ChangeCount() int
	// Paste sends the paste shortcut to the focused application.
	Paste() error
}

// SystemPasteboard drives the OS clipboard through robotgo.
type SystemPasteboard struct{}

func (SystemPasteboard) Read() (string, error) {
	return robotgo.ReadAll()
}

func (SystemPasteboard) Write(text string) error {
	return robotgo.WriteAll(text)
}

func (SystemPasteboard) ChangeCount() int {
	return changeCount()
}

func (SystemPasteboard) Paste() error {
	if err := robotgo.KeyTap("v", pasteModifier); err != nil {
		return fmt.Errorf("failed to send paste shortcut: %w", err)
	}
	return nil
}
