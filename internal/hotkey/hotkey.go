package hotkey

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.design/x/hotkey"

	"github.com/yok-tottii/banana4u-voice/internal/config"
)

// RecordingMode defines how the hotkey triggers recording
type RecordingMode int

const (
	// PressToHold mode: record while key is held down
	PressToHold RecordingMode = iota
	// Toggle mode: first press starts, second press stops
	Toggle
)

// ParseRecordingMode maps the settings value to a mode. Unknown values hold.
func ParseRecordingMode(s string) RecordingMode {
	if s == "toggle" {
		return Toggle
	}
	return PressToHold
}

// EventType represents the type of hotkey event
type EventType int

const (
	// Pressed indicates the hotkey was pressed
	Pressed EventType = iota
	// Released indicates the hotkey was released
	Released
)

// Event represents a hotkey event
type Event struct {
	Type EventType
}

// Config holds hotkey configuration
type Config struct {
	Modifiers []hotkey.Modifier
	Key       hotkey.Key
	Mode      RecordingMode
}

// ErrInvalidHotkey is returned for settings that cannot be registered.
var ErrInvalidHotkey = errors.New("invalid hotkey")

// FromSettings converts a saved hotkey into a registrable Config.
func FromSettings(h config.HotkeyConfig, mode RecordingMode) (Config, error) {
	if h.Key == "" {
		return Config{}, fmt.Errorf("%w: key cannot be empty", ErrInvalidHotkey)
	}
	key, ok := ParseKey(h.Key)
	if !ok {
		return Config{}, fmt.Errorf("%w: unsupported key %q", ErrInvalidHotkey, h.Key)
	}

	var mods []hotkey.Modifier
	if h.Ctrl {
		mods = append(mods, hotkey.ModCtrl)
	}
	if h.Shift {
		mods = append(mods, hotkey.ModShift)
	}
	if h.Alt {
		mods = append(mods, modAlt)
	}
	if h.Cmd {
		mods = append(mods, modCmd)
	}
	if len(mods) == 0 {
		return Config{}, fmt.Errorf("%w: at least one modifier key (Ctrl/Shift/Alt/Cmd) is required", ErrInvalidHotkey)
	}
	return Config{Modifiers: mods, Key: key, Mode: mode}, nil
}

// keySource is the OS hotkey a Manager listens to.
type keySource interface {
	Register() error
	Unregister() error
	Keydown() <-chan hotkey.Event
	Keyup() <-chan hotkey.Event
}

func systemKey(c Config) keySource {
	return hotkey.New(c.Modifiers, c.Key)
}

// Manager manages global hotkey registration and events
type Manager struct {
	name      string
	newKey    func(Config) keySource
	hk        keySource
	config    Config
	eventChan chan Event
	stopChan  chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	running   bool
	log       zerolog.Logger
}

// New creates a new hotkey manager with default configuration
// Default: Ctrl+Alt+Space
func New(name string, log zerolog.Logger) *Manager {
	return &Manager{
		name:   name,
		newKey: systemKey,
		config: Config{
			Modifiers: []hotkey.Modifier{hotkey.ModCtrl, modAlt},
			Key:       hotkey.KeySpace,
			Mode:      PressToHold,
		},
		eventChan: make(chan Event, 10),
		stopChan:  make(chan struct{}),
		log:       log.With().Str("component", "hotkey").Str("hotkey", name).Logger(),
	}
}

// Register registers the hotkey with the system
func (m *Manager) Register(config Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("hotkey %s is already running, call Close() first", m.name)
	}

	m.config = config

	// Recreate channels (they may have been closed by a previous Close())
	m.stopChan = make(chan struct{})
	m.eventChan = make(chan Event, 10)

	hk := m.newKey(m.config)
	if err := hk.Register(); err != nil {
		return fmt.Errorf("failed to register hotkey %s: %w", m.name, err)
	}

	m.hk = hk
	m.running = true
	m.log.Info().Str("keys", FormatHotkey(config.Modifiers, config.Key)).Msg("hotkey registered")

	m.wg.Add(1)
	go m.listen(hk, config.Mode, m.eventChan, m.stopChan)

	return nil
}

// RegisterDefault registers the current configuration
func (m *Manager) RegisterDefault() error {
	return m.Register(m.GetConfig())
}

// listen monitors hotkey events and sends them to the event channel
func (m *Manager) listen(hk keySource, mode RecordingMode, out chan<- Event, stop <-chan struct{}) {
	defer m.wg.Done()

	emit := func(t EventType) bool {
		select {
		case out <- Event{Type: t}:
			return true
		case <-stop:
			return false
		}
	}

	toggleState := false
	for {
		select {
		case <-hk.Keydown():
			t := Pressed
			if mode == Toggle {
				if toggleState {
					t = Released
				}
				toggleState = !toggleState
			}
			if !emit(t) {
				return
			}

		case <-hk.Keyup():
			if mode == PressToHold && !emit(Released) {
				return
			}

		case <-stop:
			return
		}
	}
}

// Events returns the event channel for receiving hotkey events. Register
// replaces the channel, so fetch it again after re-registering.
func (m *Manager) Events() <-chan Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.eventChan
}

// Close unregisters the hotkey and stops listening
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	var unregisterErr error

	close(m.stopChan)
	m.wg.Wait()

	// Cleanup continues even when unregistering fails.
	if m.hk != nil {
		if err := m.hk.Unregister(); err != nil {
			unregisterErr = fmt.Errorf("failed to unregister hotkey %s: %w", m.name, err)
		}
	}

	// Close event channel to notify consumers of shutdown
	if m.eventChan != nil {
		close(m.eventChan)
	}

	// A failed Unregister must not block the next Register.
	m.running = false

	return unregisterErr
}

// IsRunning returns whether the hotkey is currently registered and running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// GetConfig returns a deep copy of the current hotkey configuration
// to prevent callers from modifying the Manager's internal state
func (m *Manager) GetConfig() Config {
	m.mu.Lock()
	defer m.mu.Unlock()

	configCopy := m.config
	if m.config.Modifiers != nil {
		configCopy.Modifiers = make([]hotkey.Modifier, len(m.config.Modifiers))
		copy(configCopy.Modifiers, m.config.Modifiers)
	}

	return configCopy
}
