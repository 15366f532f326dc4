// Package tray shows the voice state in the menu bar and exposes the
// conversation toggle, microphone selection and quit.
package tray

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/getlantern/systray"
	"github.com/rs/zerolog"

	"github.com/yok-tottii/banana4u-voice/internal/events"
	"github.com/yok-tottii/banana4u-voice/internal/i18n"
)

// State represents the icon shown in the tray
type State int

const (
	StateIdle State = iota
	StateListening
	StateRecording
	StateProcessing
	StateSpeaking
)

// StateFor maps a loop phase or push-to-talk state name to a tray state.
func StateFor(name string) State {
	switch name {
	case "preparing-turn", "awaiting-voice":
		return StateListening
	case "recording":
		return StateRecording
	case "processing", "transcribing", "filtering", "dispatching":
		return StateProcessing
	case "speaking":
		return StateSpeaking
	default:
		return StateIdle
	}
}

// Manager manages the system tray icon and menu
type Manager struct {
	stateMutex         sync.RWMutex
	state              State
	stateName          string
	conversationActive bool
	ready              bool

	translator           *i18n.Translator
	pushToTalkHotkey     string
	onReadyCallback      func()
	onToggleConversation func()
	onSettings           func()
	onDeviceChange       func(deviceID int) // Called when user selects a device
	onQuit               func()
	log                  zerolog.Logger

	menuConversation  *systray.MenuItem
	menuPushToTalk    *systray.MenuItem
	menuSettings      *systray.MenuItem
	menuDevices       *systray.MenuItem // Parent menu for device selection
	menuQuit          *systray.MenuItem
	deviceMenuItems   []*systray.MenuItem  // Device submenu items
	deviceCancelFuncs []context.CancelFunc // Cancel functions for device menu goroutines

	// Icon cache
	iconIdle       []byte
	iconRecording  []byte
	iconProcessing []byte
}

// Config holds tray manager configuration
type Config struct {
	Translator           *i18n.Translator
	PushToTalkHotkey     string // display form, e.g. "⌃⌥Space"
	OnReady              func() // Called when systray is ready for initialization
	OnToggleConversation func()
	OnSettings           func()
	OnDeviceChange       func(deviceID int) // Called when user selects a device
	OnQuit               func()
}

// NewManager creates a new tray manager
func NewManager(config Config, log zerolog.Logger) *Manager {
	translator := config.Translator
	if translator == nil {
		translator = i18n.NewDefault(i18n.DetectSystemLanguage())
	}
	m := &Manager{
		state:                StateIdle,
		stateName:            "idle",
		translator:           translator,
		pushToTalkHotkey:     config.PushToTalkHotkey,
		onReadyCallback:      config.OnReady,
		onToggleConversation: config.OnToggleConversation,
		onSettings:           config.OnSettings,
		onDeviceChange:       config.OnDeviceChange,
		onQuit:               config.OnQuit,
		log:                  log.With().Str("component", "tray").Logger(),
	}

	// Load icons once at initialization
	m.iconIdle = m.loadIconData("speech_to_text_32dp_E3E3E3_FILL0_wght400_GRAD0_opsz40.png", getIdleFallback())
	m.iconRecording = m.loadIconData("graphic_eq_32dp_F19E39_FILL0_wght400_GRAD0_opsz40.png", getRecordingFallback())
	m.iconProcessing = m.loadIconData("hourglass_empty_32dp_75FB4C_FILL0_wght400_GRAD0_opsz40.png", getProcessingFallback())

	return m
}

// Run starts the system tray (blocking call)
func (m *Manager) Run() {
	systray.Run(m.onReady, m.onExit)
}

// onReady is called when systray is ready
func (m *Manager) onReady() {
	t := m.translator

	m.menuConversation = systray.AddMenuItem(t.Translate("menu.conversation_start"), "")
	m.menuPushToTalk = systray.AddMenuItem(
		t.TranslateWithFormat("menu.push_to_talk", map[string]string{"hotkey": m.pushToTalkHotkey}), "")
	m.menuPushToTalk.Disable()
	m.menuDevices = systray.AddMenuItem(t.Translate("menu.devices"), "")
	m.menuSettings = systray.AddMenuItem(t.Translate("menu.settings"), "")

	systray.AddSeparator()

	m.menuQuit = systray.AddMenuItem(t.Translate("menu.quit"), "")

	m.stateMutex.Lock()
	m.ready = true
	m.render()
	m.stateMutex.Unlock()

	go m.handleMenuEvents()

	if m.onReadyCallback != nil {
		m.onReadyCallback()
	}
}

// onExit is called when systray is exiting
func (m *Manager) onExit() {
	m.stateMutex.Lock()
	m.ready = false
	m.stateMutex.Unlock()
}

// handleMenuEvents handles menu item clicks
func (m *Manager) handleMenuEvents() {
	for {
		select {
		case <-m.menuConversation.ClickedCh:
			if m.onToggleConversation != nil {
				m.onToggleConversation()
			}
		case <-m.menuSettings.ClickedCh:
			if m.onSettings != nil {
				m.onSettings()
			}
		case <-m.menuQuit.ClickedCh:
			if m.onQuit != nil {
				m.onQuit()
			}
			systray.Quit()
			return
		}
	}
}

// Apply updates the tray from a voice event. It reports whether anything
// visible changed.
func (m *Manager) Apply(e events.Event) bool {
	if e.Type != events.StateChanged {
		return false
	}

	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()

	changed := false
	if e.Mode == events.ModeConversation {
		active := e.State != "idle"
		if active != m.conversationActive {
			m.conversationActive = active
			changed = true
		}
	}
	if e.State != m.stateName {
		m.stateName = e.State
		m.state = StateFor(e.State)
		changed = true
	}
	if changed {
		m.render()
	}
	return changed
}

// Follow applies events until ctx is done or the channel closes.
func (m *Manager) Follow(ctx context.Context, in <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-in:
			if !ok {
				return
			}
			m.Apply(e)
		}
	}
}

// State returns the current tray state
func (m *Manager) State() State {
	m.stateMutex.RLock()
	defer m.stateMutex.RUnlock()
	return m.state
}

// ConversationActive reports whether the menu offers "stop conversation".
func (m *Manager) ConversationActive() bool {
	m.stateMutex.RLock()
	defer m.stateMutex.RUnlock()
	return m.conversationActive
}

// Tooltip returns the hover text for the current state.
func (m *Manager) Tooltip() string {
	m.stateMutex.RLock()
	defer m.stateMutex.RUnlock()
	return m.tooltip()
}

func (m *Manager) tooltip() string {
	return m.translator.Translate("app.name") + " - " + m.translator.Translate(i18n.StatusKey(m.stateName))
}

func (m *Manager) conversationLabel() string {
	if m.conversationActive {
		return m.translator.Translate("menu.conversation_stop")
	}
	return m.translator.Translate("menu.conversation_start")
}

// icon returns the icon bytes for the current state
func (m *Manager) icon() []byte {
	switch m.state {
	case StateListening, StateRecording:
		return m.iconRecording
	case StateProcessing, StateSpeaking:
		return m.iconProcessing
	default:
		return m.iconIdle
	}
}

// render pushes the current state to the tray. Callers hold stateMutex.
func (m *Manager) render() {
	if !m.ready {
		return
	}
	systray.SetIcon(m.icon())
	systray.SetTooltip(m.tooltip())
	m.menuConversation.SetTitle(m.conversationLabel())
}

// Device represents an audio device for the menu
type Device struct {
	ID         int
	Name       string
	IsDefault  bool
	IsCurrent  bool
	Denylisted bool
}

// deviceLabel returns the submenu title for a device.
func deviceLabel(d Device) string {
	prefix := ""
	if d.IsCurrent {
		prefix = "✓ "
	}
	label := prefix + d.Name
	if d.Denylisted {
		label += " (virtual)"
	}
	return label
}

// UpdateDeviceMenu updates the device submenu with available devices.
// Virtual and loopback devices are listed but disabled.
func (m *Manager) UpdateDeviceMenu(devices []Device) {
	if m.menuDevices == nil {
		return
	}

	// Cancel existing device menu goroutines
	for _, cancel := range m.deviceCancelFuncs {
		if cancel != nil {
			cancel()
		}
	}
	m.deviceCancelFuncs = nil

	// Remove existing device menu items
	for _, item := range m.deviceMenuItems {
		item.Hide()
	}
	m.deviceMenuItems = nil

	defaultItem := Device{ID: -1, Name: m.translator.Translate("menu.device_default"), IsCurrent: true}
	for _, d := range devices {
		if d.IsCurrent {
			defaultItem.IsCurrent = false
		}
	}

	for _, device := range append([]Device{defaultItem}, devices...) {
		tooltip := ""
		if device.IsDefault {
			tooltip = "System default device"
		}

		menuItem := m.menuDevices.AddSubMenuItem(deviceLabel(device), tooltip)
		m.deviceMenuItems = append(m.deviceMenuItems, menuItem)
		if device.Denylisted {
			menuItem.Disable()
			continue
		}

		ctx, cancel := context.WithCancel(context.Background())
		m.deviceCancelFuncs = append(m.deviceCancelFuncs, cancel)

		go func(id int, item *systray.MenuItem, ctx context.Context) {
			for {
				select {
				case <-ctx.Done():
					return
				case <-item.ClickedCh:
					if m.onDeviceChange != nil {
						m.onDeviceChange(id)
					}
				}
			}
		}(device.ID, menuItem, ctx)
	}
}

// Quit quits the system tray
func (m *Manager) Quit() {
	systray.Quit()
}

// loadIconData loads an icon from the assets directory
// If the file cannot be loaded, it returns a fallback placeholder icon
func (m *Manager) loadIconData(filename string, fallback []byte) []byte {
	exe, err := os.Executable()
	if err != nil {
		m.log.Warn().Err(err).Msg("executable path unavailable, using fallback icon")
		return fallback
	}

	iconPath := filepath.Join(filepath.Dir(exe), "assets", "icon", filename)
	data, err := os.ReadFile(iconPath)
	if err != nil {
		m.log.Debug().Err(err).Str("path", iconPath).Msg("icon not found, using fallback")
		return fallback
	}

	return data
}

// getIdleFallback returns the fallback icon data for idle state
func getIdleFallback() []byte {
	return []byte{
		0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
		0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
		0x00, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00, 0x10,
		0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0xf3, 0xff,
		0x61, 0x00, 0x00, 0x00, 0x19, 0x74, 0x45, 0x58,
		0x74, 0x53, 0x6f, 0x66, 0x74, 0x77, 0x61, 0x72,
		0x65, 0x00, 0x41, 0x64, 0x6f, 0x62, 0x65, 0x20,
		0x49, 0x6d, 0x61, 0x67, 0x65, 0x52, 0x65, 0x61,
		0x64, 0x79, 0x71, 0xc9, 0x65, 0x3c, 0x00, 0x00,
		0x00, 0x18, 0x49, 0x44, 0x41, 0x54, 0x78, 0xda,
		0x62, 0xfc, 0xff, 0xff, 0x3f, 0x03, 0x00, 0x00,
		0x00, 0xff, 0xff, 0x03, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x49, 0x45, 0x4e, 0x44, 0xae, 0x42, 0x60,
		0x82,
	}
}

// getRecordingFallback returns the fallback icon data for recording state
func getRecordingFallback() []byte {
	return []byte{
		0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
		0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
		0x00, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00, 0x10,
		0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0xf3, 0xff,
		0x61, 0x00, 0x00, 0x00, 0x19, 0x74, 0x45, 0x58,
		0x74, 0x53, 0x6f, 0x66, 0x74, 0x77, 0x61, 0x72,
		0x65, 0x00, 0x41, 0x64, 0x6f, 0x62, 0x65, 0x20,
		0x49, 0x6d, 0x61, 0x67, 0x65, 0x52, 0x65, 0x61,
		0x64, 0x79, 0x71, 0xc9, 0x65, 0x3c, 0x00, 0x00,
		0x00, 0x20, 0x49, 0x44, 0x41, 0x54, 0x78, 0xda,
		0x62, 0xfc, 0xcf, 0xc0, 0xc0, 0xc0, 0xf0, 0x9f,
		0x81, 0x81, 0x81, 0x81, 0xff, 0x19, 0x18, 0x18,
		0x18, 0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0x03,
		0x00, 0x0c, 0x10, 0x02, 0x01, 0x8b, 0xd5, 0xf8,
		0x23, 0x00, 0x00, 0x00, 0x00, 0x49, 0x45, 0x4e,
		0x44, 0xae, 0x42, 0x60, 0x82,
	}
}

// getProcessingFallback returns the fallback icon data for processing state
func getProcessingFallback() []byte {
	return []byte{
		0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
		0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
		0x00, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00, 0x10,
		0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0xf3, 0xff,
		0x61, 0x00, 0x00, 0x00, 0x19, 0x74, 0x45, 0x58,
		0x74, 0x53, 0x6f, 0x66, 0x74, 0x77, 0x61, 0x72,
		0x65, 0x00, 0x41, 0x64, 0x6f, 0x62, 0x65, 0x20,
		0x49, 0x6d, 0x61, 0x67, 0x65, 0x52, 0x65, 0x61,
		0x64, 0x79, 0x71, 0xc9, 0x65, 0x3c, 0x00, 0x00,
		0x00, 0x20, 0x49, 0x44, 0x41, 0x54, 0x78, 0xda,
		0x62, 0xfc, 0xcf, 0xf0, 0x9f, 0xc1, 0xc8, 0xc0,
		0xc0, 0xc0, 0xff, 0x0c, 0x0c, 0x0c, 0xfc, 0xcf,
		0xc0, 0xc0, 0xc0, 0x00, 0x00, 0x00, 0x00, 0xff,
		0xff, 0x03, 0x00, 0x0c, 0x50, 0x02, 0x01, 0x3e,
		0x0a, 0xe4, 0x5b, 0x00, 0x00, 0x00, 0x00, 0x49,
		0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
	}
}
