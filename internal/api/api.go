// Package api exposes settings, device listing, voice control and a live
// event stream to the local settings page.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/yok-tottii/banana4u-voice/internal/audio"
	"github.com/yok-tottii/banana4u-voice/internal/config"
	"github.com/yok-tottii/banana4u-voice/internal/conversation"
	"github.com/yok-tottii/banana4u-voice/internal/events"
	"github.com/yok-tottii/banana4u-voice/internal/hotkey"
	"github.com/yok-tottii/banana4u-voice/internal/recording"
	"github.com/yok-tottii/banana4u-voice/internal/server"
	"github.com/yok-tottii/banana4u-voice/internal/voice"
)

// Voice is the subset of voice.Core the API drives.
type Voice interface {
	StartPushToTalk(ctx context.Context) error
	StopPushToTalk(ctx context.Context) (string, error)
	StartConversationalMode(ctx context.Context) error
	StopConversationalMode()
	State() voice.State
	Subscribe(buffer int) (<-chan events.Event, func())
}

// PermissionChecker reports OS permission status by name.
type PermissionChecker interface {
	CheckAllPermissions() map[string]bool
}

// Options wires a Handler.
type Options struct {
	Config      *config.Config
	ConfigPath  string
	Voice       Voice
	Driver      audio.Driver
	Permissions PermissionChecker
	Metrics     http.Handler
	// OnSettingsChanged runs after settings are saved, with a snapshot.
	OnSettingsChanged func(*config.Config) error
}

// writeWait bounds a single websocket write.
const writeWait = 5 * time.Second

// Handler manages API endpoints
type Handler struct {
	config            *config.Config
	configPath        string
	voice             Voice
	driver            audio.Driver
	permissions       PermissionChecker
	metrics           http.Handler
	onSettingsChanged func(*config.Config) error
	upgrader          websocket.Upgrader
	log               zerolog.Logger
}

// New creates a new API handler
func New(opts Options, log zerolog.Logger) *Handler {
	path := opts.ConfigPath
	if path == "" {
		path = config.GetConfigPath()
	}
	return &Handler{
		config:            opts.Config,
		configPath:        path,
		voice:             opts.Voice,
		driver:            opts.Driver,
		permissions:       opts.Permissions,
		metrics:           opts.Metrics,
		onSettingsChanged: opts.OnSettingsChanged,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || server.IsLocalOrigin(origin)
			},
		},
		log: log.With().Str("component", "api").Logger(),
	}
}

// RegisterRoutes registers all API routes on the given mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/settings", h.handleSettings)
	mux.HandleFunc("/api/hotkey/validate", h.handleHotkeyValidate)
	mux.HandleFunc("/api/devices", h.handleDevices)
	mux.HandleFunc("/api/permissions", h.handlePermissions)
	mux.HandleFunc("/api/state", h.handleState)
	mux.HandleFunc("/api/ptt/start", h.handlePushToTalkStart)
	mux.HandleFunc("/api/ptt/stop", h.handlePushToTalkStop)
	mux.HandleFunc("/api/conversation/start", h.handleConversationStart)
	mux.HandleFunc("/api/conversation/stop", h.handleConversationStop)
	mux.HandleFunc("/ws", h.handleEvents)
	if h.metrics != nil {
		mux.Handle("/metrics", h.metrics)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeVoiceError maps a voice failure to a status and an error code.
func writeVoiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, recording.ErrBusy), errors.Is(err, recording.ErrNotRecording):
		status = http.StatusConflict
	case audio.IsDeviceError(err):
		status = http.StatusServiceUnavailable
	}
	code, message := conversation.Describe(err)
	writeJSON(w, status, map[string]string{"code": code, "error": message})
}

// handleSettings handles GET and PUT /api/settings
func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.config.Clone())
	case http.MethodPut:
		h.putSettings(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// putSettings updates the configuration
func (h *Handler) putSettings(w http.ResponseWriter, r *http.Request) {
	var updates map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	candidate := h.config.Clone()
	if err := candidate.Update(updates); err != nil {
		http.Error(w, fmt.Sprintf("Failed to update config: %v", err), http.StatusBadRequest)
		return
	}
	if err := candidate.Validate(); err != nil {
		http.Error(w, fmt.Sprintf("Invalid settings: %v", err), http.StatusBadRequest)
		return
	}
	if err := h.validateHotkeys(candidate); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.config.Update(updates); err != nil {
		http.Error(w, fmt.Sprintf("Failed to update config: %v", err), http.StatusBadRequest)
		return
	}
	if err := h.config.Save(h.configPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to save config: %v", err), http.StatusInternalServerError)
		return
	}

	if h.onSettingsChanged != nil {
		if err := h.onSettingsChanged(h.config.Clone()); err != nil {
			// Saved but not applied; the next start picks it up.
			h.log.Warn().Err(err).Msg("settings saved but reload failed")
			writeJSON(w, http.StatusOK, map[string]string{
				"status":  "partial",
				"message": fmt.Sprintf("Settings saved but reload failed: %v. Please restart the application.", err),
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// validateHotkeys rejects unusable or identical push-to-talk and
// conversation bindings.
func (h *Handler) validateHotkeys(c *config.Config) error {
	ptt, err := hotkey.FromSettings(c.Hotkey, hotkey.ParseRecordingMode(c.RecordingMode))
	if err != nil {
		return fmt.Errorf("push-to-talk hotkey: %w", err)
	}
	conv, err := hotkey.FromSettings(c.ConversationHotkey, hotkey.Toggle)
	if err != nil {
		return fmt.Errorf("conversation hotkey: %w", err)
	}
	if hotkey.SameBinding(ptt, conv) {
		return fmt.Errorf("%w: push-to-talk and conversation hotkeys must differ", hotkey.ErrInvalidHotkey)
	}
	return nil
}

// handleHotkeyValidate handles POST /api/hotkey/validate
func (h *Handler) handleHotkeyValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var request config.HotkeyConfig
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	cfg, err := hotkey.FromSettings(request, hotkey.PressToHold)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"valid":     false,
			"error":     err.Error(),
			"conflicts": []string{},
		})
		return
	}

	conflictNames := []string{}
	for _, c := range hotkey.CheckConflicts(cfg.Modifiers, cfg.Key) {
		conflictNames = append(conflictNames, c.Name)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":     true,
		"display":   hotkey.FormatHotkey(cfg.Modifiers, cfg.Key),
		"conflicts": conflictNames,
	})
}

// Device represents an audio device
type Device struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	IsDefault  bool   `json:"is_default"`
	Denylisted bool   `json:"denylisted"`
}

// convertAudioDevices converts audio.Device slice to api.Device slice
func convertAudioDevices(audioDevices []audio.Device) []Device {
	devices := make([]Device, 0, len(audioDevices))
	for _, dev := range audioDevices {
		devices = append(devices, Device{
			ID:         dev.ID,
			Name:       dev.Name,
			IsDefault:  dev.IsDefault,
			Denylisted: audio.IsDenylisted(dev.Name),
		})
	}
	return devices
}

// handleDevices handles GET /api/devices
func (h *Handler) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.driver == nil {
		http.Error(w, "Audio driver not initialized", http.StatusServiceUnavailable)
		return
	}

	audioDevices, err := h.driver.ListDevices()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to list audio devices: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"devices": convertAudioDevices(audioDevices),
	})
}

// Permission represents a system permission status
type Permission struct {
	Granted bool `json:"granted"`
}

// handlePermissions handles GET /api/permissions
func (h *Handler) handlePermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.permissions == nil {
		http.Error(w, "Permission checker not initialized", http.StatusServiceUnavailable)
		return
	}

	permissions := make(map[string]Permission)
	for name, granted := range h.permissions.CheckAllPermissions() {
		permissions[name] = Permission{Granted: granted}
	}
	writeJSON(w, http.StatusOK, permissions)
}

// handleState handles GET /api/state
func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.voice.State())
}

// handlePushToTalkStart handles POST /api/ptt/start
func (h *Handler) handlePushToTalkStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := h.voice.StartPushToTalk(r.Context()); err != nil {
		writeVoiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, h.voice.State())
}

// handlePushToTalkStop handles POST /api/ptt/stop and returns the transcript
func (h *Handler) handlePushToTalkStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	text, err := h.voice.StopPushToTalk(r.Context())
	if err != nil {
		writeVoiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"transcript": text})
}

// handleConversationStart handles POST /api/conversation/start
func (h *Handler) handleConversationStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := h.voice.StartConversationalMode(r.Context()); err != nil {
		writeVoiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, h.voice.State())
}

// handleConversationStop handles POST /api/conversation/stop
func (h *Handler) handleConversationStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.voice.StopConversationalMode()
	writeJSON(w, http.StatusOK, h.voice.State())
}

// handleEvents upgrades GET /ws and streams voice events as JSON until the
// client goes away.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	feed, unsubscribe := h.voice.Subscribe(0)
	defer unsubscribe()

	// The client never sends anything meaningful; reading detects close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case e, ok := <-feed:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutting down"),
					time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				h.log.Debug().Err(err).Msg("event stream closed")
				return
			}
		}
	}
}
