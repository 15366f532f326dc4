package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. BANANA4U_VAD_VOICE_THRESHOLD.
const EnvPrefix = "BANANA4U"

// Config holds application configuration
type Config struct {
	Hotkey             HotkeyConfig       `json:"hotkey" mapstructure:"hotkey"`
	ConversationHotkey HotkeyConfig       `json:"conversation_hotkey" mapstructure:"conversation_hotkey"`
	RecordingMode      string             `json:"recording_mode" mapstructure:"recording_mode"` // "press-to-hold" or "toggle"
	Language           string             `json:"language" mapstructure:"language"`             // transcription language hint, "auto" to detect
	AudioDeviceID      int                `json:"audio_device_id" mapstructure:"audio_device_id"`
	UILanguage         string             `json:"ui_language" mapstructure:"ui_language"`         // "ja" or "en"
	MaxRecordTime      int                `json:"max_record_time" mapstructure:"max_record_time"` // seconds
	PasteSplitSize     int                `json:"paste_split_size" mapstructure:"paste_split_size"`
	AutoPaste          bool               `json:"auto_paste" mapstructure:"auto_paste"`
	LogLevel           string             `json:"log_level" mapstructure:"log_level"`
	ServerPort         int                `json:"server_port" mapstructure:"server_port"`
	VAD                VADConfig          `json:"vad" mapstructure:"vad"`
	Conversation       ConversationConfig `json:"conversation" mapstructure:"conversation"`
	STT                STTConfig          `json:"stt" mapstructure:"stt"`
	Assistant          AssistantConfig    `json:"assistant" mapstructure:"assistant"`
	TTS                TTSConfig          `json:"tts" mapstructure:"tts"`

	// API keys come from the environment (or .env) and are never written to disk.
	GeminiAPIKey string `json:"-" mapstructure:"gemini_api_key"`
	OpenAIAPIKey string `json:"-" mapstructure:"openai_api_key"`

	mu sync.RWMutex
}

// HotkeyConfig holds hotkey configuration
type HotkeyConfig struct {
	Ctrl  bool   `json:"ctrl" mapstructure:"ctrl"`
	Shift bool   `json:"shift" mapstructure:"shift"`
	Alt   bool   `json:"alt" mapstructure:"alt"`
	Cmd   bool   `json:"cmd" mapstructure:"cmd"`
	Key   string `json:"key" mapstructure:"key"` // e.g., "Space"
}

// VADConfig holds the voice activity detector thresholds (0-255 energy scale).
type VADConfig struct {
	VoiceThreshold    float64 `json:"voice_threshold" mapstructure:"voice_threshold"`
	SilenceThreshold  float64 `json:"silence_threshold" mapstructure:"silence_threshold"`
	SilenceDurationMs int     `json:"silence_duration_ms" mapstructure:"silence_duration_ms"`
}

// SilenceDuration returns the configured silence duration.
func (v VADConfig) SilenceDuration() time.Duration {
	return time.Duration(v.SilenceDurationMs) * time.Millisecond
}

// ConversationConfig holds the loop timing constants.
type ConversationConfig struct {
	PlaybackTimeoutMs  int `json:"playback_timeout_ms" mapstructure:"playback_timeout_ms"`
	PollIntervalMs     int `json:"poll_interval_ms" mapstructure:"poll_interval_ms"`
	SettleDelayMs      int `json:"settle_delay_ms" mapstructure:"settle_delay_ms"`
	ErrorBackoffMs     int `json:"error_backoff_ms" mapstructure:"error_backoff_ms"`
	OnsetTimeoutSec    int `json:"onset_timeout_sec" mapstructure:"onset_timeout_sec"` // 0 waits forever
	MinTranscriptChars int `json:"min_transcript_chars" mapstructure:"min_transcript_chars"`
}

// STTConfig selects the speech-to-text provider.
type STTConfig struct {
	Provider   string `json:"provider" mapstructure:"provider"` // "gemini", "openai" or "whisper"
	Model      string `json:"model" mapstructure:"model"`
	ModelPath  string `json:"model_path" mapstructure:"model_path"` // local whisper.cpp model
	TimeoutSec int    `json:"timeout_sec" mapstructure:"timeout_sec"`
}

// AssistantConfig selects the AI response provider.
type AssistantConfig struct {
	Provider     string `json:"provider" mapstructure:"provider"` // "gemini" or "openai"
	Model        string `json:"model" mapstructure:"model"`
	SystemPrompt string `json:"system_prompt" mapstructure:"system_prompt"`
	HistoryTurns int    `json:"history_turns" mapstructure:"history_turns"`
}

// TTSConfig configures the local speech synthesizer.
type TTSConfig struct {
	Command string  `json:"command" mapstructure:"command"`
	Voice   string  `json:"voice" mapstructure:"voice"`
	Speed   int     `json:"speed" mapstructure:"speed"` // words per minute
	Volume  float64 `json:"volume" mapstructure:"volume"`
}

// IsValidModelExtension checks if the file has a valid Whisper model extension
func IsValidModelExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".bin" || ext == ".gguf"
}

var (
	validSTTProviders       = []string{"gemini", "openai", "whisper"}
	validAssistantProviders = []string{"gemini", "openai"}
)

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Hotkey: HotkeyConfig{
			Ctrl: true,
			Alt:  true,
			Key:  "Space",
		},
		ConversationHotkey: HotkeyConfig{
			Ctrl: true,
			Alt:  true,
			Key:  "C",
		},
		RecordingMode:  "press-to-hold",
		Language:       "auto",
		AudioDeviceID:  -1,
		UILanguage:     "ja",
		MaxRecordTime:  60,
		PasteSplitSize: 500,
		AutoPaste:      true,
		LogLevel:       "info",
		ServerPort:     18765,
		VAD: VADConfig{
			VoiceThreshold:    50,
			SilenceThreshold:  30,
			SilenceDurationMs: 1500,
		},
		Conversation: ConversationConfig{
			PlaybackTimeoutMs:  5000,
			PollIntervalMs:     100,
			SettleDelayMs:      1000,
			ErrorBackoffMs:     1000,
			OnsetTimeoutSec:    0,
			MinTranscriptChars: 3,
		},
		STT: STTConfig{
			Provider:   "gemini",
			Model:      "gemini-2.0-flash",
			TimeoutSec: 30,
		},
		Assistant: AssistantConfig{
			Provider:     "gemini",
			Model:        "gemini-2.0-flash",
			SystemPrompt: "You are Banana4U, a friendly desktop companion. Answer in one to three short spoken sentences.",
			HistoryTurns: 6,
		},
		TTS: TTSConfig{
			Command: "espeak-ng",
			Voice:   "en",
			Speed:   175,
			Volume:  0,
		},
	}
}

// setDefaults registers every key with viper so env overrides and Unmarshal see them.
func setDefaults(v *viper.Viper, d *Config) {
	setHotkeyDefaults(v, "hotkey", d.Hotkey)
	setHotkeyDefaults(v, "conversation_hotkey", d.ConversationHotkey)
	v.SetDefault("recording_mode", d.RecordingMode)
	v.SetDefault("language", d.Language)
	v.SetDefault("audio_device_id", d.AudioDeviceID)
	v.SetDefault("ui_language", d.UILanguage)
	v.SetDefault("max_record_time", d.MaxRecordTime)
	v.SetDefault("paste_split_size", d.PasteSplitSize)
	v.SetDefault("auto_paste", d.AutoPaste)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("server_port", d.ServerPort)

	v.SetDefault("vad.voice_threshold", d.VAD.VoiceThreshold)
	v.SetDefault("vad.silence_threshold", d.VAD.SilenceThreshold)
	v.SetDefault("vad.silence_duration_ms", d.VAD.SilenceDurationMs)

	v.SetDefault("conversation.playback_timeout_ms", d.Conversation.PlaybackTimeoutMs)
	v.SetDefault("conversation.poll_interval_ms", d.Conversation.PollIntervalMs)
	v.SetDefault("conversation.settle_delay_ms", d.Conversation.SettleDelayMs)
	v.SetDefault("conversation.error_backoff_ms", d.Conversation.ErrorBackoffMs)
	v.SetDefault("conversation.onset_timeout_sec", d.Conversation.OnsetTimeoutSec)
	v.SetDefault("conversation.min_transcript_chars", d.Conversation.MinTranscriptChars)

	v.SetDefault("stt.provider", d.STT.Provider)
	v.SetDefault("stt.model", d.STT.Model)
	v.SetDefault("stt.model_path", d.STT.ModelPath)
	v.SetDefault("stt.timeout_sec", d.STT.TimeoutSec)

	v.SetDefault("assistant.provider", d.Assistant.Provider)
	v.SetDefault("assistant.model", d.Assistant.Model)
	v.SetDefault("assistant.system_prompt", d.Assistant.SystemPrompt)
	v.SetDefault("assistant.history_turns", d.Assistant.HistoryTurns)

	v.SetDefault("tts.command", d.TTS.Command)
	v.SetDefault("tts.voice", d.TTS.Voice)
	v.SetDefault("tts.speed", d.TTS.Speed)
	v.SetDefault("tts.volume", d.TTS.Volume)

	v.SetDefault("gemini_api_key", "")
	v.SetDefault("openai_api_key", "")
}

func setHotkeyDefaults(v *viper.Viper, prefix string, h HotkeyConfig) {
	v.SetDefault(prefix+".ctrl", h.Ctrl)
	v.SetDefault(prefix+".shift", h.Shift)
	v.SetDefault(prefix+".alt", h.Alt)
	v.SetDefault(prefix+".cmd", h.Cmd)
	v.SetDefault(prefix+".key", h.Key)
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())
	// Plain provider variable names work too.
	_ = v.BindEnv("gemini_api_key", EnvPrefix+"_GEMINI_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("openai_api_key", EnvPrefix+"_OPENAI_API_KEY", "OPENAI_API_KEY")
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if config.Hotkey.Key == "" {
		config.Hotkey.Key = "Space"
	}
	if config.ConversationHotkey.Key == "" {
		config.ConversationHotkey.Key = "C"
	}

	return &config, nil
}

// Load loads configuration from the specified path. Missing files yield defaults
// (still subject to environment overrides).
func Load(path string) (*Config, error) {
	v := newViper(path)

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return decode(v)
}

// Watch reloads the file on change and hands each valid result to onChange.
func Watch(path string, onChange func(*Config, error)) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("cannot watch config file: %w", err)
	}

	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		config, err := decode(v)
		if err == nil {
			err = config.Validate()
		}
		onChange(config, err)
	})
	v.WatchConfig()
	return nil
}

// Save saves configuration to the specified path
func (c *Config) Save(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		homeDir, _ := os.UserHomeDir()
		dir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(dir, "banana4u-voice", "config.json")
}

// Update updates configuration fields from a decoded JSON object.
func (c *Config) Update(updates map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, value := range updates {
		switch key {
		case "recording_mode":
			if v, ok := value.(string); ok {
				if v != "press-to-hold" && v != "toggle" {
					return fmt.Errorf("invalid recording_mode: %s", v)
				}
				c.RecordingMode = v
			}
		case "language":
			if v, ok := value.(string); ok {
				c.Language = v
			}
		case "audio_device_id":
			if v, ok := value.(float64); ok {
				c.AudioDeviceID = int(v)
			}
		case "ui_language":
			if v, ok := value.(string); ok {
				if v != "ja" && v != "en" {
					return fmt.Errorf("invalid ui_language: %s", v)
				}
				c.UILanguage = v
			}
		case "max_record_time":
			if v, ok := value.(float64); ok {
				c.MaxRecordTime = int(v)
			}
		case "paste_split_size":
			if v, ok := value.(float64); ok {
				c.PasteSplitSize = int(v)
			}
		case "auto_paste":
			if v, ok := value.(bool); ok {
				c.AutoPaste = v
			}
		case "log_level":
			if v, ok := value.(string); ok {
				c.LogLevel = v
			}
		case "hotkey":
			if v, ok := value.(map[string]interface{}); ok {
				updateHotkey(&c.Hotkey, v)
			}
		case "conversation_hotkey":
			if v, ok := value.(map[string]interface{}); ok {
				updateHotkey(&c.ConversationHotkey, v)
			}
		case "vad":
			if v, ok := value.(map[string]interface{}); ok {
				if f, ok := v["voice_threshold"].(float64); ok {
					c.VAD.VoiceThreshold = f
				}
				if f, ok := v["silence_threshold"].(float64); ok {
					c.VAD.SilenceThreshold = f
				}
				if f, ok := v["silence_duration_ms"].(float64); ok {
					c.VAD.SilenceDurationMs = int(f)
				}
			}
		case "stt_provider":
			if v, ok := value.(string); ok {
				if !contains(validSTTProviders, v) {
					return fmt.Errorf("invalid stt_provider: %s", v)
				}
				c.STT.Provider = v
			}
		case "assistant_provider":
			if v, ok := value.(string); ok {
				if !contains(validAssistantProviders, v) {
					return fmt.Errorf("invalid assistant_provider: %s", v)
				}
				c.Assistant.Provider = v
			}
		}
	}

	return nil
}

func updateHotkey(h *HotkeyConfig, v map[string]interface{}) {
	if ctrl, ok := v["ctrl"].(bool); ok {
		h.Ctrl = ctrl
	}
	if shift, ok := v["shift"].(bool); ok {
		h.Shift = shift
	}
	if alt, ok := v["alt"].(bool); ok {
		h.Alt = alt
	}
	if cmd, ok := v["cmd"].(bool); ok {
		h.Cmd = cmd
	}
	if key, ok := v["key"].(string); ok {
		h.Key = key
	}
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return &Config{
		Hotkey:             c.Hotkey,
		ConversationHotkey: c.ConversationHotkey,
		RecordingMode:      c.RecordingMode,
		Language:           c.Language,
		AudioDeviceID:      c.AudioDeviceID,
		UILanguage:         c.UILanguage,
		MaxRecordTime:      c.MaxRecordTime,
		PasteSplitSize:     c.PasteSplitSize,
		AutoPaste:          c.AutoPaste,
		LogLevel:           c.LogLevel,
		ServerPort:         c.ServerPort,
		VAD:                c.VAD,
		Conversation:       c.Conversation,
		STT:                c.STT,
		Assistant:          c.Assistant,
		TTS:                c.TTS,
		GeminiAPIKey:       c.GeminiAPIKey,
		OpenAIAPIKey:       c.OpenAIAPIKey,
	}
}

// ExpandPath expands ~ to home directory in file paths
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(homeDir, path[2:]), nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	return absPath, nil
}

// ValidateModelPath validates the local whisper model path
func (c *Config) ValidateModelPath() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.STT.ModelPath == "" {
		return fmt.Errorf("model path is not set")
	}

	expandedPath, err := ExpandPath(c.STT.ModelPath)
	if err != nil {
		return fmt.Errorf("failed to expand model path: %w", err)
	}

	info, err := os.Stat(expandedPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", expandedPath)
	}
	if err != nil {
		return fmt.Errorf("failed to check model file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("model path is a directory, not a file: %s", expandedPath)
	}
	if !IsValidModelExtension(expandedPath) {
		return fmt.Errorf("model file must have .bin or .gguf extension: %s", expandedPath)
	}

	return nil
}

// Validate validates all configuration fields
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.RecordingMode != "press-to-hold" && c.RecordingMode != "toggle" {
		return fmt.Errorf("invalid recording_mode: %s (must be 'press-to-hold' or 'toggle')", c.RecordingMode)
	}

	if c.Language == "" {
		return fmt.Errorf("language cannot be empty")
	}

	if c.UILanguage != "ja" && c.UILanguage != "en" {
		return fmt.Errorf("invalid ui_language: %s (must be 'ja' or 'en')", c.UILanguage)
	}

	if c.MaxRecordTime <= 0 || c.MaxRecordTime > 300 {
		return fmt.Errorf("invalid max_record_time: %d (must be between 1 and 300 seconds)", c.MaxRecordTime)
	}

	if c.PasteSplitSize <= 0 || c.PasteSplitSize > 10000 {
		return fmt.Errorf("invalid paste_split_size: %d (must be between 1 and 10000 characters)", c.PasteSplitSize)
	}

	if c.VAD.VoiceThreshold <= 0 || c.VAD.VoiceThreshold > 255 {
		return fmt.Errorf("invalid vad.voice_threshold: %v (must be in (0, 255])", c.VAD.VoiceThreshold)
	}
	if c.VAD.SilenceThreshold <= 0 || c.VAD.SilenceThreshold > c.VAD.VoiceThreshold {
		return fmt.Errorf("invalid vad.silence_threshold: %v (must be in (0, voice_threshold])", c.VAD.SilenceThreshold)
	}
	if c.VAD.SilenceDurationMs <= 0 {
		return fmt.Errorf("invalid vad.silence_duration_ms: %d", c.VAD.SilenceDurationMs)
	}

	if c.Conversation.PollIntervalMs <= 0 || c.Conversation.PollIntervalMs > 100 {
		return fmt.Errorf("invalid conversation.poll_interval_ms: %d (must be between 1 and 100)", c.Conversation.PollIntervalMs)
	}
	if c.Conversation.PlaybackTimeoutMs < c.Conversation.PollIntervalMs {
		return fmt.Errorf("invalid conversation.playback_timeout_ms: %d", c.Conversation.PlaybackTimeoutMs)
	}
	if c.Conversation.SettleDelayMs < 0 || c.Conversation.ErrorBackoffMs < 0 || c.Conversation.OnsetTimeoutSec < 0 {
		return fmt.Errorf("conversation delays cannot be negative")
	}

	if !contains(validSTTProviders, c.STT.Provider) {
		return fmt.Errorf("invalid stt.provider: %s", c.STT.Provider)
	}
	if !contains(validAssistantProviders, c.Assistant.Provider) {
		return fmt.Errorf("invalid assistant.provider: %s", c.Assistant.Provider)
	}

	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid server_port: %d", c.ServerPort)
	}

	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
