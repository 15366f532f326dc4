// Package recognition turns captured audio into text through a hosted or
// local speech-to-text engine.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SpeechToText transcribes one recording.
type SpeechToText interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// Provider names accepted in Config.Provider.
const (
	ProviderGemini  = "gemini"
	ProviderOpenAI  = "openai"
	ProviderWhisper = "whisper"
)

// Config holds recognition configuration
type Config struct {
	Provider  string
	Model     string
	ModelPath string        // local whisper model file
	Language  string        // "auto" lets the engine decide
	APIKey    string        // hosted providers only
	Timeout   time.Duration // per request
	Threads   int           // local engine, 0 = auto
}

// DefaultConfig returns the default recognition configuration
func DefaultConfig() Config {
	return Config{
		Provider: ProviderGemini,
		Language: "auto",
		Timeout:  30 * time.Second,
	}
}

// New builds the engine selected by cfg.Provider.
func New(ctx context.Context, cfg Config) (SpeechToText, error) {
	switch cfg.Provider {
	case ProviderGemini, "":
		return NewGeminiTranscriber(ctx, cfg)
	case ProviderOpenAI:
		return NewOpenAITranscriber(cfg)
	case ProviderWhisper:
		return NewWhisperTranscriber(cfg)
	default:
		return nil, fmt.Errorf("unknown speech-to-text provider: %s", cfg.Provider)
	}
}

// ErrorKind classifies a transcription failure.
type ErrorKind int

const (
	// Unknown is any failure not covered below
	Unknown ErrorKind = iota
	// FormatUnsupported means the engine rejected the audio encoding
	FormatUnsupported
	// RateLimited means the provider throttled the request
	RateLimited
	// AuthInvalid means the API key is missing, invalid or expired
	AuthInvalid
	// Timeout means the request exceeded its deadline
	Timeout
	// Network means the provider could not be reached
	Network
	// Blocked means the provider refused the content
	Blocked
	// Empty means the engine returned no text
	Empty
)

// String returns the string representation of the kind
func (k ErrorKind) String() string {
	switch k {
	case FormatUnsupported:
		return "format-unsupported"
	case RateLimited:
		return "rate-limited"
	case AuthInvalid:
		return "auth-invalid"
	case Timeout:
		return "timeout"
	case Network:
		return "network"
	case Blocked:
		return "blocked"
	case Empty:
		return "empty"
	default:
		return "unknown"
	}
}

// UserMessage returns a short explanation suitable for a notification.
func (k ErrorKind) UserMessage() string {
	switch k {
	case FormatUnsupported:
		return "The audio format isn't supported by the speech service."
	case RateLimited:
		return "Too many requests. Please wait a moment and try again."
	case AuthInvalid:
		return "There's an issue with the API key. Please check the configuration."
	case Timeout:
		return "Transcription is taking too long. Please try shorter audio."
	case Network:
		return "Network connection issue. Please check your internet."
	case Blocked:
		return "The content was blocked by safety filters. Please try again."
	case Empty:
		return "No speech was recognized. Please speak clearly and try again."
	default:
		return "Transcription failed."
	}
}

// TranscriptionError is returned by every SpeechToText implementation.
type TranscriptionError struct {
	Kind     ErrorKind
	Provider string
	Err      error
}

func (e *TranscriptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s transcription failed (%s): %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s transcription failed (%s)", e.Provider, e.Kind)
}

func (e *TranscriptionError) Unwrap() error {
	return e.Err
}

// AsTranscriptionError extracts a TranscriptionError from err.
func AsTranscriptionError(err error) (*TranscriptionError, bool) {
	var te *TranscriptionError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// KindForStatus maps an HTTP status code to an error kind.
func KindForStatus(status int) ErrorKind {
	switch {
	case status == 400 || status == 415:
		return FormatUnsupported
	case status == 401 || status == 403:
		return AuthInvalid
	case status == 408 || status == 504:
		return Timeout
	case status == 429:
		return RateLimited
	case status >= 500:
		return Network
	default:
		return Unknown
	}
}

// kindForError classifies transport-level failures that carry no status.
func kindForError(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return Timeout
		}
		return Network
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return Network
	}
	if strings.Contains(strings.ToLower(err.Error()), "network") {
		return Network
	}
	return Unknown
}

func newError(provider string, kind ErrorKind, err error) *TranscriptionError {
	return &TranscriptionError{Kind: kind, Provider: provider, Err: err}
}

// GetDefaultModelPath returns the default directory for local whisper models
func GetDefaultModelPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(homeDir, "Library", "Application Support", "banana4u-voice", "models")
}

// FindModel searches for a model file in the default model directory
func FindModel(modelName string) (string, error) {
	modelDir := GetDefaultModelPath()

	if _, err := os.Stat(modelDir); os.IsNotExist(err) {
		return "", fmt.Errorf("model directory not found: %s", modelDir)
	}

	modelPath := filepath.Join(modelDir, modelName)
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return "", fmt.Errorf("model file not found: %s", modelPath)
	}

	return modelPath, nil
}
