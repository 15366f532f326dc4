package recognition

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/yok-tottii/banana4u-voice/internal/audio"
)

// whisperSampleRate is the only rate whisper.cpp accepts.
const whisperSampleRate = 16000

// WhisperTranscriber runs a local whisper.cpp model. It accepts WAV input.
type WhisperTranscriber struct {
	mu    sync.Mutex
	model whisper.Model
	cfg   Config
}

// NewWhisperTranscriber loads the model at cfg.ModelPath.
func NewWhisperTranscriber(cfg Config) (*WhisperTranscriber, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("whisper model path is empty")
	}
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	model, err := whisper.New(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load model from %s: %w", cfg.ModelPath, err)
	}
	return &WhisperTranscriber{model: model, cfg: cfg}, nil
}

// Transcribe implements SpeechToText.
func (w *WhisperTranscriber) Transcribe(ctx context.Context, data []byte, mimeType string) (string, error) {
	if mimeType != audio.WAVMimeType {
		return "", newError(ProviderWhisper, FormatUnsupported, fmt.Errorf("unsupported mime type %q", mimeType))
	}

	samples, rate, err := audio.DecodeWAV(data)
	if err != nil {
		return "", newError(ProviderWhisper, FormatUnsupported, err)
	}
	if rate != whisperSampleRate {
		samples = audio.ResampleLinear(samples, rate, whisperSampleRate)
	}
	if len(samples) == 0 {
		return "", newError(ProviderWhisper, Empty, errors.New("no audio samples"))
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.model == nil {
		return "", newError(ProviderWhisper, Unknown, errors.New("model not loaded"))
	}

	wctx, err := w.model.NewContext()
	if err != nil {
		return "", newError(ProviderWhisper, Unknown, fmt.Errorf("new context: %w", err))
	}

	language := w.cfg.Language
	if language == "" {
		language = "auto"
	}
	if err := wctx.SetLanguage(language); err != nil {
		return "", newError(ProviderWhisper, Unknown, fmt.Errorf("set language: %w", err))
	}
	wctx.SetTranslate(false)

	threads := w.cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	wctx.SetThreads(uint(threads))

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", newError(ProviderWhisper, Unknown, fmt.Errorf("process: %w", err))
	}

	var parts []string
	for {
		if err := ctx.Err(); err != nil {
			return "", newError(ProviderWhisper, Timeout, err)
		}
		segment, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", newError(ProviderWhisper, Unknown, fmt.Errorf("next segment: %w", err))
		}
		parts = append(parts, strings.TrimSpace(segment.Text))
	}

	text := strings.TrimSpace(strings.Join(parts, " "))
	if text == "" {
		return "", newError(ProviderWhisper, Empty, nil)
	}
	return text, nil
}

// Close releases the model.
func (w *WhisperTranscriber) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.model == nil {
		return nil
	}
	err := w.model.Close()
	w.model = nil
	return err
}
