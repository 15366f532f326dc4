package recognition

import (
	"bytes"
	"context"
	"errors"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

type transcriptionCreator interface {
	New(ctx context.Context, body openai.AudioTranscriptionNewParams, opts ...option.RequestOption) (*openai.Transcription, error)
}

// OpenAITranscriber uploads audio to the OpenAI transcription endpoint.
type OpenAITranscriber struct {
	transcriptions transcriptionCreator
	cfg            Config
}

// NewOpenAITranscriber creates an OpenAI client from cfg.APIKey.
func NewOpenAITranscriber(cfg Config) (*OpenAITranscriber, error) {
	if cfg.APIKey == "" {
		return nil, newError(ProviderOpenAI, AuthInvalid, errors.New("missing OpenAI API key"))
	}
	client := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return newOpenAITranscriber(&client.Audio.Transcriptions, cfg), nil
}

func newOpenAITranscriber(t transcriptionCreator, cfg Config) *OpenAITranscriber {
	if cfg.Model == "" {
		cfg.Model = string(openai.AudioModelWhisper1)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &OpenAITranscriber{transcriptions: t, cfg: cfg}
}

// Transcribe implements SpeechToText.
func (o *OpenAITranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(audio), fileNameFor(mimeType), mimeType),
		Model: openai.AudioModel(o.cfg.Model),
	}
	if o.cfg.Language != "" && o.cfg.Language != "auto" {
		params.Language = openai.String(o.cfg.Language)
	}

	resp, err := o.transcriptions.New(ctx, params)
	if err != nil {
		return "", classifyOpenAI(err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", newError(ProviderOpenAI, Empty, nil)
	}
	return text, nil
}

func fileNameFor(mimeType string) string {
	switch mimeType {
	case "audio/webm":
		return "audio.webm"
	case "audio/ogg":
		return "audio.ogg"
	case "audio/mpeg":
		return "audio.mp3"
	default:
		return "audio.wav"
	}
}

func classifyOpenAI(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return newError(ProviderOpenAI, KindForStatus(apiErr.StatusCode), err)
	}
	return newError(ProviderOpenAI, kindForError(err), err)
}
