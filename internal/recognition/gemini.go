package recognition

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// TranscriptionPrompt asks the model to keep only the human side of a
// recording that may also contain the assistant's voice.
const TranscriptionPrompt = "Listen to this audio carefully. This recording may contain TWO voices: " +
	"(1) An AI assistant speaking, and (2) A human user speaking. Your task is to transcribe ONLY what " +
	"the HUMAN USER said. IGNORE and DO NOT transcribe the AI assistant's voice. If you only hear the AI " +
	"assistant and no human speech, return an empty response. Return ONLY the human user's spoken words, " +
	"nothing else."

const defaultGeminiModel = "gemini-2.0-flash"

// contentGenerator is the slice of the genai client used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiTranscriber sends audio inline to a Gemini model.
type GeminiTranscriber struct {
	models contentGenerator
	cfg    Config
}

// NewGeminiTranscriber creates a Gemini client from cfg.APIKey.
func NewGeminiTranscriber(ctx context.Context, cfg Config) (*GeminiTranscriber, error) {
	if cfg.APIKey == "" {
		return nil, newError(ProviderGemini, AuthInvalid, errors.New("missing Gemini API key"))
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return newGeminiTranscriber(client.Models, cfg), nil
}

func newGeminiTranscriber(models contentGenerator, cfg Config) *GeminiTranscriber {
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &GeminiTranscriber{models: models, cfg: cfg}
}

// Transcribe implements SpeechToText.
func (g *GeminiTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	prompt := TranscriptionPrompt
	if g.cfg.Language != "" && g.cfg.Language != "auto" {
		prompt += " The user speaks language code " + g.cfg.Language + "."
	}

	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{Text: prompt},
			{InlineData: &genai.Blob{MIMEType: mimeType, Data: audio}},
		},
	}}
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0.1),
		TopP:            genai.Ptr[float32](0.95),
		MaxOutputTokens: 1000,
	}

	resp, err := g.models.GenerateContent(ctx, g.cfg.Model, contents, config)
	if err != nil {
		return "", classifyGemini(err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", newError(ProviderGemini, Blocked, fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason))
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return "", newError(ProviderGemini, Blocked, errors.New("response blocked by safety filters"))
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", newError(ProviderGemini, Empty, nil)
	}
	return text, nil
}

func classifyGemini(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return newError(ProviderGemini, KindForStatus(apiErr.Code), err)
	}
	return newError(ProviderGemini, kindForError(err), err)
}
