package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiResponder answers with a Gemini chat model.
type GeminiResponder struct {
	models  contentGenerator
	cfg     Config
	history *History
}

// NewGeminiResponder creates a Gemini client from cfg.APIKey.
func NewGeminiResponder(ctx context.Context, cfg Config) (*GeminiResponder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("missing Gemini API key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return newGeminiResponder(client.Models, cfg), nil
}

func newGeminiResponder(models contentGenerator, cfg Config) *GeminiResponder {
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}
	return &GeminiResponder{models: models, cfg: cfg, history: NewHistory(cfg.HistoryTurns)}
}

// Respond implements Responder.
func (g *GeminiResponder) Respond(ctx context.Context, transcript string) (string, error) {
	var contents []*genai.Content
	for _, ex := range g.history.Snapshot() {
		contents = append(contents,
			genai.NewContentFromText(ex.User, genai.RoleUser),
			genai.NewContentFromText(ex.Assistant, genai.RoleModel),
		)
	}
	contents = append(contents, genai.NewContentFromText(transcript, genai.RoleUser))

	config := &genai.GenerateContentConfig{}
	if g.cfg.SystemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(g.cfg.SystemPrompt, genai.RoleUser)
	}

	resp, err := g.models.GenerateContent(ctx, g.cfg.Model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	reply := strings.TrimSpace(resp.Text())
	if reply == "" {
		return "", ErrEmptyResponse
	}
	g.history.Add(transcript, reply)
	return reply, nil
}

// Reset clears the conversation history.
func (g *GeminiResponder) Reset() {
	g.history.Reset()
}
