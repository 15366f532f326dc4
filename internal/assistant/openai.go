package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

type completionCreator interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAIResponder answers with an OpenAI chat model.
type OpenAIResponder struct {
	completions completionCreator
	cfg         Config
	history     *History
}

// NewOpenAIResponder creates an OpenAI client from cfg.APIKey.
func NewOpenAIResponder(cfg Config) (*OpenAIResponder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("missing OpenAI API key")
	}
	client := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return newOpenAIResponder(&client.Chat.Completions, cfg), nil
}

func newOpenAIResponder(c completionCreator, cfg Config) *OpenAIResponder {
	if cfg.Model == "" {
		cfg.Model = string(openai.ChatModelGPT4oMini)
	}
	return &OpenAIResponder{completions: c, cfg: cfg, history: NewHistory(cfg.HistoryTurns)}
}

// Respond implements Responder.
func (o *OpenAIResponder) Respond(ctx context.Context, transcript string) (string, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if o.cfg.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(o.cfg.SystemPrompt))
	}
	for _, ex := range o.history.Snapshot() {
		messages = append(messages, openai.UserMessage(ex.User), openai.AssistantMessage(ex.Assistant))
	}
	messages = append(messages, openai.UserMessage(transcript))

	resp, err := o.completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: messages,
		Model:    openai.ChatModel(o.cfg.Model),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", ErrEmptyResponse
	}
	o.history.Add(transcript, reply)
	return reply, nil
}

// Reset clears the conversation history.
func (o *OpenAIResponder) Reset() {
	o.history.Reset()
}
