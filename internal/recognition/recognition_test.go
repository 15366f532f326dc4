package recognition

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/yok-tottii/banana4u-voice/internal/audio"
)

type fakeGenerator struct {
	resp     *genai.GenerateContentResponse
	err      error
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.contents = contents
	f.config = config
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

type fakeTranscriptions struct {
	text   string
	err    error
	params openai.AudioTranscriptionNewParams
}

func (f *fakeTranscriptions) New(ctx context.Context, body openai.AudioTranscriptionNewParams, opts ...option.RequestOption) (*openai.Transcription, error) {
	f.params = body
	if f.err != nil {
		return nil, f.err
	}
	return &openai.Transcription{Text: f.text}, nil
}

func openAIError(status int) error {
	return &openai.Error{
		StatusCode: status,
		Request:    httptest.NewRequest(http.MethodPost, "https://api.openai.com/v1/audio/transcriptions", nil),
		Response:   &http.Response{StatusCode: status},
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, ProviderGemini, config.Provider)
	assert.Equal(t, "auto", config.Language)
	assert.Equal(t, 30.0, config.Timeout.Seconds())
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New(context.Background(), Config{Provider: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestNewHostedProvidersRequireKeys(t *testing.T) {
	_, err := New(context.Background(), Config{Provider: ProviderGemini})
	te, ok := AsTranscriptionError(err)
	require.True(t, ok)
	assert.Equal(t, AuthInvalid, te.Kind)

	_, err = New(context.Background(), Config{Provider: ProviderOpenAI})
	te, ok = AsTranscriptionError(err)
	require.True(t, ok)
	assert.Equal(t, AuthInvalid, te.Kind)
}

func TestKindForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorKind
	}{
		{400, FormatUnsupported},
		{401, AuthInvalid},
		{403, AuthInvalid},
		{408, Timeout},
		{429, RateLimited},
		{500, Network},
		{503, Network},
		{504, Timeout},
		{404, Unknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindForStatus(tt.status), "status %d", tt.status)
	}
}

func TestKindForError(t *testing.T) {
	assert.Equal(t, Timeout, kindForError(context.DeadlineExceeded))
	assert.Equal(t, Network, kindForError(&net.OpError{Op: "dial", Err: errors.New("connection refused")}))
	assert.Equal(t, Network, kindForError(errors.New("Network is unreachable")))
	assert.Equal(t, Unknown, kindForError(errors.New("weird")))
}

func TestErrorKindMessages(t *testing.T) {
	kinds := []ErrorKind{Unknown, FormatUnsupported, RateLimited, AuthInvalid, Timeout, Network, Blocked, Empty}
	seen := map[string]bool{}
	for _, k := range kinds {
		assert.NotEmpty(t, k.UserMessage())
		assert.False(t, seen[k.String()], "duplicate name %s", k)
		seen[k.String()] = true
	}
}

func TestTranscriptionErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := error(newError(ProviderGemini, Network, cause))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "network")

	wrapped := errors.Join(errors.New("outer"), err)
	te, ok := AsTranscriptionError(wrapped)
	require.True(t, ok)
	assert.Equal(t, Network, te.Kind)
}

func TestGeminiTranscribe(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse("  What's the weather?\n")}
	g := newGeminiTranscriber(gen, Config{Language: "auto"})

	text, err := g.Transcribe(context.Background(), []byte("RIFF...."), audio.WAVMimeType)
	require.NoError(t, err)
	assert.Equal(t, "What's the weather?", text)

	assert.Equal(t, defaultGeminiModel, gen.model)
	require.Len(t, gen.contents, 1)
	parts := gen.contents[0].Parts
	require.Len(t, parts, 2)
	assert.Equal(t, TranscriptionPrompt, parts[0].Text)
	require.NotNil(t, parts[1].InlineData)
	assert.Equal(t, audio.WAVMimeType, parts[1].InlineData.MIMEType)
	assert.Equal(t, []byte("RIFF...."), parts[1].InlineData.Data)

	require.NotNil(t, gen.config.Temperature)
	assert.InDelta(t, 0.1, *gen.config.Temperature, 1e-6)
	assert.EqualValues(t, 1000, gen.config.MaxOutputTokens)
}

func TestGeminiLanguageHint(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse("こんにちは")}
	g := newGeminiTranscriber(gen, Config{Language: "ja", Model: "gemini-custom"})

	_, err := g.Transcribe(context.Background(), []byte("x"), audio.WAVMimeType)
	require.NoError(t, err)
	assert.Equal(t, "gemini-custom", gen.model)
	assert.Contains(t, gen.contents[0].Parts[0].Text, "ja")
}

func TestGeminiErrors(t *testing.T) {
	tests := []struct {
		name string
		gen  *fakeGenerator
		want ErrorKind
	}{
		{"rate limited", &fakeGenerator{err: genai.APIError{Code: 429, Message: "quota"}}, RateLimited},
		{"bad key", &fakeGenerator{err: genai.APIError{Code: 403, Message: "denied"}}, AuthInvalid},
		{"bad audio", &fakeGenerator{err: genai.APIError{Code: 400, Message: "invalid audio"}}, FormatUnsupported},
		{"deadline", &fakeGenerator{err: context.DeadlineExceeded}, Timeout},
		{"empty text", &fakeGenerator{resp: textResponse("   ")}, Empty},
		{"no candidates", &fakeGenerator{resp: &genai.GenerateContentResponse{}}, Empty},
		{
			"prompt blocked",
			&fakeGenerator{resp: &genai.GenerateContentResponse{
				PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety},
			}},
			Blocked,
		},
		{
			"safety finish",
			&fakeGenerator{resp: &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}},
			}},
			Blocked,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGeminiTranscriber(tt.gen, Config{})
			_, err := g.Transcribe(context.Background(), []byte("x"), audio.WAVMimeType)
			te, ok := AsTranscriptionError(err)
			require.True(t, ok)
			assert.Equal(t, tt.want, te.Kind)
			assert.Equal(t, ProviderGemini, te.Provider)
		})
	}
}

func TestOpenAITranscribe(t *testing.T) {
	fake := &fakeTranscriptions{text: " Tell me a joke. "}
	o := newOpenAITranscriber(fake, Config{Language: "en"})

	text, err := o.Transcribe(context.Background(), []byte("RIFF"), audio.WAVMimeType)
	require.NoError(t, err)
	assert.Equal(t, "Tell me a joke.", text)
	assert.Equal(t, openai.AudioModelWhisper1, fake.params.Model)
	assert.Equal(t, "en", fake.params.Language.Value)
}

func TestOpenAIErrors(t *testing.T) {
	tests := []struct {
		name string
		fake *fakeTranscriptions
		want ErrorKind
	}{
		{"rate limited", &fakeTranscriptions{err: openAIError(429)}, RateLimited},
		{"unauthorized", &fakeTranscriptions{err: openAIError(401)}, AuthInvalid},
		{"server", &fakeTranscriptions{err: openAIError(502)}, Network},
		{"empty", &fakeTranscriptions{text: ""}, Empty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newOpenAITranscriber(tt.fake, Config{})
			_, err := o.Transcribe(context.Background(), []byte("RIFF"), audio.WAVMimeType)
			te, ok := AsTranscriptionError(err)
			require.True(t, ok)
			assert.Equal(t, tt.want, te.Kind)
		})
	}
}

func TestFileNameFor(t *testing.T) {
	assert.Equal(t, "audio.wav", fileNameFor(audio.WAVMimeType))
	assert.Equal(t, "audio.webm", fileNameFor("audio/webm"))
	assert.Equal(t, "audio.wav", fileNameFor(""))
}

func TestWhisperModelPathErrors(t *testing.T) {
	_, err := NewWhisperTranscriber(Config{})
	assert.Error(t, err)

	_, err = NewWhisperTranscriber(Config{ModelPath: filepath.Join(t.TempDir(), "missing.bin")})
	assert.Error(t, err)
}

func TestWhisperRejectsInput(t *testing.T) {
	w := &WhisperTranscriber{}

	_, err := w.Transcribe(context.Background(), []byte("data"), "audio/webm")
	te, ok := AsTranscriptionError(err)
	require.True(t, ok)
	assert.Equal(t, FormatUnsupported, te.Kind)

	_, err = w.Transcribe(context.Background(), []byte("not a wav file at all"), audio.WAVMimeType)
	te, ok = AsTranscriptionError(err)
	require.True(t, ok)
	assert.Equal(t, FormatUnsupported, te.Kind)
}

func TestWhisperModelNotLoaded(t *testing.T) {
	wav, err := audio.EncodeWAV(audio.Int16ToBytes(make([]int16, 1600)), 16000, 1)
	require.NoError(t, err)

	w := &WhisperTranscriber{}
	_, err = w.Transcribe(context.Background(), wav, audio.WAVMimeType)
	te, ok := AsTranscriptionError(err)
	require.True(t, ok)
	assert.Equal(t, Unknown, te.Kind)
	assert.NoError(t, w.Close())
}

func TestGetDefaultModelPath(t *testing.T) {
	modelPath := GetDefaultModelPath()
	require.NotEmpty(t, modelPath)
	assert.True(t, filepath.IsAbs(modelPath))
	assert.Contains(t, modelPath, "banana4u-voice")
}

func TestFindModelMissing(t *testing.T) {
	_, err := FindModel("nonexistent-model-for-tests.bin")
	assert.Error(t, err)
}
