package echo

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDropsEchoedSentence(t *testing.T) {
	f := NewFilter()
	f.SetBaseline("I think the sky is blue because of Rayleigh scattering.")

	res := f.Apply("That's a great question. I think the sky is blue.")

	assert.Equal(t, "That's a great question.", res.Text)
	assert.Equal(t, 1, res.Dropped)
	assert.False(t, res.EchoOnly())
	assert.Equal(t, "That's a great question.", res.Transcript())
}

func TestApplyExactEchoIsEmpty(t *testing.T) {
	f := NewFilter()
	utterance := "Bananas are berries. Strawberries are not!"
	f.SetBaseline(utterance)

	res := f.Apply(utterance)

	assert.Equal(t, "", res.Text)
	assert.Equal(t, 2, res.Dropped)
	assert.True(t, res.EchoOnly())
	assert.Equal(t, utterance, res.Transcript(), "raw transcript is returned rather than lost")
}

func TestApplyWithoutBaseline(t *testing.T) {
	f := NewFilter()

	res := f.Apply("Hello there. How are you?")
	assert.Equal(t, "Hello there. How are you?", res.Text)
	assert.Zero(t, res.Dropped)

	f.SetBaseline("Something")
	f.ClearBaseline()
	assert.Equal(t, "", f.Baseline())
	assert.Equal(t, "Hello there. How are you?", f.Apply("Hello there. How are you?").Text)
}

func TestApplyEmptyTranscript(t *testing.T) {
	f := NewFilter()
	f.SetBaseline("Anything at all.")

	res := f.Apply("")
	assert.Equal(t, "", res.Transcript())
	assert.False(t, res.EchoOnly())
}

func TestApplyRules(t *testing.T) {
	tests := []struct {
		name      string
		assistant string
		raw       string
		want      string
	}{
		{
			name:      "exact match after normalization",
			assistant: "Hello, World!",
			raw:       "hello world. What time is it?",
			want:      "What time is it?",
		},
		{
			name:      "short contained fragment survives",
			assistant: "The weather today is sunny and warm.",
			raw:       "Sunny. Tell me a joke.",
			want:      "Sunny. Tell me a joke.",
		},
		{
			name:      "long contained fragment dropped",
			assistant: "The weather today is sunny and warm.",
			raw:       "today is sunny. Tell me a joke.",
			want:      "Tell me a joke.",
		},
		{
			name:      "fragment containing assistant sentence dropped",
			assistant: "Here is a fun fact. Otters hold hands.",
			raw:       "well here is a fun fact for you. Cool!",
			want:      "Cool!",
		},
		{
			name:      "near duplicate with recognition errors dropped",
			assistant: "Let me check the calendar for you.",
			raw:       "Let me check the calender for yo. Thanks.",
			want:      "Thanks.",
		},
		{
			name:      "unrelated speech kept",
			assistant: "Paris is the capital of France.",
			raw:       "What about Germany? And Spain!",
			want:      "What about Germany. And Spain!",
		},
		{
			name:      "non-latin script compared by runes",
			assistant: "今日はいい天気ですね。",
			raw:       "今日はいい天気ですね。",
			want:      "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFilter()
			f.SetBaseline(tt.assistant)
			assert.Equal(t, tt.want, f.Apply(tt.raw).Text)
		})
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	cases := []struct {
		assistant string
		raw       string
	}{
		{"I think the sky is blue because of Rayleigh scattering.", "That's a great question. I think the sky is blue."},
		{"Sure! Here you go.", "Sure! Here you go."},
		{"Paris is lovely.", "Hi!  How are you? Fine... thanks"},
		{"Nothing matches this.", "Wait... what? Really!"},
		{"", "No baseline here. At all"},
	}

	for _, c := range cases {
		f := NewFilter()
		f.SetBaseline(c.assistant)

		once := f.Apply(c.raw).Transcript()
		twice := f.Apply(once).Transcript()
		assert.Equal(t, once, twice, "raw=%q", c.raw)
	}
}

func TestSplit(t *testing.T) {
	assert.Equal(t, []string{"One.", "Two!", "Three?", "Four"}, Split("One. Two! Three? Four"))
	assert.Equal(t, []string{"No boundary.here"}, Split("No boundary.here"))
	assert.Equal(t, []string{""}, Split(""))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "thats a great question", Normalize("  That's   a GREAT question!! "))
	assert.Equal(t, "", Normalize("?!..."))
	assert.Equal(t, "café 42", Normalize("Café, 42."))
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("", ""))
	assert.Equal(t, 1.0, Similarity("same", "same"))
	assert.Equal(t, 0.0, Similarity("abc", ""))
	assert.InDelta(t, 0.75, Similarity("abcd", "abce"), 1e-9)
	assert.InDelta(t, 0.8, Similarity("hello", "hallo"), 1e-9)
}

func TestBaselineConcurrentReaders(t *testing.T) {
	f := NewFilter()
	f.SetBaseline("First response.")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = f.Apply("First response. Something new.")
				_ = f.Baseline()
			}
		}()
	}
	for j := 0; j < 100; j++ {
		f.SetBaseline("Another response.")
	}
	wg.Wait()

	require.Equal(t, "Another response.", f.Baseline())
}
