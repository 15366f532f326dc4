// Package echo removes the assistant's own speech, picked up by the
// microphone from the speakers, out of a raw transcript.
package echo

import (
	"regexp"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

const (
	// SimilarityThreshold is the edit-distance similarity at which a
	// fragment counts as an echo.
	SimilarityThreshold = 0.8
	// MinContainedLength is the length a fragment must exceed to be dropped
	// for being contained in (or containing) an assistant fragment.
	MinContainedLength = 10
)

var (
	sentenceBoundary = regexp.MustCompile(`[.!?]\s+`)
	nonWord          = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
	whitespace       = regexp.MustCompile(`\s+`)
)

// Result is the outcome of filtering one transcript.
type Result struct {
	// Raw is the transcript as returned by speech-to-text.
	Raw string
	// Text holds the surviving fragments joined with ". ". Empty when every
	// fragment was dropped.
	Text string
	// Dropped counts fragments removed as echoes.
	Dropped int
}

// Transcript returns Text, or Raw when nothing survived, so user speech is
// never silently lost. Callers still apply their own minimum-length rule.
func (r Result) Transcript() string {
	if r.Text == "" {
		return r.Raw
	}
	return r.Text
}

// EchoOnly reports whether the transcript consisted entirely of echoes.
func (r Result) EchoOnly() bool {
	return r.Text == "" && r.Dropped > 0
}

type baseline struct {
	text      string
	fragments []string
}

// Filter compares transcripts against the assistant's last utterance.
// SetBaseline has a single writer; Apply may run on any goroutine.
type Filter struct {
	last atomic.Pointer[baseline]
}

// NewFilter returns a filter with no baseline.
func NewFilter() *Filter {
	return &Filter{}
}

// SetBaseline records the assistant's most recent utterance.
func (f *Filter) SetBaseline(utterance string) {
	b := &baseline{text: utterance}
	for _, part := range Split(utterance) {
		if n := Normalize(part); n != "" {
			b.fragments = append(b.fragments, n)
		}
	}
	f.last.Store(b)
}

// ClearBaseline forgets the last utterance.
func (f *Filter) ClearBaseline() {
	f.last.Store(nil)
}

// Baseline returns the current comparison utterance.
func (f *Filter) Baseline() string {
	if b := f.last.Load(); b != nil {
		return b.text
	}
	return ""
}

// Apply drops transcript fragments that repeat the baseline.
func (f *Filter) Apply(raw string) Result {
	b := f.last.Load()
	if raw == "" || b == nil || b.text == "" {
		return Result{Raw: raw, Text: raw}
	}

	var kept []string
	dropped := 0
	for _, part := range Split(raw) {
		normalized := Normalize(part)
		if normalized == "" {
			continue
		}
		if isEcho(normalized, b.fragments) {
			dropped++
			continue
		}
		kept = append(kept, part)
	}

	return Result{Raw: raw, Text: join(kept), Dropped: dropped}
}

func isEcho(fragment string, assistant []string) bool {
	for _, a := range assistant {
		if fragment == a {
			return true
		}
		if strings.Contains(a, fragment) && utf8.RuneCountInString(fragment) > MinContainedLength {
			return true
		}
		if strings.Contains(fragment, a) && utf8.RuneCountInString(a) > MinContainedLength {
			return true
		}
		if Similarity(fragment, a) >= SimilarityThreshold {
			return true
		}
	}
	return false
}

// Split breaks text into sentence-like fragments on '.', '!' or '?' followed
// by whitespace. Terminal punctuation stays attached to its fragment.
func Split(text string) []string {
	var parts []string
	start := 0
	for _, loc := range sentenceBoundary.FindAllStringIndex(text, -1) {
		parts = append(parts, text[start:loc[0]+1])
		start = loc[1]
	}
	return append(parts, text[start:])
}

// Normalize lowercases, strips punctuation and collapses whitespace.
func Normalize(text string) string {
	text = strings.ToLower(text)
	text = nonWord.ReplaceAllString(text, "")
	text = whitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Similarity returns (maxLen - distance) / maxLen over runes; two empty
// strings are identical.
func Similarity(a, b string) float64 {
	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	if longest == 0 {
		return 1.0
	}
	distance := levenshtein.ComputeDistance(a, b)
	return float64(longest-distance) / float64(longest)
}

func join(parts []string) string {
	if len(parts) == 0 {
		return ""
	}
	last := strings.TrimSpace(parts[len(parts)-1])
	terminal := ""
	if n := len(last); n > 0 && strings.ContainsAny(last[n-1:], ".!?") {
		terminal = last[n-1:]
	}

	trimmed := make([]string, len(parts))
	for i, p := range parts {
		trimmed[i] = strings.TrimRight(strings.TrimSpace(p), ".!?")
	}
	return strings.TrimSpace(strings.Join(trimmed, ". ") + terminal)
}
