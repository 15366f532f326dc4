package playback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/faiface/beep"
	"github.com/faiface/beep/wav"
)

// ErrSynthesizerMissing means the speech command is not installed.
var ErrSynthesizerMissing = errors.New("speech synthesizer not found")

// EspeakSynthesizer renders speech with an espeak-compatible command that
// writes a WAV file to stdout.
type EspeakSynthesizer struct {
	Command string
	Voice   string
	Speed   int
}

// NewEspeakSynthesizer returns a synthesizer for command (espeak-ng when empty).
func NewEspeakSynthesizer(command, voice string, speed int) *EspeakSynthesizer {
	if command == "" {
		command = "espeak-ng"
	}
	return &EspeakSynthesizer{Command: command, Voice: voice, Speed: speed}
}

// Args returns the command line arguments used for text.
func (s *EspeakSynthesizer) Args(text string) []string {
	args := []string{"--stdout"}
	if s.Voice != "" {
		args = append(args, "-v", s.Voice)
	}
	if s.Speed > 0 {
		args = append(args, "-s", strconv.Itoa(s.Speed))
	}
	return append(args, text)
}

// Synthesize runs the command and decodes its WAV output.
func (s *EspeakSynthesizer) Synthesize(ctx context.Context, text string) (beep.StreamSeekCloser, beep.Format, error) {
	path, err := exec.LookPath(s.Command)
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("%w: %s", ErrSynthesizerMissing, s.Command)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, s.Args(text)...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("%s failed: %w: %s", s.Command, err, bytes.TrimSpace(stderr.Bytes()))
	}

	stream, format, err := wav.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("failed to decode synthesized audio: %w", err)
	}
	return stream, format, nil
}
