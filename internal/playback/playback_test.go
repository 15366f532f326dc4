package playback

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/faiface/beep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yok-tottii/banana4u-voice/internal/playback/playbacktest"
)

type toneStream struct {
	pos, n int
}

func (s *toneStream) Stream(samples [][2]float64) (int, bool) {
	if s.pos >= s.n {
		return 0, false
	}
	count := 0
	for i := range samples {
		if s.pos >= s.n {
			break
		}
		samples[i][0], samples[i][1] = 0.5, 0.5
		s.pos++
		count++
	}
	return count, true
}

func (s *toneStream) Err() error       { return nil }
func (s *toneStream) Len() int         { return s.n }
func (s *toneStream) Position() int    { return s.pos }
func (s *toneStream) Seek(p int) error { s.pos = p; return nil }
func (s *toneStream) Close() error     { return nil }

type fakeSynth struct {
	samples int
	rate    beep.SampleRate
	err     error
}

func (f fakeSynth) Synthesize(ctx context.Context, text string) (beep.StreamSeekCloser, beep.Format, error) {
	if f.err != nil {
		return nil, beep.Format{}, f.err
	}
	return &toneStream{n: f.samples}, beep.Format{SampleRate: f.rate, NumChannels: 1, Precision: 2}, nil
}

// fakeOutput pulls audio on its own goroutine about ten times faster than real time.
type fakeOutput struct {
	mu    sync.Mutex
	inits int
	peak  float64
}

func (o *fakeOutput) Init(beep.SampleRate, int) error {
	o.inits++
	return nil
}

func (o *fakeOutput) Play(s beep.Streamer) {
	go func() {
		buf := make([][2]float64, 441)
		for {
			o.mu.Lock()
			n, ok := s.Stream(buf)
			peak := 0.0
			for _, smp := range buf[:n] {
				peak = math.Max(peak, math.Abs(smp[0]))
			}
			if n > 0 {
				o.peak = peak
			}
			o.mu.Unlock()
			if !ok {
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()
}

func (o *fakeOutput) Lock()   { o.mu.Lock() }
func (o *fakeOutput) Unlock() { o.mu.Unlock() }

func (o *fakeOutput) lastPeak() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.peak
}

func TestWaitSilentAlreadySilent(t *testing.T) {
	c := playbacktest.New()
	assert.NoError(t, WaitSilent(context.Background(), c, time.Second, 10*time.Millisecond))
}

func TestWaitSilentTimeout(t *testing.T) {
	c := playbacktest.New()
	c.SetSpeaking(true)

	started := time.Now()
	err := WaitSilent(context.Background(), c, 50*time.Millisecond, 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrSyncTimeout)
	assert.GreaterOrEqual(t, time.Since(started), 50*time.Millisecond)
}

func TestWaitSilentObservesStop(t *testing.T) {
	c := playbacktest.New()
	c.SetSpeaking(true)

	go func() {
		time.Sleep(30 * time.Millisecond)
		c.SetSpeaking(false)
	}()
	assert.NoError(t, WaitSilent(context.Background(), c, time.Second, 10*time.Millisecond))
}

func TestWaitSilentCancel(t *testing.T) {
	c := playbacktest.New()
	c.SetSpeaking(true)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	started := time.Now()
	err := WaitSilent(ctx, c, 5*time.Second, 100*time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(started), 100*time.Millisecond)
}

func TestPlayerPlaysToCompletion(t *testing.T) {
	out := &fakeOutput{}
	p := NewPlayer(fakeSynth{samples: 4410, rate: 44100}, WithOutput(out))

	require.NoError(t, p.Play(context.Background(), "hello"))
	assert.False(t, p.IsSpeaking())

	require.NoError(t, p.Play(context.Background(), "again"))
	assert.Equal(t, 1, out.inits, "speaker is initialized once")
}

func TestPlayerResamples(t *testing.T) {
	p := NewPlayer(fakeSynth{samples: 2205, rate: 22050}, WithOutput(&fakeOutput{}))
	require.NoError(t, p.Play(context.Background(), "slow rate"))
	assert.False(t, p.IsSpeaking())
}

func TestPlayerEmptyTextIsNoop(t *testing.T) {
	out := &fakeOutput{}
	p := NewPlayer(fakeSynth{err: errors.New("must not be called")}, WithOutput(out))
	assert.NoError(t, p.Play(context.Background(), ""))
	assert.Zero(t, out.inits)
}

func TestPlayerSynthesisError(t *testing.T) {
	boom := errors.New("boom")
	p := NewPlayer(fakeSynth{err: boom}, WithOutput(&fakeOutput{}))
	assert.ErrorIs(t, p.Play(context.Background(), "hi"), boom)
	assert.False(t, p.IsSpeaking())
}

func TestPlayerStopInterrupts(t *testing.T) {
	p := NewPlayer(fakeSynth{samples: 44100 * 60, rate: 44100}, WithOutput(&fakeOutput{}))

	done := make(chan error, 1)
	go func() { done <- p.Play(context.Background(), "a very long answer") }()

	require.Eventually(t, p.IsSpeaking, time.Second, 5*time.Millisecond)
	p.Stop()
	p.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Play did not return after Stop")
	}
	assert.False(t, p.IsSpeaking())
}

func TestPlayerStopWhenSilent(t *testing.T) {
	p := NewPlayer(fakeSynth{}, WithOutput(&fakeOutput{}))
	assert.NotPanics(t, p.Stop)
	assert.False(t, p.IsSpeaking())
}

func TestPlayerContextCancel(t *testing.T) {
	p := NewPlayer(fakeSynth{samples: 44100 * 60, rate: 44100}, WithOutput(&fakeOutput{}))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, p.Play(ctx, "interrupted"), context.DeadlineExceeded)
	assert.False(t, p.IsSpeaking())
}

func TestPlayerMuteKeepsVolume(t *testing.T) {
	out := &fakeOutput{}
	p := NewPlayer(fakeSynth{samples: 44100 * 60, rate: 44100}, WithOutput(out), WithVolume(0))

	p.Mute()
	p.Mute()
	assert.True(t, p.Muted())

	go func() { _ = p.Play(context.Background(), "muted speech") }()
	require.Eventually(t, p.IsSpeaking, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0.0, out.lastPeak())

	p.Unmute()
	assert.False(t, p.Muted())
	assert.Eventually(t, func() bool { return math.Abs(out.lastPeak()-0.5) < 1e-9 }, time.Second, 5*time.Millisecond)

	p.Stop()
	assert.Eventually(t, func() bool { return !p.IsSpeaking() }, time.Second, 5*time.Millisecond)
}

func TestEspeakArgs(t *testing.T) {
	s := NewEspeakSynthesizer("", "en-us", 175)
	assert.Equal(t, "espeak-ng", s.Command)
	assert.Equal(t, []string{"--stdout", "-v", "en-us", "-s", "175", "hello"}, s.Args("hello"))

	bare := NewEspeakSynthesizer("say", "", 0)
	assert.Equal(t, []string{"--stdout", "hi"}, bare.Args("hi"))
}

func TestEspeakMissingCommand(t *testing.T) {
	s := NewEspeakSynthesizer("banana4u-no-such-synth", "", 0)
	_, _, err := s.Synthesize(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrSynthesizerMissing)
}
