package playback

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/speaker"
	"github.com/rs/zerolog"
)

// Synthesizer turns text into an audio stream.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (beep.StreamSeekCloser, beep.Format, error)
}

// Output is the audio sink. The default is the system speaker.
type Output interface {
	Init(sampleRate beep.SampleRate, bufferSize int) error
	Play(s beep.Streamer)
	Lock()
	Unlock()
}

type speakerOutput struct{}

func (speakerOutput) Init(sr beep.SampleRate, bufferSize int) error {
	return speaker.Init(sr, bufferSize)
}
func (speakerOutput) Play(s beep.Streamer) { speaker.Play(s) }
func (speakerOutput) Lock()                { speaker.Lock() }
func (speakerOutput) Unlock()              { speaker.Unlock() }

// SpeakerOutput returns the system speaker.
func SpeakerOutput() Output {
	return speakerOutput{}
}

type utterance struct {
	ctrl *beep.Ctrl
	vol  *effects.Volume
	done chan struct{}
	once sync.Once
}

// Player implements Coordinator on top of a beep output. Mute silences the
// current and future utterances while keeping the volume level, so Unmute
// restores it.
type Player struct {
	synth      Synthesizer
	out        Output
	sampleRate beep.SampleRate
	log        zerolog.Logger

	mu          sync.Mutex
	initialized bool
	muted       bool
	volume      float64
	current     *utterance
	speaking    atomic.Bool
}

// PlayerOption configures a Player.
type PlayerOption func(*Player)

// WithOutput replaces the system speaker.
func WithOutput(out Output) PlayerOption {
	return func(p *Player) { p.out = out }
}

// WithVolume sets the base volume (0 is unchanged, each +1 doubles amplitude).
func WithVolume(v float64) PlayerOption {
	return func(p *Player) { p.volume = v }
}

// WithLogger attaches a logger.
func WithLogger(l zerolog.Logger) PlayerOption {
	return func(p *Player) { p.log = l }
}

// NewPlayer creates a player that synthesizes with synth.
func NewPlayer(synth Synthesizer, opts ...PlayerOption) *Player {
	p := &Player{
		synth:      synth,
		out:        speakerOutput{},
		sampleRate: beep.SampleRate(44100),
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Player) ensureInit() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return nil
	}
	if err := p.out.Init(p.sampleRate, p.sampleRate.N(time.Second/10)); err != nil {
		return fmt.Errorf("failed to initialize speaker: %w", err)
	}
	p.initialized = true
	return nil
}

// Play synthesizes and plays text, blocking until it finishes.
func (p *Player) Play(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	stream, format, err := p.synth.Synthesize(ctx, text)
	if err != nil {
		return fmt.Errorf("failed to synthesize speech: %w", err)
	}
	defer stream.Close()

	if err := p.ensureInit(); err != nil {
		return err
	}

	var s beep.Streamer = stream
	if format.SampleRate != p.sampleRate {
		s = beep.Resample(4, format.SampleRate, p.sampleRate, s)
	}

	u := &utterance{done: make(chan struct{})}
	u.ctrl = &beep.Ctrl{Streamer: s}

	p.Stop()

	p.mu.Lock()
	u.vol = &effects.Volume{Streamer: u.ctrl, Base: 2, Volume: p.volume, Silent: p.muted}
	p.current = u
	p.speaking.Store(true)
	p.mu.Unlock()

	p.log.Debug().Int("chars", len(text)).Msg("playback started")
	// The callback runs under the output lock; finish takes p.mu, so hop goroutines.
	p.out.Play(beep.Seq(u.vol, beep.Callback(func() { go p.finish(u) })))

	select {
	case <-u.done:
		return nil
	case <-ctx.Done():
		p.stopUtterance(u)
		return ctx.Err()
	}
}

func (p *Player) finish(u *utterance) {
	u.once.Do(func() { close(u.done) })

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == u {
		p.current = nil
		p.speaking.Store(false)
	}
}

func (p *Player) stopUtterance(u *utterance) {
	p.out.Lock()
	u.ctrl.Streamer = nil
	p.out.Unlock()
	p.finish(u)
}

// Stop cuts off the current utterance. No-op when silent.
func (p *Player) Stop() {
	p.mu.Lock()
	u := p.current
	p.mu.Unlock()

	if u != nil {
		p.stopUtterance(u)
		p.log.Debug().Msg("playback stopped")
	}
}

// Mute silences output without losing the volume level.
func (p *Player) Mute() {
	p.setSilent(true)
}

// Unmute restores output at the saved volume level.
func (p *Player) Unmute() {
	p.setSilent(false)
}

func (p *Player) setSilent(silent bool) {
	p.mu.Lock()
	p.muted = silent
	u := p.current
	p.mu.Unlock()

	if u != nil {
		p.out.Lock()
		u.vol.Silent = silent
		p.out.Unlock()
	}
}

// Muted reports the mute state.
func (p *Player) Muted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.muted
}

// IsSpeaking reports whether an utterance is in progress.
func (p *Player) IsSpeaking() bool {
	return p.speaking.Load()
}

// SetVolume changes the base volume for current and future utterances.
func (p *Player) SetVolume(v float64) {
	p.mu.Lock()
	p.volume = v
	u := p.current
	p.mu.Unlock()

	if u != nil {
		p.out.Lock()
		u.vol.Volume = v
		p.out.Unlock()
	}
}
