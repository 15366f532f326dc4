// Package conversation runs the hands-free voice loop: wait for the
// assistant to fall silent, record the user, transcribe, strip the
// assistant's own echo, ask for a reply and speak it.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yok-tottii/banana4u-voice/internal/assistant"
	"github.com/yok-tottii/banana4u-voice/internal/audio"
	"github.com/yok-tottii/banana4u-voice/internal/echo"
	"github.com/yok-tottii/banana4u-voice/internal/events"
	"github.com/yok-tottii/banana4u-voice/internal/metrics"
	"github.com/yok-tottii/banana4u-voice/internal/playback"
	"github.com/yok-tottii/banana4u-voice/internal/recognition"
	"github.com/yok-tottii/banana4u-voice/internal/vad"
)

// EchoOnlyMessage is the notice shown when a turn only captured the assistant.
const EchoOnlyMessage = "Only heard the AI's voice. Please speak again."

// ErrAlreadyActive is returned by Start while the loop is running.
var ErrAlreadyActive = errors.New("conversational mode already active")

// Config holds the loop timing and capture settings.
type Config struct {
	VAD                vad.Config
	Audio              audio.Config
	PlaybackTimeout    time.Duration // bound on waiting for playback silence
	PollInterval       time.Duration
	SettleDelay        time.Duration // after playback confirms silence
	ErrorBackoff       time.Duration
	OnsetTimeout       time.Duration // 0 waits for voice indefinitely
	MaxRecordTime      time.Duration // 0 records until silence
	MinTranscriptChars int
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		VAD:                vad.DefaultConfig(),
		Audio:              audio.DefaultConfig(),
		PlaybackTimeout:    5 * time.Second,
		PollInterval:       100 * time.Millisecond,
		SettleDelay:        time.Second,
		ErrorBackoff:       time.Second,
		MinTranscriptChars: 3,
	}
}

// Dependencies are the collaborators injected into the controller.
type Dependencies struct {
	Driver    audio.Driver
	STT       recognition.SpeechToText
	Responder assistant.Responder
	Playback  playback.Coordinator

	// Optional. Zero values get working defaults.
	Filter   *echo.Filter
	Bus      *events.Bus
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
	NewMeter func() vad.EnergyMeter
	Now      func() time.Time
}

// Controller owns the loop state. Every effectful transition (mute, unmute,
// stop, device open and close) happens on the single loop goroutine.
type Controller struct {
	deps Dependencies
	log  zerolog.Logger

	mu        sync.Mutex
	cfg       Config
	cancel    context.CancelFunc
	done      chan struct{}
	sessionID string

	active atomic.Bool
	phase  atomic.Int32
}

// New creates a controller in the Idle phase.
func New(cfg Config, deps Dependencies) (*Controller, error) {
	if deps.Driver == nil || deps.STT == nil || deps.Responder == nil || deps.Playback == nil {
		return nil, errors.New("conversation: driver, speech-to-text, responder and playback are required")
	}
	if deps.Filter == nil {
		deps.Filter = echo.NewFilter()
	}
	if deps.Bus == nil {
		deps.Bus = events.NewBus()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New("")
	}
	if deps.NewMeter == nil {
		deps.NewMeter = func() vad.EnergyMeter { return vad.NewAnalyzer(vad.WindowSize) }
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	return &Controller{
		deps: deps,
		log:  deps.Logger.With().Str("component", "conversation").Logger(),
		cfg:  cfg,
	}, nil
}

// Start turns conversational mode on. The loop outlives ctx's deadline and
// cancellation; only Stop ends it.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.active.Load() {
		c.mu.Unlock()
		return ErrAlreadyActive
	}
	previous := c.done
	c.mu.Unlock()

	// The previous loop may still be unwinding after a Stop.
	if previous != nil {
		<-previous
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active.Load() {
		return ErrAlreadyActive
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.sessionID = uuid.NewString()
	c.cancel = cancel
	c.done = make(chan struct{})
	c.active.Store(true)

	if r, ok := c.deps.Responder.(assistant.Resetter); ok {
		r.Reset()
	}

	go c.run(loopCtx, c.sessionID, c.done)
	return nil
}

// Stop turns conversational mode off and returns once the device is released
// and playback is unmuted. Safe to call at any time.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.active.Store(false)
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Active reports whether conversational mode is on.
func (c *Controller) Active() bool {
	return c.active.Load()
}

// Phase returns the current loop phase.
func (c *Controller) Phase() Phase {
	return Phase(c.phase.Load())
}

// SessionID returns the id of the current or most recent session.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// SetConfig replaces the configuration. It applies from the next turn.
func (c *Controller) SetConfig(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
}

// Config returns the current configuration.
func (c *Controller) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Filter returns the echo filter holding the assistant baseline.
func (c *Controller) Filter() *echo.Filter {
	return c.deps.Filter
}

func (c *Controller) run(ctx context.Context, id string, done chan struct{}) {
	defer close(done)
	defer c.cleanup(id)

	log := c.log.With().Str("session", id).Logger()
	log.Info().Msg("conversational mode started")

	for c.active.Load() && ctx.Err() == nil {
		started := c.deps.Now()
		outcome, err := c.turn(ctx, id)
		c.deps.Metrics.RecordTurn(outcome, c.deps.Now().Sub(started))
		log.Debug().Str("outcome", outcome).Msg("turn finished")

		if outcome != OutcomeCompleted {
			c.deps.Playback.Unmute()
		}
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return
		}

		c.publishError(id, err)
		if audio.IsFatalDeviceError(err) {
			log.Error().Err(err).Msg("microphone unavailable, ending conversational mode")
			return
		}
		log.Warn().Err(err).Str("outcome", outcome).Msg("turn failed, backing off")
		if !c.backoff(ctx) {
			return
		}
	}
}

func (c *Controller) cleanup(id string) {
	c.deps.Playback.Unmute()
	c.active.Store(false)
	c.setPhase(id, Idle)
	c.log.Info().Str("session", id).Msg("conversational mode stopped")
}

// turn runs one pass through the loop and reports how it ended. A nil error
// with a non-completed outcome is a normal abandoned turn.
func (c *Controller) turn(ctx context.Context, id string) (string, error) {
	cfg := c.Config()
	pb := c.deps.Playback

	c.setPhase(id, PreparingTurn)
	if err := c.prepare(ctx, id, cfg); err != nil {
		return OutcomeCancelled, err
	}

	c.setPhase(id, AwaitingVoice)
	audioCfg := cfg.Audio
	audioCfg.DeferRecording = true
	session, err := audio.OpenSession(c.deps.Driver, audioCfg)
	if err != nil {
		return OutcomeDeviceError, err
	}
	defer session.Release(audio.ReasonError)

	analysisCtx, closeAnalysis := context.WithCancel(ctx)
	defer closeAnalysis()
	samples := vad.Stream(analysisCtx, session.Frames(), c.deps.NewMeter(), c.deps.Now)
	detector := vad.NewDetector(cfg.VAD)

	if _, err := vad.WaitForOnset(ctx, detector, samples, cfg.OnsetTimeout); err != nil {
		switch {
		case errors.Is(err, vad.ErrNoVoice):
			session.Release(audio.ReasonVoiceTimeout)
			return OutcomeNoVoice, nil
		case ctx.Err() != nil:
			session.Release(audio.ReasonUserCancelled)
			return OutcomeCancelled, ctx.Err()
		default:
			return OutcomeCaptureError, fmt.Errorf("waiting for voice: %w", err)
		}
	}

	session.BeginRecording()
	c.setPhase(id, Recording)
	detector.StartSilenceTimer(c.deps.Now())
	reason := audio.ReasonSilence
	if err := vad.WaitForOffset(ctx, detector, samples, cfg.MaxRecordTime); err != nil {
		switch {
		case errors.Is(err, vad.ErrMaxDuration):
			reason = audio.ReasonVoiceTimeout
		case ctx.Err() != nil:
			session.Release(audio.ReasonUserCancelled)
			return OutcomeCancelled, ctx.Err()
		default:
			return OutcomeCaptureError, fmt.Errorf("recording: %w", err)
		}
	}

	pcm, err := session.Finish(reason)
	closeAnalysis()
	if err != nil {
		return OutcomeCaptureError, err
	}

	c.setPhase(id, Transcribing)
	if err := audio.ValidateSize(pcm); err != nil {
		if errors.Is(err, audio.ErrTooShort) {
			c.log.Debug().Int("bytes", len(pcm)).Msg("recording too short, skipping turn")
			return OutcomeTooShort, nil
		}
		return OutcomeCaptureError, err
	}
	wav, err := audio.EncodeWAV(pcm, cfg.Audio.SampleRate, cfg.Audio.Channels)
	if err != nil {
		return OutcomeCaptureError, err
	}

	raw, err := c.deps.STT.Transcribe(ctx, wav, audio.WAVMimeType)
	if err != nil {
		if ctx.Err() != nil {
			return OutcomeCancelled, ctx.Err()
		}
		kind := recognition.Unknown
		if te, ok := recognition.AsTranscriptionError(err); ok {
			kind = te.Kind
		}
		c.deps.Metrics.RecordTranscriptionError(kind.String())
		return OutcomeTranscriptionError, err
	}

	c.setPhase(id, Filtering)
	t := c.filter(raw, cfg)
	if t.Rejected {
		c.log.Info().Str("raw", raw).Int("dropped", t.Dropped).Msg("only assistant echo heard")
		c.publish(events.Event{
			Type:      events.Notice,
			SessionID: id,
			Code:      events.NoticeEchoOnly,
			Message:   EchoOnlyMessage,
			Raw:       raw,
		})
		return OutcomeEchoOnly, nil
	}
	c.publish(events.Event{
		Type:       events.TranscriptReady,
		SessionID:  id,
		Transcript: t.Filtered,
		Raw:        raw,
	})

	c.setPhase(id, Dispatching)
	reply, err := c.deps.Responder.Respond(ctx, t.Filtered)
	if err != nil {
		if ctx.Err() != nil {
			return OutcomeCancelled, ctx.Err()
		}
		return OutcomeAssistantError, fmt.Errorf("assistant: %w", err)
	}

	c.setPhase(id, Speaking)
	c.deps.Filter.SetBaseline(reply)
	pb.Unmute()
	c.checkStaleMute(id)
	if err := pb.Play(ctx, reply); err != nil {
		if ctx.Err() != nil {
			return OutcomeCancelled, ctx.Err()
		}
		return OutcomePlaybackError, fmt.Errorf("playback: %w", err)
	}
	return OutcomeCompleted, nil
}

// prepare silences the assistant before the microphone opens.
func (c *Controller) prepare(ctx context.Context, id string, cfg Config) error {
	pb := c.deps.Playback
	pb.Mute()
	pb.Stop()

	err := playback.WaitSilent(ctx, pb, cfg.PlaybackTimeout, cfg.PollInterval)
	switch {
	case errors.Is(err, playback.ErrSyncTimeout):
		c.deps.Metrics.PlaybackSyncTimeout.Inc()
		c.log.Warn().Str("session", id).Dur("timeout", cfg.PlaybackTimeout).
			Msg("playback did not confirm silence, opening microphone anyway")
		c.publish(events.Event{Type: events.Notice, SessionID: id, Code: events.NoticeSyncTimeout})
	case err != nil:
		return err
	}
	return sleep(ctx, cfg.SettleDelay)
}

// checkStaleMute flags a player that still reports mute or speech right
// before a reply. The reply is spoken regardless.
func (c *Controller) checkStaleMute(id string) {
	pb := c.deps.Playback
	stale := pb.IsSpeaking()
	if m, ok := pb.(playback.MuteReporter); ok && m.Muted() {
		stale = true
	}
	if stale {
		c.deps.Metrics.StaleMuteFallbacks.Inc()
		c.log.Warn().Str("session", id).Msg("player state stale after unmute, speaking anyway")
	}
}

func (c *Controller) filter(raw string, cfg Config) Turn {
	res := c.deps.Filter.Apply(raw)
	if res.Dropped > 0 {
		c.deps.Metrics.EchoFragments.Add(float64(res.Dropped))
	}
	transcript := strings.TrimSpace(res.Transcript())
	rejected := res.EchoOnly() ||
		utf8.RuneCountInString(transcript) < cfg.MinTranscriptChars ||
		echo.Normalize(transcript) == ""
	return Turn{Raw: raw, Filtered: transcript, Dropped: res.Dropped, Rejected: rejected}
}

func (c *Controller) backoff(ctx context.Context) bool {
	if !c.active.Load() {
		return false
	}
	if err := sleep(ctx, c.Config().ErrorBackoff); err != nil {
		return false
	}
	return c.active.Load()
}

func (c *Controller) setPhase(id string, p Phase) {
	old := Phase(c.phase.Swap(int32(p)))
	if old == p {
		return
	}
	c.deps.Metrics.RecordPhase(old.String(), p.String())
	c.log.Debug().Str("session", id).Str("from", old.String()).Str("to", p.String()).Msg("phase changed")
	c.publish(events.Event{Type: events.StateChanged, SessionID: id, State: p.String()})
}

func (c *Controller) publish(e events.Event) {
	e.Mode = events.ModeConversation
	c.deps.Bus.Publish(e)
}

func (c *Controller) publishError(id string, err error) {
	code, message := Describe(err)
	c.publish(events.Event{
		Type:      events.Error,
		SessionID: id,
		Code:      code,
		Message:   message,
		Err:       err,
	})
}

// Describe maps an error to a notification code and a user-facing message.
func Describe(err error) (string, string) {
	var de *audio.DeviceError
	if errors.As(err, &de) {
		return "device-" + de.Kind.String(), de.Error()
	}
	if te, ok := recognition.AsTranscriptionError(err); ok {
		return te.Kind.String(), te.Kind.UserMessage()
	}
	if errors.Is(err, audio.ErrTooLarge) {
		return "audio-too-large", "The recording is too large. Please speak more concisely."
	}
	return "error", err.Error()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
