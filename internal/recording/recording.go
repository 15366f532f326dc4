// Package recording implements push-to-talk: record while the user holds
// the trigger, then return the raw transcript.
package recording

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yok-tottii/banana4u-voice/internal/audio"
	"github.com/yok-tottii/banana4u-voice/internal/events"
	"github.com/yok-tottii/banana4u-voice/internal/metrics"
	"github.com/yok-tottii/banana4u-voice/internal/recognition"
)

var (
	// ErrBusy is returned when a recording is already in progress, or the
	// microphone is held by conversational mode.
	ErrBusy = errors.New("microphone busy")
	// ErrNotRecording is returned by Stop when nothing is being recorded.
	ErrNotRecording = errors.New("not recording")
)

// State represents the current recording state
type State int

const (
	// Idle means not recording
	Idle State = iota
	// Recording means currently recording audio
	Recording
	// Processing means the recording is being transcribed
	Processing
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Processing:
		return "processing"
	default:
		return "unknown"
	}
}

// Push-to-talk outcomes recorded in metrics.
const (
	OutcomeCompleted          = "completed"
	OutcomeTooShort           = "too-short"
	OutcomeDeviceError        = "device-error"
	OutcomeCaptureError       = "capture-error"
	OutcomeTranscriptionError = "transcription-error"
	OutcomeCancelled          = "cancelled"
)

// Config holds configuration for the recording manager
type Config struct {
	MaxDuration time.Duration
	Audio       audio.Config
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		MaxDuration: 60 * time.Second,
		Audio:       audio.DefaultConfig(),
	}
}

// Manager manages the push-to-talk lifecycle
type Manager struct {
	driver  audio.Driver
	stt     recognition.SpeechToText
	bus     *events.Bus
	metrics *metrics.Metrics
	log     zerolog.Logger

	mu        sync.Mutex
	cfg       Config
	state     State
	session   *audio.Session
	stopTimer *time.Timer
	// pending holds audio collected by an automatic stop until Stop is called.
	pending    []byte
	pendingErr error
	capped     bool
}

// New creates a new recording manager. bus and m may be nil.
func New(driver audio.Driver, stt recognition.SpeechToText, bus *events.Bus, m *metrics.Metrics, log zerolog.Logger, config Config) *Manager {
	if bus == nil {
		bus = events.NewBus()
	}
	if m == nil {
		m = metrics.New("")
	}
	return &Manager{
		driver:  driver,
		stt:     stt,
		bus:     bus,
		metrics: m,
		log:     log.With().Str("component", "recording").Logger(),
		cfg:     config,
		state:   Idle,
	}
}

// SetConfig replaces the configuration. It applies from the next recording.
func (m *Manager) SetConfig(config Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = config
}

// Start opens the microphone and begins recording.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Idle {
		return fmt.Errorf("%w (current state: %s)", ErrBusy, m.state)
	}

	session, err := audio.OpenSession(m.driver, m.cfg.Audio)
	if err != nil {
		m.metrics.RecordPushToTalk(OutcomeDeviceError)
		return err
	}

	m.session = session
	m.pending = nil
	m.pendingErr = nil
	m.capped = false
	m.setState(Recording)
	m.log.Info().Str("session", session.ID).Str("device", session.Device.Name).Msg("push-to-talk started")

	if m.cfg.MaxDuration > 0 {
		m.stopTimer = time.AfterFunc(m.cfg.MaxDuration, func() { m.autoStop(session) })
	}
	return nil
}

// autoStop releases the microphone once the maximum duration is reached.
// The audio is kept for the Stop call that follows.
func (m *Manager) autoStop(session *audio.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != session || m.state != Recording {
		return
	}
	data, err := session.Finish(audio.ReasonVoiceTimeout)
	if err != nil {
		m.log.Warn().Err(err).Msg("auto-stop failed")
	}
	m.pending = data
	m.pendingErr = err
	m.capped = true
	m.log.Info().Dur("max", m.cfg.MaxDuration).Msg("push-to-talk reached maximum duration")
	m.bus.Publish(events.Event{
		Type:      events.Notice,
		Mode:      events.ModePushToTalk,
		SessionID: session.ID,
		Code:      events.NoticeMaxDuration,
		Message:   "Maximum recording time reached.",
	})
}

// Stop ends the recording, releases the microphone and returns the raw
// transcript. Echo filtering is not applied.
func (m *Manager) Stop(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.state != Recording {
		state := m.state
		m.mu.Unlock()
		return "", fmt.Errorf("%w (current state: %s)", ErrNotRecording, state)
	}

	if m.stopTimer != nil {
		m.stopTimer.Stop()
		m.stopTimer = nil
	}
	session := m.session
	cfg := m.cfg
	m.setState(Processing)

	var data []byte
	var err error
	if m.capped {
		data, err = m.pending, m.pendingErr
	} else {
		data, err = session.Finish(audio.ReasonUserStopped)
	}
	m.pending = nil
	m.pendingErr = nil
	m.mu.Unlock()

	// Transcription runs without the lock so State stays responsive.
	text, outcome, err := m.transcribe(ctx, session, cfg, data, err)
	m.metrics.RecordPushToTalk(outcome)

	m.mu.Lock()
	m.setState(Idle)
	m.session = nil
	m.mu.Unlock()

	if err != nil {
		return "", err
	}
	m.bus.Publish(events.Event{
		Type:       events.TranscriptReady,
		Mode:       events.ModePushToTalk,
		SessionID:  session.ID,
		Transcript: text,
		Raw:        text,
	})
	return text, nil
}

func (m *Manager) transcribe(ctx context.Context, session *audio.Session, cfg Config, data []byte, stopErr error) (string, string, error) {
	if stopErr != nil {
		return "", OutcomeCaptureError, stopErr
	}
	if err := audio.ValidateSize(data); err != nil {
		if errors.Is(err, audio.ErrTooShort) {
			m.bus.Publish(events.Event{
				Type:      events.Notice,
				Mode:      events.ModePushToTalk,
				SessionID: session.ID,
				Code:      events.NoticeAudioTooShort,
				Message:   "The recording was too short.",
			})
			return "", OutcomeTooShort, err
		}
		return "", OutcomeCaptureError, err
	}

	wav, err := audio.EncodeWAV(data, cfg.Audio.SampleRate, cfg.Audio.Channels)
	if err != nil {
		return "", OutcomeCaptureError, err
	}

	text, err := m.stt.Transcribe(ctx, wav, audio.WAVMimeType)
	if err != nil {
		if ctx.Err() != nil {
			return "", OutcomeCancelled, err
		}
		kind := recognition.Unknown
		if te, ok := recognition.AsTranscriptionError(err); ok {
			kind = te.Kind
		}
		m.metrics.RecordTranscriptionError(kind.String())
		m.log.Warn().Err(err).Str("session", session.ID).Msg("push-to-talk transcription failed")
		return "", OutcomeTranscriptionError, err
	}

	m.log.Info().Str("session", session.ID).Dur("duration", session.Duration()).Msg("push-to-talk transcribed")
	return text, OutcomeCompleted, nil
}

// Cancel drops any recording in progress without transcribing it.
func (m *Manager) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Recording {
		return
	}
	if m.stopTimer != nil {
		m.stopTimer.Stop()
		m.stopTimer = nil
	}
	if err := m.session.Release(audio.ReasonUserCancelled); err != nil {
		m.log.Warn().Err(err).Msg("failed to release microphone")
	}
	m.pending = nil
	m.metrics.RecordPushToTalk(OutcomeCancelled)
	m.setState(Idle)
	m.session = nil
}

// GetState returns the current recording state
func (m *Manager) GetState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// setState must be called with mu held.
func (m *Manager) setState(s State) {
	if m.state == s {
		return
	}
	m.state = s
	id := ""
	if m.session != nil {
		id = m.session.ID
	}
	m.bus.Publish(events.Event{Type: events.StateChanged, Mode: events.ModePushToTalk, SessionID: id, State: s.String()})
}
