package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// MinAudioBytes is the smallest capture worth transcribing.
	MinAudioBytes = 100
	// MaxAudioBytes is the largest capture sent for transcription.
	MaxAudioBytes = 20 * 1024 * 1024
)

var (
	// ErrTooShort is returned for captures below MinAudioBytes.
	ErrTooShort = errors.New("recording too short")
	// ErrTooLarge is returned for captures above MaxAudioBytes.
	ErrTooLarge = errors.New("recording too large")
)

// ValidateSize checks a capture against the transcription size limits.
func ValidateSize(data []byte) error {
	if len(data) < MinAudioBytes {
		return fmt.Errorf("%w: %d bytes", ErrTooShort, len(data))
	}
	if len(data) > MaxAudioBytes {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}
	return nil
}

// EndReason records why a session stopped recording.
type EndReason string

const (
	ReasonNone          EndReason = ""
	ReasonVoiceTimeout  EndReason = "voice-timeout"
	ReasonSilence       EndReason = "silence-detected"
	ReasonUserCancelled EndReason = "user-cancelled"
	ReasonUserStopped   EndReason = "user-stopped"
	ReasonError         EndReason = "error"
)

// Session owns one open capture device for the duration of a recording.
type Session struct {
	ID        string
	Device    Device
	StartedAt time.Time
	Config    Config

	mu      sync.Mutex
	capture CaptureDevice
	reason  EndReason
	stopped bool
	closed  bool
}

// OpenSession selects an allowed input device, opens it and starts capture.
func OpenSession(driver Driver, config Config) (*Session, error) {
	devices, err := driver.ListDevices()
	if err != nil {
		return nil, &DeviceError{Kind: OpenFailed, Err: err}
	}

	device, err := SelectInputDevice(devices, config.DeviceID)
	if err != nil {
		return nil, err
	}

	config.DeviceID = device.ID
	capture, err := driver.Open(config)
	if err != nil {
		if IsDeviceError(err) {
			return nil, err
		}
		return nil, &DeviceError{Kind: OpenFailed, Device: device.Name, Err: err}
	}

	if err := capture.Start(); err != nil {
		capture.Close()
		return nil, &DeviceError{Kind: OpenFailed, Device: device.Name, Err: err}
	}

	return &Session{
		ID:        uuid.NewString(),
		Device:    device,
		StartedAt: time.Now(),
		Config:    config,
		capture:   capture,
	}, nil
}

// Frames exposes the analysis stream of the underlying capture.
func (s *Session) Frames() <-chan []int16 {
	return s.capture.Frames()
}

// BeginRecording marks the start of the recording proper. Audio captured
// before this call is discarded.
func (s *Session) BeginRecording() {
	s.capture.Record()
}

// Finish stops recording, releases the device and returns the captured PCM.
// Only the first call returns audio.
func (s *Session) Finish(reason EndReason) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, fmt.Errorf("session already finished")
	}
	s.stopped = true
	s.reason = reason

	data, err := s.capture.Stop()
	closeErr := s.close()
	if err != nil {
		s.reason = ReasonError
		return nil, fmt.Errorf("failed to stop recording: %w", err)
	}
	if closeErr != nil {
		return data, fmt.Errorf("failed to release device: %w", closeErr)
	}
	return data, nil
}

// Release drops the device without collecting audio. Safe to call at any time
// and more than once.
func (s *Session) Release(reason EndReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.stopped {
		s.stopped = true
		s.reason = reason
	}
	return s.close()
}

func (s *Session) close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.capture.Close()
}

// Reason returns why the session ended, or ReasonNone while still recording.
func (s *Session) Reason() EndReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Released reports whether the device has been closed.
func (s *Session) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Duration returns the wall time since capture started.
func (s *Session) Duration() time.Duration {
	return time.Since(s.StartedAt)
}
