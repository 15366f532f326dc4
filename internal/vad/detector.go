package vad

import "time"

// Sample is one energy reading, 0-255.
type Sample struct {
	Energy float64
	At     time.Time
}

// Edge is an edge-triggered detector event.
type Edge int

const (
	// None means the sample did not change the speech state
	None Edge = iota
	// Onset fires the first time energy rises above the voice threshold
	Onset
	// Offset fires once energy has stayed quiet for the silence duration
	Offset
)

// String returns the string representation of the edge
func (e Edge) String() string {
	switch e {
	case None:
		return "none"
	case Onset:
		return "voice-onset"
	case Offset:
		return "voice-offset"
	default:
		return "unknown"
	}
}

// Config holds detector thresholds.
type Config struct {
	VoiceThreshold   float64
	SilenceThreshold float64
	SilenceDuration  time.Duration
}

// DefaultConfig returns the default thresholds (50/255 voice, 30/255 silence, 1.5s).
func DefaultConfig() Config {
	return Config{
		VoiceThreshold:   50,
		SilenceThreshold: 30,
		SilenceDuration:  1500 * time.Millisecond,
	}
}

// Detector classifies a sample stream into one onset followed by one offset.
// It is not safe for concurrent use; one detector serves one session.
type Detector struct {
	cfg          Config
	onset        bool
	offset       bool
	silenceStart time.Time
}

// NewDetector creates a detector with the given thresholds.
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// Config returns the detector thresholds.
func (d *Detector) Config() Config {
	return d.cfg
}

// Reset forgets all state so the detector can serve a new session.
func (d *Detector) Reset() {
	d.onset = false
	d.offset = false
	d.silenceStart = time.Time{}
}

// StartSilenceTimer marks recording as begun at now: onset is considered seen
// and the silence timer runs from this moment.
func (d *Detector) StartSilenceTimer(now time.Time) {
	d.onset = true
	d.offset = false
	d.silenceStart = now
}

// Observe feeds one sample and reports the edge it produced, if any.
func (d *Detector) Observe(s Sample) Edge {
	if d.offset {
		return None
	}

	if !d.onset {
		if s.Energy > d.cfg.VoiceThreshold {
			d.onset = true
			d.silenceStart = s.At
			return Onset
		}
		return None
	}

	switch {
	case s.Energy > d.cfg.VoiceThreshold:
		d.silenceStart = s.At
	case s.Energy < d.cfg.SilenceThreshold:
		if s.At.Sub(d.silenceStart) >= d.cfg.SilenceDuration {
			d.offset = true
			return Offset
		}
	}
	return None
}

// InSpeech reports whether onset has fired and offset has not.
func (d *Detector) InSpeech() bool {
	return d.onset && !d.offset
}
