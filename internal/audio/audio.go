package audio

// Device represents an audio input device
type Device struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	IsDefault bool   `json:"is_default"`
}

// LatencyMode defines the latency priority
type LatencyMode int

const (
	// LowLatency prioritizes low latency (real-time)
	LowLatency LatencyMode = iota
	// HighStability prioritizes stability (larger buffer)
	HighStability
)

// Config holds audio configuration
type Config struct {
	DeviceID   int
	SampleRate int
	Channels   int
	Latency    LatencyMode
	// FrameSize is the number of samples per callback; it doubles as the
	// analysis window handed to the voice activity detector.
	FrameSize int
	// DeferRecording delivers analysis frames from Start but keeps no audio
	// until Record is called.
	DeferRecording bool
}

// DefaultConfig returns the default audio configuration:
// 16kHz mono, 512-sample frames, stability-first latency.
func DefaultConfig() Config {
	return Config{
		DeviceID:   -1, // -1 means use default device
		SampleRate: 16000,
		Channels:   1,
		Latency:    HighStability,
		FrameSize:  512,
	}
}

// Driver enumerates input devices and opens capture streams on them.
type Driver interface {
	// ListDevices returns the available audio input devices
	ListDevices() ([]Device, error)

	// Open prepares a capture stream on config.DeviceID. Nothing is recorded until Start.
	Open(config Config) (CaptureDevice, error)

	// Close releases the driver
	Close() error
}

// CaptureDevice is one open microphone stream.
type CaptureDevice interface {
	// Start begins capturing audio.
	Start() error

	// Frames delivers a copy of every captured frame for analysis. Frames are
	// dropped rather than blocking the capture callback when the reader is slow.
	// The channel is closed by Close.
	Frames() <-chan []int16

	// Record drops any audio kept so far and keeps everything captured from
	// now on.
	Record()

	// Stop ends capture and returns everything recorded as little-endian PCM16.
	Stop() ([]byte, error)

	// Close releases the device. Safe to call more than once.
	Close() error
}
