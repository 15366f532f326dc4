package audio

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

const frameBacklog = 32

// PortAudioDriver implements Driver using PortAudio
type PortAudioDriver struct {
	mu     sync.Mutex
	closed bool
}

// NewPortAudioDriver initializes PortAudio and returns a driver
func NewPortAudioDriver() (*PortAudioDriver, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	return &PortAudioDriver{}, nil
}

// ListDevices returns a list of available audio input devices
func (d *PortAudioDriver) ListDevices() ([]Device, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	defaultInput, err := portaudio.DefaultInputDevice()
	if err != nil {
		defaultInput = nil
	}

	var result []Device
	for i, dev := range devices {
		if dev.MaxInputChannels <= 0 {
			continue
		}
		result = append(result, Device{
			ID:        i,
			Name:      dev.Name,
			IsDefault: defaultInput != nil && dev.Name == defaultInput.Name,
		})
	}

	return result, nil
}

// Open opens a stream on the configured device
func (d *PortAudioDriver) Open(config Config) (CaptureDevice, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, fmt.Errorf("driver closed")
	}

	var device *portaudio.DeviceInfo
	var err error

	if config.DeviceID == -1 {
		device, err = portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("failed to get default input device: %w", err)
		}
	} else {
		devices, err := portaudio.Devices()
		if err != nil {
			return nil, fmt.Errorf("failed to list devices: %w", err)
		}
		if config.DeviceID < 0 || config.DeviceID >= len(devices) {
			return nil, fmt.Errorf("invalid device ID: %d", config.DeviceID)
		}
		device = devices[config.DeviceID]
	}

	if device.MaxInputChannels <= 0 {
		return nil, fmt.Errorf("selected device '%s' (ID: %d) has no input channels (output-only device)",
			device.Name, config.DeviceID)
	}

	latency := device.DefaultHighInputLatency
	if config.Latency == LowLatency {
		latency = device.DefaultLowInputLatency
	}

	frameSize := config.FrameSize
	if frameSize <= 0 {
		frameSize = DefaultConfig().FrameSize
	}

	s := &portAudioStream{
		buffer:   make([]int16, 0, config.SampleRate*30),
		frames:   make(chan []int16, frameBacklog),
		deferred: config.DeferRecording,
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: config.Channels,
			Latency:  latency,
		},
		SampleRate:      float64(config.SampleRate),
		FramesPerBuffer: frameSize,
	}

	stream, err := portaudio.OpenStream(params, s.callback)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	s.stream = stream

	return s, nil
}

// Close terminates PortAudio
func (d *PortAudioDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}

type portAudioStream struct {
	mu        sync.Mutex
	stream    *portaudio.Stream
	buffer    []int16
	frames    chan []int16
	recording bool
	keeping   bool
	deferred  bool
	closed    bool
}

// callback is called by PortAudio when audio data is available
func (s *portAudioStream) callback(in []int16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.recording || s.closed {
		return
	}
	if s.keeping {
		s.buffer = append(s.buffer, in...)
	}

	frame := make([]int16, len(in))
	copy(frame, in)
	select {
	case s.frames <- frame:
	default:
	}
}

func (s *portAudioStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("stream closed")
	}
	if s.recording {
		return fmt.Errorf("already recording")
	}

	s.buffer = s.buffer[:0]
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("failed to start stream: %w", err)
	}

	s.recording = true
	s.keeping = !s.deferred
	return nil
}

func (s *portAudioStream) Record() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer = s.buffer[:0]
	s.keeping = true
}

func (s *portAudioStream) Frames() <-chan []int16 {
	return s.frames
}

// Stop and Close never hold the lock across stream.Stop: PortAudio waits for
// the in-flight callback, which needs the same lock.
func (s *portAudioStream) Stop() ([]byte, error) {
	s.mu.Lock()
	if !s.recording {
		s.mu.Unlock()
		return nil, fmt.Errorf("not recording")
	}
	s.recording = false
	s.mu.Unlock()

	if err := s.stream.Stop(); err != nil {
		return nil, fmt.Errorf("failed to stop stream: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return Int16ToBytes(s.buffer), nil
}

func (s *portAudioStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	wasRecording := s.recording
	s.recording = false
	close(s.frames)
	s.mu.Unlock()

	if wasRecording {
		if err := s.stream.Stop(); err != nil {
			s.stream.Close()
			return fmt.Errorf("failed to stop stream: %w", err)
		}
	}

	if err := s.stream.Close(); err != nil {
		return fmt.Errorf("failed to close stream: %w", err)
	}
	return nil
}

// Int16ToBytes converts samples to little-endian PCM16.
func Int16ToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, sample := range samples {
		data[i*2] = byte(sample)
		data[i*2+1] = byte(sample >> 8)
	}
	return data
}

// BytesToInt16 converts little-endian PCM16 back into samples.
func BytesToInt16(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(uint16(data[i*2]) | uint16(data[i*2+1])<<8)
	}
	return samples
}
