// Package audiotest provides in-memory capture devices for tests.
package audiotest

import (
	"errors"
	"sync"

	"github.com/yok-tottii/banana4u-voice/internal/audio"
)

// Driver is a scripted audio.Driver. Captures return PCM from Stop when it is
// set, otherwise the frames pushed while they were keeping audio.
type Driver struct {
	mu       sync.Mutex
	Devices  []audio.Device
	ListErr  error
	OpenErr  error
	StopErr  error
	PCM      []byte
	opened   []*Capture
	openedID []int
}

// NewDriver returns a driver exposing the given devices.
func NewDriver(devices ...audio.Device) *Driver {
	return &Driver{Devices: devices, PCM: make([]byte, 3200)}
}

func (d *Driver) ListDevices() ([]audio.Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ListErr != nil {
		return nil, d.ListErr
	}
	out := make([]audio.Device, len(d.Devices))
	copy(out, d.Devices)
	return out, nil
}

func (d *Driver) Open(config audio.Config) (audio.CaptureDevice, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	c := &Capture{frames: make(chan []int16, 64), pcm: d.PCM, stopErr: d.StopErr, deferred: config.DeferRecording}
	d.opened = append(d.opened, c)
	d.openedID = append(d.openedID, config.DeviceID)
	return c, nil
}

func (d *Driver) Close() error { return nil }

// SetOpenErr changes the error returned by Open.
func (d *Driver) SetOpenErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.OpenErr = err
}

// Captures returns every capture opened so far.
func (d *Driver) Captures() []*Capture {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Capture, len(d.opened))
	copy(out, d.opened)
	return out
}

// Last returns the most recently opened capture, or nil.
func (d *Driver) Last() *Capture {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.opened) == 0 {
		return nil
	}
	return d.opened[len(d.opened)-1]
}

// OpenedIDs returns the device ids passed to Open.
func (d *Driver) OpenedIDs() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]int, len(d.openedID))
	copy(out, d.openedID)
	return out
}

// Capture is an in-memory audio.CaptureDevice. Tests push frames with Push.
type Capture struct {
	mu       sync.Mutex
	frames   chan []int16
	pcm      []byte
	stopErr  error
	kept     []int16
	deferred bool
	keeping  bool
	records  int
	started  bool
	stopped  bool
	closed   bool
}

func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("closed")
	}
	c.started = true
	c.keeping = !c.deferred
	return nil
}

func (c *Capture) Record() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kept = c.kept[:0]
	c.keeping = true
	c.records++
}

func (c *Capture) Frames() <-chan []int16 { return c.frames }

func (c *Capture) Stop() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started || c.stopped {
		return nil, errors.New("not recording")
	}
	c.stopped = true
	if c.stopErr != nil {
		return nil, c.stopErr
	}
	if c.pcm != nil {
		return c.pcm, nil
	}
	return audio.Int16ToBytes(c.kept), nil
}

func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.frames)
	}
	return nil
}

// Push delivers a frame unless the capture is closed. It reports whether the frame was queued.
func (c *Capture) Push(frame []int16) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	if c.started && !c.stopped && c.keeping {
		c.kept = append(c.kept, frame...)
	}
	select {
	case c.frames <- frame:
		return true
	default:
		return false
	}
}

// Records returns how many times Record was called.
func (c *Capture) Records() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.records
}

// Closed reports whether the device was released.
func (c *Capture) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
