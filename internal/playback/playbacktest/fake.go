// Package playbacktest provides a scripted playback.Coordinator for tests.
package playbacktest

import (
	"context"
	"sync"
	"time"
)

// Coordinator records every call and simulates a player.
type Coordinator struct {
	// PlayDuration is how long Play blocks unless stopped.
	PlayDuration time.Duration
	// PlayErr is returned by Play after recording the call.
	PlayErr error

	mu       sync.Mutex
	speaking bool
	stuck    bool
	muted    bool
	stale    bool
	calls    []string
	played   []string
	stop     chan struct{}
}

// New returns a silent, unmuted coordinator.
func New() *Coordinator {
	return &Coordinator{}
}

func (c *Coordinator) record(call string) {
	c.calls = append(c.calls, call)
}

func (c *Coordinator) Mute() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("mute")
	c.muted = true
}

func (c *Coordinator) Unmute() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("unmute")
	if !c.stale {
		c.muted = false
	}
}

func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("stop")
	if !c.stuck {
		c.speaking = false
	}
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}

func (c *Coordinator) IsSpeaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speaking
}

func (c *Coordinator) Play(ctx context.Context, text string) error {
	c.mu.Lock()
	c.record("play")
	c.played = append(c.played, text)
	if c.PlayErr != nil {
		err := c.PlayErr
		c.mu.Unlock()
		return err
	}
	c.speaking = true
	stop := make(chan struct{})
	c.stop = stop
	d := c.PlayDuration
	c.mu.Unlock()

	var err error
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-stop:
	case <-ctx.Done():
		err = ctx.Err()
	}

	c.mu.Lock()
	if !c.stuck {
		c.speaking = false
	}
	if c.stop == stop {
		c.stop = nil
	}
	c.mu.Unlock()
	return err
}

// SetSpeaking forces the speaking flag.
func (c *Coordinator) SetSpeaking(speaking bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speaking = speaking
}

// SetStuck makes IsSpeaking keep its current value through Stop and the end
// of Play, simulating a player that never reports silence.
func (c *Coordinator) SetStuck(stuck bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stuck = stuck
}

// SetStaleMute makes Unmute leave the mute flag set, simulating a player
// whose mute state lags behind commands.
func (c *Coordinator) SetStaleMute(stale bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stale = stale
}

// Muted reports the current mute state.
func (c *Coordinator) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

// Calls returns the recorded call names in order.
func (c *Coordinator) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.calls))
	copy(out, c.calls)
	return out
}

// Played returns every text passed to Play.
func (c *Coordinator) Played() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.played))
	copy(out, c.played)
	return out
}
