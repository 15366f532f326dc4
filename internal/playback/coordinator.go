// Package playback defines how the voice loop controls the speech player and
// provides a speaker-backed implementation.
package playback

import (
	"context"
	"errors"
	"time"
)

// ErrSyncTimeout means the player did not report silence within the bound.
var ErrSyncTimeout = errors.New("playback did not confirm silence in time")

// Coordinator is the player capability handed to the voice loop. Every method
// is idempotent: Stop on a silent player and Mute on a muted one are no-ops.
type Coordinator interface {
	Mute()
	Unmute()
	Stop()
	IsSpeaking() bool
	// Play speaks text and blocks until playback completes, is stopped, or ctx ends.
	Play(ctx context.Context, text string) error
}

// MuteReporter is implemented by coordinators that expose their mute state.
type MuteReporter interface {
	Muted() bool
}

// WaitSilent polls IsSpeaking every interval until it reports false. It
// returns ErrSyncTimeout after timeout and ctx.Err() on cancellation.
func WaitSilent(ctx context.Context, c Coordinator, timeout, interval time.Duration) error {
	if !c.IsSpeaking() {
		return nil
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			if !c.IsSpeaking() {
				return nil
			}
			return ErrSyncTimeout
		case <-ticker.C:
			if !c.IsSpeaking() {
				return nil
			}
		}
	}
}
