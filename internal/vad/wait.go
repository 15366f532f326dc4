package vad

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoVoice means no onset arrived before the caller's timeout. It is a
	// normal outcome, not a failure.
	ErrNoVoice = errors.New("no voice detected")
	// ErrStreamClosed means the capture device went away mid-wait.
	ErrStreamClosed = errors.New("audio stream closed")
	// ErrMaxDuration means speech ran past the recording limit.
	ErrMaxDuration = errors.New("maximum recording duration reached")
)

// Stream analyzes frames on its own goroutine and emits one sample per frame.
// The returned channel closes when frames closes or ctx ends.
func Stream(ctx context.Context, frames <-chan []int16, meter EnergyMeter, now func() time.Time) <-chan Sample {
	if now == nil {
		now = time.Now
	}
	out := make(chan Sample, 8)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case frame, ok := <-frames:
				if !ok {
					return
				}
				s := Sample{Energy: meter.Energy(frame), At: now()}
				select {
				case out <- s:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// WaitForOnset blocks until the detector reports voice onset. A non-positive
// timeout waits until ctx ends.
func WaitForOnset(ctx context.Context, d *Detector, samples <-chan Sample, timeout time.Duration) (Sample, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return Sample{}, ctx.Err()
		case <-expired:
			return Sample{}, ErrNoVoice
		case s, ok := <-samples:
			if !ok {
				return Sample{}, ErrStreamClosed
			}
			if d.Observe(s) == Onset {
				return s, nil
			}
		}
	}
}

// WaitForOffset blocks until the detector reports sustained silence. The
// caller must have started the silence timer. A positive limit caps the wait.
func WaitForOffset(ctx context.Context, d *Detector, samples <-chan Sample, limit time.Duration) error {
	var expired <-chan time.Time
	if limit > 0 {
		timer := time.NewTimer(limit)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-expired:
			return ErrMaxDuration
		case s, ok := <-samples:
			if !ok {
				return ErrStreamClosed
			}
			if d.Observe(s) == Offset {
				return nil
			}
		}
	}
}
