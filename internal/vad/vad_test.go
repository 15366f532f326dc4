package vad

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noise(r *rand.Rand, n int, amplitude float64) []int16 {
	frame := make([]int16, n)
	for i := range frame {
		frame[i] = int16((r.Float64()*2 - 1) * amplitude * 32767)
	}
	return frame
}

func TestAnalyzerSilenceIsZero(t *testing.T) {
	a := NewAnalyzer(WindowSize)
	assert.Equal(t, 256, a.Bins())
	assert.Equal(t, 0.0, a.Energy(make([]int16, WindowSize)))
}

func TestAnalyzerLoudNoiseCrossesVoiceThreshold(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	a := NewAnalyzer(WindowSize)

	var energy float64
	for i := 0; i < 10; i++ {
		energy = a.Energy(noise(r, WindowSize, 0.5))
	}
	assert.Greater(t, energy, 50.0)
	assert.LessOrEqual(t, energy, 255.0)
}

func TestAnalyzerSmoothingDecays(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	a := NewAnalyzer(WindowSize)
	for i := 0; i < 10; i++ {
		a.Energy(noise(r, WindowSize, 0.5))
	}

	first := a.Energy(make([]int16, WindowSize))
	assert.Greater(t, first, 0.0, "smoothing keeps some energy after the sound stops")

	var last float64
	for i := 0; i < 200; i++ {
		last = a.Energy(make([]int16, WindowSize))
	}
	assert.Less(t, last, first)
	assert.Less(t, last, 30.0)

	a.Energy(noise(r, WindowSize, 0.5))
	a.Reset()
	assert.Equal(t, 0.0, a.Energy(make([]int16, WindowSize)))
}

func TestAnalyzerHandlesOddFrameSizes(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	a := NewAnalyzer(WindowSize)

	assert.NotPanics(t, func() {
		a.Energy(noise(r, 100, 0.5))
		a.Energy(noise(r, 2048, 0.5))
		a.Energy(nil)
	})
}

func TestEdge_String(t *testing.T) {
	assert.Equal(t, "none", None.String())
	assert.Equal(t, "voice-onset", Onset.String())
	assert.Equal(t, "voice-offset", Offset.String())
}

func TestDetectorOnsetThenOffset(t *testing.T) {
	d := NewDetector(DefaultConfig())
	start := time.Unix(0, 0)
	at := func(ms int) time.Time { return start.Add(time.Duration(ms) * time.Millisecond) }

	assert.Equal(t, None, d.Observe(Sample{Energy: 20, At: at(0)}))
	assert.Equal(t, None, d.Observe(Sample{Energy: 50, At: at(10)}), "threshold is exclusive")
	assert.Equal(t, Onset, d.Observe(Sample{Energy: 80, At: at(20)}))
	assert.True(t, d.InSpeech())
	assert.Equal(t, None, d.Observe(Sample{Energy: 90, At: at(30)}))

	assert.Equal(t, None, d.Observe(Sample{Energy: 10, At: at(1000)}))
	assert.Equal(t, Offset, d.Observe(Sample{Energy: 10, At: at(1530)}))
	assert.False(t, d.InSpeech())
	assert.Equal(t, None, d.Observe(Sample{Energy: 10, At: at(5000)}))
	assert.Equal(t, None, d.Observe(Sample{Energy: 200, At: at(5010)}))
}

func TestDetectorLoudSampleResetsSilenceTimer(t *testing.T) {
	d := NewDetector(DefaultConfig())
	start := time.Unix(0, 0)
	at := func(ms int) time.Time { return start.Add(time.Duration(ms) * time.Millisecond) }

	require.Equal(t, Onset, d.Observe(Sample{Energy: 60, At: at(0)}))
	assert.Equal(t, None, d.Observe(Sample{Energy: 10, At: at(1400)}))
	assert.Equal(t, None, d.Observe(Sample{Energy: 70, At: at(1450)}))
	assert.Equal(t, None, d.Observe(Sample{Energy: 10, At: at(1600)}))
	assert.Equal(t, None, d.Observe(Sample{Energy: 10, At: at(2900)}))
	assert.Equal(t, Offset, d.Observe(Sample{Energy: 10, At: at(2950)}))
}

func TestDetectorMidRangeNeitherResetsNorFires(t *testing.T) {
	d := NewDetector(DefaultConfig())
	start := time.Unix(0, 0)
	at := func(ms int) time.Time { return start.Add(time.Duration(ms) * time.Millisecond) }

	require.Equal(t, Onset, d.Observe(Sample{Energy: 60, At: at(0)}))
	assert.Equal(t, None, d.Observe(Sample{Energy: 40, At: at(1600)}), "between thresholds does not fire")
	assert.Equal(t, Offset, d.Observe(Sample{Energy: 5, At: at(1610)}), "mid-range samples did not reset the timer")
}

func TestDetectorStartSilenceTimer(t *testing.T) {
	d := NewDetector(DefaultConfig())
	start := time.Unix(100, 0)

	require.Equal(t, Onset, d.Observe(Sample{Energy: 60, At: start}))
	recording := start.Add(2 * time.Second)
	d.StartSilenceTimer(recording)

	assert.Equal(t, None, d.Observe(Sample{Energy: 5, At: recording.Add(1400 * time.Millisecond)}))
	assert.Equal(t, Offset, d.Observe(Sample{Energy: 5, At: recording.Add(1500 * time.Millisecond)}))

	d.Reset()
	assert.False(t, d.InSpeech())
	assert.Equal(t, Onset, d.Observe(Sample{Energy: 60, At: start}))
}

// Any sequence that crosses the voice threshold and then stays under the
// silence threshold long enough yields exactly one onset and one offset.
func TestDetectorExactlyOneOnsetAndOffset(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	cfg := DefaultConfig()

	for trial := 0; trial < 200; trial++ {
		d := NewDetector(cfg)
		now := time.Unix(0, 0)
		step := 16 * time.Millisecond
		var edges []Edge

		feed := func(e float64) {
			now = now.Add(step)
			if edge := d.Observe(Sample{Energy: e, At: now}); edge != None {
				edges = append(edges, edge)
			}
		}

		for i := r.Intn(50); i > 0; i-- {
			feed(r.Float64() * cfg.VoiceThreshold)
		}
		feed(cfg.VoiceThreshold + 1 + r.Float64()*200)
		for i := r.Intn(100); i > 0; i-- {
			feed(r.Float64() * 255)
		}
		quiet := int(cfg.SilenceDuration/step) + 1 + r.Intn(50)
		for i := 0; i < quiet; i++ {
			feed(r.Float64() * (cfg.SilenceThreshold - 0.01))
		}
		for i := r.Intn(50); i > 0; i-- {
			feed(r.Float64() * 255)
		}

		require.Equal(t, []Edge{Onset, Offset}, edges, "trial %d", trial)
	}
}

func TestWaitForOnsetTimeout(t *testing.T) {
	d := NewDetector(DefaultConfig())
	samples := make(chan Sample)

	_, err := WaitForOnset(context.Background(), d, samples, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrNoVoice)
}

func TestWaitForOnsetCancel(t *testing.T) {
	d := NewDetector(DefaultConfig())
	samples := make(chan Sample)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	started := time.Now()
	_, err := WaitForOnset(ctx, d, samples, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(started), 100*time.Millisecond)
}

func TestWaitForOnsetAndOffset(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SilenceDuration = 30 * time.Millisecond
	d := NewDetector(cfg)
	samples := make(chan Sample, 8)
	base := time.Unix(0, 0)

	samples <- Sample{Energy: 10, At: base}
	samples <- Sample{Energy: 90, At: base.Add(10 * time.Millisecond)}
	s, err := WaitForOnset(context.Background(), d, samples, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 90.0, s.Energy)

	d.StartSilenceTimer(base.Add(20 * time.Millisecond))
	samples <- Sample{Energy: 5, At: base.Add(30 * time.Millisecond)}
	samples <- Sample{Energy: 5, At: base.Add(60 * time.Millisecond)}
	require.NoError(t, WaitForOffset(context.Background(), d, samples, time.Second))
}

func TestWaitForOffsetLimitAndClose(t *testing.T) {
	d := NewDetector(DefaultConfig())
	d.StartSilenceTimer(time.Now())

	assert.ErrorIs(t, WaitForOffset(context.Background(), d, make(chan Sample), 10*time.Millisecond), ErrMaxDuration)

	closed := make(chan Sample)
	close(closed)
	assert.ErrorIs(t, WaitForOffset(context.Background(), d, closed, 0), ErrStreamClosed)
}

type constMeter float64

func (m constMeter) Energy([]int16) float64 { return float64(m) }

func TestStream(t *testing.T) {
	frames := make(chan []int16, 2)
	fixed := time.Unix(7, 0)
	out := Stream(context.Background(), frames, constMeter(42), func() time.Time { return fixed })

	frames <- []int16{1}
	s := <-out
	assert.Equal(t, 42.0, s.Energy)
	assert.Equal(t, fixed, s.At)

	close(frames)
	_, ok := <-out
	assert.False(t, ok)
}

func TestStreamStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	out := Stream(ctx, make(chan []int16), constMeter(1), nil)
	cancel()

	select {
	case _, ok := <-out:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("stream did not stop")
	}
}
