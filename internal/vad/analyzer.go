// Package vad turns microphone frames into loudness samples and detects the
// start and end of speech with a hysteresis pair of thresholds.
package vad

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	// WindowSize is the analysis window in samples.
	WindowSize = 512

	smoothingTimeConstant = 0.8
	minDecibels           = -100.0
	maxDecibels           = -30.0
)

// EnergyMeter reduces one frame of PCM16 to an energy reading in [0, 255].
type EnergyMeter interface {
	Energy(frame []int16) float64
}

// Analyzer computes byte-scaled spectral energy the way a browser
// AnalyserNode does: Blackman window, FFT, temporal smoothing, dB scaling
// onto 0-255, then the mean across frequency bins.
type Analyzer struct {
	size     int
	fft      *fourier.FFT
	window   []float64
	input    []float64
	coeffs   []complex128
	smoothed []float64
}

// NewAnalyzer creates an analyzer for windows of the given size (a power of two).
func NewAnalyzer(size int) *Analyzer {
	if size <= 0 {
		size = WindowSize
	}
	window := make([]float64, size)
	for n := range window {
		x := 2 * math.Pi * float64(n) / float64(size)
		window[n] = 0.42 - 0.5*math.Cos(x) + 0.08*math.Cos(2*x)
	}
	return &Analyzer{
		size:     size,
		fft:      fourier.NewFFT(size),
		window:   window,
		input:    make([]float64, size),
		coeffs:   make([]complex128, size/2+1),
		smoothed: make([]float64, size/2),
	}
}

// Bins returns the number of frequency bins averaged per reading.
func (a *Analyzer) Bins() int {
	return a.size / 2
}

// Energy returns the mean byte-scaled magnitude of the frame. Short frames are
// zero-padded; long frames use their most recent samples.
func (a *Analyzer) Energy(frame []int16) float64 {
	if len(frame) > a.size {
		frame = frame[len(frame)-a.size:]
	}
	for i := range a.input {
		var s float64
		if i < len(frame) {
			s = float64(frame[i]) / 32768
		}
		a.input[i] = s * a.window[i]
	}

	a.coeffs = a.fft.Coefficients(a.coeffs, a.input)

	n := float64(a.size)
	scale := 255 / (maxDecibels - minDecibels)
	var sum float64
	for k := range a.smoothed {
		mag := cmplx.Abs(a.coeffs[k]) / n
		a.smoothed[k] = smoothingTimeConstant*a.smoothed[k] + (1-smoothingTimeConstant)*mag

		db := minDecibels
		if a.smoothed[k] > 0 {
			db = 20 * math.Log10(a.smoothed[k])
		}
		v := scale * (db - minDecibels)
		if v < 0 {
			v = 0
		} else if v > 255 {
			v = 255
		}
		sum += math.Floor(v)
	}
	return sum / float64(len(a.smoothed))
}

// Reset clears the smoothing history.
func (a *Analyzer) Reset() {
	for i := range a.smoothed {
		a.smoothed[i] = 0
	}
}
