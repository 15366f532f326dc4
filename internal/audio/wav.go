package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVMimeType is the MIME type of EncodeWAV output.
const WAVMimeType = "audio/wav"

// EncodeWAV wraps little-endian PCM16 in a WAV container for upload.
func EncodeWAV(pcm []byte, sampleRate, channels int) ([]byte, error) {
	if channels <= 0 {
		channels = 1
	}
	samples := BytesToInt16(pcm)

	buf := &memWriteSeeker{}
	enc := wav.NewEncoder(buf, sampleRate, 16, channels, 1)

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	ib := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}

	if err := enc.Write(ib); err != nil {
		return nil, fmt.Errorf("failed to encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize wav: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeWAV returns mono float32 samples in [-1, 1] plus the sample rate.
// Multi-channel input is downmixed.
func DecodeWAV(data []byte) ([]float32, int, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, 0, errors.New("invalid wav data")
	}

	ib, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode wav: %w", err)
	}
	if ib == nil || len(ib.Data) == 0 {
		return nil, 0, errors.New("empty wav")
	}

	bitDepth := int(dec.BitDepth)
	if bitDepth == 0 {
		bitDepth = 16
	}
	channels, rate := 1, 16000
	if ib.Format != nil {
		if ib.Format.NumChannels > 0 {
			channels = ib.Format.NumChannels
		}
		if ib.Format.SampleRate > 0 {
			rate = ib.Format.SampleRate
		}
	}

	scale := float32(int(1) << uint(bitDepth-1))
	out := make([]float32, len(ib.Data)/channels)
	for i := range out {
		var sum int
		for c := 0; c < channels; c++ {
			sum += ib.Data[i*channels+c]
		}
		out[i] = float32(sum) / float32(channels) / scale
	}
	return out, rate, nil
}

// ResampleLinear converts mono samples between rates by linear interpolation.
func ResampleLinear(in []float32, from, to int) []float32 {
	if from == to || from <= 0 || to <= 0 || len(in) == 0 {
		return in
	}
	n := int(int64(len(in)) * int64(to) / int64(from))
	out := make([]float32, n)
	step := float64(from) / float64(to)
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = in[j]*(1-frac) + in[j+1]*frac
	}
	return out
}

// memWriteSeeker is an in-memory io.WriteSeeker; the wav encoder seeks back
// to patch chunk sizes.
type memWriteSeeker struct {
	buf []byte
	pos int
}

func (w *memWriteSeeker) Write(p []byte) (int, error) {
	end := w.pos + len(p)
	if end > len(w.buf) {
		if end > cap(w.buf) {
			grown := make([]byte, end, 2*end)
			copy(grown, w.buf)
			w.buf = grown
		} else {
			w.buf = w.buf[:end]
		}
	}
	copy(w.buf[w.pos:], p)
	w.pos = end
	return len(p), nil
}

func (w *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(w.pos) + offset
	case io.SeekEnd:
		next = int64(len(w.buf)) + offset
	default:
		return 0, fmt.Errorf("invalid whence: %d", whence)
	}
	if next < 0 {
		return 0, errors.New("negative seek position")
	}
	w.pos = int(next)
	return next, nil
}

// Bytes returns everything written so far.
func (w *memWriteSeeker) Bytes() []byte {
	return w.buf
}
