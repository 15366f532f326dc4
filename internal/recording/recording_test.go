package recording

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yok-tottii/banana4u-voice/internal/audio"
	"github.com/yok-tottii/banana4u-voice/internal/audio/audiotest"
	"github.com/yok-tottii/banana4u-voice/internal/events"
	"github.com/yok-tottii/banana4u-voice/internal/metrics"
	"github.com/yok-tottii/banana4u-voice/internal/recognition"
)

type fakeSTT struct {
	mu       sync.Mutex
	text     string
	err      error
	calls    int
	mimeType string
	block    chan struct{}
}

func (f *fakeSTT) Transcribe(ctx context.Context, data []byte, mimeType string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mimeType = mimeType
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.text, f.err
}

func (f *fakeSTT) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newManager(t *testing.T, drv *audiotest.Driver, stt *fakeSTT, config Config) (*Manager, *events.Bus, *metrics.Metrics) {
	t.Helper()
	bus := events.NewBus()
	m := metrics.New("test")
	return New(drv, stt, bus, m, zerolog.Nop(), config), bus, m
}

func microphone() audio.Device {
	return audio.Device{ID: 2, Name: "USB Microphone", IsDefault: true}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, 60*time.Second, config.MaxDuration)
	assert.Equal(t, 16000, config.Audio.SampleRate)
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{Idle, "idle"},
		{Recording, "recording"},
		{Processing, "processing"},
		{State(9), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.state.String())
		})
	}
}

func TestStartStopReturnsRawTranscript(t *testing.T) {
	drv := audiotest.NewDriver(microphone())
	stt := &fakeSTT{text: "Remind me to buy bananas."}
	mgr, bus, m := newManager(t, drv, stt, DefaultConfig())
	ch, cancel := bus.Subscribe(16)
	defer cancel()

	require.NoError(t, mgr.Start(context.Background()))
	assert.Equal(t, Recording, mgr.GetState())
	require.NotNil(t, drv.Last())
	assert.False(t, drv.Last().Closed())
	assert.Equal(t, []int{2}, drv.OpenedIDs())

	text, err := mgr.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Remind me to buy bananas.", text)
	assert.Equal(t, Idle, mgr.GetState())
	assert.True(t, drv.Last().Closed())
	assert.Equal(t, audio.WAVMimeType, stt.mimeType)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PushToTalkSessions.WithLabelValues(OutcomeCompleted)))

	var states []string
	var ready events.Event
	for len(ch) > 0 {
		e := <-ch
		switch e.Type {
		case events.StateChanged:
			states = append(states, e.State)
		case events.TranscriptReady:
			ready = e
		}
	}
	assert.Equal(t, []string{"recording", "processing", "idle"}, states)
	assert.Equal(t, events.ModePushToTalk, ready.Mode)
	assert.Equal(t, "Remind me to buy bananas.", ready.Transcript)
}

func TestStartWhileRecordingIsBusy(t *testing.T) {
	drv := audiotest.NewDriver(microphone())
	mgr, _, _ := newManager(t, drv, &fakeSTT{text: "hello there"}, DefaultConfig())

	require.NoError(t, mgr.Start(context.Background()))
	err := mgr.Start(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
	assert.Len(t, drv.Captures(), 1)
	mgr.Cancel()
}

func TestStopWithoutStart(t *testing.T) {
	mgr, _, _ := newManager(t, audiotest.NewDriver(microphone()), &fakeSTT{}, DefaultConfig())

	_, err := mgr.Stop(context.Background())
	assert.ErrorIs(t, err, ErrNotRecording)
}

func TestDenylistedDevicesOnly(t *testing.T) {
	drv := audiotest.NewDriver(audio.Device{ID: 5, Name: "BlackHole 2ch", IsDefault: true})
	mgr, _, m := newManager(t, drv, &fakeSTT{}, DefaultConfig())

	err := mgr.Start(context.Background())
	var de *audio.DeviceError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, audio.DenylistedOnly, de.Kind)
	assert.Equal(t, Idle, mgr.GetState())
	assert.Empty(t, drv.Captures())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PushToTalkSessions.WithLabelValues(OutcomeDeviceError)))
}

func TestTooShortRecording(t *testing.T) {
	drv := audiotest.NewDriver(microphone())
	drv.PCM = make([]byte, 20)
	stt := &fakeSTT{text: "never"}
	mgr, bus, _ := newManager(t, drv, stt, DefaultConfig())
	ch, cancel := bus.Subscribe(16)
	defer cancel()

	require.NoError(t, mgr.Start(context.Background()))
	_, err := mgr.Stop(context.Background())
	assert.ErrorIs(t, err, audio.ErrTooShort)
	assert.Zero(t, stt.Calls())
	assert.Equal(t, Idle, mgr.GetState())

	found := false
	for len(ch) > 0 {
		if e := <-ch; e.Type == events.Notice && e.Code == events.NoticeAudioTooShort {
			found = true
		}
	}
	assert.True(t, found)
}

func TestTranscriptionErrorIsReturned(t *testing.T) {
	stt := &fakeSTT{err: &recognition.TranscriptionError{Kind: recognition.Timeout, Provider: "openai"}}
	mgr, _, m := newManager(t, audiotest.NewDriver(microphone()), stt, DefaultConfig())

	require.NoError(t, mgr.Start(context.Background()))
	_, err := mgr.Stop(context.Background())
	te, ok := recognition.AsTranscriptionError(err)
	require.True(t, ok)
	assert.Equal(t, recognition.Timeout, te.Kind)
	assert.Equal(t, Idle, mgr.GetState())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TranscriptionErrors.WithLabelValues("timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PushToTalkSessions.WithLabelValues(OutcomeTranscriptionError)))
}

func TestMaxDurationReleasesMicrophone(t *testing.T) {
	drv := audiotest.NewDriver(microphone())
	config := DefaultConfig()
	config.MaxDuration = 20 * time.Millisecond
	mgr, bus, _ := newManager(t, drv, &fakeSTT{text: "long dictation"}, config)
	ch, cancel := bus.Subscribe(16)
	defer cancel()

	require.NoError(t, mgr.Start(context.Background()))
	require.Eventually(t, func() bool { return drv.Last().Closed() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, Recording, mgr.GetState())

	text, err := mgr.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "long dictation", text)

	found := false
	for len(ch) > 0 {
		if e := <-ch; e.Code == events.NoticeMaxDuration {
			found = true
		}
	}
	assert.True(t, found)
}

func TestMaxDurationCaptureErrorIsReturnedByStop(t *testing.T) {
	drv := audiotest.NewDriver(microphone())
	drv.StopErr = errors.New("stream underflow")
	config := DefaultConfig()
	config.MaxDuration = 20 * time.Millisecond
	stt := &fakeSTT{text: "unused"}
	mgr, bus, _ := newManager(t, drv, stt, config)
	ch, cancel := bus.Subscribe(16)
	defer cancel()

	require.NoError(t, mgr.Start(context.Background()))
	require.Eventually(t, func() bool { return drv.Last().Closed() }, time.Second, 5*time.Millisecond)

	_, err := mgr.Stop(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, drv.StopErr)
	assert.NotErrorIs(t, err, audio.ErrTooShort)
	assert.Equal(t, Idle, mgr.GetState())

	for len(ch) > 0 {
		assert.NotEqual(t, events.NoticeAudioTooShort, (<-ch).Code)
	}
}

func TestStateIsProcessingDuringTranscription(t *testing.T) {
	stt := &fakeSTT{text: "done", block: make(chan struct{})}
	mgr, _, _ := newManager(t, audiotest.NewDriver(microphone()), stt, DefaultConfig())
	require.NoError(t, mgr.Start(context.Background()))

	result := make(chan string, 1)
	go func() {
		text, _ := mgr.Stop(context.Background())
		result <- text
	}()

	require.Eventually(t, func() bool { return mgr.GetState() == Processing }, time.Second, time.Millisecond)
	assert.ErrorIs(t, mgr.Start(context.Background()), ErrBusy)
	close(stt.block)
	assert.Equal(t, "done", <-result)
	assert.Equal(t, Idle, mgr.GetState())
}

func TestCancelReleasesWithoutTranscribing(t *testing.T) {
	drv := audiotest.NewDriver(microphone())
	stt := &fakeSTT{text: "unused"}
	mgr, _, m := newManager(t, drv, stt, DefaultConfig())

	require.NoError(t, mgr.Start(context.Background()))
	mgr.Cancel()
	mgr.Cancel()

	assert.Equal(t, Idle, mgr.GetState())
	assert.True(t, drv.Last().Closed())
	assert.Zero(t, stt.Calls())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PushToTalkSessions.WithLabelValues(OutcomeCancelled)))

	require.NoError(t, mgr.Start(context.Background()), "the microphone can be reopened")
	mgr.Cancel()
}
