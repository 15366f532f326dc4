package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yok-tottii/banana4u-voice/internal/api"
	"github.com/yok-tottii/banana4u-voice/internal/audio"
	"github.com/yok-tottii/banana4u-voice/internal/audio/audiotest"
	"github.com/yok-tottii/banana4u-voice/internal/config"
	"github.com/yok-tottii/banana4u-voice/internal/conversation"
	"github.com/yok-tottii/banana4u-voice/internal/events"
	"github.com/yok-tottii/banana4u-voice/internal/metrics"
	"github.com/yok-tottii/banana4u-voice/internal/playback/playbacktest"
	"github.com/yok-tottii/banana4u-voice/internal/recording"
	"github.com/yok-tottii/banana4u-voice/internal/server"
	"github.com/yok-tottii/banana4u-voice/internal/voice"
)

type staticSTT string

func (s staticSTT) Transcribe(ctx context.Context, data []byte, mimeType string) (string, error) {
	return string(s), nil
}

type silentResponder struct{}

func (silentResponder) Respond(ctx context.Context, transcript string) (string, error) {
	return "ok", nil
}

type grantAll struct{}

func (grantAll) CheckAllPermissions() map[string]bool {
	return map[string]bool{"microphone": true, "accessibility": true}
}

// startStack runs the real voice core behind the real server.
func startStack(t *testing.T) (*server.Server, *voice.Core) {
	t.Helper()
	drv := audiotest.NewDriver(audio.Device{ID: 0, Name: "Built-in Microphone", IsDefault: true})
	bus := events.NewBus()
	m := metrics.New("integration")
	stt := staticSTT("take a note")

	loop, err := conversation.New(conversation.DefaultConfig(), conversation.Dependencies{
		Driver:    drv,
		STT:       stt,
		Responder: silentResponder{},
		Playback:  playbacktest.New(),
		Bus:       bus,
		Metrics:   m,
	})
	require.NoError(t, err)
	ptt := recording.New(drv, stt, bus, m, zerolog.Nop(), recording.DefaultConfig())
	core := voice.New(ptt, loop, bus, zerolog.Nop())
	t.Cleanup(core.Close)

	srv := server.New(server.Config{Port: 0}, zerolog.Nop())
	api.New(api.Options{
		Config:      config.DefaultConfig(),
		ConfigPath:  filepath.Join(t.TempDir(), "config.json"),
		Voice:       core,
		Driver:      drv,
		Permissions: grantAll{},
		Metrics:     m.Handler(),
	}, zerolog.Nop()).RegisterRoutes(srv.GetMux())

	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Stop() })
	return srv, core
}

func post(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestServerAPIIntegration(t *testing.T) {
	srv, _ := startStack(t)

	resp, err := http.Get(srv.URL() + "/api/settings")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	resp, err = http.Get(srv.URL() + "/api/nonexistent")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPushToTalkOverHTTPStreamsEvents(t *testing.T) {
	srv, core := startStack(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL(), "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Wait until the stream has subscribed before producing events.
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, http.StatusAccepted, post(t, srv.URL()+"/api/ptt/start").StatusCode)
	assert.Equal(t, voice.ModePushToTalk, core.State().Mode)

	resp := post(t, srv.URL()+"/api/ptt/stop")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "take a note", result["transcript"])

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var transcript string
	for transcript == "" {
		var e events.Event
		require.NoError(t, conn.ReadJSON(&e))
		assert.Equal(t, events.ModePushToTalk, e.Mode)
		if e.Type == events.TranscriptReady {
			transcript = e.Transcript
		}
	}
	assert.Equal(t, "take a note", transcript)
}

func TestConversationBlocksPushToTalkOverHTTP(t *testing.T) {
	srv, core := startStack(t)

	assert.Equal(t, http.StatusAccepted, post(t, srv.URL()+"/api/conversation/start").StatusCode)
	assert.Equal(t, voice.ModeConversation, core.State().Mode)

	assert.Equal(t, http.StatusConflict, post(t, srv.URL()+"/api/ptt/start").StatusCode)

	assert.Equal(t, http.StatusOK, post(t, srv.URL()+"/api/conversation/stop").StatusCode)
	assert.Equal(t, voice.ModeNone, core.State().Mode)
}

func TestMetricsExposed(t *testing.T) {
	srv, _ := startStack(t)

	post(t, srv.URL()+"/api/ptt/start")
	post(t, srv.URL()+"/api/ptt/stop")

	resp, err := http.Get(srv.URL() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
