package server

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	config := DefaultConfig()
	config.Port = 0
	return config
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, 18765, config.Port)
	assert.Equal(t, 10*time.Second, config.ReadTimeout)
	assert.Zero(t, config.WriteTimeout, "streaming endpoints need no write timeout")
	assert.Equal(t, 5*time.Second, config.ShutdownTimeout)
}

func TestNew(t *testing.T) {
	s := New(testConfig(), zerolog.Nop())
	require.NotNil(t, s)
	assert.NotNil(t, s.GetMux())
	assert.False(t, s.IsRunning())
}

func TestStartStop(t *testing.T) {
	s := New(testConfig(), zerolog.Nop())
	s.GetMux().HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "pong")
	})

	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())
	assert.NotZero(t, s.Port())
	assert.Error(t, s.Start(), "second start fails")

	resp, err := http.Get(s.URL() + "/ping")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "pong", string(body))

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.NoError(t, s.Stop(), "stopping twice is a no-op")

	_, err = http.Get(s.URL() + "/ping")
	assert.Error(t, err)
}

func TestURL(t *testing.T) {
	s := New(Config{Port: 23456}, zerolog.Nop())
	assert.Equal(t, "http://127.0.0.1:23456", s.URL())
}

func TestStartPortInUse(t *testing.T) {
	first := New(testConfig(), zerolog.Nop())
	require.NoError(t, first.Start())
	defer first.Stop()

	second := New(Config{Port: first.Port()}, zerolog.Nop())
	assert.Error(t, second.Start())
	assert.False(t, second.IsRunning())
}

func TestIsLocalOrigin(t *testing.T) {
	assert.True(t, IsLocalOrigin("http://localhost:3000"))
	assert.True(t, IsLocalOrigin("http://127.0.0.1:18765"))
	assert.False(t, IsLocalOrigin("https://example.com"))
	assert.False(t, IsLocalOrigin(""))
}

func TestCORSMiddleware(t *testing.T) {
	s := New(testConfig(), zerolog.Nop())
	s.GetMux().HandleFunc("/api/state", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := s.Handler()

	tests := []struct {
		name       string
		method     string
		origin     string
		allowed    string
		statusCode int
	}{
		{"localhost origin", http.MethodGet, "http://localhost:3000", "http://localhost:3000", http.StatusOK},
		{"loopback origin", http.MethodGet, "http://127.0.0.1:18765", "http://127.0.0.1:18765", http.StatusOK},
		{"foreign origin", http.MethodGet, "https://example.com", "", http.StatusOK},
		{"preflight", http.MethodOptions, "http://localhost:3000", "http://localhost:3000", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/state", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.statusCode, w.Code)
			assert.Equal(t, tt.allowed, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestMultipleStartStop(t *testing.T) {
	s := New(testConfig(), zerolog.Nop())
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Start(), fmt.Sprintf("start %d", i))
		require.NoError(t, s.Stop(), fmt.Sprintf("stop %d", i))
	}
}
