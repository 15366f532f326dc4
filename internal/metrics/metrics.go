// Package metrics holds the Prometheus collectors for the voice loop and
// push-to-talk sessions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the voice core.
type Metrics struct {
	registry *prometheus.Registry

	// Loop metrics
	PhaseTransitions *prometheus.CounterVec
	CurrentPhase     *prometheus.GaugeVec
	Turns            *prometheus.CounterVec
	TurnDuration     prometheus.Histogram

	// Collaborator metrics
	TranscriptionErrors *prometheus.CounterVec
	PlaybackSyncTimeout prometheus.Counter
	StaleMuteFallbacks  prometheus.Counter
	EchoFragments       prometheus.Counter

	// Push-to-talk metrics
	PushToTalkSessions *prometheus.CounterVec
}

// New creates a Metrics instance with every collector registered on a
// private registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "banana4u"
	}

	registry := prometheus.NewRegistry()

	phaseTransitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_transitions_total",
			Help:      "Conversation loop phase transitions",
		},
		[]string{"phase"},
	)

	currentPhase := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "phase",
			Help:      "1 for the conversation loop's current phase, 0 otherwise",
		},
		[]string{"phase"},
	)

	turns := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Conversation turns by outcome",
		},
		[]string{"outcome"},
	)

	turnDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Wall time of a conversation turn from preparation to outcome",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120},
		},
	)

	transcriptionErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_errors_total",
			Help:      "Speech-to-text failures by kind",
		},
		[]string{"kind"},
	)

	playbackSyncTimeout := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_sync_timeouts_total",
			Help:      "Turns that opened the microphone without playback confirming silence",
		},
	)

	staleMuteFallbacks := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_mute_fallbacks_total",
			Help:      "Replies spoken although the player still reported a mute or active speech",
		},
	)

	echoFragments := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "echo_fragments_dropped_total",
			Help:      "Transcript fragments removed as assistant echo",
		},
	)

	pushToTalkSessions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_to_talk_sessions_total",
			Help:      "Push-to-talk sessions by outcome",
		},
		[]string{"outcome"},
	)

	registry.MustRegister(
		phaseTransitions,
		currentPhase,
		turns,
		turnDuration,
		transcriptionErrors,
		playbackSyncTimeout,
		staleMuteFallbacks,
		echoFragments,
		pushToTalkSessions,
	)

	return &Metrics{
		registry:            registry,
		PhaseTransitions:    phaseTransitions,
		CurrentPhase:        currentPhase,
		Turns:               turns,
		TurnDuration:        turnDuration,
		TranscriptionErrors: transcriptionErrors,
		PlaybackSyncTimeout: playbackSyncTimeout,
		StaleMuteFallbacks:  staleMuteFallbacks,
		EchoFragments:       echoFragments,
		PushToTalkSessions:  pushToTalkSessions,
	}
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordPhase records a transition into phase.
func (m *Metrics) RecordPhase(from, to string) {
	m.PhaseTransitions.WithLabelValues(to).Inc()
	if from != "" {
		m.CurrentPhase.WithLabelValues(from).Set(0)
	}
	m.CurrentPhase.WithLabelValues(to).Set(1)
}

// RecordTurn records a finished turn.
func (m *Metrics) RecordTurn(outcome string, duration time.Duration) {
	m.Turns.WithLabelValues(outcome).Inc()
	m.TurnDuration.Observe(duration.Seconds())
}

// RecordTranscriptionError records a speech-to-text failure.
func (m *Metrics) RecordTranscriptionError(kind string) {
	m.TranscriptionErrors.WithLabelValues(kind).Inc()
}

// RecordPushToTalk records a finished push-to-talk session.
func (m *Metrics) RecordPushToTalk(outcome string) {
	m.PushToTalkSessions.WithLabelValues(outcome).Inc()
}
