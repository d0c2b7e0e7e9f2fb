package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "conversation_sessions_active",
		Help: "Currently active conversation sessions",
	})

	SessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conversation_sessions_total",
		Help: "Total conversation sessions created",
	})

	AudioChunks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audio_chunks_ingested_total",
		Help: "Audio chunks accepted into session channels",
	})

	ChunksDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audio_chunks_dropped_total",
		Help: "Chunks dropped because the session was not accepting audio",
	})

	ChannelDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "audio_channel_depth",
		Help: "Chunks queued across all session channels awaiting drain",
	})

	UtterancesCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "utterances_committed_total",
		Help: "Utterances committed into conversation history",
	})

	EmptyCommits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "utterance_empty_commits_total",
		Help: "Commit signals skipped because nothing was accumulated",
	})

	SpeechSegments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vad_speech_segments_total",
		Help: "Speech segments delimited by VAD",
	})

	SpeakerDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speaker_decisions_total",
		Help: "Speaker decision engine outcomes by action",
	}, []string{"action"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_stage_duration_seconds",
		Help:    "Per-stage latency",
		Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.0, 2.0, 5.0},
	}, []string{"stage"})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pipeline_cycle_duration_seconds",
		Help:    "Commit to last synthesized chunk per utterance",
		Buckets: []float64{0.1, 0.2, 0.5, 0.8, 1.0, 1.5, 2.0, 3.0, 5.0},
	})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_errors_total",
		Help: "Error counts by stage",
	}, []string{"stage", "error_type"})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "domain_events_published_total",
		Help: "Domain events published by type",
	}, []string{"type"})
)
