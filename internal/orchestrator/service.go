// Package orchestrator coordinates one full utterance cycle: audio in,
// speaker attribution, commit, translation, and synthesized speech out. It
// owns no conversation state itself; all of that lives in the session
// aggregate, and the orchestrator only sequences the steps around it.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/crosstalk-ai/gateway/internal/audio"
	"github.com/crosstalk-ai/gateway/internal/metrics"
	"github.com/crosstalk-ai/gateway/internal/notify"
	"github.com/crosstalk-ai/gateway/internal/pipeline"
	"github.com/crosstalk-ai/gateway/internal/session"
	"github.com/crosstalk-ai/gateway/internal/speaker"
	"github.com/crosstalk-ai/gateway/internal/trace"
	"github.com/crosstalk-ai/gateway/internal/utterance"
)

// Config wires the orchestrator's collaborators. STT, TTS, and Responder are
// required; Acoustic, Noise, Insights, and TraceStore are optional and the
// cycle degrades gracefully without them.
type Config struct {
	Repo       *session.Repository
	STT        *pipeline.STTRouter
	TTS        *pipeline.TTSRouter
	Responder  *pipeline.Responder
	Acoustic   pipeline.SpeakerIdentifier
	Noise      *pipeline.NoiseClient
	Insights   *pipeline.InsightAnalyzer
	TraceStore *trace.Store
	VAD        audio.VADConfig
}

// Service is the conversation orchestrator. One instance serves all
// sessions; per-session state lives in workers keyed by session ID.
type Service struct {
	repo      *session.Repository
	engine    *speaker.Engine
	profiles  *speaker.ProfileManager
	stt       *pipeline.STTRouter
	tts       *pipeline.TTSRouter
	responder *pipeline.Responder
	acoustic  pipeline.SpeakerIdentifier
	noise     *pipeline.NoiseClient
	insights  *pipeline.InsightAnalyzer
	store     *trace.Store
	vadCfg    audio.VADConfig

	workers sync.Map // session ID → *worker
	sinks   sync.Map // session ID → notify.Sink
	cycles  sync.Map // turn ID → *cycleOutcome, handed between handlers
}

// New creates the orchestrator service.
func New(cfg Config) *Service {
	return &Service{
		repo:      cfg.Repo,
		engine:    speaker.NewEngine(),
		profiles:  speaker.NewProfileManager(),
		stt:       cfg.STT,
		tts:       cfg.TTS,
		responder: cfg.Responder,
		acoustic:  cfg.Acoustic,
		noise:     cfg.Noise,
		insights:  cfg.Insights,
		store:     cfg.TraceStore,
		vadCfg:    cfg.VAD,
	}
}

// CreateOrGetSession returns the session bound to connectionID, creating it
// on first use. Creation starts the session's drain worker; a repeated call
// for a live connection just re-registers the sink.
func (s *Service) CreateOrGetSession(connectionID string, cfg session.Config, sink notify.Sink) *session.Session {
	sess, created := s.repo.CreateOrGet(connectionID, cfg)
	if sink == nil {
		sink = notify.NopSink{}
	}
	s.sinks.Store(sess.ID, sink)

	if created {
		var tracer *trace.Tracer
		if s.store != nil {
			if err := s.store.CreateConversation(sess.ID, cfg.PrimaryLanguage, strings.Join(cfg.CandidateLanguages, ",")); err != nil {
				slog.Warn("trace conversation create failed", "session_id", sess.ID, "error", err)
			} else {
				tracer = trace.NewTracer(s.store, sess.ID)
			}
		}

		w := newWorker(s, sess, tracer)
		s.workers.Store(sess.ID, w)
		go w.run()

		slog.Info("session created",
			"session_id", sess.ID,
			"connection_id", connectionID,
			"languages", cfg.CandidateLanguages,
			"primary", cfg.PrimaryLanguage,
		)
	}
	return sess
}

// SubmitAudioChunk appends one chunk of encoded audio to the session's
// channel. It never blocks on the consumer. Returns ErrSessionNotFound for
// unknown sessions and ErrChannelClosed once the session has ended.
//
// Audio acceptance is phase-gated: once the utterance is being processed
// or the response is streaming, chunks are dropped rather than bleeding
// into the committed utterance. Acceptance resumes when the cycle resets.
func (s *Service) SubmitAudioChunk(sessionID string, chunk []byte) error {
	sess, err := s.repo.ByID(sessionID)
	if err != nil {
		return fmt.Errorf("submit audio: %w", err)
	}
	switch sess.Phase().Current() {
	case session.PhaseProcessingUtterance, session.PhaseSendingResponse:
		metrics.ChunksDropped.Inc()
		return nil
	}
	sess.Phase().StartReceiving()
	if err := sess.Channel().Write(chunk); err != nil {
		return fmt.Errorf("submit audio: %w", err)
	}
	return nil
}

// SignalUtteranceComplete forces the current utterance to finalize without
// waiting for a silence gap, and returns the committed text. An utterance
// with no recognized speech commits nothing and returns "" with a nil
// error.
func (s *Service) SignalUtteranceComplete(ctx context.Context, sessionID string) (string, error) {
	if _, err := s.repo.ByID(sessionID); err != nil {
		return "", fmt.Errorf("signal complete: %w", err)
	}
	w, ok := s.loadWorker(sessionID)
	if !ok {
		return "", fmt.Errorf("signal complete: %w", session.ErrSessionNotFound)
	}
	return w.finalizeNow(ctx), nil
}

// EndSession moves the session to a terminal status, stops its worker, and
// removes it from the repository. Idempotent: ending a session that is
// already gone is a success, not an error.
func (s *Service) EndSession(sessionID string, status session.Status) error {
	sess, err := s.repo.ByID(sessionID)
	if err != nil {
		return nil
	}
	if !sess.End(status) {
		return nil
	}

	// Closing the channel lets the worker drain remaining chunks and exit.
	if w, ok := s.loadWorker(sessionID); ok {
		w.stop()
		s.workers.Delete(sessionID)
	}
	s.sinks.Delete(sessionID)
	s.repo.Remove(sess)

	if s.store != nil {
		if err := s.store.EndConversation(sessionID); err != nil {
			slog.Warn("trace conversation end failed", "session_id", sessionID, "error", err)
		}
	}
	slog.Info("session ended", "session_id", sessionID, "status", status, "stats", sess.Stats())
	return nil
}

// EndAll terminates every live session. Used during shutdown.
func (s *Service) EndAll(status session.Status) {
	for _, sess := range s.repo.All() {
		if err := s.EndSession(sess.ID, status); err != nil {
			slog.Warn("end session during shutdown", "session_id", sess.ID, "error", err)
		}
	}
}

// Engines reports the configured backends per stage, for the discovery API.
func (s *Service) Engines() map[string][]string {
	return map[string][]string{
		"stt": s.stt.Engines(),
		"tts": s.tts.Engines(),
		"gen": s.responder.Engines(),
	}
}

func (s *Service) sink(sessionID string) notify.Sink {
	if v, ok := s.sinks.Load(sessionID); ok {
		return v.(notify.Sink)
	}
	return notify.NopSink{}
}

func (s *Service) loadWorker(sessionID string) (*worker, bool) {
	v, ok := s.workers.Load(sessionID)
	if !ok {
		return nil, false
	}
	return v.(*worker), true
}

// commit runs the commit protocol for a completed utterance: resolve the
// speaker, commit the turn under the session lock, persist, then publish the
// drained events in order on a separate goroutine. Returns the committed
// text, or "" when the utterance was empty.
func (s *Service) commit(ctx context.Context, sess *session.Session, col *utterance.Collector, tracer *trace.Tracer) string {
	col.Complete()
	utt, err := col.Result()
	if err != nil {
		// An empty utterance is a successful no-op, not a failure.
		metrics.EmptyCommits.Inc()
		col.Reset()
		return ""
	}
	defer col.Reset()

	sess.Phase().BeginProcessing()
	cycleStart := time.Now()

	sp, known := s.resolveSpeaker(sess, utt)
	sess.SetResolvedLanguages(utt.SourceLanguage, utt.TargetLanguage)
	sess.AppendTranscript(utt.Text)
	turn := sess.CommitCurrentTranscript()
	s.repo.Save(sess)
	events := sess.DrainEvents()

	exchangeID := tracer.StartExchange()

	sink := s.sink(sess.ID)
	sink.NotifyTranscript(notify.Transcript{
		TurnID:       turn.ID,
		SpeakerID:    turn.SpeakerID,
		SpeakerLabel: turn.SpeakerLabel,
		Text:         turn.OriginalText,
		Language:     turn.SourceLanguage,
		Confidence:   utt.SpeakerConfidence,
		IsFinal:      true,
	})
	if known {
		slog.Info("utterance committed",
			"session_id", sess.ID,
			"turn_id", turn.ID,
			"speaker", sp.Label,
			"language", turn.SourceLanguage,
			"chars", len(turn.OriginalText),
		)
	}

	go s.publish(sess, events, cycleStart, exchangeID, tracer)
	return turn.OriginalText
}

// resolveSpeaker fuses the utterance's acoustic and linguistic evidence into
// a speaker decision and applies it to the session roster.
func (s *Service) resolveSpeaker(sess *session.Session, utt utterance.Context) (session.Speaker, bool) {
	decision := s.engine.Decide(utt, sess.Speakers())
	sp, ok := s.profiles.Apply(sess, decision, utt)
	if !ok {
		sess.SetActiveSpeaker(utt.SpeakerID, utt.SpeakerConfidence)
		return session.Speaker{}, false
	}

	sess.SetActiveSpeaker(sp.ID, decision.Confidence)
	s.sink(sess.ID).NotifySpeakerUpdate(notify.SpeakerUpdate{
		SpeakerID:  sp.ID,
		Label:      sp.Label,
		Action:     string(decision.Action),
		Confidence: decision.Confidence,
		Locked:     sp.Locked,
	})
	return sp, true
}

// publish delivers drained domain events in enqueue order. Handlers run on
// this goroutine sequentially, so a turn's response handling cannot overtake
// its commit notification.
func (s *Service) publish(sess *session.Session, events []session.Event, cycleStart time.Time, exchangeID string, tracer *trace.Tracer) {
	for _, ev := range events {
		metrics.EventsPublished.WithLabelValues(string(ev.Type)).Inc()
		switch ev.Type {
		case session.EventUtteranceCommitted:
			s.handleUtteranceCommitted(sess, ev, cycleStart, exchangeID, tracer)
		case session.EventResponseProduced:
			s.handleResponseProduced(sess, ev, cycleStart, exchangeID, tracer)
		default:
			slog.Warn("unhandled event type", "type", ev.Type, "session_id", ev.SessionID)
		}
	}
}
