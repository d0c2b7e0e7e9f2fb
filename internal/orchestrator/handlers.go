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
	"github.com/crosstalk-ai/gateway/internal/prompts"
	"github.com/crosstalk-ai/gateway/internal/session"
	"github.com/crosstalk-ai/gateway/internal/trace"
)

const (
	generateTimeout  = 60 * time.Second
	synthesisTimeout = 30 * time.Second

	// audioFrameSize bounds outbound WebSocket messages; synthesized WAV is
	// split into frames of this many bytes.
	audioFrameSize = 32 * 1024
)

// cycleOutcome carries what the translate+synthesize stages actually did,
// so the cycle wrap-up can report a degraded exchange when a stage failed.
type cycleOutcome struct {
	sentences     int
	synthFailures int
	genFailed     bool
}

func (o *cycleOutcome) status() string {
	if o.genFailed || o.synthFailures > 0 {
		return "degraded"
	}
	return "ok"
}

// handleUtteranceCommitted translates the committed turn into the target
// language, synthesizing each sentence as soon as its boundary streams in,
// so speech playback starts while generation is still producing tokens.
// Provider failure degrades to speaking the original text through
// untranslated; the client is told either way, never silently.
func (s *Service) handleUtteranceCommitted(sess *session.Session, ev session.Event, cycleStart time.Time, exchangeID string, tracer *trace.Tracer) {
	turn, ok := sess.TurnByID(ev.TurnID)
	if !ok {
		slog.Warn("committed turn missing", "session_id", ev.SessionID, "turn_id", ev.TurnID)
		return
	}

	sink := s.sink(sess.ID)
	sess.Phase().BeginResponding()
	sink.NotifyResponseType(turn.ID, "translation")

	ctx, cancel := context.WithTimeout(context.Background(), generateTimeout)
	defer cancel()

	// TTS consumer goroutine, synthesizing each sentence as it arrives
	outcome := &cycleOutcome{}
	sentenceCh := make(chan string, 4)
	var ttsWg sync.WaitGroup
	ttsWg.Add(1)
	go func() {
		defer ttsWg.Done()
		for sentence := range sentenceCh {
			if s.speakSentence(sess, turn.ID, sentence, turn.TargetLanguage, sink, tracer, exchangeID) {
				outcome.sentences++
			} else {
				outcome.synthFailures++
			}
		}
	}()

	var buf pipeline.SentenceBuffer
	var streamed strings.Builder
	genStart := time.Now()
	result, err := s.responder.Generate(ctx,
		prompts.Interpreter(turn.SourceLanguage, turn.TargetLanguage),
		turn.OriginalText,
		sess.Config.GenModel,
		sess.Config.GenEngine,
		func(token string) {
			streamed.WriteString(token)
			if sentence := buf.Add(token); sentence != "" {
				sentenceCh <- sentence
			}
		},
	)

	translated, targetLang := "", turn.TargetLanguage
	if err == nil {
		translated = result.Content
		// a provider that returns without streaming delivers everything
		// as one trailing remainder
		if rest := strings.TrimPrefix(translated, streamed.String()); rest != "" && strings.HasPrefix(translated, streamed.String()) {
			if sentence := buf.Add(rest); sentence != "" {
				sentenceCh <- sentence
			}
		}
		if remainder := buf.Flush(); remainder != "" {
			sentenceCh <- remainder
		}
	}
	close(sentenceCh)
	ttsWg.Wait()

	if err != nil {
		outcome.genFailed = true
		metrics.Errors.WithLabelValues("generate", "provider").Inc()
		slog.Error("translation failed, passing original through", "session_id", sess.ID, "turn_id", turn.ID, "error", err)
		sink.NotifyError("generate", fmt.Sprintf("translation unavailable: %v", err))
		tracer.RecordSpan(exchangeID, "generate", genStart, sinceMs(genStart), turn.OriginalText, "", "error", err.Error())

		translated, targetLang = turn.OriginalText, turn.SourceLanguage
		for _, sentence := range pipeline.SplitSentences(translated) {
			if s.speakSentence(sess, turn.ID, sentence, targetLang, sink, tracer, exchangeID) {
				outcome.sentences++
			} else {
				outcome.synthFailures++
			}
		}
	} else {
		metrics.StageDuration.WithLabelValues("generate").Observe(time.Since(genStart).Seconds())
		tracer.RecordSpan(exchangeID, "generate", genStart, result.LatencyMs, turn.OriginalText, translated, "ok", "")
		slog.Info("translation produced",
			"session_id", sess.ID,
			"turn_id", turn.ID,
			"gen_ms", result.LatencyMs,
			"tokens_out", result.TokensOut,
		)
	}

	sess.SetTurnTranslation(turn.ID, translated, targetLang)
	s.cycles.Store(turn.ID, outcome)
	sess.EnqueueEvent(session.Event{
		Type:       session.EventResponseProduced,
		SessionID:  sess.ID,
		TurnID:     turn.ID,
		OccurredAt: time.Now().UTC(),
	})
	s.repo.Save(sess)

	// Publish the newly enqueued event on this goroutine so response
	// handling stays ordered behind the commit that caused it.
	s.publish(sess, sess.DrainEvents(), cycleStart, exchangeID, tracer)
}

// speakSentence synthesizes one sentence and streams its audio frames,
// followed by the sentence text. Synthesis failure downgrades that sentence
// to text-only delivery; the return value reports whether audio went out.
func (s *Service) speakSentence(sess *session.Session, turnID, sentence, language string, sink notify.Sink, tracer *trace.Tracer, exchangeID string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), synthesisTimeout)
	defer cancel()

	synthStart := time.Now()
	result, err := s.tts.Synthesize(ctx, sentence, language, sess.Config.Voice, sess.Config.TTSEngine)
	if err != nil {
		slog.Error("synthesis failed", "session_id", sess.ID, "turn_id", turnID, "error", err)
		sink.NotifyError("synthesize", fmt.Sprintf("speech unavailable: %v", err))
		tracer.RecordSpan(exchangeID, "synthesize", synthStart, sinceMs(synthStart), sentence, "", "error", err.Error())
		// Text delivery still happens even when audio does not.
		sink.NotifyProgressiveText(turnID, sentence)
		return false
	}

	for _, frame := range audio.SplitFrames(result.Audio, audioFrameSize) {
		sink.NotifyAudioChunk(turnID, frame)
	}
	sink.NotifyProgressiveText(turnID, sentence)
	tracer.RecordSpan(exchangeID, "synthesize", synthStart, result.LatencyMs,
		sentence, fmt.Sprintf("audio_bytes=%d", len(result.Audio)), "ok", "")
	return true
}

// handleResponseProduced closes out the cycle once translation and
// synthesis have run: final transcript, completion notifications, the
// exchange trace row, and the phase reset that reopens audio acceptance.
func (s *Service) handleResponseProduced(sess *session.Session, ev session.Event, cycleStart time.Time, exchangeID string, tracer *trace.Tracer) {
	turn, ok := sess.TurnByID(ev.TurnID)
	if !ok {
		slog.Warn("response turn missing", "session_id", ev.SessionID, "turn_id", ev.TurnID)
		return
	}

	sink := s.sink(sess.ID)
	outcome := &cycleOutcome{}
	if v, loaded := s.cycles.LoadAndDelete(ev.TurnID); loaded {
		outcome = v.(*cycleOutcome)
	} else {
		// no streaming state for this turn; synthesize the translation whole
		for _, sentence := range pipeline.SplitSentences(turn.TranslatedText) {
			if s.speakSentence(sess, turn.ID, sentence, turn.TargetLanguage, sink, tracer, exchangeID) {
				outcome.sentences++
			} else {
				outcome.synthFailures++
			}
		}
	}

	sink.NotifyTranscript(notify.Transcript{
		TurnID:         turn.ID,
		SpeakerID:      turn.SpeakerID,
		SpeakerLabel:   turn.SpeakerLabel,
		Text:           turn.TranslatedText,
		Language:       turn.TargetLanguage,
		TargetLanguage: turn.TargetLanguage,
		IsFinal:        true,
	})
	sink.NotifyTransactionComplete(turn.ID)

	elapsed := time.Since(cycleStart)
	metrics.CycleDuration.Observe(elapsed.Seconds())
	sink.NotifyCycleComplete(turn.ID, elapsed.Milliseconds())

	tracer.EndExchange(trace.Exchange{
		ID:             exchangeID,
		SpeakerLabel:   turn.SpeakerLabel,
		SourceLanguage: turn.SourceLanguage,
		TargetLanguage: turn.TargetLanguage,
		Utterance:      turn.OriginalText,
		Translation:    turn.TranslatedText,
		DurationMs:     float64(elapsed.Milliseconds()),
		Status:         outcome.status(),
	})

	sess.Phase().Reset()
	slog.Info("cycle complete",
		"session_id", sess.ID,
		"turn_id", turn.ID,
		"sentences", outcome.sentences,
		"status", outcome.status(),
		"total_ms", elapsed.Milliseconds(),
	)
}

func sinceMs(t time.Time) float64 {
	return float64(time.Since(t).Milliseconds())
}
