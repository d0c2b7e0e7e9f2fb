package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/crosstalk-ai/gateway/internal/audio"
	"github.com/crosstalk-ai/gateway/internal/metrics"
	"github.com/crosstalk-ai/gateway/internal/notify"
	"github.com/crosstalk-ai/gateway/internal/session"
	"github.com/crosstalk-ai/gateway/internal/trace"
	"github.com/crosstalk-ai/gateway/internal/utterance"
)

// pipelineRate is the sample rate the recognition models consume.
const pipelineRate = 16000

// worker is the single consumer of one session's audio channel. It decodes
// and resamples chunks, runs voice activity detection, and turns completed
// speech segments into committed utterances.
//
// w.mu serializes segment processing with explicit finalization, so a
// client's utterance-complete signal cannot interleave with a VAD-driven
// commit of the same audio.
type worker struct {
	svc    *Service
	sess   *session.Session
	tracer *trace.Tracer

	mu  sync.Mutex
	vad *audio.VAD
	col *utterance.Collector

	ctx           context.Context
	cancel        context.CancelFunc
	done          chan struct{}
	noiseWarnOnce sync.Once
}

func newWorker(svc *Service, sess *session.Session, tracer *trace.Tracer) *worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &worker{
		svc:    svc,
		sess:   sess,
		tracer: tracer,
		vad:    audio.NewVAD(svc.vadCfg),
		col:    utterance.NewCollector(sess.Config.CandidateLanguages, sess.Config.PrimaryLanguage),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// run drains the session's audio channel until it is closed and empty, then
// finalizes whatever speech remains buffered.
func (w *worker) run() {
	ctx := w.ctx
	defer close(w.done)
	defer w.cancel()

	if !w.sess.Channel().BeginDrain() {
		slog.Error("audio channel already claimed", "session_id", w.sess.ID)
		return
	}

	for {
		chunk, err := w.sess.Channel().Read(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				w.finalizeNow(ctx)
			}
			w.tracer.Close()
			return
		}
		w.ingest(ctx, chunk)
	}
}

// ingest decodes one chunk and advances the VAD. A completed speech segment
// triggers the full recognition and commit path.
func (w *worker) ingest(ctx context.Context, chunk []byte) {
	metrics.AudioChunks.Inc()
	w.sess.AppendAudio(chunk)

	samples, srcRate, err := audio.Decode(chunk, audio.Codec(w.sess.Config.Codec), w.sess.Config.SampleRate)
	if err != nil {
		metrics.Errors.WithLabelValues("decode", "codec").Inc()
		w.svc.sink(w.sess.ID).NotifyError("decode", err.Error())
		return
	}
	resampled := audio.Resample(samples, srcRate, pipelineRate)

	if w.svc.noise != nil {
		cleaned, nErr := w.svc.noise.Suppress(ctx, resampled, pipelineRate)
		if nErr != nil {
			w.noiseWarnOnce.Do(func() {
				slog.Warn("noise suppression failed, using raw audio", "session_id", w.sess.ID, "error", nErr)
			})
		} else {
			resampled = cleaned
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	seg := w.vad.Feed(resampled)
	if !seg.Complete || len(seg.Samples) == 0 {
		return
	}
	metrics.SpeechSegments.Inc()
	w.processSegment(ctx, seg.Samples)
	w.svc.commit(ctx, w.sess, w.col, w.tracer)
}

// finalizeNow flushes buffered speech and commits whatever has been
// collected, without waiting for a silence gap. Called from the drain loop
// on channel close and from the transport when the client marks the
// utterance done. Returns the committed text, "" when nothing committed.
func (w *worker) finalizeNow(ctx context.Context) string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if remaining := w.vad.Flush(); len(remaining) > 0 {
		metrics.SpeechSegments.Inc()
		w.processSegment(ctx, remaining)
	}
	return w.svc.commit(ctx, w.sess, w.col, w.tracer)
}

// processSegment runs recognition and speaker identification for one speech
// segment and feeds the results into the collector. Caller holds w.mu.
func (w *worker) processSegment(ctx context.Context, samples []float32) {
	sink := w.svc.sink(w.sess.ID)

	results, err := w.svc.stt.TranscribeStream(ctx, samples, w.sess.Config.STTEngine)
	if err != nil {
		metrics.Errors.WithLabelValues("stt", "transcribe").Inc()
		slog.Error("transcription failed", "session_id", w.sess.ID, "error", err)
		sink.NotifyError("transcribe", err.Error())
		return
	}

	lastFinal := ""
	for res := range results {
		if res.IsFinal {
			w.col.AddFinal(res.Text, res.Language)
			lastFinal = res.Text
			continue
		}
		w.col.AddPartial(res.Text, res.Language)
		sink.NotifyTranscript(notify.Transcript{
			SpeakerID: session.UnknownSpeakerID,
			Text:      res.Text,
			Language:  res.Language,
			IsFinal:   false,
		})
	}

	if w.svc.acoustic != nil {
		w.identify(ctx, samples)
	}
	if w.svc.insights != nil && lastFinal != "" {
		w.col.SetInsights(w.svc.insights.Analyze(ctx, lastFinal, w.sess.Config.GenEngine))
	}
}

// identify extracts a voice fingerprint and a provisional speaker match.
// Failures degrade to no acoustic evidence; the decision engine still runs
// on linguistic evidence alone.
func (w *worker) identify(ctx context.Context, samples []float32) {
	fp, err := w.svc.acoustic.ExtractFingerprint(ctx, samples)
	if err != nil {
		slog.Warn("fingerprint extraction failed", "session_id", w.sess.ID, "error", err)
		return
	}
	id, conf, err := w.svc.acoustic.Identify(ctx, fp, w.sess.ID)
	if err != nil {
		slog.Warn("speaker identify failed", "session_id", w.sess.ID, "error", err)
		w.col.SetAcoustic("", 0, fp)
		return
	}
	w.col.SetAcoustic(id, conf, fp)
}

// stop waits for the drain loop to finish after the channel has been
// closed, cancelling outright if draining takes too long.
func (w *worker) stop() {
	select {
	case <-w.done:
	case <-time.After(10 * time.Second):
		w.cancel()
		<-w.done
	}
}
