// Package session holds the conversation session aggregate and the
// concurrency primitives around it: the per-session audio channel, the
// phase state machine, speakers, turns, domain events, and the repository.
package session

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crosstalk-ai/gateway/internal/metrics"
)

// Status is the session lifecycle state.
type Status string

const (
	StatusActive     Status = "active"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
	StatusTerminated Status = "terminated"
	StatusError      Status = "error"
)

// terminal statuses close the audio channel for writing.
func (s Status) terminal() bool {
	return s == StatusCompleted || s == StatusTerminated || s == StatusError
}

// UnknownSpeakerID is the fallback identity when a transcript commits
// before any speaker has been resolved.
const UnknownSpeakerID = "unknown"

// Config is the per-connection setup received from the transport.
type Config struct {
	// CandidateLanguages is the expected language pair of the conversation.
	CandidateLanguages []string
	// PrimaryLanguage is the fallback target when neither candidate matches.
	PrimaryLanguage string
	Codec           string
	SampleRate      int
	STTEngine       string
	TTSEngine       string
	GenEngine       string
	GenModel        string
	Voice           string
}

// Stats are the per-session counters, updated atomically with the
// mutations they count.
type Stats struct {
	Turns           int   `json:"turns"`
	Speakers        int   `json:"speakers"`
	AudioBytes      int64 `json:"audio_bytes"`
	TranscriptChars int   `json:"transcript_chars"`
}

// Session is the aggregate root owning all mutable per-connection state.
// Every buffer, history, and speaker mutation happens under one mutex,
// which is never held across a blocking provider call or channel
// operation.
type Session struct {
	ID           string
	ConnectionID string
	Config       Config
	CreatedAt    time.Time

	channel *AudioChannel
	phase   *PhaseState

	mu               sync.Mutex
	status           Status
	transcript       strings.Builder
	audioBuf         []byte
	history          []*Turn
	speakers         []*Speaker
	activeSpeakerID  string
	activeConfidence float64
	sourceLanguage   string
	targetLanguage   string
	pending          []Event
	stats            Stats
}

// New creates an Active session bound to a connection.
func New(connectionID string, cfg Config) *Session {
	if cfg.PrimaryLanguage == "" {
		cfg.PrimaryLanguage = "en"
	}
	return &Session{
		ID:           uuid.NewString(),
		ConnectionID: connectionID,
		Config:       cfg,
		CreatedAt:    time.Now().UTC(),
		channel:      NewAudioChannel(),
		phase:        NewPhaseState(),
		status:       StatusActive,
	}
}

// Channel returns the session's audio channel.
func (s *Session) Channel() *AudioChannel { return s.channel }

// Phase returns the session's phase state machine.
func (s *Session) Phase() *PhaseState { return s.phase }

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// AppendTranscript appends resolved utterance text to the pending final
// transcript. Empty input is a no-op. Never fails.
func (s *Session) AppendTranscript(text string) {
	if text == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transcript.Len() > 0 {
		s.transcript.WriteByte(' ')
	}
	s.transcript.WriteString(text)
	s.stats.TranscriptChars += len(text)
}

// AppendAudio buffers raw audio bytes for the current utterance.
func (s *Session) AppendAudio(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audioBuf = append(s.audioBuf, chunk...)
	s.stats.AudioBytes += int64(len(chunk))
}

// PendingTranscript returns the accumulated, not yet committed text.
func (s *Session) PendingTranscript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.String()
}

// SetActiveSpeaker records which resolved speaker the next commit is
// attributed to.
func (s *Session) SetActiveSpeaker(id string, confidence float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeSpeakerID = id
	s.activeConfidence = confidence
}

// SetResolvedLanguages records the language pair resolved for the pending
// utterance, applied to the turn built by the next commit.
func (s *Session) SetResolvedLanguages(source, target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sourceLanguage = source
	s.targetLanguage = target
}

// CommitCurrentTranscript builds a turn from the pending transcript and the
// active speaker, appends it to history, clears the transcript and audio
// buffers, and enqueues an UtteranceCommitted event. All of that happens
// under the session lock so no reader can observe the turn appended with
// the buffers still populated.
//
// Committing with an empty transcript still completes structurally; callers
// guard against committing nothing.
func (s *Session) CommitCurrentTranscript() *Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	speakerID := s.activeSpeakerID
	speakerLabel := UnknownSpeakerID
	if speakerID == "" {
		speakerID = UnknownSpeakerID
	}
	for _, sp := range s.speakers {
		if sp.ID == speakerID {
			speakerLabel = sp.Label
			break
		}
	}

	turn := &Turn{
		ID:             uuid.NewString(),
		SpeakerID:      speakerID,
		SpeakerLabel:   speakerLabel,
		OriginalText:   s.transcript.String(),
		SourceLanguage: s.sourceLanguage,
		TargetLanguage: s.targetLanguage,
		CreatedAt:      time.Now().UTC(),
	}

	s.history = append(s.history, turn)
	s.stats.Turns++
	s.transcript.Reset()
	s.audioBuf = nil

	s.pending = append(s.pending, Event{
		Type:       EventUtteranceCommitted,
		SessionID:  s.ID,
		TurnID:     turn.ID,
		OccurredAt: time.Now().UTC(),
	})

	metrics.UtterancesCommitted.Inc()
	return turn
}

// EnqueueEvent queues a follow-up domain event (e.g. ResponseProduced from
// the response handler).
func (s *Session) EnqueueEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, ev)
}

// DrainEvents returns queued events in enqueue order and clears the queue.
func (s *Session) DrainEvents() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.pending
	s.pending = nil
	return events
}

// FindMatchingSpeaker returns a copy of the highest-scoring known speaker
// whose fingerprint similarity is at or above threshold.
func (s *Session) FindMatchingSpeaker(fp Fingerprint, threshold float64) (Speaker, float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *Speaker
	bestScore := 0.0
	for _, sp := range s.speakers {
		score := Similarity(sp.Fingerprint, fp)
		if score >= threshold && score > bestScore {
			best = sp
			bestScore = score
		}
	}
	if best == nil {
		return Speaker{}, 0, false
	}
	return best.clone(), bestScore, true
}

// AddSpeaker appends a new speaker. Speakers are append-only; they are
// never removed within a session.
func (s *Session) AddSpeaker(sp Speaker) Speaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sp.ID == "" {
		sp.ID = uuid.NewString()
	}
	if sp.Label == "" {
		sp.Label = speakerLabel(len(s.speakers))
	}
	stored := sp.clone()
	s.speakers = append(s.speakers, &stored)
	s.stats.Speakers = len(s.speakers)
	return stored.clone()
}

// Speakers returns copies of all known speakers.
func (s *Session) Speakers() []Speaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Speaker, len(s.speakers))
	for i, sp := range s.speakers {
		out[i] = sp.clone()
	}
	return out
}

// SpeakerByID returns a copy of the speaker with the given id.
func (s *Session) SpeakerByID(id string) (Speaker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp := s.speakerLocked(id)
	if sp == nil {
		return Speaker{}, false
	}
	return sp.clone(), true
}

// TouchSpeaker records one more utterance for a speaker and refreshes its
// confidence. If confidence meets or exceeds lockThreshold the speaker
// locks; Locked is monotonic and never reverts.
func (s *Session) TouchSpeaker(id string, confidence, lockThreshold float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp := s.speakerLocked(id)
	if sp == nil {
		return
	}
	sp.Utterances++
	sp.Confidence = confidence
	sp.LastHeard = time.Now().UTC()
	if confidence >= lockThreshold {
		sp.Locked = true
	}
}

// BlendSpeakerFingerprint folds a new sample into the speaker's
// accumulated fingerprint, weighted toward history to damp noise.
func (s *Session) BlendSpeakerFingerprint(id string, sample Fingerprint, historyWeight float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp := s.speakerLocked(id)
	if sp == nil {
		return
	}
	sp.Fingerprint = Blend(sp.Fingerprint, sample, historyWeight)
}

// MergeSpeakerInsights fills in linguistic insights on a speaker. Existing
// non-empty fields win; new typical phrases accumulate (bounded).
func (s *Session) MergeSpeakerInsights(id string, ins Insights) {
	const maxPhrases = 12

	s.mu.Lock()
	defer s.mu.Unlock()
	sp := s.speakerLocked(id)
	if sp == nil {
		return
	}
	if sp.Insights.CommunicationStyle == "" {
		sp.Insights.CommunicationStyle = ins.CommunicationStyle
	}
	if sp.Insights.AssignedRole == "" {
		sp.Insights.AssignedRole = ins.AssignedRole
	}
	if ins.SentenceComplexity != "" {
		sp.Insights.SentenceComplexity = ins.SentenceComplexity
	}
	for _, phrase := range ins.TypicalPhrases {
		if len(sp.Insights.TypicalPhrases) >= maxPhrases {
			break
		}
		if !containsFold(sp.Insights.TypicalPhrases, phrase) {
			sp.Insights.TypicalPhrases = append(sp.Insights.TypicalPhrases, phrase)
		}
	}
}

// SetTurnTranslation assigns the translated text and target language on a
// committed turn. This is the only post-creation turn mutation and it is
// performed once, by the response handler.
func (s *Session) SetTurnTranslation(turnID, text, language string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.history {
		if t.ID == turnID {
			t.TranslatedText = text
			t.TargetLanguage = language
			return true
		}
	}
	return false
}

// TurnByID returns a copy of a committed turn.
func (s *Session) TurnByID(id string) (Turn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.history {
		if t.ID == id {
			return *t, true
		}
	}
	return Turn{}, false
}

// Turns returns a copy of the conversation history in commit order.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.history))
	for i, t := range s.history {
		out[i] = *t
	}
	return out
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// End moves the session into a terminal status and closes the audio
// channel for writing, which the drain task observes as completion.
// Idempotent: once terminal, later calls are no-ops and return false.
func (s *Session) End(status Status) bool {
	if !status.terminal() {
		status = StatusCompleted
	}

	s.mu.Lock()
	if s.status.terminal() {
		s.mu.Unlock()
		return false
	}
	s.status = status
	s.mu.Unlock()

	s.channel.Close()
	metrics.SessionsActive.Dec()
	return true
}

func (s *Session) speakerLocked(id string) *Speaker {
	for _, sp := range s.speakers {
		if sp.ID == id {
			return sp
		}
	}
	return nil
}

func speakerLabel(existing int) string {
	return "Speaker " + string(rune('A'+existing%26))
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
