// Package notify defines the outbound notification surface. The orchestrator
// reports results and failures through a Sink without knowing whether the far
// end is a WebSocket, a test, or nothing at all.
package notify

// Transcript is a committed or in-flight utterance as shown to the client.
type Transcript struct {
	TurnID         string  `json:"turn_id,omitempty"`
	SpeakerID      string  `json:"speaker_id"`
	SpeakerLabel   string  `json:"speaker_label"`
	Text           string  `json:"text"`
	Language       string  `json:"language"`
	TargetLanguage string  `json:"target_language,omitempty"`
	Confidence     float64 `json:"confidence,omitempty"`
	IsFinal        bool    `json:"is_final"`
}

// SpeakerUpdate reports a change to the session's speaker roster.
type SpeakerUpdate struct {
	SpeakerID  string  `json:"speaker_id"`
	Label      string  `json:"label"`
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	Locked     bool    `json:"locked"`
}

// Sink receives session output. Implementations must tolerate concurrent
// calls; the orchestrator's handlers run on their own goroutines.
type Sink interface {
	// NotifyTranscript delivers recognized or translated text for a turn.
	NotifyTranscript(t Transcript)

	// NotifyResponseType announces what kind of response follows, before
	// any audio arrives, so clients can prepare playback.
	NotifyResponseType(turnID, kind string)

	// NotifyProgressiveText streams response text sentence by sentence as
	// synthesis proceeds.
	NotifyProgressiveText(turnID, text string)

	// NotifyAudioChunk delivers one frame of synthesized speech.
	NotifyAudioChunk(turnID string, chunk []byte)

	// NotifySpeakerUpdate reports speaker creation, confirmation, or lock
	// changes.
	NotifySpeakerUpdate(u SpeakerUpdate)

	// NotifyTransactionComplete marks the end of one turn's audio stream.
	NotifyTransactionComplete(turnID string)

	// NotifyCycleComplete marks the full utterance cycle as finished,
	// with the wall time it took.
	NotifyCycleComplete(turnID string, elapsedMs int64)

	// NotifyError surfaces a stage failure to the client. Failures are
	// never swallowed silently.
	NotifyError(stage, message string)
}

// NopSink discards everything. Used for sessions whose transport is gone and
// as a test default.
type NopSink struct{}

func (NopSink) NotifyTranscript(Transcript)           {}
func (NopSink) NotifyResponseType(string, string)     {}
func (NopSink) NotifyProgressiveText(string, string)  {}
func (NopSink) NotifyAudioChunk(string, []byte)       {}
func (NopSink) NotifySpeakerUpdate(SpeakerUpdate)     {}
func (NopSink) NotifyTransactionComplete(string)      {}
func (NopSink) NotifyCycleComplete(string, int64)     {}
func (NopSink) NotifyError(string, string)            {}
