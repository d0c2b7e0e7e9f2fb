// Package utterance assembles streamed transcription results into one
// resolved utterance per voice-activity-delimited speech span.
package utterance

import (
	"errors"
	"strings"

	"github.com/crosstalk-ai/gateway/internal/session"
)

// State-misuse errors. Requesting a result before completion, or with no
// accumulated text, is a caller bug and fails loudly rather than being
// swallowed.
var (
	ErrNotCompleted = errors.New("utterance result requested before completion")
	ErrEmpty        = errors.New("utterance has no accumulated text")
)

// Context is the immutable output of a completed utterance: resolved text,
// language pair, and the acoustic/linguistic speaker signals gathered
// while it was collected. Produced once per utterance.
type Context struct {
	Text              string
	SourceLanguage    string
	TargetLanguage    string
	SpeakerID         string
	SpeakerConfidence float64
	Fingerprint       session.Fingerprint
	Insights          session.Insights
}

// Collector buffers zero or more partial results and then a sequence of
// final results until an external complete signal, then emits one Context.
// It is not safe for concurrent use; the drain worker serializes access.
type Collector struct {
	candidates []string
	primary    string

	interim   string
	finals    []string
	votes     map[string]int
	voteOrder []string

	speakerID         string
	speakerConfidence float64
	fingerprint       session.Fingerprint
	insights          session.Insights

	completed bool
}

// NewCollector creates a collector for a session's candidate language pair
// and primary fallback language.
func NewCollector(candidates []string, primary string) *Collector {
	return &Collector{
		candidates: candidates,
		primary:    primary,
		votes:      make(map[string]int),
	}
}

// AddPartial replaces the rolling interim-display buffer. Partial text is
// never appended to committed text; it only survives by being promoted at
// completion.
func (c *Collector) AddPartial(text, language string) {
	c.interim = text
	_ = language // partials display only; they do not vote
}

// AddFinal appends a finalized fragment and votes for its language.
func (c *Collector) AddFinal(text, language string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	c.finals = append(c.finals, text)
	c.interim = ""
	if language == "" {
		return
	}
	if _, seen := c.votes[language]; !seen {
		c.voteOrder = append(c.voteOrder, language)
	}
	c.votes[language]++
}

// SetAcoustic attaches the externally supplied acoustic signal: the
// provisional speaker id, its confidence in [0,100], and the utterance
// fingerprint.
func (c *Collector) SetAcoustic(speakerID string, confidence float64, fp session.Fingerprint) {
	c.speakerID = speakerID
	c.speakerConfidence = confidence
	c.fingerprint = fp
}

// SetInsights attaches linguistic insights extracted for this utterance.
func (c *Collector) SetInsights(ins session.Insights) {
	c.insights = ins
}

// HasText reports whether any text (final or pending interim) has
// accumulated.
func (c *Collector) HasText() bool {
	return len(c.finals) > 0 || strings.TrimSpace(c.interim) != ""
}

// Complete marks the utterance finished. Pending interim text is promoted
// to final rather than silently dropped. Idempotent.
func (c *Collector) Complete() {
	if interim := strings.TrimSpace(c.interim); interim != "" {
		c.finals = append(c.finals, interim)
		c.interim = ""
	}
	c.completed = true
}

// Result emits the resolved utterance. Calling it before Complete, or with
// nothing accumulated, is a contract violation.
func (c *Collector) Result() (Context, error) {
	if !c.completed {
		return Context{}, ErrNotCompleted
	}
	if len(c.finals) == 0 {
		return Context{}, ErrEmpty
	}

	source, target := ResolveLanguages(c.votes, c.voteOrder, c.candidates, c.primary)
	return Context{
		Text:              strings.Join(c.finals, " "),
		SourceLanguage:    source,
		TargetLanguage:    target,
		SpeakerID:         c.speakerID,
		SpeakerConfidence: c.speakerConfidence,
		Fingerprint:       c.fingerprint,
		Insights:          c.insights,
	}, nil
}

// Reset fully clears state for the next utterance. Idempotent.
func (c *Collector) Reset() {
	c.interim = ""
	c.finals = nil
	c.votes = make(map[string]int)
	c.voteOrder = nil
	c.speakerID = ""
	c.speakerConfidence = 0
	c.fingerprint = nil
	c.insights = session.Insights{}
	c.completed = false
}
