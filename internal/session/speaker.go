package session

import (
	"math"
	"time"
)

// Fingerprint is a numeric acoustic feature summary identifying a speaker
// across utterances.
type Fingerprint []float64

// Similarity scores two fingerprints on a 0..100 scale using cosine
// similarity. This is the single extension point for swapping in a
// different comparator.
func Similarity(a, b Fingerprint) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if cos < 0 {
		cos = 0
	}
	return cos * 100
}

// Blend merges a new fingerprint sample into an accumulated one.
// historyWeight is the fraction kept from the accumulated fingerprint;
// the sample contributes the remainder.
func Blend(history, sample Fingerprint, historyWeight float64) Fingerprint {
	if len(history) == 0 {
		out := make(Fingerprint, len(sample))
		copy(out, sample)
		return out
	}
	if len(sample) != len(history) {
		return history
	}
	out := make(Fingerprint, len(history))
	for i := range history {
		out[i] = history[i]*historyWeight + sample[i]*(1-historyWeight)
	}
	return out
}

// Insights holds the linguistic signals derived from response-generation
// analysis. They act as a secondary speaker-matching signal alongside the
// acoustic fingerprint.
type Insights struct {
	CommunicationStyle string   `json:"communication_style"`
	AssignedRole       string   `json:"assigned_role"`
	SentenceComplexity string   `json:"sentence_complexity"`
	TypicalPhrases     []string `json:"typical_phrases"`
}

// Empty reports whether no linguistic signal has been extracted yet.
func (i Insights) Empty() bool {
	return i.CommunicationStyle == "" && i.AssignedRole == "" &&
		i.SentenceComplexity == "" && len(i.TypicalPhrases) == 0
}

// Speaker is a resolved conversation participant. A speaker is created only
// by the decision engine's create branch and is never deleted, only updated.
type Speaker struct {
	ID          string      `json:"id"`
	Label       string      `json:"label"`
	Fingerprint Fingerprint `json:"-"`
	Insights    Insights    `json:"insights"`
	Locked      bool        `json:"locked"`
	Confidence  float64     `json:"confidence"`
	Utterances  int         `json:"utterances"`
	LastHeard   time.Time   `json:"last_heard"`
}

func (s Speaker) clone() Speaker {
	out := s
	out.Fingerprint = make(Fingerprint, len(s.Fingerprint))
	copy(out.Fingerprint, s.Fingerprint)
	out.Insights.TypicalPhrases = append([]string(nil), s.Insights.TypicalPhrases...)
	return out
}
