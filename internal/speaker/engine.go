// Package speaker resolves which conversation participant produced an
// utterance by fusing the acoustic signal (fingerprint similarity plus a
// provisional id supplied by the acoustic identifier) with the linguistic
// signal (style/role/complexity/phrase insights).
package speaker

import (
	"fmt"
	"strings"

	"github.com/crosstalk-ai/gateway/internal/metrics"
	"github.com/crosstalk-ai/gateway/internal/session"
	"github.com/crosstalk-ai/gateway/internal/utterance"
)

// Threshold constants for the fused decision. LockThreshold locks a
// speaker identity (confidence at or above it); MatchThreshold gates both
// the linguistic confirm branch and acoustic updates.
const (
	LockThreshold  = 80.0
	MatchThreshold = 50.0

	// lockedConfidence is reported when a locked identity overrides the
	// live acoustic signal; locking exists to prevent identity flicker
	// once a speaker is acoustically certain.
	lockedConfidence = 95.0
)

// Action is the outcome category of one decision.
type Action string

const (
	ActionConfirmExisting Action = "confirm_existing"
	ActionUpdateExisting  Action = "update_existing"
	ActionCreateNew       Action = "create_new"
	// ActionAwaitMoreData is a declared, currently never-emitted outcome.
	// The profile manager accepts it as a no-op.
	ActionAwaitMoreData Action = "await_more_data"
)

// Decision carries the engine outcome. Reasoning is always populated; it
// is the observability trail for why an utterance landed on a speaker.
type Decision struct {
	Action     Action
	Speaker    session.Speaker
	Confidence float64
	Reasoning  string
}

// Engine applies the fused decision order. It is stateless; per-session
// speaker state lives on the session aggregate.
type Engine struct {
	matchThreshold float64
}

// NewEngine creates an engine with the default threshold.
func NewEngine() *Engine {
	return &Engine{matchThreshold: MatchThreshold}
}

// Decide resolves the speaker for one utterance against the session's
// known speakers. First matching rule wins:
//
//  1. provisional speaker already locked → confirm at lockedConfidence
//  2. linguistic similarity above the match threshold → confirm at score
//  3. acoustic confidence above the match threshold with a provisional
//     id → update that speaker
//  4. otherwise → create a new speaker seeded from this utterance
//
// With no known speakers every path falls through to create.
func (e *Engine) Decide(utt utterance.Context, speakers []session.Speaker) Decision {
	d := e.decide(utt, speakers)
	metrics.SpeakerDecisions.WithLabelValues(string(d.Action)).Inc()
	return d
}

func (e *Engine) decide(utt utterance.Context, speakers []session.Speaker) Decision {
	if sp, ok := findSpeaker(speakers, utt.SpeakerID); ok && sp.Locked {
		return Decision{
			Action:     ActionConfirmExisting,
			Speaker:    sp,
			Confidence: lockedConfidence,
			Reasoning: fmt.Sprintf("speaker %s is locked; identity retained despite live acoustic confidence %.0f",
				sp.Label, utt.SpeakerConfidence),
		}
	}

	if sp, score, ok := bestLinguisticMatch(utt.Insights, speakers); ok && score > e.matchThreshold {
		return Decision{
			Action:     ActionConfirmExisting,
			Speaker:    sp,
			Confidence: score,
			Reasoning: fmt.Sprintf("linguistic similarity %.0f to %s exceeds match threshold %.0f",
				score, sp.Label, e.matchThreshold),
		}
	}

	if sp, ok := findSpeaker(speakers, utt.SpeakerID); ok && utt.SpeakerConfidence > e.matchThreshold {
		return Decision{
			Action:     ActionUpdateExisting,
			Speaker:    sp,
			Confidence: utt.SpeakerConfidence,
			Reasoning: fmt.Sprintf("acoustic confidence %.0f above match threshold %.0f; updating %s",
				utt.SpeakerConfidence, e.matchThreshold, sp.Label),
		}
	}

	reason := "no acoustic or linguistic match; creating new speaker"
	if len(speakers) == 0 {
		reason = "no known speakers in session; creating first speaker"
	}
	return Decision{
		Action: ActionCreateNew,
		Speaker: session.Speaker{
			Fingerprint: utt.Fingerprint,
			Insights:    utt.Insights,
		},
		Confidence: utt.SpeakerConfidence,
		Reasoning:  reason,
	}
}

// LinguisticSimilarity scores how alike two insight sets read, in [0,100]:
// +40 for a matching communication style, +30 for a matching assigned
// role, +20 for matching sentence complexity, +10 if any typical phrase is
// shared.
func LinguisticSimilarity(a, b session.Insights) float64 {
	score := 0.0
	if a.CommunicationStyle != "" && strings.EqualFold(a.CommunicationStyle, b.CommunicationStyle) {
		score += 40
	}
	if a.AssignedRole != "" && strings.EqualFold(a.AssignedRole, b.AssignedRole) {
		score += 30
	}
	if a.SentenceComplexity != "" && strings.EqualFold(a.SentenceComplexity, b.SentenceComplexity) {
		score += 20
	}
	if sharesPhrase(a.TypicalPhrases, b.TypicalPhrases) {
		score += 10
	}
	return min(score, 100)
}

func bestLinguisticMatch(ins session.Insights, speakers []session.Speaker) (session.Speaker, float64, bool) {
	var best session.Speaker
	bestScore := 0.0
	found := false
	for _, sp := range speakers {
		score := LinguisticSimilarity(ins, sp.Insights)
		if score > bestScore {
			best = sp
			bestScore = score
			found = true
		}
	}
	return best, bestScore, found
}

func findSpeaker(speakers []session.Speaker, id string) (session.Speaker, bool) {
	if id == "" {
		return session.Speaker{}, false
	}
	for _, sp := range speakers {
		if sp.ID == id {
			return sp, true
		}
	}
	return session.Speaker{}, false
}

func sharesPhrase(a, b []string) bool {
	for _, pa := range a {
		for _, pb := range b {
			if strings.EqualFold(pa, pb) {
				return true
			}
		}
	}
	return false
}
