package speaker

import (
	"log/slog"

	"github.com/crosstalk-ai/gateway/internal/session"
	"github.com/crosstalk-ai/gateway/internal/utterance"
)

// blendHistoryWeight keeps 90% of the accumulated fingerprint and folds in
// 10% of the new sample, damping per-utterance acoustic noise.
const blendHistoryWeight = 0.9

// ProfileManager applies a Decision to session speaker state: creating,
// updating, confirming, and locking identities. All mutation goes through
// the session aggregate's guarded methods.
type ProfileManager struct{}

// NewProfileManager creates a profile manager.
func NewProfileManager() *ProfileManager {
	return &ProfileManager{}
}

// Apply carries out d against sess and returns the speaker the utterance
// resolves to. AwaitMoreData leaves the session untouched and returns no
// speaker.
func (m *ProfileManager) Apply(sess *session.Session, d Decision, utt utterance.Context) (session.Speaker, bool) {
	switch d.Action {
	case ActionConfirmExisting:
		sess.TouchSpeaker(d.Speaker.ID, d.Confidence, LockThreshold)
		sess.MergeSpeakerInsights(d.Speaker.ID, utt.Insights)
		return m.resolved(sess, d)

	case ActionUpdateExisting:
		sess.BlendSpeakerFingerprint(d.Speaker.ID, utt.Fingerprint, blendHistoryWeight)
		sess.TouchSpeaker(d.Speaker.ID, d.Confidence, LockThreshold)
		sess.MergeSpeakerInsights(d.Speaker.ID, utt.Insights)
		return m.resolved(sess, d)

	case ActionCreateNew:
		created := sess.AddSpeaker(d.Speaker)
		sess.TouchSpeaker(created.ID, d.Confidence, LockThreshold)
		sp, _ := sess.SpeakerByID(created.ID)
		slog.Info("speaker created",
			"session_id", sess.ID, "speaker_id", sp.ID, "label", sp.Label, "reason", d.Reasoning)
		return sp, true

	case ActionAwaitMoreData:
		return session.Speaker{}, false
	}
	return session.Speaker{}, false
}

func (m *ProfileManager) resolved(sess *session.Session, d Decision) (session.Speaker, bool) {
	sp, ok := sess.SpeakerByID(d.Speaker.ID)
	if !ok {
		// decision raced a snapshot that no longer resolves; treat as no-op
		slog.Warn("decision references unknown speaker", "session_id", sess.ID, "speaker_id", d.Speaker.ID)
		return session.Speaker{}, false
	}
	return sp, true
}
