package session

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession() *Session {
	return New("conn-1", Config{
		CandidateLanguages: []string{"en", "da"},
		PrimaryLanguage:    "en",
	})
}

func TestAppendTranscriptJoinsWithSpaces(t *testing.T) {
	sess := newTestSession()
	sess.AppendTranscript("hello")
	sess.AppendTranscript("world")
	assert.Equal(t, "hello world", sess.PendingTranscript())
}

func TestAppendTranscriptEmptyIsNoOp(t *testing.T) {
	sess := newTestSession()
	sess.AppendTranscript("")
	assert.Equal(t, "", sess.PendingTranscript())
	sess.AppendTranscript("x")
	sess.AppendTranscript("")
	assert.Equal(t, "x", sess.PendingTranscript())
}

func TestAppendTranscriptConcurrent(t *testing.T) {
	sess := newTestSession()
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				sess.AppendTranscript("word")
			}
		}()
	}
	wg.Wait()

	fields := strings.Fields(sess.PendingTranscript())
	require.Len(t, fields, 100)
	for _, f := range fields {
		assert.Equal(t, "word", f)
	}
}

func TestCommitBuildsTurnAndClearsBuffers(t *testing.T) {
	sess := newTestSession()
	sp := sess.AddSpeaker(Speaker{})
	sess.SetActiveSpeaker(sp.ID, 72)
	sess.SetResolvedLanguages("en", "da")
	sess.AppendTranscript("good morning everyone")
	sess.AppendAudio([]byte{1, 2, 3})

	turn := sess.CommitCurrentTranscript()
	require.NotNil(t, turn)
	assert.Equal(t, "good morning everyone", turn.OriginalText)
	assert.Equal(t, sp.ID, turn.SpeakerID)
	assert.Equal(t, sp.Label, turn.SpeakerLabel)
	assert.Equal(t, "en", turn.SourceLanguage)
	assert.Equal(t, "da", turn.TargetLanguage)

	assert.Equal(t, "", sess.PendingTranscript())
	assert.Len(t, sess.Turns(), 1)

	events := sess.DrainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, EventUtteranceCommitted, events[0].Type)
	assert.Equal(t, turn.ID, events[0].TurnID)
	assert.Empty(t, sess.DrainEvents())
}

func TestCommitWithoutSpeakerFallsBackToUnknown(t *testing.T) {
	sess := newTestSession()
	sess.AppendTranscript("who said this")
	turn := sess.CommitCurrentTranscript()
	assert.Equal(t, UnknownSpeakerID, turn.SpeakerID)
	assert.Equal(t, UnknownSpeakerID, turn.SpeakerLabel)
}

func TestAddSpeakerAssignsSequentialLabels(t *testing.T) {
	sess := newTestSession()
	a := sess.AddSpeaker(Speaker{})
	b := sess.AddSpeaker(Speaker{})
	assert.Equal(t, "Speaker A", a.Label)
	assert.Equal(t, "Speaker B", b.Label)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestTouchSpeakerLockIsMonotonic(t *testing.T) {
	sess := newTestSession()
	sp := sess.AddSpeaker(Speaker{})

	sess.TouchSpeaker(sp.ID, 85, 80)
	got, ok := sess.SpeakerByID(sp.ID)
	require.True(t, ok)
	assert.True(t, got.Locked)
	assert.Equal(t, 1, got.Utterances)

	// confidence dipping below the threshold must not unlock
	sess.TouchSpeaker(sp.ID, 40, 80)
	got, _ = sess.SpeakerByID(sp.ID)
	assert.True(t, got.Locked)
	assert.Equal(t, 40.0, got.Confidence)
	assert.Equal(t, 2, got.Utterances)
}

func TestMergeSpeakerInsightsExistingFieldsWin(t *testing.T) {
	sess := newTestSession()
	sp := sess.AddSpeaker(Speaker{Insights: Insights{
		CommunicationStyle: "direct",
		TypicalPhrases:     []string{"let's move on"},
	}})

	sess.MergeSpeakerInsights(sp.ID, Insights{
		CommunicationStyle: "diplomatic",
		AssignedRole:       "moderator",
		SentenceComplexity: "moderate",
		TypicalPhrases:     []string{"Let's move on", "to be clear"},
	})

	got, _ := sess.SpeakerByID(sp.ID)
	assert.Equal(t, "direct", got.Insights.CommunicationStyle)
	assert.Equal(t, "moderator", got.Insights.AssignedRole)
	assert.Equal(t, "moderate", got.Insights.SentenceComplexity)
	assert.Equal(t, []string{"let's move on", "to be clear"}, got.Insights.TypicalPhrases)
}

func TestFindMatchingSpeaker(t *testing.T) {
	sess := newTestSession()
	fp := Fingerprint{0.1, 0.5, -0.2, 0.8}
	sp := sess.AddSpeaker(Speaker{Fingerprint: fp})

	got, score, ok := sess.FindMatchingSpeaker(fp, 99)
	require.True(t, ok)
	assert.Equal(t, sp.ID, got.ID)
	assert.InDelta(t, 100, score, 0.01)

	_, _, ok = sess.FindMatchingSpeaker(Fingerprint{-0.1, -0.5, 0.2, -0.8}, 50)
	assert.False(t, ok)
}

func TestSetTurnTranslation(t *testing.T) {
	sess := newTestSession()
	sess.AppendTranscript("hello")
	turn := sess.CommitCurrentTranscript()

	assert.True(t, sess.SetTurnTranslation(turn.ID, "hej", "da"))
	got, ok := sess.TurnByID(turn.ID)
	require.True(t, ok)
	assert.Equal(t, "hej", got.TranslatedText)
	assert.Equal(t, "da", got.TargetLanguage)

	assert.False(t, sess.SetTurnTranslation("missing", "x", "y"))
}

func TestEndIsIdempotent(t *testing.T) {
	sess := newTestSession()
	assert.True(t, sess.End(StatusTerminated))
	assert.Equal(t, StatusTerminated, sess.Status())
	assert.False(t, sess.End(StatusCompleted))
	assert.Equal(t, StatusTerminated, sess.Status())

	assert.ErrorIs(t, sess.Channel().Write([]byte{1}), ErrChannelClosed)
}

func TestEndNonTerminalStatusCoercedToCompleted(t *testing.T) {
	sess := newTestSession()
	assert.True(t, sess.End(StatusPaused))
	assert.Equal(t, StatusCompleted, sess.Status())
}

func TestSimilarityBounds(t *testing.T) {
	a := Fingerprint{1, 0, 0}
	assert.InDelta(t, 100, Similarity(a, Fingerprint{1, 0, 0}), 0.01)
	assert.InDelta(t, 0, Similarity(a, Fingerprint{-1, 0, 0}), 0.01)
	assert.Equal(t, 0.0, Similarity(a, Fingerprint{1, 0}))
	assert.Equal(t, 0.0, Similarity(nil, nil))
}

func TestBlendWeightsHistory(t *testing.T) {
	blended := Blend(Fingerprint{1, 0}, Fingerprint{0, 1}, 0.9)
	require.Len(t, blended, 2)
	assert.InDelta(t, 0.9, blended[0], 1e-9)
	assert.InDelta(t, 0.1, blended[1], 1e-9)
}
