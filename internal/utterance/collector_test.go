package utterance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosstalk-ai/gateway/internal/session"
)

func TestCollectorResultBeforeCompleteFails(t *testing.T) {
	c := NewCollector([]string{"en", "da"}, "en")
	c.AddFinal("hello", "en")
	_, err := c.Result()
	assert.ErrorIs(t, err, ErrNotCompleted)
}

func TestCollectorEmptyResultFails(t *testing.T) {
	c := NewCollector([]string{"en", "da"}, "en")
	c.Complete()
	_, err := c.Result()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestCollectorJoinsFinalsInOrder(t *testing.T) {
	c := NewCollector([]string{"en", "da"}, "en")
	c.AddFinal("good morning", "en")
	c.AddFinal("  everyone  ", "en")
	c.AddFinal("", "en") // blank finals are dropped
	c.Complete()

	utt, err := c.Result()
	require.NoError(t, err)
	assert.Equal(t, "good morning everyone", utt.Text)
}

func TestCollectorPartialsDisplayOnly(t *testing.T) {
	c := NewCollector([]string{"en", "da"}, "en")
	c.AddPartial("goo", "fr")
	c.AddPartial("good mor", "fr")
	c.AddFinal("good morning", "en")
	c.Complete()

	utt, err := c.Result()
	require.NoError(t, err)
	// partials neither accumulate nor vote
	assert.Equal(t, "good morning", utt.Text)
	assert.Equal(t, "en", utt.SourceLanguage)
}

func TestCollectorPromotesInterimOnComplete(t *testing.T) {
	c := NewCollector([]string{"en", "da"}, "en")
	c.AddFinal("first part", "en")
	c.AddPartial("and a trailing bit", "en")
	c.Complete()

	utt, err := c.Result()
	require.NoError(t, err)
	assert.Equal(t, "first part and a trailing bit", utt.Text)
}

func TestCollectorCompleteIdempotent(t *testing.T) {
	c := NewCollector([]string{"en", "da"}, "en")
	c.AddFinal("hello", "en")
	c.Complete()
	c.Complete()

	utt, err := c.Result()
	require.NoError(t, err)
	assert.Equal(t, "hello", utt.Text)
}

func TestCollectorCarriesAcousticAndInsights(t *testing.T) {
	c := NewCollector([]string{"en", "da"}, "en")
	c.AddFinal("hello", "en")
	fp := session.Fingerprint{0.1, 0.2}
	c.SetAcoustic("spk-1", 64, fp)
	c.SetInsights(session.Insights{CommunicationStyle: "direct"})
	c.Complete()

	utt, err := c.Result()
	require.NoError(t, err)
	assert.Equal(t, "spk-1", utt.SpeakerID)
	assert.Equal(t, 64.0, utt.SpeakerConfidence)
	assert.Equal(t, fp, utt.Fingerprint)
	assert.Equal(t, "direct", utt.Insights.CommunicationStyle)
}

func TestCollectorReset(t *testing.T) {
	c := NewCollector([]string{"en", "da"}, "en")
	c.AddFinal("hello", "en")
	c.SetAcoustic("spk-1", 80, session.Fingerprint{0.5})
	c.Complete()
	c.Reset()

	assert.False(t, c.HasText())
	_, err := c.Result()
	assert.ErrorIs(t, err, ErrNotCompleted)
}

func TestResolveLanguagesDominantIsCandidate(t *testing.T) {
	c := NewCollector([]string{"en", "da"}, "en")
	c.AddFinal("a", "en")
	c.AddFinal("b", "en")
	c.AddFinal("c", "en")
	c.AddFinal("d", "fr")
	c.Complete()

	utt, err := c.Result()
	require.NoError(t, err)
	assert.Equal(t, "en", utt.SourceLanguage)
	assert.Equal(t, "da", utt.TargetLanguage)
}

func TestResolveLanguagesRunnerUpIsCandidate(t *testing.T) {
	c := NewCollector([]string{"en", "da"}, "en")
	c.AddFinal("a", "fr")
	c.AddFinal("b", "fr")
	c.AddFinal("c", "da")
	c.Complete()

	utt, err := c.Result()
	require.NoError(t, err)
	assert.Equal(t, "da", utt.SourceLanguage)
	assert.Equal(t, "en", utt.TargetLanguage)
}

func TestResolveLanguagesNoCandidateMatchFallsBackToPrimary(t *testing.T) {
	c := NewCollector([]string{"de", "da"}, "sv")
	c.AddFinal("a", "en")
	c.AddFinal("b", "en")
	c.Complete()

	utt, err := c.Result()
	require.NoError(t, err)
	assert.Equal(t, "en", utt.SourceLanguage)
	assert.Equal(t, "sv", utt.TargetLanguage)
}

func TestResolveLanguagesTieBrokenByFirstSeen(t *testing.T) {
	src, tgt := ResolveLanguages(
		map[string]int{"da": 2, "en": 2},
		[]string{"da", "en"},
		[]string{"en", "da"},
		"en",
	)
	assert.Equal(t, "da", src)
	assert.Equal(t, "en", tgt)
}

func TestResolveLanguagesNoVotes(t *testing.T) {
	src, tgt := ResolveLanguages(nil, nil, []string{"en", "da"}, "en")
	assert.Equal(t, "en", src)
	assert.Equal(t, "da", tgt)

	src, tgt = ResolveLanguages(nil, nil, []string{"de", "da"}, "sv")
	assert.Equal(t, "sv", src)
	assert.Equal(t, "sv", tgt)
}
