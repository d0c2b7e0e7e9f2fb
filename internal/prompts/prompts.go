// Package prompts holds the system prompts sent to generation providers.
package prompts

import "fmt"

// Interpreter instructs the model to act as a live interpreter between the
// conversation's two languages. The model receives one utterance at a time
// and must answer with the translation only.
func Interpreter(sourceLanguage, targetLanguage string) string {
	return fmt.Sprintf(`You are a professional real-time interpreter in a live spoken conversation.
Translate each utterance from %s into %s.

Rules:
- Output only the translation, with no preamble, labels, or quotes.
- Preserve tone, register, and intent. Keep names, numbers, and technical terms exact.
- If the utterance is already in %s, repeat it unchanged.
- Keep the translation natural for speech, as it will be read aloud.`,
		languageName(sourceLanguage), languageName(targetLanguage), languageName(targetLanguage))
}

// InsightExtraction asks the model to profile a speaker from one utterance.
// The response must be a single JSON object so the caller can parse it
// without scaffolding.
const InsightExtraction = `Analyze the speaking style of the utterance below and answer with one JSON object, nothing else:

{"communication_style": "direct|diplomatic|casual|formal", "assigned_role": "one short phrase, e.g. moderator, decision maker, note taker", "sentence_complexity": "simple|moderate|complex", "typical_phrases": ["up to three verbatim phrases the speaker used"]}

Leave a field empty ("" or []) when the utterance gives no evidence for it.`

var languageNames = map[string]string{
	"en": "English",
	"es": "Spanish",
	"fr": "French",
	"de": "German",
	"it": "Italian",
	"pt": "Portuguese",
	"nl": "Dutch",
	"da": "Danish",
	"sv": "Swedish",
	"no": "Norwegian",
	"pl": "Polish",
	"ru": "Russian",
	"uk": "Ukrainian",
	"tr": "Turkish",
	"ar": "Arabic",
	"hi": "Hindi",
	"zh": "Chinese",
	"ja": "Japanese",
	"ko": "Korean",
}

// languageName maps an ISO 639-1 code to its English name, falling back to
// the code itself for languages outside the table.
func languageName(code string) string {
	if name, ok := languageNames[code]; ok {
		return name
	}
	return code
}
