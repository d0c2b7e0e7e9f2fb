package session

import "time"

// Turn is one committed utterance in the conversation history. It is
// immutable after creation except for the translated text and target
// language, which the downstream response handler assigns exactly once.
type Turn struct {
	ID             string    `json:"id"`
	SpeakerID      string    `json:"speaker_id"`
	SpeakerLabel   string    `json:"speaker_label"`
	OriginalText   string    `json:"original_text"`
	SourceLanguage string    `json:"source_language"`
	TranslatedText string    `json:"translated_text,omitempty"`
	TargetLanguage string    `json:"target_language,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
