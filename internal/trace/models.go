package trace

import "time"

// Conversation is the persisted record of one gateway session.
type Conversation struct {
	ID              string     `json:"id"`
	PrimaryLanguage string     `json:"primary_language"`
	Languages       string     `json:"languages"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	ExchangeCount   int        `json:"exchange_count,omitempty"`
}

// Exchange is one committed utterance and its translated response.
type Exchange struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SpeakerLabel   string    `json:"speaker_label,omitempty"`
	SourceLanguage string    `json:"source_language,omitempty"`
	TargetLanguage string    `json:"target_language,omitempty"`
	Utterance      string    `json:"utterance,omitempty"`
	Translation    string    `json:"translation,omitempty"`
	DurationMs     float64   `json:"duration_ms,omitempty"`
	Status         string    `json:"status"`
	StartedAt      time.Time `json:"started_at"`
	SpanCount      int       `json:"span_count,omitempty"`
}

// Span is one pipeline stage inside an exchange.
type Span struct {
	ID         string    `json:"id"`
	ExchangeID string    `json:"exchange_id"`
	Name       string    `json:"name"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs float64   `json:"duration_ms"`
	Input      string    `json:"input,omitempty"`
	Output     string    `json:"output,omitempty"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
}
