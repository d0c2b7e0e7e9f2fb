package ws

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/crosstalk-ai/gateway/internal/notify"
)

// outEvent is the JSON envelope for every text frame sent to the client.
type outEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	TurnID    string `json:"turn_id,omitempty"`
	Text      string `json:"text,omitempty"`
	Stage     string `json:"stage,omitempty"`
	Error     string `json:"error,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms,omitempty"`
	Kind      string `json:"kind,omitempty"`

	Transcript *notify.Transcript    `json:"transcript,omitempty"`
	Speaker    *notify.SpeakerUpdate `json:"speaker,omitempty"`
}

// connSink adapts a WebSocket connection to the notify.Sink interface.
// gorilla/websocket allows one concurrent writer, so every write goes
// through one mutex; audio frames go out binary, everything else as JSON
// text frames.
type connSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newConnSink(conn *websocket.Conn) *connSink {
	return &connSink{conn: conn}
}

func (s *connSink) NotifyTranscript(t notify.Transcript) {
	s.sendJSON(outEvent{Type: "transcript", TurnID: t.TurnID, Transcript: &t})
}

func (s *connSink) NotifyResponseType(turnID, kind string) {
	s.sendJSON(outEvent{Type: "response_type", TurnID: turnID, Kind: kind})
}

func (s *connSink) NotifyProgressiveText(turnID, text string) {
	s.sendJSON(outEvent{Type: "response_text", TurnID: turnID, Text: text})
}

func (s *connSink) NotifyAudioChunk(turnID string, chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
		slog.Error("write audio frame", "turn_id", turnID, "error", err)
	}
}

func (s *connSink) NotifySpeakerUpdate(u notify.SpeakerUpdate) {
	s.sendJSON(outEvent{Type: "speaker_update", Speaker: &u})
}

func (s *connSink) NotifyTransactionComplete(turnID string) {
	s.sendJSON(outEvent{Type: "transaction_complete", TurnID: turnID})
}

func (s *connSink) NotifyCycleComplete(turnID string, elapsedMs int64) {
	s.sendJSON(outEvent{Type: "cycle_complete", TurnID: turnID, ElapsedMs: elapsedMs})
}

func (s *connSink) NotifyError(stage, message string) {
	s.sendJSON(outEvent{Type: "error", Stage: stage, Error: message})
}

func (s *connSink) sendJSON(ev outEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		slog.Error("write event", "type", ev.Type, "error", err)
	}
}
