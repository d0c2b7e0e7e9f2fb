// Package ws is the WebSocket transport. Each connection carries one
// conversation session: a JSON metadata frame first, then binary audio
// frames interleaved with JSON control frames.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/crosstalk-ai/gateway/internal/orchestrator"
	"github.com/crosstalk-ai/gateway/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16384,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler serves conversation sessions over WebSocket with admission
// control.
type Handler struct {
	svc *orchestrator.Service
	sem chan struct{}
}

// NewHandler creates the handler. maxConcurrent bounds simultaneous
// sessions; excess connections get 503 instead of degraded service.
func NewHandler(svc *orchestrator.Service, maxConcurrent int) *Handler {
	if maxConcurrent <= 0 {
		maxConcurrent = 100
	}
	return &Handler{
		svc: svc,
		sem: make(chan struct{}, maxConcurrent),
	}
}

// sessionMetadata is the first text frame sent by the client.
type sessionMetadata struct {
	Languages       []string `json:"languages"`
	PrimaryLanguage string   `json:"primary_language"`
	Codec           string   `json:"codec"`
	SampleRate      int      `json:"sample_rate"`
	STTEngine       string   `json:"stt_engine"`
	TTSEngine       string   `json:"tts_engine"`
	GenEngine       string   `json:"gen_engine"`
	GenModel        string   `json:"gen_model"`
	Voice           string   `json:"voice"`
}

// controlFrame is any text frame after the metadata frame.
type controlFrame struct {
	Type string `json:"type"`
}

// ServeHTTP upgrades the connection and runs the session until the client
// disconnects or ends it.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case h.sem <- struct{}{}:
		defer func() { <-h.sem }()
	default:
		http.Error(w, "at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	h.runSession(conn)
}

func (h *Handler) runSession(conn *websocket.Conn) {
	meta, err := readMetadata(conn)
	if err != nil {
		slog.Error("read session metadata", "error", err)
		return
	}

	cfg := session.Config{
		CandidateLanguages: meta.Languages,
		PrimaryLanguage:    meta.PrimaryLanguage,
		Codec:              meta.Codec,
		SampleRate:         meta.SampleRate,
		STTEngine:          meta.STTEngine,
		TTSEngine:          meta.TTSEngine,
		GenEngine:          meta.GenEngine,
		GenModel:           meta.GenModel,
		Voice:              meta.Voice,
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}

	sink := newConnSink(conn)
	sess := h.svc.CreateOrGetSession(conn.RemoteAddr().String(), cfg, sink)
	sink.sendJSON(outEvent{Type: "session_ready", SessionID: sess.ID})

	status := session.StatusCompleted
	defer func() {
		if err := h.svc.EndSession(sess.ID, status); err != nil {
			slog.Error("end session", "session_id", sess.ID, "error", err)
		}
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			slog.Info("connection closed", "session_id", sess.ID, "error", err)
			status = session.StatusTerminated
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if err := h.svc.SubmitAudioChunk(sess.ID, data); err != nil {
				slog.Error("submit audio", "session_id", sess.ID, "error", err)
				sink.NotifyError("audio", err.Error())
			}
		case websocket.TextMessage:
			if done := h.handleControl(sess.ID, data, sink); done {
				return
			}
		}
	}
}

// handleControl dispatches one JSON control frame. Returns true when the
// client asked to end the session.
func (h *Handler) handleControl(sessionID string, data []byte, sink *connSink) bool {
	var ctrl controlFrame
	if err := json.Unmarshal(data, &ctrl); err != nil {
		slog.Warn("bad control frame", "session_id", sessionID, "error", err)
		return false
	}

	switch ctrl.Type {
	case "utterance_complete":
		text, err := h.svc.SignalUtteranceComplete(context.Background(), sessionID)
		if err != nil {
			sink.NotifyError("utterance", err.Error())
			return false
		}
		sink.sendJSON(outEvent{Type: "utterance_finalized", SessionID: sessionID, Text: text})
	case "end_session":
		return true
	default:
		slog.Warn("unknown control type", "session_id", sessionID, "type", ctrl.Type)
	}
	return false
}

func readMetadata(conn *websocket.Conn) (*sessionMetadata, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var meta sessionMetadata
	if err = json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}
