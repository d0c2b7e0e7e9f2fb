package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/crosstalk-ai/gateway/internal/metrics"
)

// Synthesizer produces audio for one sentence of text in a target
// language.
type Synthesizer interface {
	SynthesizeSpeech(ctx context.Context, text, language, voice string) ([]byte, error)
}

// SynthResult holds synthesized audio with timing.
type SynthResult struct {
	Audio     []byte
	LatencyMs float64
}

// TTSRouter dispatches to the synthesis backend named by session metadata
// and records latency metrics around the call.
type TTSRouter struct {
	*Router[Synthesizer]
}

// NewTTSRouter creates a router with registered TTS backends and a
// fallback default.
func NewTTSRouter(backends map[string]Synthesizer, fallback string) *TTSRouter {
	return &TTSRouter{Router: NewRouter(backends, fallback)}
}

// Synthesize routes to the named backend and synthesizes the sentence.
func (r *TTSRouter) Synthesize(ctx context.Context, text, language, voice, engine string) (*SynthResult, error) {
	start := time.Now()

	backend, err := r.Route(engine)
	if err != nil {
		return nil, err
	}

	audioData, err := backend.SynthesizeSpeech(ctx, text, language, voice)
	if err != nil {
		metrics.Errors.WithLabelValues("tts", "synth").Inc()
		return nil, err
	}

	latency := time.Since(start)
	metrics.StageDuration.WithLabelValues("tts").Observe(latency.Seconds())
	return &SynthResult{Audio: audioData, LatencyMs: float64(latency.Milliseconds())}, nil
}

// --- Piper backend (local neural TTS, per-language voice table) ---

type piperSynthesizer struct {
	url    string
	voices map[string]string // language → voice id
	client *http.Client
}

// NewPiperSynthesizer creates a piper-tts backend. voices maps language
// codes to piper voice ids; an explicit per-call voice wins over the
// table.
func NewPiperSynthesizer(url string, voices map[string]string, client *http.Client) Synthesizer {
	return &piperSynthesizer{url: url, voices: voices, client: client}
}

func (p *piperSynthesizer) SynthesizeSpeech(ctx context.Context, text, language, voice string) ([]byte, error) {
	if voice == "" {
		voice = p.voices[language]
	}
	body, err := json.Marshal(struct {
		Text  string `json:"text"`
		Voice string `json:"voice,omitempty"`
	}{Text: text, Voice: voice})
	if err != nil {
		return nil, fmt.Errorf("marshal piper request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.url+"/synthesize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create piper request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("piper request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("piper status %d: %s", resp.StatusCode, errBody)
	}
	return io.ReadAll(resp.Body)
}

// --- OpenAI-compatible speech backend (kokoro and friends) ---

type openAISpeechSynthesizer struct {
	url    string
	model  string
	voice  string
	client *http.Client
}

// NewOpenAISpeechSynthesizer creates a backend for any server exposing the
// OpenAI /v1/audio/speech shape.
func NewOpenAISpeechSynthesizer(url, model, defaultVoice string, client *http.Client) Synthesizer {
	return &openAISpeechSynthesizer{url: url, model: model, voice: defaultVoice, client: client}
}

func (o *openAISpeechSynthesizer) SynthesizeSpeech(ctx context.Context, text, language, voice string) ([]byte, error) {
	if voice == "" {
		voice = o.voice
	}
	body, err := json.Marshal(map[string]any{
		"model":           o.model,
		"input":           text,
		"voice":           voice,
		"language":        language,
		"response_format": "wav",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal speech request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.url+"/v1/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create speech request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("speech status %d: %s", resp.StatusCode, errBody)
	}
	return io.ReadAll(resp.Body)
}
