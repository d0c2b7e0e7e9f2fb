package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/crosstalk-ai/gateway/internal/audio"
	"github.com/crosstalk-ai/gateway/internal/metrics"
)

// TranscriptionResult is one streamed speech-to-text result. Partial
// results update the interim display; final results are committed text.
type TranscriptionResult struct {
	Text       string  `json:"text"`
	Language   string  `json:"language"`
	IsFinal    bool    `json:"is_final"`
	Confidence float64 `json:"confidence"`
	LatencyMs  float64 `json:"latency_ms"`
}

// Transcriber produces a result stream for one speech segment. The channel
// closes when the segment is fully transcribed.
type Transcriber interface {
	TranscribeStream(ctx context.Context, samples []float32) (<-chan TranscriptionResult, error)
}

// STTRouter dispatches to the transcription backend named by session
// metadata.
type STTRouter struct {
	*Router[Transcriber]
}

// NewSTTRouter creates a router with registered STT backends and a
// fallback default.
func NewSTTRouter(backends map[string]Transcriber, fallback string) *STTRouter {
	return &STTRouter{Router: NewRouter(backends, fallback)}
}

// TranscribeStream routes to the named backend and transcribes the
// segment.
func (r *STTRouter) TranscribeStream(ctx context.Context, samples []float32, engine string) (<-chan TranscriptionResult, error) {
	backend, err := r.Route(engine)
	if err != nil {
		return nil, err
	}
	return backend.TranscribeStream(ctx, samples)
}

// WhisperClient talks to a whisper-compatible HTTP sidecar: one multipart
// WAV upload per segment, one final result back. The result is delivered
// through the stream interface so backends with true streaming plug in
// unchanged.
type WhisperClient struct {
	url      string
	endpoint string
	label    string
	client   *http.Client
}

// NewWhisperClient creates a client for a whisper.cpp style server
// (/inference endpoint).
func NewWhisperClient(url string, poolSize int) *WhisperClient {
	return &WhisperClient{
		url:      url,
		endpoint: "/inference",
		label:    "whisper",
		client:   NewPooledHTTPClient(poolSize, 30*time.Second),
	}
}

type whisperResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	NoSpeech float64 `json:"no_speech_prob"`
}

// TranscribeStream uploads the segment and emits the single final result.
func (c *WhisperClient) TranscribeStream(ctx context.Context, samples []float32) (<-chan TranscriptionResult, error) {
	start := time.Now()

	body, contentType, err := buildMultipartWAV(samples)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", c.label, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("stt", "http").Inc()
		return nil, fmt.Errorf("%s request: %w", c.label, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		metrics.Errors.WithLabelValues("stt", "status").Inc()
		return nil, fmt.Errorf("%s status %d: %s", c.label, resp.StatusCode, respBody)
	}

	var result whisperResponse
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", c.label, err)
	}

	latency := time.Since(start)
	metrics.StageDuration.WithLabelValues("stt").Observe(latency.Seconds())

	out := make(chan TranscriptionResult, 1)
	out <- TranscriptionResult{
		Text:       result.Text,
		Language:   result.Language,
		IsFinal:    true,
		Confidence: 1 - result.NoSpeech,
		LatencyMs:  float64(latency.Milliseconds()),
	}
	close(out)
	return out, nil
}

// Warmup sends a second of silence to verify the sidecar responds.
func (c *WhisperClient) Warmup(ctx context.Context) error {
	silence := make([]float32, 16000)
	stream, err := c.TranscribeStream(ctx, silence)
	if err != nil {
		return fmt.Errorf("%s warmup: %w", c.label, err)
	}
	for range stream {
	}
	return nil
}

func buildMultipartWAV(samples []float32) (*bytes.Buffer, string, error) {
	wavData := audio.EncodeWAV(samples, 16000)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err = part.Write(wavData); err != nil {
		return nil, "", fmt.Errorf("write wav data: %w", err)
	}
	if err = writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close writer: %w", err)
	}
	return &body, writer.FormDataContentType(), nil
}
