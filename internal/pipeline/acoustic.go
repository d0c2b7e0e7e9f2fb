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
	"github.com/crosstalk-ai/gateway/internal/session"
)

// SpeakerIdentifier is the acoustic speaker-ID collaborator: it reduces a
// speech segment to a fingerprint and matches fingerprints against the
// voices heard in a session so far.
type SpeakerIdentifier interface {
	ExtractFingerprint(ctx context.Context, samples []float32) (session.Fingerprint, error)
	Identify(ctx context.Context, fp session.Fingerprint, sessionID string) (speakerID string, confidence float64, err error)
}

// AcousticClient talks to a speaker-embedding HTTP sidecar.
type AcousticClient struct {
	url    string
	client *http.Client
}

// NewAcousticClient creates a client for the speaker-ID sidecar.
func NewAcousticClient(url string, poolSize int) *AcousticClient {
	return &AcousticClient{
		url:    url,
		client: NewPooledHTTPClient(poolSize, 15*time.Second),
	}
}

// ExtractFingerprint uploads the segment as WAV and returns its embedding.
func (c *AcousticClient) ExtractFingerprint(ctx context.Context, samples []float32) (session.Fingerprint, error) {
	start := time.Now()

	body, contentType, err := buildMultipartWAV(samples)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/fingerprint", body)
	if err != nil {
		return nil, fmt.Errorf("create fingerprint request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	var result struct {
		Fingerprint []float64 `json:"fingerprint"`
	}
	if err := c.do(req, "fingerprint", &result); err != nil {
		return nil, err
	}

	metrics.StageDuration.WithLabelValues("speaker_id").Observe(time.Since(start).Seconds())
	return session.Fingerprint(result.Fingerprint), nil
}

// Identify matches a fingerprint against the session's enrolled voices and
// returns a provisional speaker id with a confidence in [0,100].
func (c *AcousticClient) Identify(ctx context.Context, fp session.Fingerprint, sessionID string) (string, float64, error) {
	payload, err := json.Marshal(struct {
		SessionID   string    `json:"session_id"`
		Fingerprint []float64 `json:"fingerprint"`
	}{SessionID: sessionID, Fingerprint: fp})
	if err != nil {
		return "", 0, fmt.Errorf("marshal identify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/identify", bytes.NewReader(payload))
	if err != nil {
		return "", 0, fmt.Errorf("create identify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var result struct {
		SpeakerID  string  `json:"speaker_id"`
		Confidence float64 `json:"confidence"`
	}
	if err := c.do(req, "identify", &result); err != nil {
		return "", 0, err
	}
	return result.SpeakerID, result.Confidence, nil
}

func (c *AcousticClient) do(req *http.Request, stage string, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("speaker_id", "http").Inc()
		return fmt.Errorf("%s request: %w", stage, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		metrics.Errors.WithLabelValues("speaker_id", "status").Inc()
		return fmt.Errorf("%s status %d: %s", stage, resp.StatusCode, errBody)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", stage, err)
	}
	return nil
}
