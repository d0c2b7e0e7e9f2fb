package pipeline

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/crosstalk-ai/gateway/internal/metrics"
)

// NoiseClient calls a noise-suppression HTTP sidecar. Callers treat a nil
// client or a failed call as "use the raw samples"; suppression is an
// enhancement, never a gate.
type NoiseClient struct {
	url    string
	client *http.Client
}

// NewNoiseClient creates a client for the noise-suppression sidecar.
func NewNoiseClient(url string) *NoiseClient {
	return &NoiseClient{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// Suppress sends float32 samples to the sidecar and returns the cleaned
// samples. The wire format is raw little-endian float32, both ways.
func (c *NoiseClient) Suppress(ctx context.Context, samples []float32, sampleRate int) ([]float32, error) {
	start := time.Now()

	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}

	url := c.url + "/suppress?rate=" + strconv.Itoa(sampleRate)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("noise request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("noise", "http").Inc()
		return nil, fmt.Errorf("noise http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		metrics.Errors.WithLabelValues("noise", "status").Inc()
		return nil, fmt.Errorf("noise status %d: %s", resp.StatusCode, body)
	}

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("noise read: %w", err)
	}
	if len(respBytes)%4 != 0 {
		return nil, fmt.Errorf("noise response not aligned to float32")
	}

	out := make([]float32, len(respBytes)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(respBytes[i*4:]))
	}

	metrics.StageDuration.WithLabelValues("noise").Observe(time.Since(start).Seconds())
	return out, nil
}
