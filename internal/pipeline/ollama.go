package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/crosstalk-ai/gateway/internal/metrics"
)

// OllamaClient streams generations from a local Ollama server. It is the
// default RawGenerator for on-box deployments.
type OllamaClient struct {
	url       string
	model     string
	maxTokens int
	client    *http.Client
}

// NewOllamaClient creates an Ollama HTTP client.
func NewOllamaClient(url, model string, maxTokens, poolSize int) *OllamaClient {
	return &OllamaClient{
		url:       url,
		model:     model,
		maxTokens: maxTokens,
		client:    NewPooledHTTPClient(poolSize, 60*time.Second),
	}
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Stream   bool            `json:"stream"`
	Messages []ollamaMessage `json:"messages"`
	Options  struct {
		NumPredict int `json:"num_predict"`
	} `json:"options"`
}

type ollamaChunk struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	// usage fields present on the final chunk
	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}

// Generate sends a chat request and streams content tokens back.
func (c *OllamaClient) Generate(ctx context.Context, systemPrompt, userPrompt, model string, onToken TokenCallback) (*GenResult, error) {
	start := time.Now()

	useModel := c.model
	if model != "" {
		useModel = model
	}
	reqBody := ollamaRequest{
		Model:  useModel,
		Stream: true,
		Messages: []ollamaMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}
	reqBody.Options.NumPredict = c.maxTokens

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/api/chat", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("generate", "http").Inc()
		return nil, fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.Errors.WithLabelValues("generate", "status").Inc()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ollama status %d: %s", resp.StatusCode, errBody)
	}

	result := c.consume(resp.Body, onToken)

	latency := time.Since(start)
	metrics.StageDuration.WithLabelValues("generate").Observe(latency.Seconds())
	result.LatencyMs = float64(latency.Milliseconds())
	if !result.firstToken.IsZero() {
		result.TimeToFirstTokenMs = float64(result.firstToken.Sub(start).Milliseconds())
	}
	return &result.GenResult, nil
}

type ollamaStreamState struct {
	GenResult
	firstToken time.Time
	content    bytes.Buffer
}

func (c *OllamaClient) consume(body io.Reader, onToken TokenCallback) *ollamaStreamState {
	state := &ollamaStreamState{}
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		var chunk ollamaChunk
		if json.Unmarshal(scanner.Bytes(), &chunk) != nil {
			continue
		}
		if chunk.Done {
			state.TokensIn = chunk.PromptEvalCount
			state.TokensOut = chunk.EvalCount
			break
		}
		if chunk.Message.Content == "" {
			continue
		}
		if state.firstToken.IsZero() {
			state.firstToken = time.Now()
		}
		if onToken != nil {
			onToken(chunk.Message.Content)
		}
		state.content.WriteString(chunk.Message.Content)
	}

	state.Content = state.content.String()
	return state
}
