package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nlpodyssey/openai-agents-go/agents"
	"github.com/nlpodyssey/openai-agents-go/modelsettings"
	"github.com/openai/openai-go/v2/packages/param"

	"github.com/crosstalk-ai/gateway/internal/metrics"
)

// GenResult is the complete generated response with usage and timing.
type GenResult struct {
	Content            string
	TokensIn           int
	TokensOut          int
	LatencyMs          float64
	TimeToFirstTokenMs float64
}

// TokenCallback receives each streamed content token.
type TokenCallback func(token string)

// RawGenerator is a direct HTTP generation client for engines that bypass
// the agents SDK.
type RawGenerator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt, model string, onToken TokenCallback) (*GenResult, error)
}

// Responder routes response-generation requests to the right provider.
// SDK providers go through openai-agents-go; engines registered via
// RegisterRaw use a direct client.
type Responder struct {
	providers  map[string]agents.ModelProvider
	rawClients map[string]RawGenerator
	models     map[string]string // engine → default model
	fallback   string
	maxTokens  int
}

// NewResponder creates a responder with the given fallback engine and
// token cap.
func NewResponder(fallback string, maxTokens int) *Responder {
	return &Responder{
		providers:  make(map[string]agents.ModelProvider),
		rawClients: make(map[string]RawGenerator),
		models:     make(map[string]string),
		fallback:   fallback,
		maxTokens:  maxTokens,
	}
}

// Register adds an SDK provider and default model for an engine name.
func (r *Responder) Register(engine string, provider agents.ModelProvider, defaultModel string) {
	r.providers[engine] = provider
	r.models[engine] = defaultModel
}

// RegisterRaw adds a direct HTTP client for an engine name.
func (r *Responder) RegisterRaw(engine string, client RawGenerator, defaultModel string) {
	r.rawClients[engine] = client
	r.models[engine] = defaultModel
}

// Engines lists all registered backend names.
func (r *Responder) Engines() []string {
	seen := make(map[string]bool, len(r.providers)+len(r.rawClients))
	names := make([]string, 0, len(r.providers)+len(r.rawClients))
	for k := range r.providers {
		seen[k] = true
		names = append(names, k)
	}
	for k := range r.rawClients {
		if !seen[k] {
			names = append(names, k)
		}
	}
	return names
}

// Generate streams a completion from the resolved provider.
func (r *Responder) Generate(ctx context.Context, systemPrompt, userPrompt, model, engine string, onToken TokenCallback) (*GenResult, error) {
	if raw, ok := r.rawClients[engine]; ok {
		useModel := model
		if useModel == "" {
			useModel = r.models[engine]
		}
		return raw.Generate(ctx, systemPrompt, userPrompt, useModel, onToken)
	}

	provider, useModel, err := r.resolve(engine, model)
	if err != nil {
		return nil, err
	}

	agent := agents.New("interpreter").
		WithInstructions(systemPrompt).
		WithModel(useModel).
		WithModelSettings(modelsettings.ModelSettings{
			MaxTokens: param.NewOpt(int64(r.maxTokens)),
		})

	runner := agents.Runner{Config: agents.RunConfig{
		ModelProvider:   provider,
		MaxTurns:        1,
		TracingDisabled: true,
	}}

	start := time.Now()

	events, errCh, err := runner.RunStreamedChan(ctx, agent, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("generation stream start: %w", err)
	}

	var content strings.Builder
	var firstToken time.Time
	tokens := 0
	for ev := range events {
		raw, ok := ev.(agents.RawResponsesStreamEvent)
		if !ok || raw.Data.Type != "response.output_text.delta" {
			continue
		}
		if firstToken.IsZero() {
			firstToken = time.Now()
		}
		tokens++
		if onToken != nil {
			onToken(raw.Data.Delta)
		}
		content.WriteString(raw.Data.Delta)
	}
	if streamErr := <-errCh; streamErr != nil {
		metrics.Errors.WithLabelValues("generate", "stream").Inc()
		return nil, fmt.Errorf("generation stream: %w", streamErr)
	}

	latency := time.Since(start)
	metrics.StageDuration.WithLabelValues("generate").Observe(latency.Seconds())

	ttft := 0.0
	if !firstToken.IsZero() {
		ttft = float64(firstToken.Sub(start).Milliseconds())
	}
	return &GenResult{
		Content:            content.String(),
		TokensIn:           approxTokens(systemPrompt) + approxTokens(userPrompt),
		TokensOut:          tokens,
		LatencyMs:          float64(latency.Milliseconds()),
		TimeToFirstTokenMs: ttft,
	}, nil
}

func (r *Responder) resolve(engine, model string) (agents.ModelProvider, string, error) {
	provider, ok := r.providers[engine]
	if !ok {
		provider, ok = r.providers[r.fallback]
	}
	if !ok {
		return nil, "", fmt.Errorf("no generation provider for engine %q", engine)
	}

	useModel := model
	if useModel == "" {
		useModel = r.models[engine]
	}
	if useModel == "" {
		useModel = r.models[r.fallback]
	}
	return provider, useModel, nil
}

// approxTokens estimates token usage for providers that report none.
func approxTokens(text string) int {
	return len(strings.Fields(text))
}
