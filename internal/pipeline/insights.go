package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/crosstalk-ai/gateway/internal/metrics"
	"github.com/crosstalk-ai/gateway/internal/prompts"
	"github.com/crosstalk-ai/gateway/internal/session"
)

// InsightAnalyzer profiles a speaker's style from a single utterance, using
// whichever generation engine the caller names. Model output is advisory:
// on any failure the analyzer falls back to surface heuristics so the
// speaker-decision path always has something to fuse.
type InsightAnalyzer struct {
	responder *Responder
}

// NewInsightAnalyzer wraps a Responder for insight extraction.
func NewInsightAnalyzer(responder *Responder) *InsightAnalyzer {
	return &InsightAnalyzer{responder: responder}
}

// Analyze extracts communication insights from text. It never returns an
// error; degraded results come from heuristics instead.
func (a *InsightAnalyzer) Analyze(ctx context.Context, text, engine string) session.Insights {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues("insights").Observe(time.Since(start).Seconds())
	}()

	if a.responder != nil {
		result, err := a.responder.Generate(ctx, prompts.InsightExtraction, text, "", engine, nil)
		if err == nil {
			if ins, ok := parseInsights(result.Content); ok {
				ins.TypicalPhrases = capPhrases(ins.TypicalPhrases, 3)
				return ins
			}
			slog.Debug("insight extraction returned unparseable output", "engine", engine)
		} else {
			metrics.Errors.WithLabelValues("insights", "provider").Inc()
			slog.Warn("insight extraction failed, using heuristics", "engine", engine, "error", err)
		}
	}
	return heuristicInsights(text)
}

// parseInsights pulls the first JSON object out of model output. Models
// sometimes wrap JSON in prose or code fences despite instructions.
func parseInsights(content string) (session.Insights, bool) {
	open := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if open < 0 || end <= open {
		return session.Insights{}, false
	}

	var raw struct {
		CommunicationStyle string   `json:"communication_style"`
		AssignedRole       string   `json:"assigned_role"`
		SentenceComplexity string   `json:"sentence_complexity"`
		TypicalPhrases     []string `json:"typical_phrases"`
	}
	if err := json.Unmarshal([]byte(content[open:end+1]), &raw); err != nil {
		return session.Insights{}, false
	}
	return session.Insights{
		CommunicationStyle: strings.ToLower(strings.TrimSpace(raw.CommunicationStyle)),
		AssignedRole:       strings.ToLower(strings.TrimSpace(raw.AssignedRole)),
		SentenceComplexity: strings.ToLower(strings.TrimSpace(raw.SentenceComplexity)),
		TypicalPhrases:     raw.TypicalPhrases,
	}, true
}

// heuristicInsights derives a coarse profile from surface features when no
// model is reachable. Complexity from average sentence length, style from
// punctuation and phrasing.
func heuristicInsights(text string) session.Insights {
	ins := session.Insights{}
	words := strings.Fields(text)
	if len(words) == 0 {
		return ins
	}

	sentences := SplitSentences(text)
	avgWords := len(words) / max(len(sentences), 1)
	switch {
	case avgWords <= 8:
		ins.SentenceComplexity = "simple"
	case avgWords <= 18:
		ins.SentenceComplexity = "moderate"
	default:
		ins.SentenceComplexity = "complex"
	}

	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "perhaps") || strings.Contains(lower, "maybe we could") || strings.Contains(lower, "would it be possible"):
		ins.CommunicationStyle = "diplomatic"
	case strings.Contains(text, "!") || avgWords <= 6:
		ins.CommunicationStyle = "direct"
	}
	return ins
}

func capPhrases(phrases []string, n int) []string {
	if len(phrases) > n {
		return phrases[:n]
	}
	return phrases
}
