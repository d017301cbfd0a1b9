// Package summary turns README text into a short summary plus a list of notable facts.
package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"marunose/internal/logger"
)

const (
	SourceOpenAI   = "openai"
	SourceGemini   = "gemini"
	SourceFallback = "fallback"

	maxPromptChars   = 8000
	maxUnstructured  = 500
	noSummary        = "Summary not available"
	noFacts          = "No cool facts available"
	unstructuredFact = "AI analysis completed with unstructured output"
)

const systemPrompt = `You are a helpful assistant that analyzes GitHub repository README files. ` +
	`Provide a concise summary and extract interesting facts about the project. ` +
	`Respond in JSON format with "summary" (string) and "cool_facts" (array of strings) fields.`

// Result is always populated, even when every provider failed.
type Result struct {
	Summary   string   `json:"summary"`
	CoolFacts []string `json:"cool_facts"`
	Success   bool     `json:"success"`
	Source    string   `json:"source"`
}

// Provider is an LLM backend that can summarize a README.
type Provider interface {
	Name() string
	Summarize(ctx context.Context, readme string) (Result, error)
}

// SourceRecorder is told which provider produced each result.
type SourceRecorder interface {
	RecordSummarySource(source string)
}

// Chain tries each provider in order and falls back to the local heuristic.
type Chain struct {
	providers []Provider
	log       *slog.Logger
	recorder  SourceRecorder
}

func NewChain(log *slog.Logger, recorder SourceRecorder, providers ...Provider) *Chain {
	if log == nil {
		log = logger.Discard()
	}
	return &Chain{providers: providers, log: log, recorder: recorder}
}

// Invoke never fails. A provider error or panic moves on to the next provider.
func (c *Chain) Invoke(ctx context.Context, readme string) Result {
	for _, p := range c.providers {
		res, err := c.try(ctx, p, readme)
		if err != nil {
			c.log.Warn("Summary provider failed, falling back", "provider", p.Name(), "error", err)
			continue
		}
		c.record(res.Source)
		return res
	}
	res := Fallback(readme)
	c.record(res.Source)
	return res
}

func (c *Chain) try(ctx context.Context, p Provider, readme string) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panicked: %v", r)
		}
	}()
	return p.Summarize(ctx, readme)
}

func (c *Chain) record(source string) {
	if c.recorder != nil {
		c.recorder.RecordSummarySource(source)
	}
}

func userPrompt(readme string) string {
	return "Please analyze this README file and provide a summary and cool facts:\n\n" + truncate(readme, maxPromptChars)
}

// parseModelOutput reads the JSON object a model was asked to return. Output that
// is not JSON is kept as a truncated summary.
func parseModelOutput(content, source string) Result {
	var parsed struct {
		Summary   string          `json:"summary"`
		CoolFacts json.RawMessage `json:"cool_facts"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return Result{
			Summary:   truncate(content, maxUnstructured),
			CoolFacts: []string{unstructuredFact},
			Success:   true,
			Source:    source,
		}
	}

	res := Result{Summary: parsed.Summary, Success: true, Source: source}
	if res.Summary == "" {
		res.Summary = noSummary
	}
	var facts []string
	if err := json.Unmarshal(parsed.CoolFacts, &facts); err != nil || facts == nil {
		facts = []string{noFacts}
	}
	res.CoolFacts = facts
	return res
}

// truncate cuts s to n runes and appends "..." when anything was removed.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
