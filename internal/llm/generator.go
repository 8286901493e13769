// Package llm adapts the Anthropic message client into the two generation
// capabilities the pipeline consumes: schema-targeted JSON generation and
// free-form text generation, both grounded against named reference documents.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/atlas-specialty/underwrite-cli/internal/docs"
	"github.com/atlas-specialty/underwrite-cli/internal/model"
	"github.com/atlas-specialty/underwrite-cli/pkg/anthropic"
)

const systemPrompt = `You are an underwriting assistant for a commercial specialty insurer. You extract information from broker emails, classify industries, price premiums, and draft responses grounded strictly in the reference documents provided. Answer precisely and never invent figures that contradict the reference material.`

// Request describes one generation call.
type Request struct {
	Step      model.Step // attribution for logging and cost tracking
	Prompt    string
	Documents []string // reference-document names to ground the call with
}

// Generator produces structured values and free-form text for pipeline steps.
type Generator interface {
	// GenerateStructured asks for JSON conforming to out's schema and
	// unmarshals the reply into out. A non-nil error means the caller must
	// apply its deterministic fallback.
	GenerateStructured(ctx context.Context, req Request, out any) error

	// GenerateText returns free-form text. On failure it returns an
	// error-describing string rather than an error.
	GenerateText(ctx context.Context, req Request) string
}

// Claude implements Generator over the Anthropic messages API.
type Claude struct {
	client      anthropic.Client
	docs        docs.Store
	model       string
	maxTokens   int64
	temperature float64
}

// ClaudeConfig holds model parameters for the generator.
type ClaudeConfig struct {
	Model       string
	MaxTokens   int64
	Temperature float64
}

// NewClaude creates a Claude-backed generator grounded on store.
func NewClaude(client anthropic.Client, store docs.Store, cfg ClaudeConfig) *Claude {
	return &Claude{
		client:      client,
		docs:        store,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
}

func (c *Claude) GenerateStructured(ctx context.Context, req Request, out any) error {
	text, err := c.complete(ctx, req)
	if err != nil {
		return err
	}

	cleaned := cleanJSON(text)
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return eris.Wrapf(err, "llm: parse %s response", req.Step)
	}
	return nil
}

func (c *Claude) GenerateText(ctx context.Context, req Request) string {
	text, err := c.complete(ctx, req)
	if err != nil {
		zap.L().Error("text generation failed",
			zap.String("step", string(req.Step)),
			zap.Error(err))
		return fmt.Sprintf("Error generating response: %v", err)
	}
	return text
}

func (c *Claude) complete(ctx context.Context, req Request) (string, error) {
	start := time.Now()

	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		System:      c.systemBlocks(req.Documents),
		Messages:    []anthropic.Message{{Role: "user", Content: req.Prompt}},
		Temperature: &c.temperature,
	})
	if err != nil {
		return "", eris.Wrapf(err, "llm: %s generation", req.Step)
	}

	resp.Usage.LogCost(c.model, string(req.Step))
	zap.L().Debug("generation complete",
		zap.String("step", string(req.Step)),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()))

	text := extractText(resp)
	if text == "" {
		return "", eris.Errorf("llm: empty %s response", req.Step)
	}
	return text, nil
}

// systemBlocks builds the cached system prompt: the assistant instructions
// followed by one block per available reference document. Absent documents
// are skipped; the step then runs ungrounded.
func (c *Claude) systemBlocks(names []string) []anthropic.SystemBlock {
	texts := []string{systemPrompt}
	for _, name := range names {
		content, ok := c.docs.Get(name)
		if !ok {
			zap.L().Debug("reference document unavailable", zap.String("document", name))
			continue
		}
		texts = append(texts, fmt.Sprintf("=== Reference document: %s ===\n%s", name, content))
	}
	return anthropic.BuildCachedSystemBlocks(texts...)
}

func extractText(resp *anthropic.MessageResponse) string {
	if resp == nil {
		return ""
	}
	var parts []string
	for _, block := range resp.Content {
		if block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// cleanJSON strips markdown code fences and surrounding prose from a model
// reply, keeping the outermost JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
