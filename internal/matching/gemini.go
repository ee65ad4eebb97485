package matching

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/erazemk/lostfound/internal/model"
)

const defaultGeminiModel = "gemini-2.5-flash"

const defaultInstructions = `You compare reports of lost and found items on a university campus.
Both items are filed under the same category and subcategory. Judge whether they
describe the same physical object from their descriptions, keywords, places and dates.
Respond with JSON only: {"confidenceScore": <integer 0-100>, "reasoning": "<one or two sentences>"}.`

// GeminiConfig configures the AI-assisted scorer.
type GeminiConfig struct {
	APIKey       string
	Model        string
	Instructions string
	Timeout      time.Duration
}

// GeminiScorer asks a Gemini model to rate pairs. It only consults the model
// for pairs that share keywords, and falls back to the keyword score whenever
// the model cannot be reached or answers with something unusable.
type GeminiScorer struct {
	fallback Scorer
	generate func(ctx context.Context, prompt string) (string, error)
	timeout  time.Duration
	logger   *slog.Logger
}

// NewGeminiScorer creates a scorer backed by the Gemini API.
func NewGeminiScorer(ctx context.Context, cfg GeminiConfig, logger *slog.Logger) (*GeminiScorer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}
	if cfg.Instructions == "" {
		cfg.Instructions = defaultInstructions
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(cfg.Instructions, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.3),
		ResponseMIMEType:  "application/json",
	}
	generate := func(ctx context.Context, prompt string) (string, error) {
		resp, err := client.Models.GenerateContent(ctx, cfg.Model, genai.Text(prompt), config)
		if err != nil {
			return "", err
		}
		return resp.Text(), nil
	}

	return newGeminiScorer(generate, cfg.Timeout, logger), nil
}

func newGeminiScorer(generate func(context.Context, string) (string, error), timeout time.Duration, logger *slog.Logger) *GeminiScorer {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiScorer{
		fallback: KeywordScorer{},
		generate: generate,
		timeout:  timeout,
		logger:   logger,
	}
}

func (g *GeminiScorer) Score(ctx context.Context, found, lost model.Scorable) Result {
	base := g.fallback.Score(ctx, found, lost)
	if base.Confidence == 0 {
		return base
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	text, err := g.generate(ctx, prompt(found, lost))
	if err != nil {
		g.logger.Warn("gemini scoring failed, using keyword score", "error", err)
		return base
	}
	verdict, err := parseVerdict(text)
	if err != nil {
		g.logger.Warn("gemini answer unusable, using keyword score", "error", err)
		return base
	}

	return Result{
		Confidence: clamp(verdict.ConfidenceScore),
		Reason:     base.Reason + " | AI: " + strings.TrimSpace(verdict.Reasoning),
	}
}

type verdict struct {
	ConfidenceScore int    `json:"confidenceScore"`
	Reasoning       string `json:"reasoning"`
}

// parseVerdict decodes the model's JSON answer, tolerating a Markdown code fence.
func parseVerdict(text string) (verdict, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var v verdict
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return verdict{}, fmt.Errorf("decoding verdict: %w", err)
	}
	if v.Reasoning == "" {
		v.Reasoning = "No reasoning provided"
	}
	return v, nil
}

func prompt(found, lost model.Scorable) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Both items are filed under %s / %s.\n\n", found.ItemCategory(), found.ItemSubcategory())
	describe(&b, "FOUND ITEM", "Date found", found)
	b.WriteString("\n")
	describe(&b, "LOST ITEM", "Date lost", lost)
	return b.String()
}

func describe(b *strings.Builder, heading, dateLabel string, item model.Scorable) {
	b.WriteString(heading + ":\n")
	if d, ok := item.(model.Described); ok {
		fmt.Fprintf(b, "- Title: %s\n", d.ItemTitle())
		if s := strings.TrimSpace(d.ItemDescription()); s != "" {
			fmt.Fprintf(b, "- Description: %s\n", s)
		}
		if s := strings.TrimSpace(d.ItemLocation()); s != "" {
			fmt.Fprintf(b, "- Location: %s\n", s)
		}
	}
	if t := item.EventDate(); t != nil {
		fmt.Fprintf(b, "- %s: %s\n", dateLabel, t.Format("2006-01-02"))
	}
	if k := item.ItemKeywords(); k.Len() > 0 {
		fmt.Fprintf(b, "- Keywords: %s\n", strings.Join(k.Sorted(), ", "))
	}
}
