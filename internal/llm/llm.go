package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/joescharf/reviewd/internal/models"
)

// RawFinding is one violation as reported by the model, before schema
// validation against the resolved standards.
type RawFinding struct {
	Severity    string `json:"severity"`
	Path        string `json:"path"`
	StartLine   int    `json:"start_line"`
	EndLine     int    `json:"end_line"`
	Description string `json:"description"`
	StandardID  string `json:"standard_id"`
}

// Evaluation is the model's structured compliance verdict.
type Evaluation struct {
	Score    float64      `json:"score"`
	Findings []RawFinding `json:"findings"`
}

// ParseError indicates the model returned output that does not conform
// to the expected evaluation schema. Never retried.
type ParseError struct {
	Err error
	Raw string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse evaluation response: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Client wraps the Anthropic API for compliance evaluation.
type Client struct {
	api       *anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewClient creates an evaluation client with the given API key and model.
func NewClient(apiKey, model string, maxTokens int64) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	return &Client{
		api:       &client,
		model:     anthropic.Model(model),
		maxTokens: maxTokens,
	}
}

// buildPrompt constructs the system and user prompts for compliance evaluation.
func buildPrompt(excerpt string, standards []*models.Standard) (system string, user string) {
	system = `You are a code compliance analysis expert. You evaluate a codebase against the provided coding standards and return ONLY a JSON object with these fields:
- "score": overall compliance score from 0 to 100 (100 = fully compliant)
- "findings": array of violations, each an object with:
  - "severity": one of "critical", "high", "medium", "low", "info"
  - "path": the file path the violation occurs in
  - "start_line": first affected line (0 if unknown)
  - "end_line": last affected line (0 if unknown)
  - "description": concise explanation of the violation, 1-2 sentences
  - "standard_id": the id of the standard being violated, exactly as given

Rules:
- Only cite standard ids from the provided list
- Consider the codebase as a whole; dependencies and interactions matter
- A clean codebase yields an empty findings array and a high score
- Return valid JSON only, no markdown fencing or explanation`

	var sb strings.Builder
	sb.WriteString("Applicable standards, in precedence order (most specific first):\n\n")
	for _, std := range standards {
		fmt.Fprintf(&sb, "## Standard %s (%s, scope %s, version %s)\n%s\n\n", std.ID, std.Name, std.Scope, std.Version, std.Text)
	}
	sb.WriteString("Evaluate this codebase against the standards above:\n\n")
	sb.WriteString(excerpt)
	user = sb.String()
	return
}

// Evaluate submits the codebase excerpt and standards to the model and
// parses its response into an Evaluation.
func (c *Client) Evaluate(ctx context.Context, excerpt string, standards []*models.Standard) (*Evaluation, error) {
	systemPrompt, userPrompt := buildPrompt(excerpt, standards)

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call: %w", err)
	}

	// Extract text from response
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}

	if text == "" {
		return nil, &ParseError{Err: errors.New("no text content in API response")}
	}

	return ParseEvaluation(text)
}

// ParseEvaluation decodes a model response into an Evaluation, stripping
// markdown fencing if present.
func ParseEvaluation(text string) (*Evaluation, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	var eval Evaluation
	if err := json.Unmarshal([]byte(text), &eval); err != nil {
		return nil, &ParseError{Err: err, Raw: text}
	}
	if eval.Score < 0 || eval.Score > 100 {
		return nil, &ParseError{Err: fmt.Errorf("score %v out of range", eval.Score), Raw: text}
	}
	return &eval, nil
}

// Retriable reports whether the error is transient (rate limiting,
// overload, server-side failure) and worth retrying with backoff.
func Retriable(err error) bool {
	var aerr *anthropic.Error
	if errors.As(err, &aerr) {
		switch aerr.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			529: // anthropic overloaded
			return true
		}
		return false
	}
	var perr *ParseError
	if errors.As(err, &perr) {
		return false
	}
	// Transport-level failures without an API status are transient.
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// ClassifyFailure maps an evaluation error to its stable failure kind.
func ClassifyFailure(err error) models.FailureKind {
	var perr *ParseError
	if errors.As(err, &perr) {
		return models.FailureAnalysisParse
	}
	var aerr *anthropic.Error
	if errors.As(err, &aerr) {
		switch aerr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return models.FailureAnalysisAuth
		case http.StatusTooManyRequests, 529:
			return models.FailureAnalysisRateLimit
		}
	}
	return models.FailureAnalysisRateLimit
}
