// Package analyzer evaluates a materialized codebase against resolved
// standards through an external reasoning capability. It is the primary
// latency and failure surface of the pipeline: transient failures are
// retried with bounded exponential backoff, and the model's response is
// validated against the finding schema before anything is committed.
package analyzer

import (
	"context"
	"fmt"
	"time"

	"github.com/joescharf/reviewd/internal/llm"
	"github.com/joescharf/reviewd/internal/models"
)

// Evaluator is the external reasoning capability.
type Evaluator interface {
	Evaluate(ctx context.Context, excerpt string, standards []*models.Standard) (*llm.Evaluation, error)
}

// Analyzer runs compliance analysis with retry and schema validation.
type Analyzer struct {
	eval            Evaluator
	maxAttempts     int
	maxExcerptBytes int
	baseDelay       time.Duration
}

// Option customizes an Analyzer.
type Option func(*Analyzer)

// WithBaseDelay overrides the first backoff interval (tests use this to
// avoid real waits).
func WithBaseDelay(d time.Duration) Option {
	return func(a *Analyzer) { a.baseDelay = d }
}

// New creates an Analyzer over the given evaluator. maxAttempts is the
// total attempt ceiling including the first try.
func New(eval Evaluator, maxAttempts, maxExcerptBytes int, opts ...Option) *Analyzer {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if maxExcerptBytes <= 0 {
		maxExcerptBytes = 512 << 10
	}
	a := &Analyzer{
		eval:            eval,
		maxAttempts:     maxAttempts,
		maxExcerptBytes: maxExcerptBytes,
		baseDelay:       time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze builds a deterministic excerpt of the tree at root, submits it
// with the standards, and returns validated findings plus the summary
// score. Transient evaluator failures are retried up to the attempt
// ceiling; non-transient failures (auth, malformed response) fail
// immediately.
func (a *Analyzer) Analyze(ctx context.Context, root string, standards []*models.Standard) (models.Result, error) {
	excerpt, err := buildExcerpt(root, a.maxExcerptBytes)
	if err != nil {
		return models.Result{}, err
	}

	eval, err := a.evaluateWithRetry(ctx, excerpt, standards)
	if err != nil {
		return models.Result{}, err
	}

	findings, err := validateFindings(eval.Findings, standards)
	if err != nil {
		return models.Result{}, err
	}

	return models.Result{Findings: findings, Score: eval.Score}, nil
}

// evaluateWithRetry retries transient failures with exponential backoff.
func (a *Analyzer) evaluateWithRetry(ctx context.Context, excerpt string, standards []*models.Standard) (*llm.Evaluation, error) {
	var lastErr error
	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := a.baseDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		eval, err := a.eval.Evaluate(ctx, excerpt, standards)
		if err == nil {
			return eval, nil
		}
		lastErr = err

		if !llm.Retriable(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("evaluation failed after %d attempts: %w", a.maxAttempts, lastErr)
}

// validateFindings converts raw model findings into the Finding value
// model. A finding citing an unknown standard, carrying an unknown
// severity, or missing a file path means the response does not conform
// to the schema; the whole evaluation is rejected as a parse error
// rather than silently dropping entries.
func validateFindings(raw []llm.RawFinding, standards []*models.Standard) ([]models.Finding, error) {
	refByID := make(map[string]models.StandardRef, len(standards))
	for _, std := range standards {
		refByID[std.ID] = std.Ref()
	}

	findings := make([]models.Finding, 0, len(raw))
	for i, rf := range raw {
		ref, ok := refByID[rf.StandardID]
		if !ok {
			return nil, &llm.ParseError{Err: fmt.Errorf("finding %d cites unknown standard %q", i, rf.StandardID)}
		}
		severity := models.Severity(rf.Severity)
		if !models.ValidSeverity(severity) {
			return nil, &llm.ParseError{Err: fmt.Errorf("finding %d has invalid severity %q", i, rf.Severity)}
		}
		if rf.Path == "" {
			return nil, &llm.ParseError{Err: fmt.Errorf("finding %d missing file path", i)}
		}

		findings = append(findings, models.Finding{
			Severity:    severity,
			Path:        rf.Path,
			StartLine:   rf.StartLine,
			EndLine:     rf.EndLine,
			Description: rf.Description,
			Standard:    ref,
		})
	}
	return findings, nil
}
