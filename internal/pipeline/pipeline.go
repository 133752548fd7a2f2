// Package pipeline drives one review through its state machine:
// pending -> cloning -> classifying -> resolving_standards -> analyzing
// -> completed, with failed reachable from every non-terminal state.
// Each stage commits its output together with the transition, so a crash
// mid-pipeline leaves the last committed status visible, never a
// half-written stage.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joescharf/reviewd/internal/classify"
	"github.com/joescharf/reviewd/internal/ingest"
	"github.com/joescharf/reviewd/internal/llm"
	"github.com/joescharf/reviewd/internal/models"
	"github.com/joescharf/reviewd/internal/store"
)

// Ingestor materializes a repository for review.
type Ingestor interface {
	Ingest(ctx context.Context, reviewID, url, rev string) (*ingest.Checkout, error)
}

// Resolver resolves and loads applicable standards.
type Resolver interface {
	Resolve(ctx context.Context, c models.Classification) ([]models.StandardRef, error)
	Load(ctx context.Context, refs []models.StandardRef) ([]*models.Standard, error)
}

// CodeAnalyzer evaluates a codebase against standards.
type CodeAnalyzer interface {
	Analyze(ctx context.Context, root string, standards []*models.Standard) (models.Result, error)
}

// Runner sequences the pipeline stages for a single review. The store it
// holds must be a dedicated connection owned by this execution context,
// never shared with the request-serving side; the caller opens it before
// constructing the Runner and closes it when Run returns.
type Runner struct {
	store    store.Store
	ingestor Ingestor
	resolver Resolver
	analyzer CodeAnalyzer
	log      *slog.Logger
}

// NewRunner creates a Runner over a dedicated store connection.
func NewRunner(s store.Store, ing Ingestor, res Resolver, an CodeAnalyzer, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{store: s, ingestor: ing, resolver: res, analyzer: an, log: log}
}

// Run executes the pipeline for the given review. Stage-local errors are
// classified and committed as the terminal failure; the returned error
// reports the same outcome to the process exit path. A non-nil error
// with a recorded failure is normal; an error AND a stale non-terminal
// record means persistence itself failed.
func (r *Runner) Run(ctx context.Context, rev *models.Review) (err error) {
	log := r.log.With("review_id", rev.ID, "repository", rev.RepositoryURL)

	// Stage failures never escape as an unhandled fault: the terminal
	// record is the contract with callers.
	defer func() {
		if p := recover(); p != nil {
			cause := fmt.Sprintf("internal: %v", p)
			log.Error("pipeline panic", "cause", cause)
			r.fail(rev.ID, models.FailurePersistence, cause, log)
			err = fmt.Errorf("pipeline panic: %v", p)
		}
	}()

	// Stage 1: ingestion
	if err := r.store.UpdateStatus(ctx, rev.ID, models.ReviewStatusCloning); err != nil {
		log.Error("commit cloning status", "error", err)
		return fmt.Errorf("commit cloning status: %w", err)
	}
	log.Info("cloning repository")

	co, ierr := r.ingestor.Ingest(ctx, rev.ID, rev.RepositoryURL, rev.Revision)
	if ierr != nil {
		log.Warn("ingestion failed", "error", ierr)
		r.fail(rev.ID, ingest.FailureKindOf(ierr), ierr.Error(), log)
		return ierr
	}
	defer co.Cleanup()

	// Stage 2: classification. Deterministic and local; an empty tree
	// yields an explicit unknown profile, not an error.
	if err := r.store.UpdateStatus(ctx, rev.ID, models.ReviewStatusClassifying); err != nil {
		log.Error("commit classifying status", "error", err)
		return fmt.Errorf("commit classifying status: %w", err)
	}
	c := classify.Classify(co.Path)
	log.Info("classified repository", "languages", c.Languages, "frameworks", c.Frameworks, "size", c.Size)

	if err := r.store.SetClassification(ctx, rev.ID, c, models.ReviewStatusResolvingStandards); err != nil {
		log.Error("commit classification", "error", err)
		return fmt.Errorf("commit classification: %w", err)
	}

	// Stage 3: standards resolution
	refs, rerr := r.resolver.Resolve(ctx, c)
	if rerr != nil {
		log.Error("resolve standards", "error", rerr)
		r.fail(rev.ID, models.FailurePersistence, rerr.Error(), log)
		return rerr
	}
	log.Info("resolved standards", "count", len(refs))

	if err := r.store.SetStandards(ctx, rev.ID, refs, models.ReviewStatusAnalyzing); err != nil {
		log.Error("commit standards", "error", err)
		return fmt.Errorf("commit standards: %w", err)
	}

	// No applicable standards is not an error: complete with an empty
	// finding set.
	if len(refs) == 0 {
		log.Info("no applicable standards, completing with empty findings")
		return r.complete(ctx, rev.ID, models.Result{Findings: []models.Finding{}, Score: 100}, log)
	}

	// Stage 4: compliance analysis
	standards, lerr := r.resolver.Load(ctx, refs)
	if lerr != nil {
		log.Error("load standards", "error", lerr)
		r.fail(rev.ID, models.FailurePersistence, lerr.Error(), log)
		return lerr
	}

	result, aerr := r.analyzer.Analyze(ctx, co.Path, standards)
	if aerr != nil {
		log.Warn("analysis failed", "error", aerr)
		r.fail(rev.ID, llm.ClassifyFailure(aerr), aerr.Error(), log)
		return aerr
	}
	log.Info("analysis complete", "findings", len(result.Findings), "score", result.Score)

	return r.complete(ctx, rev.ID, result, log)
}

func (r *Runner) complete(ctx context.Context, id string, result models.Result, log *slog.Logger) error {
	if err := r.store.CompleteReview(ctx, id, result); err != nil {
		log.Error("commit completed status", "error", err)
		return fmt.Errorf("commit completed status: %w", err)
	}
	log.Info("review completed")
	return nil
}

// fail commits the terminal failed record. A persistence error here is
// the one case that legitimately leaves a stale non-terminal status;
// nothing more can be done than log it.
func (r *Runner) fail(id string, kind models.FailureKind, cause string, log *slog.Logger) {
	// Fresh context: the stage's context may already be expired, and the
	// terminal write must still be attempted.
	if err := r.store.FailReview(context.Background(), id, kind, cause); err != nil {
		log.Error("commit failed status", "kind", kind, "error", err)
	}
}
