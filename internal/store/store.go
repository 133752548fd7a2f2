package store

import (
	"context"
	"errors"

	"github.com/joescharf/reviewd/internal/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrStatusRegression is returned when a write would move a review's
// status backward or out of a terminal state.
var ErrStatusRegression = errors.New("status transition not allowed")

// ReviewListFilter specifies filters for listing reviews.
type ReviewListFilter struct {
	Status models.ReviewStatus
	Limit  int
}

// Store defines the persistence interface for reviewd.
//
// Status-bearing writes are atomic: each commits the new status together
// with the fields that stage produced, and refuses to move a record
// backward. CompleteReview and FailReview are the only writes that set
// result/failure, and the only writes into a terminal state.
type Store interface {
	// Reviews
	CreateReview(ctx context.Context, r *models.Review) error
	GetReview(ctx context.Context, id string) (*models.Review, error)
	ListReviews(ctx context.Context, filter ReviewListFilter) ([]*models.Review, error)
	UpdateStatus(ctx context.Context, id string, status models.ReviewStatus) error
	SetClassification(ctx context.Context, id string, c models.Classification, status models.ReviewStatus) error
	SetStandards(ctx context.Context, id string, refs []models.StandardRef, status models.ReviewStatus) error
	CompleteReview(ctx context.Context, id string, result models.Result) error
	FailReview(ctx context.Context, id string, kind models.FailureKind, cause string) error

	// Standards
	CreateStandard(ctx context.Context, s *models.Standard) error
	UpsertStandard(ctx context.Context, s *models.Standard) error
	GetStandard(ctx context.Context, id string) (*models.Standard, error)
	ListStandards(ctx context.Context) ([]*models.Standard, error)
	QueryStandards(ctx context.Context, scopes []string) ([]*models.Standard, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
