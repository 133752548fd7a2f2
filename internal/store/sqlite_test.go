package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/reviewd/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func newTestReview(t *testing.T, s *SQLiteStore) *models.Review {
	t.Helper()
	r := &models.Review{
		RepositoryURL: "https://github.com/example/app",
		Requester:     "tester",
	}
	require.NoError(t, s.CreateReview(context.Background(), r))
	return r
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)

	// Running migrate again should be a no-op
	err := s.Migrate(context.Background())
	assert.NoError(t, err)
}

// --- Reviews ---

func TestCreateReview_PendingImmediately(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := newTestReview(t, s)
	assert.NotEmpty(t, r.ID)
	assert.False(t, r.CreatedAt.IsZero())

	got, err := s.GetReview(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusPending, got.Status)
	assert.Equal(t, "https://github.com/example/app", got.RepositoryURL)
	assert.Nil(t, got.Classification)
	assert.Nil(t, got.Result)
	assert.Nil(t, got.Failure)
	assert.Nil(t, got.CompletedAt)
}

func TestGetReview_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetReview(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReviewLifecycle_Completed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := newTestReview(t, s)

	require.NoError(t, s.UpdateStatus(ctx, r.ID, models.ReviewStatusCloning))
	require.NoError(t, s.UpdateStatus(ctx, r.ID, models.ReviewStatusClassifying))

	c := models.Classification{Languages: []string{"go"}, Size: models.SizeSmall}
	require.NoError(t, s.SetClassification(ctx, r.ID, c, models.ReviewStatusResolvingStandards))

	refs := []models.StandardRef{{ID: "std1", Version: "1", Scope: "language:go"}}
	require.NoError(t, s.SetStandards(ctx, r.ID, refs, models.ReviewStatusAnalyzing))

	result := models.Result{
		Score: 87.5,
		Findings: []models.Finding{{
			Severity:    models.SeverityMedium,
			Path:        "main.go",
			StartLine:   10,
			Description: "missing error wrap",
			Standard:    refs[0],
		}},
	}
	require.NoError(t, s.CompleteReview(ctx, r.ID, result))

	got, err := s.GetReview(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusCompleted, got.Status)
	require.NotNil(t, got.Classification)
	assert.Equal(t, []string{"go"}, got.Classification.Languages)
	assert.Equal(t, refs, got.Standards)
	require.NotNil(t, got.Result)
	assert.Equal(t, 87.5, got.Result.Score)
	assert.Len(t, got.Result.Findings, 1)
	assert.Nil(t, got.Failure, "terminal record must set exactly one of result/failure")
	require.NotNil(t, got.CompletedAt)
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))
}

func TestReviewLifecycle_Failed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := newTestReview(t, s)

	require.NoError(t, s.UpdateStatus(ctx, r.ID, models.ReviewStatusCloning))
	require.NoError(t, s.FailReview(ctx, r.ID, models.FailureIngestionNotFound, "repository not found"))

	got, err := s.GetReview(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusFailed, got.Status)
	require.NotNil(t, got.Failure)
	assert.Equal(t, models.FailureIngestionNotFound, got.Failure.Kind)
	assert.Equal(t, "repository not found", got.Failure.Cause)
	assert.Nil(t, got.Result, "terminal record must set exactly one of result/failure")
	require.NotNil(t, got.CompletedAt)
}

func TestUpdateStatus_RefusesRegression(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := newTestReview(t, s)

	require.NoError(t, s.UpdateStatus(ctx, r.ID, models.ReviewStatusAnalyzing))

	err := s.UpdateStatus(ctx, r.ID, models.ReviewStatusCloning)
	assert.ErrorIs(t, err, ErrStatusRegression)

	// Status unchanged
	got, err := s.GetReview(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusAnalyzing, got.Status)
}

func TestUpdateStatus_RefusesTerminal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := newTestReview(t, s)

	err := s.UpdateStatus(ctx, r.ID, models.ReviewStatusCompleted)
	assert.ErrorIs(t, err, ErrStatusRegression)

	err = s.UpdateStatus(ctx, r.ID, models.ReviewStatusFailed)
	assert.ErrorIs(t, err, ErrStatusRegression)
}

func TestTerminalStates_AreFinal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := newTestReview(t, s)
	require.NoError(t, s.CompleteReview(ctx, r.ID, models.Result{Score: 100}))

	assert.ErrorIs(t, s.FailReview(ctx, r.ID, models.FailurePersistence, "late"), ErrStatusRegression)
	assert.ErrorIs(t, s.UpdateStatus(ctx, r.ID, models.ReviewStatusAnalyzing), ErrStatusRegression)

	r2 := newTestReview(t, s)
	require.NoError(t, s.FailReview(ctx, r2.ID, models.FailureLaunchError, "no resources"))
	assert.ErrorIs(t, s.CompleteReview(ctx, r2.ID, models.Result{Score: 100}), ErrStatusRegression)
}

func TestListReviews_FilterAndOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r1 := newTestReview(t, s)
	r2 := newTestReview(t, s)
	require.NoError(t, s.UpdateStatus(ctx, r2.ID, models.ReviewStatusCloning))

	all, err := s.ListReviews(ctx, ReviewListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pending, err := s.ListReviews(ctx, ReviewListFilter{Status: models.ReviewStatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, r1.ID, pending[0].ID)

	limited, err := s.ListReviews(ctx, ReviewListFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

// --- Standards ---

func TestStandardCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	std := &models.Standard{
		Name:  "error-handling",
		Scope: "language:go",
		Text:  "Wrap errors with context.",
	}
	require.NoError(t, s.CreateStandard(ctx, std))
	assert.NotEmpty(t, std.ID)
	assert.Equal(t, "1", std.Version)

	got, err := s.GetStandard(ctx, std.ID)
	require.NoError(t, err)
	assert.Equal(t, "error-handling", got.Name)
	assert.Equal(t, "language:go", got.Scope)

	_, err = s.GetStandard(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := s.ListStandards(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestUpsertStandard_UpdatesInPlace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	std := &models.Standard{Name: "naming", Version: "2", Scope: "org", Text: "v1 text"}
	require.NoError(t, s.UpsertStandard(ctx, std))

	again := &models.Standard{Name: "naming", Version: "2", Scope: "language:go", Text: "v2 text"}
	require.NoError(t, s.UpsertStandard(ctx, again))

	list, err := s.ListStandards(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "v2 text", list[0].Text)
	assert.Equal(t, "language:go", list[0].Scope)
}

func TestQueryStandards_ScopesAndOrgDefaults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, std := range []*models.Standard{
		{Name: "go-style", Scope: "language:go", Text: "x"},
		{Name: "python-style", Scope: "language:python", Text: "x"},
		{Name: "gin-routes", Scope: "framework:gin", Text: "x"},
		{Name: "security-baseline", Scope: "org", Text: "x"},
	} {
		require.NoError(t, s.CreateStandard(ctx, std))
	}

	matched, err := s.QueryStandards(ctx, []string{"language:go", "framework:gin"})
	require.NoError(t, err)
	require.Len(t, matched, 3)

	names := []string{matched[0].Name, matched[1].Name, matched[2].Name}
	assert.Contains(t, names, "go-style")
	assert.Contains(t, names, "gin-routes")
	assert.Contains(t, names, "security-baseline")

	// Org defaults apply even with no matching tags
	matched, err = s.QueryStandards(ctx, nil)
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, "security-baseline", matched[0].Name)
}
