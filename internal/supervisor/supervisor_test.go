package supervisor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/reviewd/internal/models"
	"github.com/joescharf/reviewd/internal/store"
)

type fakeLauncher struct {
	launched []*models.Review
	err      error
}

func (f *fakeLauncher) Launch(rev *models.Review) error {
	f.launched = append(f.launched, rev)
	return f.err
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSubmit_PendingImmediately(t *testing.T) {
	s := newTestStore(t)
	launcher := &fakeLauncher{}
	sup := New(s, launcher)

	rev, err := sup.Submit(context.Background(), models.ReviewRequest{
		RepositoryURL: "https://github.com/example/app",
		Revision:      "main",
		Requester:     "alice",
	})
	require.NoError(t, err)
	require.NotNil(t, rev)
	assert.NotEmpty(t, rev.ID)
	assert.Equal(t, models.ReviewStatusPending, rev.Status)

	// The id resolves before the pipeline does anything
	got, err := s.GetReview(context.Background(), rev.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusPending, got.Status)
	assert.Equal(t, "main", got.Revision)
	assert.Equal(t, "alice", got.Requester)

	require.Len(t, launcher.launched, 1)
	assert.Equal(t, rev.ID, launcher.launched[0].ID)
}

func TestSubmit_RequiresRepositoryURL(t *testing.T) {
	s := newTestStore(t)
	launcher := &fakeLauncher{}
	sup := New(s, launcher)

	for _, url := range []string{"", "   "} {
		_, err := sup.Submit(context.Background(), models.ReviewRequest{RepositoryURL: url})
		assert.Error(t, err)
	}
	assert.Empty(t, launcher.launched, "nothing launched for invalid requests")

	reviews, err := s.ListReviews(context.Background(), store.ReviewListFilter{})
	require.NoError(t, err)
	assert.Empty(t, reviews, "nothing persisted for invalid requests")
}

func TestExecLauncher_Args(t *testing.T) {
	rev := &models.Review{ID: "01ABC", RepositoryURL: "https://github.com/example/app"}

	l := &ExecLauncher{}
	assert.Equal(t,
		[]string{"review", "exec", "01ABC", "--url", "https://github.com/example/app"},
		l.args(rev))

	rev.Revision = "main"
	assert.Equal(t,
		[]string{"review", "exec", "01ABC", "--url", "https://github.com/example/app", "--rev", "main"},
		l.args(rev))
}

func TestExecLauncher_Args_ForwardsConfigFile(t *testing.T) {
	rev := &models.Review{ID: "01ABC", RepositoryURL: "https://github.com/example/app"}

	l := &ExecLauncher{ConfigFile: "/etc/reviewd.yaml"}
	args := l.args(rev)

	// The child resolves its database from the same config as the
	// serving side, even when --config points away from the default.
	require.Len(t, args, 7)
	assert.Equal(t, "--config", args[5])
	assert.Equal(t, "/etc/reviewd.yaml", args[6])
}

func TestSubmit_LaunchFailureRecorded(t *testing.T) {
	s := newTestStore(t)
	launcher := &fakeLauncher{err: errors.New("fork: resource temporarily unavailable")}
	sup := New(s, launcher)

	rev, err := sup.Submit(context.Background(), models.ReviewRequest{
		RepositoryURL: "https://github.com/example/app",
	})
	require.Error(t, err)
	require.NotNil(t, rev, "the failed record is still returned")
	assert.Equal(t, models.ReviewStatusFailed, rev.Status)

	got, gerr := s.GetReview(context.Background(), rev.ID)
	require.NoError(t, gerr)
	assert.Equal(t, models.ReviewStatusFailed, got.Status)
	require.NotNil(t, got.Failure)
	assert.Equal(t, models.FailureLaunchError, got.Failure.Kind)
	assert.Contains(t, got.Failure.Cause, "resource temporarily unavailable")
}

// cancelingLauncher cancels the request context before failing, the
// shape of a caller disconnecting mid-submit.
type cancelingLauncher struct {
	cancel context.CancelFunc
}

func (c *cancelingLauncher) Launch(rev *models.Review) error {
	c.cancel()
	return errors.New("exec format error")
}

func TestSubmit_LaunchFailureRecordedAfterCallerGone(t *testing.T) {
	s := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	sup := New(s, &cancelingLauncher{cancel: cancel})

	rev, err := sup.Submit(ctx, models.ReviewRequest{
		RepositoryURL: "https://github.com/example/app",
	})
	require.Error(t, err)
	require.NotNil(t, rev)

	// The terminal write must not ride the expired request context.
	got, gerr := s.GetReview(context.Background(), rev.ID)
	require.NoError(t, gerr)
	assert.Equal(t, models.ReviewStatusFailed, got.Status)
	require.NotNil(t, got.Failure)
	assert.Equal(t, models.FailureLaunchError, got.Failure.Kind)
}
