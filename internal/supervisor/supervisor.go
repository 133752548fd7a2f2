// Package supervisor accepts review requests on the serving side. Each
// accepted review runs in its own OS process (a re-exec of the current
// binary), so a slow clone or analysis can never block request handling,
// and the two sides share no mutable memory: arguments pass by value at
// launch, the exit status comes back at termination, and everything else
// goes through the database.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/joescharf/reviewd/internal/models"
	"github.com/joescharf/reviewd/internal/store"
)

// Launcher starts the isolated execution context for a review.
type Launcher interface {
	Launch(rev *models.Review) error
}

// ExecLauncher launches `reviewd review exec <id>` as a detached child
// process. The child opens its own store connection; the launcher only
// reaps it.
type ExecLauncher struct {
	// ConfigFile is forwarded to the child as --config so both sides
	// resolve the same database and data directory. Empty means the
	// child uses the default config location.
	ConfigFile string

	Log *slog.Logger
}

// args builds the child argv for the given review.
func (l *ExecLauncher) args(rev *models.Review) []string {
	args := []string{"review", "exec", rev.ID, "--url", rev.RepositoryURL}
	if rev.Revision != "" {
		args = append(args, "--rev", rev.Revision)
	}
	if l.ConfigFile != "" {
		args = append(args, "--config", l.ConfigFile)
	}
	return args
}

// Launch starts the pipeline process for the given review.
func (l *ExecLauncher) Launch(rev *models.Review) error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}

	cmd := exec.Command(self, l.args(rev)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start pipeline process: %w", err)
	}

	log := l.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("launched pipeline process", "review_id", rev.ID, "pid", cmd.Process.Pid)

	// Reap the child; its outcome is already recorded in the store.
	go func() {
		if err := cmd.Wait(); err != nil {
			log.Warn("pipeline process exited with error", "review_id", rev.ID, "error", err)
		}
	}()
	return nil
}

// Supervisor validates and accepts review requests.
type Supervisor struct {
	store    store.Store
	launcher Launcher
}

// New creates a Supervisor over the serving-side store.
func New(s store.Store, l Launcher) *Supervisor {
	return &Supervisor{store: s, launcher: l}
}

// Submit writes the initial pending record synchronously, so the review
// id is immediately resolvable, then launches the isolated pipeline
// process and returns without waiting for it. A launch failure is
// recorded as a terminal failed review and also returned to the caller;
// in-pipeline failures surface only through the record.
func (s *Supervisor) Submit(ctx context.Context, req models.ReviewRequest) (*models.Review, error) {
	if strings.TrimSpace(req.RepositoryURL) == "" {
		return nil, fmt.Errorf("repository_url is required")
	}

	rev := &models.Review{
		RepositoryURL: req.RepositoryURL,
		Revision:      req.Revision,
		Requester:     req.Requester,
		Status:        models.ReviewStatusPending,
	}
	if err := s.store.CreateReview(ctx, rev); err != nil {
		return nil, fmt.Errorf("create review: %w", err)
	}

	if err := s.launcher.Launch(rev); err != nil {
		// Best effort: the record must not stay pending forever. Fresh
		// context: the request may already be gone, the terminal write
		// must still land.
		if ferr := s.store.FailReview(context.Background(), rev.ID, models.FailureLaunchError, err.Error()); ferr == nil {
			rev.Status = models.ReviewStatusFailed
			rev.Failure = &models.Failure{Kind: models.FailureLaunchError, Cause: err.Error()}
		}
		return rev, fmt.Errorf("launch review %s: %w", rev.ID, err)
	}
	return rev, nil
}
