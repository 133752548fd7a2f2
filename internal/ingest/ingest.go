// Package ingest materializes a repository for review. It performs a
// shallow, read-only checkout into a private per-review directory with a
// hard wall-clock timeout, classifies checkout failures into stable
// failure kinds, and guarantees cleanup of the working directory.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/joescharf/reviewd/internal/models"
)

// Error is a typed ingestion failure carrying its failure kind.
type Error struct {
	Kind models.FailureKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Checkout is a materialized repository. Cleanup must be called once the
// later stages are done reading it, on success and failure alike.
type Checkout struct {
	Path string // repository root

	workDir string
}

// Cleanup removes the per-review working directory.
func (c *Checkout) Cleanup() {
	if c.workDir != "" {
		_ = os.RemoveAll(c.workDir)
	}
}

// Ingestor clones repositories via the git CLI.
type Ingestor struct {
	DataDir   string        // parent for per-review working directories
	Timeout   time.Duration // hard wall-clock limit per checkout
	HTTPProxy string        // optional egress proxy for git
}

// NewIngestor returns an Ingestor with the given working area and timeout.
func NewIngestor(dataDir string, timeout time.Duration) *Ingestor {
	return &Ingestor{DataDir: dataDir, Timeout: timeout}
}

// Ingest clones the repository at url (optionally at revision rev) into a
// private directory keyed by reviewID. The returned Checkout must be
// cleaned up by the caller regardless of which later stage fails.
func (g *Ingestor) Ingest(ctx context.Context, reviewID, url, rev string) (*Checkout, error) {
	if err := os.MkdirAll(g.DataDir, 0755); err != nil {
		return nil, &Error{Kind: models.FailureIngestionNetwork, Err: fmt.Errorf("create data dir: %w", err)}
	}

	workDir, err := os.MkdirTemp(g.DataDir, "review-"+reviewID+"-")
	if err != nil {
		return nil, &Error{Kind: models.FailureIngestionNetwork, Err: fmt.Errorf("create working dir: %w", err)}
	}
	co := &Checkout{Path: filepath.Join(workDir, "repo"), workDir: workDir}

	ctx, cancel := context.WithTimeout(ctx, g.Timeout)
	defer cancel()

	args := []string{"clone", "--depth", "1", "--single-branch"}
	if rev != "" {
		args = append(args, "--branch", rev)
	}
	args = append(args, url, co.Path)

	if err := g.git(ctx, args...); err != nil {
		co.Cleanup()
		return nil, err
	}
	return co, nil
}

// git runs one git command with the ingestor's proxy environment and
// classifies any failure.
func (g *Ingestor) git(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	if g.HTTPProxy != "" {
		cmd.Env = append(cmd.Env, "https_proxy="+g.HTTPProxy, "http_proxy="+g.HTTPProxy)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctx.Err() == context.DeadlineExceeded {
		return &Error{Kind: models.FailureIngestionTimeout, Err: fmt.Errorf("git %s: %w", args[0], context.DeadlineExceeded)}
	}
	return &Error{
		Kind: ClassifyGitFailure(stderr.String()),
		Err:  fmt.Errorf("git %s: %s", args[0], firstLine(stderr.String())),
	}
}

// ClassifyGitFailure maps git stderr output to a stable failure kind.
// Anything unrecognized is treated as a network error, the retriable
// guidance for callers.
func ClassifyGitFailure(stderr string) models.FailureKind {
	msg := strings.ToLower(stderr)
	switch {
	case strings.Contains(msg, "authentication failed"),
		strings.Contains(msg, "could not read username"),
		strings.Contains(msg, "could not read password"),
		strings.Contains(msg, "permission denied"),
		strings.Contains(msg, "403"):
		return models.FailureIngestionAuth
	case strings.Contains(msg, "repository not found"),
		strings.Contains(msg, "does not exist"),
		strings.Contains(msg, "not found"),
		strings.Contains(msg, "remote branch"), // --branch rev did not match
		strings.Contains(msg, "404"):
		return models.FailureIngestionNotFound
	default:
		return models.FailureIngestionNetwork
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		s = "unknown git error"
	}
	return s
}

// FailureKindOf extracts the failure kind from an ingestion error,
// falling back to ingestion_network_error for unclassified failures.
func FailureKindOf(err error) models.FailureKind {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return models.FailureIngestionNetwork
}
