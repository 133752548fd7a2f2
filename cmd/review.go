package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/reviewd/internal/analyzer"
	"github.com/joescharf/reviewd/internal/ingest"
	"github.com/joescharf/reviewd/internal/llm"
	"github.com/joescharf/reviewd/internal/models"
	"github.com/joescharf/reviewd/internal/output"
	"github.com/joescharf/reviewd/internal/pipeline"
	"github.com/joescharf/reviewd/internal/standards"
	"github.com/joescharf/reviewd/internal/store"
	"github.com/joescharf/reviewd/internal/supervisor"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Submit and inspect code reviews",
}

var reviewSubmitCmd = &cobra.Command{
	Use:   "submit <repository-url>",
	Short: "Submit a repository for review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rev, _ := cmd.Flags().GetString("rev")
		requester, _ := cmd.Flags().GetString("requester")
		return reviewSubmitRun(args[0], rev, requester)
	},
}

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reviews",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		return reviewListRun(status, limit)
	},
}

var reviewShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one review, including findings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewShowRun(args[0])
	},
}

// reviewExecCmd is the isolated execution context: the supervisor
// re-execs the binary with this subcommand so each pipeline run gets its
// own process and its own store connection.
var reviewExecCmd = &cobra.Command{
	Use:    "exec <id>",
	Hidden: true,
	Args:   cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		url, _ := cmd.Flags().GetString("url")
		rev, _ := cmd.Flags().GetString("rev")
		return reviewExecRun(args[0], url, rev)
	},
}

func init() {
	rootCmd.AddCommand(reviewCmd)
	reviewCmd.AddCommand(reviewSubmitCmd, reviewListCmd, reviewShowCmd, reviewExecCmd)

	reviewSubmitCmd.Flags().String("rev", "", "Branch or tag to review (default: default branch)")
	reviewSubmitCmd.Flags().String("requester", "", "Requester recorded on the review")

	reviewListCmd.Flags().String("status", "", "Filter by status")
	reviewListCmd.Flags().Int("limit", 20, "Maximum reviews to list")

	reviewExecCmd.Flags().String("url", "", "Repository URL")
	reviewExecCmd.Flags().String("rev", "", "Branch or tag")
	_ = reviewExecCmd.MarkFlagRequired("url")
}

func reviewSubmitRun(url, rev, requester string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	sup := supervisor.New(s, &supervisor.ExecLauncher{ConfigFile: viper.ConfigFileUsed()})
	review, err := sup.Submit(context.Background(), models.ReviewRequest{
		RepositoryURL: url,
		Revision:      rev,
		Requester:     requester,
	})
	if err != nil {
		return err
	}

	ui.Success("Review %s submitted", review.ID)
	ui.Info("Track it with: reviewd review show %s", review.ID)
	return nil
}

func reviewListRun(status string, limit int) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	reviews, err := s.ListReviews(context.Background(), store.ReviewListFilter{
		Status: models.ReviewStatus(status),
		Limit:  limit,
	})
	if err != nil {
		return err
	}

	if len(reviews) == 0 {
		ui.Info("No reviews found.")
		return nil
	}

	table := ui.Table([]string{"ID", "REPOSITORY", "STATUS", "SCORE", "CREATED"})
	for _, r := range reviews {
		score := "-"
		if r.Result != nil {
			score = output.ScoreColor(r.Result.Score)
		}
		_ = table.Append([]string{
			shortID(r.ID),
			r.RepositoryURL,
			output.StatusColor(string(r.Status)),
			score,
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	return table.Render()
}

func reviewShowRun(id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	r, err := s.GetReview(context.Background(), id)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "\n%s %s\n", output.Cyan(r.ID), output.StatusColor(string(r.Status)))
	fmt.Fprintf(ui.Out, "Repository: %s", r.RepositoryURL)
	if r.Revision != "" {
		fmt.Fprintf(ui.Out, " @ %s", r.Revision)
	}
	fmt.Fprintln(ui.Out)
	if r.Classification != nil {
		fmt.Fprintf(ui.Out, "Languages:  %v\n", r.Classification.Languages)
		if len(r.Classification.Frameworks) > 0 {
			fmt.Fprintf(ui.Out, "Frameworks: %v\n", r.Classification.Frameworks)
		}
		fmt.Fprintf(ui.Out, "Size:       %s\n", r.Classification.Size)
	}
	if len(r.Standards) > 0 {
		fmt.Fprintf(ui.Out, "Standards:  %d applicable\n", len(r.Standards))
	}

	switch {
	case r.Failure != nil:
		ui.Error("Failed (%s): %s", r.Failure.Kind, r.Failure.Cause)
	case r.Result != nil:
		fmt.Fprintf(ui.Out, "Score:      %s/100\n", output.ScoreColor(r.Result.Score))
		if len(r.Result.Findings) == 0 {
			ui.Success("No findings.")
			return nil
		}
		fmt.Fprintln(ui.Out)
		table := ui.Table([]string{"SEVERITY", "LOCATION", "STANDARD", "DESCRIPTION"})
		for _, f := range r.Result.Findings {
			loc := f.Path
			if f.StartLine > 0 {
				loc = fmt.Sprintf("%s:%d", f.Path, f.StartLine)
			}
			_ = table.Append([]string{
				output.SeverityColor(string(f.Severity)),
				loc,
				f.Standard.ID,
				f.Description,
			})
		}
		return table.Render()
	default:
		ui.Info("Review in progress.")
	}
	return nil
}

// reviewExecRun is the pipeline process entry point. It opens its own
// dedicated store connection, never the serving-side one, and releases
// it on every exit path.
func reviewExecRun(id, url, rev string) error {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	s, err := store.NewSQLiteStore(viper.GetString("db_path"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = s.Close() }()

	timeout, err := time.ParseDuration(viper.GetString("ingest.timeout"))
	if err != nil || timeout <= 0 {
		timeout = 5 * time.Minute
	}

	ing := ingest.NewIngestor(viper.GetString("data_dir"), timeout)
	ing.HTTPProxy = viper.GetString("ingest.git_http_proxy")

	evaluator := llm.NewClient(
		viper.GetString("anthropic.api_key"),
		viper.GetString("anthropic.model"),
		viper.GetInt64("anthropic.max_tokens"),
	)
	an := analyzer.New(evaluator,
		viper.GetInt("analyzer.max_attempts"),
		viper.GetInt("analyzer.max_excerpt_bytes"),
	)

	runner := pipeline.NewRunner(s, ing, standards.NewResolver(s), an, log)
	return runner.Run(context.Background(), &models.Review{
		ID:            id,
		RepositoryURL: url,
		Revision:      rev,
	})
}

// shortID truncates a ULID for display.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
