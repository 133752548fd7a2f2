package models

import "time"

// ReviewStatus represents the lifecycle state of a review.
type ReviewStatus string

const (
	ReviewStatusPending            ReviewStatus = "pending"
	ReviewStatusCloning            ReviewStatus = "cloning"
	ReviewStatusClassifying        ReviewStatus = "classifying"
	ReviewStatusResolvingStandards ReviewStatus = "resolving_standards"
	ReviewStatusAnalyzing          ReviewStatus = "analyzing"
	ReviewStatusCompleted          ReviewStatus = "completed"
	ReviewStatusFailed             ReviewStatus = "failed"
)

// statusRank orders statuses for the forward-only transition guard.
var statusRank = map[ReviewStatus]int{
	ReviewStatusPending:            0,
	ReviewStatusCloning:            1,
	ReviewStatusClassifying:        2,
	ReviewStatusResolvingStandards: 3,
	ReviewStatusAnalyzing:          4,
	ReviewStatusCompleted:          5,
	ReviewStatusFailed:             5,
}

// Terminal reports whether the status admits no further transitions.
func (s ReviewStatus) Terminal() bool {
	return s == ReviewStatusCompleted || s == ReviewStatusFailed
}

// CanTransitionTo reports whether a record in status s may move to next.
// Transitions are strictly forward; failed is reachable from every
// non-terminal state.
func (s ReviewStatus) CanTransitionTo(next ReviewStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == ReviewStatusFailed {
		return true
	}
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to > from
}

// FailureKind classifies why a review reached the failed state.
type FailureKind string

const (
	FailureLaunchError       FailureKind = "launch_error"
	FailureIngestionTimeout  FailureKind = "ingestion_timeout"
	FailureIngestionAuth     FailureKind = "ingestion_auth_error"
	FailureIngestionNotFound FailureKind = "ingestion_not_found"
	FailureIngestionNetwork  FailureKind = "ingestion_network_error"
	FailureAnalysisRateLimit FailureKind = "analysis_rate_limited"
	FailureAnalysisAuth      FailureKind = "analysis_auth_error"
	FailureAnalysisParse     FailureKind = "analysis_parse_error"
	FailurePersistence       FailureKind = "persistence_error"
)

// Failure records the terminal error of a failed review.
type Failure struct {
	Kind  FailureKind `json:"kind"`
	Cause string      `json:"cause"`
}

// Result holds the outcome of a completed review.
type Result struct {
	Findings []Finding `json:"findings"`
	Score    float64   `json:"score"` // 0-100, higher is more compliant
}

// Review is the persisted record of one end-to-end repository review.
type Review struct {
	ID             string          `json:"id"`
	RepositoryURL  string          `json:"repository_url"`
	Revision       string          `json:"revision,omitempty"`
	Requester      string          `json:"requester,omitempty"`
	Status         ReviewStatus    `json:"status"`
	Classification *Classification `json:"classification,omitempty"`
	Standards      []StandardRef   `json:"standards,omitempty"`
	Result         *Result         `json:"result,omitempty"`
	Failure        *Failure        `json:"failure,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// ReviewRequest is the validated input that starts a review.
type ReviewRequest struct {
	RepositoryURL string `json:"repository_url"`
	Revision      string `json:"revision,omitempty"`
	Requester     string `json:"requester,omitempty"`
}
