package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		name string
		from ReviewStatus
		to   ReviewStatus
		want bool
	}{
		{"pending to cloning", ReviewStatusPending, ReviewStatusCloning, true},
		{"cloning to classifying", ReviewStatusCloning, ReviewStatusClassifying, true},
		{"classifying to resolving", ReviewStatusClassifying, ReviewStatusResolvingStandards, true},
		{"resolving to analyzing", ReviewStatusResolvingStandards, ReviewStatusAnalyzing, true},
		{"analyzing to completed", ReviewStatusAnalyzing, ReviewStatusCompleted, true},
		{"skip ahead is allowed", ReviewStatusPending, ReviewStatusAnalyzing, true},
		{"resolving straight to completed", ReviewStatusResolvingStandards, ReviewStatusCompleted, true},
		{"any state to failed", ReviewStatusPending, ReviewStatusFailed, true},
		{"analyzing to failed", ReviewStatusAnalyzing, ReviewStatusFailed, true},
		{"no regression", ReviewStatusAnalyzing, ReviewStatusCloning, false},
		{"no self transition", ReviewStatusCloning, ReviewStatusCloning, false},
		{"completed is terminal", ReviewStatusCompleted, ReviewStatusFailed, false},
		{"failed is terminal", ReviewStatusFailed, ReviewStatusCompleted, false},
		{"unknown source", ReviewStatus("bogus"), ReviewStatusCloning, false},
		{"unknown target", ReviewStatusPending, ReviewStatus("bogus"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestTerminal(t *testing.T) {
	assert.True(t, ReviewStatusCompleted.Terminal())
	assert.True(t, ReviewStatusFailed.Terminal())
	assert.False(t, ReviewStatusPending.Terminal())
	assert.False(t, ReviewStatusAnalyzing.Terminal())
}

func TestClassificationTags(t *testing.T) {
	c := Classification{
		Languages:  []string{"python", "javascript"},
		Frameworks: []string{"fastapi"},
	}
	assert.Equal(t, []string{"framework:fastapi", "language:python", "language:javascript"}, c.Tags())

	assert.True(t, Classification{}.Unknown())
	assert.Empty(t, Classification{}.Tags())
}

func TestStandardRefSpecificity(t *testing.T) {
	framework := StandardRef{Scope: "framework:fastapi"}
	language := StandardRef{Scope: "language:python"}
	org := StandardRef{Scope: "org"}

	assert.Less(t, framework.Specificity(), language.Specificity())
	assert.Less(t, language.Specificity(), org.Specificity())
}

func TestValidSeverity(t *testing.T) {
	for _, s := range []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo} {
		assert.True(t, ValidSeverity(s))
	}
	assert.False(t, ValidSeverity(Severity("catastrophic")))
	assert.False(t, ValidSeverity(Severity("")))
}
