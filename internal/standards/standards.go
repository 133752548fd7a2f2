// Package standards resolves the rule sets applicable to a repository
// classification. Absence of matching standards is not an error; callers
// decide whether to proceed with an empty set.
package standards

import (
	"context"
	"fmt"
	"sort"

	"github.com/joescharf/reviewd/internal/models"
	"github.com/joescharf/reviewd/internal/store"
)

// Resolver maps a classification to an ordered, deduplicated set of
// applicable standards.
type Resolver struct {
	store store.Store
}

// NewResolver returns a Resolver backed by the given store.
func NewResolver(s store.Store) *Resolver {
	return &Resolver{store: s}
}

// Resolve queries the standards store for rule sets matching the
// classification's scope tags plus organization-wide defaults,
// deduplicates by standard identity, and orders by scope specificity
// (framework-specific, then language-general, then org-wide), name
// breaking ties. Repeated resolution of the same classification yields
// the same ordered set.
func (r *Resolver) Resolve(ctx context.Context, c models.Classification) ([]models.StandardRef, error) {
	matched, err := r.store.QueryStandards(ctx, c.Tags())
	if err != nil {
		return nil, fmt.Errorf("query standards: %w", err)
	}

	seen := map[string]bool{}
	var unique []*models.Standard
	for _, std := range matched {
		if seen[std.ID] {
			continue
		}
		seen[std.ID] = true
		unique = append(unique, std)
	}

	sort.Slice(unique, func(i, j int) bool {
		si, sj := unique[i].Ref().Specificity(), unique[j].Ref().Specificity()
		if si != sj {
			return si < sj
		}
		return unique[i].Name < unique[j].Name
	})

	refs := make([]models.StandardRef, 0, len(unique))
	for _, std := range unique {
		refs = append(refs, std.Ref())
	}
	return refs, nil
}

// Load fetches the full standards for the given refs, preserving order.
func (r *Resolver) Load(ctx context.Context, refs []models.StandardRef) ([]*models.Standard, error) {
	standards := make([]*models.Standard, 0, len(refs))
	for _, ref := range refs {
		std, err := r.store.GetStandard(ctx, ref.ID)
		if err != nil {
			return nil, fmt.Errorf("load standard %s: %w", ref.ID, err)
		}
		standards = append(standards, std)
	}
	return standards, nil
}
