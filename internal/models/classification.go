package models

// SizeClass buckets a repository by file count.
type SizeClass string

const (
	SizeSmall  SizeClass = "small"
	SizeMedium SizeClass = "medium"
	SizeLarge  SizeClass = "large"
)

// Classification is the inferred technology profile of a repository.
// Immutable once computed; languages and frameworks are in descending
// order of prevalence so repeated classification compares equal.
type Classification struct {
	Languages  []string  `json:"languages"`
	Frameworks []string  `json:"frameworks"`
	Size       SizeClass `json:"size"`
}

// Unknown reports whether no language could be inferred.
func (c Classification) Unknown() bool {
	return len(c.Languages) == 0
}

// Tags returns the scope tags this classification matches when
// resolving standards: framework:<f> and language:<l> for each entry.
func (c Classification) Tags() []string {
	tags := make([]string, 0, len(c.Frameworks)+len(c.Languages))
	for _, f := range c.Frameworks {
		tags = append(tags, "framework:"+f)
	}
	for _, l := range c.Languages {
		tags = append(tags, "language:"+l)
	}
	return tags
}
