// internal/model/segment.go
package model

// Segment rule operators. Comparisons against engagement_score parse the rule
// value as a number; everything else compares as strings.
const (
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpContains    = "contains"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
	OpIn          = "in"
)

// Match modes for combining rules at the campaign level.
const (
	MatchAll = "all" // AND, the default
	MatchAny = "any" // OR
)

// SegmentRule addresses one contact field with a comparison operator.
type SegmentRule struct {
	Field  string   `json:"field"`
	Op     string   `json:"op"`
	Value  string   `json:"value,omitempty"`
	Values []string `json:"values,omitempty"`
}

// SegmentCriteria is a campaign-level rule set, stored as JSON on the
// campaign row.
type SegmentCriteria struct {
	Match string        `json:"match,omitempty"`
	Rules []SegmentRule `json:"rules"`
}
