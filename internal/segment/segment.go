// internal/segment/segment.go
package segment

import (
	"strconv"
	"strings"

	"github.com/unclebandit/mailpress/internal/model"
)

// Matches evaluates one rule against one contact. Unknown fields and
// operators evaluate to false, never to an error. Side-effect free; safe to
// run over large in-memory contact sets.
func Matches(c *model.Contact, r model.SegmentRule) bool {
	switch strings.ToLower(r.Field) {
	case "engagement_score":
		return matchNumber(c.EngagementScore, r)
	case "segment", "segments":
		return matchSegments(c.Segments, r)
	default:
		v, ok := fieldValue(c, r.Field)
		if !ok {
			return false
		}
		return matchString(v, r)
	}
}

// MatchesCriteria applies the campaign-level AND/OR combination, defaulting
// to AND when the match mode is unspecified.
func MatchesCriteria(c *model.Contact, crit *model.SegmentCriteria) bool {
	if crit == nil || len(crit.Rules) == 0 {
		return false
	}
	any := strings.ToLower(crit.Match) == model.MatchAny
	for _, r := range crit.Rules {
		ok := Matches(c, r)
		if any && ok {
			return true
		}
		if !any && !ok {
			return false
		}
	}
	return !any
}

// Filter returns the contacts matching the criteria, preserving input order.
func Filter(contacts []*model.Contact, crit *model.SegmentCriteria) []*model.Contact {
	out := make([]*model.Contact, 0, len(contacts))
	for _, c := range contacts {
		if c != nil && MatchesCriteria(c, crit) {
			out = append(out, c)
		}
	}
	return out
}

func fieldValue(c *model.Contact, field string) (string, bool) {
	switch strings.ToLower(field) {
	case "email":
		return c.Email, true
	case "status":
		return string(c.Status), true
	case "source":
		return c.Source, true
	case "company":
		return c.Company, true
	case "first_name":
		return c.FirstName, true
	case "last_name":
		return c.LastName, true
	}
	return "", false
}

func matchString(v string, r model.SegmentRule) bool {
	v = strings.ToLower(v)
	want := strings.ToLower(r.Value)
	switch r.Op {
	case model.OpEquals:
		return v == want
	case model.OpNotEquals:
		return v != want
	case model.OpContains:
		return want != "" && strings.Contains(v, want)
	case model.OpIn:
		for _, candidate := range r.Values {
			if v == strings.ToLower(candidate) {
				return true
			}
		}
		return false
	}
	return false
}

func matchNumber(v float64, r model.SegmentRule) bool {
	want, err := strconv.ParseFloat(r.Value, 64)
	if err != nil {
		return false
	}
	switch r.Op {
	case model.OpEquals:
		return v == want
	case model.OpNotEquals:
		return v != want
	case model.OpGreaterThan:
		return v > want
	case model.OpLessThan:
		return v < want
	}
	return false
}

func matchSegments(segments []string, r model.SegmentRule) bool {
	has := func(label string) bool {
		for _, s := range segments {
			if strings.EqualFold(s, label) {
				return true
			}
		}
		return false
	}
	switch r.Op {
	case model.OpEquals, model.OpContains:
		return has(r.Value)
	case model.OpNotEquals:
		return !has(r.Value)
	case model.OpIn:
		for _, label := range r.Values {
			if has(label) {
				return true
			}
		}
		return false
	}
	return false
}
