package onboarding

import "strings"

// Rule infers one milestone from a message. The message (lowercased)
// must contain every AllOf substring and, when AnyOf is non-empty, at
// least one AnyOf substring.
type Rule struct {
	Milestone Milestone
	AllOf     []string
	AnyOf     []string
}

// Match reports whether the lowercased message satisfies the rule.
func (r Rule) Match(lower string) bool {
	for _, s := range r.AllOf {
		if !strings.Contains(lower, s) {
			return false
		}
	}
	if len(r.AnyOf) == 0 {
		return true
	}
	for _, s := range r.AnyOf {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// Rules is the default rule table. Adding a milestone means adding a row.
var Rules = []Rule{
	{Milestone: DocumentVerification, AllOf: []string{"document"}, AnyOf: []string{"complete", "verified"}},
	{Milestone: FeePayment, AllOf: []string{"fee"}, AnyOf: []string{"paid", "done"}},
	{Milestone: CourseRegistration, AllOf: []string{"register", "course"}},
	{Milestone: HostelAllocation, AllOf: []string{"hostel"}, AnyOf: []string{"allot", "allocated"}},
	{Milestone: LMSOnboarding, AllOf: []string{"lms"}, AnyOf: []string{"setup", "set up"}},
}

// Classifier evaluates a rule table against chat messages.
type Classifier struct {
	rules []Rule
}

// NewClassifier returns a classifier over rules. A nil table uses [Rules].
func NewClassifier(rules []Rule) *Classifier {
	if rules == nil {
		rules = Rules
	}
	return &Classifier{rules: rules}
}

// Classify returns the milestones the message evidences, in table order
// without duplicates. Rules are independent: one message can satisfy
// several.
func (c *Classifier) Classify(message string) []Milestone {
	lower := strings.ToLower(message)
	if strings.TrimSpace(lower) == "" {
		return nil
	}

	var out []Milestone
	seen := make(map[Milestone]bool)
	for _, r := range c.rules {
		if seen[r.Milestone] || !r.Match(lower) {
			continue
		}
		seen[r.Milestone] = true
		out = append(out, r.Milestone)
	}
	return out
}

// Classify runs the default rule table.
func Classify(message string) []Milestone {
	return NewClassifier(nil).Classify(message)
}
