// Package onboarding tracks a student's progress through the admission
// milestones. Progress is inferred from what the student says in chat:
// a message such as "my fee is paid" marks fee payment complete. Flags
// only ever move from false to true through chat; clearing a flag is a
// separate administrative operation ([Tracker.Reset]).
package onboarding

import (
	"encoding/json"
	"fmt"
)

// Milestone is one discrete onboarding step.
type Milestone string

// The onboarding milestones, in canonical order.
const (
	DocumentVerification Milestone = "document_verification"
	FeePayment           Milestone = "fee_payment"
	CourseRegistration   Milestone = "course_registration"
	HostelAllocation     Milestone = "hostel_allocation"
	LMSOnboarding        Milestone = "lms_onboarding"
)

// Milestones returns every milestone in canonical order.
func Milestones() []Milestone {
	return []Milestone{
		DocumentVerification,
		FeePayment,
		CourseRegistration,
		HostelAllocation,
		LMSOnboarding,
	}
}

// Valid reports whether m is a known milestone.
func (m Milestone) Valid() bool {
	for _, known := range Milestones() {
		if m == known {
			return true
		}
	}
	return false
}

// ParseMilestone validates a milestone name.
func ParseMilestone(s string) (Milestone, error) {
	m := Milestone(s)
	if !m.Valid() {
		return "", fmt.Errorf("unknown milestone %q", s)
	}
	return m, nil
}

// Status maps every milestone to its completion flag.
type Status map[Milestone]bool

// DefaultStatus returns a status with every milestone pending.
func DefaultStatus() Status {
	s := make(Status, len(Milestones()))
	for _, m := range Milestones() {
		s[m] = false
	}
	return s
}

// Clone returns an independent copy normalized to the known milestones:
// missing keys become false and unknown keys are dropped.
func (s Status) Clone() Status {
	out := DefaultStatus()
	for _, m := range Milestones() {
		out[m] = s[m]
	}
	return out
}

// Complete reports whether every milestone is done.
func (s Status) Complete() bool {
	for _, m := range Milestones() {
		if !s[m] {
			return false
		}
	}
	return true
}

// Done returns the completed milestones, in canonical order.
func (s Status) Done() []Milestone {
	var out []Milestone
	for _, m := range Milestones() {
		if s[m] {
			out = append(out, m)
		}
	}
	return out
}

// Merge returns a copy of s with every milestone done in other also done.
func (s Status) Merge(other Status) Status {
	out := s.Clone()
	for _, m := range other.Done() {
		out[m] = true
	}
	return out
}

// Pending returns the milestones not yet done, in canonical order.
func (s Status) Pending() []Milestone {
	var out []Milestone
	for _, m := range Milestones() {
		if !s[m] {
			out = append(out, m)
		}
	}
	return out
}

// MarshalStatus encodes a status as the JSON document stored by the
// persistent backends.
func MarshalStatus(s Status) ([]byte, error) {
	return json.Marshal(s.Clone())
}

// UnmarshalStatus decodes a stored status document. Unknown keys are
// dropped and missing keys default to false.
func UnmarshalStatus(data []byte) (Status, error) {
	var raw map[Milestone]bool
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return Status(raw).Clone(), nil
}
