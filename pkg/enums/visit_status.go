package enums

import "fmt"

// VisitStatus tracks the review lifecycle of a visit card.
type VisitStatus string

const (
	VisitStatusDraft         VisitStatus = "Draft"
	VisitStatusPendingReview VisitStatus = "PendingReview"
	VisitStatusApproved      VisitStatus = "Approved"
	VisitStatusRejected      VisitStatus = "Rejected"
)

var validVisitStatuses = []VisitStatus{
	VisitStatusDraft,
	VisitStatusPendingReview,
	VisitStatusApproved,
	VisitStatusRejected,
}

// String implements fmt.Stringer.
func (v VisitStatus) String() string {
	return string(v)
}

// IsValid reports whether the value is a known VisitStatus.
func (v VisitStatus) IsValid() bool {
	for _, candidate := range validVisitStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status closes the review.
func (v VisitStatus) IsTerminal() bool {
	return v == VisitStatusApproved || v == VisitStatusRejected
}

// CanTransition describes the lifecycle: Draft and PendingReview move freely
// between each other and into review outcomes; terminal states never move.
// The repository does not enforce it.
func (v VisitStatus) CanTransition(to VisitStatus) bool {
	if !v.IsValid() || !to.IsValid() || v.IsTerminal() {
		return false
	}
	switch to {
	case VisitStatusDraft, VisitStatusPendingReview:
		return true
	default:
		return v == VisitStatusPendingReview
	}
}

// ParseVisitStatus converts raw input into a VisitStatus.
func ParseVisitStatus(value string) (VisitStatus, error) {
	for _, candidate := range validVisitStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid visit status %q", value)
}
