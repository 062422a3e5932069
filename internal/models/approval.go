package models

import "time"

// Approval decision constants. A level starts UNDECIDED and settles exactly
// once; the first recorded decision is final.
const (
	DecisionUndecided = "UNDECIDED"
	DecisionApproved  = "APPROVED"
	DecisionRejected  = "REJECTED"
)

// Approver levels. Level 2 may only decide after level 1 has approved.
const (
	LevelOne = 1
	LevelTwo = 2
)

// Approval records one reviewer's decision at one level of a request.
// At most one row exists per (request, level).
type Approval struct {
	ID         string     `json:"id"`
	RequestID  string     `json:"request_id"`
	Level      int        `json:"level"` // 1 or 2
	ApproverID string     `json:"approver_id"`
	Decision   string     `json:"decision"` // UNDECIDED, APPROVED, REJECTED
	Comments   string     `json:"comments"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
}

// IsDecided reports whether this level has settled.
func (a *Approval) IsDecided() bool {
	return a.Decision != DecisionUndecided
}

// ValidLevel reports whether l is a recognized approver level.
func ValidLevel(l int) bool {
	return l == LevelOne || l == LevelTwo
}

// ValidDecision reports whether d is a submittable decision. UNDECIDED is a
// stored state, not something a reviewer can submit.
func ValidDecision(d string) bool {
	return d == DecisionApproved || d == DecisionRejected
}
