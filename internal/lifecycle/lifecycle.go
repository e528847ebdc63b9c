// Package lifecycle implements the claim status state machine.
//
// The transition table is the single source of truth for how a claim's
// status may advance. Transitions are pure: they never touch storage and
// return a new claim snapshot, leaving serialization of concurrent
// requests to the persistence layer's expected-status check.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// transitions lists the allowed edges. The any-state→rejected shortcut is
// handled separately in CanTransition so it stays blocked from terminal
// states.
var transitions = map[domain.ClaimStatus][]domain.ClaimStatus{
	domain.StatusDraft:       {domain.StatusSubmitted},
	domain.StatusSubmitted:   {domain.StatusUnderReview, domain.StatusApproved, domain.StatusRejected},
	domain.StatusUnderReview: {domain.StatusApproved, domain.StatusRejected},
	domain.StatusApproved:    {domain.StatusPaid},
}

// CanTransition reports whether the edge from → to appears in the table.
func CanTransition(from, to domain.ClaimStatus) bool {
	if from.IsTerminal() {
		return false
	}
	// Fraud-flagging shortcut: any non-terminal state may reject.
	if to == domain.StatusRejected {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Options carries the optional administrator inputs of a transition.
type Options struct {
	AdminNotes      string
	RejectionReason string
}

// Transition applies a status change to a claim snapshot.
//
// expected is the status the caller believes the claim is in; a mismatch
// fails with ErrConcurrentModification so two simultaneous administrator
// actions cannot both win. The returned claim is a copy with Status,
// UpdatedAt and, for approved→paid, DisbursedAt re-stamped. The input
// claim is never mutated.
func Transition(claim *domain.Claim, expected, target domain.ClaimStatus, opts Options) (*domain.Claim, error) {
	if claim == nil {
		return nil, fmt.Errorf("%w: claim is required", domain.ErrValidation)
	}

	if claim.Status != expected {
		return nil, fmt.Errorf("%w: expected status %s but claim is %s",
			domain.ErrConcurrentModification, expected, claim.Status)
	}

	if claim.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s is terminal", domain.ErrInvalidTransition, claim.Status)
	}

	if !CanTransition(claim.Status, target) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, claim.Status, target)
	}

	if claim.Status == domain.StatusDraft && target == domain.StatusSubmitted && len(claim.Documents) == 0 {
		return nil, fmt.Errorf("%w: at least one document must be attached before submitting",
			domain.ErrPrecondition)
	}

	now := time.Now().UTC()

	next := *claim
	next.Status = target
	next.UpdatedAt = now

	if opts.AdminNotes != "" {
		next.AdminNotes = opts.AdminNotes
	}
	if target == domain.StatusRejected && opts.RejectionReason != "" {
		next.RejectionReason = opts.RejectionReason
	}
	if target == domain.StatusPaid {
		disbursed := now
		next.DisbursedAt = &disbursed
	}

	return &next, nil
}

// AllStatuses returns every status in the enumeration. Used by tests to
// enumerate the full (state, target) product.
func AllStatuses() []domain.ClaimStatus {
	return []domain.ClaimStatus{
		domain.StatusDraft,
		domain.StatusSubmitted,
		domain.StatusUnderReview,
		domain.StatusApproved,
		domain.StatusRejected,
		domain.StatusPaid,
	}
}
