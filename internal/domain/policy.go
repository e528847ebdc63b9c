package domain

import (
	"fmt"
	"strings"
)

// Policy is a read-only catalog record consumed by the premium scorer and
// the recommendation ranker.
type Policy struct {
	ID         string   `json:"id"`
	PolicyType string   `json:"policyType"`
	Title      string   `json:"title"`
	Provider   Provider `json:"provider"`

	// Premium is the annual base premium.
	Premium              float64 `json:"premium"`
	Deductible           float64 `json:"deductible"`
	ClaimSettlementRatio float64 `json:"claimSettlementRatio"` // 0-100

	// Coverage maps a named benefit to an amount or descriptive text.
	Coverage map[string]any `json:"coverage,omitempty"`

	TermMonths int `json:"termMonths"`
}

// Provider identifies the insurer backing a policy.
type Provider struct {
	Name   string  `json:"name"`
	Rating float64 `json:"rating"`
}

// CoverageAmount returns the largest numeric benefit in the coverage map.
// Text-valued benefits are ignored.
func (p *Policy) CoverageAmount() float64 {
	var max float64
	for _, v := range p.Coverage {
		var amt float64
		switch n := v.(type) {
		case float64:
			amt = n
		case int:
			amt = float64(n)
		case int64:
			amt = float64(n)
		default:
			continue
		}
		if amt > max {
			max = amt
		}
	}
	return max
}

// RiskBracket is the customer's externally derived risk tier.
type RiskBracket string

const (
	RiskLow    RiskBracket = "low"
	RiskNormal RiskBracket = "normal"
	RiskHigh   RiskBracket = "high"
)

// Priority is the customer's stated ranking preference.
type Priority string

const (
	PriorityCheap    Priority = "cheap"
	PriorityBalanced Priority = "balanced"
	PriorityCoverage Priority = "coverage"
)

// BudgetTier is a coarse budget band used when no explicit maximum is given.
type BudgetTier string

const (
	BudgetLow    BudgetTier = "low"
	BudgetMedium BudgetTier = "medium"
	BudgetHigh   BudgetTier = "high"
)

// PreferenceProfile captures a customer's stated budget, risk and priority
// inputs. Owned by the caller; the engine only reads it.
type PreferenceProfile struct {
	InsuranceType string     `json:"insuranceType"`
	BudgetTier    BudgetTier `json:"budgetTier,omitempty"`

	// BudgetMax, when positive, overrides the tier threshold.
	BudgetMax float64 `json:"budgetMax,omitempty"`

	Priority              Priority    `json:"priority"`
	Age                   int         `json:"age"`
	DesiredCoverageAmount float64     `json:"desiredCoverageAmount,omitempty"`
	RiskBracket           RiskBracket `json:"riskBracket"`
}

// ScoredPolicy pairs a catalog policy with its match score and rationale.
type ScoredPolicy struct {
	Policy Policy  `json:"policy"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// RankedRecommendations is the ranker output: descending by score, ties
// broken by ascending premium. Best is nil when nothing matched.
type RankedRecommendations struct {
	Ranked []ScoredPolicy `json:"ranked"`
	Best   *ScoredPolicy  `json:"best,omitempty"`
}

// PremiumQuote is the premium scorer output.
type PremiumQuote struct {
	PolicyID           string  `json:"policyId"`
	BasePremium        float64 `json:"basePremium"`
	AgeFactor          float64 `json:"ageFactor"`
	CoverageMultiplier float64 `json:"coverageMultiplier"`
	AdjustedPremium    float64 `json:"adjustedPremium"`
	TotalCost          float64 `json:"totalCost"`
	TermMonths         int     `json:"termMonths"`
}

// ParseRiskBracket validates a risk bracket string.
func ParseRiskBracket(raw string) (RiskBracket, error) {
	switch RiskBracket(strings.ToLower(raw)) {
	case RiskLow, RiskNormal, RiskHigh:
		return RiskBracket(strings.ToLower(raw)), nil
	}
	return "", fmt.Errorf("%w: unknown risk bracket %q", ErrValidation, raw)
}

// ParsePriority validates a priority string.
func ParsePriority(raw string) (Priority, error) {
	switch Priority(strings.ToLower(raw)) {
	case PriorityCheap, PriorityBalanced, PriorityCoverage:
		return Priority(strings.ToLower(raw)), nil
	}
	return "", fmt.Errorf("%w: unknown priority %q", ErrValidation, raw)
}
