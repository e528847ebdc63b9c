// Package premium computes adjusted premium quotes.
//
// Quotes are deterministic and side-effect free: identical inputs always
// produce identical outputs, which reproducible quoting and testing rely
// on. Monetary rounding is half-up to 2 decimal places.
package premium

import (
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

// Multiplier bounds for caller-chosen benefit richness. Out-of-range
// input is rejected, never clamped.
const (
	MinCoverageMultiplier = 0.5
	MaxCoverageMultiplier = 3.0
)

// Scorer computes adjusted premiums from a policy's base premium, the
// applicant's age bracket and a coverage multiplier.
type Scorer struct {
	cfg domain.PremiumConfig
}

// NewScorer creates a scorer with the given age-band tuning.
func NewScorer(cfg domain.PremiumConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// AgeFactor returns the step-function factor for an age. The function is
// monotonically non-decreasing across the configured brackets.
func (s *Scorer) AgeFactor(age int) float64 {
	switch {
	case age < s.cfg.YoungAgeMax:
		return s.cfg.YoungFactor
	case age > s.cfg.SeniorAgeMin:
		return s.cfg.SeniorFactor
	default:
		return s.cfg.NeutralFactor
	}
}

// Quote computes the premium quote for a policy.
//
//	adjustedPremium = basePremium x ageFactor x coverageMultiplier
//	totalCost       = adjustedPremium x termMonths/12
func (s *Scorer) Quote(policy *domain.Policy, age int, coverageMultiplier float64) (*domain.PremiumQuote, error) {
	if policy == nil {
		return nil, fmt.Errorf("%w: policy is required", domain.ErrValidation)
	}
	if age <= 0 {
		return nil, fmt.Errorf("%w: age must be positive, got %d", domain.ErrValidation, age)
	}
	if coverageMultiplier < MinCoverageMultiplier || coverageMultiplier > MaxCoverageMultiplier {
		return nil, fmt.Errorf("%w: coverage multiplier %.2f outside [%.1f, %.1f]",
			domain.ErrValidation, coverageMultiplier, MinCoverageMultiplier, MaxCoverageMultiplier)
	}
	if policy.Premium <= 0 {
		return nil, fmt.Errorf("%w: policy %s has non-positive premium", domain.ErrValidation, policy.ID)
	}

	termMonths := policy.TermMonths
	if termMonths <= 0 {
		termMonths = 12
	}

	ageFactor := s.AgeFactor(age)

	base := decimal.NewFromFloat(policy.Premium)
	adjusted := base.
		Mul(decimal.NewFromFloat(ageFactor)).
		Mul(decimal.NewFromFloat(coverageMultiplier)).
		Round(2)
	total := adjusted.
		Mul(decimal.NewFromInt(int64(termMonths))).
		Div(decimal.NewFromInt(12)).
		Round(2)

	adjustedF, _ := adjusted.Float64()
	totalF, _ := total.Float64()

	return &domain.PremiumQuote{
		PolicyID:           policy.ID,
		BasePremium:        policy.Premium,
		AgeFactor:          ageFactor,
		CoverageMultiplier: coverageMultiplier,
		AdjustedPremium:    adjustedF,
		TotalCost:          totalF,
		TermMonths:         termMonths,
	}, nil
}
