// Package recommend scores and ranks catalog policies against a customer
// preference profile.
package recommend

import (
	"fmt"
	"sort"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/premium"
)

// Ranker scores policies for a preference profile. Scoring is pure; the
// same catalog and profile always rank identically.
type Ranker struct {
	cfg    domain.RankingConfig
	scorer *premium.Scorer
}

// NewRanker creates a ranker. The premium scorer supplies the age-adjusted
// premium used for budget-fit comparison.
func NewRanker(cfg domain.RankingConfig, scorer *premium.Scorer) *Ranker {
	return &Ranker{cfg: cfg, scorer: scorer}
}

// Rank filters the catalog to the profile's insurance type, scores each
// match and returns them ordered by descending score, ties broken by
// ascending premium. Best is the first element, or nil when nothing
// matched the requested type.
func (r *Ranker) Rank(policies []*domain.Policy, profile *domain.PreferenceProfile) (*domain.RankedRecommendations, error) {
	if profile == nil {
		return nil, fmt.Errorf("%w: preference profile is required", domain.ErrValidation)
	}
	if profile.InsuranceType == "" {
		return nil, fmt.Errorf("%w: insurance type is required", domain.ErrValidation)
	}
	if _, err := domain.ParseRiskBracket(string(profile.RiskBracket)); err != nil {
		return nil, err
	}
	priority := profile.Priority
	if priority == "" {
		priority = domain.PriorityBalanced
	}
	if _, err := domain.ParsePriority(string(priority)); err != nil {
		return nil, err
	}

	budgetMax, err := r.budgetMax(profile)
	if err != nil {
		return nil, err
	}
	budgetWeight, coverageWeight := r.priorityWeights(priority)

	var ranked []domain.ScoredPolicy
	for _, policy := range policies {
		if policy == nil || !strings.EqualFold(policy.PolicyType, profile.InsuranceType) {
			// Non-matching types are excluded, not scored as zero.
			continue
		}

		score, reason := r.score(policy, profile, budgetMax, budgetWeight, coverageWeight)
		ranked = append(ranked, domain.ScoredPolicy{
			Policy: *policy,
			Score:  score,
			Reason: reason,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Policy.Premium < ranked[j].Policy.Premium
	})

	result := &domain.RankedRecommendations{Ranked: ranked}
	if len(ranked) > 0 {
		best := ranked[0]
		result.Best = &best
	}
	return result, nil
}

// score accumulates signed adjustments onto the base score and clamps to
// the configured band. The reason string concatenates the fired clauses
// in evaluation order: budget fit first, then risk/coverage fit.
func (r *Ranker) score(policy *domain.Policy, profile *domain.PreferenceProfile, budgetMax, budgetWeight, coverageWeight float64) (float64, string) {
	score := r.cfg.BaseScore
	var clauses []string

	// Budget fit against the age-adjusted annual premium.
	effective := r.effectivePremium(policy, profile.Age)
	if effective <= budgetMax {
		score += r.cfg.BudgetBonus * budgetWeight
		clauses = append(clauses, fmt.Sprintf("annual premium %.2f fits your budget of %.2f", effective, budgetMax))
	} else {
		score -= r.cfg.BudgetPenalty * budgetWeight
		clauses = append(clauses, fmt.Sprintf("annual premium %.2f exceeds your budget of %.2f", effective, budgetMax))
	}

	// Risk/coverage fit, tiered by risk bracket.
	coverage := policy.CoverageAmount()
	switch profile.RiskBracket {
	case domain.RiskHigh:
		if coverage > r.cfg.HighRiskCoverageMin {
			score += r.cfg.HighRiskBonus * coverageWeight
			clauses = append(clauses, fmt.Sprintf("coverage of %.0f suits a high-risk profile", coverage))
		} else {
			score -= r.cfg.HighRiskPenalty * coverageWeight
			clauses = append(clauses, fmt.Sprintf("coverage of %.0f is thin for a high-risk profile", coverage))
		}
	case domain.RiskNormal:
		if coverage > r.cfg.NormalRiskCoverageMin {
			score += r.cfg.NormalRiskBonus * coverageWeight
			clauses = append(clauses, fmt.Sprintf("coverage of %.0f is solid for your risk level", coverage))
		} else {
			score -= r.cfg.NormalRiskPenalty * coverageWeight
			clauses = append(clauses, fmt.Sprintf("coverage of %.0f is on the low side for your risk level", coverage))
		}
	case domain.RiskLow:
		if coverage > r.cfg.LowRiskCoverageMin {
			score += r.cfg.LowRiskBonus * coverageWeight
			clauses = append(clauses, fmt.Sprintf("coverage of %.0f comfortably covers a low-risk profile", coverage))
		} else {
			clauses = append(clauses, fmt.Sprintf("coverage of %.0f is adequate for a low-risk profile", coverage))
		}
	}

	// Clamp to the presentation band.
	if score < r.cfg.ScoreFloor {
		score = r.cfg.ScoreFloor
	}
	if score > r.cfg.ScoreCeiling {
		score = r.cfg.ScoreCeiling
	}

	return score, strings.Join(clauses, "; ")
}

// effectivePremium is the age-adjusted annual premium when an age is
// known, otherwise the raw catalog premium.
func (r *Ranker) effectivePremium(policy *domain.Policy, age int) float64 {
	if r.scorer == nil || age <= 0 {
		return policy.Premium
	}
	quote, err := r.scorer.Quote(policy, age, 1.0)
	if err != nil {
		return policy.Premium
	}
	return quote.AdjustedPremium
}

// budgetMax resolves the explicit maximum or the tier threshold.
func (r *Ranker) budgetMax(profile *domain.PreferenceProfile) (float64, error) {
	if profile.BudgetMax > 0 {
		return profile.BudgetMax, nil
	}
	switch profile.BudgetTier {
	case domain.BudgetLow:
		return r.cfg.BudgetTierLow, nil
	case domain.BudgetMedium:
		return r.cfg.BudgetTierMedium, nil
	case domain.BudgetHigh:
		return r.cfg.BudgetTierHigh, nil
	}
	return 0, fmt.Errorf("%w: a budget tier or explicit budget maximum is required", domain.ErrValidation)
}

// priorityWeights returns (budget weight, coverage weight) for a priority.
// Balanced applies both adjustments at unit weight; cheap and coverage
// bias the corresponding adjustment.
func (r *Ranker) priorityWeights(priority domain.Priority) (float64, float64) {
	switch priority {
	case domain.PriorityCheap:
		return r.cfg.CheapBudgetWeight, r.cfg.CheapCoverageWeight
	case domain.PriorityCoverage:
		return r.cfg.CoverageBudgetWeight, r.cfg.CoverageCoverageWeight
	default:
		return 1.0, 1.0
	}
}
