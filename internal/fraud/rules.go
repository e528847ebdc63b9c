package fraud

import (
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Input is the snapshot a rule evaluates. Rules never reach past it.
type Input struct {
	Claim     *domain.Claim
	Documents []domain.Document
	History   *domain.HistoricalContext

	// FiledAt is when the claim was filed; defaults to Claim.CreatedAt.
	FiledAt time.Time
}

// Rule is an independent pure predicate over an evaluation input. It
// returns a flag when it fires, a warning when it cannot evaluate for
// missing historical facts, and neither when it simply does not fire.
// One rule firing never suppresses another.
type Rule interface {
	Code() string
	Evaluate(in *Input) (*domain.FraudFlag, *domain.RuleWarning)
}

// highAmountRule fires when the claimed amount exceeds the large-claim
// threshold.
type highAmountRule struct {
	threshold float64
}

func (r *highAmountRule) Code() string { return domain.RuleHighAmount }

func (r *highAmountRule) Evaluate(in *Input) (*domain.FraudFlag, *domain.RuleWarning) {
	if in.Claim.AmountClaimed <= r.threshold {
		return nil, nil
	}
	flag := NewFlag(in.Claim.ID, domain.RuleHighAmount, domain.SeverityHigh, map[string]any{
		"amountClaimed": in.Claim.AmountClaimed,
		"threshold":     r.threshold,
	})
	return &flag, nil
}

// rapidClaimRule fires when the gap between coverage start (or the prior
// claim) and this filing is implausibly short.
type rapidClaimRule struct {
	minDays int
}

func (r *rapidClaimRule) Code() string { return domain.RuleRapidClaim }

func (r *rapidClaimRule) Evaluate(in *Input) (*domain.FraudFlag, *domain.RuleWarning) {
	if in.History == nil {
		return nil, &domain.RuleWarning{
			RuleCode: domain.RuleRapidClaim,
			Reason:   "historical context unavailable",
		}
	}

	// Measure from the most recent of purchase and prior claim.
	var since *time.Time
	basis := ""
	if in.History.PolicyPurchasedAt != nil {
		since = in.History.PolicyPurchasedAt
		basis = "policy_purchase"
	}
	if in.History.PriorClaimAt != nil && (since == nil || in.History.PriorClaimAt.After(*since)) {
		since = in.History.PriorClaimAt
		basis = "prior_claim"
	}
	if since == nil {
		return nil, &domain.RuleWarning{
			RuleCode: domain.RuleRapidClaim,
			Reason:   "neither policy purchase date nor prior claim date is known",
		}
	}

	gap := in.FiledAt.Sub(*since)
	if gap >= time.Duration(r.minDays)*24*time.Hour {
		return nil, nil
	}

	flag := NewFlag(in.Claim.ID, domain.RuleRapidClaim, domain.SeverityHigh, map[string]any{
		"gapDays": gap.Hours() / 24,
		"minDays": r.minDays,
		"basis":   basis,
	})
	return &flag, nil
}

// duplicateDocumentsRule fires when any attached document's content
// fingerprint already appears on a different claim.
type duplicateDocumentsRule struct{}

func (r *duplicateDocumentsRule) Code() string { return domain.RuleDuplicateDocuments }

func (r *duplicateDocumentsRule) Evaluate(in *Input) (*domain.FraudFlag, *domain.RuleWarning) {
	if in.History == nil || in.History.DuplicateFingerprints == nil {
		return nil, &domain.RuleWarning{
			RuleCode: domain.RuleDuplicateDocuments,
			Reason:   "document fingerprint index unavailable",
		}
	}

	matches := map[string][]string{}
	for _, doc := range in.Documents {
		if doc.Fingerprint == "" {
			continue
		}
		if others := in.History.DuplicateFingerprints[doc.Fingerprint]; len(others) > 0 {
			matches[doc.Fingerprint] = others
		}
	}
	if len(matches) == 0 {
		return nil, nil
	}

	details := map[string]any{"matchCount": len(matches)}
	for fp, claims := range matches {
		details[fmt.Sprintf("fingerprint:%s", fp)] = claims
	}

	flag := NewFlag(in.Claim.ID, domain.RuleDuplicateDocuments, domain.SeverityHigh, details)
	return &flag, nil
}

// BuiltinRules returns the canonical rule set for the given tuning.
func BuiltinRules(cfg domain.FraudConfig) []Rule {
	return []Rule{
		&highAmountRule{threshold: cfg.HighAmountThreshold},
		&rapidClaimRule{minDays: cfg.RapidClaimMinDays},
		&duplicateDocumentsRule{},
	}
}
