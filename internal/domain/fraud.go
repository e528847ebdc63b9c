package domain

import (
	"fmt"
	"time"
)

// Severity ranks how strongly a fraud rule implicates a claim.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Stable rule codes. These are part of the external contract: persisted
// flags, dashboards and downstream dedupe all key on them.
const (
	RuleHighAmount         = "HIGH_AMOUNT"
	RuleRapidClaim         = "RAPID_CLAIM"
	RuleDuplicateDocuments = "DUPLICATE_DOCUMENTS"
	RuleManualFlag         = "MANUAL_FLAG"
)

// FraudFlag is a structured warning attached to a claim. Immutable once
// created; a claim accumulates flags across repeated evaluations.
type FraudFlag struct {
	ID       string   `json:"id"`
	ClaimID  string   `json:"claimId"`
	RuleCode string   `json:"ruleCode"`
	Severity Severity `json:"severity"`

	// Details holds the facts the rule derived its decision from.
	Details map[string]any `json:"details,omitempty"`

	// DetailsHash is a deterministic digest of RuleCode + Details, used to
	// de-duplicate flags across re-evaluations of unchanged input.
	DetailsHash string `json:"detailsHash"`

	CreatedAt time.Time `json:"createdAt"`
}

// HistoricalContext supplies facts a rule cannot derive from the claim
// alone. A nil pointer means the fact is unavailable; rules requiring it
// are skipped and reported as a partial-evaluation warning.
type HistoricalContext struct {
	// PolicyPurchasedAt is when coverage under the referenced policy began.
	PolicyPurchasedAt *time.Time `json:"policyPurchasedAt,omitempty"`

	// PriorClaimAt is when the policy's most recent earlier claim was filed.
	PriorClaimAt *time.Time `json:"priorClaimAt,omitempty"`

	// DuplicateFingerprints maps a document content fingerprint to the IDs
	// of other claims already carrying a document with that fingerprint.
	DuplicateFingerprints map[string][]string `json:"duplicateFingerprints,omitempty"`
}

// FraudEvaluation is the outcome of running the rule set over one claim.
type FraudEvaluation struct {
	ClaimID   string      `json:"claimId"`
	Flags     []FraudFlag `json:"flags"`
	Timestamp time.Time   `json:"timestamp"`

	// Warnings lists rules skipped for missing historical facts. A skipped
	// rule is not "no fraud"; the caller decides whether to re-evaluate.
	Warnings []RuleWarning `json:"warnings,omitempty"`

	RulesEvaluated int `json:"rulesEvaluated"`
}

// RuleWarning reports a rule that could not evaluate.
type RuleWarning struct {
	RuleCode string `json:"ruleCode"`
	Reason   string `json:"reason"`
}

// FraudRuleConfig defines an operator-supplied fraud rule evaluated as a
// CEL expression alongside the built-in rule set. The expression decides
// firing (bool) over claim facts; severity and code come from the config.
type FraudRuleConfig struct {
	Code        string   `json:"code"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Version     string   `json:"version"`
	Expression  string   `json:"expression"`
	Severity    Severity `json:"severity"`
	Enabled     bool     `json:"enabled"`
}

// ParseSeverity validates a severity string against the enumeration.
func ParseSeverity(raw string) (Severity, error) {
	switch Severity(raw) {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return Severity(raw), nil
	}
	return "", fmt.Errorf("%w: unknown severity %q", ErrValidation, raw)
}
