// Package fraud provides the claim fraud rule evaluation engine.
//
// The canonical rules (HIGH_AMOUNT, RAPID_CLAIM, DUPLICATE_DOCUMENTS) are
// built in; operators may add CEL-expression rules on top, compiled at
// load and hot-reloadable from the repository.
package fraud

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Engine evaluates the built-in rule set plus loaded custom rules.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	builtins      []Rule
	compiledRules map[string]*CompiledRule
	maxWorkers    int
}

// CompiledRule holds a pre-compiled CEL program for a custom rule.
type CompiledRule struct {
	Config  *domain.FraudRuleConfig
	Program cel.Program
}

// NewEngine creates a rule engine with the canonical rules for the given
// tuning.
func NewEngine(cfg domain.FraudConfig, maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	// CEL environment with claim facts visible to custom rules.
	env, err := cel.NewEnv(
		cel.Variable("claim", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("claim_type", cel.StringType),
		cel.Variable("status", cel.StringType),
		cel.Variable("description", cel.StringType),
		cel.Variable("document_count", cel.IntType),
		// Historical facts; -1 means the fact is unavailable.
		cel.Variable("days_since_policy_start", cel.DoubleType),
		cel.Variable("days_since_prior_claim", cel.DoubleType),
		cel.Variable("duplicate_document_count", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		builtins:      BuiltinRules(cfg),
		compiledRules: make(map[string]*CompiledRule),
		maxWorkers:    maxWorkers,
	}, nil
}

// ValidateRule compiles a custom rule without loading it.
func (e *Engine) ValidateRule(cfg *domain.FraudRuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("%w: rule config is required", domain.ErrValidation)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a custom rule into the engine.
func (e *Engine) LoadRule(cfg *domain.FraudRuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.Code] = compiled
	return nil
}

// LoadRules compiles and loads multiple custom rules.
func (e *Engine) LoadRules(configs []*domain.FraudRuleConfig) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules clears existing custom rules and loads new ones. The
// built-in rule set is never affected by a reload.
func (e *Engine) ReloadRules(configs []*domain.FraudRuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.Code] = compiled
	}

	e.compiledRules = newRules
	return nil
}

// GetLoadedRules returns the currently loaded custom rule configurations.
func (e *Engine) GetLoadedRules() []*domain.FraudRuleConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.FraudRuleConfig, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	return rules
}

// RulesCount returns built-in plus loaded custom rule count.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.builtins) + len(e.compiledRules)
}

// Evaluate runs every rule over the input and returns the union of
// firings. Rules run independently; results are never suppressed by other
// rules. Rules that cannot evaluate are reported as warnings, not errors.
func (e *Engine) Evaluate(ctx context.Context, in *Input) (*domain.FraudEvaluation, error) {
	if in == nil || in.Claim == nil {
		return nil, fmt.Errorf("%w: claim is required", domain.ErrValidation)
	}
	if in.FiledAt.IsZero() {
		in.FiledAt = in.Claim.CreatedAt
	}

	e.mu.RLock()
	rules := make([]Rule, 0, len(e.builtins)+len(e.compiledRules))
	rules = append(rules, e.builtins...)
	for _, compiled := range e.compiledRules {
		rules = append(rules, &celRule{compiled: compiled, activation: e.activation(in)})
	}
	e.mu.RUnlock()

	type outcome struct {
		flag    *domain.FraudFlag
		warning *domain.RuleWarning
	}

	outcomes := make([]outcome, len(rules))
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r Rule) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			flag, warning := r.Evaluate(in)
			outcomes[idx] = outcome{flag: flag, warning: warning}
		}(i, rule)
	}

	wg.Wait()

	eval := &domain.FraudEvaluation{
		ClaimID:        in.Claim.ID,
		Timestamp:      time.Now().UTC(),
		RulesEvaluated: len(rules),
	}
	for _, o := range outcomes {
		if o.flag != nil {
			eval.Flags = append(eval.Flags, *o.flag)
		}
		if o.warning != nil {
			eval.Warnings = append(eval.Warnings, *o.warning)
		}
	}

	return eval, nil
}

// activation builds the CEL variable bindings for an input.
func (e *Engine) activation(in *Input) map[string]any {
	daysSinceStart := -1.0
	daysSincePrior := -1.0
	duplicateCount := int64(-1)

	if in.History != nil {
		if in.History.PolicyPurchasedAt != nil {
			daysSinceStart = in.FiledAt.Sub(*in.History.PolicyPurchasedAt).Hours() / 24
		}
		if in.History.PriorClaimAt != nil {
			daysSincePrior = in.FiledAt.Sub(*in.History.PriorClaimAt).Hours() / 24
		}
		if in.History.DuplicateFingerprints != nil {
			duplicateCount = 0
			for _, doc := range in.Documents {
				if len(in.History.DuplicateFingerprints[doc.Fingerprint]) > 0 {
					duplicateCount++
				}
			}
		}
	}

	return map[string]any{
		"claim": map[string]any{
			"id":              in.Claim.ID,
			"claimNumber":     in.Claim.ClaimNumber,
			"policyReference": in.Claim.PolicyReference,
		},
		"amount":                   in.Claim.AmountClaimed,
		"claim_type":               string(in.Claim.Type),
		"status":                   string(in.Claim.Status),
		"description":              in.Claim.Description,
		"document_count":           int64(len(in.Documents)),
		"days_since_policy_start":  daysSinceStart,
		"days_since_prior_claim":   daysSincePrior,
		"duplicate_document_count": duplicateCount,
	}
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.FraudRuleConfig) (*CompiledRule, error) {
	if cfg.Code == "" || cfg.Expression == "" {
		return nil, fmt.Errorf("%w: rule code and expression are required", domain.ErrValidation)
	}
	if _, err := domain.ParseSeverity(string(cfg.Severity)); err != nil {
		return nil, err
	}

	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: failed to compile rule %s: %v", domain.ErrValidation, cfg.Code, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("%w: rule %s: expression must return bool, got %s",
			domain.ErrValidation, cfg.Code, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.Code, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}

// celRule adapts a compiled custom rule to the Rule interface.
type celRule struct {
	compiled   *CompiledRule
	activation map[string]any
}

func (r *celRule) Code() string { return r.compiled.Config.Code }

func (r *celRule) Evaluate(in *Input) (*domain.FraudFlag, *domain.RuleWarning) {
	out, _, err := r.compiled.Program.Eval(r.activation)
	if err != nil {
		return nil, &domain.RuleWarning{
			RuleCode: r.compiled.Config.Code,
			Reason:   fmt.Sprintf("evaluation error: %v", err),
		}
	}

	fired, ok := out.(types.Bool)
	if !ok || !bool(fired) {
		return nil, nil
	}

	flag := NewFlag(in.Claim.ID, r.compiled.Config.Code, r.compiled.Config.Severity, map[string]any{
		"expression": r.compiled.Config.Expression,
		"amount":     in.Claim.AmountClaimed,
		"claimType":  string(in.Claim.Type),
	})
	return &flag, nil
}
