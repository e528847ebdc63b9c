// Package workflow orchestrates the claim lifecycle: it wires the status
// state machine, the fraud rule engine, the premium scorer and the
// recommendation ranker to persistence and event publication.
//
// The computation cores stay pure; this package is the only place that
// loads state, applies a core function and stores the result.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/fraud"
	"github.com/opensource-finance/kestrel/internal/history"
	"github.com/opensource-finance/kestrel/internal/lifecycle"
	"github.com/opensource-finance/kestrel/internal/premium"
	"github.com/opensource-finance/kestrel/internal/recommend"
)

// policyCacheTTL bounds staleness of cached catalog records.
const policyCacheTTL = 10 * time.Minute

// Service exposes the engine's boundary operations.
type Service struct {
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	engine  *fraud.Engine
	history *history.Service
	scorer  *premium.Scorer
	ranker  *recommend.Ranker
}

// NewService creates the workflow service.
func NewService(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *fraud.Engine, historySvc *history.Service, scorer *premium.Scorer, ranker *recommend.Ranker) *Service {
	return &Service{
		repo:    repo,
		cache:   cache,
		bus:     bus,
		engine:  engine,
		history: historySvc,
		scorer:  scorer,
		ranker:  ranker,
	}
}

// CreateClaim files a new claim in draft state.
func (s *Service) CreateClaim(ctx context.Context, req *domain.ClaimRequest) (*domain.Claim, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request is required", domain.ErrValidation)
	}
	if strings.TrimSpace(req.PolicyReference) == "" {
		return nil, fmt.Errorf("%w: policy reference is required", domain.ErrValidation)
	}

	claimType, err := domain.ParseClaimType(req.ClaimType)
	if err != nil {
		return nil, err
	}

	incidentDate, err := parseIncidentDate(req.IncidentDate)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if incidentDate.After(now) {
		return nil, fmt.Errorf("%w: incident date %s is in the future",
			domain.ErrValidation, incidentDate.Format(time.RFC3339))
	}
	if req.AmountClaimed <= 0 {
		return nil, fmt.Errorf("%w: amount claimed must be positive, got %v",
			domain.ErrValidation, req.AmountClaimed)
	}

	claim := &domain.Claim{
		ID:              uuid.New().String(),
		ClaimNumber:     newClaimNumber(now),
		PolicyReference: req.PolicyReference,
		Type:            claimType,
		IncidentDate:    incidentDate,
		AmountClaimed:   req.AmountClaimed,
		Description:     req.Description,
		Status:          domain.StatusDraft,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.SaveClaim(ctx, claim); err != nil {
		return nil, fmt.Errorf("failed to save claim: %w", err)
	}

	if s.cache != nil {
		count, err := s.cache.IncrementCounter(ctx, "filings:"+claim.PolicyReference, 24*time.Hour)
		if err == nil {
			slog.Debug("claim filing recorded",
				"policy_reference", claim.PolicyReference,
				"filings_24h", count,
			)
		}
	}

	s.publish(ctx, domain.TopicClaimCreated, &domain.ClaimEvent{
		ClaimID:         claim.ID,
		ClaimNumber:     claim.ClaimNumber,
		PolicyReference: claim.PolicyReference,
		Status:          claim.Status,
		OccurredAt:      now.UnixNano(),
	})

	return claim, nil
}

// AttachDocument records an evidence reference against a claim. The file
// bytes live with the external document store; only the opaque reference
// and content fingerprint are kept.
func (s *Service) AttachDocument(ctx context.Context, claimID, docType, storageRef, fingerprint string) (*domain.Document, error) {
	parsedType, err := domain.ParseDocType(docType)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(storageRef) == "" {
		return nil, fmt.Errorf("%w: storage reference is required", domain.ErrValidation)
	}

	claim, err := s.repo.GetClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if claim.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: cannot attach documents to a %s claim",
			domain.ErrPrecondition, claim.Status)
	}

	doc := &domain.Document{
		ID:          uuid.New().String(),
		ClaimID:     claim.ID,
		Type:        parsedType,
		StorageRef:  storageRef,
		Fingerprint: fingerprint,
		UploadedAt:  time.Now().UTC(),
	}

	if err := s.repo.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to save document: %w", err)
	}

	return doc, nil
}

// SubmitClaim moves a draft claim to submitted. Fails with
// ErrPrecondition when no document has been attached.
func (s *Service) SubmitClaim(ctx context.Context, claimID string) (*domain.Claim, error) {
	claim, err := s.repo.GetClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}

	next, err := lifecycle.Transition(claim, domain.StatusDraft, domain.StatusSubmitted, lifecycle.Options{})
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateClaimStatus(ctx, next, domain.StatusDraft); err != nil {
		return nil, err
	}

	event := &domain.ClaimEvent{
		ClaimID:         next.ID,
		ClaimNumber:     next.ClaimNumber,
		PolicyReference: next.PolicyReference,
		FromStatus:      domain.StatusDraft,
		Status:          next.Status,
		OccurredAt:      next.UpdatedAt.UnixNano(),
	}
	s.publish(ctx, domain.TopicClaimSubmitted, event)
	s.publish(ctx, domain.TopicClaimStatusChange, event)

	return next, nil
}

// TransitionStatus applies an administrator-triggered status change. The
// caller states the status it believes the claim is in; a mismatch fails
// with ErrConcurrentModification instead of silently overwriting.
func (s *Service) TransitionStatus(ctx context.Context, claimID, expectedRaw, targetRaw, adminNotes, rejectionReason string) (*domain.Claim, error) {
	expected, err := domain.ParseClaimStatus(expectedRaw)
	if err != nil {
		return nil, err
	}
	target, err := domain.ParseClaimStatus(targetRaw)
	if err != nil {
		return nil, err
	}

	claim, err := s.repo.GetClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}

	next, err := lifecycle.Transition(claim, expected, target, lifecycle.Options{
		AdminNotes:      adminNotes,
		RejectionReason: rejectionReason,
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateClaimStatus(ctx, next, expected); err != nil {
		return nil, err
	}

	s.publish(ctx, domain.TopicClaimStatusChange, &domain.ClaimEvent{
		ClaimID:         next.ID,
		ClaimNumber:     next.ClaimNumber,
		PolicyReference: next.PolicyReference,
		FromStatus:      expected,
		Status:          next.Status,
		OccurredAt:      next.UpdatedAt.UnixNano(),
	})

	return next, nil
}

// FlagFraud appends a manual fraud flag and forces the claim to rejected.
func (s *Service) FlagFraud(ctx context.Context, claimID, reason string) (*domain.Claim, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("%w: a reason is required to flag fraud", domain.ErrValidation)
	}

	claim, err := s.repo.GetClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}

	next, err := lifecycle.Transition(claim, claim.Status, domain.StatusRejected, lifecycle.Options{
		RejectionReason: reason,
	})
	if err != nil {
		return nil, err
	}

	flag := fraud.NewFlag(claim.ID, domain.RuleManualFlag, domain.SeverityHigh, map[string]any{
		"reason": reason,
	})

	if err := s.repo.AppendFraudFlags(ctx, claim.ID, []domain.FraudFlag{flag}); err != nil {
		return nil, fmt.Errorf("failed to append fraud flag: %w", err)
	}
	if err := s.repo.UpdateClaimStatus(ctx, next, claim.Status); err != nil {
		return nil, err
	}
	next.FraudFlags = append(next.FraudFlags, flag)

	s.publish(ctx, domain.TopicClaimFraudFlagged, &domain.ClaimEvent{
		ClaimID:         next.ID,
		ClaimNumber:     next.ClaimNumber,
		PolicyReference: next.PolicyReference,
		FromStatus:      claim.Status,
		Status:          next.Status,
		RuleCodes:       []string{domain.RuleManualFlag},
		OccurredAt:      next.UpdatedAt.UnixNano(),
	})

	return next, nil
}

// EvaluateFraud runs the rule set over a claim. Facts the caller did not
// supply are built from the repository. Only firings not already on the
// claim are appended, keyed by (ruleCode, detailsHash), so repeated
// evaluation of unchanged input appends nothing.
func (s *Service) EvaluateFraud(ctx context.Context, claimID string, supplied *domain.HistoricalContext) (*domain.FraudEvaluation, error) {
	claim, err := s.repo.GetClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}

	hctx := s.history.Build(ctx, claim, claim.Documents, supplied)

	eval, err := s.engine.Evaluate(ctx, &fraud.Input{
		Claim:     claim,
		Documents: claim.Documents,
		History:   hctx,
		FiledAt:   claim.CreatedAt,
	})
	if err != nil {
		return nil, err
	}

	existing := make(map[string]bool, len(claim.FraudFlags))
	for _, f := range claim.FraudFlags {
		existing[f.RuleCode+"|"+f.DetailsHash] = true
	}

	var fresh []domain.FraudFlag
	for _, f := range eval.Flags {
		if !existing[f.RuleCode+"|"+f.DetailsHash] {
			fresh = append(fresh, f)
		}
	}
	eval.Flags = fresh

	if len(fresh) > 0 {
		if err := s.repo.AppendFraudFlags(ctx, claim.ID, fresh); err != nil {
			return nil, fmt.Errorf("failed to append fraud flags: %w", err)
		}

		codes := make([]string, 0, len(fresh))
		for _, f := range fresh {
			codes = append(codes, f.RuleCode)
		}
		s.publish(ctx, domain.TopicClaimFraudFlagged, &domain.ClaimEvent{
			ClaimID:         claim.ID,
			ClaimNumber:     claim.ClaimNumber,
			PolicyReference: claim.PolicyReference,
			Status:          claim.Status,
			RuleCodes:       codes,
			OccurredAt:      eval.Timestamp.UnixNano(),
		})
	}

	return eval, nil
}

// QuotePremium computes an adjusted premium for a catalog policy.
func (s *Service) QuotePremium(ctx context.Context, policyID string, age int, coverageMultiplier float64) (*domain.PremiumQuote, error) {
	policy, err := s.getPolicy(ctx, policyID)
	if err != nil {
		return nil, err
	}
	return s.scorer.Quote(policy, age, coverageMultiplier)
}

// RankRecommendations scores a catalog against a preference profile.
// When the caller supplies no catalog, the stored catalog for the
// profile's insurance type is used.
func (s *Service) RankRecommendations(ctx context.Context, policies []*domain.Policy, profile *domain.PreferenceProfile) (*domain.RankedRecommendations, error) {
	if profile == nil {
		return nil, fmt.Errorf("%w: preference profile is required", domain.ErrValidation)
	}

	if len(policies) == 0 {
		stored, err := s.repo.ListPolicies(ctx, profile.InsuranceType)
		if err != nil {
			return nil, fmt.Errorf("failed to load policy catalog: %w", err)
		}
		policies = stored
	}

	return s.ranker.Rank(policies, profile)
}

// GetClaim returns a claim with its documents and fraud flag history.
func (s *Service) GetClaim(ctx context.Context, claimID string) (*domain.Claim, error) {
	return s.repo.GetClaim(ctx, claimID)
}

// getPolicy reads through the cache to the repository.
func (s *Service) getPolicy(ctx context.Context, policyID string) (*domain.Policy, error) {
	if policyID == "" {
		return nil, fmt.Errorf("%w: policy id is required", domain.ErrValidation)
	}

	if s.cache != nil {
		if cached, err := s.cache.GetPolicy(ctx, policyID); err == nil && cached != nil {
			return cached, nil
		}
	}

	policy, err := s.repo.GetPolicy(ctx, policyID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		_ = s.cache.SetPolicy(ctx, policyID, policy, policyCacheTTL)
	}

	return policy, nil
}

// publish sends an event fire-and-forget. Delivery is best-effort and
// never a precondition of the operation that produced it.
func (s *Service) publish(ctx context.Context, topic string, event *domain.ClaimEvent) {
	if s.bus == nil {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal claim event", "topic", topic, "error", err)
		return
	}

	if err := s.bus.Publish(ctx, topic, payload); err != nil {
		slog.Warn("failed to publish claim event",
			"topic", topic,
			"claim_id", event.ClaimID,
			"error", err,
		)
	}
}

// newClaimNumber generates the human-readable claim reference.
func newClaimNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return fmt.Sprintf("CLM-%s-%s", now.Format("20060102"), suffix)
}

// parseIncidentDate accepts RFC 3339 timestamps or plain dates.
func parseIncidentDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: incident date is required", domain.ErrValidation)
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: incident date %q is not RFC 3339 or YYYY-MM-DD", domain.ErrValidation, raw)
}
