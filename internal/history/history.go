// Package history assembles the historical facts fraud rules need but
// cannot derive from a claim alone.
package history

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// fingerprintCacheTTL bounds staleness of the duplicate-document index.
const fingerprintCacheTTL = time.Minute

// Service builds HistoricalContext from the repository, memoizing the
// fingerprint index in the cache.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
}

// NewService creates a new history service.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
	}
}

// Build fills the facts the caller did not supply. Supplied facts always
// win; a fact that cannot be resolved stays nil so the depending rule is
// skipped with a warning instead of evaluating on a guess.
func (s *Service) Build(ctx context.Context, claim *domain.Claim, docs []domain.Document, supplied *domain.HistoricalContext) *domain.HistoricalContext {
	hctx := &domain.HistoricalContext{}
	if supplied != nil {
		*hctx = *supplied
	}

	if hctx.PriorClaimAt == nil && s.repo != nil {
		prior, err := s.repo.LastClaimTime(ctx, claim.PolicyReference, claim.ID, claim.CreatedAt)
		if err != nil {
			slog.Warn("prior claim lookup failed, rule will be skipped",
				"claim_id", claim.ID,
				"policy_reference", claim.PolicyReference,
				"error", err,
			)
		} else {
			hctx.PriorClaimAt = prior
		}
	}

	if hctx.DuplicateFingerprints == nil && s.repo != nil {
		index, ok := s.fingerprintIndex(ctx, claim.ID, docs)
		if ok {
			hctx.DuplicateFingerprints = index
		}
	}

	return hctx
}

// fingerprintIndex maps each attached fingerprint to the other claims
// already carrying it. Returns ok=false when any lookup failed, so the
// duplicate-document rule degrades to a warning rather than a false
// negative.
func (s *Service) fingerprintIndex(ctx context.Context, claimID string, docs []domain.Document) (map[string][]string, bool) {
	index := make(map[string][]string)

	for _, doc := range docs {
		if doc.Fingerprint == "" {
			continue
		}

		others, err := s.lookupFingerprint(ctx, doc.Fingerprint, claimID)
		if err != nil {
			slog.Warn("fingerprint lookup failed, rule will be skipped",
				"claim_id", claimID,
				"fingerprint", doc.Fingerprint,
				"error", err,
			)
			return nil, false
		}
		if len(others) > 0 {
			index[doc.Fingerprint] = others
		}
	}

	return index, true
}

func (s *Service) lookupFingerprint(ctx context.Context, fingerprint, excludeClaimID string) ([]string, error) {
	cacheKey := "fpidx:" + fingerprint + ":" + excludeClaimID

	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, cacheKey); err == nil && raw != nil {
			var cached []string
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
		}
	}

	others, err := s.repo.FindClaimsByFingerprint(ctx, fingerprint, excludeClaimID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if raw, err := json.Marshal(others); err == nil {
			_ = s.cache.Set(ctx, cacheKey, raw, fingerprintCacheTTL)
		}
	}

	return others, nil
}
