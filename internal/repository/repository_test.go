package repository

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "kestrel-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return repo
}

func testClaim(id string) *domain.Claim {
	now := time.Now().UTC().Truncate(time.Second)
	return &domain.Claim{
		ID:              id,
		ClaimNumber:     "CLM-20260829-" + id,
		PolicyReference: "POL-1001",
		Type:            domain.ClaimAccident,
		IncidentDate:    now.Add(-72 * time.Hour),
		AmountClaimed:   25000,
		Description:     "windscreen damage",
		Status:          domain.StatusDraft,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetClaim", func(t *testing.T) {
		claim := testClaim("c-001")
		if err := repo.SaveClaim(ctx, claim); err != nil {
			t.Fatalf("SaveClaim failed: %v", err)
		}

		retrieved, err := repo.GetClaim(ctx, claim.ID)
		if err != nil {
			t.Fatalf("GetClaim failed: %v", err)
		}

		if retrieved.ClaimNumber != claim.ClaimNumber {
			t.Errorf("expected claim number %s, got %s", claim.ClaimNumber, retrieved.ClaimNumber)
		}
		if retrieved.AmountClaimed != claim.AmountClaimed {
			t.Errorf("expected amount %.2f, got %.2f", claim.AmountClaimed, retrieved.AmountClaimed)
		}
		if retrieved.Status != domain.StatusDraft {
			t.Errorf("expected status draft, got %s", retrieved.Status)
		}
		if retrieved.DisbursedAt != nil {
			t.Error("expected nil DisbursedAt")
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if _, err := repo.GetClaim(ctx, "nonexistent"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
		if _, err := repo.GetPolicy(ctx, "nonexistent"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})

	t.Run("UpdateClaimStatus", func(t *testing.T) {
		claim := testClaim("c-002")
		if err := repo.SaveClaim(ctx, claim); err != nil {
			t.Fatalf("SaveClaim failed: %v", err)
		}

		claim.Status = domain.StatusSubmitted
		claim.UpdatedAt = time.Now().UTC()
		if err := repo.UpdateClaimStatus(ctx, claim, domain.StatusDraft); err != nil {
			t.Fatalf("UpdateClaimStatus failed: %v", err)
		}

		retrieved, err := repo.GetClaim(ctx, claim.ID)
		if err != nil {
			t.Fatalf("GetClaim failed: %v", err)
		}
		if retrieved.Status != domain.StatusSubmitted {
			t.Errorf("expected status submitted, got %s", retrieved.Status)
		}

		// Same expected status again: the row has moved on.
		err = repo.UpdateClaimStatus(ctx, claim, domain.StatusDraft)
		if !errors.Is(err, domain.ErrConcurrentModification) {
			t.Errorf("expected ErrConcurrentModification, got: %v", err)
		}

		missing := testClaim("c-missing")
		if err := repo.UpdateClaimStatus(ctx, missing, domain.StatusDraft); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})

	t.Run("DisbursementRecorded", func(t *testing.T) {
		claim := testClaim("c-003")
		claim.Status = domain.StatusApproved
		if err := repo.SaveClaim(ctx, claim); err != nil {
			t.Fatalf("SaveClaim failed: %v", err)
		}

		paidAt := time.Now().UTC().Truncate(time.Second)
		claim.Status = domain.StatusPaid
		claim.DisbursedAt = &paidAt
		claim.UpdatedAt = paidAt
		if err := repo.UpdateClaimStatus(ctx, claim, domain.StatusApproved); err != nil {
			t.Fatalf("UpdateClaimStatus failed: %v", err)
		}

		retrieved, _ := repo.GetClaim(ctx, claim.ID)
		if retrieved.DisbursedAt == nil {
			t.Fatal("expected DisbursedAt to be set")
		}
	})

	t.Run("DocumentsLoadWithClaim", func(t *testing.T) {
		claim := testClaim("c-004")
		if err := repo.SaveClaim(ctx, claim); err != nil {
			t.Fatalf("SaveClaim failed: %v", err)
		}

		doc := &domain.Document{
			ID:          "doc-001",
			ClaimID:     claim.ID,
			Type:        domain.DocPhoto,
			StorageRef:  "s3://claims/doc-001.jpg",
			Fingerprint: "fp-abc",
			UploadedAt:  time.Now().UTC().Truncate(time.Second),
		}
		if err := repo.SaveDocument(ctx, doc); err != nil {
			t.Fatalf("SaveDocument failed: %v", err)
		}

		retrieved, err := repo.GetClaim(ctx, claim.ID)
		if err != nil {
			t.Fatalf("GetClaim failed: %v", err)
		}
		if len(retrieved.Documents) != 1 {
			t.Fatalf("expected 1 document, got %d", len(retrieved.Documents))
		}
		if retrieved.Documents[0].Fingerprint != "fp-abc" {
			t.Errorf("expected fingerprint fp-abc, got %s", retrieved.Documents[0].Fingerprint)
		}
	})

	t.Run("FindClaimsByFingerprint", func(t *testing.T) {
		other := testClaim("c-005")
		if err := repo.SaveClaim(ctx, other); err != nil {
			t.Fatalf("SaveClaim failed: %v", err)
		}
		doc := &domain.Document{
			ID:          "doc-002",
			ClaimID:     other.ID,
			Type:        domain.DocInvoice,
			StorageRef:  "s3://claims/doc-002.pdf",
			Fingerprint: "fp-abc", // same content as doc-001
			UploadedAt:  time.Now().UTC(),
		}
		if err := repo.SaveDocument(ctx, doc); err != nil {
			t.Fatalf("SaveDocument failed: %v", err)
		}

		matches, err := repo.FindClaimsByFingerprint(ctx, "fp-abc", "c-005")
		if err != nil {
			t.Fatalf("FindClaimsByFingerprint failed: %v", err)
		}
		if len(matches) != 1 || matches[0] != "c-004" {
			t.Errorf("expected [c-004], got %v", matches)
		}

		// Blank fingerprints never match anything.
		matches, err = repo.FindClaimsByFingerprint(ctx, "", "c-005")
		if err != nil || len(matches) != 0 {
			t.Errorf("expected no matches for blank fingerprint, got %v (%v)", matches, err)
		}
	})

	t.Run("FraudFlagsAppendOnlyWithDedupe", func(t *testing.T) {
		claim := testClaim("c-006")
		if err := repo.SaveClaim(ctx, claim); err != nil {
			t.Fatalf("SaveClaim failed: %v", err)
		}

		flag := domain.FraudFlag{
			ID:          "flag-001",
			ClaimID:     claim.ID,
			RuleCode:    domain.RuleHighAmount,
			Severity:    domain.SeverityHigh,
			Details:     map[string]any{"amount": 900000.0, "threshold": 800000.0},
			DetailsHash: "hash-001",
			CreatedAt:   time.Now().UTC().Truncate(time.Second),
		}
		if err := repo.AppendFraudFlags(ctx, claim.ID, []domain.FraudFlag{flag}); err != nil {
			t.Fatalf("AppendFraudFlags failed: %v", err)
		}

		// Identical rule+hash again: the storage layer swallows it.
		flag.ID = "flag-002"
		if err := repo.AppendFraudFlags(ctx, claim.ID, []domain.FraudFlag{flag}); err != nil {
			t.Fatalf("second AppendFraudFlags failed: %v", err)
		}

		flags, err := repo.ListFraudFlags(ctx, claim.ID)
		if err != nil {
			t.Fatalf("ListFraudFlags failed: %v", err)
		}
		if len(flags) != 1 {
			t.Fatalf("expected 1 flag after duplicate append, got %d", len(flags))
		}
		if flags[0].Details["amount"] != 900000.0 {
			t.Errorf("details round-trip failed: %+v", flags[0].Details)
		}
	})

	t.Run("LastClaimTime", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Second)

		early := testClaim("c-007")
		early.PolicyReference = "POL-2002"
		early.CreatedAt = now.Add(-48 * time.Hour)
		late := testClaim("c-008")
		late.PolicyReference = "POL-2002"
		late.CreatedAt = now.Add(-2 * time.Hour)
		current := testClaim("c-009")
		current.PolicyReference = "POL-2002"
		current.CreatedAt = now

		for _, c := range []*domain.Claim{early, late, current} {
			if err := repo.SaveClaim(ctx, c); err != nil {
				t.Fatalf("SaveClaim failed: %v", err)
			}
		}

		prior, err := repo.LastClaimTime(ctx, "POL-2002", current.ID, current.CreatedAt)
		if err != nil {
			t.Fatalf("LastClaimTime failed: %v", err)
		}
		if prior == nil || !prior.Equal(late.CreatedAt) {
			t.Errorf("expected %v, got %v", late.CreatedAt, prior)
		}

		none, err := repo.LastClaimTime(ctx, "POL-9999", "x", now)
		if err != nil {
			t.Fatalf("LastClaimTime failed: %v", err)
		}
		if none != nil {
			t.Errorf("expected nil for unknown policy, got %v", none)
		}
	})

	t.Run("ListClaimsByPolicy", func(t *testing.T) {
		claims, err := repo.ListClaimsByPolicy(ctx, "POL-2002")
		if err != nil {
			t.Fatalf("ListClaimsByPolicy failed: %v", err)
		}
		if len(claims) != 3 {
			t.Fatalf("expected 3 claims, got %d", len(claims))
		}
		// Newest first.
		if claims[0].ID != "c-009" {
			t.Errorf("expected c-009 first, got %s", claims[0].ID)
		}
	})

	t.Run("PolicyCatalog", func(t *testing.T) {
		policy := &domain.Policy{
			ID:         "health-plus",
			PolicyType: "health",
			Title:      "Health Plus",
			Provider:   domain.Provider{Name: "Acme Mutual", Rating: 4.2},
			Premium:    18000,
			Deductible: 2000,
			Coverage:   map[string]any{"hospitalization": 750000.0, "ambulance": "included"},
			TermMonths: 12,
		}
		if err := repo.SavePolicy(ctx, policy); err != nil {
			t.Fatalf("SavePolicy failed: %v", err)
		}

		// Upsert replaces fields.
		policy.Premium = 19000
		if err := repo.SavePolicy(ctx, policy); err != nil {
			t.Fatalf("SavePolicy upsert failed: %v", err)
		}

		retrieved, err := repo.GetPolicy(ctx, "health-plus")
		if err != nil {
			t.Fatalf("GetPolicy failed: %v", err)
		}
		if retrieved.Premium != 19000 {
			t.Errorf("expected upserted premium 19000, got %v", retrieved.Premium)
		}
		if retrieved.CoverageAmount() != 750000 {
			t.Errorf("coverage round-trip failed: %v", retrieved.Coverage)
		}

		list, err := repo.ListPolicies(ctx, "HEALTH")
		if err != nil {
			t.Fatalf("ListPolicies failed: %v", err)
		}
		if len(list) != 1 {
			t.Errorf("expected 1 health policy (case-insensitive), got %d", len(list))
		}
	})

	t.Run("FraudRuleConfigs", func(t *testing.T) {
		rule := &domain.FraudRuleConfig{
			Code:       "ROUND_AMOUNT",
			Name:       "Suspiciously round amount",
			Version:    "1.0.0",
			Expression: `amount >= 100000.0 && amount == double(int(amount / 100000.0)) * 100000.0`,
			Severity:   domain.SeverityMedium,
			Enabled:    true,
		}
		if err := repo.SaveFraudRuleConfig(ctx, rule); err != nil {
			t.Fatalf("SaveFraudRuleConfig failed: %v", err)
		}

		// A newer version shadows the old one in listings.
		rule.Version = "1.1.0"
		rule.Severity = domain.SeverityHigh
		if err := repo.SaveFraudRuleConfig(ctx, rule); err != nil {
			t.Fatalf("SaveFraudRuleConfig v1.1.0 failed: %v", err)
		}

		configs, err := repo.ListFraudRuleConfigs(ctx)
		if err != nil {
			t.Fatalf("ListFraudRuleConfigs failed: %v", err)
		}
		if len(configs) != 1 {
			t.Fatalf("expected 1 config, got %d", len(configs))
		}
		if configs[0].Version != "1.1.0" || configs[0].Severity != domain.SeverityHigh {
			t.Errorf("expected latest version, got %+v", configs[0])
		}
	})
}

// Two callers race the same transition; exactly one wins.
func TestConcurrentTransition(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	claim := testClaim("c-race")
	claim.Status = domain.StatusUnderReview
	if err := repo.SaveClaim(ctx, claim); err != nil {
		t.Fatalf("SaveClaim failed: %v", err)
	}

	outcomes := make([]error, 2)
	var wg sync.WaitGroup
	for i, target := range []domain.ClaimStatus{domain.StatusApproved, domain.StatusRejected} {
		wg.Add(1)
		go func(i int, target domain.ClaimStatus) {
			defer wg.Done()
			update := *claim
			update.Status = target
			update.UpdatedAt = time.Now().UTC()
			outcomes[i] = repo.UpdateClaimStatus(ctx, &update, domain.StatusUnderReview)
		}(i, target)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range outcomes {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrConcurrentModification):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || conflicts != 1 {
		t.Errorf("expected exactly one winner, got %d wins / %d conflicts", wins, conflicts)
	}

	final, err := repo.GetClaim(ctx, claim.ID)
	if err != nil {
		t.Fatalf("GetClaim failed: %v", err)
	}
	if final.Status != domain.StatusApproved && final.Status != domain.StatusRejected {
		t.Errorf("expected a terminal review outcome, got %s", final.Status)
	}
}

func TestUnsupportedDriver(t *testing.T) {
	cfg := domain.RepositoryConfig{
		Driver: "mysql",
	}

	_, err := New(cfg)
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM t", "SELECT * FROM t"},
	}

	for _, tt := range tests {
		result := repo.rebind(tt.input)
		if result != tt.expected {
			t.Errorf("rebind(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
