package recommend

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/premium"
)

func newTestRanker() *Ranker {
	return NewRanker(domain.DefaultRankingConfig(), premium.NewScorer(domain.DefaultPremiumConfig()))
}

func healthPolicy(id string, annualPremium, coverage float64) *domain.Policy {
	return &domain.Policy{
		ID:         id,
		PolicyType: "health",
		Title:      "Plan " + id,
		Provider:   domain.Provider{Name: "Acme Mutual", Rating: 4.0},
		Premium:    annualPremium,
		Coverage:   map[string]any{"sum_assured": coverage, "ambulance": "included"},
		TermMonths: 12,
	}
}

func normalProfile() *domain.PreferenceProfile {
	return &domain.PreferenceProfile{
		InsuranceType: "health",
		BudgetMax:     20000,
		Priority:      domain.PriorityBalanced,
		Age:           40,
		RiskBracket:   domain.RiskNormal,
	}
}

func TestTypeFilteringExcludesRatherThanZeroes(t *testing.T) {
	ranker := newTestRanker()

	motor := healthPolicy("motor-1", 8000, 900000)
	motor.PolicyType = "motor"

	result, err := ranker.Rank([]*domain.Policy{
		healthPolicy("health-1", 12000, 600000),
		motor,
	}, normalProfile())
	if err != nil {
		t.Fatalf("rank failed: %v", err)
	}

	if len(result.Ranked) != 1 {
		t.Fatalf("expected 1 scored policy, got %d", len(result.Ranked))
	}
	if result.Ranked[0].Policy.ID != "health-1" {
		t.Errorf("expected only the health policy, got %s", result.Ranked[0].Policy.ID)
	}
}

func TestScoreAccumulation(t *testing.T) {
	ranker := newTestRanker()

	// Within budget (+25) and above the normal-risk threshold (+25):
	// 30 + 25 + 25 = 80.
	result, err := ranker.Rank([]*domain.Policy{healthPolicy("p1", 12000, 600000)}, normalProfile())
	if err != nil {
		t.Fatalf("rank failed: %v", err)
	}
	if got := result.Ranked[0].Score; got != 80 {
		t.Errorf("expected score 80, got %v", got)
	}

	// Over budget (-15) and below threshold (-5): 30 - 15 - 5 = 10,
	// clamped up to the floor of 40.
	result, err = ranker.Rank([]*domain.Policy{healthPolicy("p2", 50000, 100000)}, normalProfile())
	if err != nil {
		t.Fatalf("rank failed: %v", err)
	}
	if got := result.Ranked[0].Score; got != 40 {
		t.Errorf("expected floor-clamped score 40, got %v", got)
	}
}

func TestScoreBounds(t *testing.T) {
	ranker := newTestRanker()
	cfg := domain.DefaultRankingConfig()

	premiums := []float64{1000, 9000, 19999, 20001, 80000}
	coverages := []float64{0, 100000, 500001, 1000001, 5000000}
	brackets := []domain.RiskBracket{domain.RiskLow, domain.RiskNormal, domain.RiskHigh}
	priorities := []domain.Priority{domain.PriorityCheap, domain.PriorityBalanced, domain.PriorityCoverage}

	var catalog []*domain.Policy
	i := 0
	for _, p := range premiums {
		for _, c := range coverages {
			i++
			catalog = append(catalog, healthPolicy(fmt.Sprintf("p%d", i), p, c))
		}
	}

	for _, bracket := range brackets {
		for _, prio := range priorities {
			profile := normalProfile()
			profile.RiskBracket = bracket
			profile.Priority = prio

			result, err := ranker.Rank(catalog, profile)
			if err != nil {
				t.Fatalf("rank failed for %s/%s: %v", bracket, prio, err)
			}
			for _, sp := range result.Ranked {
				if sp.Score < cfg.ScoreFloor || sp.Score > cfg.ScoreCeiling {
					t.Errorf("%s/%s: score %v outside [%v, %v] for %s",
						bracket, prio, sp.Score, cfg.ScoreFloor, cfg.ScoreCeiling, sp.Policy.ID)
				}
			}
		}
	}
}

func TestRankingOrderAndTieBreak(t *testing.T) {
	ranker := newTestRanker()

	// p-cheap and p-dear score identically; the cheaper premium wins the tie.
	catalog := []*domain.Policy{
		healthPolicy("p-dear", 15000, 600000),
		healthPolicy("p-cheap", 9000, 600000),
		healthPolicy("p-weak", 50000, 100000),
	}

	result, err := ranker.Rank(catalog, normalProfile())
	if err != nil {
		t.Fatalf("rank failed: %v", err)
	}

	for i := 1; i < len(result.Ranked); i++ {
		prev, cur := result.Ranked[i-1], result.Ranked[i]
		if cur.Score > prev.Score {
			t.Errorf("ranked not non-increasing at %d: %v then %v", i, prev.Score, cur.Score)
		}
		if cur.Score == prev.Score && cur.Policy.Premium < prev.Policy.Premium {
			t.Errorf("tie at score %v not broken by ascending premium", cur.Score)
		}
	}

	if result.Ranked[0].Policy.ID != "p-cheap" {
		t.Errorf("expected p-cheap first on the tie-break, got %s", result.Ranked[0].Policy.ID)
	}
	if result.Best == nil || result.Best.Policy.ID != "p-cheap" {
		t.Error("best must be the first ranked element")
	}
}

func TestEmptyCatalogHasNoBest(t *testing.T) {
	ranker := newTestRanker()

	result, err := ranker.Rank(nil, normalProfile())
	if err != nil {
		t.Fatalf("rank failed: %v", err)
	}
	if len(result.Ranked) != 0 {
		t.Errorf("expected empty ranking, got %d", len(result.Ranked))
	}
	if result.Best != nil {
		t.Error("best must be absent for an empty ranking")
	}
}

func TestRiskBracketTiers(t *testing.T) {
	ranker := newTestRanker()

	cases := []struct {
		bracket  domain.RiskBracket
		coverage float64
		want     float64
	}{
		// high risk: 30 + 25 + 30 = 85 above 1M, 30 + 25 - 10 = 45 below.
		{domain.RiskHigh, 1500000, 85},
		{domain.RiskHigh, 800000, 45},
		// normal risk: 80 above 500k, 50 below.
		{domain.RiskNormal, 600000, 80},
		{domain.RiskNormal, 400000, 50},
		// low risk: 75 above 200k, no penalty below: 55.
		{domain.RiskLow, 300000, 75},
		{domain.RiskLow, 100000, 55},
	}

	for _, tc := range cases {
		profile := normalProfile()
		profile.RiskBracket = tc.bracket

		result, err := ranker.Rank([]*domain.Policy{healthPolicy("p", 12000, tc.coverage)}, profile)
		if err != nil {
			t.Fatalf("rank failed: %v", err)
		}
		if got := result.Ranked[0].Score; got != tc.want {
			t.Errorf("%s risk, coverage %v: expected %v, got %v", tc.bracket, tc.coverage, tc.want, got)
		}
	}
}

func TestReasonClauseOrder(t *testing.T) {
	ranker := newTestRanker()

	result, err := ranker.Rank([]*domain.Policy{healthPolicy("p", 12000, 600000)}, normalProfile())
	if err != nil {
		t.Fatalf("rank failed: %v", err)
	}

	reason := result.Ranked[0].Reason
	budgetIdx := strings.Index(reason, "budget")
	coverageIdx := strings.Index(reason, "coverage")
	if budgetIdx < 0 || coverageIdx < 0 {
		t.Fatalf("reason missing a clause: %q", reason)
	}
	if budgetIdx > coverageIdx {
		t.Errorf("budget clause must precede the coverage clause: %q", reason)
	}
}

func TestBudgetTierThresholds(t *testing.T) {
	ranker := newTestRanker()

	profile := normalProfile()
	profile.BudgetMax = 0
	profile.BudgetTier = domain.BudgetLow // 15000 default threshold

	result, err := ranker.Rank([]*domain.Policy{healthPolicy("p", 14000, 600000)}, profile)
	if err != nil {
		t.Fatalf("rank failed: %v", err)
	}
	if !strings.Contains(result.Ranked[0].Reason, "fits your budget") {
		t.Errorf("14000 should fit the low tier: %q", result.Ranked[0].Reason)
	}

	result, err = ranker.Rank([]*domain.Policy{healthPolicy("p", 16000, 600000)}, profile)
	if err != nil {
		t.Fatalf("rank failed: %v", err)
	}
	if !strings.Contains(result.Ranked[0].Reason, "exceeds your budget") {
		t.Errorf("16000 should exceed the low tier: %q", result.Ranked[0].Reason)
	}
}

func TestPriorityBiasesAdjustments(t *testing.T) {
	ranker := newTestRanker()

	// Over budget but rich coverage: the coverage priority should forgive
	// the budget miss more than the cheap priority does.
	policy := healthPolicy("p", 30000, 1500000)

	scores := map[domain.Priority]float64{}
	for _, prio := range []domain.Priority{domain.PriorityCheap, domain.PriorityCoverage} {
		profile := normalProfile()
		profile.RiskBracket = domain.RiskHigh
		profile.Priority = prio
		profile.Age = 0 // keep raw premium comparison

		result, err := ranker.Rank([]*domain.Policy{policy}, profile)
		if err != nil {
			t.Fatalf("rank failed: %v", err)
		}
		scores[prio] = result.Ranked[0].Score
	}

	if scores[domain.PriorityCoverage] <= scores[domain.PriorityCheap] {
		t.Errorf("coverage priority should outscore cheap here: %v vs %v",
			scores[domain.PriorityCoverage], scores[domain.PriorityCheap])
	}
}

func TestInvalidProfiles(t *testing.T) {
	ranker := newTestRanker()
	catalog := []*domain.Policy{healthPolicy("p", 12000, 600000)}

	missingType := normalProfile()
	missingType.InsuranceType = ""
	if _, err := ranker.Rank(catalog, missingType); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("missing type: expected ErrValidation, got %v", err)
	}

	badBracket := normalProfile()
	badBracket.RiskBracket = "extreme"
	if _, err := ranker.Rank(catalog, badBracket); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("bad bracket: expected ErrValidation, got %v", err)
	}

	noBudget := normalProfile()
	noBudget.BudgetMax = 0
	noBudget.BudgetTier = ""
	if _, err := ranker.Rank(catalog, noBudget); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("no budget: expected ErrValidation, got %v", err)
	}
}
