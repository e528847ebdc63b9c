package fraud

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// DetailsHash computes a deterministic digest of a rule firing. Two flags
// with the same rule code and the same deriving facts hash identically,
// which is what re-evaluation dedupe keys on. encoding/json emits map
// keys in sorted order, so the digest is stable across runs.
func DetailsHash(ruleCode string, details map[string]any) string {
	payload, _ := json.Marshal(details)
	sum := sha256.Sum256(append([]byte(ruleCode+":"), payload...))
	return hex.EncodeToString(sum[:])
}

// NewFlag constructs an immutable fraud flag for a rule firing.
func NewFlag(claimID, ruleCode string, severity domain.Severity, details map[string]any) domain.FraudFlag {
	return domain.FraudFlag{
		ID:          uuid.New().String(),
		ClaimID:     claimID,
		RuleCode:    ruleCode,
		Severity:    severity,
		Details:     details,
		DetailsHash: DetailsHash(ruleCode, details),
		CreatedAt:   time.Now().UTC(),
	}
}
