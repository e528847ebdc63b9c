package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/fraud"
	"github.com/opensource-finance/kestrel/internal/workflow"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	svc     *workflow.Service
	repo    domain.Repository
	cache   domain.Cache
	engine  *fraud.Engine
	version string
}

// NewHandler creates a new API handler.
func NewHandler(svc *workflow.Service, repo domain.Repository, cache domain.Cache, engine *fraud.Engine, version string) *Handler {
	return &Handler{
		svc:     svc,
		repo:    repo,
		cache:   cache,
		engine:  engine,
		version: version,
	}
}

// CreateClaim handles POST /claims.
func (h *Handler) CreateClaim(w http.ResponseWriter, r *http.Request) {
	var req domain.ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	claim, err := h.svc.CreateClaim(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, claim)
}

// GetClaim handles GET /claims/{id}.
func (h *Handler) GetClaim(w http.ResponseWriter, r *http.Request) {
	claimID := chi.URLParam(r, "id")
	if claimID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "claim id is required",
		})
		return
	}

	claim, err := h.svc.GetClaim(r.Context(), claimID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, claim)
}

// ListClaims handles GET /claims. The policy query parameter is required;
// claims are only ever browsed per policy.
func (h *Handler) ListClaims(w http.ResponseWriter, r *http.Request) {
	policyRef := strings.TrimSpace(r.URL.Query().Get("policy"))
	if policyRef == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "policy query parameter is required",
		})
		return
	}

	claims, err := h.repo.ListClaimsByPolicy(r.Context(), policyRef)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"policyReference": policyRef,
		"claims":          claims,
		"count":           len(claims),
	})
}

// AttachDocumentRequest is the request body for attaching a document.
type AttachDocumentRequest struct {
	DocType     string `json:"docType"`
	StorageRef  string `json:"storageRef"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// AttachDocument handles POST /claims/{id}/documents.
func (h *Handler) AttachDocument(w http.ResponseWriter, r *http.Request) {
	claimID := chi.URLParam(r, "id")

	var req AttachDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	doc, err := h.svc.AttachDocument(r.Context(), claimID, req.DocType, req.StorageRef, req.Fingerprint)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, doc)
}

// SubmitClaim handles POST /claims/{id}/submit.
func (h *Handler) SubmitClaim(w http.ResponseWriter, r *http.Request) {
	claimID := chi.URLParam(r, "id")

	claim, err := h.svc.SubmitClaim(r.Context(), claimID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, claim)
}

// TransitionRequest is the request body for a status transition.
type TransitionRequest struct {
	ExpectedStatus  string `json:"expectedStatus"`
	TargetStatus    string `json:"targetStatus"`
	AdminNotes      string `json:"adminNotes,omitempty"`
	RejectionReason string `json:"rejectionReason,omitempty"`
}

// TransitionClaim handles POST /claims/{id}/transition.
func (h *Handler) TransitionClaim(w http.ResponseWriter, r *http.Request) {
	claimID := chi.URLParam(r, "id")

	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	claim, err := h.svc.TransitionStatus(r.Context(), claimID, req.ExpectedStatus, req.TargetStatus, req.AdminNotes, req.RejectionReason)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, claim)
}

// FlagFraudRequest is the request body for a manual fraud flag.
type FlagFraudRequest struct {
	Reason string `json:"reason"`
}

// FlagClaimFraud handles POST /claims/{id}/fraud-flag.
func (h *Handler) FlagClaimFraud(w http.ResponseWriter, r *http.Request) {
	claimID := chi.URLParam(r, "id")

	var req FlagFraudRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	claim, err := h.svc.FlagFraud(r.Context(), claimID, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, claim)
}

// EvaluateRequest optionally supplies historical facts the caller already
// holds. Omitted facts are derived from the repository.
type EvaluateRequest struct {
	History *domain.HistoricalContext `json:"history,omitempty"`
}

// EvaluateClaim handles POST /claims/{id}/evaluate.
func (h *Handler) EvaluateClaim(w http.ResponseWriter, r *http.Request) {
	claimID := chi.URLParam(r, "id")

	// An empty body means no supplied history.
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	eval, err := h.svc.EvaluateFraud(r.Context(), claimID, req.History)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, eval)
}

// ListClaimFlags handles GET /claims/{id}/flags.
func (h *Handler) ListClaimFlags(w http.ResponseWriter, r *http.Request) {
	claimID := chi.URLParam(r, "id")

	// Existence check first so an unknown claim is a 404, not an empty list.
	if _, err := h.svc.GetClaim(r.Context(), claimID); err != nil {
		writeError(w, err)
		return
	}

	flags, err := h.repo.ListFraudFlags(r.Context(), claimID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"claimId": claimID,
		"flags":   flags,
		"count":   len(flags),
	})
}

// QuoteRequest is the request body for POST /quotes.
type QuoteRequest struct {
	PolicyID           string  `json:"policyId"`
	Age                int     `json:"age"`
	CoverageMultiplier float64 `json:"coverageMultiplier"`
}

// QuotePremium handles POST /quotes.
func (h *Handler) QuotePremium(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.PolicyID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "policyId is required",
		})
		return
	}

	quote, err := h.svc.QuotePremium(r.Context(), req.PolicyID, req.Age, req.CoverageMultiplier)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, quote)
}

// RecommendationRequest is the request body for POST /recommendations.
// Policies may be supplied inline; when omitted the stored catalog for the
// profile's insurance type is used.
type RecommendationRequest struct {
	Profile  *domain.PreferenceProfile `json:"profile"`
	Policies []*domain.Policy          `json:"policies,omitempty"`
}

// RankRecommendations handles POST /recommendations.
func (h *Handler) RankRecommendations(w http.ResponseWriter, r *http.Request) {
	var req RecommendationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	ranked, err := h.svc.RankRecommendations(r.Context(), req.Policies, req.Profile)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ranked)
}

// ListPolicies handles GET /policies. An optional ?type= query filters by
// insurance type, case-insensitively.
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	policyType := strings.TrimSpace(r.URL.Query().Get("type"))

	policies, err := h.repo.ListPolicies(r.Context(), policyType)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"policies": policies,
		"count":    len(policies),
	})
}

// GetPolicy handles GET /policies/{id}.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	policyID := chi.URLParam(r, "id")
	if policyID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "policy id is required",
		})
		return
	}

	policy, err := h.repo.GetPolicy(r.Context(), policyID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, policy)
}

// CreatePolicy handles POST /policies. Saving is an upsert; the cached copy
// is refreshed so quotes see the new premium immediately.
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var policy domain.Policy
	if err := json.NewDecoder(r.Body).Decode(&policy); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if policy.ID == "" || policy.PolicyType == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id and policyType are required",
		})
		return
	}
	if policy.Premium <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "premium must be positive",
		})
		return
	}

	if err := h.repo.SavePolicy(ctx, &policy); err != nil {
		slog.Error("failed to save policy", "id", policy.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save policy",
		})
		return
	}

	if h.cache != nil {
		if err := h.cache.SetPolicy(ctx, policy.ID, &policy, 10*time.Minute); err != nil {
			slog.Warn("failed to refresh policy cache", "id", policy.ID, "error", err)
		}
	}

	slog.Info("policy saved", "id", policy.ID, "type", policy.PolicyType)
	writeJSON(w, http.StatusCreated, &policy)
}

// ListFraudRules returns all fraud rules loaded in the engine. Custom rules
// are loaded from the database at startup and can be reloaded via
// POST /fraud-rules/reload.
func (h *Handler) ListFraudRules(w http.ResponseWriter, r *http.Request) {
	loaded := h.engine.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  loaded,
		"count":  len(loaded),
		"source": "database",
	})
}

// GetFraudRule retrieves a loaded rule by code.
func (h *Handler) GetFraudRule(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	if code == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule code is required",
		})
		return
	}

	for _, rule := range h.engine.GetLoadedRules() {
		if rule.Code == code {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating a custom fraud rule.
type CreateRuleRequest struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression"`
	Severity    string `json:"severity"`
	Enabled     bool   `json:"enabled"`
}

// CreateFraudRule creates a custom fraud rule and saves it to the database.
// The CEL expression is validated by loading it into the engine first.
func (h *Handler) CreateFraudRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Code == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "code, name, and expression are required",
		})
		return
	}

	severity, err := domain.ParseSeverity(req.Severity)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	ruleConfig := &domain.FraudRuleConfig{
		Code:        req.Code,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Expression:  req.Expression,
		Severity:    severity,
		Enabled:     req.Enabled,
	}

	// Validate the CEL expression by attempting to load
	if err := h.engine.LoadRule(ruleConfig); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveFraudRuleConfig(ctx, ruleConfig); err != nil {
			slog.Error("failed to save fraud rule config", "code", ruleConfig.Code, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	slog.Info("fraud rule created", "code", ruleConfig.Code, "name", ruleConfig.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    ruleConfig,
		"message": "Rule created. Call POST /fraud-rules/reload to apply changes.",
	})
}

// ReloadFraudRules reloads custom fraud rules from the database into the
// engine. This enables hot-reloading without server restart.
func (h *Handler) ReloadFraudRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	dbRules, err := h.repo.ListFraudRuleConfigs(ctx)
	if err != nil {
		slog.Error("failed to list fraud rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.engine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload fraud rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("fraud rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

// Health returns the health status of the server and its dependencies.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// writeError maps domain sentinel errors to HTTP status codes. Anything
// unmapped is a 500 and gets logged.
func writeError(w http.ResponseWriter, err error) {
	var status int
	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrConcurrentModification):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrPrecondition):
		status = http.StatusUnprocessableEntity
	default:
		slog.Error("request failed", "error", err)
		status = http.StatusInternalServerError
		writeJSON(w, status, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
