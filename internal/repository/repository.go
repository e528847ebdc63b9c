// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveClaim stores a newly filed claim.
func (r *SQLRepository) SaveClaim(ctx context.Context, claim *domain.Claim) error {
	if claim.ID == "" {
		return fmt.Errorf("%w: claim id is required", domain.ErrValidation)
	}

	query := `
		INSERT INTO claims (
			id, claim_number, policy_reference, claim_type, incident_date,
			amount_claimed, description, status, rejection_reason, admin_notes,
			created_at, updated_at, disbursed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		claim.ID, claim.ClaimNumber, claim.PolicyReference,
		claim.Type, claim.IncidentDate,
		claim.AmountClaimed, claim.Description, claim.Status,
		claim.RejectionReason, claim.AdminNotes,
		claim.CreatedAt, claim.UpdatedAt, nullTime(claim.DisbursedAt),
	)
	return err
}

// GetClaim retrieves a claim by ID, with its documents and fraud flags.
func (r *SQLRepository) GetClaim(ctx context.Context, claimID string) (*domain.Claim, error) {
	query := `
		SELECT id, claim_number, policy_reference, claim_type, incident_date,
			   amount_claimed, description, status, rejection_reason, admin_notes,
			   created_at, updated_at, disbursed_at
		FROM claims
		WHERE id = ?
	`

	claim, err := r.scanClaim(r.db.QueryRowContext(ctx, r.rebind(query), claimID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: claim %s", domain.ErrNotFound, claimID)
	}
	if err != nil {
		return nil, err
	}

	if claim.Documents, err = r.ListDocuments(ctx, claimID); err != nil {
		return nil, err
	}
	if claim.FraudFlags, err = r.ListFraudFlags(ctx, claimID); err != nil {
		return nil, err
	}

	return claim, nil
}

// ListClaimsByPolicy retrieves all claims filed against a policy, newest
// first. Documents and flags are not loaded.
func (r *SQLRepository) ListClaimsByPolicy(ctx context.Context, policyReference string) ([]*domain.Claim, error) {
	query := `
		SELECT id, claim_number, policy_reference, claim_type, incident_date,
			   amount_claimed, description, status, rejection_reason, admin_notes,
			   created_at, updated_at, disbursed_at
		FROM claims
		WHERE policy_reference = ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), policyReference)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []*domain.Claim
	for rows.Next() {
		claim, err := r.scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, claim)
	}

	return claims, rows.Err()
}

// UpdateClaimStatus persists a status transition. The WHERE clause on the
// expected status makes the write conditional: a concurrent transition
// that got there first leaves zero rows affected.
func (r *SQLRepository) UpdateClaimStatus(ctx context.Context, claim *domain.Claim, expected domain.ClaimStatus) error {
	query := `
		UPDATE claims
		SET status = ?, rejection_reason = ?, admin_notes = ?,
			updated_at = ?, disbursed_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		claim.Status, claim.RejectionReason, claim.AdminNotes,
		claim.UpdatedAt, nullTime(claim.DisbursedAt),
		claim.ID, expected,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists int
		check := r.rebind(`SELECT COUNT(1) FROM claims WHERE id = ?`)
		if err := r.db.QueryRowContext(ctx, check, claim.ID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return fmt.Errorf("%w: claim %s", domain.ErrNotFound, claim.ID)
		}
		return fmt.Errorf("%w: claim %s is no longer %s",
			domain.ErrConcurrentModification, claim.ID, expected)
	}

	return nil
}

// SaveDocument stores a document reference. Documents are append-only.
func (r *SQLRepository) SaveDocument(ctx context.Context, doc *domain.Document) error {
	query := `
		INSERT INTO documents (id, claim_id, doc_type, storage_ref, fingerprint, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		doc.ID, doc.ClaimID, doc.Type, doc.StorageRef, doc.Fingerprint, doc.UploadedAt,
	)
	return err
}

// ListDocuments retrieves a claim's documents in upload order.
func (r *SQLRepository) ListDocuments(ctx context.Context, claimID string) ([]domain.Document, error) {
	query := `
		SELECT id, claim_id, doc_type, storage_ref, fingerprint, uploaded_at
		FROM documents
		WHERE claim_id = ?
		ORDER BY uploaded_at
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		var doc domain.Document
		var fingerprint sql.NullString

		if err := rows.Scan(
			&doc.ID, &doc.ClaimID, &doc.Type,
			&doc.StorageRef, &fingerprint, &doc.UploadedAt,
		); err != nil {
			return nil, err
		}

		doc.Fingerprint = fingerprint.String
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}

// FindClaimsByFingerprint returns IDs of other claims carrying a document
// with the given content fingerprint.
func (r *SQLRepository) FindClaimsByFingerprint(ctx context.Context, fingerprint, excludeClaimID string) ([]string, error) {
	if fingerprint == "" {
		return nil, nil
	}

	query := `
		SELECT DISTINCT claim_id
		FROM documents
		WHERE fingerprint = ? AND claim_id != ?
		ORDER BY claim_id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), fingerprint, excludeClaimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claimIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		claimIDs = append(claimIDs, id)
	}

	return claimIDs, rows.Err()
}

// AppendFraudFlags stores fraud flags against a claim. The conflict
// clause makes re-appending an identical flag a no-op, matching the
// dedupe key the workflow applies in memory.
func (r *SQLRepository) AppendFraudFlags(ctx context.Context, claimID string, flags []domain.FraudFlag) error {
	query := `
		INSERT INTO fraud_flags (id, claim_id, rule_code, severity, details, details_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (claim_id, rule_code, details_hash) DO NOTHING
	`

	for _, flag := range flags {
		details, _ := json.Marshal(flag.Details)

		if _, err := r.db.ExecContext(ctx, r.rebind(query),
			flag.ID, claimID, flag.RuleCode, flag.Severity,
			string(details), flag.DetailsHash, flag.CreatedAt,
		); err != nil {
			return err
		}
	}

	return nil
}

// ListFraudFlags retrieves a claim's fraud flags in creation order.
func (r *SQLRepository) ListFraudFlags(ctx context.Context, claimID string) ([]domain.FraudFlag, error) {
	query := `
		SELECT id, claim_id, rule_code, severity, details, details_hash, created_at
		FROM fraud_flags
		WHERE claim_id = ?
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var flags []domain.FraudFlag
	for rows.Next() {
		var flag domain.FraudFlag
		var details string

		if err := rows.Scan(
			&flag.ID, &flag.ClaimID, &flag.RuleCode, &flag.Severity,
			&details, &flag.DetailsHash, &flag.CreatedAt,
		); err != nil {
			return nil, err
		}

		if details != "" && details != "null" {
			json.Unmarshal([]byte(details), &flag.Details)
		}
		flags = append(flags, flag)
	}

	return flags, rows.Err()
}

// LastClaimTime returns the filing time of the policy's most recent claim
// created before the given claim, or nil when none exists.
func (r *SQLRepository) LastClaimTime(ctx context.Context, policyReference, beforeClaimID string, before time.Time) (*time.Time, error) {
	query := `
		SELECT created_at
		FROM claims
		WHERE policy_reference = ? AND id != ? AND created_at < ?
		ORDER BY created_at DESC
		LIMIT 1
	`

	var t time.Time
	err := r.db.QueryRowContext(ctx, r.rebind(query), policyReference, beforeClaimID, before).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &t, nil
}

// SavePolicy upserts a catalog policy.
func (r *SQLRepository) SavePolicy(ctx context.Context, policy *domain.Policy) error {
	if policy.ID == "" {
		return fmt.Errorf("%w: policy id is required", domain.ErrValidation)
	}

	coverage, _ := json.Marshal(policy.Coverage)

	query := `
		INSERT INTO policies (
			id, policy_type, title, provider_name, provider_rating,
			premium, deductible, claim_settlement_ratio, coverage, term_months
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			policy_type = excluded.policy_type,
			title = excluded.title,
			provider_name = excluded.provider_name,
			provider_rating = excluded.provider_rating,
			premium = excluded.premium,
			deductible = excluded.deductible,
			claim_settlement_ratio = excluded.claim_settlement_ratio,
			coverage = excluded.coverage,
			term_months = excluded.term_months
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		policy.ID, policy.PolicyType, policy.Title,
		policy.Provider.Name, policy.Provider.Rating,
		policy.Premium, policy.Deductible, policy.ClaimSettlementRatio,
		string(coverage), policy.TermMonths,
	)
	return err
}

// GetPolicy retrieves a catalog policy by ID.
func (r *SQLRepository) GetPolicy(ctx context.Context, policyID string) (*domain.Policy, error) {
	query := `
		SELECT id, policy_type, title, provider_name, provider_rating,
			   premium, deductible, claim_settlement_ratio, coverage, term_months
		FROM policies
		WHERE id = ?
	`

	policy, err := scanPolicy(r.db.QueryRowContext(ctx, r.rebind(query), policyID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: policy %s", domain.ErrNotFound, policyID)
	}
	return policy, err
}

// ListPolicies retrieves catalog policies, optionally filtered by type.
func (r *SQLRepository) ListPolicies(ctx context.Context, policyType string) ([]*domain.Policy, error) {
	query := `
		SELECT id, policy_type, title, provider_name, provider_rating,
			   premium, deductible, claim_settlement_ratio, coverage, term_months
		FROM policies
	`
	args := []any{}
	if policyType != "" {
		query += ` WHERE LOWER(policy_type) = LOWER(?)`
		args = append(args, policyType)
	}
	query += ` ORDER BY premium`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []*domain.Policy
	for rows.Next() {
		policy, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, policy)
	}

	return policies, rows.Err()
}

// SaveFraudRuleConfig upserts a custom fraud rule definition.
func (r *SQLRepository) SaveFraudRuleConfig(ctx context.Context, cfg *domain.FraudRuleConfig) error {
	if cfg.Code == "" || cfg.Expression == "" {
		return fmt.Errorf("%w: rule code and expression are required", domain.ErrValidation)
	}

	enabled := 0
	if cfg.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO fraud_rules (
			code, name, description, version, expression, severity, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (code, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			severity = excluded.severity,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		cfg.Code, cfg.Name, cfg.Description, cfg.Version,
		cfg.Expression, cfg.Severity, enabled,
		now, now,
	)
	return err
}

// ListFraudRuleConfigs retrieves all enabled custom fraud rules, newest
// version first per code.
func (r *SQLRepository) ListFraudRuleConfigs(ctx context.Context) ([]*domain.FraudRuleConfig, error) {
	query := `
		SELECT code, name, description, version, expression, severity, enabled
		FROM fraud_rules
		WHERE enabled = 1
		ORDER BY code, version DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.FraudRuleConfig
	seen := make(map[string]bool)
	for rows.Next() {
		var cfg domain.FraudRuleConfig
		var description sql.NullString
		var enabled int

		if err := rows.Scan(
			&cfg.Code, &cfg.Name, &description, &cfg.Version,
			&cfg.Expression, &cfg.Severity, &enabled,
		); err != nil {
			return nil, err
		}

		// Keep only the latest version per code.
		if seen[cfg.Code] {
			continue
		}
		seen[cfg.Code] = true

		cfg.Description = description.String
		cfg.Enabled = enabled == 1
		configs = append(configs, &cfg)
	}

	return configs, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func (r *SQLRepository) scanClaim(row scanner) (*domain.Claim, error) {
	var claim domain.Claim
	var description, rejectionReason, adminNotes sql.NullString
	var disbursedAt sql.NullTime

	if err := row.Scan(
		&claim.ID, &claim.ClaimNumber, &claim.PolicyReference,
		&claim.Type, &claim.IncidentDate,
		&claim.AmountClaimed, &description, &claim.Status,
		&rejectionReason, &adminNotes,
		&claim.CreatedAt, &claim.UpdatedAt, &disbursedAt,
	); err != nil {
		return nil, err
	}

	claim.Description = description.String
	claim.RejectionReason = rejectionReason.String
	claim.AdminNotes = adminNotes.String
	if disbursedAt.Valid {
		t := disbursedAt.Time
		claim.DisbursedAt = &t
	}

	return &claim, nil
}

func scanPolicy(row scanner) (*domain.Policy, error) {
	var policy domain.Policy
	var providerName, coverage sql.NullString

	if err := row.Scan(
		&policy.ID, &policy.PolicyType, &policy.Title,
		&providerName, &policy.Provider.Rating,
		&policy.Premium, &policy.Deductible, &policy.ClaimSettlementRatio,
		&coverage, &policy.TermMonths,
	); err != nil {
		return nil, err
	}

	policy.Provider.Name = providerName.String
	if coverage.String != "" && coverage.String != "null" {
		json.Unmarshal([]byte(coverage.String), &policy.Coverage)
	}

	return &policy, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
