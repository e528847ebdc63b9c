package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaClaims = `
CREATE TABLE IF NOT EXISTS claims (
    id TEXT PRIMARY KEY,
    claim_number TEXT NOT NULL UNIQUE,
    policy_reference TEXT NOT NULL,
    claim_type TEXT NOT NULL,
    incident_date TIMESTAMP NOT NULL,
    amount_claimed REAL NOT NULL,
    description TEXT,
    status TEXT NOT NULL,
    rejection_reason TEXT,
    admin_notes TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    disbursed_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_claims_policy ON claims(policy_reference);
CREATE INDEX IF NOT EXISTS idx_claims_status ON claims(status);
CREATE INDEX IF NOT EXISTS idx_claims_policy_created ON claims(policy_reference, created_at);
`

const schemaDocuments = `
CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    claim_id TEXT NOT NULL,
    doc_type TEXT NOT NULL,
    storage_ref TEXT NOT NULL,
    fingerprint TEXT,
    uploaded_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_claim ON documents(claim_id);
CREATE INDEX IF NOT EXISTS idx_documents_fingerprint ON documents(fingerprint);
`

// schemaFraudFlags is append-only: flags are never updated or removed.
// The unique constraint enforces the (claim, rule, details) dedupe key
// at the storage layer as well.
const schemaFraudFlags = `
CREATE TABLE IF NOT EXISTS fraud_flags (
    id TEXT PRIMARY KEY,
    claim_id TEXT NOT NULL,
    rule_code TEXT NOT NULL,
    severity TEXT NOT NULL,
    details TEXT,
    details_hash TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    UNIQUE (claim_id, rule_code, details_hash)
);

CREATE INDEX IF NOT EXISTS idx_fraud_flags_claim ON fraud_flags(claim_id);
`

const schemaPolicies = `
CREATE TABLE IF NOT EXISTS policies (
    id TEXT PRIMARY KEY,
    policy_type TEXT NOT NULL,
    title TEXT NOT NULL,
    provider_name TEXT,
    provider_rating REAL NOT NULL DEFAULT 0,
    premium REAL NOT NULL,
    deductible REAL NOT NULL DEFAULT 0,
    claim_settlement_ratio REAL NOT NULL DEFAULT 0,
    coverage TEXT,
    term_months INTEGER NOT NULL DEFAULT 12
);

CREATE INDEX IF NOT EXISTS idx_policies_type ON policies(policy_type);
`

const schemaFraudRules = `
CREATE TABLE IF NOT EXISTS fraud_rules (
    code TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    severity TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (code, version)
);

CREATE INDEX IF NOT EXISTS idx_fraud_rules_enabled ON fraud_rules(enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaClaims,
		schemaDocuments,
		schemaFraudFlags,
		schemaPolicies,
		schemaFraudRules,
	}
}
