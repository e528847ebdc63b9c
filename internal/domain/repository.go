// Package domain defines the core types and interfaces for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
type Repository interface {
	// Claim operations
	SaveClaim(ctx context.Context, claim *Claim) error
	GetClaim(ctx context.Context, claimID string) (*Claim, error)
	ListClaimsByPolicy(ctx context.Context, policyReference string) ([]*Claim, error)

	// UpdateClaimStatus applies a status transition with an optimistic
	// expected-status check. Returns ErrConcurrentModification when the
	// stored status no longer matches expected.
	UpdateClaimStatus(ctx context.Context, claim *Claim, expected ClaimStatus) error

	// Document operations (append-only)
	SaveDocument(ctx context.Context, doc *Document) error
	ListDocuments(ctx context.Context, claimID string) ([]Document, error)

	// FindClaimsByFingerprint returns IDs of other claims carrying a
	// document with the given content fingerprint.
	FindClaimsByFingerprint(ctx context.Context, fingerprint string, excludeClaimID string) ([]string, error)

	// Fraud flag operations (append-only)
	AppendFraudFlags(ctx context.Context, claimID string, flags []FraudFlag) error
	ListFraudFlags(ctx context.Context, claimID string) ([]FraudFlag, error)

	// LastClaimTime returns the filing time of the policy's most recent
	// claim created before the given claim, or nil when none exists.
	LastClaimTime(ctx context.Context, policyReference string, beforeClaimID string, before time.Time) (*time.Time, error)

	// Policy catalog operations
	SavePolicy(ctx context.Context, policy *Policy) error
	GetPolicy(ctx context.Context, policyID string) (*Policy, error)
	ListPolicies(ctx context.Context, policyType string) ([]*Policy, error)

	// Custom fraud rule configurations
	SaveFraudRuleConfig(ctx context.Context, cfg *FraudRuleConfig) error
	ListFraudRuleConfigs(ctx context.Context) ([]*FraudRuleConfig, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
