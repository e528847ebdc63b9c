package domain

import "context"

// External collaborators. The engine depends on these only through the
// interfaces below; implementations live with the calling service.

// DocumentStore accepts raw evidence bytes and returns an opaque storage
// reference plus a content fingerprint. The fingerprint feeds the
// DUPLICATE_DOCUMENTS rule; the engine never holds file bytes.
type DocumentStore interface {
	Put(ctx context.Context, name string, data []byte) (StoredObject, error)
}

// StoredObject is the document store's receipt for uploaded bytes.
type StoredObject struct {
	Reference   string `json:"reference"`
	Fingerprint string `json:"fingerprint"`
}

// PolicyCatalog is a read-only source of Policy records. The repository
// provides the default implementation; remote catalogs can be swapped in.
type PolicyCatalog interface {
	GetPolicy(ctx context.Context, policyID string) (*Policy, error)
	ListPolicies(ctx context.Context, policyType string) ([]*Policy, error)
}

// Notifier receives status-change and fraud-flag events for delivery to
// the affected user. Fire-and-forget: a failed notification never fails
// the transition that produced it.
type Notifier interface {
	NotifyStatusChange(ctx context.Context, event *ClaimEvent) error
	NotifyFraudFlag(ctx context.Context, event *ClaimEvent) error
}
