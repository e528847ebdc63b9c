package domain

import (
	"fmt"
	"strings"
	"time"
)

// ClaimStatus is the lifecycle state of a claim.
type ClaimStatus string

const (
	StatusDraft       ClaimStatus = "draft"
	StatusSubmitted   ClaimStatus = "submitted"
	StatusUnderReview ClaimStatus = "under_review"
	StatusApproved    ClaimStatus = "approved"
	StatusRejected    ClaimStatus = "rejected"
	StatusPaid        ClaimStatus = "paid"
)

// ClaimType categorizes the insured event.
type ClaimType string

const (
	ClaimAccident ClaimType = "accident"
	ClaimMedical  ClaimType = "medical"
	ClaimTheft    ClaimType = "theft"
	ClaimFire     ClaimType = "fire"
	ClaimFlood    ClaimType = "flood"
	ClaimOther    ClaimType = "other"
)

// DocType categorizes an attached document.
type DocType string

const (
	DocMedicalReport DocType = "medical_report"
	DocInvoice       DocType = "invoice"
	DocPhoto         DocType = "photo"
	DocPoliceReport  DocType = "police_report"
	DocOther         DocType = "other"
)

// Claim represents a policyholder's request for compensation.
type Claim struct {
	ID              string      `json:"id"`
	ClaimNumber     string      `json:"claimNumber"`
	PolicyReference string      `json:"policyReference"`
	Type            ClaimType   `json:"claimType"`
	IncidentDate    time.Time   `json:"incidentDate"`
	AmountClaimed   float64     `json:"amountClaimed"`
	Description     string      `json:"description,omitempty"`
	Status          ClaimStatus `json:"status"`

	// Append-only collections. The engine never truncates either.
	Documents  []Document  `json:"documents,omitempty"`
	FraudFlags []FraudFlag `json:"fraudFlags,omitempty"`

	RejectionReason string `json:"rejectionReason,omitempty"`
	AdminNotes      string `json:"adminNotes,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	DisbursedAt *time.Time `json:"disbursedAt,omitempty"`
}

// Document is a reference to evidence held by the external document store.
// Only the opaque storage reference and content fingerprint are kept here,
// never file bytes.
type Document struct {
	ID          string    `json:"id"`
	ClaimID     string    `json:"claimId"`
	Type        DocType   `json:"docType"`
	StorageRef  string    `json:"storageRef"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// ClaimRequest is the API request payload for filing a claim.
type ClaimRequest struct {
	PolicyReference string  `json:"policyReference"`
	ClaimType       string  `json:"claimType"`
	IncidentDate    string  `json:"incidentDate"` // RFC 3339 or YYYY-MM-DD
	AmountClaimed   float64 `json:"amountClaimed"`
	Description     string  `json:"description,omitempty"`
}

// IsTerminal reports whether no further transition is permitted.
func (s ClaimStatus) IsTerminal() bool {
	return s == StatusRejected || s == StatusPaid
}

// ParseClaimStatus normalizes drifted status spellings (casing, hyphens)
// into the closed enumeration and rejects anything unknown.
func ParseClaimStatus(raw string) (ClaimStatus, error) {
	s := ClaimStatus(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "-", "_"))
	switch s {
	case StatusDraft, StatusSubmitted, StatusUnderReview, StatusApproved, StatusRejected, StatusPaid:
		return s, nil
	}
	return "", fmt.Errorf("%w: unknown claim status %q", ErrValidation, raw)
}

// ParseClaimType validates a claim type string against the enumeration.
func ParseClaimType(raw string) (ClaimType, error) {
	t := ClaimType(strings.ToLower(strings.TrimSpace(raw)))
	switch t {
	case ClaimAccident, ClaimMedical, ClaimTheft, ClaimFire, ClaimFlood, ClaimOther:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown claim type %q", ErrValidation, raw)
}

// ParseDocType validates a document type string against the enumeration.
func ParseDocType(raw string) (DocType, error) {
	t := DocType(strings.ToLower(strings.TrimSpace(raw)))
	switch t {
	case DocMedicalReport, DocInvoice, DocPhoto, DocPoliceReport, DocOther:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown document type %q", ErrValidation, raw)
}
