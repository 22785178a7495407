package models

import (
	"time"
)

// Status is the PAF workflow status. Transitions only move along the edges
// the lifecycle package defines; no code path writes a value outside this set.
type Status string

const (
	StatusInitial                    Status = "INITIAL"
	StatusPendingAgentApproval       Status = "PENDING_AGENT_APPROVAL"
	StatusPendingListOwnerApproval   Status = "PENDING_LIST_OWNER_APPROVAL"
	StatusPendingUSPSApprovalForeign Status = "PENDING_USPS_APPROVAL_FOREIGN"
	StatusPendingLicenseeValidation  Status = "PENDING_LICENSEE_VALIDATION"
	StatusValidatedActive            Status = "VALIDATED_ACTIVE"
	StatusRejected                   Status = "REJECTED"
)

// Statuses lists every defined status, in workflow order.
var Statuses = []Status{
	StatusInitial,
	StatusPendingAgentApproval,
	StatusPendingListOwnerApproval,
	StatusPendingUSPSApprovalForeign,
	StatusPendingLicenseeValidation,
	StatusValidatedActive,
	StatusRejected,
}

// Valid reports whether s is a member of the defined status set.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Pending reports whether s is one of the intermediate approval states.
// REJECTED is reachable from exactly these.
func (s Status) Pending() bool {
	switch s {
	case StatusPendingAgentApproval, StatusPendingListOwnerApproval,
		StatusPendingUSPSApprovalForeign, StatusPendingLicenseeValidation:
		return true
	}
	return false
}

// Terminal reports whether no further submission/approval edges leave s.
// VALIDATED_ACTIVE still allows the renew edge.
func (s Status) Terminal() bool {
	return s == StatusRejected
}

// Jurisdiction determines which approval path is legal. Fixed at creation.
type Jurisdiction string

const (
	JurisdictionDomestic Jurisdiction = "DOMESTIC"
	JurisdictionForeign  Jurisdiction = "FOREIGN"
)

func (j Jurisdiction) Valid() bool {
	return j == JurisdictionDomestic || j == JurisdictionForeign
}

// PAFType distinguishes first-time forms from renewals and amendments.
type PAFType string

const (
	TypeInitial  PAFType = "INITIAL"
	TypeRenewal  PAFType = "RENEWAL"
	TypeModified PAFType = "MODIFIED"
)

func (t PAFType) Valid() bool {
	return t == TypeInitial || t == TypeRenewal || t == TypeModified
}

// SignatureMethod is how a party signed: typed name, drawn image, uploaded
// document, or an in-system confirmation by a validating admin.
type SignatureMethod string

const (
	SignatureTyped        SignatureMethod = "TYPED"
	SignatureDrawn        SignatureMethod = "DRAWN"
	SignatureUploaded     SignatureMethod = "UPLOADED"
	SignatureConfirmation SignatureMethod = "SYSTEM_CONFIRMATION"
)

func (m SignatureMethod) Valid() bool {
	switch m {
	case SignatureTyped, SignatureDrawn, SignatureUploaded, SignatureConfirmation:
		return true
	}
	return false
}

// Signature is one party's signature block. Data holds the typed name, a
// reference to a stored image, or the confirmation note - the core never
// interprets it beyond requiring it for typed signatures.
type Signature struct {
	SignerName  string          `json:"signer_name,omitempty"`
	SignerTitle string          `json:"signer_title,omitempty"`
	Method      SignatureMethod `json:"method,omitempty"`
	Data        string          `json:"data,omitempty"`
	SignedAt    *time.Time      `json:"signed_at,omitempty"`
}

// Signed reports whether the block has been filled in.
func (s Signature) Signed() bool { return s.SignedAt != nil }

// PAF is the Processing Acknowledgement Form aggregate.
//
// Invariants:
//   - Status moves only along the lifecycle package's transition table
//   - DisplayIdentifier is assigned exactly once and immutable thereafter
//   - Jurisdiction is immutable after creation
//   - ExpirationDate is non-nil iff the PAF has passed licensee validation
type PAF struct {
	ID                int64        `json:"id"`
	DisplayIdentifier string       `json:"display_identifier,omitempty"`
	LicenseeScopeID   int64        `json:"licensee_scope_id"`
	CreatorID         int64        `json:"creator_id"`
	AgentID           int64        `json:"agent_id,omitempty"`
	Jurisdiction      Jurisdiction `json:"jurisdiction"`
	Status            Status       `json:"status"`
	Type              PAFType      `json:"paf_type"`

	// FrequencyCode is the two-digit processing frequency (01-52 or 99).
	FrequencyCode string `json:"frequency_code"`
	// ListOwnerNAICS is the list owner's NAICS classification, the
	// classification component of the assigned identifier.
	ListOwnerNAICS string `json:"list_owner_naics"`

	AgentSignature     Signature `json:"agent_signature"`
	ListOwnerSignature Signature `json:"list_owner_signature"`
	LicenseeSignature  Signature `json:"licensee_signature"`

	EffectiveDate  *time.Time `json:"effective_date,omitempty"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasAgent reports whether an agent/broker is assigned; agent presence at
// creation time determines whether the agent-approval step exists.
func (p *PAF) HasAgent() bool { return p.AgentID != 0 }

// Clone returns an independent copy. The in-memory store hands out clones so
// callers can't mutate persisted state outside a transition.
func (p *PAF) Clone() *PAF {
	cp := *p
	cp.EffectiveDate = cloneTime(p.EffectiveDate)
	cp.ExpirationDate = cloneTime(p.ExpirationDate)
	cp.AgentSignature.SignedAt = cloneTime(p.AgentSignature.SignedAt)
	cp.ListOwnerSignature.SignedAt = cloneTime(p.ListOwnerSignature.SignedAt)
	cp.LicenseeSignature.SignedAt = cloneTime(p.LicenseeSignature.SignedAt)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// HistoryEntry is one append-only audit record. Exactly one is written per
// successful transition, in the same transaction as the PAF mutation; rows
// are never updated or deleted.
type HistoryEntry struct {
	ID        int64     `json:"id"`
	PAFID     int64     `json:"paf_id"`
	Status    Status    `json:"status"`
	Notes     string    `json:"notes"`
	ActorID   int64     `json:"actor_id"`
	CreatedAt time.Time `json:"created_at"`
}
