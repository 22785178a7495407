package models

import (
	"strconv"
	"time"

	dErrors "paflow/pkg/domain-errors"
)

// Payload is the typed per-edge request body. Each edge accepts exactly one
// payload kind; Validate runs before anything reaches the executor.
type Payload interface {
	Validate() error
}

// SubmitPayload accompanies the submit edge.
type SubmitPayload struct {
	Notes string `json:"notes"`
}

func (p SubmitPayload) Validate() error { return nil }

// SignaturePayload accompanies the agent-approve and list-owner-approve
// edges. RTDAcknowledged records the signer's acknowledgement of the
// Restricted Transfer of Data terms.
type SignaturePayload struct {
	SignerName      string          `json:"signer_name"`
	SignerTitle     string          `json:"signer_title"`
	Method          SignatureMethod `json:"signature_method"`
	Data            string          `json:"signature_data"`
	RTDAcknowledged bool            `json:"rtd_acknowledged"`
}

func (p SignaturePayload) Validate() error {
	if p.SignerName == "" || p.SignerTitle == "" {
		return dErrors.New(dErrors.CodeValidation, "signer name and title are required")
	}
	if !p.Method.Valid() {
		return dErrors.New(dErrors.CodeValidation, "unknown signature method")
	}
	if p.Method == SignatureTyped && p.Data == "" {
		return dErrors.New(dErrors.CodeValidation, "typed signature name is required")
	}
	if !p.RTDAcknowledged {
		return dErrors.New(dErrors.CodeValidation, "RTD acknowledgement is required")
	}
	return nil
}

// Signature converts the payload into a signature block stamped at signedAt.
func (p SignaturePayload) Signature(signedAt time.Time) Signature {
	data := p.Data
	if data == "" {
		data = p.SignerName
	}
	return Signature{
		SignerName:  p.SignerName,
		SignerTitle: p.SignerTitle,
		Method:      p.Method,
		Data:        data,
		SignedAt:    &signedAt,
	}
}

// ApprovalPayload accompanies the usps-approve edge. USPS approval is an
// administrative confirmation, not a party signature.
type ApprovalPayload struct {
	Reference string `json:"reference"`
	Notes     string `json:"notes"`
}

func (p ApprovalPayload) Validate() error {
	if p.Reference == "" {
		return dErrors.New(dErrors.CodeValidation, "USPS approval reference is required")
	}
	return nil
}

// ValidationPayload accompanies the licensee-validate edge. EffectiveDate is
// optional; the validation date is used when absent.
type ValidationPayload struct {
	SignerName    string          `json:"signer_name"`
	SignerTitle   string          `json:"signer_title"`
	Method        SignatureMethod `json:"signature_method"`
	Data          string          `json:"signature_data"`
	EffectiveDate *time.Time      `json:"effective_date"`
}

func (p ValidationPayload) Validate() error {
	if p.SignerName == "" || p.SignerTitle == "" {
		return dErrors.New(dErrors.CodeValidation, "signer name and title are required for licensee validation")
	}
	if p.Method != "" && !p.Method.Valid() {
		return dErrors.New(dErrors.CodeValidation, "unknown signature method")
	}
	return nil
}

// Signature converts the payload into the licensee signature block.
// The method defaults to SYSTEM_CONFIRMATION when unspecified.
func (p ValidationPayload) Signature(signedAt time.Time) Signature {
	method := p.Method
	if method == "" {
		method = SignatureConfirmation
	}
	data := p.Data
	if data == "" {
		data = p.SignerName
	}
	return Signature{
		SignerName:  p.SignerName,
		SignerTitle: p.SignerTitle,
		Method:      method,
		Data:        data,
		SignedAt:    &signedAt,
	}
}

// RejectPayload accompanies the reject edge.
type RejectPayload struct {
	Reason string `json:"reason"`
}

func (p RejectPayload) Validate() error {
	if p.Reason == "" {
		return dErrors.New(dErrors.CodeValidation, "rejection reason is required")
	}
	return nil
}

// RenewPayload accompanies the renew edge.
type RenewPayload struct {
	Notes string `json:"notes"`
}

func (p RenewPayload) Validate() error { return nil }

// ValidFrequencyCode reports whether code is a two-digit processing
// frequency: 01-52, or 99 for on-demand processing.
func ValidFrequencyCode(code string) bool {
	if len(code) != 2 {
		return false
	}
	n, err := strconv.Atoi(code)
	if err != nil {
		return false
	}
	return (n >= 1 && n <= 52) || n == 99
}
