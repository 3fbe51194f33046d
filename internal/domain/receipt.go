/**
 * @description
 * Domain models for the receipt verification pipeline: the verification record's
 * state machine, the extraction contract returned by the recognition service, and
 * the request/response DTOs for the upload and verify endpoints.
 *
 * @notes
 * - `pending` is the only non-terminal status. `approved` and `rejected` are final;
 *   re-deciding a terminal record is a no-op.
 * - Monetary amounts use shopspring/decimal so threshold comparisons are exact.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Receipt verification statuses.
const (
	ReceiptStatusPending  = "pending"
	ReceiptStatusApproved = "approved"
	ReceiptStatusRejected = "rejected"
)

// ReceiptVerification is the state-machine record for one consumption claim.
type ReceiptVerification struct {
	ID            uuid.UUID  `json:"id"`
	AccountID     uuid.UUID  `json:"account_id"`
	VenueID       uuid.UUID  `json:"venue_id"`
	Status        string     `json:"status"`
	Fingerprint   string     `json:"-"` // sha256 of the uploaded bytes, dedupe key per account
	StorageKey    string     `json:"-"` // object-store key of the raw image
	MediaType     string     `json:"-"`
	ExtractedAt   *time.Time `json:"extracted_at,omitempty"` // timestamp reconstructed from the extraction
	DecisionNote  *string    `json:"decision_note,omitempty"`
	PointsAwarded bool       `json:"points_awarded"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Terminal reports whether the record can no longer transition.
func (r *ReceiptVerification) Terminal() bool {
	return r.Status == ReceiptStatusApproved || r.Status == ReceiptStatusRejected
}

// Extraction is the recognition service's output contract. Every field is
// independently nullable; an absent field means "unreadable" and must never be
// inferred.
type Extraction struct {
	Date         *string `json:"date"`   // "2006-01-02"
	Time         *string `json:"time"`   // "15:04"
	Amount       *string `json:"amount"` // decimal string, e.g. "12.50"
	MerchantName *string `json:"merchant_name"`
}

// AmountDecimal parses the extracted amount. The boolean is false when the field
// is absent or unparsable.
func (e *Extraction) AmountDecimal() (decimal.Decimal, bool) {
	if e == nil || e.Amount == nil {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(*e.Amount)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// ReceiptUploadResponse reports the result of an upload. Reused is true when the
// same bytes were already submitted by this account and the prior record is
// returned instead of a duplicate.
type ReceiptUploadResponse struct {
	VerificationID uuid.UUID `json:"verification_id"`
	Status         string    `json:"status"`
	Reused         bool      `json:"reused"`
}

// ReceiptVerifyResponse reports the state of a verification after one pipeline run.
type ReceiptVerifyResponse struct {
	VerificationID uuid.UUID `json:"verification_id"`
	Status         string    `json:"status"`
	Reasons        []string  `json:"reasons,omitempty"`
	PointsAwarded  int       `json:"points_awarded"`
	Total          int64     `json:"total,omitempty"`
}

// ReceiptDecisionRequest is the DTO for the internal manual-override endpoint.
type ReceiptDecisionRequest struct {
	Approve bool    `json:"approve"`
	Note    *string `json:"note,omitempty"`
}
