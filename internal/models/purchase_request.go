package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Request status constants. A request is terminal once it leaves PENDING.
const (
	StatusPending  = "PENDING"
	StatusApproved = "APPROVED"
	StatusRejected = "REJECTED"
)

// PurchaseRequest is the aggregate root of the procurement workflow. The
// amount is entered by the submitter and is not derived from item totals.
type PurchaseRequest struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Status      string          `json:"status"` // PENDING, APPROVED, REJECTED
	CreatedBy   string          `json:"created_by"`

	ProformaPath          string `json:"proforma_path,omitempty"`
	ProformaContentType   string `json:"proforma_content_type,omitempty"`
	ProformaMetadata      string `json:"proforma_metadata,omitempty"` // JSON blob
	PurchaseOrderPath     string `json:"purchase_order_path,omitempty"`
	PurchaseOrderMetadata string `json:"purchase_order_metadata,omitempty"` // JSON blob
	ReceiptPath           string `json:"receipt_path,omitempty"`
	ReceiptContentType    string `json:"receipt_content_type,omitempty"`
	ReceiptValidation     string `json:"receipt_validation,omitempty"` // JSON blob

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	RejectedAt *time.Time `json:"rejected_at,omitempty"`

	Items []*RequestItem `json:"items,omitempty"`
}

// IsTerminal reports whether the request has left PENDING.
func (r *PurchaseRequest) IsTerminal() bool {
	return r.Status != StatusPending
}

// ValidateCore checks submitter-entered fields before any write.
func (r *PurchaseRequest) ValidateCore() error {
	if strings.TrimSpace(r.Title) == "" {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if !r.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}
	if r.Amount.Exponent() < -2 {
		return &ValidationError{Field: "amount", Reason: "must have at most 2 decimal places"}
	}
	return nil
}

// ValidationError describes a malformed input field, rejected before any mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Reason
}
