package models

// AI-structured metadata schemas. Every AI-backed stage returns either a
// schema-conformant object or the same shape carrying a failure tag
// (Extracted/Generated/Validated = false plus Error). Amounts here are
// extractions from free text, not authoritative money, so they stay float64;
// the authoritative request/item amounts use decimal.Decimal.

// ProformaItem is one line item extracted from a proforma document.
type ProformaItem struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Total       float64 `json:"total"`
}

// VendorContact holds vendor contact details extracted from a document.
type VendorContact struct {
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// ProformaMetadata is the structured result of proforma extraction.
type ProformaMetadata struct {
	VendorName    string         `json:"vendor_name,omitempty"`
	VendorContact *VendorContact `json:"vendor_contact,omitempty"`
	InvoiceNumber string         `json:"invoice_number,omitempty"`
	Date          string         `json:"date,omitempty"`
	Items         []ProformaItem `json:"items,omitempty"`
	Subtotal      float64        `json:"subtotal,omitempty"`
	TaxAmount     float64        `json:"tax_amount,omitempty"`
	TotalAmount   float64        `json:"total_amount,omitempty"`
	PaymentTerms  string         `json:"payment_terms,omitempty"`
	DeliveryTerms string         `json:"delivery_terms,omitempty"`

	Extracted bool   `json:"extracted"`
	Error     string `json:"error,omitempty"`
	RawText   string `json:"raw_text,omitempty"` // first 500 chars, for diagnostics
}

// POParty identifies the vendor or buyer on a purchase order.
type POParty struct {
	Name    string `json:"name"`
	Contact string `json:"contact,omitempty"`
	Address string `json:"address,omitempty"`
}

// POItem is one line item on a generated purchase order.
type POItem struct {
	Name      string  `json:"name"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Total     float64 `json:"total"`
}

// POMetadata is the structured purchase order generated after full approval.
type POMetadata struct {
	PONumber            string   `json:"po_number,omitempty"`
	IssueDate           string   `json:"issue_date,omitempty"`
	Vendor              *POParty `json:"vendor,omitempty"`
	Buyer               *POParty `json:"buyer,omitempty"`
	Items               []POItem `json:"items,omitempty"`
	Subtotal            float64  `json:"subtotal,omitempty"`
	TaxAmount           float64  `json:"tax_amount,omitempty"`
	TotalAmount         float64  `json:"total_amount,omitempty"`
	PaymentTerms        string   `json:"payment_terms,omitempty"`
	DeliveryTerms       string   `json:"delivery_terms,omitempty"`
	DeliveryAddress     string   `json:"delivery_address,omitempty"`
	SpecialInstructions string   `json:"special_instructions,omitempty"`

	Generated bool   `json:"generated"`
	Error     string `json:"error,omitempty"`
}

// ItemDiscrepancy describes one item-level mismatch between receipt and PO.
type ItemDiscrepancy struct {
	Item         string  `json:"item"`
	Issue        string  `json:"issue"`
	POPrice      float64 `json:"po_price,omitempty"`
	ReceiptPrice float64 `json:"receipt_price,omitempty"`
}

// TotalDiscrepancy describes a total-amount mismatch.
type TotalDiscrepancy struct {
	POTotal      float64 `json:"po_total"`
	ReceiptTotal float64 `json:"receipt_total"`
	Difference   float64 `json:"difference"`
}

// ExtraCharge is a receipt charge with no counterpart on the PO.
type ExtraCharge struct {
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
}

// ReceiptValidation is the structured verdict of comparing a receipt against
// the generated purchase order.
type ReceiptValidation struct {
	VendorMatch       bool              `json:"vendor_match"`
	VendorIssues      string            `json:"vendor_issues,omitempty"`
	ItemsMatch        bool              `json:"items_match"`
	ItemDiscrepancies []ItemDiscrepancy `json:"item_discrepancies,omitempty"`
	TotalMatch        bool              `json:"total_match"`
	TotalDiscrepancy  *TotalDiscrepancy `json:"total_discrepancy,omitempty"`
	AdditionalCharges []ExtraCharge     `json:"additional_charges,omitempty"`
	MissingItems      []string          `json:"missing_items,omitempty"`
	OverallValid      bool              `json:"overall_valid"`
	ValidationSummary string            `json:"validation_summary,omitempty"`

	Validated   bool   `json:"validated"`
	Error       string `json:"error,omitempty"`
	ReceiptText string `json:"receipt_text,omitempty"` // first 500 chars, for diagnostics
}

// RequestSnapshot is the approved request data fed into PO generation.
type RequestSnapshot struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Amount      string         `json:"amount"`
	Items       []SnapshotItem `json:"items"`
}

// SnapshotItem mirrors a RequestItem with decimal fields rendered as strings.
type SnapshotItem struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	TotalPrice  string `json:"total_price"`
}
