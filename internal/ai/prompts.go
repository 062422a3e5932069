package ai

import (
	"encoding/json"
	"fmt"

	"github.com/saveapenny/procurement-workflow/internal/models"
)

const proformaSystemPrompt = "You are a document processing assistant that extracts structured data from invoices and quotations. Always return valid JSON."

const poSystemPrompt = "You are a procurement assistant that generates formal purchase orders. Always return valid JSON."

const receiptSystemPrompt = "You are a financial auditor that validates receipts against purchase orders. Always return valid JSON with detailed comparisons."

func buildProformaPrompt(text string) string {
	return fmt.Sprintf(`Extract the following information from this proforma invoice/quotation:

1. Vendor name and contact details
2. Invoice/Quote number
3. Date
4. List of items with descriptions, quantities, unit prices, and totals
5. Subtotal, tax, and total amount
6. Payment terms
7. Delivery terms

Proforma text:
%s

Return the data as a JSON object with these keys:
- vendor_name
- vendor_contact (object with: email, phone, address)
- invoice_number
- date
- items (array of objects with: name, description, quantity, unit_price, total)
- subtotal
- tax_amount
- total_amount
- payment_terms
- delivery_terms

If any field is not found, use null.`, text)
}

func buildPOPrompt(snapshot models.RequestSnapshot, proforma *models.ProformaMetadata, buyerName, buyerContact, deliveryAddress string) (string, error) {
	itemsJSON, err := json.Marshal(snapshot.Items)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request items: %w", err)
	}

	proformaJSON := []byte("null")
	if proforma != nil {
		proformaJSON, err = json.MarshalIndent(proforma, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal proforma metadata: %w", err)
		}
	}

	return fmt.Sprintf(`Generate a Purchase Order based on this approved purchase request and proforma:

Request Details:
- Title: %s
- Description: %s
- Amount: %s
- Items: %s

Proforma Metadata:
%s

Generate a Purchase Order with:
1. PO Number (format: PO-YYYYMMDD-XXXX)
2. Issue Date (today's date)
3. Vendor details from proforma
4. Buyer details (Company: %s, Contact: %s)
5. Items list with quantities and prices
6. Payment terms
7. Delivery terms and address (deliver to: %s)
8. Special instructions

Return as JSON with these keys:
- po_number
- issue_date
- vendor (object with: name, contact)
- buyer (object with: name, contact, address)
- items (array of objects with: name, quantity, unit_price, total)
- subtotal
- tax_amount
- total_amount
- payment_terms
- delivery_terms
- delivery_address
- special_instructions`,
		snapshot.Title, snapshot.Description, snapshot.Amount, itemsJSON,
		proformaJSON, buyerName, buyerContact, deliveryAddress), nil
}

func buildReceiptValidationPrompt(receiptText string, po *models.POMetadata) (string, error) {
	poJSON := []byte("null")
	if po != nil {
		var err error
		poJSON, err = json.MarshalIndent(po, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal PO metadata: %w", err)
		}
	}

	return fmt.Sprintf(`Compare this receipt with the Purchase Order and identify any discrepancies:

Receipt Text:
%s

Purchase Order:
%s

Check for:
1. Vendor name matches
2. Items match (names, quantities, prices)
3. Total amount matches
4. Any additional charges not in PO
5. Any missing items from PO

Return JSON with:
- vendor_match (boolean)
- vendor_issues (string or null)
- items_match (boolean)
- item_discrepancies (array of objects with: item, issue, po_price, receipt_price)
- total_match (boolean)
- total_discrepancy (object with: po_total, receipt_total, difference)
- additional_charges (array of objects with: description, amount)
- missing_items (array of item names)
- overall_valid (boolean)
- validation_summary (string)`, receiptText, poJSON), nil
}
