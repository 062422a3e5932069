package podoc

import (
	"fmt"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/saveapenny/procurement-workflow/internal/models"
	"github.com/saveapenny/procurement-workflow/internal/storage"
)

// DocumentWriter is the slice of the document store the renderer needs.
type DocumentWriter interface {
	Save(requestID string, kind storage.DocumentKind, filename string, content []byte) (string, error)
}

// Renderer writes generated purchase order metadata into a spreadsheet
// document stored in the request's purchase-order slot.
type Renderer struct {
	docs   DocumentWriter
	logger *zap.Logger
}

// NewRenderer creates a PO document renderer.
func NewRenderer(docs DocumentWriter, logger *zap.Logger) *Renderer {
	return &Renderer{
		docs:   docs,
		logger: logger,
	}
}

const sheetName = "Purchase Order"

// Render builds the PO spreadsheet and returns its stored path.
func (r *Renderer) Render(requestID string, po *models.POMetadata) (string, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return "", fmt.Errorf("failed to remove default sheet: %w", err)
	}

	r.setCell(f, "A1", "PURCHASE ORDER")
	r.setCell(f, "A2", "PO Number")
	r.setCell(f, "B2", po.PONumber)
	r.setCell(f, "A3", "Issue Date")
	r.setCell(f, "B3", po.IssueDate)

	if po.Vendor != nil {
		r.setCell(f, "A5", "Vendor")
		r.setCell(f, "B5", po.Vendor.Name)
		r.setCell(f, "B6", po.Vendor.Contact)
	}
	if po.Buyer != nil {
		r.setCell(f, "A7", "Buyer")
		r.setCell(f, "B7", po.Buyer.Name)
		r.setCell(f, "B8", po.Buyer.Contact)
		r.setCell(f, "B9", po.Buyer.Address)
	}

	r.setCell(f, "A11", "Item")
	r.setCell(f, "B11", "Quantity")
	r.setCell(f, "C11", "Unit Price")
	r.setCell(f, "D11", "Total")

	row := 12
	for _, item := range po.Items {
		r.setCell(f, fmt.Sprintf("A%d", row), item.Name)
		r.setCell(f, fmt.Sprintf("B%d", row), item.Quantity)
		r.setCell(f, fmt.Sprintf("C%d", row), item.UnitPrice)
		r.setCell(f, fmt.Sprintf("D%d", row), item.Total)
		row++
	}

	row++
	r.setCell(f, fmt.Sprintf("C%d", row), "Subtotal")
	r.setCell(f, fmt.Sprintf("D%d", row), po.Subtotal)
	row++
	r.setCell(f, fmt.Sprintf("C%d", row), "Tax")
	r.setCell(f, fmt.Sprintf("D%d", row), po.TaxAmount)
	row++
	r.setCell(f, fmt.Sprintf("C%d", row), "Total")
	r.setCell(f, fmt.Sprintf("D%d", row), po.TotalAmount)

	row += 2
	r.setCell(f, fmt.Sprintf("A%d", row), "Payment Terms")
	r.setCell(f, fmt.Sprintf("B%d", row), po.PaymentTerms)
	row++
	r.setCell(f, fmt.Sprintf("A%d", row), "Delivery Terms")
	r.setCell(f, fmt.Sprintf("B%d", row), po.DeliveryTerms)
	row++
	r.setCell(f, fmt.Sprintf("A%d", row), "Delivery Address")
	r.setCell(f, fmt.Sprintf("B%d", row), po.DeliveryAddress)
	if po.SpecialInstructions != "" {
		row++
		r.setCell(f, fmt.Sprintf("A%d", row), "Special Instructions")
		r.setCell(f, fmt.Sprintf("B%d", row), po.SpecialInstructions)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return "", fmt.Errorf("failed to encode PO document: %w", err)
	}

	filename := "purchase_order.xlsx"
	if po.PONumber != "" {
		filename = fmt.Sprintf("%s.xlsx", po.PONumber)
	}

	path, err := r.docs.Save(requestID, storage.KindPurchaseOrder, filename, buf.Bytes())
	if err != nil {
		return "", err
	}

	r.logger.Info("Purchase order document rendered",
		zap.String("request_id", requestID),
		zap.String("path", path))
	return path, nil
}

func (r *Renderer) setCell(f *excelize.File, cell string, value interface{}) {
	if err := f.SetCellValue(sheetName, cell, value); err != nil {
		r.logger.Warn("Failed to set cell value",
			zap.String("cell", cell),
			zap.Error(err))
	}
}
