package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/saveapenny/procurement-workflow/internal/models"
)

// MetadataStore is the slice of request persistence the processor writes to.
// All writes are standalone follow-ups outside any aggregate lock.
type MetadataStore interface {
	GetByID(tx *sql.Tx, id string) (*models.PurchaseRequest, error)
	SetProformaMetadata(id string, metadataJSON string) error
	SetPurchaseOrder(id string, path string, metadataJSON string) error
	SetReceiptValidation(id string, validationJSON string) error
}

// ItemLister loads the items of a request for the PO snapshot.
type ItemLister interface {
	ListByRequest(requestID string) ([]*models.RequestItem, error)
}

// Structurer is the AI structuring capability contract.
type Structurer interface {
	StructureProforma(ctx context.Context, text string) *models.ProformaMetadata
	GeneratePO(ctx context.Context, snapshot models.RequestSnapshot, proforma *models.ProformaMetadata) *models.POMetadata
	ValidateReceipt(ctx context.Context, receiptText string, po *models.POMetadata) *models.ReceiptValidation
}

// TextExtractor turns document blobs into text.
type TextExtractor interface {
	Text(ctx context.Context, data []byte, contentType string) string
}

// DocumentReader loads a stored document blob by its persisted path.
type DocumentReader interface {
	Read(path string) ([]byte, error)
}

// PORenderer renders generated PO metadata into a document file and returns
// its stored path.
type PORenderer interface {
	Render(requestID string, po *models.POMetadata) (string, error)
}

// Processor runs the individual enrichment stages. Every stage is non-fatal:
// failures become failure-tagged metadata on the affected field, never an
// error that could disturb the committed workflow state. Each external call
// runs under a bounded timeout so a hung capability cannot stall a worker
// indefinitely.
type Processor struct {
	store       MetadataStore
	items       ItemLister
	docs        DocumentReader
	extractor   TextExtractor
	structurer  Structurer
	renderer    PORenderer
	callTimeout time.Duration
	logger      *zap.Logger
}

// NewProcessor creates an enrichment processor.
func NewProcessor(
	store MetadataStore,
	items ItemLister,
	docs DocumentReader,
	extractor TextExtractor,
	structurer Structurer,
	renderer PORenderer,
	callTimeout time.Duration,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		store:       store,
		items:       items,
		docs:        docs,
		extractor:   extractor,
		structurer:  structurer,
		renderer:    renderer,
		callTimeout: callTimeout,
		logger:      logger,
	}
}

// ProcessProforma extracts and structures the proforma of a request and
// persists the result, success or failure-tagged.
func (p *Processor) ProcessProforma(ctx context.Context, requestID string) error {
	req, err := p.store.GetByID(nil, requestID)
	if err != nil {
		return err
	}
	if req == nil || req.ProformaPath == "" {
		return nil
	}

	meta := p.extractAndStructureProforma(ctx, req.ProformaPath, req.ProformaContentType)

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal proforma metadata: %w", err)
	}
	return p.store.SetProformaMetadata(requestID, string(metaJSON))
}

func (p *Processor) extractAndStructureProforma(ctx context.Context, path, contentType string) *models.ProformaMetadata {
	data, err := p.docs.Read(path)
	if err != nil {
		p.logger.Warn("Failed to read proforma document", zap.String("path", path), zap.Error(err))
		return &models.ProformaMetadata{Extracted: false, Error: "could not read stored document"}
	}

	text := p.extractText(ctx, data, contentType)
	if text == "" {
		return &models.ProformaMetadata{Extracted: false, Error: "could not extract text from file"}
	}

	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()
	return p.structurer.StructureProforma(callCtx, text)
}

// ProcessPOGeneration generates purchase order metadata for an approved
// request, renders the PO document, and persists both.
func (p *Processor) ProcessPOGeneration(ctx context.Context, requestID string) error {
	req, err := p.store.GetByID(nil, requestID)
	if err != nil {
		return err
	}
	if req == nil {
		return nil
	}
	if req.Status != models.StatusApproved {
		p.logger.Warn("Skipping PO generation, request is not approved",
			zap.String("request_id", requestID),
			zap.String("status", req.Status))
		return nil
	}

	items, err := p.items.ListByRequest(requestID)
	if err != nil {
		return err
	}

	snapshot := models.RequestSnapshot{
		Title:       req.Title,
		Description: req.Description,
		Amount:      req.Amount.StringFixed(2),
	}
	for _, item := range items {
		snapshot.Items = append(snapshot.Items, models.SnapshotItem{
			Name:        item.Name,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice.StringFixed(2),
			TotalPrice:  item.TotalPrice.StringFixed(2),
		})
	}

	// whatever proforma metadata exists goes into the prompt, including a
	// failure-tagged blob; absence is represented as nil
	var proforma *models.ProformaMetadata
	if req.ProformaMetadata != "" {
		proforma = &models.ProformaMetadata{}
		if err := json.Unmarshal([]byte(req.ProformaMetadata), proforma); err != nil {
			p.logger.Warn("Stored proforma metadata is not valid JSON",
				zap.String("request_id", requestID),
				zap.Error(err))
			proforma = nil
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()
	po := p.structurer.GeneratePO(callCtx, snapshot, proforma)

	poPath := ""
	if po.Generated {
		poPath, err = p.renderer.Render(requestID, po)
		if err != nil {
			p.logger.Warn("Failed to render PO document",
				zap.String("request_id", requestID),
				zap.Error(err))
			poPath = ""
		}
	}

	poJSON, err := json.Marshal(po)
	if err != nil {
		return fmt.Errorf("failed to marshal PO metadata: %w", err)
	}
	return p.store.SetPurchaseOrder(requestID, poPath, string(poJSON))
}

// ProcessReceiptValidation extracts the receipt text and validates it
// against the stored PO metadata, if any.
func (p *Processor) ProcessReceiptValidation(ctx context.Context, requestID string) error {
	req, err := p.store.GetByID(nil, requestID)
	if err != nil {
		return err
	}
	if req == nil || req.ReceiptPath == "" {
		return nil
	}

	result := p.validateReceipt(ctx, req)

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal receipt validation: %w", err)
	}
	return p.store.SetReceiptValidation(requestID, string(resultJSON))
}

func (p *Processor) validateReceipt(ctx context.Context, req *models.PurchaseRequest) *models.ReceiptValidation {
	data, err := p.docs.Read(req.ReceiptPath)
	if err != nil {
		p.logger.Warn("Failed to read receipt document", zap.String("path", req.ReceiptPath), zap.Error(err))
		return &models.ReceiptValidation{Validated: false, Error: "could not read stored document"}
	}

	text := p.extractText(ctx, data, req.ReceiptContentType)
	if text == "" {
		return &models.ReceiptValidation{Validated: false, Error: "could not extract text from receipt"}
	}

	// a missing or failure-tagged PO still gets a validation attempt; the
	// verdict then reflects that there was nothing to compare against
	var po *models.POMetadata
	if req.PurchaseOrderMetadata != "" {
		po = &models.POMetadata{}
		if err := json.Unmarshal([]byte(req.PurchaseOrderMetadata), po); err != nil {
			p.logger.Warn("Stored PO metadata is not valid JSON",
				zap.String("request_id", req.ID),
				zap.Error(err))
			po = nil
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()
	return p.structurer.ValidateReceipt(callCtx, text, po)
}

func (p *Processor) extractText(ctx context.Context, data []byte, contentType string) string {
	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()
	return p.extractor.Text(callCtx, data, contentType)
}
