package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saveapenny/procurement-workflow/internal/models"
)

type mockStore struct {
	getByIDFunc func(tx *sql.Tx, id string) (*models.PurchaseRequest, error)

	proformaMetadata  map[string]string
	purchaseOrders    map[string][2]string // path, metadata
	receiptValidation map[string]string
}

func newMockStore(getByID func(tx *sql.Tx, id string) (*models.PurchaseRequest, error)) *mockStore {
	return &mockStore{
		getByIDFunc:       getByID,
		proformaMetadata:  make(map[string]string),
		purchaseOrders:    make(map[string][2]string),
		receiptValidation: make(map[string]string),
	}
}

func (m *mockStore) GetByID(tx *sql.Tx, id string) (*models.PurchaseRequest, error) {
	return m.getByIDFunc(tx, id)
}

func (m *mockStore) SetProformaMetadata(id string, metadataJSON string) error {
	m.proformaMetadata[id] = metadataJSON
	return nil
}

func (m *mockStore) SetPurchaseOrder(id string, path string, metadataJSON string) error {
	m.purchaseOrders[id] = [2]string{path, metadataJSON}
	return nil
}

func (m *mockStore) SetReceiptValidation(id string, validationJSON string) error {
	m.receiptValidation[id] = validationJSON
	return nil
}

type mockItems struct {
	listFunc func(requestID string) ([]*models.RequestItem, error)
}

func (m *mockItems) ListByRequest(requestID string) ([]*models.RequestItem, error) {
	if m.listFunc != nil {
		return m.listFunc(requestID)
	}
	return nil, nil
}

type mockDocs struct {
	readFunc func(path string) ([]byte, error)
}

func (m *mockDocs) Read(path string) ([]byte, error) {
	if m.readFunc != nil {
		return m.readFunc(path)
	}
	return []byte("blob"), nil
}

type mockExtractor struct {
	textFunc func(ctx context.Context, data []byte, contentType string) string
}

func (m *mockExtractor) Text(ctx context.Context, data []byte, contentType string) string {
	if m.textFunc != nil {
		return m.textFunc(ctx, data, contentType)
	}
	return "extracted text"
}

type mockStructurer struct {
	structureFunc func(ctx context.Context, text string) *models.ProformaMetadata
	generateFunc  func(ctx context.Context, snapshot models.RequestSnapshot, proforma *models.ProformaMetadata) *models.POMetadata
	validateFunc  func(ctx context.Context, receiptText string, po *models.POMetadata) *models.ReceiptValidation
}

func (m *mockStructurer) StructureProforma(ctx context.Context, text string) *models.ProformaMetadata {
	if m.structureFunc != nil {
		return m.structureFunc(ctx, text)
	}
	return &models.ProformaMetadata{Extracted: true}
}

func (m *mockStructurer) GeneratePO(ctx context.Context, snapshot models.RequestSnapshot, proforma *models.ProformaMetadata) *models.POMetadata {
	if m.generateFunc != nil {
		return m.generateFunc(ctx, snapshot, proforma)
	}
	return &models.POMetadata{Generated: true}
}

func (m *mockStructurer) ValidateReceipt(ctx context.Context, receiptText string, po *models.POMetadata) *models.ReceiptValidation {
	if m.validateFunc != nil {
		return m.validateFunc(ctx, receiptText, po)
	}
	return &models.ReceiptValidation{Validated: true}
}

type mockRenderer struct {
	renderFunc func(requestID string, po *models.POMetadata) (string, error)
}

func (m *mockRenderer) Render(requestID string, po *models.POMetadata) (string, error) {
	if m.renderFunc != nil {
		return m.renderFunc(requestID, po)
	}
	return requestID + "/purchase_order.xlsx", nil
}

func newTestProcessor(store *mockStore, items *mockItems, docs *mockDocs, extractor *mockExtractor, structurer *mockStructurer, renderer *mockRenderer) *Processor {
	return NewProcessor(store, items, docs, extractor, structurer, renderer, time.Second, zap.NewNop())
}

func approvedRequest(id string) *models.PurchaseRequest {
	return &models.PurchaseRequest{
		ID:     id,
		Title:  "Laptops",
		Amount: decimal.RequireFromString("1200.00"),
		Status: models.StatusApproved,
	}
}

func TestProcessProforma_StoresStructuredMetadata(t *testing.T) {
	store := newMockStore(func(tx *sql.Tx, id string) (*models.PurchaseRequest, error) {
		return &models.PurchaseRequest{ID: id, ProformaPath: id + "/proforma_quote.pdf", ProformaContentType: "application/pdf"}, nil
	})
	structurer := &mockStructurer{
		structureFunc: func(ctx context.Context, text string) *models.ProformaMetadata {
			return &models.ProformaMetadata{Extracted: true, VendorName: "Acme", RawText: text}
		},
	}
	p := newTestProcessor(store, &mockItems{}, &mockDocs{}, &mockExtractor{}, structurer, &mockRenderer{})

	require.NoError(t, p.ProcessProforma(context.Background(), "req-1"))

	var meta models.ProformaMetadata
	require.NoError(t, json.Unmarshal([]byte(store.proformaMetadata["req-1"]), &meta))
	assert.True(t, meta.Extracted)
	assert.Equal(t, "Acme", meta.VendorName)
}

func TestProcessProforma_EmptyExtractionIsFailureTagged(t *testing.T) {
	store := newMockStore(func(tx *sql.Tx, id string) (*models.PurchaseRequest, error) {
		return &models.PurchaseRequest{ID: id, ProformaPath: id + "/proforma_scan.png", ProformaContentType: "image/png"}, nil
	})
	extractor := &mockExtractor{textFunc: func(ctx context.Context, data []byte, contentType string) string {
		return ""
	}}
	p := newTestProcessor(store, &mockItems{}, &mockDocs{}, extractor, &mockStructurer{}, &mockRenderer{})

	require.NoError(t, p.ProcessProforma(context.Background(), "req-1"))

	var meta models.ProformaMetadata
	require.NoError(t, json.Unmarshal([]byte(store.proformaMetadata["req-1"]), &meta))
	assert.False(t, meta.Extracted)
	assert.Equal(t, "could not extract text from file", meta.Error)
}

func TestProcessProforma_NoDocumentIsNoop(t *testing.T) {
	store := newMockStore(func(tx *sql.Tx, id string) (*models.PurchaseRequest, error) {
		return &models.PurchaseRequest{ID: id}, nil
	})
	p := newTestProcessor(store, &mockItems{}, &mockDocs{}, &mockExtractor{}, &mockStructurer{}, &mockRenderer{})

	require.NoError(t, p.ProcessProforma(context.Background(), "req-1"))
	assert.Empty(t, store.proformaMetadata)
}

func TestProcessPOGeneration_SnapshotAndRender(t *testing.T) {
	req := approvedRequest("req-1")
	req.ProformaMetadata = `{"extracted": true, "vendor_name": "Acme"}`
	store := newMockStore(func(tx *sql.Tx, id string) (*models.PurchaseRequest, error) {
		return req, nil
	})
	items := &mockItems{listFunc: func(requestID string) ([]*models.RequestItem, error) {
		return []*models.RequestItem{{
			Name:       "Laptop",
			Quantity:   2,
			UnitPrice:  decimal.RequireFromString("600.00"),
			TotalPrice: decimal.RequireFromString("1200.00"),
		}}, nil
	}}

	var gotSnapshot models.RequestSnapshot
	var gotProforma *models.ProformaMetadata
	structurer := &mockStructurer{
		generateFunc: func(ctx context.Context, snapshot models.RequestSnapshot, proforma *models.ProformaMetadata) *models.POMetadata {
			gotSnapshot = snapshot
			gotProforma = proforma
			return &models.POMetadata{Generated: true, PONumber: "PO-1"}
		},
	}
	p := newTestProcessor(store, items, &mockDocs{}, &mockExtractor{}, structurer, &mockRenderer{})

	require.NoError(t, p.ProcessPOGeneration(context.Background(), "req-1"))

	assert.Equal(t, "1200.00", gotSnapshot.Amount)
	require.Len(t, gotSnapshot.Items, 1)
	assert.Equal(t, "600.00", gotSnapshot.Items[0].UnitPrice)
	require.NotNil(t, gotProforma)
	assert.Equal(t, "Acme", gotProforma.VendorName)

	stored := store.purchaseOrders["req-1"]
	assert.Equal(t, "req-1/purchase_order.xlsx", stored[0])
	var po models.POMetadata
	require.NoError(t, json.Unmarshal([]byte(stored[1]), &po))
	assert.Equal(t, "PO-1", po.PONumber)
}

func TestProcessPOGeneration_RenderFailureStillPersistsMetadata(t *testing.T) {
	store := newMockStore(func(tx *sql.Tx, id string) (*models.PurchaseRequest, error) {
		return approvedRequest(id), nil
	})
	renderer := &mockRenderer{renderFunc: func(requestID string, po *models.POMetadata) (string, error) {
		return "", errors.New("disk full")
	}}
	p := newTestProcessor(store, &mockItems{}, &mockDocs{}, &mockExtractor{}, &mockStructurer{}, renderer)

	require.NoError(t, p.ProcessPOGeneration(context.Background(), "req-1"))

	stored := store.purchaseOrders["req-1"]
	assert.Empty(t, stored[0])
	assert.NotEmpty(t, stored[1])
}

func TestProcessPOGeneration_SkipsUnapprovedRequest(t *testing.T) {
	store := newMockStore(func(tx *sql.Tx, id string) (*models.PurchaseRequest, error) {
		return &models.PurchaseRequest{ID: id, Status: models.StatusPending}, nil
	})
	p := newTestProcessor(store, &mockItems{}, &mockDocs{}, &mockExtractor{}, &mockStructurer{}, &mockRenderer{})

	require.NoError(t, p.ProcessPOGeneration(context.Background(), "req-1"))
	assert.Empty(t, store.purchaseOrders)
}

func TestProcessReceiptValidation_WithoutStoredPO(t *testing.T) {
	store := newMockStore(func(tx *sql.Tx, id string) (*models.PurchaseRequest, error) {
		return &models.PurchaseRequest{
			ID:                 id,
			Status:             models.StatusApproved,
			ReceiptPath:        id + "/receipt_scan.pdf",
			ReceiptContentType: "application/pdf",
		}, nil
	})

	var gotPO *models.POMetadata
	structurer := &mockStructurer{
		validateFunc: func(ctx context.Context, receiptText string, po *models.POMetadata) *models.ReceiptValidation {
			gotPO = po
			return &models.ReceiptValidation{Validated: true, OverallValid: false, ValidationSummary: "no purchase order on file"}
		},
	}
	p := newTestProcessor(store, &mockItems{}, &mockDocs{}, &mockExtractor{}, structurer, &mockRenderer{})

	require.NoError(t, p.ProcessReceiptValidation(context.Background(), "req-1"))

	assert.Nil(t, gotPO)
	var result models.ReceiptValidation
	require.NoError(t, json.Unmarshal([]byte(store.receiptValidation["req-1"]), &result))
	assert.True(t, result.Validated)
	assert.False(t, result.OverallValid)
}

func TestProcessReceiptValidation_UnreadableDocumentIsFailureTagged(t *testing.T) {
	store := newMockStore(func(tx *sql.Tx, id string) (*models.PurchaseRequest, error) {
		return &models.PurchaseRequest{ID: id, ReceiptPath: id + "/receipt_scan.pdf"}, nil
	})
	docs := &mockDocs{readFunc: func(path string) ([]byte, error) {
		return nil, errors.New("gone")
	}}
	p := newTestProcessor(store, &mockItems{}, docs, &mockExtractor{}, &mockStructurer{}, &mockRenderer{})

	require.NoError(t, p.ProcessReceiptValidation(context.Background(), "req-1"))

	var result models.ReceiptValidation
	require.NoError(t, json.Unmarshal([]byte(store.receiptValidation["req-1"]), &result))
	assert.False(t, result.Validated)
	assert.Equal(t, "could not read stored document", result.Error)
}
