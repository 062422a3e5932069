package service

import (
	"bytes"
	"context"
	"database/sql"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saveapenny/procurement-workflow/internal/models"
	"github.com/saveapenny/procurement-workflow/internal/pipeline"
	"github.com/saveapenny/procurement-workflow/internal/storage"
	"github.com/saveapenny/procurement-workflow/internal/workflow"
)

type fakeRunner struct{}

func (r *fakeRunner) WithTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	return fn(nil)
}

type fakeRequestStore struct {
	requests map[string]*models.PurchaseRequest

	statusCounts    map[string]int
	approvedAmounts []decimal.Decimal

	listByCreatorCalls int
	listByStatusCalls  []string
	listAttentionCalls []int
	receiptSet         map[string]string
}

func newFakeRequestStore(reqs ...*models.PurchaseRequest) *fakeRequestStore {
	f := &fakeRequestStore{
		requests:   make(map[string]*models.PurchaseRequest),
		receiptSet: make(map[string]string),
	}
	for _, r := range reqs {
		f.requests[r.ID] = r
	}
	return f
}

func (f *fakeRequestStore) Create(tx *sql.Tx, req *models.PurchaseRequest) error {
	clone := *req
	f.requests[req.ID] = &clone
	return nil
}

func (f *fakeRequestStore) GetByID(tx *sql.Tx, id string) (*models.PurchaseRequest, error) {
	req, ok := f.requests[id]
	if !ok {
		return nil, nil
	}
	clone := *req
	return &clone, nil
}

func (f *fakeRequestStore) UpdateCore(tx *sql.Tx, req *models.PurchaseRequest) error {
	clone := *req
	f.requests[req.ID] = &clone
	return nil
}

func (f *fakeRequestStore) SetReceipt(tx *sql.Tx, id string, path string, contentType string) error {
	f.receiptSet[id] = path
	f.requests[id].ReceiptPath = path
	f.requests[id].ReceiptContentType = contentType
	return nil
}

func (f *fakeRequestStore) ListByCreator(createdBy string, limit, offset int) ([]*models.PurchaseRequest, error) {
	f.listByCreatorCalls++
	return nil, nil
}

func (f *fakeRequestStore) ListByStatus(status string, limit, offset int) ([]*models.PurchaseRequest, error) {
	f.listByStatusCalls = append(f.listByStatusCalls, status)
	return nil, nil
}

func (f *fakeRequestStore) ListNeedingAttention(level int, limit, offset int) ([]*models.PurchaseRequest, error) {
	f.listAttentionCalls = append(f.listAttentionCalls, level)
	return nil, nil
}

func (f *fakeRequestStore) StatusCounts() (map[string]int, error) {
	return f.statusCounts, nil
}

func (f *fakeRequestStore) ApprovedAmounts() ([]decimal.Decimal, error) {
	return f.approvedAmounts, nil
}

type fakeItemStore struct {
	created  []*models.RequestItem
	replaced map[string][]*models.RequestItem
}

func newFakeItemStore() *fakeItemStore {
	return &fakeItemStore{replaced: make(map[string][]*models.RequestItem)}
}

func (f *fakeItemStore) Create(tx *sql.Tx, item *models.RequestItem) error {
	f.created = append(f.created, item)
	return nil
}

func (f *fakeItemStore) ReplaceForRequest(tx *sql.Tx, requestID string, items []*models.RequestItem) error {
	f.replaced[requestID] = items
	return nil
}

func (f *fakeItemStore) ListByRequest(requestID string) ([]*models.RequestItem, error) {
	return f.replaced[requestID], nil
}

type fakeApprovalStore struct{}

func (f *fakeApprovalStore) ListByRequest(requestID string) ([]*models.Approval, error) {
	return nil, nil
}

type fakeDecider struct {
	submitFunc func(ctx context.Context, requestID string, level int, decision, comments, approverID string) (*workflow.Outcome, error)
}

func (f *fakeDecider) SubmitDecision(ctx context.Context, requestID string, level int, decision, comments, approverID string) (*workflow.Outcome, error) {
	if f.submitFunc != nil {
		return f.submitFunc(ctx, requestID, level, decision, comments, approverID)
	}
	return &workflow.Outcome{NewStatus: models.StatusPending}, nil
}

type fakeSaver struct {
	saved map[string][]byte
}

func newFakeSaver() *fakeSaver {
	return &fakeSaver{saved: make(map[string][]byte)}
}

func (f *fakeSaver) Save(requestID string, kind storage.DocumentKind, filename string, content []byte) (string, error) {
	path := requestID + "/" + string(kind) + "_" + filename
	f.saved[path] = content
	return path, nil
}

type fakeEnqueuer struct {
	jobs []pipeline.Job
}

func (f *fakeEnqueuer) Enqueue(kind pipeline.JobKind, requestID string) {
	f.jobs = append(f.jobs, pipeline.Job{Kind: kind, RequestID: requestID})
}

type facadeFixture struct {
	facade   *Facade
	requests *fakeRequestStore
	items    *fakeItemStore
	decider  *fakeDecider
	saver    *fakeSaver
	queue    *fakeEnqueuer
}

func newFixture(reqs ...*models.PurchaseRequest) *facadeFixture {
	requests := newFakeRequestStore(reqs...)
	items := newFakeItemStore()
	decider := &fakeDecider{}
	saver := newFakeSaver()
	queue := &fakeEnqueuer{}

	facade := NewFacade(
		&fakeRunner{},
		requests,
		items,
		&fakeApprovalStore{},
		decider,
		saver,
		queue,
		workflow.NewRequestLocks(),
		10<<20,
		zap.NewNop(),
	)
	return &facadeFixture{facade: facade, requests: requests, items: items, decider: decider, saver: saver, queue: queue}
}

var (
	staff    = models.Actor{UserID: "user-1", Role: models.RoleStaff}
	approver = models.Actor{UserID: "appr-1", Role: models.RoleApproverL1}
	finance  = models.Actor{UserID: "fin-1", Role: models.RoleFinance}
)

func validCreateInput() CreateRequestInput {
	return CreateRequestInput{
		Title:  "Standing desks",
		Amount: decimal.RequireFromString("1500.00"),
		Items: []ItemInput{
			{Name: "Desk", Quantity: 3, UnitPrice: decimal.RequireFromString("500.00")},
		},
	}
}

func pdfUpload() *DocumentUpload {
	return &DocumentUpload{
		Filename:    "quote.pdf",
		ContentType: "application/pdf",
		Content:     []byte("%PDF-1.4"),
	}
}

func TestCreateRequest(t *testing.T) {
	t.Run("only staff may create", func(t *testing.T) {
		fx := newFixture()
		_, err := fx.facade.CreateRequest(context.Background(), approver, validCreateInput())

		var authzErr *AuthorizationError
		require.ErrorAs(t, err, &authzErr)
		assert.Empty(t, fx.requests.requests)
	})

	t.Run("persists request and items with computed totals", func(t *testing.T) {
		fx := newFixture()
		req, err := fx.facade.CreateRequest(context.Background(), staff, validCreateInput())
		require.NoError(t, err)

		assert.Equal(t, models.StatusPending, req.Status)
		assert.Equal(t, staff.UserID, req.CreatedBy)
		require.Len(t, fx.items.created, 1)
		assert.Equal(t, "1500.00", fx.items.created[0].TotalPrice.StringFixed(2))
		assert.Empty(t, fx.queue.jobs)
	})

	t.Run("proforma upload schedules enrichment after commit", func(t *testing.T) {
		fx := newFixture()
		input := validCreateInput()
		input.Proforma = pdfUpload()

		req, err := fx.facade.CreateRequest(context.Background(), staff, input)
		require.NoError(t, err)

		assert.NotEmpty(t, req.ProformaPath)
		require.Len(t, fx.queue.jobs, 1)
		assert.Equal(t, pipeline.JobProformaEnrichment, fx.queue.jobs[0].Kind)
		assert.Equal(t, req.ID, fx.queue.jobs[0].RequestID)
	})

	t.Run("invalid item rejected before any write", func(t *testing.T) {
		fx := newFixture()
		input := validCreateInput()
		input.Items[0].Quantity = 0

		_, err := fx.facade.CreateRequest(context.Background(), staff, input)

		var vErr *models.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Empty(t, fx.requests.requests)
		assert.Empty(t, fx.items.created)
	})

	t.Run("unsupported document type rejected", func(t *testing.T) {
		fx := newFixture()
		input := validCreateInput()
		input.Proforma = &DocumentUpload{Filename: "quote.docx", ContentType: "application/msword", Content: []byte("x")}

		_, err := fx.facade.CreateRequest(context.Background(), staff, input)

		var vErr *models.ValidationError
		assert.ErrorAs(t, err, &vErr)
	})
}

func pendingOwnedRequest(id, owner string) *models.PurchaseRequest {
	return &models.PurchaseRequest{
		ID:        id,
		Title:     "Desks",
		Amount:    decimal.RequireFromString("100.00"),
		Status:    models.StatusPending,
		CreatedBy: owner,
	}
}

func validEditInput() EditRequestInput {
	return EditRequestInput{
		Title:  "Desks, revised",
		Amount: decimal.RequireFromString("120.00"),
	}
}

func TestEditRequest(t *testing.T) {
	t.Run("only the submitter may edit", func(t *testing.T) {
		fx := newFixture(pendingOwnedRequest("req-1", "someone-else"))
		_, err := fx.facade.EditRequest(context.Background(), staff, "req-1", validEditInput())

		var authzErr *AuthorizationError
		assert.ErrorAs(t, err, &authzErr)
	})

	t.Run("terminal request cannot be edited", func(t *testing.T) {
		req := pendingOwnedRequest("req-1", staff.UserID)
		req.Status = models.StatusApproved
		fx := newFixture(req)

		_, err := fx.facade.EditRequest(context.Background(), staff, "req-1", validEditInput())

		assert.ErrorIs(t, err, workflow.ErrStateConflict)
	})

	t.Run("unknown request", func(t *testing.T) {
		fx := newFixture()
		_, err := fx.facade.EditRequest(context.Background(), staff, "missing", validEditInput())
		assert.ErrorIs(t, err, workflow.ErrRequestNotFound)
	})

	t.Run("items replaced wholesale when provided", func(t *testing.T) {
		fx := newFixture(pendingOwnedRequest("req-1", staff.UserID))
		input := validEditInput()
		input.Items = []ItemInput{
			{Name: "Chair", Quantity: 4, UnitPrice: decimal.RequireFromString("30.00")},
		}

		updated, err := fx.facade.EditRequest(context.Background(), staff, "req-1", input)
		require.NoError(t, err)

		require.Len(t, fx.items.replaced["req-1"], 1)
		assert.Equal(t, "120.00", fx.items.replaced["req-1"][0].TotalPrice.StringFixed(2))
		assert.Equal(t, "Desks, revised", updated.Title)
	})

	t.Run("new proforma clears stale metadata and re-enqueues", func(t *testing.T) {
		req := pendingOwnedRequest("req-1", staff.UserID)
		req.ProformaMetadata = `{"extracted": true}`
		fx := newFixture(req)

		input := validEditInput()
		input.Proforma = pdfUpload()

		updated, err := fx.facade.EditRequest(context.Background(), staff, "req-1", input)
		require.NoError(t, err)

		assert.Empty(t, updated.ProformaMetadata)
		require.Len(t, fx.queue.jobs, 1)
		assert.Equal(t, pipeline.JobProformaEnrichment, fx.queue.jobs[0].Kind)
	})

	t.Run("nil items keep the existing set", func(t *testing.T) {
		fx := newFixture(pendingOwnedRequest("req-1", staff.UserID))
		_, err := fx.facade.EditRequest(context.Background(), staff, "req-1", validEditInput())
		require.NoError(t, err)
		assert.NotContains(t, fx.items.replaced, "req-1")
	})
}

func TestSubmitDecision(t *testing.T) {
	t.Run("non-approver roles are rejected", func(t *testing.T) {
		fx := newFixture()
		for _, actor := range []models.Actor{staff, finance} {
			_, err := fx.facade.SubmitDecision(context.Background(), actor, "req-1", models.DecisionApproved, "")
			var authzErr *AuthorizationError
			assert.ErrorAs(t, err, &authzErr)
		}
	})

	t.Run("delegates with the role's level", func(t *testing.T) {
		fx := newFixture(pendingOwnedRequest("req-1", staff.UserID))
		var gotLevel int
		var gotApprover string
		fx.decider.submitFunc = func(ctx context.Context, requestID string, level int, decision, comments, approverID string) (*workflow.Outcome, error) {
			gotLevel = level
			gotApprover = approverID
			return &workflow.Outcome{NewStatus: models.StatusPending}, nil
		}

		_, err := fx.facade.SubmitDecision(context.Background(), approver, "req-1", models.DecisionApproved, "fine")
		require.NoError(t, err)
		assert.Equal(t, models.LevelOne, gotLevel)
		assert.Equal(t, approver.UserID, gotApprover)
	})
}

func TestSubmitReceipt(t *testing.T) {
	approvedRequest := func() *models.PurchaseRequest {
		req := pendingOwnedRequest("req-1", staff.UserID)
		req.Status = models.StatusApproved
		return req
	}

	t.Run("accepted and validation enqueued after commit", func(t *testing.T) {
		fx := newFixture(approvedRequest())

		updated, err := fx.facade.SubmitReceipt(context.Background(), staff, "req-1", pdfUpload())
		require.NoError(t, err)

		assert.NotEmpty(t, updated.ReceiptPath)
		require.Len(t, fx.queue.jobs, 1)
		assert.Equal(t, pipeline.JobReceiptValidation, fx.queue.jobs[0].Kind)
	})

	t.Run("finance may submit on behalf of the owner", func(t *testing.T) {
		fx := newFixture(approvedRequest())
		_, err := fx.facade.SubmitReceipt(context.Background(), finance, "req-1", pdfUpload())
		assert.NoError(t, err)
	})

	t.Run("other users may not", func(t *testing.T) {
		fx := newFixture(approvedRequest())
		other := models.Actor{UserID: "user-2", Role: models.RoleStaff}

		_, err := fx.facade.SubmitReceipt(context.Background(), other, "req-1", pdfUpload())

		var authzErr *AuthorizationError
		assert.ErrorAs(t, err, &authzErr)
	})

	t.Run("pending request rejects receipts", func(t *testing.T) {
		fx := newFixture(pendingOwnedRequest("req-1", staff.UserID))

		_, err := fx.facade.SubmitReceipt(context.Background(), staff, "req-1", pdfUpload())

		var stateErr *workflow.NotApprovedError
		require.ErrorAs(t, err, &stateErr)
		assert.ErrorIs(t, err, workflow.ErrStateConflict)
		assert.Empty(t, fx.queue.jobs)
	})

	t.Run("oversize file rejected before any write", func(t *testing.T) {
		fx := newFixture(approvedRequest())
		upload := &DocumentUpload{
			Filename:    "receipt.pdf",
			ContentType: "application/pdf",
			Content:     bytes.Repeat([]byte("a"), 10<<20+1),
		}

		_, err := fx.facade.SubmitReceipt(context.Background(), staff, "req-1", upload)

		var vErr *models.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Empty(t, fx.saver.saved)
	})

	t.Run("unsupported content type rejected", func(t *testing.T) {
		fx := newFixture(approvedRequest())
		upload := &DocumentUpload{Filename: "receipt.gif", ContentType: "image/gif", Content: []byte("x")}

		_, err := fx.facade.SubmitReceipt(context.Background(), staff, "req-1", upload)

		var vErr *models.ValidationError
		assert.ErrorAs(t, err, &vErr)
	})
}

func TestGetStatistics(t *testing.T) {
	t.Run("finance only", func(t *testing.T) {
		fx := newFixture()
		_, err := fx.facade.GetStatistics(context.Background(), staff)

		var authzErr *AuthorizationError
		assert.ErrorAs(t, err, &authzErr)
	})

	t.Run("exact decimal aggregation", func(t *testing.T) {
		fx := newFixture()
		fx.requests.statusCounts = map[string]int{
			models.StatusPending:  2,
			models.StatusApproved: 3,
		}
		fx.requests.approvedAmounts = []decimal.Decimal{
			decimal.RequireFromString("0.10"),
			decimal.RequireFromString("0.20"),
			decimal.RequireFromString("0.40"),
		}

		stats, err := fx.facade.GetStatistics(context.Background(), finance)
		require.NoError(t, err)

		assert.Equal(t, 3, stats.ApprovedCount)
		assert.Equal(t, "0.70", stats.ApprovedTotal.StringFixed(2))
		assert.Equal(t, "0.23", stats.ApprovedAverage.StringFixed(2))
	})

	t.Run("no approved requests", func(t *testing.T) {
		fx := newFixture()
		stats, err := fx.facade.GetStatistics(context.Background(), finance)
		require.NoError(t, err)
		assert.True(t, stats.ApprovedTotal.IsZero())
		assert.True(t, stats.ApprovedAverage.IsZero())
	})
}

func TestListRequests(t *testing.T) {
	t.Run("staff see their own", func(t *testing.T) {
		fx := newFixture()
		_, err := fx.facade.ListRequests(context.Background(), staff, "", 20, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, fx.requests.listByCreatorCalls)
	})

	t.Run("approvers default to their attention queue", func(t *testing.T) {
		fx := newFixture()
		_, err := fx.facade.ListRequests(context.Background(), approver, "", 20, 0)
		require.NoError(t, err)
		assert.Equal(t, []int{models.LevelOne}, fx.requests.listAttentionCalls)

		l2 := models.Actor{UserID: "appr-2", Role: models.RoleApproverL2}
		_, err = fx.facade.ListRequests(context.Background(), l2, "", 20, 0)
		require.NoError(t, err)
		assert.Equal(t, []int{models.LevelOne, models.LevelTwo}, fx.requests.listAttentionCalls)
	})

	t.Run("finance defaults to approved", func(t *testing.T) {
		fx := newFixture()
		_, err := fx.facade.ListRequests(context.Background(), finance, "", 20, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{models.StatusApproved}, fx.requests.listByStatusCalls)
	})
}

func TestGetRequest_StaffVisibility(t *testing.T) {
	fx := newFixture(pendingOwnedRequest("req-1", "someone-else"))

	_, _, err := fx.facade.GetRequest(context.Background(), staff, "req-1")

	var authzErr *AuthorizationError
	assert.ErrorAs(t, err, &authzErr)

	_, _, err = fx.facade.GetRequest(context.Background(), finance, "req-1")
	assert.NoError(t, err)
}
