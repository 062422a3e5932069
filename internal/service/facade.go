package service

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/saveapenny/procurement-workflow/internal/extraction"
	"github.com/saveapenny/procurement-workflow/internal/models"
	"github.com/saveapenny/procurement-workflow/internal/pipeline"
	"github.com/saveapenny/procurement-workflow/internal/storage"
	"github.com/saveapenny/procurement-workflow/internal/workflow"
)

// RequestStore is the slice of request persistence the facade needs.
type RequestStore interface {
	Create(tx *sql.Tx, req *models.PurchaseRequest) error
	GetByID(tx *sql.Tx, id string) (*models.PurchaseRequest, error)
	UpdateCore(tx *sql.Tx, req *models.PurchaseRequest) error
	SetReceipt(tx *sql.Tx, id string, path string, contentType string) error
	ListByCreator(createdBy string, limit, offset int) ([]*models.PurchaseRequest, error)
	ListByStatus(status string, limit, offset int) ([]*models.PurchaseRequest, error)
	ListNeedingAttention(level int, limit, offset int) ([]*models.PurchaseRequest, error)
	StatusCounts() (map[string]int, error)
	ApprovedAmounts() ([]decimal.Decimal, error)
}

// ItemStore is the slice of line-item persistence the facade needs.
type ItemStore interface {
	Create(tx *sql.Tx, item *models.RequestItem) error
	ReplaceForRequest(tx *sql.Tx, requestID string, items []*models.RequestItem) error
	ListByRequest(requestID string) ([]*models.RequestItem, error)
}

// ApprovalStore is the slice of approval persistence the facade needs.
type ApprovalStore interface {
	ListByRequest(requestID string) ([]*models.Approval, error)
}

// Decider applies one approval decision. Satisfied by *workflow.Machine.
type Decider interface {
	SubmitDecision(ctx context.Context, requestID string, level int, decision, comments, approverID string) (*workflow.Outcome, error)
}

// DocumentSaver stores uploaded document blobs. Satisfied by *storage.DocumentStore.
type DocumentSaver interface {
	Save(requestID string, kind storage.DocumentKind, filename string, content []byte) (string, error)
}

// Enqueuer schedules post-commit enrichment jobs. Satisfied by *pipeline.Queue.
type Enqueuer interface {
	Enqueue(kind pipeline.JobKind, requestID string)
}

// TxRunner runs a function inside a single transaction.
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(*sql.Tx) error) error
}

// DocumentUpload is an uploaded file as received at the transport boundary.
type DocumentUpload struct {
	Filename    string
	ContentType string
	Content     []byte
}

// ItemInput is one line item as submitted by the caller. The total is never
// accepted from input; it is always recomputed from quantity and unit price.
type ItemInput struct {
	Name        string
	Description string
	Quantity    int64
	UnitPrice   decimal.Decimal
}

// CreateRequestInput carries the fields of a new purchase request.
type CreateRequestInput struct {
	Title       string
	Description string
	Amount      decimal.Decimal
	Items       []ItemInput
	Proforma    *DocumentUpload
}

// EditRequestInput carries a pending request's replacement fields. A nil
// Items slice keeps the existing item set; a non-nil slice replaces it
// wholesale. A nil Proforma keeps the existing document.
type EditRequestInput struct {
	Title       string
	Description string
	Amount      decimal.Decimal
	Items       []ItemInput
	Proforma    *DocumentUpload
}

// Statistics is the finance aggregate view over the request population.
type Statistics struct {
	StatusCounts    map[string]int  `json:"status_counts"`
	ApprovedCount   int             `json:"approved_count"`
	ApprovedTotal   decimal.Decimal `json:"approved_total"`
	ApprovedAverage decimal.Decimal `json:"approved_average"`
}

// Facade is the orchestration boundary of the procurement workflow. It gates
// callers by role and ownership, runs every mutation as one serialized
// transaction on the request aggregate, and schedules enrichment strictly
// after commit.
type Facade struct {
	db             TxRunner
	requests       RequestStore
	items          ItemStore
	approvals      ApprovalStore
	machine        Decider
	docs           DocumentSaver
	queue          Enqueuer
	locks          *workflow.RequestLocks
	maxReceiptSize int64
	logger         *zap.Logger
}

// NewFacade creates the workflow facade.
func NewFacade(
	db TxRunner,
	requests RequestStore,
	items ItemStore,
	approvals ApprovalStore,
	machine Decider,
	docs DocumentSaver,
	queue Enqueuer,
	locks *workflow.RequestLocks,
	maxReceiptSize int64,
	logger *zap.Logger,
) *Facade {
	return &Facade{
		db:             db,
		requests:       requests,
		items:          items,
		approvals:      approvals,
		machine:        machine,
		docs:           docs,
		queue:          queue,
		locks:          locks,
		maxReceiptSize: maxReceiptSize,
		logger:         logger,
	}
}

// CreateRequest persists a new pending request with its items, then, once the
// commit is durable, schedules proforma enrichment if a document was
// uploaded. Enrichment failure never fails creation.
func (f *Facade) CreateRequest(ctx context.Context, actor models.Actor, input CreateRequestInput) (*models.PurchaseRequest, error) {
	if actor.Role != models.RoleStaff {
		return nil, &AuthorizationError{UserID: actor.UserID, Reason: "only staff may create requests"}
	}

	req := &models.PurchaseRequest{
		ID:          uuid.NewString(),
		Title:       input.Title,
		Description: input.Description,
		Amount:      input.Amount,
		Status:      models.StatusPending,
		CreatedBy:   actor.UserID,
	}
	if err := req.ValidateCore(); err != nil {
		return nil, err
	}

	items, err := buildItems(req.ID, input.Items)
	if err != nil {
		return nil, err
	}
	req.Items = items

	if input.Proforma != nil {
		if err := f.validateUpload(input.Proforma); err != nil {
			return nil, err
		}
		path, err := f.docs.Save(req.ID, storage.KindProforma, input.Proforma.Filename, input.Proforma.Content)
		if err != nil {
			return nil, err
		}
		req.ProformaPath = path
		req.ProformaContentType = input.Proforma.ContentType
	}

	err = f.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := f.requests.Create(tx, req); err != nil {
			return err
		}
		for _, item := range items {
			if err := f.items.Create(tx, item); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	f.logger.Info("Purchase request created",
		zap.String("request_id", req.ID),
		zap.String("created_by", actor.UserID),
		zap.Int("items", len(items)))

	if req.ProformaPath != "" {
		f.queue.Enqueue(pipeline.JobProformaEnrichment, req.ID)
	}
	return req, nil
}

// EditRequest updates a pending request owned by the caller. Items, when
// provided, are replaced wholesale. A new proforma upload re-runs proforma
// enrichment after the commit.
func (f *Facade) EditRequest(ctx context.Context, actor models.Actor, requestID string, input EditRequestInput) (*models.PurchaseRequest, error) {
	release := f.locks.Acquire(requestID)
	defer release()

	var updated *models.PurchaseRequest
	err := f.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		req, err := f.requests.GetByID(tx, requestID)
		if err != nil {
			return err
		}
		if req == nil {
			return workflow.ErrRequestNotFound
		}
		if req.CreatedBy != actor.UserID {
			return &AuthorizationError{UserID: actor.UserID, Reason: "only the submitter may edit a request"}
		}
		if req.Status != models.StatusPending {
			return &workflow.NotPendingError{RequestID: requestID, Status: req.Status}
		}

		req.Title = input.Title
		req.Description = input.Description
		req.Amount = input.Amount
		if err := req.ValidateCore(); err != nil {
			return err
		}

		if input.Proforma != nil {
			if err := f.validateUpload(input.Proforma); err != nil {
				return err
			}
			path, err := f.docs.Save(requestID, storage.KindProforma, input.Proforma.Filename, input.Proforma.Content)
			if err != nil {
				return err
			}
			req.ProformaPath = path
			req.ProformaContentType = input.Proforma.ContentType
			// stale metadata from the previous document must not survive
			req.ProformaMetadata = ""
		}

		if err := f.requests.UpdateCore(tx, req); err != nil {
			return err
		}

		if input.Items != nil {
			items, err := buildItems(requestID, input.Items)
			if err != nil {
				return err
			}
			if err := f.items.ReplaceForRequest(tx, requestID, items); err != nil {
				return err
			}
			req.Items = items
		}

		updated = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	f.logger.Info("Purchase request edited",
		zap.String("request_id", requestID),
		zap.Bool("items_replaced", input.Items != nil),
		zap.Bool("proforma_replaced", input.Proforma != nil))

	if input.Proforma != nil {
		f.queue.Enqueue(pipeline.JobProformaEnrichment, requestID)
	}
	if updated.Items == nil {
		items, err := f.items.ListByRequest(requestID)
		if err != nil {
			return nil, err
		}
		updated.Items = items
	}
	return updated, nil
}

// SubmitDecision records an approval decision at the level matching the
// caller's role. The state machine owns validation and the transition; a
// transition to APPROVED schedules purchase order generation after commit.
func (f *Facade) SubmitDecision(ctx context.Context, actor models.Actor, requestID, decision, comments string) (*models.PurchaseRequest, error) {
	level := actor.Role.ApproverLevel()
	if level == 0 {
		return nil, &AuthorizationError{UserID: actor.UserID, Reason: "only approvers may submit decisions"}
	}

	if _, err := f.machine.SubmitDecision(ctx, requestID, level, decision, comments, actor.UserID); err != nil {
		return nil, err
	}
	return f.loadRequest(requestID)
}

// SubmitReceipt attaches a receipt document to an approved request, commits,
// and then schedules validation against the stored purchase order metadata.
// The validation outcome never fails the acceptance.
func (f *Facade) SubmitReceipt(ctx context.Context, actor models.Actor, requestID string, upload *DocumentUpload) (*models.PurchaseRequest, error) {
	if upload == nil {
		return nil, &models.ValidationError{Field: "receipt", Reason: "file is required"}
	}
	if err := f.validateUpload(upload); err != nil {
		return nil, err
	}
	if int64(len(upload.Content)) > f.maxReceiptSize {
		return nil, &models.ValidationError{Field: "receipt", Reason: "file exceeds the size limit"}
	}

	release := f.locks.Acquire(requestID)
	defer release()

	var updated *models.PurchaseRequest
	err := f.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		req, err := f.requests.GetByID(tx, requestID)
		if err != nil {
			return err
		}
		if req == nil {
			return workflow.ErrRequestNotFound
		}
		if req.CreatedBy != actor.UserID && actor.Role != models.RoleFinance {
			return &AuthorizationError{UserID: actor.UserID, Reason: "only the submitter or finance may submit receipts"}
		}
		if req.Status != models.StatusApproved {
			return &workflow.NotApprovedError{RequestID: requestID, Status: req.Status}
		}

		path, err := f.docs.Save(requestID, storage.KindReceipt, upload.Filename, upload.Content)
		if err != nil {
			return err
		}
		if err := f.requests.SetReceipt(tx, requestID, path, upload.ContentType); err != nil {
			return err
		}
		req.ReceiptPath = path
		req.ReceiptContentType = upload.ContentType
		updated = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	f.logger.Info("Receipt submitted",
		zap.String("request_id", requestID),
		zap.String("content_type", upload.ContentType))

	f.queue.Enqueue(pipeline.JobReceiptValidation, requestID)
	return updated, nil
}

// GetRequest loads a request aggregate with its items and approvals. Staff
// may only see their own requests; approvers and finance see all.
func (f *Facade) GetRequest(ctx context.Context, actor models.Actor, requestID string) (*models.PurchaseRequest, []*models.Approval, error) {
	req, err := f.requests.GetByID(nil, requestID)
	if err != nil {
		return nil, nil, err
	}
	if req == nil {
		return nil, nil, workflow.ErrRequestNotFound
	}
	if actor.Role == models.RoleStaff && req.CreatedBy != actor.UserID {
		return nil, nil, &AuthorizationError{UserID: actor.UserID, Reason: "staff may only view their own requests"}
	}

	items, err := f.items.ListByRequest(requestID)
	if err != nil {
		return nil, nil, err
	}
	req.Items = items

	approvals, err := f.approvals.ListByRequest(requestID)
	if err != nil {
		return nil, nil, err
	}
	return req, approvals, nil
}

// ListRequests returns the caller's view of the request population. Staff
// see their own submissions. Approvers see pending requests awaiting a
// decision at their level, or an explicit status filter. Finance filters by
// status, defaulting to approved.
func (f *Facade) ListRequests(ctx context.Context, actor models.Actor, status string, limit, offset int) ([]*models.PurchaseRequest, error) {
	switch actor.Role {
	case models.RoleStaff:
		return f.requests.ListByCreator(actor.UserID, limit, offset)
	case models.RoleApproverL1, models.RoleApproverL2:
		if status == "" {
			return f.requests.ListNeedingAttention(actor.Role.ApproverLevel(), limit, offset)
		}
		return f.requests.ListByStatus(status, limit, offset)
	case models.RoleFinance:
		if status == "" {
			status = models.StatusApproved
		}
		return f.requests.ListByStatus(status, limit, offset)
	default:
		return nil, &AuthorizationError{UserID: actor.UserID, Reason: "unrecognized role"}
	}
}

// GetStatistics returns the finance aggregate view. Amount aggregation runs
// in exact decimal arithmetic over the stored approved amounts.
func (f *Facade) GetStatistics(ctx context.Context, actor models.Actor) (*Statistics, error) {
	if actor.Role != models.RoleFinance {
		return nil, &AuthorizationError{UserID: actor.UserID, Reason: "only finance may view statistics"}
	}

	counts, err := f.requests.StatusCounts()
	if err != nil {
		return nil, err
	}
	amounts, err := f.requests.ApprovedAmounts()
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	average := decimal.Zero
	if len(amounts) > 0 {
		average = total.Div(decimal.NewFromInt(int64(len(amounts)))).Round(2)
	}

	return &Statistics{
		StatusCounts:    counts,
		ApprovedCount:   len(amounts),
		ApprovedTotal:   total,
		ApprovedAverage: average,
	}, nil
}

func (f *Facade) loadRequest(requestID string) (*models.PurchaseRequest, error) {
	req, err := f.requests.GetByID(nil, requestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, workflow.ErrRequestNotFound
	}
	items, err := f.items.ListByRequest(requestID)
	if err != nil {
		return nil, err
	}
	req.Items = items
	return req, nil
}

func (f *Facade) validateUpload(upload *DocumentUpload) error {
	if !extraction.AcceptedContentType(upload.ContentType) {
		return &models.ValidationError{Field: "content_type", Reason: "must be application/pdf, image/jpeg or image/png"}
	}
	if len(upload.Content) == 0 {
		return &models.ValidationError{Field: "file", Reason: "must not be empty"}
	}
	return nil
}

func buildItems(requestID string, inputs []ItemInput) ([]*models.RequestItem, error) {
	items := make([]*models.RequestItem, 0, len(inputs))
	for _, in := range inputs {
		item := &models.RequestItem{
			ID:          uuid.NewString(),
			RequestID:   requestID,
			Name:        in.Name,
			Description: in.Description,
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
		}
		if err := item.Validate(); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}
