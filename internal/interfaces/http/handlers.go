package http

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/saveapenny/procurement-workflow/internal/models"
	"github.com/saveapenny/procurement-workflow/internal/service"
	"github.com/saveapenny/procurement-workflow/internal/workflow"
)

// Handlers contains all HTTP request handlers.
type Handlers struct {
	facade *service.Facade
	logger *zap.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(facade *service.Facade, logger *zap.Logger) *Handlers {
	return &Handlers{
		facade: facade,
		logger: logger,
	}
}

// Response is the standard JSON envelope.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// itemPayload is one line item as submitted by the caller.
type itemPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
}

// requestPayload carries the mutable fields of a purchase request. Amounts
// arrive as strings so no precision is lost in transit.
type requestPayload struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Amount      string        `json:"amount"`
	Items       []itemPayload `json:"items"`
}

// decisionPayload is an approval decision submission.
type decisionPayload struct {
	Decision string `json:"decision"`
	Comments string `json:"comments"`
}

// RequestResponse is a purchase request in API responses. Metadata blobs are
// emitted as JSON objects, not re-encoded strings.
type RequestResponse struct {
	ID                    string           `json:"id"`
	Title                 string           `json:"title"`
	Description           string           `json:"description"`
	Amount                string           `json:"amount"`
	Status                string           `json:"status"`
	CreatedBy             string           `json:"created_by"`
	Items                 []ItemResponse   `json:"items"`
	ProformaPath          string           `json:"proforma_path,omitempty"`
	ProformaMetadata      json.RawMessage  `json:"proforma_metadata,omitempty"`
	PurchaseOrderPath     string           `json:"purchase_order_path,omitempty"`
	PurchaseOrderMetadata json.RawMessage  `json:"purchase_order_metadata,omitempty"`
	ReceiptPath           string           `json:"receipt_path,omitempty"`
	ReceiptValidation     json.RawMessage  `json:"receipt_validation,omitempty"`
	CreatedAt             string           `json:"created_at"`
	UpdatedAt             string           `json:"updated_at"`
	ApprovedAt            *string          `json:"approved_at,omitempty"`
	RejectedAt            *string          `json:"rejected_at,omitempty"`
	Approvals             []ApprovalRecord `json:"approvals,omitempty"`
}

// ItemResponse is a line item in API responses.
type ItemResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	TotalPrice  string `json:"total_price"`
}

// ApprovalRecord is one approval row in API responses.
type ApprovalRecord struct {
	Level      int     `json:"level"`
	ApproverID string  `json:"approver_id,omitempty"`
	Decision   string  `json:"decision"`
	Comments   string  `json:"comments,omitempty"`
	ReviewedAt *string `json:"reviewed_at,omitempty"`
}

// HealthCheck handles GET /health.
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// CreateRequest handles POST /api/requests. The body is either JSON or a
// multipart form with the same fields plus an optional proforma file.
func (h *Handlers) CreateRequest(c *gin.Context) {
	payload, proforma, err := h.readRequestBody(c, "proforma")
	if err != nil {
		h.fail(c, err)
		return
	}

	input, err := toCreateInput(payload, proforma)
	if err != nil {
		h.fail(c, err)
		return
	}

	req, err := h.facade.CreateRequest(c.Request.Context(), actorFrom(c), *input)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: toRequestResponse(req, nil)})
}

// EditRequest handles PUT /api/requests/:id.
func (h *Handlers) EditRequest(c *gin.Context) {
	payload, proforma, err := h.readRequestBody(c, "proforma")
	if err != nil {
		h.fail(c, err)
		return
	}

	createInput, err := toCreateInput(payload, proforma)
	if err != nil {
		h.fail(c, err)
		return
	}
	input := service.EditRequestInput{
		Title:       createInput.Title,
		Description: createInput.Description,
		Amount:      createInput.Amount,
		Items:       createInput.Items,
		Proforma:    createInput.Proforma,
	}
	if payload.Items == nil {
		input.Items = nil
	}

	req, err := h.facade.EditRequest(c.Request.Context(), actorFrom(c), c.Param("id"), input)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: toRequestResponse(req, nil)})
}

// DeleteRequest handles DELETE /api/requests/:id. Deletion is never
// permitted; the request history is the audit trail.
func (h *Handlers) DeleteRequest(c *gin.Context) {
	c.JSON(http.StatusMethodNotAllowed, Response{
		Success: false,
		Error:   "purchase requests cannot be deleted",
	})
}

// GetRequest handles GET /api/requests/:id.
func (h *Handlers) GetRequest(c *gin.Context) {
	req, approvals, err := h.facade.GetRequest(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: toRequestResponse(req, approvals)})
}

// ListRequests handles GET /api/requests.
func (h *Handlers) ListRequests(c *gin.Context) {
	var query struct {
		Status string `form:"status"`
		Limit  int    `form:"limit"`
		Offset int    `form:"offset"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		h.fail(c, &models.ValidationError{Field: "query", Reason: "invalid query parameters"})
		return
	}
	if query.Limit <= 0 || query.Limit > 100 {
		query.Limit = 20
	}
	if query.Offset < 0 {
		query.Offset = 0
	}

	requests, err := h.facade.ListRequests(c.Request.Context(), actorFrom(c), query.Status, query.Limit, query.Offset)
	if err != nil {
		h.fail(c, err)
		return
	}

	responses := make([]RequestResponse, 0, len(requests))
	for _, req := range requests {
		responses = append(responses, toRequestResponse(req, nil))
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: responses})
}

// SubmitDecision handles POST /api/requests/:id/decisions.
func (h *Handlers) SubmitDecision(c *gin.Context) {
	var payload decisionPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.fail(c, &models.ValidationError{Field: "body", Reason: "invalid JSON body"})
		return
	}

	req, err := h.facade.SubmitDecision(c.Request.Context(), actorFrom(c), c.Param("id"), payload.Decision, payload.Comments)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: toRequestResponse(req, nil)})
}

// SubmitReceipt handles POST /api/requests/:id/receipt (multipart, field
// "receipt").
func (h *Handlers) SubmitReceipt(c *gin.Context) {
	fileHeader, err := c.FormFile("receipt")
	if err != nil {
		h.fail(c, &models.ValidationError{Field: "receipt", Reason: "file is required"})
		return
	}

	upload, err := readUpload(fileHeader)
	if err != nil {
		h.fail(c, err)
		return
	}

	req, err := h.facade.SubmitReceipt(c.Request.Context(), actorFrom(c), c.Param("id"), upload)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: toRequestResponse(req, nil)})
}

// GetStatistics handles GET /api/statistics.
func (h *Handlers) GetStatistics(c *gin.Context) {
	stats, err := h.facade.GetStatistics(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: stats})
}

// readRequestBody parses either a JSON body or a multipart form carrying the
// same fields plus an optional document file under fileField.
func (h *Handlers) readRequestBody(c *gin.Context, fileField string) (*requestPayload, *service.DocumentUpload, error) {
	var payload requestPayload

	if c.ContentType() == "multipart/form-data" {
		payload.Title = c.PostForm("title")
		payload.Description = c.PostForm("description")
		payload.Amount = c.PostForm("amount")
		if itemsJSON := c.PostForm("items"); itemsJSON != "" {
			if err := json.Unmarshal([]byte(itemsJSON), &payload.Items); err != nil {
				return nil, nil, &models.ValidationError{Field: "items", Reason: "must be a JSON array"}
			}
		}

		fileHeader, err := c.FormFile(fileField)
		if err != nil {
			// the document is optional on create/edit
			return &payload, nil, nil
		}
		upload, err := readUpload(fileHeader)
		if err != nil {
			return nil, nil, err
		}
		return &payload, upload, nil
	}

	if err := c.ShouldBindJSON(&payload); err != nil {
		return nil, nil, &models.ValidationError{Field: "body", Reason: "invalid JSON body"}
	}
	return &payload, nil, nil
}

// fail maps a facade error onto the HTTP status taxonomy.
func (h *Handlers) fail(c *gin.Context, err error) {
	var (
		validationErr *models.ValidationError
		authzErr      *service.AuthorizationError
	)

	status := http.StatusInternalServerError
	message := "internal error"

	switch {
	case errors.As(err, &validationErr):
		status = http.StatusBadRequest
		message = err.Error()
	case errors.Is(err, workflow.ErrStateConflict):
		status = http.StatusBadRequest
		message = err.Error()
	case errors.As(err, &authzErr):
		status = http.StatusForbidden
		message = err.Error()
	case errors.Is(err, workflow.ErrRequestNotFound):
		status = http.StatusNotFound
		message = err.Error()
	default:
		h.logger.Error("Request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
	}

	c.JSON(status, Response{Success: false, Error: message})
}

func readUpload(fileHeader *multipart.FileHeader) (*service.DocumentUpload, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return nil, &models.ValidationError{Field: "file", Reason: "could not read uploaded file"}
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, &models.ValidationError{Field: "file", Reason: "could not read uploaded file"}
	}

	return &service.DocumentUpload{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Content:     content,
	}, nil
}

func toCreateInput(payload *requestPayload, proforma *service.DocumentUpload) (*service.CreateRequestInput, error) {
	amount, err := decimal.NewFromString(payload.Amount)
	if err != nil {
		return nil, &models.ValidationError{Field: "amount", Reason: "must be a decimal number"}
	}

	items := make([]service.ItemInput, 0, len(payload.Items))
	for _, item := range payload.Items {
		unitPrice, err := decimal.NewFromString(item.UnitPrice)
		if err != nil {
			return nil, &models.ValidationError{Field: "unit_price", Reason: "must be a decimal number"}
		}
		items = append(items, service.ItemInput{
			Name:        item.Name,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   unitPrice,
		})
	}

	return &service.CreateRequestInput{
		Title:       payload.Title,
		Description: payload.Description,
		Amount:      amount,
		Items:       items,
		Proforma:    proforma,
	}, nil
}

func toRequestResponse(req *models.PurchaseRequest, approvals []*models.Approval) RequestResponse {
	resp := RequestResponse{
		ID:                req.ID,
		Title:             req.Title,
		Description:       req.Description,
		Amount:            req.Amount.StringFixed(2),
		Status:            req.Status,
		CreatedBy:         req.CreatedBy,
		Items:             make([]ItemResponse, 0, len(req.Items)),
		ProformaPath:      req.ProformaPath,
		PurchaseOrderPath: req.PurchaseOrderPath,
		ReceiptPath:       req.ReceiptPath,
		CreatedAt:         req.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:         req.UpdatedAt.UTC().Format(time.RFC3339),
		ApprovedAt:        formatTimePtr(req.ApprovedAt),
		RejectedAt:        formatTimePtr(req.RejectedAt),
	}

	if req.ProformaMetadata != "" {
		resp.ProformaMetadata = json.RawMessage(req.ProformaMetadata)
	}
	if req.PurchaseOrderMetadata != "" {
		resp.PurchaseOrderMetadata = json.RawMessage(req.PurchaseOrderMetadata)
	}
	if req.ReceiptValidation != "" {
		resp.ReceiptValidation = json.RawMessage(req.ReceiptValidation)
	}

	for _, item := range req.Items {
		resp.Items = append(resp.Items, ItemResponse{
			ID:          item.ID,
			Name:        item.Name,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice.StringFixed(2),
			TotalPrice:  item.TotalPrice.StringFixed(2),
		})
	}

	for _, approval := range approvals {
		resp.Approvals = append(resp.Approvals, ApprovalRecord{
			Level:      approval.Level,
			ApproverID: approval.ApproverID,
			Decision:   approval.Decision,
			Comments:   approval.Comments,
			ReviewedAt: formatTimePtr(approval.ReviewedAt),
		})
	}
	return resp
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
