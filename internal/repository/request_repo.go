package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/saveapenny/procurement-workflow/internal/models"
)

// RequestRepository handles purchase request persistence.
type RequestRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRequestRepository creates a new request repository.
func NewRequestRepository(db *sql.DB, logger *zap.Logger) *RequestRepository {
	return &RequestRepository{
		db:     db,
		logger: logger,
	}
}

// runner abstracts *sql.DB and *sql.Tx so every method can run either inside
// the aggregate transaction or as a standalone follow-up write.
type runner interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

func (r *RequestRepository) on(tx *sql.Tx) runner {
	if tx != nil {
		return tx
	}
	return r.db
}

const requestColumns = `id, title, description, amount, status, created_by,
	proforma_path, proforma_content_type, proforma_metadata,
	purchase_order_path, purchase_order_metadata,
	receipt_path, receipt_content_type, receipt_validation,
	created_at, updated_at, approved_at, rejected_at`

// Create inserts a new purchase request.
func (r *RequestRepository) Create(tx *sql.Tx, req *models.PurchaseRequest) error {
	query := `
		INSERT INTO purchase_requests (
			id, title, description, amount, status, created_by,
			proforma_path, proforma_content_type, proforma_metadata,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now

	_, err := r.on(tx).Exec(query,
		req.ID,
		req.Title,
		req.Description,
		req.Amount.StringFixed(2),
		req.Status,
		req.CreatedBy,
		req.ProformaPath,
		req.ProformaContentType,
		req.ProformaMetadata,
		req.CreatedAt,
		req.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create purchase request", zap.Error(err))
		return fmt.Errorf("failed to create purchase request: %w", err)
	}

	return nil
}

// GetByID retrieves a purchase request; returns nil when not found.
func (r *RequestRepository) GetByID(tx *sql.Tx, id string) (*models.PurchaseRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM purchase_requests WHERE id = ?`

	req, err := scanRequest(r.on(tx).QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get purchase request", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get purchase request: %w", err)
	}

	return req, nil
}

// UpdateCore updates the submitter-editable fields of a pending request.
func (r *RequestRepository) UpdateCore(tx *sql.Tx, req *models.PurchaseRequest) error {
	query := `
		UPDATE purchase_requests
		SET title = ?, description = ?, amount = ?,
			proforma_path = ?, proforma_content_type = ?, proforma_metadata = ?,
			updated_at = ?
		WHERE id = ?
	`

	req.UpdatedAt = time.Now().UTC()
	_, err := r.on(tx).Exec(query,
		req.Title,
		req.Description,
		req.Amount.StringFixed(2),
		req.ProformaPath,
		req.ProformaContentType,
		req.ProformaMetadata,
		req.UpdatedAt,
		req.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update purchase request", zap.String("id", req.ID), zap.Error(err))
		return fmt.Errorf("failed to update purchase request: %w", err)
	}

	return nil
}

// MarkApproved moves a request into the terminal APPROVED state.
func (r *RequestRepository) MarkApproved(tx *sql.Tx, id string, at time.Time) error {
	query := `UPDATE purchase_requests SET status = ?, approved_at = ?, updated_at = ? WHERE id = ?`

	_, err := r.on(tx).Exec(query, models.StatusApproved, at, at, id)
	if err != nil {
		r.logger.Error("Failed to mark request approved", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to mark request approved: %w", err)
	}
	return nil
}

// MarkRejected moves a request into the terminal REJECTED state.
func (r *RequestRepository) MarkRejected(tx *sql.Tx, id string, at time.Time) error {
	query := `UPDATE purchase_requests SET status = ?, rejected_at = ?, updated_at = ? WHERE id = ?`

	_, err := r.on(tx).Exec(query, models.StatusRejected, at, at, id)
	if err != nil {
		r.logger.Error("Failed to mark request rejected", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to mark request rejected: %w", err)
	}
	return nil
}

// SetProformaMetadata persists the enrichment result for the proforma slot.
// Runs outside the aggregate transaction as a best-effort follow-up write.
func (r *RequestRepository) SetProformaMetadata(id string, metadataJSON string) error {
	query := `UPDATE purchase_requests SET proforma_metadata = ?, updated_at = ? WHERE id = ?`

	_, err := r.db.Exec(query, metadataJSON, time.Now().UTC(), id)
	if err != nil {
		r.logger.Error("Failed to set proforma metadata", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to set proforma metadata: %w", err)
	}
	return nil
}

// SetPurchaseOrder persists generated PO metadata and the rendered document
// path. Never touches status columns.
func (r *RequestRepository) SetPurchaseOrder(id string, path string, metadataJSON string) error {
	query := `UPDATE purchase_requests SET purchase_order_path = ?, purchase_order_metadata = ?, updated_at = ? WHERE id = ?`

	_, err := r.db.Exec(query, path, metadataJSON, time.Now().UTC(), id)
	if err != nil {
		r.logger.Error("Failed to set purchase order", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to set purchase order: %w", err)
	}
	return nil
}

// SetReceipt records an accepted receipt document.
func (r *RequestRepository) SetReceipt(tx *sql.Tx, id string, path string, contentType string) error {
	query := `UPDATE purchase_requests SET receipt_path = ?, receipt_content_type = ?, updated_at = ? WHERE id = ?`

	_, err := r.on(tx).Exec(query, path, contentType, time.Now().UTC(), id)
	if err != nil {
		r.logger.Error("Failed to set receipt", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to set receipt: %w", err)
	}
	return nil
}

// SetReceiptValidation persists the receipt validation verdict.
func (r *RequestRepository) SetReceiptValidation(id string, validationJSON string) error {
	query := `UPDATE purchase_requests SET receipt_validation = ?, updated_at = ? WHERE id = ?`

	_, err := r.db.Exec(query, validationJSON, time.Now().UTC(), id)
	if err != nil {
		r.logger.Error("Failed to set receipt validation", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to set receipt validation: %w", err)
	}
	return nil
}

// ListByCreator returns the requests submitted by one user, newest first.
func (r *RequestRepository) ListByCreator(createdBy string, limit, offset int) ([]*models.PurchaseRequest, error) {
	query := `SELECT ` + requestColumns + `
		FROM purchase_requests
		WHERE created_by = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`

	return r.queryRequests(query, createdBy, limit, offset)
}

// ListByStatus returns requests in a given status, newest first.
func (r *RequestRepository) ListByStatus(status string, limit, offset int) ([]*models.PurchaseRequest, error) {
	query := `SELECT ` + requestColumns + `
		FROM purchase_requests
		WHERE status = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`

	return r.queryRequests(query, status, limit, offset)
}

// ListNeedingAttention returns pending requests awaiting a decision at the
// given level. Level 2 additionally requires a recorded level-1 approval.
func (r *RequestRepository) ListNeedingAttention(level int, limit, offset int) ([]*models.PurchaseRequest, error) {
	query := `SELECT ` + requestColumns + `
		FROM purchase_requests r
		WHERE r.status = ?
		AND NOT EXISTS (
			SELECT 1 FROM approvals a
			WHERE a.request_id = r.id AND a.level = ? AND a.decision != ?
		)`
	args := []interface{}{models.StatusPending, level, models.DecisionUndecided}

	if level == models.LevelTwo {
		query += `
		AND EXISTS (
			SELECT 1 FROM approvals a
			WHERE a.request_id = r.id AND a.level = ? AND a.decision = ?
		)`
		args = append(args, models.LevelOne, models.DecisionApproved)
	}

	query += `
		ORDER BY r.created_at DESC
		LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	return r.queryRequests(query, args...)
}

// StatusCounts returns the number of requests per status.
func (r *RequestRepository) StatusCounts() (map[string]int, error) {
	rows, err := r.db.Query(`SELECT status, COUNT(*) FROM purchase_requests GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count requests by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// ApprovedAmounts returns the amount of every approved request. Aggregation
// happens in the caller with exact decimal arithmetic, not in SQL.
func (r *RequestRepository) ApprovedAmounts() ([]decimal.Decimal, error) {
	rows, err := r.db.Query(`SELECT amount FROM purchase_requests WHERE status = ?`, models.StatusApproved)
	if err != nil {
		return nil, fmt.Errorf("failed to query approved amounts: %w", err)
	}
	defer rows.Close()

	var amounts []decimal.Decimal
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan amount: %w", err)
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("stored amount %q is not a decimal: %w", raw, err)
		}
		amounts = append(amounts, amount)
	}
	return amounts, rows.Err()
}

func (r *RequestRepository) queryRequests(query string, args ...interface{}) ([]*models.PurchaseRequest, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		r.logger.Error("Failed to list purchase requests", zap.Error(err))
		return nil, fmt.Errorf("failed to list purchase requests: %w", err)
	}
	defer rows.Close()

	var requests []*models.PurchaseRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan purchase request: %w", err)
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(row rowScanner) (*models.PurchaseRequest, error) {
	var req models.PurchaseRequest
	var amount string
	var approvedAt, rejectedAt sql.NullTime

	err := row.Scan(
		&req.ID,
		&req.Title,
		&req.Description,
		&amount,
		&req.Status,
		&req.CreatedBy,
		&req.ProformaPath,
		&req.ProformaContentType,
		&req.ProformaMetadata,
		&req.PurchaseOrderPath,
		&req.PurchaseOrderMetadata,
		&req.ReceiptPath,
		&req.ReceiptContentType,
		&req.ReceiptValidation,
		&req.CreatedAt,
		&req.UpdatedAt,
		&approvedAt,
		&rejectedAt,
	)
	if err != nil {
		return nil, err
	}

	req.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("stored amount %q is not a decimal: %w", amount, err)
	}
	if approvedAt.Valid {
		req.ApprovedAt = &approvedAt.Time
	}
	if rejectedAt.Valid {
		req.RejectedAt = &rejectedAt.Time
	}

	return &req, nil
}
