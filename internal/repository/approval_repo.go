package repository

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/saveapenny/procurement-workflow/internal/models"
)

// ApprovalRepository handles approval row persistence. The schema enforces
// at most one row per (request, level).
type ApprovalRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewApprovalRepository creates a new approval repository.
func NewApprovalRepository(db *sql.DB, logger *zap.Logger) *ApprovalRepository {
	return &ApprovalRepository{
		db:     db,
		logger: logger,
	}
}

func (r *ApprovalRepository) on(tx *sql.Tx) runner {
	if tx != nil {
		return tx
	}
	return r.db
}

// Create inserts a decided approval row. Rows are created lazily on the
// first decision at a level.
func (r *ApprovalRepository) Create(tx *sql.Tx, approval *models.Approval) error {
	query := `
		INSERT INTO approvals (
			id, request_id, level, approver_id, decision, comments,
			created_at, updated_at, reviewed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC()
	approval.CreatedAt = now
	approval.UpdatedAt = now

	_, err := r.on(tx).Exec(query,
		approval.ID,
		approval.RequestID,
		approval.Level,
		approval.ApproverID,
		approval.Decision,
		approval.Comments,
		approval.CreatedAt,
		approval.UpdatedAt,
		approval.ReviewedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create approval",
			zap.String("request_id", approval.RequestID),
			zap.Int("level", approval.Level),
			zap.Error(err))
		return fmt.Errorf("failed to create approval: %w", err)
	}

	return nil
}

// Update records the decision on a previously undecided row.
func (r *ApprovalRepository) Update(tx *sql.Tx, approval *models.Approval) error {
	query := `
		UPDATE approvals
		SET approver_id = ?, decision = ?, comments = ?, reviewed_at = ?, updated_at = ?
		WHERE id = ?
	`

	approval.UpdatedAt = time.Now().UTC()
	_, err := r.on(tx).Exec(query,
		approval.ApproverID,
		approval.Decision,
		approval.Comments,
		approval.ReviewedAt,
		approval.UpdatedAt,
		approval.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update approval", zap.String("id", approval.ID), zap.Error(err))
		return fmt.Errorf("failed to update approval: %w", err)
	}

	return nil
}

// GetByRequestAndLevel returns the approval row for (request, level), or nil
// when no decision has been recorded at that level yet.
func (r *ApprovalRepository) GetByRequestAndLevel(tx *sql.Tx, requestID string, level int) (*models.Approval, error) {
	query := `
		SELECT id, request_id, level, approver_id, decision, comments,
			created_at, updated_at, reviewed_at
		FROM approvals
		WHERE request_id = ? AND level = ?
	`

	approval, err := scanApproval(r.on(tx).QueryRow(query, requestID, level))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get approval",
			zap.String("request_id", requestID),
			zap.Int("level", level),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get approval: %w", err)
	}

	return approval, nil
}

// ListByRequest returns every approval row of a request ordered by level.
func (r *ApprovalRepository) ListByRequest(requestID string) ([]*models.Approval, error) {
	query := `
		SELECT id, request_id, level, approver_id, decision, comments,
			created_at, updated_at, reviewed_at
		FROM approvals
		WHERE request_id = ?
		ORDER BY level
	`

	rows, err := r.db.Query(query, requestID)
	if err != nil {
		r.logger.Error("Failed to list approvals", zap.String("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}
	defer rows.Close()

	var approvals []*models.Approval
	for rows.Next() {
		approval, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}
		approvals = append(approvals, approval)
	}

	return approvals, rows.Err()
}

func scanApproval(row rowScanner) (*models.Approval, error) {
	var approval models.Approval
	var reviewedAt sql.NullTime

	err := row.Scan(
		&approval.ID,
		&approval.RequestID,
		&approval.Level,
		&approval.ApproverID,
		&approval.Decision,
		&approval.Comments,
		&approval.CreatedAt,
		&approval.UpdatedAt,
		&reviewedAt,
	)
	if err != nil {
		return nil, err
	}

	if reviewedAt.Valid {
		approval.ReviewedAt = &reviewedAt.Time
	}

	return &approval, nil
}
