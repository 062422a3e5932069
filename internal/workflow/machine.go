package workflow

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saveapenny/procurement-workflow/internal/models"
)

// RequestStore is the slice of request persistence the state machine needs.
type RequestStore interface {
	GetByID(tx *sql.Tx, id string) (*models.PurchaseRequest, error)
	MarkApproved(tx *sql.Tx, id string, at time.Time) error
	MarkRejected(tx *sql.Tx, id string, at time.Time) error
}

// ApprovalStore is the slice of approval persistence the state machine needs.
type ApprovalStore interface {
	GetByRequestAndLevel(tx *sql.Tx, requestID string, level int) (*models.Approval, error)
	Create(tx *sql.Tx, approval *models.Approval) error
	Update(tx *sql.Tx, approval *models.Approval) error
}

// TxRunner runs a function inside a single transaction.
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(*sql.Tx) error) error
}

// Hooks receives post-commit notifications. Implementations run after the
// transition has durably committed; their failures never revert it.
type Hooks interface {
	// RequestApproved fires once when a request reaches APPROVED.
	RequestApproved(requestID string)
}

// Outcome describes the committed effect of one decision.
type Outcome struct {
	Approval  *models.Approval
	NewStatus string
}

// Machine validates and applies approval decisions and drives the request
// status transitions PENDING -> APPROVED / REJECTED. Both targets are
// terminal. It never inspects identity or role; the facade gates callers
// before delegating here.
type Machine struct {
	db        TxRunner
	requests  RequestStore
	approvals ApprovalStore
	locks     *RequestLocks
	hooks     Hooks
	logger    *zap.Logger
	now       func() time.Time
}

// NewMachine creates the approval state machine. hooks may be nil.
func NewMachine(
	db TxRunner,
	requests RequestStore,
	approvals ApprovalStore,
	locks *RequestLocks,
	hooks Hooks,
	logger *zap.Logger,
) *Machine {
	return &Machine{
		db:        db,
		requests:  requests,
		approvals: approvals,
		locks:     locks,
		hooks:     hooks,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SubmitDecision records one reviewer decision at one level, atomically
// against the current persisted state of the request aggregate.
//
// Rejection at either level moves the request to REJECTED. A level-1
// approval leaves it PENDING; a level-2 approval (valid only after a
// recorded level-1 approval) moves it to APPROVED and fires the
// RequestApproved hook after the commit.
func (m *Machine) SubmitDecision(ctx context.Context, requestID string, level int, decision, comments, approverID string) (*Outcome, error) {
	if !models.ValidLevel(level) {
		return nil, &models.ValidationError{Field: "level", Reason: "must be 1 or 2"}
	}
	if !models.ValidDecision(decision) {
		return nil, &models.ValidationError{Field: "decision", Reason: "must be APPROVED or REJECTED"}
	}

	release := m.locks.Acquire(requestID)
	defer release()

	var outcome *Outcome
	err := m.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		req, err := m.requests.GetByID(tx, requestID)
		if err != nil {
			return err
		}
		if req == nil {
			return ErrRequestNotFound
		}
		if req.Status != models.StatusPending {
			return &NotPendingError{RequestID: requestID, Status: req.Status}
		}

		existing, err := m.approvals.GetByRequestAndLevel(tx, requestID, level)
		if err != nil {
			return err
		}
		if existing != nil && existing.IsDecided() {
			return &AlreadyDecidedError{Level: level, Prior: existing.Decision}
		}

		if level == models.LevelTwo {
			levelOne, err := m.approvals.GetByRequestAndLevel(tx, requestID, models.LevelOne)
			if err != nil {
				return err
			}
			if levelOne == nil || levelOne.Decision != models.DecisionApproved {
				return &LevelOrderViolationError{RequestID: requestID}
			}
		}

		now := m.now()
		approval := existing
		if approval == nil {
			approval = &models.Approval{
				ID:        uuid.NewString(),
				RequestID: requestID,
				Level:     level,
			}
		}
		approval.ApproverID = approverID
		approval.Decision = decision
		approval.Comments = comments
		approval.ReviewedAt = &now

		if existing == nil {
			err = m.approvals.Create(tx, approval)
		} else {
			err = m.approvals.Update(tx, approval)
		}
		if err != nil {
			return err
		}

		newStatus := models.StatusPending
		switch {
		case decision == models.DecisionRejected:
			if err := m.requests.MarkRejected(tx, requestID, now); err != nil {
				return err
			}
			newStatus = models.StatusRejected
		case level == models.LevelTwo:
			if err := m.requests.MarkApproved(tx, requestID, now); err != nil {
				return err
			}
			newStatus = models.StatusApproved
		}

		outcome = &Outcome{Approval: approval, NewStatus: newStatus}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("Approval decision recorded",
		zap.String("request_id", requestID),
		zap.Int("level", level),
		zap.String("decision", decision),
		zap.String("new_status", outcome.NewStatus))

	// fire-after-commit: enrichment failures never revert the transition
	if outcome.NewStatus == models.StatusApproved && m.hooks != nil {
		m.hooks.RequestApproved(requestID)
	}

	return outcome, nil
}

// Locks exposes the aggregate lock table so the facade serializes edit and
// receipt mutations against decisions on the same request.
func (m *Machine) Locks() *RequestLocks {
	return m.locks
}
