package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/saveapenny/procurement-workflow/internal/models"
)

// ItemRepository handles request item persistence. Items are owned by their
// request and replaced wholesale on edit.
type ItemRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewItemRepository creates a new item repository.
func NewItemRepository(db *sql.DB, logger *zap.Logger) *ItemRepository {
	return &ItemRepository{
		db:     db,
		logger: logger,
	}
}

func (r *ItemRepository) on(tx *sql.Tx) runner {
	if tx != nil {
		return tx
	}
	return r.db
}

// Create inserts one item. The caller is responsible for having validated
// the item (which recomputes total_price).
func (r *ItemRepository) Create(tx *sql.Tx, item *models.RequestItem) error {
	query := `
		INSERT INTO request_items (
			id, request_id, name, description, quantity, unit_price, total_price,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	_, err := r.on(tx).Exec(query,
		item.ID,
		item.RequestID,
		item.Name,
		item.Description,
		item.Quantity,
		item.UnitPrice.StringFixed(2),
		item.TotalPrice.StringFixed(2),
		item.CreatedAt,
		item.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create request item", zap.Error(err))
		return fmt.Errorf("failed to create request item: %w", err)
	}

	return nil
}

// ReplaceForRequest deletes every item of the request and inserts the given
// set. Wholesale replacement is the only supported item mutation.
func (r *ItemRepository) ReplaceForRequest(tx *sql.Tx, requestID string, items []*models.RequestItem) error {
	if _, err := r.on(tx).Exec(`DELETE FROM request_items WHERE request_id = ?`, requestID); err != nil {
		r.logger.Error("Failed to delete request items", zap.String("request_id", requestID), zap.Error(err))
		return fmt.Errorf("failed to delete request items: %w", err)
	}

	for _, item := range items {
		item.RequestID = requestID
		if err := r.Create(tx, item); err != nil {
			return err
		}
	}

	return nil
}

// ListByRequest returns the items of a request in creation order.
func (r *ItemRepository) ListByRequest(requestID string) ([]*models.RequestItem, error) {
	query := `
		SELECT id, request_id, name, description, quantity, unit_price, total_price,
			created_at, updated_at
		FROM request_items
		WHERE request_id = ?
		ORDER BY created_at
	`

	rows, err := r.db.Query(query, requestID)
	if err != nil {
		r.logger.Error("Failed to list request items", zap.String("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("failed to list request items: %w", err)
	}
	defer rows.Close()

	var items []*models.RequestItem
	for rows.Next() {
		var item models.RequestItem
		var unitPrice, totalPrice string

		err := rows.Scan(
			&item.ID,
			&item.RequestID,
			&item.Name,
			&item.Description,
			&item.Quantity,
			&unitPrice,
			&totalPrice,
			&item.CreatedAt,
			&item.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request item: %w", err)
		}

		if item.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
			return nil, fmt.Errorf("stored unit price %q is not a decimal: %w", unitPrice, err)
		}
		if item.TotalPrice, err = decimal.NewFromString(totalPrice); err != nil {
			return nil, fmt.Errorf("stored total price %q is not a decimal: %w", totalPrice, err)
		}

		items = append(items, &item)
	}

	return items, rows.Err()
}
