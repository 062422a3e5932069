package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPurchaseRequest_ValidateCore(t *testing.T) {
	tests := []struct {
		name      string
		title     string
		amount    string
		wantField string
	}{
		{"valid", "New laptops", "2500.00", ""},
		{"valid integer amount", "Printer paper", "40", ""},
		{"blank title", "   ", "100.00", "title"},
		{"zero amount", "New laptops", "0", "amount"},
		{"negative amount", "New laptops", "-5.00", "amount"},
		{"sub-cent amount", "New laptops", "10.005", "amount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &PurchaseRequest{
				Title:  tt.title,
				Amount: decimal.RequireFromString(tt.amount),
			}
			err := req.ValidateCore()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}

			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.wantField, vErr.Field)
		})
	}
}

func TestPurchaseRequest_IsTerminal(t *testing.T) {
	assert.False(t, (&PurchaseRequest{Status: StatusPending}).IsTerminal())
	assert.True(t, (&PurchaseRequest{Status: StatusApproved}).IsTerminal())
	assert.True(t, (&PurchaseRequest{Status: StatusRejected}).IsTerminal())
}

func TestRole_ApproverLevel(t *testing.T) {
	assert.Equal(t, LevelOne, RoleApproverL1.ApproverLevel())
	assert.Equal(t, LevelTwo, RoleApproverL2.ApproverLevel())
	assert.Equal(t, 0, RoleStaff.ApproverLevel())
	assert.Equal(t, 0, RoleFinance.ApproverLevel())
	assert.False(t, Role("manager").IsValid())
}
