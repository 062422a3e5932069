package pipeline

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saveapenny/procurement-workflow/internal/models"
)

func TestQueue_ApprovalHookRunsPOGeneration(t *testing.T) {
	done := make(chan struct{})
	var once sync.Once

	store := newMockStore(func(tx *sql.Tx, id string) (*models.PurchaseRequest, error) {
		return approvedRequest(id), nil
	})
	structurer := &mockStructurer{
		generateFunc: func(ctx context.Context, snapshot models.RequestSnapshot, proforma *models.ProformaMetadata) *models.POMetadata {
			once.Do(func() { close(done) })
			return &models.POMetadata{Generated: true}
		},
	}
	processor := newTestProcessor(store, &mockItems{}, &mockDocs{}, &mockExtractor{}, structurer, &mockRenderer{})

	q := NewQueue(processor, 1, 4, zap.NewNop())
	require.NoError(t, q.Start(context.Background()))
	defer q.Stop()

	q.RequestApproved("req-1")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("PO generation was not scheduled")
	}
}

func TestQueue_StartTwiceFails(t *testing.T) {
	processor := newTestProcessor(
		newMockStore(func(tx *sql.Tx, id string) (*models.PurchaseRequest, error) { return nil, nil }),
		&mockItems{}, &mockDocs{}, &mockExtractor{}, &mockStructurer{}, &mockRenderer{})

	q := NewQueue(processor, 1, 4, zap.NewNop())
	require.NoError(t, q.Start(context.Background()))
	defer q.Stop()

	assert.Error(t, q.Start(context.Background()))
}

func TestQueue_EnqueueNeverBlocksWhenFull(t *testing.T) {
	processor := newTestProcessor(
		newMockStore(func(tx *sql.Tx, id string) (*models.PurchaseRequest, error) { return nil, nil }),
		&mockItems{}, &mockDocs{}, &mockExtractor{}, &mockStructurer{}, &mockRenderer{})

	// never started, so nothing drains the channel
	q := NewQueue(processor, 1, 1, zap.NewNop())

	finished := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			q.Enqueue(JobProformaEnrichment, "req-1")
		}
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
}
