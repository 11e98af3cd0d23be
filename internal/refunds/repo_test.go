package refunds

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/reluxmarket/relux-backend/pkg/db/models"
	"github.com/reluxmarket/relux-backend/pkg/enums"
	apperrors "github.com/reluxmarket/relux-backend/pkg/errors"
)

func setupRefundsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{`
CREATE TABLE IF NOT EXISTS refund_requests (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  buyer_id TEXT NOT NULL,
  seller_id TEXT NOT NULL,
  transaction_id TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  currency TEXT NOT NULL DEFAULT 'USD',
  reason TEXT NOT NULL,
  refund_type TEXT NOT NULL DEFAULT 'full',
  status TEXT NOT NULL DEFAULT 'pending',
  seller_response TEXT,
  seller_responded_at DATETIME,
  gateway_refund_ref TEXT,
  failure_reason TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  order_number TEXT NOT NULL UNIQUE,
  buyer_id TEXT NOT NULL,
  seller_id TEXT NOT NULL,
  transaction_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  shipping_address TEXT,
  shipping_method TEXT NOT NULL DEFAULT 'standard',
  shipping_carrier TEXT,
  tracking_number TEXT,
  subtotal_cents INTEGER NOT NULL,
  shipping_cents INTEGER NOT NULL DEFAULT 0,
  tax_cents INTEGER NOT NULL DEFAULT 0,
  total_cents INTEGER NOT NULL,
  cancellation_reason TEXT,
  confirmed_at DATETIME,
  shipped_at DATETIME,
  delivered_at DATETIME,
  completed_at DATETIME,
  cancelled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS order_status_history (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  from_status TEXT,
  to_status TEXT NOT NULL,
  changed_by TEXT NOT NULL,
  reason TEXT,
  created_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS transactions (
  id TEXT PRIMARY KEY,
  order_reference TEXT NOT NULL UNIQUE,
  listing_id TEXT NOT NULL,
  buyer_id TEXT NOT NULL,
  seller_id TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  currency TEXT NOT NULL DEFAULT 'USD',
  status TEXT NOT NULL DEFAULT 'pending',
  payment_method TEXT NOT NULL DEFAULT 'stripe',
  gateway_payment_ref TEXT NOT NULL,
  gateway_charge_ref TEXT,
  buyer_fee_cents INTEGER NOT NULL,
  buyer_fee_basis_points INTEGER NOT NULL,
  platform_fee_cents INTEGER NOT NULL,
  seller_payout_cents INTEGER NOT NULL,
  seller_payout_status TEXT NOT NULL DEFAULT 'pending',
  payout_eligible_at DATETIME,
  refund_reason TEXT,
  shipping_address TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`}

	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func insertRequest(t *testing.T, repo Repository, orderID uuid.UUID, status enums.RefundRequestStatus) *models.RefundRequest {
	t.Helper()
	request := &models.RefundRequest{
		ID:            uuid.New(),
		OrderID:       orderID,
		BuyerID:       uuid.New(),
		SellerID:      uuid.New(),
		TransactionID: uuid.New(),
		AmountCents:   5875,
		Currency:      enums.CurrencyUSD,
		Reason:        "item arrived damaged",
		RefundType:    enums.RefundTypeFull,
		Status:        status,
	}
	require.NoError(t, repo.CreateRequest(context.Background(), request))
	return request
}

func TestRefundsRepo_CreateAndFind(t *testing.T) {
	repo := NewRepository(setupRefundsTestDB(t))
	ctx := context.Background()

	request := insertRequest(t, repo, uuid.New(), enums.RefundRequestStatusPending)

	found, err := repo.FindRequestByID(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, request.OrderID, found.OrderID)
	assert.Equal(t, enums.RefundRequestStatusPending, found.Status)

	_, err = repo.FindRequestByID(ctx, uuid.New())
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
}

func TestRefundsRepo_FindPendingSkipsSettledRequests(t *testing.T) {
	repo := NewRepository(setupRefundsTestDB(t))
	ctx := context.Background()

	orderID := uuid.New()
	insertRequest(t, repo, orderID, enums.RefundRequestStatusRejected)
	insertRequest(t, repo, orderID, enums.RefundRequestStatusFailed)

	_, err := repo.FindPendingByOrderID(ctx, orderID)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))

	pending := insertRequest(t, repo, orderID, enums.RefundRequestStatusPending)
	found, err := repo.FindPendingByOrderID(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, pending.ID, found.ID)
}

func TestRefundsRepo_UpdateRequest(t *testing.T) {
	repo := NewRepository(setupRefundsTestDB(t))
	ctx := context.Background()

	request := insertRequest(t, repo, uuid.New(), enums.RefundRequestStatusPending)

	require.NoError(t, repo.UpdateRequest(ctx, request.ID, map[string]any{
		"status":             enums.RefundRequestStatusApproved,
		"gateway_refund_ref": "re_test_123",
	}))

	found, err := repo.FindRequestByID(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.RefundRequestStatusApproved, found.Status)
	require.NotNil(t, found.GatewayRefundRef)
	assert.Equal(t, "re_test_123", *found.GatewayRefundRef)
}

func TestRefundsRepo_OrderAndTransactionUpdates(t *testing.T) {
	database := setupRefundsTestDB(t)
	repo := NewRepository(database)
	ctx := context.Background()

	orderID := uuid.New()
	transactionID := uuid.New()
	require.NoError(t, database.Exec(
		`INSERT INTO orders (id, order_number, buyer_id, seller_id, transaction_id, status, subtotal_cents, total_cents)
		 VALUES (?, ?, ?, ?, ?, 'refund_requested', 5000, 5875)`,
		orderID.String(), "RELUX-"+uuid.NewString()[:13], uuid.NewString(), uuid.NewString(), transactionID.String(),
	).Error)
	require.NoError(t, database.Exec(
		`INSERT INTO transactions (id, order_reference, listing_id, buyer_id, seller_id, amount_cents, status, gateway_payment_ref,
		 buyer_fee_cents, buyer_fee_basis_points, platform_fee_cents, seller_payout_cents)
		 VALUES (?, ?, ?, ?, ?, 5875, 'completed', 'pi_test', 375, 500, 375, 5500)`,
		transactionID.String(), "RELUX-"+uuid.NewString()[:13], uuid.NewString(), uuid.NewString(), uuid.NewString(),
	).Error)

	require.NoError(t, repo.UpdateOrder(ctx, orderID, map[string]any{"status": enums.OrderStatusRefunded}))
	require.NoError(t, repo.UpdateTransaction(ctx, transactionID, map[string]any{
		"status":        enums.TransactionStatusRefunded,
		"refund_reason": "item arrived damaged",
	}))

	transaction, err := repo.FindTransactionByID(ctx, transactionID)
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusRefunded, transaction.Status)
	require.NotNil(t, transaction.RefundReason)

	require.NoError(t, repo.CreateHistory(ctx, &models.OrderStatusHistory{
		ID:        uuid.New(),
		OrderID:   orderID,
		ToStatus:  enums.OrderStatusRefunded,
		ChangedBy: uuid.New(),
	}))
	var count int64
	require.NoError(t, database.Table("order_status_history").Where("order_id = ?", orderID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}
