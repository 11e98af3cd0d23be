package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/reluxmarket/relux-backend/internal/listings"
	"github.com/reluxmarket/relux-backend/pkg/config"
	"github.com/reluxmarket/relux-backend/pkg/db/models"
	"github.com/reluxmarket/relux-backend/pkg/enums"
	apperrors "github.com/reluxmarket/relux-backend/pkg/errors"
	"github.com/reluxmarket/relux-backend/pkg/logger"
	"github.com/reluxmarket/relux-backend/pkg/pagination"
)

type stubOrdersRepo struct {
	orders       map[uuid.UUID]*models.Order
	transactions map[uuid.UUID]*models.Transaction
	payouts      map[uuid.UUID]*models.Payout
	users        map[uuid.UUID]*models.User

	orderUpdates       map[uuid.UUID]map[string]any
	transactionUpdates map[uuid.UUID]map[string]any
	payoutUpdates      map[uuid.UUID]map[string]any
	history            []*models.OrderStatusHistory
	shippingEvents     []*models.ShippingEvent
	items              []*models.OrderItem
	createdPayouts     []*models.Payout
}

func newStubOrdersRepo() *stubOrdersRepo {
	return &stubOrdersRepo{
		orders:             make(map[uuid.UUID]*models.Order),
		transactions:       make(map[uuid.UUID]*models.Transaction),
		payouts:            make(map[uuid.UUID]*models.Payout),
		users:              make(map[uuid.UUID]*models.User),
		orderUpdates:       make(map[uuid.UUID]map[string]any),
		transactionUpdates: make(map[uuid.UUID]map[string]any),
		payoutUpdates:      make(map[uuid.UUID]map[string]any),
	}
}

func (s *stubOrdersRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubOrdersRepo) CreateOrder(ctx context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	s.orders[order.ID] = order
	return nil
}

func (s *stubOrdersRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if order, ok := s.orders[id]; ok {
		return order, nil
	}
	return nil, apperrors.New(apperrors.CodeNotFound, "order not found")
}

func (s *stubOrdersRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return s.FindByID(ctx, id)
}

func (s *stubOrdersRepo) FindByTransactionID(ctx context.Context, transactionID uuid.UUID) (*models.Order, error) {
	for _, order := range s.orders {
		if order.TransactionID == transactionID {
			return order, nil
		}
	}
	return nil, apperrors.New(apperrors.CodeNotFound, "order not found")
}

func (s *stubOrdersRepo) FindDetail(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return s.FindByID(ctx, id)
}

func (s *stubOrdersRepo) List(ctx context.Context, params ListParams) ([]models.Order, *pagination.Cursor, error) {
	var result []models.Order
	for _, order := range s.orders {
		owner := order.BuyerID
		if params.Role == "seller" {
			owner = order.SellerID
		}
		if owner != params.UserID {
			continue
		}
		if params.Status != nil && order.Status != *params.Status {
			continue
		}
		result = append(result, *order)
	}
	return result, nil, nil
}

func (s *stubOrdersRepo) UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	s.orderUpdates[id] = updates
	if order, ok := s.orders[id]; ok {
		if status, ok := updates["status"].(enums.OrderStatus); ok {
			order.Status = status
		}
	}
	return nil
}

func (s *stubOrdersRepo) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	s.items = append(s.items, item)
	return nil
}

func (s *stubOrdersRepo) CreateHistory(ctx context.Context, entry *models.OrderStatusHistory) error {
	s.history = append(s.history, entry)
	return nil
}

func (s *stubOrdersRepo) CreateShippingEvent(ctx context.Context, event *models.ShippingEvent) error {
	s.shippingEvents = append(s.shippingEvents, event)
	return nil
}

func (s *stubOrdersRepo) FindTransactionByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	if transaction, ok := s.transactions[id]; ok {
		return transaction, nil
	}
	return nil, apperrors.New(apperrors.CodeNotFound, "transaction not found")
}

func (s *stubOrdersRepo) UpdateTransaction(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	s.transactionUpdates[id] = updates
	return nil
}

func (s *stubOrdersRepo) FindPlaceholderPayout(ctx context.Context, transactionID uuid.UUID) (*models.Payout, error) {
	for _, payout := range s.payouts {
		if payout.TransactionID == transactionID && payout.OrderID == nil && payout.Status == enums.PayoutStatusPending {
			return payout, nil
		}
	}
	return nil, apperrors.New(apperrors.CodeNotFound, "placeholder payout not found")
}

func (s *stubOrdersRepo) CreatePayout(ctx context.Context, payout *models.Payout) error {
	if payout.ID == uuid.Nil {
		payout.ID = uuid.New()
	}
	s.payouts[payout.ID] = payout
	s.createdPayouts = append(s.createdPayouts, payout)
	return nil
}

func (s *stubOrdersRepo) UpdatePayout(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	s.payoutUpdates[id] = updates
	return nil
}

func (s *stubOrdersRepo) FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if user, ok := s.users[id]; ok {
		return user, nil
	}
	return nil, apperrors.New(apperrors.CodeNotFound, "user not found")
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubListingsRepo struct {
	listing  *models.Listing
	sold     []uuid.UUID
	restored []uuid.UUID
	soldErr  error
}

func (s *stubListingsRepo) WithTx(tx *gorm.DB) listings.Repository { return s }

func (s *stubListingsRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	if s.listing == nil || s.listing.ID != id {
		return nil, apperrors.New(apperrors.CodeNotFound, "listing not found")
	}
	return s.listing, nil
}

func (s *stubListingsRepo) MarkSold(ctx context.Context, id uuid.UUID) error {
	if s.soldErr != nil {
		return s.soldErr
	}
	s.sold = append(s.sold, id)
	return nil
}

func (s *stubListingsRepo) Restore(ctx context.Context, id uuid.UUID, quantity int) error {
	s.restored = append(s.restored, id)
	return nil
}

type stubDispatcher struct {
	sent []sentNotification
	err  error
}

type sentNotification struct {
	TemplateID string
	Recipient  uuid.UUID
}

func (s *stubDispatcher) Send(ctx context.Context, templateID string, recipient uuid.UUID, data map[string]any) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentNotification{TemplateID: templateID, Recipient: recipient})
	return nil
}

func newTestService(t *testing.T, repo *stubOrdersRepo, listingRepo *stubListingsRepo, dispatcher *stubDispatcher) Service {
	t.Helper()
	svc, err := NewService(
		repo,
		listingRepo,
		stubTxRunner{},
		dispatcher,
		logger.New(logger.Options{ServiceName: "orders-test"}),
		nil,
		config.PayoutConfig{HoldPeriod: 48 * time.Hour, MaxBatchSize: 50},
	)
	require.NoError(t, err)
	return svc
}

func seedTransaction(repo *stubOrdersRepo, listingID uuid.UUID) *models.Transaction {
	transaction := &models.Transaction{
		ID:                uuid.New(),
		OrderReference:    "RELUX-1750000000000-ABC234",
		ListingID:         listingID,
		BuyerID:           uuid.New(),
		SellerID:          uuid.New(),
		AmountCents:       5500,
		Currency:          enums.CurrencyUSD,
		Status:            enums.TransactionStatusPending,
		BuyerFeeCents:     375,
		SellerPayoutCents: 5500,
	}
	repo.transactions[transaction.ID] = transaction
	return transaction
}

func TestConfirm_CreatesOrderWithSnapshotAndHistory(t *testing.T) {
	repo := newStubOrdersRepo()
	listingID := uuid.New()
	transaction := seedTransaction(repo, listingID)

	brand := "Acne Studios"
	listingRepo := &stubListingsRepo{listing: &models.Listing{
		ID:            listingID,
		SellerID:      transaction.SellerID,
		Title:         "Wool coat",
		Brand:         &brand,
		PriceCents:    5000,
		ShippingCents: 500,
		Quantity:      1,
		Status:        enums.ListingStatusActive,
	}}
	dispatcher := &stubDispatcher{}

	svc := newTestService(t, repo, listingRepo, dispatcher)
	order, err := svc.Confirm(context.Background(), ConfirmInput{
		BuyerID:       transaction.BuyerID,
		TransactionID: transaction.ID,
	})
	require.NoError(t, err)

	require.Equal(t, enums.OrderStatusConfirmed, order.Status)
	require.Equal(t, transaction.OrderReference, order.OrderNumber)
	require.EqualValues(t, 5875, order.TotalCents)
	require.NotNil(t, order.ConfirmedAt)

	require.Len(t, repo.items, 1)
	require.Equal(t, "Wool coat", repo.items[0].ItemSnapshot["title"])
	require.Equal(t, brand, repo.items[0].ItemSnapshot["brand"])

	require.Equal(t, []uuid.UUID{listingID}, listingRepo.sold)

	require.Len(t, repo.history, 1)
	require.Equal(t, enums.OrderStatusConfirmed, repo.history[0].ToStatus)
	require.NotNil(t, repo.history[0].FromStatus)
	require.Equal(t, enums.OrderStatusPending, *repo.history[0].FromStatus)

	updates := repo.transactionUpdates[transaction.ID]
	require.Equal(t, enums.TransactionStatusPaymentSubmitted, updates["status"])
}

func TestConfirm_DuplicateTransactionConflicts(t *testing.T) {
	repo := newStubOrdersRepo()
	listingID := uuid.New()
	transaction := seedTransaction(repo, listingID)
	listingRepo := &stubListingsRepo{listing: &models.Listing{
		ID:       listingID,
		SellerID: transaction.SellerID,
		Status:   enums.ListingStatusActive,
		Quantity: 1,
	}}

	svc := newTestService(t, repo, listingRepo, &stubDispatcher{})
	_, err := svc.Confirm(context.Background(), ConfirmInput{BuyerID: transaction.BuyerID, TransactionID: transaction.ID})
	require.NoError(t, err)

	_, err = svc.Confirm(context.Background(), ConfirmInput{BuyerID: transaction.BuyerID, TransactionID: transaction.ID})
	require.Equal(t, apperrors.CodeConflict, apperrors.CodeOf(err))
}

func TestConfirm_WrongBuyerForbidden(t *testing.T) {
	repo := newStubOrdersRepo()
	transaction := seedTransaction(repo, uuid.New())

	svc := newTestService(t, repo, &stubListingsRepo{}, &stubDispatcher{})
	_, err := svc.Confirm(context.Background(), ConfirmInput{BuyerID: uuid.New(), TransactionID: transaction.ID})
	require.Equal(t, apperrors.CodeForbidden, apperrors.CodeOf(err))
}

func seedOrder(repo *stubOrdersRepo, status enums.OrderStatus) *models.Order {
	transaction := seedTransaction(repo, uuid.New())
	order := &models.Order{
		ID:            uuid.New(),
		OrderNumber:   transaction.OrderReference,
		BuyerID:       transaction.BuyerID,
		SellerID:      transaction.SellerID,
		TransactionID: transaction.ID,
		Status:        status,
		TotalCents:    transaction.AmountCents + transaction.BuyerFeeCents,
	}
	repo.orders[order.ID] = order
	return order
}

func TestMarkShipped(t *testing.T) {
	repo := newStubOrdersRepo()
	order := seedOrder(repo, enums.OrderStatusConfirmed)
	dispatcher := &stubDispatcher{}

	svc := newTestService(t, repo, &stubListingsRepo{}, dispatcher)
	err := svc.MarkShipped(context.Background(), ShipInput{
		OrderID:        order.ID,
		SellerID:       order.SellerID,
		Carrier:        "usps",
		TrackingNumber: "9400100000000000000000",
	})
	require.NoError(t, err)

	updates := repo.orderUpdates[order.ID]
	require.Equal(t, enums.OrderStatusShipped, updates["status"])
	require.Equal(t, "usps", updates["shipping_carrier"])

	require.Len(t, repo.shippingEvents, 1)
	require.Equal(t, enums.ShippingEventShipped, repo.shippingEvents[0].EventType)

	require.Len(t, repo.history, 1)
	require.Len(t, dispatcher.sent, 1)
	require.Equal(t, order.BuyerID, dispatcher.sent[0].Recipient)
}

func TestMarkShipped_RequiresCarrierAndTracking(t *testing.T) {
	repo := newStubOrdersRepo()
	order := seedOrder(repo, enums.OrderStatusConfirmed)

	svc := newTestService(t, repo, &stubListingsRepo{}, &stubDispatcher{})
	err := svc.MarkShipped(context.Background(), ShipInput{
		OrderID:  order.ID,
		SellerID: order.SellerID,
		Carrier:  "usps",
	})
	require.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))
}

func TestMarkShipped_BuyerForbidden(t *testing.T) {
	repo := newStubOrdersRepo()
	order := seedOrder(repo, enums.OrderStatusConfirmed)

	svc := newTestService(t, repo, &stubListingsRepo{}, &stubDispatcher{})
	err := svc.MarkShipped(context.Background(), ShipInput{
		OrderID:        order.ID,
		SellerID:       order.BuyerID,
		Carrier:        "usps",
		TrackingNumber: "9400",
	})
	require.Equal(t, apperrors.CodeForbidden, apperrors.CodeOf(err))
}

func TestMarkShipped_WrongStateConflicts(t *testing.T) {
	repo := newStubOrdersRepo()
	order := seedOrder(repo, enums.OrderStatusDelivered)

	svc := newTestService(t, repo, &stubListingsRepo{}, &stubDispatcher{})
	err := svc.MarkShipped(context.Background(), ShipInput{
		OrderID:        order.ID,
		SellerID:       order.SellerID,
		Carrier:        "usps",
		TrackingNumber: "9400",
	})
	require.Equal(t, apperrors.CodeStateConflict, apperrors.CodeOf(err))
}

func TestMarkDelivered_SupersedesPlaceholderPayout(t *testing.T) {
	repo := newStubOrdersRepo()
	order := seedOrder(repo, enums.OrderStatusShipped)

	destination := "acct_seller"
	repo.users[order.SellerID] = &models.User{ID: order.SellerID, PayoutDestination: &destination}
	placeholder := &models.Payout{
		ID:            uuid.New(),
		SellerID:      order.SellerID,
		TransactionID: order.TransactionID,
		AmountCents:   5500,
		Status:        enums.PayoutStatusPending,
		Destination:   models.PayoutDestinationNotSet,
	}
	repo.payouts[placeholder.ID] = placeholder
	dispatcher := &stubDispatcher{}

	svc := newTestService(t, repo, &stubListingsRepo{}, dispatcher)
	err := svc.MarkDelivered(context.Background(), DeliverInput{OrderID: order.ID, BuyerID: order.BuyerID})
	require.NoError(t, err)

	updates := repo.payoutUpdates[placeholder.ID]
	require.NotNil(t, updates)
	require.Equal(t, order.ID, updates["order_id"])
	require.Equal(t, destination, updates["destination"])
	scheduled, ok := updates["scheduled_for"].(time.Time)
	require.True(t, ok)
	require.InDelta(t, 48*time.Hour, time.Until(scheduled), float64(time.Minute))

	require.Empty(t, repo.createdPayouts, "placeholder should be updated, not duplicated")

	txUpdates := repo.transactionUpdates[order.TransactionID]
	require.Equal(t, enums.TransactionStatusCompleted, txUpdates["status"])

	require.Len(t, repo.shippingEvents, 1)
	require.Equal(t, enums.ShippingEventDelivered, repo.shippingEvents[0].EventType)

	templates := []string{dispatcher.sent[0].TemplateID, dispatcher.sent[1].TemplateID}
	require.Contains(t, templates, "order_delivered")
	require.Contains(t, templates, "payout_scheduled")
}

func TestMarkDelivered_CreatesPayoutWhenNoPlaceholder(t *testing.T) {
	repo := newStubOrdersRepo()
	order := seedOrder(repo, enums.OrderStatusShipped)

	svc := newTestService(t, repo, &stubListingsRepo{}, &stubDispatcher{})
	err := svc.MarkDelivered(context.Background(), DeliverInput{OrderID: order.ID, BuyerID: order.BuyerID})
	require.NoError(t, err)

	require.Len(t, repo.createdPayouts, 1)
	payout := repo.createdPayouts[0]
	require.Equal(t, order.SellerID, payout.SellerID)
	require.NotNil(t, payout.OrderID)
	require.Equal(t, order.ID, *payout.OrderID)
	require.EqualValues(t, 5500, payout.AmountCents)
	require.Equal(t, models.PayoutDestinationNotSet, payout.Destination)
	require.NotNil(t, payout.ScheduledFor)
}

func TestMarkDelivered_SellerForbidden(t *testing.T) {
	repo := newStubOrdersRepo()
	order := seedOrder(repo, enums.OrderStatusShipped)

	svc := newTestService(t, repo, &stubListingsRepo{}, &stubDispatcher{})
	err := svc.MarkDelivered(context.Background(), DeliverInput{OrderID: order.ID, BuyerID: order.SellerID})
	require.Equal(t, apperrors.CodeForbidden, apperrors.CodeOf(err))
}

func TestComplete_FromDelivered(t *testing.T) {
	repo := newStubOrdersRepo()
	order := seedOrder(repo, enums.OrderStatusDelivered)

	svc := newTestService(t, repo, &stubListingsRepo{}, &stubDispatcher{})
	err := svc.Complete(context.Background(), CompleteInput{OrderID: order.ID, BuyerID: order.BuyerID})
	require.NoError(t, err)

	updates := repo.orderUpdates[order.ID]
	require.Equal(t, enums.OrderStatusCompleted, updates["status"])
	require.Len(t, repo.history, 1)
}

func TestComplete_WrongStateConflicts(t *testing.T) {
	repo := newStubOrdersRepo()
	order := seedOrder(repo, enums.OrderStatusShipped)

	svc := newTestService(t, repo, &stubListingsRepo{}, &stubDispatcher{})
	err := svc.Complete(context.Background(), CompleteInput{OrderID: order.ID, BuyerID: order.BuyerID})
	require.Equal(t, apperrors.CodeStateConflict, apperrors.CodeOf(err))
}

func TestComplete_RefundRequestedBlocksBuyer(t *testing.T) {
	// refund_requested -> completed is a legal edge, but only the seller's
	// rejection takes it; the buyer's completion must wait.
	repo := newStubOrdersRepo()
	order := seedOrder(repo, enums.OrderStatusRefundRequested)

	svc := newTestService(t, repo, &stubListingsRepo{}, &stubDispatcher{})
	err := svc.Complete(context.Background(), CompleteInput{OrderID: order.ID, BuyerID: order.BuyerID})
	require.Equal(t, apperrors.CodeStateConflict, apperrors.CodeOf(err))
	require.Empty(t, repo.orderUpdates)
}

func TestMarkShipped_TerminalStateConflicts(t *testing.T) {
	repo := newStubOrdersRepo()
	order := seedOrder(repo, enums.OrderStatusCancelled)

	svc := newTestService(t, repo, &stubListingsRepo{}, &stubDispatcher{})
	err := svc.MarkShipped(context.Background(), ShipInput{
		OrderID:        order.ID,
		SellerID:       order.SellerID,
		Carrier:        "usps",
		TrackingNumber: "9400",
	})
	require.Equal(t, apperrors.CodeStateConflict, apperrors.CodeOf(err))

	details, ok := apperrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	require.Equal(t, "cancelled", details["from"])
	require.Equal(t, "shipped", details["to"])
}

func TestCancel_ParksTransactionAndRestocks(t *testing.T) {
	repo := newStubOrdersRepo()
	order := seedOrder(repo, enums.OrderStatusConfirmed)
	listingRepo := &stubListingsRepo{}
	dispatcher := &stubDispatcher{}

	svc := newTestService(t, repo, listingRepo, dispatcher)
	err := svc.Cancel(context.Background(), CancelInput{
		OrderID: order.ID,
		ActorID: order.BuyerID,
		Reason:  "changed my mind",
	})
	require.NoError(t, err)

	updates := repo.orderUpdates[order.ID]
	require.Equal(t, enums.OrderStatusCancelled, updates["status"])
	require.Equal(t, "changed my mind", updates["cancellation_reason"])

	txUpdates := repo.transactionUpdates[order.TransactionID]
	require.Equal(t, enums.TransactionStatusRefundPending, txUpdates["status"])

	require.Len(t, listingRepo.restored, 1)

	require.Len(t, dispatcher.sent, 1)
	require.Equal(t, "order_cancelled", dispatcher.sent[0].TemplateID)
	require.Equal(t, order.SellerID, dispatcher.sent[0].Recipient)

	require.Len(t, repo.history, 1)
	require.NotNil(t, repo.history[0].Reason)
}

func TestCancel_AfterShipmentConflicts(t *testing.T) {
	repo := newStubOrdersRepo()
	order := seedOrder(repo, enums.OrderStatusShipped)

	svc := newTestService(t, repo, &stubListingsRepo{}, &stubDispatcher{})
	err := svc.Cancel(context.Background(), CancelInput{
		OrderID: order.ID,
		ActorID: order.SellerID,
		Reason:  "out of stock",
	})
	require.Equal(t, apperrors.CodeStateConflict, apperrors.CodeOf(err))
}

func TestCancel_StrangerForbidden(t *testing.T) {
	repo := newStubOrdersRepo()
	order := seedOrder(repo, enums.OrderStatusConfirmed)

	svc := newTestService(t, repo, &stubListingsRepo{}, &stubDispatcher{})
	err := svc.Cancel(context.Background(), CancelInput{
		OrderID: order.ID,
		ActorID: uuid.New(),
		Reason:  "not mine",
	})
	require.Equal(t, apperrors.CodeForbidden, apperrors.CodeOf(err))
}

func TestCancel_NotificationFailureDoesNotFail(t *testing.T) {
	repo := newStubOrdersRepo()
	order := seedOrder(repo, enums.OrderStatusConfirmed)
	dispatcher := &stubDispatcher{err: apperrors.New(apperrors.CodeDependency, "smtp down")}

	svc := newTestService(t, repo, &stubListingsRepo{}, dispatcher)
	err := svc.Cancel(context.Background(), CancelInput{
		OrderID: order.ID,
		ActorID: order.BuyerID,
		Reason:  "changed my mind",
	})
	require.NoError(t, err)
}

func TestDetail_OnlyParties(t *testing.T) {
	repo := newStubOrdersRepo()
	order := seedOrder(repo, enums.OrderStatusConfirmed)

	svc := newTestService(t, repo, &stubListingsRepo{}, &stubDispatcher{})

	got, err := svc.Detail(context.Background(), order.ID, order.BuyerID)
	require.NoError(t, err)
	require.Equal(t, order.ID, got.ID)

	_, err = svc.Detail(context.Background(), order.ID, order.SellerID)
	require.NoError(t, err)

	_, err = svc.Detail(context.Background(), order.ID, uuid.New())
	require.Equal(t, apperrors.CodeForbidden, apperrors.CodeOf(err))
}

func TestList_InvalidCursor(t *testing.T) {
	repo := newStubOrdersRepo()
	svc := newTestService(t, repo, &stubListingsRepo{}, &stubDispatcher{})

	_, _, err := svc.List(context.Background(), ListInput{
		UserID: uuid.New(),
		Page:   pagination.Params{Cursor: "!!not-a-cursor!!"},
	})
	require.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))
}
