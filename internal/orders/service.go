// Package orders drives the fulfillment state machine. Every transition
// authorizes the actor, re-checks its precondition under a row lock, writes
// the mutation plus exactly one history row in the same transaction, and runs
// side effects (notifications, listing restock) best-effort afterwards.
package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/reluxmarket/relux-backend/internal/listings"
	"github.com/reluxmarket/relux-backend/internal/notifications"
	"github.com/reluxmarket/relux-backend/pkg/config"
	"github.com/reluxmarket/relux-backend/pkg/db/models"
	"github.com/reluxmarket/relux-backend/pkg/enums"
	apperrors "github.com/reluxmarket/relux-backend/pkg/errors"
	"github.com/reluxmarket/relux-backend/pkg/logger"
	"github.com/reluxmarket/relux-backend/pkg/metrics"
	"github.com/reluxmarket/relux-backend/pkg/pagination"
	"github.com/reluxmarket/relux-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service defines the order lifecycle operations.
type Service interface {
	Confirm(ctx context.Context, input ConfirmInput) (*models.Order, error)
	MarkShipped(ctx context.Context, input ShipInput) error
	MarkDelivered(ctx context.Context, input DeliverInput) error
	Complete(ctx context.Context, input CompleteInput) error
	Cancel(ctx context.Context, input CancelInput) error
	List(ctx context.Context, input ListInput) ([]models.Order, *pagination.Cursor, error)
	Detail(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error)
}

type service struct {
	repo       Repository
	listings   listings.Repository
	tx         txRunner
	dispatcher notifications.Dispatcher
	logg       *logger.Logger
	metrics    *metrics.SettlementMetrics
	payoutCfg  config.PayoutConfig
	now        func() time.Time
}

// ConfirmInput records a captured payment becoming an order.
type ConfirmInput struct {
	BuyerID        uuid.UUID
	TransactionID  uuid.UUID
	ShippingMethod string
}

// ShipInput carries the seller's shipment details.
type ShipInput struct {
	OrderID        uuid.UUID
	SellerID       uuid.UUID
	Carrier        string
	TrackingNumber string
}

// DeliverInput is the buyer's delivery confirmation.
type DeliverInput struct {
	OrderID uuid.UUID
	BuyerID uuid.UUID
}

// CompleteInput closes out a delivered order.
type CompleteInput struct {
	OrderID uuid.UUID
	BuyerID uuid.UUID
}

// CancelInput aborts an order before shipment.
type CancelInput struct {
	OrderID uuid.UUID
	ActorID uuid.UUID
	Reason  string
}

// ListInput filters the caller's orders.
type ListInput struct {
	UserID uuid.UUID
	Role   string // "buyer" (default) or "seller"
	Status *enums.OrderStatus
	Page   pagination.Params
}

// NewService builds the order lifecycle service with the required dependencies.
func NewService(
	repo Repository,
	listingRepo listings.Repository,
	tx txRunner,
	dispatcher notifications.Dispatcher,
	logg *logger.Logger,
	settlementMetrics *metrics.SettlementMetrics,
	payoutCfg config.PayoutConfig,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if listingRepo == nil {
		return nil, fmt.Errorf("listings repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("notification dispatcher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:       repo,
		listings:   listingRepo,
		tx:         tx,
		dispatcher: dispatcher,
		logg:       logg,
		metrics:    settlementMetrics,
		payoutCfg:  payoutCfg,
		now:        time.Now,
	}, nil
}

func (s *service) Confirm(ctx context.Context, input ConfirmInput) (*models.Order, error) {
	if input.BuyerID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeUnauthorized, "user identity missing")
	}
	if input.TransactionID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "transaction id required")
	}

	ctx = s.logg.WithTransactionID(ctx, input.TransactionID.String())

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		transaction, err := repo.FindTransactionByID(ctx, input.TransactionID)
		if err != nil {
			return err
		}
		if transaction.BuyerID != input.BuyerID {
			return apperrors.New(apperrors.CodeForbidden, "transaction does not belong to buyer")
		}
		switch transaction.Status {
		case enums.TransactionStatusPending, enums.TransactionStatusPaymentSubmitted:
		default:
			return apperrors.New(apperrors.CodeStateConflict, "transaction cannot be confirmed in current state")
		}

		if existing, err := repo.FindByTransactionID(ctx, transaction.ID); err == nil {
			return apperrors.New(apperrors.CodeConflict, "order already exists for transaction").
				WithDetails(map[string]any{"order_id": existing.ID.String()})
		} else if apperrors.CodeOf(err) != apperrors.CodeNotFound {
			return err
		}

		listing, err := s.listings.WithTx(tx).FindByID(ctx, transaction.ListingID)
		if err != nil {
			return err
		}

		shippingMethod := strings.TrimSpace(input.ShippingMethod)
		if shippingMethod == "" {
			shippingMethod = "standard"
		}

		now := s.now()
		order = &models.Order{
			OrderNumber:     transaction.OrderReference,
			BuyerID:         transaction.BuyerID,
			SellerID:        transaction.SellerID,
			TransactionID:   transaction.ID,
			Status:          enums.OrderStatusConfirmed,
			ShippingAddress: transaction.ShippingAddress,
			ShippingMethod:  shippingMethod,
			SubtotalCents:   listing.PriceCents,
			ShippingCents:   listing.ShippingCents,
			TotalCents:      transaction.AmountCents + transaction.BuyerFeeCents,
			ConfirmedAt:     &now,
		}
		if err := repo.CreateOrder(ctx, order); err != nil {
			return apperrors.Wrap(apperrors.CodeDependency, err, "create order")
		}

		item := &models.OrderItem{
			OrderID:        order.ID,
			ListingID:      listing.ID,
			Quantity:       1,
			UnitPriceCents: listing.PriceCents,
			TotalCents:     listing.PriceCents,
			ItemSnapshot:   listingSnapshot(listing),
		}
		if err := repo.CreateOrderItem(ctx, item); err != nil {
			return apperrors.Wrap(apperrors.CodeDependency, err, "create order item")
		}

		if err := s.listings.WithTx(tx).MarkSold(ctx, listing.ID); err != nil {
			return err
		}

		if err := repo.UpdateTransaction(ctx, transaction.ID, map[string]any{
			"status": enums.TransactionStatusPaymentSubmitted,
		}); err != nil {
			return apperrors.Wrap(apperrors.CodeDependency, err, "update transaction")
		}

		return s.writeHistory(ctx, repo, order.ID, statusPtr(enums.OrderStatusPending), enums.OrderStatusConfirmed, input.BuyerID, nil)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncTransition(string(enums.OrderStatusConfirmed))
	s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "orders.confirmed")
	return order, nil
}

func (s *service) MarkShipped(ctx context.Context, input ShipInput) error {
	if input.SellerID == uuid.Nil {
		return apperrors.New(apperrors.CodeUnauthorized, "user identity missing")
	}
	if input.OrderID == uuid.Nil {
		return apperrors.New(apperrors.CodeValidation, "order id required")
	}
	carrier := strings.TrimSpace(input.Carrier)
	tracking := strings.TrimSpace(input.TrackingNumber)
	if carrier == "" || tracking == "" {
		return apperrors.New(apperrors.CodeValidation, "carrier and tracking number are required")
	}

	ctx = s.logg.WithOrderID(ctx, input.OrderID.String())

	var buyerID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindByIDForUpdate(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if order.SellerID != input.SellerID {
			return apperrors.New(apperrors.CodeForbidden, "only the seller can mark an order shipped")
		}
		if err := ensureTransition(order.Status, enums.OrderStatusShipped); err != nil {
			return err
		}
		fromStatus := order.Status

		now := s.now()
		if err := repo.UpdateOrder(ctx, order.ID, map[string]any{
			"status":           enums.OrderStatusShipped,
			"shipping_carrier": carrier,
			"tracking_number":  tracking,
			"shipped_at":       now,
		}); err != nil {
			return apperrors.Wrap(apperrors.CodeDependency, err, "update order")
		}

		event := &models.ShippingEvent{
			OrderID:     order.ID,
			EventType:   enums.ShippingEventShipped,
			Description: fmt.Sprintf("Shipped via %s", carrier),
			CarrierData: types.JSONMap{"carrier": carrier, "tracking_number": tracking},
		}
		if err := repo.CreateShippingEvent(ctx, event); err != nil {
			return apperrors.Wrap(apperrors.CodeDependency, err, "create shipping event")
		}

		buyerID = order.BuyerID
		return s.writeHistory(ctx, repo, order.ID, statusPtr(fromStatus), enums.OrderStatusShipped, input.SellerID, nil)
	})
	if err != nil {
		return err
	}

	s.metrics.IncTransition(string(enums.OrderStatusShipped))
	s.logg.Info(ctx, "orders.shipped")
	s.notify(ctx, notifications.TemplateOrderShipped, buyerID, map[string]any{
		"order_id":        input.OrderID.String(),
		"carrier":         carrier,
		"tracking_number": tracking,
	})
	return nil
}

func (s *service) MarkDelivered(ctx context.Context, input DeliverInput) error {
	if input.BuyerID == uuid.Nil {
		return apperrors.New(apperrors.CodeUnauthorized, "user identity missing")
	}
	if input.OrderID == uuid.Nil {
		return apperrors.New(apperrors.CodeValidation, "order id required")
	}

	ctx = s.logg.WithOrderID(ctx, input.OrderID.String())

	var sellerID uuid.UUID
	var payoutAt time.Time
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindByIDForUpdate(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if order.BuyerID != input.BuyerID {
			return apperrors.New(apperrors.CodeForbidden, "only the buyer can confirm delivery")
		}
		if err := ensureTransition(order.Status, enums.OrderStatusDelivered); err != nil {
			return err
		}

		now := s.now()
		payoutAt = now.Add(s.payoutCfg.HoldPeriod)

		if err := repo.UpdateOrder(ctx, order.ID, map[string]any{
			"status":       enums.OrderStatusDelivered,
			"delivered_at": now,
		}); err != nil {
			return apperrors.Wrap(apperrors.CodeDependency, err, "update order")
		}

		if err := s.schedulePayout(ctx, repo, order, payoutAt); err != nil {
			return err
		}

		if err := repo.UpdateTransaction(ctx, order.TransactionID, map[string]any{
			"status":               enums.TransactionStatusCompleted,
			"seller_payout_status": enums.PayoutStatusPending,
			"payout_eligible_at":   payoutAt,
		}); err != nil {
			return apperrors.Wrap(apperrors.CodeDependency, err, "update transaction")
		}

		event := &models.ShippingEvent{
			OrderID:     order.ID,
			EventType:   enums.ShippingEventDelivered,
			Description: "Delivery confirmed by buyer",
		}
		if err := repo.CreateShippingEvent(ctx, event); err != nil {
			return apperrors.Wrap(apperrors.CodeDependency, err, "create shipping event")
		}

		sellerID = order.SellerID
		return s.writeHistory(ctx, repo, order.ID, statusPtr(enums.OrderStatusShipped), enums.OrderStatusDelivered, input.BuyerID, nil)
	})
	if err != nil {
		return err
	}

	s.metrics.IncTransition(string(enums.OrderStatusDelivered))
	s.logg.Info(ctx, "orders.delivered")
	s.notify(ctx, notifications.TemplateOrderDelivered, sellerID, map[string]any{
		"order_id": input.OrderID.String(),
	})
	s.notify(ctx, notifications.TemplatePayoutScheduled, sellerID, map[string]any{
		"order_id":      input.OrderID.String(),
		"scheduled_for": payoutAt.UTC().Format(time.RFC3339),
	})
	return nil
}

// schedulePayout supersedes the intent-time placeholder with the real payout
// carrying the hold-period schedule, or creates one if no placeholder exists.
func (s *service) schedulePayout(ctx context.Context, repo Repository, order *models.Order, scheduledFor time.Time) error {
	destination := models.PayoutDestinationNotSet
	if seller, err := repo.FindUserByID(ctx, order.SellerID); err == nil && seller.HasPayoutDestination() {
		destination = *seller.PayoutDestination
	}

	description := "sale " + order.OrderNumber

	placeholder, err := repo.FindPlaceholderPayout(ctx, order.TransactionID)
	if err == nil {
		return repo.UpdatePayout(ctx, placeholder.ID, map[string]any{
			"order_id":      order.ID,
			"scheduled_for": scheduledFor,
			"destination":   destination,
			"description":   description,
		})
	}
	if apperrors.CodeOf(err) != apperrors.CodeNotFound {
		return err
	}

	transaction, err := repo.FindTransactionByID(ctx, order.TransactionID)
	if err != nil {
		return err
	}
	payout := &models.Payout{
		SellerID:      order.SellerID,
		OrderID:       &order.ID,
		TransactionID: order.TransactionID,
		AmountCents:   transaction.SellerPayoutCents,
		Currency:      transaction.Currency,
		Status:        enums.PayoutStatusPending,
		Destination:   destination,
		Description:   &description,
		ScheduledFor:  &scheduledFor,
	}
	if err := repo.CreatePayout(ctx, payout); err != nil {
		return apperrors.Wrap(apperrors.CodeDependency, err, "create payout")
	}
	return nil
}

func (s *service) Complete(ctx context.Context, input CompleteInput) error {
	if input.BuyerID == uuid.Nil {
		return apperrors.New(apperrors.CodeUnauthorized, "user identity missing")
	}
	if input.OrderID == uuid.Nil {
		return apperrors.New(apperrors.CodeValidation, "order id required")
	}

	ctx = s.logg.WithOrderID(ctx, input.OrderID.String())

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindByIDForUpdate(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if order.BuyerID != input.BuyerID {
			return apperrors.New(apperrors.CodeForbidden, "only the buyer can complete an order")
		}
		if err := ensureTransition(order.Status, enums.OrderStatusCompleted); err != nil {
			return err
		}
		// refund_requested -> completed is the seller's rejection edge; the
		// buyer can only close out a delivered order.
		if order.Status != enums.OrderStatusDelivered {
			return transitionConflict(order.Status, enums.OrderStatusCompleted)
		}

		now := s.now()
		if err := repo.UpdateOrder(ctx, order.ID, map[string]any{
			"status":       enums.OrderStatusCompleted,
			"completed_at": now,
		}); err != nil {
			return apperrors.Wrap(apperrors.CodeDependency, err, "update order")
		}

		return s.writeHistory(ctx, repo, order.ID, statusPtr(enums.OrderStatusDelivered), enums.OrderStatusCompleted, input.BuyerID, nil)
	})
	if err != nil {
		return err
	}

	s.metrics.IncTransition(string(enums.OrderStatusCompleted))
	s.logg.Info(ctx, "orders.completed")
	return nil
}

func (s *service) Cancel(ctx context.Context, input CancelInput) error {
	if input.ActorID == uuid.Nil {
		return apperrors.New(apperrors.CodeUnauthorized, "user identity missing")
	}
	if input.OrderID == uuid.Nil {
		return apperrors.New(apperrors.CodeValidation, "order id required")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return apperrors.New(apperrors.CodeValidation, "cancellation reason required")
	}

	ctx = s.logg.WithOrderID(ctx, input.OrderID.String())

	var counterparty uuid.UUID
	var listingID uuid.UUID
	var restoreQty int
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindByIDForUpdate(ctx, input.OrderID)
		if err != nil {
			return err
		}
		switch input.ActorID {
		case order.BuyerID:
			counterparty = order.SellerID
		case order.SellerID:
			counterparty = order.BuyerID
		default:
			return apperrors.New(apperrors.CodeForbidden, "only the buyer or seller can cancel an order")
		}
		if err := ensureTransition(order.Status, enums.OrderStatusCancelled); err != nil {
			return err
		}
		fromStatus := order.Status

		now := s.now()
		if err := repo.UpdateOrder(ctx, order.ID, map[string]any{
			"status":              enums.OrderStatusCancelled,
			"cancellation_reason": reason,
			"cancelled_at":        now,
		}); err != nil {
			return apperrors.Wrap(apperrors.CodeDependency, err, "update order")
		}

		// The charge is reversed out of band; the transaction parks at
		// refund_pending until the admin follow-up settles it.
		if err := repo.UpdateTransaction(ctx, order.TransactionID, map[string]any{
			"status":        enums.TransactionStatusRefundPending,
			"refund_reason": reason,
		}); err != nil {
			return apperrors.Wrap(apperrors.CodeDependency, err, "update transaction")
		}

		transaction, err := repo.FindTransactionByID(ctx, order.TransactionID)
		if err == nil {
			listingID = transaction.ListingID
			restoreQty = 1
		}

		return s.writeHistory(ctx, repo, order.ID, statusPtr(fromStatus), enums.OrderStatusCancelled, input.ActorID, &reason)
	})
	if err != nil {
		return err
	}

	s.metrics.IncTransition(string(enums.OrderStatusCancelled))
	s.logg.Info(ctx, "orders.cancelled")

	if listingID != uuid.Nil {
		if err := s.listings.Restore(ctx, listingID, restoreQty); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "listing_id", listingID.String()), "orders.cancel.restock_failed")
		}
	}
	s.notify(ctx, notifications.TemplateOrderCancelled, counterparty, map[string]any{
		"order_id": input.OrderID.String(),
		"reason":   reason,
	})
	return nil
}

func (s *service) List(ctx context.Context, input ListInput) ([]models.Order, *pagination.Cursor, error) {
	if input.UserID == uuid.Nil {
		return nil, nil, apperrors.New(apperrors.CodeUnauthorized, "user identity missing")
	}

	cursor, err := pagination.ParseCursor(input.Page.Cursor)
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.CodeValidation, err, "invalid cursor")
	}
	if input.Status != nil && !input.Status.IsValid() {
		return nil, nil, apperrors.New(apperrors.CodeValidation, "invalid status filter")
	}

	return s.repo.List(ctx, ListParams{
		UserID: input.UserID,
		Role:   input.Role,
		Status: input.Status,
		Limit:  input.Page.Limit,
		Cursor: cursor,
	})
}

func (s *service) Detail(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error) {
	if userID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeUnauthorized, "user identity missing")
	}
	if orderID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "order id required")
	}

	order, err := s.repo.FindDetail(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != userID && order.SellerID != userID {
		return nil, apperrors.New(apperrors.CodeForbidden, "order does not belong to user")
	}
	return order, nil
}

func (s *service) writeHistory(ctx context.Context, repo Repository, orderID uuid.UUID, from *enums.OrderStatus, to enums.OrderStatus, actor uuid.UUID, reason *string) error {
	entry := &models.OrderStatusHistory{
		OrderID:    orderID,
		FromStatus: from,
		ToStatus:   to,
		ChangedBy:  actor,
		Reason:     reason,
	}
	if err := repo.CreateHistory(ctx, entry); err != nil {
		return apperrors.Wrap(apperrors.CodeDependency, err, "record status history")
	}
	return nil
}

func (s *service) notify(ctx context.Context, templateID string, recipient uuid.UUID, data map[string]any) {
	if recipient == uuid.Nil {
		return
	}
	if err := s.dispatcher.Send(ctx, templateID, recipient, data); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "template_id", templateID), "orders.notification_failed")
	}
}

// ensureTransition gates every status mutation on the order state machine.
func ensureTransition(from, to enums.OrderStatus) error {
	if from.IsTerminal() {
		return apperrors.New(apperrors.CodeStateConflict, fmt.Sprintf("order is final at %s", from)).
			WithDetails(map[string]any{"from": string(from), "to": string(to)})
	}
	if !from.CanTransitionTo(to) {
		return transitionConflict(from, to)
	}
	return nil
}

func transitionConflict(from, to enums.OrderStatus) error {
	return apperrors.New(apperrors.CodeStateConflict, fmt.Sprintf("order cannot move from %s to %s", from, to)).
		WithDetails(map[string]any{"from": string(from), "to": string(to)})
}

func statusPtr(status enums.OrderStatus) *enums.OrderStatus {
	return &status
}

func listingSnapshot(listing *models.Listing) types.JSONMap {
	snapshot := types.JSONMap{
		"listing_id":  listing.ID.String(),
		"title":       listing.Title,
		"price_cents": listing.PriceCents,
	}
	if listing.Brand != nil {
		snapshot["brand"] = *listing.Brand
	}
	if listing.Size != nil {
		snapshot["size"] = *listing.Size
	}
	if listing.Condition != nil {
		snapshot["condition"] = *listing.Condition
	}
	return snapshot
}
