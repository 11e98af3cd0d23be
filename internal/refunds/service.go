// Package refunds runs the post-fulfillment refund negotiation. The buyer
// opens a request against a shipped, delivered, or completed order; the
// seller rejects it or approves it, and approval triggers the gateway
// reversal. A failed reversal is recorded as failed, not rejected, so
// support can tell the two apart.
package refunds

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/reluxmarket/relux-backend/internal/notifications"
	"github.com/reluxmarket/relux-backend/pkg/config"
	"github.com/reluxmarket/relux-backend/pkg/db/models"
	"github.com/reluxmarket/relux-backend/pkg/enums"
	apperrors "github.com/reluxmarket/relux-backend/pkg/errors"
	"github.com/reluxmarket/relux-backend/pkg/logger"
	"github.com/reluxmarket/relux-backend/pkg/metrics"
	"github.com/reluxmarket/relux-backend/pkg/stripe"
)

// Seller responses to a pending refund request.
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service defines the refund negotiation operations.
type Service interface {
	Request(ctx context.Context, input RequestInput) (*models.RefundRequest, error)
	Respond(ctx context.Context, input RespondInput) (*models.RefundRequest, error)
}

type service struct {
	repo       Repository
	gateway    stripe.Gateway
	tx         txRunner
	dispatcher notifications.Dispatcher
	logg       *logger.Logger
	metrics    *metrics.SettlementMetrics
	refundCfg  config.RefundConfig
	now        func() time.Time
}

// RequestInput opens a refund request against an order. AmountCents is only
// read for partial refunds; full refunds reverse the whole charge.
type RequestInput struct {
	OrderID     uuid.UUID
	BuyerID     uuid.UUID
	Reason      string
	RefundType  enums.RefundType
	AmountCents int64
}

// RespondInput is the seller's answer to the pending request.
type RespondInput struct {
	OrderID  uuid.UUID
	SellerID uuid.UUID
	Action   string
	Notes    string
}

// NewService builds the refund workflow service with the required dependencies.
func NewService(
	repo Repository,
	gateway stripe.Gateway,
	tx txRunner,
	dispatcher notifications.Dispatcher,
	logg *logger.Logger,
	settlementMetrics *metrics.SettlementMetrics,
	refundCfg config.RefundConfig,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("refunds repository required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
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
		gateway:    gateway,
		tx:         tx,
		dispatcher: dispatcher,
		logg:       logg,
		metrics:    settlementMetrics,
		refundCfg:  refundCfg,
		now:        time.Now,
	}, nil
}

func (s *service) Request(ctx context.Context, input RequestInput) (*models.RefundRequest, error) {
	if input.BuyerID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeUnauthorized, "user identity missing")
	}
	if input.OrderID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "order id required")
	}
	reason := strings.TrimSpace(input.Reason)
	if len(reason) < s.refundCfg.MinReasonLength {
		return nil, apperrors.New(apperrors.CodeValidation,
			fmt.Sprintf("reason must be at least %d characters", s.refundCfg.MinReasonLength))
	}
	if !input.RefundType.IsValid() {
		return nil, apperrors.New(apperrors.CodeValidation, "invalid refund type")
	}

	ctx = s.logg.WithOrderID(ctx, input.OrderID.String())

	var request *models.RefundRequest
	var sellerID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindOrderByIDForUpdate(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if order.BuyerID != input.BuyerID {
			return apperrors.New(apperrors.CodeForbidden, "only the buyer can request a refund")
		}
		if !order.Status.CanTransitionTo(enums.OrderStatusRefundRequested) {
			return apperrors.New(apperrors.CodeStateConflict, "order is not eligible for a refund").
				WithDetails(map[string]any{"status": string(order.Status)})
		}

		if existing, err := repo.FindPendingByOrderID(ctx, order.ID); err == nil {
			return apperrors.New(apperrors.CodeConflict, "a refund request is already pending").
				WithDetails(map[string]any{"reason": "duplicate_request", "request_id": existing.ID.String()})
		} else if apperrors.CodeOf(err) != apperrors.CodeNotFound {
			return err
		}

		transaction, err := repo.FindTransactionByID(ctx, order.TransactionID)
		if err != nil {
			return err
		}

		// The buyer was charged subtotal plus fee; refunds settle against
		// that total, not the transaction amount.
		chargedCents := transaction.AmountCents + transaction.BuyerFeeCents
		amount := chargedCents
		if input.RefundType == enums.RefundTypePartial {
			if input.AmountCents <= 0 || input.AmountCents >= chargedCents {
				return apperrors.New(apperrors.CodeValidation,
					"partial refund amount must be positive and below the charged amount")
			}
			amount = input.AmountCents
		}

		request = &models.RefundRequest{
			OrderID:       order.ID,
			BuyerID:       order.BuyerID,
			SellerID:      order.SellerID,
			TransactionID: transaction.ID,
			AmountCents:   amount,
			Currency:      transaction.Currency,
			Reason:        reason,
			RefundType:    input.RefundType,
			Status:        enums.RefundRequestStatusPending,
		}
		if err := repo.CreateRequest(ctx, request); err != nil {
			return apperrors.Wrap(apperrors.CodeDependency, err, "create refund request")
		}

		fromStatus := order.Status
		if err := repo.UpdateOrder(ctx, order.ID, map[string]any{
			"status": enums.OrderStatusRefundRequested,
		}); err != nil {
			return apperrors.Wrap(apperrors.CodeDependency, err, "update order")
		}

		sellerID = order.SellerID
		return s.writeHistory(ctx, repo, order.ID, fromStatus, enums.OrderStatusRefundRequested, input.BuyerID, &reason)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncRefund("requested")
	s.metrics.IncTransition(string(enums.OrderStatusRefundRequested))
	s.logg.Info(ctx, "refunds.requested")
	s.notify(ctx, notifications.TemplateRefundRequested, sellerID, map[string]any{
		"order_id":     input.OrderID.String(),
		"refund_type":  string(input.RefundType),
		"amount_cents": request.AmountCents,
	})
	return request, nil
}

func (s *service) Respond(ctx context.Context, input RespondInput) (*models.RefundRequest, error) {
	if input.SellerID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeUnauthorized, "user identity missing")
	}
	if input.OrderID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "order id required")
	}
	switch input.Action {
	case ActionApprove, ActionReject:
	default:
		return nil, apperrors.New(apperrors.CodeValidation, "action must be approve or reject")
	}

	ctx = s.logg.WithOrderID(ctx, input.OrderID.String())

	if input.Action == ActionReject {
		return s.reject(ctx, input)
	}
	return s.approve(ctx, input)
}

func (s *service) reject(ctx context.Context, input RespondInput) (*models.RefundRequest, error) {
	var request *models.RefundRequest
	var buyerID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, pending, err := s.pendingForSeller(ctx, repo, input.OrderID, input.SellerID, enums.OrderStatusCompleted)
		if err != nil {
			return err
		}

		now := s.now()
		updates := map[string]any{
			"status":              enums.RefundRequestStatusRejected,
			"seller_responded_at": now,
		}
		if notes := strings.TrimSpace(input.Notes); notes != "" {
			updates["seller_response"] = notes
		}
		if err := repo.UpdateRequest(ctx, pending.ID, updates); err != nil {
			return apperrors.Wrap(apperrors.CodeDependency, err, "update refund request")
		}

		if err := repo.UpdateOrder(ctx, order.ID, map[string]any{
			"status": enums.OrderStatusCompleted,
		}); err != nil {
			return apperrors.Wrap(apperrors.CodeDependency, err, "update order")
		}

		if err := s.writeHistory(ctx, repo, order.ID, enums.OrderStatusRefundRequested, enums.OrderStatusCompleted, input.SellerID, nil); err != nil {
			return err
		}

		buyerID = order.BuyerID
		request, err = repo.FindRequestByID(ctx, pending.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncRefund("rejected")
	s.logg.Info(ctx, "refunds.rejected")
	s.notify(ctx, notifications.TemplateRefundRejected, buyerID, map[string]any{
		"order_id": input.OrderID.String(),
	})
	return request, nil
}

func (s *service) approve(ctx context.Context, input RespondInput) (*models.RefundRequest, error) {
	// Phase one records the approval under the order lock; the gateway call
	// runs outside the transaction so a slow processor never holds the row.
	var pending *models.RefundRequest
	var transaction *models.Transaction
	var buyerID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, req, err := s.pendingForSeller(ctx, repo, input.OrderID, input.SellerID, enums.OrderStatusRefunded)
		if err != nil {
			return err
		}

		transaction, err = repo.FindTransactionByID(ctx, order.TransactionID)
		if err != nil {
			return err
		}

		updates := map[string]any{
			"status":              enums.RefundRequestStatusApproved,
			"seller_responded_at": s.now(),
		}
		if notes := strings.TrimSpace(input.Notes); notes != "" {
			updates["seller_response"] = notes
		}
		if err := repo.UpdateRequest(ctx, req.ID, updates); err != nil {
			return apperrors.Wrap(apperrors.CodeDependency, err, "update refund request")
		}

		buyerID = order.BuyerID
		pending = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	amount := pending.AmountCents
	if pending.RefundType == enums.RefundTypeFull {
		amount = 0 // gateway refunds the full captured amount
	}

	started := s.now()
	result, gatewayErr := s.gateway.CreateRefund(ctx, stripe.RefundRequest{
		PaymentIntentID: transaction.GatewayPaymentRef,
		AmountCents:     amount,
		Reason:          "requested_by_customer",
		IdempotencyKey:  "refund:" + pending.ID.String(),
	})
	s.metrics.ObserveGatewayCall("create_refund", s.now().Sub(started))

	if gatewayErr != nil {
		return nil, s.recordFailure(ctx, input, pending, buyerID, gatewayErr)
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if err := repo.UpdateRequest(ctx, pending.ID, map[string]any{
			"gateway_refund_ref": result.ID,
		}); err != nil {
			return apperrors.Wrap(apperrors.CodeDependency, err, "update refund request")
		}
		if err := repo.UpdateTransaction(ctx, transaction.ID, map[string]any{
			"status":        enums.TransactionStatusRefunded,
			"refund_reason": pending.Reason,
		}); err != nil {
			return apperrors.Wrap(apperrors.CodeDependency, err, "update transaction")
		}
		if err := repo.UpdateOrder(ctx, input.OrderID, map[string]any{
			"status": enums.OrderStatusRefunded,
		}); err != nil {
			return apperrors.Wrap(apperrors.CodeDependency, err, "update order")
		}
		return s.writeHistory(ctx, repo, input.OrderID, enums.OrderStatusRefundRequested, enums.OrderStatusRefunded, input.SellerID, nil)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncRefund("approved")
	s.metrics.IncTransition(string(enums.OrderStatusRefunded))
	s.logg.Info(s.logg.WithField(ctx, "gateway_refund_ref", result.ID), "refunds.approved")
	s.notify(ctx, notifications.TemplateRefundApproved, buyerID, map[string]any{
		"order_id":     input.OrderID.String(),
		"amount_cents": pending.AmountCents,
	})
	return s.repo.FindRequestByID(ctx, pending.ID)
}

// recordFailure parks an approved request at failed and leaves the order at
// refund_requested. The gateway error is returned to the caller unchanged.
func (s *service) recordFailure(ctx context.Context, input RespondInput, pending *models.RefundRequest, buyerID uuid.UUID, gatewayErr error) error {
	reason := gatewayErr.Error()
	if err := s.repo.UpdateRequest(ctx, pending.ID, map[string]any{
		"status":         enums.RefundRequestStatusFailed,
		"failure_reason": reason,
	}); err != nil {
		s.logg.Error(ctx, "refunds.failure_record_failed", err)
	}

	s.metrics.IncRefund("failed")
	s.logg.Error(ctx, "refunds.gateway_failed", gatewayErr)
	s.notify(ctx, notifications.TemplateRefundFailed, buyerID, map[string]any{
		"order_id": input.OrderID.String(),
	})
	return gatewayErr
}

// pendingForSeller authorizes the seller, loads the order with its pending
// request under the row lock, and checks the edge the response would take.
func (s *service) pendingForSeller(ctx context.Context, repo Repository, orderID, sellerID uuid.UUID, target enums.OrderStatus) (*models.Order, *models.RefundRequest, error) {
	order, err := repo.FindOrderByIDForUpdate(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	if order.SellerID != sellerID {
		return nil, nil, apperrors.New(apperrors.CodeForbidden, "only the seller can respond to a refund request")
	}
	if !order.Status.CanTransitionTo(target) {
		return nil, nil, apperrors.New(apperrors.CodeStateConflict,
			fmt.Sprintf("order cannot move from %s to %s", order.Status, target)).
			WithDetails(map[string]any{"from": string(order.Status), "to": string(target)})
	}
	pending, err := repo.FindPendingByOrderID(ctx, order.ID)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeNotFound {
			return nil, nil, apperrors.New(apperrors.CodeStateConflict, "order has no pending refund request")
		}
		return nil, nil, err
	}
	return order, pending, nil
}

func (s *service) writeHistory(ctx context.Context, repo Repository, orderID uuid.UUID, from, to enums.OrderStatus, actor uuid.UUID, reason *string) error {
	entry := &models.OrderStatusHistory{
		OrderID:    orderID,
		FromStatus: &from,
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
		s.logg.Warn(s.logg.WithField(ctx, "template_id", templateID), "refunds.notification_failed")
	}
}
