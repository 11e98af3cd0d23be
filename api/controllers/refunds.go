package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/reluxmarket/relux-backend/api/middleware"
	"github.com/reluxmarket/relux-backend/api/responses"
	"github.com/reluxmarket/relux-backend/api/validators"
	"github.com/reluxmarket/relux-backend/internal/refunds"
	"github.com/reluxmarket/relux-backend/pkg/db/models"
	"github.com/reluxmarket/relux-backend/pkg/enums"
	pkgerrors "github.com/reluxmarket/relux-backend/pkg/errors"
	"github.com/reluxmarket/relux-backend/pkg/logger"
)

type refundRequestBody struct {
	Reason      string `json:"reason" validate:"required,min=10,max=1000"`
	RefundType  string `json:"refund_type" validate:"required,oneof=full partial"`
	AmountCents int64  `json:"amount_cents" validate:"omitempty,gt=0"`
}

type refundRespondBody struct {
	Action string `json:"action" validate:"required,oneof=approve reject"`
	Notes  string `json:"notes" validate:"omitempty,max=1000"`
}

type refundResponse struct {
	ID               uuid.UUID  `json:"id"`
	OrderID          uuid.UUID  `json:"order_id"`
	AmountCents      int64      `json:"amount_cents"`
	Currency         string     `json:"currency"`
	Reason           string     `json:"reason"`
	RefundType       string     `json:"refund_type"`
	Status           string     `json:"status"`
	SellerResponse   *string    `json:"seller_response,omitempty"`
	GatewayRefundRef *string    `json:"gateway_refund_ref,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	RespondedAt      *time.Time `json:"responded_at,omitempty"`
}

// RefundsRequest opens a refund request against a fulfilled order.
func RefundsRequest(svc refunds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req refundRequestBody
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		refundType, err := enums.ParseRefundType(req.RefundType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid refund type"))
			return
		}

		request, err := svc.Request(r.Context(), refunds.RequestInput{
			OrderID:     orderID,
			BuyerID:     middleware.UserIDFromContext(r.Context()),
			Reason:      req.Reason,
			RefundType:  refundType,
			AmountCents: req.AmountCents,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toRefundResponse(request))
	}
}

// RefundsRespond records the seller's approve or reject decision.
func RefundsRespond(svc refunds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req refundRespondBody
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		request, err := svc.Respond(r.Context(), refunds.RespondInput{
			OrderID:  orderID,
			SellerID: middleware.UserIDFromContext(r.Context()),
			Action:   req.Action,
			Notes:    req.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toRefundResponse(request))
	}
}

func toRefundResponse(request *models.RefundRequest) refundResponse {
	return refundResponse{
		ID:               request.ID,
		OrderID:          request.OrderID,
		AmountCents:      request.AmountCents,
		Currency:         string(request.Currency),
		Reason:           request.Reason,
		RefundType:       string(request.RefundType),
		Status:           string(request.Status),
		SellerResponse:   request.SellerResponse,
		GatewayRefundRef: request.GatewayRefundRef,
		CreatedAt:        request.CreatedAt,
		RespondedAt:      request.SellerRespondedAt,
	}
}
