package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/reluxmarket/relux-backend/api/middleware"
	"github.com/reluxmarket/relux-backend/api/responses"
	"github.com/reluxmarket/relux-backend/api/validators"
	"github.com/reluxmarket/relux-backend/internal/orders"
	"github.com/reluxmarket/relux-backend/pkg/db/models"
	"github.com/reluxmarket/relux-backend/pkg/enums"
	pkgerrors "github.com/reluxmarket/relux-backend/pkg/errors"
	"github.com/reluxmarket/relux-backend/pkg/logger"
	"github.com/reluxmarket/relux-backend/pkg/pagination"
	"github.com/reluxmarket/relux-backend/pkg/types"
)

type confirmOrderRequest struct {
	TransactionID  string `json:"transaction_id" validate:"required,uuid"`
	ShippingMethod string `json:"shipping_method" validate:"omitempty,max=64"`
}

type shipOrderRequest struct {
	Carrier        string `json:"carrier" validate:"required,max=64"`
	TrackingNumber string `json:"tracking_number" validate:"required,max=128"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

type orderResponse struct {
	ID              uuid.UUID      `json:"id"`
	OrderNumber     string         `json:"order_number"`
	BuyerID         uuid.UUID      `json:"buyer_id"`
	SellerID        uuid.UUID      `json:"seller_id"`
	TransactionID   uuid.UUID      `json:"transaction_id"`
	Status          string         `json:"status"`
	ShippingMethod  string         `json:"shipping_method"`
	ShippingCarrier *string        `json:"shipping_carrier,omitempty"`
	TrackingNumber  *string        `json:"tracking_number,omitempty"`
	SubtotalCents   int64          `json:"subtotal_cents"`
	ShippingCents   int64          `json:"shipping_cents"`
	TotalCents      int64          `json:"total_cents"`
	CreatedAt       time.Time      `json:"created_at"`
	ConfirmedAt     *time.Time     `json:"confirmed_at,omitempty"`
	ShippedAt       *time.Time     `json:"shipped_at,omitempty"`
	DeliveredAt     *time.Time     `json:"delivered_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	CancelledAt     *time.Time     `json:"cancelled_at,omitempty"`
}

type orderItemResponse struct {
	ListingID      uuid.UUID     `json:"listing_id"`
	Quantity       int           `json:"quantity"`
	UnitPriceCents int64         `json:"unit_price_cents"`
	TotalCents     int64         `json:"total_cents"`
	ItemSnapshot   types.JSONMap `json:"item_snapshot,omitempty"`
}

type historyResponse struct {
	FromStatus *string   `json:"from_status,omitempty"`
	ToStatus   string    `json:"to_status"`
	ChangedBy  uuid.UUID `json:"changed_by"`
	Reason     *string   `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type shippingEventResponse struct {
	EventType   string        `json:"event_type"`
	Description string        `json:"description"`
	CarrierData types.JSONMap `json:"carrier_data,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

type orderDetailResponse struct {
	orderResponse
	ShippingAddress types.Address           `json:"shipping_address"`
	Items           []orderItemResponse     `json:"items"`
	StatusHistory   []historyResponse       `json:"status_history"`
	ShippingEvents  []shippingEventResponse `json:"shipping_events"`
}

type orderPageResponse struct {
	Orders     []orderResponse `json:"orders"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// OrdersConfirm promotes a captured transaction into an order.
func OrdersConfirm(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req confirmOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		transactionID, err := uuid.Parse(req.TransactionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "transaction_id must be a uuid"))
			return
		}

		order, err := svc.Confirm(r.Context(), orders.ConfirmInput{
			BuyerID:        middleware.UserIDFromContext(r.Context()),
			TransactionID:  transactionID,
			ShippingMethod: req.ShippingMethod,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toOrderResponse(order))
	}
}

// OrdersList pages the caller's orders, buyer-side by default.
func OrdersList(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var status *enums.OrderStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			parsed, err := enums.ParseOrderStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			status = &parsed
		}

		role := strings.TrimSpace(r.URL.Query().Get("role"))
		if role != "" && role != "buyer" && role != "seller" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "role must be buyer or seller"))
			return
		}

		list, next, err := svc.List(r.Context(), orders.ListInput{
			UserID: middleware.UserIDFromContext(r.Context()),
			Role:   role,
			Status: status,
			Page: pagination.Params{
				Limit:  limit,
				Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
			},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page := orderPageResponse{Orders: make([]orderResponse, 0, len(list))}
		for i := range list {
			page.Orders = append(page.Orders, toOrderResponse(&list[i]))
		}
		if next != nil {
			page.NextCursor = pagination.EncodeCursor(*next)
		}
		responses.WriteSuccess(w, page)
	}
}

// OrdersDetail returns one order with items, history, and shipping events.
func OrdersDetail(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Detail(r.Context(), orderID, middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOrderDetailResponse(order))
	}
}

// OrdersShip records the seller's shipment.
func OrdersShip(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req shipOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.MarkShipped(r.Context(), orders.ShipInput{
			OrderID:        orderID,
			SellerID:       middleware.UserIDFromContext(r.Context()),
			Carrier:        req.Carrier,
			TrackingNumber: req.TrackingNumber,
		}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": string(enums.OrderStatusShipped)})
	}
}

// OrdersDeliver records the buyer's delivery confirmation.
func OrdersDeliver(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.MarkDelivered(r.Context(), orders.DeliverInput{
			OrderID: orderID,
			BuyerID: middleware.UserIDFromContext(r.Context()),
		}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": string(enums.OrderStatusDelivered)})
	}
}

// OrdersComplete closes out a delivered order.
func OrdersComplete(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Complete(r.Context(), orders.CompleteInput{
			OrderID: orderID,
			BuyerID: middleware.UserIDFromContext(r.Context()),
		}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": string(enums.OrderStatusCompleted)})
	}
}

// OrdersCancel aborts an order before shipment.
func OrdersCancel(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req cancelOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Cancel(r.Context(), orders.CancelInput{
			OrderID: orderID,
			ActorID: middleware.UserIDFromContext(r.Context()),
			Reason:  req.Reason,
		}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": string(enums.OrderStatusCancelled)})
	}
}

func parseOrderID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "orderID")
	orderID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id must be a uuid")
	}
	return orderID, nil
}

func toOrderResponse(order *models.Order) orderResponse {
	return orderResponse{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		BuyerID:         order.BuyerID,
		SellerID:        order.SellerID,
		TransactionID:   order.TransactionID,
		Status:          string(order.Status),
		ShippingMethod:  order.ShippingMethod,
		ShippingCarrier: order.ShippingCarrier,
		TrackingNumber:  order.TrackingNumber,
		SubtotalCents:   order.SubtotalCents,
		ShippingCents:   order.ShippingCents,
		TotalCents:      order.TotalCents,
		CreatedAt:       order.CreatedAt,
		ConfirmedAt:     order.ConfirmedAt,
		ShippedAt:       order.ShippedAt,
		DeliveredAt:     order.DeliveredAt,
		CompletedAt:     order.CompletedAt,
		CancelledAt:     order.CancelledAt,
	}
}

func toOrderDetailResponse(order *models.Order) orderDetailResponse {
	detail := orderDetailResponse{
		orderResponse:   toOrderResponse(order),
		ShippingAddress: order.ShippingAddress,
		Items:           make([]orderItemResponse, 0, len(order.Items)),
		StatusHistory:   make([]historyResponse, 0, len(order.StatusHistory)),
		ShippingEvents:  make([]shippingEventResponse, 0, len(order.ShippingEvents)),
	}
	for _, item := range order.Items {
		detail.Items = append(detail.Items, orderItemResponse{
			ListingID:      item.ListingID,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			TotalCents:     item.TotalCents,
			ItemSnapshot:   item.ItemSnapshot,
		})
	}
	for _, entry := range order.StatusHistory {
		var from *string
		if entry.FromStatus != nil {
			value := string(*entry.FromStatus)
			from = &value
		}
		detail.StatusHistory = append(detail.StatusHistory, historyResponse{
			FromStatus: from,
			ToStatus:   string(entry.ToStatus),
			ChangedBy:  entry.ChangedBy,
			Reason:     entry.Reason,
			CreatedAt:  entry.CreatedAt,
		})
	}
	for _, event := range order.ShippingEvents {
		detail.ShippingEvents = append(detail.ShippingEvents, shippingEventResponse{
			EventType:   string(event.EventType),
			Description: event.Description,
			CarrierData: event.CarrierData,
			CreatedAt:   event.CreatedAt,
		})
	}
	return detail
}
