package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/reluxmarket/relux-backend/api/middleware"
	"github.com/reluxmarket/relux-backend/api/responses"
	"github.com/reluxmarket/relux-backend/api/validators"
	"github.com/reluxmarket/relux-backend/internal/payments"
	pkgerrors "github.com/reluxmarket/relux-backend/pkg/errors"
	"github.com/reluxmarket/relux-backend/pkg/logger"
	"github.com/reluxmarket/relux-backend/pkg/types"
)

type createIntentRequest struct {
	ListingID       string        `json:"listing_id" validate:"required,uuid"`
	ShippingAddress types.Address `json:"shipping_address" validate:"required"`
}

// PaymentsCreateIntent opens a payment intent for the authenticated buyer.
func PaymentsCreateIntent(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createIntentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		listingID, err := uuid.Parse(req.ListingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "listing_id must be a uuid"))
			return
		}

		result, err := svc.CreateIntent(r.Context(), payments.CreateIntentInput{
			BuyerID:         middleware.UserIDFromContext(r.Context()),
			ListingID:       listingID,
			ShippingAddress: req.ShippingAddress,
			IdempotencyKey:  strings.TrimSpace(r.Header.Get("Idempotency-Key")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
