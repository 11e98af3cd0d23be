// Package payments creates gateway payment intents and the transaction
// records backing them. The intent flow authorizes exactly one charge per
// idempotency key; a persistence failure after authorization compensates by
// cancelling the gateway intent.
package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/reluxmarket/relux-backend/internal/fees"
	"github.com/reluxmarket/relux-backend/internal/listings"
	"github.com/reluxmarket/relux-backend/pkg/config"
	"github.com/reluxmarket/relux-backend/pkg/db"
	"github.com/reluxmarket/relux-backend/pkg/db/models"
	"github.com/reluxmarket/relux-backend/pkg/enums"
	apperrors "github.com/reluxmarket/relux-backend/pkg/errors"
	"github.com/reluxmarket/relux-backend/pkg/logger"
	"github.com/reluxmarket/relux-backend/pkg/metrics"
	"github.com/reluxmarket/relux-backend/pkg/stripe"
	"github.com/reluxmarket/relux-backend/pkg/types"
)

const rateLimitScopePrefix = "purchase:"

type rateLimiter interface {
	SlidingWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Service defines the payment intent operations.
type Service interface {
	CreateIntent(ctx context.Context, input CreateIntentInput) (*CreateIntentResult, error)
}

type service struct {
	repo     Repository
	listings listings.Repository
	gateway  stripe.Gateway
	limiter  rateLimiter
	logg     *logger.Logger
	metrics  *metrics.SettlementMetrics
	schedule fees.Schedule
	currency enums.Currency
	rateCfg  config.PurchaseRateLimitConfig
	now      func() time.Time
}

// CreateIntentInput captures a buyer's request to purchase a listing.
type CreateIntentInput struct {
	BuyerID         uuid.UUID
	ListingID       uuid.UUID
	ShippingAddress types.Address
	IdempotencyKey  string
}

// CreateIntentResult is returned to the client to complete payment.
type CreateIntentResult struct {
	TransactionID  uuid.UUID      `json:"transaction_id"`
	OrderReference string         `json:"order_reference"`
	ClientSecret   string         `json:"client_secret"`
	Currency       enums.Currency `json:"currency"`
	Breakdown      fees.Breakdown `json:"breakdown"`
}

// NewService builds the payment intent service with the required dependencies.
func NewService(
	repo Repository,
	listingRepo listings.Repository,
	gateway stripe.Gateway,
	limiter rateLimiter,
	logg *logger.Logger,
	settlementMetrics *metrics.SettlementMetrics,
	feeCfg config.FeeConfig,
	rateCfg config.PurchaseRateLimitConfig,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if listingRepo == nil {
		return nil, fmt.Errorf("listings repository required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}

	currency := enums.Currency(strings.ToUpper(feeCfg.Currency))
	if !currency.IsValid() {
		return nil, fmt.Errorf("unsupported settlement currency %q", feeCfg.Currency)
	}

	return &service{
		repo:     repo,
		listings: listingRepo,
		gateway:  gateway,
		limiter:  limiter,
		logg:     logg,
		metrics:  settlementMetrics,
		schedule: fees.Schedule{PercentBasisPoints: feeCfg.BuyerFeeBasisPoints, FixedCents: feeCfg.BuyerFeeFixedCents},
		currency: currency,
		rateCfg:  rateCfg,
		now:      time.Now,
	}, nil
}

func (s *service) CreateIntent(ctx context.Context, input CreateIntentInput) (*CreateIntentResult, error) {
	if input.BuyerID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeUnauthorized, "user identity missing")
	}
	if input.ListingID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "listing id required")
	}
	if err := input.ShippingAddress.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeValidation, err, "invalid shipping address")
	}

	ctx = s.logg.WithUserID(ctx, input.BuyerID.String())

	// Cheapest check first: reject throttled buyers before touching the db.
	scope := rateLimitScopePrefix + input.BuyerID.String()
	allowed, _, err := s.limiter.SlidingWindowAllow(ctx, scope, int64(s.rateCfg.Limit), s.rateCfg.Window)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDependency, err, "rate limit check")
	}
	if !allowed {
		s.metrics.IncIntent("rate_limited")
		return nil, apperrors.New(apperrors.CodeRateLimit, "too many purchase attempts").
			WithDetails(map[string]any{"retry_after_seconds": int(s.rateCfg.Window.Seconds())})
	}

	listing, err := s.listings.FindByID(ctx, input.ListingID)
	if err != nil {
		return nil, err
	}
	if listing.SellerID == input.BuyerID {
		s.metrics.IncIntent("rejected")
		return nil, apperrors.New(apperrors.CodeValidation, "you cannot purchase your own listing").
			WithDetails(map[string]any{"reason": "self_purchase"})
	}
	if listing.Status != enums.ListingStatusActive || listing.Quantity < 1 {
		s.metrics.IncIntent("rejected")
		return nil, apperrors.New(apperrors.CodeValidation, "listing is not available for purchase").
			WithDetails(map[string]any{"reason": "listing_unavailable"})
	}

	breakdown, err := fees.Compute(listing.PriceCents, listing.ShippingCents, s.schedule)
	if err != nil {
		return nil, err
	}

	reference := NewOrderReference(s.now())
	ctx = s.logg.WithField(ctx, "order_reference", reference)

	started := s.now()
	intent, err := s.gateway.CreatePaymentIntent(ctx, stripe.IntentRequest{
		AmountCents:    breakdown.TotalChargeCents,
		Currency:       strings.ToLower(s.currency.String()),
		IdempotencyKey: input.IdempotencyKey,
		Metadata: map[string]string{
			"order_reference":     reference,
			"listing_id":          listing.ID.String(),
			"buyer_id":            input.BuyerID.String(),
			"seller_id":           listing.SellerID.String(),
			"subtotal_cents":      fmt.Sprintf("%d", breakdown.SubtotalCents),
			"buyer_fee_cents":     fmt.Sprintf("%d", breakdown.BuyerFeeCents),
			"seller_payout_cents": fmt.Sprintf("%d", breakdown.SellerPayoutCents),
		},
	})
	s.metrics.ObserveGatewayCall("create_payment_intent", s.now().Sub(started))
	if err != nil {
		s.metrics.IncIntent("gateway_failed")
		return nil, err
	}

	transaction := &models.Transaction{
		OrderReference:      reference,
		ListingID:           listing.ID,
		BuyerID:             input.BuyerID,
		SellerID:            listing.SellerID,
		AmountCents:         breakdown.SubtotalCents,
		Currency:            s.currency,
		Status:              enums.TransactionStatusPending,
		PaymentMethod:       enums.PaymentMethodStripe,
		GatewayPaymentRef:   intent.ID,
		BuyerFeeCents:       breakdown.BuyerFeeCents,
		BuyerFeeBasisPoints: s.schedule.PercentBasisPoints,
		PlatformFeeCents:    breakdown.BuyerFeeCents,
		SellerPayoutCents:   breakdown.SellerPayoutCents,
		SellerPayoutStatus:  enums.PayoutStatusPending,
		ShippingAddress:     input.ShippingAddress,
	}
	if err := s.repo.CreateTransaction(ctx, transaction); err != nil {
		// Compensate: the authorization exists at the gateway but has no
		// record on our side, so cancel it before surfacing the failure.
		if cancelErr := s.gateway.CancelPaymentIntent(ctx, intent.ID); cancelErr != nil {
			s.logg.Error(ctx, "payments.intent.compensation_failed", cancelErr)
		}
		s.metrics.IncIntent("persist_failed")
		if db.IsUniqueViolation(err, "order_reference") {
			return nil, apperrors.Wrap(apperrors.CodeConflict, err, "order reference already exists")
		}
		return nil, apperrors.Wrap(apperrors.CodeDependency, err, "persist transaction")
	}

	ctx = s.logg.WithTransactionID(ctx, transaction.ID.String())
	s.createPayoutPlaceholder(ctx, transaction)

	s.metrics.IncIntent("authorized")
	s.logg.Info(ctx, "payments.intent.created")

	return &CreateIntentResult{
		TransactionID:  transaction.ID,
		OrderReference: reference,
		ClientSecret:   intent.ClientSecret,
		Currency:       s.currency,
		Breakdown:      breakdown,
	}, nil
}

// createPayoutPlaceholder records the seller's future settlement as soon as
// the intent exists. Best effort: failure is logged and never propagated,
// delivery confirmation creates the authoritative payout later.
func (s *service) createPayoutPlaceholder(ctx context.Context, transaction *models.Transaction) {
	destination := models.PayoutDestinationNotSet
	seller, err := s.repo.FindUserByID(ctx, transaction.SellerID)
	if err != nil {
		s.logg.Warn(ctx, "payments.payout_placeholder.seller_lookup_failed")
	} else if seller.HasPayoutDestination() {
		destination = *seller.PayoutDestination
	}

	description := "pending sale " + transaction.OrderReference
	payout := &models.Payout{
		SellerID:      transaction.SellerID,
		TransactionID: transaction.ID,
		AmountCents:   transaction.SellerPayoutCents,
		Currency:      transaction.Currency,
		Status:        enums.PayoutStatusPending,
		Destination:   destination,
		Description:   &description,
	}
	if err := s.repo.CreatePayout(ctx, payout); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "payments.payout_placeholder.create_failed")
	}
}
