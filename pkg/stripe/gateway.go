package stripe

import (
	"context"
	"errors"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"
	"github.com/stripe/stripe-go/v84/refund"

	apperrors "github.com/reluxmarket/relux-backend/pkg/errors"
)

// IntentRequest captures everything needed to open a payment intent with the
// gateway. Amounts are minor units in the listing currency.
type IntentRequest struct {
	AmountCents    int64
	Currency       string
	IdempotencyKey string
	Metadata       map[string]string
}

// Intent is the gateway-side handle returned for an authorized payment.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
}

// RefundRequest describes a full or partial refund against a payment intent.
// AmountCents of zero means refund the full captured amount.
type RefundRequest struct {
	PaymentIntentID string
	AmountCents     int64
	Reason          string
	IdempotencyKey  string
}

// RefundResult is the gateway-side record of an issued refund.
type RefundResult struct {
	ID     string
	Status string
}

// Gateway is the payment-processor surface the settlement services depend on.
// The production implementation talks to Stripe; tests stub it.
type Gateway interface {
	CreatePaymentIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	CancelPaymentIntent(ctx context.Context, intentID string) error
	CreateRefund(ctx context.Context, req RefundRequest) (*RefundResult, error)
}

type gateway struct {
	client *Client
}

// NewGateway wraps the initialized Stripe client behind the Gateway surface.
func NewGateway(client *Client) (Gateway, error) {
	if client == nil {
		return nil, errors.New("stripe client is required")
	}
	return &gateway{client: client}, nil
}

func (g *gateway) CreatePaymentIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	if req.AmountCents <= 0 {
		return nil, apperrors.New(apperrors.CodeValidation, "intent amount must be positive")
	}

	ctx, cancel := context.WithTimeout(ctx, g.client.CallTimeout())
	defer cancel()

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountCents),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, mapGatewayError("creating payment intent", err)
	}
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
	}, nil
}

func (g *gateway) CancelPaymentIntent(ctx context.Context, intentID string) error {
	if intentID == "" {
		return apperrors.New(apperrors.CodeValidation, "payment intent id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, g.client.CallTimeout())
	defer cancel()

	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	if _, err := paymentintent.Cancel(intentID, params); err != nil {
		return mapGatewayError("cancelling payment intent", err)
	}
	return nil
}

func (g *gateway) CreateRefund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	if req.PaymentIntentID == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "payment intent id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, g.client.CallTimeout())
	defer cancel()

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.PaymentIntentID),
	}
	params.Context = ctx
	if req.AmountCents > 0 {
		params.Amount = stripe.Int64(req.AmountCents)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	if req.Reason != "" {
		params.AddMetadata("reason", req.Reason)
	}

	rf, err := refund.New(params)
	if err != nil {
		return nil, mapGatewayError("creating refund", err)
	}
	return &RefundResult{
		ID:     rf.ID,
		Status: string(rf.Status),
	}, nil
}

// mapGatewayError converts Stripe failures into the dependency error code and
// keeps the gateway's own code in the details so callers can surface it.
func mapGatewayError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		wrapped := apperrors.Wrap(apperrors.CodeDependency, err, op+" failed")
		details := map[string]any{"gateway_code": string(stripeErr.Code)}
		if stripeErr.Type != "" {
			details["gateway_error_type"] = string(stripeErr.Type)
		}
		return wrapped.WithDetails(details)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(apperrors.CodeDependency, err, op+" timed out")
	}
	return apperrors.Wrap(apperrors.CodeDependency, err, op+" failed")
}
