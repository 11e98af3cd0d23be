package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/reluxmarket/relux-backend/api/middleware"
	"github.com/reluxmarket/relux-backend/internal/payments"
	pkgerrors "github.com/reluxmarket/relux-backend/pkg/errors"
)

type stubPaymentsService struct {
	createIntent func(ctx context.Context, input payments.CreateIntentInput) (*payments.CreateIntentResult, error)
}

func (s stubPaymentsService) CreateIntent(ctx context.Context, input payments.CreateIntentInput) (*payments.CreateIntentResult, error) {
	if s.createIntent != nil {
		return s.createIntent(ctx, input)
	}
	return &payments.CreateIntentResult{}, nil
}

func intentBody(listingID uuid.UUID) string {
	return `{"listing_id":"` + listingID.String() + `","shipping_address":{"line1":"1 Main St","city":"Austin","state":"TX","postal_code":"78701","country":"US"}}`
}

func TestPaymentsCreateIntentSuccess(t *testing.T) {
	buyerID := uuid.New()
	listingID := uuid.New()
	var captured payments.CreateIntentInput
	svc := stubPaymentsService{
		createIntent: func(ctx context.Context, input payments.CreateIntentInput) (*payments.CreateIntentResult, error) {
			captured = input
			return &payments.CreateIntentResult{
				TransactionID: uuid.New(),
				ClientSecret:  "pi_secret",
			}, nil
		},
	}
	handler := PaymentsCreateIntent(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/intent", strings.NewReader(intentBody(listingID)))
	req.Header.Set("Idempotency-Key", "key-1")
	req = req.WithContext(middleware.WithUserID(req.Context(), buyerID))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.BuyerID != buyerID {
		t.Fatalf("expected buyer %s got %s", buyerID, captured.BuyerID)
	}
	if captured.ListingID != listingID {
		t.Fatalf("expected listing %s got %s", listingID, captured.ListingID)
	}
	if captured.IdempotencyKey != "key-1" {
		t.Fatalf("expected idempotency key forwarded got %q", captured.IdempotencyKey)
	}
	if captured.ShippingAddress.City != "Austin" {
		t.Fatalf("unexpected address %+v", captured.ShippingAddress)
	}

	var envelope struct {
		Data payments.CreateIntentResult `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.ClientSecret != "pi_secret" {
		t.Fatalf("expected client secret in response got %q", envelope.Data.ClientSecret)
	}
}

func TestPaymentsCreateIntentRejectsBadListingID(t *testing.T) {
	handler := PaymentsCreateIntent(stubPaymentsService{}, nil)

	body := `{"listing_id":"nope","shipping_address":{"line1":"1 Main St","city":"Austin","state":"TX","postal_code":"78701","country":"US"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/intent", strings.NewReader(body))
	req = req.WithContext(middleware.WithUserID(req.Context(), uuid.New()))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestPaymentsCreateIntentRejectsUnknownFields(t *testing.T) {
	handler := PaymentsCreateIntent(stubPaymentsService{}, nil)

	body := `{"listing_id":"` + uuid.NewString() + `","surprise":true}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/intent", strings.NewReader(body))
	req = req.WithContext(middleware.WithUserID(req.Context(), uuid.New()))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestPaymentsCreateIntentRateLimitPassthrough(t *testing.T) {
	svc := stubPaymentsService{
		createIntent: func(ctx context.Context, input payments.CreateIntentInput) (*payments.CreateIntentResult, error) {
			return nil, pkgerrors.New(pkgerrors.CodeRateLimit, "purchase attempts exceeded")
		},
	}
	handler := PaymentsCreateIntent(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/intent", strings.NewReader(intentBody(uuid.New())))
	req = req.WithContext(middleware.WithUserID(req.Context(), uuid.New()))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", resp.Code)
	}
}
