package controllers

import (
	"encoding/csv"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/reluxmarket/relux-backend/api/middleware"
	"github.com/reluxmarket/relux-backend/api/responses"
	"github.com/reluxmarket/relux-backend/api/validators"
	"github.com/reluxmarket/relux-backend/internal/payouts"
	"github.com/reluxmarket/relux-backend/pkg/db/models"
	"github.com/reluxmarket/relux-backend/pkg/enums"
	pkgerrors "github.com/reluxmarket/relux-backend/pkg/errors"
	"github.com/reluxmarket/relux-backend/pkg/logger"
	"github.com/reluxmarket/relux-backend/pkg/pagination"
)

type processPayoutRequest struct {
	PayoutID string `json:"payout_id" validate:"required,uuid"`
	Action   string `json:"action" validate:"required,oneof=approve reject"`
	Notes    string `json:"notes" validate:"omitempty,max=1000"`
}

type batchPayoutRequest struct {
	PayoutIDs []string `json:"payout_ids" validate:"required,min=1,dive,uuid"`
	Action    string   `json:"action" validate:"required,oneof=approve reject"`
	Notes     string   `json:"notes" validate:"omitempty,max=1000"`
}

type payoutResponse struct {
	ID            uuid.UUID  `json:"id"`
	SellerID      uuid.UUID  `json:"seller_id"`
	OrderID       *uuid.UUID `json:"order_id,omitempty"`
	TransactionID uuid.UUID  `json:"transaction_id"`
	AmountCents   int64      `json:"amount_cents"`
	Currency      string     `json:"currency"`
	Status        string     `json:"status"`
	Destination   string     `json:"destination"`
	ScheduledFor  *time.Time `json:"scheduled_for,omitempty"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type payoutPageResponse struct {
	Payouts    []payoutResponse `json:"payouts"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

// AdminPayoutsList pages payouts for the settlement dashboard.
func AdminPayoutsList(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var status *enums.PayoutStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			parsed, err := enums.ParsePayoutStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			status = &parsed
		}

		var sellerID *uuid.UUID
		if raw := strings.TrimSpace(r.URL.Query().Get("seller_id")); raw != "" {
			parsed, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "seller_id must be a uuid"))
				return
			}
			sellerID = &parsed
		}

		list, next, err := svc.List(r.Context(), payouts.ListInput{
			Status:   status,
			SellerID: sellerID,
			Page: pagination.Params{
				Limit:  limit,
				Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
			},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page := payoutPageResponse{Payouts: make([]payoutResponse, 0, len(list))}
		for i := range list {
			page.Payouts = append(page.Payouts, toPayoutResponse(&list[i]))
		}
		if next != nil {
			page.NextCursor = pagination.EncodeCursor(*next)
		}
		responses.WriteSuccess(w, page)
	}
}

// AdminPayoutsProcess applies one decision to a single payout.
func AdminPayoutsProcess(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req processPayoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payoutID, err := uuid.Parse(req.PayoutID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "payout_id must be a uuid"))
			return
		}

		payout, err := svc.Process(r.Context(), payouts.ProcessInput{
			AdminID:  middleware.UserIDFromContext(r.Context()),
			PayoutID: payoutID,
			Action:   req.Action,
			Notes:    req.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toPayoutResponse(payout))
	}
}

// AdminPayoutsBatch applies one decision across a batch. Mixed results come
// back 200 with per-item outcomes.
func AdminPayoutsBatch(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req batchPayoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ids := make([]uuid.UUID, 0, len(req.PayoutIDs))
		for _, raw := range req.PayoutIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "payout_ids must be uuids"))
				return
			}
			ids = append(ids, id)
		}

		result, err := svc.BatchProcess(r.Context(), payouts.BatchInput{
			AdminID:   middleware.UserIDFromContext(r.Context()),
			PayoutIDs: ids,
			Action:    req.Action,
			Notes:     req.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminPayoutsStats summarizes payouts created in the trailing window for
// the settlement dashboard.
func AdminPayoutsStats(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days, err := validators.ParseQueryInt(r, "days", 30, 1, 365)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		stats, err := svc.Stats(r.Context(), days)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}

// AdminPayoutsExport streams the filtered payouts as a CSV or JSON download.
func AdminPayoutsExport(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		format := strings.TrimSpace(r.URL.Query().Get("format"))
		if format == "" {
			format = "csv"
		}
		if format != "csv" && format != "json" {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "format must be csv or json"))
			return
		}

		var status *enums.PayoutStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			parsed, err := enums.ParsePayoutStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			status = &parsed
		}

		from, err := parseExportDate(r.URL.Query().Get("start_date"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		to, err := parseExportDate(r.URL.Query().Get("end_date"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.Export(r.Context(), payouts.ExportInput{Status: status, From: from, To: to})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filename := "payouts_export_" + time.Now().UTC().Format("2006-01-02")
		if format == "json" {
			page := make([]payoutResponse, 0, len(list))
			for i := range list {
				page = append(page, toPayoutResponse(&list[i]))
			}
			w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`.json"`)
			responses.WriteSuccess(w, page)
			return
		}

		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`.csv"`)
		if err := writePayoutCSV(w, list); err != nil {
			logg.Error(r.Context(), "payouts.export.write_failed", err)
		}
	}
}

func writePayoutCSV(w io.Writer, list []models.Payout) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"payout_id", "transaction_id", "order_id", "seller_id", "status",
		"amount_cents", "currency", "destination", "scheduled_for",
		"processed_by", "processed_at", "admin_notes", "created_at",
	}); err != nil {
		return err
	}
	for i := range list {
		payout := &list[i]
		if err := cw.Write([]string{
			payout.ID.String(),
			payout.TransactionID.String(),
			uuidPtrString(payout.OrderID),
			payout.SellerID.String(),
			string(payout.Status),
			strconv.FormatInt(payout.AmountCents, 10),
			string(payout.Currency),
			payout.Destination,
			timePtrString(payout.ScheduledFor),
			uuidPtrString(payout.ProcessedBy),
			timePtrString(payout.ProcessedAt),
			strPtrString(payout.AdminNotes),
			payout.CreatedAt.UTC().Format(time.RFC3339),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// parseExportDate accepts a date or a full RFC3339 timestamp.
func parseExportDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if parsed, err := time.Parse("2006-01-02", raw); err == nil {
		return &parsed, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "dates must be YYYY-MM-DD or RFC3339")
	}
	return &parsed, nil
}

func uuidPtrString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func timePtrString(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func strPtrString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// AdminPayoutsStage moves a due pending payout into processing.
func AdminPayoutsStage(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := chi.URLParam(r, "payoutID")
		payoutID, err := uuid.Parse(raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "payout id must be a uuid"))
			return
		}

		payout, err := svc.MarkProcessing(r.Context(), middleware.UserIDFromContext(r.Context()), payoutID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toPayoutResponse(payout))
	}
}

func toPayoutResponse(payout *models.Payout) payoutResponse {
	return payoutResponse{
		ID:            payout.ID,
		SellerID:      payout.SellerID,
		OrderID:       payout.OrderID,
		TransactionID: payout.TransactionID,
		AmountCents:   payout.AmountCents,
		Currency:      string(payout.Currency),
		Status:        string(payout.Status),
		Destination:   payout.Destination,
		ScheduledFor:  payout.ScheduledFor,
		ProcessedAt:   payout.ProcessedAt,
		CreatedAt:     payout.CreatedAt,
	}
}
