// Package payouts holds the admin settlement operations. Payouts are staged
// to processing once their hold period elapses, then approved or rejected,
// individually or in batches. Batch items fail independently; one bad payout
// never aborts the rest.
package payouts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/reluxmarket/relux-backend/pkg/config"
	"github.com/reluxmarket/relux-backend/pkg/db/models"
	"github.com/reluxmarket/relux-backend/pkg/enums"
	apperrors "github.com/reluxmarket/relux-backend/pkg/errors"
	"github.com/reluxmarket/relux-backend/pkg/logger"
	"github.com/reluxmarket/relux-backend/pkg/metrics"
	"github.com/reluxmarket/relux-backend/pkg/pagination"
	"github.com/reluxmarket/relux-backend/pkg/types"
)

// Admin decisions on a processing payout.
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service defines the admin payout operations.
type Service interface {
	BatchProcess(ctx context.Context, input BatchInput) (*BatchResult, error)
	Process(ctx context.Context, input ProcessInput) (*models.Payout, error)
	MarkProcessing(ctx context.Context, adminID, payoutID uuid.UUID) (*models.Payout, error)
	List(ctx context.Context, input ListInput) ([]models.Payout, *pagination.Cursor, error)
	Stats(ctx context.Context, days int) (*Stats, error)
	Export(ctx context.Context, input ExportInput) ([]models.Payout, error)
}

type service struct {
	repo      Repository
	tx        txRunner
	logg      *logger.Logger
	metrics   *metrics.SettlementMetrics
	payoutCfg config.PayoutConfig
	now       func() time.Time
}

// BatchInput applies one decision to a batch of processing payouts.
type BatchInput struct {
	AdminID   uuid.UUID
	PayoutIDs []uuid.UUID
	Action    string
	Notes     string
}

// ProcessInput applies a decision to a single processing payout.
type ProcessInput struct {
	AdminID  uuid.UUID
	PayoutID uuid.UUID
	Action   string
	Notes    string
}

// ListInput filters the admin payout listing.
type ListInput struct {
	Status   *enums.PayoutStatus
	SellerID *uuid.UUID
	Page     pagination.Params
}

// ExportInput filters the payout export.
type ExportInput struct {
	Status *enums.PayoutStatus
	From   *time.Time
	To     *time.Time
}

// StatusBucket is one status slice of the stats summary.
type StatusBucket struct {
	Count       int64 `json:"count"`
	AmountCents int64 `json:"amount_cents"`
}

// Stats summarizes the payouts created inside the reporting window.
type Stats struct {
	TotalCount       int64                   `json:"total_count"`
	TotalAmountCents int64                   `json:"total_amount_cents"`
	ByStatus         map[string]StatusBucket `json:"by_status"`
	PeriodDays       int                     `json:"period_days"`
	Since            time.Time               `json:"since"`
}

// BatchItem is the outcome for one payout in a batch.
type BatchItem struct {
	PayoutID uuid.UUID `json:"payout_id"`
	Success  bool      `json:"success"`
	Error    string    `json:"error,omitempty"`
}

// BatchResult summarizes a batch run. Total always equals the number of
// submitted ids.
type BatchResult struct {
	Total      int         `json:"total"`
	Successful int         `json:"successful"`
	Failed     int         `json:"failed"`
	Items      []BatchItem `json:"items"`
}

// NewService builds the admin payout service with the required dependencies.
func NewService(
	repo Repository,
	tx txRunner,
	logg *logger.Logger,
	settlementMetrics *metrics.SettlementMetrics,
	payoutCfg config.PayoutConfig,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payouts repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:      repo,
		tx:        tx,
		logg:      logg,
		metrics:   settlementMetrics,
		payoutCfg: payoutCfg,
		now:       time.Now,
	}, nil
}

func (s *service) BatchProcess(ctx context.Context, input BatchInput) (*BatchResult, error) {
	if input.AdminID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeUnauthorized, "admin identity missing")
	}
	if err := validateAction(input.Action); err != nil {
		return nil, err
	}
	if len(input.PayoutIDs) == 0 {
		return nil, apperrors.New(apperrors.CodeValidation, "payout ids required")
	}
	if len(input.PayoutIDs) > s.payoutCfg.MaxBatchSize {
		return nil, apperrors.New(apperrors.CodeValidation,
			fmt.Sprintf("batch size exceeds maximum of %d", s.payoutCfg.MaxBatchSize)).
			WithDetails(map[string]any{"max_batch_size": s.payoutCfg.MaxBatchSize})
	}
	seen := make(map[uuid.UUID]bool, len(input.PayoutIDs))
	for _, id := range input.PayoutIDs {
		if id == uuid.Nil {
			return nil, apperrors.New(apperrors.CodeValidation, "payout id cannot be empty")
		}
		if seen[id] {
			return nil, apperrors.New(apperrors.CodeValidation, "duplicate payout id in batch").
				WithDetails(map[string]any{"payout_id": id.String()})
		}
		seen[id] = true
	}

	outcome := actionOutcome(input.Action)
	result := &BatchResult{Total: len(input.PayoutIDs)}
	var itemErrs error
	for _, id := range input.PayoutIDs {
		if err := s.processOne(ctx, input.AdminID, id, input.Action, input.Notes); err != nil {
			result.Failed++
			result.Items = append(result.Items, BatchItem{PayoutID: id, Error: apperrors.As(err).Message()})
			itemErrs = multierr.Append(itemErrs, fmt.Errorf("payout %s: %w", id, err))
			s.metrics.IncPayout("failed")
			continue
		}
		result.Successful++
		result.Items = append(result.Items, BatchItem{PayoutID: id, Success: true})
		s.metrics.IncPayout(outcome)
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"action":     input.Action,
		"total":      result.Total,
		"successful": result.Successful,
		"failed":     result.Failed,
	})
	if itemErrs != nil {
		s.logg.Warn(s.logg.WithField(ctx, "errors", itemErrs.Error()), "payouts.batch.partial")
	} else {
		s.logg.Info(ctx, "payouts.batch.processed")
	}
	return result, nil
}

func (s *service) Process(ctx context.Context, input ProcessInput) (*models.Payout, error) {
	if input.AdminID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeUnauthorized, "admin identity missing")
	}
	if input.PayoutID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "payout id required")
	}
	if err := validateAction(input.Action); err != nil {
		return nil, err
	}

	if err := s.processOne(ctx, input.AdminID, input.PayoutID, input.Action, input.Notes); err != nil {
		s.metrics.IncPayout("failed")
		return nil, err
	}
	s.metrics.IncPayout(actionOutcome(input.Action))
	s.logg.Info(s.logg.WithField(ctx, "payout_id", input.PayoutID.String()), "payouts.processed")
	return s.repo.FindByID(ctx, input.PayoutID)
}

// processOne applies one decision inside its own transaction. Used directly
// by Process and per item by BatchProcess.
func (s *service) processOne(ctx context.Context, adminID, payoutID uuid.UUID, action, notes string) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		payout, err := repo.FindByIDForUpdate(ctx, payoutID)
		if err != nil {
			return err
		}
		if payout.Status != enums.PayoutStatusProcessing {
			return apperrors.New(apperrors.CodeStateConflict, "payout is not in processing").
				WithDetails(map[string]any{"status": string(payout.Status)})
		}

		target := enums.PayoutStatusCompleted
		if action == ActionReject {
			target = enums.PayoutStatusFailed
		}

		now := s.now()
		updates := map[string]any{
			"status":       target,
			"processed_by": adminID,
			"processed_at": now,
		}
		if trimmed := strings.TrimSpace(notes); trimmed != "" {
			updates["admin_notes"] = trimmed
		}
		if err := repo.UpdatePayout(ctx, payout.ID, updates); err != nil {
			return apperrors.Wrap(apperrors.CodeDependency, err, "update payout")
		}

		if err := repo.UpdateTransaction(ctx, payout.TransactionID, map[string]any{
			"seller_payout_status": target,
		}); err != nil {
			return apperrors.Wrap(apperrors.CodeDependency, err, "update transaction")
		}

		return s.audit(ctx, repo, adminID, "payout."+action, payout, map[string]any{
			"from_status":  string(enums.PayoutStatusProcessing),
			"to_status":    string(target),
			"amount_cents": payout.AmountCents,
		})
	})
}

func (s *service) MarkProcessing(ctx context.Context, adminID, payoutID uuid.UUID) (*models.Payout, error) {
	if adminID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeUnauthorized, "admin identity missing")
	}
	if payoutID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "payout id required")
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		payout, err := repo.FindByIDForUpdate(ctx, payoutID)
		if err != nil {
			return err
		}
		if payout.Status != enums.PayoutStatusPending {
			return apperrors.New(apperrors.CodeStateConflict, "payout is not pending").
				WithDetails(map[string]any{"status": string(payout.Status)})
		}
		now := s.now()
		if payout.ScheduledFor == nil || payout.ScheduledFor.After(now) {
			return apperrors.New(apperrors.CodeStateConflict, "payout hold period has not elapsed").
				WithDetails(map[string]any{"scheduled_for": scheduledForString(payout.ScheduledFor)})
		}

		if err := repo.UpdatePayout(ctx, payout.ID, map[string]any{
			"status": enums.PayoutStatusProcessing,
		}); err != nil {
			return apperrors.Wrap(apperrors.CodeDependency, err, "update payout")
		}
		if err := repo.UpdateTransaction(ctx, payout.TransactionID, map[string]any{
			"seller_payout_status": enums.PayoutStatusProcessing,
		}); err != nil {
			return apperrors.Wrap(apperrors.CodeDependency, err, "update transaction")
		}

		return s.audit(ctx, repo, adminID, "payout.mark_processing", payout, map[string]any{
			"from_status": string(enums.PayoutStatusPending),
			"to_status":   string(enums.PayoutStatusProcessing),
		})
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithField(ctx, "payout_id", payoutID.String()), "payouts.staged")
	return s.repo.FindByID(ctx, payoutID)
}

const defaultStatsWindowDays = 30

func (s *service) Stats(ctx context.Context, days int) (*Stats, error) {
	if days <= 0 {
		days = defaultStatsWindowDays
	}
	since := s.now().AddDate(0, 0, -days)

	totals, err := s.repo.Stats(ctx, since)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		ByStatus:   make(map[string]StatusBucket, len(totals)),
		PeriodDays: days,
		Since:      since,
	}
	for _, total := range totals {
		stats.TotalCount += total.Count
		stats.TotalAmountCents += total.AmountCents
		stats.ByStatus[string(total.Status)] = StatusBucket{Count: total.Count, AmountCents: total.AmountCents}
	}
	return stats, nil
}

func (s *service) Export(ctx context.Context, input ExportInput) ([]models.Payout, error) {
	if input.Status != nil && !input.Status.IsValid() {
		return nil, apperrors.New(apperrors.CodeValidation, "invalid status filter")
	}
	if input.From != nil && input.To != nil && input.From.After(*input.To) {
		return nil, apperrors.New(apperrors.CodeValidation, "start date must not be after end date")
	}
	return s.repo.Export(ctx, ExportParams{Status: input.Status, From: input.From, To: input.To})
}

func (s *service) List(ctx context.Context, input ListInput) ([]models.Payout, *pagination.Cursor, error) {
	if input.Status != nil && !input.Status.IsValid() {
		return nil, nil, apperrors.New(apperrors.CodeValidation, "invalid status filter")
	}
	cursor, err := pagination.ParseCursor(input.Page.Cursor)
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.CodeValidation, err, "invalid cursor")
	}

	return s.repo.List(ctx, ListParams{
		Status:   input.Status,
		SellerID: input.SellerID,
		Limit:    input.Page.Limit,
		Cursor:   cursor,
	})
}

func (s *service) audit(ctx context.Context, repo Repository, adminID uuid.UUID, action string, payout *models.Payout, details types.JSONMap) error {
	entry := &models.AdminAuditLog{
		AdminID:    adminID,
		Action:     action,
		TargetType: "payout",
		TargetID:   payout.ID,
		Details:    details,
	}
	if err := repo.CreateAuditLog(ctx, entry); err != nil {
		return apperrors.Wrap(apperrors.CodeDependency, err, "record audit log")
	}
	return nil
}

func actionOutcome(action string) string {
	if action == ActionReject {
		return "rejected"
	}
	return "approved"
}

func validateAction(action string) error {
	switch action {
	case ActionApprove, ActionReject:
		return nil
	default:
		return apperrors.New(apperrors.CodeValidation, "action must be approve or reject")
	}
}

func scheduledForString(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
