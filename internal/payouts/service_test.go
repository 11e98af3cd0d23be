package payouts

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/reluxmarket/relux-backend/pkg/config"
	"github.com/reluxmarket/relux-backend/pkg/db/models"
	"github.com/reluxmarket/relux-backend/pkg/enums"
	apperrors "github.com/reluxmarket/relux-backend/pkg/errors"
	"github.com/reluxmarket/relux-backend/pkg/logger"
	"github.com/reluxmarket/relux-backend/pkg/pagination"
)

type stubPayoutsRepo struct {
	payouts map[uuid.UUID]*models.Payout

	payoutUpdates      map[uuid.UUID]map[string]any
	transactionUpdates map[uuid.UUID]map[string]any
	auditLogs          []*models.AdminAuditLog
}

func newStubPayoutsRepo() *stubPayoutsRepo {
	return &stubPayoutsRepo{
		payouts:            make(map[uuid.UUID]*models.Payout),
		payoutUpdates:      make(map[uuid.UUID]map[string]any),
		transactionUpdates: make(map[uuid.UUID]map[string]any),
	}
}

func (s *stubPayoutsRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubPayoutsRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	if payout, ok := s.payouts[id]; ok {
		return payout, nil
	}
	return nil, apperrors.New(apperrors.CodeNotFound, "payout not found")
}

func (s *stubPayoutsRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	return s.FindByID(ctx, id)
}

func (s *stubPayoutsRepo) List(ctx context.Context, params ListParams) ([]models.Payout, *pagination.Cursor, error) {
	var result []models.Payout
	for _, payout := range s.payouts {
		if params.Status != nil && payout.Status != *params.Status {
			continue
		}
		if params.SellerID != nil && payout.SellerID != *params.SellerID {
			continue
		}
		result = append(result, *payout)
	}
	return result, nil, nil
}

func (s *stubPayoutsRepo) UpdatePayout(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	s.payoutUpdates[id] = updates
	if payout, ok := s.payouts[id]; ok {
		if status, ok := updates["status"].(enums.PayoutStatus); ok {
			payout.Status = status
		}
	}
	return nil
}

func (s *stubPayoutsRepo) UpdateTransaction(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	s.transactionUpdates[id] = updates
	return nil
}

func (s *stubPayoutsRepo) CreateAuditLog(ctx context.Context, entry *models.AdminAuditLog) error {
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *stubPayoutsRepo) Stats(ctx context.Context, since time.Time) ([]StatusTotal, error) {
	totals := make(map[enums.PayoutStatus]*StatusTotal)
	for _, payout := range s.payouts {
		if payout.CreatedAt.Before(since) {
			continue
		}
		bucket, ok := totals[payout.Status]
		if !ok {
			bucket = &StatusTotal{Status: payout.Status}
			totals[payout.Status] = bucket
		}
		bucket.Count++
		bucket.AmountCents += payout.AmountCents
	}
	var result []StatusTotal
	for _, bucket := range totals {
		result = append(result, *bucket)
	}
	return result, nil
}

func (s *stubPayoutsRepo) Export(ctx context.Context, params ExportParams) ([]models.Payout, error) {
	var result []models.Payout
	for _, payout := range s.payouts {
		if params.Status != nil && payout.Status != *params.Status {
			continue
		}
		if params.From != nil && payout.CreatedAt.Before(*params.From) {
			continue
		}
		if params.To != nil && payout.CreatedAt.After(*params.To) {
			continue
		}
		result = append(result, *payout)
	}
	return result, nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func newTestService(t *testing.T, repo *stubPayoutsRepo) Service {
	t.Helper()
	svc, err := NewService(
		repo,
		stubTxRunner{},
		logger.New(logger.Options{ServiceName: "payouts-test"}),
		nil,
		config.PayoutConfig{HoldPeriod: 48 * time.Hour, MaxBatchSize: 50},
	)
	require.NoError(t, err)
	return svc
}

func seedPayout(repo *stubPayoutsRepo, status enums.PayoutStatus) *models.Payout {
	payout := &models.Payout{
		ID:            uuid.New(),
		SellerID:      uuid.New(),
		TransactionID: uuid.New(),
		AmountCents:   5500,
		Currency:      enums.CurrencyUSD,
		Status:        status,
		Destination:   "acct_123",
	}
	repo.payouts[payout.ID] = payout
	return payout
}

func TestBatchProcess_ApprovesAll(t *testing.T) {
	repo := newStubPayoutsRepo()
	adminID := uuid.New()
	first := seedPayout(repo, enums.PayoutStatusProcessing)
	second := seedPayout(repo, enums.PayoutStatusProcessing)

	svc := newTestService(t, repo)
	result, err := svc.BatchProcess(context.Background(), BatchInput{
		AdminID:   adminID,
		PayoutIDs: []uuid.UUID{first.ID, second.ID},
		Action:    ActionApprove,
		Notes:     "weekly settlement run",
	})
	require.NoError(t, err)

	require.Equal(t, 2, result.Total)
	require.Equal(t, 2, result.Successful)
	require.Equal(t, 0, result.Failed)
	require.Len(t, result.Items, 2)
	require.True(t, result.Items[0].Success)

	require.Equal(t, enums.PayoutStatusCompleted, first.Status)
	require.Equal(t, enums.PayoutStatusCompleted, second.Status)
	require.Equal(t, enums.PayoutStatusCompleted, repo.transactionUpdates[first.TransactionID]["seller_payout_status"])

	require.Len(t, repo.auditLogs, 2)
	require.Equal(t, "payout.approve", repo.auditLogs[0].Action)
	require.Equal(t, adminID, repo.auditLogs[0].AdminID)
}

func TestBatchProcess_MixedResultsDoNotAbort(t *testing.T) {
	repo := newStubPayoutsRepo()
	processing := seedPayout(repo, enums.PayoutStatusProcessing)
	stillPending := seedPayout(repo, enums.PayoutStatusPending)
	alsoProcessing := seedPayout(repo, enums.PayoutStatusProcessing)

	svc := newTestService(t, repo)
	result, err := svc.BatchProcess(context.Background(), BatchInput{
		AdminID:   uuid.New(),
		PayoutIDs: []uuid.UUID{processing.ID, stillPending.ID, alsoProcessing.ID},
		Action:    ActionApprove,
	})
	require.NoError(t, err)

	require.Equal(t, 3, result.Total)
	require.Equal(t, 2, result.Successful)
	require.Equal(t, 1, result.Failed)

	require.Equal(t, enums.PayoutStatusCompleted, processing.Status)
	require.Equal(t, enums.PayoutStatusPending, stillPending.Status)
	require.Equal(t, enums.PayoutStatusCompleted, alsoProcessing.Status)

	var failedItem *BatchItem
	for i := range result.Items {
		if !result.Items[i].Success {
			failedItem = &result.Items[i]
		}
	}
	require.NotNil(t, failedItem)
	require.Equal(t, stillPending.ID, failedItem.PayoutID)
	require.NotEmpty(t, failedItem.Error)
}

func TestBatchProcess_RejectFailsPayouts(t *testing.T) {
	repo := newStubPayoutsRepo()
	payout := seedPayout(repo, enums.PayoutStatusProcessing)

	svc := newTestService(t, repo)
	result, err := svc.BatchProcess(context.Background(), BatchInput{
		AdminID:   uuid.New(),
		PayoutIDs: []uuid.UUID{payout.ID},
		Action:    ActionReject,
		Notes:     "seller account under review",
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Successful)

	require.Equal(t, enums.PayoutStatusFailed, payout.Status)
	require.Equal(t, enums.PayoutStatusFailed, repo.transactionUpdates[payout.TransactionID]["seller_payout_status"])
	require.Equal(t, "seller account under review", repo.payoutUpdates[payout.ID]["admin_notes"])
}

func TestBatchProcess_UnknownIDFailsOnlyThatItem(t *testing.T) {
	repo := newStubPayoutsRepo()
	first := seedPayout(repo, enums.PayoutStatusProcessing)
	unknown := uuid.New()
	second := seedPayout(repo, enums.PayoutStatusProcessing)

	svc := newTestService(t, repo)
	result, err := svc.BatchProcess(context.Background(), BatchInput{
		AdminID:   uuid.New(),
		PayoutIDs: []uuid.UUID{first.ID, unknown, second.ID},
		Action:    ActionApprove,
	})
	require.NoError(t, err)

	require.Equal(t, 3, result.Total)
	require.Equal(t, 2, result.Successful)
	require.Equal(t, 1, result.Failed)

	require.Equal(t, enums.PayoutStatusCompleted, first.Status)
	require.Equal(t, enums.PayoutStatusCompleted, second.Status)

	require.Len(t, result.Items, 3)
	require.True(t, result.Items[0].Success)
	require.False(t, result.Items[1].Success)
	require.Equal(t, unknown, result.Items[1].PayoutID)
	require.Equal(t, "payout not found", result.Items[1].Error)
	require.True(t, result.Items[2].Success)

	require.Len(t, repo.auditLogs, 2)
}

func TestBatchProcess_SizeAndDuplicateGuards(t *testing.T) {
	repo := newStubPayoutsRepo()
	svc := newTestService(t, repo)
	adminID := uuid.New()

	oversized := make([]uuid.UUID, 51)
	for i := range oversized {
		oversized[i] = uuid.New()
	}
	_, err := svc.BatchProcess(context.Background(), BatchInput{
		AdminID:   adminID,
		PayoutIDs: oversized,
		Action:    ActionApprove,
	})
	require.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))

	repeated := uuid.New()
	_, err = svc.BatchProcess(context.Background(), BatchInput{
		AdminID:   adminID,
		PayoutIDs: []uuid.UUID{repeated, repeated},
		Action:    ActionApprove,
	})
	require.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))

	_, err = svc.BatchProcess(context.Background(), BatchInput{
		AdminID:   adminID,
		PayoutIDs: nil,
		Action:    ActionApprove,
	})
	require.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))
}

func TestBatchProcess_InvalidAction(t *testing.T) {
	repo := newStubPayoutsRepo()
	payout := seedPayout(repo, enums.PayoutStatusProcessing)

	svc := newTestService(t, repo)
	_, err := svc.BatchProcess(context.Background(), BatchInput{
		AdminID:   uuid.New(),
		PayoutIDs: []uuid.UUID{payout.ID},
		Action:    "hold",
	})
	require.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))
}

func TestProcess_SinglePayout(t *testing.T) {
	repo := newStubPayoutsRepo()
	payout := seedPayout(repo, enums.PayoutStatusProcessing)

	svc := newTestService(t, repo)
	processed, err := svc.Process(context.Background(), ProcessInput{
		AdminID:  uuid.New(),
		PayoutID: payout.ID,
		Action:   ActionApprove,
	})
	require.NoError(t, err)
	require.Equal(t, enums.PayoutStatusCompleted, processed.Status)
	require.Len(t, repo.auditLogs, 1)
}

func TestProcess_StateConflict(t *testing.T) {
	repo := newStubPayoutsRepo()
	payout := seedPayout(repo, enums.PayoutStatusCompleted)

	svc := newTestService(t, repo)
	_, err := svc.Process(context.Background(), ProcessInput{
		AdminID:  uuid.New(),
		PayoutID: payout.ID,
		Action:   ActionApprove,
	})
	require.Equal(t, apperrors.CodeStateConflict, apperrors.CodeOf(err))
}

func TestMarkProcessing_StagesDuePayout(t *testing.T) {
	repo := newStubPayoutsRepo()
	payout := seedPayout(repo, enums.PayoutStatusPending)
	due := time.Now().Add(-time.Hour)
	payout.ScheduledFor = &due

	svc := newTestService(t, repo)
	staged, err := svc.MarkProcessing(context.Background(), uuid.New(), payout.ID)
	require.NoError(t, err)

	require.Equal(t, enums.PayoutStatusProcessing, staged.Status)
	require.Equal(t, enums.PayoutStatusProcessing, repo.transactionUpdates[payout.TransactionID]["seller_payout_status"])
	require.Len(t, repo.auditLogs, 1)
	require.Equal(t, "payout.mark_processing", repo.auditLogs[0].Action)
}

func TestMarkProcessing_HoldPeriodNotElapsed(t *testing.T) {
	repo := newStubPayoutsRepo()
	payout := seedPayout(repo, enums.PayoutStatusPending)
	future := time.Now().Add(24 * time.Hour)
	payout.ScheduledFor = &future

	svc := newTestService(t, repo)
	_, err := svc.MarkProcessing(context.Background(), uuid.New(), payout.ID)
	require.Equal(t, apperrors.CodeStateConflict, apperrors.CodeOf(err))
	require.Equal(t, enums.PayoutStatusPending, payout.Status)
}

func TestMarkProcessing_PlaceholderNeverDue(t *testing.T) {
	repo := newStubPayoutsRepo()
	payout := seedPayout(repo, enums.PayoutStatusPending)
	// Intent-time placeholders have no schedule until delivery.
	payout.ScheduledFor = nil

	svc := newTestService(t, repo)
	_, err := svc.MarkProcessing(context.Background(), uuid.New(), payout.ID)
	require.Equal(t, apperrors.CodeStateConflict, apperrors.CodeOf(err))
}

func TestList_StatusFilter(t *testing.T) {
	repo := newStubPayoutsRepo()
	seedPayout(repo, enums.PayoutStatusPending)
	seedPayout(repo, enums.PayoutStatusProcessing)

	svc := newTestService(t, repo)
	status := enums.PayoutStatusProcessing
	payouts, _, err := svc.List(context.Background(), ListInput{Status: &status})
	require.NoError(t, err)
	require.Len(t, payouts, 1)
	require.Equal(t, enums.PayoutStatusProcessing, payouts[0].Status)
}

func TestList_InvalidCursor(t *testing.T) {
	repo := newStubPayoutsRepo()
	svc := newTestService(t, repo)

	_, _, err := svc.List(context.Background(), ListInput{
		Page: pagination.Params{Cursor: "not-base64!"},
	})
	require.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))
}

func TestStats_AggregatesByStatus(t *testing.T) {
	repo := newStubPayoutsRepo()
	now := time.Now().UTC()
	for _, status := range []enums.PayoutStatus{
		enums.PayoutStatusCompleted,
		enums.PayoutStatusCompleted,
		enums.PayoutStatusPending,
	} {
		payout := seedPayout(repo, status)
		payout.CreatedAt = now.AddDate(0, 0, -1)
	}
	stale := seedPayout(repo, enums.PayoutStatusFailed)
	stale.CreatedAt = now.AddDate(0, 0, -90)

	svc := newTestService(t, repo)
	stats, err := svc.Stats(context.Background(), 30)
	require.NoError(t, err)

	require.EqualValues(t, 3, stats.TotalCount)
	require.EqualValues(t, 3*5500, stats.TotalAmountCents)
	require.Equal(t, 30, stats.PeriodDays)
	require.EqualValues(t, 2, stats.ByStatus[string(enums.PayoutStatusCompleted)].Count)
	require.EqualValues(t, 11000, stats.ByStatus[string(enums.PayoutStatusCompleted)].AmountCents)
	require.EqualValues(t, 1, stats.ByStatus[string(enums.PayoutStatusPending)].Count)
	require.NotContains(t, stats.ByStatus, string(enums.PayoutStatusFailed))
}

func TestStats_DefaultWindow(t *testing.T) {
	repo := newStubPayoutsRepo()
	svc := newTestService(t, repo)

	stats, err := svc.Stats(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, defaultStatsWindowDays, stats.PeriodDays)
}

func TestExport_StatusFilter(t *testing.T) {
	repo := newStubPayoutsRepo()
	now := time.Now().UTC()
	completed := seedPayout(repo, enums.PayoutStatusCompleted)
	completed.CreatedAt = now
	pending := seedPayout(repo, enums.PayoutStatusPending)
	pending.CreatedAt = now

	svc := newTestService(t, repo)
	status := enums.PayoutStatusCompleted
	list, err := svc.Export(context.Background(), ExportInput{Status: &status})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, completed.ID, list[0].ID)
}

func TestExport_InvalidStatus(t *testing.T) {
	repo := newStubPayoutsRepo()
	svc := newTestService(t, repo)

	bogus := enums.PayoutStatus("bogus")
	_, err := svc.Export(context.Background(), ExportInput{Status: &bogus})
	require.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))
}

func TestExport_InvertedDateRange(t *testing.T) {
	repo := newStubPayoutsRepo()
	svc := newTestService(t, repo)

	from := time.Now()
	to := from.AddDate(0, 0, -7)
	_, err := svc.Export(context.Background(), ExportInput{From: &from, To: &to})
	require.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))
}
