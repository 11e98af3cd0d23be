package payouts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/reluxmarket/relux-backend/pkg/db/models"
	"github.com/reluxmarket/relux-backend/pkg/enums"
	apperrors "github.com/reluxmarket/relux-backend/pkg/errors"
	"github.com/reluxmarket/relux-backend/pkg/pagination"
)

// ListParams filters the admin payout listing.
type ListParams struct {
	Status   *enums.PayoutStatus
	SellerID *uuid.UUID
	Limit    int
	Cursor   *pagination.Cursor
}

// ExportParams filters the settlement export.
type ExportParams struct {
	Status *enums.PayoutStatus
	From   *time.Time
	To     *time.Time
}

// StatusTotal aggregates the payouts sharing one status.
type StatusTotal struct {
	Status      enums.PayoutStatus
	Count       int64
	AmountCents int64
}

// Repository covers payout rows plus the transaction settlement column and
// the audit trail the admin operations write.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	List(ctx context.Context, params ListParams) ([]models.Payout, *pagination.Cursor, error)
	Stats(ctx context.Context, since time.Time) ([]StatusTotal, error)
	Export(ctx context.Context, params ExportParams) ([]models.Payout, error)
	UpdatePayout(ctx context.Context, id uuid.UUID, updates map[string]any) error
	UpdateTransaction(ctx context.Context, id uuid.UUID, updates map[string]any) error
	CreateAuditLog(ctx context.Context, entry *models.AdminAuditLog) error
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository builds the gorm-backed payouts repository.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	err := r.db.WithContext(ctx).First(&payout, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "payout not found")
		}
		return nil, apperrors.Wrap(apperrors.CodeDependency, err, "find payout")
	}
	return &payout, nil
}

func (r *repositoryImpl) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&payout, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "payout not found")
		}
		return nil, apperrors.Wrap(apperrors.CodeDependency, err, "find payout")
	}
	return &payout, nil
}

func (r *repositoryImpl) List(ctx context.Context, params ListParams) ([]models.Payout, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).Model(&models.Payout{})
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.SellerID != nil {
		query = query.Where("seller_id = ?", *params.SellerID)
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var payouts []models.Payout
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&payouts).Error; err != nil {
		return nil, nil, err
	}

	if len(payouts) > normalized {
		next := payouts[normalized]
		payouts = payouts[:normalized]
		return payouts, &pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID}, nil
	}
	return payouts, nil, nil
}

func (r *repositoryImpl) Stats(ctx context.Context, since time.Time) ([]StatusTotal, error) {
	var totals []StatusTotal
	err := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Select("status, count(*) as count, coalesce(sum(amount_cents), 0) as amount_cents").
		Where("created_at >= ?", since).
		Group("status").
		Scan(&totals).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDependency, err, "aggregate payouts")
	}
	return totals, nil
}

func (r *repositoryImpl) Export(ctx context.Context, params ExportParams) ([]models.Payout, error) {
	query := r.db.WithContext(ctx).Model(&models.Payout{})
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.From != nil {
		query = query.Where("created_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("created_at <= ?", *params.To)
	}

	var payouts []models.Payout
	if err := query.Order("created_at DESC, id DESC").Find(&payouts).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDependency, err, "export payouts")
	}
	return payouts, nil
}

func (r *repositoryImpl) UpdatePayout(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repositoryImpl) UpdateTransaction(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repositoryImpl) CreateAuditLog(ctx context.Context, entry *models.AdminAuditLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}
