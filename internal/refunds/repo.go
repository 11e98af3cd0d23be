package refunds

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/reluxmarket/relux-backend/pkg/db/models"
	"github.com/reluxmarket/relux-backend/pkg/enums"
	apperrors "github.com/reluxmarket/relux-backend/pkg/errors"
)

// Repository covers refund request rows plus the order and transaction
// columns the negotiation mutates.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateRequest(ctx context.Context, request *models.RefundRequest) error
	FindRequestByID(ctx context.Context, id uuid.UUID) (*models.RefundRequest, error)
	FindPendingByOrderID(ctx context.Context, orderID uuid.UUID) (*models.RefundRequest, error)
	UpdateRequest(ctx context.Context, id uuid.UUID, updates map[string]any) error
	FindOrderByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error
	CreateHistory(ctx context.Context, entry *models.OrderStatusHistory) error
	FindTransactionByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	UpdateTransaction(ctx context.Context, id uuid.UUID, updates map[string]any) error
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository builds the gorm-backed refunds repository.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) CreateRequest(ctx context.Context, request *models.RefundRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *repositoryImpl) FindRequestByID(ctx context.Context, id uuid.UUID) (*models.RefundRequest, error) {
	var request models.RefundRequest
	err := r.db.WithContext(ctx).First(&request, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "refund request not found")
		}
		return nil, apperrors.Wrap(apperrors.CodeDependency, err, "find refund request")
	}
	return &request, nil
}

func (r *repositoryImpl) FindPendingByOrderID(ctx context.Context, orderID uuid.UUID) (*models.RefundRequest, error) {
	var request models.RefundRequest
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, enums.RefundRequestStatusPending).
		First(&request).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "no pending refund request")
		}
		return nil, apperrors.Wrap(apperrors.CodeDependency, err, "find pending refund request")
	}
	return &request, nil
}

func (r *repositoryImpl) UpdateRequest(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.RefundRequest{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repositoryImpl) FindOrderByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&order, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "order not found")
		}
		return nil, apperrors.Wrap(apperrors.CodeDependency, err, "find order")
	}
	return &order, nil
}

func (r *repositoryImpl) UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repositoryImpl) CreateHistory(ctx context.Context, entry *models.OrderStatusHistory) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repositoryImpl) FindTransactionByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var transaction models.Transaction
	err := r.db.WithContext(ctx).First(&transaction, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "transaction not found")
		}
		return nil, apperrors.Wrap(apperrors.CodeDependency, err, "find transaction")
	}
	return &transaction, nil
}

func (r *repositoryImpl) UpdateTransaction(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ?", id).
		Updates(updates).Error
}
