package payments

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/reluxmarket/relux-backend/pkg/db/models"
	apperrors "github.com/reluxmarket/relux-backend/pkg/errors"
)

// Repository exposes persistence helpers for payment transactions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateTransaction(ctx context.Context, transaction *models.Transaction) error
	FindTransactionByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	FindTransactionByReference(ctx context.Context, reference string) (*models.Transaction, error)
	FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	CreatePayout(ctx context.Context, payout *models.Payout) error
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a payments repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) CreateTransaction(ctx context.Context, transaction *models.Transaction) error {
	return r.db.WithContext(ctx).Create(transaction).Error
}

func (r *repositoryImpl) FindTransactionByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var transaction models.Transaction
	err := r.db.WithContext(ctx).First(&transaction, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.New(apperrors.CodeNotFound, "transaction not found")
	}
	if err != nil {
		return nil, err
	}
	return &transaction, nil
}

func (r *repositoryImpl) FindTransactionByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	var transaction models.Transaction
	err := r.db.WithContext(ctx).First(&transaction, "order_reference = ?", reference).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.New(apperrors.CodeNotFound, "transaction not found")
	}
	if err != nil {
		return nil, err
	}
	return &transaction, nil
}

func (r *repositoryImpl) FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.New(apperrors.CodeNotFound, "user not found")
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repositoryImpl) CreatePayout(ctx context.Context, payout *models.Payout) error {
	return r.db.WithContext(ctx).Create(payout).Error
}
