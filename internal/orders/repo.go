package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/reluxmarket/relux-backend/pkg/db/models"
	"github.com/reluxmarket/relux-backend/pkg/enums"
	apperrors "github.com/reluxmarket/relux-backend/pkg/errors"
	"github.com/reluxmarket/relux-backend/pkg/pagination"
)

// Repository exposes persistence helpers for orders and their satellites.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateOrder(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByTransactionID(ctx context.Context, transactionID uuid.UUID) (*models.Order, error)
	FindDetail(ctx context.Context, id uuid.UUID) (*models.Order, error)
	List(ctx context.Context, params ListParams) ([]models.Order, *pagination.Cursor, error)
	UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error

	CreateOrderItem(ctx context.Context, item *models.OrderItem) error
	CreateHistory(ctx context.Context, entry *models.OrderStatusHistory) error
	CreateShippingEvent(ctx context.Context, event *models.ShippingEvent) error

	FindTransactionByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	UpdateTransaction(ctx context.Context, id uuid.UUID, updates map[string]any) error

	FindPlaceholderPayout(ctx context.Context, transactionID uuid.UUID) (*models.Payout, error)
	CreatePayout(ctx context.Context, payout *models.Payout) error
	UpdatePayout(ctx context.Context, id uuid.UUID, updates map[string]any) error

	FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// ListParams filters the order listing by role and status.
type ListParams struct {
	UserID uuid.UUID
	Role   string // "buyer" or "seller"
	Status *enums.OrderStatus
	Limit  int
	Cursor *pagination.Cursor
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns an orders repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).First(&order, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.New(apperrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByIDForUpdate takes a row lock so concurrent transitions on the same
// order serialize; the loser re-reads a changed status and conflicts.
func (r *repositoryImpl) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&order, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.New(apperrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repositoryImpl) FindByTransactionID(ctx context.Context, transactionID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).First(&order, "transaction_id = ?", transactionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.New(apperrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repositoryImpl) FindDetail(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Preload("ShippingEvents", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		First(&order, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.New(apperrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repositoryImpl) List(ctx context.Context, params ListParams) ([]models.Order, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).Model(&models.Order{})
	switch params.Role {
	case "seller":
		query = query.Where("seller_id = ?", params.UserID)
	default:
		query = query.Where("buyer_id = ?", params.UserID)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var orders []models.Order
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&orders).Error; err != nil {
		return nil, nil, err
	}

	if len(orders) > normalized {
		next := orders[normalized]
		orders = orders[:normalized]
		return orders, &pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID}, nil
	}
	return orders, nil, nil
}

func (r *repositoryImpl) UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repositoryImpl) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *repositoryImpl) CreateHistory(ctx context.Context, entry *models.OrderStatusHistory) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repositoryImpl) CreateShippingEvent(ctx context.Context, event *models.ShippingEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
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

func (r *repositoryImpl) UpdateTransaction(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// FindPlaceholderPayout returns the pending payout created at intent time,
// before any order was attached to it.
func (r *repositoryImpl) FindPlaceholderPayout(ctx context.Context, transactionID uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	err := r.db.WithContext(ctx).
		First(&payout, "transaction_id = ? AND order_id IS NULL AND status = ?", transactionID, enums.PayoutStatusPending).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.New(apperrors.CodeNotFound, "placeholder payout not found")
	}
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repositoryImpl) CreatePayout(ctx context.Context, payout *models.Payout) error {
	return r.db.WithContext(ctx).Create(payout).Error
}

func (r *repositoryImpl) UpdatePayout(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ?", id).
		Updates(updates).Error
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
