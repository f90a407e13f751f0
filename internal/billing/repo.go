package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dkemp/subcycle-backend/pkg/db/models"
	"github.com/dkemp/subcycle-backend/pkg/enums"
	"github.com/dkemp/subcycle-backend/pkg/pagination"
)

// Repository handles billing persistence: vaulted payment methods, schedule
// entries, and confirmed transactions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreatePaymentMethod(ctx context.Context, method *models.PaymentMethod) error
	ListPaymentMethods(ctx context.Context, businessID string) ([]models.PaymentMethod, error)
	FindPaymentMethodByID(ctx context.Context, id uuid.UUID) (*models.PaymentMethod, error)
	FindDefaultPaymentMethod(ctx context.Context, businessID string) (*models.PaymentMethod, error)
	ClearDefaultPaymentMethod(ctx context.Context, businessID string) error
	MarkPaymentMethodDefault(ctx context.Context, id uuid.UUID) error
	DeletePaymentMethod(ctx context.Context, id uuid.UUID) error
	CreateScheduleEntry(ctx context.Context, entry *models.BillingScheduleEntry) error
	UpdateScheduleEntry(ctx context.Context, entry *models.BillingScheduleEntry) error
	FindEntryByMerchantUID(ctx context.Context, merchantUID string) (*models.BillingScheduleEntry, error)
	FindActiveEntry(ctx context.Context, businessID string) (*models.BillingScheduleEntry, error)
	ListDueEntries(ctx context.Context, dueBy time.Time, limit int) ([]models.BillingScheduleEntry, error)
	CreateTransaction(ctx context.Context, tx *models.PaymentTransaction) error
	FindTransactionByGatewayTxID(ctx context.Context, gatewayTxID string) (*models.PaymentTransaction, error)
	ListTransactions(ctx context.Context, params ListTransactionsQuery) ([]models.PaymentTransaction, *pagination.Cursor, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a billing repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreatePaymentMethod(ctx context.Context, method *models.PaymentMethod) error {
	return r.db.WithContext(ctx).Create(method).Error
}

func (r *repository) ListPaymentMethods(ctx context.Context, businessID string) ([]models.PaymentMethod, error) {
	var methods []models.PaymentMethod
	if err := r.db.WithContext(ctx).
		Where("business_id = ?", businessID).
		Order("created_at DESC").
		Find(&methods).Error; err != nil {
		return nil, err
	}
	return methods, nil
}

func (r *repository) FindPaymentMethodByID(ctx context.Context, id uuid.UUID) (*models.PaymentMethod, error) {
	var method models.PaymentMethod
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&method).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &method, nil
}

func (r *repository) FindDefaultPaymentMethod(ctx context.Context, businessID string) (*models.PaymentMethod, error) {
	var method models.PaymentMethod
	if err := r.db.WithContext(ctx).
		Where("business_id = ? AND is_default", businessID).
		First(&method).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &method, nil
}

func (r *repository) ClearDefaultPaymentMethod(ctx context.Context, businessID string) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentMethod{}).
		Where("business_id = ? AND is_default", businessID).
		Update("is_default", false).Error
}

func (r *repository) MarkPaymentMethodDefault(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentMethod{}).
		Where("id = ?", id).
		Update("is_default", true).Error
}

func (r *repository) DeletePaymentMethod(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.PaymentMethod{}).Error
}

func (r *repository) CreateScheduleEntry(ctx context.Context, entry *models.BillingScheduleEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) UpdateScheduleEntry(ctx context.Context, entry *models.BillingScheduleEntry) error {
	return r.db.WithContext(ctx).Save(entry).Error
}

func (r *repository) FindEntryByMerchantUID(ctx context.Context, merchantUID string) (*models.BillingScheduleEntry, error) {
	if merchantUID == "" {
		return nil, nil
	}
	var entry models.BillingScheduleEntry
	if err := r.db.WithContext(ctx).
		Where("merchant_uid = ?", merchantUID).
		First(&entry).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// FindActiveEntry returns the business's open billing cycle, the single entry
// still awaiting a successful charge.
func (r *repository) FindActiveEntry(ctx context.Context, businessID string) (*models.BillingScheduleEntry, error) {
	var entry models.BillingScheduleEntry
	statuses := []enums.PaymentStatus{enums.PaymentStatusPending, enums.PaymentStatusFailed}
	if err := r.db.WithContext(ctx).
		Where("business_id = ? AND status IN (?)", businessID, statuses).
		Order("schedule DESC").
		First(&entry).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// ListDueEntries returns PENDING entries whose schedule has passed. FAILED
// entries are excluded; retrying those is the default-method swap's job.
func (r *repository) ListDueEntries(ctx context.Context, dueBy time.Time, limit int) ([]models.BillingScheduleEntry, error) {
	if limit <= 0 {
		limit = 500
	}
	var entries []models.BillingScheduleEntry
	if err := r.db.WithContext(ctx).
		Where("status = ? AND schedule <= ?", enums.PaymentStatusPending, dueBy).
		Order("schedule ASC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) CreateTransaction(ctx context.Context, tx *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *repository) FindTransactionByGatewayTxID(ctx context.Context, gatewayTxID string) (*models.PaymentTransaction, error) {
	if gatewayTxID == "" {
		return nil, nil
	}
	var tx models.PaymentTransaction
	if err := r.db.WithContext(ctx).
		Where("gateway_tx_id = ?", gatewayTxID).
		First(&tx).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

// ListTransactionsQuery configures transaction history queries.
type ListTransactionsQuery struct {
	BusinessID string
	Limit      int
	Cursor     *pagination.Cursor
	Status     *enums.PaymentStatus
	IntentType *enums.PaymentIntentType
}

func (r *repository) ListTransactions(ctx context.Context, params ListTransactionsQuery) ([]models.PaymentTransaction, *pagination.Cursor, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).Model(&models.PaymentTransaction{}).Where("business_id = ?", params.BusinessID)
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.IntentType != nil {
		query = query.Where("intent_type = ?", *params.IntentType)
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var txs []models.PaymentTransaction
	if err := query.Order("created_at DESC, id DESC").Limit(pagination.LimitWithBuffer(limit)).Find(&txs).Error; err != nil {
		return nil, nil, err
	}

	page, next := pagination.TrimPage(txs, limit, func(tx models.PaymentTransaction) pagination.Cursor {
		return pagination.Cursor{CreatedAt: tx.CreatedAt, ID: tx.ID}
	})
	return page, next, nil
}
